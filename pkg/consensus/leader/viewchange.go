package leader

import (
	"context"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// ViewChangeCallbacks receives the effects of a forced view change.
type ViewChangeCallbacks interface {
	// OnViewChange is invoked after the primary claim is cleared; the
	// receiver must force its consensus engine back to IDLE.
	OnViewChange(ctx context.Context, departedPrimary types.AgentID)
}

// Monitor detects a primary that has physically left the decision zone and
// forces relinquishment, so a departed primary never blocks re-election.
type Monitor struct {
	self       types.AgentID
	zoneRadius float64
	logger     types.Logger
	audit      types.AuditLogger
	callbacks  ViewChangeCallbacks
}

// NewMonitor creates a view-change monitor for one agent.
func NewMonitor(self types.AgentID, zoneRadius float64, logger types.Logger, audit types.AuditLogger, callbacks ViewChangeCallbacks) *Monitor {
	return &Monitor{
		self:       self,
		zoneRadius: zoneRadius,
		logger:     logger,
		audit:      audit,
		callbacks:  callbacks,
	}
}

// Tick evaluates eligibility of the current primary against the observed
// vehicle position. It returns the new primary claim: unchanged when no
// relinquishment is due, empty when the primary (this agent) has fully exited
// the zone. Only the primary itself relinquishes; replicas learn of it
// through the next election period.
func (m *Monitor) Tick(ctx context.Context, primary types.AgentID, vehicle types.VehicleObserver) types.AgentID {
	if primary == "" || primary != m.self {
		return primary
	}
	signedDistance := vehicle.SignedDistanceToZone()
	if signedDistance >= -m.zoneRadius {
		return primary
	}

	m.logger.InfoContext(ctx, "primary exited decision zone, relinquishing",
		"signed_distance", signedDistance,
		"zone_radius", m.zoneRadius,
	)
	if m.audit != nil {
		_ = m.audit.Info("view_change_forced", map[string]interface{}{
			"primary":         string(primary),
			"signed_distance": signedDistance,
		})
	}

	if m.callbacks != nil {
		m.callbacks.OnViewChange(ctx, primary)
	}
	return ""
}

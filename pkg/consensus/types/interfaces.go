package types

import (
	"context"
)

// Logger provides structured logging.
// SINGLE definition used across all packages; backends adapt to it so the
// consensus core never imports a logging library directly.
type Logger interface {
	DebugContext(ctx context.Context, msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
}

// AuditLogger records protocol-level events for after-the-fact analysis.
type AuditLogger interface {
	Info(event string, fields map[string]interface{}) error
	Warn(event string, fields map[string]interface{}) error
	Error(event string, fields map[string]interface{}) error
	Security(event string, fields map[string]interface{}) error
}

// Transport abstracts the peer-to-peer messaging collaborator. Delivery is
// asynchronous, unordered and at-most-once per send; the consensus core must
// not depend on anything stronger.
type Transport interface {
	// Broadcast sends an encoded vote to all reachable peers. Best effort:
	// a send failure is non-fatal to the round.
	Broadcast(ctx context.Context, data []byte) error

	// Subscribe registers the callback invoked for every inbound frame.
	// The callback may be invoked from transport-owned goroutines; the
	// subscriber is responsible for handing the frame to its own executor.
	Subscribe(handler func(ctx context.Context, data []byte))

	Close() error
}

// VehicleObserver exposes the kinematic and behavioral state of the vehicle
// this agent rides on. Supplied by the behavior FSM / mobility collaborator;
// read-only to the consensus core.
type VehicleObserver interface {
	Position() Vec2
	Velocity() Vec2
	Speed() float64

	// SignedDistanceToZone is the along-path distance to the zone center:
	// positive while approaching, negative once past the center, below
	// -radius when the vehicle has fully exited on the far side.
	SignedDistanceToZone() float64

	IsInWaitingState() bool
	EligibleToPropose() bool
}

// VehicleControl applies speed commands to the underlying vehicle.
type VehicleControl interface {
	SetTargetSpeed(speed float64) error
}

// StateExporter receives display-only state change notifications.
type StateExporter interface {
	OnPhaseChanged(id AgentID, phase Phase)
	OnRoleChanged(id AgentID, role Role)
	OnDecision(id AgentID, ev RoundEvent)
}

// TelemetryPublisher ships round event records to an external sink.
// Publish failures are best-effort and never fatal.
type TelemetryPublisher interface {
	Publish(ctx context.Context, ev RoundEvent) error
	Close() error
}

// Package leader handles topology-driven role election and primary
// relinquishment for the transient, geographically scoped cluster around an
// intersection.
package leader

import (
	"context"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// ElectionConfig contains role election parameters.
type ElectionConfig struct {
	// HighStabilityThreshold is the topology stability score above which an
	// honest agent promotes itself to cluster head.
	HighStabilityThreshold float64
}

// DefaultElectionConfig returns the demo-calibrated defaults.
func DefaultElectionConfig() *ElectionConfig {
	return &ElectionConfig{HighStabilityThreshold: 80}
}

// Election maps the topology stability score to a role and opportunistically
// claims the primary slot. The claim is cooperative and unauthenticated:
// there is no leader-election quorum, only a stability heuristic appropriate
// for a short-lived roadside cluster.
type Election struct {
	self   types.AgentID
	config *ElectionConfig
	logger types.Logger
}

// NewElection creates the election component for one agent.
func NewElection(self types.AgentID, config *ElectionConfig, logger types.Logger) *Election {
	if config == nil {
		config = DefaultElectionConfig()
	}
	return &Election{self: self, config: config, logger: logger}
}

// Evaluate returns the role for this period and the (possibly updated)
// primary claim. Malicious agents never self-promote. A replica result does
// not clear an existing primary claim; only view change does that.
func (e *Election) Evaluate(ctx context.Context, stability float64, integrity types.Integrity, primary types.AgentID) (types.Role, types.AgentID) {
	if integrity == types.IntegrityMalicious {
		return types.RoleReplica, primary
	}

	if stability > e.config.HighStabilityThreshold {
		if primary == "" {
			primary = e.self
			e.logger.InfoContext(ctx, "claiming primary",
				"stability", stability,
				"threshold", e.config.HighStabilityThreshold,
			)
		}
		return types.RoleClusterHead, primary
	}

	return types.RoleReplica, primary
}

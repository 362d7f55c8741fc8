package pbft

import (
	"fmt"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Verifier decides when a vote tally constitutes a quorum. Classic Byzantine
// sizing: to tolerate f faulty agents the cluster needs 3f+1 participants
// and a quorum of 2f+1 matching votes.
type Verifier struct {
	f               int
	threshold       int
	minParticipants int
	audit           types.AuditLogger
}

// NewVerifier derives the quorum threshold from the tolerated fault count f.
func NewVerifier(f int, audit types.AuditLogger) *Verifier {
	return &Verifier{
		f:               f,
		threshold:       2*f + 1,
		minParticipants: 3*f + 1,
		audit:           audit,
	}
}

// NewFixedVerifier pins the quorum threshold directly. Used by the
// small-scale demo (Q=2: self plus one other agent).
func NewFixedVerifier(q int, audit types.AuditLogger) *Verifier {
	f := (q - 1) / 2
	return &Verifier{
		f:               f,
		threshold:       q,
		minParticipants: q,
		audit:           audit,
	}
}

// HasQuorum reports whether count distinct voters reach the threshold.
func (v *Verifier) HasQuorum(count int) bool {
	return count >= v.threshold
}

// Threshold returns the required vote count Q.
func (v *Verifier) Threshold() int { return v.threshold }

// ByzantineTolerance returns the tolerated fault count f.
func (v *Verifier) ByzantineTolerance() int { return v.f }

// MinParticipants returns the participant count the sizing assumes.
func (v *Verifier) MinParticipants() int { return v.minParticipants }

// ValidateQuorumMath checks the configured threshold against an expected
// participant count and rejects unsafe configurations.
func (v *Verifier) ValidateQuorumMath(participants int) error {
	if v.threshold < 1 {
		return fmt.Errorf("quorum threshold %d must be positive", v.threshold)
	}
	if v.threshold < v.f+1 {
		return fmt.Errorf("quorum %d cannot mask f=%d faults", v.threshold, v.f)
	}
	if participants > 0 && participants < v.minParticipants {
		if v.audit != nil {
			_ = v.audit.Warn("quorum_undersized_cluster", map[string]interface{}{
				"participants": participants,
				"required":     v.minParticipants,
				"f":            v.f,
			})
		}
		return fmt.Errorf("need %d participants for f=%d, got %d",
			v.minParticipants, v.f, participants)
	}
	return nil
}

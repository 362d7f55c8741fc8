package messages

import (
	"errors"
	"fmt"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Protocol-level rejections. None of these are faults: a rejected vote is
// discarded and the round proceeds on whatever votes do arrive.
var (
	// ErrStaleVote marks a vote for a round strictly older than the one
	// currently tracked.
	ErrStaleVote = errors.New("vote for a stale round")

	// ErrSelfVote marks a vote whose sender is the local agent. Own votes
	// are recorded at round creation, never via message receipt.
	ErrSelfVote = errors.New("vote from self")
)

// ValidateVote checks structural validity of a decoded vote.
func ValidateVote(v *Vote) error {
	if v == nil {
		return fmt.Errorf("nil vote")
	}
	switch v.Type {
	case types.MessagePrePrepare, types.MessagePrepare, types.MessageCommit:
	default:
		return fmt.Errorf("unknown vote type %d", v.Type)
	}
	if v.Sender == "" {
		return fmt.Errorf("vote missing sender")
	}
	if v.Originator == "" {
		return fmt.Errorf("vote missing originator")
	}
	if v.Sequence == 0 {
		return fmt.Errorf("vote sequence must be positive")
	}
	if v.Proposal == "" {
		return fmt.Errorf("vote missing proposal value")
	}
	return nil
}

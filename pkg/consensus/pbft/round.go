package pbft

import (
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Round is the state of one agreement attempt, identified by
// (originator, sequence). An agent holds at most one active round; a newer
// round supersedes it and discards its vote sets.
type Round struct {
	Originator types.AgentID
	Sequence   uint64
	View       uint64
	Proposal   string
	Phase      types.Phase
	StartedAt  time.Time

	prepareVotes map[types.AgentID]struct{}
	commitVotes  map[types.AgentID]struct{}
}

func newRound(originator types.AgentID, seq, view uint64, proposal string, now time.Time) *Round {
	return &Round{
		Originator:   originator,
		Sequence:     seq,
		View:         view,
		Proposal:     proposal,
		Phase:        types.PhasePrePrepare,
		StartedAt:    now,
		prepareVotes: make(map[types.AgentID]struct{}),
		commitVotes:  make(map[types.AgentID]struct{}),
	}
}

// Matches reports whether a vote for (originator, seq) belongs to this round.
func (r *Round) Matches(originator types.AgentID, seq uint64) bool {
	return r.Originator == originator && r.Sequence == seq
}

// AddPrepare records a prepare voter. Returns false when the voter was
// already counted (duplicate delivery, a no-op by design of the vote sets).
func (r *Round) AddPrepare(id types.AgentID) bool {
	if _, ok := r.prepareVotes[id]; ok {
		return false
	}
	r.prepareVotes[id] = struct{}{}
	return true
}

// AddCommit records a commit voter; duplicate additions are no-ops.
func (r *Round) AddCommit(id types.AgentID) bool {
	if _, ok := r.commitVotes[id]; ok {
		return false
	}
	r.commitVotes[id] = struct{}{}
	return true
}

// PrepareCount returns the number of distinct prepare voters.
func (r *Round) PrepareCount() int { return len(r.prepareVotes) }

// CommitCount returns the number of distinct commit voters.
func (r *Round) CommitCount() int { return len(r.commitVotes) }

// Package pbft implements the three-phase quorum state machine that decides
// right-of-way among the agents gathered at an intersection. One engine
// instance belongs to one agent and is driven strictly from that agent's
// event loop: there is no internal locking, the actor owns all state.
package pbft

import (
	"context"
	"fmt"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/messages"
	"github.com/vanetlab/crossing/pkg/consensus/types"
	"github.com/vanetlab/crossing/pkg/utils"
)

// VoteSender dispatches outbound votes, optionally after a jitter delay used
// to desynchronize replica broadcast storms. CancelPending drops sends that
// have not fired yet; the engine calls it when a round is superseded.
type VoteSender interface {
	SendVote(ctx context.Context, v *messages.Vote, delay time.Duration) error
	CancelPending()
}

// Decision is the committed outcome of a round.
type Decision struct {
	Originator  types.AgentID
	Sequence    uint64
	View        uint64
	Proposal    string
	Latency     time.Duration
	CommittedAt time.Time
}

// Callbacks receives engine state transitions. Implementations must be cheap;
// they run inline on the agent's event loop.
type Callbacks interface {
	OnPhaseChanged(phase types.Phase)
	OnCommitted(dec Decision)
}

// Config contains engine parameters.
type Config struct {
	// JitterMin/JitterMax bound the randomized delay applied to replica
	// vote broadcasts.
	JitterMin time.Duration
	JitterMax time.Duration

	// Dissent makes this engine vote a conflicting proposal direction.
	// Set for agents created MALICIOUS, and by tests injecting Byzantine
	// behavior.
	Dissent bool
}

// DefaultConfig mirrors the jitter window of the reference protocol.
func DefaultConfig() *Config {
	return &Config{
		JitterMin: 10 * time.Millisecond,
		JitterMax: 100 * time.Millisecond,
	}
}

// Engine is the per-agent consensus state machine.
type Engine struct {
	self   types.AgentID
	quorum *Verifier
	sender VoteSender
	config *Config
	logger types.Logger
	audit  types.AuditLogger

	callbacks Callbacks

	// ownSeq numbers proposals originated by this agent, monotonic.
	ownSeq uint64
	// view is the current primary epoch, bumped on view change.
	view uint64

	round *Round
}

// NewEngine creates a consensus engine for one agent.
func NewEngine(
	self types.AgentID,
	quorum *Verifier,
	sender VoteSender,
	logger types.Logger,
	audit types.AuditLogger,
	config *Config,
	callbacks Callbacks,
) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		self:      self,
		quorum:    quorum,
		sender:    sender,
		config:    config,
		logger:    logger,
		audit:     audit,
		callbacks: callbacks,
	}
}

// Phase returns the current phase, PhaseIdle when no round is active.
func (e *Engine) Phase() types.Phase {
	if e.round == nil {
		return types.PhaseIdle
	}
	return e.round.Phase
}

// View returns the current view number.
func (e *Engine) View() uint64 { return e.view }

// CurrentRound returns the active round, nil when idle.
func (e *Engine) CurrentRound() *Round { return e.round }

// BumpView advances the view epoch. Called by the view-change path.
func (e *Engine) BumpView() { e.view++ }

// StartRound originates a new agreement round. Called when this agent is
// cluster head and the behavior FSM signals decision eligibility. A no-op
// while a round is already in flight.
func (e *Engine) StartRound(ctx context.Context, now time.Time, pos, zoneCenter types.Vec2) error {
	if e.round != nil {
		return nil
	}

	e.ownSeq++
	proposal := types.DirectionFrom(pos, zoneCenter)
	e.round = newRound(e.self, e.ownSeq, e.view, proposal, now)
	e.round.AddPrepare(e.self)

	e.logger.InfoContext(ctx, "originating round",
		"seq", e.ownSeq,
		"view", e.view,
		"proposal", proposal,
	)

	// The originator broadcasts immediately; jitter only matters for the
	// replica storm that follows.
	if err := e.send(ctx, types.MessagePrePrepare, 0); err != nil {
		e.logger.WarnContext(ctx, "pre-prepare broadcast failed", "error", err)
	}
	e.setPhase(types.PhasePrePrepare)

	// Message-driven advance: own PREPARE goes out right behind the
	// pre-prepare.
	if err := e.send(ctx, types.MessagePrepare, e.jitter()); err != nil {
		e.logger.WarnContext(ctx, "prepare broadcast failed", "error", err)
	}
	e.setPhase(types.PhasePrepare)
	return nil
}

// HandleVote processes one inbound vote. Protocol rejections (stale round,
// self vote) are returned as sentinel errors for debug logging; none of them
// are faults.
func (e *Engine) HandleVote(ctx context.Context, now time.Time, v *messages.Vote) error {
	if v.Sender == e.self {
		return messages.ErrSelfVote
	}

	switch v.Type {
	case types.MessagePrePrepare:
		return e.onPrePrepare(ctx, now, v)
	case types.MessagePrepare:
		return e.onPrepare(ctx, v)
	case types.MessageCommit:
		return e.onCommit(ctx, now, v)
	default:
		return fmt.Errorf("unknown vote type %d", v.Type)
	}
}

// onPrePrepare adopts a new round when the fencing rule allows it: we are
// idle, or the vote carries a higher sequence, or a different originator
// than the tracked round. An exact re-delivery is a no-op, an older sequence
// is stale.
func (e *Engine) onPrePrepare(ctx context.Context, now time.Time, v *messages.Vote) error {
	if v.Originator == e.self {
		// Echo of our own origination, nothing to adopt.
		return nil
	}
	if e.round != nil {
		if e.round.Matches(v.Originator, v.Sequence) {
			return nil
		}
		if v.Originator == e.round.Originator && v.Sequence < e.round.Sequence {
			return messages.ErrStaleVote
		}
		// Supersede: discard in-flight state and any pending jittered sends.
		e.sender.CancelPending()
		e.logger.DebugContext(ctx, "round superseded",
			"old_origin", e.round.Originator, "old_seq", e.round.Sequence,
			"new_origin", v.Originator, "new_seq", v.Sequence,
		)
	}

	e.round = newRound(v.Originator, v.Sequence, v.View, v.Proposal, now)
	e.round.AddPrepare(e.self)
	e.view = v.View

	e.logger.InfoContext(ctx, "pre-prepare accepted",
		"origin", v.Originator,
		"seq", v.Sequence,
		"proposal", v.Proposal,
	)
	e.setPhase(types.PhasePrePrepare)

	if err := e.send(ctx, types.MessagePrepare, e.jitter()); err != nil {
		e.logger.WarnContext(ctx, "prepare broadcast failed", "error", err)
	}
	e.setPhase(types.PhasePrepare)
	return nil
}

func (e *Engine) onPrepare(ctx context.Context, v *messages.Vote) error {
	if e.round == nil || !e.round.Matches(v.Originator, v.Sequence) {
		return messages.ErrStaleVote
	}

	e.round.AddPrepare(v.Sender)
	e.logger.DebugContext(ctx, "prepare vote",
		"from", v.Sender,
		"tally", e.round.PrepareCount(),
		"quorum", e.quorum.Threshold(),
	)

	if e.round.Phase <= types.PhasePrepare && e.quorum.HasQuorum(e.round.PrepareCount()) {
		e.round.AddCommit(e.self)
		if err := e.send(ctx, types.MessageCommit, e.jitter()); err != nil {
			e.logger.WarnContext(ctx, "commit broadcast failed", "error", err)
		}
		e.setPhase(types.PhaseCommit)
	}
	return nil
}

func (e *Engine) onCommit(ctx context.Context, now time.Time, v *messages.Vote) error {
	if e.round == nil || !e.round.Matches(v.Originator, v.Sequence) {
		return messages.ErrStaleVote
	}
	// A commit that outruns our own prepare phase is dropped; quorum-or-
	// supersede is the only liveness mechanism, there is no buffering.
	if e.round.Phase < types.PhasePrepare {
		return nil
	}

	e.round.AddCommit(v.Sender)
	e.logger.DebugContext(ctx, "commit vote",
		"from", v.Sender,
		"tally", e.round.CommitCount(),
		"quorum", e.quorum.Threshold(),
	)

	if e.round.Phase < types.PhaseReply && e.quorum.HasQuorum(e.round.CommitCount()) {
		e.commit(ctx, now)
	}
	return nil
}

// commit finalizes the round: surface the decision, then reset to idle.
func (e *Engine) commit(ctx context.Context, now time.Time) {
	dec := Decision{
		Originator:  e.round.Originator,
		Sequence:    e.round.Sequence,
		View:        e.round.View,
		Proposal:    e.round.Proposal,
		Latency:     now.Sub(e.round.StartedAt),
		CommittedAt: now,
	}

	e.logger.InfoContext(ctx, "round committed",
		"origin", dec.Originator,
		"seq", dec.Sequence,
		"proposal", dec.Proposal,
		"latency", dec.Latency,
	)
	if e.audit != nil {
		_ = e.audit.Info("round_committed", map[string]interface{}{
			"originator": string(dec.Originator),
			"sequence":   dec.Sequence,
			"view":       dec.View,
			"proposal":   dec.Proposal,
			"latency_ms": float64(dec.Latency.Microseconds()) / 1000.0,
		})
	}

	e.setPhase(types.PhaseReply)
	if e.callbacks != nil {
		e.callbacks.OnCommitted(dec)
	}

	e.round = nil
	e.sender.CancelPending()
	e.notifyPhase(types.PhaseIdle)
}

// ForceIdle discards the active round, e.g. on view change. Safe to call
// while idle.
func (e *Engine) ForceIdle(ctx context.Context, reason string) {
	if e.round == nil {
		return
	}
	e.logger.InfoContext(ctx, "round reset",
		"origin", e.round.Originator,
		"seq", e.round.Sequence,
		"reason", reason,
	)
	e.round = nil
	e.sender.CancelPending()
	e.notifyPhase(types.PhaseIdle)
}

func (e *Engine) setPhase(p types.Phase) {
	if e.round != nil {
		e.round.Phase = p
	}
	e.notifyPhase(p)
}

func (e *Engine) notifyPhase(p types.Phase) {
	if e.callbacks != nil {
		e.callbacks.OnPhaseChanged(p)
	}
}

// send broadcasts a vote for the active round. A dissenting engine swaps the
// proposal for a conflicting direction; receivers still count the vote in
// the same round tally (value-agnostic counting, preserved deliberately).
func (e *Engine) send(ctx context.Context, t types.MessageType, delay time.Duration) error {
	// The round can complete while an earlier send is still being delivered
	// (synchronous transports); nothing left to say then.
	if e.round == nil {
		return nil
	}
	proposal := e.round.Proposal
	if e.config.Dissent && t != types.MessagePrePrepare {
		proposal = types.DissentingDirection(proposal)
	}
	v := &messages.Vote{
		Type:       t,
		Sender:     e.self,
		Originator: e.round.Originator,
		Sequence:   e.round.Sequence,
		View:       e.round.View,
		Proposal:   proposal,
		Timestamp:  time.Now(),
	}
	return e.sender.SendVote(ctx, v, delay)
}

func (e *Engine) jitter() time.Duration {
	return utils.UniformDelay(e.config.JitterMin, e.config.JitterMax)
}

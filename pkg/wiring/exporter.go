package wiring

import (
	"context"
	"sync"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// LogExporter writes state changes to the structured log. The simulation's
// stand-in for coloring vehicles in a viewer.
type LogExporter struct {
	logger types.Logger
}

// NewLogExporter creates a logging state exporter.
func NewLogExporter(logger types.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) OnPhaseChanged(id types.AgentID, phase types.Phase) {
	e.logger.DebugContext(context.Background(), "phase changed",
		"agent_id", string(id),
		"phase", phase.String(),
	)
}

func (e *LogExporter) OnRoleChanged(id types.AgentID, role types.Role) {
	e.logger.InfoContext(context.Background(), "role changed",
		"agent_id", string(id),
		"role", role.String(),
	)
}

func (e *LogExporter) OnDecision(id types.AgentID, ev types.RoundEvent) {
	e.logger.InfoContext(context.Background(), "decision recorded",
		"agent_id", string(id),
		"originator", string(ev.Originator),
		"sequence", ev.Sequence,
		"proposal", ev.Proposal,
		"latency_ms", ev.DecisionLatencyMs,
	)
}

// StateBoard keeps the latest exported state per agent so an external reader
// (the simulation summary, a dashboard poller) can inspect it without
// touching agent loops.
type StateBoard struct {
	mu        sync.RWMutex
	phases    map[types.AgentID]types.Phase
	roles     map[types.AgentID]types.Role
	decisions []types.RoundEvent
}

// NewStateBoard creates an empty board.
func NewStateBoard() *StateBoard {
	return &StateBoard{
		phases: make(map[types.AgentID]types.Phase),
		roles:  make(map[types.AgentID]types.Role),
	}
}

func (b *StateBoard) OnPhaseChanged(id types.AgentID, phase types.Phase) {
	b.mu.Lock()
	b.phases[id] = phase
	b.mu.Unlock()
}

func (b *StateBoard) OnRoleChanged(id types.AgentID, role types.Role) {
	b.mu.Lock()
	b.roles[id] = role
	b.mu.Unlock()
}

func (b *StateBoard) OnDecision(id types.AgentID, ev types.RoundEvent) {
	b.mu.Lock()
	b.decisions = append(b.decisions, ev)
	b.mu.Unlock()
}

// Phase returns the latest exported phase for an agent.
func (b *StateBoard) Phase(id types.AgentID) types.Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.phases[id]
}

// Role returns the latest exported role for an agent.
func (b *StateBoard) Role(id types.AgentID) types.Role {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.roles[id]
}

// Decisions returns a copy of all recorded decision events.
func (b *StateBoard) Decisions() []types.RoundEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]types.RoundEvent(nil), b.decisions...)
}

// MultiExporter fans notifications out to several exporters.
type MultiExporter []types.StateExporter

func (m MultiExporter) OnPhaseChanged(id types.AgentID, phase types.Phase) {
	for _, e := range m {
		e.OnPhaseChanged(id, phase)
	}
}

func (m MultiExporter) OnRoleChanged(id types.AgentID, role types.Role) {
	for _, e := range m {
		e.OnRoleChanged(id, role)
	}
}

func (m MultiExporter) OnDecision(id types.AgentID, ev types.RoundEvent) {
	for _, e := range m {
		e.OnDecision(id, ev)
	}
}

// Package agent runs one vehicular consensus participant: a single-goroutine
// event loop that owns the neighbor table, link estimator, role election,
// view-change monitor, behavior FSM and consensus engine. Collaborators hand
// work to the loop through the mailbox; nothing inside the loop is locked.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanetlab/crossing/pkg/consensus/leader"
	"github.com/vanetlab/crossing/pkg/consensus/messages"
	"github.com/vanetlab/crossing/pkg/consensus/neighbor"
	"github.com/vanetlab/crossing/pkg/consensus/pbft"
	"github.com/vanetlab/crossing/pkg/consensus/topology"
	"github.com/vanetlab/crossing/pkg/consensus/types"
	"github.com/vanetlab/crossing/pkg/wiring"
)

// Config holds the agent loop parameters.
type Config struct {
	DecisionInterval time.Duration
	LinkCalcInterval time.Duration
	NeighborTimeout  time.Duration

	CommunicationRadius float64
	Zone                ZoneGeometry

	// ThroughputGainPct is the configured throughput-gain placeholder
	// attached to every committed-round report.
	ThroughputGainPct float64
}

// DefaultConfig returns demo-calibrated loop parameters.
func DefaultConfig(zone ZoneGeometry) *Config {
	return &Config{
		DecisionInterval:    time.Second,
		LinkCalcInterval:    time.Second,
		NeighborTimeout:     5 * time.Second,
		CommunicationRadius: 300,
		Zone:                zone,
	}
}

// Deps bundles the injected collaborators.
type Deps struct {
	Vehicle   *Vehicle
	Transport types.Transport
	Telemetry types.TelemetryPublisher
	Exporter  types.StateExporter
	Metrics   *wiring.Metrics
	Logger    types.Logger
	Audit     types.AuditLogger

	Quorum *pbft.Verifier
	Engine *pbft.Config
}

// Agent is one consensus participant.
type Agent struct {
	id        types.AgentID
	integrity types.Integrity
	config    *Config

	vehicle   *Vehicle
	table     *neighbor.Table
	estimator *topology.Estimator
	election  *leader.Election
	monitor   *leader.Monitor
	engine    *pbft.Engine
	codec     *messages.Codec
	sender    *jitterSender

	transport types.Transport
	telemetry types.TelemetryPublisher
	exporter  types.StateExporter
	metrics   *wiring.Metrics
	logger    types.Logger
	audit     types.AuditLogger

	role    types.Role
	primary types.AgentID

	mailbox chan func(ctx context.Context)
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// New assembles an agent. Integrity is fixed at construction; a malicious
// agent dissents in its votes and never self-promotes.
func New(id types.AgentID, integrity types.Integrity, config *Config, deps Deps) (*Agent, error) {
	if config == nil {
		config = DefaultConfig(deps.Vehicle.config.Zone)
	}

	codec, err := messages.NewCodec(nil)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		id:        id,
		integrity: integrity,
		config:    config,
		vehicle:   deps.Vehicle,
		table:     neighbor.NewTable(),
		estimator: topology.NewEstimator(0),
		transport: deps.Transport,
		telemetry: deps.Telemetry,
		exporter:  deps.Exporter,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("agent_id", string(id)),
		audit:     deps.Audit,
		role:      types.RoleReplica,
		codec:     codec,
		mailbox:   make(chan func(ctx context.Context), 256),
		done:      make(chan struct{}),
	}

	a.election = leader.NewElection(id, nil, a.logger)
	a.monitor = leader.NewMonitor(id, config.Zone.Radius, a.logger, a.audit, a)
	a.sender = newJitterSender(a.transport, a.codec, a.metrics, a.logger)

	engineCfg := deps.Engine
	if engineCfg == nil {
		engineCfg = pbft.DefaultConfig()
	}
	engineCfg.Dissent = integrity == types.IntegrityMalicious
	a.engine = pbft.NewEngine(id, deps.Quorum, a.sender, a.logger, a.audit, engineCfg, a)

	if engineCfg.Dissent && a.audit != nil {
		_ = a.audit.Security("dissent_injected", map[string]interface{}{
			"agent_id": string(id),
		})
	}
	return a, nil
}

// ID returns the agent identity.
func (a *Agent) ID() types.AgentID { return a.id }

// Metrics returns the agent's counter sink. Safe from any goroutine.
func (a *Agent) Metrics() *wiring.Metrics { return a.metrics }

// Start launches the event loop and subscribes to the transport.
func (a *Agent) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	a.transport.Subscribe(func(_ context.Context, data []byte) {
		frame := data
		a.enqueue(func(ctx context.Context) { a.onFrame(ctx, frame) })
	})

	go a.run(ctx)
}

// Stop shuts the loop down and waits for it to drain.
func (a *Agent) Stop() {
	a.once.Do(func() {
		if a.cancel == nil {
			close(a.done)
			return
		}
		a.cancel()
		<-a.done
		a.sender.CancelPending()
	})
}

// UpdateSelf feeds a kinematics sample for this agent's own vehicle.
func (a *Agent) UpdateSelf(pos, vel types.Vec2) {
	a.enqueue(func(ctx context.Context) {
		a.vehicle.UpdateKinematics(pos, vel)
	})
}

// Announce feeds a neighbor observation (identity, position, velocity), the
// moral equivalent of receiving that vehicle's safety beacon.
func (a *Agent) Announce(id types.AgentID, pos, vel types.Vec2) {
	a.enqueue(func(ctx context.Context) {
		a.table.Upsert(id, pos, vel, time.Now())
	})
}

func (a *Agent) enqueue(fn func(ctx context.Context)) {
	select {
	case a.mailbox <- fn:
	case <-a.done:
	}
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	decision := time.NewTicker(a.config.DecisionInterval)
	defer decision.Stop()
	link := time.NewTicker(a.config.LinkCalcInterval)
	defer link.Stop()

	a.logger.InfoContext(ctx, "agent loop started",
		"decision_interval", a.config.DecisionInterval,
		"link_interval", a.config.LinkCalcInterval,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.mailbox:
			fn(ctx)
		case <-link.C:
			a.onLinkTick(ctx, time.Now())
		case <-decision.C:
			a.onDecisionTick(ctx, time.Now())
		}
	}
}

// onLinkTick refreshes the neighbor table and link stability estimate.
func (a *Agent) onLinkTick(ctx context.Context, now time.Time) {
	if purged := a.table.Purge(now, a.config.NeighborTimeout); purged > 0 {
		a.logger.DebugContext(ctx, "stale neighbors purged", "count", purged)
	}

	records := a.table.Snapshot(a.vehicle.Position(), a.config.CommunicationRadius)
	a.estimator.UpdateScores(records, a.vehicle.Position(), a.vehicle.Velocity(),
		a.config.CommunicationRadius, now)

	a.metrics.RecordStabilityScore(a.estimator.TopologyStability())
	a.metrics.UpdateNeighborCount(len(records))
}

// onDecisionTick runs the behavior FSM, the view-change check, the role
// election and, when this agent is an eligible cluster head, round origination.
func (a *Agent) onDecisionTick(ctx context.Context, now time.Time) {
	neighbors := a.table.Snapshot(a.vehicle.Position(), a.config.CommunicationRadius)
	a.vehicle.Tick(ctx, now, neighbors)

	a.primary = a.monitor.Tick(ctx, a.primary, a.vehicle)

	role, primary := a.election.Evaluate(ctx,
		a.estimator.TopologyStability(), a.integrity, a.primary)
	a.primary = primary
	if role != a.role {
		a.role = role
		a.logger.InfoContext(ctx, "role changed", "role", role.String())
		if a.exporter != nil {
			a.exporter.OnRoleChanged(a.id, role)
		}
	}

	if a.role == types.RoleClusterHead && a.primary == a.id &&
		a.engine.Phase() == types.PhaseIdle && a.vehicle.EligibleToPropose() {
		if err := a.engine.StartRound(ctx, now, a.vehicle.Position(), a.config.Zone.Center); err != nil {
			a.logger.WarnContext(ctx, "round origination failed", "error", err)
			return
		}
		a.metrics.IncrementRoundsOriginated()
	}
}

// onFrame decodes and dispatches one inbound transport frame.
func (a *Agent) onFrame(ctx context.Context, data []byte) {
	a.metrics.IncrementVotesReceived()

	v, err := a.codec.Decode(data)
	if err != nil {
		a.metrics.IncrementDecodeFailures()
		a.logger.DebugContext(ctx, "undecodable frame dropped",
			"size", len(data),
			"error", err,
		)
		return
	}
	if a.codec.SeenBefore(v) {
		a.metrics.IncrementDuplicateVotes()
		return
	}

	before := a.engine.CurrentRound()
	err = a.engine.HandleVote(ctx, time.Now(), v)
	after := a.engine.CurrentRound()

	if before != after && after != nil && v.Type == types.MessagePrePrepare {
		a.metrics.IncrementRoundsAdopted()
		if before != nil {
			a.metrics.IncrementRoundsSuperseded()
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, messages.ErrStaleVote):
		a.metrics.IncrementStaleVotesDiscarded()
		a.logger.DebugContext(ctx, "stale vote discarded",
			"from", v.Sender,
			"round", v.RoundKey(),
		)
	case errors.Is(err, messages.ErrSelfVote):
		// Loopback echo, nothing to do.
	default:
		a.logger.WarnContext(ctx, "vote rejected",
			"from", v.Sender,
			"error", err,
		)
	}
}

// OnPhaseChanged implements pbft.Callbacks.
func (a *Agent) OnPhaseChanged(phase types.Phase) {
	if a.exporter != nil {
		a.exporter.OnPhaseChanged(a.id, phase)
	}
}

// OnCommitted implements pbft.Callbacks: record metrics, grant passage when
// the decision covers this vehicle, and ship the round record.
func (a *Agent) OnCommitted(dec pbft.Decision) {
	a.metrics.IncrementRoundsCommitted()
	a.metrics.RecordDecisionLatency(dec.Latency)
	a.metrics.RecordThroughputGain(a.config.ThroughputGainPct)

	ctx := context.Background()
	now := time.Now()
	myDirection := types.DirectionFrom(a.vehicle.Position(), a.config.Zone.Center)
	if dec.Originator == a.id || dec.Proposal == myDirection {
		a.vehicle.GrantPassage(ctx, now)
	}

	ev := types.RoundEvent{
		EventID:           uuid.NewString(),
		AgentID:           a.id,
		Originator:        dec.Originator,
		Sequence:          dec.Sequence,
		View:              dec.View,
		Phase:             types.PhaseReply.String(),
		Proposal:          dec.Proposal,
		DecisionLatencyMs: float64(dec.Latency.Microseconds()) / 1000.0,
		StabilityScore:    a.estimator.TopologyStability(),
		ThroughputGainPct: a.config.ThroughputGainPct,
		Timestamp:         dec.CommittedAt,
	}
	if a.exporter != nil {
		a.exporter.OnDecision(a.id, ev)
	}
	if a.telemetry != nil {
		// Kafka sends block; keep the loop responsive.
		go func() {
			if err := a.telemetry.Publish(context.Background(), ev); err != nil {
				a.metrics.IncrementTelemetryFailures()
				return
			}
			a.metrics.IncrementTelemetryPublished()
		}()
	}
}

// OnViewChange implements leader.ViewChangeCallbacks: the departed primary
// abandons its round and opens a new view.
func (a *Agent) OnViewChange(ctx context.Context, departed types.AgentID) {
	a.engine.BumpView()
	a.engine.ForceIdle(ctx, "view change")
	a.metrics.IncrementViewChanges()

	if a.role == types.RoleClusterHead {
		a.role = types.RoleReplica
		if a.exporter != nil {
			a.exporter.OnRoleChanged(a.id, a.role)
		}
	}
}

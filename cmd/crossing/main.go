// Command crossing runs a multi-agent intersection consensus simulation: N
// vehicles approach a shared intersection on an in-process transport, elect a
// cluster head, agree on right-of-way and cross. With TRANSPORT_MODE=gossip
// each agent also joins a libp2p mesh; with KAFKA_ENABLED=true committed
// rounds are exported to Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vanetlab/crossing/pkg/agent"
	"github.com/vanetlab/crossing/pkg/config"
	"github.com/vanetlab/crossing/pkg/consensus/pbft"
	"github.com/vanetlab/crossing/pkg/consensus/types"
	"github.com/vanetlab/crossing/pkg/p2p"
	"github.com/vanetlab/crossing/pkg/telemetry"
	"github.com/vanetlab/crossing/pkg/utils"
	"github.com/vanetlab/crossing/pkg/wiring"
)

type simVehicle struct {
	agent   *agent.Agent
	vehicle *agent.Vehicle
	metrics *wiring.Metrics

	pos    types.Vec2
	vel    types.Vec2
	cruise types.Vec2
	target float64
}

// SetTargetSpeed implements types.VehicleControl: the kinematic stepper
// rescales velocity toward the commanded speed.
func (s *simVehicle) SetTargetSpeed(speed float64) error {
	s.target = speed
	return nil
}

func (s *simVehicle) step(dt float64) {
	speed := s.cruise.Len()
	if speed == 0 {
		return
	}
	scale := s.target / speed
	s.vel = types.Vec2{X: s.cruise.X * scale, Y: s.cruise.Y * scale}
	s.pos = types.Vec2{X: s.pos.X + s.vel.X*dt, Y: s.pos.Y + s.vel.Y*dt}
}

func main() {
	var (
		numAgents     = flag.Int("agents", 4, "number of vehicle agents")
		maliciousFrac = flag.Float64("malicious", 0, "fraction of agents created malicious")
		duration      = flag.Duration("duration", 30*time.Second, "simulation duration")
		tick          = flag.Duration("tick", 100*time.Millisecond, "kinematics step interval")
		seed          = flag.Int64("seed", 0, "rng seed, 0 means time-based")
	)
	flag.Parse()

	if err := run(*numAgents, *maliciousFrac, *duration, *tick, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "crossing:", err)
		os.Exit(1)
	}
}

func run(numAgents int, maliciousFrac float64, duration, tick time.Duration, seed int64) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(nil)
	if err != nil {
		return err
	}
	defer logger.Shutdown() //nolint:errcheck

	audit, err := utils.NewAuditLogger(nil)
	if err != nil {
		return err
	}
	defer audit.Close() //nolint:errcheck

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = utils.ContextWithComponent(ctx, "harness")

	zone := agent.ZoneGeometry{
		Center:          types.Vec2{X: cfg.Zone.CenterX, Y: cfg.Zone.CenterY},
		Radius:          cfg.Zone.Radius,
		StopLineOffset:  cfg.Zone.StopLineOffset,
		TriggerDistance: cfg.Zone.TriggerDistance,
	}

	var quorum *pbft.Verifier
	if cfg.Consensus.ByzantineFaults > 0 {
		quorum = pbft.NewVerifier(cfg.Consensus.ByzantineFaults, audit)
	} else {
		quorum = pbft.NewFixedVerifier(cfg.Consensus.QuorumSize, audit)
	}
	if err := quorum.ValidateQuorumMath(numAgents); err != nil {
		logger.WarnContext(ctx, "quorum undersized for agent count", "error", err)
	}

	var publisher types.TelemetryPublisher = telemetry.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := telemetry.NewProducer(ctx, telemetry.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			SASLUser:     cfg.Kafka.SASLUser,
			SASLPassword: cfg.Kafka.SASLPassword,
		}, logger)
		if err != nil {
			return err
		}
		publisher = producer
		defer publisher.Close() //nolint:errcheck
	}

	board := wiring.NewStateBoard()
	exporter := wiring.MultiExporter{board, wiring.NewLogExporter(logger)}

	bus := p2p.NewBus()
	defer bus.Close() //nolint:errcheck

	// Spawn the fleet on the four approaches, staggered back from the stop
	// line so arrival order is deterministic per seed.
	approaches := []struct {
		dir types.Vec2
	}{
		{types.Vec2{X: 0, Y: -1}}, // from north, heading south
		{types.Vec2{X: -1, Y: 0}}, // from east, heading west
		{types.Vec2{X: 0, Y: 1}},  // from south, heading north
		{types.Vec2{X: 1, Y: 0}},  // from west, heading east
	}

	sims := make([]*simVehicle, 0, numAgents)
	for i := 0; i < numAgents; i++ {
		appr := approaches[i%len(approaches)]
		back := 60.0 + float64(i/len(approaches))*25 + rng.Float64()*5
		pos := types.Vec2{
			X: zone.Center.X - appr.dir.X*back,
			Y: zone.Center.Y - appr.dir.Y*back,
		}
		cruiseSpeed := 13.9
		cruise := types.Vec2{X: appr.dir.X * cruiseSpeed, Y: appr.dir.Y * cruiseSpeed}

		integrity := types.IntegrityHonest
		if rng.Float64() < maliciousFrac {
			integrity = types.IntegrityMalicious
		}

		id := agent.PseudoID(pos)
		sim := &simVehicle{pos: pos, vel: cruise, cruise: cruise, target: cruiseSpeed}
		vehicle := agent.NewVehicle(id, agent.DefaultVehicleConfig(zone), sim, logger)

		var transport types.Transport
		switch cfg.Transport.Mode {
		case "gossip":
			router, err := p2p.NewRouter(ctx, &p2p.RouterConfig{
				ListenAddr:     cfg.Transport.ListenAddr,
				Topic:          cfg.Transport.Topic,
				Rendezvous:     "crossing/v1",
				MaxMessageSize: 8 << 10,
			}, logger, audit)
			if err != nil {
				return err
			}
			defer router.Close() //nolint:errcheck
			transport = router
		default:
			port, err := bus.Open(string(id))
			if err != nil {
				return err
			}
			transport = port
		}

		metrics := &wiring.Metrics{}
		ag, err := agent.New(id, integrity, &agent.Config{
			DecisionInterval:    cfg.Consensus.DecisionInterval,
			LinkCalcInterval:    cfg.Topology.LinkCalcInterval,
			NeighborTimeout:     cfg.Topology.NeighborTimeout,
			CommunicationRadius: cfg.Topology.CommunicationRadius,
			Zone:                zone,
			ThroughputGainPct:   cfg.Consensus.ThroughputGainPct,
		}, agent.Deps{
			Vehicle:   vehicle,
			Transport: transport,
			Telemetry: publisher,
			Exporter:  exporter,
			Metrics:   metrics,
			Logger:    logger,
			Audit:     audit,
			Quorum:    quorum,
			Engine: &pbft.Config{
				JitterMin: cfg.Consensus.JitterMin,
				JitterMax: cfg.Consensus.JitterMax,
			},
		})
		if err != nil {
			return err
		}

		sim.agent = ag
		sim.vehicle = vehicle
		sim.metrics = metrics
		sims = append(sims, sim)

		logger.InfoContext(utils.ContextWithAgentID(ctx, string(id)), "agent spawned",
			"integrity", integrity.String(),
			"position", pos.String(),
		)
	}

	// Agents stop before the summary so vehicle state is quiescent when read.
	shutdown := func() {
		for _, s := range sims {
			s.agent.Stop()
		}
		printSummary(sims, board)
	}

	// Staggered starts keep the fleet's tickers from firing in lockstep.
	for _, s := range sims {
		s.agent.Start(ctx)
		if err := utils.SleepWithContext(ctx, utils.Jitter(tick/4, 0.5)); err != nil {
			shutdown()
			return nil
		}
	}

	// Kinematics stepper: advances positions and distributes the resulting
	// samples as self-updates and neighbor announcements.
	stepper := time.NewTicker(tick)
	defer stepper.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	dt := tick.Seconds()
	for {
		select {
		case <-ctx.Done():
			shutdown()
			return nil
		case <-deadline.C:
			shutdown()
			return nil
		case <-stepper.C:
			for _, s := range sims {
				s.step(dt)
				s.agent.UpdateSelf(s.pos, s.vel)
			}
			for _, s := range sims {
				for _, other := range sims {
					if other == s {
						continue
					}
					s.agent.Announce(other.agent.ID(), other.pos, other.vel)
				}
			}
		}
	}
}

func printSummary(sims []*simVehicle, board *wiring.StateBoard) {
	fmt.Println("=== crossing summary ===")
	var committed, originated, stale uint64
	for _, s := range sims {
		snap := s.metrics.GetSnapshot()
		committed += snap.RoundsCommitted
		originated += snap.RoundsOriginated
		stale += snap.StaleVotesDiscarded
		fmt.Printf("%-14s role=%-12s state=%-11s committed=%d originated=%d avg_latency=%s stability=%.1f gain=%.1f%% waited=%s\n",
			s.agent.ID(),
			board.Role(s.agent.ID()).String(),
			s.vehicle.State().String(),
			snap.RoundsCommitted,
			snap.RoundsOriginated,
			s.metrics.AverageDecisionLatency(),
			s.metrics.StabilityScore(),
			s.metrics.ThroughputGain(),
			s.vehicle.TotalWaiting(),
		)
	}
	fmt.Printf("total: committed=%d originated=%d stale_discarded=%d decisions_recorded=%d\n",
		committed, originated, stale, len(board.Decisions()))
}

package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/neighbor"
	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// VehicleState is the behavior FSM state.
type VehicleState int

const (
	StateApproaching VehicleState = iota
	StateWaiting
	StatePassing
	StateExited
)

func (s VehicleState) String() string {
	switch s {
	case StateApproaching:
		return "APPROACHING"
	case StateWaiting:
		return "WAITING"
	case StatePassing:
		return "PASSING"
	case StateExited:
		return "EXITED"
	default:
		return fmt.Sprintf("VehicleState(%d)", int(s))
	}
}

// Action is a speed command the FSM issues through VehicleControl.
type Action int

const (
	ActionKeepSpeed Action = iota
	ActionSlowDown
	ActionStop
	ActionAccelerate
)

func (a Action) String() string {
	switch a {
	case ActionKeepSpeed:
		return "KEEP_SPEED"
	case ActionSlowDown:
		return "SLOW_DOWN"
	case ActionStop:
		return "STOP"
	case ActionAccelerate:
		return "ACCELERATE"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Observation is the per-tick sensor summary the FSM decides on.
type Observation struct {
	Speed               float64
	DistToStopLine      float64
	HasPriorityNeighbor bool
	SafeToGo            bool
}

// ZoneGeometry describes the intersection decision zone.
type ZoneGeometry struct {
	Center types.Vec2
	Radius float64

	// StopLineOffset places the stop line this far before the zone center
	// along the approach path. It doubles as the occupancy radius for the
	// safety check.
	StopLineOffset float64

	// TriggerDistance arms proposing once the stop line is this close.
	TriggerDistance float64
}

// VehicleConfig holds behavior FSM parameters.
type VehicleConfig struct {
	Zone        ZoneGeometry
	CruiseSpeed float64

	// StopThreshold is how close to the stop line counts as arrived.
	StopThreshold float64
}

// DefaultVehicleConfig returns demo-calibrated behavior parameters.
func DefaultVehicleConfig(zone ZoneGeometry) *VehicleConfig {
	return &VehicleConfig{
		Zone:          zone,
		CruiseSpeed:   13.9,
		StopThreshold: 1.0,
	}
}

// Vehicle is the behavior state machine of the vehicle this agent rides on.
// APPROACHING slows into the stop line, WAITING holds for a committed
// decision or a clear intersection, PASSING crosses, EXITED is terminal.
// All methods run on the agent loop.
type Vehicle struct {
	id      types.AgentID
	config  *VehicleConfig
	control types.VehicleControl
	logger  types.Logger

	pos     types.Vec2
	vel     types.Vec2
	heading types.Vec2

	state   VehicleState
	granted bool

	// Recorded scalars for the run summary.
	transitions  uint64
	waitingSince time.Time
	totalWaiting time.Duration
}

var _ types.VehicleObserver = (*Vehicle)(nil)

// NewVehicle creates the behavior FSM for one agent.
func NewVehicle(id types.AgentID, config *VehicleConfig, control types.VehicleControl, logger types.Logger) *Vehicle {
	return &Vehicle{
		id:      id,
		config:  config,
		control: control,
		logger:  logger,
		state:   StateApproaching,
	}
}

// PseudoID derives a stable agent identity from the spawn position, for
// vehicles that carry no provisioned identity.
func PseudoID(pos types.Vec2) types.AgentID {
	h := fnv.New32a()
	fmt.Fprintf(h, "%.2f:%.2f", pos.X, pos.Y)
	return types.AgentID(fmt.Sprintf("veh-%08x", h.Sum32()))
}

// UpdateKinematics records the latest position and velocity sample. Heading
// keeps the last non-zero direction so a stopped vehicle still knows which
// way it is facing.
func (v *Vehicle) UpdateKinematics(pos, vel types.Vec2) {
	v.pos = pos
	v.vel = vel
	if vel.LenSq() > 0 {
		inv := 1.0 / vel.Len()
		v.heading = types.Vec2{X: vel.X * inv, Y: vel.Y * inv}
	}
}

// Position returns the last sampled position.
func (v *Vehicle) Position() types.Vec2 { return v.pos }

// Velocity returns the last sampled velocity.
func (v *Vehicle) Velocity() types.Vec2 { return v.vel }

// Speed returns the last sampled speed.
func (v *Vehicle) Speed() float64 { return v.vel.Len() }

// State returns the current FSM state.
func (v *Vehicle) State() VehicleState { return v.state }

// Transitions returns the number of FSM transitions so far.
func (v *Vehicle) Transitions() uint64 { return v.transitions }

// TotalWaiting returns the cumulative time spent in WAITING.
func (v *Vehicle) TotalWaiting() time.Duration { return v.totalWaiting }

// SignedDistanceToZone projects the zone center onto the travel direction:
// positive while approaching, negative past the center, below -radius once
// fully exited.
func (v *Vehicle) SignedDistanceToZone() float64 {
	to := v.config.Zone.Center.Sub(v.pos)
	if v.heading.LenSq() == 0 {
		return to.Len()
	}
	return to.Dot(v.heading)
}

// DistToStopLine is the along-path distance to the stop line.
func (v *Vehicle) DistToStopLine() float64 {
	return v.SignedDistanceToZone() - v.config.Zone.StopLineOffset
}

// IsInWaitingState reports whether the vehicle holds at the stop line.
func (v *Vehicle) IsInWaitingState() bool { return v.state == StateWaiting }

// EligibleToPropose reports whether this vehicle may originate a round: it
// is closing on the stop line within the trigger distance and has not yet
// been granted passage.
func (v *Vehicle) EligibleToPropose() bool {
	if v.granted || v.state == StatePassing || v.state == StateExited {
		return false
	}
	d := v.DistToStopLine()
	return d >= 0 && d <= v.config.Zone.TriggerDistance
}

// Observe builds the per-tick sensor summary from the neighbor snapshot.
func (v *Vehicle) Observe(neighbors []neighbor.Record) Observation {
	obs := Observation{
		Speed:          v.Speed(),
		DistToStopLine: v.DistToStopLine(),
		SafeToGo:       true,
	}

	myDist := v.pos.Dist(v.config.Zone.Center)
	for _, n := range neighbors {
		// Occupancy: anyone inside the stop-line box blocks entry.
		if n.Position.Dist(v.config.Zone.Center) < v.config.Zone.StopLineOffset {
			obs.SafeToGo = false
		}
		// Distance-based priority: a strictly closer vehicle goes first.
		if n.Position.Dist(v.config.Zone.Center) < myDist {
			obs.HasPriorityNeighbor = true
		}
	}
	return obs
}

// Tick advances the FSM one step and applies the resulting speed command.
func (v *Vehicle) Tick(ctx context.Context, now time.Time, neighbors []neighbor.Record) {
	obs := v.Observe(neighbors)

	switch v.state {
	case StateApproaching:
		if obs.DistToStopLine <= v.config.StopThreshold {
			if v.granted || (obs.SafeToGo && !obs.HasPriorityNeighbor) {
				v.transition(ctx, now, StatePassing, ActionKeepSpeed)
			} else {
				v.transition(ctx, now, StateWaiting, ActionStop)
			}
		} else if obs.DistToStopLine <= v.config.Zone.TriggerDistance {
			v.apply(ctx, ActionSlowDown)
		} else {
			v.apply(ctx, ActionKeepSpeed)
		}

	case StateWaiting:
		if v.granted || (obs.SafeToGo && !obs.HasPriorityNeighbor) {
			v.transition(ctx, now, StatePassing, ActionAccelerate)
		}

	case StatePassing:
		if v.SignedDistanceToZone() < -v.config.Zone.Radius {
			v.transition(ctx, now, StateExited, ActionKeepSpeed)
		}

	case StateExited:
	}
}

// GrantPassage marks the vehicle cleared to cross. A waiting vehicle pulls
// away on the next tick; an approaching one keeps rolling through.
func (v *Vehicle) GrantPassage(ctx context.Context, now time.Time) {
	if v.granted || v.state == StateExited {
		return
	}
	v.granted = true
	v.logger.InfoContext(ctx, "passage granted", "state", v.state.String())
	if v.state == StateWaiting {
		v.transition(ctx, now, StatePassing, ActionAccelerate)
	}
}

func (v *Vehicle) transition(ctx context.Context, now time.Time, next VehicleState, act Action) {
	if next == v.state {
		return
	}

	if v.state == StateWaiting && !v.waitingSince.IsZero() {
		v.totalWaiting += now.Sub(v.waitingSince)
		v.waitingSince = time.Time{}
	}
	if next == StateWaiting {
		v.waitingSince = now
	}

	v.logger.InfoContext(ctx, "vehicle state transition",
		"from", v.state.String(),
		"to", next.String(),
		"action", act.String(),
	)
	v.state = next
	v.transitions++
	v.apply(ctx, act)
}

func (v *Vehicle) apply(ctx context.Context, act Action) {
	if v.control == nil {
		return
	}

	var target float64
	switch act {
	case ActionStop:
		target = 0
	case ActionSlowDown:
		target = v.config.CruiseSpeed / 3
	case ActionAccelerate, ActionKeepSpeed:
		target = v.config.CruiseSpeed
	}

	if err := v.control.SetTargetSpeed(target); err != nil {
		v.logger.WarnContext(ctx, "speed command failed",
			"action", act.String(),
			"error", err,
		)
	}
}

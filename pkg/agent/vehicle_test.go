package agent

import (
	"context"
	"testing"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/neighbor"
	"github.com/vanetlab/crossing/pkg/consensus/types"
)

type nopLogger struct{}

func (nopLogger) DebugContext(context.Context, string, ...interface{}) {}
func (nopLogger) InfoContext(context.Context, string, ...interface{})  {}
func (nopLogger) WarnContext(context.Context, string, ...interface{})  {}
func (nopLogger) ErrorContext(context.Context, string, ...interface{}) {}
func (l nopLogger) With(...interface{}) types.Logger                   { return l }

type speedRecorder struct {
	speeds []float64
}

func (r *speedRecorder) SetTargetSpeed(speed float64) error {
	r.speeds = append(r.speeds, speed)
	return nil
}

func (r *speedRecorder) last() float64 {
	if len(r.speeds) == 0 {
		return -1
	}
	return r.speeds[len(r.speeds)-1]
}

func testZone() ZoneGeometry {
	return ZoneGeometry{
		Center:          types.Vec2{},
		Radius:          50,
		StopLineOffset:  5,
		TriggerDistance: 20,
	}
}

// eastbound places the vehicle west of the center, driving east at 10 m/s.
func eastbound(dist float64) (types.Vec2, types.Vec2) {
	return types.Vec2{X: -dist}, types.Vec2{X: 10}
}

func TestApproachSlowsInsideTriggerDistance(t *testing.T) {
	ctrl := &speedRecorder{}
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), ctrl, nopLogger{})
	now := time.Now()

	pos, vel := eastbound(100)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, nil)
	if v.State() != StateApproaching {
		t.Fatalf("state %v, want APPROACHING", v.State())
	}
	if ctrl.last() != v.config.CruiseSpeed {
		t.Fatalf("far approach must keep cruise speed, got %v", ctrl.last())
	}

	// Inside the trigger window (stop line at 5, so 15 m to the line).
	pos, vel = eastbound(20)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, nil)
	if ctrl.last() >= v.config.CruiseSpeed {
		t.Fatalf("trigger window must slow down, got %v", ctrl.last())
	}
}

func TestBlockedApproachWaitsAtStopLine(t *testing.T) {
	ctrl := &speedRecorder{}
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), ctrl, nopLogger{})
	now := time.Now()

	// A neighbor occupies the intersection box.
	blocker := []neighbor.Record{{ID: "b", Position: types.Vec2{X: 1}}}

	pos, vel := eastbound(5.5)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, blocker)

	if v.State() != StateWaiting {
		t.Fatalf("state %v, want WAITING", v.State())
	}
	if ctrl.last() != 0 {
		t.Fatalf("waiting must stop, target speed %v", ctrl.last())
	}
	if !v.IsInWaitingState() {
		t.Fatal("IsInWaitingState must report true")
	}
}

func TestClearApproachRollsThrough(t *testing.T) {
	ctrl := &speedRecorder{}
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), ctrl, nopLogger{})
	now := time.Now()

	pos, vel := eastbound(5.5)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, nil)

	if v.State() != StatePassing {
		t.Fatalf("state %v, want PASSING on a clear intersection", v.State())
	}
}

func TestGrantReleasesWaitingVehicle(t *testing.T) {
	ctrl := &speedRecorder{}
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), ctrl, nopLogger{})
	now := time.Now()

	blocker := []neighbor.Record{{ID: "b", Position: types.Vec2{X: 1}}}
	pos, vel := eastbound(5.5)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, blocker)
	if v.State() != StateWaiting {
		t.Fatalf("setup: state %v, want WAITING", v.State())
	}

	waited := 3 * time.Second
	v.GrantPassage(context.Background(), now.Add(waited))
	if v.State() != StatePassing {
		t.Fatalf("state %v after grant, want PASSING", v.State())
	}
	if ctrl.last() != v.config.CruiseSpeed {
		t.Fatalf("grant must accelerate, target %v", ctrl.last())
	}
	if v.TotalWaiting() != waited {
		t.Fatalf("waiting time %v, want %v", v.TotalWaiting(), waited)
	}
}

func TestPassingExitsPastFarBoundary(t *testing.T) {
	ctrl := &speedRecorder{}
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), ctrl, nopLogger{})
	now := time.Now()

	pos, vel := eastbound(5.5)
	v.UpdateKinematics(pos, vel)
	v.Tick(context.Background(), now, nil)
	if v.State() != StatePassing {
		t.Fatalf("setup: state %v, want PASSING", v.State())
	}

	// Past the center by more than the zone radius.
	v.UpdateKinematics(types.Vec2{X: 51}, types.Vec2{X: 10})
	v.Tick(context.Background(), now, nil)
	if v.State() != StateExited {
		t.Fatalf("state %v, want EXITED", v.State())
	}

	// Terminal: further ticks change nothing.
	transitions := v.Transitions()
	v.Tick(context.Background(), now, nil)
	if v.Transitions() != transitions {
		t.Fatal("EXITED must be terminal")
	}
}

func TestEligibilityWindow(t *testing.T) {
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), nil, nopLogger{})

	// Too far: stop line 95 m away.
	pos, vel := eastbound(100)
	v.UpdateKinematics(pos, vel)
	if v.EligibleToPropose() {
		t.Fatal("far vehicle must not be eligible")
	}

	// Inside the trigger window.
	pos, vel = eastbound(20)
	v.UpdateKinematics(pos, vel)
	if !v.EligibleToPropose() {
		t.Fatal("vehicle inside trigger window must be eligible")
	}

	// Granted passage: no further proposals.
	v.GrantPassage(context.Background(), time.Now())
	if v.EligibleToPropose() {
		t.Fatal("granted vehicle must not propose")
	}
}

func TestPriorityYield(t *testing.T) {
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), &speedRecorder{}, nopLogger{})
	pos, vel := eastbound(10)
	v.UpdateKinematics(pos, vel)

	// A neighbor closer to the center has priority; intersection itself
	// is clear.
	obs := v.Observe([]neighbor.Record{{ID: "b", Position: types.Vec2{X: -7}}})
	if !obs.HasPriorityNeighbor {
		t.Fatal("closer neighbor must have priority")
	}
	if !obs.SafeToGo {
		t.Fatal("intersection is clear")
	}
}

func TestSignedDistance(t *testing.T) {
	v := NewVehicle("a", DefaultVehicleConfig(testZone()), nil, nopLogger{})

	pos, vel := eastbound(30)
	v.UpdateKinematics(pos, vel)
	if got := v.SignedDistanceToZone(); got != 30 {
		t.Fatalf("approaching distance %v, want 30", got)
	}

	v.UpdateKinematics(types.Vec2{X: 40}, types.Vec2{X: 10})
	if got := v.SignedDistanceToZone(); got != -40 {
		t.Fatalf("departing distance %v, want -40", got)
	}

	// Stopped: heading retained from the last moving sample.
	v.UpdateKinematics(types.Vec2{X: 40}, types.Vec2{})
	if got := v.SignedDistanceToZone(); got != -40 {
		t.Fatalf("stopped vehicle distance %v, want -40", got)
	}
}

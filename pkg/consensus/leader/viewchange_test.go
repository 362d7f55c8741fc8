package leader

import (
	"context"
	"testing"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

type recordingViewChange struct {
	departed []types.AgentID
}

func (r *recordingViewChange) OnViewChange(_ context.Context, departed types.AgentID) {
	r.departed = append(r.departed, departed)
}

// stubVehicle reports a fixed along-path distance to the zone center.
type stubVehicle struct {
	dist float64
}

func (s stubVehicle) Position() types.Vec2          { return types.Vec2{} }
func (s stubVehicle) Velocity() types.Vec2          { return types.Vec2{} }
func (s stubVehicle) Speed() float64                { return 0 }
func (s stubVehicle) SignedDistanceToZone() float64 { return s.dist }
func (s stubVehicle) IsInWaitingState() bool        { return false }
func (s stubVehicle) EligibleToPropose() bool       { return false }

func TestPrimaryRelinquishesAfterExit(t *testing.T) {
	cbs := &recordingViewChange{}
	m := NewMonitor("a", 50, nopLogger{}, nil, cbs)
	ctx := context.Background()

	// Fully exited: past the center by more than the zone radius.
	primary := m.Tick(ctx, "a", stubVehicle{dist: -51})
	if primary != "" {
		t.Fatalf("primary %q, want cleared claim", primary)
	}
	if len(cbs.departed) != 1 || cbs.departed[0] != "a" {
		t.Fatalf("view change callback not fired: %v", cbs.departed)
	}
}

func TestPrimaryKeptWhileInsideZone(t *testing.T) {
	cbs := &recordingViewChange{}
	m := NewMonitor("a", 50, nopLogger{}, nil, cbs)
	ctx := context.Background()

	for _, d := range []float64{100, 10, 0, -10, -50} {
		if primary := m.Tick(ctx, "a", stubVehicle{dist: d}); primary != "a" {
			t.Fatalf("distance %v: claim lost prematurely", d)
		}
	}
	if len(cbs.departed) != 0 {
		t.Fatalf("unexpected view change: %v", cbs.departed)
	}
}

func TestReplicaNeverClearsForeignClaim(t *testing.T) {
	cbs := &recordingViewChange{}
	m := NewMonitor("a", 50, nopLogger{}, nil, cbs)
	ctx := context.Background()

	// Only the primary itself relinquishes; a replica observing any
	// distance leaves the claim alone.
	if primary := m.Tick(ctx, "b", stubVehicle{dist: -999}); primary != "b" {
		t.Fatal("replica must not clear another agent's claim")
	}
	if primary := m.Tick(ctx, "", stubVehicle{dist: -999}); primary != "" {
		t.Fatal("no claim, nothing to clear")
	}
	if len(cbs.departed) != 0 {
		t.Fatalf("unexpected view change: %v", cbs.departed)
	}
}

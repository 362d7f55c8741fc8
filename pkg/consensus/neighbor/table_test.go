package neighbor

import (
	"testing"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

func TestUpsertRefreshesInPlace(t *testing.T) {
	tbl := NewTable()
	now := time.Now()

	tbl.Upsert("a", types.Vec2{X: 1}, types.Vec2{X: 5}, now)
	tbl.Upsert("a", types.Vec2{X: 2}, types.Vec2{X: 6}, now.Add(time.Second))

	if tbl.Len() != 1 {
		t.Fatalf("expected 1 record, got %d", tbl.Len())
	}
	recs := tbl.Snapshot(types.Vec2{}, 100)
	if recs[0].Position.X != 2 || recs[0].Velocity.X != 6 {
		t.Fatalf("record not refreshed: %+v", recs[0])
	}
}

func TestUpsertAnonymousMergesByProximity(t *testing.T) {
	tbl := NewTable()
	now := time.Now()

	first := tbl.UpsertAnonymous(types.Vec2{X: 10, Y: 10}, types.Vec2{X: 1}, now)
	// Within the merge radius: refreshes the same record.
	second := tbl.UpsertAnonymous(types.Vec2{X: 12, Y: 10}, types.Vec2{X: 2}, now.Add(time.Second))
	if first != second {
		t.Fatalf("expected proximity merge, got %q and %q", first, second)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 record after merge, got %d", tbl.Len())
	}

	// Beyond the merge radius: a new fingerprinted record.
	third := tbl.UpsertAnonymous(types.Vec2{X: 100, Y: 100}, types.Vec2{}, now)
	if third == first {
		t.Fatalf("distant announcement must not merge")
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", tbl.Len())
	}
}

func TestPurgeRemovesStaleOnly(t *testing.T) {
	tbl := NewTable()
	now := time.Now()

	tbl.Upsert("fresh", types.Vec2{}, types.Vec2{}, now)
	tbl.Upsert("stale", types.Vec2{}, types.Vec2{}, now.Add(-10*time.Second))

	removed := tbl.Purge(now, 5*time.Second)
	if removed != 1 {
		t.Fatalf("expected 1 purged, got %d", removed)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", tbl.Len())
	}
	if _, found := find(tbl.Snapshot(types.Vec2{}, 100), "fresh"); !found {
		t.Fatalf("fresh record was purged")
	}
}

func TestSnapshotFiltersRangeAndOrders(t *testing.T) {
	tbl := NewTable()
	now := time.Now()

	tbl.Upsert("far", types.Vec2{X: 500}, types.Vec2{}, now)
	tbl.Upsert("b", types.Vec2{X: 20}, types.Vec2{}, now)
	tbl.Upsert("a", types.Vec2{X: 10}, types.Vec2{}, now)

	recs := tbl.Snapshot(types.Vec2{}, 100)
	if len(recs) != 2 {
		t.Fatalf("expected 2 in range, got %d", len(recs))
	}
	if recs[0].ID != "a" || recs[1].ID != "b" {
		t.Fatalf("snapshot not ordered by ID: %v, %v", recs[0].ID, recs[1].ID)
	}
}

func find(recs []Record, id types.AgentID) (Record, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

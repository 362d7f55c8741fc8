// Package neighbor maintains the per-agent table of last-known peer
// kinematic state. The table is owned exclusively by one agent and mutated
// only from that agent's event loop.
package neighbor

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// DefaultMergeRadius is the positional tolerance used to match an anonymous
// announcement to an existing record when no peer identity is available.
const DefaultMergeRadius = 5.0

// Record is the last-known state of one peer.
type Record struct {
	ID       types.AgentID
	Position types.Vec2
	Velocity types.Vec2
	LastSeen time.Time
}

// Table maps peer ID to its freshest record. At most one record per ID.
type Table struct {
	records     map[types.AgentID]Record
	mergeRadius float64
}

// NewTable creates an empty neighbor table.
func NewTable() *Table {
	return &Table{
		records:     make(map[types.AgentID]Record),
		mergeRadius: DefaultMergeRadius,
	}
}

// Upsert inserts or refreshes the record for a known peer. Always succeeds.
func (t *Table) Upsert(id types.AgentID, pos, vel types.Vec2, now time.Time) {
	t.records[id] = Record{ID: id, Position: pos, Velocity: vel, LastSeen: now}
}

// UpsertAnonymous handles an announcement that carries no sender identity.
// If an existing record lies within the merge radius it is refreshed in
// place; otherwise a new record is inserted under a position-derived
// fingerprint. The proximity merge is a lossy fallback: two distinct peers
// closer than the merge radius collapse into one record. Prefer real peer
// IDs whenever the transport provides them.
func (t *Table) UpsertAnonymous(pos, vel types.Vec2, now time.Time) types.AgentID {
	for id, rec := range t.records {
		if rec.Position.Dist(pos) < t.mergeRadius {
			t.records[id] = Record{ID: id, Position: pos, Velocity: vel, LastSeen: now}
			return id
		}
	}
	id := fingerprint(pos)
	t.records[id] = Record{ID: id, Position: pos, Velocity: vel, LastSeen: now}
	return id
}

// Purge removes every record not refreshed within timeout. Must run before
// each estimation pass so stale peers never contribute to scores or quorum.
func (t *Table) Purge(now time.Time, timeout time.Duration) int {
	removed := 0
	for id, rec := range t.records {
		if now.Sub(rec.LastSeen) > timeout {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}

// Snapshot returns the records within rng of self, ordered by ID.
// Read-only and side-effect free.
func (t *Table) Snapshot(self types.Vec2, rng float64) []Record {
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		if rec.Position.Dist(self) <= rng {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of tracked peers, fresh or not.
func (t *Table) Len() int {
	return len(t.records)
}

func fingerprint(pos types.Vec2) types.AgentID {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.1f:%.1f", pos.X, pos.Y)
	return types.AgentID(fmt.Sprintf("anon-%x", h.Sum64()))
}

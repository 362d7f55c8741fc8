package wiring

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

func TestMetricsCountersAndSnapshot(t *testing.T) {
	m := &Metrics{}

	m.IncrementRoundsOriginated()
	m.IncrementRoundsAdopted()
	m.IncrementRoundsAdopted()
	m.IncrementVotesSent()
	m.IncrementVotesReceived()
	m.IncrementStaleVotesDiscarded()
	m.IncrementDuplicateVotes()
	m.IncrementDecodeFailures()
	m.IncrementViewChanges()
	m.IncrementTelemetryPublished()
	m.IncrementTelemetryFailures()
	m.UpdateNeighborCount(3)

	s := m.GetSnapshot()
	if s.RoundsOriginated != 1 || s.RoundsAdopted != 2 {
		t.Fatalf("round counters wrong: %+v", s)
	}
	if s.VotesSent != 1 || s.VotesReceived != 1 || s.StaleVotesDiscarded != 1 ||
		s.DuplicateVotes != 1 || s.DecodeFailures != 1 {
		t.Fatalf("vote counters wrong: %+v", s)
	}
	if s.ViewChanges != 1 || s.TelemetryPublished != 1 || s.TelemetryFailures != 1 {
		t.Fatalf("event counters wrong: %+v", s)
	}
	if s.NeighborCount != 3 {
		t.Fatalf("neighbor count %d, want 3", s.NeighborCount)
	}
}

func TestAverageDecisionLatency(t *testing.T) {
	m := &Metrics{}
	if m.AverageDecisionLatency() != 0 {
		t.Fatal("no commits yet, average must be zero")
	}

	m.RecordDecisionLatency(40 * time.Millisecond)
	m.IncrementRoundsCommitted()
	m.RecordDecisionLatency(60 * time.Millisecond)
	m.IncrementRoundsCommitted()

	if got := m.AverageDecisionLatency(); got != 50*time.Millisecond {
		t.Fatalf("average %v, want 50ms", got)
	}
	if got := m.GetSnapshot().LastDecisionLatency; got != (60 * time.Millisecond).Nanoseconds() {
		t.Fatalf("last latency %d", got)
	}
}

func TestStabilityScoreRoundTrip(t *testing.T) {
	m := &Metrics{}
	if m.StabilityScore() != 0 {
		t.Fatal("zero value must read as 0")
	}
	m.RecordStabilityScore(72.5)
	if got := m.StabilityScore(); got != 72.5 {
		t.Fatalf("score %v, want 72.5", got)
	}
}

func TestThroughputGainRoundTrip(t *testing.T) {
	m := &Metrics{}
	if m.ThroughputGain() != 0 {
		t.Fatal("zero value must read as 0")
	}

	m.RecordThroughputGain(12.5)
	if got := m.ThroughputGain(); got != 12.5 {
		t.Fatalf("gain %v, want 12.5", got)
	}
	if got := m.GetSnapshot().ThroughputGainPct; got != math.Float64bits(12.5) {
		t.Fatalf("snapshot gain bits %d", got)
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := &Metrics{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementVotesReceived()
			}
		}()
	}
	wg.Wait()
	if got := m.GetSnapshot().VotesReceived; got != 800 {
		t.Fatalf("votes received %d, want 800", got)
	}
}

func TestStateBoardTracksLatestState(t *testing.T) {
	b := NewStateBoard()

	b.OnPhaseChanged("a", types.PhasePrepare)
	b.OnPhaseChanged("a", types.PhaseCommit)
	b.OnRoleChanged("a", types.RoleClusterHead)
	b.OnDecision("a", types.RoundEvent{Originator: "a", Sequence: 1, Proposal: types.DirectionNorth})

	if got := b.Phase("a"); got != types.PhaseCommit {
		t.Fatalf("phase %v, want COMMIT", got)
	}
	if got := b.Role("a"); got != types.RoleClusterHead {
		t.Fatalf("role %v, want CLUSTER_HEAD", got)
	}
	if decs := b.Decisions(); len(decs) != 1 || decs[0].Sequence != 1 {
		t.Fatalf("decisions %v", decs)
	}

	// Unknown agents read as zero values.
	if b.Phase("zz") != types.PhaseIdle || b.Role("zz") != types.RoleReplica {
		t.Fatal("unknown agent must read as zero state")
	}
}

func TestMultiExporterFansOut(t *testing.T) {
	b1 := NewStateBoard()
	b2 := NewStateBoard()
	multi := MultiExporter{b1, b2}

	multi.OnPhaseChanged("a", types.PhasePrepare)
	multi.OnDecision("a", types.RoundEvent{Originator: "a", Sequence: 2})

	for i, b := range []*StateBoard{b1, b2} {
		if b.Phase("a") != types.PhasePrepare {
			t.Fatalf("board %d missed phase update", i)
		}
		if len(b.Decisions()) != 1 {
			t.Fatalf("board %d missed decision", i)
		}
	}
}

// Package wiring assembles the per-agent runtime and tracks its operational
// counters.
package wiring

import (
	"math"
	"sync/atomic"
	"time"
)

// Metrics tracks consensus layer performance and events
type Metrics struct {
	// Round metrics
	RoundsOriginated uint64
	RoundsAdopted    uint64
	RoundsCommitted  uint64
	RoundsSuperseded uint64

	// Vote metrics
	VotesSent           uint64
	VotesReceived       uint64
	StaleVotesDiscarded uint64
	DuplicateVotes      uint64
	DecodeFailures      uint64

	// View change metrics
	ViewChanges uint64

	// Timing metrics (in nanoseconds)
	LastDecisionLatency  int64
	TotalDecisionLatency int64

	// Topology metrics
	LastStabilityScore uint64 // math.Float64bits encoded
	NeighborCount      int64

	// ThroughputGainPct is the configured throughput-gain placeholder
	// reported alongside each round completion. math.Float64bits encoded.
	ThroughputGainPct uint64

	// Telemetry metrics
	TelemetryPublished uint64
	TelemetryFailures  uint64
}

// IncrementRoundsOriginated atomically increments the counter
func (m *Metrics) IncrementRoundsOriginated() {
	atomic.AddUint64(&m.RoundsOriginated, 1)
}

// IncrementRoundsAdopted atomically increments the counter
func (m *Metrics) IncrementRoundsAdopted() {
	atomic.AddUint64(&m.RoundsAdopted, 1)
}

// IncrementRoundsCommitted atomically increments the counter
func (m *Metrics) IncrementRoundsCommitted() {
	atomic.AddUint64(&m.RoundsCommitted, 1)
}

// IncrementRoundsSuperseded atomically increments the counter
func (m *Metrics) IncrementRoundsSuperseded() {
	atomic.AddUint64(&m.RoundsSuperseded, 1)
}

// IncrementVotesSent atomically increments the counter
func (m *Metrics) IncrementVotesSent() {
	atomic.AddUint64(&m.VotesSent, 1)
}

// IncrementVotesReceived atomically increments the counter
func (m *Metrics) IncrementVotesReceived() {
	atomic.AddUint64(&m.VotesReceived, 1)
}

// IncrementStaleVotesDiscarded atomically increments the counter
func (m *Metrics) IncrementStaleVotesDiscarded() {
	atomic.AddUint64(&m.StaleVotesDiscarded, 1)
}

// IncrementDuplicateVotes atomically increments the counter
func (m *Metrics) IncrementDuplicateVotes() {
	atomic.AddUint64(&m.DuplicateVotes, 1)
}

// IncrementDecodeFailures atomically increments the counter
func (m *Metrics) IncrementDecodeFailures() {
	atomic.AddUint64(&m.DecodeFailures, 1)
}

// IncrementViewChanges atomically increments the counter
func (m *Metrics) IncrementViewChanges() {
	atomic.AddUint64(&m.ViewChanges, 1)
}

// IncrementTelemetryPublished atomically increments the counter
func (m *Metrics) IncrementTelemetryPublished() {
	atomic.AddUint64(&m.TelemetryPublished, 1)
}

// IncrementTelemetryFailures atomically increments the counter
func (m *Metrics) IncrementTelemetryFailures() {
	atomic.AddUint64(&m.TelemetryFailures, 1)
}

// RecordDecisionLatency records the latency of a committed round
func (m *Metrics) RecordDecisionLatency(d time.Duration) {
	nanos := d.Nanoseconds()
	atomic.StoreInt64(&m.LastDecisionLatency, nanos)
	atomic.AddInt64(&m.TotalDecisionLatency, nanos)
}

// RecordStabilityScore records the most recent topology stability score
func (m *Metrics) RecordStabilityScore(score float64) {
	atomic.StoreUint64(&m.LastStabilityScore, math.Float64bits(score))
}

// UpdateNeighborCount records the current neighbor table size
func (m *Metrics) UpdateNeighborCount(n int) {
	atomic.StoreInt64(&m.NeighborCount, int64(n))
}

// StabilityScore returns the most recent topology stability score
func (m *Metrics) StabilityScore() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.LastStabilityScore))
}

// RecordThroughputGain records the throughput-gain figure reported with a
// round completion.
func (m *Metrics) RecordThroughputGain(pct float64) {
	atomic.StoreUint64(&m.ThroughputGainPct, math.Float64bits(pct))
}

// ThroughputGain returns the last recorded throughput-gain percentage.
func (m *Metrics) ThroughputGain() float64 {
	return math.Float64frombits(atomic.LoadUint64(&m.ThroughputGainPct))
}

// AverageDecisionLatency returns the mean commit latency across all
// committed rounds, zero when nothing committed yet.
func (m *Metrics) AverageDecisionLatency() time.Duration {
	committed := atomic.LoadUint64(&m.RoundsCommitted)
	if committed == 0 {
		return 0
	}
	return time.Duration(atomic.LoadInt64(&m.TotalDecisionLatency) / int64(committed))
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() Metrics {
	return Metrics{
		RoundsOriginated:     atomic.LoadUint64(&m.RoundsOriginated),
		RoundsAdopted:        atomic.LoadUint64(&m.RoundsAdopted),
		RoundsCommitted:      atomic.LoadUint64(&m.RoundsCommitted),
		RoundsSuperseded:     atomic.LoadUint64(&m.RoundsSuperseded),
		VotesSent:            atomic.LoadUint64(&m.VotesSent),
		VotesReceived:        atomic.LoadUint64(&m.VotesReceived),
		StaleVotesDiscarded:  atomic.LoadUint64(&m.StaleVotesDiscarded),
		DuplicateVotes:       atomic.LoadUint64(&m.DuplicateVotes),
		DecodeFailures:       atomic.LoadUint64(&m.DecodeFailures),
		ViewChanges:          atomic.LoadUint64(&m.ViewChanges),
		LastDecisionLatency:  atomic.LoadInt64(&m.LastDecisionLatency),
		TotalDecisionLatency: atomic.LoadInt64(&m.TotalDecisionLatency),
		LastStabilityScore:   atomic.LoadUint64(&m.LastStabilityScore),
		NeighborCount:        atomic.LoadInt64(&m.NeighborCount),
		ThroughputGainPct:    atomic.LoadUint64(&m.ThroughputGainPct),
		TelemetryPublished:   atomic.LoadUint64(&m.TelemetryPublished),
		TelemetryFailures:    atomic.LoadUint64(&m.TelemetryFailures),
	}
}

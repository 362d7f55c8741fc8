// Package topology scores pairwise link durability between agents and
// aggregates it into the stability signal that drives role election.
package topology

import (
	"math"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/neighbor"
	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// IndefiniteLinkSeconds is the LET sentinel for zero relative motion: the
// link never expires under constant-velocity extrapolation.
const IndefiniteLinkSeconds = 9999

// DefaultNormalizationCeiling caps the LET value that maps to a full score.
const DefaultNormalizationCeiling = 20.0

// EstimateLET predicts the Link Expiration Time in seconds: the time until
// the distance between two agents reaches communication radius r, assuming
// both hold their current velocity. Closed form: with dp = posA-posB and
// dv = velA-velB, solve |dp + t*dv| = r as a quadratic
// a*t^2 + b*t + c = 0 with a=|dv|^2, b=2(dp.dv), c=|dp|^2-r^2.
func EstimateLET(posA, velA, posB, velB types.Vec2, r float64) float64 {
	dp := posA.Sub(posB)
	dv := velA.Sub(velB)

	a := dv.LenSq()
	b := 2 * dp.Dot(dv)
	c := dp.LenSq() - r*r

	if a == 0 && b == 0 {
		// No relative motion: the link holds indefinitely.
		return IndefiniteLinkSeconds
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		// The trajectories never touch the radius boundary: contact is not
		// maintained, the link counts as not stable.
		return 0
	}

	t := (math.Sqrt(disc) - b) / (2 * a)
	return math.Max(0, t)
}

// LinkScore is the per-peer stability score for one estimation period.
type LinkScore struct {
	PeerID     types.AgentID
	RawLET     float64
	Normalized float64 // [0,100]
}

// Estimator recomputes link scores wholesale every estimation period and
// exposes the aggregate topology stability score.
type Estimator struct {
	ceiling   float64
	scores    map[types.AgentID]LinkScore
	stability float64
	updatedAt time.Time
}

// NewEstimator creates an estimator with the given normalization ceiling in
// seconds (a LET at or above it scores 100).
func NewEstimator(ceilingSeconds float64) *Estimator {
	if ceilingSeconds <= 0 {
		ceilingSeconds = DefaultNormalizationCeiling
	}
	return &Estimator{
		ceiling: ceilingSeconds,
		scores:  make(map[types.AgentID]LinkScore),
	}
}

// UpdateScores replaces all link scores from the given neighbor snapshot
// (records already filtered to communication range). The topology stability
// score is the arithmetic mean of the normalized scores; with no neighbor in
// range this period it resets to 0, it does not decay.
func (e *Estimator) UpdateScores(records []neighbor.Record, selfPos, selfVel types.Vec2, r float64, now time.Time) {
	scores := make(map[types.AgentID]LinkScore, len(records))
	sum := 0.0
	for _, rec := range records {
		let := EstimateLET(selfPos, selfVel, rec.Position, rec.Velocity, r)
		norm := math.Min(100, 100*let/e.ceiling)
		scores[rec.ID] = LinkScore{PeerID: rec.ID, RawLET: let, Normalized: norm}
		sum += norm
	}

	e.scores = scores
	e.updatedAt = now
	if len(scores) == 0 {
		e.stability = 0
		return
	}
	e.stability = sum / float64(len(scores))
}

// TopologyStability returns the aggregate score for the current period.
func (e *Estimator) TopologyStability() float64 {
	return e.stability
}

// Score returns the link score for one peer, if present this period.
func (e *Estimator) Score(id types.AgentID) (LinkScore, bool) {
	s, ok := e.scores[id]
	return s, ok
}

// Scores returns a copy of the current period's scores.
func (e *Estimator) Scores() map[types.AgentID]LinkScore {
	out := make(map[types.AgentID]LinkScore, len(e.scores))
	for k, v := range e.scores {
		out[k] = v
	}
	return out
}

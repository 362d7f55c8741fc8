package types

import (
	"fmt"
	"math"
	"time"
)

// AgentID uniquely identifies a participating vehicle agent.
// This is the SINGLE source of truth for agent identification; vote
// deduplication and self-recognition key on it.
type AgentID string

// Vec2 is a 2D position or velocity in road coordinates.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Sub(o Vec2) Vec2     { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Dot(o Vec2) float64  { return v.X*o.X + v.Y*o.Y }
func (v Vec2) Len() float64        { return math.Hypot(v.X, v.Y) }
func (v Vec2) LenSq() float64      { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }
func (v Vec2) String() string      { return fmt.Sprintf("(%.2f,%.2f)", v.X, v.Y) }

// Phase is the consensus round phase of a single agent.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePrePrepare
	PhasePrepare
	PhaseCommit
	// PhaseReply is transient: the committed decision is surfaced and the
	// engine immediately returns to PhaseIdle.
	PhaseReply
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhasePrePrepare:
		return "PRE_PREPARE"
	case PhasePrepare:
		return "PREPARE"
	case PhaseCommit:
		return "COMMIT"
	case PhaseReply:
		return "REPLY"
	default:
		return "UNKNOWN"
	}
}

// Role is the topology-elected role of an agent.
type Role uint8

const (
	RoleReplica Role = iota
	RoleClusterHead
)

func (r Role) String() string {
	if r == RoleClusterHead {
		return "CLUSTER_HEAD"
	}
	return "REPLICA"
}

// Integrity is assigned once at agent creation and never changes.
type Integrity uint8

const (
	IntegrityHonest Integrity = iota
	IntegrityMalicious
)

func (i Integrity) String() string {
	if i == IntegrityMalicious {
		return "MALICIOUS"
	}
	return "HONEST"
}

// MessageType identifies the type of consensus vote message.
type MessageType uint8

const (
	MessagePrePrepare MessageType = iota + 1
	MessagePrepare
	MessageCommit
)

func (t MessageType) String() string {
	switch t {
	case MessagePrePrepare:
		return "PRE_PREPARE"
	case MessagePrepare:
		return "PREPARE"
	case MessageCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// Proposal direction tokens. A proposal names the approach direction that is
// granted right-of-way.
const (
	DirectionNorth = "N"
	DirectionSouth = "S"
	DirectionEast  = "E"
	DirectionWest  = "W"
)

// DirectionFrom derives the proposal token from an agent's position relative
// to the decision-zone center. Dominant-axis tie-break: the axis with the
// larger displacement wins.
func DirectionFrom(pos, center Vec2) string {
	d := pos.Sub(center)
	if math.Abs(d.X) > math.Abs(d.Y) {
		if d.X > 0 {
			return DirectionEast
		}
		return DirectionWest
	}
	if d.Y > 0 {
		return DirectionNorth
	}
	return DirectionSouth
}

// DissentingDirection returns a direction token that conflicts with the given
// one. Malicious agents substitute it when voting.
func DissentingDirection(dir string) string {
	switch dir {
	case DirectionNorth:
		return DirectionEast
	case DirectionEast:
		return DirectionSouth
	case DirectionSouth:
		return DirectionWest
	default:
		return DirectionNorth
	}
}

// RoundEvent is the logical telemetry record surfaced on round phase changes
// (primarily commit). Transport and encoding are the publisher's concern.
type RoundEvent struct {
	EventID           string    `json:"event_id"`
	AgentID           AgentID   `json:"agent_id"`
	Originator        AgentID   `json:"originator_id"`
	Sequence          uint64    `json:"sequence"`
	View              uint64    `json:"view"`
	Phase             string    `json:"phase"`
	Proposal          string    `json:"proposal"`
	DecisionLatencyMs float64   `json:"decision_latency_ms"`
	StabilityScore    float64   `json:"stability_score"`
	ThroughputGainPct float64   `json:"throughput_gain_pct"`
	Timestamp         time.Time `json:"timestamp"`
}

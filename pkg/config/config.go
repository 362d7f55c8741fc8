// Package config loads and validates the agent runtime configuration from
// the environment, with optional .env file support for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults calibrated for the intersection demo.
const (
	DefaultDecisionInterval    = 1 * time.Second
	DefaultLinkCalcInterval    = 1 * time.Second
	DefaultNeighborTimeout     = 5 * time.Second
	DefaultCommunicationRadius = 300.0
	DefaultNormalizationCeil   = 20.0
	DefaultQuorumSize          = 2
	DefaultZoneRadius          = 50.0
	DefaultStopLineOffset      = 5.0
	DefaultTriggerDistance     = 20.0
)

// AgentConfig identifies one agent process.
type AgentConfig struct {
	// ID is the agent identity on the wire. Empty means derive a
	// position-fingerprint pseudo-ID at startup.
	ID string `json:"id"`

	// Malicious marks the agent as a Byzantine dissenter for experiments.
	Malicious bool `json:"malicious"`
}

// ZoneConfig describes the intersection decision zone geometry.
type ZoneConfig struct {
	CenterX        float64 `json:"center_x"`
	CenterY        float64 `json:"center_y"`
	Radius         float64 `json:"radius"`
	StopLineOffset float64 `json:"stop_line_offset"`

	// TriggerDistance is how close to the stop line a vehicle must be
	// before it becomes eligible to propose.
	TriggerDistance float64 `json:"trigger_distance"`
}

// ConsensusConfig holds the agreement-protocol parameters.
type ConsensusConfig struct {
	// QuorumSize is the fixed vote threshold Q. Zero means derive from
	// ByzantineFaults as 2f+1.
	QuorumSize      int `json:"quorum_size"`
	ByzantineFaults int `json:"byzantine_faults"`

	DecisionInterval time.Duration `json:"decision_interval"`
	JitterMin        time.Duration `json:"jitter_min"`
	JitterMax        time.Duration `json:"jitter_max"`

	// ThroughputGainPct is the throughput-gain placeholder reported with
	// each committed round. Purely observational.
	ThroughputGainPct float64 `json:"throughput_gain_pct"`
}

// TopologyConfig holds link estimation parameters.
type TopologyConfig struct {
	CommunicationRadius  float64       `json:"communication_radius"`
	NormalizationCeiling float64       `json:"normalization_ceiling"`
	LinkCalcInterval     time.Duration `json:"link_calc_interval"`
	NeighborTimeout      time.Duration `json:"neighbor_timeout"`
}

// TransportConfig selects and tunes the vote transport.
type TransportConfig struct {
	// Mode is "inproc" for the bundled simulation bus or "gossip" for
	// the libp2p mesh.
	Mode       string `json:"mode"`
	ListenAddr string `json:"listen_addr"`
	Topic      string `json:"topic"`
}

// KafkaConfig configures the optional telemetry export.
type KafkaConfig struct {
	Enabled      bool     `json:"enabled"`
	Brokers      []string `json:"brokers"`
	Topic        string   `json:"topic"`
	SASLUser     string   `json:"sasl_user"`
	SASLPassword string   `json:"-"`
}

// Config is the full agent runtime configuration.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Zone      ZoneConfig      `json:"zone"`
	Consensus ConsensusConfig `json:"consensus"`
	Topology  TopologyConfig  `json:"topology"`
	Transport TransportConfig `json:"transport"`
	Kafka     KafkaConfig     `json:"kafka"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment wins.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Agent: AgentConfig{
			ID:        os.Getenv("AGENT_ID"),
			Malicious: envBool("AGENT_MALICIOUS", false),
		},
		Zone: ZoneConfig{
			CenterX:         envFloat("ZONE_CENTER_X", 0),
			CenterY:         envFloat("ZONE_CENTER_Y", 0),
			Radius:          envFloat("ZONE_RADIUS", DefaultZoneRadius),
			StopLineOffset:  envFloat("ZONE_STOP_LINE_OFFSET", DefaultStopLineOffset),
			TriggerDistance: envFloat("ZONE_TRIGGER_DISTANCE", DefaultTriggerDistance),
		},
		Consensus: ConsensusConfig{
			QuorumSize:        envInt("QUORUM_SIZE", DefaultQuorumSize),
			ByzantineFaults:   envInt("BYZANTINE_FAULTS", 0),
			DecisionInterval:  envDuration("DECISION_INTERVAL", DefaultDecisionInterval),
			JitterMin:         envDuration("VOTE_JITTER_MIN", 10*time.Millisecond),
			JitterMax:         envDuration("VOTE_JITTER_MAX", 100*time.Millisecond),
			ThroughputGainPct: envFloat("THROUGHPUT_GAIN_PCT", 0),
		},
		Topology: TopologyConfig{
			CommunicationRadius:  envFloat("COMMUNICATION_RADIUS", DefaultCommunicationRadius),
			NormalizationCeiling: envFloat("LET_NORMALIZATION_CEILING", DefaultNormalizationCeil),
			LinkCalcInterval:     envDuration("LINK_CALC_INTERVAL", DefaultLinkCalcInterval),
			NeighborTimeout:      envDuration("NEIGHBOR_TIMEOUT", DefaultNeighborTimeout),
		},
		Transport: TransportConfig{
			Mode:       envString("TRANSPORT_MODE", "inproc"),
			ListenAddr: envString("P2P_LISTEN_ADDR", "/ip4/0.0.0.0/tcp/0"),
			Topic:      envString("VOTE_TOPIC", "crossing/votes/v1"),
		},
		Kafka: KafkaConfig{
			Enabled:      envBool("KAFKA_ENABLED", false),
			Brokers:      splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:        envString("KAFKA_TOPIC", "crossing.rounds"),
			SASLUser:     os.Getenv("KAFKA_SASL_USER"),
			SASLPassword: os.Getenv("KAFKA_SASL_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot operate under.
func (c *Config) Validate() error {
	if c.Consensus.QuorumSize <= 0 && c.Consensus.ByzantineFaults <= 0 {
		return fmt.Errorf("config: either QUORUM_SIZE or BYZANTINE_FAULTS must be positive")
	}
	if c.Consensus.QuorumSize < 0 {
		return fmt.Errorf("config: quorum size %d must not be negative", c.Consensus.QuorumSize)
	}
	if c.Consensus.JitterMax < c.Consensus.JitterMin {
		return fmt.Errorf("config: jitter max %v below min %v",
			c.Consensus.JitterMax, c.Consensus.JitterMin)
	}
	if c.Consensus.DecisionInterval <= 0 {
		return fmt.Errorf("config: decision interval must be positive")
	}
	if c.Zone.Radius <= 0 {
		return fmt.Errorf("config: zone radius must be positive")
	}
	if c.Zone.TriggerDistance <= 0 {
		return fmt.Errorf("config: trigger distance must be positive")
	}
	if c.Topology.CommunicationRadius <= 0 {
		return fmt.Errorf("config: communication radius must be positive")
	}
	if c.Topology.NormalizationCeiling <= 0 {
		return fmt.Errorf("config: normalization ceiling must be positive")
	}
	if c.Topology.NeighborTimeout <= 0 {
		return fmt.Errorf("config: neighbor timeout must be positive")
	}
	switch c.Transport.Mode {
	case "inproc", "gossip":
	default:
		return fmt.Errorf("config: unknown transport mode %q", c.Transport.Mode)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka enabled but no brokers configured")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

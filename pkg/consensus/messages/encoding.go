package messages

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Codec handles vote serialization. Encoding is strict canonical CBOR with a
// hard size limit; decoding rejects malformed or oversized frames. A small
// TTL'd LRU absorbs duplicate deliveries before they reach the engine (votes
// are idempotent anyway, the cache keeps log noise and work down).
type Codec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
	config  *CodecConfig
	seen    *expirable.LRU[string, bool]
}

// CodecConfig contains encoding limits and duplicate-suppression parameters.
type CodecConfig struct {
	MaxVoteSize  int
	SeenCacheCap int
	SeenCacheTTL time.Duration
}

// DefaultCodecConfig returns defaults sized for the small vote message.
func DefaultCodecConfig() *CodecConfig {
	return &CodecConfig{
		MaxVoteSize:  4 << 10, // 4 KB, votes are a few hundred bytes
		SeenCacheCap: 4096,
		SeenCacheTTL: 30 * time.Second,
	}
}

// NewCodec creates a strict CBOR codec for vote messages.
func NewCodec(config *CodecConfig) (*Codec, error) {
	if config == nil {
		config = DefaultCodecConfig()
	}

	encOpts := cbor.CanonicalEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	encMode, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 8,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Codec{
		encMode: encMode,
		decMode: decMode,
		config:  config,
		seen:    expirable.NewLRU[string, bool](config.SeenCacheCap, nil, config.SeenCacheTTL),
	}, nil
}

// Encode serializes a vote, enforcing the size limit.
func (c *Codec) Encode(v *Vote) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encMode.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("CBOR encode failed: %w", err)
	}
	data := buf.Bytes()
	if len(data) > c.config.MaxVoteSize {
		return nil, fmt.Errorf("vote size %d exceeds limit %d", len(data), c.config.MaxVoteSize)
	}
	return data, nil
}

// Decode parses and structurally validates an inbound frame.
func (c *Codec) Decode(data []byte) (*Vote, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if len(data) > c.config.MaxVoteSize {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", len(data), c.config.MaxVoteSize)
	}

	var v Vote
	if err := c.decMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("CBOR decode failed: %w", err)
	}
	if err := ValidateVote(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SeenBefore reports whether this exact vote was already delivered recently,
// recording it either way.
func (c *Codec) SeenBefore(v *Vote) bool {
	key := v.DedupeKey()
	if _, ok := c.seen.Get(key); ok {
		return true
	}
	c.seen.Add(key, true)
	return false
}

// ClearSeen drops the duplicate-suppression state.
func (c *Codec) ClearSeen() {
	c.seen.Purge()
}

// Package telemetry ships committed round records to Kafka for offline
// analysis. Publishing is best effort: a broker outage degrades analytics,
// never the intersection protocol.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// ProducerConfig holds configuration for creating a producer
type ProducerConfig struct {
	Brokers []string
	Topic   string

	// SASL/SCRAM credentials; empty user disables SASL.
	SASLUser     string
	SASLPassword string
}

// Producer publishes round events to a Kafka topic as JSON records keyed by
// originator, so one vehicle's rounds land on one partition in order.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   types.Logger

	mu     sync.RWMutex
	closed bool

	publishSuccesses atomic.Uint64
	publishFailures  atomic.Uint64
}

// NewProducer creates a Kafka round-event producer.
func NewProducer(ctx context.Context, cfg ProducerConfig, logger types.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("telemetry producer: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("telemetry producer: topic required")
	}

	saramaCfg := newSaramaConfig(cfg)
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry producer: create failed: %w", err)
	}

	logger.InfoContext(ctx, "telemetry producer created",
		"brokers", len(cfg.Brokers),
		"topic", cfg.Topic,
	)

	return &Producer{
		producer: producer,
		topic:    cfg.Topic,
		logger:   logger,
	}, nil
}

func newSaramaConfig(cfg ProducerConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 3
	c.Producer.Retry.Backoff = 250 * time.Millisecond
	c.Producer.Return.Successes = true
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1

	if cfg.SASLUser != "" {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		c.Net.SASL.User = cfg.SASLUser
		c.Net.SASL.Password = cfg.SASLPassword
		c.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
		}
	}
	return c
}

// Publish ships one round event. Blocking send; callers treat errors as
// non-fatal.
func (p *Producer) Publish(ctx context.Context, ev types.RoundEvent) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("telemetry producer: already closed")
	}
	p.mu.RUnlock()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("telemetry producer: marshal failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Originator),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("version"), Value: []byte("1")},
			{Key: []byte("type"), Value: []byte("round_event")},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.publishFailures.Add(1)
		p.logger.WarnContext(ctx, "telemetry publish failed",
			"event_id", ev.EventID,
			"error", err,
		)
		return fmt.Errorf("telemetry producer: publish failed: %w", err)
	}

	p.publishSuccesses.Add(1)
	p.logger.DebugContext(ctx, "round event published",
		"event_id", ev.EventID,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Stats returns the publish success and failure counts.
func (p *Producer) Stats() (successes, failures uint64) {
	return p.publishSuccesses.Load(), p.publishFailures.Load()
}

// Close gracefully closes the producer
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("telemetry producer: close failed: %w", err)
	}
	return nil
}

// NopPublisher drops all events. Used when Kafka export is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev types.RoundEvent) error { return nil }
func (NopPublisher) Close() error                                           { return nil }

// Package p2p provides the vote transports: a libp2p gossipsub mesh for real
// deployments and an in-process bus for simulation.
package p2p

import (
	"context"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// RouterConfig tunes the gossip transport.
type RouterConfig struct {
	// ListenAddr is the libp2p multiaddr to listen on.
	ListenAddr string
	// Topic is the pubsub topic all votes travel on.
	Topic string
	// Rendezvous names the mdns discovery namespace.
	Rendezvous string
	// MaxMessageSize rejects oversized frames before decode.
	MaxMessageSize int
}

// DefaultRouterConfig returns defaults for a single-intersection mesh.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		ListenAddr:     "/ip4/0.0.0.0/tcp/0",
		Topic:          "crossing/votes/v1",
		Rendezvous:     "crossing/v1",
		MaxMessageSize: 8 << 10,
	}
}

// Router is a gossipsub-backed vote transport. Peers are discovered over
// mdns: a roadside cluster is one broadcast domain, so LAN discovery is
// enough and no routing table is kept.
type Router struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	audit  types.AuditLogger
	config *RouterConfig

	host  host.Host
	gs    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription

	mu       sync.RWMutex
	handlers []func(ctx context.Context, data []byte)
	closed   bool
}

// NewRouter builds the host, joins the vote topic and starts discovery.
func NewRouter(parent context.Context, config *RouterConfig, logger types.Logger, audit types.AuditLogger) (*Router, error) {
	if config == nil {
		config = DefaultRouterConfig()
	}
	ctx, cancel := context.WithCancel(parent)

	if _, err := multiaddr.NewMultiaddr(config.ListenAddr); err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: invalid listen addr %q: %w", config.ListenAddr, err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrStrings(config.ListenAddr),
		libp2p.Security(noise.ID, noise.New),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: host: %w", err)
	}

	gs, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSigning(true),
		pubsub.WithStrictSignatureVerification(true),
	)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: gossipsub: %w", err)
	}

	r := &Router{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		audit:  audit,
		config: config,
		host:   h,
		gs:     gs,
	}

	if err := gs.RegisterTopicValidator(config.Topic, r.validate); err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: topic validator: %w", err)
	}

	topic, err := gs.Join(config.Topic)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: join topic %s: %w", config.Topic, err)
	}
	r.topic = topic

	sub, err := topic.Subscribe()
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: subscribe topic %s: %w", config.Topic, err)
	}
	r.sub = sub

	svc := mdns.NewMdnsService(h, config.Rendezvous, &mdnsNotifee{r: r})
	if err := svc.Start(); err != nil {
		logger.WarnContext(ctx, "mdns discovery failed to start", "error", err)
	}

	go r.consume()

	logger.InfoContext(ctx, "p2p router started",
		"peer_id", h.ID().String(),
		"topic", config.Topic,
	)
	if audit != nil {
		_ = audit.Info("p2p_router_initialized", map[string]interface{}{
			"peer_id": h.ID().String(),
			"topic":   config.Topic,
		})
	}
	return r, nil
}

// PeerID returns this host's libp2p identity.
func (r *Router) PeerID() peer.ID { return r.host.ID() }

// PeerCount returns the number of connected peers.
func (r *Router) PeerCount() int { return len(r.host.Network().Peers()) }

// Broadcast publishes one encoded vote to the topic.
func (r *Router) Broadcast(ctx context.Context, data []byte) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return fmt.Errorf("p2p: router closed")
	}
	if len(data) > r.config.MaxMessageSize {
		return fmt.Errorf("p2p: message size %d exceeds maximum %d", len(data), r.config.MaxMessageSize)
	}
	return r.topic.Publish(ctx, data)
}

// Subscribe registers a frame handler. Handlers run on the router's consume
// goroutine; they must hand work off to their own executor.
func (r *Router) Subscribe(handler func(ctx context.Context, data []byte)) {
	r.mu.Lock()
	r.handlers = append(r.handlers, handler)
	r.mu.Unlock()
}

func (r *Router) validate(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	if len(msg.Data) == 0 || len(msg.Data) > r.config.MaxMessageSize {
		return pubsub.ValidationReject
	}
	return pubsub.ValidationAccept
}

func (r *Router) consume() {
	for {
		msg, err := r.sub.Next(r.ctx)
		if err != nil {
			return
		}
		// Own messages loop back through gossipsub; drop them here so the
		// engine only ever sees remote votes.
		if msg.ReceivedFrom == r.host.ID() {
			continue
		}

		r.mu.RLock()
		handlers := r.handlers
		r.mu.RUnlock()
		for _, h := range handlers {
			h(r.ctx, msg.Data)
		}
	}
}

// Close shuts the router down.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.sub.Cancel()
	if err := r.topic.Close(); err != nil {
		r.logger.WarnContext(context.Background(), "topic close failed", "error", err)
	}
	return r.host.Close()
}

// mdnsNotifee dials every locally discovered peer.
type mdnsNotifee struct {
	r *Router
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.r.host.ID() {
		return
	}
	if err := n.r.host.Connect(n.r.ctx, pi); err != nil {
		n.r.logger.DebugContext(n.r.ctx, "mdns dial failed",
			"peer", pi.ID.String(),
			"error", err,
		)
		return
	}
	n.r.logger.DebugContext(n.r.ctx, "mdns peer connected", "peer", pi.ID.String())
}

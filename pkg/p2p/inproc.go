package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/types"
)

// Bus is an in-process broadcast fabric for simulation runs. Every port sees
// every other port's frames; an optional fault hook drops or delays delivery
// to model a lossy radio channel.
type Bus struct {
	mu     sync.RWMutex
	ports  map[string]*Port
	closed bool

	// Fault, when set, is consulted per (sender, receiver, frame); returning
	// a negative delay drops the frame.
	Fault func(from, to string, data []byte) time.Duration
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{ports: make(map[string]*Port)}
}

// Open attaches a new port. The name must be unique on the bus.
func (b *Bus) Open(name string) (*Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("inproc: bus closed")
	}
	if _, ok := b.ports[name]; ok {
		return nil, fmt.Errorf("inproc: port %q already open", name)
	}

	p := &Port{bus: b, name: name}
	b.ports[name] = p
	return p, nil
}

// Close detaches all ports.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.ports = make(map[string]*Port)
	return nil
}

func (b *Bus) broadcast(ctx context.Context, from string, data []byte) {
	b.mu.RLock()
	fault := b.Fault
	targets := make([]*Port, 0, len(b.ports))
	for name, p := range b.ports {
		if name == from {
			continue
		}
		targets = append(targets, p)
	}
	b.mu.RUnlock()

	for _, p := range targets {
		frame := append([]byte(nil), data...)
		var delay time.Duration
		if fault != nil {
			delay = fault(from, p.name, frame)
			if delay < 0 {
				continue
			}
		}
		go func(p *Port, frame []byte, delay time.Duration) {
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
			p.deliver(ctx, frame)
		}(p, frame, delay)
	}
}

// Port is one agent's attachment to the bus. Implements types.Transport.
type Port struct {
	bus  *Bus
	name string

	mu       sync.RWMutex
	handlers []func(ctx context.Context, data []byte)
	closed   bool
}

var _ types.Transport = (*Port)(nil)

// Broadcast fans the frame out to every other port.
func (p *Port) Broadcast(ctx context.Context, data []byte) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("inproc: port %q closed", p.name)
	}
	p.bus.broadcast(ctx, p.name, data)
	return nil
}

// Subscribe registers a frame handler.
func (p *Port) Subscribe(handler func(ctx context.Context, data []byte)) {
	p.mu.Lock()
	p.handlers = append(p.handlers, handler)
	p.mu.Unlock()
}

// Close detaches the port from the bus.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.bus.mu.Lock()
	delete(p.bus.ports, p.name)
	p.bus.mu.Unlock()
	return nil
}

func (p *Port) deliver(ctx context.Context, data []byte) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	handlers := p.handlers
	p.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, data)
	}
}

package agent

import (
	"context"
	"sync"
	"time"

	"github.com/vanetlab/crossing/pkg/consensus/messages"
	"github.com/vanetlab/crossing/pkg/consensus/types"
	"github.com/vanetlab/crossing/pkg/wiring"
)

// jitterSender broadcasts encoded votes, optionally after a delay. Pending
// timers are tracked so a superseded round can cancel its unsent votes.
type jitterSender struct {
	transport types.Transport
	codec     *messages.Codec
	metrics   *wiring.Metrics
	logger    types.Logger

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
}

func newJitterSender(transport types.Transport, codec *messages.Codec, metrics *wiring.Metrics, logger types.Logger) *jitterSender {
	return &jitterSender{
		transport: transport,
		codec:     codec,
		metrics:   metrics,
		logger:    logger,
		pending:   make(map[*time.Timer]struct{}),
	}
}

// SendVote encodes and broadcasts a vote. A zero delay sends inline; a
// positive delay schedules a fire-once timer.
func (s *jitterSender) SendVote(ctx context.Context, v *messages.Vote, delay time.Duration) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}

	if delay <= 0 {
		return s.broadcast(ctx, data)
	}

	s.mu.Lock()
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.pending[timer]
		delete(s.pending, timer)
		s.mu.Unlock()
		if !live {
			return
		}
		if err := s.broadcast(context.Background(), data); err != nil {
			s.logger.DebugContext(ctx, "delayed vote broadcast failed", "error", err)
		}
	})
	s.pending[timer] = struct{}{}
	s.mu.Unlock()
	return nil
}

// CancelPending stops every scheduled send that has not fired.
func (s *jitterSender) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for timer := range s.pending {
		timer.Stop()
		delete(s.pending, timer)
	}
}

func (s *jitterSender) broadcast(ctx context.Context, data []byte) error {
	if err := s.transport.Broadcast(ctx, data); err != nil {
		return err
	}
	s.metrics.IncrementVotesSent()
	return nil
}

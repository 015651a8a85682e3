package consumer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/lease-worker/internal/metrics"
	"github.com/sungwon/lease-worker/internal/queue"
)

// BatchDispatcher receives each non-empty batch.
type BatchDispatcher interface {
	Dispatch(msgs []*queue.Message) int
}

// Slots hands out worker capacity ahead of a receive. *pool.Pool
// implements it.
type Slots interface {
	Reserve(ctx context.Context, n int) (int, error)
	Unreserve(n int)
}

// Poller performs one receive per Poll call.
type Poller struct {
	queue      queue.Service
	dispatcher BatchDispatcher
	backoff    *Backoff
	slots      Slots
	req        queue.ReceiveRequest
	log        zerolog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSlots bounds every receive by the worker slots free at that moment.
// Poll waits for a free slot before receiving, so messages are never pulled
// for handlers that could not start.
func WithSlots(s Slots) PollerOption {
	return func(p *Poller) { p.slots = s }
}

// NewPoller creates a Poller issuing receives bounded by req.
func NewPoller(svc queue.Service, d BatchDispatcher, b *Backoff, req queue.ReceiveRequest, log zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		queue:      svc,
		dispatcher: d,
		backoff:    b,
		req:        req,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll blocks for up to the long-poll wait, dispatches whatever arrived and
// returns the batch size without waiting for any message to finish. An
// overloaded provider costs one backoff and yields an empty batch with no
// error; any other receive failure is returned. With Slots, Poll first waits
// for a free worker and asks for no more messages than there are free
// workers.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	req := p.req
	reserved := 0
	if p.slots != nil {
		n, err := p.slots.Reserve(ctx, req.MaxBatch)
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n < req.MaxBatch {
			p.log.Debug().Int("slots", n).Int("max_batch", req.MaxBatch).Msg("receive limited by free workers")
		}
		reserved, req.MaxBatch = n, n
	}

	msgs, err := p.queue.Receive(ctx, req)
	if p.slots != nil {
		p.slots.Unreserve(max(reserved-len(msgs), 0))
	}
	if err != nil {
		if p.backoff.Handle(ctx, err) {
			metrics.PollsTotal.WithLabelValues("overloaded").Inc()
			return 0, nil
		}
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("poll: %w", err)
	}

	if len(msgs) == 0 {
		metrics.PollsTotal.WithLabelValues("empty").Inc()
		return 0, nil
	}

	metrics.PollsTotal.WithLabelValues("messages").Inc()
	metrics.MessagesReceivedTotal.Add(float64(len(msgs)))
	p.log.Debug().Int("count", len(msgs)).Msg("dispatching batch")

	return p.dispatcher.Dispatch(msgs), nil
}

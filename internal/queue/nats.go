package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// minFetchWait keeps a zero long-poll wait from turning Fetch into a busy loop.
// The wait is bounded by the caller's context, so cancelling it ends a Fetch
// early.
const minFetchWait = 100 * time.Millisecond

// NATSService implements Service on top of a JetStream durable pull consumer.
// The lease is the consumer's AckWait, fixed when the subscription is created;
// the token is the ack reply subject of the delivered message.
type NATSService struct {
	sub     *nats.Subscription
	ackWait time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewNATSService wraps a pull subscription whose consumer was created with
// the given AckWait.
func NewNATSService(sub *nats.Subscription, ackWait time.Duration, log zerolog.Logger) *NATSService {
	return &NATSService{
		sub:     sub,
		ackWait: ackWait,
		now:     time.Now,
		log:     log,
	}
}

// EnsureStream creates a work-queue stream bound to subject unless it exists.
func EnsureStream(js nats.JetStreamContext, stream, subject string, storage nats.StorageType) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("lookup JetStream stream %s: %w", stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Retention: nats.WorkQueuePolicy,
		Subjects:  []string{subject},
		Storage:   storage,
	})
	if err != nil {
		return fmt.Errorf("add JetStream stream %s: %w", stream, err)
	}
	return nil
}

// NewPullSubscription binds a durable pull consumer on subject with the
// given lease as AckWait.
func NewPullSubscription(js nats.JetStreamContext, subject, durable string, lease time.Duration) (*nats.Subscription, error) {
	sub, err := js.PullSubscribe(subject, durable,
		nats.AckExplicit(),
		nats.AckWait(lease),
		nats.InactiveThreshold(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s as %s: %w", subject, durable, err)
	}
	return sub, nil
}

// Receive fetches up to req.MaxBatch messages, waiting at most req.WaitTime
// or until ctx ends.
func (s *NATSService) Receive(ctx context.Context, req ReceiveRequest) ([]*Message, error) {
	start := s.now()
	wait := max(req.WaitTime, minFetchWait)

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	batch, err := s.sub.Fetch(max(req.MaxBatch, 1), nats.Context(fetchCtx))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
			return nil, nil
		case isNATSOverload(err):
			return nil, overloaded("receive", err)
		default:
			return nil, transportErr("receive", err)
		}
	}

	msgs := make([]*Message, 0, len(batch))
	for _, nm := range batch {
		m := &Message{
			ID:           nm.Reply,
			Body:         nm.Data,
			ReceiveCount: 1,
			Attributes:   make(map[string]string, len(nm.Header)+1),
			Lease:        NewLease(nm.Subject, nm.Reply, s.ackWait, start),
		}
		for k := range nm.Header {
			m.Attributes[k] = nm.Header.Get(k)
		}
		if meta, err := nm.Metadata(); err == nil {
			m.ID = strconv.FormatUint(meta.Sequence.Stream, 10)
			m.ReceiveCount = int(meta.NumDelivered)
			m.Attributes["stream"] = meta.Stream
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ExtendLease sends a work-in-progress ack, which restarts the AckWait
// timer. The requested duration cannot exceed what the consumer grants, so
// the returned lease always spans AckWait.
func (s *NATSService) ExtendLease(_ context.Context, lease Lease, _ time.Duration) (Lease, error) {
	now := s.now()
	if err := s.bind(lease).InProgress(); err != nil {
		return lease, transportErr("extend", err)
	}
	return NewLease(lease.QueueRef, lease.Token, s.ackWait, now), nil
}

// Acknowledge acks the message and waits for the server to confirm.
func (s *NATSService) Acknowledge(ctx context.Context, lease Lease) error {
	return transportErr("acknowledge", s.bind(lease).AckSync(nats.Context(ctx)))
}

// Close drains the subscription.
func (s *NATSService) Close() error {
	return s.sub.Drain()
}

// bind rebuilds an ackable message from a lease token. Acks only need the
// reply subject and the owning subscription.
func (s *NATSService) bind(lease Lease) *nats.Msg {
	return &nats.Msg{
		Subject: lease.QueueRef,
		Reply:   lease.Token,
		Sub:     s.sub,
	}
}

func isNATSOverload(err error) bool {
	if errors.Is(err, nats.ErrSlowConsumer) {
		return true
	}
	return strings.Contains(err.Error(), "Exceeded MaxWaiting")
}

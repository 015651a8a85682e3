package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisBusyPrefixes are error replies that mean the server is temporarily
// unable to serve the request.
var redisBusyPrefixes = []string{"LOADING", "BUSY", "TRYAGAIN"}

// RedisService implements Service on top of a Redis stream consumer group.
// An entry stays in the group's pending list until acknowledged. The lease is
// the entry's idle time: once it exceeds the lease duration, any consumer of
// the group may reclaim the entry on its next receive.
type RedisService struct {
	client   redis.UniversalClient
	stream   string
	group    string
	consumer string
	now      func() time.Time
	log      zerolog.Logger

	// claimCursor is where the next XAUTOCLAIM scan of the pending list
	// resumes; "0-0" starts over.
	mu          sync.Mutex
	claimCursor string
}

// NewRedisService creates a RedisService reading the stream of the given
// queue name as consumer of group.
func NewRedisService(client redis.UniversalClient, queueName, group, consumer string, log zerolog.Logger) *RedisService {
	return &RedisService{
		client:   client,
		stream:   streamKey(queueName),
		group:    group,
		consumer: consumer,
		now:      time.Now,
		log:      log,

		claimCursor: "0-0",
	}
}

// EnsureGroup creates the consumer group (and the stream). An existing group
// is not an error.
func (s *RedisService) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", s.group, s.stream, err)
	}
	return nil
}

// Receive first reclaims entries whose lease lapsed, then blocks for new ones
// with the remaining batch capacity. Each call continues the pending-list
// scan where the previous one stopped, so a lapsed entry behind many live
// ones is still reached.
func (s *RedisService) Receive(ctx context.Context, req ReceiveRequest) ([]*Message, error) {
	start := s.now()
	batch := max(req.MaxBatch, 1)

	s.mu.Lock()
	cursor := s.claimCursor
	s.mu.Unlock()

	reclaimed, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  req.LeaseDuration,
		Start:    cursor,
		Count:    int64(batch),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, s.classify("receive", err)
	}
	if next == "" {
		next = "0-0"
	}
	s.mu.Lock()
	s.claimCursor = next
	s.mu.Unlock()

	msgs := make([]*Message, 0, batch)
	for _, x := range reclaimed {
		m := s.toMessage(x, req.LeaseDuration, start)
		m.ReceiveCount = s.deliveryCount(ctx, x.ID)
		msgs = append(msgs, m)
	}
	if len(msgs) >= batch {
		return msgs, nil
	}

	// BLOCK 0 waits forever; a negative Block omits the option.
	block := req.WaitTime
	if block <= 0 {
		block = -1
	}
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    int64(batch - len(msgs)),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return msgs, nil
		}
		if len(msgs) > 0 {
			// Reclaimed entries already had their idle time reset.
			s.log.Warn().Err(err).Int("reclaimed", len(msgs)).Msg("xreadgroup failed, returning reclaimed entries")
			return msgs, nil
		}
		return nil, s.classify("receive", err)
	}

	for _, stream := range streams {
		for _, x := range stream.Messages {
			m := s.toMessage(x, req.LeaseDuration, start)
			m.ReceiveCount = 1
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// ExtendLease claims the entry again for this consumer, which resets its
// idle time. The entry ID stays the token.
func (s *RedisService) ExtendLease(ctx context.Context, lease Lease, d time.Duration) (Lease, error) {
	now := s.now()
	ids, err := s.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  0,
		Messages: []string{lease.Token},
	}).Result()
	if err != nil {
		return lease, s.classify("extend", err)
	}
	if len(ids) == 0 {
		return lease, transportErr("extend", fmt.Errorf("entry %s no longer pending", lease.Token))
	}
	return NewLease(lease.QueueRef, lease.Token, d, now), nil
}

// Acknowledge removes the entry from the pending list and from the stream.
func (s *RedisService) Acknowledge(ctx context.Context, lease Lease) error {
	pipe := s.client.TxPipeline()
	pipe.XAck(ctx, s.stream, s.group, lease.Token)
	pipe.XDel(ctx, s.stream, lease.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return s.classify("acknowledge", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) toMessage(x redis.XMessage, lease time.Duration, now time.Time) *Message {
	m := &Message{
		ID:         x.ID,
		Attributes: make(map[string]string, len(x.Values)),
		Lease:      NewLease(s.stream, x.ID, lease, now),
	}
	for k, v := range x.Values {
		str := fmt.Sprint(v)
		if k == "data" {
			m.Body = []byte(str)
			continue
		}
		m.Attributes[k] = str
	}
	return m
}

// deliveryCount reads the delivery counter of a pending entry. Failures fall
// back to 1 since the counter is informational.
func (s *RedisService) deliveryCount(ctx context.Context, id string) int {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		if err != nil {
			s.log.Debug().Err(err).Str("entry_id", id).Msg("xpending lookup failed")
		}
		return 1
	}
	return int(pending[0].RetryCount)
}

func (s *RedisService) classify(op string, err error) error {
	msg := err.Error()
	for _, p := range redisBusyPrefixes {
		if strings.HasPrefix(msg, p) {
			return overloaded(op, err)
		}
	}
	return transportErr(op, err)
}

// streamKey returns the Redis stream key for a queue name.
func streamKey(queueName string) string {
	return "queue:" + queueName
}

//go:build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func enqueue(t *testing.T, client *redis.Client, queueName, body string) string {
	t.Helper()
	id, err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: streamKey(queueName),
		Values: map[string]any{"data": body},
	}).Result()
	require.NoError(t, err)
	return id
}

func TestRedisService_Lifecycle(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	s := NewRedisService(client, "jobs", "workers", "w-1", zerolog.Nop())
	require.NoError(t, s.EnsureGroup(ctx))
	require.NoError(t, s.EnsureGroup(ctx), "existing group is not an error")

	id := enqueue(t, client, "jobs", "payload")

	msgs, err := s.Receive(ctx, ReceiveRequest{WaitTime: time.Second, MaxBatch: 10, LeaseDuration: time.Minute})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, []byte("payload"), msgs[0].Body)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	next, err := s.ExtendLease(ctx, msgs[0].Lease, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id, next.Token)

	require.NoError(t, s.Acknowledge(ctx, next))

	n, err := client.XLen(ctx, streamKey("jobs")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.ExtendLease(ctx, next, time.Minute)
	assert.True(t, IsTransport(err), "extending an acknowledged entry fails")
}

func TestRedisService_ReclaimsExpiredLease(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	first := NewRedisService(client, "jobs", "workers", "w-1", zerolog.Nop())
	second := NewRedisService(client, "jobs", "workers", "w-2", zerolog.Nop())
	require.NoError(t, first.EnsureGroup(ctx))

	id := enqueue(t, client, "jobs", "payload")
	req := ReceiveRequest{WaitTime: 100 * time.Millisecond, MaxBatch: 1, LeaseDuration: 300 * time.Millisecond}

	msgs, err := first.Receive(ctx, req)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msgs, err = second.Receive(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a live lease is not reclaimed")

	time.Sleep(400 * time.Millisecond)

	msgs, err = second.Receive(ctx, req)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, 2, msgs[0].ReceiveCount)
}

func TestRedisService_ReceiveWithoutWait(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	s := NewRedisService(client, "jobs", "workers", "w-1", zerolog.Nop())
	require.NoError(t, s.EnsureGroup(ctx))

	start := time.Now()
	msgs, err := s.Receive(ctx, ReceiveRequest{MaxBatch: 1, LeaseDuration: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisPublisher_RoundTrip(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	s := NewRedisService(client, "jobs", "workers", "w-1", zerolog.Nop())
	require.NoError(t, s.EnsureGroup(ctx))

	id, err := NewRedisPublisher(client, "jobs").Publish(ctx, []byte("published"), map[string]string{"tenant": "acme"})
	require.NoError(t, err)

	msgs, err := s.Receive(ctx, ReceiveRequest{WaitTime: time.Second, MaxBatch: 1, LeaseDuration: time.Minute})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, []byte("published"), msgs[0].Body)
	assert.Equal(t, "acme", msgs[0].Attribute("tenant"))
}

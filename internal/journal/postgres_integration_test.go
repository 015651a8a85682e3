//go:build integration

package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "journal",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://test:test@%s:%s/journal?sslmode=disable", host, port.Port())
}

func TestPostgresRecorder_Integration(t *testing.T) {
	ctx := context.Background()
	pool, err := NewPool(ctx, Config{URL: startPostgres(t), PoolMax: 2, ConnectTimeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	r := NewPostgresRecorder(pool)
	require.NoError(t, r.Migrate(ctx))
	require.NoError(t, r.Migrate(ctx))

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	first := Entry{
		MessageID: "msg-1", CorrelationID: "corr-1", QueueRef: "queue:jobs",
		State: "unsupervised", Cause: "handler still running", ReceiveCount: 1, Extensions: 9,
		StartedAt: started, FinishedAt: started.Add(5 * time.Minute),
	}
	second := Entry{
		MessageID: "msg-1", CorrelationID: "corr-2", QueueRef: "queue:jobs",
		State: "acknowledged", ReceiveCount: 2,
		StartedAt: started.Add(10 * time.Minute), FinishedAt: started.Add(11 * time.Minute),
	}
	require.NoError(t, r.Record(ctx, second))
	require.NoError(t, r.Record(ctx, first))

	// Recording the same supervision again updates it in place.
	first.Extensions = 10
	require.NoError(t, r.Record(ctx, first))

	got, err := r.ListByMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "corr-1", got[0].CorrelationID)
	assert.Equal(t, 10, got[0].Extensions)
	assert.Equal(t, "handler still running", got[0].Cause)
	assert.True(t, started.Equal(got[0].StartedAt))
	assert.Equal(t, "acknowledged", got[1].State)

	none, err := r.ListByMessage(ctx, "msg-404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

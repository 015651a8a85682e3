package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration for the journal.
type Config struct {
	// URL enables the journal when non-empty.
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS lease_outcomes (
	message_id     TEXT        NOT NULL,
	correlation_id TEXT        NOT NULL,
	queue_ref      TEXT        NOT NULL,
	state          TEXT        NOT NULL,
	cause          TEXT        NOT NULL DEFAULT '',
	receive_count  INTEGER     NOT NULL,
	extensions     INTEGER     NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (message_id, correlation_id)
)`

const upsertSQL = `
INSERT INTO lease_outcomes (
	message_id, correlation_id, queue_ref, state, cause,
	receive_count, extensions, started_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (message_id, correlation_id) DO UPDATE SET
	state = EXCLUDED.state,
	cause = EXCLUDED.cause,
	extensions = EXCLUDED.extensions,
	finished_at = EXCLUDED.finished_at`

// execer is the subset of pgxpool.Pool used by PostgresRecorder.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRecorder writes entries to the lease_outcomes table.
type PostgresRecorder struct {
	db execer
}

// NewPostgresRecorder wraps an existing pool or connection.
func NewPostgresRecorder(db execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// NewPool creates a database connection pool and verifies connectivity.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.PoolMin > 0 {
		poolCfg.MinConns = cfg.PoolMin
	}
	if cfg.PoolMax > 0 {
		poolCfg.MaxConns = cfg.PoolMax
	}
	poolCfg.MaxConnLifetime = 1 * time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates the lease_outcomes table if it does not exist.
func (r *PostgresRecorder) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create lease_outcomes: %w", err)
	}
	return nil
}

// Record upserts the entry keyed by message and correlation ID.
func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	_, err := r.db.Exec(ctx, upsertSQL,
		e.MessageID, e.CorrelationID, e.QueueRef, e.State, e.Cause,
		e.ReceiveCount, e.Extensions, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", e.MessageID, err)
	}
	return nil
}

// ListByMessage returns every recorded supervision of a message, oldest first.
func (r *PostgresRecorder) ListByMessage(ctx context.Context, messageID string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
SELECT message_id, correlation_id, queue_ref, state, cause,
       receive_count, extensions, started_at, finished_at
FROM lease_outcomes WHERE message_id = $1 ORDER BY started_at`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes for %s: %w", messageID, err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.MessageID, &e.CorrelationID, &e.QueueRef, &e.State, &e.Cause,
			&e.ReceiveCount, &e.Extensions, &e.StartedAt, &e.FinishedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan outcomes for %s: %w", messageID, err)
	}
	return entries, nil
}

// Package handler provides the message handlers the worker can be
// configured with.
package handler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/lease-worker/internal/msgstore"
	"github.com/sungwon/lease-worker/internal/queue"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

// Config selects the handler.
type Config struct {
	Type string `mapstructure:"type"` // stdout or archive
	// Delay is added to every invocation. Useful to exercise lease
	// extension against a real queue.
	Delay time.Duration   `mapstructure:"delay"`
	Store msgstore.Config `mapstructure:"store"`
}

// New builds the handler selected by cfg.Type.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (supervisor.Handler, error) {
	var h supervisor.Handler
	switch cfg.Type {
	case "stdout", "":
		h = NewStdout(os.Stdout)
	case "archive":
		store, err := msgstore.New(ctx, cfg.Store, log)
		if err != nil {
			return nil, fmt.Errorf("create archive store: %w", err)
		}
		h = NewArchive(store)
	default:
		return nil, fmt.Errorf("unknown handler type %q", cfg.Type)
	}

	if cfg.Delay > 0 {
		h = WithDelay(h, cfg.Delay)
	}
	return h, nil
}

// WithDelay runs h after sleeping d.
func WithDelay(h supervisor.Handler, d time.Duration) supervisor.Handler {
	return supervisor.HandlerFunc(func(ctx context.Context, msg *queue.Message) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		return h.Handle(ctx, msg)
	})
}

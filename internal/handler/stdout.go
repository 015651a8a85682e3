package handler

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/queue"
)

// Stdout writes one JSON line per message to w.
type Stdout struct {
	out zerolog.Logger
}

// NewStdout creates a Stdout handler.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{out: zerolog.New(w).With().Timestamp().Logger()}
}

// Handle writes msg and always succeeds.
func (h *Stdout) Handle(ctx context.Context, msg *queue.Message) error {
	ev := h.out.Log().
		Str("message_id", msg.ID).
		Int("receive_count", msg.ReceiveCount).
		Str("body", string(msg.Body))
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev = ev.Str("correlation_id", id)
	}
	if len(msg.Attributes) > 0 {
		ev = ev.Interface("attributes", msg.Attributes)
	}
	ev.Send()
	return nil
}

package handler

import (
	"context"
	"fmt"

	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/msgstore"
	"github.com/sungwon/lease-worker/internal/queue"
)

// Archive stores each message body under its message ID. Redelivered
// messages overwrite the earlier copy.
type Archive struct {
	store msgstore.Store
}

// NewArchive creates an Archive handler.
func NewArchive(store msgstore.Store) *Archive {
	return &Archive{store: store}
}

// Handle stores msg.Body.
func (h *Archive) Handle(ctx context.Context, msg *queue.Message) error {
	if err := h.store.Put(ctx, msg.ID, msg.Body); err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().Str("message_id", msg.ID).Int("bytes", len(msg.Body)).Msg("message archived")
	return nil
}

// Package journal records the terminal outcome of every supervised message.
package journal

import (
	"context"
	"time"
)

// Entry describes one finished supervision.
type Entry struct {
	MessageID     string
	CorrelationID string
	QueueRef      string
	State         string
	Cause         string
	ReceiveCount  int
	Extensions    int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Recorder persists entries. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards every entry.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }

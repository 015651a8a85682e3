package queue

import (
	"context"
	"time"
)

// ReceiveRequest bounds one long-poll receive call.
type ReceiveRequest struct {
	// WaitTime is the long-poll wait.
	WaitTime time.Duration
	// MaxBatch is the upper bound on messages returned.
	MaxBatch int
	// LeaseDuration is the initial lease granted to each returned message.
	LeaseDuration time.Duration
}

// Service is the remote at-least-once queue. Implementations must be safe
// for concurrent use by many supervisors.
type Service interface {
	// Receive blocks up to req.WaitTime and returns zero or more messages.
	// Throttling is reported with an error wrapping ErrOverloaded.
	Receive(ctx context.Context, req ReceiveRequest) ([]*Message, error)

	// ExtendLease extends lease by d and returns the lease that supersedes it.
	ExtendLease(ctx context.Context, lease Lease, d time.Duration) (Lease, error)

	// Acknowledge deletes the message the lease belongs to.
	Acknowledge(ctx context.Context, lease Lease) error
}

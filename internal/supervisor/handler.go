package supervisor

import (
	"context"

	"github.com/sungwon/lease-worker/internal/queue"
)

// Handler processes one message. A nil error is Success, anything else is
// Failure; a panic counts as Failure too. Handlers may run for any length of
// time and may be invoked more than once for the same message, so they must
// be idempotent.
type Handler interface {
	Handle(ctx context.Context, msg *queue.Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *queue.Message) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, msg *queue.Message) error {
	return fn(ctx, msg)
}

// Outcome is the result of one handler invocation.
type Outcome struct {
	Err error
}

// Succeeded reports whether the handler returned without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func (o Outcome) String() string {
	if o.Succeeded() {
		return "success"
	}
	return "failure"
}

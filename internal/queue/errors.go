package queue

import (
	"errors"
	"fmt"
)

// ErrOverloaded signals that the queue provider is throttling the caller.
// It is distinct from a transport failure.
var ErrOverloaded = errors.New("queue: provider overloaded")

// TransportError wraps a failed call to the queue provider.
type TransportError struct {
	// Op is the queue operation that failed: receive, extend or acknowledge.
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsOverloaded reports whether err carries the overload signal.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// overloaded wraps err so that both ErrOverloaded and the provider error
// remain matchable.
func overloaded(op string, err error) error {
	return fmt.Errorf("queue %s: %w: %w", op, ErrOverloaded, err)
}

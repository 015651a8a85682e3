package queue

import "time"

// Lease is a message's current delivery claim. The token authorizes extending
// or acknowledging this lease instance only; an extension supersedes it and an
// acknowledge consumes it.
type Lease struct {
	QueueRef string
	Token    string
	Duration time.Duration
	Expiry   time.Time
}

// NewLease returns a lease granted at now for the given duration.
func NewLease(queueRef, token string, d time.Duration, now time.Time) Lease {
	return Lease{
		QueueRef: queueRef,
		Token:    token,
		Duration: d,
		Expiry:   now.Add(d),
	}
}

// Remaining reports how long the lease stays valid after now. It never
// returns a negative duration.
func (l Lease) Remaining(now time.Time) time.Duration {
	if r := l.Expiry.Sub(now); r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the lease has lapsed at now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.Expiry)
}

// Message is a received work item together with its current lease.
// A Message is owned by the supervisor created for it and is never shared.
type Message struct {
	ID           string
	Body         []byte
	ReceiveCount int
	Attributes   map[string]string
	Lease        Lease
}

// Attribute returns a provider-supplied attribute or "" when absent.
func (m *Message) Attribute(name string) string {
	if m.Attributes == nil {
		return ""
	}
	return m.Attributes[name]
}

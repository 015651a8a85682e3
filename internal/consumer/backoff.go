package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/sungwon/lease-worker/internal/metrics"
	"github.com/sungwon/lease-worker/internal/queue"
)

// DefaultOverloadBackoff is the cooldown after the provider throttles a receive.
const DefaultOverloadBackoff = 60 * time.Second

// Backoff recovers from provider overload by sleeping a fixed duration.
// It keeps no state between calls.
type Backoff struct {
	duration time.Duration
	clock    clock.Clock
	log      zerolog.Logger
}

// NewBackoff creates a Backoff. A non-positive duration selects
// DefaultOverloadBackoff; a nil clock selects the wall clock.
func NewBackoff(d time.Duration, c clock.Clock, log zerolog.Logger) *Backoff {
	if d <= 0 {
		d = DefaultOverloadBackoff
	}
	if c == nil {
		c = clock.RealClock{}
	}
	return &Backoff{duration: d, clock: c, log: log}
}

// Handle reports whether err is an overload signal. If it is, Handle first
// sleeps the cooldown, returning early if ctx ends. Other errors return false
// without delay.
func (b *Backoff) Handle(ctx context.Context, err error) bool {
	if !queue.IsOverloaded(err) {
		return false
	}

	metrics.OverloadBackoffsTotal.Inc()
	b.log.Warn().Err(err).Dur("backoff", b.duration).Msg("queue overloaded, backing off")

	select {
	case <-ctx.Done():
	case <-b.clock.After(b.duration):
	}
	return true
}

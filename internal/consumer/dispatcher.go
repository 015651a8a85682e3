package consumer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sungwon/lease-worker/internal/queue"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

// Supervisor drives one message to a terminal state.
type Supervisor interface {
	Supervise(ctx context.Context, msg *queue.Message) supervisor.Result
}

// Dispatcher starts one supervisor goroutine per message. Supervisions
// outlive the poll round that dispatched them and are cancelled only by
// Abandon.
type Dispatcher struct {
	sup    Supervisor
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	active atomic.Int64
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher that hands messages to sup.
func NewDispatcher(sup Supervisor, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sup:    sup,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Dispatch starts a supervisor for every message and returns immediately
// with the number started.
func (d *Dispatcher) Dispatch(msgs []*queue.Message) int {
	for _, msg := range msgs {
		msg := msg
		d.active.Add(1)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.active.Add(-1)
			d.sup.Supervise(d.ctx, msg)
		}()
	}
	return len(msgs)
}

// Active returns the number of running supervisors.
func (d *Dispatcher) Active() int {
	return int(d.active.Load())
}

// Wait blocks until every dispatched supervisor has finished or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abandon stops every running supervision. Their handlers keep running and
// their messages are left to expire.
func (d *Dispatcher) Abandon() {
	if n := d.Active(); n > 0 {
		d.log.Warn().Int("active", n).Msg("abandoning in-flight supervisions")
	}
	d.cancel()
}

// Package pool runs handler invocations on a bounded set of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolFull is returned by Submit in reject mode when no slot is free.
	ErrPoolFull = errors.New("pool: no free worker")
	// ErrPanic wraps a panic recovered from a submitted function.
	ErrPanic = errors.New("pool: task panicked")
)

// Mode is the backpressure policy applied when every slot is busy.
type Mode string

const (
	// ModeQueue makes Submit wait for a free slot.
	ModeQueue Mode = "queue"
	// ModeReject makes Submit fail with ErrPoolFull.
	ModeReject Mode = "reject"
)

// Config holds pool sizing.
type Config struct {
	// Size is the maximum number of concurrently running tasks. Zero or
	// negative means unbounded.
	Size int  `mapstructure:"size"`
	Mode Mode `mapstructure:"mode"`
}

// Validate checks the configured mode.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeQueue, ModeReject, "":
		return nil
	default:
		return fmt.Errorf("unknown pool mode: %q", c.Mode)
	}
}

// Future is the pending result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has returned.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's result. It must only be called after Done is closed.
func (f *Future) Err() error {
	return f.err
}

// Wait blocks until the task returns or ctx ends.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool executes tasks on goroutines, at most Size at a time.
// It is safe for concurrent use.
type Pool struct {
	sem      *semaphore.Weighted
	mode     Mode
	inFlight atomic.Int64
	reserved atomic.Int64
	wg       sync.WaitGroup
}

// New creates a Pool from cfg.
func New(cfg Config) *Pool {
	p := &Pool{mode: cfg.Mode}
	if p.mode == "" {
		p.mode = ModeQueue
	}
	if cfg.Size > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.Size))
	}
	return p
}

// Submit starts fn on its own goroutine once a slot is available. A slot
// held by Reserve is used first, without waiting. The context passed to fn
// is ctx with cancellation removed: a running task is never cancelled by the
// pool or its submitter.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) error) (*Future, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	f := &Future{done: make(chan struct{})}
	p.inFlight.Add(1)
	p.wg.Add(1)

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		f.err = run(taskCtx, fn)
		p.release()
		close(f.done)
	}()

	return f, nil
}

// Reserve blocks until at least one slot is free, then holds up to n free
// slots for later Submit calls and returns how many it holds. An unbounded
// pool always grants n. Slots that end up unused must be given back with
// Unreserve.
func (p *Pool) Reserve(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if p.sem == nil {
		return n, ctx.Err()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("pool: wait for worker: %w", err)
	}
	got := 1
	for got < n && p.sem.TryAcquire(1) {
		got++
	}
	p.reserved.Add(int64(got))
	return got, nil
}

// Unreserve returns up to n reserved slots that no Submit has used.
func (p *Pool) Unreserve(n int) {
	if p.sem == nil {
		return
	}
	for i := 0; i < n; i++ {
		if !p.takeReserved() {
			return
		}
		p.sem.Release(1)
	}
}

// Reserved returns the number of slots held by Reserve and not yet used.
func (p *Pool) Reserved() int {
	return int(p.reserved.Load())
}

// InFlight returns the number of running tasks.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) acquire(ctx context.Context) error {
	if p.sem == nil {
		return ctx.Err()
	}
	if p.takeReserved() {
		return nil
	}
	if p.mode == ModeReject {
		if !p.sem.TryAcquire(1) {
			return ErrPoolFull
		}
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("pool: wait for worker: %w", err)
	}
	return nil
}

func (p *Pool) takeReserved() bool {
	for {
		r := p.reserved.Load()
		if r <= 0 {
			return false
		}
		if p.reserved.CompareAndSwap(r, r-1) {
			return true
		}
	}
}

func (p *Pool) release() {
	p.inFlight.Add(-1)
	if p.sem != nil {
		p.sem.Release(1)
	}
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Runner invokes Poll back to back until stopped.
type Runner struct {
	poller          *Poller
	dispatcher      *Dispatcher
	clock           clock.Clock
	errorPause      time.Duration
	shutdownTimeout time.Duration
	log             zerolog.Logger
	wg              sync.WaitGroup
	cancel          context.CancelFunc
}

// NewRunner creates a Runner. A nil clock selects the wall clock.
func NewRunner(p *Poller, d *Dispatcher, cfg Config, c clock.Clock, log zerolog.Logger) *Runner {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.RealClock{}
	}
	return &Runner{
		poller:          p,
		dispatcher:      d,
		clock:           c,
		errorPause:      cfg.ErrorPause,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log,
	}
}

// Start launches the poll loop in the background.
func (r *Runner) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.Info().Dur("shutdown_timeout", r.shutdownTimeout).Msg("consumer started")
	return nil
}

// Stop ends polling, then waits for in-flight supervisions to finish. If
// they outlast the shutdown timeout or ctx, they are abandoned and an error
// is returned.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	r.wg.Wait()

	ctx, cancel := context.WithTimeout(ctx, r.shutdownTimeout)
	defer cancel()

	if err := r.dispatcher.Wait(ctx); err != nil {
		r.dispatcher.Abandon()
		r.log.Warn().Int("active", r.dispatcher.Active()).Msg("consumer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s: %w", r.shutdownTimeout, err)
	}

	r.log.Info().Msg("consumer stopped gracefully")
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("poll loop stopping")
			return
		default:
		}

		if _, err := r.poller.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error().Err(err).Dur("pause", r.errorPause).Msg("poll failed")

			select {
			case <-ctx.Done():
				return
			case <-r.clock.After(r.errorPause):
			}
		}
	}
}

// Package supervisor owns a received message until it is acknowledged,
// abandoned, or left unsupervised.
//
// A Supervisor runs the handler on a worker pool and waits on it in
// fixed windows. Each window that ends with the handler still running
// extends the message's lease; a success acknowledges the message with
// the latest lease; a failure abandons it to the queue's own redelivery.
// The handler is never cancelled. When the window budget is spent the
// supervisor stops and the last lease is left to expire, which makes the
// message redeliverable.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/sungwon/lease-worker/internal/journal"
	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/metrics"
	"github.com/sungwon/lease-worker/internal/pool"
	"github.com/sungwon/lease-worker/internal/queue"
)

// ErrHandlerTimeout is the cause recorded when the last check window ends
// with the handler still running. The handler's outcome is unknown at
// that point, so it is not a handler failure.
var ErrHandlerTimeout = errors.New("supervisor: handler still running after last check window")

// Submitter starts a task and returns its pending result.
type Submitter interface {
	Submit(ctx context.Context, fn func(context.Context) error) (*pool.Future, error)
}

// Result describes a finished supervision.
type Result struct {
	MessageID     string
	CorrelationID string
	State         State
	// Cause is nil for Acknowledged. For Abandoned it is the handler error,
	// the submit error or the acknowledge TransportError. For Unsupervised it
	// is ErrHandlerTimeout, the extend TransportError or the context error.
	Cause      error
	Extensions int
	Duration   time.Duration
	// Lease is the latest lease held, the one acknowledged on success.
	Lease queue.Lease
}

// Supervisor supervises messages one at a time per Supervise call; a single
// Supervisor may serve many concurrent Supervise calls.
type Supervisor struct {
	queue    queue.Service
	pool     Submitter
	handler  Handler
	recorder journal.Recorder
	clock    clock.Clock
	cfg      Config
	log      zerolog.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces the wall clock used for check windows.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithRecorder sets the journal that receives every terminal transition.
func WithRecorder(r journal.Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// New creates a Supervisor. cfg is completed with defaults.
func New(svc queue.Service, p Submitter, h Handler, cfg Config, log zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		queue:    svc,
		pool:     p,
		handler:  h,
		recorder: journal.Nop{},
		clock:    clock.RealClock{},
		cfg:      cfg.WithDefaults(),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective supervision parameters.
func (s *Supervisor) Config() Config {
	return s.cfg
}

// Supervise runs the handler for msg and drives the message to a terminal
// state. It blocks until supervision ends, which may be before the handler
// returns. Cancelling ctx stops supervision (process shutdown) but never the
// handler. msg is not modified; the handler receives its own copy.
func (s *Supervisor) Supervise(ctx context.Context, msg *queue.Message) Result {
	start := s.clock.Now()
	res := Result{
		MessageID:     msg.ID,
		CorrelationID: logger.NewCorrelationID(),
		State:         Running,
		Lease:         msg.Lease,
	}
	log := s.log.With().
		Str("message_id", msg.ID).
		Str("correlation_id", res.CorrelationID).
		Int("receive_count", msg.ReceiveCount).
		Logger()

	metrics.ActiveSupervisors.Inc()
	defer metrics.ActiveSupervisors.Dec()

	handlerCtx := logger.WithCorrelationID(logger.WithLogger(ctx, log), res.CorrelationID)
	handlerMsg := *msg
	future, err := s.pool.Submit(handlerCtx, func(hctx context.Context) error {
		return s.handler.Handle(hctx, &handlerMsg)
	})
	if err != nil {
		log.Error().Err(err).Msg("could not start handler, abandoning message")
		res.State, res.Cause = Abandoned, fmt.Errorf("submit handler: %w", err)
		return s.finish(ctx, log, msg, res, start)
	}

	log.Debug().
		Time("lease_expiry", res.Lease.Expiry).
		Dur("check_interval", s.cfg.CheckInterval).
		Int("max_checks", s.cfg.MaxChecks).
		Msg("supervising message")

	for check := 1; ; check++ {
		timer := s.clock.NewTimer(s.cfg.CheckInterval)

		select {
		case <-future.Done():
			timer.Stop()
			metrics.HandlerDuration.Observe(s.clock.Since(start).Seconds())
			s.complete(ctx, log, Outcome{Err: future.Err()}, &res)
			return s.finish(ctx, log, msg, res, start)

		case <-ctx.Done():
			timer.Stop()
			log.Warn().Err(ctx.Err()).Msg("supervision interrupted, lease left to expire")
			res.State, res.Cause = Unsupervised, ctx.Err()
			s.watchLate(log, future)
			return s.finish(ctx, log, msg, res, start)

		case <-timer.C():
		}

		if check >= s.cfg.MaxChecks {
			log.Warn().
				Int("checks", check).
				Int("extensions", res.Extensions).
				Time("lease_expiry", res.Lease.Expiry).
				Msg("handler still running after last check window, stopping supervision")
			res.State, res.Cause = Unsupervised, ErrHandlerTimeout
			s.watchLate(log, future)
			return s.finish(ctx, log, msg, res, start)
		}

		next, err := s.queue.ExtendLease(ctx, res.Lease, s.cfg.LeaseDuration)
		if err != nil {
			metrics.LeaseExtensionsTotal.WithLabelValues("error").Inc()
			log.Error().Err(err).Msg("lease extension failed, stopping supervision")
			res.State, res.Cause = Unsupervised, err
			s.watchLate(log, future)
			return s.finish(ctx, log, msg, res, start)
		}

		metrics.LeaseExtensionsTotal.WithLabelValues("ok").Inc()
		res.Lease = next
		res.Extensions++
		log.Debug().
			Int("extensions", res.Extensions).
			Time("lease_expiry", next.Expiry).
			Msg("lease extended")
	}
}

// complete applies a handler outcome observed within a check window.
func (s *Supervisor) complete(ctx context.Context, log zerolog.Logger, out Outcome, res *Result) {
	if !out.Succeeded() {
		log.Error().Err(out.Err).Msg("handler failed, abandoning message")
		res.State, res.Cause = Abandoned, out.Err
		return
	}

	if err := s.queue.Acknowledge(ctx, res.Lease); err != nil {
		metrics.AcknowledgementsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("acknowledge failed, message will be redelivered")
		res.State, res.Cause = Abandoned, err
		return
	}

	metrics.AcknowledgementsTotal.WithLabelValues("ok").Inc()
	res.State = Acknowledged
}

// watchLate logs the outcome of a handler that outlived its supervision.
// The outcome is discarded: the last lease may already have lapsed and the
// message may be in another consumer's hands.
func (s *Supervisor) watchLate(log zerolog.Logger, future *pool.Future) {
	go func() {
		<-future.Done()
		out := Outcome{Err: future.Err()}
		metrics.LateOutcomesTotal.WithLabelValues(out.String()).Inc()
		log.Warn().
			Err(out.Err).
			Str("outcome", out.String()).
			Msg("handler finished after supervision stopped, outcome discarded")
	}()
}

func (s *Supervisor) finish(ctx context.Context, log zerolog.Logger, msg *queue.Message, res Result, start time.Time) Result {
	end := s.clock.Now()
	res.Duration = end.Sub(start)
	metrics.SupervisionsTotal.WithLabelValues(string(res.State)).Inc()

	ev := log.Info()
	if res.State != Acknowledged {
		ev = log.Warn().Err(res.Cause)
	}
	ev.Str("state", string(res.State)).
		Int("extensions", res.Extensions).
		Dur("duration", res.Duration).
		Msg("supervision finished")

	entry := journal.Entry{
		MessageID:     msg.ID,
		CorrelationID: res.CorrelationID,
		QueueRef:      msg.Lease.QueueRef,
		State:         string(res.State),
		ReceiveCount:  msg.ReceiveCount,
		Extensions:    res.Extensions,
		StartedAt:     start,
		FinishedAt:    end,
	}
	if res.Cause != nil {
		entry.Cause = res.Cause.Error()
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Msg("failed to record supervision outcome")
	}

	return res
}

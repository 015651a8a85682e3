package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sungwon/lease-worker/internal/api"
	"github.com/sungwon/lease-worker/internal/config"
	"github.com/sungwon/lease-worker/internal/consumer"
	"github.com/sungwon/lease-worker/internal/handler"
	"github.com/sungwon/lease-worker/internal/journal"
	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/pool"
	"github.com/sungwon/lease-worker/internal/queue"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

func runCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume messages until interrupted",
		Long: `Consume messages until SIGINT or SIGTERM.

Configuration is read from config.yaml in the --config directory. Every key
can be overridden with an environment variable prefixed LEASE_WORKER_, for
example LEASE_WORKER_QUEUE_TYPE=redis or LEASE_WORKER_LEASE_DURATION=5m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWorker(ctx, cfg, logger.NewFromConfig(cfg.Logging))
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "config", "Directory containing config.yaml")

	return cmd
}

// runWorker wires the worker from cfg and blocks until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("version", version).
		Str("queue_type", cfg.Queue.Type).
		Dur("lease", cfg.Lease.LeaseDuration).
		Dur("check_interval", cfg.Lease.CheckInterval).
		Int("max_checks", cfg.Lease.MaxChecks).
		Msg("starting lease worker")

	svc, closer, err := queue.New(ctx, cfg.Queue, cfg.Lease.LeaseDuration, log)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer closeQuietly(closer, log, "queue")

	h, err := handler.New(ctx, cfg.Handler, log)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	var (
		recorder journal.Recorder = journal.Nop{}
		outcomes api.OutcomeLister
		checks   = map[string]api.Check{}
	)
	if cfg.Journal.URL != "" {
		db, err := journal.NewPool(ctx, cfg.Journal)
		if err != nil {
			return fmt.Errorf("connect journal: %w", err)
		}
		defer db.Close()

		pg := journal.NewPostgresRecorder(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		recorder, outcomes = pg, pg
		checks["journal"] = db.Ping
		log.Info().Msg("outcome journal enabled")
	}

	workers := pool.New(cfg.Pool)
	sup := supervisor.New(svc, workers, h, cfg.Lease, log, supervisor.WithRecorder(recorder))
	dispatcher := consumer.NewDispatcher(sup, log)
	backoff := consumer.NewBackoff(cfg.Consumer.OverloadBackoff, nil, log)
	poller := consumer.NewPoller(svc, dispatcher, backoff, cfg.Queue.ReceiveRequest(sup.Config().LeaseDuration), log,
		consumer.WithSlots(workers))
	runner := consumer.NewRunner(poller, dispatcher, cfg.Consumer, nil, log)

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: api.NewRouter(api.Deps{
				Supervisors: dispatcher,
				Handlers:    workers,
				Lease:       sup.Config(),
				Outcomes:    outcomes,
				Checks:      checks,
				APIKeyHash:  cfg.HTTP.APIKeyHash,
			}, log),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("ops server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("ops server failed")
			}
		}()
	}

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	<-ctx.Done()
	log.Info().Msg("shutting down lease worker")

	stopErr := runner.Stop(context.Background())
	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("in-flight supervisions abandoned")
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("ops server shutdown")
		}
	}

	log.Info().Msg("lease worker stopped")
	return stopErr
}

func closeQuietly(c io.Closer, log zerolog.Logger, what string) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("component", what).Msg("close failed")
	}
}

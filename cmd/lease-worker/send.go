package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sungwon/lease-worker/internal/config"
	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/queue"
)

func sendCmd() *cobra.Command {
	var (
		configDir string
		body      string
		attrs     []string
		count     int
		rate      float64
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish test messages to the configured queue",
		Long: `Publish test messages to the configured queue.

The body is taken from --body, or from stdin when --body is "-". Each
--attr key=value becomes a message attribute (SQS message attribute,
Redis stream field or NATS header).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			payload := []byte(body)
			if body == "-" {
				if payload, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read body: %w", err)
				}
			}

			attributes, err := parseAttrs(attrs)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger.NewFromConfig(cfg.Logging)
			pub, closer, err := queue.NewPublisher(ctx, cfg.Queue, log)
			if err != nil {
				return fmt.Errorf("create publisher: %w", err)
			}
			defer closeQuietly(closer, log, "publisher")

			var interval time.Duration
			if rate > 0 {
				interval = time.Duration(float64(time.Second) / rate)
			}

			return publishN(ctx, pub, cmd.OutOrStdout(), payload, attributes, count, interval)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", "config", "Directory containing config.yaml")
	cmd.Flags().StringVar(&body, "body", "", `Message body, or "-" to read stdin`)
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "Message attribute as key=value (repeatable)")
	cmd.Flags().IntVar(&count, "count", 1, "Number of messages to send")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Messages per second, 0 for no limit")

	return cmd
}

// publishN publishes count copies of body, interval apart, and prints each
// message ID. It stops early when ctx ends.
func publishN(ctx context.Context, pub queue.Publisher, out io.Writer, body []byte, attrs map[string]string, count int, interval time.Duration) error {
	for i := 0; i < count; i++ {
		if i > 0 && interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("sent %d of %d messages: %w", i, count, ctx.Err())
			case <-t.C:
			}
		}
		id, err := pub.Publish(ctx, body, attrs)
		if err != nil {
			return fmt.Errorf("publish message %d: %w", i+1, err)
		}
		fmt.Fprintln(out, id)
	}
	return nil
}

func parseAttrs(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q, want key=value", kv)
		}
		out[k] = v
	}
	return out, nil
}

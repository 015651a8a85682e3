package queue

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// New creates the Service selected by cfg.Type. lease is the initial lease
// duration; the NATS backend needs it up front as the consumer's AckWait.
// The returned Closer releases the backend's connections.
func New(ctx context.Context, cfg Config, lease time.Duration, log zerolog.Logger) (Service, io.Closer, error) {
	log = log.With().Str("queue_type", cfg.Type).Logger()

	switch cfg.Type {
	case "sqs", "":
		client, err := newAWSSQSClient(ctx, cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		return NewSQSService(client, cfg.SQSQueueURL, log), nopCloser, nil

	case "redis":
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		svc := NewRedisService(client, cfg.RedisQueue, cfg.RedisGroup, cfg.RedisConsumer, log)
		if err := svc.EnsureGroup(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return svc, svc, nil

	case "nats":
		nc, js, err := connectJetStream(cfg)
		if err != nil {
			return nil, nil, err
		}
		sub, err := NewPullSubscription(js, cfg.NATSSubject, cfg.NATSDurable, lease)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		svc := NewNATSService(sub, lease, log)
		return svc, closerFunc(func() error {
			err := svc.Close()
			nc.Close()
			return err
		}), nil

	default:
		return nil, nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}

// NewPublisher creates the Publisher selected by cfg.Type.
func NewPublisher(ctx context.Context, cfg Config, log zerolog.Logger) (Publisher, io.Closer, error) {
	switch cfg.Type {
	case "sqs", "":
		client, err := newAWSSQSClient(ctx, cfg.SQSRegion, cfg.SQSEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqs client: %w", err)
		}
		return NewSQSPublisher(client, cfg.SQSQueueURL), nopCloser, nil

	case "redis":
		client, err := connectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisPublisher(client, cfg.RedisQueue), client, nil

	case "nats":
		nc, js, err := connectJetStream(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewNATSPublisher(js, cfg.NATSSubject), closerFunc(func() error {
			nc.Close()
			return nil
		}), nil

	default:
		return nil, nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}

func connectRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// connectJetStream connects to NATS and makes sure the work-queue stream
// exists.
func connectJetStream(cfg Config) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("lease-worker"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if err := EnsureStream(js, cfg.NATSStream, cfg.NATSSubject, nats.FileStorage); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

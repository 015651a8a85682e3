package queue

import "time"

// Config holds configuration for the queue backend.
type Config struct {
	// Type selects the queue backend: "sqs" (default), "redis" or "nats".
	Type string `mapstructure:"type"`
	// WaitTime is the long-poll wait per receive.
	WaitTime time.Duration `mapstructure:"wait_time"`
	// MaxBatch bounds the number of messages per receive.
	MaxBatch int `mapstructure:"max_batch"`

	// SQS-specific config
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
	SQSRegion   string `mapstructure:"sqs_region"`
	SQSEndpoint string `mapstructure:"sqs_endpoint"`

	// Redis-specific config
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisQueue    string `mapstructure:"redis_queue"`
	RedisGroup    string `mapstructure:"redis_group"`
	RedisConsumer string `mapstructure:"redis_consumer"`

	// NATS-specific config
	NATSURL     string `mapstructure:"nats_url"`
	NATSStream  string `mapstructure:"nats_stream"`
	NATSSubject string `mapstructure:"nats_subject"`
	NATSDurable string `mapstructure:"nats_durable"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:          "sqs",
		WaitTime:      20 * time.Second,
		MaxBatch:      10,
		SQSRegion:     "us-east-1",
		RedisAddr:     "localhost:6379",
		RedisQueue:    "default",
		RedisGroup:    "lease-worker",
		RedisConsumer: "lease-worker-1",
		NATSURL:       "nats://localhost:4222",
		NATSStream:    "LEASE_WORKER",
		NATSSubject:   "lease-worker",
		NATSDurable:   "lease-worker",
	}
}

// ReceiveRequest builds the per-round receive bounds for a lease duration.
func (c Config) ReceiveRequest(lease time.Duration) ReceiveRequest {
	return ReceiveRequest{
		WaitTime:      c.WaitTime,
		MaxBatch:      c.MaxBatch,
		LeaseDuration: lease,
	}
}

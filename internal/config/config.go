package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/lease-worker/internal/consumer"
	"github.com/sungwon/lease-worker/internal/handler"
	"github.com/sungwon/lease-worker/internal/journal"
	"github.com/sungwon/lease-worker/internal/logger"
	"github.com/sungwon/lease-worker/internal/pool"
	"github.com/sungwon/lease-worker/internal/queue"
	"github.com/sungwon/lease-worker/internal/supervisor"
)

// EnvPrefix prefixes every environment override, e.g.
// LEASE_WORKER_QUEUE_TYPE overrides queue.type.
const EnvPrefix = "LEASE_WORKER"

// Config holds all worker configuration.
type Config struct {
	Queue    queue.Config      `mapstructure:"queue"`
	Lease    supervisor.Config `mapstructure:"lease"`
	Pool     pool.Config       `mapstructure:"pool"`
	Consumer consumer.Config   `mapstructure:"consumer"`
	Handler  handler.Config    `mapstructure:"handler"`
	Journal  journal.Config    `mapstructure:"journal"`
	Logging  logger.Config     `mapstructure:"logging"`
	HTTP     HTTPConfig        `mapstructure:"http"`
}

// HTTPConfig holds the ops listener settings. An empty Addr disables it.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// APIKeyHash is the bcrypt hash of the key required on /api/v1.
	// Generate one with "lease-worker keygen".
	APIKeyHash string `mapstructure:"api_key_hash"`
}

// Load reads config.yaml from configPath, applies LEASE_WORKER_* environment
// overrides and fills every unset key with its default. A missing file is
// not an error; a malformed one is.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Lease = cfg.Lease.WithDefaults()

	return &cfg, nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file omits them.
func setDefaults(v *viper.Viper) {
	q := queue.DefaultConfig()
	v.SetDefault("queue.type", q.Type)
	v.SetDefault("queue.wait_time", q.WaitTime)
	v.SetDefault("queue.max_batch", q.MaxBatch)
	v.SetDefault("queue.sqs_queue_url", "")
	v.SetDefault("queue.sqs_region", q.SQSRegion)
	v.SetDefault("queue.sqs_endpoint", "")
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.redis_queue", q.RedisQueue)
	v.SetDefault("queue.redis_group", q.RedisGroup)
	v.SetDefault("queue.redis_consumer", q.RedisConsumer)
	v.SetDefault("queue.nats_url", q.NATSURL)
	v.SetDefault("queue.nats_stream", q.NATSStream)
	v.SetDefault("queue.nats_subject", q.NATSSubject)
	v.SetDefault("queue.nats_durable", q.NATSDurable)

	l := supervisor.DefaultConfig()
	v.SetDefault("lease.duration", l.LeaseDuration)
	// Zero is resolved against lease.duration after unmarshalling.
	v.SetDefault("lease.check_interval", time.Duration(0))
	v.SetDefault("lease.max_checks", l.MaxChecks)

	v.SetDefault("pool.size", 64)
	v.SetDefault("pool.mode", string(pool.ModeQueue))

	c := consumer.DefaultConfig()
	v.SetDefault("consumer.overload_backoff", c.OverloadBackoff)
	v.SetDefault("consumer.error_pause", c.ErrorPause)
	v.SetDefault("consumer.shutdown_timeout", c.ShutdownTimeout)

	v.SetDefault("handler.type", "stdout")
	v.SetDefault("handler.delay", time.Duration(0))
	v.SetDefault("handler.store.type", "local")
	v.SetDefault("handler.store.path", "./archive")
	v.SetDefault("handler.store.s3_bucket", "")
	v.SetDefault("handler.store.s3_prefix", "")
	v.SetDefault("handler.store.s3_endpoint", "")
	v.SetDefault("handler.store.s3_region", "")

	v.SetDefault("journal.url", "")
	v.SetDefault("journal.pool_min", 1)
	v.SetDefault("journal.pool_max", 4)
	v.SetDefault("journal.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("http.addr", ":9090")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.api_key_hash", "")
}

// Validate rejects configurations the worker cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Queue.Type {
	case "sqs":
		if c.Queue.SQSQueueURL == "" {
			errs = append(errs, errors.New("queue.sqs_queue_url is required for sqs"))
		}
		if c.Queue.MaxBatch > 10 {
			errs = append(errs, fmt.Errorf("queue.max_batch %d exceeds the sqs limit of 10", c.Queue.MaxBatch))
		}
		if c.Queue.WaitTime > 20*time.Second {
			errs = append(errs, fmt.Errorf("queue.wait_time %s exceeds the sqs limit of 20s", c.Queue.WaitTime))
		}
	case "redis", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown queue.type %q", c.Queue.Type))
	}
	if c.Queue.MaxBatch < 1 {
		errs = append(errs, fmt.Errorf("queue.max_batch must be at least 1, got %d", c.Queue.MaxBatch))
	}
	if c.Queue.WaitTime < 0 {
		errs = append(errs, errors.New("queue.wait_time must not be negative"))
	}

	if err := c.Lease.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lease: %w", err))
	}
	if err := c.Pool.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pool: %w", err))
	}

	switch c.Handler.Type {
	case "stdout", "archive":
	default:
		errs = append(errs, fmt.Errorf("unknown handler.type %q", c.Handler.Type))
	}

	return errors.Join(errs...)
}

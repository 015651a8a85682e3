// Package msgstore keeps copies of processed message bodies, keyed by
// message ID, on local disk or in S3.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned by Get for a key that was never stored.
	ErrNotFound = errors.New("msgstore: object not found")
	// ErrInvalidKey is returned for keys that are empty or could escape the
	// store's namespace.
	ErrInvalidKey = errors.New("msgstore: invalid key")
)

// Store is a flat key/value blob store. Put overwrites, so storing the same
// message twice is harmless.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a Store.
type Config struct {
	Type       string `mapstructure:"type"` // local or s3
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// New creates the Store selected by cfg.Type.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local", "":
		log.Debug().Str("path", cfg.Path).Msg("using local message store")
		return NewLocalStore(cfg.Path)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, errors.New("msgstore: s3 bucket is required")
		}
		log.Debug().Str("bucket", cfg.S3Bucket).Str("prefix", cfg.S3Prefix).Msg("using s3 message store")
		client, err := newS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("msgstore: unknown store type %q", cfg.Type)
	}
}

// ValidateKey rejects keys that are empty or contain path separators,
// parent references or control characters.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

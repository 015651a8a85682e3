package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the lease supervision parameters.
type Config struct {
	// LeaseDuration is the lease granted on receive and on every extension.
	LeaseDuration time.Duration `mapstructure:"duration"`
	// CheckInterval is how long each wait on the handler lasts before the
	// lease is extended. Defaults to a tenth of LeaseDuration.
	CheckInterval time.Duration `mapstructure:"check_interval"`
	// MaxChecks is the number of check windows a handler gets. A handler
	// still running after the last window is left unsupervised, so at most
	// MaxChecks-1 extensions are issued.
	MaxChecks int `mapstructure:"max_checks"`
}

// DefaultConfig returns the default supervision parameters.
func DefaultConfig() Config {
	return Config{
		LeaseDuration: 30 * time.Second,
		CheckInterval: 3 * time.Second,
		MaxChecks:     10,
	}
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = d.LeaseDuration
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = c.LeaseDuration / 10
	}
	if c.MaxChecks <= 0 {
		c.MaxChecks = d.MaxChecks
	}
	return c
}

// Validate checks that every window ends well before the lease it guards.
func (c Config) Validate() error {
	if c.LeaseDuration <= 0 {
		return errors.New("lease duration must be positive")
	}
	if c.CheckInterval <= 0 || c.CheckInterval >= c.LeaseDuration {
		return fmt.Errorf("check interval %s must be positive and shorter than lease duration %s",
			c.CheckInterval, c.LeaseDuration)
	}
	if c.MaxChecks < 1 {
		return fmt.Errorf("max checks must be at least 1, got %d", c.MaxChecks)
	}
	return nil
}

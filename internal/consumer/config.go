package consumer

import "time"

// Config tunes the receive loop.
type Config struct {
	OverloadBackoff time.Duration `mapstructure:"overload_backoff"`
	ErrorPause      time.Duration `mapstructure:"error_pause"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		OverloadBackoff: DefaultOverloadBackoff,
		ErrorPause:      time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OverloadBackoff <= 0 {
		c.OverloadBackoff = d.OverloadBackoff
	}
	if c.ErrorPause <= 0 {
		c.ErrorPause = d.ErrorPause
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

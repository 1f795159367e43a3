package scheduler

import (
	"fmt"
	"time"
)

const defaultMaxRetries = 3

// Config configures the scheduler.
type Config struct {
	TickInterval time.Duration `yaml:"tick_interval" mapstructure:"tick_interval"`
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	// DefaultMaxRetries applies to tasks scheduled without WithMaxRetries.
	// Nil means 3; an explicit 0 disables retries.
	DefaultMaxRetries *int `yaml:"default_max_retries" mapstructure:"default_max_retries"`
	// Retention is how long terminal tasks are kept before maintenance
	// cleanup removes them.
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.DefaultMaxRetries == nil {
		n := defaultMaxRetries
		c.DefaultMaxRetries = &n
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultMaxRetries != nil && *c.DefaultMaxRetries < 0 {
		return fmt.Errorf("scheduler.default_max_retries must be >= 0 (got: %d)", *c.DefaultMaxRetries)
	}
	if c.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be >= 1 (got: %d)", c.Workers)
	}
	return nil
}

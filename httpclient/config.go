package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/whisper-subtitle/resilience"
)

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is prepended to every request path.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Auth is applied unless the request carries its own.
	Auth *AuthConfig `yaml:"-" mapstructure:"-"`

	// Retry wraps Do in resilience.Retry. Nil disables retries.
	Retry *resilience.RetryConfig `yaml:"-" mapstructure:"-"`

	// CircuitBreaker guards each attempt. Nil disables it.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"-" mapstructure:"-"`
}

func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	return nil
}

// DefaultRetryConfig retries classified retryable errors three times.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryIf = IsRetryable
	return &cfg
}

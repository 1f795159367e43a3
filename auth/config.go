package auth

import (
	"fmt"
	"time"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Config configures API authentication.
type Config struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret   string        `yaml:"secret" mapstructure:"secret"`
	Issuer   string        `yaml:"issuer" mapstructure:"issuer"`
	Audience string        `yaml:"audience" mapstructure:"audience"`
	TokenTTL time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "whisper-subtitle"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("auth.secret must be at least %d bytes when auth is enabled", MinSecretLength)
	}
	return nil
}

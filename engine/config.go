package engine

import (
	"fmt"
	"time"

	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Config configures the engine registry.
type Config struct {
	// Default is the engine used when a request names none.
	Default       string        `yaml:"default" mapstructure:"default"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	OutputDir     string        `yaml:"output_dir" mapstructure:"output_dir"`
	OutputFormat  string        `yaml:"output_format" mapstructure:"output_format"`
	// Preload names engines initialized in the background at startup.
	Preload []string `yaml:"preload" mapstructure:"preload"`
	// Backends holds per-engine settings keyed by engine name.
	Backends map[string]map[string]any `yaml:"backends" mapstructure:"backends"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.Default == "" {
		c.Default = "whispercpp"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = string(subtitle.FormatSRT)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("engines.max_concurrent must be at least 1 (got: %d)", c.MaxConcurrent)
	}
	if _, err := subtitle.ParseFormat(c.OutputFormat); err != nil {
		return fmt.Errorf("engines.output_format: %w", err)
	}
	return nil
}

package monitor

import (
	"fmt"
	"time"
)

// Config configures channel monitoring.
type Config struct {
	DownloadDir     string        `yaml:"download_dir" mapstructure:"download_dir"`
	CheckInterval   time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	TranscribeDelay time.Duration `yaml:"transcribe_delay" mapstructure:"transcribe_delay"`
	// MaxVideos is how many recent uploads each check inspects.
	MaxVideos int `yaml:"max_videos" mapstructure:"max_videos"`
	// Reactive schedules transcription when the download finishes instead
	// of at a fixed delay after discovery.
	Reactive      bool          `yaml:"reactive" mapstructure:"reactive"`
	FileRetention time.Duration `yaml:"file_retention" mapstructure:"file_retention"`
	// TaskRetries is the retry budget of download and transcription tasks.
	// Nil means 3; an explicit 0 runs each task once.
	TaskRetries *int `yaml:"task_retries" mapstructure:"task_retries"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "./downloads"
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	if c.TranscribeDelay <= 0 {
		c.TranscribeDelay = 5 * time.Minute
	}
	if c.MaxVideos <= 0 {
		c.MaxVideos = 10
	}
	if c.FileRetention <= 0 {
		c.FileRetention = 30 * 24 * time.Hour
	}
	if c.TaskRetries == nil {
		n := 3
		c.TaskRetries = &n
	}
}

// Validate checks the options after defaults.
func (c *Config) Validate() error {
	if c.CheckInterval < time.Minute {
		return fmt.Errorf("monitor: check_interval must be at least 1m, got %s", c.CheckInterval)
	}
	if c.TaskRetries != nil && *c.TaskRetries < 0 {
		return fmt.Errorf("monitor: task_retries must be >= 0, got %d", *c.TaskRetries)
	}
	if c.MaxVideos > 100 {
		return fmt.Errorf("monitor: max_videos must be <= 100, got %d", c.MaxVideos)
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/kbukum/whisper-subtitle/api"
	"github.com/kbukum/whisper-subtitle/auth"
	"github.com/kbukum/whisper-subtitle/config"
	"github.com/kbukum/whisper-subtitle/database"
	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/kafka"
	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/redis"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/server"
	"github.com/kbukum/whisper-subtitle/storage"
	"github.com/kbukum/whisper-subtitle/version"
)

const serviceName = "whisper-subtitle"

// AppConfig is the full service configuration.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config        `yaml:"server" mapstructure:"server"`
	API           api.Config           `yaml:"api" mapstructure:"api"`
	Engines       engine.Config        `yaml:"engines" mapstructure:"engines"`
	Scheduler     scheduler.Config     `yaml:"scheduler" mapstructure:"scheduler"`
	Monitor       monitor.Config       `yaml:"monitor" mapstructure:"monitor"`
	Downloader    downloader.Config    `yaml:"downloader" mapstructure:"downloader"`
	Redis         redis.Config         `yaml:"redis" mapstructure:"redis"`
	Database      database.Config      `yaml:"database" mapstructure:"database"`
	Kafka         kafka.Config         `yaml:"kafka" mapstructure:"kafka"`
	Storage       storage.Config       `yaml:"storage" mapstructure:"storage"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Auth          auth.Config          `yaml:"auth" mapstructure:"auth"`
}

// ApplyDefaults fills every section.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	if c.Version == "" {
		c.Version = version.Short()
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.API.ApplyDefaults()
	c.Engines.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Monitor.ApplyDefaults()
	c.Downloader.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Observability.ApplyDefaults()
	c.Auth.ApplyDefaults()
}

// Validate checks every section.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"server", &c.Server},
		{"engines", &c.Engines},
		{"scheduler", &c.Scheduler},
		{"monitor", &c.Monitor},
		{"downloader", &c.Downloader},
		{"redis", &c.Redis},
		{"database", &c.Database},
		{"kafka", &c.Kafka},
		{"storage", &c.Storage},
		{"observability", &c.Observability},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// loadConfig reads config.yml, .env and the environment. An explicit path
// must exist.
func loadConfig(path string) (*AppConfig, error) {
	var opts []config.LoaderOption
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg := &AppConfig{}
	if err := config.LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

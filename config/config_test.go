package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type schedulerSection struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Workers      int           `mapstructure:"workers"`
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Scheduler     schedulerSection `mapstructure:"scheduler"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: whisper-subtitle
environment: staging
scheduler:
  tick_interval: 2s
  workers: 4
`)

	var cfg testConfig
	if err := LoadConfig("whisper-subtitle", &cfg, WithConfigFile(path), WithEnvFile(filepath.Join(dir, "none"))); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "whisper-subtitle" || cfg.Environment != "staging" {
		t.Errorf("service fields = %+v", cfg.ServiceConfig)
	}
	if cfg.Scheduler.TickInterval != 2*time.Second || cfg.Scheduler.Workers != 4 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "name: svc\nscheduler:\n  workers: 4\n")
	t.Setenv("SCHEDULER_WORKERS", "16")
	t.Setenv("LOGGING_LEVEL", "warn")

	var cfg testConfig
	if err := LoadConfig("svc", &cfg, WithConfigFile(path), WithEnvFile(filepath.Join(dir, "none"))); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Scheduler.Workers != 16 {
		t.Errorf("workers = %d, want env override 16", cfg.Scheduler.Workers)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
}

func TestLoadConfigEnvPrefix(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WHISPER_SCHEDULER_WORKERS", "3")

	var cfg testConfig
	err := LoadConfig("svc", &cfg,
		WithConfigFile(filepath.Join(dir, "missing.yml")),
		WithEnvFile(filepath.Join(dir, "none")),
		WithEnvPrefix("WHISPER"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Scheduler.Workers != 3 {
		t.Errorf("workers = %d", cfg.Scheduler.Workers)
	}
}

func TestLoadConfigMissingFileIsNotAnError(t *testing.T) {
	var cfg testConfig
	if err := LoadConfig("nonexistent", &cfg, WithConfigFile("/nonexistent/config.yml")); err != nil {
		t.Fatalf("expected success with missing file, got %v", err)
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestResolverSearchOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/whisper-subtitle/config.yml": true,
		"./config/config.yml":               true,
		"./.env":                            true,
		"./cmd/whisper-subtitle/.env":       true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles("whisper-subtitle", LoaderConfig{})
	if files.ConfigFile != "./cmd/whisper-subtitle/config.yml" {
		t.Errorf("config file = %q", files.ConfigFile)
	}
	if files.EnvFile != "./cmd/whisper-subtitle/.env" {
		t.Errorf("env file = %q", files.EnvFile)
	}
}

func TestResolverExplicitPathsWin(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./config.yml": true}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles("svc", LoaderConfig{ConfigFile: "/etc/svc.yml"})
	if files.ConfigFile != "/etc/svc.yml" {
		t.Errorf("config file = %q", files.ConfigFile)
	}
}

func TestServiceConfigDefaultsAndValidate(t *testing.T) {
	cfg := ServiceConfig{Name: "svc"}
	cfg.ApplyDefaults()
	if cfg.Environment != "development" || !cfg.Debug {
		t.Errorf("expected development+debug, got %+v", cfg)
	}
	if cfg.Logging.ServiceName != "svc" || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	prod := ServiceConfig{Name: "svc", Environment: "production"}
	prod.ApplyDefaults()
	if prod.Debug || prod.Logging.Format != "json" {
		t.Errorf("production defaults = %+v", prod)
	}

	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"bad environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tc.errMsg, err)
			}
		})
	}
}

func TestStructKeys(t *testing.T) {
	keys := structKeys(reflectTypeOf(&testConfig{}), "")
	want := map[string]bool{"name": true, "logging.level": true, "scheduler.workers": true, "scheduler.tick_interval": true}
	got := map[string]bool{}
	for _, k := range keys {
		got[k] = true
	}
	for k := range want {
		if !got[k] {
			t.Errorf("missing key %q in %v", k, keys)
		}
	}
}

func reflectTypeOf(v interface{}) reflect.Type { return reflect.TypeOf(v) }

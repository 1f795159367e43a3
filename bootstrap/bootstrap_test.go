package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/whisper-subtitle/component"
	"github.com/kbukum/whisper-subtitle/config"
	"github.com/kbukum/whisper-subtitle/logger"
)

type testConfig struct {
	config.ServiceConfig
}

type mockComponent struct {
	name     string
	startErr error
	stopErr  error
	status   component.HealthStatus
	started  bool
	stopped  bool
	order    *[]string
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Start(context.Context) error {
	m.started = true
	if m.order != nil {
		*m.order = append(*m.order, "start:"+m.name)
	}
	return m.startErr
}

func (m *mockComponent) Stop(context.Context) error {
	m.stopped = true
	if m.order != nil {
		*m.order = append(*m.order, "stop:"+m.name)
	}
	return m.stopErr
}

func (m *mockComponent) Health(context.Context) component.Health {
	status := m.status
	if status == "" {
		status = component.StatusHealthy
	}
	return component.Health{Name: m.name, Status: status}
}

func newTestApp(t *testing.T, opts ...Option) *App[*testConfig] {
	t.Helper()
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Name: "whisper-subtitle", Version: "1.0.0"}}
	opts = append([]Option{WithLogger(logger.Nop()), WithGracefulTimeout(time.Second)}, opts...)
	app, err := NewApp(cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestNewAppAppliesDefaults(t *testing.T) {
	app := newTestApp(t)
	if app.Name != "whisper-subtitle" || app.Version != "1.0.0" {
		t.Errorf("identity = %s %s", app.Name, app.Version)
	}
	if app.Cfg.Environment != "development" {
		t.Errorf("environment = %q", app.Cfg.Environment)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	_, err := NewApp(&testConfig{}, WithLogger(logger.Nop()))
	if err == nil || !strings.Contains(err.Error(), "config validation") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunTaskLifecycleOrder(t *testing.T) {
	var order []string
	app := newTestApp(t)
	for _, name := range []string{"database", "scheduler"} {
		if err := app.RegisterComponent(&mockComponent{name: name, order: &order}); err != nil {
			t.Fatal(err)
		}
	}
	app.OnStart(func(context.Context) error { order = append(order, "onStart"); return nil })
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		order = append(order, "configure:"+a.Name)
		return nil
	})
	app.OnReady(func(context.Context) error { order = append(order, "onReady"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "onStop:first"); return nil })
	app.OnStop(func(context.Context) error { order = append(order, "onStop:second"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		order = append(order, "task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	want := []string{
		"start:database", "start:scheduler", "onStart", "configure:whisper-subtitle",
		"onReady", "task", "onStop:second", "onStop:first", "stop:scheduler", "stop:database",
	}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order =\n%v\nwant\n%v", order, want)
	}
}

func TestRunTaskReturnsTaskError(t *testing.T) {
	app := newTestApp(t)
	stopFails := &mockComponent{name: "kafka", stopErr: errors.New("flush failed")}
	_ = app.RegisterComponent(stopFails)
	taskErr := errors.New("transcription failed")
	if err := app.RunTask(context.Background(), func(context.Context) error { return taskErr }); !errors.Is(err, taskErr) {
		t.Fatalf("err = %v", err)
	}
	if !stopFails.stopped {
		t.Error("component not stopped")
	}
}

func TestStartFailureUnwindsStartedComponents(t *testing.T) {
	app := newTestApp(t)
	first := &mockComponent{name: "database"}
	second := &mockComponent{name: "redis", startErr: errors.New("connection refused")}
	_ = app.RegisterComponent(first)
	_ = app.RegisterComponent(second)

	ran := false
	err := app.RunTask(context.Background(), func(context.Context) error { ran = true; return nil })
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v", err)
	}
	if ran {
		t.Error("task ran after failed startup")
	}
	if !first.stopped {
		t.Error("started component not stopped")
	}
}

func TestConfigureErrorAborts(t *testing.T) {
	app := newTestApp(t)
	app.OnConfigure(func(context.Context, *App[*testConfig]) error { return errors.New("bad routes") })
	err := app.RunTask(context.Background(), func(context.Context) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "configuration failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)
	c := &mockComponent{name: "http-server"}
	_ = app.RegisterComponent(c)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if !c.stopped {
		t.Error("component not stopped")
	}
}

func TestReadyCheck(t *testing.T) {
	app := newTestApp(t)
	_ = app.RegisterComponent(&mockComponent{name: "database"})
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Fatalf("ReadyCheck: %v", err)
	}
	_ = app.RegisterComponent(&mockComponent{name: "redis", status: component.StatusDegraded})
	if err := app.ReadyCheck(context.Background()); err == nil || !strings.Contains(err.Error(), "redis=degraded") {
		t.Fatalf("err = %v", err)
	}
}

func TestSummaryOutput(t *testing.T) {
	var buf bytes.Buffer
	app := newTestApp(t, WithSummaryOutput(&buf))
	_ = app.RegisterComponent(&mockComponent{name: "scheduler"})
	app.Summary.TrackRoute("GET", "/health")
	app.Summary.Note("engine %s: %s", "whispercpp", "ready")

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"whisper-subtitle 1.0.0 started", "[ok] scheduler", "1/1 healthy", "engine whispercpp: ready", "GET    /health"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

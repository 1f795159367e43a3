package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line, got nothing")
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, line)
	}
	return m
}

func TestNewWithWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", "svc")

	l.Info("hello", Fields("task_id", "t1", "attempt", 2))

	m := decodeLine(t, &buf)
	if m["message"] != "hello" {
		t.Errorf("message = %v", m["message"])
	}
	if m["task_id"] != "t1" {
		t.Errorf("task_id = %v", m["task_id"])
	}
	if m["service"] != "svc" {
		t.Errorf("service = %v", m["service"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "svc")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestWithComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", "svc").WithComponent("scheduler")
	l.Error("boom", map[string]interface{}{"cause": errors.New("disk full")})

	m := decodeLine(t, &buf)
	if m[FieldComponent] != "scheduler" {
		t.Errorf("component = %v", m[FieldComponent])
	}
	if m["cause"] != "disk full" {
		t.Errorf("error values should be rendered as strings, got %v", m["cause"])
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")

	NewWithWriter(&buf, "info", "svc").WithContext(ctx).Info("x")

	m := decodeLine(t, &buf)
	if m[FieldRequestID] != "req-1" || m[FieldTraceID] != "trace-1" {
		t.Errorf("context ids missing: %v", m)
	}
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != FormatConsole || cfg.Output != "stdout" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid level")
	}
	cfg.Level = "info"
	cfg.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestFieldsOddArgs(t *testing.T) {
	m := Fields("a", 1, "b")
	if len(m) != 1 || m["a"] != 1 {
		t.Errorf("Fields = %v", m)
	}
}

func TestGetFallsBackToComponent(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(NewWithWriter(&buf, "info", "svc"))
	defer SetGlobalLogger(nil)

	Get("unregistered").Info("x")
	m := decodeLine(t, &buf)
	if m[FieldComponent] != "unregistered" {
		t.Errorf("component = %v", m[FieldComponent])
	}

	custom := Nop()
	Register("custom", custom)
	if Get("custom") != custom {
		t.Error("expected registered logger")
	}
}

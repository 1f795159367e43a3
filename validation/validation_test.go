package validation

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/whisper-subtitle/errors"
)

func TestValidatorCollectsFields(t *testing.T) {
	v := New()
	v.Required("name", "  ").
		MaxLength("title", "abcdef", 3).
		Range("limit", 5000, 0, 1000).
		OneOf("status", "done", []string{"pending", "completed"}).
		Pattern("id", "has space", regexp.MustCompile(`^\S+$`))

	if len(v.Errors()) != 5 {
		t.Fatalf("errors = %+v", v.Errors())
	}
	err := v.Validate()
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if fields, ok := appErr.Details["fields"].([]FieldError); !ok || len(fields) != 5 {
		t.Errorf("details = %+v", appErr.Details)
	}
}

func TestValidatorPasses(t *testing.T) {
	v := New()
	v.Required("name", "x").Range("limit", 10, 0, 100).OneOf("status", "", []string{"a"})
	if err := v.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidatorParsers(t *testing.T) {
	v := New()
	if got := v.Int("limit", "", 50); got != 50 {
		t.Errorf("Int default = %d", got)
	}
	if got := v.Int("limit", "20", 50); got != 20 {
		t.Errorf("Int = %d", got)
	}
	if got := v.Duration("older_than", "7d", time.Hour); got != 7*24*time.Hour {
		t.Errorf("Duration = %s", got)
	}
	if v.HasErrors() {
		t.Fatalf("unexpected errors %+v", v.Errors())
	}

	v.Int("limit", "ten", 0)
	v.Duration("older_than", "-1h", 0)
	if len(v.Errors()) != 2 {
		t.Errorf("errors = %+v", v.Errors())
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30d", 30 * 24 * time.Hour, true},
		{"90m", 90 * time.Minute, true},
		{"1h30m", 90 * time.Minute, true},
		{"xd", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseDuration(%q) = %s, %v", tt.in, got, err)
		}
	}
}

type request struct {
	ChannelID    string `json:"channel_id" validate:"required,channel_id"`
	OutputFormat string `json:"output_format" validate:"omitempty,subtitle_format"`
	MaxVideos    int    `validate:"omitempty,min=1,max=100"`
}

func TestValidateStruct(t *testing.T) {
	if err := Validate(request{ChannelID: "veritasium", OutputFormat: "VTT"}); err != nil {
		t.Errorf("valid request: %v", err)
	}

	err := Validate(request{ChannelID: "bad id!", OutputFormat: "docx", MaxVideos: 500})
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"channel_id", "output_format", "max_videos"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}

	if err := Validate(request{}); err == nil || !strings.Contains(err.Error(), "channel_id: is required") {
		t.Errorf("empty request: %v", err)
	}
}

func TestToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{"MaxVideos": "max_videos", "OutputDir": "output_dir", "name": "name"} {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}

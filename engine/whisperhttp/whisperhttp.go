// Package whisperhttp transcribes through a faster-whisper HTTP sidecar.
package whisperhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/engine/fasterwhisper"
	"github.com/kbukum/whisper-subtitle/httpclient"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/resilience"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

const (
	// Name is the registry name of this backend.
	Name = "whisperhttp"

	defaultModel   = "base"
	defaultTimeout = 10 * time.Minute
)

// Config holds configuration for the sidecar client.
type Config struct {
	URL         string        `json:"url" yaml:"url"`
	Model       string        `json:"model" yaml:"model"`
	Device      string        `json:"device,omitempty" yaml:"device"`
	ComputeType string        `json:"compute_type,omitempty" yaml:"compute_type"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	// Retry defaults to two attempts one second apart.
	Retry resilience.RetryConfig `json:"-" yaml:"-"`
}

// Backend implements engine.Backend against the sidecar's /transcribe.
type Backend struct {
	cfg    Config
	client *httpclient.Client
}

// New creates a sidecar client. An empty URL leaves the backend unavailable.
func New(cfg Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Second,
		}
	}
	cfg.Retry.RetryIf = httpclient.IsRetryable
	retry := cfg.Retry
	log := logger.WithComponent("engine").WithFields(logger.Fields(logger.FieldEngine, Name))
	client, _ := httpclient.New(httpclient.Config{
		BaseURL: strings.TrimRight(cfg.URL, "/"),
		Timeout: cfg.Timeout,
		Retry:   &retry,
		CircuitBreaker: &resilience.CircuitBreakerConfig{
			Name:        Name,
			MaxFailures: 5,
			Timeout:     time.Minute,
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("circuit breaker state changed", logger.Fields("from", from.String(), "to", to.String()))
			},
		},
	})
	return &Backend{cfg: cfg, client: client}
}

// Factory builds backends from registry settings.
func Factory() provider.Factory[engine.Backend] {
	return func(cfg map[string]any) (engine.Backend, error) {
		s := engine.Settings(cfg)
		return New(Config{
			URL:         s.String("url", ""),
			Model:       s.String("model", ""),
			Device:      s.String("device", ""),
			ComputeType: s.String("compute_type", ""),
			Timeout:     s.Duration("timeout", 0),
		}), nil
	}
}

// Name returns "whisperhttp".
func (p *Backend) Name() string { return Name }

// IsAvailable reports whether a sidecar URL is configured and the circuit
// is not open.
func (p *Backend) IsAvailable(context.Context) bool {
	return p.cfg.URL != "" && p.client.CircuitState() != resilience.StateOpen
}

// AvailableModels lists the faster-whisper model sizes the server loads.
func (p *Backend) AvailableModels() []string { return fasterwhisper.Models }

// SupportedLanguages returns the Whisper language codes.
func (p *Backend) SupportedLanguages() []string { return engine.WhisperLanguages }

// Config reports the sidecar settings and the circuit breaker state.
func (p *Backend) Config() map[string]any {
	return map[string]any{
		"url":          p.cfg.URL,
		"model":        p.cfg.Model,
		"device":       p.cfg.Device,
		"compute_type": p.cfg.ComputeType,
		"timeout":      p.cfg.Timeout.String(),
		"circuit":      p.client.CircuitState().String(),
	}
}

// Transcribe sends the audio file to the sidecar.
func (p *Backend) Transcribe(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if p.cfg.URL == "" {
		return nil, fmt.Errorf("whisper sidecar url is not configured")
	}
	audioData, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	result, err := p.post(ctx, req, model, audioData)
	if err != nil {
		return nil, err
	}

	res := engine.Succeeded(result.Text, result.segments(), result.Language)
	res.Model = model
	return res, nil
}

func (p *Backend) post(ctx context.Context, req engine.Request, model string, audio []byte) (*whisperResponse, error) {
	fields := map[string]string{"model": model}
	if !engine.IsAuto(req.Language) {
		fields["language"] = req.Language
	}
	if p.cfg.Device != "" {
		fields["device"] = p.cfg.Device
	}
	if p.cfg.ComputeType != "" {
		fields["compute_type"] = p.cfg.ComputeType
	}

	resp, err := p.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/transcribe",
		Body: &httpclient.MultipartBody{
			Fields: fields,
			Files:  []httpclient.FileField{{FieldName: "audio", FileName: filepath.Base(req.AudioPath), Data: audio}},
		},
	})
	if err != nil {
		if he, ok := httpclient.AsError(err); ok && he.StatusCode > 0 {
			return nil, fmt.Errorf("whisper error (status %d): %s", he.StatusCode, strings.TrimSpace(string(he.Body)))
		}
		return nil, fmt.Errorf("whisper request: %w", err)
	}

	var result whisperResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	return &result, nil
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
}

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r *whisperResponse) segments() []subtitle.Segment {
	segments := make([]subtitle.Segment, len(r.Segments))
	for i, seg := range r.Segments {
		segments[i] = subtitle.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	return segments
}

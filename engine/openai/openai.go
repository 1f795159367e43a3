// Package openai transcribes through the OpenAI audio transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/httpclient"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/resilience"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

const (
	// Name is the registry name of this backend.
	Name = "openai"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
	defaultTimeout = 10 * time.Minute
	// APIKeyEnv is read when no key is configured.
	APIKeyEnv = "OPENAI_API_KEY"
)

// Config configures the backend.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Backend implements engine.Backend.
type Backend struct {
	cfg    Config
	client *httpclient.Client
}

// New creates a backend.
func New(cfg Config) *Backend {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	cfg.Retry.RetryIf = httpclient.IsRetryable
	retry := cfg.Retry
	client, _ := httpclient.New(httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Auth:    httpclient.BearerAuth(cfg.APIKey),
		Retry:   &retry,
	})
	return &Backend{cfg: cfg, client: client}
}

// Factory builds backends from registry settings.
func Factory() provider.Factory[engine.Backend] {
	return func(cfg map[string]any) (engine.Backend, error) {
		s := engine.Settings(cfg)
		return New(Config{
			APIKey:  s.String("api_key", ""),
			BaseURL: s.String("base_url", ""),
			Model:   s.String("model", ""),
			Timeout: s.Duration("timeout", 0),
		}), nil
	}
}

// Name returns "openai".
func (b *Backend) Name() string { return Name }

// IsAvailable reports whether an API key is configured.
func (b *Backend) IsAvailable(context.Context) bool { return b.cfg.APIKey != "" }

// AvailableModels lists the hosted transcription models.
func (b *Backend) AvailableModels() []string {
	return []string{"whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"}
}

// SupportedLanguages returns the Whisper language codes.
func (b *Backend) SupportedLanguages() []string { return engine.WhisperLanguages }

// Config reports the settings without the key.
func (b *Backend) Config() map[string]any {
	return map[string]any{
		"base_url":    b.cfg.BaseURL,
		"model":       b.cfg.Model,
		"timeout":     b.cfg.Timeout.String(),
		"api_key_set": b.cfg.APIKey != "",
	}
}

// Transcribe uploads the audio with response_format=verbose_json and
// retries rate limits and server errors.
func (b *Backend) Transcribe(ctx context.Context, req engine.Request) (*engine.Result, error) {
	if b.cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not configured")
	}
	model := req.Model
	if model == "" {
		model = b.cfg.Model
	}
	audio, err := os.ReadFile(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	resp, err := b.post(ctx, req, model, audio)
	if err != nil {
		return nil, err
	}

	segments := make([]subtitle.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, subtitle.Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	result := engine.Succeeded(resp.Text, segments, resp.Language)
	if resp.Duration > 0 {
		result.Duration = resp.Duration
	}
	result.Model = model
	return result, nil
}

func (b *Backend) post(ctx context.Context, req engine.Request, model string, audio []byte) (*verboseResponse, error) {
	fields := map[string]string{
		"model":                     model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	if !engine.IsAuto(req.Language) {
		fields["language"] = req.Language
	}
	if prompt, ok := req.Options["prompt"].(string); ok && prompt != "" {
		fields["prompt"] = prompt
	}

	resp, err := b.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/audio/transcriptions",
		Body: &httpclient.MultipartBody{
			Fields: fields,
			Files:  []httpclient.FileField{{FieldName: "file", FileName: filepath.Base(req.AudioPath), Data: audio}},
		},
	})
	if err != nil {
		if he, ok := httpclient.AsError(err); ok && he.StatusCode > 0 {
			return nil, newStatusError(he.StatusCode, he.Body)
		}
		return nil, fmt.Errorf("openai request: %w", err)
	}
	var out verboseResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	return &out, nil
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// StatusError is a non-2xx API response with the API's error message.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai error (status %d): %s", e.StatusCode, e.Message)
}

func newStatusError(status int, body []byte) *StatusError {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	return &StatusError{StatusCode: status, Message: msg}
}

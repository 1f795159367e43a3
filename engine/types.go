package engine

import (
	"context"

	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Backend is implemented by every speech-to-text integration.
type Backend interface {
	provider.Provider

	// Transcribe converts the audio at req.AudioPath into timed segments.
	// Implementations honour ctx cancellation.
	Transcribe(ctx context.Context, req Request) (*Result, error)
	AvailableModels() []string
	// SupportedLanguages lists ISO codes. LanguageAuto is always accepted
	// and need not be listed.
	SupportedLanguages() []string
}

// Configurable backends expose their effective settings for describe calls.
type Configurable interface {
	Config() map[string]any
}

// Request describes one transcription.
type Request struct {
	AudioPath string `json:"audio_path"`
	// Model overrides the backend default.
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
	// OutputFormat selects the subtitle file written to OutputDir.
	// Empty or FormatNone writes nothing.
	OutputFormat subtitle.Format `json:"output_format,omitempty"`
	OutputDir    string          `json:"output_dir,omitempty"`
	Options      map[string]any  `json:"options,omitempty"`
}

// Result is the outcome of a transcription. A failed result carries an
// error message and no segments.
type Result struct {
	Success  bool               `json:"success"`
	Text     string             `json:"text"`
	Segments []subtitle.Segment `json:"segments"`
	Language string             `json:"language,omitempty"`
	// Duration of the audio in seconds.
	Duration float64 `json:"duration,omitempty"`
	Engine   string  `json:"engine"`
	Model    string  `json:"model,omitempty"`
	Error    string  `json:"error,omitempty"`
	// OutputPath is set when a subtitle file was written.
	OutputPath string         `json:"output_path,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// ProcessingTime in seconds.
	ProcessingTime float64 `json:"processing_time"`
}

// Succeeded builds a successful result from segments. Text is derived from
// the segments when empty.
func Succeeded(text string, segments []subtitle.Segment, language string) *Result {
	if text == "" {
		text = subtitle.JoinText(segments)
	}
	if segments == nil {
		segments = []subtitle.Segment{}
	}
	var duration float64
	if n := len(segments); n > 0 {
		duration = segments[n-1].End
	}
	return &Result{
		Success:  true,
		Text:     text,
		Segments: segments,
		Language: language,
		Duration: duration,
	}
}

// Failed builds a failed result. An empty message becomes "unknown error".
func Failed(engineName, message string) *Result {
	if message == "" {
		message = "unknown error"
	}
	return &Result{
		Success:  false,
		Segments: []subtitle.Segment{},
		Engine:   engineName,
		Error:    message,
	}
}

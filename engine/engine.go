package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/resilience"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

const defaultTimeout = 30 * time.Minute

// Engine wraps a Backend with the guarantees callers rely on: input
// validation, bounded concurrency, a timeout, panic recovery and subtitle
// output. Transcribe never returns a Go error.
type Engine struct {
	backend  Backend
	bulkhead *resilience.Bulkhead
	timeout  time.Duration
	metrics  *observability.Metrics
	log      *logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBulkhead shares a concurrency limit between engines.
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(e *Engine) { e.bulkhead = b }
}

// WithTimeout bounds each transcription.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMetrics records transcription outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		timeout: defaultTimeout,
		log:     logger.WithComponent("engine").WithFields(logger.Fields(logger.FieldEngine, backend.Name())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bulkhead == nil {
		e.bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "engine-" + backend.Name(),
			MaxConcurrent: 1,
			MaxWait:       -1,
		})
	}
	return e
}

// Name returns the backend name.
func (e *Engine) Name() string { return e.backend.Name() }

// Backend returns the wrapped backend.
func (e *Engine) Backend() Backend { return e.backend }

// IsAvailable reports whether the backend can serve requests.
func (e *Engine) IsAvailable(ctx context.Context) bool { return e.backend.IsAvailable(ctx) }

// Models lists the models the backend accepts.
func (e *Engine) Models() []string { return e.backend.AvailableModels() }

// Languages lists the language codes the backend accepts.
func (e *Engine) Languages() []string { return e.backend.SupportedLanguages() }

// Config returns the backend settings, or nil for backends without any.
func (e *Engine) Config() map[string]any {
	if c, ok := e.backend.(Configurable); ok {
		return c.Config()
	}
	return nil
}

// Initialize prepares backend artifacts such as model files.
func (e *Engine) Initialize(ctx context.Context) error {
	init, ok := e.backend.(provider.Initializable)
	if !ok {
		return nil
	}
	if err := init.Init(ctx); err != nil {
		return fmt.Errorf("initialize engine %s: %w", e.Name(), err)
	}
	return nil
}

// Close releases backend resources.
func (e *Engine) Close(ctx context.Context) error {
	if c, ok := e.backend.(provider.Closeable); ok {
		return c.Close(ctx)
	}
	return nil
}

// Transcribe runs the backend on req. Every failure, including a missing
// input file, a timeout or a backend panic, is reported as a failed Result.
func (e *Engine) Transcribe(ctx context.Context, req Request) *Result {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanTranscribe,
		attribute.String(observability.AttrEngine, e.Name()),
		attribute.String(observability.AttrModel, req.Model))

	res := e.transcribe(ctx, req)
	res.Engine = e.Name()
	if res.Model == "" {
		res.Model = req.Model
	}
	elapsed := time.Since(start)
	res.ProcessingTime = elapsed.Seconds()
	if res.Success {
		e.writeOutput(res, req)
	} else {
		res.Segments = []subtitle.Segment{}
		if res.Error == "" {
			res.Error = "unknown error"
		}
	}
	e.metrics.RecordTranscription(ctx, res.Engine, res.Model, res.Success, elapsed)

	var spanErr error
	if !res.Success {
		spanErr = errors.New(res.Error)
		e.log.Warn("transcription failed", logger.Fields("audio", req.AudioPath, logger.FieldError, res.Error))
	} else {
		e.log.Info("transcription completed", logger.Fields(
			"audio", req.AudioPath,
			"segments", len(res.Segments),
			logger.FieldDuration, elapsed.Milliseconds(),
		))
	}
	observability.EndSpan(span, spanErr)
	return res
}

func (e *Engine) transcribe(ctx context.Context, req Request) *Result {
	if req.AudioPath == "" {
		return Failed(e.Name(), "audio path is required")
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return Failed(e.Name(), fmt.Sprintf("audio file not found: %s", req.AudioPath))
	}
	if !SupportsLanguage(e.backend, req.Language) {
		return Failed(e.Name(), fmt.Sprintf("language %q is not supported by %s", req.Language, e.Name()))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("engine panic: %v", r)}
			}
			done <- out
		}()
		out.err = e.bulkhead.Execute(ctx, func() error {
			res, err := e.backend.Transcribe(ctx, req)
			out.res = res
			return err
		})
	}()

	select {
	case out := <-done:
		switch {
		case errors.Is(out.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			return e.timedOut()
		case out.err != nil:
			return Failed(e.Name(), out.err.Error())
		case out.res == nil:
			return Failed(e.Name(), "engine returned no result")
		}
		return out.res
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return e.timedOut()
		}
		return Failed(e.Name(), "transcription cancelled")
	}
}

func (e *Engine) timedOut() *Result {
	return Failed(e.Name(), fmt.Sprintf("transcription timed out after %s", e.timeout))
}

// writeOutput saves the subtitle file next to the other outputs. Write
// failures are recorded in the metadata and do not fail the result.
func (e *Engine) writeOutput(res *Result, req Request) {
	if req.OutputDir == "" || req.OutputFormat == "" || req.OutputFormat == subtitle.FormatNone {
		return
	}
	path, err := SaveOutput(res, req.AudioPath, req.OutputDir, req.OutputFormat)
	if err != nil {
		e.log.Warn("failed to write subtitle file", logger.ErrorFields("write_output", err))
		if res.Metadata == nil {
			res.Metadata = map[string]any{}
		}
		res.Metadata["output_error"] = err.Error()
		return
	}
	res.OutputPath = path
}

// OutputName returns "<stem>_<engine>_<model>.<ext>" for audioPath.
func OutputName(audioPath, engineName, model string, f subtitle.Format) string {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	if model == "" {
		model = "default"
	}
	return fmt.Sprintf("%s_%s_%s.%s", stem, engineName, model, f.Extension())
}

// SaveOutput renders res in format f under dir and returns the file path.
func SaveOutput(res *Result, audioPath, dir string, f subtitle.Format) (string, error) {
	content, err := RenderResult(res, f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, OutputName(audioPath, res.Engine, res.Model, f))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write subtitle file: %w", err)
	}
	return path, nil
}

// RenderResult renders res in format f. JSON output carries the full
// document including language and metadata.
func RenderResult(res *Result, f subtitle.Format) (string, error) {
	if f == subtitle.FormatJSON {
		return subtitle.JSON(subtitle.Document{
			Text:     res.Text,
			Language: res.Language,
			Duration: res.Duration,
			Segments: res.Segments,
			Metadata: map[string]any{
				"engine":          res.Engine,
				"model":           res.Model,
				"processing_time": res.ProcessingTime,
			},
		})
	}
	return subtitle.Render(f, res.Segments)
}

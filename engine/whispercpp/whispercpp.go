// Package whispercpp runs the whisper.cpp command-line binary.
package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/process"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Name is the registry name of this backend.
const Name = "whispercpp"

// Binaries are the executable names probed when none is configured.
var Binaries = []string{"whisper-cli", "whisper", "main", "whisper.cpp"}

// Models are the ggml model sizes published for whisper.cpp.
var Models = []string{"tiny", "base", "small", "medium", "large-v1", "large-v2", "large-v3"}

// Config configures the backend.
type Config struct {
	// Binary is tried before the default names.
	Binary       string
	ModelsDir    string
	DefaultModel string
	Threads      int
	Processors   int
	AutoDownload bool
	// ModelURL is a format string taking the model name.
	ModelURL string
	// SearchDirs are checked for the binary after PATH.
	SearchDirs []string
}

func (c *Config) applyDefaults() {
	if c.ModelsDir == "" {
		c.ModelsDir = "./models"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "base"
	}
	if c.Threads <= 0 {
		c.Threads = 4
	}
	if c.Processors <= 0 {
		c.Processors = 1
	}
	if c.ModelURL == "" {
		c.ModelURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-%s.bin"
	}
	if len(c.SearchDirs) == 0 {
		c.SearchDirs = []string{"./bin"}
	}
}

// Backend implements engine.Backend over the whisper.cpp CLI.
type Backend struct {
	cfg        Config
	runner     process.Runner
	downloader *modelDownloader
	log        *logger.Logger
}

// New creates a backend that executes commands through runner.
func New(cfg Config, runner process.Runner) *Backend {
	cfg.applyDefaults()
	if runner == nil {
		runner = process.Exec
	}
	return &Backend{
		cfg:        cfg,
		runner:     runner,
		downloader: newModelDownloader(cfg.ModelURL),
		log:        logger.WithComponent("engine").WithFields(logger.Fields(logger.FieldEngine, Name)),
	}
}

// Factory builds backends from registry settings.
func Factory(runner process.Runner) provider.Factory[engine.Backend] {
	return func(cfg map[string]any) (engine.Backend, error) {
		s := engine.Settings(cfg)
		return New(Config{
			Binary:       s.String("binary", ""),
			ModelsDir:    s.String("models_dir", ""),
			DefaultModel: s.String("model", ""),
			Threads:      s.Int("threads", 0),
			Processors:   s.Int("processors", 0),
			AutoDownload: s.Bool("auto_download", false),
			ModelURL:     s.String("model_url", ""),
		}, runner), nil
	}
}

// Name returns "whispercpp".
func (b *Backend) Name() string { return Name }

// IsAvailable reports whether the binary and the default model exist.
func (b *Backend) IsAvailable(context.Context) bool {
	if _, ok := b.binary(); !ok {
		return false
	}
	return fileExists(b.ModelPath(b.cfg.DefaultModel))
}

// AvailableModels lists the ggml model names that can be fetched.
func (b *Backend) AvailableModels() []string { return Models }

// SupportedLanguages returns the Whisper language codes.
func (b *Backend) SupportedLanguages() []string { return engine.WhisperLanguages }

// Config reports the effective settings.
func (b *Backend) Config() map[string]any {
	bin, _ := b.binary()
	return map[string]any{
		"binary":        bin,
		"models_dir":    b.cfg.ModelsDir,
		"model":         b.cfg.DefaultModel,
		"threads":       b.cfg.Threads,
		"processors":    b.cfg.Processors,
		"auto_download": b.cfg.AutoDownload,
	}
}

// ModelPath returns the ggml file for model.
func (b *Backend) ModelPath(model string) string {
	return filepath.Join(b.cfg.ModelsDir, "ggml-"+model+".bin")
}

// Init downloads the default model when it is missing and auto download is
// enabled. It is a no-op when the file exists.
func (b *Backend) Init(ctx context.Context) error {
	return b.ensureModel(ctx, b.cfg.DefaultModel)
}

func (b *Backend) ensureModel(ctx context.Context, model string) error {
	path := b.ModelPath(model)
	if fileExists(path) {
		return nil
	}
	if !b.cfg.AutoDownload {
		return fmt.Errorf("model %s not found at %s and auto_download is disabled", model, path)
	}
	b.log.Info("downloading model", logger.Fields("model", model, "path", path))
	return b.downloader.fetch(ctx, model, path)
}

// Transcribe runs the binary with JSON output into a temp dir and parses it.
func (b *Backend) Transcribe(ctx context.Context, req engine.Request) (*engine.Result, error) {
	bin, ok := b.binary()
	if !ok {
		return nil, fmt.Errorf("whisper.cpp executable not found (tried %s)", strings.Join(b.candidates(), ", "))
	}
	model := req.Model
	if model == "" {
		model = b.cfg.DefaultModel
	}
	if err := b.ensureModel(ctx, model); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "whispercpp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	stem := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	outBase := filepath.Join(tmp, stem)
	args := []string{
		"-m", b.ModelPath(model),
		"-f", req.AudioPath,
		"--output-json",
		"--output-file", outBase,
		"-t", strconv.Itoa(b.cfg.Threads),
		"-p", strconv.Itoa(b.cfg.Processors),
	}
	if !engine.IsAuto(req.Language) {
		args = append(args, "-l", req.Language)
	}

	cmd := process.Command{Binary: bin, Args: args, GracePeriod: 5 * time.Second}
	b.log.Debug("running whisper.cpp", logger.Fields("command", cmd.String()))
	res, err := b.runner.Run(ctx, cmd)
	if err != nil {
		if tail := res.StderrTail(500); tail != "" {
			return nil, fmt.Errorf("whisper.cpp failed: %s: %w", tail, err)
		}
		return nil, fmt.Errorf("whisper.cpp failed: %w", err)
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp produced no output: %w", err)
	}
	out, err := ParseOutput(data)
	if err != nil {
		return nil, err
	}
	lang := out.Result.Language
	if lang == "" && !engine.IsAuto(req.Language) {
		lang = req.Language
	}
	result := engine.Succeeded("", out.Segments(), lang)
	result.Model = model
	return result, nil
}

func (b *Backend) candidates() []string {
	return append([]string{b.cfg.Binary}, Binaries...)
}

func (b *Backend) binary() (string, bool) {
	return process.Locate(b.candidates(), b.cfg.SearchDirs...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Output is the JSON document written by --output-json.
type Output struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Timestamps struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"timestamps"`
		Offsets *struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseOutput decodes whisper.cpp JSON output.
func ParseOutput(data []byte) (*Output, error) {
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode whisper.cpp output: %w", err)
	}
	return &out, nil
}

// Segments converts the transcription entries. Offsets are milliseconds;
// entries without offsets fall back to the timestamp strings. Blank
// entries are dropped.
func (o *Output) Segments() []subtitle.Segment {
	segments := make([]subtitle.Segment, 0, len(o.Transcription))
	for _, t := range o.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		var start, end float64
		if t.Offsets != nil {
			start = float64(t.Offsets.From) / 1000
			end = float64(t.Offsets.To) / 1000
		} else {
			start, _ = subtitle.ParseTimestamp(t.Timestamps.From)
			end, _ = subtitle.ParseTimestamp(t.Timestamps.To)
		}
		segments = append(segments, subtitle.Segment{Start: start, End: end, Text: text})
	}
	return segments
}

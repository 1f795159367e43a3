// Package fasterwhisper runs faster-whisper through a small embedded
// python helper that prints the transcript as JSON on stdout.
package fasterwhisper

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/process"
	"github.com/kbukum/whisper-subtitle/provider"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Name is the registry name of this backend.
const Name = "fasterwhisper"

//go:embed transcribe.py
var script []byte

// Models are the CTranslate2 model names faster-whisper resolves.
var Models = []string{
	"tiny", "tiny.en", "base", "base.en", "small", "small.en",
	"medium", "medium.en", "large-v1", "large-v2", "large-v3", "distil-large-v3",
}

// Config configures the backend.
type Config struct {
	Python       string
	DefaultModel string
	Device       string
	ComputeType  string
	BeamSize     int
	VAD          bool
}

func (c *Config) applyDefaults() {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "base"
	}
	if c.Device == "" {
		c.Device = "auto"
	}
	if c.ComputeType == "" {
		c.ComputeType = "int8"
	}
	if c.BeamSize <= 0 {
		c.BeamSize = 5
	}
}

// Backend implements engine.Backend.
type Backend struct {
	cfg    Config
	runner process.Runner
	log    *logger.Logger
}

// New creates a backend. A nil runner executes real processes.
func New(cfg Config, runner process.Runner) *Backend {
	cfg.applyDefaults()
	if runner == nil {
		runner = process.Exec
	}
	return &Backend{
		cfg:    cfg,
		runner: runner,
		log:    logger.WithComponent("engine").WithFields(logger.Fields(logger.FieldEngine, Name)),
	}
}

// Factory builds backends from registry settings.
func Factory(runner process.Runner) provider.Factory[engine.Backend] {
	return func(cfg map[string]any) (engine.Backend, error) {
		s := engine.Settings(cfg)
		return New(Config{
			Python:       s.String("python", ""),
			DefaultModel: s.String("model", ""),
			Device:       s.String("device", ""),
			ComputeType:  s.String("compute_type", ""),
			BeamSize:     s.Int("beam_size", 0),
			VAD:          s.Bool("vad", false),
		}, runner), nil
	}
}

// Name returns "fasterwhisper".
func (b *Backend) Name() string { return Name }

// IsAvailable reports whether the python interpreter can be found.
func (b *Backend) IsAvailable(context.Context) bool {
	_, ok := process.Locate([]string{b.cfg.Python})
	return ok
}

// AvailableModels lists the CTranslate2 model sizes the script accepts.
func (b *Backend) AvailableModels() []string { return Models }

// SupportedLanguages returns the Whisper language codes.
func (b *Backend) SupportedLanguages() []string { return engine.WhisperLanguages }

// Config reports the interpreter, model and decoding settings.
func (b *Backend) Config() map[string]any {
	return map[string]any{
		"python":       b.cfg.Python,
		"model":        b.cfg.DefaultModel,
		"device":       b.cfg.Device,
		"compute_type": b.cfg.ComputeType,
		"beam_size":    b.cfg.BeamSize,
		"vad":          b.cfg.VAD,
	}
}

// Transcribe pipes the helper script to the interpreter and decodes stdout.
func (b *Backend) Transcribe(ctx context.Context, req engine.Request) (*engine.Result, error) {
	model := req.Model
	if model == "" {
		model = b.cfg.DefaultModel
	}
	args := []string{"-",
		"--audio", req.AudioPath,
		"--model", model,
		"--device", b.cfg.Device,
		"--compute-type", b.cfg.ComputeType,
		"--beam-size", strconv.Itoa(b.cfg.BeamSize),
	}
	if !engine.IsAuto(req.Language) {
		args = append(args, "--language", req.Language)
	}
	if b.cfg.VAD {
		args = append(args, "--vad")
	}

	cmd := process.Command{Binary: b.cfg.Python, Args: args, Stdin: bytes.NewReader(script)}
	b.log.Debug("running faster-whisper", logger.Fields("model", model, "audio", req.AudioPath))
	res, err := b.runner.Run(ctx, cmd)
	if err != nil {
		if tail := res.StderrTail(500); tail != "" {
			return nil, fmt.Errorf("faster-whisper failed: %s: %w", tail, err)
		}
		return nil, fmt.Errorf("faster-whisper failed: %w", err)
	}

	out, err := parseOutput(res.Stdout)
	if err != nil {
		return nil, err
	}
	result := engine.Succeeded("", out.segments(), out.Language)
	if out.Duration > 0 {
		result.Duration = out.Duration
	}
	result.Model = model
	return result, nil
}

type output struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start      float64  `json:"start"`
		End        float64  `json:"end"`
		Text       string   `json:"text"`
		AvgLogprob *float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func parseOutput(stdout []byte) (*output, error) {
	var out output
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &out); err != nil {
		return nil, fmt.Errorf("decode faster-whisper output: %w", err)
	}
	return &out, nil
}

// segments converts the helper output; confidence is exp(avg_logprob).
func (o *output) segments() []subtitle.Segment {
	segs := make([]subtitle.Segment, 0, len(o.Segments))
	for _, s := range o.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		seg := subtitle.Segment{Start: s.Start, End: s.End, Text: text}
		if s.AvgLogprob != nil {
			c := math.Exp(*s.AvgLogprob)
			seg.Confidence = &c
		}
		segs = append(segs, seg)
	}
	return segs
}

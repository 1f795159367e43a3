// Package service is the facade the HTTP API and the CLI call into. It
// turns requests into engine registry, scheduler and channel monitor calls
// and maps their failures onto typed application errors.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/history"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Maintenance task ids.
const (
	CleanupTasksID = "maintenance_cleanup_tasks"
	CleanupFilesID = "maintenance_cleanup_files"

	// KindTranscription marks tasks created by SubmitTranscription.
	KindTranscription = "transcription"
	// KindInitialize marks tasks created by InitializeEngine.
	KindInitialize  = "initialize"
	kindMaintenance = "maintenance"
)

// TranscribeRequest is one file transcription. Empty fields fall back to
// the engines configuration.
type TranscribeRequest struct {
	FilePath     string `json:"file_path" validate:"required"`
	Engine       string `json:"engine,omitempty"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	OutputDir    string `json:"output_dir,omitempty"`
}

// Service wires the engine registry, the scheduler and the monitor.
type Service struct {
	engines *engine.Registry
	sched   *scheduler.Scheduler
	monitor *monitor.Monitor
	history *history.Store
	cfg     engine.Config
	log     *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistory enables TaskHistory.
func WithHistory(h *history.Store) Option {
	return func(s *Service) { s.history = h }
}

// New creates a service. cfg supplies the transcription defaults.
func New(engines *engine.Registry, sched *scheduler.Scheduler, mon *monitor.Monitor, cfg engine.Config, opts ...Option) *Service {
	cfg.ApplyDefaults()
	s := &Service{
		engines: engines,
		sched:   sched,
		monitor: mon,
		cfg:     cfg,
		log:     logger.WithComponent("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Monitor returns the channel monitor.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// Scheduler returns the task scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.sched }

// TranscribeFile transcribes one file synchronously. A transcription that
// runs but fails is returned as a failed Result, not as an error.
func (s *Service) TranscribeFile(ctx context.Context, req TranscribeRequest) (*engine.Result, error) {
	req, format, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	eng, err := s.engines.GetEngine(req.Engine, nil)
	if err != nil {
		return nil, err
	}
	if !eng.IsAvailable(ctx) {
		return nil, errors.ServiceUnavailable(req.Engine + " engine")
	}

	s.log.Info("transcription started", logger.Fields("file", req.FilePath, logger.FieldEngine, req.Engine, "model", req.Model))
	res := eng.Transcribe(ctx, engine.Request{
		AudioPath:    req.FilePath,
		Model:        req.Model,
		Language:     req.Language,
		OutputFormat: format,
		OutputDir:    req.OutputDir,
	})
	return res, nil
}

// TranscribeURL downloads the audio of one video and transcribes it.
// req.FilePath is replaced by the downloaded file.
func (s *Service) TranscribeURL(ctx context.Context, url string, req TranscribeRequest) (*engine.Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.InvalidInput("url", "video url is required")
	}
	req.FilePath = url
	if _, _, err := s.normalize(req); err != nil {
		return nil, err
	}
	file, err := s.monitor.DownloadVideo(ctx, url)
	if err != nil {
		return nil, errors.ExternalServiceError("yt-dlp", err)
	}
	req.FilePath = file
	return s.TranscribeFile(ctx, req)
}

func (s *Service) normalize(req TranscribeRequest) (TranscribeRequest, subtitle.Format, error) {
	if strings.TrimSpace(req.FilePath) == "" {
		return req, "", errors.InvalidInput("file_path", "file path is required")
	}
	if req.Engine == "" {
		req.Engine = s.cfg.Default
	}
	if !s.engines.Has(req.Engine) {
		return req, "", errors.NotFound("engine", req.Engine)
	}
	if req.Language == "" {
		req.Language = engine.LanguageAuto
	}
	if req.OutputFormat == "" {
		req.OutputFormat = s.cfg.OutputFormat
	}
	format, err := subtitle.ParseFormat(req.OutputFormat)
	if err != nil {
		return req, "", errors.InvalidInput("output_format", err.Error())
	}
	if req.OutputDir == "" {
		req.OutputDir = s.cfg.OutputDir
	}
	return req, format, nil
}

// TranscribeBatch transcribes files concurrently. The engine bulkhead caps
// how many run at once. Results keep the order of reqs; a request that
// cannot start yields a failed Result.
func (s *Service) TranscribeBatch(ctx context.Context, reqs []TranscribeRequest) []*engine.Result {
	out := make([]*engine.Result, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req TranscribeRequest) {
			defer wg.Done()
			res, err := s.TranscribeFile(ctx, req)
			if err != nil {
				res = engine.Failed(req.Engine, err.Error())
			}
			out[i] = res
		}(i, req)
	}
	wg.Wait()

	ok := 0
	for _, r := range out {
		if r.Success {
			ok++
		}
	}
	s.log.Info("batch transcription finished", logger.Fields("total", len(reqs), "succeeded", ok))
	return out
}

// SubmitTranscription schedules TranscribeFile as a background task and
// returns its id. A failed transcription fails the task so it is retried.
func (s *Service) SubmitTranscription(ctx context.Context, req TranscribeRequest) (string, error) {
	req, _, err := s.normalize(req)
	if err != nil {
		return "", err
	}
	id := "transcription_" + uuid.NewString()
	return s.sched.Schedule(id, "Transcribe file: "+req.FilePath,
		func(ctx context.Context) (any, error) {
			res, err := s.TranscribeFile(ctx, req)
			if err != nil {
				return nil, err
			}
			if !res.Success {
				return nil, fmt.Errorf("transcription failed: %s", res.Error)
			}
			return map[string]any{
				"output_path": res.OutputPath,
				"language":    res.Language,
				"segments":    len(res.Segments),
				"text":        res.Text,
			}, nil
		},
		scheduler.WithKind(KindTranscription),
	)
}

// ListEngines describes every engine that can be constructed.
func (s *Service) ListEngines(ctx context.Context) map[string]engine.Descriptor {
	return s.engines.DescribeAll(ctx)
}

// ListAvailableEngines returns the engines ready to transcribe.
func (s *Service) ListAvailableEngines(ctx context.Context) []string {
	names := s.engines.ListAvailable(ctx)
	if names == nil {
		names = []string{}
	}
	return names
}

// DescribeEngine describes one engine.
func (s *Service) DescribeEngine(ctx context.Context, name string) (engine.Descriptor, error) {
	return s.engines.Describe(ctx, name)
}

// InitializeEngine schedules the named engine's one-time preparation
// (model download, warm-up) as a background task and returns its id.
func (s *Service) InitializeEngine(name string) (string, error) {
	if !s.engines.Has(name) {
		return "", errors.NotFound("engine", name)
	}
	id := "initialize_" + name + "_" + uuid.NewString()
	return s.sched.Schedule(id, "Initialize engine: "+name,
		func(ctx context.Context) (any, error) {
			if err := s.engines.Initialize(ctx, name, s.cfg.Timeout); err != nil {
				return nil, err
			}
			d, err := s.engines.Describe(ctx, name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"engine": name, "ready": d.Ready}, nil
		},
		scheduler.WithKind(KindInitialize),
		scheduler.WithMaxRetries(0),
	)
}

// PreloadEngines schedules InitializeEngine for every engine in
// engines.preload. Unknown names are logged and skipped.
func (s *Service) PreloadEngines() []string {
	var ids []string
	for _, name := range s.cfg.Preload {
		id, err := s.InitializeEngine(name)
		if err != nil {
			s.log.Warn("engine preload skipped", logger.Fields("engine", name, "error", err.Error()))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ConvertSubtitle re-renders subtitle content from one format to another.
func (s *Service) ConvertSubtitle(content, from, to string) (string, error) {
	src, err := subtitle.ParseFormat(from)
	if err != nil || src == subtitle.FormatNone {
		return "", errors.InvalidInput("from", fmt.Sprintf("unsupported source format %q", from))
	}
	dst, err := subtitle.ParseFormat(to)
	if err != nil || dst == subtitle.FormatNone {
		return "", errors.InvalidInput("to", fmt.Sprintf("unsupported target format %q", to))
	}
	out, err := subtitle.Convert(content, src, dst)
	if err != nil {
		return "", errors.InvalidInput("content", err.Error())
	}
	return out, nil
}

// RegisterMaintenance schedules the daily cleanup tasks on the scheduler.
// They use the scheduler's retention and the monitor's file retention.
func (s *Service) RegisterMaintenance() error {
	if _, err := s.sched.ScheduleDaily(CleanupTasksID, "Cleanup old tasks",
		func(ctx context.Context) (any, error) {
			return map[string]any{"removed": s.sched.CleanupOld(ctx, 0)}, nil
		}, 3, 0, scheduler.WithKind(kindMaintenance)); err != nil {
		return fmt.Errorf("schedule task cleanup: %w", err)
	}
	if _, err := s.sched.ScheduleDaily(CleanupFilesID, "Cleanup old files",
		func(ctx context.Context) (any, error) {
			n, err := s.monitor.CleanupOldFiles(ctx, 0)
			if err != nil {
				return nil, err
			}
			return map[string]any{"removed": n}, nil
		}, 4, 0, scheduler.WithKind(kindMaintenance)); err != nil {
		return fmt.Errorf("schedule file cleanup: %w", err)
	}
	s.log.Debug("maintenance tasks scheduled")
	return nil
}

// RegisterMetrics exposes task counts by status as a scrape-time gauge.
func (s *Service) RegisterMetrics(m *observability.Metrics) error {
	return m.Register(observability.NewGaugeCollector("scheduler", "tasks", "Tasks by status.", "status",
		func() map[string]int {
			out := map[string]int{}
			for st, n := range s.sched.Stats() {
				out[string(st)] = n
			}
			return out
		}))
}

package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/events"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/storage"
)

// Downloader fetches channel listings and media. Implemented by
// downloader.YTDLP.
type Downloader interface {
	Info(ctx context.Context, url string) (*downloader.VideoInfo, error)
	ListRecent(ctx context.Context, url string, max int) ([]downloader.VideoInfo, error)
	Download(ctx context.Context, url, destDir string, audioOnly bool) (string, error)
}

// Engines resolves transcription engines. Implemented by engine.Registry.
type Engines interface {
	Has(name string) bool
	GetEngine(name string, cfg map[string]any) (*engine.Engine, error)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStore replaces the in-memory store.
func WithStore(s Store) Option { return func(m *Monitor) { m.store = s } }

// WithArchive uploads every transcript to s under prefix/<channel>/.
func WithArchive(s storage.Storage, prefix string) Option {
	return func(m *Monitor) {
		m.archive = s
		m.archivePrefix = strings.Trim(prefix, "/")
	}
}

// WithPublisher emits video lifecycle events.
func WithPublisher(p events.Publisher) Option { return func(m *Monitor) { m.events = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// Monitor tracks channels and schedules work for their new uploads.
type Monitor struct {
	cfg     Config
	dl      Downloader
	engines Engines
	sched   *scheduler.Scheduler
	store   Store
	events  events.Publisher
	log     *logger.Logger
	now     func() time.Time

	archive       storage.Storage
	archivePrefix string

	// checkMu serializes channel checks so a manual check and the
	// recurring one never schedule the same upload twice.
	checkMu sync.Mutex

	mu       sync.RWMutex
	channels map[string]*Channel
	videos   map[string]*Video
}

// New creates a monitor. Call Restore to reload persisted channels.
func New(cfg Config, dl Downloader, engines Engines, sched *scheduler.Scheduler, opts ...Option) *Monitor {
	cfg.ApplyDefaults()
	m := &Monitor{
		cfg:      cfg,
		dl:       dl,
		engines:  engines,
		sched:    sched,
		store:    NewMemoryStore(),
		events:   events.Noop{},
		log:      logger.WithComponent("monitor"),
		now:      time.Now,
		channels: map[string]*Channel{},
		videos:   map[string]*Video{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Restore loads channels from the store and schedules their checks.
func (m *Monitor) Restore(ctx context.Context) (int, error) {
	stored, err := m.store.Channels(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore channels: %w", err)
	}
	for i := range stored {
		ch := stored[i]
		m.mu.Lock()
		m.channels[ch.ID] = &ch
		m.mu.Unlock()
		if err := m.scheduleCheck(ch); err != nil {
			return i, err
		}
	}
	if len(stored) > 0 {
		m.log.Info("channels restored", logger.Fields("count", len(stored)))
	}
	return len(stored), nil
}

// AddChannel verifies the channel is reachable, stores it and schedules
// its recurring check. A nil cfg uses DefaultTranscriptionConfig. Adding
// an existing id replaces it.
func (m *Monitor) AddChannel(ctx context.Context, id, name string, cfg *TranscriptionConfig) (*Channel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.InvalidInput("channel_id", "channel id is required")
	}
	tc := DefaultTranscriptionConfig()
	if cfg != nil {
		tc = cfg.withDefaults()
	}
	if !m.engines.Has(tc.Engine) {
		return nil, errors.InvalidInput("engine", fmt.Sprintf("unknown engine %q", tc.Engine))
	}
	if _, err := tc.format(); err != nil {
		return nil, err
	}
	if name == "" {
		name = id
	}

	url := downloader.ChannelURL(id)
	if _, err := m.dl.Info(ctx, url); err != nil {
		m.log.Warn("channel unreachable", logger.Fields(logger.FieldChannelID, id, logger.FieldError, err.Error()))
		return nil, errors.ExternalServiceError("youtube", err).WithDetail("channel_id", id)
	}

	ch := Channel{ID: id, Name: name, Enabled: true, Config: tc, AddedAt: m.now()}
	if err := m.store.SaveChannel(ctx, ch); err != nil {
		return nil, errors.Internal(err)
	}

	m.mu.Lock()
	_, replaced := m.channels[id]
	stored := ch
	m.channels[id] = &stored
	m.mu.Unlock()

	if replaced {
		m.sched.Cancel(checkTaskPrefix + id)
	}
	if err := m.scheduleCheck(ch); err != nil {
		return nil, err
	}
	m.log.Info("channel added", logger.Fields(logger.FieldChannelID, id, "name", name, logger.FieldEngine, tc.Engine))
	return &ch, nil
}

func (m *Monitor) scheduleCheck(ch Channel) error {
	id := ch.ID
	_, err := m.sched.ScheduleRecurring(checkTaskPrefix+id, checkNamePrefix+ch.Name,
		func(ctx context.Context) (any, error) {
			videos, err := m.CheckChannel(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]any{"new_videos": len(videos)}, nil
		},
		m.cfg.CheckInterval,
		scheduler.WithKind(KindCheck),
	)
	return err
}

// RemoveChannel stops monitoring id. It returns false for an unknown channel.
func (m *Monitor) RemoveChannel(ctx context.Context, id string) bool {
	m.mu.Lock()
	if _, ok := m.channels[id]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.channels, id)
	m.mu.Unlock()

	m.sched.Cancel(checkTaskPrefix + id)
	if err := m.store.DeleteChannel(ctx, id); err != nil {
		m.log.Warn("failed to delete stored channel", logger.Fields(logger.FieldChannelID, id, logger.FieldError, err.Error()))
	}
	m.log.Info("channel removed", logger.Fields(logger.FieldChannelID, id))
	return true
}

// ListChannels returns all channels sorted by id.
func (m *Monitor) ListChannels() []Channel {
	m.mu.RLock()
	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetChannel returns a channel by id.
func (m *Monitor) GetChannel(id string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[id]
	if !ok {
		return Channel{}, false
	}
	return *ch, true
}

// EnableChannel flips the enabled flag. It returns false for an unknown channel.
func (m *Monitor) EnableChannel(id string, enabled bool) bool {
	m.mu.Lock()
	ch, ok := m.channels[id]
	if ok {
		ch.Enabled = enabled
	}
	var snap Channel
	if ok {
		snap = *ch
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.persist(snap)
	m.log.Info("channel toggled", logger.Fields(logger.FieldChannelID, id, "enabled", enabled))
	return true
}

// persist writes ch through to the store. Failures are logged only: the
// in-memory state stays authoritative for this process.
func (m *Monitor) persist(ch Channel) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveChannel(ctx, ch); err != nil {
		m.log.Warn("failed to persist channel", logger.Fields(logger.FieldChannelID, ch.ID, logger.FieldError, err.Error()))
	}
}

// CheckChannel lists the channel's recent uploads and schedules download
// and transcription for each one not seen before.
func (m *Monitor) CheckChannel(ctx context.Context, id string) ([]Video, error) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	m.mu.RLock()
	chp, ok := m.channels[id]
	var ch Channel
	if ok {
		ch = *chp
	}
	m.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("channel", id)
	}
	if !ch.Enabled {
		m.log.Debug("channel disabled, skipping check", logger.Fields(logger.FieldChannelID, id))
		return []Video{}, nil
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanChannelCheck,
		attribute.String(observability.AttrChannelID, id))
	found, err := m.checkChannel(ctx, ch)
	observability.EndSpan(span, err)
	return found, err
}

func (m *Monitor) checkChannel(ctx context.Context, ch Channel) ([]Video, error) {
	recent, err := m.dl.ListRecent(ctx, ch.URL(), m.cfg.MaxVideos)
	if err != nil {
		m.log.Error("channel listing failed", logger.Fields(logger.FieldChannelID, ch.ID, logger.FieldError, err.Error()))
		return nil, errors.ExternalServiceError("youtube", err).WithDetail("channel_id", ch.ID)
	}

	now := m.now()
	found := []Video{}
	for _, info := range recent {
		if info.ID == "" {
			continue
		}
		seen, err := m.store.IsProcessed(ctx, info.ID)
		if err != nil {
			return found, fmt.Errorf("dedup lookup %s: %w", info.ID, err)
		}
		if seen || !uploadedSince(info.UploadDate, ch.LastCheck) {
			continue
		}
		if info.URL == "" {
			info.URL = downloader.WatchURL(info.ID)
		}
		if info.Title == "" {
			info.Title = "Unknown"
		}

		v := &Video{VideoInfo: info, ChannelID: ch.ID, DiscoveredAt: now}
		if err := m.scheduleVideo(ch, v); err != nil {
			m.log.Warn("failed to schedule video", logger.Fields(logger.FieldVideoID, info.ID, logger.FieldError, err.Error()))
			continue
		}
		if err := m.store.MarkProcessed(ctx, info.ID); err != nil {
			m.log.Warn("failed to mark video processed", logger.Fields(logger.FieldVideoID, info.ID, logger.FieldError, err.Error()))
		}
		m.mu.Lock()
		m.videos[info.ID] = v
		m.mu.Unlock()

		found = append(found, *v)
		m.publish(ctx, events.TypeVideoDiscovered, v, map[string]any{"title": info.Title, "url": info.URL})
	}

	m.mu.Lock()
	var snap Channel
	if cur, ok := m.channels[ch.ID]; ok {
		cur.LastCheck = &now
		if len(recent) > 0 && recent[0].ID != "" {
			cur.LastVideoID = recent[0].ID
		}
		snap = *cur
	}
	m.mu.Unlock()
	if snap.ID != "" {
		m.persist(snap)
	}

	if len(found) > 0 {
		m.log.Info("new videos found", logger.Fields(logger.FieldChannelID, ch.ID, "count", len(found)))
	}
	return found, nil
}

// uploadedSince reports whether an upload dated YYYYMMDD falls on or after
// the calendar day of lastCheck. Upload dates carry no time of day, so a
// same-day upload is kept and the processed set filters repeats. A missing
// check time or an unparseable date counts as new.
func uploadedSince(uploadDate string, lastCheck *time.Time) bool {
	if lastCheck == nil || uploadDate == "" {
		return true
	}
	d, err := time.ParseInLocation("20060102", uploadDate, time.Local)
	if err != nil {
		return true
	}
	lc := lastCheck.In(time.Local)
	day := time.Date(lc.Year(), lc.Month(), lc.Day(), 0, 0, 0, 0, time.Local)
	return !d.Before(day)
}

func (m *Monitor) scheduleVideo(ch Channel, v *Video) error {
	_, err := m.sched.Schedule(downloadTaskPrefix+v.ID, downloadNamePrefix+v.Title,
		m.downloadTask(v),
		scheduler.WithKind(KindDownload),
		scheduler.WithMaxRetries(*m.cfg.TaskRetries),
	)
	if err != nil {
		return err
	}
	if m.cfg.Reactive {
		return nil
	}
	_, err = m.sched.Schedule(transcribeTaskPrefix+v.ID, transcribeNamePrefix+v.Title,
		m.transcribeTask(v),
		scheduler.WithKind(KindTranscribe),
		scheduler.WithScheduleTime(m.now().Add(m.cfg.TranscribeDelay)),
		scheduler.WithMaxRetries(*m.cfg.TaskRetries),
	)
	return err
}

// CheckAllChannels checks every channel. A failing channel maps to an empty
// list; channels with nothing new are left out.
func (m *Monitor) CheckAllChannels(ctx context.Context) map[string][]Video {
	results := map[string][]Video{}
	for _, ch := range m.ListChannels() {
		videos, err := m.CheckChannel(ctx, ch.ID)
		if err != nil {
			m.log.Error("channel check failed", logger.Fields(logger.FieldChannelID, ch.ID, logger.FieldError, err.Error()))
			results[ch.ID] = []Video{}
			continue
		}
		if len(videos) > 0 {
			results[ch.ID] = videos
		}
	}
	return results
}

// GetVideo returns a discovered video by id.
func (m *Monitor) GetVideo(id string) (Video, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.videos[id]
	if !ok {
		return Video{}, false
	}
	return *v, true
}

// ListVideos returns discovered videos, optionally for one channel, oldest
// discovery first.
func (m *Monitor) ListVideos(channelID string) []Video {
	m.mu.RLock()
	out := make([]Video, 0, len(m.videos))
	for _, v := range m.videos {
		if channelID == "" || v.ChannelID == channelID {
			out = append(out, *v)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DiscoveredAt.Before(out[j].DiscoveredAt)
	})
	return out
}

// ProcessingStatus counts download and transcription tasks by outcome.
func (m *Monitor) ProcessingStatus(ctx context.Context) Status {
	st := Status{}
	m.mu.RLock()
	st.Channels = len(m.channels)
	m.mu.RUnlock()

	if n, err := m.store.ProcessedCount(ctx); err == nil {
		st.ProcessedVideos = n
	} else {
		m.log.Warn("processed count unavailable", logger.ErrorFields("processed_count", err))
	}

	for _, t := range m.sched.List(scheduler.ListOptions{}) {
		if !strings.HasPrefix(t.Name, downloadNamePrefix) && !strings.HasPrefix(t.Name, transcribeNamePrefix) {
			continue
		}
		switch t.Status {
		case scheduler.StatusRunning:
			st.ActiveTasks++
		case scheduler.StatusCompleted:
			st.CompletedTasks++
		case scheduler.StatusFailed:
			st.FailedTasks++
		}
	}
	return st
}

func (m *Monitor) publish(ctx context.Context, typ string, v *Video, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["channel_id"] = v.ChannelID
	if err := m.events.Publish(ctx, events.New(typ, v.ID, data)); err != nil {
		m.log.Warn("event publish failed", logger.Fields("type", typ, logger.FieldVideoID, v.ID, logger.FieldError, err.Error()))
	}
}

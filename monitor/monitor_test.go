package monitor

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/events"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/storage/local"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

type fakeDownloader struct {
	mu        sync.Mutex
	listings  map[string][]downloader.VideoInfo
	listErr   map[string]error
	infoErr   error
	downloads []string
	dlErr     error
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{listings: map[string][]downloader.VideoInfo{}, listErr: map[string]error{}}
}

func (f *fakeDownloader) setListing(channelID string, videos ...downloader.VideoInfo) {
	f.mu.Lock()
	f.listings[downloader.ChannelURL(channelID)] = videos
	f.mu.Unlock()
}

func (f *fakeDownloader) Info(_ context.Context, url string) (*downloader.VideoInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &downloader.VideoInfo{ID: url, Title: "channel"}, nil
}

func (f *fakeDownloader) ListRecent(_ context.Context, url string, max int) ([]downloader.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[url]; err != nil {
		return nil, err
	}
	out := f.listings[url]
	if len(out) > max {
		out = out[:max]
	}
	return append([]downloader.VideoInfo(nil), out...), nil
}

func (f *fakeDownloader) Download(_ context.Context, url, destDir string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dlErr != nil {
		return "", f.dlErr
	}
	id := url[strings.LastIndex(url, "=")+1:]
	path := filepath.Join(destDir, id+".mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return "", err
	}
	f.downloads = append(f.downloads, url)
	return path, nil
}

type stubBackend struct{}

func (stubBackend) Name() string                     { return "whispercpp" }
func (stubBackend) IsAvailable(context.Context) bool { return true }
func (stubBackend) AvailableModels() []string        { return []string{"base"} }
func (stubBackend) SupportedLanguages() []string     { return []string{"en"} }
func (stubBackend) Transcribe(context.Context, engine.Request) (*engine.Result, error) {
	return engine.Succeeded("", []subtitle.Segment{{Start: 0, End: 2, Text: "hello there"}}, "en"), nil
}

func testEngines() *engine.Registry {
	r := engine.NewRegistry(engine.Config{}, nil)
	r.Register("whispercpp", func(map[string]any) (engine.Backend, error) { return stubBackend{}, nil })
	return r
}

type fixture struct {
	mon   *Monitor
	dl    *fakeDownloader
	sched *scheduler.Scheduler
	rec   *events.Recorder
	now   time.Time
}

// newFixture builds a monitor over a scheduler that is not started, so
// scheduled work stays pending and can be inspected.
func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		dl:    newFakeDownloader(),
		sched: scheduler.New(scheduler.Config{}),
		rec:   &events.Recorder{},
		now:   time.Date(2024, 6, 10, 12, 0, 0, 0, time.Local),
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = t.TempDir()
	}
	opts = append([]Option{WithPublisher(f.rec), WithClock(func() time.Time { return f.now })}, opts...)
	f.mon = New(cfg, f.dl, testEngines(), f.sched, opts...)
	return f
}

func startScheduler(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAddChannelSchedulesRecurringCheck(t *testing.T) {
	f := newFixture(t, Config{})
	ch, err := f.mon.AddChannel(context.Background(), "veritasium", "Veritasium", nil)
	if err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	if ch.Config != DefaultTranscriptionConfig() || !ch.Enabled {
		t.Errorf("channel = %+v", ch)
	}
	task, ok := f.sched.Get("youtube_check_veritasium")
	if !ok {
		t.Fatal("check task not scheduled")
	}
	if task.Interval != time.Hour || task.Name != "Check YouTube channel: Veritasium" {
		t.Errorf("task = %+v", task)
	}
}

func TestAddChannelUnreachableHasNoSideEffects(t *testing.T) {
	f := newFixture(t, Config{})
	f.dl.infoErr = stderrors.New("HTTP Error 404")
	if _, err := f.mon.AddChannel(context.Background(), "ghost", "Ghost", nil); err == nil {
		t.Fatal("expected error")
	}
	if len(f.mon.ListChannels()) != 0 {
		t.Error("channel stored")
	}
	if _, ok := f.sched.Get("youtube_check_ghost"); ok {
		t.Error("check task scheduled")
	}
}

func TestAddChannelValidatesConfig(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.mon.AddChannel(context.Background(), "c", "C", &TranscriptionConfig{Engine: "nope"})
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown engine: err = %v", err)
	}
	_, err = f.mon.AddChannel(context.Background(), "c", "C", &TranscriptionConfig{OutputFormat: "docx"})
	if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("bad format: err = %v", err)
	}
}

func TestCheckChannelSchedulesDownloadAndTranscription(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.mon.AddChannel(ctx, "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}
	f.dl.setListing("chan",
		downloader.VideoInfo{ID: "v2", Title: "Second"},
		downloader.VideoInfo{ID: "v1", Title: "First"},
	)

	found, err := f.mon.CheckChannel(ctx, "chan")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 || found[0].ID != "v2" || found[0].URL != downloader.WatchURL("v2") {
		t.Fatalf("found = %+v", found)
	}

	dl, ok := f.sched.Get("download_v1")
	if !ok || dl.Name != "Download video: First" || dl.Kind != KindDownload {
		t.Errorf("download task = %+v", dl)
	}
	tr, ok := f.sched.Get("transcribe_v1")
	if !ok || tr.Name != "Transcribe video: First" || !tr.ScheduleTime.Equal(f.now.Add(5*time.Minute)) {
		t.Errorf("transcribe task = %+v", tr)
	}

	ch, _ := f.mon.GetChannel("chan")
	if ch.LastCheck == nil || !ch.LastCheck.Equal(f.now) || ch.LastVideoID != "v2" {
		t.Errorf("channel after check = %+v", ch)
	}
	if got := f.rec.Events(events.TypeVideoDiscovered); len(got) != 2 {
		t.Errorf("discovered events = %d", len(got))
	}

	again, err := f.mon.CheckChannel(ctx, "chan")
	if err != nil || len(again) != 0 {
		t.Errorf("second check = %v, %v", again, err)
	}
}

func TestCheckChannelUploadDateFilter(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.mon.AddChannel(ctx, "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mon.CheckChannel(ctx, "chan"); err != nil {
		t.Fatal(err)
	}

	f.dl.setListing("chan",
		downloader.VideoInfo{ID: "new", UploadDate: "20240611"},
		downloader.VideoInfo{ID: "today", UploadDate: "20240610"},
		downloader.VideoInfo{ID: "weird", UploadDate: "sometime"},
		downloader.VideoInfo{ID: "old", UploadDate: "20240608"},
	)
	found, err := f.mon.CheckChannel(ctx, "chan")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, v := range found {
		ids = append(ids, v.ID)
	}
	if strings.Join(ids, ",") != "new,today,weird" {
		t.Errorf("found = %v, want new,today,weird", ids)
	}
}

func TestCheckChannelFindsSameDayUploadOnLaterCheck(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.mon.AddChannel(ctx, "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mon.CheckChannel(ctx, "chan"); err != nil {
		t.Fatal(err)
	}

	f.dl.setListing("chan", downloader.VideoInfo{ID: "fresh", UploadDate: "20240610"})
	discovered := 0
	for range 24 {
		f.now = f.now.Add(time.Hour)
		found, err := f.mon.CheckChannel(ctx, "chan")
		if err != nil {
			t.Fatal(err)
		}
		discovered += len(found)
	}
	if discovered != 1 {
		t.Errorf("fresh video discovered %d times over 24 hourly checks, want 1", discovered)
	}
}

func TestTaskRetriesZeroIsHonoured(t *testing.T) {
	zero := 0
	f := newFixture(t, Config{TaskRetries: &zero})
	ctx := context.Background()
	if _, err := f.mon.AddChannel(ctx, "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}
	f.dl.setListing("chan", downloader.VideoInfo{ID: "v1"})
	if _, err := f.mon.CheckChannel(ctx, "chan"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{downloadTaskPrefix + "v1", transcribeTaskPrefix + "v1"} {
		task, ok := f.sched.Get(id)
		if !ok || task.MaxRetries != 0 {
			t.Errorf("%s = %+v, %v", id, task, ok)
		}
	}
}

func TestCheckChannelUnknownAndDisabled(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	if _, err := f.mon.CheckChannel(ctx, "missing"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown: err = %v", err)
	}

	_, _ = f.mon.AddChannel(ctx, "chan", "Chan", nil)
	f.dl.setListing("chan", downloader.VideoInfo{ID: "v1"})
	if !f.mon.EnableChannel("chan", false) {
		t.Fatal("EnableChannel returned false")
	}
	found, err := f.mon.CheckChannel(ctx, "chan")
	if err != nil || len(found) != 0 {
		t.Errorf("disabled check = %v, %v", found, err)
	}
	if f.mon.EnableChannel("missing", true) {
		t.Error("EnableChannel on unknown id returned true")
	}
}

func TestCheckAllChannelsIsolatesErrors(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := f.mon.AddChannel(ctx, id, id, nil); err != nil {
			t.Fatal(err)
		}
	}
	f.dl.setListing("a", downloader.VideoInfo{ID: "a1"})
	f.dl.listErr[downloader.ChannelURL("b")] = stderrors.New("rate limited")

	results := f.mon.CheckAllChannels(ctx)
	if len(results["a"]) != 1 {
		t.Errorf("a = %v", results["a"])
	}
	if got, ok := results["b"]; !ok || len(got) != 0 {
		t.Errorf("b = %v (present=%v)", got, ok)
	}
	if _, ok := results["c"]; ok {
		t.Error("channel without new videos should be omitted")
	}
}

func TestRemoveChannel(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, _ = f.mon.AddChannel(ctx, "chan", "Chan", nil)
	if !f.mon.RemoveChannel(ctx, "chan") {
		t.Fatal("RemoveChannel returned false")
	}
	if task, _ := f.sched.Get("youtube_check_chan"); task.Status != scheduler.StatusCancelled {
		t.Errorf("check task status = %s", task.Status)
	}
	if f.mon.RemoveChannel(ctx, "chan") {
		t.Error("second remove returned true")
	}
}

func TestTranscribeBeforeDownloadFails(t *testing.T) {
	f := newFixture(t, Config{})
	v := &Video{VideoInfo: downloader.VideoInfo{ID: "v1"}, ChannelID: "chan"}
	_, err := f.mon.transcribeTask(v)(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not downloaded") {
		t.Errorf("err = %v", err)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	archiveDir := t.TempDir()
	archive, err := local.NewStorage(archiveDir)
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, Config{TranscribeDelay: 20 * time.Millisecond}, WithArchive(archive, "transcripts"))
	f.sched = scheduler.New(scheduler.Config{TickInterval: 5 * time.Millisecond},
		scheduler.WithBackoff(func(int) time.Duration { return 10 * time.Millisecond }))
	f.mon.sched = f.sched
	f.mon.now = time.Now
	startScheduler(t, f.sched)

	f.dl.setListing("chan", downloader.VideoInfo{ID: "abc", Title: "Talk"})
	if _, err := f.mon.AddChannel(context.Background(), "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "transcription", func() bool {
		task, ok := f.sched.Get("transcribe_abc")
		return ok && task.Status == scheduler.StatusCompleted
	})

	v, ok := f.mon.GetVideo("abc")
	if !ok || !v.Downloaded || !v.Transcribed {
		t.Fatalf("video = %+v", v)
	}
	want := filepath.Join(f.mon.Config().DownloadDir, "chan", "abc.srt")
	if v.TranscriptPath != want {
		t.Errorf("transcript path = %q, want %q", v.TranscriptPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || !strings.Contains(string(data), "hello there") {
		t.Errorf("transcript = %q, %v", data, err)
	}
	if v.ArchiveKey != "transcripts/chan/abc.srt" {
		t.Errorf("archive key = %q", v.ArchiveKey)
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "transcripts", "chan", "abc.srt")); err != nil {
		t.Errorf("archived file: %v", err)
	}
	if len(f.rec.Events(events.TypeVideoTranscribed)) != 1 {
		t.Error("transcribed event not published")
	}

	st := f.mon.ProcessingStatus(context.Background())
	if st.Channels != 1 || st.ProcessedVideos != 1 || st.CompletedTasks != 2 || st.FailedTasks != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestReactiveTranscription(t *testing.T) {
	f := newFixture(t, Config{Reactive: true})
	ctx := context.Background()
	_, _ = f.mon.AddChannel(ctx, "chan", "Chan", nil)
	f.dl.setListing("chan", downloader.VideoInfo{ID: "v1", Title: "One"})
	if _, err := f.mon.CheckChannel(ctx, "chan"); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.sched.Get("transcribe_v1"); ok {
		t.Fatal("reactive mode should not schedule transcription up front")
	}

	v := f.mon.videos["v1"]
	if _, err := f.mon.downloadTask(v)(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.sched.Get("transcribe_v1"); !ok {
		t.Error("transcription not scheduled after download")
	}
}

func TestDownloadFailureRecordsError(t *testing.T) {
	f := newFixture(t, Config{})
	f.dl.dlErr = stderrors.New("yt-dlp: video unavailable")
	v := &Video{VideoInfo: downloader.VideoInfo{ID: "v1", URL: downloader.WatchURL("v1")}, ChannelID: "chan"}
	f.mon.videos["v1"] = v
	if _, err := f.mon.downloadTask(v)(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	got, _ := f.mon.GetVideo("v1")
	if got.Downloaded || !strings.Contains(got.Error, "unavailable") {
		t.Errorf("video = %+v", got)
	}
	if len(f.rec.Events(events.TypeVideoFailed)) != 1 {
		t.Error("failure event not published")
	}
}

func TestCleanupOldFiles(t *testing.T) {
	f := newFixture(t, Config{})
	dir := filepath.Join(f.mon.Config().DownloadDir, "chan")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	oldFile := filepath.Join(dir, "old.mp3")
	newFile := filepath.Join(dir, "new.mp3")
	for _, p := range []string{oldFile, newFile} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := f.now.Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(newFile, f.now, f.now); err != nil {
		t.Fatal(err)
	}

	n, err := f.mon.CleanupOldFiles(context.Background(), 0)
	if err != nil || n != 1 {
		t.Fatalf("removed = %d, err = %v", n, err)
	}
	if _, err := os.Stat(newFile); err != nil {
		t.Error("recent file removed")
	}
}

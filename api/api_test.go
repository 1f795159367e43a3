package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-subtitle/auth"
	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/service"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

func init() { gin.SetMode(gin.TestMode) }

type stubBackend struct{}

func (stubBackend) Name() string                     { return "whispercpp" }
func (stubBackend) IsAvailable(context.Context) bool { return true }
func (stubBackend) AvailableModels() []string        { return []string{"base"} }
func (stubBackend) SupportedLanguages() []string     { return []string{"en"} }
func (stubBackend) Transcribe(_ context.Context, req engine.Request) (*engine.Result, error) {
	if strings.Contains(req.AudioPath, "corrupt") {
		return engine.Failed("whispercpp", "decoder error"), nil
	}
	return engine.Succeeded("", []subtitle.Segment{{Start: 0, End: 1.5, Text: "hello"}}, "en"), nil
}

type stubDownloader struct{}

func (stubDownloader) Info(context.Context, string) (*downloader.VideoInfo, error) {
	return &downloader.VideoInfo{ID: "chan"}, nil
}
func (stubDownloader) ListRecent(context.Context, string, int) ([]downloader.VideoInfo, error) {
	return []downloader.VideoInfo{{ID: "vid1", Title: "First", UploadDate: "20240610"}}, nil
}
func (stubDownloader) Download(context.Context, string, string, bool) (string, error) {
	return "", os.ErrNotExist
}

type fixture struct {
	router *gin.Engine
	sched  *scheduler.Scheduler
	dir    string
}

func newFixture(t *testing.T, mw ...gin.HandlerFunc) *fixture {
	t.Helper()
	dir := t.TempDir()
	reg := engine.NewRegistry(engine.Config{}, nil)
	reg.Register("whispercpp", func(map[string]any) (engine.Backend, error) { return stubBackend{}, nil })
	sched := scheduler.New(scheduler.Config{})
	mon := monitor.New(monitor.Config{DownloadDir: filepath.Join(dir, "downloads")}, stubDownloader{}, reg, sched)
	svc := service.New(reg, sched, mon, engine.Config{OutputDir: filepath.Join(dir, "out")})

	router := gin.New()
	NewHandler(svc, Config{UploadDir: filepath.Join(dir, "uploads")}, logger.Nop()).Register(router, mw...)
	return &fixture{router: router, sched: sched, dir: dir}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) audio(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	if err := os.WriteFile(p, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) envelope {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d: %s", w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
	}
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) string {
	t.Helper()
	env := decode(t, w, wantStatus)
	if env.Error == nil {
		t.Fatalf("no error envelope: %s", w.Body.String())
	}
	return env.Error.Code
}

func TestEngines(t *testing.T) {
	f := newFixture(t)

	env := decode(t, f.do(http.MethodGet, "/api/v1/engines", nil), http.StatusOK)
	var all map[string]engine.Descriptor
	if err := json.Unmarshal(env.Data, &all); err != nil {
		t.Fatal(err)
	}
	if d, ok := all["whispercpp"]; !ok || !d.Ready {
		t.Errorf("engines = %+v", all)
	}

	env = decode(t, f.do(http.MethodGet, "/api/v1/engines/available", nil), http.StatusOK)
	if string(env.Data) != `["whispercpp"]` {
		t.Errorf("available = %s", env.Data)
	}

	decode(t, f.do(http.MethodGet, "/api/v1/engines/whispercpp", nil), http.StatusOK)
	if code := errorCode(t, f.do(http.MethodGet, "/api/v1/engines/nope", nil), http.StatusNotFound); code != "NOT_FOUND" {
		t.Errorf("code = %s", code)
	}
}

func TestTranscribeJSON(t *testing.T) {
	f := newFixture(t)
	file := f.audio(t, "talk.wav")

	env := decode(t, f.do(http.MethodPost, "/api/v1/transcriptions", gin.H{"file_path": file, "output_format": "vtt"}), http.StatusOK)
	var res engine.Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Text != "hello" || !strings.HasSuffix(res.OutputPath, ".vtt") {
		t.Errorf("result = %+v", res)
	}
}

func TestTranscribeValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing path", gin.H{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad format", gin.H{"file_path": "/a.wav", "output_format": "docx"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown engine", gin.H{"file_path": "/a.wav", "engine": "nope"}, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := errorCode(t, f.do(http.MethodPost, "/api/v1/transcriptions", tt.body), tt.status); code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if code := errorCode(t, w, http.StatusBadRequest); code != "INVALID_INPUT" {
		t.Errorf("malformed code = %s", code)
	}
}

func TestTranscribeEngineFailure(t *testing.T) {
	f := newFixture(t)
	file := f.audio(t, "corrupt.wav")
	w := f.do(http.MethodPost, "/api/v1/transcriptions", gin.H{"file_path": file})
	env := decode(t, w, http.StatusBadGateway)
	if env.Error == nil || env.Error.Details["error"] != "decoder error" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestTranscribeMultipartUpload(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("output_format", "srt")
	part, err := mw.CreateFormFile("file", "lecture.mp3")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("ID3"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	env := decode(t, w, http.StatusOK)
	var res engine.Result
	_ = json.Unmarshal(env.Data, &res)
	if !res.Success || !strings.HasSuffix(res.OutputPath, ".srt") {
		t.Errorf("result = %+v", res)
	}
	left, _ := os.ReadDir(filepath.Join(f.dir, "uploads"))
	if len(left) != 0 {
		t.Errorf("upload not removed: %d files", len(left))
	}
}

func TestTranscribeMultipartMissingFile(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("engine", "whispercpp")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if code := errorCode(t, w, http.StatusBadRequest); code != "INVALID_INPUT" {
		t.Errorf("code = %s", code)
	}
}

func TestInitializeEngine(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/engines/whispercpp/initialize", nil)
	env := decode(t, w, http.StatusAccepted)
	var accepted struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(env.Data, &accepted)
	if !strings.HasPrefix(accepted.TaskID, "initialize_whispercpp_") {
		t.Fatalf("task id = %q", accepted.TaskID)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/tasks/"+accepted.TaskID {
		t.Errorf("location = %q", loc)
	}

	env = decode(t, f.do(http.MethodGet, "/api/v1/tasks/"+accepted.TaskID, nil), http.StatusOK)
	var task scheduler.Task
	_ = json.Unmarshal(env.Data, &task)
	if task.Kind != service.KindInitialize || task.Status != scheduler.StatusPending {
		t.Errorf("task = %+v", task)
	}

	if code := errorCode(t, f.do(http.MethodPost, "/api/v1/engines/nope/initialize", nil), http.StatusNotFound); code != "NOT_FOUND" {
		t.Errorf("unknown engine code = %s", code)
	}
}

func TestAsyncTranscriptionAndTasks(t *testing.T) {
	f := newFixture(t)
	file := f.audio(t, "talk.wav")

	w := f.do(http.MethodPost, "/api/v1/transcriptions/async", gin.H{"file_path": file})
	env := decode(t, w, http.StatusAccepted)
	var accepted struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(env.Data, &accepted)
	if !strings.HasPrefix(accepted.TaskID, "transcription_") {
		t.Fatalf("task id = %q", accepted.TaskID)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/tasks/"+accepted.TaskID {
		t.Errorf("location = %q", loc)
	}

	env = decode(t, f.do(http.MethodGet, "/api/v1/tasks/"+accepted.TaskID, nil), http.StatusOK)
	var task scheduler.Task
	_ = json.Unmarshal(env.Data, &task)
	if task.Status != scheduler.StatusPending || task.Kind != service.KindTranscription {
		t.Errorf("task = %+v", task)
	}

	env = decode(t, f.do(http.MethodGet, "/api/v1/tasks?status=pending&limit=10", nil), http.StatusOK)
	var tasks []scheduler.Task
	_ = json.Unmarshal(env.Data, &tasks)
	if len(tasks) != 1 || env.Meta["total"] != float64(1) {
		t.Errorf("tasks = %+v meta = %v", tasks, env.Meta)
	}

	decode(t, f.do(http.MethodDelete, "/api/v1/tasks/"+accepted.TaskID, nil), http.StatusOK)
	if code := errorCode(t, f.do(http.MethodDelete, "/api/v1/tasks/"+accepted.TaskID, nil), http.StatusConflict); code != "CONFLICT" {
		t.Errorf("second cancel code = %s", code)
	}
	errorCode(t, f.do(http.MethodGet, "/api/v1/tasks/missing", nil), http.StatusNotFound)
	errorCode(t, f.do(http.MethodGet, "/api/v1/tasks?status=bogus", nil), http.StatusBadRequest)
	errorCode(t, f.do(http.MethodGet, "/api/v1/tasks?limit=abc", nil), http.StatusBadRequest)

	env = decode(t, f.do(http.MethodGet, "/api/v1/tasks/stats", nil), http.StatusOK)
	if !strings.Contains(string(env.Data), `"cancelled":1`) {
		t.Errorf("stats = %s", env.Data)
	}
}

func TestCleanupTasks(t *testing.T) {
	f := newFixture(t)
	env := decode(t, f.do(http.MethodPost, "/api/v1/tasks/cleanup", gin.H{"older_than": "1d"}), http.StatusOK)
	if !strings.Contains(string(env.Data), `"older_than":"24h0m0s"`) {
		t.Errorf("data = %s", env.Data)
	}
	decode(t, f.do(http.MethodPost, "/api/v1/tasks/cleanup", nil), http.StatusOK)
	errorCode(t, f.do(http.MethodPost, "/api/v1/tasks/cleanup", gin.H{"older_than": "soon"}), http.StatusBadRequest)
}

func TestTaskHistoryWithoutStore(t *testing.T) {
	f := newFixture(t)
	if code := errorCode(t, f.do(http.MethodGet, "/api/v1/tasks/history", nil), http.StatusServiceUnavailable); code != "SERVICE_UNAVAILABLE" {
		t.Errorf("code = %s", code)
	}
	errorCode(t, f.do(http.MethodGet, "/api/v1/tasks/history?limit=0", nil), http.StatusBadRequest)
}

func TestChannelLifecycle(t *testing.T) {
	f := newFixture(t)

	env := decode(t, f.do(http.MethodPost, "/api/v1/channels", gin.H{"id": "chan", "name": "Chan"}), http.StatusCreated)
	var ch monitor.Channel
	_ = json.Unmarshal(env.Data, &ch)
	if ch.ID != "chan" || !ch.Enabled || ch.Config.Engine != "whispercpp" {
		t.Errorf("channel = %+v", ch)
	}
	errorCode(t, f.do(http.MethodPost, "/api/v1/channels", gin.H{"id": "bad id!"}), http.StatusBadRequest)

	env = decode(t, f.do(http.MethodGet, "/api/v1/channels", nil), http.StatusOK)
	var list []monitor.Channel
	_ = json.Unmarshal(env.Data, &list)
	if len(list) != 1 {
		t.Errorf("channels = %+v", list)
	}

	env = decode(t, f.do(http.MethodPost, "/api/v1/channels/chan/check", nil), http.StatusOK)
	if !strings.Contains(string(env.Data), `"id":"vid1"`) {
		t.Errorf("check = %s", env.Data)
	}
	env = decode(t, f.do(http.MethodGet, "/api/v1/channels/chan/videos", nil), http.StatusOK)
	if !strings.Contains(string(env.Data), `"channel_id":"chan"`) {
		t.Errorf("videos = %s", env.Data)
	}
	env = decode(t, f.do(http.MethodPost, "/api/v1/channels/check", nil), http.StatusOK)
	if !strings.Contains(string(env.Data), `"total":0`) {
		t.Errorf("check all = %s", env.Data)
	}

	env = decode(t, f.do(http.MethodPatch, "/api/v1/channels/chan", gin.H{"enabled": false}), http.StatusOK)
	_ = json.Unmarshal(env.Data, &ch)
	if ch.Enabled {
		t.Error("channel still enabled")
	}
	errorCode(t, f.do(http.MethodPatch, "/api/v1/channels/chan", gin.H{}), http.StatusBadRequest)

	env = decode(t, f.do(http.MethodGet, "/api/v1/channels/status", nil), http.StatusOK)
	var st monitor.Status
	_ = json.Unmarshal(env.Data, &st)
	if st.Channels != 1 || st.ProcessedVideos != 1 {
		t.Errorf("status = %+v", st)
	}

	decode(t, f.do(http.MethodDelete, "/api/v1/channels/chan", nil), http.StatusNoContent)
	errorCode(t, f.do(http.MethodDelete, "/api/v1/channels/chan", nil), http.StatusNotFound)
	errorCode(t, f.do(http.MethodGet, "/api/v1/channels/chan", nil), http.StatusNotFound)
}

func TestCleanupFiles(t *testing.T) {
	f := newFixture(t)
	env := decode(t, f.do(http.MethodPost, "/api/v1/files/cleanup", gin.H{"older_than": "30d"}), http.StatusOK)
	if !strings.Contains(string(env.Data), `"removed":0`) {
		t.Errorf("data = %s", env.Data)
	}
}

func TestConvertSubtitle(t *testing.T) {
	f := newFixture(t)
	srt := "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n"
	env := decode(t, f.do(http.MethodPost, "/api/v1/subtitles/convert", gin.H{"content": srt, "from": "srt", "to": "vtt"}), http.StatusOK)
	var out struct {
		Content string `json:"content"`
	}
	_ = json.Unmarshal(env.Data, &out)
	if !strings.HasPrefix(out.Content, "WEBVTT") || !strings.Contains(out.Content, "00:00:01.500") {
		t.Errorf("content = %q", out.Content)
	}
	errorCode(t, f.do(http.MethodPost, "/api/v1/subtitles/convert", gin.H{"content": srt, "from": "srt", "to": "docx"}), http.StatusBadRequest)
}

func TestAuthMiddleware(t *testing.T) {
	svc, err := auth.NewService(auth.Config{Enabled: true, Secret: strings.Repeat("s", 32)})
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, Middleware(svc, 0)...)

	if code := errorCode(t, f.do(http.MethodGet, "/api/v1/engines", nil), http.StatusUnauthorized); code != "UNAUTHORIZED" {
		t.Errorf("code = %s", code)
	}

	token, err := svc.Generate("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/engines", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	decode(t, w, http.StatusOK)
}

func TestRateLimitMiddleware(t *testing.T) {
	f := newFixture(t, Middleware(nil, 2)...)
	for range 2 {
		decode(t, f.do(http.MethodGet, "/api/v1/engines/available", nil), http.StatusOK)
	}
	if code := errorCode(t, f.do(http.MethodGet, "/api/v1/engines/available", nil), http.StatusTooManyRequests); code != "RATE_LIMITED" {
		t.Errorf("code = %s", code)
	}
}

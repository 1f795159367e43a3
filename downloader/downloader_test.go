package downloader

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/kbukum/whisper-subtitle/process"
)

const channelJSON = `{
  "_type": "playlist", "id": "UC123", "title": "Some Channel", "channel": "Some Channel",
  "webpage_url": "https://www.youtube.com/@some",
  "entries": [
    {"_type": "playlist", "title": "Videos", "entries": [
      {"_type": "url", "id": "vid3", "title": "Third", "url": "https://www.youtube.com/watch?v=vid3", "upload_date": "20240303"},
      {"_type": "url", "id": "vid2", "title": "Second", "upload_date": "20240302"},
      {"_type": "url", "id": "", "title": "broken"}
    ]},
    {"_type": "url", "id": "vid1", "title": "First", "duration": 61.5}
  ]
}`

func fakeRunner(stdout string, err error, seen *process.Command) process.Runner {
	return process.RunnerFunc(func(_ context.Context, cmd process.Command) (*process.Result, error) {
		if seen != nil {
			*seen = cmd
		}
		return &process.Result{Stdout: []byte(stdout), Stderr: []byte("ERROR: unavailable")}, err
	})
}

func TestListRecentFlattensTabs(t *testing.T) {
	var cmd process.Command
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner(channelJSON, nil, &cmd), nil)
	videos, err := y.ListRecent(context.Background(), "https://www.youtube.com/@some", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("videos = %+v", videos)
	}
	if videos[0].ID != "vid3" || videos[1].URL != WatchURL("vid2") || videos[2].Duration != 61.5 {
		t.Errorf("videos = %+v", videos)
	}
	if !slices.Contains(cmd.Args, "--flat-playlist") || !slices.Contains(cmd.Args, "10") {
		t.Errorf("args = %v", cmd.Args)
	}
}

func TestListRecentCapsResults(t *testing.T) {
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner(channelJSON, nil, nil), nil)
	videos, err := y.ListRecent(context.Background(), "u", 2)
	if err != nil || len(videos) != 2 {
		t.Fatalf("videos = %v, err = %v", videos, err)
	}
}

func TestInfo(t *testing.T) {
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner(channelJSON, nil, nil), nil)
	info, err := y.Info(context.Background(), "https://www.youtube.com/@some")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "UC123" || info.Uploader != "Some Channel" {
		t.Errorf("info = %+v", info)
	}
}

func TestInfoFailure(t *testing.T) {
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner("", errors.New("exit status 1"), nil), nil)
	_, err := y.Info(context.Background(), "https://www.youtube.com/@missing")
	if err == nil || !strings.Contains(err.Error(), "unavailable") {
		t.Fatalf("err = %v", err)
	}
}

func TestDownloadAudio(t *testing.T) {
	var cmd process.Command
	out := "[download] 100%\n/data/chan/vid1.mp3\n"
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner(out, nil, &cmd), nil)
	path, err := y.Download(context.Background(), WatchURL("vid1"), "/data/chan", true)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/data/chan/vid1.mp3" {
		t.Errorf("path = %q", path)
	}
	args := strings.Join(cmd.Args, " ")
	if !strings.Contains(args, "-x --audio-format mp3") || !strings.Contains(args, "-P /data/chan") {
		t.Errorf("args = %s", args)
	}
}

func TestDownloadEmptyOutput(t *testing.T) {
	y := New(Config{Rate: 100, Burst: 10}, fakeRunner("  \n", nil, nil), nil)
	if _, err := y.Download(context.Background(), "u", "/tmp", false); err == nil {
		t.Fatal("expected error")
	}
}

func TestRateLimitRespectsContext(t *testing.T) {
	y := New(Config{Rate: 0.001, Burst: 1}, fakeRunner(channelJSON, nil, nil), nil)
	if _, err := y.Info(context.Background(), "u"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := y.Info(ctx, "u"); err == nil {
		t.Fatal("expected rate limit wait to fail on a cancelled context")
	}
}

func TestChannelURL(t *testing.T) {
	tests := map[string]string{
		"veritasium":                  "https://www.youtube.com/@veritasium",
		"@veritasium":                 "https://www.youtube.com/@veritasium",
		"https://youtube.com/c/other": "https://youtube.com/c/other",
	}
	for in, want := range tests {
		if got := ChannelURL(in); got != want {
			t.Errorf("ChannelURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Binary != "yt-dlp" || c.Rate != 0.5 || c.Burst != 2 || c.AudioFormat != "mp3" {
		t.Errorf("defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
	c.AudioFormat = "xyz"
	if c.Validate() == nil {
		t.Error("expected validation error")
	}
}

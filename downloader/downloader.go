// Package downloader fetches media metadata and audio with yt-dlp.
package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/process"
	"github.com/kbukum/whisper-subtitle/resilience"
)

// VideoInfo is the metadata of one media item.
type VideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Uploader string  `json:"uploader,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	// UploadDate is YYYYMMDD as reported by yt-dlp, possibly empty.
	UploadDate string `json:"upload_date,omitempty"`
}

// Config configures yt-dlp invocations.
type Config struct {
	Binary          string        `yaml:"binary" mapstructure:"binary"`
	Rate            float64       `yaml:"rate" mapstructure:"rate"`
	Burst           int           `yaml:"burst" mapstructure:"burst"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" mapstructure:"metadata_timeout"`
	AudioFormat     string        `yaml:"audio_format" mapstructure:"audio_format"`
}

// ApplyDefaults fills unset options.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = "yt-dlp"
	}
	if c.Rate <= 0 {
		c.Rate = 0.5
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.MetadataTimeout <= 0 {
		c.MetadataTimeout = 2 * time.Minute
	}
	if c.AudioFormat == "" {
		c.AudioFormat = "mp3"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.AudioFormat {
	case "mp3", "m4a", "wav", "opus", "flac", "best":
		return nil
	}
	return fmt.Errorf("downloader.audio_format %q is not supported", c.AudioFormat)
}

// YTDLP runs yt-dlp through a process.Runner. Calls are rate limited.
type YTDLP struct {
	cfg     Config
	runner  process.Runner
	limiter *resilience.RateLimiter
	metrics *observability.Metrics
	log     *logger.Logger
}

// New creates a YTDLP. A nil runner executes real processes.
func New(cfg Config, runner process.Runner, metrics *observability.Metrics) *YTDLP {
	cfg.ApplyDefaults()
	if runner == nil {
		runner = process.Exec
	}
	return &YTDLP{
		cfg:    cfg,
		runner: runner,
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:  "yt-dlp",
			Rate:  cfg.Rate,
			Burst: cfg.Burst,
		}),
		metrics: metrics,
		log:     logger.WithComponent("downloader"),
	}
}

// Available reports whether the yt-dlp binary can be found.
func (y *YTDLP) Available() bool {
	_, ok := process.Locate([]string{y.cfg.Binary})
	return ok
}

// Info returns metadata for url. For a channel or playlist this describes
// the collection itself.
func (y *YTDLP) Info(ctx context.Context, url string) (*VideoInfo, error) {
	out, err := y.run(ctx, y.cfg.MetadataTimeout, "-J", "--flat-playlist", "--playlist-end", "1", "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	var doc entry
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("decode yt-dlp info: %w", err)
	}
	info := doc.info()
	return &info, nil
}

// ListRecent returns up to max of the most recent items at url, newest
// first, flattening channel tabs.
func (y *YTDLP) ListRecent(ctx context.Context, url string, max int) ([]VideoInfo, error) {
	if max <= 0 {
		max = 10
	}
	out, err := y.run(ctx, y.cfg.MetadataTimeout,
		"-J", "--flat-playlist", "--playlist-end", strconv.Itoa(max), "--no-warnings", url)
	if err != nil {
		return nil, err
	}
	var doc entry
	if err := json.Unmarshal(out, &doc); err != nil {
		return nil, fmt.Errorf("decode yt-dlp playlist: %w", err)
	}
	videos := doc.flatten(nil)
	if len(videos) > max {
		videos = videos[:max]
	}
	return videos, nil
}

// Download saves url into destDir and returns the final file path. With
// audioOnly the audio track is extracted in the configured format.
func (y *YTDLP) Download(ctx context.Context, url, destDir string, audioOnly bool) (string, error) {
	args := []string{
		"--no-playlist",
		"--restrict-filenames",
		"--no-warnings",
		"-P", destDir,
		"-o", "%(id)s.%(ext)s",
		"--print", "after_move:filepath",
	}
	if audioOnly {
		args = append(args, "-x", "--audio-format", y.cfg.AudioFormat)
	}
	args = append(args, url)

	start := time.Now()
	out, err := y.run(ctx, y.cfg.Timeout, args...)
	if err == nil {
		out = lastLine(out)
		if len(out) == 0 {
			err = fmt.Errorf("yt-dlp reported no output file for %s", url)
		}
	}
	y.metrics.RecordDownload(ctx, err == nil)
	if err != nil {
		return "", err
	}
	path := string(out)
	y.log.Info("download completed", logger.Fields("url", url, "path", path, logger.FieldDuration, time.Since(start).Milliseconds()))
	return path, nil
}

func (y *YTDLP) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yt-dlp rate limit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := process.Command{Binary: y.cfg.Binary, Args: args}
	y.log.Debug("running yt-dlp", logger.Fields("command", cmd.String()))
	res, err := y.runner.Run(ctx, cmd)
	if err != nil {
		if tail := res.StderrTail(500); tail != "" {
			return nil, fmt.Errorf("yt-dlp failed: %s: %w", tail, err)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	if len(bytes.TrimSpace(res.Stdout)) == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return res.Stdout, nil
}

// entry is the subset of yt-dlp's JSON used here. Playlists nest entries.
type entry struct {
	Type       string  `json:"_type"`
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	UploadDate string  `json:"upload_date"`
	Entries    []entry `json:"entries"`
}

func (e entry) info() VideoInfo {
	url := e.WebpageURL
	if url == "" {
		url = e.URL
	}
	if url == "" && e.ID != "" {
		url = WatchURL(e.ID)
	}
	uploader := e.Uploader
	if uploader == "" {
		uploader = e.Channel
	}
	title := e.Title
	if title == "" {
		title = "Unknown"
	}
	return VideoInfo{
		ID:         e.ID,
		Title:      title,
		URL:        url,
		Uploader:   uploader,
		Duration:   e.Duration,
		UploadDate: e.UploadDate,
	}
}

func (e entry) flatten(out []VideoInfo) []VideoInfo {
	for _, child := range e.Entries {
		if child.Type == "playlist" || len(child.Entries) > 0 {
			out = child.flatten(out)
			continue
		}
		if child.ID == "" {
			continue
		}
		out = append(out, child.info())
	}
	return out
}

func lastLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return bytes.TrimSpace(lines[len(lines)-1])
}

// ChannelURL returns the canonical URL of a YouTube channel handle.
func ChannelURL(channelID string) string {
	if strings.HasPrefix(channelID, "http://") || strings.HasPrefix(channelID, "https://") {
		return channelID
	}
	return "https://www.youtube.com/@" + strings.TrimPrefix(channelID, "@")
}

// WatchURL returns the watch URL of a YouTube video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

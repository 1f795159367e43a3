package monitor

import (
	"time"

	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/subtitle"
)

// Task id prefixes and name prefixes used for channel work.
const (
	checkTaskPrefix      = "youtube_check_"
	downloadTaskPrefix   = "download_"
	transcribeTaskPrefix = "transcribe_"

	downloadNamePrefix   = "Download video: "
	transcribeNamePrefix = "Transcribe video: "
	checkNamePrefix      = "Check YouTube channel: "
)

// Task kinds, used for metrics and history filtering.
const (
	KindCheck      = "channel_check"
	KindDownload   = "download"
	KindTranscribe = "transcribe"
)

// TranscriptionConfig selects how a channel's videos are transcribed.
type TranscriptionConfig struct {
	Engine       string `json:"engine" mapstructure:"engine"`
	Model        string `json:"model" mapstructure:"model"`
	Language     string `json:"language" mapstructure:"language"`
	OutputFormat string `json:"output_format" mapstructure:"output_format"`
}

// DefaultTranscriptionConfig is used when a channel is added without one.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		Engine:       "whispercpp",
		Model:        "base",
		Language:     engine.LanguageAuto,
		OutputFormat: string(subtitle.FormatSRT),
	}
}

// withDefaults fills empty fields from DefaultTranscriptionConfig.
func (c TranscriptionConfig) withDefaults() TranscriptionConfig {
	d := DefaultTranscriptionConfig()
	if c.Engine == "" {
		c.Engine = d.Engine
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.OutputFormat == "" {
		c.OutputFormat = d.OutputFormat
	}
	return c
}

// format returns the parsed output format. Only file formats are accepted.
func (c TranscriptionConfig) format() (subtitle.Format, error) {
	f, err := subtitle.ParseFormat(c.OutputFormat)
	if err != nil || f == subtitle.FormatNone {
		return "", errors.InvalidInput("output_format", "must be one of srt, vtt, txt, json")
	}
	return f, nil
}

// Channel is a monitored YouTube channel.
type Channel struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Enabled     bool                `json:"enabled"`
	LastCheck   *time.Time          `json:"last_check,omitempty"`
	LastVideoID string              `json:"last_video_id,omitempty"`
	Config      TranscriptionConfig `json:"transcription_config"`
	AddedAt     time.Time           `json:"added_at"`
}

// URL returns the channel page URL.
func (c Channel) URL() string { return downloader.ChannelURL(c.ID) }

// Video is a discovered upload and its processing state.
type Video struct {
	downloader.VideoInfo
	ChannelID      string    `json:"channel_id"`
	Downloaded     bool      `json:"downloaded"`
	FilePath       string    `json:"file_path,omitempty"`
	Transcribed    bool      `json:"transcribed"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	ArchiveKey     string    `json:"archive_key,omitempty"`
	Error          string    `json:"error,omitempty"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// Status summarizes channel processing.
type Status struct {
	Channels        int `json:"channels"`
	ProcessedVideos int `json:"processed_videos"`
	ActiveTasks     int `json:"active_tasks"`
	CompletedTasks  int `json:"completed_tasks"`
	FailedTasks     int `json:"failed_tasks"`
}

package monitor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/events"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/storage"
	"github.com/kbukum/whisper-subtitle/storage/local"
)

// singleDir holds downloads that belong to no monitored channel.
const singleDir = "single"

// downloadTask fetches the audio of v into <download_dir>/<channel>.
func (m *Monitor) downloadTask(v *Video) scheduler.Func {
	return func(ctx context.Context) (any, error) {
		dest := filepath.Join(m.cfg.DownloadDir, v.ChannelID)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return nil, fmt.Errorf("create download dir: %w", err)
		}
		log := m.log.WithFields(logger.Fields(logger.FieldVideoID, v.ID, logger.FieldChannelID, v.ChannelID))
		log.Info("downloading video", logger.Fields("title", v.Title))

		file, err := m.dl.Download(ctx, v.URL, dest, true)
		if err != nil {
			m.setError(v, err)
			m.publish(ctx, events.TypeVideoFailed, v, map[string]any{"stage": "download", "error": err.Error()})
			return nil, err
		}

		m.mu.Lock()
		v.Downloaded = true
		v.FilePath = file
		v.Error = ""
		m.mu.Unlock()
		m.publish(ctx, events.TypeVideoDownloaded, v, map[string]any{"file_path": file})

		if m.cfg.Reactive {
			_, err := m.sched.Schedule(transcribeTaskPrefix+v.ID, transcribeNamePrefix+v.Title,
				m.transcribeTask(v),
				scheduler.WithKind(KindTranscribe),
				scheduler.WithMaxRetries(*m.cfg.TaskRetries),
			)
			if err != nil {
				log.Warn("failed to schedule transcription", logger.ErrorFields("schedule_transcription", err))
			}
		}
		return map[string]any{"file_path": file}, nil
	}
}

// DownloadVideo fetches the audio of a single video URL into
// <download_dir>/single and returns the local path.
func (m *Monitor) DownloadVideo(ctx context.Context, url string) (string, error) {
	dest := filepath.Join(m.cfg.DownloadDir, singleDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	m.log.Info("downloading video", logger.Fields("url", url))
	return m.dl.Download(ctx, url, dest, true)
}

// transcribeTask transcribes a downloaded video and writes <stem>.<fmt>
// next to the audio file. It fails when the download has not finished, so
// scheduler retries cover a slow download.
func (m *Monitor) transcribeTask(v *Video) scheduler.Func {
	return func(ctx context.Context) (any, error) {
		m.mu.RLock()
		downloaded, file := v.Downloaded, v.FilePath
		cfg := DefaultTranscriptionConfig()
		if ch, ok := m.channels[v.ChannelID]; ok {
			cfg = ch.Config.withDefaults()
		}
		m.mu.RUnlock()

		if !downloaded || file == "" {
			return nil, fmt.Errorf("video %s not downloaded", v.ID)
		}
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("video %s not downloaded: file %s missing", v.ID, file)
		}
		format, err := cfg.format()
		if err != nil {
			return nil, err
		}

		eng, err := m.engines.GetEngine(cfg.Engine, nil)
		if err != nil {
			m.setError(v, err)
			return nil, err
		}
		res := eng.Transcribe(ctx, engine.Request{
			AudioPath: file,
			Model:     cfg.Model,
			Language:  cfg.Language,
		})
		if !res.Success {
			err := fmt.Errorf("transcription failed: %s", res.Error)
			m.setError(v, err)
			m.publish(ctx, events.TypeVideoFailed, v, map[string]any{"stage": "transcribe", "error": res.Error})
			return nil, err
		}

		content, err := engine.RenderResult(res, format)
		if err != nil {
			return nil, err
		}
		stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		out := filepath.Join(filepath.Dir(file), stem+"."+format.Extension())
		if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write transcript: %w", err)
		}

		key := m.archiveTranscript(ctx, v, out, content)

		m.mu.Lock()
		v.Transcribed = true
		v.TranscriptPath = out
		v.ArchiveKey = key
		v.Error = ""
		m.mu.Unlock()

		m.publish(ctx, events.TypeVideoTranscribed, v, map[string]any{
			"transcript_path": out,
			"archive_key":     key,
			"engine":          res.Engine,
			"model":           res.Model,
			"language":        res.Language,
			"segments":        len(res.Segments),
		})
		m.log.Info("video transcribed", logger.Fields(logger.FieldVideoID, v.ID, "path", out))
		return map[string]any{
			"transcript_path": out,
			"language":        res.Language,
			"segments":        len(res.Segments),
		}, nil
	}
}

// archiveTranscript uploads the transcript when an archive is configured
// and returns its key. Upload failures are logged, not returned: the local
// transcript already exists.
func (m *Monitor) archiveTranscript(ctx context.Context, v *Video, file, content string) string {
	if m.archive == nil {
		return ""
	}
	key := path.Join(v.ChannelID, filepath.Base(file))
	if m.archivePrefix != "" {
		key = m.archivePrefix + "/" + key
	}
	if err := storage.UploadString(ctx, m.archive, key, content); err != nil {
		m.log.Warn("transcript archive failed", logger.Fields(logger.FieldVideoID, v.ID, "key", key, logger.FieldError, err.Error()))
		return ""
	}
	return key
}

func (m *Monitor) setError(v *Video, err error) {
	m.mu.Lock()
	v.Error = err.Error()
	m.mu.Unlock()
}

// CleanupOldFiles deletes files under the download directory last modified
// more than olderThan ago. olderThan <= 0 uses the configured retention.
func (m *Monitor) CleanupOldFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = m.cfg.FileRetention
	}
	if _, err := os.Stat(m.cfg.DownloadDir); os.IsNotExist(err) {
		return 0, nil
	}
	dir, err := local.NewStorage(m.cfg.DownloadDir)
	if err != nil {
		return 0, err
	}
	removed, err := storage.DeleteOlderThan(ctx, dir, "", m.now().Add(-olderThan))
	if removed > 0 {
		m.log.Info("old files removed", logger.Fields("count", removed, "older_than", olderThan.String()))
	}
	return removed, err
}

package whispercpp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/whisper-subtitle/resilience"
)

type modelDownloader struct {
	urlFormat string
	client    *http.Client
	retry     resilience.RetryConfig
}

func newModelDownloader(urlFormat string) *modelDownloader {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = 2 * time.Second
	return &modelDownloader{
		urlFormat: urlFormat,
		client:    &http.Client{Timeout: 30 * time.Minute},
		retry:     retry,
	}
}

// fetch downloads model to dest through a temp file in the same directory
// so a partial download never looks like a model.
func (d *modelDownloader) fetch(ctx context.Context, model, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	url := fmt.Sprintf(d.urlFormat, model)
	_, err := resilience.Retry(ctx, d.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.fetchOnce(ctx, url, dest)
	})
	if err != nil {
		return fmt.Errorf("download model %s: %w", model, err)
	}
	return nil
}

func (d *modelDownloader) fetchOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

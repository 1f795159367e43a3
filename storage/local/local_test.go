package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/storage"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.UploadString(ctx, s, "chan/vid.srt", "1\n"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err := s.Exists(ctx, "chan/vid.srt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	rc, err := s.Download(ctx, "chan/vid.srt")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "1\n" {
		t.Errorf("content = %q", data)
	}
	if err := s.Delete(ctx, "chan/vid.srt"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "chan/vid.srt"); err != nil {
		t.Errorf("deleting a missing file should succeed: %v", err)
	}
}

func TestListPrefixStaysInsideBase(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, "sibling.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewStorage(filepath.Join(parent, "root"))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"a/1.mp3", "a/2.mp3", "b/3.mp3"} {
		if err := storage.UploadString(ctx, s, p, "x"); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List(\"\") = %+v", all)
	}
	onlyA, _ := s.List(ctx, "a/")
	if len(onlyA) != 2 || onlyA[0].Path != "a/1.mp3" {
		t.Errorf("List(a/) = %+v", onlyA)
	}
}

func TestPathEscapeRejected(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.UploadString(context.Background(), s, "../../etc/evil", "x"); err != nil {
		t.Fatalf("cleaned path should stay inside base: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.BasePath(), "etc", "evil")); err != nil {
		t.Errorf("file not written inside base: %v", err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = storage.UploadString(ctx, s, "old.mp3", "x")
	_ = storage.UploadString(ctx, s, "new.mp3", "x")
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.BasePath(), "old.mp3"), old, old); err != nil {
		t.Fatal(err)
	}

	n, err := storage.DeleteOlderThan(ctx, s, "", time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("removed = %d, err = %v", n, err)
	}
	if ok, _ := s.Exists(ctx, "new.mp3"); !ok {
		t.Error("recent file removed")
	}
}

func TestComponent(t *testing.T) {
	cfg := storage.Config{Enabled: true, Provider: storage.ProviderLocal, BasePath: t.TempDir()}
	c := storage.NewComponent(cfg, logger.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.Storage() == nil {
		t.Fatal("storage not started")
	}
	if h := c.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("health = %+v", h)
	}
	_ = c.Stop(context.Background())
	if c.Storage() != nil {
		t.Error("storage not released")
	}
}

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/whisper-subtitle/downloader"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/redis"
	"github.com/kbukum/whisper-subtitle/scheduler"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := redis.New(redis.Config{Enabled: true, Addr: mr.Addr(), KeyPrefix: "test"}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisStore(c), mr
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	for _, id := range []string{"b", "a"} {
		if err := s.SaveChannel(ctx, Channel{ID: id, Name: id, Enabled: true, LastCheck: &now, Config: DefaultTranscriptionConfig()}); err != nil {
			t.Fatal(err)
		}
	}
	chs, err := s.Channels(ctx)
	if err != nil || len(chs) != 2 || chs[0].ID != "a" {
		t.Fatalf("channels = %+v, %v", chs, err)
	}
	if chs[1].LastCheck == nil || !chs[1].LastCheck.Equal(now) || chs[1].Config.Engine != "whispercpp" {
		t.Errorf("round trip = %+v", chs[1])
	}
	if err := s.DeleteChannel(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if chs, _ := s.Channels(ctx); len(chs) != 1 {
		t.Errorf("after delete = %+v", chs)
	}

	_ = s.MarkProcessed(ctx, "v1")
	_ = s.MarkProcessed(ctx, "v1")
	ok, err := s.IsProcessed(ctx, "v1")
	if err != nil || !ok {
		t.Errorf("IsProcessed(v1) = %v, %v", ok, err)
	}
	if ok, _ := s.IsProcessed(ctx, "v2"); ok {
		t.Error("v2 reported processed")
	}
	if n, _ := s.ProcessedCount(ctx); n != 1 {
		t.Errorf("count = %d", n)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t)
	exerciseStore(t, s)
	if !mr.Exists("test:processed") || !mr.Exists("test:channels") {
		t.Error("expected prefixed keys")
	}
}

func TestRestoreFromRedisSkipsProcessed(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	first := newFixture(t, Config{}, WithStore(store))
	if _, err := first.mon.AddChannel(ctx, "chan", "Chan", nil); err != nil {
		t.Fatal(err)
	}
	first.dl.setListing("chan", downloader.VideoInfo{ID: "v1"})
	if found, _ := first.mon.CheckChannel(ctx, "chan"); len(found) != 1 {
		t.Fatalf("first check found %d", len(found))
	}

	// a fresh process sharing the same redis
	second := newFixture(t, Config{}, WithStore(store))
	n, err := second.mon.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore = %d, %v", n, err)
	}
	if task, ok := second.sched.Get("youtube_check_chan"); !ok || task.Status != scheduler.StatusPending {
		t.Errorf("check task = %+v", task)
	}
	second.dl.setListing("chan", downloader.VideoInfo{ID: "v1"}, downloader.VideoInfo{ID: "v0"})
	found, err := second.mon.CheckChannel(ctx, "chan")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "v0" {
		t.Errorf("found = %+v", found)
	}
}

package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/whisper-subtitle/redis"
)

// Store persists channel definitions and the processed-video set.
type Store interface {
	SaveChannel(ctx context.Context, ch Channel) error
	DeleteChannel(ctx context.Context, id string) error
	// Channels returns every stored channel sorted by id.
	Channels(ctx context.Context) ([]Channel, error)
	MarkProcessed(ctx context.Context, videoID string) error
	IsProcessed(ctx context.Context, videoID string) (bool, error)
	ProcessedCount(ctx context.Context) (int, error)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	channels  map[string]Channel
	processed map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{channels: map[string]Channel{}, processed: map[string]struct{}{}}
}

// SaveChannel inserts or replaces ch.
func (s *MemoryStore) SaveChannel(_ context.Context, ch Channel) error {
	s.mu.Lock()
	s.channels[ch.ID] = ch
	s.mu.Unlock()
	return nil
}

// DeleteChannel removes the channel; unknown ids are ignored.
func (s *MemoryStore) DeleteChannel(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.channels, id)
	s.mu.Unlock()
	return nil
}

// Channels returns the saved channels.
func (s *MemoryStore) Channels(context.Context) ([]Channel, error) {
	s.mu.RLock()
	out := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkProcessed records videoID as transcribed.
func (s *MemoryStore) MarkProcessed(_ context.Context, videoID string) error {
	s.mu.Lock()
	s.processed[videoID] = struct{}{}
	s.mu.Unlock()
	return nil
}

// IsProcessed reports whether videoID was marked processed.
func (s *MemoryStore) IsProcessed(_ context.Context, videoID string) (bool, error) {
	s.mu.RLock()
	_, ok := s.processed[videoID]
	s.mu.RUnlock()
	return ok, nil
}

// ProcessedCount returns how many videos were marked processed.
func (s *MemoryStore) ProcessedCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processed), nil
}

// RedisStore keeps channels as JSON in a hash and processed ids in a set.
type RedisStore struct {
	rdb          *goredis.Client
	channelsKey  string
	processedKey string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore uses "<prefix>:channels" and "<prefix>:processed".
func NewRedisStore(c *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:          c.Unwrap(),
		channelsKey:  c.Key("channels"),
		processedKey: c.Key("processed"),
	}
}

func (s *RedisStore) SaveChannel(ctx context.Context, ch Channel) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode channel %s: %w", ch.ID, err)
	}
	if err := s.rdb.HSet(ctx, s.channelsKey, ch.ID, data).Err(); err != nil {
		return fmt.Errorf("save channel %s: %w", ch.ID, err)
	}
	return nil
}

func (s *RedisStore) DeleteChannel(ctx context.Context, id string) error {
	if err := s.rdb.HDel(ctx, s.channelsKey, id).Err(); err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Channels(ctx context.Context) ([]Channel, error) {
	raw, err := s.rdb.HGetAll(ctx, s.channelsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	out := make([]Channel, 0, len(raw))
	for id, v := range raw {
		var ch Channel
		if err := json.Unmarshal([]byte(v), &ch); err != nil {
			return nil, fmt.Errorf("decode channel %s: %w", id, err)
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, videoID string) error {
	return s.rdb.SAdd(ctx, s.processedKey, videoID).Err()
}

func (s *RedisStore) IsProcessed(ctx context.Context, videoID string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.processedKey, videoID).Result()
}

func (s *RedisStore) ProcessedCount(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.processedKey).Result()
	return int(n), err
}

package service

import (
	"context"
	"time"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/monitor"
)

// AddChannel starts monitoring a channel.
func (s *Service) AddChannel(ctx context.Context, id, name string, cfg *monitor.TranscriptionConfig) (*monitor.Channel, error) {
	return s.monitor.AddChannel(ctx, id, name, cfg)
}

// RemoveChannel stops monitoring a channel.
func (s *Service) RemoveChannel(ctx context.Context, id string) error {
	if !s.monitor.RemoveChannel(ctx, id) {
		return errors.NotFound("channel", id)
	}
	return nil
}

// ListChannels returns the monitored channels.
func (s *Service) ListChannels() []monitor.Channel { return s.monitor.ListChannels() }

// GetChannel returns one channel.
func (s *Service) GetChannel(id string) (monitor.Channel, error) {
	ch, ok := s.monitor.GetChannel(id)
	if !ok {
		return monitor.Channel{}, errors.NotFound("channel", id)
	}
	return ch, nil
}

// EnableChannel enables or disables a channel and returns its new state.
func (s *Service) EnableChannel(id string, enabled bool) (monitor.Channel, error) {
	if !s.monitor.EnableChannel(id, enabled) {
		return monitor.Channel{}, errors.NotFound("channel", id)
	}
	return s.GetChannel(id)
}

// CheckChannel checks one channel now.
func (s *Service) CheckChannel(ctx context.Context, id string) ([]monitor.Video, error) {
	return s.monitor.CheckChannel(ctx, id)
}

// CheckAllChannels checks every channel now.
func (s *Service) CheckAllChannels(ctx context.Context) map[string][]monitor.Video {
	return s.monitor.CheckAllChannels(ctx)
}

// ListVideos returns discovered videos, optionally for one channel.
func (s *Service) ListVideos(channelID string) []monitor.Video {
	return s.monitor.ListVideos(channelID)
}

// ProcessingStatus summarizes channel processing.
func (s *Service) ProcessingStatus(ctx context.Context) monitor.Status {
	return s.monitor.ProcessingStatus(ctx)
}

// CleanupOldFiles removes downloaded files older than olderThan.
func (s *Service) CleanupOldFiles(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.monitor.CleanupOldFiles(ctx, olderThan)
}

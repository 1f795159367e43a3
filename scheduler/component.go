package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/whisper-subtitle/component"
	"github.com/kbukum/whisper-subtitle/logger"
)

var _ component.Component = (*Scheduler)(nil)

// Name implements component.Component.
func (s *Scheduler) Name() string { return "scheduler" }

// Start launches the driver loop. Starting twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.loopCtx, s.stopLoop = context.WithCancel(ctx)
	s.runCtx, s.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	s.loopDone = make(chan struct{})
	s.started = true
	go s.loop(s.loopCtx, s.loopDone)

	s.log.Info("scheduler started", logger.Fields(
		"tick_interval", s.cfg.TickInterval.String(),
		"workers", s.cfg.Workers,
	))
	return nil
}

// Stop ends the loop, marks running tasks cancelled and waits for their
// bodies until ctx is done, after which their contexts are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.stopLoop()
	var stopped []Event
	for _, rec := range s.tasks {
		if rec.Status == StatusRunning {
			s.finish(rec, StatusCancelled, nil, ErrSchedulerStopped)
			stopped = append(stopped, Event{Type: EventCancelled, Task: rec.Task})
		}
	}
	loopDone, cancelRun := s.loopDone, s.cancelRun
	s.mu.Unlock()

	<-loopDone
	for _, ev := range stopped {
		s.emit(ctx, ev)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer cancelRun()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logger.Fields("interrupted", len(stopped)))
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for tasks")
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Health implements component.Component.
func (s *Scheduler) Health(context.Context) component.Health {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not running"}
	}
	stats := s.Stats()
	return component.Health{
		Name:   s.Name(),
		Status: component.StatusHealthy,
		Message: fmt.Sprintf("%d pending, %d running, %d workers busy",
			stats[StatusPending], stats[StatusRunning], s.pool.InUse()),
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := s.tick(); err != nil {
			s.log.Error("scheduler loop error", logger.ErrorFields("dispatch", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.errorPause):
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	s.dispatch()
	return nil
}

package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/history"
	"github.com/kbukum/whisper-subtitle/scheduler"
)

// ScheduleTask adds a one-shot task.
func (s *Service) ScheduleTask(id, name string, fn scheduler.Func, opts ...scheduler.TaskOption) (string, error) {
	return s.sched.Schedule(id, name, fn, opts...)
}

// ScheduleRecurringTask adds a task repeating every interval.
func (s *Service) ScheduleRecurringTask(id, name string, fn scheduler.Func, interval time.Duration, opts ...scheduler.TaskOption) (string, error) {
	return s.sched.ScheduleRecurring(id, name, fn, interval, opts...)
}

// ScheduleDailyTask adds a task running daily at hour:minute.
func (s *Service) ScheduleDailyTask(id, name string, fn scheduler.Func, hour, minute int, opts ...scheduler.TaskOption) (string, error) {
	return s.sched.ScheduleDaily(id, name, fn, hour, minute, opts...)
}

// GetTask returns a task by id.
func (s *Service) GetTask(id string) (scheduler.Task, error) {
	t, ok := s.sched.Get(id)
	if !ok {
		return scheduler.Task{}, errors.NotFound("task", id)
	}
	return t, nil
}

// CancelTask cancels an active task. Unknown ids are NotFound; finished
// tasks are a Conflict.
func (s *Service) CancelTask(id string) error {
	if s.sched.Cancel(id) {
		return nil
	}
	t, ok := s.sched.Get(id)
	if !ok {
		return errors.NotFound("task", id)
	}
	return errors.Conflict(fmt.Sprintf("task %s is already %s", id, t.Status))
}

// ListTasks lists tasks, optionally by status. An empty status lists all.
func (s *Service) ListTasks(status string, limit int) ([]scheduler.Task, error) {
	st, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, errors.InvalidInput("limit", "must be >= 0")
	}
	return s.sched.List(scheduler.ListOptions{Status: st, Limit: limit}), nil
}

// TaskStats counts tasks by status.
func (s *Service) TaskStats() map[scheduler.Status]int { return s.sched.Stats() }

// CleanupTasks removes finished tasks older than olderThan, archiving
// them when history is enabled.
func (s *Service) CleanupTasks(ctx context.Context, olderThan time.Duration) int {
	return s.sched.CleanupOld(ctx, olderThan)
}

// TaskHistory queries archived tasks.
func (s *Service) TaskHistory(ctx context.Context, status, kind string, limit, offset int) ([]history.Record, int64, error) {
	if s.history == nil {
		return nil, 0, errors.ServiceUnavailable("task history")
	}
	st, err := parseStatus(status)
	if err != nil {
		return nil, 0, err
	}
	recs, total, err := s.history.List(ctx, history.Query{Status: st, Kind: kind, Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, errors.DatabaseError(err)
	}
	return recs, total, nil
}

func parseStatus(s string) (scheduler.Status, error) {
	if s == "" {
		return "", nil
	}
	st := scheduler.Status(s)
	if !slices.Contains(scheduler.Statuses, st) {
		return "", errors.InvalidInput("status", fmt.Sprintf("unknown task status %q", s))
	}
	return st, nil
}

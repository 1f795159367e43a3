package scheduler

import (
	"context"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Func is the work a task performs. The returned value is stored as the
// task result.
type Func func(ctx context.Context) (any, error)

// Task is a snapshot of a scheduled task.
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Kind         string        `json:"kind"`
	Status       Status        `json:"status"`
	ScheduleTime time.Time     `json:"schedule_time"`
	NextRun      time.Time     `json:"next_run"`
	Interval     time.Duration `json:"interval,omitempty"`
	MaxRetries   int           `json:"max_retries"`
	RetryCount   int           `json:"retry_count"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	// LastRunAt is the end of the most recent execution, set for recurring
	// tasks that stay pending.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Recurring reports whether the task repeats.
func (t Task) Recurring() bool { return t.Interval > 0 }

// EventType classifies a task transition.
type EventType string

const (
	EventCompleted   EventType = "completed"
	EventRescheduled EventType = "rescheduled"
	EventRetrying    EventType = "retrying"
	EventFailed      EventType = "failed"
	EventCancelled   EventType = "cancelled"
)

// Event describes a transition out of running, or a cancellation.
type Event struct {
	Type     EventType
	Task     Task
	Attempt  int
	Duration time.Duration
	Err      error
}

// Listener observes task events. Listeners run synchronously on the
// executing goroutine and must not call back into the scheduler's
// mutating methods while holding their own locks.
type Listener func(ctx context.Context, ev Event)

// ListOptions filters List.
type ListOptions struct {
	Status Status
	// Limit caps the number of tasks returned; 0 means no limit.
	Limit int
}

// Archiver receives tasks removed by CleanupOld.
type Archiver interface {
	Archive(ctx context.Context, tasks []Task) error
}

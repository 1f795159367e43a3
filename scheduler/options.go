package scheduler

import (
	"math"
	"time"

	"github.com/kbukum/whisper-subtitle/observability"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBackoff replaces the retry delay. retry is the retry number
// starting at 1.
func WithBackoff(fn func(retry int) time.Duration) Option {
	return func(s *Scheduler) { s.backoff = fn }
}

// WithListener registers a task event listener.
func WithListener(l Listener) Option {
	return func(s *Scheduler) { s.listeners = append(s.listeners, l) }
}

// WithArchiver stores tasks removed by CleanupOld.
func WithArchiver(a Archiver) Option {
	return func(s *Scheduler) { s.archiver = a }
}

// WithMetrics records executions.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// DefaultBackoff waits 2^retry minutes.
func DefaultBackoff(retry int) time.Duration {
	return time.Duration(math.Pow(2, float64(retry))) * time.Minute
}

// TaskOption configures a scheduled task.
type TaskOption func(*taskSettings)

type taskSettings struct {
	scheduleTime time.Time
	interval     time.Duration
	maxRetries   int
	timeout      time.Duration
	kind         string
}

// WithScheduleTime delays the first run until t.
func WithScheduleTime(t time.Time) TaskOption {
	return func(s *taskSettings) { s.scheduleTime = t }
}

// WithInterval makes the task recurring.
func WithInterval(d time.Duration) TaskOption {
	return func(s *taskSettings) { s.interval = d }
}

// WithMaxRetries sets how many times a failed run is retried.
func WithMaxRetries(n int) TaskOption {
	return func(s *taskSettings) { s.maxRetries = n }
}

// WithTimeout bounds each execution of the task.
func WithTimeout(d time.Duration) TaskOption {
	return func(s *taskSettings) { s.timeout = d }
}

// WithKind labels the task family for metrics and events.
func WithKind(kind string) TaskOption {
	return func(s *taskSettings) { s.kind = kind }
}

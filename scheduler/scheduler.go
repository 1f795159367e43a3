package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/whisper-subtitle/errors"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/resilience"
)

const (
	// ErrCancelledByUser is the error recorded by Cancel.
	ErrCancelledByUser = "Cancelled by user"
	// ErrSchedulerStopped is the error recorded for tasks running at Stop.
	ErrSchedulerStopped = "Scheduler stopped"

	defaultKind = "task"
)

// record is the scheduler-owned state of a task.
type record struct {
	Task
	fn       Func
	inFlight bool
}

// Scheduler owns the task table and the driver loop.
type Scheduler struct {
	cfg        Config
	backoff    func(retry int) time.Duration
	now        func() time.Time
	listeners  []Listener
	archiver   Archiver
	metrics    *observability.Metrics
	pool       *resilience.Bulkhead
	errorPause time.Duration
	log        *logger.Logger

	mu    sync.Mutex
	tasks map[string]*record

	started   bool
	loopCtx   context.Context
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a stopped scheduler.
func New(cfg Config, opts ...Option) *Scheduler {
	cfg.ApplyDefaults()
	s := &Scheduler{
		cfg:        cfg,
		backoff:    DefaultBackoff,
		now:        time.Now,
		errorPause: 5 * time.Second,
		tasks:      make(map[string]*record),
		log:        logger.WithComponent("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "scheduler",
		MaxConcurrent: cfg.Workers,
		MaxWait:       -1,
	})
	return s
}

// Schedule adds a task and returns its id. An empty id is generated. An id
// that belongs to an active task is a conflict; one that belongs to a
// finished task is replaced.
func (s *Scheduler) Schedule(id, name string, fn Func, opts ...TaskOption) (string, error) {
	if fn == nil {
		return "", errors.InvalidInput("fn", "task function is required")
	}
	ts := taskSettings{maxRetries: *s.cfg.DefaultMaxRetries, kind: defaultKind}
	for _, opt := range opts {
		opt(&ts)
	}
	if ts.maxRetries < 0 {
		return "", errors.InvalidInput("max_retries", "must be >= 0")
	}
	if ts.interval < 0 {
		return "", errors.InvalidInput("interval", "must be >= 0")
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	if ts.scheduleTime.IsZero() {
		ts.scheduleTime = now
	}
	rec := &record{
		Task: Task{
			ID:           id,
			Name:         name,
			Kind:         ts.kind,
			Status:       StatusPending,
			ScheduleTime: ts.scheduleTime,
			NextRun:      ts.scheduleTime,
			Interval:     ts.interval,
			MaxRetries:   ts.maxRetries,
			Timeout:      ts.timeout,
			CreatedAt:    now,
		},
		fn: fn,
	}

	s.mu.Lock()
	if existing, ok := s.tasks[id]; ok && !existing.Status.Terminal() {
		s.mu.Unlock()
		return "", errors.Conflict(fmt.Sprintf("task %s is already %s", id, existing.Status)).
			WithDetail("task_id", id)
	}
	s.tasks[id] = rec
	s.mu.Unlock()

	s.log.Info("task scheduled", logger.Fields(
		logger.FieldTaskID, id,
		"name", name,
		"next_run", rec.NextRun.Format(time.RFC3339),
		"interval", ts.interval.String(),
	))
	return id, nil
}

// ScheduleRecurring adds a task that runs every interval, first at the
// schedule time (default now).
func (s *Scheduler) ScheduleRecurring(id, name string, fn Func, interval time.Duration, opts ...TaskOption) (string, error) {
	if interval <= 0 {
		return "", errors.InvalidInput("interval", "must be positive for a recurring task")
	}
	return s.Schedule(id, name, fn, append(opts, WithInterval(interval))...)
}

// ScheduleDaily adds a task that runs every day at hour:minute local time.
// The first run is today if that time is still ahead, otherwise tomorrow.
func (s *Scheduler) ScheduleDaily(id, name string, fn Func, hour, minute int, opts ...TaskOption) (string, error) {
	if hour < 0 || hour > 23 {
		return "", errors.InvalidInput("hour", "must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return "", errors.InvalidInput("minute", "must be between 0 and 59")
	}
	return s.Schedule(id, name, fn, append(opts,
		WithScheduleTime(NextDaily(s.now(), hour, minute)),
		WithInterval(24*time.Hour),
	)...)
}

// NextDaily returns the next hour:minute strictly after now.
func NextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Cancel marks an active task cancelled. It returns false for unknown or
// finished tasks. A running body keeps running; its outcome is discarded.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok || rec.Status.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.finish(rec, StatusCancelled, nil, ErrCancelledByUser)
	snap := rec.Task
	s.mu.Unlock()

	s.log.Info("task cancelled", logger.Fields(logger.FieldTaskID, id))
	s.emit(context.Background(), Event{Type: EventCancelled, Task: snap})
	return true
}

// Get returns a copy of the task.
func (s *Scheduler) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return rec.Task, true
}

// List returns tasks newest first, ties broken by id.
func (s *Scheduler) List(opts ListOptions) []Task {
	s.mu.Lock()
	all := make([]Task, 0, len(s.tasks))
	for _, rec := range s.tasks {
		all = append(all, rec.Task)
	}
	s.mu.Unlock()

	out := all[:0]
	for _, t := range all {
		if opts.Status == "" || t.Status == opts.Status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Stats counts tasks by status. Every status is present.
func (s *Scheduler) Stats() map[Status]int {
	stats := make(map[Status]int, len(Statuses))
	for _, st := range Statuses {
		stats[st] = 0
	}
	s.mu.Lock()
	for _, rec := range s.tasks {
		stats[rec.Status]++
	}
	s.mu.Unlock()
	return stats
}

// CleanupOld removes finished tasks that completed more than olderThan ago
// and returns how many were removed. olderThan <= 0 uses the configured
// retention. With an archiver, tasks are archived first and kept if
// archiving fails.
func (s *Scheduler) CleanupOld(ctx context.Context, olderThan time.Duration) int {
	if olderThan <= 0 {
		olderThan = s.cfg.Retention
	}
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	var victims []*record
	for _, rec := range s.tasks {
		if rec.Status.Terminal() && !rec.inFlight && rec.CompletedAt != nil && rec.CompletedAt.Before(cutoff) {
			victims = append(victims, rec)
		}
	}
	s.mu.Unlock()
	if len(victims) == 0 {
		return 0
	}

	if s.archiver != nil {
		snaps := make([]Task, len(victims))
		for i, rec := range victims {
			snaps[i] = rec.Task
		}
		if err := s.archiver.Archive(ctx, snaps); err != nil {
			s.log.Error("archive tasks failed, keeping them", logger.ErrorFields("archive_tasks", err))
			return 0
		}
	}

	removed := 0
	s.mu.Lock()
	for _, rec := range victims {
		if s.tasks[rec.ID] == rec {
			delete(s.tasks, rec.ID)
			removed++
		}
	}
	s.mu.Unlock()

	s.log.Info("old tasks cleaned up", logger.Fields("removed", removed, "cutoff", cutoff.Format(time.RFC3339)))
	return removed
}

// finish moves rec to a terminal status. Callers hold s.mu.
func (s *Scheduler) finish(rec *record, status Status, result any, errMsg string) {
	now := s.now()
	rec.Status = status
	rec.CompletedAt = &now
	rec.Result = result
	rec.Error = errMsg
}

func (s *Scheduler) emit(ctx context.Context, ev Event) {
	for _, l := range s.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("task listener panicked", logger.Fields("panic", fmt.Sprint(r)))
				}
			}()
			l(ctx, ev)
		}()
	}
}

// dispatch claims every due task and starts an execution for each.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	now := s.now()
	var due []*record
	for _, rec := range s.tasks {
		if rec.Status == StatusPending && !rec.inFlight && !rec.NextRun.After(now) {
			rec.inFlight = true
			due = append(due, rec)
		}
	}
	loopCtx, runCtx := s.loopCtx, s.runCtx
	s.wg.Add(len(due))
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].NextRun.Before(due[j].NextRun) })
	for _, rec := range due {
		go s.execute(loopCtx, runCtx, rec)
	}
}

// execute waits for a worker slot and runs rec. If the loop stops before a
// slot frees up the claim is released without counting an attempt.
func (s *Scheduler) execute(loopCtx, runCtx context.Context, rec *record) {
	defer s.wg.Done()
	err := s.pool.Execute(loopCtx, func() error {
		s.run(loopCtx, runCtx, rec)
		return nil
	})
	if err != nil {
		s.mu.Lock()
		rec.inFlight = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(loopCtx, runCtx context.Context, rec *record) {
	s.mu.Lock()
	if loopCtx.Err() != nil || s.tasks[rec.ID] != rec || rec.Status != StatusPending {
		rec.inFlight = false
		s.mu.Unlock()
		return
	}
	start := s.now()
	rec.Status = StatusRunning
	rec.StartedAt = &start
	attempt := rec.RetryCount + 1
	fn, timeout := rec.fn, rec.Timeout
	id, name, kind := rec.ID, rec.Name, rec.Kind
	s.mu.Unlock()

	log := s.log.WithFields(logger.Fields(logger.FieldTaskID, id, "attempt", attempt))
	log.Debug("task started", logger.Fields("name", name))

	ctx, span := observability.StartSpan(runCtx, observability.SpanTaskExecute,
		attribute.String(observability.AttrTaskID, id),
		attribute.String(observability.AttrTaskName, name),
		attribute.Int(observability.AttrAttempt, attempt))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	began := time.Now()
	result, runErr := invoke(ctx, fn)
	elapsed := time.Since(began)
	observability.EndSpan(span, runErr)

	ev, ok := s.commit(rec, result, runErr)
	if !ok {
		log.Info("task outcome discarded", logger.Fields("reason", "no longer running"))
		return
	}
	ev.Attempt = attempt
	ev.Duration = elapsed
	ev.Err = runErr

	outcome := string(ev.Type)
	if ev.Type == EventRescheduled {
		outcome = string(EventCompleted)
	}
	s.metrics.RecordTask(ctx, kind, outcome, elapsed)

	switch ev.Type {
	case EventRetrying:
		log.Warn("task failed, retrying", logger.Fields(
			logger.FieldError, runErr.Error(),
			"next_run", ev.Task.NextRun.Format(time.RFC3339),
		))
	case EventFailed:
		log.Error("task failed", logger.Fields(logger.FieldError, runErr.Error(), "retries", ev.Task.RetryCount))
	default:
		log.Info("task completed", logger.DurationFields("execute", elapsed))
	}
	s.emit(ctx, ev)
}

// commit applies an execution outcome. It is a no-op if the task was
// cancelled or replaced while running.
func (s *Scheduler) commit(rec *record, result any, runErr error) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.inFlight = false
	if s.tasks[rec.ID] != rec || rec.Status != StatusRunning {
		return Event{}, false
	}

	now := s.now()
	var typ EventType
	switch {
	case runErr == nil && rec.Interval > 0:
		typ = EventRescheduled
		rec.Status = StatusPending
		rec.RetryCount = 0
		rec.NextRun = now.Add(rec.Interval)
		rec.LastRunAt = &now
		rec.Result = result
		rec.Error = ""
	case runErr == nil:
		typ = EventCompleted
		s.finish(rec, StatusCompleted, result, "")
	case rec.RetryCount < rec.MaxRetries:
		typ = EventRetrying
		rec.RetryCount++
		rec.Status = StatusPending
		rec.NextRun = now.Add(s.backoff(rec.RetryCount))
		rec.Result = nil
		rec.Error = runErr.Error()
	default:
		typ = EventFailed
		s.finish(rec, StatusFailed, nil, runErr.Error())
	}
	return Event{Type: typ, Task: rec.Task}, true
}

// invoke runs fn, converting a panic into an error.
func invoke(ctx context.Context, fn Func) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Package scheduler runs one-shot, recurring and daily background tasks
// with per-task retry and exponential backoff.
//
// A single driver loop wakes every tick, claims the tasks that are due and
// hands each one to its own goroutine behind a bulkhead. Task state lives in
// one mutex-guarded map; readers only ever receive Task copies.
//
// Lifecycle:
//
//	pending -> running -> completed            (one-shot success)
//	pending -> running -> pending              (recurring success, or a retry)
//	pending -> running -> failed               (retries exhausted)
//	pending|running -> cancelled               (Cancel or Stop)
//
// Cancellation is cooperative: a running body is not interrupted, and its
// outcome is discarded once the task has been cancelled.
package scheduler

package scheduler

import (
	"context"
	"time"
)

// TaskFunc is the work a task performs. The context is never cancelled by
// Stop; long-running work brings its own deadline if it needs one. A
// returned error is counted and reported but never unschedules the task.
type TaskFunc func(ctx context.Context) error

// ErrorHandler observes one failed execution. It runs outside the queue
// lock, so it may safely call back into the queue.
type ErrorHandler func(err error, info TaskInfo)

// task is the queue's record of one recurring job. All fields are guarded
// by the queue lock.
type task struct {
	id       string
	run      TaskFunc
	interval time.Duration

	priority      int
	maxExecutions int           // 0 = unlimited
	debounce      time.Duration // 0 = no debounce window
	onError       ErrorHandler

	nextExecution  time.Time
	lastExecution  time.Time
	lastInvocation time.Time // debounce anchor, set when the run is dispatched

	executionCount int
	errorCount     int
	skippedCount   int

	active    bool // flips false once maxExecutions is reached; terminal
	paused    bool // reversible; paused tasks keep their heap position
	executing bool // self-overlap guard
}

// info snapshots the task for callers outside the lock.
func (t *task) info() TaskInfo {
	return TaskInfo{
		ID:             t.id,
		Interval:       t.interval,
		Priority:       t.priority,
		MaxExecutions:  t.maxExecutions,
		DebounceWindow: t.debounce,
		NextExecution:  t.nextExecution,
		LastExecution:  t.lastExecution,
		ExecutionCount: t.executionCount,
		ErrorCount:     t.errorCount,
		SkippedCount:   t.skippedCount,
		Active:         t.active,
		Paused:         t.paused,
		Executing:      t.executing,
	}
}

// TaskInfo is a point-in-time copy of a task's state.
type TaskInfo struct {
	ID             string
	Interval       time.Duration
	Priority       int
	MaxExecutions  int
	DebounceWindow time.Duration

	NextExecution  time.Time
	LastExecution  time.Time
	ExecutionCount int
	ErrorCount     int
	SkippedCount   int

	Active    bool
	Paused    bool
	Executing bool
}

// TaskOption configures a task at AddTask time.
type TaskOption func(*task)

// WithPriority ranks tasks competing for execution slots in the same tick;
// higher runs first. Default 0.
func WithPriority(p int) TaskOption {
	return func(t *task) {
		t.priority = p
	}
}

// WithMaxExecutions retires the task after n runs. The retired task stays
// queryable until removed. Zero or negative means unlimited.
func WithMaxExecutions(n int) TaskOption {
	return func(t *task) {
		if n > 0 {
			t.maxExecutions = n
		}
	}
}

// WithDebounce suppresses runs that would start within d of the previous
// run's start. Suppressed runs are counted as skipped and retried on a
// later tick.
func WithDebounce(d time.Duration) TaskOption {
	return func(t *task) {
		if d > 0 {
			t.debounce = d
		}
	}
}

// WithOnError installs a per-task failure observer.
func WithOnError(h ErrorHandler) TaskOption {
	return func(t *task) {
		t.onError = h
	}
}

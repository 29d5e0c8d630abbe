// Package scheduler runs recurring tasks from a single min-heap of due
// times, waking only when the earliest task is due.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/krisalay/chronocache/keyheap"
)

// Defaults applied by New.
const (
	// DefaultMaxConcurrent bounds how many tasks may execute at once.
	DefaultMaxConcurrent = 4

	// DefaultMinTick floors the adaptive timer so an overdue backlog cannot
	// degenerate into busy-polling.
	DefaultMinTick = 10 * time.Millisecond

	// DefaultMaxTick caps the adaptive timer so a long-idle queue still
	// wakes up to reassess.
	DefaultMaxTick = 30 * time.Second
)

/*
Queue schedules recurring tasks.

One key-indexed min-heap orders tasks by next execution time, so each tick
costs what is due, not what exists. A single outstanding timer is re-armed
adaptively after every state change: it fires when the earliest task is due,
clamped between the tick bounds.

A tick drains the heap and partitions the items:

  - task gone or retired: the item is dropped (retired tasks found here are
    also swept from the table)
  - due and allowed to run: collected as ready, reinserted untouched
  - due but paused, debounce-blocked, or already executing: reinserted,
    retried on a later tick
  - not yet due: reinserted

Ready tasks are dispatched highest priority first, each in its own
goroutine, never exceeding MaxConcurrent in flight. On completion, success
or failure alike, the task is re-pushed at now+interval; dedup-on-push
supersedes its stale heap occurrence. Task errors are counted and reported
but never unschedule anything.

All methods are safe for concurrent use.
*/
type Queue struct {
	mu sync.Mutex

	tasks map[string]*task
	heap  *keyheap.Heap

	maxConcurrent int
	minTick       time.Duration
	maxTick       time.Duration
	log           *logrus.Entry

	running   bool
	timer     *time.Timer
	executing int
	startedAt time.Time

	totalExecutions uint64
	totalErrors     uint64
	totalSkipped    uint64

	// in-flight executions, so Close can drain
	wg sync.WaitGroup
}

// QueueOption configures a Queue at construction time.
type QueueOption func(*Queue)

// WithMaxConcurrent bounds simultaneous task executions.
func WithMaxConcurrent(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxConcurrent = n
		}
	}
}

// WithTickBounds overrides the adaptive timer's floor and ceiling. Tests
// use tighter bounds for fast turnaround.
func WithTickBounds(min, max time.Duration) QueueOption {
	return func(q *Queue) {
		if min > 0 {
			q.minTick = min
		}
		if max >= q.minTick {
			q.maxTick = max
		}
	}
}

// WithLogger routes the queue's structured logs. Defaults to the logrus
// standard logger.
func WithLogger(l *logrus.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.log = l.WithField("component", "scheduler")
		}
	}
}

// New builds an idle queue. It begins ticking when the first task arrives.
func New(opts ...QueueOption) *Queue {
	q := &Queue{
		tasks:         make(map[string]*task),
		heap:          keyheap.New(),
		maxConcurrent: DefaultMaxConcurrent,
		minTick:       DefaultMinTick,
		maxTick:       DefaultMaxTick,
		log:           logrus.StandardLogger().WithField("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

/*
AddTask registers fn to run every interval, starting one interval from now.
Re-adding an existing id replaces the old task and logs a warning; an
in-flight run of the old task finishes without touching the new schedule.
The queue starts itself if it is not already running.
*/
func (q *Queue) AddTask(id string, fn TaskFunc, interval time.Duration, opts ...TaskOption) error {
	if id == "" {
		return ErrEmptyTaskID
	}
	if fn == nil {
		return ErrNilTaskFunc
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[id]; exists {
		q.log.WithField("task", id).Warn("replacing existing task")
		q.heap.Remove(id)
	}

	t := &task{
		id:            id,
		run:           fn,
		interval:      interval,
		active:        true,
		nextExecution: time.Now().Add(interval),
	}
	for _, opt := range opts {
		opt(t)
	}

	q.tasks[id] = t
	q.heap.Push(keyheap.Item{Key: id, Priority: t.nextExecution.UnixNano()})

	if !q.running {
		q.running = true
		q.startedAt = time.Now()
	}
	q.armTimerLocked()
	return nil
}

// RemoveTask unschedules id. An in-flight execution finishes but is not
// rescheduled. Returns whether the task existed.
func (q *Queue) RemoveTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.tasks[id]; !ok {
		return false
	}
	delete(q.tasks, id)
	q.heap.Remove(id)
	return true
}

// PauseTask keeps id scheduled but stops it from being dispatched. Its heap
// position is untouched. Returns whether the task exists.
func (q *Queue) PauseTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return false
	}
	t.paused = true
	return true
}

// ResumeTask reverses PauseTask. An overdue task runs on the next tick.
func (q *Queue) ResumeTask(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return false
	}
	t.paused = false
	q.armTimerLocked()
	return true
}

// TaskInfo returns a snapshot of one task's state.
func (q *Queue) TaskInfo(id string) (TaskInfo, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info(), true
}

// Len returns the number of registered tasks, retired ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Start resumes ticking after a Stop. Adding a task starts the queue
// automatically, so most callers never need this.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	if q.startedAt.IsZero() {
		q.startedAt = time.Now()
	}
	q.armTimerLocked()
}

// Stop cancels the pending wakeup. Executions already dispatched run to
// completion; nothing new is dispatched until Start.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running = false
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// Close stops the queue and waits for in-flight executions to finish.
func (q *Queue) Close() {
	q.Stop()
	q.wg.Wait()
}

// armTimerLocked points the single outstanding timer at the earliest due
// time, clamped to the tick bounds. An empty heap waits the full ceiling.
func (q *Queue) armTimerLocked() {
	if !q.running {
		return
	}

	delay := q.maxTick
	if min, ok := q.heap.Peek(); ok {
		until := time.Until(time.Unix(0, min.Priority))
		if until < q.minTick {
			delay = q.minTick
		} else if until < q.maxTick {
			delay = until
		}
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(delay, q.tick)
}

// tick drains the heap, reinserts what stays scheduled, dispatches what is
// due, and re-arms the timer. See the Queue doc for the partition rules.
func (q *Queue) tick() {
	q.mu.Lock()

	if !q.running {
		q.mu.Unlock()
		return
	}

	now := time.Now()
	var ready []*task

	for _, it := range q.heap.ExtractAll() {
		t, ok := q.tasks[it.Key]
		if !ok {
			continue
		}
		if !t.active {
			// retired task whose occurrence lingered: sweep it
			delete(q.tasks, it.Key)
			continue
		}

		due := !t.nextExecution.After(now)
		switch {
		case !due:
			q.heap.Push(it)
		case t.paused:
			q.heap.Push(it)
		case t.debounce > 0 && !t.lastInvocation.IsZero() && now.Sub(t.lastInvocation) < t.debounce:
			t.skippedCount++
			q.totalSkipped++
			q.heap.Push(it)
		default:
			ready = append(ready, t)
			q.heap.Push(it)
		}
	}

	// highest priority claims the free slots; ties keep due order
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].priority > ready[j].priority
	})

	slots := q.maxConcurrent - q.executing
	dispatched := 0
	for _, t := range ready {
		if dispatched >= slots {
			break
		}
		if t.executing {
			// previous run still going; the heap occurrence stays due and
			// the task is reconsidered next tick
			continue
		}
		t.executing = true
		t.lastInvocation = now
		q.executing++
		dispatched++
		q.wg.Add(1)
		go q.execute(t)
	}

	q.armTimerLocked()
	q.mu.Unlock()
}

// execute runs one dispatched task and applies its completion under the
// lock. The error handler, if any, is invoked after the lock is released.
func (q *Queue) execute(t *task) {
	defer q.wg.Done()

	err := runTask(t)
	now := time.Now()

	q.mu.Lock()

	q.executing--
	t.executing = false
	t.lastExecution = now
	t.executionCount++
	q.totalExecutions++

	var handler ErrorHandler
	var snapshot TaskInfo
	if err != nil {
		t.errorCount++
		q.totalErrors++
		q.log.WithField("task", t.id).WithError(err).Warn("task execution failed")
		if t.onError != nil {
			handler = t.onError
			snapshot = t.info()
		}
	}

	// completion reschedules only its own registration; a replacement added
	// mid-run keeps the schedule its AddTask gave it
	if cur, present := q.tasks[t.id]; present && cur == t {
		if t.maxExecutions > 0 && t.executionCount >= t.maxExecutions {
			// terminal: out of the heap, but still queryable until removed
			t.active = false
			q.heap.Remove(t.id)
			q.log.WithFields(logrus.Fields{
				"task":       t.id,
				"executions": t.executionCount,
			}).Debug("task retired after reaching max executions")
		} else {
			t.nextExecution = now.Add(t.interval)
			q.heap.Push(keyheap.Item{Key: t.id, Priority: t.nextExecution.UnixNano()})
		}
	}

	q.armTimerLocked()
	q.mu.Unlock()

	if handler != nil {
		handler(err, snapshot)
	}
}

// runTask invokes the task function, converting a panic into an error so a
// misbehaving task cannot take the scheduler down.
func runTask(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task %s panicked: %v", t.id, r)
		}
	}()
	return t.run(context.Background())
}

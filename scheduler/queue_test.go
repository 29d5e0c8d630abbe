package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkg/errors"
)

//
// ================= HELPERS =================
//

// newTestQueue uses tight tick bounds so tests turn around fast.
func newTestQueue(opts ...QueueOption) *Queue {
	base := []QueueOption{WithTickBounds(5*time.Millisecond, 50*time.Millisecond)}
	return New(append(base, opts...)...)
}

func noop(context.Context) error { return nil }

//
// ================= VALIDATION =================
//

func TestAddTaskValidation(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	require.ErrorIs(t, q.AddTask("", noop, time.Second), ErrEmptyTaskID)
	require.ErrorIs(t, q.AddTask("t", nil, time.Second), ErrNilTaskFunc)
	require.ErrorIs(t, q.AddTask("t", noop, 0), ErrInvalidInterval)
	require.ErrorIs(t, q.AddTask("t", noop, -time.Second), ErrInvalidInterval)

	assert.Equal(t, 0, q.Len(), "failed registrations leave nothing behind")
}

//
// ================= EXECUTION =================
//

func TestTaskRunsOnInterval(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	err := q.AddTask("counter", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 30*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, q.Status().Running, "adding a task starts the queue")

	time.Sleep(110 * time.Millisecond)
	got := runs.Load()
	assert.GreaterOrEqual(t, got, int64(2), "expected repeated executions")
	assert.LessOrEqual(t, got, int64(5))
}

func TestMaxExecutionsRetiresTask(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	err := q.AddTask("once", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 50*time.Millisecond, WithMaxExecutions(1))
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int64(1), runs.Load(), "task must run exactly once")

	info, ok := q.TaskInfo("once")
	require.True(t, ok, "retired tasks stay queryable")
	assert.False(t, info.Active)
	assert.Equal(t, 1, info.ExecutionCount)

	st := q.Status()
	assert.Equal(t, 0, st.HeapSize, "retired task holds no heap occurrence")
	assert.Equal(t, 0, st.Active)
}

func TestDebounceSuppressesCloseRuns(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	err := q.AddTask("bursty", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 10*time.Millisecond, WithDebounce(80*time.Millisecond))
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	got := runs.Load()
	assert.GreaterOrEqual(t, got, int64(1))
	assert.LessOrEqual(t, got, int64(5), "debounce must suppress most of the 10ms cadence")

	info, _ := q.TaskInfo("bursty")
	assert.Greater(t, info.SkippedCount, 0)
	assert.Greater(t, q.Status().TotalSkipped, uint64(0))
}

func TestConcurrencyCap(t *testing.T) {
	q := newTestQueue(WithMaxConcurrent(2))
	defer q.Close()

	var mu sync.Mutex
	cur, peak := 0, 0

	slow := func(context.Context) error {
		mu.Lock()
		cur++
		if cur > peak {
			peak = cur
		}
		mu.Unlock()

		time.Sleep(60 * time.Millisecond)

		mu.Lock()
		cur--
		mu.Unlock()
		return nil
	}

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.AddTask(id, slow, 20*time.Millisecond))
	}

	time.Sleep(250 * time.Millisecond)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "dispatch must respect the concurrency cap")
	assert.Equal(t, 2, peak, "the cap should be reached under pressure")
}

func TestPriorityWinsTheSlot(t *testing.T) {
	q := newTestQueue(WithMaxConcurrent(1))
	defer q.Close()

	var mu sync.Mutex
	var order []string
	record := func(id string) TaskFunc {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	// a long first run holds the only slot until both contenders are overdue,
	// so the next free slot is a genuine priority contest
	require.NoError(t, q.AddTask("blocker", func(context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}, 5*time.Millisecond))

	require.NoError(t, q.AddTask("low", record("low"), 20*time.Millisecond, WithPriority(1)))
	require.NoError(t, q.AddTask("high", record("high"), 20*time.Millisecond, WithPriority(10)))

	time.Sleep(150 * time.Millisecond)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	assert.Equal(t, "high", order[0], "higher priority takes the only slot first")
	assert.Contains(t, order, "low", "lower priority still runs afterwards")
}

func TestSelfOverlapGuard(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var mu sync.Mutex
	cur, peak := 0, 0

	err := q.AddTask("slow", func(context.Context) error {
		mu.Lock()
		cur++
		if cur > peak {
			peak = cur
		}
		mu.Unlock()

		time.Sleep(80 * time.Millisecond)

		mu.Lock()
		cur--
		mu.Unlock()
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak, "a task must never overlap itself")
}

//
// ================= FAILURE HANDLING =================
//

func TestTaskErrorsReportedNotFatal(t *testing.T) {
	q := newTestQueue(WithLogger(newQuietLogger()))
	defer q.Close()

	boom := errors.New("boom")

	var handlerCalls atomic.Int64
	var seen atomic.Value
	err := q.AddTask("failing", func(context.Context) error {
		return boom
	}, 20*time.Millisecond, WithOnError(func(err error, info TaskInfo) {
		handlerCalls.Add(1)
		seen.Store(err)
		assert.Equal(t, "failing", info.ID)
	}))
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	st := q.Status()
	assert.Greater(t, st.TotalErrors, uint64(0))
	assert.Equal(t, st.TotalExecutions, st.TotalErrors, "every run failed")
	assert.Greater(t, st.TotalExecutions, uint64(1), "failures must not unschedule the task")
	assert.InDelta(t, 1.0, st.ErrorRate, 1e-9)

	assert.Greater(t, handlerCalls.Load(), int64(0))
	require.ErrorIs(t, seen.Load().(error), boom)
}

func TestPanicConvertedToError(t *testing.T) {
	q := newTestQueue(WithLogger(newQuietLogger()))
	defer q.Close()

	var runs atomic.Int64
	err := q.AddTask("panicky", func(context.Context) error {
		runs.Add(1)
		panic("kaboom")
	}, 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	assert.Greater(t, runs.Load(), int64(1), "scheduler survives panicking tasks")
	assert.Greater(t, q.Status().TotalErrors, uint64(0))
}

//
// ================= LIFECYCLE =================
//

func TestRemoveTask(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	require.NoError(t, q.AddTask("doomed", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, q.RemoveTask("doomed"))
	assert.False(t, q.RemoveTask("doomed"))

	settled := runs.Load()
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), settled+1, "at most an in-flight run may finish after removal")

	_, ok := q.TaskInfo("doomed")
	assert.False(t, ok)
	assert.Equal(t, 0, q.Status().HeapSize)
}

func TestPauseResume(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	require.NoError(t, q.AddTask("toggled", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond))

	require.True(t, q.PauseTask("toggled"))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), runs.Load(), "paused tasks are never dispatched")

	st := q.Status()
	assert.Equal(t, 1, st.Paused)
	assert.Equal(t, 1, st.HeapSize, "pausing keeps the heap position")

	require.True(t, q.ResumeTask("toggled"))
	time.Sleep(80 * time.Millisecond)
	assert.Greater(t, runs.Load(), int64(0), "resume lets the overdue task run")

	assert.False(t, q.PauseTask("missing"))
	assert.False(t, q.ResumeTask("missing"))
}

func TestStopAndRestart(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	var runs atomic.Int64
	require.NoError(t, q.AddTask("t", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond))

	time.Sleep(60 * time.Millisecond)
	q.Stop()
	assert.False(t, q.Status().Running)

	settled := runs.Load()
	time.Sleep(80 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), settled+1, "a stopped queue dispatches nothing new")

	q.Start()
	time.Sleep(80 * time.Millisecond)
	assert.Greater(t, runs.Load(), settled, "restart resumes dispatching")
}

func TestReplacingTaskLogsWarning(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	q := New(
		WithTickBounds(5*time.Millisecond, 50*time.Millisecond),
		WithLogger(logger),
	)
	defer q.Close()

	require.NoError(t, q.AddTask("dup", noop, time.Minute))
	require.NoError(t, q.AddTask("dup", noop, time.Minute))

	assert.Equal(t, 1, q.Len(), "replacement must not duplicate the task")
	assert.Equal(t, 1, q.Status().HeapSize)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["task"] == "dup" {
			warned = true
		}
	}
	assert.True(t, warned, "replacing an id must be warned about")
}

func TestReplaceWhileExecuting(t *testing.T) {
	q := newTestQueue(WithLogger(newQuietLogger()))
	defer q.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, q.AddTask("job", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, 10*time.Millisecond, WithMaxExecutions(1)))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first run never started")
	}

	// swap in a fresh registration while the old run is still blocked, then
	// let the old run complete; its terminal retirement belongs to the old
	// task and must not unschedule the replacement
	var newRuns atomic.Int64
	require.NoError(t, q.AddTask("job", func(context.Context) error {
		newRuns.Add(1)
		return nil
	}, 20*time.Millisecond))
	close(release)

	time.Sleep(150 * time.Millisecond)

	assert.Greater(t, newRuns.Load(), int64(0), "the replacement must keep running")

	info, ok := q.TaskInfo("job")
	require.True(t, ok)
	assert.True(t, info.Active)
	assert.Greater(t, info.ExecutionCount, 0, "counts belong to the new registration")

	st := q.Status()
	assert.Equal(t, 1, st.HeapSize, "the live registration keeps its heap occurrence")
	assert.Equal(t, 1, st.Active)
}

//
// ================= STATUS =================
//

func TestStatusShape(t *testing.T) {
	q := newTestQueue()
	defer q.Close()

	require.NoError(t, q.AddTask("a", noop, time.Minute, WithPriority(5)))
	require.NoError(t, q.AddTask("b", noop, time.Minute, WithPriority(5)))
	require.NoError(t, q.AddTask("c", noop, time.Minute))

	st := q.Status()
	assert.True(t, st.Running)
	assert.Equal(t, 3, st.TaskCount)
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 3, st.HeapSize)
	assert.Equal(t, 2, st.PriorityDistribution[5])
	assert.Equal(t, 1, st.PriorityDistribution[0])
	assert.False(t, st.PossibleLeak, "a healthy queue has one occurrence per task")
	assert.GreaterOrEqual(t, st.Uptime, time.Duration(0))
}

// newQuietLogger drops output so expected failures do not spam test logs.
func newQuietLogger() *logrus.Logger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

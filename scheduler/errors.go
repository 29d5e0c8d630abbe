package scheduler

import "github.com/pkg/errors"

// AddTask validation sentinels, returned before the queue is touched.
var (
	// ErrEmptyTaskID rejects the empty string as a task id.
	ErrEmptyTaskID = errors.New("scheduler: task id must be non-empty")

	// ErrNilTaskFunc rejects a nil task function.
	ErrNilTaskFunc = errors.New("scheduler: task function must not be nil")

	// ErrInvalidInterval rejects zero and negative intervals.
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
)

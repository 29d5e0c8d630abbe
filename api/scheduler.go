package api

import (
	"time"

	"github.com/krisalay/chronocache/scheduler"
)

/*
Scheduler is the scheduling surface the manager and applications consume:
register periodic work, control it, and observe queue health. One timer and
a bounded dispatch pool stand behind it; tasks must tolerate being run on
arbitrary goroutines.
*/
type Scheduler interface {

	/*
		AddTask registers fn to run every interval under id.

		BEHAVIOR:
		---------
		- Registering an id that already exists replaces the old task
		- The first run is scheduled one full interval from now
		- Task options control priority, debounce, retirement after N
		  executions, and error handling
		- The queue starts itself on the first registration
	*/
	AddTask(id string, fn scheduler.TaskFunc, interval time.Duration, opts ...scheduler.TaskOption) error

	// RemoveTask withdraws a task entirely. A run already in flight
	// finishes; it is not interrupted.
	RemoveTask(id string) bool

	// PauseTask keeps the task registered but skips its turns until
	// ResumeTask.
	PauseTask(id string) bool

	// ResumeTask lifts a pause. The task keeps its scheduled slot, so an
	// already-due task runs on the next tick.
	ResumeTask(id string) bool

	// TaskInfo reports a task's registration and execution counters.
	TaskInfo(id string) (scheduler.TaskInfo, bool)

	// Len returns how many tasks are registered, retired ones included.
	Len() int

	// Start begins dispatching. Usually unnecessary: AddTask starts the
	// queue. Start after Stop resumes where things left off.
	Start()

	// Stop halts dispatching without losing registrations. In-flight
	// runs finish.
	Stop()

	// Close stops the queue and waits for in-flight runs to return.
	Close()

	// Status assembles a point-in-time health report.
	Status() scheduler.Status
}

// The concrete queue must satisfy the contract.
var _ Scheduler = (*scheduler.Queue)(nil)

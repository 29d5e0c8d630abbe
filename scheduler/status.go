package scheduler

import "time"

// Status is a point-in-time health report. Purely observational: nothing
// in it feeds back into scheduling decisions.
type Status struct {
	Running   bool
	TaskCount int // registered tasks, retired included
	Active    int
	Paused    int
	Executing int
	HeapSize  int

	TotalExecutions uint64
	TotalErrors     uint64
	TotalSkipped    uint64

	ErrorRate           float64 // errors / executions
	ExecutionsPerMinute float64
	Uptime              time.Duration

	PriorityDistribution map[int]int

	// PossibleLeak flags a heap holding far more occurrences than there are
	// active tasks, which would mean reinsertion bookkeeping has drifted.
	PossibleLeak bool
}

// Status assembles the health report.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Status{
		Running:              q.running,
		TaskCount:            len(q.tasks),
		Executing:            q.executing,
		HeapSize:             q.heap.Len(),
		TotalExecutions:      q.totalExecutions,
		TotalErrors:          q.totalErrors,
		TotalSkipped:         q.totalSkipped,
		PriorityDistribution: make(map[int]int),
	}

	for _, t := range q.tasks {
		if t.active {
			st.Active++
		}
		if t.paused {
			st.Paused++
		}
		st.PriorityDistribution[t.priority]++
	}

	if q.totalExecutions > 0 {
		st.ErrorRate = float64(q.totalErrors) / float64(q.totalExecutions)
	}
	if !q.startedAt.IsZero() {
		st.Uptime = time.Since(q.startedAt)
		if mins := st.Uptime.Minutes(); mins > 0 {
			st.ExecutionsPerMinute = float64(q.totalExecutions) / mins
		}
	}

	st.PossibleLeak = st.HeapSize > 3*st.Active
	return st
}

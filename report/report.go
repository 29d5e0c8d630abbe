// Package report renders cache and scheduler statistics as fixed-width text
// blocks suitable for terminals and log files.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/scheduler"
	"github.com/krisalay/chronocache/types"
)

// Cache renders one cache's activity counters and footprint under its name.
func Cache(name string, s chronocache.Stats, m chronocache.MemoryStats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "================ CACHE %s ================\n", name)

	fmt.Fprintln(&b, "ACTIVITY")
	fmt.Fprintln(&b, "---------------------------------")
	fmt.Fprintf(&b, "Hits             : %s\n", humanize.Comma(int64(s.Hits)))
	fmt.Fprintf(&b, "Misses           : %s (%s cold, %s expired)\n",
		humanize.Comma(int64(s.Misses)),
		humanize.Comma(int64(s.MissesCold)),
		humanize.Comma(int64(s.MissesExpired)))
	fmt.Fprintf(&b, "Hit Rate         : %.2f%%\n", s.HitRate()*100)
	fmt.Fprintf(&b, "Sets             : %s\n", humanize.Comma(int64(s.Sets)))
	fmt.Fprintf(&b, "Evictions        : %s capacity, %s expired\n",
		humanize.Comma(int64(s.EvictionsCapacity)),
		humanize.Comma(int64(s.EvictionsExpired)))
	fmt.Fprintf(&b, "Cleanups         : %s\n", humanize.Comma(int64(s.Cleanups)))
	fmt.Fprintf(&b, "Avg Set Latency  : %v\n", s.AvgSetLatency)
	if s.MaxSetLatencyKey != "" {
		fmt.Fprintf(&b, "Max Set Latency  : %v (key %q)\n", s.MaxSetLatency, s.MaxSetLatencyKey)
	} else {
		fmt.Fprintf(&b, "Max Set Latency  : %v\n", s.MaxSetLatency)
	}

	fmt.Fprintln(&b, "\nFOOTPRINT")
	fmt.Fprintln(&b, "---------------------------------")
	fmt.Fprintf(&b, "Entries          : %s\n", humanize.Comma(int64(m.Entries)))
	fmt.Fprintf(&b, "  Primitives     : %s\n", humanize.Comma(int64(m.PrimitiveValues)))
	fmt.Fprintf(&b, "  Objects        : %s\n", humanize.Comma(int64(m.ObjectValues)))
	fmt.Fprintf(&b, "Expiring         : %s\n", humanize.Comma(int64(m.ExpiringEntries)))
	fmt.Fprintf(&b, "Never Expiring   : %s\n", humanize.Comma(int64(m.NeverExpiring)))
	fmt.Fprintf(&b, "Approx Size      : %s\n", approxBytes(m.ApproxBytes))

	fmt.Fprintln(&b, "=================================================")
	return b.String()
}

// Scheduler renders a queue health report.
func Scheduler(st scheduler.Status) string {
	var b strings.Builder

	fmt.Fprintln(&b, "================ SCHEDULER STATUS ===============")
	fmt.Fprintf(&b, "Running          : %t\n", st.Running)
	fmt.Fprintf(&b, "Tasks            : %s (%d active, %d paused)\n",
		humanize.Comma(int64(st.TaskCount)), st.Active, st.Paused)
	fmt.Fprintf(&b, "Executing Now    : %d\n", st.Executing)
	fmt.Fprintf(&b, "Heap Occupancy   : %s\n", humanize.Comma(int64(st.HeapSize)))
	fmt.Fprintf(&b, "Executions       : %s\n", humanize.Comma(int64(st.TotalExecutions)))
	fmt.Fprintf(&b, "Errors           : %s (%.2f%%)\n",
		humanize.Comma(int64(st.TotalErrors)), st.ErrorRate*100)
	fmt.Fprintf(&b, "Skipped          : %s\n", humanize.Comma(int64(st.TotalSkipped)))
	fmt.Fprintf(&b, "Throughput       : %.2f runs/min\n", st.ExecutionsPerMinute)
	fmt.Fprintf(&b, "Uptime           : %v\n", st.Uptime.Round(time.Millisecond))
	fmt.Fprintf(&b, "Priorities       : %s\n", priorityLine(st.PriorityDistribution))
	fmt.Fprintf(&b, "Possible Leak    : %t\n", st.PossibleLeak)
	fmt.Fprintln(&b, "=================================================")

	return b.String()
}

// Snapshot describes a stored payload in one line.
func Snapshot(p *types.Payload) string {
	if p == nil {
		return "no snapshot stored"
	}
	return fmt.Sprintf("snapshot v%d with %s entries, saved %s",
		p.Version,
		humanize.Comma(int64(len(p.Entries))),
		humanize.Time(p.SavedAt))
}

func approxBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func priorityLine(dist map[int]int) string {
	if len(dist) == 0 {
		return "none"
	}
	levels := make([]int, 0, len(dist))
	for p := range dist {
		levels = append(levels, p)
	}
	sort.Ints(levels)

	parts := make([]string, 0, len(levels))
	for _, p := range levels {
		parts = append(parts, fmt.Sprintf("p%d=%d", p, dist[p]))
	}
	return strings.Join(parts, " ")
}

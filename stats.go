package chronocache

import (
	"encoding/json"
	"time"

	"github.com/krisalay/chronocache/snapshot"
)

// counters aggregates what the cache has done since construction. Guarded
// by the cache lock.
type counters struct {
	hits          uint64
	misses        uint64
	missesCold    uint64
	missesExpired uint64
	sets          uint64

	evictionsCapacity uint64
	evictionsExpired  uint64
	cleanups          uint64

	setLatencyTotal  time.Duration
	maxSetLatency    time.Duration
	maxSetLatencyKey string
}

// Stats is a point-in-time copy of the cache's activity counters.
//
// Misses splits two ways: MissesCold counts first-ever reads of a key,
// MissesExpired counts reads that found an entry past its TTL. A read of a
// previously-seen, explicitly deleted key contributes to Misses alone.
type Stats struct {
	Hits          uint64
	Misses        uint64
	MissesCold    uint64
	MissesExpired uint64

	Sets uint64

	EvictionsCapacity uint64
	EvictionsExpired  uint64
	Cleanups          uint64

	// slowest write observed, and the key that caused it
	MaxSetLatency    time.Duration
	MaxSetLatencyKey string
	AvgSetLatency    time.Duration
}

// HitRate returns hits / (hits + misses), or 0 before any reads.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:              c.stats.hits,
		Misses:            c.stats.misses,
		MissesCold:        c.stats.missesCold,
		MissesExpired:     c.stats.missesExpired,
		Sets:              c.stats.sets,
		EvictionsCapacity: c.stats.evictionsCapacity,
		EvictionsExpired:  c.stats.evictionsExpired,
		Cleanups:          c.stats.cleanups,
		MaxSetLatency:     c.stats.maxSetLatency,
		MaxSetLatencyKey:  c.stats.maxSetLatencyKey,
	}
	if c.stats.sets > 0 {
		s.AvgSetLatency = c.stats.setLatencyTotal / time.Duration(c.stats.sets)
	}
	return s
}

// MemoryStats describes what the cache is holding right now.
type MemoryStats struct {
	Entries         int
	ObjectValues    int // reference-typed values
	PrimitiveValues int
	ExpiringEntries int
	NeverExpiring   int

	// ApproxBytes estimates footprint by JSON-serializing each value. Good
	// for growth trends, not exact accounting; values JSON cannot express
	// contribute only their key length.
	ApproxBytes int64
}

// MemoryStats walks the entry table and reports its shape. Read-only: it
// never reclaims or reorders anything.
func (c *Cache) MemoryStats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var m MemoryStats
	m.Entries = len(c.entries)
	for k, ent := range c.entries {
		if snapshot.Primitive(ent.Value) {
			m.PrimitiveValues++
		} else {
			m.ObjectValues++
		}
		if ent.ExpireAt.IsZero() {
			m.NeverExpiring++
		} else {
			m.ExpiringEntries++
		}
		m.ApproxBytes += int64(len(k))
		if b, err := json.Marshal(ent.Value); err == nil {
			m.ApproxBytes += int64(len(b))
		}
	}
	return m
}

// recordSetLatencyLocked folds one write's duration into the aggregates.
func (c *Cache) recordSetLatencyLocked(key string, d time.Duration) {
	c.stats.setLatencyTotal += d
	if d > c.stats.maxSetLatency || c.stats.maxSetLatencyKey == "" {
		c.stats.maxSetLatency = d
		c.stats.maxSetLatencyKey = key
	}
}

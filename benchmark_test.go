package chronocache_test

import (
	"fmt"
	"testing"
	"time"

	cache "github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/snapshot"
)

func newBenchmarkCache(opts ...cache.Option) *cache.Cache {
	base := []cache.Option{cache.WithMaxSize(100000)}
	return cache.New(append(base, opts...)...)
}

//
// ================= READ BENCH =================
//

func BenchmarkGetHitPrimitive(b *testing.B) {
	c := newBenchmarkCache()
	c.Set("key", 42)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

func BenchmarkGetHitObject(b *testing.B) {
	c := newBenchmarkCache()
	c.Set("key", map[string]int{"a": 1, "b": 2, "c": 3})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

func BenchmarkGetHitObjectCloneReuse(b *testing.B) {
	c := newBenchmarkCache(cache.WithCloneReuse(true))
	c.Set("key", map[string]int{"a": 1, "b": 2, "c": 3})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key")
	}
}

func BenchmarkGetMiss(b *testing.B) {
	c := newBenchmarkCache()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(fmt.Sprintf("miss-%d", i))
	}
}

//
// ================= WRITE BENCH =================
//

func BenchmarkSetPrimitive(b *testing.B) {
	c := newBenchmarkCache()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}
}

func BenchmarkSetDeepCopyObject(b *testing.B) {
	c := newBenchmarkCache()
	value := map[string]any{"name": "thing", "tags": []any{"a", "b"}, "n": 7}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("key-%d", i), value)
	}
}

func BenchmarkSetNoCopyObject(b *testing.B) {
	c := newBenchmarkCache(cache.WithCopyPolicy(snapshot.PolicyNone))
	value := map[string]any{"name": "thing", "tags": []any{"a", "b"}, "n": 7}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(fmt.Sprintf("key-%d", i), value)
	}
}

func BenchmarkSetWithTTL(b *testing.B) {
	c := newBenchmarkCache()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.SetWithTTL(fmt.Sprintf("key-%d", i), i, time.Minute)
	}
}

//
// ================= MAINTENANCE BENCH =================
//

func BenchmarkCleanupMostlyLive(b *testing.B) {
	c := newBenchmarkCache()
	for i := 0; i < 10000; i++ {
		c.SetWithTTL(fmt.Sprintf("key-%d", i), i, time.Hour)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Cleanup()
	}
}

//
// ================= PARALLEL BENCH =================
//

func BenchmarkParallelGet(b *testing.B) {
	c := newBenchmarkCache()
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), i)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Get("key-42")
		}
	})
}

func BenchmarkParallelMixed(b *testing.B) {
	c := newBenchmarkCache()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", i%512)
			if i%8 == 0 {
				c.SetWithTTL(key, i, time.Minute)
			} else {
				c.Get(key)
			}
			i++
		}
	})
}

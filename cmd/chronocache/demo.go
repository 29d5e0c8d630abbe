package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/manager"
	"github.com/krisalay/chronocache/report"
	"github.com/krisalay/chronocache/scheduler"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through misses, hits, TTL expiry, eviction, and scheduling",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	log := newLogger()

	maxSize := viper.GetInt("max-size")
	if maxSize <= 0 || maxSize > 100 {
		// keep the eviction stage short
		maxSize = 20
	}

	store, closeStore, err := newStore("demo")
	if err != nil {
		return err
	}

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("EVICTION POLICY  : LRU")
	fmt.Println("CAPACITY         :", maxSize, "keys")
	fmt.Println("DEFAULT TTL      :", viper.GetDuration("ttl"))
	fmt.Println("CLEANUP INTERVAL :", viper.GetDuration("cleanup-interval"))
	if store != nil {
		fmt.Println("PERSISTENCE      :", viper.GetString("store"), "→", viper.GetString("store-path"))
	} else {
		fmt.Println("PERSISTENCE      : none")
	}

	c := chronocache.New(
		chronocache.WithLogger(log),
		chronocache.WithMaxSize(maxSize),
		chronocache.WithDefaultTTL(viper.GetDuration("ttl")),
		chronocache.WithOnEvict(func(key string, value any, cause chronocache.EvictCause) {
			fmt.Printf("EVICT  → %s (%s)\n", key, cause)
		}),
	)

	mgr := manager.New(
		manager.WithLogger(log),
		manager.WithCleanupInterval(viper.GetDuration("cleanup-interval")),
	)
	regOpts := []manager.RegisterOption{}
	if store != nil {
		regOpts = append(regOpts, manager.WithStore(store))
	}
	if err := mgr.Register("demo", c, regOpts...); err != nil {
		return err
	}

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS ====================")
	v, _ := c.Get("user:1")
	fmt.Println("CACHE  → GET user:1 =", v)

	// ====================================================
	fmt.Println("\n==================== 2) READ-THROUGH ====================")

	var loads atomic.Int32
	loader := func() (any, error) {
		loads.Add(1)
		fmt.Println("LOADER → fetching user:1 from upstream")
		time.Sleep(50 * time.Millisecond)
		return "alice", nil
	}

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			val, _ := mgr.GetOrLoad("demo", "user:1", time.Minute, loader)
			fmt.Printf("GOROUTINE-%d → GET user:1 = %v\n", id, val)
		}(i)
	}
	wg.Wait()
	fmt.Println("LOADER → invoked", loads.Load(), "time(s) for 5 concurrent readers")

	// ====================================================
	fmt.Println("\n==================== 3) CACHE HIT ====================")
	v, _ = c.Get("user:1")
	fmt.Println("CACHE  → GET user:1 =", v)

	// ====================================================
	fmt.Println("\n==================== 4) TTL EXPIRATION ====================")
	c.SetWithTTL("session:42", "temp-value", 700*time.Millisecond)
	fmt.Println("CACHE  → SET session:42 (TTL = 700ms)")
	fmt.Println("CACHE  → TTL session:42 =", c.TTL("session:42").Round(time.Millisecond))

	time.Sleep(time.Second)

	v, _ = c.Get("session:42")
	fmt.Println("CACHE  → GET session:42 after TTL =", v)
	fmt.Println("CACHE  → TTL session:42 =", c.TTL("session:42"), "(missing)")

	// ====================================================
	fmt.Println("\n==================== 5) LRU EVICTION ====================")
	for i := 0; i < maxSize+10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	v, _ = c.Get("user:1")
	fmt.Println("CACHE  → GET user:1 after flooding =", v)

	// ====================================================
	fmt.Println("\n==================== 6) SCHEDULER ====================")
	q := mgr.Scheduler()

	var beats atomic.Int64
	q.AddTask("heartbeat", func(ctx context.Context) error {
		n := beats.Add(1)
		fmt.Println("TASK   → heartbeat", n)
		return nil
	}, 200*time.Millisecond, scheduler.WithMaxExecutions(3))

	q.AddTask("debounced", func(ctx context.Context) error {
		fmt.Println("TASK   → debounced run")
		return nil
	}, 150*time.Millisecond, scheduler.WithDebounce(400*time.Millisecond))

	time.Sleep(1200 * time.Millisecond)

	if info, ok := q.TaskInfo("heartbeat"); ok {
		fmt.Printf("SCHED  → heartbeat ran %d time(s), active=%t (retired at its cap)\n",
			info.ExecutionCount, info.Active)
	}
	if info, ok := q.TaskInfo("debounced"); ok {
		fmt.Printf("SCHED  → debounced ran %d time(s), skipped %d turn(s)\n",
			info.ExecutionCount, info.SkippedCount)
	}
	q.RemoveTask("debounced")

	// ====================================================
	fmt.Println("\n==================== 7) REPORTS ====================")
	fmt.Print(report.Cache("demo", c.Stats(), c.MemoryStats()))
	fmt.Println()
	fmt.Print(report.Scheduler(q.Status()))

	// ====================================================
	fmt.Println("\n==================== SHUTDOWN ====================")
	mgr.Close()
	fmt.Println("SYSTEM → manager closed cleanly")

	if store != nil {
		p, err := store.Load()
		if err != nil {
			return err
		}
		fmt.Println("STORE  →", report.Snapshot(p))
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			return err
		}
	}
	return nil
}

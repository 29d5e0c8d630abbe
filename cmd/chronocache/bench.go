package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/report"
	"github.com/krisalay/chronocache/snapshot"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a concurrent load benchmark against one cache",
	RunE:  runBench,
}

func init() {
	flags := benchCmd.Flags()
	flags.Int("keys", 100000, "distinct keys to preload")
	flags.Int("goroutines", 200, "concurrent workers")
	flags.Int("ops", 5000, "operations per worker")
	flags.Int("write-percent", 10, "share of operations that are writes")
	flags.String("copy", "deep", "copy policy: none, shallow, deep")
}

func runBench(cmd *cobra.Command, args []string) error {
	keys, _ := cmd.Flags().GetInt("keys")
	goroutines, _ := cmd.Flags().GetInt("goroutines")
	opsPerG, _ := cmd.Flags().GetInt("ops")
	writePct, _ := cmd.Flags().GetInt("write-percent")
	policyName, _ := cmd.Flags().GetString("copy")

	policy, err := parsePolicy(policyName)
	if err != nil {
		return err
	}

	logger := newLogger()
	capacity := benchCapacity(viper.GetInt("max-size"), keys, logger)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Preload Keys :", keys)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("Write %      :", writePct)
	fmt.Println("Copy Policy  :", policy)
	fmt.Println("---------------------------------")

	c := chronocache.New(
		chronocache.WithLogger(logger),
		chronocache.WithMaxSize(capacity),
		chronocache.WithCopyPolicy(policy),
	)
	defer c.Destroy()

	fmt.Println("Preloading cache...")
	for i := 0; i < keys; i++ {
		if err := c.Set(fmt.Sprintf("key-%d", i), i); err != nil {
			return err
		}
	}
	fmt.Println("Preload complete.")

	fmt.Println("Warming up cache...")
	for i := 0; i < 10000; i++ {
		c.Get(fmt.Sprintf("key-%d", i%keys))
	}
	fmt.Println("Warmup complete.")

	fmt.Println("Running concurrency benchmark...")
	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				key := fmt.Sprintf("key-%d", (id+j)%keys)
				if writePct > 0 && j%100 < writePct {
					c.Set(key, j)
				} else {
					c.Get(key)
				}
			}
		}(i)
	}
	wg.Wait()

	duration := time.Since(start)
	totalOps := goroutines * opsPerG

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/duration.Seconds())
	fmt.Println("==========================================")

	fmt.Println()
	fmt.Print(report.Cache("bench", c.Stats(), c.MemoryStats()))
	return nil
}

// benchCapacity picks the cache capacity for a preload of keys entries. A
// configured limit too small to hold the preload would make the benchmark
// evict its own working set, so it is raised, with a warning, to keys*2.
func benchCapacity(configured, keys int, log *logrus.Logger) int {
	if configured > 0 && configured < keys {
		log.WithFields(logrus.Fields{
			"max_size": configured,
			"keys":     keys,
			"raised":   keys * 2,
		}).Warn("configured max-size is below the preload key count, overriding it")
		return keys * 2
	}
	return configured
}

func parsePolicy(name string) (snapshot.Policy, error) {
	switch name {
	case "none":
		return snapshot.PolicyNone, nil
	case "shallow":
		return snapshot.PolicyShallow, nil
	case "deep":
		return snapshot.PolicyDeep, nil
	}
	return "", errors.Errorf("unknown copy policy %q (want none, shallow, or deep)", name)
}

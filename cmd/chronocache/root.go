package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krisalay/chronocache/persist"
	"github.com/krisalay/chronocache/types"
)

var rootCmd = &cobra.Command{
	Use:   "chronocache",
	Short: "In-memory TTL cache with scheduled maintenance",
	Long: `chronocache is an in-memory key-value cache with per-entry TTLs, LRU
eviction, configurable value copying, snapshot persistence, and a priority
task scheduler driving its maintenance.

Every flag can also be set through the environment with a CHRONOCACHE_
prefix, e.g. CHRONOCACHE_MAX_SIZE=4096.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Int("max-size", 1024, "maximum entries per cache (0 = unbounded)")
	flags.Duration("ttl", 0, "default TTL applied by Set (0 = never expires)")
	flags.Duration("cleanup-interval", time.Minute, "how often expired entries are swept")
	flags.String("store", "", "persistence backend: file or sqlite (empty = none)")
	flags.String("store-path", "chronocache.json", "snapshot file or database path")
	flags.String("log-level", "info", "log verbosity: debug, info, warn, error")

	viper.SetEnvPrefix("CHRONOCACHE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(benchCmd)
}

// newLogger builds the process logger from the configured level.
func newLogger() *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

// newStore builds the configured persistence backend. The returned closer is
// nil when the backend holds no resources, and everything is nil when no
// backend is configured.
func newStore(name string) (types.Store, func() error, error) {
	path := viper.GetString("store-path")
	switch backend := viper.GetString("store"); backend {
	case "":
		return nil, nil, nil
	case "file":
		return persist.NewFileStore(path), nil, nil
	case "sqlite":
		s, err := persist.NewSQLiteStore(path, name)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown store %q (want file or sqlite)", backend)
	}
}

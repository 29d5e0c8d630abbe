package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchCapacityWarnsWhenOverriding(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	got := benchCapacity(100, 1000, logger)
	assert.Equal(t, 2000, got, "an undersized limit grows past the preload")

	require.Len(t, hook.Entries, 1, "discarding a configured value must be announced")
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, 100, entry.Data["max_size"])
	assert.Equal(t, 2000, entry.Data["raised"])
}

func TestBenchCapacityKeepsAdequateLimit(t *testing.T) {
	logger, hook := logtest.NewNullLogger()

	assert.Equal(t, 5000, benchCapacity(5000, 1000, logger))
	assert.Equal(t, 1000, benchCapacity(1000, 1000, logger), "an exact fit is kept")
	assert.Equal(t, 0, benchCapacity(0, 1000, logger), "unbounded stays unbounded")

	assert.Empty(t, hook.Entries, "nothing overridden, nothing warned")
}

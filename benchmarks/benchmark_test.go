package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/config"
)

func TestSummarize(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	res := summarize(ds)
	assert.Equal(t, time.Millisecond, res.MinDuration)
	assert.Equal(t, 100*time.Millisecond, res.MaxDuration)
	assert.Equal(t, 51*time.Millisecond, res.MedianDuration)
	assert.Equal(t, 96*time.Millisecond, res.P95Duration)
	assert.Equal(t, 100*time.Millisecond, res.P99Duration)
	assert.Equal(t, 50500*time.Microsecond, res.AvgDuration)

	assert.Zero(t, summarize(nil).MaxDuration)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.50ms", formatDuration(2500*time.Microsecond))
	assert.Equal(t, "1.20µs", formatDuration(1200*time.Nanosecond))
	assert.Equal(t, "15ns", formatDuration(15))
}

func TestRunBenchmark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.db")
	opts := config.Default()
	opts.Durability = config.DurabilityAsync
	require.NoError(t, setupBenchmarkData(path, opts))
	require.NoError(t, setupBenchmarkData(path, opts))

	res, err := runBenchmark(path, opts, "Filter", "age > 25", filter("age > 25"), 20, 3)
	require.NoError(t, err)
	assert.Equal(t, 20, res.SuccessCount)
	assert.Zero(t, res.ErrorCount)
	assert.Equal(t, 3, res.Sessions)

	res, err = runBenchmark(path, opts, "Commit", "append one row", appendUser, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, res.SuccessCount)

	res, err = runBenchmark(path, opts, "Count", "bad", count("height > 1"), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ErrorCount)
	assert.Len(t, res.ErrorSamples, 2)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	"colstore/pkg/logging"
	"colstore/pkg/parser"
	"colstore/pkg/types"
)

// BenchmarkResult captures the latency distribution of one operation.
type BenchmarkResult struct {
	Name           string        `json:"name"`
	Operation      string        `json:"operation"`
	Iterations     int           `json:"iterations"`
	TotalDuration  time.Duration `json:"total_duration_ns"`
	AvgDuration    time.Duration `json:"avg_duration_ns"`
	MinDuration    time.Duration `json:"min_duration_ns"`
	MaxDuration    time.Duration `json:"max_duration_ns"`
	MedianDuration time.Duration `json:"median_duration_ns"`
	P95Duration    time.Duration `json:"p95_duration_ns"`
	P99Duration    time.Duration `json:"p99_duration_ns"`
	OpsPerSecond   float64       `json:"ops_per_second"`
	Sessions       int           `json:"sessions"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	ErrorSamples   []string      `json:"error_samples"`
	Timestamp      time.Time     `json:"timestamp"`
}

// BenchmarkReport aggregates every result of one run.
type BenchmarkReport struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	Results       []BenchmarkResult `json:"results"`
	DatabasePath  string            `json:"database_path"`
	Durability    string            `json:"durability"`
}

// operation runs once against a session that is not in a transaction.
type operation func(sg *transaction.SharedGroup) error

const userRows = 1000

func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil && v > 0 {
		return v
	}
	return def
}

// main runs the suite. Environment variables:
//   - BENCHMARK_OUTPUT: directory for the JSON report (default ./benchmark-results)
//   - BENCHMARK_ITERATIONS: iterations per benchmark (default 1000)
//   - BENCHMARK_SESSIONS: concurrent sessions for read benchmarks (default 10)
//   - DB_PATH: database file (default ./benchmark_data/bench.db)
//   - DURABILITY: full, async or mem_only (default async)
func main() {
	outputDir := filepath.Clean(os.Getenv("BENCHMARK_OUTPUT"))
	if outputDir == "." {
		outputDir = "./benchmark-results"
	}
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./benchmark_data/bench.db"
	}
	iterations := envInt("BENCHMARK_ITERATIONS", 1000)
	sessions := envInt("BENCHMARK_SESSIONS", 10)

	opts := config.Default()
	opts.Durability = config.DurabilityAsync
	if d := os.Getenv("DURABILITY"); d != "" {
		opts.Durability = config.Durability(d)
	}
	opts.Metrics = false
	opts.Logging.Level = logging.LevelInfo
	if err := logging.Init(opts.Logging); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logging.Close()

	if err := run(dbPath, outputDir, opts, iterations, sessions); err != nil {
		logging.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(dbPath, outputDir string, opts config.Options, iterations, sessions int) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return err
	}
	logging.Info("starting benchmark suite", "db", dbPath, "iterations", iterations, "sessions", sessions)

	if err := setupBenchmarkData(dbPath, opts); err != nil {
		return fmt.Errorf("setting up benchmark data: %w", err)
	}

	report := BenchmarkReport{
		StartTime:    time.Now(),
		DatabasePath: dbPath,
		Durability:   string(opts.Durability),
	}

	benchmarks := []struct {
		name       string
		operation  string
		fn         operation
		concurrent bool
	}{
		{"Commit", "append one row", appendUser, false},
		{"Read transaction", "begin and end read", beginEndRead, true},
		{"Filter", "age > 25", filter("age > 25"), true},
		{"Filter string", "name beginswith 'user1' nocase", filter("name beginswith 'user1' nocase"), true},
		{"Count", "age between 30 and 40", count("age between 30 and 40"), true},
	}

	for _, b := range benchmarks {
		res, err := runBenchmark(dbPath, opts, b.name, b.operation, b.fn, iterations, 1)
		if err != nil {
			return err
		}
		report.Results = append(report.Results, res)
		logResult(res)

		if b.concurrent && sessions > 1 {
			res, err := runBenchmark(dbPath, opts, b.name+" (concurrent)", b.operation, b.fn, iterations, sessions)
			if err != nil {
				return err
			}
			report.Results = append(report.Results, res)
			logResult(res)
		}
	}

	report.EndTime = time.Now()
	report.TotalDuration = report.EndTime.Sub(report.StartTime)

	file := filepath.Join(outputDir, fmt.Sprintf("benchmark_report_%s.json", time.Now().Format("20060102_150405")))
	if err := saveJSONReport(report, file); err != nil {
		return err
	}
	logging.Info("benchmark suite complete", "duration", formatDuration(report.TotalDuration), "results", len(report.Results), "report", file)
	return nil
}

// setupBenchmarkData creates table "users" with userRows rows unless it
// already exists.
func setupBenchmarkData(dbPath string, opts config.Options) error {
	sg, err := transaction.Open(dbPath, opts)
	if err != nil {
		return err
	}
	defer sg.Close()

	g, err := sg.BeginWrite()
	if err != nil {
		return err
	}
	if g.HasTable("users") {
		sg.Rollback()
		logging.Info("skipping data setup, users already present")
		return nil
	}

	users, err := g.AddTable("users")
	if err != nil {
		sg.Rollback()
		return err
	}
	for _, c := range []struct {
		typ  types.DataType
		name string
	}{
		{types.Int, "id"},
		{types.String, "name"},
		{types.Int, "age"},
		{types.String, "email"},
	} {
		if _, err := users.AddColumn(c.typ, c.name, false); err != nil {
			sg.Rollback()
			return err
		}
	}
	if _, err := users.AddEmptyRows(userRows); err != nil {
		sg.Rollback()
		return err
	}
	for i := 0; i < userRows; i++ {
		err := firstErr(
			users.SetInt(0, i, int64(i+1)),
			users.SetString(1, i, fmt.Sprintf("User%d", i+1)),
			users.SetInt(2, i, int64(20+i%50)),
			users.SetString(3, i, fmt.Sprintf("user%d@example.com", i+1)),
		)
		if err != nil {
			sg.Rollback()
			return err
		}
	}
	v, err := sg.Commit()
	if err != nil {
		return err
	}
	logging.Info("benchmark data committed", "rows", userRows, "version", v)
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func appendUser(sg *transaction.SharedGroup) error {
	g, err := sg.BeginWrite()
	if err != nil {
		return err
	}
	users, err := g.GetTableByName("users")
	if err != nil {
		sg.Rollback()
		return err
	}
	row, err := users.AddEmptyRows(1)
	if err != nil {
		sg.Rollback()
		return err
	}
	if err := users.SetString(1, row, "Bench User"); err != nil {
		sg.Rollback()
		return err
	}
	_, err = sg.Commit()
	return err
}

func beginEndRead(sg *transaction.SharedGroup) error {
	if _, err := sg.BeginRead(); err != nil {
		return err
	}
	sg.EndRead()
	return nil
}

func filter(expr string) operation {
	return func(sg *transaction.SharedGroup) error {
		g, err := sg.BeginRead()
		if err != nil {
			return err
		}
		defer sg.EndRead()
		users, err := g.GetTableByName("users")
		if err != nil {
			return err
		}
		q, err := parser.Filter(users, expr)
		if err != nil {
			return err
		}
		_, err = q.FindAll(0, -1, -1)
		return err
	}
}

func count(expr string) operation {
	return func(sg *transaction.SharedGroup) error {
		g, err := sg.BeginRead()
		if err != nil {
			return err
		}
		defer sg.EndRead()
		users, err := g.GetTableByName("users")
		if err != nil {
			return err
		}
		q, err := parser.Filter(users, expr)
		if err != nil {
			return err
		}
		_, err = q.Count()
		return err
	}
}

// runBenchmark splits iterations over the given number of sessions, each
// driven by its own goroutine.
func runBenchmark(dbPath string, opts config.Options, name, op string, fn operation, iterations, sessions int) (BenchmarkResult, error) {
	groups := make([]*transaction.SharedGroup, sessions)
	for i := range groups {
		sg, err := transaction.Open(dbPath, opts)
		if err != nil {
			for _, open := range groups[:i] {
				open.Close()
			}
			return BenchmarkResult{}, err
		}
		groups[i] = sg
	}
	defer func() {
		for _, sg := range groups {
			sg.Close()
		}
	}()

	var (
		mu           sync.Mutex
		durations    = make([]time.Duration, 0, iterations)
		successCount int
		errorCount   int
		errorSamples []string
	)
	work := make(chan struct{}, iterations)
	for range iterations {
		work <- struct{}{}
	}
	close(work)

	start := time.Now()
	var eg errgroup.Group
	for _, sg := range groups {
		eg.Go(func() error {
			for range work {
				opStart := time.Now()
				err := fn(sg)
				d := time.Since(opStart)

				mu.Lock()
				durations = append(durations, d)
				if err != nil {
					errorCount++
					if len(errorSamples) < 5 {
						errorSamples = append(errorSamples, err.Error())
					}
				} else {
					successCount++
				}
				mu.Unlock()
			}
			return nil
		})
	}
	eg.Wait()
	total := time.Since(start)

	res := summarize(durations)
	res.Name = name
	res.Operation = op
	res.Iterations = iterations
	res.TotalDuration = total
	res.OpsPerSecond = float64(iterations) / total.Seconds()
	res.Sessions = sessions
	res.SuccessCount = successCount
	res.ErrorCount = errorCount
	res.ErrorSamples = errorSamples
	res.Timestamp = time.Now()
	return res, nil
}

// summarize fills in the latency statistics of durations.
func summarize(durations []time.Duration) BenchmarkResult {
	var res BenchmarkResult
	if len(durations) == 0 {
		return res
	}
	slices.Sort(durations)
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	n := len(durations)
	res.AvgDuration = sum / time.Duration(n)
	res.MinDuration = durations[0]
	res.MaxDuration = durations[n-1]
	res.MedianDuration = durations[n/2]
	res.P95Duration = durations[min(int(float64(n)*0.95), n-1)]
	res.P99Duration = durations[min(int(float64(n)*0.99), n-1)]
	return res
}

// formatDuration formats a duration with units suited to its size, such as
// 1.23ms or 456.78µs.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func logResult(r BenchmarkResult) {
	logging.Info("benchmark",
		"name", r.Name,
		"operation", r.Operation,
		"sessions", r.Sessions,
		"avg", formatDuration(r.AvgDuration),
		"p50", formatDuration(r.MedianDuration),
		"p95", formatDuration(r.P95Duration),
		"p99", formatDuration(r.P99Duration),
		"ops_per_sec", fmt.Sprintf("%.0f", r.OpsPerSecond),
		"errors", r.ErrorCount,
	)
	for _, sample := range r.ErrorSamples {
		logging.Warn("benchmark error", "name", r.Name, "error", sample)
	}
}

func saveJSONReport(report BenchmarkReport, filename string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o600)
}

package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var (
	// transactionsBegun counts transactions by kind (read, write, promote).
	transactionsBegun = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "colstore",
		Subsystem: "transaction",
		Name:      "begun_total",
		Help:      "Transactions begun, by kind",
	}, []string{"kind"})

	commits = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "colstore",
		Subsystem: "transaction",
		Name:      "commits_total",
		Help:      "Write transactions committed",
	})

	rollbacks = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "colstore",
		Subsystem: "transaction",
		Name:      "rollbacks_total",
		Help:      "Write transactions rolled back",
	})

	advances = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "colstore",
		Subsystem: "transaction",
		Name:      "advances_total",
		Help:      "Read transactions advanced to a newer snapshot",
	})

	// commitLatency spans BeginWrite (or PromoteToWrite) to the end of the commit.
	commitLatency = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "colstore",
		Subsystem: "transaction",
		Name:      "commit_latency_seconds",
		Help:      "Duration of committed write transactions",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// liveVersions is the number of ring buffer entries after the last
	// change this process observed, per database path.
	liveVersions = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "colstore",
		Subsystem: "lockfile",
		Name:      "live_versions",
		Help:      "Snapshot versions held in the lock file ring buffer",
	}, []string{"path"})

	ringGrowth = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "colstore",
		Subsystem: "lockfile",
		Name:      "ring_growth_total",
		Help:      "Times the lock file ring buffer was grown",
	}, []string{"path"})
)

// Registry returns the registry holding the transaction metrics.
func Registry() *prometheus.Registry {
	return registry
}

// sessionMetrics records for one session; a nil value records nothing.
type sessionMetrics struct {
	path string
}

func (m *sessionMetrics) begun(kind string) {
	if m != nil {
		transactionsBegun.WithLabelValues(kind).Inc()
	}
}

func (m *sessionMetrics) committed(started time.Time) {
	if m != nil {
		commits.Inc()
		commitLatency.Observe(time.Since(started).Seconds())
	}
}

func (m *sessionMetrics) rolledBack() {
	if m != nil {
		rollbacks.Inc()
	}
}

func (m *sessionMetrics) advanced() {
	if m != nil {
		advances.Inc()
	}
}

func (m *sessionMetrics) versions(n int) {
	if m != nil {
		liveVersions.WithLabelValues(m.path).Set(float64(n))
	}
}

func (m *sessionMetrics) grown() {
	if m != nil {
		ringGrowth.WithLabelValues(m.path).Inc()
	}
}

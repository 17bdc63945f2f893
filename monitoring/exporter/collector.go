package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/database"
	"colstore/pkg/logging"
)

var (
	upDesc = prometheus.NewDesc(
		"colstore_up", "Whether the last scrape could read the database (1 = up, 0 = down)", nil, nil)
	versionDesc = prometheus.NewDesc(
		"colstore_snapshot_version", "Version of the latest committed snapshot", nil, nil)
	sessionsDesc = prometheus.NewDesc(
		"colstore_sessions", "Sessions attached to the database file", nil, nil)
	commitsDesc = prometheus.NewDesc(
		"colstore_lockfile_commits", "Commits since the lock file was initialized", nil, nil)
	tablesDesc = prometheus.NewDesc(
		"colstore_tables", "Tables in the latest snapshot", nil, nil)
	rowsDesc = prometheus.NewDesc(
		"colstore_table_rows", "Rows per table in the latest snapshot", []string{"table"}, nil)
)

// DatabaseCollector reads the latest snapshot on every scrape. Scrapes may
// run concurrently, the session is used by one at a time.
type DatabaseCollector struct {
	mu sync.Mutex
	sg *transaction.SharedGroup
}

func NewDatabaseCollector(sg *transaction.SharedGroup) *DatabaseCollector {
	return &DatabaseCollector{sg: sg}
}

func (c *DatabaseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- versionDesc
	ch <- sessionsDesc
	ch <- commitsDesc
	ch <- tablesDesc
	ch <- rowsDesc
}

func (c *DatabaseCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.collect(ch); err != nil {
		logging.Warn("scrape failed", "path", c.sg.Path(), "error", err)
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1)
}

func (c *DatabaseCollector) collect(ch chan<- prometheus.Metric) error {
	sessions, err := c.sg.Sessions()
	if err != nil {
		return err
	}
	commits, err := c.sg.Commits()
	if err != nil {
		return err
	}
	g, err := c.sg.BeginRead()
	if err != nil {
		return err
	}
	defer c.sg.EndRead()

	info := database.NewResultFormatter().FormatGroup(g)
	ch <- prometheus.MustNewConstMetric(versionDesc, prometheus.GaugeValue, float64(c.sg.GetVersionOfCurrentTransaction().Version))
	ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(sessions))
	ch <- prometheus.MustNewConstMetric(commitsDesc, prometheus.CounterValue, float64(commits))
	ch <- prometheus.MustNewConstMetric(tablesDesc, prometheus.GaugeValue, float64(len(info.Tables)))
	for _, ti := range info.Tables {
		ch <- prometheus.MustNewConstMetric(rowsDesc, prometheus.GaugeValue, float64(ti.Rows), ti.Name)
	}
	return nil
}

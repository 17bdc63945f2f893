package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	"colstore/pkg/types"
)

func openSeeded(t *testing.T) *transaction.SharedGroup {
	t.Helper()
	sg, err := transaction.Open(filepath.Join(t.TempDir(), "metrics.db"), config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { sg.Close() })

	g, err := sg.BeginWrite()
	require.NoError(t, err)
	orders, err := g.AddTable("orders")
	require.NoError(t, err)
	_, err = orders.AddColumn(types.Int, "total", false)
	require.NoError(t, err)
	_, err = orders.AddEmptyRows(2)
	require.NoError(t, err)
	_, err = g.AddTable("customers")
	require.NoError(t, err)
	_, err = sg.Commit()
	require.NoError(t, err)
	return sg
}

func TestDatabaseCollector(t *testing.T) {
	sg := openSeeded(t)
	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(NewDatabaseCollector(sg))

	expected := `
# HELP colstore_snapshot_version Version of the latest committed snapshot
# TYPE colstore_snapshot_version gauge
colstore_snapshot_version 1
# HELP colstore_table_rows Rows per table in the latest snapshot
# TYPE colstore_table_rows gauge
colstore_table_rows{table="customers"} 0
colstore_table_rows{table="orders"} 2
# HELP colstore_tables Tables in the latest snapshot
# TYPE colstore_tables gauge
colstore_tables 2
# HELP colstore_up Whether the last scrape could read the database (1 = up, 0 = down)
# TYPE colstore_up gauge
colstore_up 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"colstore_snapshot_version", "colstore_table_rows", "colstore_tables", "colstore_up")
	assert.NoError(t, err)
	assert.Equal(t, transaction.StageReady, sg.TransactStage())
}

func TestDatabaseCollectorDown(t *testing.T) {
	sg := openSeeded(t)
	c := NewDatabaseCollector(sg)
	require.NoError(t, sg.Close())

	assert.Equal(t, 1, testutil.CollectAndCount(c))
	assert.Equal(t, float64(0), testutil.ToFloat64(c))
}

func TestMetricsEndpoint(t *testing.T) {
	sg := openSeeded(t)
	mux, err := newMux(NewDatabaseCollector(sg))
	require.NoError(t, err)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	get := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	metrics := get("/metrics")
	assert.Contains(t, metrics, "colstore_up 1")
	assert.Contains(t, metrics, `colstore_table_rows{table="orders"} 2`)
	assert.Contains(t, metrics, "colstore_transaction_commits_total")
	assert.Equal(t, "OK", get("/health"))
}

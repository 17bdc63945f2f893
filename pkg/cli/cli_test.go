package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
	"colstore/pkg/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// peopleDB creates a database with table "people" (name, age) holding
// three rows and closes its session.
func peopleDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	sg, err := transaction.Open(path, config.Default())
	require.NoError(t, err)
	defer sg.Close()

	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.AddTable("people")
	require.NoError(t, err)
	_, err = tbl.AddColumn(types.String, "name", false)
	require.NoError(t, err)
	_, err = tbl.AddColumn(types.Int, "age", false)
	require.NoError(t, err)
	_, err = tbl.AddEmptyRows(3)
	require.NoError(t, err)
	for i, p := range []struct {
		name string
		age  int64
	}{{"alice", 29}, {"bob", 41}, {"carol", 35}} {
		require.NoError(t, tbl.SetString(0, i, p.name))
		require.NoError(t, tbl.SetInt(1, i, p.age))
	}
	_, err = sg.Commit()
	require.NoError(t, err)
	return path
}

func TestInfo(t *testing.T) {
	path := peopleDB(t)
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Regexp(t, `version\s+1\n`, out)
	assert.Regexp(t, `tables\s+1\n`, out)
	assert.Regexp(t, `sessions\s+1\n`, out)
	// the lock file was re-initialized by this command's session
	assert.Regexp(t, `commits\s+0\n`, out)
	assert.Contains(t, out, path+".history")
}

func TestInfoWhileAttached(t *testing.T) {
	path := peopleDB(t)
	sg, err := transaction.Open(path, config.Default())
	require.NoError(t, err)
	defer sg.Close()

	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("people")
	require.NoError(t, err)
	_, err = tbl.AddEmptyRow()
	require.NoError(t, err)
	_, err = sg.Commit()
	require.NoError(t, err)

	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Regexp(t, `version\s+2\n`, out)
	assert.Regexp(t, `sessions\s+2\n`, out)
	assert.Regexp(t, `commits\s+1\n`, out)
}

func TestInfoWithConfig(t *testing.T) {
	path := peopleDB(t)
	opts := config.Default()
	opts.History = false
	cfg := filepath.Join(t.TempDir(), "colstore.yaml")
	require.NoError(t, opts.Save(cfg))

	out, err := run(t, "--config", cfg, "info", path)
	require.NoError(t, err)
	assert.Regexp(t, `history\s+disabled`, out)
}

func TestMissingDatabase(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	for _, cmd := range []string{"info", "tables", "check", "compact"} {
		t.Run(cmd, func(t *testing.T) {
			_, err := run(t, cmd, missing)
			assert.ErrorIs(t, err, dberr.ErrFileAccess)
		})
	}
}

func TestReportError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	t.Cleanup(func() { logging.Close() })

	tests := []struct {
		name      string
		args      []string
		wantStack bool
	}{
		{"default level", []string{"info", missing}, false},
		{"debug level", []string{"--log-level", "debug", "info", missing}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, a := newRoot()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			require.ErrorIs(t, err, dberr.ErrFileAccess)

			var buf bytes.Buffer
			a.reportError(&buf, err)
			assert.Contains(t, buf.String(), "Error (system):")
			assert.Contains(t, buf.String(), "FILE_ACCESS")
			if tt.wantStack {
				assert.Contains(t, buf.String(), "Stack trace:")
			} else {
				assert.NotContains(t, buf.String(), "Stack trace:")
			}
		})
	}
}

func TestTables(t *testing.T) {
	out, err := run(t, "tables", peopleDB(t))
	require.NoError(t, err)
	assert.Regexp(t, `people\s+3\s+2`, out)
	assert.Contains(t, out, "1 table(s)")
}

func TestDump(t *testing.T) {
	path := peopleDB(t)

	tests := []struct {
		name    string
		args    []string
		has     []string
		hasNot  []string
		summary string
	}{
		{
			name:    "whole table",
			has:     []string{"name", "age", "alice", "bob", "carol"},
			summary: "rows 1-3 of 3",
		},
		{
			name:    "filtered",
			args:    []string{"--where", "age > 30 and name != 'carol'"},
			has:     []string{"bob"},
			hasNot:  []string{"alice", "carol"},
			summary: "rows 1-1 of 1",
		},
		{
			name:    "paged",
			args:    []string{"--limit", "1", "--offset", "1"},
			has:     []string{"bob"},
			hasNot:  []string{"alice", "carol"},
			summary: "rows 2-2 of 3",
		},
		{
			name:    "nothing matches",
			args:    []string{"-w", "name beginswith 'z'"},
			summary: "no rows of 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"dump", path, "people"}, tt.args...)...)
			require.NoError(t, err)
			for _, s := range tt.has {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hasNot {
				assert.NotContains(t, out, s)
			}
			assert.Contains(t, out, tt.summary)
		})
	}
}

func TestDumpErrors(t *testing.T) {
	path := peopleDB(t)

	_, err := run(t, "dump", path, "nobody")
	assert.Error(t, err)

	_, err = run(t, "dump", path, "people", "--where", "age >")
	assert.ErrorIs(t, err, dberr.ErrInvalidQuery)

	_, err = run(t, "dump", path, "people", "--where", "height > 3")
	assert.ErrorIs(t, err, dberr.ErrInvalidQuery)

	_, err = run(t, "dump", path, "people", "--offset", "-1")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	path := peopleDB(t)
	out, err := run(t, "check", "-j", "2", path)
	require.NoError(t, err)
	assert.Regexp(t, `people\s+3 rows\s+ok`, out)
	assert.Contains(t, out, "1 table(s) verified")
}

func TestCompact(t *testing.T) {
	path := peopleDB(t)

	other, err := transaction.Open(path, config.Default())
	require.NoError(t, err)
	_, err = run(t, "compact", path)
	assert.ErrorContains(t, err, "in use by 1 other session")
	require.NoError(t, other.Close())

	out, err := run(t, "compact", path)
	require.NoError(t, err)
	assert.Contains(t, out, "compacted")

	out, err = run(t, "dump", path, "people")
	require.NoError(t, err)
	assert.Contains(t, out, "rows 1-3 of 3")
}

func TestExport(t *testing.T) {
	path := peopleDB(t)
	dest := filepath.Join(t.TempDir(), "copy.db")

	out, err := run(t, "export", path, dest)
	require.NoError(t, err)
	assert.Contains(t, out, "exported version 1")

	_, err = run(t, "export", path, dest)
	assert.ErrorIs(t, err, dberr.ErrFileAccess)

	out, err = run(t, "dump", dest, "people", "--where", "name = 'carol'")
	require.NoError(t, err)
	assert.Contains(t, out, "35")
}

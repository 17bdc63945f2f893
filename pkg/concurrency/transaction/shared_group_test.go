package transaction

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/config"
	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

func testOptions() config.Options {
	opts := config.Default()
	opts.RingBufferEntries = 4
	return opts
}

func dbPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func openSession(t *testing.T, path string, opts config.Options) *SharedGroup {
	t.Helper()
	sg, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { sg.Close() })
	return sg
}

// seed creates table "items" with an int column "n" holding the values
// 1..rows and commits it.
func seed(t *testing.T, sg *SharedGroup, rows int) primitives.Version {
	t.Helper()
	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.AddTable("items")
	require.NoError(t, err)
	_, err = tbl.AddColumn(types.Int, "n", false)
	require.NoError(t, err)
	_, err = tbl.AddEmptyRows(rows)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		require.NoError(t, tbl.SetInt(0, i, int64(i+1)))
	}
	v, err := sg.Commit()
	require.NoError(t, err)
	return v
}

// appendRows adds n rows to "items" in one write transaction.
func appendRows(t *testing.T, sg *SharedGroup, n int) primitives.Version {
	t.Helper()
	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)
	_, err = tbl.AddEmptyRows(n)
	require.NoError(t, err)
	v, err := sg.Commit()
	require.NoError(t, err)
	return v
}

func itemCount(t *testing.T, g *database.Group) int {
	t.Helper()
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)
	return tbl.Size()
}

func TestTransactStageString(t *testing.T) {
	tests := []struct {
		stage TransactStage
		want  string
	}{
		{StageReady, "READY"},
		{StageReading, "READING"},
		{StageWriting, "WRITING"},
		{StageReadFailed, "READ_FAILED"},
		{StageWriteFailed, "WRITE_FAILED"},
		{TransactStage(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.stage.String())
	}
}

func TestOpenRejectsInvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.RingBufferEntries = 1
	_, err := Open(dbPath(t), opts)
	assert.ErrorIs(t, err, dberr.ErrIllegalCombination)
}

func TestOpenNoCreate(t *testing.T) {
	opts := testOptions()
	opts.NoCreate = true
	_, err := Open(dbPath(t), opts)
	assert.ErrorIs(t, err, dberr.ErrFileAccess)
}

func TestCommitVisibleToNewReaders(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	v := seed(t, sg, 3)
	assert.Equal(t, primitives.Version(1), v)
	assert.Equal(t, StageReady, sg.TransactStage())

	other := openSession(t, path, testOptions())
	g, err := other.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 3, itemCount(t, g))
	assert.Equal(t, v, other.GetVersionOfCurrentTransaction().Version)
	other.EndRead()
	assert.Equal(t, StageReady, other.TransactStage())
	assert.False(t, g.IsAttached())
}

func TestReaderKeepsSnapshotUntilAdvance(t *testing.T) {
	path := dbPath(t)
	g1 := openSession(t, path, testOptions())
	g2 := openSession(t, path, testOptions())
	v1 := seed(t, g1, 3)

	rg, err := g2.BeginRead()
	require.NoError(t, err)
	tbl, err := rg.GetTableByName("items")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Size())

	v2 := appendRows(t, g1, 2)
	assert.Greater(t, v2, v1)

	// g2 is still bound to v1
	assert.Equal(t, 3, tbl.Size())
	assert.Equal(t, v1, g2.GetVersionOfCurrentTransaction().Version)
	changed, err := g2.HasChanged()
	require.NoError(t, err)
	assert.True(t, changed)

	var seen []log.InstrType
	observer := log.HandlerFunc(func(in *log.Instruction) error {
		seen = append(seen, in.Type)
		return nil
	})
	require.NoError(t, g2.AdvanceRead(observer))
	assert.True(t, tbl.IsAttached())
	assert.Equal(t, 5, tbl.Size())
	assert.Equal(t, v2, g2.GetVersionOfCurrentTransaction().Version)
	assert.Contains(t, seen, log.InsertRows)

	changed, err = g2.HasChanged()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStageErrors(t *testing.T) {
	sg := openSession(t, dbPath(t), testOptions())
	seed(t, sg, 1)

	tests := []struct {
		name  string
		setup func(t *testing.T)
		call  func() error
	}{
		{
			name: "commit while ready",
			call: func() error { _, err := sg.Commit(); return err },
		},
		{
			name: "advance while ready",
			call: func() error { return sg.AdvanceRead(nil) },
		},
		{
			name: "promote while ready",
			call: func() error { return sg.PromoteToWrite(nil) },
		},
		{
			name:  "begin write while reading",
			setup: func(t *testing.T) { _, err := sg.BeginRead(); require.NoError(t, err) },
			call:  func() error { _, err := sg.BeginWrite(); return err },
		},
		{
			name:  "begin read while reading",
			setup: func(t *testing.T) { _, err := sg.BeginRead(); require.NoError(t, err) },
			call:  func() error { _, err := sg.BeginRead(); return err },
		},
		{
			name:  "commit while reading",
			setup: func(t *testing.T) { _, err := sg.BeginRead(); require.NoError(t, err) },
			call:  func() error { _, err := sg.CommitAndContinueAsRead(); return err },
		},
		{
			name:  "advance while writing",
			setup: func(t *testing.T) { _, err := sg.BeginWrite(); require.NoError(t, err) },
			call:  func() error { return sg.AdvanceRead(nil) },
		},
		{
			name:  "compact while writing",
			setup: func(t *testing.T) { _, err := sg.BeginWrite(); require.NoError(t, err) },
			call:  func() error { _, err := sg.Compact(); return err },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}
			t.Cleanup(func() {
				sg.Rollback()
				sg.EndRead()
			})
			assert.ErrorIs(t, tt.call(), dberr.ErrWrongTransactState)
		})
	}
}

func TestEndReadAndRollbackOutsideTransaction(t *testing.T) {
	sg := openSession(t, dbPath(t), testOptions())
	sg.EndRead()
	sg.Rollback()
	assert.Equal(t, StageReady, sg.TransactStage())

	// EndRead does not end a write transaction
	_, err := sg.BeginWrite()
	require.NoError(t, err)
	sg.EndRead()
	assert.Equal(t, StageWriting, sg.TransactStage())
	sg.Rollback()
	assert.Equal(t, StageReady, sg.TransactStage())
}

func TestWithoutHistory(t *testing.T) {
	opts := testOptions()
	opts.History = false
	sg := openSession(t, dbPath(t), opts)
	seed(t, sg, 2)

	_, err := sg.BeginRead()
	require.NoError(t, err)
	assert.ErrorIs(t, sg.AdvanceRead(nil), dberr.ErrNoHistory)
	assert.ErrorIs(t, sg.PromoteToWrite(nil), dberr.ErrNoHistory)
	sg.EndRead()

	_, err = sg.BeginWrite()
	require.NoError(t, err)
	assert.ErrorIs(t, sg.RollbackAndContinueAsRead(nil), dberr.ErrNoHistory)
	assert.Equal(t, StageWriting, sg.TransactStage())
	sg.Rollback()
}

func TestRollback(t *testing.T) {
	sg := openSession(t, dbPath(t), testOptions())
	seed(t, sg, 3)

	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)
	_, err = tbl.AddEmptyRows(10)
	require.NoError(t, err)
	require.NoError(t, tbl.SetInt(0, 0, 99))
	sg.Rollback()
	assert.False(t, tbl.IsAttached())

	g, err = sg.BeginRead()
	require.NoError(t, err)
	tbl, err = g.GetTableByName("items")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Size())
	n, err := tbl.GetInt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	sg.EndRead()
}

func TestRollbackAndContinueAsRead(t *testing.T) {
	sg := openSession(t, dbPath(t), testOptions())
	v := seed(t, sg, 3)

	g, err := sg.BeginWrite()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)
	_, err = tbl.AddEmptyRows(4)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove(0))

	var undone []log.InstrType
	err = sg.RollbackAndContinueAsRead(log.HandlerFunc(func(in *log.Instruction) error {
		undone = append(undone, in.Type)
		return nil
	}))
	require.NoError(t, err)

	assert.Equal(t, StageReading, sg.TransactStage())
	assert.True(t, tbl.IsAttached())
	assert.Equal(t, 3, tbl.Size())
	assert.Equal(t, v, sg.GetVersionOfCurrentTransaction().Version)
	require.NotEmpty(t, undone)
	assert.Equal(t, log.InsertRows, undone[0], "undo starts with the row removal")

	// the write mutex is free again
	other := openSession(t, sg.Path(), testOptions())
	appendRows(t, other, 1)
}

func TestPromoteToWrite(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	other := openSession(t, path, testOptions())
	seed(t, sg, 2)

	g, err := sg.BeginRead()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)

	latest := appendRows(t, other, 3)
	assert.Equal(t, 2, tbl.Size())

	require.NoError(t, sg.PromoteToWrite(nil))
	assert.Equal(t, StageWriting, sg.TransactStage())
	assert.Equal(t, 5, tbl.Size())
	assert.Equal(t, latest, sg.GetVersionOfCurrentTransaction().Version)

	_, err = tbl.AddEmptyRows(1)
	require.NoError(t, err)
	v, err := sg.CommitAndContinueAsRead()
	require.NoError(t, err)
	assert.Equal(t, latest+1, v)
	assert.Equal(t, StageReading, sg.TransactStage())
	assert.True(t, tbl.IsAttached())
	assert.Equal(t, 6, tbl.Size())

	err = tbl.SetInt(0, 0, 7)
	assert.Error(t, err, "continued read transaction is read only")
	sg.EndRead()

	rg, err := other.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 6, itemCount(t, rg))
	other.EndRead()
}

func TestPinVersion(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	reader := openSession(t, path, testOptions())
	v1 := seed(t, sg, 2)

	pinned, err := sg.PinVersion()
	require.NoError(t, err)
	assert.Equal(t, v1, pinned.Version)

	// enough commits to recycle every unpinned entry of the ring
	for i := 0; i < 6; i++ {
		appendRows(t, sg, 1)
	}

	g, err := reader.BeginReadAt(pinned)
	require.NoError(t, err)
	assert.Equal(t, 2, itemCount(t, g))
	reader.EndRead()

	sg.UnpinVersion(pinned)
	appendRows(t, sg, 1)
	_, err = reader.BeginReadAt(pinned)
	assert.ErrorIs(t, err, dberr.ErrBadVersion)
	assert.Equal(t, StageReady, reader.TransactStage())
}

func TestAdvanceReadTo(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	reader := openSession(t, path, testOptions())
	seed(t, sg, 1)

	g, err := reader.BeginRead()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)

	appendRows(t, sg, 1)
	pinned, err := sg.PinVersion()
	require.NoError(t, err)
	defer sg.UnpinVersion(pinned)
	appendRows(t, sg, 1)

	require.NoError(t, reader.AdvanceReadTo(nil, pinned))
	assert.Equal(t, 2, tbl.Size())
	assert.Equal(t, pinned, reader.GetVersionOfCurrentTransaction())

	require.NoError(t, reader.AdvanceRead(nil))
	assert.Equal(t, 3, tbl.Size())

	err = reader.AdvanceReadTo(nil, pinned)
	assert.ErrorIs(t, err, dberr.ErrBadVersion)
	assert.Equal(t, StageReading, reader.TransactStage())
	reader.EndRead()
}

func TestCompact(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	seed(t, sg, 5)
	for i := 0; i < 3; i++ {
		appendRows(t, sg, 2)
	}

	other, err := Open(path, testOptions())
	require.NoError(t, err)
	ok, err := sg.Compact()
	require.NoError(t, err)
	assert.False(t, ok, "another session is attached")
	require.NoError(t, other.Close())

	ok, err = sg.Compact()
	require.NoError(t, err)
	assert.True(t, ok)

	g, err := sg.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 11, itemCount(t, g))
	assert.Equal(t, primitives.Version(0), sg.GetVersionOfCurrentTransaction().Version)
	sg.EndRead()

	v := appendRows(t, sg, 1)
	assert.Equal(t, primitives.Version(1), v)

	reopened := openSession(t, path, testOptions())
	g, err = reopened.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 12, itemCount(t, g))
	reopened.EndRead()
}

func TestMemOnlyRemovesFile(t *testing.T) {
	path := dbPath(t)
	opts := testOptions()
	opts.Durability = config.DurabilityMemOnly

	sg, err := Open(path, opts)
	require.NoError(t, err)
	seed(t, sg, 2)
	assert.FileExists(t, path)

	mismatched := testOptions()
	_, err = Open(path, mismatched)
	assert.ErrorIs(t, err, dberr.ErrIncompatibleLockFile)

	require.NoError(t, sg.Close())
	assert.NoFileExists(t, path)

	// a new session starts from an empty database
	sg = openSession(t, path, opts)
	g, err := sg.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 0, g.TableCount())
	sg.EndRead()
}

func TestReopenKeepsData(t *testing.T) {
	path := dbPath(t)
	sg, err := Open(path, testOptions())
	require.NoError(t, err)
	v := seed(t, sg, 4)
	require.NoError(t, sg.Close())
	assert.NoError(t, sg.Close(), "closing twice is harmless")

	sg = openSession(t, path, testOptions())
	g, err := sg.BeginRead()
	require.NoError(t, err)
	assert.Equal(t, 4, itemCount(t, g))
	assert.Equal(t, v, sg.GetVersionOfCurrentTransaction().Version)
	sg.EndRead()

	_, err = sg.BeginRead()
	require.NoError(t, err)
	require.NoError(t, sg.Close())
	_, err = sg.BeginRead()
	assert.ErrorIs(t, err, dberr.ErrWrongTransactState)
}

func TestSessionsAndCommits(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())
	n, err := sg.Sessions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other := openSession(t, path, testOptions())
	seed(t, sg, 1)
	appendRows(t, other, 1)

	n, err = sg.Sessions()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	commits, err := other.Commits()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), commits)

	require.NoError(t, other.Close())
	n, err = sg.Sessions()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, sg.Close())
	_, err = sg.Sessions()
	assert.Error(t, err)
}

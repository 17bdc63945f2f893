package ui

import (
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/config"
	dberr "colstore/pkg/error"
	"colstore/pkg/types"
)

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

// browserFixture opens a writer and a browser session on one file. The
// writer has created "items" with n = 1..30 and an empty "tags".
func browserFixture(t *testing.T) (writer, browser *transaction.SharedGroup) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browse.db")
	open := func() *transaction.SharedGroup {
		sg, err := transaction.Open(path, config.Default())
		require.NoError(t, err)
		t.Cleanup(func() { sg.Close() })
		return sg
	}
	writer, browser = open(), open()

	g, err := writer.BeginWrite()
	require.NoError(t, err)
	items, err := g.AddTable("items")
	require.NoError(t, err)
	_, err = items.AddColumn(types.Int, "n", false)
	require.NoError(t, err)
	_, err = items.AddEmptyRows(30)
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		require.NoError(t, items.SetInt(0, i, int64(i+1)))
	}
	tags, err := g.AddTable("tags")
	require.NoError(t, err)
	_, err = tags.AddColumn(types.String, "label", false)
	require.NoError(t, err)
	_, err = writer.Commit()
	require.NoError(t, err)
	return writer, browser
}

func appendItem(t *testing.T, writer *transaction.SharedGroup) {
	t.Helper()
	g, err := writer.BeginWrite()
	require.NoError(t, err)
	items, err := g.GetTableByName("items")
	require.NoError(t, err)
	_, err = items.AddEmptyRows(1)
	require.NoError(t, err)
	_, err = writer.Commit()
	require.NoError(t, err)
}

func newTestModel(t *testing.T, sg *transaction.SharedGroup) Model {
	t.Helper()
	m, err := NewModel(sg)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestModelListsTables(t *testing.T) {
	_, sg := browserFixture(t)
	m := newTestModel(t, sg)

	assert.Equal(t, transaction.StageReading, sg.TransactStage())
	rows := m.tables.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "items", rows[0][0])
	assert.Equal(t, "30", rows[0][1])
	assert.Equal(t, "tags", rows[1][0])
	assert.Contains(t, m.View(), "items")
}

func TestModelPaging(t *testing.T) {
	_, sg := browserFixture(t)
	m := update(t, newTestModel(t, sg), enter)

	require.Equal(t, rowsScreen, m.screen)
	assert.Equal(t, 30, m.result.Total)
	assert.Len(t, m.result.Rows, defaultPageSize)
	assert.Equal(t, "1", m.result.Rows[0][0])

	m = update(t, m, runes("n"))
	assert.Equal(t, 20, m.offset)
	require.Len(t, m.result.Rows, 10)
	assert.Equal(t, "21", m.result.Rows[0][0])

	m = update(t, m, runes("n"))
	assert.Equal(t, 20, m.offset)

	m = update(t, m, runes("p"))
	assert.Equal(t, 0, m.offset)

	m = update(t, m, esc)
	assert.Equal(t, tablesScreen, m.screen)
	assert.Nil(t, m.current)
}

func TestModelFilter(t *testing.T) {
	_, sg := browserFixture(t)
	m := update(t, newTestModel(t, sg), enter, runes("/"))
	require.True(t, m.filtering)

	m = update(t, m, runes("n > 25"), enter)
	assert.False(t, m.filtering)
	assert.NoError(t, m.err)
	assert.Equal(t, "n > 25", m.expr)
	assert.Equal(t, 5, m.result.Total)
	assert.Equal(t, []int{25, 26, 27, 28, 29}, m.result.RowIndices)
	assert.Contains(t, m.View(), "rows 1-5 of 5")

	m = update(t, m, runes("/"), runes(" and"), enter)
	assert.True(t, m.filtering)
	assert.ErrorIs(t, m.err, dberr.ErrInvalidQuery)
	assert.Equal(t, "n > 25", m.expr)

	m = update(t, m, esc)
	assert.False(t, m.filtering)

	m = update(t, m, runes("x"))
	assert.Empty(t, m.expr)
	assert.Equal(t, 30, m.result.Total)
}

func TestModelRefresh(t *testing.T) {
	writer, sg := browserFixture(t)
	m := update(t, newTestModel(t, sg), enter)
	before := sg.GetVersionOfCurrentTransaction().Version

	appendItem(t, writer)
	m = update(t, m, changedMsg{})
	assert.True(t, m.pending)
	assert.Equal(t, 30, m.result.Total)

	m = update(t, m, runes("r"))
	assert.False(t, m.pending)
	assert.Equal(t, 31, m.result.Total)
	assert.Greater(t, sg.GetVersionOfCurrentTransaction().Version, before)
}

func TestModelFollowKeepsFilter(t *testing.T) {
	writer, sg := browserFixture(t)
	m := update(t, newTestModel(t, sg), enter, runes("/"), runes("n >= 30"), enter)
	require.Equal(t, 1, m.result.Total)

	m = update(t, m, runes("f"))
	require.True(t, m.follow)

	appendItem(t, writer)
	g, err := writer.BeginWrite()
	require.NoError(t, err)
	items, err := g.GetTableByName("items")
	require.NoError(t, err)
	require.NoError(t, items.SetInt(0, 30, 99))
	_, err = writer.Commit()
	require.NoError(t, err)

	m = update(t, m, changedMsg{})
	assert.False(t, m.pending)
	assert.Equal(t, "n >= 30", m.expr)
	assert.Equal(t, 2, m.result.Total)
	assert.Equal(t, []int{29, 30}, m.result.RowIndices)
}

func TestModelWindowResize(t *testing.T) {
	_, sg := browserFixture(t)
	m := update(t, newTestModel(t, sg), enter, tea.WindowSizeMsg{Width: 100, Height: 24})

	assert.Equal(t, 10, m.pageSize())
	assert.Len(t, m.result.Rows, 10)
}

package database

import (
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// RowSource recomputes the rows of a view against a table. Views carry
// their source so that they can be brought back in sync after the table
// changed, and so that a handed over view can be re-run on another
// snapshot.
type RowSource func(t *Table) []int

// TableView is an ordered list of row indices of one table. It is a
// snapshot of a search result: once the table changes the view is out of
// sync until SyncIfNeeded re-runs its source.
type TableView struct {
	table   *Table
	rows    []int
	version uint64
	source  RowSource

	sorted  bool
	sortCol int
	sortAsc bool
}

// NewTableView runs src against t and wraps the result. A nil src gives a
// view over no rows that never re-syncs.
func (t *Table) NewTableView(src RowSource) *TableView {
	v := &TableView{table: t, source: src}
	v.run()
	return v
}

// NewTableViewOf wraps a fixed row list. The view keeps its rows when
// synced, minus those that no longer exist.
func (t *Table) NewTableViewOf(rows []int) *TableView {
	return &TableView{table: t, rows: slices.Clone(rows), version: t.Version()}
}

func (v *TableView) run() {
	v.version = v.table.Version()
	if v.source == nil {
		n := v.table.Size()
		v.rows = slices.DeleteFunc(v.rows, func(r int) bool { return r >= n })
		return
	}
	v.rows = v.source(v.table)
	if v.sorted {
		v.sortRows()
	}
}

func (v *TableView) IsAttached() bool {
	return v.table.IsAttached()
}

// Table returns the table the view indexes into.
func (v *TableView) Table() *Table { return v.table }

// Source returns the function the view re-runs on sync.
func (v *TableView) Source() RowSource { return v.source }

// IsInSync reports whether the table is unchanged since the view was
// computed.
func (v *TableView) IsInSync() bool {
	return v.IsAttached() && v.version == v.table.Version()
}

// SyncIfNeeded re-runs the view's source when the table changed.
func (v *TableView) SyncIfNeeded() error {
	if err := v.check("SyncIfNeeded"); err != nil {
		return err
	}
	if v.version != v.table.Version() {
		v.run()
	}
	return nil
}

func (v *TableView) Size() int { return len(v.rows) }

func (v *TableView) IsEmpty() bool { return len(v.rows) == 0 }

// Rows returns a copy of the row indices.
func (v *TableView) Rows() []int { return slices.Clone(v.rows) }

func (v *TableView) check(op string) error {
	if !v.IsAttached() {
		return dberr.From(dberr.ErrDetachedAccessor).In(op, "TableView")
	}
	return nil
}

// RowIndex returns the table row at position i of the view.
func (v *TableView) RowIndex(i int) (int, error) {
	const op = "RowIndex"
	if err := v.check(op); err != nil {
		return primitives.NPos, err
	}
	if i < 0 || i >= len(v.rows) {
		return primitives.NPos, dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("view row %d of %d", i, len(v.rows)).In(op, "TableView")
	}
	return v.rows[i], nil
}

// FindByRow returns the position of a table row in the view, or NotFound.
func (v *TableView) FindByRow(row int) int {
	if i := slices.Index(v.rows, row); i >= 0 {
		return i
	}
	return primitives.NotFound
}

func (v *TableView) Get(col, i int) (types.Mixed, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return types.NullMixed(), err
	}
	return v.table.Get(col, row)
}

func (v *TableView) GetInt(col, i int) (int64, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return 0, err
	}
	return v.table.GetInt(col, row)
}

func (v *TableView) GetBool(col, i int) (bool, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return false, err
	}
	return v.table.GetBool(col, row)
}

func (v *TableView) GetDouble(col, i int) (float64, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return 0, err
	}
	return v.table.GetDouble(col, row)
}

func (v *TableView) GetString(col, i int) (string, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return "", err
	}
	return v.table.GetString(col, row)
}

func (v *TableView) GetTimestamp(col, i int) (types.TimestampValue, error) {
	row, err := v.RowIndex(i)
	if err != nil {
		return types.NullTimestamp(), err
	}
	return v.table.GetTimestamp(col, row)
}

func (v *TableView) SetInt(col, i int, x int64) error {
	row, err := v.RowIndex(i)
	if err != nil {
		return err
	}
	return v.table.SetInt(col, row, x)
}

func (v *TableView) SetString(col, i int, s string) error {
	row, err := v.RowIndex(i)
	if err != nil {
		return err
	}
	return v.table.SetString(col, row, s)
}

// Sort orders the view by col, keeping the current order among equal
// values. Nulls sort first ascending. The order is kept across syncs.
func (v *TableView) Sort(col int, ascending bool) error {
	if err := v.table.checkColumn("Sort", col); err != nil {
		return err
	}
	if t := v.table.spec.ColumnType(col); t == primitives.ColTypeTable || t == primitives.ColTypeMixed {
		return dberr.From(dberr.ErrIllegalType).WithDetail("cannot sort by %s column", t).In("Sort", "TableView")
	}
	v.sorted, v.sortCol, v.sortAsc = true, col, ascending
	v.sortRows()
	return nil
}

// SortOrder returns the column and direction set by Sort; ok is false for
// an unsorted view.
func (v *TableView) SortOrder() (col int, ascending, ok bool) {
	return v.sortCol, v.sortAsc, v.sorted
}

func (v *TableView) sortRows() {
	if len(v.rows) == 0 {
		return
	}
	c := v.table.cols[v.sortCol]
	slices.SortStableFunc(v.rows, func(a, b int) int {
		r := c.CompareValues(a, b)
		if !v.sortAsc {
			r = -r
		}
		return r
	})
}

// Remove erases the table row at position i and drops it from the view.
// Rows after it in the table shift down, and so do their entries here.
func (v *TableView) Remove(i int) error {
	row, err := v.RowIndex(i)
	if err != nil {
		return err
	}
	if err := v.table.Remove(row); err != nil {
		return err
	}
	v.rows = slices.Delete(v.rows, i, i+1)
	for j, r := range v.rows {
		if r > row {
			v.rows[j] = r - 1
		}
	}
	v.version = v.table.Version()
	return nil
}

// Clear erases every row of the view from the table.
func (v *TableView) Clear() error {
	if err := v.check("Clear"); err != nil {
		return err
	}
	rows := slices.Clone(v.rows)
	slices.Sort(rows)
	rows = slices.Compact(rows)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i] >= v.table.Size() {
			continue
		}
		if err := v.table.Remove(rows[i]); err != nil {
			return err
		}
	}
	v.rows = v.rows[:0]
	v.version = v.table.Version()
	return nil
}

// SumInt adds col over the rows of the view, skipping nulls.
func (v *TableView) SumInt(col int) (int64, error) {
	var sum int64
	err := v.eachNonNull("SumInt", col, types.Int, func(row int) {
		x, _ := v.table.GetInt(col, row)
		sum += x
	})
	return sum, err
}

func (v *TableView) SumDouble(col int) (float64, error) {
	var sum float64
	err := v.eachNonNull("SumDouble", col, types.Double, func(row int) {
		x, _ := v.table.GetDouble(col, row)
		sum += x
	})
	return sum, err
}

// MinimumInt returns the smallest value and its table row, NotFound when
// the view holds no non-null value.
func (v *TableView) MinimumInt(col int) (int64, int, error) {
	return v.extremeInt("MinimumInt", col, -1)
}

func (v *TableView) MaximumInt(col int) (int64, int, error) {
	return v.extremeInt("MaximumInt", col, 1)
}

func (v *TableView) extremeInt(op string, col, sign int) (int64, int, error) {
	var best int64
	at := primitives.NotFound
	err := v.eachNonNull(op, col, types.Int, func(row int) {
		x, _ := v.table.GetInt(col, row)
		if at == primitives.NotFound || types.CompareOrdered(x, best) == sign {
			best, at = x, row
		}
	})
	return best, at, err
}

func (v *TableView) AverageInt(col int) (float64, error) {
	var sum float64
	n := 0
	err := v.eachNonNull("AverageInt", col, types.Int, func(row int) {
		x, _ := v.table.GetInt(col, row)
		sum += float64(x)
		n++
	})
	if n == 0 {
		return 0, err
	}
	return sum / float64(n), err
}

func (v *TableView) eachNonNull(op string, col int, typ types.DataType, fn func(row int)) error {
	if err := v.table.checkSearch(op, col, typ); err != nil {
		return err
	}
	if len(v.rows) == 0 {
		return nil
	}
	c := v.table.cols[col]
	for _, row := range v.rows {
		if !c.IsNull(row) {
			fn(row)
		}
	}
	return nil
}

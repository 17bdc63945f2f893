package database

import (
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/column"
	"colstore/pkg/types"
)

// bytesFinder is the search side of string, binary and enum columns.
type bytesFinder interface {
	FindFirst(v []byte, begin, end int) int
	FindAll(v []byte, begin, end int) []int
	Count(v []byte) int
}

func (t *Table) checkSearch(op string, col int, want ...types.DataType) error {
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	got := t.spec.PublicColumnType(col)
	for _, w := range want {
		if got == w {
			return nil
		}
	}
	return dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", col, got).In(op, "Table")
}

// FindFirstInt returns the first row holding v, or NotFound.
func (t *Table) FindFirstInt(col int, v int64) (int, error) {
	if err := t.checkSearch("FindFirstInt", col, types.Int); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.intColumn(col).FindFirst(v, 0, primitives.NPos), nil
}

func (t *Table) FindFirstBool(col int, v bool) (int, error) {
	if err := t.checkSearch("FindFirstBool", col, types.Bool); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.intColumn(col).FindFirst(int64(boolToInt(v)), 0, primitives.NPos), nil
}

func (t *Table) FindFirstFloat(col int, v float32) (int, error) {
	if err := t.checkSearch("FindFirstFloat", col, types.Float); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.cols[col].(*column.FloatColumn).FindFirst(v, 0, primitives.NPos), nil
}

func (t *Table) FindFirstDouble(col int, v float64) (int, error) {
	if err := t.checkSearch("FindFirstDouble", col, types.Double); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.cols[col].(*column.DoubleColumn).FindFirst(v, 0, primitives.NPos), nil
}

func (t *Table) FindFirstString(col int, v string) (int, error) {
	if err := t.checkSearch("FindFirstString", col, types.String); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.cols[col].(bytesFinder).FindFirst([]byte(v), 0, primitives.NPos), nil
}

// FindFirstBinary searches a binary column; nil finds the first null.
func (t *Table) FindFirstBinary(col int, v []byte) (int, error) {
	if err := t.checkSearch("FindFirstBinary", col, types.Binary); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.cols[col].(bytesFinder).FindFirst(v, 0, primitives.NPos), nil
}

func (t *Table) FindFirstTimestamp(col int, v types.TimestampValue) (int, error) {
	if err := t.checkSearch("FindFirstTimestamp", col, types.Timestamp); err != nil {
		return primitives.NotFound, err
	}
	if t.IsEmpty() {
		return primitives.NotFound, nil
	}
	return t.cols[col].(*column.TimestampColumn).FindFirst(v, 0, primitives.NPos), nil
}

// FindFirstLink returns the first row whose link in col points at target.
func (t *Table) FindFirstLink(col, target int) (int, error) {
	if err := t.checkSearch("FindFirstLink", col, types.Link); err != nil {
		return primitives.NotFound, err
	}
	rows := t.cols[col].(*LinkColumn).rowsLinkingTo(target)
	if len(rows) == 0 {
		return primitives.NotFound, nil
	}
	return rows[0], nil
}

// FindFirstNull returns the first null cell of col.
func (t *Table) FindFirstNull(col int) (int, error) {
	if err := t.checkColumn("FindFirstNull", col); err != nil {
		return primitives.NotFound, err
	}
	for row, n := 0, t.Size(); row < n; row++ {
		if t.cols[col].IsNull(row) {
			return row, nil
		}
	}
	return primitives.NotFound, nil
}

func (t *Table) findAllView(find RowSource) *TableView {
	return t.NewTableView(find)
}

func (t *Table) FindAllInt(col int, v int64) (*TableView, error) {
	if err := t.checkSearch("FindAllInt", col, types.Int); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.intColumn(col).FindAll(v, 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllBool(col int, v bool) (*TableView, error) {
	if err := t.checkSearch("FindAllBool", col, types.Bool); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.intColumn(col).FindAll(int64(boolToInt(v)), 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllFloat(col int, v float32) (*TableView, error) {
	if err := t.checkSearch("FindAllFloat", col, types.Float); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.cols[col].(*column.FloatColumn).FindAll(v, 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllDouble(col int, v float64) (*TableView, error) {
	if err := t.checkSearch("FindAllDouble", col, types.Double); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.cols[col].(*column.DoubleColumn).FindAll(v, 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllString(col int, v string) (*TableView, error) {
	if err := t.checkSearch("FindAllString", col, types.String); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.cols[col].(bytesFinder).FindAll([]byte(v), 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllBinary(col int, v []byte) (*TableView, error) {
	if err := t.checkSearch("FindAllBinary", col, types.Binary); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.cols[col].(bytesFinder).FindAll(v, 0, primitives.NPos)
	}), nil
}

func (t *Table) FindAllTimestamp(col int, v types.TimestampValue) (*TableView, error) {
	if err := t.checkSearch("FindAllTimestamp", col, types.Timestamp); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		if t.IsEmpty() {
			return nil
		}
		return t.cols[col].(*column.TimestampColumn).FindAll(v, 0, primitives.NPos)
	}), nil
}

// FindAllLink returns the rows whose link in col points at target.
func (t *Table) FindAllLink(col, target int) (*TableView, error) {
	if err := t.checkSearch("FindAllLink", col, types.Link); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		return t.cols[col].(*LinkColumn).rowsLinkingTo(target)
	}), nil
}

func (t *Table) FindAllNull(col int) (*TableView, error) {
	if err := t.checkColumn("FindAllNull", col); err != nil {
		return nil, err
	}
	return t.findAllView(func(t *Table) []int {
		var rows []int
		for row, n := 0, t.Size(); row < n; row++ {
			if t.cols[col].IsNull(row) {
				rows = append(rows, row)
			}
		}
		return rows
	}), nil
}

func (t *Table) CountInt(col int, v int64) (int, error) {
	if err := t.checkSearch("CountInt", col, types.Int, types.Bool); err != nil {
		return 0, err
	}
	if t.IsEmpty() {
		return 0, nil
	}
	return t.intColumn(col).Count(v), nil
}

func (t *Table) CountString(col int, v string) (int, error) {
	if err := t.checkSearch("CountString", col, types.String); err != nil {
		return 0, err
	}
	if t.IsEmpty() {
		return 0, nil
	}
	return t.cols[col].(bytesFinder).Count([]byte(v)), nil
}

func (t *Table) CountFloat(col int, v float32) (int, error) {
	if err := t.checkSearch("CountFloat", col, types.Float); err != nil {
		return 0, err
	}
	if t.IsEmpty() {
		return 0, nil
	}
	return t.cols[col].(*column.FloatColumn).Count(v), nil
}

func (t *Table) CountDouble(col int, v float64) (int, error) {
	if err := t.checkSearch("CountDouble", col, types.Double); err != nil {
		return 0, err
	}
	if t.IsEmpty() {
		return 0, nil
	}
	return t.cols[col].(*column.DoubleColumn).Count(v), nil
}

// SumInt adds the non-null values of col.
func (t *Table) SumInt(col int) (int64, error) {
	if err := t.checkSearch("SumInt", col, types.Int); err != nil || t.IsEmpty() {
		return 0, err
	}
	return t.intColumn(col).Sum(0, t.Size(), primitives.NPos), nil
}

func (t *Table) SumFloat(col int) (float64, error) {
	if err := t.checkSearch("SumFloat", col, types.Float); err != nil || t.IsEmpty() {
		return 0, err
	}
	return t.cols[col].(*column.FloatColumn).Sum(0, t.Size(), primitives.NPos), nil
}

func (t *Table) SumDouble(col int) (float64, error) {
	if err := t.checkSearch("SumDouble", col, types.Double); err != nil || t.IsEmpty() {
		return 0, err
	}
	return t.cols[col].(*column.DoubleColumn).Sum(0, t.Size(), primitives.NPos), nil
}

// MinimumInt returns the smallest value and its row; the row is NotFound
// when every value is null.
func (t *Table) MinimumInt(col int) (int64, int, error) {
	if err := t.checkSearch("MinimumInt", col, types.Int); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.intColumn(col).Minimum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MaximumInt(col int) (int64, int, error) {
	if err := t.checkSearch("MaximumInt", col, types.Int); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.intColumn(col).Maximum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MinimumFloat(col int) (float32, int, error) {
	if err := t.checkSearch("MinimumFloat", col, types.Float); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.FloatColumn).Minimum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MaximumFloat(col int) (float32, int, error) {
	if err := t.checkSearch("MaximumFloat", col, types.Float); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.FloatColumn).Maximum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MinimumDouble(col int) (float64, int, error) {
	if err := t.checkSearch("MinimumDouble", col, types.Double); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.DoubleColumn).Minimum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MaximumDouble(col int) (float64, int, error) {
	if err := t.checkSearch("MaximumDouble", col, types.Double); err != nil || t.IsEmpty() {
		return 0, primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.DoubleColumn).Maximum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MinimumTimestamp(col int) (types.TimestampValue, int, error) {
	if err := t.checkSearch("MinimumTimestamp", col, types.Timestamp); err != nil || t.IsEmpty() {
		return types.NullTimestamp(), primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.TimestampColumn).Minimum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

func (t *Table) MaximumTimestamp(col int) (types.TimestampValue, int, error) {
	if err := t.checkSearch("MaximumTimestamp", col, types.Timestamp); err != nil || t.IsEmpty() {
		return types.NullTimestamp(), primitives.NotFound, err
	}
	v, row := t.cols[col].(*column.TimestampColumn).Maximum(0, t.Size(), primitives.NPos)
	return v, row, nil
}

// AverageInt returns the mean of the non-null values, 0 for none.
func (t *Table) AverageInt(col int) (float64, error) {
	if err := t.checkSearch("AverageInt", col, types.Int); err != nil || t.IsEmpty() {
		return 0, err
	}
	v, _ := t.intColumn(col).Average(0, t.Size(), primitives.NPos)
	return v, nil
}

func (t *Table) AverageFloat(col int) (float64, error) {
	if err := t.checkSearch("AverageFloat", col, types.Float); err != nil || t.IsEmpty() {
		return 0, err
	}
	v, _ := t.cols[col].(*column.FloatColumn).Average(0, t.Size(), primitives.NPos)
	return v, nil
}

func (t *Table) AverageDouble(col int) (float64, error) {
	if err := t.checkSearch("AverageDouble", col, types.Double); err != nil || t.IsEmpty() {
		return 0, err
	}
	v, _ := t.cols[col].(*column.DoubleColumn).Average(0, t.Size(), primitives.NPos)
	return v, nil
}

// LowerBoundInt returns the first row not less than v in a column sorted
// ascending, or Size() when there is none.
func (t *Table) LowerBoundInt(col int, v int64) (int, error) {
	if err := t.checkSearch("LowerBoundInt", col, types.Int); err != nil || t.IsEmpty() {
		return 0, err
	}
	if r := t.intColumn(col).FindGTE(v, 0); r != primitives.NotFound {
		return r, nil
	}
	return t.Size(), nil
}

// UpperBoundInt returns the first row greater than v in a column sorted
// ascending, or Size().
func (t *Table) UpperBoundInt(col int, v int64) (int, error) {
	if v == 1<<63-1 {
		return t.Size(), nil
	}
	return t.LowerBoundInt(col, v+1)
}

// GetSortedView returns every row ordered by col.
func (t *Table) GetSortedView(col int, ascending bool) (*TableView, error) {
	if err := t.checkColumn("GetSortedView", col); err != nil {
		return nil, err
	}
	v := t.NewTableView(func(t *Table) []int { return allRows(t.Size()) })
	if err := v.Sort(col, ascending); err != nil {
		return nil, err
	}
	return v, nil
}

// GetDistinctView returns the first row of every distinct value of an
// indexed column, in row order.
func (t *Table) GetDistinctView(col int) (*TableView, error) {
	const op = "GetDistinctView"
	if err := t.checkColumn(op, col); err != nil {
		return nil, err
	}
	if t.searchIndexOf(col) == nil {
		return nil, dberr.From(dberr.ErrNoSearchIndex).WithDetail("column %d", col).In(op, "Table")
	}
	distinct := func(t *Table) []int {
		x := t.searchIndexOf(col)
		if x == nil {
			return nil
		}
		var rows []int
		entries := x.SearchIndex().Entries()
		for i, e := range entries {
			if i == 0 || e.Key.Compare(entries[i-1].Key) != 0 {
				rows = append(rows, e.Row)
			}
		}
		slices.Sort(rows)
		return rows
	}
	return t.findAllView(distinct), nil
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

package query

import (
	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/execution/aggregation"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/column"
	"colstore/pkg/types"
)

// clampRange resolves a negative end to the table size.
func clampRange(t *database.Table, start, end int) (int, int) {
	n := t.Size()
	if end < 0 || end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// Find returns the first matching row at or after begin, or NotFound.
func (q *Query) Find(begin int) (int, error) {
	root, err := q.compile()
	if err != nil {
		return primitives.NotFound, err
	}
	start, end := clampRange(q.table, begin, -1)
	if start >= end {
		return primitives.NotFound, nil
	}
	return root.findFirst(start, end), nil
}

func (q *Query) collect(root *ParentNode, start, end, limit int) []int {
	st := aggregation.NewQueryState[int64](aggregation.FindAll, limit)
	if st.Done() {
		return nil
	}
	start, end = clampRange(q.table, start, end)
	root.aggregate(start, end, st.MatchRow)
	return st.Rows
}

// FindAll returns a view of the matching rows of [start, end), at most
// limit of them. A negative end means the table size, a negative limit no
// limit. The view re-runs the query when synced after a change.
func (q *Query) FindAll(start, end, limit int) (*database.TableView, error) {
	if _, err := q.compile(); err != nil {
		return nil, err
	}
	src := q.Clone()
	return q.table.NewTableView(func(t *database.Table) []int {
		run := src.Rebind(t)
		root, err := run.compile()
		if err != nil {
			logging.Warn("query view could not re-run", "error", err)
			return nil
		}
		return run.collect(root, start, end, limit)
	}), nil
}

// Count returns the number of matching rows.
func (q *Query) Count() (int, error) {
	return q.CountRange(0, -1, -1)
}

func (q *Query) CountRange(start, end, limit int) (int, error) {
	root, err := q.compile()
	if err != nil {
		return 0, err
	}
	st := aggregation.NewQueryState[int64](aggregation.Count, limit)
	if st.Done() {
		return 0, nil
	}
	start, end = clampRange(q.table, start, end)
	root.aggregate(start, end, st.MatchRow)
	return st.MatchCount, nil
}

// Remove deletes every matching row and returns how many it removed.
func (q *Query) Remove() (int, error) {
	root, err := q.compile()
	if err != nil {
		return 0, err
	}
	rows := q.collect(root, 0, -1, -1)
	for i := len(rows) - 1; i >= 0; i-- {
		if err := q.table.Remove(rows[i]); err != nil {
			return len(rows) - 1 - i, err
		}
	}
	logging.Debug("query removed rows", "table", q.table.Name(), "count", len(rows))
	return len(rows), nil
}

func (q *Query) valueColumn(op string, col int, typ types.DataType) (*ParentNode, column.Column, error) {
	root, err := q.compile()
	if err != nil {
		return nil, nil, err
	}
	got, err := q.table.ColumnType(col)
	if err != nil {
		return nil, nil, err
	}
	if got != typ {
		return nil, nil, dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s, not %s", col, got, typ).In(op, "Query")
	}
	c, err := q.table.QueryColumn(col)
	return root, c, err
}

func (q *Query) aggregateInt(op string, agg aggregation.AggregateOp, col int) (*aggregation.QueryState[int64], error) {
	root, c, err := q.valueColumn(op, col, types.Int)
	if err != nil {
		return nil, err
	}
	st := aggregation.NewQueryState[int64](agg, -1)
	ints, ok := c.(*column.IntColumn)
	if !ok {
		return st, nil
	}
	root.aggregate(0, q.table.Size(), func(row int) bool {
		v := ints.GetNull(row)
		if !v.Valid {
			return true
		}
		return st.Match(row, v.Int64)
	})
	return st, nil
}

func aggregateFloating[T column.Floating](q *Query, op string, agg aggregation.AggregateOp, col int, typ types.DataType) (*aggregation.QueryState[float64], error) {
	root, c, err := q.valueColumn(op, col, typ)
	if err != nil {
		return nil, err
	}
	st := aggregation.NewQueryState[float64](agg, -1)
	fc, ok := c.(*column.FloatingColumn[T])
	if !ok {
		return st, nil
	}
	root.aggregate(0, q.table.Size(), func(row int) bool {
		v := fc.Get(row)
		if fc.IsNullValue(v) {
			return true
		}
		return st.Match(row, float64(v))
	})
	return st, nil
}

// SumInt sums the non-null values of col over the matching rows.
func (q *Query) SumInt(col int) (int64, error) {
	st, err := q.aggregateInt("SumInt", aggregation.Sum, col)
	if err != nil {
		return 0, err
	}
	return st.State, nil
}

// MinimumInt returns the smallest non-null value of col over the matching
// rows and its row, or NotFound when there is none.
func (q *Query) MinimumInt(col int) (int64, int, error) {
	st, err := q.aggregateInt("MinimumInt", aggregation.Min, col)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return st.State, st.MinMaxIndex, nil
}

func (q *Query) MaximumInt(col int) (int64, int, error) {
	st, err := q.aggregateInt("MaximumInt", aggregation.Max, col)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return st.State, st.MinMaxIndex, nil
}

// AverageInt returns the mean of the non-null values and how many there
// were. The mean of nothing is 0.
func (q *Query) AverageInt(col int) (float64, int, error) {
	st, err := q.aggregateInt("AverageInt", aggregation.Avg, col)
	if err != nil {
		return 0, 0, err
	}
	return st.Average(), st.MatchCount, nil
}

func (q *Query) SumFloat(col int) (float64, error) {
	st, err := aggregateFloating[float32](q, "SumFloat", aggregation.Sum, col, types.Float)
	if err != nil {
		return 0, err
	}
	return st.State, nil
}

func (q *Query) MinimumFloat(col int) (float32, int, error) {
	st, err := aggregateFloating[float32](q, "MinimumFloat", aggregation.Min, col, types.Float)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return float32(st.State), st.MinMaxIndex, nil
}

func (q *Query) MaximumFloat(col int) (float32, int, error) {
	st, err := aggregateFloating[float32](q, "MaximumFloat", aggregation.Max, col, types.Float)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return float32(st.State), st.MinMaxIndex, nil
}

func (q *Query) AverageFloat(col int) (float64, int, error) {
	st, err := aggregateFloating[float32](q, "AverageFloat", aggregation.Avg, col, types.Float)
	if err != nil {
		return 0, 0, err
	}
	return st.Average(), st.MatchCount, nil
}

func (q *Query) SumDouble(col int) (float64, error) {
	st, err := aggregateFloating[float64](q, "SumDouble", aggregation.Sum, col, types.Double)
	if err != nil {
		return 0, err
	}
	return st.State, nil
}

func (q *Query) MinimumDouble(col int) (float64, int, error) {
	st, err := aggregateFloating[float64](q, "MinimumDouble", aggregation.Min, col, types.Double)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return st.State, st.MinMaxIndex, nil
}

func (q *Query) MaximumDouble(col int) (float64, int, error) {
	st, err := aggregateFloating[float64](q, "MaximumDouble", aggregation.Max, col, types.Double)
	if err != nil {
		return 0, primitives.NotFound, err
	}
	return st.State, st.MinMaxIndex, nil
}

func (q *Query) AverageDouble(col int) (float64, int, error) {
	st, err := aggregateFloating[float64](q, "AverageDouble", aggregation.Avg, col, types.Double)
	if err != nil {
		return 0, 0, err
	}
	return st.Average(), st.MatchCount, nil
}

// MinimumTimestamp returns the earliest non-null timestamp of col over the
// matching rows, with its row.
func (q *Query) MinimumTimestamp(col int) (types.TimestampValue, int, error) {
	return q.extremeTimestamp("MinimumTimestamp", col, -1)
}

func (q *Query) MaximumTimestamp(col int) (types.TimestampValue, int, error) {
	return q.extremeTimestamp("MaximumTimestamp", col, 1)
}

func (q *Query) extremeTimestamp(op string, col, sign int) (types.TimestampValue, int, error) {
	best, at := types.NullTimestamp(), primitives.NotFound
	root, c, err := q.valueColumn(op, col, types.Timestamp)
	if err != nil {
		return best, at, err
	}
	ts, ok := c.(*column.TimestampColumn)
	if !ok {
		return best, at, nil
	}
	root.aggregate(0, q.table.Size(), func(row int) bool {
		v := ts.Get(row)
		if v.IsNull() {
			return true
		}
		if at == primitives.NotFound || v.Compare(best)*sign > 0 {
			best, at = v, row
		}
		return true
	})
	return best, at, nil
}

package query

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

func columnAs[C any](t *database.Table, col int, op string) (C, error) {
	var zero C
	c, err := t.QueryColumn(col)
	if err != nil {
		return zero, err
	}
	if c == nil {
		// degenerate subtables have no rows to scan
		return zero, nil
	}
	typed, ok := c.(C)
	if !ok {
		return zero, dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", col, c.Type()).In(op, "Query")
	}
	return typed, nil
}

// indexedRows returns the rows holding key when col has a search index.
func indexedRows(c column.Column, key index.Key) ([]int, bool) {
	x, ok := c.(column.Indexed)
	if !ok || !x.HasSearchIndex() {
		return nil, false
	}
	rows := x.SearchIndex().FindAll(key)
	slices.Sort(rows)
	return rows, true
}

// firstIndexed returns the first entry of the sorted rows within
// [start, end).
func firstIndexed(rows []int, start, end int) int {
	i, _ := slices.BinarySearch(rows, start)
	if i < len(rows) && rows[i] < end {
		return rows[i]
	}
	return primitives.NotFound
}

// intNode compares an int or bool column with a constant. A null constant
// only works with Equals and NotEqual.
type intNode struct {
	col   int
	pred  types.Predicate
	value int64
	null  bool

	c       *column.IntColumn
	indexed []int
	useIdx  bool
	st      nodeStats
}

func (n *intNode) init(t *database.Table) error {
	c, err := columnAs[*column.IntColumn](t, n.col, "IntCondition")
	if err != nil {
		return err
	}
	n.c = c
	n.st = newStats(1)
	n.useIdx = false
	if c != nil && n.pred == types.Equals {
		key := index.IntKey(n.value)
		if n.null {
			key = index.NullKey()
		}
		if rows, ok := indexedRows(c, key); ok {
			n.indexed, n.useIdx = rows, true
			n.st.dT = 0
		}
	}
	return nil
}

func (n *intNode) matches(v array.NullInt) bool {
	switch {
	case n.null:
		return (n.pred == types.Equals) == !v.Valid
	case !v.Valid:
		return n.pred == types.NotEqual
	}
	return n.pred.Holds(cmp.Compare(v.Int64, n.value))
}

func (n *intNode) findFirstLocal(start, end int) int {
	if n.c == nil {
		return primitives.NotFound
	}
	if n.useIdx {
		return firstIndexed(n.indexed, start, end)
	}
	found := primitives.NotFound
	n.c.ForEach(start, end, func(row int, v array.NullInt) bool {
		if n.matches(v) {
			found = row
			return false
		}
		return true
	})
	return found
}

func (n *intNode) stats() *nodeStats { return &n.st }

func (n *intNode) clone() node {
	return &intNode{col: n.col, pred: n.pred, value: n.value, null: n.null}
}

func (n *intNode) describe(s schema) string {
	v := strconv.FormatInt(n.value, 10)
	if n.null {
		v = "NULL"
	} else if isBool(s, n.col) {
		v = strconv.FormatBool(n.value != 0)
	}
	return fmt.Sprintf("%s %s %s", columnName(s, n.col), n.pred, v)
}

// floatNode compares a float or double column with a constant. Null cells
// only satisfy NotEqual.
type floatNode[T column.Floating] struct {
	col   int
	pred  types.Predicate
	value T

	c  *column.FloatingColumn[T]
	st nodeStats
}

func (n *floatNode[T]) init(t *database.Table) error {
	c, err := columnAs[*column.FloatingColumn[T]](t, n.col, "FloatCondition")
	if err != nil {
		return err
	}
	n.c = c
	n.st = newStats(1)
	return nil
}

func (n *floatNode[T]) findFirstLocal(start, end int) int {
	if n.c == nil {
		return primitives.NotFound
	}
	found := primitives.NotFound
	n.c.ForEach(start, end, func(row int, v T) bool {
		var ok bool
		if n.c.IsNullValue(v) {
			ok = n.pred == types.NotEqual
		} else {
			ok = n.pred.Holds(cmp.Compare(v, n.value))
		}
		if ok {
			found = row
			return false
		}
		return true
	})
	return found
}

func (n *floatNode[T]) stats() *nodeStats { return &n.st }

func (n *floatNode[T]) clone() node {
	return &floatNode[T]{col: n.col, pred: n.pred, value: n.value}
}

func (n *floatNode[T]) describe(s schema) string {
	return fmt.Sprintf("%s %s %v", columnName(s, n.col), n.pred, n.value)
}

// timestampNode compares a timestamp column with a constant. A null
// constant only works with Equals and NotEqual.
type timestampNode struct {
	col   int
	pred  types.Predicate
	value types.TimestampValue

	c       *column.TimestampColumn
	indexed []int
	useIdx  bool
	st      nodeStats
}

func (n *timestampNode) init(t *database.Table) error {
	c, err := columnAs[*column.TimestampColumn](t, n.col, "TimestampCondition")
	if err != nil {
		return err
	}
	n.c = c
	n.st = newStats(2)
	n.useIdx = false
	if c != nil && n.pred == types.Equals {
		key := index.TimestampKey(n.value)
		if n.value.IsNull() {
			key = index.NullKey()
		}
		if rows, ok := indexedRows(c, key); ok {
			n.indexed, n.useIdx = rows, true
			n.st.dT = 0
		}
	}
	return nil
}

func (n *timestampNode) matches(v types.TimestampValue) bool {
	switch {
	case n.value.IsNull():
		return (n.pred == types.Equals) == v.IsNull()
	case v.IsNull():
		return n.pred == types.NotEqual
	}
	return n.pred.Holds(v.Compare(n.value))
}

func (n *timestampNode) findFirstLocal(start, end int) int {
	if n.c == nil {
		return primitives.NotFound
	}
	if n.useIdx {
		return firstIndexed(n.indexed, start, end)
	}
	for r := start; r < end; r++ {
		if n.matches(n.c.Get(r)) {
			return r
		}
	}
	return primitives.NotFound
}

func (n *timestampNode) stats() *nodeStats { return &n.st }

func (n *timestampNode) clone() node {
	return &timestampNode{col: n.col, pred: n.pred, value: n.value}
}

func (n *timestampNode) describe(s schema) string {
	return fmt.Sprintf("%s %s %s", columnName(s, n.col), n.pred, n.value)
}

// nullNode matches null cells, or non-null cells when negated. Link
// columns count a missing link as null.
type nullNode struct {
	col    int
	negate bool

	c  column.Column
	st nodeStats
}

func (n *nullNode) init(t *database.Table) error {
	c, err := t.QueryColumn(n.col)
	if err != nil {
		return err
	}
	if c != nil && !c.IsNullable() {
		return dberr.From(dberr.ErrColumnNotNullable).WithDetail("column %d", n.col).In("IsNull", "Query")
	}
	n.c = c
	n.st = newStats(1)
	return nil
}

func (n *nullNode) findFirstLocal(start, end int) int {
	if n.c == nil {
		return primitives.NotFound
	}
	for r := start; r < end; r++ {
		if n.c.IsNull(r) != n.negate {
			return r
		}
	}
	return primitives.NotFound
}

func (n *nullNode) stats() *nodeStats { return &n.st }

func (n *nullNode) clone() node { return &nullNode{col: n.col, negate: n.negate} }

func (n *nullNode) describe(s schema) string {
	if n.negate {
		return columnName(s, n.col) + " != NULL"
	}
	return columnName(s, n.col) + " == NULL"
}

// twoColumnsNode compares two columns of the same type row by row. Nulls
// are equal to each other and unordered against everything.
type twoColumnsNode struct {
	col1, col2 int
	pred       types.Predicate

	c1, c2 column.Column
	st     nodeStats
}

func (n *twoColumnsNode) init(t *database.Table) error {
	c1, err := t.QueryColumn(n.col1)
	if err != nil {
		return err
	}
	c2, err := t.QueryColumn(n.col2)
	if err != nil {
		return err
	}
	n.c1, n.c2 = c1, c2
	n.st = newStats(4)
	return nil
}

func (n *twoColumnsNode) findFirstLocal(start, end int) int {
	if n.c1 == nil {
		return primitives.NotFound
	}
	for r := start; r < end; r++ {
		a, b := n.c1.Value(r), n.c2.Value(r)
		var ok bool
		switch {
		case a.IsNull() || b.IsNull():
			both := a.IsNull() && b.IsNull()
			ok = (n.pred == types.Equals && both) || (n.pred == types.NotEqual && !both)
		default:
			ok = n.pred.Holds(compareMixed(a, b))
		}
		if ok {
			return r
		}
	}
	return primitives.NotFound
}

func (n *twoColumnsNode) stats() *nodeStats { return &n.st }

func (n *twoColumnsNode) clone() node {
	return &twoColumnsNode{col1: n.col1, col2: n.col2, pred: n.pred}
}

func (n *twoColumnsNode) describe(s schema) string {
	return fmt.Sprintf("%s %s %s", columnName(s, n.col1), n.pred, columnName(s, n.col2))
}

// compareMixed orders two non-null values of the same comparable type.
func compareMixed(a, b types.Mixed) int {
	switch a.Type() {
	case types.Int, types.Bool:
		return cmp.Compare(a.Int(), b.Int())
	case types.Float, types.Double:
		return cmp.Compare(a.Double(), b.Double())
	case types.Timestamp:
		return a.Timestamp().Compare(b.Timestamp())
	default:
		return slices.Compare(a.Bytes(), b.Bytes())
	}
}

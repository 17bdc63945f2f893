package column

import (
	"colstore/pkg/execution/aggregation"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// IntColumn stores integers and bools. Nullable columns use nullable leaves;
// both forms expose values as array.NullInt.
type IntColumn struct {
	treeColumn[array.NullInt]
	typ primitives.ColumnType
}

var intTraits = traits[array.NullInt]{
	null:   array.NullInt{},
	zero:   array.Int(0),
	isNull: func(v array.NullInt) bool { return !v.Valid },
	equal:  func(a, b array.NullInt) bool { return a == b },
	key: func(v array.NullInt) index.Key {
		if !v.Valid {
			return index.NullKey()
		}
		return index.IntKey(v.Int64)
	},
}

// NewIntColumn returns an unattached accessor. typ is ColTypeInt or
// ColTypeBool; link columns use ColTypeLink.
func NewIntColumn(a alloc.Allocator, typ primitives.ColumnType, nullable bool) *IntColumn {
	leaf := bptree.NewNotNullIntLeaf
	if nullable {
		leaf = bptree.NewIntNullLeaf
	}
	return &IntColumn{
		treeColumn: newTreeColumn(a, leaf, nullable, intTraits),
		typ:        typ,
	}
}

// CreateIntColumn allocates a column of size default cells.
func CreateIntColumn(a alloc.Allocator, typ primitives.ColumnType, nullable bool, size int) *IntColumn {
	c := NewIntColumn(a, typ, nullable)
	c.create(size)
	return c
}

// Attach binds the accessor to an existing column root.
func (c *IntColumn) Attach(ref primitives.Ref) {
	c.attach(ref)
}

func (c *IntColumn) Type() primitives.ColumnType { return c.typ }

// Get returns the value of row; a null cell reads as 0.
func (c *IntColumn) Get(row int) int64 {
	return c.get(row).Int64
}

// GetNull returns the value of row together with its null state.
func (c *IntColumn) GetNull(row int) array.NullInt {
	return c.get(row)
}

func (c *IntColumn) Value(row int) types.Mixed {
	v := c.get(row)
	switch {
	case !v.Valid:
		return types.NullMixed()
	case c.typ == primitives.ColTypeBool:
		return types.MixedBool(v.Int64 != 0)
	default:
		return types.MixedInt(v.Int64)
	}
}

func (c *IntColumn) Set(row int, v int64) {
	c.set(row, array.Int(v))
}

// SetNullable writes v, which may be null.
func (c *IntColumn) SetNullable(row int, v array.NullInt) error {
	if !v.Valid && !c.nullable {
		return errNotNullable()
	}
	c.set(row, v)
	return nil
}

// Adjust adds diff to the value of row.
func (c *IntColumn) Adjust(row int, diff int64) {
	v := c.get(row)
	if v.Valid {
		c.set(row, array.Int(v.Int64+diff))
	}
}

// Insert adds n copies of v at row; row == NPos appends.
func (c *IntColumn) Insert(row int, v int64, n int) {
	c.insert(row, array.Int(v), n)
}

// InsertNullable is Insert for a value that may be null.
func (c *IntColumn) InsertNullable(row int, v array.NullInt, n int) {
	c.insert(row, v, n)
}

// Add appends v.
func (c *IntColumn) Add(v int64) {
	c.insert(primitives.NPos, array.Int(v), 1)
}

func (c *IntColumn) FindFirst(v int64, begin, end int) int {
	return c.findFirst(array.Int(v), begin, end)
}

// FindFirstNull returns the first null row in [begin, end).
func (c *IntColumn) FindFirstNull(begin, end int) int {
	return c.findFirst(array.NullInt{}, begin, end)
}

func (c *IntColumn) FindAll(v int64, begin, end int) []int {
	return c.findAll(array.Int(v), begin, end)
}

func (c *IntColumn) Count(v int64) int {
	return c.count(array.Int(v))
}

// FindGTE returns the first row at or after begin whose value is >= v,
// assuming the column is sorted ascending with nulls first. It returns
// NotFound when every value is smaller.
func (c *IntColumn) FindGTE(v int64, begin int) int {
	r := c.lowerBound(array.Int(v), begin, lessNullInt)
	if r == c.Size() {
		return primitives.NotFound
	}
	return r
}

func lessNullInt(a, b array.NullInt) bool {
	if !a.Valid || !b.Valid {
		return !a.Valid && b.Valid
	}
	return a.Int64 < b.Int64
}

// CompareValues orders nulls first.
func (c *IntColumn) CompareValues(a, b int) int {
	va, vb := c.get(a), c.get(b)
	switch {
	case !va.Valid || !vb.Valid:
		return types.CompareOrdered(boolInt(va.Valid), boolInt(vb.Valid))
	default:
		return types.CompareOrdered(va.Int64, vb.Int64)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intValue(v array.NullInt) (int64, bool) {
	return v.Int64, v.Valid
}

// Sum adds the non-null values of [begin, end), stopping after limit values.
func (c *IntColumn) Sum(begin, end, limit int) int64 {
	st := aggregation.NewQueryState[int64](aggregation.Sum, limit)
	aggregate(&c.treeColumn, st, begin, end, intValue)
	return st.State
}

// Minimum returns the smallest non-null value and its row, or NotFound.
func (c *IntColumn) Minimum(begin, end, limit int) (int64, int) {
	st := aggregation.NewQueryState[int64](aggregation.Min, limit)
	aggregate(&c.treeColumn, st, begin, end, intValue)
	return st.State, st.MinMaxIndex
}

// Maximum returns the largest non-null value and its row, or NotFound.
func (c *IntColumn) Maximum(begin, end, limit int) (int64, int) {
	st := aggregation.NewQueryState[int64](aggregation.Max, limit)
	aggregate(&c.treeColumn, st, begin, end, intValue)
	return st.State, st.MinMaxIndex
}

// Average returns the mean of the non-null values and how many there were.
func (c *IntColumn) Average(begin, end, limit int) (float64, int) {
	st := aggregation.NewQueryState[int64](aggregation.Avg, limit)
	aggregate(&c.treeColumn, st, begin, end, intValue)
	return st.Average(), st.MatchCount
}

// CountNotNull counts the non-null values of [begin, end).
func (c *IntColumn) CountNotNull(begin, end, limit int) int {
	st := aggregation.NewQueryState[int64](aggregation.Count, limit)
	aggregate(&c.treeColumn, st, begin, end, intValue)
	return st.MatchCount
}

package column

import (
	"math"

	"colstore/pkg/execution/aggregation"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/types"
)

// Floating is float32 or float64.
type Floating interface {
	~float32 | ~float64
}

// FloatingColumn stores floats or doubles. Null is a NaN with a reserved
// payload. Floating point columns cannot be indexed.
type FloatingColumn[T Floating] struct {
	treeColumn[T]
	typ primitives.ColumnType
}

// FloatColumn stores float32 values.
type FloatColumn = FloatingColumn[float32]

// DoubleColumn stores float64 values.
type DoubleColumn = FloatingColumn[float64]

func floatTraits[T Floating](null T, isNull func(T) bool) traits[T] {
	return traits[T]{
		null:   null,
		isNull: isNull,
		equal: func(a, b T) bool {
			if isNull(a) || isNull(b) {
				return isNull(a) && isNull(b)
			}
			return a == b
		},
	}
}

// NewFloatColumn returns an unattached float accessor.
func NewFloatColumn(a alloc.Allocator, nullable bool) *FloatColumn {
	return &FloatColumn{
		treeColumn: newTreeColumn(a, bptree.NewFloatLeaf, nullable, floatTraits(bptree.FloatNull(), bptree.IsFloatNull)),
		typ:        primitives.ColTypeFloat,
	}
}

// NewDoubleColumn returns an unattached double accessor.
func NewDoubleColumn(a alloc.Allocator, nullable bool) *DoubleColumn {
	return &DoubleColumn{
		treeColumn: newTreeColumn(a, bptree.NewDoubleLeaf, nullable, floatTraits(bptree.DoubleNull(), bptree.IsDoubleNull)),
		typ:        primitives.ColTypeDouble,
	}
}

// CreateFloatColumn allocates a float column of size default cells.
func CreateFloatColumn(a alloc.Allocator, nullable bool, size int) *FloatColumn {
	c := NewFloatColumn(a, nullable)
	c.create(size)
	return c
}

// CreateDoubleColumn allocates a double column of size default cells.
func CreateDoubleColumn(a alloc.Allocator, nullable bool, size int) *DoubleColumn {
	c := NewDoubleColumn(a, nullable)
	c.create(size)
	return c
}

func (c *FloatingColumn[T]) Attach(ref primitives.Ref) { c.attach(ref) }

func (c *FloatingColumn[T]) Type() primitives.ColumnType { return c.typ }

func (c *FloatingColumn[T]) Get(row int) T { return c.get(row) }

func (c *FloatingColumn[T]) Value(row int) types.Mixed {
	if c.IsNull(row) {
		return types.NullMixed()
	}
	if c.typ == primitives.ColTypeFloat {
		return types.MixedFloat(float32(c.get(row)))
	}
	return types.MixedDouble(float64(c.get(row)))
}

func (c *FloatingColumn[T]) Set(row int, v T) { c.set(row, v) }

// Insert adds n copies of v at row; row == NPos appends.
func (c *FloatingColumn[T]) Insert(row int, v T, n int) { c.insert(row, v, n) }

func (c *FloatingColumn[T]) Add(v T) { c.insert(primitives.NPos, v, 1) }

func (c *FloatingColumn[T]) FindFirst(v T, begin, end int) int {
	return c.findFirst(v, begin, end)
}

func (c *FloatingColumn[T]) FindAll(v T, begin, end int) []int {
	return c.findAll(v, begin, end)
}

func (c *FloatingColumn[T]) Count(v T) int { return c.count(v) }

// FindGTE returns the first row at or after begin holding a value >= v in a
// column sorted ascending with nulls first, or NotFound.
func (c *FloatingColumn[T]) FindGTE(v T, begin int) int {
	r := c.lowerBound(v, begin, c.less)
	if r == c.Size() {
		return primitives.NotFound
	}
	return r
}

func (c *FloatingColumn[T]) less(a, b T) bool {
	na, nb := c.IsNullValue(a), c.IsNullValue(b)
	if na || nb {
		return na && !nb
	}
	return a < b
}

// IsNullValue reports whether v is the null marker of a nullable column.
func (c *FloatingColumn[T]) IsNullValue(v T) bool {
	return c.nullable && c.tr.isNull(v)
}

// NullValue returns the null marker.
func (c *FloatingColumn[T]) NullValue() T { return c.tr.null }

// CompareValues orders nulls first and NaN after every number.
func (c *FloatingColumn[T]) CompareValues(a, b int) int {
	va, vb := c.get(a), c.get(b)
	na, nb := c.IsNullValue(va), c.IsNullValue(vb)
	if na || nb {
		return types.CompareOrdered(boolInt(!na), boolInt(!nb))
	}
	xa, xb := float64(va), float64(vb)
	if math.IsNaN(xa) || math.IsNaN(xb) {
		return types.CompareOrdered(boolInt(math.IsNaN(xa)), boolInt(math.IsNaN(xb)))
	}
	return types.CompareOrdered(xa, xb)
}

func (c *FloatingColumn[T]) value(v T) (float64, bool) {
	if c.IsNullValue(v) {
		return 0, false
	}
	return float64(v), true
}

// Sum adds the non-null values of [begin, end) in double precision.
func (c *FloatingColumn[T]) Sum(begin, end, limit int) float64 {
	st := aggregation.NewQueryState[float64](aggregation.Sum, limit)
	aggregate(&c.treeColumn, st, begin, end, c.value)
	return st.State
}

// Minimum returns the smallest non-null value and its row, or NotFound.
func (c *FloatingColumn[T]) Minimum(begin, end, limit int) (T, int) {
	st := aggregation.NewQueryState[float64](aggregation.Min, limit)
	aggregate(&c.treeColumn, st, begin, end, c.value)
	return T(st.State), st.MinMaxIndex
}

// Maximum returns the largest non-null value and its row, or NotFound.
func (c *FloatingColumn[T]) Maximum(begin, end, limit int) (T, int) {
	st := aggregation.NewQueryState[float64](aggregation.Max, limit)
	aggregate(&c.treeColumn, st, begin, end, c.value)
	return T(st.State), st.MinMaxIndex
}

// Average returns the mean of the non-null values and how many there were.
func (c *FloatingColumn[T]) Average(begin, end, limit int) (float64, int) {
	st := aggregation.NewQueryState[float64](aggregation.Avg, limit)
	aggregate(&c.treeColumn, st, begin, end, c.value)
	return st.Average(), st.MatchCount
}

// CountNotNull counts the non-null values of [begin, end).
func (c *FloatingColumn[T]) CountNotNull(begin, end, limit int) int {
	st := aggregation.NewQueryState[float64](aggregation.Count, limit)
	aggregate(&c.treeColumn, st, begin, end, c.value)
	return st.MatchCount
}

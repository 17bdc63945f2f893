package column

import (
	"fmt"

	"colstore/pkg/execution/aggregation"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// TimestampColumn stores timestamps as a has-refs node [seconds, nanos]. The
// seconds tree carries the null state.
type TimestampColumn struct {
	alloc    alloc.Allocator
	top      *array.Array
	seconds  *bptree.Tree[array.NullInt]
	nanos    *bptree.Tree[array.NullInt]
	nullable bool

	parent array.Parent
	ndx    int
	index  *index.SearchIndex
}

// NewTimestampColumn returns an unattached accessor.
func NewTimestampColumn(a alloc.Allocator, nullable bool) *TimestampColumn {
	leaf := bptree.NewNotNullIntLeaf
	if nullable {
		leaf = bptree.NewIntNullLeaf
	}
	c := &TimestampColumn{
		alloc:    a,
		top:      array.New(a),
		seconds:  bptree.New(a, leaf),
		nanos:    bptree.New(a, bptree.NewNotNullIntLeaf),
		nullable: nullable,
	}
	c.seconds.SetParent(c.top, 0)
	c.nanos.SetParent(c.top, 1)
	return c
}

// CreateTimestampColumn allocates a column of size default cells.
func CreateTimestampColumn(a alloc.Allocator, nullable bool, size int) *TimestampColumn {
	c := NewTimestampColumn(a, nullable)
	c.top.Create(array.TypeHasRefs, false, 2, 0)
	c.top.Set(0, int64(c.seconds.Create()))
	c.top.Set(1, int64(c.nanos.Create()))
	def := types.NewTimestamp(0, 0)
	if nullable {
		def = types.NullTimestamp()
	}
	for i := 0; i < size; i++ {
		c.insertRaw(i, def)
	}
	return c
}

func (c *TimestampColumn) Attach(ref primitives.Ref) {
	c.top.InitFromRef(ref)
	c.seconds.InitFromParent()
	c.nanos.InitFromParent()
}

func (c *TimestampColumn) Type() primitives.ColumnType { return primitives.ColTypeTimestamp }
func (c *TimestampColumn) Ref() primitives.Ref         { return c.top.Ref() }
func (c *TimestampColumn) NdxInParent() int            { return c.ndx }
func (c *TimestampColumn) Size() int                   { return c.seconds.Size() }
func (c *TimestampColumn) IsNullable() bool            { return c.nullable }

func (c *TimestampColumn) SetParent(p array.Parent, ndx int) {
	c.parent = p
	c.ndx = ndx
	c.top.SetParent(p, ndx)
	if c.index != nil {
		c.index.SetParent(p, ndx+1)
	}
}

func (c *TimestampColumn) UpdateFromParent() {
	c.top.UpdateFromParent()
	c.seconds.InitFromParent()
	c.nanos.InitFromParent()
	if c.index != nil {
		c.index.UpdateFromParent()
	}
}

func (c *TimestampColumn) Get(row int) types.TimestampValue {
	s := c.seconds.Get(row)
	if !s.Valid {
		return types.NullTimestamp()
	}
	return types.NewTimestamp(s.Int64, int32(c.nanos.Get(row).Int64))
}

func (c *TimestampColumn) IsNull(row int) bool {
	return !c.seconds.Get(row).Valid
}

func (c *TimestampColumn) Value(row int) types.Mixed {
	ts := c.Get(row)
	if ts.IsNull() {
		return types.NullMixed()
	}
	return types.MixedTimestamp(ts)
}

func (c *TimestampColumn) KeyAt(row int) index.Key {
	return index.TimestampKey(c.Get(row))
}

func split(ts types.TimestampValue) (array.NullInt, array.NullInt) {
	if ts.IsNull() {
		return array.NullInt{}, array.Int(0)
	}
	return array.Int(ts.Seconds), array.Int(int64(ts.Nanos))
}

// Set writes ts; a null timestamp fails on non-nullable columns.
func (c *TimestampColumn) Set(row int, ts types.TimestampValue) error {
	if ts.IsNull() && !c.nullable {
		return errNotNullable()
	}
	if c.index != nil {
		c.index.Set(row, c.KeyAt(row), index.TimestampKey(ts))
	}
	s, n := split(ts)
	c.seconds.Set(row, s)
	c.nanos.Set(row, n)
	return nil
}

func (c *TimestampColumn) SetNull(row int) error {
	return c.Set(row, types.NullTimestamp())
}

func (c *TimestampColumn) insertRaw(row int, ts types.TimestampValue) {
	s, n := split(ts)
	c.seconds.Insert(row, s)
	c.nanos.Insert(row, n)
}

// Insert adds n copies of ts at row; row == NPos appends.
func (c *TimestampColumn) Insert(row int, ts types.TimestampValue, n int) error {
	if ts.IsNull() && !c.nullable {
		return errNotNullable()
	}
	priorSize := c.Size()
	if row == primitives.NPos {
		row = priorSize
	}
	for i := 0; i < n; i++ {
		c.insertRaw(row+i, ts)
	}
	if c.index != nil {
		c.index.Insert(row, index.TimestampKey(ts), n, row == priorSize)
	}
	return nil
}

// Add appends ts.
func (c *TimestampColumn) Add(ts types.TimestampValue) error {
	return c.Insert(primitives.NPos, ts, 1)
}

func (c *TimestampColumn) InsertRows(row, n, priorSize int) {
	def := types.NewTimestamp(0, 0)
	if c.nullable {
		def = types.NullTimestamp()
	}
	if row == priorSize {
		row = primitives.NPos
	}
	_ = c.Insert(row, def, n)
}

func (c *TimestampColumn) Erase(row int, isLast bool) {
	if c.index != nil {
		c.index.Erase(row, c.KeyAt(row), isLast)
	}
	c.seconds.Erase(row)
	c.nanos.Erase(row)
}

func (c *TimestampColumn) MoveLastOver(row, last int) {
	if c.index != nil {
		c.index.MoveLastOver(row, last, c.KeyAt(row), c.KeyAt(last))
	}
	if row != last {
		c.seconds.Set(row, c.seconds.Get(last))
		c.nanos.Set(row, c.nanos.Get(last))
	}
	c.seconds.Erase(last)
	c.nanos.Erase(last)
}

func (c *TimestampColumn) SwapRows(a, b int) {
	ta, tb := c.Get(a), c.Get(b)
	if c.index != nil {
		c.index.Swap(a, b, index.TimestampKey(ta), index.TimestampKey(tb))
	}
	sa, na := split(ta)
	sb, nb := split(tb)
	c.seconds.Set(a, sb)
	c.nanos.Set(a, nb)
	c.seconds.Set(b, sa)
	c.nanos.Set(b, na)
}

func (c *TimestampColumn) Clear() {
	c.seconds.Clear()
	c.nanos.Clear()
	if c.index != nil {
		c.index.Clear()
	}
}

func (c *TimestampColumn) Destroy() {
	c.top.DestroyDeep()
	if c.index != nil {
		c.index.Destroy()
		c.index = nil
	}
}

func (c *TimestampColumn) HasSearchIndex() bool            { return c.index != nil }
func (c *TimestampColumn) SearchIndex() *index.SearchIndex { return c.index }

func (c *TimestampColumn) CreateSearchIndex() *index.SearchIndex {
	x := index.Create(c.alloc)
	for row := 0; row < c.Size(); row++ {
		x.Insert(row, c.KeyAt(row), 1, true)
	}
	x.SetParent(c.parent, c.ndx+1)
	c.index = x
	return x
}

func (c *TimestampColumn) AttachSearchIndex() {
	x := index.New(c.alloc)
	x.SetParent(c.parent, c.ndx+1)
	x.UpdateFromParent()
	c.index = x
}

func (c *TimestampColumn) DestroySearchIndex() {
	if c.index != nil {
		c.index.Destroy()
		c.index = nil
	}
}

func (c *TimestampColumn) FindFirst(ts types.TimestampValue, begin, end int) int {
	if end == primitives.NPos {
		end = c.Size()
	}
	if c.index != nil && begin == 0 && end == c.Size() {
		return c.index.FindFirst(index.TimestampKey(ts))
	}
	for row := begin; row < end; row++ {
		if c.Get(row).Equal(ts) {
			return row
		}
	}
	return primitives.NotFound
}

func (c *TimestampColumn) FindAll(ts types.TimestampValue, begin, end int) []int {
	if end == primitives.NPos {
		end = c.Size()
	}
	if c.index != nil && begin == 0 && end == c.Size() {
		return c.index.FindAll(index.TimestampKey(ts))
	}
	var rows []int
	for row := begin; row < end; row++ {
		if c.Get(row).Equal(ts) {
			rows = append(rows, row)
		}
	}
	return rows
}

func (c *TimestampColumn) Count(ts types.TimestampValue) int {
	if c.index != nil {
		return c.index.Count(index.TimestampKey(ts))
	}
	return len(c.FindAll(ts, 0, primitives.NPos))
}

// FindGTE returns the first row at or after begin holding a timestamp >= ts
// in a column sorted ascending with nulls first, or NotFound.
func (c *TimestampColumn) FindGTE(ts types.TimestampValue, begin int) int {
	lo, hi := begin, c.Size()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if c.Get(mid).Compare(ts) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == c.Size() {
		return primitives.NotFound
	}
	return lo
}

// CompareValues orders nulls first.
func (c *TimestampColumn) CompareValues(a, b int) int {
	return c.Get(a).Compare(c.Get(b))
}

// Minimum returns the earliest non-null timestamp and its row, or NotFound.
func (c *TimestampColumn) Minimum(begin, end, limit int) (types.TimestampValue, int) {
	return c.extreme(begin, end, limit, -1)
}

// Maximum returns the latest non-null timestamp and its row, or NotFound.
func (c *TimestampColumn) Maximum(begin, end, limit int) (types.TimestampValue, int) {
	return c.extreme(begin, end, limit, 1)
}

func (c *TimestampColumn) extreme(begin, end, limit, sign int) (types.TimestampValue, int) {
	if end == primitives.NPos {
		end = c.Size()
	}
	st := aggregation.NewQueryState[int64](aggregation.Count, limit)
	best, bestRow := types.NullTimestamp(), primitives.NotFound
	for row := begin; row < end; row++ {
		ts := c.Get(row)
		if ts.IsNull() {
			continue
		}
		if bestRow == primitives.NotFound || ts.Compare(best)*sign > 0 {
			best, bestRow = ts, row
		}
		if !st.MatchRow(row) {
			break
		}
	}
	return best, bestRow
}

// CountNotNull counts the non-null timestamps of [begin, end).
func (c *TimestampColumn) CountNotNull(begin, end, limit int) int {
	if end == primitives.NPos {
		end = c.Size()
	}
	st := aggregation.NewQueryState[int64](aggregation.Count, limit)
	for row := begin; row < end && !st.Done(); row++ {
		if !c.IsNull(row) {
			st.MatchRow(row)
		}
	}
	return st.MatchCount
}

func (c *TimestampColumn) Verify() error {
	if c.seconds.Size() != c.nanos.Size() {
		return fmt.Errorf("timestamp column: %d seconds but %d nanos", c.seconds.Size(), c.nanos.Size())
	}
	if err := c.seconds.Verify(); err != nil {
		return err
	}
	if c.index != nil {
		if err := c.index.Verify(); err != nil {
			return err
		}
		if c.index.Size() != c.Size() {
			return fmt.Errorf("timestamp column: index holds %d entries for %d rows", c.index.Size(), c.Size())
		}
	}
	return nil
}

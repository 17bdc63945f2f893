package column

import (
	"fmt"

	"colstore/pkg/execution/aggregation"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/storage/index"
)

// traits describes how a value type behaves inside a column.
type traits[T any] struct {
	null   T
	zero   T
	isNull func(T) bool
	equal  func(a, b T) bool
	// key is nil for types that cannot be indexed.
	key func(T) index.Key
}

// treeColumn implements the row operations common to all single-tree
// columns. The search index is always updated before the tree on removal
// and after it on insertion.
type treeColumn[T any] struct {
	alloc    alloc.Allocator
	tree     *bptree.Tree[T]
	leaf     bptree.LeafFactory[T]
	nullable bool
	tr       traits[T]

	parent array.Parent
	ndx    int
	index  *index.SearchIndex
}

func newTreeColumn[T any](a alloc.Allocator, leaf bptree.LeafFactory[T], nullable bool, tr traits[T]) treeColumn[T] {
	return treeColumn[T]{
		alloc:    a,
		tree:     bptree.New(a, leaf),
		leaf:     leaf,
		nullable: nullable,
		tr:       tr,
	}
}

// create allocates an empty tree of size default cells.
func (c *treeColumn[T]) create(size int) primitives.Ref {
	c.tree.Create()
	v := c.defaultValue()
	for i := 0; i < size; i++ {
		c.tree.Add(v)
	}
	return c.tree.Ref()
}

func (c *treeColumn[T]) defaultValue() T {
	if c.nullable {
		return c.tr.null
	}
	return c.tr.zero
}

func (c *treeColumn[T]) Ref() primitives.Ref { return c.tree.Ref() }
func (c *treeColumn[T]) NdxInParent() int    { return c.ndx }
func (c *treeColumn[T]) Size() int           { return c.tree.Size() }
func (c *treeColumn[T]) IsNullable() bool    { return c.nullable }

func (c *treeColumn[T]) SetParent(p array.Parent, ndx int) {
	c.parent = p
	c.ndx = ndx
	c.tree.SetParent(p, ndx)
	if c.index != nil {
		c.index.SetParent(p, ndx+1)
	}
}

func (c *treeColumn[T]) attach(ref primitives.Ref) {
	c.tree.InitFromRef(ref)
}

func (c *treeColumn[T]) UpdateFromParent() {
	c.tree.InitFromParent()
	if c.index != nil {
		c.index.UpdateFromParent()
	}
}

func (c *treeColumn[T]) get(row int) T {
	return c.tree.Get(row)
}

func (c *treeColumn[T]) IsNull(row int) bool {
	return c.nullable && c.tr.isNull(c.tree.Get(row))
}

func (c *treeColumn[T]) set(row int, v T) {
	if c.index != nil {
		c.index.Set(row, c.tr.key(c.tree.Get(row)), c.tr.key(v))
	}
	c.tree.Set(row, v)
}

func (c *treeColumn[T]) SetNull(row int) error {
	if !c.nullable {
		return errNotNullable()
	}
	c.set(row, c.tr.null)
	return nil
}

// insert adds n copies of v at row; row == NPos appends.
func (c *treeColumn[T]) insert(row int, v T, n int) {
	priorSize := c.tree.Size()
	if row == primitives.NPos {
		row = priorSize
	}
	isAppend := row == priorSize
	for i := 0; i < n; i++ {
		c.tree.Insert(row+i, v)
	}
	if c.index != nil {
		c.index.Insert(row, c.tr.key(v), n, isAppend)
	}
}

func (c *treeColumn[T]) InsertRows(row, n, priorSize int) {
	if row == priorSize {
		row = primitives.NPos
	}
	c.insert(row, c.defaultValue(), n)
}

func (c *treeColumn[T]) Erase(row int, isLast bool) {
	if c.index != nil {
		c.index.Erase(row, c.tr.key(c.tree.Get(row)), isLast)
	}
	c.tree.Erase(row)
}

func (c *treeColumn[T]) MoveLastOver(row, last int) {
	if c.index != nil {
		c.index.MoveLastOver(row, last, c.tr.key(c.tree.Get(row)), c.tr.key(c.tree.Get(last)))
	}
	if row != last {
		c.tree.Set(row, c.tree.Get(last))
	}
	c.tree.Erase(last)
}

func (c *treeColumn[T]) SwapRows(a, b int) {
	va, vb := c.tree.Get(a), c.tree.Get(b)
	if c.index != nil {
		c.index.Swap(a, b, c.tr.key(va), c.tr.key(vb))
	}
	// both values may be views into column memory
	va = c.clone(va)
	c.tree.Set(a, vb)
	c.tree.Set(b, va)
}

func (c *treeColumn[T]) clone(v T) T {
	if b, ok := any(v).([]byte); ok && b != nil {
		return any(append([]byte{}, b...)).(T)
	}
	return v
}

func (c *treeColumn[T]) Clear() {
	c.tree.Clear()
	if c.index != nil {
		c.index.Clear()
	}
}

func (c *treeColumn[T]) Destroy() {
	c.tree.Destroy()
	if c.index != nil {
		c.index.Destroy()
		c.index = nil
	}
}

func (c *treeColumn[T]) HasSearchIndex() bool {
	return c.index != nil
}

func (c *treeColumn[T]) SearchIndex() *index.SearchIndex {
	return c.index
}

func (c *treeColumn[T]) KeyAt(row int) index.Key {
	return c.tr.key(c.tree.Get(row))
}

// CreateSearchIndex builds an index by replaying every row through its
// insert. Columns whose values cannot be indexed return nil.
func (c *treeColumn[T]) CreateSearchIndex() *index.SearchIndex {
	if c.tr.key == nil {
		return nil
	}
	x := index.Create(c.alloc)
	c.populate(x)
	x.SetParent(c.parent, c.ndx+1)
	c.index = x
	return x
}

func (c *treeColumn[T]) populate(x *index.SearchIndex) {
	c.tree.ForEach(0, c.tree.Size(), func(row int, v T) bool {
		x.Insert(row, c.tr.key(v), 1, true)
		return true
	})
}

func (c *treeColumn[T]) AttachSearchIndex() {
	x := index.New(c.alloc)
	x.SetParent(c.parent, c.ndx+1)
	x.UpdateFromParent()
	c.index = x
}

// DestroySearchIndex frees the index. The caller removes its slot.
func (c *treeColumn[T]) DestroySearchIndex() {
	if c.index == nil {
		return
	}
	c.index.Destroy()
	c.index = nil
}

// findFirst returns the first row in [begin, end) holding v. The index is
// used when the search covers the whole column.
func (c *treeColumn[T]) findFirst(v T, begin, end int) int {
	if end == primitives.NPos {
		end = c.tree.Size()
	}
	if c.index != nil && begin == 0 && end == c.tree.Size() {
		return c.index.FindFirst(c.tr.key(v))
	}
	found := primitives.NotFound
	c.tree.ForEach(begin, end, func(row int, x T) bool {
		if c.tr.equal(x, v) {
			found = row
			return false
		}
		return true
	})
	return found
}

// findAll appends every row in [begin, end) holding v.
func (c *treeColumn[T]) findAll(v T, begin, end int) []int {
	if end == primitives.NPos {
		end = c.tree.Size()
	}
	if c.index != nil && begin == 0 && end == c.tree.Size() {
		return c.index.FindAll(c.tr.key(v))
	}
	var rows []int
	c.tree.ForEach(begin, end, func(row int, x T) bool {
		if c.tr.equal(x, v) {
			rows = append(rows, row)
		}
		return true
	})
	return rows
}

func (c *treeColumn[T]) count(v T) int {
	if c.index != nil {
		return c.index.Count(c.tr.key(v))
	}
	n := 0
	c.tree.ForEach(0, c.tree.Size(), func(_ int, x T) bool {
		if c.tr.equal(x, v) {
			n++
		}
		return true
	})
	return n
}

// lowerBound returns the first row in [begin, size) whose value is not less
// than v, assuming the column is sorted by less.
func (c *treeColumn[T]) lowerBound(v T, begin int, less func(a, b T) bool) int {
	lo, hi := begin, c.tree.Size()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if less(c.tree.Get(mid), v) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// LeafAt exposes the leaf holding row for scans.
func (c *treeColumn[T]) LeafAt(row int) (bptree.Leaf[T], int, int) {
	return c.tree.LeafAt(row)
}

// ForEach visits the cells of [begin, end) in order until fn returns false.
func (c *treeColumn[T]) ForEach(begin, end int, fn func(row int, v T) bool) {
	c.tree.ForEach(begin, end, fn)
}

func (c *treeColumn[T]) Verify() error {
	if err := c.tree.Verify(); err != nil {
		return err
	}
	if c.index == nil {
		return nil
	}
	if err := c.index.Verify(); err != nil {
		return err
	}
	if c.index.Size() != c.tree.Size() {
		return fmt.Errorf("search index holds %d entries for %d rows", c.index.Size(), c.tree.Size())
	}
	for _, e := range c.index.Entries() {
		if e.Row >= c.tree.Size() || c.KeyAt(e.Row).Compare(e.Key) != 0 {
			return fmt.Errorf("search index entry for row %d does not match the column", e.Row)
		}
	}
	return nil
}

// aggregate feeds the non-null values of [begin, end) into st. value maps a
// cell to the accumulator type and reports whether it is non-null.
func aggregate[T any, R aggregation.Number](c *treeColumn[T], st *aggregation.QueryState[R], begin, end int, value func(T) (R, bool)) {
	if end == primitives.NPos {
		end = c.tree.Size()
	}
	c.tree.ForEach(begin, end, func(row int, v T) bool {
		r, ok := value(v)
		if !ok {
			return true
		}
		return st.Match(row, r)
	})
}

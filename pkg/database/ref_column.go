package database

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
)

// cellParent lets a node stored in a cell of a ref tree report its new ref
// to that cell.
type cellParent struct {
	tree *bptree.Tree[int64]
}

func (p cellParent) ChildRef(row int) primitives.Ref {
	return primitives.Ref(p.tree.Get(row))
}

func (p cellParent) UpdateChildRef(row int, ref primitives.Ref) {
	p.tree.Set(row, int64(ref))
}

// refColumn is a tree of refs, one owned subtree (or 0) per row. Link lists,
// backlinks and subtables are stored this way. Cells may also hold tagged
// integers.
type refColumn struct {
	alloc  alloc.Allocator
	tree   *bptree.Tree[int64]
	parent array.Parent
	ndx    int
}

func newRefColumn(a alloc.Allocator) refColumn {
	return refColumn{alloc: a, tree: bptree.New(a, bptree.NewRefLeaf)}
}

func (c *refColumn) create(size int) primitives.Ref {
	c.tree.Create()
	for i := 0; i < size; i++ {
		c.tree.Add(0)
	}
	return c.tree.Ref()
}

func (c *refColumn) attach(ref primitives.Ref) { c.tree.InitFromRef(ref) }

func (c *refColumn) Ref() primitives.Ref { return c.tree.Ref() }
func (c *refColumn) NdxInParent() int    { return c.ndx }
func (c *refColumn) Size() int           { return c.tree.Size() }

func (c *refColumn) SetParent(p array.Parent, ndx int) {
	c.parent = p
	c.ndx = ndx
	c.tree.SetParent(p, ndx)
}

func (c *refColumn) UpdateFromParent() {
	c.tree.InitFromParent()
}

func (c *refColumn) get(row int) int64 {
	return c.tree.Get(row)
}

func (c *refColumn) set(row int, v int64) {
	c.tree.Set(row, v)
}

func (c *refColumn) cells() cellParent {
	return cellParent{tree: c.tree}
}

// destroyCell frees the subtree of row and leaves a 0 behind.
func (c *refColumn) destroyCell(row int) {
	v := c.tree.Get(row)
	if v == 0 {
		return
	}
	if !primitives.IsTagged(v) {
		array.DestroyDeep(c.alloc, primitives.Ref(v))
	}
	c.tree.Set(row, 0)
}

func (c *refColumn) InsertRows(row, n, priorSize int) {
	for i := 0; i < n; i++ {
		c.tree.Insert(row+i, 0)
	}
}

func (c *refColumn) Erase(row int, isLast bool) {
	c.destroyCell(row)
	c.tree.Erase(row)
}

func (c *refColumn) MoveLastOver(row, last int) {
	c.destroyCell(row)
	if row != last {
		c.tree.Set(row, c.tree.Get(last))
	}
	c.tree.Erase(last)
}

func (c *refColumn) SwapRows(a, b int) {
	va, vb := c.tree.Get(a), c.tree.Get(b)
	c.tree.Set(a, vb)
	c.tree.Set(b, va)
}

func (c *refColumn) Clear() {
	c.tree.Clear()
}

func (c *refColumn) Destroy() {
	c.tree.Destroy()
}

func (c *refColumn) Verify() error {
	return c.tree.Verify()
}

// intList is an accessor for a plain int array stored in a cell.
func (c *refColumn) intList(row int) *array.Array {
	l := array.New(c.alloc)
	l.SetParent(c.cells(), row)
	l.InitFromParent()
	return l
}

// listValues returns the int array stored at row, nil when the cell is 0.
func (c *refColumn) listValues(row int) []int64 {
	v := c.tree.Get(row)
	if v == 0 || primitives.IsTagged(v) {
		return nil
	}
	l := array.New(c.alloc)
	l.InitFromRef(primitives.Ref(v))
	return l.Values()
}

package database

import (
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/types"
)

// LinkColumn stores one optional link per row as target+1, 0 meaning null.
// Backlinks are maintained by the table, not by the column.
type LinkColumn struct {
	*column.IntColumn
}

func newLinkColumn(a alloc.Allocator) *LinkColumn {
	return &LinkColumn{IntColumn: column.NewIntColumn(a, primitives.ColTypeLink, false)}
}

func (c *LinkColumn) IsNullable() bool    { return true }
func (c *LinkColumn) IsNull(row int) bool { return c.IntColumn.Get(row) == 0 }

func (c *LinkColumn) SetNull(row int) error {
	c.IntColumn.Set(row, 0)
	return nil
}

// Link returns the target row, or -1 for null.
func (c *LinkColumn) Link(row int) int {
	return int(c.IntColumn.Get(row)) - 1
}

func (c *LinkColumn) setLink(row, target int) {
	c.IntColumn.Set(row, int64(target+1))
}

func (c *LinkColumn) Value(row int) types.Mixed {
	return types.MixedLink(int64(c.Link(row)))
}

// rowsLinkingTo returns every row whose link points at target.
func (c *LinkColumn) rowsLinkingTo(target int) []int {
	return c.FindAll(int64(target+1), 0, primitives.NPos)
}

// adjustTargets rewrites every non-null link through fn.
func (c *LinkColumn) adjustTargets(fn func(int) int) {
	for row := 0; row < c.Size(); row++ {
		if t := c.Link(row); t >= 0 {
			if nt := fn(t); nt != t {
				c.setLink(row, nt)
			}
		}
	}
}

// LinkListColumn stores an ordered list of target rows per row.
type LinkListColumn struct {
	refColumn
}

func newLinkListColumn(a alloc.Allocator) *LinkListColumn {
	return &LinkListColumn{refColumn: newRefColumn(a)}
}

func (c *LinkListColumn) Type() primitives.ColumnType { return primitives.ColTypeLinkList }
func (c *LinkListColumn) IsNullable() bool            { return false }
func (c *LinkListColumn) IsNull(int) bool             { return false }

func (c *LinkListColumn) SetNull(int) error {
	return dberr.From(dberr.ErrColumnNotNullable).In("SetNull", "LinkListColumn")
}

// Value reports the list length.
func (c *LinkListColumn) Value(row int) types.Mixed {
	return types.MixedInt(int64(c.LinkCount(row)))
}

func (c *LinkListColumn) CompareValues(a, b int) int {
	return types.CompareOrdered(c.LinkCount(a), c.LinkCount(b))
}

func (c *LinkListColumn) LinkCount(row int) int {
	v := c.get(row)
	if v == 0 {
		return 0
	}
	l := array.New(c.alloc)
	l.InitFromRef(primitives.Ref(v))
	return l.Size()
}

// Links returns the targets of row in list order.
func (c *LinkListColumn) Links(row int) []int {
	vals := c.listValues(row)
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}

func (c *LinkListColumn) LinkAt(row, ndx int) int {
	l := array.New(c.alloc)
	l.InitFromRef(primitives.Ref(c.get(row)))
	return int(l.Get(ndx))
}

// list returns a writable accessor, creating the list if the cell is empty.
func (c *LinkListColumn) list(row int) *array.Array {
	if c.get(row) == 0 {
		l := array.CreateArray(c.alloc, array.TypeNormal, false, 0, 0)
		c.set(row, int64(l.Ref()))
	}
	return c.intList(row)
}

func (c *LinkListColumn) insertLink(row, ndx, target int) {
	c.list(row).Insert(ndx, int64(target))
}

func (c *LinkListColumn) setLinkAt(row, ndx, target int) int {
	l := c.list(row)
	old := int(l.Get(ndx))
	l.Set(ndx, int64(target))
	return old
}

func (c *LinkListColumn) eraseLink(row, ndx int) int {
	l := c.list(row)
	old := int(l.Get(ndx))
	l.Erase(ndx)
	return old
}

func (c *LinkListColumn) moveLink(row, from, to int) {
	l := c.list(row)
	v := l.Get(from)
	l.Erase(from)
	l.Insert(to, v)
}

func (c *LinkListColumn) swapLinks(row, a, b int) {
	l := c.list(row)
	va, vb := l.Get(a), l.Get(b)
	l.Set(a, vb)
	l.Set(b, va)
}

func (c *LinkListColumn) clearList(row int) {
	c.destroyCell(row)
}

// removeTarget drops every occurrence of target from the list of row.
func (c *LinkListColumn) removeTarget(row, target int) {
	if c.get(row) == 0 {
		return
	}
	l := c.intList(row)
	for i := l.Size() - 1; i >= 0; i-- {
		if int(l.Get(i)) == target {
			l.Erase(i)
		}
	}
}

// replaceTarget rewrites every occurrence of from in the list of row.
func (c *LinkListColumn) replaceTarget(row, from, to int) {
	if c.get(row) == 0 {
		return
	}
	l := c.intList(row)
	for i := 0; i < l.Size(); i++ {
		if int(l.Get(i)) == from {
			l.Set(i, int64(to))
		}
	}
}

// adjustTargets rewrites every target through fn; fn returning -1 removes
// the entry.
func (c *LinkListColumn) adjustTargets(fn func(int) int) {
	for row := 0; row < c.Size(); row++ {
		if c.get(row) == 0 {
			continue
		}
		vals := c.listValues(row)
		changed := false
		for _, v := range vals {
			if fn(int(v)) != int(v) {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		l := c.intList(row)
		for i := len(vals) - 1; i >= 0; i-- {
			switch nt := fn(int(vals[i])); {
			case nt < 0:
				l.Erase(i)
			case nt != int(vals[i]):
				l.Set(i, int64(nt))
			}
		}
	}
}

// BacklinkColumn records, per target row, the origin rows of one forward
// link column. A cell is 0 (no backlinks), a tagged origin row, or the ref
// of an int array of origin rows.
type BacklinkColumn struct {
	refColumn
}

func newBacklinkColumn(a alloc.Allocator) *BacklinkColumn {
	return &BacklinkColumn{refColumn: newRefColumn(a)}
}

func (c *BacklinkColumn) Type() primitives.ColumnType { return primitives.ColTypeBackLink }
func (c *BacklinkColumn) IsNullable() bool            { return false }
func (c *BacklinkColumn) IsNull(int) bool             { return false }

func (c *BacklinkColumn) SetNull(int) error {
	return dberr.From(dberr.ErrColumnNotNullable).In("SetNull", "BacklinkColumn")
}

func (c *BacklinkColumn) Value(row int) types.Mixed {
	return types.MixedInt(int64(c.backlinkCount(row)))
}

func (c *BacklinkColumn) CompareValues(a, b int) int {
	return types.CompareOrdered(c.backlinkCount(a), c.backlinkCount(b))
}

// addBacklink appends origin to the backlinks of row, switching from the
// tagged single form to a list on the second entry.
func (c *BacklinkColumn) addBacklink(row, origin int) {
	v := c.get(row)
	switch {
	case v == 0:
		c.set(row, primitives.TagInt(int64(origin)))
	case primitives.IsTagged(v):
		l := array.CreateArray(c.alloc, array.TypeNormal, false, 0, 0)
		l.Add(primitives.UntagInt(v))
		l.Add(int64(origin))
		c.set(row, int64(l.Ref()))
	default:
		c.intList(row).Add(int64(origin))
	}
}

// removeOneBacklink removes a single occurrence of origin. A list that
// shrinks to one entry goes back to the tagged form.
func (c *BacklinkColumn) removeOneBacklink(row, origin int) {
	v := c.get(row)
	switch {
	case v == 0:
		return
	case primitives.IsTagged(v):
		if int(primitives.UntagInt(v)) == origin {
			c.set(row, 0)
		}
	default:
		l := c.intList(row)
		i := l.FindFirst(int64(origin), 0, primitives.NPos)
		if i == primitives.NotFound {
			return
		}
		l.Erase(i)
		if l.Size() == 1 {
			last := l.Get(0)
			l.Destroy()
			c.set(row, primitives.TagInt(last))
		}
	}
}

func (c *BacklinkColumn) removeAllBacklinks(row int) {
	c.destroyCell(row)
}

// updateBacklink replaces one occurrence of oldOrigin with newOrigin.
func (c *BacklinkColumn) updateBacklink(row, oldOrigin, newOrigin int) {
	v := c.get(row)
	switch {
	case v == 0:
	case primitives.IsTagged(v):
		if int(primitives.UntagInt(v)) == oldOrigin {
			c.set(row, primitives.TagInt(int64(newOrigin)))
		}
	default:
		l := c.intList(row)
		if i := l.FindFirst(int64(oldOrigin), 0, primitives.NPos); i != primitives.NotFound {
			l.Set(i, int64(newOrigin))
		}
	}
}

// swapBacklinks exchanges origins a and b in every backlink cell, after the
// origin table swapped those rows.
func (c *BacklinkColumn) swapOrigins(a, b int) {
	c.adjustOrigins(func(o int) int {
		switch o {
		case a:
			return b
		case b:
			return a
		}
		return o
	})
}

func (c *BacklinkColumn) backlinkCount(row int) int {
	v := c.get(row)
	switch {
	case v == 0:
		return 0
	case primitives.IsTagged(v):
		return 1
	default:
		return len(c.listValues(row))
	}
}

func (c *BacklinkColumn) backlink(row, i int) int {
	v := c.get(row)
	if primitives.IsTagged(v) {
		return int(primitives.UntagInt(v))
	}
	l := array.New(c.alloc)
	l.InitFromRef(primitives.Ref(v))
	return int(l.Get(i))
}

// backlinks returns the origins of row, sorted.
func (c *BacklinkColumn) backlinks(row int) []int {
	v := c.get(row)
	switch {
	case v == 0:
		return nil
	case primitives.IsTagged(v):
		return []int{int(primitives.UntagInt(v))}
	}
	vals := c.listValues(row)
	out := make([]int, len(vals))
	for i, o := range vals {
		out[i] = int(o)
	}
	slices.Sort(out)
	return out
}

// adjustOrigins rewrites every origin through fn; -1 drops the entry.
func (c *BacklinkColumn) adjustOrigins(fn func(int) int) {
	for row := 0; row < c.Size(); row++ {
		origins := c.backlinks(row)
		changed := false
		for _, o := range origins {
			if fn(o) != o {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		c.destroyCell(row)
		for _, o := range origins {
			if no := fn(o); no >= 0 {
				c.addBacklink(row, no)
			}
		}
	}
}

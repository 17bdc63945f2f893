package database

import (
	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/types"
)

// SubtableColumn stores a nested table per row. A cell holds the ref of the
// subtable's columns array, or 0 for a degenerate (empty, never written)
// subtable. The schema of every subtable in the column is the subspec kept
// by the parent spec.
type SubtableColumn struct {
	refColumn
	spec *Spec
	col  int
}

func newSubtableColumn(a alloc.Allocator, spec *Spec, col int) *SubtableColumn {
	return &SubtableColumn{refColumn: newRefColumn(a), spec: spec, col: col}
}

func (c *SubtableColumn) Type() primitives.ColumnType { return primitives.ColTypeTable }
func (c *SubtableColumn) IsNullable() bool            { return false }
func (c *SubtableColumn) IsNull(int) bool             { return false }

func (c *SubtableColumn) SetNull(int) error {
	return dberr.From(dberr.ErrColumnNotNullable).In("SetNull", "SubtableColumn")
}

func (c *SubtableColumn) Value(int) types.Mixed {
	return types.MixedSubtable()
}

// subtableSize reads the row count of the subtable in row without keeping
// an accessor.
func (c *SubtableColumn) subtableSize(row int) int {
	ref := primitives.Ref(c.get(row))
	if ref == 0 {
		return 0
	}
	sub := c.spec.subspec(c.col)
	return columnsSize(c.alloc, sub, ref)
}

func (c *SubtableColumn) CompareValues(a, b int) int {
	return types.CompareOrdered(c.subtableSize(a), c.subtableSize(b))
}

// clearSubtable frees the subtable of row, leaving it degenerate.
func (c *SubtableColumn) clearSubtable(row int) {
	c.destroyCell(row)
}

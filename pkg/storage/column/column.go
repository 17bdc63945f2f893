// Package column implements the typed columns of a table. Every column owns
// one B+-tree (two for timestamps) and optionally a search index that is kept
// consistent with the tree on every mutation.
//
// Row numbers passed to columns are assumed to be valid; range checks happen
// in the table layer.
package column

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// Column is the capability set shared by every column kind, including the
// link, subtable and mixed columns of the database package.
type Column interface {
	Type() primitives.ColumnType
	Ref() primitives.Ref

	// SetParent sets where the column root is stored. A search index, if
	// any, lives in the following slot.
	SetParent(p array.Parent, ndx int)
	NdxInParent() int

	// UpdateFromParent re-reads the root ref after the parent changed.
	UpdateFromParent()

	Size() int
	IsNullable() bool
	IsNull(row int) bool
	SetNull(row int) error

	// Value returns the cell as a Mixed, mainly for printing and comparison.
	Value(row int) types.Mixed

	// InsertRows inserts n default cells (null when nullable) at row.
	// priorSize is the size before the insert; row == priorSize appends.
	InsertRows(row, n, priorSize int)

	// Erase removes row. isLast must be true exactly when row is the last.
	Erase(row int, isLast bool)
	MoveLastOver(row, last int)
	SwapRows(a, b int)
	Clear()

	// Destroy frees the column and its search index.
	Destroy()

	// CompareValues orders two cells of this column.
	CompareValues(a, b int) int
	Verify() error
}

// Indexed is implemented by columns that can carry a search index.
type Indexed interface {
	Column
	HasSearchIndex() bool
	SearchIndex() *index.SearchIndex

	// CreateSearchIndex builds and populates a new index. The caller stores
	// its ref in the slot after the column.
	CreateSearchIndex() *index.SearchIndex

	// AttachSearchIndex attaches to an index already stored after the column.
	AttachSearchIndex()
	DestroySearchIndex()

	// KeyAt returns the index key of row.
	KeyAt(row int) index.Key
}

// EraseRows removes n rows starting at row, one at a time from the back.
func EraseRows(c Column, row, n, priorSize int) {
	size := priorSize
	for i := row + n - 1; i >= row; i-- {
		c.Erase(i, i == size-1)
		size--
	}
}

// Supports reports whether a column of type t can carry a search index.
func Supports(t primitives.ColumnType) bool {
	return types.IsIndexable(t)
}

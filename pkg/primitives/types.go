package primitives

import "math"

// Ref is a byte offset into the managed arena. In the persisted file it is the
// position of a node relative to the start of the file; beyond the attached
// baseline it addresses in-memory slabs.
//
// Refs are always 8-byte aligned, which leaves the low bit free so that
// arrays holding refs can also hold tagged integers (odd values).
type Ref uint64

// Version identifies an immutable snapshot. Versions are handed out by the
// transaction manager and increase monotonically with every commit.
type Version uint64

// ColumnType is the physical kind of a column as stored in a table's spec.
type ColumnType int

const (
	ColTypeInt         ColumnType = 0
	ColTypeBool        ColumnType = 1
	ColTypeString      ColumnType = 2
	ColTypeStringEnum  ColumnType = 3
	ColTypeBinary      ColumnType = 4
	ColTypeTable       ColumnType = 5
	ColTypeMixed       ColumnType = 6
	ColTypeOldDateTime ColumnType = 7
	ColTypeTimestamp   ColumnType = 8
	ColTypeFloat       ColumnType = 9
	ColTypeDouble      ColumnType = 10
	ColTypeReserved4   ColumnType = 11
	ColTypeLink        ColumnType = 12
	ColTypeLinkList    ColumnType = 13
	ColTypeBackLink    ColumnType = 14
)

// ColumnAttr holds per-column flags stored in the spec.
type ColumnAttr int

const (
	ColAttrNone        ColumnAttr = 0
	ColAttrIndexed     ColumnAttr = 1
	ColAttrUnique      ColumnAttr = 2
	ColAttrNullable    ColumnAttr = 4
	ColAttrStrongLinks ColumnAttr = 8
)

// Sentinel values shared by every layer of the engine.
const (
	// NPos is the "no position" marker used for append (insert at end) and
	// for open-ended ranges.
	NPos = -1

	// NotFound is returned by all search operations that find nothing.
	NotFound = -1

	// NullRef is the ref value meaning "no node".
	NullRef Ref = 0

	// MaxRows bounds the number of rows of a single table.
	MaxRows = math.MaxInt32
)

// TagInt encodes v as a tagged integer suitable for storing in a has-refs array.
func TagInt(v int64) int64 {
	return v<<1 | 1
}

// UntagInt decodes a tagged integer.
func UntagInt(v int64) int64 {
	return v >> 1
}

// IsTagged reports whether a has-refs slot holds a tagged integer rather than a ref.
func IsTagged(v int64) bool {
	return v&1 == 1
}

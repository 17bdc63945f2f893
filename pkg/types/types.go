// Package types defines the value types stored in columns and the predicate
// operators understood by the query engine.
package types

import (
	"cmp"

	"colstore/pkg/primitives"
)

// DataType is the user visible type of a column. It shares its numbering with
// the physical column type; StringEnum and BackLink never surface as a DataType.
type DataType = primitives.ColumnType

const (
	Int       DataType = primitives.ColTypeInt
	Bool      DataType = primitives.ColTypeBool
	String    DataType = primitives.ColTypeString
	Binary    DataType = primitives.ColTypeBinary
	Table     DataType = primitives.ColTypeTable
	MixedType DataType = primitives.ColTypeMixed
	Timestamp DataType = primitives.ColTypeTimestamp
	Float     DataType = primitives.ColTypeFloat
	Double    DataType = primitives.ColTypeDouble
	Link      DataType = primitives.ColTypeLink
	LinkList  DataType = primitives.ColTypeLinkList
)

// IsValidColumnType reports whether t may be used for a user column.
func IsValidColumnType(t DataType) bool {
	switch t {
	case Int, Bool, String, Binary, Table, MixedType, Timestamp, Float, Double, Link, LinkList:
		return true
	default:
		return false
	}
}

// IsIndexable reports whether a search index can be attached to columns of type t.
func IsIndexable(t DataType) bool {
	switch t {
	case Int, Bool, String, Timestamp, primitives.ColTypeStringEnum:
		return true
	default:
		return false
	}
}

// CompareOrdered returns -1, 0 or 1.
func CompareOrdered[T cmp.Ordered](a, b T) int {
	return cmp.Compare(a, b)
}

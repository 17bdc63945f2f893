package primitives

import (
	"fmt"
	"math"
)

// VersionID identifies a snapshot together with the ring-buffer slot that
// tethers it. The slot index lets a session re-acquire exactly the same
// snapshot later (for handover or pinned reads) without searching.
type VersionID struct {
	Version Version
	Index   uint32
}

// LatestVersion requests whatever snapshot is newest at the time of the call.
var LatestVersion = VersionID{Version: math.MaxUint64, Index: math.MaxUint32}

// IsLatest reports whether v is the "latest" marker rather than a concrete snapshot.
func (v VersionID) IsLatest() bool {
	return v == LatestVersion
}

func (v VersionID) String() string {
	if v.IsLatest() {
		return "latest"
	}
	return fmt.Sprintf("v%d@%d", v.Version, v.Index)
}

// Less orders version ids by snapshot version only.
func (v VersionID) Less(other VersionID) bool {
	return v.Version < other.Version
}

// IsValid reports whether the ref points at a node.
func (r Ref) IsValid() bool {
	return r != NullRef
}

func (r Ref) String() string {
	return fmt.Sprintf("ref(%d)", uint64(r))
}

// String returns the public type name of a column type.
func (t ColumnType) String() string {
	switch t {
	case ColTypeInt:
		return "int"
	case ColTypeBool:
		return "bool"
	case ColTypeString:
		return "string"
	case ColTypeStringEnum:
		return "string_enum"
	case ColTypeBinary:
		return "binary"
	case ColTypeTable:
		return "table"
	case ColTypeMixed:
		return "mixed"
	case ColTypeOldDateTime:
		return "olddatetime"
	case ColTypeTimestamp:
		return "timestamp"
	case ColTypeFloat:
		return "float"
	case ColTypeDouble:
		return "double"
	case ColTypeLink:
		return "link"
	case ColTypeLinkList:
		return "linklist"
	case ColTypeBackLink:
		return "backlink"
	default:
		return "unknown"
	}
}

// IsLinkType reports whether columns of this type reference rows of another table.
func (t ColumnType) IsLinkType() bool {
	return t == ColTypeLink || t == ColTypeLinkList || t == ColTypeBackLink
}

// Has reports whether all bits of flag are set.
func (a ColumnAttr) Has(flag ColumnAttr) bool {
	return a&flag == flag
}

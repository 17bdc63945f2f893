package database

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

// Slots of the spec top array.
const (
	specTypes = iota
	specNames
	specAttrs
	specSubspecs
	specEnumKeys
	specSize
)

// Spec is the persisted schema of a table: one entry per column in each of
// the types, names and attrs arrays. The subspecs array holds, per column,
// the spec of a subtable column, the tagged target table of a link column,
// or the ref of an [origin table, origin column] pair for a backlink column.
// The enumkeys array holds the keys column of every StringEnum column.
//
// Backlink columns are hidden and always follow the public columns.
type Spec struct {
	alloc    alloc.Allocator
	top      *array.Array
	types    *array.Array
	names    *array.Blobs
	attrs    *array.Array
	subspecs *array.Array
	enumKeys *array.Array
}

func newSpec(a alloc.Allocator) *Spec {
	return &Spec{
		alloc:    a,
		top:      array.New(a),
		types:    array.New(a),
		names:    array.NewBlobs(a),
		attrs:    array.New(a),
		subspecs: array.New(a),
		enumKeys: array.New(a),
	}
}

// createSpec allocates an empty spec and returns its ref.
func createSpec(a alloc.Allocator) primitives.Ref {
	top := array.CreateArray(a, array.TypeHasRefs, false, 0, 0)
	top.Add(int64(array.CreateArray(a, array.TypeNormal, false, 0, 0).Ref()))
	names := array.NewBlobs(a)
	names.Create(0, nil)
	top.Add(int64(names.Ref()))
	top.Add(int64(array.CreateArray(a, array.TypeNormal, false, 0, 0).Ref()))
	top.Add(int64(array.CreateArray(a, array.TypeHasRefs, false, 0, 0).Ref()))
	top.Add(int64(array.CreateArray(a, array.TypeHasRefs, false, 0, 0).Ref()))
	return top.Ref()
}

func (s *Spec) setParent(p array.Parent, ndx int) {
	s.top.SetParent(p, ndx)
}

func (s *Spec) initFromRef(ref primitives.Ref) {
	s.top.InitFromRef(ref)
	s.initChildren()
}

func (s *Spec) initFromParent() {
	s.top.InitFromParent()
	s.initChildren()
}

func (s *Spec) initChildren() {
	s.types.SetParent(s.top, specTypes)
	s.types.InitFromParent()
	s.names.SetParent(s.top, specNames)
	s.names.InitFromParent()
	s.attrs.SetParent(s.top, specAttrs)
	s.attrs.InitFromParent()
	s.subspecs.SetParent(s.top, specSubspecs)
	s.subspecs.InitFromParent()
	s.enumKeys.SetParent(s.top, specEnumKeys)
	s.enumKeys.InitFromParent()
}

func (s *Spec) ref() primitives.Ref {
	return s.top.Ref()
}

// ColumnCount returns the number of columns, hidden backlinks included.
func (s *Spec) ColumnCount() int {
	return s.types.Size()
}

// PublicColumnCount returns the number of user visible columns.
func (s *Spec) PublicColumnCount() int {
	n := s.types.Size()
	for n > 0 && primitives.ColumnType(s.types.Get(n-1)) == primitives.ColTypeBackLink {
		n--
	}
	return n
}

// ColumnType returns the physical type, which may be StringEnum or BackLink.
func (s *Spec) ColumnType(col int) primitives.ColumnType {
	return primitives.ColumnType(s.types.Get(col))
}

// PublicColumnType maps StringEnum back to String.
func (s *Spec) PublicColumnType(col int) primitives.ColumnType {
	t := s.ColumnType(col)
	if t == primitives.ColTypeStringEnum {
		return primitives.ColTypeString
	}
	return t
}

func (s *Spec) ColumnName(col int) string {
	return string(s.names.Get(col))
}

func (s *Spec) ColumnAttr(col int) primitives.ColumnAttr {
	return primitives.ColumnAttr(s.attrs.Get(col))
}

func (s *Spec) setColumnAttr(col int, a primitives.ColumnAttr) {
	s.attrs.Set(col, int64(a))
}

func (s *Spec) setColumnType(col int, t primitives.ColumnType) {
	s.types.Set(col, int64(t))
}

// ColumnIndex returns the public column called name, or NotFound.
func (s *Spec) ColumnIndex(name string) int {
	for i, n := 0, s.PublicColumnCount(); i < n; i++ {
		if s.ColumnName(i) == name {
			return i
		}
	}
	return primitives.NotFound
}

// columnSlot returns the position of the column root in the columns array.
// Every indexed column before col occupies an extra slot for its index.
func (s *Spec) columnSlot(col int) int {
	slot := col
	for i := 0; i < col; i++ {
		if s.ColumnAttr(i).Has(primitives.ColAttrIndexed) {
			slot++
		}
	}
	return slot
}

func (s *Spec) insertColumn(col int, t primitives.ColumnType, name string, attr primitives.ColumnAttr) {
	s.types.Insert(col, int64(t))
	s.names.Insert(col, []byte(name))
	s.attrs.Insert(col, int64(attr))
	var sub int64
	if t == primitives.ColTypeTable {
		sub = int64(createSpec(s.alloc))
	}
	s.subspecs.Insert(col, sub)
	s.enumKeys.Insert(col, 0)
}

func (s *Spec) eraseColumn(col int) {
	if v := s.subspecs.Get(col); v != 0 && !primitives.IsTagged(v) {
		array.DestroyDeep(s.alloc, primitives.Ref(v))
	}
	if v := s.enumKeys.Get(col); v != 0 {
		array.DestroyDeep(s.alloc, primitives.Ref(v))
	}
	s.types.Erase(col)
	s.names.Erase(col)
	s.attrs.Erase(col)
	s.subspecs.Erase(col)
	s.enumKeys.Erase(col)
}

func (s *Spec) renameColumn(col int, name string) {
	s.names.Set(col, []byte(name))
}

// LinkTarget returns the group index of the table a link column points to.
func (s *Spec) LinkTarget(col int) int {
	return int(primitives.UntagInt(s.subspecs.Get(col)))
}

func (s *Spec) setLinkTarget(col, table int) {
	s.subspecs.Set(col, primitives.TagInt(int64(table)))
}

// BacklinkOrigin returns the origin table and column of a backlink column.
func (s *Spec) BacklinkOrigin(col int) (table, originCol int) {
	pair := array.New(s.alloc)
	pair.InitFromRef(s.subspecs.GetAsRef(col))
	return int(pair.Get(0)), int(pair.Get(1))
}

func (s *Spec) setBacklinkOrigin(col, table, originCol int) {
	if v := s.subspecs.Get(col); v != 0 && !primitives.IsTagged(v) {
		pair := array.New(s.alloc)
		pair.SetParent(s.subspecs, col)
		pair.InitFromParent()
		pair.Set(0, int64(table))
		pair.Set(1, int64(originCol))
		return
	}
	pair := array.CreateArray(s.alloc, array.TypeNormal, false, 0, 0)
	pair.Add(int64(table))
	pair.Add(int64(originCol))
	s.subspecs.Set(col, int64(pair.Ref()))
}

// findBacklinkColumn returns the backlink column recording links from the
// given origin column, or NotFound.
func (s *Spec) findBacklinkColumn(originTable, originCol int) int {
	for i := s.PublicColumnCount(); i < s.ColumnCount(); i++ {
		t, c := s.BacklinkOrigin(i)
		if t == originTable && c == originCol {
			return i
		}
	}
	return primitives.NotFound
}

// subspec returns an accessor for the spec of a subtable column.
func (s *Spec) subspec(col int) *Spec {
	sub := newSpec(s.alloc)
	sub.setParent(s.subspecs, col)
	sub.initFromParent()
	return sub
}

func (s *Spec) enumKeysRef(col int) primitives.Ref {
	return s.enumKeys.GetAsRef(col)
}

func (s *Spec) setEnumKeysRef(col int, ref primitives.Ref) {
	s.enumKeys.Set(col, int64(ref))
}

// isLinkColumn reports whether col is a forward link column.
func (s *Spec) isLinkColumn(col int) bool {
	t := s.ColumnType(col)
	return t == primitives.ColTypeLink || t == primitives.ColTypeLinkList
}

// adjustTableIndices rewrites every table index stored in link and backlink
// columns after the group reordered its tables.
func (s *Spec) adjustTableIndices(fn func(old int) int) {
	for col := 0; col < s.ColumnCount(); col++ {
		switch s.ColumnType(col) {
		case primitives.ColTypeLink, primitives.ColTypeLinkList:
			if old := s.LinkTarget(col); fn(old) != old {
				s.setLinkTarget(col, fn(old))
			}
		case primitives.ColTypeBackLink:
			old, c := s.BacklinkOrigin(col)
			if fn(old) != old {
				s.setBacklinkOrigin(col, fn(old), c)
			}
		}
	}
}

// Equal compares the public schema of two specs, recursing into subtable
// specs. Link targets are compared by index.
func (s *Spec) Equal(o *Spec) bool {
	n := s.PublicColumnCount()
	if n != o.PublicColumnCount() {
		return false
	}
	for i := 0; i < n; i++ {
		if s.PublicColumnType(i) != o.PublicColumnType(i) || s.ColumnName(i) != o.ColumnName(i) {
			return false
		}
		if s.ColumnAttr(i).Has(primitives.ColAttrNullable) != o.ColumnAttr(i).Has(primitives.ColAttrNullable) {
			return false
		}
		switch s.ColumnType(i) {
		case primitives.ColTypeTable:
			if !s.subspec(i).Equal(o.subspec(i)) {
				return false
			}
		case primitives.ColTypeLink, primitives.ColTypeLinkList:
			if s.LinkTarget(i) != o.LinkTarget(i) {
				return false
			}
		}
	}
	return true
}

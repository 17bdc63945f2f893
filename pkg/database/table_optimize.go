package database

import (
	"io"
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/types"
)

// Optimize converts string columns with few distinct values into
// enumerated form and drops unused keys of enumerated columns. Values,
// indexes and accessors are unaffected.
func (t *Table) Optimize() error {
	const op = "Optimize"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if t.isDegenerate() {
		return nil
	}
	changed := false
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		switch c := t.cols[col].(type) {
		case *column.StringEnumColumn:
			if c.PruneKeys() > 0 {
				changed = true
			}
		case *column.StringColumn:
			if c.Type() == primitives.ColTypeString && t.toEnum(col, c) {
				changed = true
			}
		}
	}
	if changed {
		t.refreshColumns()
		t.reattachSubtables()
	}
	t.record(log.Instruction{Type: log.OptimizeTable})
	return nil
}

// toEnum rewrites col as a StringEnum column when at most half of its
// values are distinct.
func (t *Table) toEnum(col int, c *column.StringColumn) bool {
	n := c.Size()
	if n == 0 {
		return false
	}
	values := c.Values(0, n)
	distinct := make(map[string]struct{}, n/2+1)
	for _, v := range values {
		id := "\x00"
		if v != nil {
			id = "\x01" + string(v)
		}
		distinct[id] = struct{}{}
		if len(distinct) > n/2 {
			return false
		}
	}

	keys := column.CreateStringColumn(t.alloc, true, 0)
	t.spec.setEnumKeysRef(col, keys.Ref())
	keys.SetParent(t.spec.enumKeys, col)
	enum := column.CreateStringEnumColumn(t.alloc, keys, c.IsNullable(), values)

	slot := t.spec.columnSlot(col)
	old := t.columns.GetAsRef(slot)
	t.columns.Set(slot, int64(enum.Ref()))
	array.DestroyDeep(t.alloc, old)
	t.spec.setColumnType(col, primitives.ColTypeStringEnum)
	return true
}

// WriteSlice writes a standalone database holding one table named like t
// with rows [offset, offset+size) of t. Tables with link columns cannot be
// sliced.
func (t *Table) WriteSlice(w io.Writer, offset, size int) error {
	const op = "WriteSlice"
	if err := t.checkAttached(op); err != nil {
		return err
	}
	if n := t.Size(); offset < 0 || size < 0 || offset+size > n {
		return dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("rows [%d, %d) of %d", offset, offset+size, n).In(op, "Table")
	}
	name := t.Name()
	if name == "" {
		name = "slice"
	}
	g := New()
	defer g.Close()
	dst, err := g.AddTable(name)
	if err != nil {
		return err
	}
	d, _ := dst.Descriptor()
	if err := copySchema(d, t.spec); err != nil {
		return err
	}
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		if t.spec.ColumnAttr(col).Has(primitives.ColAttrIndexed) {
			if err := dst.AddSearchIndex(col); err != nil {
				return err
			}
		}
	}
	rows := make([]int, size)
	for i := range rows {
		rows[i] = offset + i
	}
	if err := copyRows(dst, t, rows); err != nil {
		return err
	}
	return g.Write(w)
}

func copySchema(d *Descriptor, s *Spec) error {
	for col := 0; col < s.PublicColumnCount(); col++ {
		typ := s.PublicColumnType(col)
		if s.isLinkColumn(col) {
			return dberr.From(dberr.ErrIllegalType).WithDetail("column %q links to another table", s.ColumnName(col)).In("WriteSlice", "Table")
		}
		nc, err := d.AddColumn(typ, s.ColumnName(col), s.ColumnAttr(col).Has(primitives.ColAttrNullable))
		if err != nil {
			return err
		}
		if typ == types.Table {
			sub, err := d.Subdescriptor(nc)
			if err != nil {
				return err
			}
			if err := copySchema(sub, s.subspec(col)); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyRows appends the given rows of src to dst. Both tables must share
// the same public schema.
func copyRows(dst, src *Table, rows []int) error {
	if len(rows) == 0 {
		return nil
	}
	first, err := dst.AddEmptyRows(len(rows))
	if err != nil {
		return err
	}
	for col := 0; col < src.spec.PublicColumnCount(); col++ {
		for i, r := range rows {
			if err := copyCell(dst, src, col, first+i, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyCell(dst, src *Table, col, drow, srow int) error {
	switch src.spec.ColumnType(col) {
	case primitives.ColTypeTable:
		if src.cols[col].(*SubtableColumn).subtableSize(srow) == 0 {
			return nil
		}
		return copySubtable(dst, src, col, drow, srow)
	case primitives.ColTypeMixed:
		v := src.cols[col].Value(srow)
		if v.Type() != types.Table || v.IsNull() {
			return dst.SetMixed(col, drow, v)
		}
		if err := dst.SetMixed(col, drow, types.MixedSubtable()); err != nil {
			return err
		}
		s, err := src.GetSubtable(col, srow)
		if err != nil {
			return err
		}
		d, err := dst.GetSubtable(col, drow)
		if err != nil {
			return err
		}
		desc, _ := d.Descriptor()
		if err := copySchema(desc, s.spec); err != nil {
			return err
		}
		return copyRows(d, s, allRows(s.Size()))
	}
	v := src.cols[col].Value(srow)
	if v.IsNull() {
		if src.spec.ColumnAttr(col).Has(primitives.ColAttrNullable) {
			return dst.SetNull(col, drow)
		}
		return nil
	}
	return dst.Set(col, drow, v)
}

func copySubtable(dst, src *Table, col, drow, srow int) error {
	s, err := src.GetSubtable(col, srow)
	if err != nil {
		return err
	}
	d, err := dst.GetSubtable(col, drow)
	if err != nil {
		return err
	}
	return copyRows(d, s, allRows(s.Size()))
}

// Equal reports whether t and o have the same schema and the same values.
// Links are compared by target row.
func (t *Table) Equal(o *Table) bool {
	if !t.IsAttached() || !o.IsAttached() {
		return false
	}
	if !t.spec.Equal(o.spec) || t.Size() != o.Size() {
		return false
	}
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		for row := 0; row < t.Size(); row++ {
			if !t.cellEqual(o, col, row) {
				return false
			}
		}
	}
	return true
}

func (t *Table) cellEqual(o *Table, col, row int) bool {
	switch t.spec.ColumnType(col) {
	case primitives.ColTypeLinkList:
		return slices.Equal(t.cols[col].(*LinkListColumn).Links(row), o.cols[col].(*LinkListColumn).Links(row))
	case primitives.ColTypeTable:
		return t.subtableEqual(o, col, row)
	case primitives.ColTypeMixed:
		a, b := t.cols[col].Value(row), o.cols[col].Value(row)
		if a.Type() == types.Table && !a.IsNull() && b.Type() == types.Table && !b.IsNull() {
			return t.subtableEqual(o, col, row)
		}
		return a.Equal(b)
	}
	return t.cols[col].Value(row).Equal(o.cols[col].Value(row))
}

func (t *Table) subtableEqual(o *Table, col, row int) bool {
	a, err := t.GetSubtable(col, row)
	if err != nil {
		return false
	}
	b, err := o.GetSubtable(col, row)
	if err != nil {
		return false
	}
	return a.Equal(b)
}

// Verify checks the structural consistency of the table: column sizes,
// search indexes, enumeration keys and the symmetry of links and
// backlinks.
func (t *Table) Verify() error {
	const op = "Verify"
	if err := t.checkAttached(op); err != nil {
		return err
	}
	if t.isDegenerate() {
		return nil
	}
	n := t.Size()
	for col, c := range t.cols {
		if c.Size() != n {
			return dberr.From(dberr.ErrInvalidDatabase).WithDetail("column %d has %d rows, table has %d", col, c.Size(), n).In(op, "Table")
		}
		if err := c.Verify(); err != nil {
			return dberr.From(dberr.ErrInvalidDatabase).WithCause(err).In(op, "Table")
		}
		if x := t.searchIndexOf(col); x != nil {
			si := x.SearchIndex()
			if si.Size() != n {
				return dberr.From(dberr.ErrInvalidDatabase).WithDetail("index of column %d has %d entries, table has %d", col, si.Size(), n).In(op, "Table")
			}
			if err := si.Verify(); err != nil {
				return dberr.From(dberr.ErrInvalidDatabase).WithCause(err).In(op, "Table")
			}
		}
	}
	var err error
	t.forEachOutgoing(func(col int, tt *Table, bl *BacklinkColumn) {
		if err != nil {
			return
		}
		for row := 0; row < n && err == nil; row++ {
			for _, tg := range t.targets(col, row) {
				if tg >= tt.Size() {
					err = dberr.From(dberr.ErrInvalidDatabase).WithDetail("row %d column %d links past the end of %q", row, col, tt.Name()).In(op, "Table")
					break
				}
				if !slices.Contains(bl.backlinks(tg), row) {
					err = dberr.From(dberr.ErrInvalidDatabase).WithDetail("link %d->%d of column %d has no backlink", row, tg, col).In(op, "Table")
					break
				}
			}
		}
	})
	if err != nil {
		return err
	}
	t.forEachIncoming(func(bl *BacklinkColumn, ot *Table, oc int) {
		for row := 0; row < n && err == nil; row++ {
			for _, o := range bl.backlinks(row) {
				if o >= ot.Size() || !slices.Contains(ot.targets(oc, o), row) {
					err = dberr.From(dberr.ErrInvalidDatabase).WithDetail("backlink %d<-%d of %q has no link", row, o, ot.Name()).In(op, "Table")
					break
				}
			}
		}
	})
	if err != nil {
		return err
	}
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		if t.spec.ColumnType(col) != primitives.ColTypeTable {
			continue
		}
		for row := 0; row < n; row++ {
			if t.cols[col].(*SubtableColumn).subtableSize(row) == 0 {
				continue
			}
			s, err := t.GetSubtable(col, row)
			if err != nil {
				return err
			}
			if err := s.Verify(); err != nil {
				return err
			}
		}
	}
	return nil
}

// String renders the first rows of the table.
func (t *Table) String() string {
	if !t.IsAttached() {
		return "<detached table>"
	}
	f := NewResultFormatter()
	f.MaxRows = 20
	f.MaxWidth = 40
	return f.FormatTable(t, 0).String()
}

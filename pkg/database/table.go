package database

import (
	"weak"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/types"
)

// maxBlobSize bounds strings and binaries stored anywhere in a table.
const maxBlobSize = column.MaxStringSize

// LinkType selects what happens to a target row when its last link goes.
type LinkType int

const (
	// LinkWeak links leave the target alone.
	LinkWeak LinkType = iota
	// LinkStrong links own their target: a row that loses its last strong
	// backlink is removed as well.
	LinkStrong
)

type subtableKey struct {
	col int
	row int
}

// Table is an accessor for a group-level table, a subtable stored in a
// subtable column, or a subtable stored in a mixed cell.
//
// An accessor stays valid across snapshot changes as long as its table
// exists: the group re-attaches it to the new refs. Once detached, every
// method fails with DETACHED_ACCESSOR and IsAttached reports false.
type Table struct {
	group *Group
	alloc alloc.Allocator

	// top is the [spec, columns] node; nil for subtables of a subtable
	// column, whose spec lives in the parent spec.
	top     *array.Array
	spec    *Spec
	columns *array.Array
	cols    []column.Column

	ndx       int
	parent    *Table
	parentCol int
	parentRow int

	attached bool
	version  uint64

	rows      []weak.Pointer[Row]
	linkViews []weak.Pointer[LinkView]
	subtables map[subtableKey]weak.Pointer[Table]
}

func newTableAccessor(g *Group) *Table {
	return &Table{
		group:     g,
		alloc:     g.alloc,
		columns:   array.New(g.alloc),
		ndx:       -1,
		subtables: make(map[subtableKey]weak.Pointer[Table]),
	}
}

func newGroupTable(g *Group, ndx int) *Table {
	t := newTableAccessor(g)
	t.ndx = ndx
	t.top = array.New(g.alloc)
	t.spec = newSpec(g.alloc)
	t.attachFromParent()
	return t
}

// createTableTop allocates an empty [spec, columns] table.
func createTableTop(a alloc.Allocator) primitives.Ref {
	top := array.CreateArray(a, array.TypeHasRefs, false, 0, 0)
	top.Add(int64(createSpec(a)))
	top.Add(int64(array.CreateArray(a, array.TypeHasRefs, false, 0, 0).Ref()))
	return top.Ref()
}

// createColumnsArray allocates the columns of a subtable with size rows.
// Subtable columns never carry search indexes.
func createColumnsArray(a alloc.Allocator, spec *Spec, size int) primitives.Ref {
	cols := array.CreateArray(a, array.TypeHasRefs, false, 0, 0)
	for col := 0; col < spec.ColumnCount(); col++ {
		cols.Add(int64(createColumnRoot(a, spec, col, size)))
	}
	return cols.Ref()
}

// columnsSize returns the row count of the columns array at ref.
func columnsSize(a alloc.Allocator, spec *Spec, ref primitives.Ref) int {
	if ref == 0 || spec.ColumnCount() == 0 {
		return 0
	}
	cols := array.New(a)
	cols.InitFromRef(ref)
	c := newColumnAccessor(a, spec, 0)
	c.SetParent(cols, 0)
	c.UpdateFromParent()
	return c.Size()
}

func createColumnRoot(a alloc.Allocator, spec *Spec, col, size int) primitives.Ref {
	nullable := spec.ColumnAttr(col).Has(primitives.ColAttrNullable)
	switch typ := spec.ColumnType(col); typ {
	case primitives.ColTypeInt, primitives.ColTypeBool:
		return column.CreateIntColumn(a, typ, nullable, size).Ref()
	case primitives.ColTypeLink:
		return column.CreateIntColumn(a, typ, false, size).Ref()
	case primitives.ColTypeFloat:
		return column.CreateFloatColumn(a, nullable, size).Ref()
	case primitives.ColTypeDouble:
		return column.CreateDoubleColumn(a, nullable, size).Ref()
	case primitives.ColTypeString:
		return column.CreateStringColumn(a, nullable, size).Ref()
	case primitives.ColTypeBinary:
		return column.CreateBinaryColumn(a, nullable, size).Ref()
	case primitives.ColTypeTimestamp:
		return column.CreateTimestampColumn(a, nullable, size).Ref()
	case primitives.ColTypeMixed:
		return newMixedColumn(a).create(size)
	default:
		rc := newRefColumn(a)
		return rc.create(size)
	}
}

func newColumnAccessor(a alloc.Allocator, spec *Spec, col int) column.Column {
	nullable := spec.ColumnAttr(col).Has(primitives.ColAttrNullable)
	switch typ := spec.ColumnType(col); typ {
	case primitives.ColTypeInt, primitives.ColTypeBool:
		return column.NewIntColumn(a, typ, nullable)
	case primitives.ColTypeFloat:
		return column.NewFloatColumn(a, nullable)
	case primitives.ColTypeDouble:
		return column.NewDoubleColumn(a, nullable)
	case primitives.ColTypeString:
		return column.NewStringColumn(a, nullable)
	case primitives.ColTypeBinary:
		return column.NewBinaryColumn(a, nullable)
	case primitives.ColTypeStringEnum:
		keys := column.NewStringColumn(a, true)
		keys.SetParent(spec.enumKeys, col)
		keys.UpdateFromParent()
		return column.NewStringEnumColumn(a, keys, nullable)
	case primitives.ColTypeTimestamp:
		return column.NewTimestampColumn(a, nullable)
	case primitives.ColTypeLink:
		return newLinkColumn(a)
	case primitives.ColTypeLinkList:
		return newLinkListColumn(a)
	case primitives.ColTypeBackLink:
		return newBacklinkColumn(a)
	case primitives.ColTypeTable:
		return newSubtableColumn(a, spec, col)
	default:
		return newMixedColumn(a)
	}
}

// bindParent points the root node of the table at the cell that stores it.
func (t *Table) bindParent() {
	switch {
	case t.parent == nil:
		t.top.SetParent(t.group.tables, t.ndx)
	case t.top == nil:
		sc := t.parent.cols[t.parentCol].(*SubtableColumn)
		t.spec = t.parent.spec.subspec(t.parentCol)
		t.columns.SetParent(sc.cells(), t.parentRow)
	default:
		mc := t.parent.cols[t.parentCol].(*MixedColumn)
		t.top.SetParent(mc.subtableCells(), t.parentRow)
	}
}

// attachFromParent re-reads every ref of the table and rebuilds the column
// accessors. It runs after any snapshot change and after the parent moved
// the table.
func (t *Table) attachFromParent() {
	t.bindParent()
	if t.top != nil {
		t.top.InitFromParent()
		t.spec.setParent(t.top, 0)
		t.spec.initFromParent()
		t.columns.SetParent(t.top, 1)
	}
	if t.top == nil && t.columns.RefFromParent() == 0 {
		t.cols = nil
	} else {
		t.columns.InitFromParent()
		t.refreshColumns()
	}
	t.attached = true
	t.reattachSubtables()
}

// isDegenerate reports a subtable whose columns were never allocated.
func (t *Table) isDegenerate() bool {
	return t.top == nil && t.cols == nil
}

// instantiate allocates the columns of a degenerate subtable.
func (t *Table) instantiate() {
	if !t.isDegenerate() {
		return
	}
	ref := createColumnsArray(t.alloc, t.spec, 0)
	t.columns.Parent().UpdateChildRef(t.parentRow, ref)
	t.columns.InitFromParent()
	t.refreshColumns()
}

func (t *Table) refreshColumns() {
	n := t.spec.ColumnCount()
	cols := make([]column.Column, n)
	slot := 0
	for i := 0; i < n; i++ {
		c := newColumnAccessor(t.alloc, t.spec, i)
		c.SetParent(t.columns, slot)
		c.UpdateFromParent()
		if t.spec.ColumnAttr(i).Has(primitives.ColAttrIndexed) {
			if x, ok := c.(column.Indexed); ok {
				x.AttachSearchIndex()
			}
			slot++
		}
		slot++
		cols[i] = c
	}
	t.cols = cols
}

func (t *Table) reattachSubtables() {
	for key, wp := range t.subtables {
		s := wp.Value()
		if s == nil || !s.attached {
			delete(t.subtables, key)
			continue
		}
		if !t.cellHoldsSubtable(key.col, key.row) {
			s.detach()
			delete(t.subtables, key)
			continue
		}
		s.attachFromParent()
	}
}

// cellHoldsSubtable tells whether (col, row) can still back a subtable
// accessor.
func (t *Table) cellHoldsSubtable(col, row int) bool {
	if col >= len(t.cols) || row >= t.Size() {
		return false
	}
	switch c := t.cols[col].(type) {
	case *SubtableColumn:
		return true
	case *MixedColumn:
		return c.subtableRef(row) != 0
	}
	return false
}

// detach invalidates the accessor and everything hanging off it.
func (t *Table) detach() {
	if !t.attached {
		return
	}
	t.attached = false
	t.cols = nil
	for _, wp := range t.rows {
		if r := wp.Value(); r != nil {
			r.table = nil
		}
	}
	t.rows = nil
	for _, wp := range t.linkViews {
		if lv := wp.Value(); lv != nil {
			lv.origin = nil
		}
	}
	t.linkViews = nil
	for key, wp := range t.subtables {
		if s := wp.Value(); s != nil {
			s.detach()
		}
		delete(t.subtables, key)
	}
}

// IsAttached reports whether the accessor still refers to a live table.
func (t *Table) IsAttached() bool {
	return t != nil && t.attached
}

// GetIndexInGroup returns the position of a group-level table, or NPos for
// subtables.
func (t *Table) GetIndexInGroup() int {
	if t.parent != nil {
		return primitives.NPos
	}
	return t.ndx
}

// Parent returns the table owning a subtable and the cell it lives in.
// A group-level table has no parent.
func (t *Table) Parent() (*Table, int, int) {
	return t.parent, t.parentCol, t.parentRow
}

// Group returns the group the table belongs to.
func (t *Table) Group() *Group {
	return t.group
}

// Name returns the name of a group-level table; subtables have none.
func (t *Table) Name() string {
	if t.parent != nil || !t.attached {
		return ""
	}
	return t.group.TableName(t.ndx)
}

// Version increases whenever the table or one of its subtables changes.
// Table views compare it to detect that they are out of sync.
func (t *Table) Version() uint64 {
	return t.version
}

func (t *Table) bumpVersion() {
	for x := t; x != nil; x = x.parent {
		x.version++
	}
}

// root returns the group-level table of a subtable and the cell of that
// table the subtable hangs from.
func (t *Table) root() (*Table, int, int) {
	col, row := t.parentCol, t.parentRow
	x := t
	for x.parent != nil {
		col, row = x.parentCol, x.parentRow
		x = x.parent
	}
	return x, col, row
}

// record appends a changeset instruction when the group records one.
// Changes inside subtables are reported against the cell of the
// group-level table that owns them.
func (t *Table) record(in log.Instruction) {
	t.bumpVersion()
	enc := t.group.recorder
	if enc == nil {
		return
	}
	if t.parent != nil {
		r, col, row := t.root()
		in = log.Instruction{Type: log.SubtableChanged, Table: r.ndx, Col: col, Row: row}
	} else {
		in.Table = t.ndx
	}
	enc.Append(in)
}

func (t *Table) checkAttached(op string) error {
	if !t.IsAttached() {
		return dberr.From(dberr.ErrDetachedAccessor).In(op, "Table")
	}
	return nil
}

func (t *Table) checkWritable(op string) error {
	if err := t.checkAttached(op); err != nil {
		return err
	}
	if t.group.readOnly {
		return dberr.From(dberr.ErrReadOnly).In(op, "Table")
	}
	return nil
}

func (t *Table) checkColumn(op string, col int) error {
	if err := t.checkAttached(op); err != nil {
		return err
	}
	if n := t.spec.PublicColumnCount(); col < 0 || col >= n {
		return dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("column %d of %d", col, n).In(op, "Table")
	}
	return nil
}

func (t *Table) checkRow(op string, row int) error {
	if n := t.Size(); row < 0 || row >= n {
		return dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("row %d of %d", row, n).In(op, "Table")
	}
	return nil
}

// checkCell validates a cell access against the expected public types.
func (t *Table) checkCell(op string, col, row int, want ...types.DataType) error {
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	if len(want) > 0 {
		got := t.spec.PublicColumnType(col)
		ok := false
		for _, w := range want {
			ok = ok || got == w
		}
		if !ok {
			return dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", col, got).In(op, "Table")
		}
	}
	return t.checkRow(op, row)
}

// ColumnCount returns the number of public columns.
func (t *Table) ColumnCount() int {
	if !t.IsAttached() {
		return 0
	}
	return t.spec.PublicColumnCount()
}

func (t *Table) ColumnName(col int) (string, error) {
	if err := t.checkColumn("ColumnName", col); err != nil {
		return "", err
	}
	return t.spec.ColumnName(col), nil
}

func (t *Table) ColumnType(col int) (types.DataType, error) {
	if err := t.checkColumn("ColumnType", col); err != nil {
		return 0, err
	}
	return t.spec.PublicColumnType(col), nil
}

// ColumnIndex returns the column called name, or NotFound.
func (t *Table) ColumnIndex(name string) int {
	if !t.IsAttached() {
		return primitives.NotFound
	}
	return t.spec.ColumnIndex(name)
}

func (t *Table) IsNullable(col int) (bool, error) {
	if err := t.checkColumn("IsNullable", col); err != nil {
		return false, err
	}
	return t.spec.ColumnAttr(col).Has(primitives.ColAttrNullable), nil
}

// LinkTarget returns the table a link or link list column points to.
func (t *Table) LinkTarget(col int) (*Table, error) {
	if err := t.checkColumn("LinkTarget", col); err != nil {
		return nil, err
	}
	if !t.spec.isLinkColumn(col) {
		return nil, dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is not a link column", col).In("LinkTarget", "Table")
	}
	return t.group.tableAt(t.spec.LinkTarget(col)), nil
}

// Spec exposes the schema accessor of the table.
func (t *Table) Spec() *Spec {
	return t.spec
}

// AddColumn appends a column and returns its index.
func (t *Table) AddColumn(typ types.DataType, name string, nullable bool) (int, error) {
	col := t.ColumnCount()
	if err := t.InsertColumn(col, typ, name, nullable); err != nil {
		return primitives.NPos, err
	}
	return col, nil
}

// InsertColumn inserts a non-link column at col. Subtables of a subtable
// column share their schema, which is changed through Descriptor instead.
func (t *Table) InsertColumn(col int, typ types.DataType, name string, nullable bool) error {
	const op = "InsertColumn"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if n := t.spec.PublicColumnCount(); col < 0 || col > n {
		return dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("column %d of %d", col, n).In(op, "Table")
	}
	if !types.IsValidColumnType(typ) || typ == types.Link || typ == types.LinkList {
		return dberr.From(dberr.ErrIllegalType).WithDetail("%s", typ).In(op, "Table")
	}
	if nullable && (typ == types.Table || typ == types.MixedType) {
		return dberr.From(dberr.ErrIllegalCombination).WithDetail("%s columns cannot be nullable", typ).In(op, "Table")
	}
	attr := primitives.ColAttrNone
	if nullable {
		attr |= primitives.ColAttrNullable
	}
	t.insertColumnRaw(col, typ, name, attr)
	t.record(log.Instruction{Type: log.InsertColumn, Col: col, Name: name, ColType: typ, Nullable: nullable})
	return nil
}

func (t *Table) checkSchemaChange(op string) error {
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if t.parent != nil && t.top == nil {
		return dberr.From(dberr.ErrWrongKindOfTable).WithDetail("subtable schema is shared, use its descriptor").In(op, "Table")
	}
	return nil
}

func (t *Table) insertColumnRaw(col int, typ types.DataType, name string, attr primitives.ColumnAttr) {
	size := t.Size()
	t.spec.insertColumn(col, typ, name, attr)
	t.columns.Insert(t.spec.columnSlot(col), int64(createColumnRoot(t.alloc, t.spec, col, size)))
	if t.parent == nil {
		t.group.adjustOriginColumns(t.ndx, func(c int) int {
			if c >= col {
				return c + 1
			}
			return c
		})
	}
	t.onColumnInserted(col)
}

// AddColumnLink appends a link or link list column pointing at target. A
// hidden backlink column is added to target.
func (t *Table) AddColumnLink(typ types.DataType, name string, target *Table, linkType LinkType) (int, error) {
	const op = "AddColumnLink"
	if err := t.checkWritable(op); err != nil {
		return primitives.NPos, err
	}
	if typ != types.Link && typ != types.LinkList {
		return primitives.NPos, dberr.From(dberr.ErrIllegalType).WithDetail("%s is not a link type", typ).In(op, "Table")
	}
	if t.parent != nil || !target.IsAttached() || target.parent != nil || target.group != t.group {
		return primitives.NPos, dberr.From(dberr.ErrWrongKindOfTable).WithDetail("links connect group-level tables of one group").In(op, "Table")
	}
	attr := primitives.ColAttrNone
	if linkType == LinkStrong {
		attr |= primitives.ColAttrStrongLinks
	}
	col := t.spec.PublicColumnCount()
	size := t.Size()
	t.spec.insertColumn(col, typ, name, attr)
	t.spec.setLinkTarget(col, target.ndx)
	t.columns.Insert(t.spec.columnSlot(col), int64(createColumnRoot(t.alloc, t.spec, col, size)))
	t.group.adjustOriginColumns(t.ndx, func(c int) int {
		if c >= col {
			return c + 1
		}
		return c
	})
	t.onColumnInserted(col)

	target.addBacklinkColumn(t.ndx, col)
	t.record(log.Instruction{Type: log.InsertColumn, Col: col, Name: name, ColType: typ, LinkTarget: target.ndx})
	return col, nil
}

func (t *Table) addBacklinkColumn(originTable, originCol int) {
	col := t.spec.ColumnCount()
	size := t.Size()
	t.spec.insertColumn(col, primitives.ColTypeBackLink, "", primitives.ColAttrNone)
	t.spec.setBacklinkOrigin(col, originTable, originCol)
	t.columns.Insert(t.spec.columnSlot(col), int64(createColumnRoot(t.alloc, t.spec, col, size)))
	t.refreshColumns()
	t.reattachSubtables()
	t.bumpVersion()
}

// RemoveColumn removes col. Removing a link column also removes the
// backlinks it maintained in the target table.
func (t *Table) RemoveColumn(col int) error {
	const op = "RemoveColumn"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	typ := t.spec.ColumnType(col)
	target := primitives.NPos
	if t.spec.isLinkColumn(col) {
		target = t.spec.LinkTarget(col)
		tt := t.group.tableAt(target)
		tt.removeColumnRaw(tt.spec.findBacklinkColumn(t.ndx, col))
	}
	t.removeColumnRaw(col)
	if t.parent == nil {
		t.group.adjustOriginColumns(t.ndx, func(c int) int {
			if c > col {
				return c - 1
			}
			return c
		})
	}
	t.record(log.Instruction{Type: log.EraseColumn, Col: col, ColType: typ, LinkTarget: target})
	return nil
}

func (t *Table) removeColumnRaw(col int) {
	slot := t.spec.columnSlot(col)
	if x, ok := t.cols[col].(column.Indexed); ok && x.HasSearchIndex() {
		x.DestroySearchIndex()
		t.columns.Erase(slot + 1)
	}
	t.cols[col].Destroy()
	t.columns.Erase(slot)
	t.spec.eraseColumn(col)
	t.onColumnErased(col)
}

func (t *Table) RenameColumn(col int, name string) error {
	const op = "RenameColumn"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	t.spec.renameColumn(col, name)
	t.record(log.Instruction{Type: log.RenameColumn, Col: col, Name: name})
	return nil
}

func (t *Table) HasSearchIndex(col int) (bool, error) {
	if err := t.checkColumn("HasSearchIndex", col); err != nil {
		return false, err
	}
	return t.spec.ColumnAttr(col).Has(primitives.ColAttrIndexed), nil
}

// AddSearchIndex builds a search index for col. Adding an index twice is a
// no-op.
func (t *Table) AddSearchIndex(col int) error {
	const op = "AddSearchIndex"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	attr := t.spec.ColumnAttr(col)
	if attr.Has(primitives.ColAttrIndexed) {
		return nil
	}
	x, ok := t.cols[col].(column.Indexed)
	if !ok || !column.Supports(t.spec.ColumnType(col)) {
		return dberr.From(dberr.ErrIllegalType).WithDetail("cannot index %s column", t.spec.ColumnType(col)).In(op, "Table")
	}
	idx := x.CreateSearchIndex()
	if idx == nil {
		return dberr.From(dberr.ErrIllegalType).WithDetail("cannot index %s column", t.spec.ColumnType(col)).In(op, "Table")
	}
	t.columns.Insert(t.spec.columnSlot(col)+1, int64(idx.Ref()))
	t.spec.setColumnAttr(col, attr|primitives.ColAttrIndexed)
	t.refreshColumns()
	t.reattachSubtables()
	t.record(log.Instruction{Type: log.AddSearchIndex, Col: col})
	return nil
}

func (t *Table) RemoveSearchIndex(col int) error {
	const op = "RemoveSearchIndex"
	if err := t.checkSchemaChange(op); err != nil {
		return err
	}
	if err := t.checkColumn(op, col); err != nil {
		return err
	}
	attr := t.spec.ColumnAttr(col)
	if !attr.Has(primitives.ColAttrIndexed) {
		return nil
	}
	t.cols[col].(column.Indexed).DestroySearchIndex()
	t.columns.Erase(t.spec.columnSlot(col) + 1)
	t.spec.setColumnAttr(col, attr&^(primitives.ColAttrIndexed|primitives.ColAttrUnique))
	t.refreshColumns()
	t.reattachSubtables()
	t.record(log.Instruction{Type: log.RemoveSearchIndex, Col: col})
	return nil
}

// searchIndexOf returns the index of col, or nil.
func (t *Table) searchIndexOf(col int) column.Indexed {
	if x, ok := t.cols[col].(column.Indexed); ok && x.HasSearchIndex() {
		return x
	}
	return nil
}

// onColumnInserted shifts column-keyed accessors after a column insert.
func (t *Table) onColumnInserted(col int) {
	t.shiftColumnAccessors(func(c int) int {
		if c >= col {
			return c + 1
		}
		return c
	})
	t.refreshColumns()
	t.reattachSubtables()
}

func (t *Table) onColumnErased(col int) {
	t.shiftColumnAccessors(func(c int) int {
		switch {
		case c == col:
			return -1
		case c > col:
			return c - 1
		}
		return c
	})
	t.refreshColumns()
	t.reattachSubtables()
}

func (t *Table) shiftColumnAccessors(fn func(int) int) {
	live := t.linkViews[:0]
	for _, wp := range t.linkViews {
		lv := wp.Value()
		if lv == nil || lv.origin == nil {
			continue
		}
		if nc := fn(lv.col); nc < 0 {
			lv.origin = nil
			continue
		} else {
			lv.col = nc
		}
		live = append(live, wp)
	}
	t.linkViews = live

	moved := make(map[subtableKey]weak.Pointer[Table], len(t.subtables))
	for key, wp := range t.subtables {
		s := wp.Value()
		if s == nil {
			continue
		}
		nc := fn(key.col)
		if nc < 0 {
			s.detach()
			continue
		}
		s.parentCol = nc
		moved[subtableKey{col: nc, row: key.row}] = wp
	}
	t.subtables = moved
}

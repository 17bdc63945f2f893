package database

import (
	"weak"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// bytesColumn is implemented by string, binary and enumerated string
// columns.
type bytesColumn interface {
	Get(row int) []byte
	Set(row int, v []byte) error
}

func (t *Table) intColumn(col int) *column.IntColumn {
	return t.cols[col].(*column.IntColumn)
}

func (t *Table) recordSet(col, row int, v types.Mixed) {
	t.record(log.Instruction{Type: log.SetValue, Col: col, Row: row, Value: v})
}

// Get returns any cell as a Mixed. Link lists report their length and
// subtables report only their type.
func (t *Table) Get(col, row int) (types.Mixed, error) {
	if err := t.checkCell("Get", col, row); err != nil {
		return types.NullMixed(), err
	}
	return t.cols[col].Value(row), nil
}

// Set writes v into a cell of a scalar column. The type of v must match
// the column, except that Int values are accepted by Bool columns and null
// is accepted by nullable columns.
func (t *Table) Set(col, row int, v types.Mixed) error {
	const op = "Set"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row); err != nil {
		return err
	}
	if v.IsNull() {
		return t.SetNull(col, row)
	}
	switch typ := t.spec.PublicColumnType(col); {
	case typ == types.Int && v.Type() == types.Int:
		return t.SetInt(col, row, v.Int())
	case typ == types.Bool && (v.Type() == types.Bool || v.Type() == types.Int):
		return t.SetBool(col, row, v.Int() != 0)
	case typ == types.Float && v.Type() == types.Float:
		return t.SetFloat(col, row, v.Float())
	case typ == types.Double && (v.Type() == types.Double || v.Type() == types.Float):
		return t.SetDouble(col, row, v.Double())
	case typ == types.String && v.Type() == types.String:
		return t.SetString(col, row, v.Str())
	case typ == types.Binary && v.Type() == types.Binary:
		return t.SetBinary(col, row, v.Bytes())
	case typ == types.Timestamp && v.Type() == types.Timestamp:
		return t.SetTimestamp(col, row, v.Timestamp())
	case typ == types.MixedType:
		return t.SetMixed(col, row, v)
	case typ == types.Link && v.Type() == types.Link:
		return t.SetLink(col, row, int(v.Int()))
	default:
		return dberr.From(dberr.ErrTypeMismatch).WithDetail("%s value for %s column", v.Type(), typ).In(op, "Table")
	}
}

func (t *Table) IsNull(col, row int) (bool, error) {
	if err := t.checkCell("IsNull", col, row); err != nil {
		return false, err
	}
	return t.cols[col].IsNull(row), nil
}

// SetNull clears a cell. Non-nullable columns fail with
// COLUMN_NOT_NULLABLE; a link is nullified.
func (t *Table) SetNull(col, row int) error {
	const op = "SetNull"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row); err != nil {
		return err
	}
	switch t.spec.ColumnType(col) {
	case primitives.ColTypeLink:
		return t.NullifyLink(col, row)
	case primitives.ColTypeMixed:
		t.dropSubtableAccessor(col, row)
	}
	if err := t.cols[col].SetNull(row); err != nil {
		return err
	}
	t.recordSet(col, row, types.NullMixed())
	return nil
}

func (t *Table) GetInt(col, row int) (int64, error) {
	if err := t.checkCell("GetInt", col, row, types.Int); err != nil {
		return 0, err
	}
	return t.intColumn(col).Get(row), nil
}

func (t *Table) SetInt(col, row int, v int64) error {
	const op = "SetInt"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Int); err != nil {
		return err
	}
	t.intColumn(col).Set(row, v)
	t.recordSet(col, row, types.MixedInt(v))
	return nil
}

// AddInt adds diff to a non-null integer cell.
func (t *Table) AddInt(col, row int, diff int64) error {
	const op = "AddInt"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Int); err != nil {
		return err
	}
	c := t.intColumn(col)
	c.Adjust(row, diff)
	t.recordSet(col, row, c.Value(row))
	return nil
}

// SetIntUnique sets v only if no other row holds it. The column needs a
// search index.
func (t *Table) SetIntUnique(col, row int, v int64) error {
	const op = "SetIntUnique"
	if err := t.checkCell(op, col, row, types.Int); err != nil {
		return err
	}
	if err := t.checkUnique(op, col, row, index.IntKey(v)); err != nil {
		return err
	}
	return t.SetInt(col, row, v)
}

// SetStringUnique is SetIntUnique for string columns.
func (t *Table) SetStringUnique(col, row int, v string) error {
	const op = "SetStringUnique"
	if err := t.checkCell(op, col, row, types.String); err != nil {
		return err
	}
	if err := t.checkUnique(op, col, row, index.StringKey([]byte(v))); err != nil {
		return err
	}
	return t.SetString(col, row, v)
}

func (t *Table) checkUnique(op string, col, row int, key index.Key) error {
	x := t.searchIndexOf(col)
	if x == nil {
		return dberr.From(dberr.ErrNoSearchIndex).WithDetail("column %d", col).In(op, "Table")
	}
	for _, r := range x.SearchIndex().FindAll(key) {
		if r != row {
			return dberr.From(dberr.ErrUniqueConstraint).WithDetail("value already in row %d", r).In(op, "Table")
		}
	}
	return nil
}

func (t *Table) GetBool(col, row int) (bool, error) {
	if err := t.checkCell("GetBool", col, row, types.Bool); err != nil {
		return false, err
	}
	return t.intColumn(col).Get(row) != 0, nil
}

func (t *Table) SetBool(col, row int, v bool) error {
	const op = "SetBool"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Bool); err != nil {
		return err
	}
	t.intColumn(col).Set(row, int64(boolToInt(v)))
	t.recordSet(col, row, types.MixedBool(v))
	return nil
}

func (t *Table) GetFloat(col, row int) (float32, error) {
	if err := t.checkCell("GetFloat", col, row, types.Float); err != nil {
		return 0, err
	}
	return t.cols[col].(*column.FloatColumn).Get(row), nil
}

func (t *Table) SetFloat(col, row int, v float32) error {
	const op = "SetFloat"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Float); err != nil {
		return err
	}
	t.cols[col].(*column.FloatColumn).Set(row, v)
	t.recordSet(col, row, types.MixedFloat(v))
	return nil
}

func (t *Table) GetDouble(col, row int) (float64, error) {
	if err := t.checkCell("GetDouble", col, row, types.Double); err != nil {
		return 0, err
	}
	return t.cols[col].(*column.DoubleColumn).Get(row), nil
}

func (t *Table) SetDouble(col, row int, v float64) error {
	const op = "SetDouble"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Double); err != nil {
		return err
	}
	t.cols[col].(*column.DoubleColumn).Set(row, v)
	t.recordSet(col, row, types.MixedDouble(v))
	return nil
}

// GetString returns the string in a cell; null reads as "".
func (t *Table) GetString(col, row int) (string, error) {
	if err := t.checkCell("GetString", col, row, types.String); err != nil {
		return "", err
	}
	return string(t.cols[col].(bytesColumn).Get(row)), nil
}

func (t *Table) SetString(col, row int, v string) error {
	const op = "SetString"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.String); err != nil {
		return err
	}
	if len(v) > maxBlobSize {
		return dberr.From(dberr.ErrStringTooBig).WithDetail("%d bytes", len(v)).In(op, "Table")
	}
	if err := t.cols[col].(bytesColumn).Set(row, []byte(v)); err != nil {
		return err
	}
	t.recordSet(col, row, types.MixedString(v))
	return nil
}

// GetBinary returns a copy of a binary cell; null reads as nil.
func (t *Table) GetBinary(col, row int) ([]byte, error) {
	if err := t.checkCell("GetBinary", col, row, types.Binary); err != nil {
		return nil, err
	}
	return cloneBlob(t.cols[col].(bytesColumn).Get(row)), nil
}

// SetBinary writes v; nil stores null.
func (t *Table) SetBinary(col, row int, v []byte) error {
	const op = "SetBinary"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Binary); err != nil {
		return err
	}
	if err := t.cols[col].(bytesColumn).Set(row, v); err != nil {
		return err
	}
	t.recordSet(col, row, types.MixedBinary(v))
	return nil
}

func (t *Table) GetTimestamp(col, row int) (types.TimestampValue, error) {
	if err := t.checkCell("GetTimestamp", col, row, types.Timestamp); err != nil {
		return types.NullTimestamp(), err
	}
	return t.cols[col].(*column.TimestampColumn).Get(row), nil
}

func (t *Table) SetTimestamp(col, row int, v types.TimestampValue) error {
	const op = "SetTimestamp"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Timestamp); err != nil {
		return err
	}
	if err := t.cols[col].(*column.TimestampColumn).Set(row, v); err != nil {
		return err
	}
	t.recordSet(col, row, types.MixedTimestamp(v))
	return nil
}

func (t *Table) GetMixed(col, row int) (types.Mixed, error) {
	if err := t.checkCell("GetMixed", col, row, types.MixedType); err != nil {
		return types.NullMixed(), err
	}
	return t.cols[col].Value(row), nil
}

// GetMixedType returns the type held by a mixed cell; ok is false for null.
func (t *Table) GetMixedType(col, row int) (typ types.DataType, ok bool, err error) {
	if err := t.checkCell("GetMixedType", col, row, types.MixedType); err != nil {
		return 0, false, err
	}
	typ, ok = t.cols[col].(*MixedColumn).CellType(row)
	return typ, ok, nil
}

// SetMixed stores v. A Table value installs a new empty subtable, reached
// through GetSubtable.
func (t *Table) SetMixed(col, row int, v types.Mixed) error {
	const op = "SetMixed"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.MixedType); err != nil {
		return err
	}
	t.dropSubtableAccessor(col, row)
	if err := t.cols[col].(*MixedColumn).Set(row, v); err != nil {
		return err
	}
	t.recordSet(col, row, v)
	return nil
}

func (t *Table) dropSubtableAccessor(col, row int) {
	key := subtableKey{col: col, row: row}
	if wp, ok := t.subtables[key]; ok {
		if s := wp.Value(); s != nil {
			s.detach()
		}
		delete(t.subtables, key)
	}
}

// GetLink returns the target row of a link cell, or NPos when null.
func (t *Table) GetLink(col, row int) (int, error) {
	if err := t.checkCell("GetLink", col, row, types.Link); err != nil {
		return primitives.NPos, err
	}
	return t.cols[col].(*LinkColumn).Link(row), nil
}

func (t *Table) IsNullLink(col, row int) (bool, error) {
	tg, err := t.GetLink(col, row)
	return tg < 0, err
}

// SetLink points a link cell at target. If the previous target was held
// only by this strong link, it is removed.
func (t *Table) SetLink(col, row, target int) error {
	const op = "SetLink"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Link); err != nil {
		return err
	}
	tt := t.group.tableAt(t.spec.LinkTarget(col))
	if target < 0 || target >= tt.Size() {
		return dberr.From(dberr.ErrTargetRowOutOfRange).WithDetail("row %d of %d", target, tt.Size()).In(op, "Table")
	}
	t.setLinkRaw(col, row, target)
	return nil
}

// NullifyLink clears a link cell.
func (t *Table) NullifyLink(col, row int) error {
	const op = "NullifyLink"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Link); err != nil {
		return err
	}
	t.setLinkRaw(col, row, -1)
	return nil
}

func (t *Table) setLinkRaw(col, row, target int) {
	c := t.cols[col].(*LinkColumn)
	old := c.Link(row)
	if old == target {
		return
	}
	tt := t.group.tableAt(t.spec.LinkTarget(col))
	bl := tt.cols[tt.spec.findBacklinkColumn(t.ndx, col)].(*BacklinkColumn)
	if old >= 0 {
		bl.removeOneBacklink(old, row)
	}
	c.setLink(row, target)
	if target >= 0 {
		bl.addBacklink(target, row)
	}
	tt.bumpVersion()
	t.recordSet(col, row, types.MixedLink(int64(target)))
	if old >= 0 && t.spec.ColumnAttr(col).Has(primitives.ColAttrStrongLinks) {
		t.group.removeOrphan(tt, old)
	}
}

// GetLinkList returns an accessor for the link list in a cell.
func (t *Table) GetLinkList(col, row int) (*LinkView, error) {
	if err := t.checkCell("GetLinkList", col, row, types.LinkList); err != nil {
		return nil, err
	}
	for _, wp := range t.linkViews {
		if lv := wp.Value(); lv != nil && lv.origin != nil && lv.col == col && lv.row == row {
			return lv, nil
		}
	}
	lv := &LinkView{origin: t, col: col, row: row}
	t.linkViews = appendWeak(t.linkViews, lv)
	return lv, nil
}

// GetBacklinkCount returns how many links from originCol of origin point
// at row.
func (t *Table) GetBacklinkCount(row int, origin *Table, originCol int) (int, error) {
	bl, err := t.backlinkColumn("GetBacklinkCount", row, origin, originCol)
	if err != nil {
		return 0, err
	}
	return bl.backlinkCount(row), nil
}

// GetBacklink returns the i'th origin row linking at row through originCol.
func (t *Table) GetBacklink(row int, origin *Table, originCol, i int) (int, error) {
	const op = "GetBacklink"
	bl, err := t.backlinkColumn(op, row, origin, originCol)
	if err != nil {
		return primitives.NPos, err
	}
	if n := bl.backlinkCount(row); i < 0 || i >= n {
		return primitives.NPos, dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("backlink %d of %d", i, n).In(op, "Table")
	}
	return bl.backlink(row, i), nil
}

func (t *Table) backlinkColumn(op string, row int, origin *Table, originCol int) (*BacklinkColumn, error) {
	if err := t.checkAttached(op); err != nil {
		return nil, err
	}
	if err := t.checkRow(op, row); err != nil {
		return nil, err
	}
	if !origin.IsAttached() || origin.parent != nil {
		return nil, dberr.From(dberr.ErrDetachedAccessor).WithDetail("origin table").In(op, "Table")
	}
	b := t.spec.findBacklinkColumn(origin.ndx, originCol)
	if b == primitives.NotFound || t.parent != nil {
		return nil, dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("no links from column %d of %q", originCol, origin.Name()).In(op, "Table")
	}
	return t.cols[b].(*BacklinkColumn), nil
}

// GetSubtable returns the subtable in a subtable column or in a mixed cell
// holding a table. Accessors are shared: asking twice for the same cell
// returns the same Table.
func (t *Table) GetSubtable(col, row int) (*Table, error) {
	const op = "GetSubtable"
	if err := t.checkCell(op, col, row, types.Table, types.MixedType); err != nil {
		return nil, err
	}
	if mc, ok := t.cols[col].(*MixedColumn); ok {
		if typ, ok := mc.CellType(row); !ok || typ != types.Table {
			return nil, dberr.From(dberr.ErrTypeMismatch).WithDetail("mixed cell does not hold a table").In(op, "Table")
		}
	}
	key := subtableKey{col: col, row: row}
	if wp, ok := t.subtables[key]; ok {
		if s := wp.Value(); s != nil && s.attached {
			return s, nil
		}
	}
	s := newTableAccessor(t.group)
	s.parent = t
	s.parentCol = col
	s.parentRow = row
	if t.spec.ColumnType(col) == primitives.ColTypeMixed {
		s.top = array.New(t.alloc)
		s.spec = newSpec(t.alloc)
	}
	s.attachFromParent()
	t.subtables[key] = weak.Make(s)
	return s, nil
}

// GetSubtableSize returns the row count of a subtable without keeping an
// accessor.
func (t *Table) GetSubtableSize(col, row int) (int, error) {
	if err := t.checkCell("GetSubtableSize", col, row, types.Table); err != nil {
		return 0, err
	}
	return t.cols[col].(*SubtableColumn).subtableSize(row), nil
}

// ClearSubtable empties the subtable in a cell. In a subtable column the
// cell goes back to the degenerate form; a mixed cell gets a fresh table.
func (t *Table) ClearSubtable(col, row int) error {
	const op = "ClearSubtable"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkCell(op, col, row, types.Table, types.MixedType); err != nil {
		return err
	}
	switch c := t.cols[col].(type) {
	case *SubtableColumn:
		if wp, ok := t.subtables[subtableKey{col: col, row: row}]; ok {
			if s := wp.Value(); s != nil {
				s.adjustRowAccessors(func(int) int { return -1 })
			}
		}
		c.clearSubtable(row)
		t.reattachSubtables()
		t.record(log.Instruction{Type: log.SubtableChanged, Col: col, Row: row})
	case *MixedColumn:
		return t.SetMixed(col, row, types.MixedSubtable())
	}
	return nil
}

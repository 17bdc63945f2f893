package database

import (
	dberr "colstore/pkg/error"
	"colstore/pkg/types"
)

// Row is an accessor bound to one row of a table. It follows the row when
// inserts, removals and swaps move it, and detaches when the row goes away.
type Row struct {
	table *Table
	row   int
}

// Row returns an accessor for row. Accessors for the same row are shared.
func (t *Table) Row(row int) (*Row, error) {
	const op = "Row"
	if err := t.checkAttached(op); err != nil {
		return nil, err
	}
	if err := t.checkRow(op, row); err != nil {
		return nil, err
	}
	for _, wp := range t.rows {
		if r := wp.Value(); r != nil && r.table == t && r.row == row {
			return r, nil
		}
	}
	r := &Row{table: t, row: row}
	t.rows = appendWeak(t.rows, r)
	return r, nil
}

func (r *Row) IsAttached() bool {
	return r.table != nil && r.table.IsAttached()
}

// Index returns the current position of the row.
func (r *Row) Index() int { return r.row }

// Table returns the table of the row, or nil once detached.
func (r *Row) Table() *Table {
	if !r.IsAttached() {
		return nil
	}
	return r.table
}

func (r *Row) tbl(op string) (*Table, error) {
	if !r.IsAttached() {
		return nil, dberr.From(dberr.ErrDetachedAccessor).In(op, "Row")
	}
	return r.table, nil
}

func (r *Row) Get(col int) (types.Mixed, error) {
	t, err := r.tbl("Get")
	if err != nil {
		return types.NullMixed(), err
	}
	return t.Get(col, r.row)
}

func (r *Row) Set(col int, v types.Mixed) error {
	t, err := r.tbl("Set")
	if err != nil {
		return err
	}
	return t.Set(col, r.row, v)
}

func (r *Row) IsNull(col int) (bool, error) {
	t, err := r.tbl("IsNull")
	if err != nil {
		return false, err
	}
	return t.IsNull(col, r.row)
}

func (r *Row) SetNull(col int) error {
	t, err := r.tbl("SetNull")
	if err != nil {
		return err
	}
	return t.SetNull(col, r.row)
}

func (r *Row) GetInt(col int) (int64, error) {
	t, err := r.tbl("GetInt")
	if err != nil {
		return 0, err
	}
	return t.GetInt(col, r.row)
}

func (r *Row) SetInt(col int, v int64) error {
	t, err := r.tbl("SetInt")
	if err != nil {
		return err
	}
	return t.SetInt(col, r.row, v)
}

func (r *Row) GetBool(col int) (bool, error) {
	t, err := r.tbl("GetBool")
	if err != nil {
		return false, err
	}
	return t.GetBool(col, r.row)
}

func (r *Row) SetBool(col int, v bool) error {
	t, err := r.tbl("SetBool")
	if err != nil {
		return err
	}
	return t.SetBool(col, r.row, v)
}

func (r *Row) GetFloat(col int) (float32, error) {
	t, err := r.tbl("GetFloat")
	if err != nil {
		return 0, err
	}
	return t.GetFloat(col, r.row)
}

func (r *Row) SetFloat(col int, v float32) error {
	t, err := r.tbl("SetFloat")
	if err != nil {
		return err
	}
	return t.SetFloat(col, r.row, v)
}

func (r *Row) GetDouble(col int) (float64, error) {
	t, err := r.tbl("GetDouble")
	if err != nil {
		return 0, err
	}
	return t.GetDouble(col, r.row)
}

func (r *Row) SetDouble(col int, v float64) error {
	t, err := r.tbl("SetDouble")
	if err != nil {
		return err
	}
	return t.SetDouble(col, r.row, v)
}

func (r *Row) GetString(col int) (string, error) {
	t, err := r.tbl("GetString")
	if err != nil {
		return "", err
	}
	return t.GetString(col, r.row)
}

func (r *Row) SetString(col int, v string) error {
	t, err := r.tbl("SetString")
	if err != nil {
		return err
	}
	return t.SetString(col, r.row, v)
}

func (r *Row) GetBinary(col int) ([]byte, error) {
	t, err := r.tbl("GetBinary")
	if err != nil {
		return nil, err
	}
	return t.GetBinary(col, r.row)
}

func (r *Row) SetBinary(col int, v []byte) error {
	t, err := r.tbl("SetBinary")
	if err != nil {
		return err
	}
	return t.SetBinary(col, r.row, v)
}

func (r *Row) GetTimestamp(col int) (types.TimestampValue, error) {
	t, err := r.tbl("GetTimestamp")
	if err != nil {
		return types.NullTimestamp(), err
	}
	return t.GetTimestamp(col, r.row)
}

func (r *Row) SetTimestamp(col int, v types.TimestampValue) error {
	t, err := r.tbl("SetTimestamp")
	if err != nil {
		return err
	}
	return t.SetTimestamp(col, r.row, v)
}

func (r *Row) GetLink(col int) (int, error) {
	t, err := r.tbl("GetLink")
	if err != nil {
		return 0, err
	}
	return t.GetLink(col, r.row)
}

func (r *Row) SetLink(col, target int) error {
	t, err := r.tbl("SetLink")
	if err != nil {
		return err
	}
	return t.SetLink(col, r.row, target)
}

func (r *Row) GetLinkList(col int) (*LinkView, error) {
	t, err := r.tbl("GetLinkList")
	if err != nil {
		return nil, err
	}
	return t.GetLinkList(col, r.row)
}

func (r *Row) GetSubtable(col int) (*Table, error) {
	t, err := r.tbl("GetSubtable")
	if err != nil {
		return nil, err
	}
	return t.GetSubtable(col, r.row)
}

// Remove erases the row with an ordered erase and detaches the accessor.
func (r *Row) Remove() error {
	t, err := r.tbl("Remove")
	if err != nil {
		return err
	}
	return t.Remove(r.row)
}

// MoveLastOver erases the row by moving the last row into its place.
func (r *Row) MoveLastOver() error {
	t, err := r.tbl("MoveLastOver")
	if err != nil {
		return err
	}
	return t.MoveLastOver(r.row)
}

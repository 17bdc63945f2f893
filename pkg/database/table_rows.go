package database

import (
	"slices"
	"weak"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
)

// Size returns the number of rows.
func (t *Table) Size() int {
	if !t.IsAttached() || len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Size()
}

func (t *Table) IsEmpty() bool {
	return t.Size() == 0
}

// AddEmptyRow appends a row of default values and returns its index.
func (t *Table) AddEmptyRow() (int, error) {
	return t.AddEmptyRows(1)
}

// AddEmptyRows appends n rows and returns the index of the first one.
func (t *Table) AddEmptyRows(n int) (int, error) {
	row := t.Size()
	if err := t.InsertEmptyRow(row, n); err != nil {
		return primitives.NPos, err
	}
	return row, nil
}

// InsertEmptyRow inserts n default rows before row. Rows at or after row,
// and every link pointing at them, move up by n.
func (t *Table) InsertEmptyRow(row, n int) error {
	const op = "InsertEmptyRow"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if t.spec.PublicColumnCount() == 0 {
		return dberr.From(dberr.ErrTableHasNoColumns).In(op, "Table")
	}
	size := t.Size()
	if row < 0 || row > size {
		return dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("row %d of %d", row, size).In(op, "Table")
	}
	if n < 0 || size+n > primitives.MaxRows {
		return dberr.From(dberr.ErrIllegalCombination).WithDetail("cannot insert %d rows", n).In(op, "Table")
	}
	if n == 0 {
		return nil
	}
	t.instantiate()
	t.insertRowsRaw(row, n, size)
	t.record(log.Instruction{Type: log.InsertRows, Row: row, N: n, PriorSize: size})
	return nil
}

func (t *Table) insertRowsRaw(row, n, prior int) {
	for _, c := range t.cols {
		c.InsertRows(row, n, prior)
	}
	if row == prior {
		return
	}
	shift := func(r int) int {
		if r >= row {
			return r + n
		}
		return r
	}
	t.adjustIncomingLinks(shift)
	t.adjustOutgoingLinks(shift)
	t.adjustRowAccessors(shift)
}

// Remove erases row, shifting the following rows down by one.
func (t *Table) Remove(row int) error {
	return t.eraseRow("Remove", row, false)
}

// RemoveLast erases the last row.
func (t *Table) RemoveLast() error {
	if t.IsEmpty() {
		return dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("table is empty").In("RemoveLast", "Table")
	}
	return t.eraseRow("RemoveLast", t.Size()-1, false)
}

// MoveLastOver erases row by moving the last row into its place.
func (t *Table) MoveLastOver(row int) error {
	return t.eraseRow("MoveLastOver", row, true)
}

func (t *Table) eraseRow(op string, row int, unordered bool) error {
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkRow(op, row); err != nil {
		return err
	}
	if !t.needsCascade() {
		t.eraseRowRaw(row, unordered)
		return nil
	}
	initial := CascadeRow{Table: t.ndx, Row: row}
	n := t.group.collectCascade([]CascadeRow{initial})
	t.group.notifyCascade(n)

	last := t.Size() - 1
	t.eraseRowRaw(row, unordered)
	extra := make([]CascadeRow, 0, len(n.Rows))
	for _, r := range n.Rows {
		if r == initial {
			continue
		}
		if r.Table == t.ndx {
			switch {
			case unordered && r.Row == last:
				r.Row = row
			case !unordered && r.Row > row:
				r.Row--
			}
		}
		extra = append(extra, r)
	}
	t.group.removeCascadedRows(extra)
	return nil
}

// needsCascade tells whether erasing rows must first compute the set of
// rows and links affected.
func (t *Table) needsCascade() bool {
	if t.parent != nil {
		return false
	}
	if t.group.cascadeHandler != nil {
		return true
	}
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		if t.spec.isLinkColumn(col) && t.spec.ColumnAttr(col).Has(primitives.ColAttrStrongLinks) {
			return true
		}
	}
	return false
}

// eraseRowRaw erases one row and keeps links, backlinks and accessors
// consistent. It does not cascade.
func (t *Table) eraseRowRaw(row int, unordered bool) {
	prior := t.Size()
	last := prior - 1
	t.breakLinks(row)
	for _, c := range t.cols {
		if unordered {
			c.MoveLastOver(row, last)
		} else {
			c.Erase(row, row == last)
		}
	}
	switch {
	case unordered:
		if row != last {
			t.relinkMovedRow(last, row)
		}
		t.adjustRowAccessors(func(r int) int {
			switch r {
			case row:
				return -1
			case last:
				return row
			}
			return r
		})
	default:
		shift := func(r int) int {
			switch {
			case r == row:
				return -1
			case r > row:
				return r - 1
			}
			return r
		}
		if row != last {
			t.adjustIncomingLinks(shift)
			t.adjustOutgoingLinks(shift)
		}
		t.adjustRowAccessors(shift)
	}
	t.record(log.Instruction{Type: log.EraseRows, Row: row, N: 1, PriorSize: prior, Unordered: unordered})
}

// SwapRows exchanges two rows, links included.
func (t *Table) SwapRows(a, b int) error {
	const op = "SwapRows"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if err := t.checkRow(op, a); err != nil {
		return err
	}
	if err := t.checkRow(op, b); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	for _, c := range t.cols {
		c.SwapRows(a, b)
	}
	swap := func(r int) int {
		switch r {
		case a:
			return b
		case b:
			return a
		}
		return r
	}
	t.adjustIncomingLinks(swap)
	t.adjustOutgoingLinks(swap)
	t.adjustRowAccessors(swap)
	t.record(log.Instruction{Type: log.SwapRows, Row: a, Row2: b})
	return nil
}

// Clear removes every row. Links into the table are nullified and rows
// only kept alive by strong links from this table are removed too.
func (t *Table) Clear() error {
	const op = "Clear"
	if err := t.checkWritable(op); err != nil {
		return err
	}
	if t.IsEmpty() {
		return nil
	}
	if !t.needsCascade() {
		t.clearRaw()
		return nil
	}
	initial := make([]CascadeRow, t.Size())
	for i := range initial {
		initial[i] = CascadeRow{Table: t.ndx, Row: i}
	}
	n := t.group.collectCascade(initial)
	t.group.notifyCascade(n)
	t.clearRaw()
	extra := make([]CascadeRow, 0, len(n.Rows))
	for _, r := range n.Rows {
		if r.Table != t.ndx {
			extra = append(extra, r)
		}
	}
	t.group.removeCascadedRows(extra)
	return nil
}

func (t *Table) clearRaw() {
	prior := t.Size()
	if t.parent == nil {
		drop := func(int) int { return -1 }
		t.adjustIncomingLinks(drop)
		t.adjustOutgoingLinks(drop)
	}
	for _, c := range t.cols {
		c.Clear()
	}
	t.adjustRowAccessors(func(int) int { return -1 })
	t.record(log.Instruction{Type: log.ClearTable, PriorSize: prior})
}

// forEachIncoming calls fn for every backlink column of t with the origin
// table and its link column.
func (t *Table) forEachIncoming(fn func(bl *BacklinkColumn, origin *Table, originCol int)) {
	if t.parent != nil {
		return
	}
	for col := t.spec.PublicColumnCount(); col < t.spec.ColumnCount(); col++ {
		ot, oc := t.spec.BacklinkOrigin(col)
		fn(t.cols[col].(*BacklinkColumn), t.group.tableAt(ot), oc)
	}
}

// forEachOutgoing calls fn for every link column of t with the backlink
// column that mirrors it in the target table.
func (t *Table) forEachOutgoing(fn func(col int, target *Table, bl *BacklinkColumn)) {
	if t.parent != nil {
		return
	}
	for col := 0; col < t.spec.PublicColumnCount(); col++ {
		if !t.spec.isLinkColumn(col) {
			continue
		}
		tt := t.group.tableAt(t.spec.LinkTarget(col))
		b := tt.spec.findBacklinkColumn(t.ndx, col)
		fn(col, tt, tt.cols[b].(*BacklinkColumn))
	}
}

// targets returns the rows linked from (col, row), in list order.
func (t *Table) targets(col, row int) []int {
	switch c := t.cols[col].(type) {
	case *LinkColumn:
		if tg := c.Link(row); tg >= 0 {
			return []int{tg}
		}
	case *LinkListColumn:
		return c.Links(row)
	}
	return nil
}

// adjustIncomingLinks rewrites, through fn, every link that points into t.
func (t *Table) adjustIncomingLinks(fn func(int) int) {
	t.forEachIncoming(func(_ *BacklinkColumn, ot *Table, oc int) {
		switch c := ot.cols[oc].(type) {
		case *LinkColumn:
			c.adjustTargets(fn)
		case *LinkListColumn:
			c.adjustTargets(fn)
		}
		ot.bumpVersion()
	})
}

// adjustOutgoingLinks rewrites, through fn, the origins recorded for t's
// rows in the backlink columns of target tables.
func (t *Table) adjustOutgoingLinks(fn func(int) int) {
	t.forEachOutgoing(func(_ int, tt *Table, bl *BacklinkColumn) {
		bl.adjustOrigins(fn)
		tt.bumpVersion()
	})
}

// breakLinks removes every link from and to row before it is erased.
func (t *Table) breakLinks(row int) {
	t.forEachOutgoing(func(col int, tt *Table, bl *BacklinkColumn) {
		for _, tg := range t.targets(col, row) {
			bl.removeOneBacklink(tg, row)
		}
		tt.bumpVersion()
	})
	t.forEachIncoming(func(bl *BacklinkColumn, ot *Table, oc int) {
		for _, o := range bl.backlinks(row) {
			switch c := ot.cols[oc].(type) {
			case *LinkColumn:
				c.setLink(o, -1)
			case *LinkListColumn:
				c.removeTarget(o, row)
			}
		}
		bl.removeAllBacklinks(row)
		ot.bumpVersion()
	})
}

// relinkMovedRow fixes links after the row at from was moved to to.
func (t *Table) relinkMovedRow(from, to int) {
	t.forEachIncoming(func(bl *BacklinkColumn, ot *Table, oc int) {
		for _, o := range bl.backlinks(to) {
			if ot == t && o == from {
				o = to
			}
			switch c := ot.cols[oc].(type) {
			case *LinkColumn:
				if c.Link(o) == from {
					c.setLink(o, to)
				}
			case *LinkListColumn:
				c.replaceTarget(o, from, to)
			}
		}
		ot.bumpVersion()
	})
	t.forEachOutgoing(func(col int, tt *Table, bl *BacklinkColumn) {
		for _, tg := range t.targets(col, to) {
			bl.updateBacklink(tg, from, to)
		}
		tt.bumpVersion()
	})
}

// adjustRowAccessors moves row, link view and subtable accessors through
// fn; fn returning -1 detaches them.
func (t *Table) adjustRowAccessors(fn func(int) int) {
	t.shiftRowAccessors(fn)
	t.reattachSubtables()
}

// shiftRowAccessors renumbers accessors without touching storage, so it can
// run while the table still points at a stale snapshot.
func (t *Table) shiftRowAccessors(fn func(int) int) {
	live := t.rows[:0]
	for _, wp := range t.rows {
		r := wp.Value()
		if r == nil || r.table == nil {
			continue
		}
		if r.row = fn(r.row); r.row < 0 {
			r.table = nil
			continue
		}
		live = append(live, wp)
	}
	clear(t.rows[len(live):])
	t.rows = live

	views := t.linkViews[:0]
	for _, wp := range t.linkViews {
		lv := wp.Value()
		if lv == nil || lv.origin == nil {
			continue
		}
		if lv.row = fn(lv.row); lv.row < 0 {
			lv.origin = nil
			continue
		}
		views = append(views, wp)
	}
	clear(t.linkViews[len(views):])
	t.linkViews = views

	if len(t.subtables) == 0 {
		return
	}
	moved := make(map[subtableKey]weak.Pointer[Table], len(t.subtables))
	for key, wp := range t.subtables {
		s := wp.Value()
		if s == nil {
			continue
		}
		nr := fn(key.row)
		if nr < 0 {
			s.detach()
			continue
		}
		s.parentRow = nr
		moved[subtableKey{col: key.col, row: nr}] = wp
	}
	t.subtables = moved
}

// appendWeak registers p, dropping collected entries when the slice is
// full.
func appendWeak[T any](s []weak.Pointer[T], p *T) []weak.Pointer[T] {
	if len(s) == cap(s) && len(s) > 0 {
		s = slices.DeleteFunc(s, func(wp weak.Pointer[T]) bool { return wp.Value() == nil })
	}
	return append(s, weak.Make(p))
}

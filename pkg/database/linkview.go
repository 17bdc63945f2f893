package database

import (
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// LinkView is the accessor for one link list cell. It follows its origin
// row when rows move and is detached when the row, its column or its table
// goes away.
type LinkView struct {
	origin *Table
	col    int
	row    int
}

func (lv *LinkView) IsAttached() bool {
	return lv.origin != nil && lv.origin.IsAttached()
}

// OriginRow returns the row holding the list.
func (lv *LinkView) OriginRow() int { return lv.row }

// OriginColumn returns the link list column of the origin table.
func (lv *LinkView) OriginColumn() int { return lv.col }

// OriginTable returns the table holding the list, or nil once detached.
func (lv *LinkView) OriginTable() *Table {
	if !lv.IsAttached() {
		return nil
	}
	return lv.origin
}

func (lv *LinkView) check(op string) error {
	if !lv.IsAttached() {
		return dberr.From(dberr.ErrDetachedAccessor).In(op, "LinkView")
	}
	return nil
}

func (lv *LinkView) checkWrite(op string) error {
	if err := lv.check(op); err != nil {
		return err
	}
	return lv.origin.checkWritable(op)
}

func (lv *LinkView) column() *LinkListColumn {
	return lv.origin.cols[lv.col].(*LinkListColumn)
}

// TargetTable returns the table the list points into.
func (lv *LinkView) TargetTable() (*Table, error) {
	if err := lv.check("TargetTable"); err != nil {
		return nil, err
	}
	return lv.target(), nil
}

func (lv *LinkView) target() *Table {
	return lv.origin.group.tableAt(lv.origin.spec.LinkTarget(lv.col))
}

func (lv *LinkView) backlinks() *BacklinkColumn {
	tt := lv.target()
	return tt.cols[tt.spec.findBacklinkColumn(lv.origin.ndx, lv.col)].(*BacklinkColumn)
}

func (lv *LinkView) strong() bool {
	return lv.origin.spec.ColumnAttr(lv.col).Has(primitives.ColAttrStrongLinks)
}

// Size returns the number of links; 0 once detached.
func (lv *LinkView) Size() int {
	if !lv.IsAttached() {
		return 0
	}
	return lv.column().LinkCount(lv.row)
}

func (lv *LinkView) IsEmpty() bool { return lv.Size() == 0 }

func (lv *LinkView) checkNdx(op string, ndx, limit int) error {
	if ndx < 0 || ndx >= limit {
		return dberr.From(dberr.ErrIndexOutOfBounds).WithDetail("link %d of %d", ndx, limit).In(op, "LinkView")
	}
	return nil
}

func (lv *LinkView) checkTarget(op string, target int) error {
	if n := lv.target().Size(); target < 0 || target >= n {
		return dberr.From(dberr.ErrTargetRowOutOfRange).WithDetail("row %d of %d", target, n).In(op, "LinkView")
	}
	return nil
}

// Get returns the target row at position ndx.
func (lv *LinkView) Get(ndx int) (int, error) {
	const op = "Get"
	if err := lv.check(op); err != nil {
		return primitives.NPos, err
	}
	if err := lv.checkNdx(op, ndx, lv.Size()); err != nil {
		return primitives.NPos, err
	}
	return lv.column().LinkAt(lv.row, ndx), nil
}

// Targets returns every target row in list order.
func (lv *LinkView) Targets() []int {
	if !lv.IsAttached() {
		return nil
	}
	return lv.column().Links(lv.row)
}

// Find returns the first position holding target, or NotFound.
func (lv *LinkView) Find(target int) int {
	for i, tg := range lv.Targets() {
		if tg == target {
			return i
		}
	}
	return primitives.NotFound
}

func (lv *LinkView) Add(target int) error {
	return lv.Insert(lv.Size(), target)
}

// Insert places a link to target at position ndx.
func (lv *LinkView) Insert(ndx, target int) error {
	const op = "Insert"
	if err := lv.checkWrite(op); err != nil {
		return err
	}
	if err := lv.checkNdx(op, ndx, lv.Size()+1); err != nil {
		return err
	}
	if err := lv.checkTarget(op, target); err != nil {
		return err
	}
	lv.column().insertLink(lv.row, ndx, target)
	lv.backlinks().addBacklink(target, lv.row)
	lv.changed(log.LinkListInsert, ndx, 0, target)
	return nil
}

// Set replaces the link at ndx. A strong target left without links is
// removed.
func (lv *LinkView) Set(ndx, target int) error {
	const op = "Set"
	if err := lv.checkWrite(op); err != nil {
		return err
	}
	if err := lv.checkNdx(op, ndx, lv.Size()); err != nil {
		return err
	}
	if err := lv.checkTarget(op, target); err != nil {
		return err
	}
	old := lv.column().setLinkAt(lv.row, ndx, target)
	if old == target {
		return nil
	}
	bl := lv.backlinks()
	bl.removeOneBacklink(old, lv.row)
	bl.addBacklink(target, lv.row)
	lv.changed(log.LinkListSet, ndx, 0, target)
	lv.dropOrphan(old)
	return nil
}

// Remove erases the link at ndx.
func (lv *LinkView) Remove(ndx int) error {
	const op = "Remove"
	if err := lv.checkWrite(op); err != nil {
		return err
	}
	if err := lv.checkNdx(op, ndx, lv.Size()); err != nil {
		return err
	}
	old := lv.column().eraseLink(lv.row, ndx)
	lv.backlinks().removeOneBacklink(old, lv.row)
	lv.changed(log.LinkListErase, ndx, 0, old)
	lv.dropOrphan(old)
	return nil
}

// RemoveTarget removes the target row itself from the target table, and
// with it every link to it.
func (lv *LinkView) RemoveTarget(ndx int) error {
	tg, err := lv.Get(ndx)
	if err != nil {
		return err
	}
	return lv.target().MoveLastOver(tg)
}

// RemoveAllTargets removes every target row of the list.
func (lv *LinkView) RemoveAllTargets() error {
	if err := lv.checkWrite("RemoveAllTargets"); err != nil {
		return err
	}
	for lv.IsAttached() && lv.Size() > 0 {
		if err := lv.RemoveTarget(lv.Size() - 1); err != nil {
			return err
		}
	}
	return nil
}

// Move relocates the link at from so that it ends up at position to.
func (lv *LinkView) Move(from, to int) error {
	const op = "Move"
	if err := lv.checkWrite(op); err != nil {
		return err
	}
	n := lv.Size()
	if err := lv.checkNdx(op, from, n); err != nil {
		return err
	}
	if err := lv.checkNdx(op, to, n); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	lv.column().moveLink(lv.row, from, to)
	lv.changed(log.LinkListMove, from, to, 0)
	return nil
}

func (lv *LinkView) Swap(a, b int) error {
	const op = "Swap"
	if err := lv.checkWrite(op); err != nil {
		return err
	}
	n := lv.Size()
	if err := lv.checkNdx(op, a, n); err != nil {
		return err
	}
	if err := lv.checkNdx(op, b, n); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	lv.column().swapLinks(lv.row, a, b)
	lv.changed(log.LinkListSwap, a, b, 0)
	return nil
}

// Clear removes every link. Strong targets left without links are
// removed.
func (lv *LinkView) Clear() error {
	if err := lv.checkWrite("Clear"); err != nil {
		return err
	}
	old := lv.Targets()
	if len(old) == 0 {
		return nil
	}
	bl := lv.backlinks()
	for _, tg := range old {
		bl.removeOneBacklink(tg, lv.row)
	}
	lv.column().clearList(lv.row)
	lv.origin.bumpVersion()
	lv.target().bumpVersion()
	lv.origin.record(log.Instruction{Type: log.LinkListClear, Col: lv.col, Row: lv.row, PriorSize: len(old)})
	if lv.strong() {
		// Highest row first so earlier removals do not renumber later ones.
		slices.Sort(old)
		old = slices.Compact(old)
		for i := len(old) - 1; i >= 0; i-- {
			lv.origin.group.removeOrphan(lv.target(), old[i])
		}
	}
	return nil
}

func (lv *LinkView) changed(typ log.InstrType, ndx, ndx2, target int) {
	lv.target().bumpVersion()
	lv.origin.record(log.Instruction{
		Type:  typ,
		Col:   lv.col,
		Row:   lv.row,
		Ndx:   ndx,
		Ndx2:  ndx2,
		Value: types.MixedLink(int64(target)),
	})
}

func (lv *LinkView) dropOrphan(old int) {
	if lv.strong() {
		lv.origin.group.removeOrphan(lv.target(), old)
	}
}

// Sorted returns a view of the target rows ordered by col of the target
// table.
func (lv *LinkView) Sorted(col int, ascending bool) (*TableView, error) {
	if err := lv.check("Sorted"); err != nil {
		return nil, err
	}
	v := lv.target().NewTableView(func(*Table) []int { return lv.Targets() })
	if err := v.Sort(col, ascending); err != nil {
		return nil, err
	}
	return v, nil
}

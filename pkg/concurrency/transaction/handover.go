package transaction

import (
	"slices"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/execution/query"
	"colstore/pkg/primitives"
)

// Handover carries an accessor from the session that exported it to a
// session bound to the same snapshot. It holds no accessor of the exporting
// session, only how to find the same object again, so it may be passed to
// another goroutine.
type Handover[T any] struct {
	version primitives.VersionID
	from    string
	resolve func(g *database.Group) (T, error)
}

// Version names the snapshot the accessor was exported from.
func (h *Handover[T]) Version() primitives.VersionID { return h.version }

// Session returns the id of the exporting session.
func (h *Handover[T]) Session() string { return h.from }

type subtableStep struct{ col, row int }

// tablePath locates a table from the group: a group-level table, then the
// subtable cells leading down from it.
type tablePath struct {
	ndx   int
	steps []subtableStep
}

func (sg *SharedGroup) pathOf(op string, t *database.Table) (tablePath, error) {
	if t == nil || !t.IsAttached() {
		return tablePath{}, dberr.From(dberr.ErrDetachedAccessor).In(op, "SharedGroup")
	}
	var p tablePath
	for t.GetIndexInGroup() == primitives.NPos {
		parent, col, row := t.Parent()
		if parent == nil {
			return tablePath{}, dberr.From(dberr.ErrWrongKindOfTable).WithDetail("free-standing table").In(op, "SharedGroup")
		}
		p.steps = append(p.steps, subtableStep{col: col, row: row})
		t = parent
	}
	if t.Group() != sg.group {
		return tablePath{}, dberr.From(dberr.ErrIllegalCombination).WithDetail("table belongs to another session").In(op, "SharedGroup")
	}
	p.ndx = t.GetIndexInGroup()
	slices.Reverse(p.steps)
	return p, nil
}

func (p tablePath) resolve(g *database.Group) (*database.Table, error) {
	t, err := g.GetTable(p.ndx)
	if err != nil {
		return nil, err
	}
	for _, s := range p.steps {
		if t, err = t.GetSubtable(s.col, s.row); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (sg *SharedGroup) checkExport(op string) error {
	if err := sg.closed(op); err != nil {
		return err
	}
	if sg.stage != StageReading {
		return wrongStage(op, sg.stage)
	}
	return nil
}

func exportHandover[T any](sg *SharedGroup, resolve func(g *database.Group) (T, error)) *Handover[T] {
	return &Handover[T]{version: sg.readLock.ID(), from: sg.id, resolve: resolve}
}

// importHandover resolves h in sg, which must be reading exactly the
// snapshot h was exported from.
func importHandover[T any](sg *SharedGroup, op string, h *Handover[T]) (T, error) {
	var zero T
	if err := sg.checkExport(op); err != nil {
		return zero, err
	}
	if h == nil {
		return zero, dberr.From(dberr.ErrIllegalCombination).WithDetail("nil handover").In(op, "SharedGroup")
	}
	if h.version.Version != sg.readLock.Version {
		return zero, dberr.From(dberr.ErrBadVersion).
			WithDetail("exported at %s, session reads %s", h.version, sg.readLock.ID()).In(op, "SharedGroup")
	}
	v, err := h.resolve(sg.group)
	if err != nil {
		return zero, err
	}
	sg.log.Debug("accessor imported", "op", op, "from", h.from, "version", h.version.Version)
	return v, nil
}

// ExportTableForHandover prepares t for import by another session.
func (sg *SharedGroup) ExportTableForHandover(t *database.Table) (*Handover[*database.Table], error) {
	const op = "ExportTableForHandover"
	if err := sg.checkExport(op); err != nil {
		return nil, err
	}
	p, err := sg.pathOf(op, t)
	if err != nil {
		return nil, err
	}
	return exportHandover(sg, p.resolve), nil
}

func (sg *SharedGroup) ImportTableFromHandover(h *Handover[*database.Table]) (*database.Table, error) {
	return importHandover(sg, "ImportTableFromHandover", h)
}

// ExportRowForHandover prepares r for import by another session.
func (sg *SharedGroup) ExportRowForHandover(r *database.Row) (*Handover[*database.Row], error) {
	const op = "ExportRowForHandover"
	if err := sg.checkExport(op); err != nil {
		return nil, err
	}
	if r == nil || !r.IsAttached() {
		return nil, dberr.From(dberr.ErrDetachedAccessor).In(op, "SharedGroup")
	}
	p, err := sg.pathOf(op, r.Table())
	if err != nil {
		return nil, err
	}
	row := r.Index()
	return exportHandover(sg, func(g *database.Group) (*database.Row, error) {
		t, err := p.resolve(g)
		if err != nil {
			return nil, err
		}
		return t.Row(row)
	}), nil
}

func (sg *SharedGroup) ImportRowFromHandover(h *Handover[*database.Row]) (*database.Row, error) {
	return importHandover(sg, "ImportRowFromHandover", h)
}

// ExportQueryForHandover prepares q for import by another session. The
// imported query has the same conditions bound to the matching table.
func (sg *SharedGroup) ExportQueryForHandover(q *query.Query) (*Handover[*query.Query], error) {
	const op = "ExportQueryForHandover"
	if err := sg.checkExport(op); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, dberr.From(dberr.ErrIllegalCombination).WithDetail("nil query").In(op, "SharedGroup")
	}
	p, err := sg.pathOf(op, q.Table())
	if err != nil {
		return nil, err
	}
	clone := q.HandoverClone()
	return exportHandover(sg, func(g *database.Group) (*query.Query, error) {
		t, err := p.resolve(g)
		if err != nil {
			return nil, err
		}
		return clone.Rebind(t), nil
	}), nil
}

func (sg *SharedGroup) ImportQueryFromHandover(h *Handover[*query.Query]) (*query.Query, error) {
	return importHandover(sg, "ImportQueryFromHandover", h)
}

// ExportTableViewForHandover prepares v for import by another session. The
// imported view has the same rows, order and source.
func (sg *SharedGroup) ExportTableViewForHandover(v *database.TableView) (*Handover[*database.TableView], error) {
	const op = "ExportTableViewForHandover"
	if err := sg.checkExport(op); err != nil {
		return nil, err
	}
	if v == nil || !v.IsAttached() {
		return nil, dberr.From(dberr.ErrDetachedAccessor).In(op, "SharedGroup")
	}
	p, err := sg.pathOf(op, v.Table())
	if err != nil {
		return nil, err
	}
	rows, src := v.Rows(), v.Source()
	col, asc, sorted := v.SortOrder()
	return exportHandover(sg, func(g *database.Group) (*database.TableView, error) {
		t, err := p.resolve(g)
		if err != nil {
			return nil, err
		}
		out := t.NewTableViewOf(rows)
		if src != nil {
			out = t.NewTableView(src)
		}
		if sorted {
			if err := out.Sort(col, asc); err != nil {
				return nil, err
			}
		}
		return out, nil
	}), nil
}

func (sg *SharedGroup) ImportTableViewFromHandover(h *Handover[*database.TableView]) (*database.TableView, error) {
	return importHandover(sg, "ImportTableViewFromHandover", h)
}

// ExportLinkViewForHandover prepares lv for import by another session.
func (sg *SharedGroup) ExportLinkViewForHandover(lv *database.LinkView) (*Handover[*database.LinkView], error) {
	const op = "ExportLinkViewForHandover"
	if err := sg.checkExport(op); err != nil {
		return nil, err
	}
	if lv == nil || !lv.IsAttached() {
		return nil, dberr.From(dberr.ErrDetachedAccessor).In(op, "SharedGroup")
	}
	p, err := sg.pathOf(op, lv.OriginTable())
	if err != nil {
		return nil, err
	}
	col, row := lv.OriginColumn(), lv.OriginRow()
	return exportHandover(sg, func(g *database.Group) (*database.LinkView, error) {
		t, err := p.resolve(g)
		if err != nil {
			return nil, err
		}
		return t.GetLinkList(col, row)
	}), nil
}

func (sg *SharedGroup) ImportLinkViewFromHandover(h *Handover[*database.LinkView]) (*database.LinkView, error) {
	return importHandover(sg, "ImportLinkViewFromHandover", h)
}

package database

import (
	"cmp"
	"slices"

	"colstore/pkg/primitives"
)

// CascadeRow names a row of a group-level table.
type CascadeRow struct {
	Table int
	Row   int
}

// CascadeLink is a link that will be nullified because its target row is
// removed while its origin row stays.
type CascadeLink struct {
	OriginTable int
	OriginCol   int
	OriginRow   int
	OldTarget   int
}

// CascadeNotification describes the full effect of a removal before it
// happens: every row that goes (the requested ones included) and every link
// that will be nullified. Both lists are sorted.
type CascadeNotification struct {
	Rows  []CascadeRow
	Links []CascadeLink
}

// CascadeHandler is called before a cascading removal runs.
type CascadeHandler func(CascadeNotification)

// SetCascadeNotificationHandler installs h; nil removes it.
func (g *Group) SetCascadeNotificationHandler(h CascadeHandler) {
	g.cascadeHandler = h
}

func (g *Group) notifyCascade(n CascadeNotification) {
	if g.cascadeHandler != nil {
		g.cascadeHandler(n)
	}
}

// collectCascade computes the rows removed along with initial. A target of
// a strong link is removed when none of its strong backlinks come from a
// row that stays. The set grows until it is stable, so cycles of strong
// links are removed as a whole.
func (g *Group) collectCascade(initial []CascadeRow) CascadeNotification {
	in := make(map[CascadeRow]bool, len(initial))
	rows := make([]CascadeRow, 0, len(initial))
	for _, r := range initial {
		if !in[r] {
			in[r] = true
			rows = append(rows, r)
		}
	}

	for changed := true; changed; {
		changed = false
		for i := 0; i < len(rows); i++ {
			r := rows[i]
			t := g.tableAt(r.Table)
			for col := 0; col < t.spec.PublicColumnCount(); col++ {
				if !t.spec.isLinkColumn(col) || !t.spec.ColumnAttr(col).Has(primitives.ColAttrStrongLinks) {
					continue
				}
				target := t.spec.LinkTarget(col)
				for _, tg := range t.targets(col, r.Row) {
					cand := CascadeRow{Table: target, Row: tg}
					if in[cand] || g.strongBacklinksOutside(cand, in) > 0 {
						continue
					}
					in[cand] = true
					rows = append(rows, cand)
					changed = true
				}
			}
		}
	}

	var links []CascadeLink
	for _, r := range rows {
		g.tableAt(r.Table).forEachIncoming(func(bl *BacklinkColumn, ot *Table, oc int) {
			for _, o := range bl.backlinks(r.Row) {
				if in[CascadeRow{Table: ot.ndx, Row: o}] {
					continue
				}
				links = append(links, CascadeLink{OriginTable: ot.ndx, OriginCol: oc, OriginRow: o, OldTarget: r.Row})
			}
		})
	}

	slices.SortFunc(rows, func(a, b CascadeRow) int {
		return cmp.Or(cmp.Compare(a.Table, b.Table), cmp.Compare(a.Row, b.Row))
	})
	slices.SortFunc(links, func(a, b CascadeLink) int {
		return cmp.Or(
			cmp.Compare(a.OriginTable, b.OriginTable),
			cmp.Compare(a.OriginCol, b.OriginCol),
			cmp.Compare(a.OriginRow, b.OriginRow),
			cmp.Compare(a.OldTarget, b.OldTarget),
		)
	})
	return CascadeNotification{Rows: rows, Links: links}
}

// strongBacklinksOutside counts the strong links into r from rows that are
// not in the removal set.
func (g *Group) strongBacklinksOutside(r CascadeRow, in map[CascadeRow]bool) int {
	n := 0
	g.tableAt(r.Table).forEachIncoming(func(bl *BacklinkColumn, ot *Table, oc int) {
		if !ot.spec.ColumnAttr(oc).Has(primitives.ColAttrStrongLinks) {
			return
		}
		for _, o := range bl.backlinks(r.Row) {
			if !in[CascadeRow{Table: ot.ndx, Row: o}] {
				n++
			}
		}
	})
	return n
}

// removeCascadedRows erases rows by move-last-over, highest row first
// within each table so pending indices stay valid.
func (g *Group) removeCascadedRows(rows []CascadeRow) {
	slices.SortFunc(rows, func(a, b CascadeRow) int {
		return cmp.Or(cmp.Compare(a.Table, b.Table), cmp.Compare(b.Row, a.Row))
	})
	for _, r := range rows {
		g.tableAt(r.Table).eraseRowRaw(r.Row, true)
	}
}

// removeOrphan removes row of t, and whatever it strongly links to, once
// the last strong link to it went away.
func (g *Group) removeOrphan(t *Table, row int) {
	r := CascadeRow{Table: t.ndx, Row: row}
	if row < 0 || row >= t.Size() || g.strongBacklinksOutside(r, nil) > 0 {
		return
	}
	n := g.collectCascade([]CascadeRow{r})
	g.notifyCascade(n)
	g.removeCascadedRows(n.Rows)
}

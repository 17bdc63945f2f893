package query

import (
	"fmt"
	"slices"
	"strings"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

func describeAnd(conds []node, s schema) string {
	if len(conds) == 0 {
		return "TRUEPREDICATE"
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.describe(s)
	}
	return strings.Join(parts, " and ")
}

// orNode holds if any of its branches does. Each branch remembers the
// last range it searched so overlapping lookups do not rescan it.
type orNode struct {
	branches []*ParentNode

	start    []int
	last     []int
	wasMatch []bool
	st       nodeStats
}

func (n *orNode) init(t *database.Table) error {
	n.st = newStats(0)
	n.start = make([]int, len(n.branches))
	n.last = make([]int, len(n.branches))
	n.wasMatch = make([]bool, len(n.branches))
	for _, b := range n.branches {
		if err := b.init(t); err != nil {
			return err
		}
		n.st.dT += b.st.dT
	}
	return nil
}

func (n *orNode) findFirstLocal(start, end int) int {
	if start >= end {
		return primitives.NotFound
	}
	best := primitives.NotFound
	for i, b := range n.branches {
		switch {
		case start < n.start[i]:
			// out of order lookup, the cache says nothing about it
			n.last[i] = 0
			n.wasMatch[i] = false
		case n.last[i] >= end:
			continue
		case n.wasMatch[i] && n.last[i] >= start:
			if best == primitives.NotFound || n.last[i] < best {
				best = n.last[i]
			}
			continue
		}
		n.start[i] = start
		f := b.findFirst(max(n.last[i], start), end)
		n.wasMatch[i] = f != primitives.NotFound
		if f == primitives.NotFound {
			n.last[i] = end
			continue
		}
		n.last[i] = f
		if best == primitives.NotFound || f < best {
			best = f
		}
	}
	return best
}

func (n *orNode) stats() *nodeStats { return &n.st }

func (n *orNode) clone() node {
	c := &orNode{branches: make([]*ParentNode, len(n.branches))}
	for i, b := range n.branches {
		c.branches[i] = b.cloneParent()
	}
	return c
}

func (n *orNode) describe(s schema) string {
	parts := make([]string, len(n.branches))
	for i, b := range n.branches {
		parts[i] = b.describe(s)
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// notNode holds where its inner conjunction does not. It caches the
// outcome of the last range it resolved: [knownStart, knownEnd) holds no
// row the inner condition is false for, except knownFirst when that is set.
type notNode struct {
	inner *ParentNode

	knownStart, knownEnd, knownFirst int
	st                               nodeStats
}

func (n *notNode) init(t *database.Table) error {
	n.st = newStats(50)
	n.forget()
	return n.inner.init(t)
}

func (n *notNode) forget() {
	n.knownStart, n.knownEnd, n.knownFirst = 0, 0, primitives.NotFound
}

func (n *notNode) findFirstLocal(start, end int) int {
	if start >= end {
		return primitives.NotFound
	}
	if start >= n.knownStart && end <= n.knownEnd {
		switch {
		case n.knownFirst == primitives.NotFound:
			return primitives.NotFound
		case n.knownFirst >= start:
			if n.knownFirst < end {
				return n.knownFirst
			}
			return primitives.NotFound
		}
	}
	for r := start; r < end; r++ {
		if n.inner.findFirst(r, r+1) != r {
			n.knownStart, n.knownEnd, n.knownFirst = start, r+1, r
			return r
		}
	}
	n.knownStart, n.knownEnd, n.knownFirst = start, end, primitives.NotFound
	return primitives.NotFound
}

func (n *notNode) stats() *nodeStats { return &n.st }

func (n *notNode) clone() node { return &notNode{inner: n.inner.cloneParent()} }

func (n *notNode) describe(s schema) string {
	return "!(" + n.inner.describe(s) + ")"
}

// subtableNode holds for rows whose subtable in col has at least one row
// matching inner. Empty and degenerate subtables never match.
type subtableNode struct {
	col   int
	inner *ParentNode

	t  *database.Table
	st nodeStats
}

func (n *subtableNode) init(t *database.Table) error {
	n.st = newStats(100)
	n.t = nil
	if t.IsDegenerate() {
		return nil
	}
	typ, err := t.ColumnType(n.col)
	if err != nil {
		return err
	}
	if typ != types.Table {
		return dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", n.col, typ).In("Subtable", "Query")
	}
	n.t = t
	return nil
}

func (n *subtableNode) findFirstLocal(start, end int) int {
	if n.t == nil {
		return primitives.NotFound
	}
	for r := start; r < end; r++ {
		size, err := n.t.GetSubtableSize(n.col, r)
		if err != nil || size == 0 {
			continue
		}
		sub, err := n.t.GetSubtable(n.col, r)
		if err != nil {
			continue
		}
		if err := n.inner.init(sub); err != nil {
			continue
		}
		if n.inner.findFirst(0, size) != primitives.NotFound {
			return r
		}
	}
	return primitives.NotFound
}

func (n *subtableNode) stats() *nodeStats { return &n.st }

func (n *subtableNode) clone() node {
	return &subtableNode{col: n.col, inner: n.inner.cloneParent()}
}

func (n *subtableNode) describe(s schema) string {
	sub := subSchema(s, n.col)
	return fmt.Sprintf("%s.{%s}", columnName(s, n.col), n.inner.describe(sub))
}

// linksToNode holds for rows whose link or link list in col references
// target. It stops matching for good once target is detached. A node made
// for handover has no target accessor yet; it names the target by table
// and row index and resolves it against the table it is bound to.
type linksToNode struct {
	col    int
	target *database.Row

	targetTable, targetRow int

	link *database.LinkColumn
	list *database.LinkListColumn
	st   nodeStats
}

func (n *linksToNode) init(t *database.Table) error {
	n.st = newStats(50)
	n.link, n.list = nil, nil
	if n.target == nil {
		n.resolve(t)
	}
	c, err := t.QueryColumn(n.col)
	if err != nil || c == nil {
		return err
	}
	switch c := c.(type) {
	case *database.LinkColumn:
		n.link = c
	case *database.LinkListColumn:
		n.list = c
	default:
		return dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", n.col, c.Type()).In("LinksTo", "Query")
	}
	if n.target == nil {
		n.link, n.list = nil, nil
		return nil
	}
	if target, err := t.LinkTarget(n.col); err != nil || target != n.target.Table() {
		n.link, n.list = nil, nil
	}
	return nil
}

func (n *linksToNode) resolve(t *database.Table) {
	g := t.Group()
	if g == nil || n.targetTable == primitives.NPos {
		return
	}
	tt, err := g.GetTable(n.targetTable)
	if err != nil {
		return
	}
	if r, err := tt.Row(n.targetRow); err == nil {
		n.target = r
	}
}

// portable drops the target accessor, keeping where it points.
func (n *linksToNode) portable() {
	if n.target == nil {
		return
	}
	n.targetTable, n.targetRow = primitives.NPos, primitives.NPos
	if tt := n.target.Table(); tt != nil && n.target.IsAttached() {
		n.targetTable, n.targetRow = tt.GetIndexInGroup(), n.target.Index()
	}
	n.target = nil
}

func (n *linksToNode) findFirstLocal(start, end int) int {
	if n.target == nil || !n.target.IsAttached() {
		return primitives.NotFound
	}
	want := n.target.Index()
	for r := start; r < end; r++ {
		switch {
		case n.link != nil:
			if n.link.Link(r) == want {
				return r
			}
		case n.list != nil:
			if slices.Contains(n.list.Links(r), want) {
				return r
			}
		default:
			return primitives.NotFound
		}
	}
	return primitives.NotFound
}

func (n *linksToNode) stats() *nodeStats { return &n.st }

func (n *linksToNode) clone() node {
	return &linksToNode{col: n.col, target: n.target, targetTable: n.targetTable, targetRow: n.targetRow}
}

func (n *linksToNode) describe(s schema) string {
	row := n.targetRow
	if n.target != nil {
		row = n.target.Index()
	}
	return fmt.Sprintf("%s == row %d", columnName(s, n.col), row)
}

// eachNode visits ns and every node nested below them.
func eachNode(ns []node, fn func(node)) {
	for _, n := range ns {
		fn(n)
		switch n := n.(type) {
		case *orNode:
			for _, b := range n.branches {
				eachNode(b.conds, fn)
			}
		case *notNode:
			eachNode(n.inner.conds, fn)
		case *subtableNode:
			eachNode(n.inner.conds, fn)
		}
	}
}

package database

import (
	"fmt"
	"strings"

	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// Result is a table or view rendered as strings, ready for display.
type Result struct {
	Columns []string
	Types   []string
	Rows    [][]string
	// RowIndices holds the table row behind each entry of Rows.
	RowIndices []int
	Total      int
	Message    string
}

// GroupInfo summarizes the tables of a group.
type GroupInfo struct {
	Tables []TableInfo
}

type TableInfo struct {
	Name    string
	Rows    int
	Columns int
	Links   []string
}

// ResultFormatter renders tables and views for the CLI and the browser.
type ResultFormatter struct {
	// MaxRows bounds the rows rendered; 0 renders every row.
	MaxRows int
	// MaxWidth truncates long cells; 0 keeps them whole.
	MaxWidth int
}

// NewResultFormatter creates a new instance of ResultFormatter
func NewResultFormatter() *ResultFormatter {
	return &ResultFormatter{}
}

// FormatTable renders rows [offset, offset+MaxRows) of t.
func (f *ResultFormatter) FormatTable(t *Table, offset int) Result {
	if !t.IsAttached() {
		return Result{Message: "table is detached"}
	}
	n := t.Size()
	end := n
	if f.MaxRows > 0 {
		end = min(n, offset+f.MaxRows)
	}
	rows := make([]int, 0, max(end-offset, 0))
	for r := offset; r < end; r++ {
		rows = append(rows, r)
	}
	res := f.render(t, rows)
	res.Total = n
	res.Message = fmt.Sprintf("%d row(s)", n)
	return res
}

// FormatView renders entries [offset, offset+MaxRows) of a view in view
// order.
func (f *ResultFormatter) FormatView(v *TableView, offset int) Result {
	if !v.IsAttached() {
		return Result{Message: "view is detached"}
	}
	rows := v.Rows()
	rows = rows[min(max(offset, 0), len(rows)):]
	if f.MaxRows > 0 && len(rows) > f.MaxRows {
		rows = rows[:f.MaxRows]
	}
	res := f.render(v.Table(), rows)
	res.Total = v.Size()
	res.Message = fmt.Sprintf("%d row(s) returned", v.Size())
	return res
}

func (f *ResultFormatter) render(t *Table, rows []int) Result {
	numCols := t.ColumnCount()
	columns := make([]string, numCols)
	typeNames := make([]string, numCols)
	for i := range numCols {
		name := t.spec.ColumnName(i)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		columns[i] = name
		typeNames[i] = f.typeName(t, i)
	}

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, numCols)
		for i := range numCols {
			row[i] = f.truncate(f.Cell(t, i, r))
		}
		out = append(out, row)
	}
	return Result{Columns: columns, Types: typeNames, Rows: out, RowIndices: rows}
}

func (f *ResultFormatter) typeName(t *Table, col int) string {
	typ := t.spec.PublicColumnType(col)
	name := typ.String()
	if t.spec.isLinkColumn(col) {
		name += "->" + t.group.TableName(t.spec.LinkTarget(col))
	}
	if t.spec.ColumnAttr(col).Has(primitives.ColAttrNullable) {
		name += "?"
	}
	return name
}

// Cell renders one cell. Link lists and subtables show their size.
func (f *ResultFormatter) Cell(t *Table, col, row int) string {
	switch t.spec.ColumnType(col) {
	case primitives.ColTypeLinkList:
		n := t.cols[col].(*LinkListColumn).LinkCount(row)
		return fmt.Sprintf("<%d links>", n)
	case primitives.ColTypeTable:
		n := t.cols[col].(*SubtableColumn).subtableSize(row)
		return fmt.Sprintf("<table %d rows>", n)
	case primitives.ColTypeLink:
		if tg := t.cols[col].(*LinkColumn).Link(row); tg >= 0 {
			return fmt.Sprintf("-> %d", tg)
		}
		return "NULL"
	}
	v := t.cols[col].Value(row)
	switch {
	case v.IsNull():
		return "NULL"
	case v.Type() == types.Binary:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes()))
	case v.Type() == types.Table:
		return "<table>"
	}
	return v.String()
}

func (f *ResultFormatter) truncate(s string) string {
	if f.MaxWidth <= 3 || len(s) <= f.MaxWidth {
		return s
	}
	return s[:f.MaxWidth-3] + "..."
}

// FormatGroup summarizes every table of g.
func (f *ResultFormatter) FormatGroup(g *Group) GroupInfo {
	var info GroupInfo
	for i := 0; i < g.TableCount(); i++ {
		t, err := g.GetTable(i)
		if err != nil {
			continue
		}
		ti := TableInfo{Name: g.TableName(i), Rows: t.Size(), Columns: t.ColumnCount()}
		for c := 0; c < t.ColumnCount(); c++ {
			if t.spec.isLinkColumn(c) {
				ti.Links = append(ti.Links, fmt.Sprintf("%s->%s", t.spec.ColumnName(c), g.TableName(t.spec.LinkTarget(c))))
			}
		}
		info.Tables = append(info.Tables, ti)
	}
	return info
}

// String renders a result as plain aligned text.
func (r Result) String() string {
	widths := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		widths[i] = len(c)
	}
	for _, row := range r.Rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}
	var sb strings.Builder
	line := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				sb.WriteString("  ")
			}
			fmt.Fprintf(&sb, "%-*s", widths[i], c)
		}
		sb.WriteByte('\n')
	}
	line(r.Columns)
	for _, row := range r.Rows {
		line(row)
	}
	return sb.String()
}

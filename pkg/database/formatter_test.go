package database

import (
	"strings"
	"testing"

	"colstore/pkg/types"
)

func formatterFixture(t *testing.T) (*Group, *Table, *Table) {
	g := newTestGroup(t)
	people := addTable(t, g, "people", types.Int, "id", types.String, "name")
	if _, err := people.AddColumn(types.Double, "score", true); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	if _, err := people.AddColumn(types.Binary, "avatar", false); err != nil {
		t.Fatalf("AddColumn failed: %v", err)
	}
	pets := addTable(t, g, "pets", types.String, "name")
	owner, err := pets.AddColumnLink(types.Link, "owner", people, LinkWeak)
	if err != nil {
		t.Fatalf("AddColumnLink failed: %v", err)
	}
	if _, err := pets.AddColumnLink(types.LinkList, "friends", pets, LinkWeak); err != nil {
		t.Fatalf("AddColumnLink failed: %v", err)
	}

	if _, err := people.AddEmptyRows(3); err != nil {
		t.Fatalf("AddEmptyRows failed: %v", err)
	}
	for i, name := range []string{"Alice", "Bob", "Charlotte the Magnificent"} {
		people.SetInt(0, i, int64(i+1))
		people.SetString(1, i, name)
	}
	people.SetDouble(2, 0, 1.5)
	people.SetBinary(3, 1, []byte{1, 2, 3})

	if _, err := pets.AddEmptyRows(2); err != nil {
		t.Fatalf("AddEmptyRows failed: %v", err)
	}
	pets.SetString(0, 0, "Rex")
	pets.SetLink(owner, 0, 1)
	lv, _ := pets.GetLinkList(2, 1)
	lv.Add(0)
	lv.Add(1)
	return g, people, pets
}

// TestFormatTable_Columns tests column names and type labels
func TestFormatTable_Columns(t *testing.T) {
	_, people, pets := formatterFixture(t)
	f := NewResultFormatter()

	res := f.FormatTable(people, 0)
	wantCols := []string{"id", "name", "score", "avatar"}
	wantTypes := []string{"int", "string", "double?", "binary"}
	if len(res.Columns) != len(wantCols) {
		t.Fatalf("expected %d columns, got %d", len(wantCols), len(res.Columns))
	}
	for i := range wantCols {
		if res.Columns[i] != wantCols[i] {
			t.Errorf("column %d: expected %q, got %q", i, wantCols[i], res.Columns[i])
		}
		if res.Types[i] != wantTypes[i] {
			t.Errorf("type %d: expected %q, got %q", i, wantTypes[i], res.Types[i])
		}
	}

	res = f.FormatTable(pets, 0)
	if res.Types[1] != "link->people" {
		t.Errorf("expected link type label, got %q", res.Types[1])
	}
	if res.Types[2] != "linklist->pets" {
		t.Errorf("expected link list type label, got %q", res.Types[2])
	}
}

// TestFormatTable_Cells tests rendering of every kind of cell
func TestFormatTable_Cells(t *testing.T) {
	_, people, pets := formatterFixture(t)
	f := NewResultFormatter()

	tests := []struct {
		name     string
		table    *Table
		col, row int
		want     string
	}{
		{"int", people, 0, 2, "3"},
		{"string", people, 1, 0, "Alice"},
		{"double", people, 2, 0, "1.5"},
		{"null", people, 2, 1, "NULL"},
		{"binary", people, 3, 1, "<3 bytes>"},
		{"link", pets, 1, 0, "-> 1"},
		{"null link", pets, 1, 1, "NULL"},
		{"link list", pets, 2, 1, "<2 links>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Cell(tt.table, tt.col, tt.row); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestFormatTable_Paging tests MaxRows and offsets
func TestFormatTable_Paging(t *testing.T) {
	_, people, _ := formatterFixture(t)
	f := &ResultFormatter{MaxRows: 2}

	res := f.FormatTable(people, 1)
	if res.Total != 3 {
		t.Errorf("expected total 3, got %d", res.Total)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.RowIndices[0] != 1 || res.RowIndices[1] != 2 {
		t.Errorf("unexpected row indices %v", res.RowIndices)
	}

	res = f.FormatTable(people, 5)
	if len(res.Rows) != 0 {
		t.Errorf("expected no rows past the end, got %d", len(res.Rows))
	}
}

// TestFormatTable_Truncate tests that long cells are shortened
func TestFormatTable_Truncate(t *testing.T) {
	_, people, _ := formatterFixture(t)
	f := &ResultFormatter{MaxWidth: 10}

	res := f.FormatTable(people, 0)
	got := res.Rows[2][1]
	if got != "Charlot..." {
		t.Errorf("expected truncated name, got %q", got)
	}
	if res.Rows[0][1] != "Alice" {
		t.Errorf("short cells must stay whole, got %q", res.Rows[0][1])
	}
}

// TestFormatView tests that views render in view order
func TestFormatView(t *testing.T) {
	_, people, _ := formatterFixture(t)
	view, err := people.GetSortedView(0, false)
	if err != nil {
		t.Fatalf("GetSortedView failed: %v", err)
	}

	res := NewResultFormatter().FormatView(view, 0)
	if res.Message != "3 row(s) returned" {
		t.Errorf("unexpected message %q", res.Message)
	}
	for i, want := range []string{"3", "2", "1"} {
		if res.Rows[i][0] != want {
			t.Errorf("row %d: expected id %s, got %s", i, want, res.Rows[i][0])
		}
	}

	f := &ResultFormatter{MaxRows: 1}
	res = f.FormatView(view, 1)
	if len(res.Rows) != 1 || res.Rows[0][0] != "2" {
		t.Errorf("expected the second entry only, got %v", res.Rows)
	}
	if res.Total != 3 {
		t.Errorf("expected total 3, got %d", res.Total)
	}
}

// TestFormatGroup tests the group summary
func TestFormatGroup(t *testing.T) {
	g, _, _ := formatterFixture(t)
	info := NewResultFormatter().FormatGroup(g)

	if len(info.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(info.Tables))
	}
	pets := info.Tables[1]
	if pets.Name != "pets" || pets.Rows != 2 || pets.Columns != 3 {
		t.Errorf("unexpected summary %+v", pets)
	}
	if len(pets.Links) != 2 || pets.Links[0] != "owner->people" {
		t.Errorf("unexpected links %v", pets.Links)
	}
}

// TestResultString tests plain text rendering
func TestResultString(t *testing.T) {
	res := Result{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"1", "Alice"}, {"22", "Bo"}},
	}
	lines := strings.Split(strings.TrimSuffix(res.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "id  name " {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "22  Bo   " {
		t.Errorf("unexpected row %q", lines[2])
	}
}

// TestFormatTable_Detached tests rendering of a detached accessor
func TestFormatTable_Detached(t *testing.T) {
	g := New()
	tbl := addTable(t, g, "t", types.Int, "v")
	g.Close()

	res := NewResultFormatter().FormatTable(tbl, 0)
	if res.Message != "table is detached" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

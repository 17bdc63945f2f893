package database

import (
	"colstore/pkg/storage/column"
)

// QueryColumn returns the accessor of public column col for the query
// engine, nil for a degenerate subtable. It stays valid until the next
// schema change or snapshot switch; callers re-fetch it when Version moves.
func (t *Table) QueryColumn(col int) (column.Column, error) {
	if err := t.checkColumn("QueryColumn", col); err != nil {
		return nil, err
	}
	if t.isDegenerate() {
		return nil, nil
	}
	return t.cols[col], nil
}

// IsDegenerate reports whether t is a subtable that was never
// materialized. It has no rows and no column storage.
func (t *Table) IsDegenerate() bool {
	return t.IsAttached() && t.isDegenerate()
}

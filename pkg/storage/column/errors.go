package column

import dberr "colstore/pkg/error"

func errNotNullable() error {
	return dberr.From(dberr.ErrColumnNotNullable).In("SetNull", "Column")
}

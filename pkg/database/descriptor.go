package database

import (
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/types"
)

// Descriptor edits a table schema. The descriptor of a group-level table
// (or of a table in a mixed cell) acts on that table. A subdescriptor acts
// on the schema shared by every subtable of a subtable column and rewrites
// all of those subtables at once.
type Descriptor struct {
	root *Table
	path []int
}

// Descriptor returns the descriptor of the schema t uses. For a subtable of
// a subtable column that schema is shared with its siblings.
func (t *Table) Descriptor() (*Descriptor, error) {
	if err := t.checkAttached("Descriptor"); err != nil {
		return nil, err
	}
	var path []int
	x := t
	for x.top == nil {
		path = append(path, x.parentCol)
		x = x.parent
	}
	slices.Reverse(path)
	return &Descriptor{root: x, path: path}, nil
}

// Subdescriptor returns the descriptor of the subtables in col.
func (d *Descriptor) Subdescriptor(col int) (*Descriptor, error) {
	const op = "Subdescriptor"
	if err := d.checkColumn(op, col); err != nil {
		return nil, err
	}
	if d.spec().ColumnType(col) != primitives.ColTypeTable {
		return nil, dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is not a subtable column", col).In(op, "Descriptor")
	}
	return &Descriptor{root: d.root, path: append(slices.Clone(d.path), col)}, nil
}

// IsRoot reports whether the descriptor belongs to a table rather than to a
// subtable column.
func (d *Descriptor) IsRoot() bool { return len(d.path) == 0 }

func (d *Descriptor) IsAttached() bool { return d.root.IsAttached() }

func (d *Descriptor) spec() *Spec {
	s := d.root.spec
	for _, c := range d.path {
		s = s.subspec(c)
	}
	return s
}

func (d *Descriptor) check(op string) error {
	if !d.IsAttached() {
		return dberr.From(dberr.ErrDetachedAccessor).In(op, "Descriptor")
	}
	return nil
}

func (d *Descriptor) checkColumn(op string, col int) error {
	if err := d.check(op); err != nil {
		return err
	}
	if n := d.spec().PublicColumnCount(); col < 0 || col >= n {
		return dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("column %d of %d", col, n).In(op, "Descriptor")
	}
	return nil
}

func (d *Descriptor) ColumnCount() int {
	if !d.IsAttached() {
		return 0
	}
	return d.spec().PublicColumnCount()
}

func (d *Descriptor) ColumnName(col int) (string, error) {
	if err := d.checkColumn("ColumnName", col); err != nil {
		return "", err
	}
	return d.spec().ColumnName(col), nil
}

func (d *Descriptor) ColumnType(col int) (types.DataType, error) {
	if err := d.checkColumn("ColumnType", col); err != nil {
		return 0, err
	}
	return d.spec().PublicColumnType(col), nil
}

func (d *Descriptor) ColumnIndex(name string) int {
	if !d.IsAttached() {
		return primitives.NotFound
	}
	return d.spec().ColumnIndex(name)
}

func (d *Descriptor) AddColumn(typ types.DataType, name string, nullable bool) (int, error) {
	col := d.ColumnCount()
	if err := d.InsertColumn(col, typ, name, nullable); err != nil {
		return primitives.NPos, err
	}
	return col, nil
}

// InsertColumn adds a column to the schema and to every table using it.
func (d *Descriptor) InsertColumn(col int, typ types.DataType, name string, nullable bool) error {
	const op = "InsertColumn"
	if d.IsRoot() {
		return d.root.InsertColumn(col, typ, name, nullable)
	}
	if err := d.checkWritable(op); err != nil {
		return err
	}
	spec := d.spec()
	if n := spec.PublicColumnCount(); col < 0 || col > n {
		return dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("column %d of %d", col, n).In(op, "Descriptor")
	}
	if !types.IsValidColumnType(typ) || typ == types.Link || typ == types.LinkList {
		return dberr.From(dberr.ErrIllegalType).WithDetail("%s in a subtable", typ).In(op, "Descriptor")
	}
	if nullable && (typ == types.Table || typ == types.MixedType) {
		return dberr.From(dberr.ErrIllegalCombination).WithDetail("%s columns cannot be nullable", typ).In(op, "Descriptor")
	}
	attr := primitives.ColAttrNone
	if nullable {
		attr |= primitives.ColAttrNullable
	}

	a := d.root.alloc
	spec.insertColumn(col, typ, name, attr)
	d.visitColumns(func(cols *array.Array) {
		size := 0
		if cols.Size() > 0 {
			k := 0
			if col == 0 {
				k = 1
			}
			c := newColumnAccessor(a, spec, k)
			c.SetParent(cols, 0)
			c.UpdateFromParent()
			size = c.Size()
		}
		cols.Insert(col, int64(createColumnRoot(a, spec, col, size)))
	})
	d.changed(func(c int) int {
		if c >= col {
			return c + 1
		}
		return c
	})
	return nil
}

// RemoveColumn drops a column from the schema and from every table using
// it.
func (d *Descriptor) RemoveColumn(col int) error {
	const op = "RemoveColumn"
	if d.IsRoot() {
		return d.root.RemoveColumn(col)
	}
	if err := d.checkWritable(op); err != nil {
		return err
	}
	if err := d.checkColumn(op, col); err != nil {
		return err
	}
	a := d.root.alloc
	d.visitColumns(func(cols *array.Array) {
		if ref := cols.GetAsRef(col); ref != 0 {
			array.DestroyDeep(a, ref)
		}
		cols.Erase(col)
	})
	d.spec().eraseColumn(col)
	d.changed(func(c int) int {
		switch {
		case c == col:
			return -1
		case c > col:
			return c - 1
		}
		return c
	})
	return nil
}

func (d *Descriptor) RenameColumn(col int, name string) error {
	const op = "RenameColumn"
	if d.IsRoot() {
		return d.root.RenameColumn(col, name)
	}
	if err := d.checkWritable(op); err != nil {
		return err
	}
	if err := d.checkColumn(op, col); err != nil {
		return err
	}
	d.spec().renameColumn(col, name)
	d.changed(func(c int) int { return c })
	return nil
}

func (d *Descriptor) checkWritable(op string) error {
	if err := d.check(op); err != nil {
		return err
	}
	return d.root.checkWritable(op)
}

// visitColumns calls fn with the columns array of every instantiated
// subtable the descriptor governs.
func (d *Descriptor) visitColumns(fn func(cols *array.Array)) {
	if d.root.cols == nil {
		return
	}
	visitSubtableColumns(d.root.alloc, d.root.spec, d.root.columns, d.path, fn)
}

func visitSubtableColumns(a alloc.Allocator, spec *Spec, cols *array.Array, path []int, fn func(*array.Array)) {
	if len(path) == 0 {
		fn(cols)
		return
	}
	c := path[0]
	sc := newSubtableColumn(a, spec, c)
	sc.SetParent(cols, spec.columnSlot(c))
	sc.UpdateFromParent()
	sub := spec.subspec(c)
	for row := 0; row < sc.Size(); row++ {
		if sc.get(row) == 0 {
			continue
		}
		child := array.New(a)
		child.SetParent(sc.cells(), row)
		child.InitFromParent()
		visitSubtableColumns(a, sub, child, path[1:], fn)
	}
}

// changed shifts column-keyed accessors of the affected subtables, then
// re-attaches every subtable accessor of the root.
func (d *Descriptor) changed(shift func(int) int) {
	for _, s := range d.root.subtableAccessorsAt(d.path) {
		s.shiftColumnAccessors(shift)
	}
	d.root.reattachSubtables()
	d.root.record(log.Instruction{Type: log.SubtableChanged, Col: d.path[0], Row: primitives.NPos})
}

// subtableAccessorsAt returns the live subtable accessors reached by
// following path through subtable columns.
func (t *Table) subtableAccessorsAt(path []int) []*Table {
	if len(path) == 0 {
		return []*Table{t}
	}
	var out []*Table
	for key, wp := range t.subtables {
		s := wp.Value()
		if s == nil || key.col != path[0] || s.top != nil {
			continue
		}
		out = append(out, s.subtableAccessorsAt(path[1:])...)
	}
	return out
}

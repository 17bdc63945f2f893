package query

import (
	"strconv"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/types"
)

// schema is the part of a table layout conditions are checked and
// described against. Tables and descriptors both provide it.
type schema interface {
	ColumnCount() int
	ColumnName(col int) (string, error)
	ColumnType(col int) (types.DataType, error)
}

func columnName(s schema, col int) string {
	if s != nil {
		if name, err := s.ColumnName(col); err == nil && name != "" {
			return name
		}
	}
	return "$" + strconv.Itoa(col)
}

func isBool(s schema, col int) bool {
	if s == nil {
		return false
	}
	typ, err := s.ColumnType(col)
	return err == nil && typ == types.Bool
}

// subSchema returns the layout of the subtables in col, or nil.
func subSchema(s schema, col int) schema {
	var d *database.Descriptor
	var err error
	switch s := s.(type) {
	case *database.Table:
		if d, err = s.Descriptor(); err != nil {
			return nil
		}
	case *database.Descriptor:
		d = s
	default:
		return nil
	}
	sub, err := d.Subdescriptor(col)
	if err != nil {
		return nil
	}
	return sub
}

type frameKind int

const (
	rootFrame frameKind = iota
	groupFrame
	subtableFrame
)

// frame collects the conditions of one nesting level. done holds the
// alternatives already closed by Or.
type frame struct {
	kind   frameKind
	schema schema
	col    int
	negate bool

	done       [][]node
	conds      []node
	pendingNot bool
}

func (f *frame) clone() *frame {
	c := &frame{kind: f.kind, schema: f.schema, col: f.col, negate: f.negate, pendingNot: f.pendingNot}
	c.done = make([][]node, len(f.done))
	for i, alt := range f.done {
		c.done[i] = cloneNodes(alt)
	}
	c.conds = cloneNodes(f.conds)
	return c
}

func cloneNodes(ns []node) []node {
	out := make([]node, len(ns))
	for i, n := range ns {
		out[i] = n.clone()
	}
	return out
}

// nodes returns the conjunction the frame stands for.
func (f *frame) nodes() []node {
	if len(f.done) == 0 {
		return f.conds
	}
	or := &orNode{}
	for _, alt := range f.done {
		or.branches = append(or.branches, newParent(alt))
	}
	or.branches = append(or.branches, newParent(f.conds))
	return []node{or}
}

// Query is a condition tree over one table. Builder methods return the
// query itself so calls chain; the first malformed call is remembered and
// reported by every evaluation.
//
// A Query is not safe for concurrent use.
type Query struct {
	table  *database.Table
	frames []*frame
	err    error
}

// Where starts a query over t that matches every row.
func Where(t *database.Table) *Query {
	return &Query{table: t, frames: []*frame{{kind: rootFrame, schema: t}}}
}

// Table returns the table the query runs against.
func (q *Query) Table() *database.Table { return q.table }

// Err returns the first build error, if any.
func (q *Query) Err() error { return q.err }

func (q *Query) top() *frame { return q.frames[len(q.frames)-1] }

func (q *Query) fail(err error, op string) *Query {
	if q.err == nil {
		if dbe, ok := err.(*dberr.DBError); ok {
			err = dbe.In(op, "Query")
		}
		q.err = err
	}
	return q
}

func (q *Query) add(n node) *Query {
	f := q.top()
	if f.pendingNot {
		n = &notNode{inner: newParent([]node{n})}
		f.pendingNot = false
	}
	f.conds = append(f.conds, n)
	return q
}

// checkColumn verifies col exists in the current frame with one of the
// allowed types.
func (q *Query) checkColumn(op string, col int, allowed ...types.DataType) bool {
	if q.err != nil {
		return false
	}
	s := q.top().schema
	if s == nil {
		q.fail(dberr.From(dberr.ErrDetachedAccessor), op)
		return false
	}
	if col < 0 || col >= s.ColumnCount() {
		q.fail(dberr.From(dberr.ErrColumnIndexOutOfRange).WithDetail("column %d of %d", col, s.ColumnCount()), op)
		return false
	}
	typ, err := s.ColumnType(col)
	if err != nil {
		q.fail(err, op)
		return false
	}
	for _, a := range allowed {
		if typ == a {
			return true
		}
	}
	q.fail(dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", col, typ), op)
	return false
}

func (q *Query) checkOrdering(op string, pred types.Predicate) bool {
	if pred.IsStringOnly() {
		q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("%s is only defined for strings", pred), op)
		return false
	}
	return true
}

func (q *Query) intCond(op string, col int, pred types.Predicate, v int64) *Query {
	if !q.checkColumn(op, col, types.Int) || !q.checkOrdering(op, pred) {
		return q
	}
	return q.add(&intNode{col: col, pred: pred, value: v})
}

func (q *Query) Equal(col int, v int64) *Query {
	return q.intCond("Equal", col, types.Equals, v)
}

func (q *Query) NotEqual(col int, v int64) *Query {
	return q.intCond("NotEqual", col, types.NotEqual, v)
}

func (q *Query) Greater(col int, v int64) *Query {
	return q.intCond("Greater", col, types.GreaterThan, v)
}

func (q *Query) GreaterEqual(col int, v int64) *Query {
	return q.intCond("GreaterEqual", col, types.GreaterThanOrEqual, v)
}

func (q *Query) Less(col int, v int64) *Query {
	return q.intCond("Less", col, types.LessThan, v)
}

func (q *Query) LessEqual(col int, v int64) *Query {
	return q.intCond("LessEqual", col, types.LessThanOrEqual, v)
}

// Between matches from <= v <= to.
func (q *Query) Between(col int, from, to int64) *Query {
	return q.GreaterEqual(col, from).LessEqual(col, to)
}

// IntNull compares an int column with null. Only Equals and NotEqual are
// accepted.
func (q *Query) IntNull(col int, pred types.Predicate) *Query {
	const op = "IntNull"
	if !q.checkColumn(op, col, types.Int, types.Bool) {
		return q
	}
	if pred != types.Equals && pred != types.NotEqual {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("%s null is not defined", pred), op)
	}
	return q.add(&intNode{col: col, pred: pred, null: true})
}

func (q *Query) EqualBool(col int, v bool) *Query {
	if !q.checkColumn("EqualBool", col, types.Bool) {
		return q
	}
	var i int64
	if v {
		i = 1
	}
	return q.add(&intNode{col: col, pred: types.Equals, value: i})
}

// CompareFloat adds a comparison of a float column with v.
func (q *Query) CompareFloat(col int, pred types.Predicate, v float32) *Query {
	const op = "CompareFloat"
	if !q.checkColumn(op, col, types.Float) || !q.checkOrdering(op, pred) {
		return q
	}
	return q.add(&floatNode[float32]{col: col, pred: pred, value: v})
}

// CompareDouble adds a comparison of a double column with v.
func (q *Query) CompareDouble(col int, pred types.Predicate, v float64) *Query {
	const op = "CompareDouble"
	if !q.checkColumn(op, col, types.Double) || !q.checkOrdering(op, pred) {
		return q
	}
	return q.add(&floatNode[float64]{col: col, pred: pred, value: v})
}

func (q *Query) BetweenDouble(col int, from, to float64) *Query {
	return q.CompareDouble(col, types.GreaterThanOrEqual, from).CompareDouble(col, types.LessThanOrEqual, to)
}

// CompareTimestamp adds a comparison of a timestamp column with v. A null v only
// supports Equals and NotEqual.
func (q *Query) CompareTimestamp(col int, pred types.Predicate, v types.TimestampValue) *Query {
	const op = "CompareTimestamp"
	if !q.checkColumn(op, col, types.Timestamp) || !q.checkOrdering(op, pred) {
		return q
	}
	if v.IsNull() && pred != types.Equals && pred != types.NotEqual {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("%s null is not defined", pred), op)
	}
	return q.add(&timestampNode{col: col, pred: pred, value: v})
}

// CompareString adds a string condition. Invalid UTF-8 in v makes the query
// invalid.
func (q *Query) CompareString(col int, pred types.Predicate, v string, caseSensitive bool) *Query {
	b := []byte(v)
	if b == nil {
		b = []byte{}
	}
	return q.stringCond("CompareString", col, pred, b, caseSensitive, false)
}

// StringNull compares a string column with null.
func (q *Query) StringNull(col int, pred types.Predicate) *Query {
	return q.stringCond("StringNull", col, pred, nil, true, false)
}

func (q *Query) EqualString(col int, v string) *Query {
	return q.CompareString(col, types.Equals, v, true)
}

func (q *Query) NotEqualString(col int, v string) *Query {
	return q.CompareString(col, types.NotEqual, v, true)
}

func (q *Query) ContainsString(col int, v string, caseSensitive bool) *Query {
	return q.CompareString(col, types.Contains, v, caseSensitive)
}

func (q *Query) BeginsWith(col int, v string, caseSensitive bool) *Query {
	return q.CompareString(col, types.BeginsWith, v, caseSensitive)
}

func (q *Query) EndsWith(col int, v string, caseSensitive bool) *Query {
	return q.CompareString(col, types.EndsWith, v, caseSensitive)
}

// Like matches v as a pattern: '*' matches any run of characters and '?'
// a single one.
func (q *Query) Like(col int, v string, caseSensitive bool) *Query {
	return q.CompareString(col, types.Like, v, caseSensitive)
}

// CompareBinary adds a binary condition. Binaries compare byte-wise; Like and
// case folding are not available.
func (q *Query) CompareBinary(col int, pred types.Predicate, v []byte) *Query {
	if v == nil {
		v = []byte{}
	}
	return q.stringCond("CompareBinary", col, pred, v, true, true)
}

func (q *Query) stringCond(op string, col int, pred types.Predicate, v []byte, caseSensitive, binary bool) *Query {
	want := types.String
	if binary {
		want = types.Binary
	}
	if !q.checkColumn(op, col, want) {
		return q
	}
	n, err := newStringNode(col, pred, v, caseSensitive, binary)
	if err != nil {
		return q.fail(err, op)
	}
	return q.add(n)
}

// IsNull matches rows where col is null. For link columns a missing link
// counts as null.
func (q *Query) IsNull(col int) *Query {
	return q.nullCond("IsNull", col, false)
}

func (q *Query) IsNotNull(col int) *Query {
	return q.nullCond("IsNotNull", col, true)
}

func (q *Query) nullCond(op string, col int, negate bool) *Query {
	if !q.checkColumn(op, col, types.Int, types.Bool, types.Float, types.Double, types.String,
		types.Binary, types.Timestamp, types.Link) {
		return q
	}
	return q.add(&nullNode{col: col, negate: negate})
}

// CompareColumns compares two columns of the same type row by row.
func (q *Query) CompareColumns(col1 int, pred types.Predicate, col2 int) *Query {
	const op = "CompareColumns"
	comparable := []types.DataType{types.Int, types.Bool, types.Float, types.Double, types.Timestamp, types.String, types.Binary}
	if !q.checkColumn(op, col1, comparable...) || !q.checkColumn(op, col2, comparable...) || !q.checkOrdering(op, pred) {
		return q
	}
	s := q.top().schema
	t1, _ := s.ColumnType(col1)
	t2, _ := s.ColumnType(col2)
	if t1 != t2 {
		return q.fail(dberr.From(dberr.ErrTypeMismatch).WithDetail("cannot compare %s with %s", t1, t2), op)
	}
	return q.add(&twoColumnsNode{col1: col1, col2: col2, pred: pred})
}

// LinksTo matches rows whose link or link list in col references target.
func (q *Query) LinksTo(col int, target *database.Row) *Query {
	const op = "LinksTo"
	if !q.checkColumn(op, col, types.Link, types.LinkList) {
		return q
	}
	if target == nil || !target.IsAttached() {
		return q.fail(dberr.From(dberr.ErrDetachedAccessor).WithDetail("link target row"), op)
	}
	return q.add(&linksToNode{col: col, target: target})
}

// Group opens a parenthesized sub-expression, closed by EndGroup.
func (q *Query) Group() *Query {
	f := q.top()
	q.frames = append(q.frames, &frame{kind: groupFrame, schema: f.schema, negate: f.pendingNot})
	f.pendingNot = false
	return q
}

func (q *Query) EndGroup() *Query {
	return q.closeFrame("EndGroup", groupFrame)
}

// Subtable makes the following conditions, up to EndSubtable, apply to
// the rows of the subtables in col. The parent row matches if any of its
// subtable rows does.
func (q *Query) Subtable(col int) *Query {
	if !q.checkColumn("Subtable", col, types.Table) {
		// keep the nesting balanced so EndSubtable stays harmless
		q.frames = append(q.frames, &frame{kind: subtableFrame, col: col})
		return q
	}
	f := q.top()
	q.frames = append(q.frames, &frame{kind: subtableFrame, schema: subSchema(f.schema, col), col: col, negate: f.pendingNot})
	f.pendingNot = false
	return q
}

func (q *Query) EndSubtable() *Query {
	return q.closeFrame("EndSubtable", subtableFrame)
}

func (q *Query) closeFrame(op string, kind frameKind) *Query {
	f := q.top()
	if f.kind != kind || len(q.frames) == 1 {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("unbalanced %s", op), op)
	}
	if err := f.complete(); err != nil {
		q.frames = q.frames[:len(q.frames)-1]
		return q.fail(err, op)
	}
	q.frames = q.frames[:len(q.frames)-1]

	parent := q.top()
	var ns []node
	if kind == subtableFrame {
		ns = []node{&subtableNode{col: f.col, inner: newParent(f.nodes())}}
	} else {
		ns = f.nodes()
	}
	if f.negate {
		ns = []node{&notNode{inner: newParent(ns)}}
	}
	parent.conds = append(parent.conds, ns...)
	return q
}

// complete reports conditions left dangling in f.
func (f *frame) complete() error {
	switch {
	case f.pendingNot:
		return dberr.From(dberr.ErrInvalidQuery).WithDetail("Not without a condition")
	case len(f.done) > 0 && len(f.conds) == 0:
		return dberr.From(dberr.ErrInvalidQuery).WithDetail("Or without a right side")
	}
	return nil
}

// Or separates alternatives: everything added since the start of the
// enclosing group, or the last Or, is one alternative.
func (q *Query) Or() *Query {
	f := q.top()
	if len(f.conds) == 0 {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("Or without a left side"), "Or")
	}
	if f.pendingNot {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("Not without a condition"), "Or")
	}
	f.done = append(f.done, f.conds)
	f.conds = nil
	return q
}

// Not negates the next condition, group or subtable condition.
func (q *Query) Not() *Query {
	f := q.top()
	f.pendingNot = !f.pendingNot
	return q
}

// And adds all conditions of other, which must run on a table with the
// same layout.
func (q *Query) And(other *Query) *Query {
	const op = "And"
	if other.err != nil {
		return q.fail(other.err, op)
	}
	if len(other.frames) != 1 {
		return q.fail(dberr.From(dberr.ErrInvalidQuery).WithDetail("unbalanced query"), op)
	}
	src := other.frames[0]
	if err := src.complete(); err != nil {
		return q.fail(err, op)
	}
	ns := src.clone().nodes()
	f := q.top()
	if f.pendingNot {
		f.pendingNot = false
		ns = []node{&notNode{inner: newParent(ns)}}
	}
	f.conds = append(f.conds, ns...)
	return q
}

// Clone returns an independent copy of q.
func (q *Query) Clone() *Query {
	c := &Query{table: q.table, err: q.err, frames: make([]*frame, len(q.frames))}
	for i, f := range q.frames {
		c.frames[i] = f.clone()
	}
	return c
}

// Rebind returns a copy of q that runs against t. t must have the layout
// of the original table; it is used to move a query to another snapshot.
func (q *Query) Rebind(t *database.Table) *Query {
	c := q.Clone()
	c.table = t
	c.frames[0].schema = t
	return c
}

// HandoverClone returns a clone that keeps no accessor of the current
// group. Link targets are remembered by table and row index and resolved
// again once the clone runs against a table of another session.
func (q *Query) HandoverClone() *Query {
	c := q.Clone()
	for _, f := range c.frames {
		visit := func(n node) {
			if l, ok := n.(*linksToNode); ok {
				l.portable()
			}
		}
		for _, alt := range f.done {
			eachNode(alt, visit)
		}
		eachNode(f.conds, visit)
	}
	return c
}

// Validate reports the first build error, an unbalanced query, or a
// condition that does not fit the table.
func (q *Query) Validate() error {
	_, err := q.compile()
	return err
}

func (q *Query) compile() (*ParentNode, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.frames) != 1 {
		return nil, dberr.From(dberr.ErrInvalidQuery).WithDetail("%d unclosed Group or Subtable", len(q.frames)-1).In("Validate", "Query")
	}
	if q.table == nil || !q.table.IsAttached() {
		return nil, dberr.From(dberr.ErrDetachedAccessor).In("Validate", "Query")
	}
	f := q.frames[0]
	if err := f.complete(); err != nil {
		return nil, err
	}
	root := newParent(f.nodes())
	if err := root.init(q.table); err != nil {
		return nil, err
	}
	return root, nil
}

// Describe renders the condition tree.
func (q *Query) Describe() string {
	if len(q.frames) == 0 {
		return ""
	}
	var s schema
	if q.table != nil && q.table.IsAttached() {
		s = q.table
	}
	return describeAnd(q.frames[0].nodes(), s)
}

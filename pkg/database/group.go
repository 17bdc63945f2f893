package database

import (
	"fmt"
	"io"
	"os"
	"strings"

	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

// Slots of the group top array. Files without free-space tracking stop
// after topFileSize, files without a version after topFreeLengths.
const (
	topNames = iota
	topTables
	topFileSize
	topFreePositions
	topFreeLengths
	topFreeVersions
	topVersion
	topHistoryType
	topHistorySchema

	topSizeMinimal  = topFreePositions
	topSizeFree     = topFreeVersions
	topSizeVersions = topHistoryType
	topSizeHistory  = topHistorySchema + 1
)

// OpenMode selects how OpenFile attaches a database file.
type OpenMode int

const (
	// ModeReadOnly rejects every mutation with READ_ONLY.
	ModeReadOnly OpenMode = iota
	// ModeReadWrite creates the file when it is missing.
	ModeReadWrite
	// ModeReadWriteNoCreate fails with FILE_ACCESS when the file is missing.
	ModeReadWriteNoCreate
)

// Group is a set of named tables backed by one snapshot of a database: an
// in-memory group, a buffer, or a file. Table accessors handed out by the
// group stay valid until their table is removed or the group is closed.
type Group struct {
	alloc  *alloc.SlabAlloc
	top    *array.Array
	names  *array.Blobs
	tables *array.Array

	// accessors is parallel to tables; nil until a table is first used.
	accessors []*Table

	attached bool
	readOnly bool
	// owned groups close their allocator; shared sessions manage it.
	owned bool

	recorder       *log.Encoder
	cascadeHandler CascadeHandler
	historyType    int64
}

func newGroup(a *alloc.SlabAlloc) *Group {
	g := &Group{
		alloc:  a,
		top:    array.New(a),
		names:  array.NewBlobs(a),
		tables: array.New(a),
		owned:  true,
	}
	g.names.SetParent(g.top, topNames)
	g.tables.SetParent(g.top, topTables)
	return g
}

// New returns an empty in-memory group.
func New() *Group {
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	g := newGroup(a)
	g.attach(primitives.NullRef)
	return g
}

// OpenFile attaches the database file at path. A read-write group can be
// persisted back to the file with Commit.
func OpenFile(path string, mode OpenMode) (*Group, error) {
	a := alloc.NewSlabAlloc()
	res, err := a.AttachFile(path, alloc.AttachOptions{
		ReadOnly: mode == ModeReadOnly,
		NoCreate: mode == ModeReadWriteNoCreate,
	})
	if err != nil {
		return nil, err
	}
	g := newGroup(a)
	g.readOnly = mode == ModeReadOnly
	if err := g.attachChecked(res.TopRef); err != nil {
		return nil, err
	}
	logging.Debug("group opened", "path", path, "top", res.TopRef, "size", res.FileSize, "streaming", res.Streaming)
	return g, nil
}

// OpenBuffer attaches a database image produced by Write. The buffer is
// never modified; changes live in memory until written elsewhere.
func OpenBuffer(buf []byte) (*Group, error) {
	a := alloc.NewSlabAlloc()
	res, err := a.AttachBuffer(buf, false)
	if err != nil {
		return nil, err
	}
	g := newGroup(a)
	if err := g.attachChecked(res.TopRef); err != nil {
		return nil, err
	}
	return g, nil
}

// attachChecked attaches a freshly opened group, rejecting top arrays of
// a layout no known file format produces.
func (g *Group) attachChecked(ref primitives.Ref) error {
	g.attach(ref)
	switch n := g.top.Size(); n {
	case topSizeMinimal, topSizeFree, topSizeVersions, topSizeHistory:
		return nil
	default:
		g.Close()
		return dberr.From(dberr.ErrInvalidDatabase).WithDetail("top array of %d slots", n).In("Open", "Group")
	}
}

// attach binds the group to the top array at ref, creating an empty one
// for NullRef, and re-attaches every live table accessor.
func (g *Group) attach(ref primitives.Ref) {
	if ref == primitives.NullRef {
		g.createTop()
	} else {
		g.top.InitFromRef(ref)
		g.names.InitFromParent()
		g.tables.InitFromParent()
	}
	g.attached = true

	n := g.tables.Size()
	for i, t := range g.accessors {
		if t == nil {
			continue
		}
		if i >= n {
			t.detach()
			continue
		}
		t.ndx = i
		t.attachFromParent()
	}
	switch {
	case len(g.accessors) > n:
		clear(g.accessors[n:])
		g.accessors = g.accessors[:n]
	case len(g.accessors) < n:
		g.accessors = append(g.accessors, make([]*Table, n-len(g.accessors))...)
	}
}

func (g *Group) createTop() {
	g.top.Create(array.TypeHasRefs, false, 0, 0)
	names := array.NewBlobs(g.alloc)
	names.Create(0, nil)
	tables := array.CreateArray(g.alloc, array.TypeHasRefs, false, 0, 0)
	g.top.Add(int64(names.Ref()))
	g.top.Add(int64(tables.Ref()))
	g.top.Add(primitives.TagInt(0))
	g.names.InitFromParent()
	g.tables.InitFromParent()
}

// topValue returns a tagged slot of the top array, 0 when the top is too
// short to hold it.
func (g *Group) topValue(slot int) int64 {
	if g.top.Size() <= slot {
		return 0
	}
	return primitives.UntagInt(g.top.Get(slot))
}

// topRef returns a ref slot of the top array, NullRef when absent.
func (g *Group) topRef(slot int) primitives.Ref {
	if g.top.Size() <= slot {
		return primitives.NullRef
	}
	return g.top.GetAsRef(slot)
}

// logicalFileSize is the file size recorded by the commit that produced
// the attached snapshot.
func (g *Group) logicalFileSize() int {
	return int(g.topValue(topFileSize))
}

// SnapshotVersion returns the version stored in the attached snapshot, 0
// for files that do not record one.
func (g *Group) SnapshotVersion() primitives.Version {
	return primitives.Version(g.topValue(topVersion))
}

// detachAccessors invalidates every table accessor.
func (g *Group) detachAccessors() {
	for _, t := range g.accessors {
		if t != nil {
			t.detach()
		}
	}
	g.accessors = nil
	g.attached = false
}

// IsAttached reports whether the group is bound to a snapshot.
func (g *Group) IsAttached() bool {
	return g != nil && g.attached
}

// Close detaches every accessor and releases the file or buffer.
func (g *Group) Close() error {
	if g.attached {
		g.detachAccessors()
	}
	if !g.owned || !g.alloc.IsAttached() {
		return nil
	}
	return g.alloc.Detach()
}

func (g *Group) checkAttached(op string) error {
	if !g.IsAttached() {
		return dberr.From(dberr.ErrDetachedAccessor).In(op, "Group")
	}
	return nil
}

func (g *Group) checkWritable(op string) error {
	if err := g.checkAttached(op); err != nil {
		return err
	}
	if g.readOnly {
		return dberr.From(dberr.ErrReadOnly).In(op, "Group")
	}
	return nil
}

func (g *Group) checkTable(op string, ndx int) error {
	if err := g.checkAttached(op); err != nil {
		return err
	}
	if n := g.TableCount(); ndx < 0 || ndx >= n {
		return dberr.From(dberr.ErrTableIndexOutOfRange).WithDetail("table %d of %d", ndx, n).In(op, "Group")
	}
	return nil
}

func (g *Group) TableCount() int {
	if !g.IsAttached() {
		return 0
	}
	return g.tables.Size()
}

// TableName returns the name of table ndx, "" when out of range.
func (g *Group) TableName(ndx int) string {
	if !g.IsAttached() || ndx < 0 || ndx >= g.names.Size() {
		return ""
	}
	return string(g.names.Get(ndx))
}

// FindTable returns the index of the table called name, or NotFound.
func (g *Group) FindTable(name string) int {
	if !g.IsAttached() {
		return primitives.NotFound
	}
	for i := 0; i < g.names.Size(); i++ {
		if string(g.names.Get(i)) == name {
			return i
		}
	}
	return primitives.NotFound
}

func (g *Group) HasTable(name string) bool {
	return g.FindTable(name) != primitives.NotFound
}

// tableAt returns the accessor of table ndx, creating it on first use.
func (g *Group) tableAt(ndx int) *Table {
	if t := g.accessors[ndx]; t != nil {
		return t
	}
	t := newGroupTable(g, ndx)
	g.accessors[ndx] = t
	return t
}

// GetTable returns the accessor of table ndx. Repeated calls return the
// same accessor.
func (g *Group) GetTable(ndx int) (*Table, error) {
	if err := g.checkTable("GetTable", ndx); err != nil {
		return nil, err
	}
	return g.tableAt(ndx), nil
}

func (g *Group) GetTableByName(name string) (*Table, error) {
	if err := g.checkAttached("GetTableByName"); err != nil {
		return nil, err
	}
	ndx := g.FindTable(name)
	if ndx == primitives.NotFound {
		return nil, dberr.From(dberr.ErrNoSuchTable).WithDetail("%q", name).In("GetTableByName", "Group")
	}
	return g.tableAt(ndx), nil
}

// AddTable appends an empty table called name.
func (g *Group) AddTable(name string) (*Table, error) {
	return g.InsertTable(g.TableCount(), name)
}

// GetOrAddTable returns the table called name, adding it when missing.
// added reports whether the table was created.
func (g *Group) GetOrAddTable(name string) (t *Table, added bool, err error) {
	if ndx := g.FindTable(name); ndx != primitives.NotFound {
		return g.tableAt(ndx), false, nil
	}
	t, err = g.AddTable(name)
	return t, err == nil, err
}

// InsertTable inserts an empty table called name at ndx. Tables at and
// after ndx move up by one, and so do the link targets pointing at them.
func (g *Group) InsertTable(ndx int, name string) (*Table, error) {
	const op = "InsertTable"
	if err := g.checkWritable(op); err != nil {
		return nil, err
	}
	if n := g.TableCount(); ndx < 0 || ndx > n {
		return nil, dberr.From(dberr.ErrTableIndexOutOfRange).WithDetail("table %d of %d", ndx, n).In(op, "Group")
	}
	if err := g.checkName(op, name); err != nil {
		return nil, err
	}

	g.tables.Insert(ndx, int64(createTableTop(g.alloc)))
	g.names.Insert(ndx, []byte(name))
	g.accessors = append(g.accessors, nil)
	copy(g.accessors[ndx+1:], g.accessors[ndx:])
	g.accessors[ndx] = nil
	g.reindexTables(func(i int) int {
		if i >= ndx {
			return i + 1
		}
		return i
	})
	g.record(log.Instruction{Type: log.InsertTable, Table: ndx, Name: name})
	return g.tableAt(ndx), nil
}

func (g *Group) checkName(op, name string) error {
	if len(name) > maxTableNameLength {
		return dberr.From(dberr.ErrIllegalCombination).WithDetail("table name of %d bytes", len(name)).In(op, "Group")
	}
	if g.HasTable(name) {
		return dberr.From(dberr.ErrTableNameInUse).WithDetail("%q", name).In(op, "Group")
	}
	return nil
}

// maxTableNameLength bounds table names.
const maxTableNameLength = 63

// reindexTables moves every accessor to its new position, then rewrites
// the table indices stored in link specs through fn.
func (g *Group) reindexTables(fn func(int) int) {
	g.rebindAccessors()
	for i := range g.accessors {
		g.tableAt(i).spec.adjustTableIndices(fn)
	}
}

// rebindAccessors re-attaches every accessor at its current position.
func (g *Group) rebindAccessors() {
	for i, t := range g.accessors {
		if t == nil {
			continue
		}
		t.ndx = i
		t.attachFromParent()
	}
}

// RemoveTable removes table ndx. A table that other tables link to cannot
// be removed; links from the table itself go along with it.
func (g *Group) RemoveTable(ndx int) error {
	const op = "RemoveTable"
	if err := g.checkWritable(op); err != nil {
		return err
	}
	if err := g.checkTable(op, ndx); err != nil {
		return err
	}
	t := g.tableAt(ndx)
	for col := t.spec.PublicColumnCount(); col < t.spec.ColumnCount(); col++ {
		if origin, _ := t.spec.BacklinkOrigin(col); origin != ndx {
			return dberr.From(dberr.ErrCrossTableLinkTarget).
				WithDetail("%q is linked from %q", g.TableName(ndx), g.TableName(origin)).In(op, "Group")
		}
	}
	for col := t.spec.PublicColumnCount() - 1; col >= 0; col-- {
		if t.spec.isLinkColumn(col) {
			if err := t.RemoveColumn(col); err != nil {
				return err
			}
		}
	}

	name := g.TableName(ndx)
	array.DestroyDeep(g.alloc, g.tables.GetAsRef(ndx))
	g.tables.Erase(ndx)
	g.names.Erase(ndx)
	t.detach()
	g.accessors = append(g.accessors[:ndx], g.accessors[ndx+1:]...)
	g.reindexTables(func(i int) int {
		if i > ndx {
			return i - 1
		}
		return i
	})
	g.record(log.Instruction{Type: log.EraseTable, Table: ndx, Name: name})
	return nil
}

// RemoveTableByName removes the table called name.
func (g *Group) RemoveTableByName(name string) error {
	ndx := g.FindTable(name)
	if ndx == primitives.NotFound {
		return dberr.From(dberr.ErrNoSuchTable).WithDetail("%q", name).In("RemoveTable", "Group")
	}
	return g.RemoveTable(ndx)
}

func (g *Group) RenameTable(ndx int, name string) error {
	const op = "RenameTable"
	if err := g.checkWritable(op); err != nil {
		return err
	}
	if err := g.checkTable(op, ndx); err != nil {
		return err
	}
	if g.TableName(ndx) == name {
		return nil
	}
	if err := g.checkName(op, name); err != nil {
		return err
	}
	g.names.Set(ndx, []byte(name))
	g.record(log.Instruction{Type: log.RenameTable, Table: ndx, Name: name})
	return nil
}

// MoveTable moves table from to position to, shifting the tables between.
func (g *Group) MoveTable(from, to int) error {
	const op = "MoveTable"
	if err := g.checkWritable(op); err != nil {
		return err
	}
	if err := g.checkTable(op, from); err != nil {
		return err
	}
	if err := g.checkTable(op, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}
	ref := g.tables.Get(from)
	name := []byte(g.TableName(from))
	g.tables.Erase(from)
	g.tables.Insert(to, ref)
	g.names.Erase(from)
	g.names.Insert(to, name)

	moved := g.accessors[from]
	g.accessors = append(g.accessors[:from], g.accessors[from+1:]...)
	g.accessors = append(g.accessors[:to], append([]*Table{moved}, g.accessors[to:]...)...)
	g.reindexTables(moveMapping(from, to))
	g.record(log.Instruction{Type: log.MoveTable, Table: from, Col: to})
	return nil
}

// moveMapping returns where each index ends up after moving from to to.
func moveMapping(from, to int) func(int) int {
	return func(i int) int {
		switch {
		case i == from:
			return to
		case from < to && i > from && i <= to:
			return i - 1
		case to < from && i >= to && i < from:
			return i + 1
		}
		return i
	}
}

// adjustOriginColumns rewrites the origin column of every backlink column
// whose origin lies in table tableNdx.
func (g *Group) adjustOriginColumns(tableNdx int, fn func(int) int) {
	for i := range g.accessors {
		s := g.tableAt(i).spec
		for col := s.PublicColumnCount(); col < s.ColumnCount(); col++ {
			if s.ColumnType(col) != primitives.ColTypeBackLink {
				continue
			}
			ot, oc := s.BacklinkOrigin(col)
			if ot == tableNdx && fn(oc) != oc {
				s.setBacklinkOrigin(col, ot, fn(oc))
			}
		}
	}
}

func (g *Group) record(in log.Instruction) {
	if g.recorder != nil {
		g.recorder.Append(in)
	}
}

// Equal reports whether both groups hold equally named tables with equal
// contents, in the same order.
func (g *Group) Equal(o *Group) bool {
	if !g.IsAttached() || !o.IsAttached() || g.TableCount() != o.TableCount() {
		return false
	}
	for i := 0; i < g.TableCount(); i++ {
		if g.TableName(i) != o.TableName(i) || !g.tableAt(i).Equal(o.tableAt(i)) {
			return false
		}
	}
	return true
}

// Verify checks every table and the agreement between table names and
// table refs.
func (g *Group) Verify() error {
	if err := g.checkAttached("Verify"); err != nil {
		return err
	}
	if g.names.Size() != g.tables.Size() {
		return dberr.From(dberr.ErrInvalidDatabase).
			WithDetail("%d table names for %d tables", g.names.Size(), g.tables.Size()).In("Verify", "Group")
	}
	for i := 0; i < g.TableCount(); i++ {
		if err := g.tableAt(i).Verify(); err != nil {
			return dberr.Wrap(err, dberr.CodeInvalidDatabase, "Verify", "Group")
		}
	}
	return nil
}

// String lists the tables with their sizes.
func (g *Group) String() string {
	if !g.IsAttached() {
		return "<detached group>"
	}
	var sb strings.Builder
	for _, ti := range NewResultFormatter().FormatGroup(g).Tables {
		fmt.Fprintf(&sb, "%-20s %6d rows %3d columns", ti.Name, ti.Rows, ti.Columns)
		if len(ti.Links) > 0 {
			fmt.Fprintf(&sb, "  %s", strings.Join(ti.Links, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Write serializes the group in streaming form: a fresh, compacted image
// that OpenBuffer and OpenFile accept.
func (g *Group) Write(w io.Writer) error {
	if err := g.checkAttached("Write"); err != nil {
		return err
	}
	return writeStreaming(g, w)
}

// WriteToFile writes the group to a new file. An existing file is never
// overwritten.
func (g *Group) WriteToFile(path string) error {
	if err := g.checkAttached("WriteToFile"); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return dberr.From(dberr.ErrFileAccess).WithDetail("%s", path).WithCause(err).In("WriteToFile", "Group")
	}
	if err := writeStreaming(g, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("WriteToFile", "Group")
	}
	return f.Close()
}

// Commit persists the changes of a group opened read-write with OpenFile
// to its file, then re-attaches to the committed state.
func (g *Group) Commit() error {
	const op = "Commit"
	if err := g.checkWritable(op); err != nil {
		return err
	}
	if !g.alloc.IsFileBacked() {
		return dberr.From(dberr.ErrWrongTransactState).WithDetail("group is not attached to a file").In(op, "Group")
	}
	res, err := g.writeCommit(g.SnapshotVersion(), true)
	if err != nil {
		return err
	}
	return g.remapAndAttach(res.TopRef, res.FileSize)
}

// remapAndAttach drops the slabs of the finished transaction, extends the
// mapping to the committed file size and attaches to top.
func (g *Group) remapAndAttach(top primitives.Ref, fileSize int) error {
	g.alloc.ResetSlabs()
	if err := g.alloc.Remap(fileSize); err != nil {
		g.detachAccessors()
		return err
	}
	g.attach(top)
	return nil
}

package database

import (
	"encoding/binary"
	"math"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/types"
)

// Slots of the mixed column top array.
const (
	mixedTypes = iota
	mixedInts
	mixedSubtables
	mixedBlobs
)

// MixedColumn stores a value of any type per row. The types tree holds the
// DataType+1 of each cell (0 for null), ints hold integer payloads and float
// bits, blobs hold strings, binaries and timestamp nanoseconds, and
// subtables hold the [spec, columns] top of a free-standing table.
type MixedColumn struct {
	alloc     alloc.Allocator
	top       *array.Array
	types     *bptree.Tree[int64]
	ints      *bptree.Tree[int64]
	subtables *bptree.Tree[int64]
	blobs     *bptree.Tree[[]byte]
	ndx       int
}

func newMixedColumn(a alloc.Allocator) *MixedColumn {
	return &MixedColumn{
		alloc:     a,
		top:       array.New(a),
		types:     bptree.New(a, bptree.NewIntLeaf),
		ints:      bptree.New(a, bptree.NewIntLeaf),
		subtables: bptree.New(a, bptree.NewRefLeaf),
		blobs:     bptree.New(a, bptree.NewBlobLeaf),
	}
}

func (c *MixedColumn) create(size int) primitives.Ref {
	c.top.Create(array.TypeHasRefs, false, 0, 0)
	c.top.Add(int64(c.types.Create()))
	c.top.Add(int64(c.ints.Create()))
	c.top.Add(int64(c.subtables.Create()))
	c.top.Add(int64(c.blobs.Create()))
	c.setChildParents()
	c.InsertRows(0, size, 0)
	return c.top.Ref()
}

func (c *MixedColumn) setChildParents() {
	c.types.SetParent(c.top, mixedTypes)
	c.ints.SetParent(c.top, mixedInts)
	c.subtables.SetParent(c.top, mixedSubtables)
	c.blobs.SetParent(c.top, mixedBlobs)
}

func (c *MixedColumn) attach(ref primitives.Ref) {
	c.top.InitFromRef(ref)
	c.initChildren()
}

func (c *MixedColumn) initChildren() {
	c.setChildParents()
	c.types.InitFromParent()
	c.ints.InitFromParent()
	c.subtables.InitFromParent()
	c.blobs.InitFromParent()
}

func (c *MixedColumn) Type() primitives.ColumnType { return primitives.ColTypeMixed }
func (c *MixedColumn) Ref() primitives.Ref         { return c.top.Ref() }
func (c *MixedColumn) NdxInParent() int            { return c.ndx }
func (c *MixedColumn) Size() int                   { return c.types.Size() }
func (c *MixedColumn) IsNullable() bool            { return true }
func (c *MixedColumn) IsNull(row int) bool         { return c.types.Get(row) == 0 }

func (c *MixedColumn) SetParent(p array.Parent, ndx int) {
	c.ndx = ndx
	c.top.SetParent(p, ndx)
}

func (c *MixedColumn) UpdateFromParent() {
	c.top.InitFromParent()
	c.initChildren()
}

// CellType returns the type of the value in row; ok is false for null.
func (c *MixedColumn) CellType(row int) (types.DataType, bool) {
	t := c.types.Get(row)
	if t == 0 {
		return 0, false
	}
	return types.DataType(t - 1), true
}

func (c *MixedColumn) Value(row int) types.Mixed {
	t, ok := c.CellType(row)
	if !ok {
		return types.NullMixed()
	}
	i := c.ints.Get(row)
	switch t {
	case types.Int:
		return types.MixedInt(i)
	case types.Bool:
		return types.MixedBool(i != 0)
	case types.Float:
		return types.MixedFloat(math.Float32frombits(uint32(i)))
	case types.Double:
		return types.MixedDouble(math.Float64frombits(uint64(i)))
	case types.String:
		return types.MixedString(string(c.blobs.Get(row)))
	case types.Binary:
		return types.MixedBinary(c.blobs.Get(row))
	case types.Timestamp:
		nanos := int32(binary.BigEndian.Uint32(c.blobs.Get(row)))
		return types.MixedTimestamp(types.NewTimestamp(i, nanos))
	case types.Table:
		return types.MixedSubtable()
	default:
		return types.NullMixed()
	}
}

// Set stores v in row. A Table value creates an empty subtable with no
// columns; use the owning table to reach it.
func (c *MixedColumn) Set(row int, v types.Mixed) error {
	if v.IsNull() {
		return c.SetNull(row)
	}
	var (
		ints int64
		blob []byte
		sub  primitives.Ref
	)
	switch v.Type() {
	case types.Int, types.Bool:
		ints = v.Int()
	case types.Float:
		ints = int64(math.Float32bits(v.Float()))
	case types.Double:
		ints = int64(math.Float64bits(v.Double()))
	case types.String, types.Binary:
		blob = v.Bytes()
		if len(blob) > maxBlobSize {
			return dberr.From(dberr.ErrStringTooBig).WithDetail("%d bytes", len(blob)).In("Set", "MixedColumn")
		}
		if blob == nil {
			blob = []byte{}
		}
	case types.Timestamp:
		ts := v.Timestamp()
		ints = ts.Seconds
		blob = binary.BigEndian.AppendUint32(nil, uint32(ts.Nanos))
	case types.Table:
		sub = createTableTop(c.alloc)
	default:
		return dberr.From(dberr.ErrTypeMismatch).WithDetail("%s in mixed column", v.Type()).In("Set", "MixedColumn")
	}

	c.clearCell(row)
	c.types.Set(row, int64(v.Type())+1)
	c.ints.Set(row, ints)
	c.blobs.Set(row, blob)
	c.subtables.Set(row, int64(sub))
	return nil
}

func (c *MixedColumn) SetNull(row int) error {
	c.clearCell(row)
	c.types.Set(row, 0)
	c.ints.Set(row, 0)
	c.blobs.Set(row, nil)
	return nil
}

func (c *MixedColumn) clearCell(row int) {
	if ref := c.subtables.Get(row); ref != 0 {
		array.DestroyDeep(c.alloc, primitives.Ref(ref))
		c.subtables.Set(row, 0)
	}
}

// subtableRef returns the table top stored in row, or 0.
func (c *MixedColumn) subtableRef(row int) primitives.Ref {
	return primitives.Ref(c.subtables.Get(row))
}

func (c *MixedColumn) subtableCells() cellParent {
	return cellParent{tree: c.subtables}
}

func (c *MixedColumn) InsertRows(row, n, priorSize int) {
	for i := 0; i < n; i++ {
		c.types.Insert(row+i, 0)
		c.ints.Insert(row+i, 0)
		c.subtables.Insert(row+i, 0)
		c.blobs.Insert(row+i, nil)
	}
}

func (c *MixedColumn) Erase(row int, isLast bool) {
	c.clearCell(row)
	c.types.Erase(row)
	c.ints.Erase(row)
	c.subtables.Erase(row)
	c.blobs.Erase(row)
}

func (c *MixedColumn) MoveLastOver(row, last int) {
	c.clearCell(row)
	if row != last {
		c.types.Set(row, c.types.Get(last))
		c.ints.Set(row, c.ints.Get(last))
		c.subtables.Set(row, c.subtables.Get(last))
		c.blobs.Set(row, cloneBlob(c.blobs.Get(last)))
	}
	c.types.Erase(last)
	c.ints.Erase(last)
	c.subtables.Erase(last)
	c.blobs.Erase(last)
}

func (c *MixedColumn) SwapRows(a, b int) {
	ta, tb := c.types.Get(a), c.types.Get(b)
	c.types.Set(a, tb)
	c.types.Set(b, ta)
	ia, ib := c.ints.Get(a), c.ints.Get(b)
	c.ints.Set(a, ib)
	c.ints.Set(b, ia)
	sa, sb := c.subtables.Get(a), c.subtables.Get(b)
	c.subtables.Set(a, sb)
	c.subtables.Set(b, sa)
	ba, bb := cloneBlob(c.blobs.Get(a)), cloneBlob(c.blobs.Get(b))
	c.blobs.Set(a, bb)
	c.blobs.Set(b, ba)
}

func cloneBlob(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte{}, v...)
}

func (c *MixedColumn) Clear() {
	c.types.Clear()
	c.ints.Clear()
	c.subtables.Clear()
	c.blobs.Clear()
}

func (c *MixedColumn) Destroy() {
	c.top.DestroyDeep()
}

// CompareValues orders null first, then by type, then by value.
func (c *MixedColumn) CompareValues(a, b int) int {
	va, vb := c.Value(a), c.Value(b)
	switch {
	case va.IsNull() || vb.IsNull():
		return types.CompareOrdered(boolToInt(!va.IsNull()), boolToInt(!vb.IsNull()))
	case va.Type() != vb.Type():
		return types.CompareOrdered(va.Type(), vb.Type())
	}
	switch va.Type() {
	case types.Float, types.Double:
		return types.CompareOrdered(va.Double(), vb.Double())
	case types.String, types.Binary:
		return types.CompareOrdered(string(va.Bytes()), string(vb.Bytes()))
	case types.Timestamp:
		return va.Timestamp().Compare(vb.Timestamp())
	case types.Table:
		return 0
	default:
		return types.CompareOrdered(va.Int(), vb.Int())
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (c *MixedColumn) Verify() error {
	for _, err := range []error{c.types.Verify(), c.ints.Verify(), c.subtables.Verify(), c.blobs.Verify()} {
		if err != nil {
			return err
		}
	}
	n := c.types.Size()
	if c.ints.Size() != n || c.subtables.Size() != n || c.blobs.Size() != n {
		return dberr.From(dberr.ErrInvalidDatabase).WithDetail("mixed column subtrees differ in size").In("Verify", "MixedColumn")
	}
	return nil
}

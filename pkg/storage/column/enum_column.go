package column

import (
	"fmt"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// FindRes tells how FindAllIndexRef answered.
type FindRes int

const (
	FindResNotFound FindRes = iota
	FindResSingle
	FindResList
	// FindResColumn means there is no index; the caller scans key indices.
	FindResColumn
)

// StringEnumColumn stores strings as indices into a column of unique keys.
// The keys column lives in the table spec and is shared with nothing else;
// null is stored as a key like any other value. Keys are only appended,
// PruneKeys drops the unused ones.
type StringEnumColumn struct {
	treeColumn[array.NullInt]
	keys     *StringColumn
	nullable bool
}

// NewStringEnumColumn returns an unattached accessor over the given keys.
func NewStringEnumColumn(a alloc.Allocator, keys *StringColumn, nullable bool) *StringEnumColumn {
	c := &StringEnumColumn{keys: keys, nullable: nullable}
	c.treeColumn = newTreeColumn(a, bptree.NewNotNullIntLeaf, false, traits[array.NullInt]{
		zero:   array.Int(0),
		isNull: func(array.NullInt) bool { return false },
		equal:  func(a, b array.NullInt) bool { return a == b },
		key:    func(v array.NullInt) index.Key { return c.keyOf(int(v.Int64)) },
	})
	return c
}

// CreateStringEnumColumn builds an enumeration of values. keys must be an
// empty, attached nullable string column.
func CreateStringEnumColumn(a alloc.Allocator, keys *StringColumn, nullable bool, values [][]byte) *StringEnumColumn {
	c := NewStringEnumColumn(a, keys, nullable)
	c.create(0)
	for _, v := range values {
		c.insert(primitives.NPos, array.Int(int64(c.GetKeyNdxOrAdd(v))), 1)
	}
	return c
}

func (c *StringEnumColumn) Attach(ref primitives.Ref) { c.attach(ref) }

func (c *StringEnumColumn) Type() primitives.ColumnType { return primitives.ColTypeStringEnum }
func (c *StringEnumColumn) IsNullable() bool            { return c.nullable }

// Keys returns the keys column.
func (c *StringEnumColumn) Keys() *StringColumn { return c.keys }

func (c *StringEnumColumn) keyOf(k int) index.Key {
	v := c.keys.Get(k)
	if v == nil {
		return index.NullKey()
	}
	return index.StringKey(v)
}

// GetKeyNdx returns the key index of v, or NotFound.
func (c *StringEnumColumn) GetKeyNdx(v []byte) int {
	return c.keys.FindFirst(v, 0, primitives.NPos)
}

// GetKeyNdxOrAdd returns the key index of v, appending it to the keys if
// needed.
func (c *StringEnumColumn) GetKeyNdxOrAdd(v []byte) int {
	if k := c.GetKeyNdx(v); k != primitives.NotFound {
		return k
	}
	k := c.keys.Size()
	c.keys.insert(primitives.NPos, cloneBytes(v), 1)
	return k
}

func cloneBytes(v []byte) []byte {
	if v == nil {
		return nil
	}
	return append([]byte{}, v...)
}

// KeyNdxAt returns the key index stored at row.
func (c *StringEnumColumn) KeyNdxAt(row int) int {
	return int(c.get(row).Int64)
}

// Get returns the value of row, aliasing key memory.
func (c *StringEnumColumn) Get(row int) []byte {
	return c.keys.Get(c.KeyNdxAt(row))
}

func (c *StringEnumColumn) GetString(row int) string {
	return string(c.Get(row))
}

func (c *StringEnumColumn) IsNull(row int) bool {
	return c.Get(row) == nil
}

func (c *StringEnumColumn) Value(row int) types.Mixed {
	v := c.Get(row)
	if v == nil {
		return types.NullMixed()
	}
	return types.MixedString(string(v))
}

func (c *StringEnumColumn) Set(row int, v []byte) error {
	if v == nil && !c.nullable {
		return errNotNullable()
	}
	c.set(row, array.Int(int64(c.GetKeyNdxOrAdd(v))))
	return nil
}

func (c *StringEnumColumn) SetNull(row int) error {
	return c.Set(row, nil)
}

// Insert adds n copies of v at row; row == NPos appends.
func (c *StringEnumColumn) Insert(row int, v []byte, n int) error {
	if v == nil && !c.nullable {
		return errNotNullable()
	}
	c.insert(row, array.Int(int64(c.GetKeyNdxOrAdd(v))), n)
	return nil
}

// Add appends a string value.
func (c *StringEnumColumn) Add(s string) {
	_ = c.Insert(primitives.NPos, []byte(s), 1)
}

func (c *StringEnumColumn) InsertRows(row, n, priorSize int) {
	var def []byte
	if !c.nullable {
		def = []byte{}
	}
	if row == priorSize {
		row = primitives.NPos
	}
	_ = c.Insert(row, def, n)
}

// Count returns the number of rows holding v.
func (c *StringEnumColumn) Count(v []byte) int {
	k := c.GetKeyNdx(v)
	if k == primitives.NotFound {
		return 0
	}
	return c.count(array.Int(int64(k)))
}

func (c *StringEnumColumn) FindFirst(v []byte, begin, end int) int {
	k := c.GetKeyNdx(v)
	if k == primitives.NotFound {
		return primitives.NotFound
	}
	return c.findFirst(array.Int(int64(k)), begin, end)
}

func (c *StringEnumColumn) FindAll(v []byte, begin, end int) []int {
	k := c.GetKeyNdx(v)
	if k == primitives.NotFound {
		return nil
	}
	return c.findAll(array.Int(int64(k)), begin, end)
}

// FindAllIndexRef answers an equality search from the index alone when there
// is one. Without an index it returns FindResColumn and the key index the
// caller should scan for (NotFound when no row can match).
func (c *StringEnumColumn) FindAllIndexRef(v []byte) (FindRes, []int, int) {
	k := c.GetKeyNdx(v)
	if c.index == nil {
		return FindResColumn, nil, k
	}
	if k == primitives.NotFound {
		return FindResNotFound, nil, k
	}
	rows := c.index.FindAll(c.keyOf(k))
	switch len(rows) {
	case 0:
		return FindResNotFound, nil, k
	case 1:
		return FindResSingle, rows, k
	default:
		return FindResList, rows, k
	}
}

// CompareValues orders null after every non-null value.
func (c *StringEnumColumn) CompareValues(a, b int) int {
	return compareBytes(c.Get(a), c.Get(b))
}

// Destroy frees the key indices and the index. The keys belong to the spec.
func (c *StringEnumColumn) Destroy() {
	c.treeColumn.Destroy()
}

// PruneKeys drops keys that no row refers to and renumbers the rest,
// keeping their relative order.
func (c *StringEnumColumn) PruneKeys() int {
	used := make([]bool, c.keys.Size())
	c.ForEach(0, c.Size(), func(_ int, v array.NullInt) bool {
		used[v.Int64] = true
		return true
	})
	remap := make([]int64, len(used))
	var kept [][]byte
	for k, u := range used {
		if u {
			remap[k] = int64(len(kept))
			kept = append(kept, cloneBytes(c.keys.Get(k)))
		}
	}
	dropped := len(used) - len(kept)
	if dropped == 0 {
		return 0
	}
	c.keys.Clear()
	for _, v := range kept {
		c.keys.insert(primitives.NPos, v, 1)
	}
	// index keys are values, not key indices, so the index stays valid
	for row := 0; row < c.Size(); row++ {
		old := c.get(row).Int64
		if remap[old] != old {
			c.tree.Set(row, array.Int(remap[old]))
		}
	}
	return dropped
}

func (c *StringEnumColumn) Verify() error {
	n := c.keys.Size()
	seen := make(map[string]bool, n)
	for k := 0; k < n; k++ {
		v := c.keys.Get(k)
		id := "\x00"
		if v != nil {
			id = "\x01" + string(v)
		}
		if seen[id] {
			return fmt.Errorf("string enum: duplicate key %q", v)
		}
		seen[id] = true
	}
	var err error
	c.ForEach(0, c.Size(), func(row int, v array.NullInt) bool {
		if v.Int64 < 0 || int(v.Int64) >= n {
			err = fmt.Errorf("string enum: row %d refers to key %d of %d", row, v.Int64, n)
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return c.treeColumn.Verify()
}

package column

import (
	"bytes"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/bptree"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// MaxStringSize bounds string and binary values.
const MaxStringSize = 16<<20 - 1

// StringColumn stores strings or binary values. A nil value is null.
type StringColumn struct {
	treeColumn[[]byte]
	typ primitives.ColumnType
}

func bytesTraits(indexable bool) traits[[]byte] {
	tr := traits[[]byte]{
		null:   nil,
		zero:   []byte{},
		isNull: func(v []byte) bool { return v == nil },
		equal: func(a, b []byte) bool {
			if a == nil || b == nil {
				return a == nil && b == nil
			}
			return bytes.Equal(a, b)
		},
	}
	if indexable {
		tr.key = func(v []byte) index.Key {
			if v == nil {
				return index.NullKey()
			}
			return index.StringKey(v)
		}
	}
	return tr
}

// NewStringColumn returns an unattached string accessor.
func NewStringColumn(a alloc.Allocator, nullable bool) *StringColumn {
	return &StringColumn{
		treeColumn: newTreeColumn(a, bptree.NewBlobLeaf, nullable, bytesTraits(true)),
		typ:        primitives.ColTypeString,
	}
}

// NewBinaryColumn returns an unattached binary accessor.
func NewBinaryColumn(a alloc.Allocator, nullable bool) *StringColumn {
	return &StringColumn{
		treeColumn: newTreeColumn(a, bptree.NewBlobLeaf, nullable, bytesTraits(false)),
		typ:        primitives.ColTypeBinary,
	}
}

// CreateStringColumn allocates a string column of size default cells.
func CreateStringColumn(a alloc.Allocator, nullable bool, size int) *StringColumn {
	c := NewStringColumn(a, nullable)
	c.create(size)
	return c
}

// CreateBinaryColumn allocates a binary column of size default cells.
func CreateBinaryColumn(a alloc.Allocator, nullable bool, size int) *StringColumn {
	c := NewBinaryColumn(a, nullable)
	c.create(size)
	return c
}

func (c *StringColumn) Attach(ref primitives.Ref) { c.attach(ref) }

func (c *StringColumn) Type() primitives.ColumnType { return c.typ }

// Get returns the value of row. The slice aliases column memory and is only
// valid until the next modification.
func (c *StringColumn) Get(row int) []byte {
	return c.get(row)
}

// GetString returns a copy of row as a string; null reads as "".
func (c *StringColumn) GetString(row int) string {
	return string(c.get(row))
}

func (c *StringColumn) Value(row int) types.Mixed {
	v := c.get(row)
	switch {
	case v == nil:
		return types.NullMixed()
	case c.typ == primitives.ColTypeBinary:
		return types.MixedBinary(v)
	default:
		return types.MixedString(string(v))
	}
}

func (c *StringColumn) checkSize(v []byte) error {
	if len(v) <= MaxStringSize {
		return nil
	}
	if c.typ == primitives.ColTypeBinary {
		return dberr.From(dberr.ErrBinaryTooBig).WithDetail("%d bytes", len(v))
	}
	return dberr.From(dberr.ErrStringTooBig).WithDetail("%d bytes", len(v))
}

// Set writes v; nil stores null and fails on non-nullable columns.
func (c *StringColumn) Set(row int, v []byte) error {
	if v == nil && !c.nullable {
		return errNotNullable()
	}
	if err := c.checkSize(v); err != nil {
		return err
	}
	c.set(row, v)
	return nil
}

// Insert adds n copies of v at row; row == NPos appends.
func (c *StringColumn) Insert(row int, v []byte, n int) error {
	if v == nil && !c.nullable {
		return errNotNullable()
	}
	if err := c.checkSize(v); err != nil {
		return err
	}
	c.insert(row, v, n)
	return nil
}

// Add appends a string value.
func (c *StringColumn) Add(s string) {
	c.insert(primitives.NPos, []byte(s), 1)
}

func (c *StringColumn) FindFirst(v []byte, begin, end int) int {
	return c.findFirst(v, begin, end)
}

func (c *StringColumn) FindAll(v []byte, begin, end int) []int {
	return c.findAll(v, begin, end)
}

func (c *StringColumn) Count(v []byte) int { return c.count(v) }

// CompareValues orders null after every non-null value, then bytewise.
func (c *StringColumn) CompareValues(a, b int) int {
	return compareBytes(c.get(a), c.get(b))
}

func compareBytes(a, b []byte) int {
	if a == nil || b == nil {
		return types.CompareOrdered(boolInt(a == nil), boolInt(b == nil))
	}
	return bytes.Compare(a, b)
}

// Values returns copies of every non-null value in [begin, end) in row
// order, for optimizing into an enumeration.
func (c *StringColumn) Values(begin, end int) [][]byte {
	out := make([][]byte, 0, end-begin)
	c.ForEach(begin, end, func(_ int, v []byte) bool {
		if v == nil {
			out = append(out, nil)
		} else {
			out = append(out, append([]byte{}, v...))
		}
		return true
	})
	return out
}

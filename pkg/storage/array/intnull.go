package array

import (
	"math"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// NullInt is an integer that may be null.
type NullInt struct {
	Int64 int64
	Valid bool
}

// Int returns a non-null NullInt.
func Int(v int64) NullInt { return NullInt{Int64: v, Valid: true} }

// IntNull is a nullable integer node. Element 0 holds the value that
// represents null; when a stored value collides with it a new null value is
// picked and every null is rewritten.
type IntNull struct {
	arr *Array
}

// NewIntNull returns an unattached accessor.
func NewIntNull(a alloc.Allocator) *IntNull {
	return &IntNull{arr: New(a)}
}

// Create allocates a node with size null elements.
func (n *IntNull) Create(size int) {
	n.arr.Create(TypeNormal, false, size+1, 0)
}

func (n *IntNull) InitFromRef(ref primitives.Ref) { n.arr.InitFromRef(ref) }
func (n *IntNull) InitFromParent()                { n.arr.InitFromParent() }
func (n *IntNull) SetParent(p Parent, ndx int)    { n.arr.SetParent(p, ndx) }
func (n *IntNull) Ref() primitives.Ref            { return n.arr.Ref() }
func (n *IntNull) Destroy()                       { n.arr.Destroy() }
func (n *IntNull) Size() int                      { return n.arr.Size() - 1 }
func (n *IntNull) NullValue() int64               { return n.arr.Get(0) }

// Get returns element i.
func (n *IntNull) Get(i int) NullInt {
	v := n.arr.Get(i + 1)
	if v == n.arr.Get(0) {
		return NullInt{}
	}
	return Int(v)
}

// IsNull reports whether element i is null.
func (n *IntNull) IsNull(i int) bool {
	return n.arr.Get(i+1) == n.arr.Get(0)
}

func (n *IntNull) raw(v NullInt) int64 {
	if !v.Valid {
		return n.arr.Get(0)
	}
	if v.Int64 == n.arr.Get(0) {
		n.replaceNullValue(v.Int64)
	}
	return v.Int64
}

// Set overwrites element i.
func (n *IntNull) Set(i int, v NullInt) {
	n.arr.Set(i+1, n.raw(v))
}

// Insert inserts v before position i.
func (n *IntNull) Insert(i int, v NullInt) {
	n.arr.Insert(i+1, n.raw(v))
}

// Erase removes element i.
func (n *IntNull) Erase(i int) {
	n.arr.Erase(i + 1)
}

// Truncate shrinks the node to size elements.
func (n *IntNull) Truncate(size int) {
	n.arr.Truncate(size + 1)
}

// replaceNullValue picks a null value different from avoid and from every
// stored value, and rewrites all nulls to it.
func (n *IntNull) replaceNullValue(avoid int64) {
	old := n.arr.Get(0)
	vals := n.arr.Values()[1:]

	lo, hi := avoid, avoid
	for _, v := range vals {
		if v != old {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}

	var candidate int64
	switch {
	case hi < math.MaxInt64:
		candidate = hi + 1
	case lo > math.MinInt64:
		candidate = lo - 1
	default:
		used := make(map[int64]bool, len(vals)+1)
		used[avoid] = true
		for _, v := range vals {
			used[v] = true
		}
		for used[candidate] {
			candidate++
		}
	}

	for i, v := range vals {
		if v == old {
			n.arr.Set(i+1, candidate)
		}
	}
	n.arr.Set(0, candidate)
}

package array

import (
	"encoding/binary"
	"sort"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// MaxBpNodeSize is the maximum number of elements in a B+-tree leaf and the
// maximum number of children of an inner node. Tests lower it to build deep
// trees from few elements.
var MaxBpNodeSize = 1000

// Type selects the flags of a new integer array.
type Type int

const (
	TypeNormal Type = iota
	TypeHasRefs
	TypeInnerBptreeNode
)

// Array is an accessor for a packed integer node. Element width adapts to
// the widest value stored: 0, 1, 2 or 4 bits unsigned, or 8, 16, 32 or 64
// bits signed.
type Array struct {
	node
	size    int
	width   int
	inner   bool
	hasRefs bool
	context bool
}

// New returns an unattached accessor.
func New(a alloc.Allocator) *Array {
	return &Array{node: node{alloc: a}}
}

// Create allocates a new node of the given type holding size copies of value
// and attaches the accessor to it.
func (a *Array) Create(t Type, context bool, size int, value int64) {
	w := bitWidth(value)
	ref, mem := newBlock(a.alloc, HeaderSize+payloadBytes(WidthTypeBits, w, size))

	var flags byte
	switch t {
	case TypeHasRefs:
		flags = flagHasRefs
	case TypeInnerBptreeNode:
		flags = flagHasRefs | flagInner
	}
	if context {
		flags |= flagContext
	}
	initHeader(mem, flags, WidthTypeBits, w, size, len(mem))

	a.ref = ref
	a.mem = mem
	a.readHeader()
	if value != 0 {
		p := a.mem[HeaderSize:]
		for i := 0; i < size; i++ {
			setValue(p, w, i, value)
		}
	}
}

// CreateArray is a shorthand for New followed by Create.
func CreateArray(a alloc.Allocator, t Type, context bool, size int, value int64) *Array {
	arr := New(a)
	arr.Create(t, context, size, value)
	return arr
}

// InitFromRef attaches the accessor to an existing node.
func (a *Array) InitFromRef(ref primitives.Ref) {
	a.attach(ref)
	a.readHeader()
}

// InitFromParent attaches to the ref currently stored in the parent. A null
// ref leaves the accessor detached.
func (a *Array) InitFromParent() {
	ref := a.RefFromParent()
	if ref == primitives.NullRef {
		a.detach()
		a.size = 0
		return
	}
	a.InitFromRef(ref)
}

// UpdateFromParent re-reads the node from the parent. Nodes always have to
// be re-translated after a commit because slab memory is discarded, so this
// does not short-circuit on an unchanged ref.
func (a *Array) UpdateFromParent() {
	a.InitFromParent()
}

func (a *Array) readHeader() {
	a.size = headerSize(a.mem)
	a.width = headerWidth(a.mem)
	a.inner = a.mem[0]&flagInner != 0
	a.hasRefs = a.mem[0]&flagHasRefs != 0
	a.context = a.mem[0]&flagContext != 0
}

// Size returns the number of elements.
func (a *Array) Size() int { return a.size }

// IsEmpty reports whether the array has no elements.
func (a *Array) IsEmpty() bool { return a.size == 0 }

// IsInnerBptreeNode reports whether the node is an inner B+-tree node.
func (a *Array) IsInnerBptreeNode() bool { return a.inner }

// HasRefs reports whether elements are refs (or tagged integers).
func (a *Array) HasRefs() bool { return a.hasRefs }

// Context returns the free-form context flag.
func (a *Array) Context() bool { return a.context }

// SetContext updates the context flag.
func (a *Array) SetContext(v bool) {
	a.CopyOnWrite()
	if v {
		a.mem[0] |= flagContext
	} else {
		a.mem[0] &^= flagContext
	}
	a.context = v
}

// Get returns element i. i must be in range.
func (a *Array) Get(i int) int64 {
	return getValue(a.mem[HeaderSize:], a.width, i)
}

// GetAsRef returns element i as a ref.
func (a *Array) GetAsRef(i int) primitives.Ref {
	return primitives.Ref(a.Get(i))
}

// Back returns the last element.
func (a *Array) Back() int64 {
	return a.Get(a.size - 1)
}

// Values copies all elements into a slice.
func (a *Array) Values() []int64 {
	out := make([]int64, a.size)
	p := a.mem[HeaderSize:]
	for i := range out {
		out[i] = getValue(p, a.width, i)
	}
	return out
}

// ChildRef implements Parent.
func (a *Array) ChildRef(ndx int) primitives.Ref {
	return a.GetAsRef(ndx)
}

// UpdateChildRef implements Parent.
func (a *Array) UpdateChildRef(ndx int, ref primitives.Ref) {
	a.Set(ndx, int64(ref))
}

// ensure makes room for newSize elements of at least width w and makes the
// node writable.
func (a *Array) ensure(newSize, w int) {
	if newSize > MaxSize {
		panic("array: too many elements")
	}
	if w <= a.width {
		a.prepare(HeaderSize + payloadBytes(WidthTypeBits, a.width, newSize))
		return
	}

	vals := a.Values()
	a.prepare(HeaderSize + payloadBytes(WidthTypeBits, w, max(newSize, a.size)))
	p := a.mem[HeaderSize:]
	for i, v := range vals {
		setValue(p, w, i, v)
	}
	a.width = w
	setHeaderWidth(a.mem, WidthTypeBits, w)
}

func (a *Array) setSize(n int) {
	a.size = n
	setHeaderSize(a.mem, n)
}

// Set overwrites element i.
func (a *Array) Set(i int, v int64) {
	a.ensure(a.size, bitWidth(v))
	setValue(a.mem[HeaderSize:], a.width, i, v)
}

// Add appends v.
func (a *Array) Add(v int64) {
	a.Insert(a.size, v)
}

// Insert inserts v before position i.
func (a *Array) Insert(i int, v int64) {
	a.ensure(a.size+1, max(a.width, bitWidth(v)))
	p := a.mem[HeaderSize:]
	w := a.width
	if w >= 8 {
		b := w / 8
		copy(p[(i+1)*b:(a.size+1)*b], p[i*b:a.size*b])
	} else {
		for j := a.size; j > i; j-- {
			setValue(p, w, j, getValue(p, w, j-1))
		}
	}
	setValue(p, w, i, v)
	a.setSize(a.size + 1)
}

// Erase removes element i.
func (a *Array) Erase(i int) {
	a.EraseRange(i, i+1)
}

// EraseRange removes elements [begin, end).
func (a *Array) EraseRange(begin, end int) {
	if begin == end {
		return
	}
	a.CopyOnWrite()
	p := a.mem[HeaderSize:]
	w := a.width
	n := end - begin
	if w >= 8 {
		b := w / 8
		copy(p[begin*b:], p[end*b:a.size*b])
	} else if w > 0 {
		for j := end; j < a.size; j++ {
			setValue(p, w, j-n, getValue(p, w, j))
		}
	}
	a.setSize(a.size - n)
}

// Truncate shrinks the array to n elements without touching children.
func (a *Array) Truncate(n int) {
	if n == a.size {
		return
	}
	a.CopyOnWrite()
	a.setSize(n)
}

// TruncateAndDestroyChildren shrinks the array and frees every subtree
// referenced by the removed elements.
func (a *Array) TruncateAndDestroyChildren(n int) {
	if a.hasRefs {
		for i := n; i < a.size; i++ {
			if v := a.Get(i); v != 0 && !primitives.IsTagged(v) {
				DestroyDeep(a.alloc, primitives.Ref(v))
			}
		}
	}
	a.Truncate(n)
}

// Clear removes all elements.
func (a *Array) Clear() {
	a.Truncate(0)
}

// Adjust adds diff to element i.
func (a *Array) Adjust(i int, diff int64) {
	a.Set(i, a.Get(i)+diff)
}

// AdjustGE adds diff to every element that is >= limit.
func (a *Array) AdjustGE(limit, diff int64) {
	for i := 0; i < a.size; i++ {
		if v := a.Get(i); v >= limit {
			a.Set(i, v+diff)
		}
	}
}

// FindFirst returns the first index in [begin, end) holding v, or NotFound.
// end may be NPos.
func (a *Array) FindFirst(v int64, begin, end int) int {
	if end == primitives.NPos || end > a.size {
		end = a.size
	}
	if begin >= end {
		return primitives.NotFound
	}
	if bitWidth(v) > a.width {
		return primitives.NotFound
	}
	p := a.mem[HeaderSize:]
	for i := begin; i < end; i++ {
		if getValue(p, a.width, i) == v {
			return i
		}
	}
	return primitives.NotFound
}

// LowerBound returns the first index whose element is >= v. The array must
// be sorted.
func (a *Array) LowerBound(v int64) int {
	return sort.Search(a.size, func(i int) bool { return a.Get(i) >= v })
}

// UpperBound returns the first index whose element is > v. The array must be
// sorted.
func (a *Array) UpperBound(v int64) int {
	return sort.Search(a.size, func(i int) bool { return a.Get(i) > v })
}

// Destroy frees the node but not its children.
func (a *Array) Destroy() {
	a.destroyNode()
	a.size = 0
}

// DestroyDeep frees the node and everything reachable from it.
func (a *Array) DestroyDeep() {
	if a.ref == primitives.NullRef {
		return
	}
	DestroyDeep(a.alloc, a.ref)
	a.detach()
	a.size = 0
}

// Width returns the current element width in bits.
func (a *Array) Width() int { return a.width }

func bitWidth(v int64) int {
	if v >= 0 {
		switch {
		case v == 0:
			return 0
		case v <= 1:
			return 1
		case v <= 3:
			return 2
		case v <= 15:
			return 4
		}
	}
	switch {
	case v >= -0x80 && v <= 0x7f:
		return 8
	case v >= -0x8000 && v <= 0x7fff:
		return 16
	case v >= -0x80000000 && v <= 0x7fffffff:
		return 32
	default:
		return 64
	}
}

func getValue(p []byte, w, i int) int64 {
	switch w {
	case 0:
		return 0
	case 1:
		return int64(p[i>>3] >> (uint(i) & 7) & 1)
	case 2:
		return int64(p[i>>2] >> ((uint(i) & 3) << 1) & 3)
	case 4:
		return int64(p[i>>1] >> ((uint(i) & 1) << 2) & 15)
	case 8:
		return int64(int8(p[i]))
	case 16:
		return int64(int16(binary.LittleEndian.Uint16(p[i*2:])))
	case 32:
		return int64(int32(binary.LittleEndian.Uint32(p[i*4:])))
	default:
		return int64(binary.LittleEndian.Uint64(p[i*8:]))
	}
}

func setValue(p []byte, w, i int, v int64) {
	switch w {
	case 0:
	case 1:
		shift := uint(i) & 7
		p[i>>3] = p[i>>3]&^(1<<shift) | byte(v&1)<<shift
	case 2:
		shift := (uint(i) & 3) << 1
		p[i>>2] = p[i>>2]&^(3<<shift) | byte(v&3)<<shift
	case 4:
		shift := (uint(i) & 1) << 2
		p[i>>1] = p[i>>1]&^(15<<shift) | byte(v&15)<<shift
	case 8:
		p[i] = byte(int8(v))
	case 16:
		binary.LittleEndian.PutUint16(p[i*2:], uint16(int16(v)))
	case 32:
		binary.LittleEndian.PutUint32(p[i*4:], uint32(int32(v)))
	default:
		binary.LittleEndian.PutUint64(p[i*8:], uint64(v))
	}
}

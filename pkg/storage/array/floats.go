package array

import (
	"encoding/binary"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// Floats stores fixed size 4 or 8 byte elements as raw bit patterns. It
// backs float and double leaves.
type Floats struct {
	node
	size     int
	elemSize int
}

// NewFloats returns an unattached accessor for elemSize-byte elements.
func NewFloats(a alloc.Allocator, elemSize int) *Floats {
	return &Floats{node: node{alloc: a}, elemSize: elemSize}
}

// Create allocates a node holding size copies of bits.
func (f *Floats) Create(size int, bits uint64) {
	ref, mem := newBlock(f.alloc, HeaderSize+size*f.elemSize)
	initHeader(mem, 0, WidthTypeMultiply, f.elemSize, size, len(mem))
	f.ref = ref
	f.mem = mem
	f.size = size
	for i := 0; i < size; i++ {
		f.put(i, bits)
	}
}

// InitFromRef attaches to an existing node.
func (f *Floats) InitFromRef(ref primitives.Ref) {
	f.attach(ref)
	f.size = headerSize(f.mem)
	f.elemSize = headerWidth(f.mem)
}

// InitFromParent attaches to the ref stored in the parent.
func (f *Floats) InitFromParent() {
	f.InitFromRef(f.RefFromParent())
}

// Size returns the number of elements.
func (f *Floats) Size() int { return f.size }

func (f *Floats) put(i int, bits uint64) {
	p := f.mem[HeaderSize+i*f.elemSize:]
	if f.elemSize == 4 {
		binary.LittleEndian.PutUint32(p, uint32(bits))
	} else {
		binary.LittleEndian.PutUint64(p, bits)
	}
}

// Get returns the raw bits of element i.
func (f *Floats) Get(i int) uint64 {
	p := f.mem[HeaderSize+i*f.elemSize:]
	if f.elemSize == 4 {
		return uint64(binary.LittleEndian.Uint32(p))
	}
	return binary.LittleEndian.Uint64(p)
}

// Set overwrites element i.
func (f *Floats) Set(i int, bits uint64) {
	f.CopyOnWrite()
	f.put(i, bits)
}

// Insert inserts bits before position i.
func (f *Floats) Insert(i int, bits uint64) {
	f.prepare(HeaderSize + (f.size+1)*f.elemSize)
	p := f.mem[HeaderSize:]
	b := f.elemSize
	copy(p[(i+1)*b:(f.size+1)*b], p[i*b:f.size*b])
	f.put(i, bits)
	f.size++
	setHeaderSize(f.mem, f.size)
}

// Erase removes element i.
func (f *Floats) Erase(i int) {
	f.CopyOnWrite()
	p := f.mem[HeaderSize:]
	b := f.elemSize
	copy(p[i*b:], p[(i+1)*b:f.size*b])
	f.size--
	setHeaderSize(f.mem, f.size)
}

// Truncate shrinks the node to n elements.
func (f *Floats) Truncate(n int) {
	f.CopyOnWrite()
	f.size = n
	setHeaderSize(f.mem, n)
}

// Destroy frees the node.
func (f *Floats) Destroy() {
	f.destroyNode()
	f.size = 0
}

package array

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// Blob is an accessor for a raw byte node.
type Blob struct {
	node
	size int
}

// NewBlob returns an unattached blob accessor.
func NewBlob(a alloc.Allocator) *Blob {
	return &Blob{node: node{alloc: a}}
}

// Create allocates a blob holding a copy of data.
func (b *Blob) Create(data []byte) {
	ref, mem := newBlock(b.alloc, HeaderSize+len(data))
	initHeader(mem, 0, WidthTypeIgnore, 1, len(data), len(mem))
	copy(mem[HeaderSize:], data)
	b.ref = ref
	b.mem = mem
	b.size = len(data)
}

// CreateBlob allocates a blob and returns its ref.
func CreateBlob(a alloc.Allocator, data []byte) primitives.Ref {
	b := NewBlob(a)
	b.Create(data)
	return b.Ref()
}

// InitFromRef attaches to an existing blob.
func (b *Blob) InitFromRef(ref primitives.Ref) {
	b.attach(ref)
	b.size = headerSize(b.mem)
}

// Size returns the number of bytes.
func (b *Blob) Size() int { return b.size }

// Bytes returns the contents without copying. The slice is only valid until
// the next modification or transaction boundary.
func (b *Blob) Bytes() []byte {
	return b.mem[HeaderSize : HeaderSize+b.size]
}

// Replace substitutes bytes [begin, end) with data.
func (b *Blob) Replace(begin, end int, data []byte) {
	newSize := b.size - (end - begin) + len(data)
	if newSize > MaxSize {
		panic("array: blob too big")
	}
	b.prepare(HeaderSize + max(newSize, b.size))
	p := b.mem[HeaderSize:]
	copy(p[begin+len(data):newSize], p[end:b.size])
	copy(p[begin:], data)
	b.size = newSize
	setHeaderSize(b.mem, newSize)
}

// Append adds data at the end.
func (b *Blob) Append(data []byte) {
	b.Replace(b.size, b.size, data)
}

// Destroy frees the node.
func (b *Blob) Destroy() {
	b.destroyNode()
	b.size = 0
}

// ReadBlob returns a view of the blob at ref.
func ReadBlob(a alloc.Allocator, ref primitives.Ref) []byte {
	mem := a.Translate(ref)
	return mem[HeaderSize : HeaderSize+headerSize(mem)]
}

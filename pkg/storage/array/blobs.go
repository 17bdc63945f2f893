package array

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// emptyBlob marks an empty, non-null value without allocating a blob node.
var emptyBlob = primitives.TagInt(0)

// Blobs is a leaf of variable-size byte values, used for strings and
// binaries. Each element is the ref of a blob node, 0 for null, or a tagged
// zero for an empty value.
type Blobs struct {
	arr *Array
}

// NewBlobs returns an unattached accessor.
func NewBlobs(a alloc.Allocator) *Blobs {
	return &Blobs{arr: New(a)}
}

// Create allocates a leaf with size elements of value def.
func (b *Blobs) Create(size int, def []byte) {
	b.arr.Create(TypeHasRefs, false, 0, 0)
	for i := 0; i < size; i++ {
		b.arr.Add(b.store(def))
	}
}

func (b *Blobs) InitFromRef(ref primitives.Ref) { b.arr.InitFromRef(ref) }
func (b *Blobs) InitFromParent()                { b.arr.InitFromParent() }
func (b *Blobs) SetParent(p Parent, ndx int)    { b.arr.SetParent(p, ndx) }
func (b *Blobs) Ref() primitives.Ref            { return b.arr.Ref() }
func (b *Blobs) Size() int                      { return b.arr.Size() }

func (b *Blobs) store(v []byte) int64 {
	switch {
	case v == nil:
		return 0
	case len(v) == 0:
		return emptyBlob
	default:
		return int64(CreateBlob(b.arr.Alloc(), v))
	}
}

func (b *Blobs) release(i int) {
	if v := b.arr.Get(i); v != 0 && !primitives.IsTagged(v) {
		DestroyDeep(b.arr.Alloc(), primitives.Ref(v))
	}
}

// Get returns element i without copying; nil means null.
func (b *Blobs) Get(i int) []byte {
	v := b.arr.Get(i)
	switch {
	case v == 0:
		return nil
	case primitives.IsTagged(v):
		return []byte{}
	default:
		return ReadBlob(b.arr.Alloc(), primitives.Ref(v))
	}
}

// IsNull reports whether element i is null.
func (b *Blobs) IsNull(i int) bool {
	return b.arr.Get(i) == 0
}

// Set overwrites element i.
func (b *Blobs) Set(i int, v []byte) {
	nv := b.store(v)
	b.release(i)
	b.arr.Set(i, nv)
}

// Insert inserts v before position i.
func (b *Blobs) Insert(i int, v []byte) {
	b.arr.Insert(i, b.store(v))
}

// Erase removes element i.
func (b *Blobs) Erase(i int) {
	b.release(i)
	b.arr.Erase(i)
}

// Truncate shrinks the leaf and frees the removed values.
func (b *Blobs) Truncate(n int) {
	b.arr.TruncateAndDestroyChildren(n)
}

// Destroy frees the leaf and every value.
func (b *Blobs) Destroy() {
	b.arr.DestroyDeep()
}

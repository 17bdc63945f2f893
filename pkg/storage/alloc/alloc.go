// Package alloc manages the byte arena that every node of the database lives
// in. Refs below the baseline address the attached file (or buffer) and are
// read-only; refs at or above it address in-memory slabs that hold the
// changes of the current write transaction.
package alloc

import "colstore/pkg/primitives"

// Allocator is the interface the node layer consumes: allocate, translate
// and free a ref to a byte range.
type Allocator interface {
	// Alloc returns the ref of a zeroed, 8-byte aligned block of at least size bytes.
	Alloc(size int) primitives.Ref

	// Translate returns the memory starting at ref. The slice extends at
	// least to the end of the block that ref was allocated as.
	Translate(ref primitives.Ref) []byte

	// Free releases a block. Freeing read-only memory records the block so the
	// group writer can reuse its file space once no reader can see it.
	Free(ref primitives.Ref, size int)

	// IsReadOnly reports whether ref lies in the attached, immutable region.
	IsReadOnly(ref primitives.Ref) bool
}

// Chunk is a contiguous range of the arena.
type Chunk struct {
	Ref  primitives.Ref
	Size int
}

// End returns the first ref past the chunk.
func (c Chunk) End() primitives.Ref {
	return c.Ref + primitives.Ref(c.Size)
}

// AlignSize rounds size up to a multiple of 8.
func AlignSize(size int) int {
	return (size + 7) &^ 7
}

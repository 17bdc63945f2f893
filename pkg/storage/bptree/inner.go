package bptree

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

// Inner node layout: [first, child refs..., tagged total]. first is either a
// tagged "elements per child" (compact form: every child but the last holds
// exactly that many elements) or the ref of an array of cumulative child
// sizes (general form).

func isInnerRef(a alloc.Allocator, ref primitives.Ref) bool {
	return array.NodeIsInner(a.Translate(ref))
}

func numChildren(n *array.Array) int {
	return n.Size() - 2
}

func innerTotal(n *array.Array) int {
	return int(primitives.UntagInt(n.Back()))
}

func isCompact(n *array.Array) bool {
	return primitives.IsTagged(n.Get(0))
}

func elemsPerChild(n *array.Array) int {
	return int(primitives.UntagInt(n.Get(0)))
}

func childRef(n *array.Array, c int) primitives.Ref {
	return n.GetAsRef(1 + c)
}

func offsetsOf(n *array.Array) *array.Array {
	off := array.New(n.Alloc())
	off.SetParent(n, 0)
	off.InitFromParent()
	return off
}

func childRefs(n *array.Array) []primitives.Ref {
	refs := make([]primitives.Ref, numChildren(n))
	for i := range refs {
		refs[i] = childRef(n, i)
	}
	return refs
}

func childSizes(n *array.Array) []int {
	nc := numChildren(n)
	sizes := make([]int, nc)
	if isCompact(n) {
		epc := elemsPerChild(n)
		for i := 0; i < nc-1; i++ {
			sizes[i] = epc
		}
		sizes[nc-1] = innerTotal(n) - epc*(nc-1)
		return sizes
	}
	off := offsetsOf(n)
	prev := 0
	for i := range sizes {
		end := int(off.Get(i))
		sizes[i] = end - prev
		prev = end
	}
	return sizes
}

// findChild maps an element index (< total) onto a child and the index
// within that child.
func findChild(n *array.Array, ndx int) (int, int) {
	if isCompact(n) {
		epc := elemsPerChild(n)
		c := min(ndx/epc, numChildren(n)-1)
		return c, ndx - c*epc
	}
	off := offsetsOf(n)
	c := min(off.UpperBound(int64(ndx)), numChildren(n)-1)
	begin := 0
	if c > 0 {
		begin = int(off.Get(c - 1))
	}
	return c, ndx - begin
}

// childBegin returns the index of the first element of child c.
func childBegin(n *array.Array, c int) int {
	if c == 0 {
		return 0
	}
	if isCompact(n) {
		return c * elemsPerChild(n)
	}
	return int(offsetsOf(n).Get(c - 1))
}

// writeInner rewrites n to hold the given children.
func writeInner(n *array.Array, refs []primitives.Ref, sizes []int, compact bool, epc int) {
	total := 0
	for _, s := range sizes {
		total += s
	}

	var offRef primitives.Ref
	if n.Size() > 0 && !isCompact(n) {
		offRef = n.GetAsRef(0)
		if compact {
			array.DestroyDeep(n.Alloc(), offRef)
			offRef = primitives.NullRef
		}
	}
	if !compact && offRef == primitives.NullRef {
		offRef = array.CreateArray(n.Alloc(), array.TypeNormal, false, 0, 0).Ref()
	}

	n.Truncate(0)
	if compact {
		n.Add(primitives.TagInt(int64(epc)))
	} else {
		n.Add(int64(offRef))
	}
	for _, r := range refs {
		n.Add(int64(r))
	}
	n.Add(primitives.TagInt(int64(total)))

	if !compact {
		off := offsetsOf(n)
		off.Truncate(0)
		cum := 0
		for _, s := range sizes {
			cum += s
			off.Add(int64(cum))
		}
	}
}

func newInner(a alloc.Allocator, refs []primitives.Ref, sizes []int, compact bool, epc int) *array.Array {
	n := array.CreateArray(a, array.TypeInnerBptreeNode, false, 0, 0)
	writeInner(n, refs, sizes, compact, epc)
	return n
}

// adjustSizes adds delta to the size of child c. The compact form survives
// only when the change affects the last child.
func adjustSizes(n *array.Array, c, delta int, keepCompact bool) {
	total := innerTotal(n)
	if isCompact(n) {
		if keepCompact && c == numChildren(n)-1 {
			n.Set(n.Size()-1, primitives.TagInt(int64(total+delta)))
			return
		}
		sizes := childSizes(n)
		sizes[c] += delta
		writeInner(n, childRefs(n), sizes, false, 0)
		return
	}
	off := offsetsOf(n)
	for i := c; i < off.Size(); i++ {
		off.Adjust(i, int64(delta))
	}
	n.Set(n.Size()-1, primitives.TagInt(int64(total+delta)))
}

// destroyInnerNode frees an inner node and its offsets array, not its children.
func destroyInnerNode(n *array.Array) {
	if !isCompact(n) {
		array.DestroyDeep(n.Alloc(), n.GetAsRef(0))
	}
	n.Destroy()
}

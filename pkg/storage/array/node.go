package array

import (
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// Parent is implemented by whatever holds the ref of a node: another array,
// a B+-tree, or the group itself. A node that has to move (copy-on-write or
// growth) reports its new ref to the parent.
type Parent interface {
	UpdateChildRef(childNdx int, ref primitives.Ref)
	ChildRef(childNdx int) primitives.Ref
}

// node holds the state common to every node accessor.
type node struct {
	alloc       alloc.Allocator
	ref         primitives.Ref
	mem         []byte
	parent      Parent
	ndxInParent int
}

func (n *node) attach(ref primitives.Ref) {
	n.ref = ref
	m := n.alloc.Translate(ref)
	n.mem = m[:headerCapacity(m)]
}

func (n *node) detach() {
	n.ref = primitives.NullRef
	n.mem = nil
}

// Ref returns the ref of the node, or NullRef when detached.
func (n *node) Ref() primitives.Ref {
	return n.ref
}

// IsAttached reports whether the accessor currently refers to a node.
func (n *node) IsAttached() bool {
	return n.ref != primitives.NullRef
}

// Alloc returns the allocator the node lives in.
func (n *node) Alloc() alloc.Allocator {
	return n.alloc
}

// SetParent sets the parent and this node's position in it.
func (n *node) SetParent(p Parent, ndxInParent int) {
	n.parent = p
	n.ndxInParent = ndxInParent
}

// Parent returns the parent accessor, if any.
func (n *node) Parent() Parent {
	return n.parent
}

// NdxInParent returns the position of this node in its parent.
func (n *node) NdxInParent() int {
	return n.ndxInParent
}

// SetNdxInParent moves the node to another slot of the same parent.
func (n *node) SetNdxInParent(ndx int) {
	n.ndxInParent = ndx
}

// RefFromParent reads this node's ref out of its parent.
func (n *node) RefFromParent() primitives.Ref {
	return n.parent.ChildRef(n.ndxInParent)
}

// prepare makes the node writable and at least needBytes large. It returns
// the (possibly relocated) memory. The parent is told about a new ref.
func (n *node) prepare(needBytes int) {
	capBytes := len(n.mem)
	ro := n.alloc.IsReadOnly(n.ref)
	if !ro && needBytes <= capBytes {
		return
	}

	used := usedBytes(n.mem)
	newCap := needBytes
	if !ro {
		newCap = max(needBytes, 2*capBytes)
	} else {
		newCap = max(needBytes, used)
	}
	newCap = alloc.AlignSize(max(newCap, minCapacity))

	newRef := n.alloc.Alloc(newCap)
	newMem := n.alloc.Translate(newRef)[:newCap]
	copy(newMem, n.mem[:used])
	setHeaderCapacity(newMem, newCap)

	n.alloc.Free(n.ref, capBytes)
	n.ref = newRef
	n.mem = newMem
	if n.parent != nil {
		n.parent.UpdateChildRef(n.ndxInParent, newRef)
	}
}

// CopyOnWrite relocates a read-only node into writable memory.
func (n *node) CopyOnWrite() {
	if n.alloc.IsReadOnly(n.ref) {
		n.prepare(usedBytes(n.mem))
	}
}

// destroyNode frees the node itself, not its children.
func (n *node) destroyNode() {
	if n.ref == primitives.NullRef {
		return
	}
	n.alloc.Free(n.ref, len(n.mem))
	n.detach()
}

func newBlock(a alloc.Allocator, needBytes int) (primitives.Ref, []byte) {
	capBytes := alloc.AlignSize(max(needBytes, minCapacity))
	ref := a.Alloc(capBytes)
	return ref, a.Translate(ref)[:capBytes]
}

// DestroyDeep frees the node at ref and, if it holds refs, all nodes
// reachable from it.
func DestroyDeep(a alloc.Allocator, ref primitives.Ref) {
	if ref == primitives.NullRef {
		return
	}
	mem := a.Translate(ref)
	if NodeHasRefs(mem) {
		arr := New(a)
		arr.InitFromRef(ref)
		for i := 0; i < arr.Size(); i++ {
			v := arr.Get(i)
			if v != 0 && !primitives.IsTagged(v) {
				DestroyDeep(a, primitives.Ref(v))
			}
		}
	}
	a.Free(ref, headerCapacity(mem))
}

// CloneDeep copies the node at ref and everything reachable from it into new
// memory of the same allocator.
func CloneDeep(a alloc.Allocator, ref primitives.Ref) primitives.Ref {
	if ref == primitives.NullRef {
		return primitives.NullRef
	}
	src := a.Translate(ref)
	used := usedBytes(src)
	newRef, mem := newBlock(a, used)
	src = a.Translate(ref)
	copy(mem, src[:used])
	setHeaderCapacity(mem, len(mem))

	if NodeHasRefs(mem) {
		arr := New(a)
		arr.InitFromRef(newRef)
		for i := 0; i < arr.Size(); i++ {
			v := arr.Get(i)
			if v != 0 && !primitives.IsTagged(v) {
				arr.Set(i, int64(CloneDeep(a, primitives.Ref(v))))
			}
		}
		return arr.Ref()
	}
	return newRef
}

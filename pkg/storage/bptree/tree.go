// Package bptree implements the B+-tree every column is stored in. Leaves
// are typed nodes (see Leaf); inner nodes are ref arrays that also record
// child sizes so that positional access is O(log n).
package bptree

import (
	"fmt"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

type leafCache[T any] struct {
	leaf       Leaf[T]
	begin, end int
	valid      bool
}

// Tree is a positional sequence of T.
type Tree[T any] struct {
	alloc   alloc.Allocator
	newLeaf LeafFactory[T]

	parent      array.Parent
	ndxInParent int

	rootIsLeaf bool
	rootLeaf   Leaf[T]
	rootInner  *array.Array

	cache leafCache[T]
}

// New returns an unattached tree.
func New[T any](a alloc.Allocator, f LeafFactory[T]) *Tree[T] {
	return &Tree[T]{alloc: a, newLeaf: f}
}

// Create allocates an empty tree and returns its ref. The caller stores the
// ref in the parent.
func (t *Tree[T]) Create() primitives.Ref {
	leaf := t.newLeaf(t.alloc)
	leaf.Create()
	leaf.SetParent(t.parent, t.ndxInParent)
	t.rootIsLeaf = true
	t.rootLeaf = leaf
	t.rootInner = nil
	t.cache.valid = false
	return leaf.Ref()
}

// SetParent sets where the root ref is stored.
func (t *Tree[T]) SetParent(p array.Parent, ndx int) {
	t.parent = p
	t.ndxInParent = ndx
	if t.rootIsLeaf && t.rootLeaf != nil {
		t.rootLeaf.SetParent(p, ndx)
	} else if t.rootInner != nil {
		t.rootInner.SetParent(p, ndx)
	}
}

// NdxInParent returns the slot of the root ref in the parent.
func (t *Tree[T]) NdxInParent() int {
	return t.ndxInParent
}

// SetNdxInParent moves the tree to another slot of the same parent.
func (t *Tree[T]) SetNdxInParent(ndx int) {
	t.SetParent(t.parent, ndx)
}

// InitFromRef attaches the tree to an existing root.
func (t *Tree[T]) InitFromRef(ref primitives.Ref) {
	t.cache.valid = false
	if isInnerRef(t.alloc, ref) {
		n := array.New(t.alloc)
		n.InitFromRef(ref)
		n.SetParent(t.parent, t.ndxInParent)
		t.rootIsLeaf = false
		t.rootInner = n
		t.rootLeaf = nil
		return
	}
	leaf := t.newLeaf(t.alloc)
	leaf.InitFromRef(ref)
	leaf.SetParent(t.parent, t.ndxInParent)
	t.rootIsLeaf = true
	t.rootLeaf = leaf
	t.rootInner = nil
}

// InitFromParent attaches to the root ref stored in the parent.
func (t *Tree[T]) InitFromParent() {
	t.InitFromRef(t.parent.ChildRef(t.ndxInParent))
}

// Ref returns the root ref.
func (t *Tree[T]) Ref() primitives.Ref {
	if t.rootIsLeaf {
		return t.rootLeaf.Ref()
	}
	return t.rootInner.Ref()
}

// IsAttached reports whether the tree refers to a root.
func (t *Tree[T]) IsAttached() bool {
	if t.rootIsLeaf {
		return t.rootLeaf != nil
	}
	return t.rootInner != nil
}

// RootIsLeaf reports whether the whole tree is a single leaf.
func (t *Tree[T]) RootIsLeaf() bool {
	return t.rootIsLeaf
}

// Size returns the number of elements.
func (t *Tree[T]) Size() int {
	if t.rootIsLeaf {
		return t.rootLeaf.Size()
	}
	return innerTotal(t.rootInner)
}

// InvalidateCache drops the cached leaf. Every write does this implicitly.
func (t *Tree[T]) InvalidateCache() {
	t.cache.valid = false
}

// LeafAt returns a read-only accessor for the leaf holding ndx together with
// the element range [begin, end) the leaf covers.
func (t *Tree[T]) LeafAt(ndx int) (Leaf[T], int, int) {
	if t.rootIsLeaf {
		return t.rootLeaf, 0, t.rootLeaf.Size()
	}
	if t.cache.valid && ndx >= t.cache.begin && ndx < t.cache.end {
		return t.cache.leaf, t.cache.begin, t.cache.end
	}

	n := t.rootInner
	offset := 0
	for {
		c, inChild := findChild(n, ndx-offset)
		offset = ndx - inChild
		ref := childRef(n, c)
		if isInnerRef(t.alloc, ref) {
			next := array.New(t.alloc)
			next.InitFromRef(ref)
			n = next
			continue
		}
		leaf := t.newLeaf(t.alloc)
		leaf.InitFromRef(ref)
		t.cache = leafCache[T]{leaf: leaf, begin: offset, end: offset + leaf.Size(), valid: true}
		return leaf, offset, offset + leaf.Size()
	}
}

// Get returns element ndx.
func (t *Tree[T]) Get(ndx int) T {
	leaf, begin, _ := t.LeafAt(ndx)
	return leaf.Get(ndx - begin)
}

// writableLeaf descends to the leaf holding ndx with a parent chain, so that
// copy-on-write propagates to the root.
func (t *Tree[T]) writableLeaf(ndx int) (Leaf[T], int) {
	t.cache.valid = false
	if t.rootIsLeaf {
		return t.rootLeaf, ndx
	}
	n := t.rootInner
	for {
		c, inChild := findChild(n, ndx)
		ref := childRef(n, c)
		if isInnerRef(t.alloc, ref) {
			next := array.New(t.alloc)
			next.InitFromRef(ref)
			next.SetParent(n, 1+c)
			n = next
			ndx = inChild
			continue
		}
		leaf := t.newLeaf(t.alloc)
		leaf.InitFromRef(ref)
		leaf.SetParent(n, 1+c)
		return leaf, inChild
	}
}

// Set overwrites element ndx.
func (t *Tree[T]) Set(ndx int, v T) {
	leaf, i := t.writableLeaf(ndx)
	leaf.Set(i, v)
}

// Update applies fn to the leaf holding ndx, for in-place modifications that
// are cheaper than Get followed by Set.
func (t *Tree[T]) Update(ndx int, fn func(leaf Leaf[T], i int)) {
	leaf, i := t.writableLeaf(ndx)
	fn(leaf, i)
}

// Add appends v.
func (t *Tree[T]) Add(v T) {
	t.Insert(t.Size(), v)
}

type splitResult struct {
	split    bool
	ref      primitives.Ref
	size     int
	leftSize int
}

// Insert inserts v before ndx; ndx == Size() appends.
func (t *Tree[T]) Insert(ndx int, v T) {
	t.cache.valid = false
	if t.rootIsLeaf {
		old := t.rootLeaf.Size()
		r := t.insertLeaf(t.rootLeaf, ndx, v)
		if r.split {
			compact := ndx == old
			t.growRoot(t.rootLeaf.Ref(), r, compact, r.leftSize)
		}
		return
	}

	root := t.rootInner
	compactRoot := isCompact(root)
	epc := 0
	if compactRoot {
		epc = elemsPerChild(root)
	}
	r := t.insertInner(root, ndx, v)
	if r.split {
		compact := compactRoot && isCompact(root) && numChildren(root) == array.MaxBpNodeSize
		t.growRoot(root.Ref(), r, compact, epc*array.MaxBpNodeSize)
	}
}

func (t *Tree[T]) growRoot(oldRoot primitives.Ref, r splitResult, compact bool, epc int) {
	n := newInner(t.alloc,
		[]primitives.Ref{oldRoot, r.ref},
		[]int{r.leftSize, r.size},
		compact, epc)
	n.SetParent(t.parent, t.ndxInParent)
	if t.parent != nil {
		t.parent.UpdateChildRef(t.ndxInParent, n.Ref())
	}
	t.rootIsLeaf = false
	t.rootInner = n
	t.rootLeaf = nil
}

func (t *Tree[T]) insertLeaf(leaf Leaf[T], ndx int, v T) splitResult {
	size := leaf.Size()
	if size < array.MaxBpNodeSize {
		leaf.Insert(ndx, v)
		return splitResult{}
	}

	sib := t.newLeaf(t.alloc)
	sib.Create()
	if ndx == size {
		sib.Insert(0, v)
		return splitResult{split: true, ref: sib.Ref(), size: 1, leftSize: size}
	}
	for i := ndx; i < size; i++ {
		sib.Insert(sib.Size(), leaf.Get(i))
	}
	leaf.Truncate(ndx)
	leaf.Insert(ndx, v)
	return splitResult{split: true, ref: sib.Ref(), size: sib.Size(), leftSize: ndx + 1}
}

func (t *Tree[T]) insertInner(n *array.Array, ndx int, v T) splitResult {
	total := innerTotal(n)
	last := numChildren(n) - 1
	isAppend := ndx == total

	var c, inChild int
	if isAppend {
		c = last
		inChild = childSizes(n)[last]
	} else {
		c, inChild = findChild(n, ndx)
	}

	ref := childRef(n, c)
	var r splitResult
	if isInnerRef(t.alloc, ref) {
		child := array.New(t.alloc)
		child.InitFromRef(ref)
		child.SetParent(n, 1+c)
		r = t.insertInner(child, inChild, v)
	} else {
		leaf := t.newLeaf(t.alloc)
		leaf.InitFromRef(ref)
		leaf.SetParent(n, 1+c)
		r = t.insertLeaf(leaf, inChild, v)
	}

	if !r.split {
		adjustSizes(n, c, 1, isAppend)
		return splitResult{}
	}
	return t.insertChild(n, c, r, isAppend)
}

// insertChild records that child c now holds r.leftSize elements and that a
// new sibling follows it. Splits n when it overflows.
func (t *Tree[T]) insertChild(n *array.Array, c int, r splitResult, isAppend bool) splitResult {
	refs := childRefs(n)
	sizes := childSizes(n)
	compact := isCompact(n)
	epc := 0
	if compact {
		epc = elemsPerChild(n)
		// compact survives only an append that filled the last child
		compact = isAppend && c == len(refs)-1 && r.leftSize == epc && r.size <= epc
	}

	sizes[c] = r.leftSize
	refs = append(refs[:c+1], append([]primitives.Ref{r.ref}, refs[c+1:]...)...)
	sizes = append(sizes[:c+1], append([]int{r.size}, sizes[c+1:]...)...)

	if len(refs) <= array.MaxBpNodeSize {
		writeInner(n, refs, sizes, compact, epc)
		return splitResult{}
	}

	at := c + 1
	leftRefs, rightRefs := refs[:at], refs[at:]
	leftSizes, rightSizes := sizes[:at], sizes[at:]
	writeInner(n, leftRefs, leftSizes, compact, epc)
	sib := newInner(t.alloc, rightRefs, rightSizes, compact, epc)
	return splitResult{split: true, ref: sib.Ref(), size: sum(rightSizes), leftSize: sum(leftSizes)}
}

func sum(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

// Erase removes element ndx.
func (t *Tree[T]) Erase(ndx int) {
	t.cache.valid = false
	if t.rootIsLeaf {
		t.rootLeaf.Erase(ndx)
		return
	}

	if t.eraseInner(t.rootInner, ndx) {
		// every leaf is gone; start over with an empty leaf
		destroyInnerNode(t.rootInner)
		ref := t.Create()
		if t.parent != nil {
			t.parent.UpdateChildRef(t.ndxInParent, ref)
		}
		return
	}
	t.collapseRoot()
}

// eraseInner removes element ndx below n and reports whether n lost its
// last child.
func (t *Tree[T]) eraseInner(n *array.Array, ndx int) bool {
	isLast := ndx == innerTotal(n)-1
	c, inChild := findChild(n, ndx)
	ref := childRef(n, c)

	var childEmpty bool
	if isInnerRef(t.alloc, ref) {
		child := array.New(t.alloc)
		child.InitFromRef(ref)
		child.SetParent(n, 1+c)
		childEmpty = t.eraseInner(child, inChild)
		if childEmpty {
			destroyInnerNode(child)
		}
	} else {
		leaf := t.newLeaf(t.alloc)
		leaf.InitFromRef(ref)
		leaf.SetParent(n, 1+c)
		leaf.Erase(inChild)
		childEmpty = leaf.Size() == 0
		if childEmpty {
			leaf.Destroy()
		}
	}

	if !childEmpty {
		adjustSizes(n, c, -1, isLast)
		return false
	}

	refs := childRefs(n)
	sizes := childSizes(n)
	if len(refs) == 1 {
		return true
	}
	compact := isCompact(n) && isLast
	epc := 0
	if compact {
		epc = elemsPerChild(n)
	}
	refs = append(refs[:c], refs[c+1:]...)
	sizes = append(sizes[:c], sizes[c+1:]...)
	writeInner(n, refs, sizes, compact, epc)
	return false
}

// collapseRoot replaces an inner root that has a single child with that child.
func (t *Tree[T]) collapseRoot() {
	for !t.rootIsLeaf && numChildren(t.rootInner) == 1 {
		old := t.rootInner
		child := childRef(old, 0)
		destroyInnerNode(old)
		if t.parent != nil {
			t.parent.UpdateChildRef(t.ndxInParent, child)
		}
		t.InitFromRef(child)
	}
}

// Clear removes every element, freeing all nodes.
func (t *Tree[T]) Clear() {
	t.Destroy()
	ref := t.Create()
	if t.parent != nil {
		t.parent.UpdateChildRef(t.ndxInParent, ref)
	}
}

// Destroy frees the whole tree. The accessor is left detached.
func (t *Tree[T]) Destroy() {
	t.cache.valid = false
	if t.rootIsLeaf {
		if t.rootLeaf != nil {
			t.rootLeaf.Destroy()
		}
	} else if t.rootInner != nil {
		t.destroyInner(t.rootInner)
	}
	t.rootIsLeaf = true
	t.rootLeaf = nil
	t.rootInner = nil
}

func (t *Tree[T]) destroyInner(n *array.Array) {
	for c := 0; c < numChildren(n); c++ {
		ref := childRef(n, c)
		if isInnerRef(t.alloc, ref) {
			child := array.New(t.alloc)
			child.InitFromRef(ref)
			t.destroyInner(child)
			continue
		}
		leaf := t.newLeaf(t.alloc)
		leaf.InitFromRef(ref)
		leaf.Destroy()
	}
	destroyInnerNode(n)
}

// ForEach calls fn for every element in [begin, end) in order until fn
// returns false. It walks leaf by leaf.
func (t *Tree[T]) ForEach(begin, end int, fn func(i int, v T) bool) {
	for i := begin; i < end; {
		leaf, lb, le := t.LeafAt(i)
		stop := min(le, end)
		for ; i < stop; i++ {
			if !fn(i, leaf.Get(i-lb)) {
				return
			}
		}
	}
}

// Verify checks that the sizes recorded in inner nodes match their children.
func (t *Tree[T]) Verify() error {
	if t.rootIsLeaf {
		return nil
	}
	_, err := t.verifyInner(t.rootInner)
	return err
}

func (t *Tree[T]) verifyInner(n *array.Array) (int, error) {
	if numChildren(n) < 1 {
		return 0, fmt.Errorf("inner node %v has no children", n.Ref())
	}
	sizes := childSizes(n)
	total := 0
	for c, want := range sizes {
		ref := childRef(n, c)
		var got int
		if isInnerRef(t.alloc, ref) {
			child := array.New(t.alloc)
			child.InitFromRef(ref)
			s, err := t.verifyInner(child)
			if err != nil {
				return 0, err
			}
			got = s
		} else {
			leaf := t.newLeaf(t.alloc)
			leaf.InitFromRef(ref)
			got = leaf.Size()
		}
		if got != want || got == 0 {
			return 0, fmt.Errorf("child %d of %v holds %d elements, recorded %d", c, n.Ref(), got, want)
		}
		total += got
	}
	if total != innerTotal(n) {
		return 0, fmt.Errorf("inner node %v records total %d, children hold %d", n.Ref(), innerTotal(n), total)
	}
	return total, nil
}

package bptree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

func newAlloc() *alloc.SlabAlloc {
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	return a
}

// smallNodes forces multi-level trees with few elements.
func smallNodes(t *testing.T, n int) {
	old := array.MaxBpNodeSize
	array.MaxBpNodeSize = n
	t.Cleanup(func() { array.MaxBpNodeSize = old })
}

// newRootedTree attaches a tree below a one-slot has-refs holder so that
// root changes can be observed.
func newRootedTree[T any](a alloc.Allocator, f LeafFactory[T]) (*Tree[T], *array.Array) {
	holder := array.CreateArray(a, array.TypeHasRefs, false, 1, 0)
	tr := New(a, f)
	tr.SetParent(holder, 0)
	holder.Set(0, int64(tr.Create()))
	return tr, holder
}

func contents(tr *Tree[int64]) []int64 {
	out := make([]int64, 0, tr.Size())
	tr.ForEach(0, tr.Size(), func(_ int, v int64) bool {
		out = append(out, v)
		return true
	})
	return out
}

func TestTreeAppend(t *testing.T) {
	for _, max := range []int{4, 5, 1000} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			smallNodes(t, max)
			a := newAlloc()
			tr, holder := newRootedTree(a, NewIntLeaf)

			const n = 300
			for i := 0; i < n; i++ {
				tr.Add(int64(i * 3))
			}
			require.Equal(t, n, tr.Size())
			require.NoError(t, tr.Verify())
			assert.Equal(t, tr.Ref(), holder.GetAsRef(0))
			for i := 0; i < n; i++ {
				assert.Equal(t, int64(i*3), tr.Get(i))
			}
			if max < n {
				assert.False(t, tr.RootIsLeaf())
			}
		})
	}
}

func TestTreeRandomEdits(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, holder := newRootedTree(a, NewIntLeaf)
	rng := rand.New(rand.NewSource(42))

	var ref []int64
	for step := 0; step < 2000; step++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(ref) == 0:
			ndx := rng.Intn(len(ref) + 1)
			v := rng.Int63n(1 << 40)
			tr.Insert(ndx, v)
			ref = append(ref[:ndx], append([]int64{v}, ref[ndx:]...)...)
		case op < 8:
			ndx := rng.Intn(len(ref))
			tr.Erase(ndx)
			ref = append(ref[:ndx], ref[ndx+1:]...)
		default:
			ndx := rng.Intn(len(ref))
			v := rng.Int63n(100)
			tr.Set(ndx, v)
			ref[ndx] = v
		}
		if step%97 == 0 {
			require.NoError(t, tr.Verify(), "step %d", step)
			require.Equal(t, ref, contents(tr), "step %d", step)
		}
	}
	require.NoError(t, tr.Verify())
	assert.Equal(t, ref, contents(tr))
	assert.Equal(t, tr.Ref(), holder.GetAsRef(0))
}

func TestTreeEraseCollapsesRoot(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, holder := newRootedTree(a, NewIntLeaf)
	for i := 0; i < 50; i++ {
		tr.Add(int64(i))
	}
	require.False(t, tr.RootIsLeaf())

	for tr.Size() > 0 {
		tr.Erase(tr.Size() / 2)
		require.NoError(t, tr.Verify())
	}
	assert.True(t, tr.RootIsLeaf())
	assert.Equal(t, 0, tr.Size())
	assert.Equal(t, tr.Ref(), holder.GetAsRef(0))

	tr.Add(7)
	assert.Equal(t, int64(7), tr.Get(0))
}

func TestTreeReattach(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, holder := newRootedTree(a, NewIntLeaf)
	for i := 0; i < 40; i++ {
		tr.Insert(0, int64(i))
	}

	other := New(a, NewIntLeaf)
	other.SetParent(holder, 0)
	other.InitFromParent()
	require.Equal(t, 40, other.Size())
	for i := 0; i < 40; i++ {
		assert.Equal(t, int64(39-i), other.Get(i))
	}
}

func TestTreeClear(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, holder := newRootedTree(a, NewIntLeaf)
	for i := 0; i < 100; i++ {
		tr.Add(int64(i))
	}
	tr.Clear()
	assert.Equal(t, 0, tr.Size())
	assert.True(t, tr.RootIsLeaf())
	assert.Equal(t, tr.Ref(), holder.GetAsRef(0))
}

func TestTreeLeafAt(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, _ := newRootedTree(a, NewIntLeaf)
	for i := 0; i < 30; i++ {
		tr.Add(int64(i))
	}
	for i := 0; i < 30; i++ {
		leaf, begin, end := tr.LeafAt(i)
		require.True(t, begin <= i && i < end)
		assert.Equal(t, end-begin, leaf.Size())
		assert.Equal(t, int64(i), leaf.Get(i-begin))
	}
}

func TestTreeNullableInts(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, _ := newRootedTree(a, NewIntNullLeaf)
	for i := 0; i < 20; i++ {
		if i%3 == 0 {
			tr.Add(array.NullInt{})
		} else {
			tr.Add(array.Int(int64(i)))
		}
	}
	require.NoError(t, tr.Verify())
	for i := 0; i < 20; i++ {
		got := tr.Get(i)
		if i%3 == 0 {
			assert.False(t, got.Valid, "row %d", i)
		} else {
			assert.Equal(t, array.Int(int64(i)), got)
		}
	}
}

func TestTreeBlobs(t *testing.T) {
	smallNodes(t, 4)
	a := newAlloc()
	tr, _ := newRootedTree(a, NewBlobLeaf)
	want := make([][]byte, 0)
	for i := 0; i < 25; i++ {
		v := []byte(fmt.Sprintf("value-%02d", i))
		if i == 5 {
			v = nil
		}
		tr.Insert(i/2, v)
		want = append(want[:i/2], append([][]byte{v}, want[i/2:]...)...)
	}
	require.NoError(t, tr.Verify())
	for i, w := range want {
		got := tr.Get(i)
		if w == nil {
			assert.Nil(t, got)
			continue
		}
		assert.Equal(t, string(w), string(got))
	}
}

func TestTreeDoubles(t *testing.T) {
	a := newAlloc()
	tr, _ := newRootedTree(a, NewDoubleLeaf)
	tr.Add(1.5)
	tr.Add(DoubleNull())
	tr.Add(-2.25)
	assert.Equal(t, 1.5, tr.Get(0))
	assert.True(t, IsDoubleNull(tr.Get(1)))
	assert.Equal(t, -2.25, tr.Get(2))
}

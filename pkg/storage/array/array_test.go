package array

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

func newAlloc() *alloc.SlabAlloc {
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	return a
}

func TestBitWidth(t *testing.T) {
	tests := []struct {
		v    int64
		want int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {15, 4}, {16, 8}, {127, 8}, {-1, 8},
		{-128, 8}, {128, 16}, {-32768, 16}, {40000, 32}, {math.MaxInt32, 32},
		{math.MaxInt32 + 1, 64}, {math.MinInt64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bitWidth(tt.v), "value %d", tt.v)
	}
}

func TestArrayWidthExpansion(t *testing.T) {
	a := newAlloc()
	arr := CreateArray(a, TypeNormal, false, 0, 0)

	values := []int64{0, 1, 3, 15, -5, 300, 70000, math.MaxInt64, math.MinInt64, 7}
	for _, v := range values {
		arr.Add(v)
	}
	require.Equal(t, len(values), arr.Size())
	assert.Equal(t, values, arr.Values())
	assert.Equal(t, 64, arr.Width())
}

func TestArrayInsertErase(t *testing.T) {
	for _, w := range []int64{1, 3, 15, 100, 1000, 100000, 1 << 40} {
		a := newAlloc()
		arr := CreateArray(a, TypeNormal, false, 0, 0)
		var ref []int64
		for i := int64(0); i < 50; i++ {
			v := (i * 7) % (w + 1)
			pos := int(i) / 2
			arr.Insert(pos, v)
			ref = append(ref[:pos], append([]int64{v}, ref[pos:]...)...)
		}
		assert.Equal(t, ref, arr.Values(), "width source %d", w)

		arr.Erase(10)
		ref = append(ref[:10], ref[11:]...)
		arr.EraseRange(0, 5)
		ref = ref[5:]
		assert.Equal(t, ref, arr.Values())

		arr.Truncate(3)
		assert.Equal(t, ref[:3], arr.Values())
	}
}

func TestArrayFind(t *testing.T) {
	a := newAlloc()
	arr := CreateArray(a, TypeNormal, false, 0, 0)
	for _, v := range []int64{5, 10, 10, 20, 40} {
		arr.Add(v)
	}
	assert.Equal(t, 1, arr.FindFirst(10, 0, primitives.NPos))
	assert.Equal(t, 2, arr.FindFirst(10, 2, primitives.NPos))
	assert.Equal(t, primitives.NotFound, arr.FindFirst(10, 3, 5))
	assert.Equal(t, primitives.NotFound, arr.FindFirst(1<<50, 0, primitives.NPos))
	assert.Equal(t, 1, arr.LowerBound(10))
	assert.Equal(t, 3, arr.UpperBound(10))
	assert.Equal(t, 5, arr.LowerBound(41))

	arr.AdjustGE(10, 1)
	assert.Equal(t, []int64{5, 11, 11, 21, 41}, arr.Values())
}

type recordingParent struct {
	refs map[int]primitives.Ref
}

func (p *recordingParent) UpdateChildRef(ndx int, ref primitives.Ref) { p.refs[ndx] = ref }
func (p *recordingParent) ChildRef(ndx int) primitives.Ref           { return p.refs[ndx] }

func TestArrayReallocUpdatesParent(t *testing.T) {
	a := newAlloc()
	parent := &recordingParent{refs: map[int]primitives.Ref{}}
	arr := CreateArray(a, TypeNormal, false, 0, 0)
	arr.SetParent(parent, 3)
	parent.refs[3] = arr.Ref()

	first := arr.Ref()
	for i := 0; i < 100; i++ {
		arr.Add(int64(i) << 20)
	}
	assert.NotEqual(t, first, arr.Ref())
	assert.Equal(t, arr.Ref(), parent.refs[3])

	other := New(a)
	other.SetParent(parent, 3)
	other.InitFromParent()
	assert.Equal(t, arr.Values(), other.Values())
}

func TestArrayDestroyDeepAndClone(t *testing.T) {
	a := newAlloc()
	top := CreateArray(a, TypeHasRefs, false, 0, 0)
	child := CreateArray(a, TypeNormal, false, 3, 9)
	top.Add(int64(child.Ref()))
	top.Add(primitives.TagInt(42))
	top.Add(int64(CreateBlob(a, []byte("abc"))))

	clone := New(a)
	clone.InitFromRef(CloneDeep(a, top.Ref()))
	require.Equal(t, 3, clone.Size())
	assert.NotEqual(t, top.Get(0), clone.Get(0))
	assert.Equal(t, primitives.TagInt(42), clone.Get(1))

	c := New(a)
	c.InitFromRef(clone.GetAsRef(0))
	assert.Equal(t, []int64{9, 9, 9}, c.Values())
	assert.Equal(t, "abc", string(ReadBlob(a, clone.GetAsRef(2))))

	top.DestroyDeep()
	assert.False(t, top.IsAttached())
}

func TestBlob(t *testing.T) {
	a := newAlloc()
	b := NewBlob(a)
	b.Create([]byte("hello world"))
	assert.Equal(t, "hello world", string(b.Bytes()))

	b.Replace(0, 5, []byte("goodbye"))
	assert.Equal(t, "goodbye world", string(b.Bytes()))
	b.Replace(7, 13, nil)
	assert.Equal(t, "goodbye", string(b.Bytes()))
	b.Append([]byte("!"))
	assert.Equal(t, 8, b.Size())

	other := NewBlob(a)
	other.InitFromRef(b.Ref())
	assert.Equal(t, "goodbye!", string(other.Bytes()))
}

func TestFloats(t *testing.T) {
	a := newAlloc()
	f := NewFloats(a, 8)
	f.Create(2, math.Float64bits(1.5))
	f.Insert(1, math.Float64bits(-2))
	f.Set(0, math.Float64bits(3))
	require.Equal(t, 3, f.Size())
	assert.Equal(t, 3.0, math.Float64frombits(f.Get(0)))
	assert.Equal(t, -2.0, math.Float64frombits(f.Get(1)))
	assert.Equal(t, 1.5, math.Float64frombits(f.Get(2)))
	f.Erase(0)
	assert.Equal(t, -2.0, math.Float64frombits(f.Get(0)))

	g := NewFloats(a, 4)
	g.Create(1, uint64(math.Float32bits(0.25)))
	assert.Equal(t, float32(0.25), math.Float32frombits(uint32(g.Get(0))))
}

func TestIntNullSentinelCollision(t *testing.T) {
	a := newAlloc()
	n := NewIntNull(a)
	n.Create(2)
	assert.True(t, n.IsNull(0))
	assert.True(t, n.IsNull(1))

	// 0 is the initial null value, storing it must move the sentinel.
	n.Set(0, Int(0))
	assert.Equal(t, Int(0), n.Get(0))
	assert.True(t, n.IsNull(1))
	assert.NotEqual(t, int64(0), n.NullValue())

	n.Insert(1, Int(n.NullValue()))
	assert.False(t, n.IsNull(1))
	assert.True(t, n.IsNull(2))
	assert.Equal(t, 3, n.Size())

	n.Set(0, NullInt{})
	assert.True(t, n.IsNull(0))
	n.Erase(0)
	assert.Equal(t, 2, n.Size())
	assert.False(t, n.IsNull(0))
}

func TestBlobs(t *testing.T) {
	a := newAlloc()
	b := NewBlobs(a)
	b.Create(2, []byte{})
	b.Insert(0, []byte("first"))
	b.Insert(3, nil)
	b.Set(1, []byte("second"))

	require.Equal(t, 4, b.Size())
	assert.Equal(t, "first", string(b.Get(0)))
	assert.Equal(t, "second", string(b.Get(1)))
	assert.NotNil(t, b.Get(2))
	assert.Empty(t, b.Get(2))
	assert.Nil(t, b.Get(3))
	assert.True(t, b.IsNull(3))

	b.Set(1, b.Get(1))
	assert.Equal(t, "second", string(b.Get(1)))

	b.Erase(0)
	assert.Equal(t, "second", string(b.Get(0)))
	b.Truncate(1)
	assert.Equal(t, 1, b.Size())
}

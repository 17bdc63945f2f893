package column

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/types"
)

func newAlloc() *alloc.SlabAlloc {
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	return a
}

// holder is a has-refs array standing in for a table's columns array.
func holder(a alloc.Allocator, slots int) *array.Array {
	return array.CreateArray(a, array.TypeHasRefs, false, slots, 0)
}

func smallNodes(t *testing.T) {
	old := array.MaxBpNodeSize
	array.MaxBpNodeSize = 4
	t.Cleanup(func() { array.MaxBpNodeSize = old })
}

func intColumn(t *testing.T, a alloc.Allocator, nullable bool, values ...int64) (*IntColumn, *array.Array) {
	t.Helper()
	h := holder(a, 2)
	c := CreateIntColumn(a, primitives.ColTypeInt, nullable, 0)
	h.Set(0, int64(c.Ref()))
	c.SetParent(h, 0)
	for _, v := range values {
		c.Add(v)
	}
	return c, h
}

func intValues(c *IntColumn) []int64 {
	out := make([]int64, c.Size())
	for i := range out {
		out[i] = c.Get(i)
	}
	return out
}

func TestIntColumnFindAndMoveLastOver(t *testing.T) {
	for _, indexed := range []bool{false, true} {
		a := newAlloc()
		c, h := intColumn(t, a, false, 10, 20, 30)
		if indexed {
			x := c.CreateSearchIndex()
			h.Set(1, int64(x.Ref()))
		}

		assert.Equal(t, 1, c.FindFirst(20, 0, primitives.NPos))
		c.MoveLastOver(0, 2)
		assert.Equal(t, []int64{30, 20}, intValues(c))
		assert.Equal(t, 0, c.FindFirst(30, 0, primitives.NPos))
		assert.Equal(t, primitives.NotFound, c.FindFirst(10, 0, primitives.NPos))
		require.NoError(t, c.Verify())
	}
}

func TestIntColumnIndexConsistency(t *testing.T) {
	smallNodes(t)
	a := newAlloc()
	c, h := intColumn(t, a, true)
	x := c.CreateSearchIndex()
	h.Set(1, int64(x.Ref()))

	rng := rand.New(rand.NewSource(7))
	var model []array.NullInt
	randVal := func() array.NullInt {
		if rng.Intn(6) == 0 {
			return array.NullInt{}
		}
		return array.Int(rng.Int63n(8))
	}

	for step := 0; step < 600; step++ {
		switch op := rng.Intn(6); {
		case op == 0 || len(model) < 2:
			row := rng.Intn(len(model) + 1)
			v := randVal()
			n := 1 + rng.Intn(2)
			c.InsertNullable(row, v, n)
			for i := 0; i < n; i++ {
				model = append(model[:row], append([]array.NullInt{v}, model[row:]...)...)
			}
		case op == 1:
			row := rng.Intn(len(model))
			v := randVal()
			require.NoError(t, c.SetNullable(row, v))
			model[row] = v
		case op == 2:
			row := rng.Intn(len(model))
			c.Erase(row, row == len(model)-1)
			model = append(model[:row], model[row+1:]...)
		case op == 3:
			row := rng.Intn(len(model))
			last := len(model) - 1
			c.MoveLastOver(row, last)
			model[row] = model[last]
			model = model[:last]
		case op == 4:
			ra, rb := rng.Intn(len(model)), rng.Intn(len(model))
			if ra == rb {
				continue
			}
			c.SwapRows(ra, rb)
			model[ra], model[rb] = model[rb], model[ra]
		default:
			c.Add(rng.Int63n(8))
			model = append(model, c.GetNull(c.Size()-1))
		}

		require.Equal(t, len(model), c.Size())
		if step%25 == 0 {
			require.NoError(t, c.Verify(), "step %d", step)
		}
	}

	require.NoError(t, c.Verify())
	for r, v := range model {
		require.Equal(t, v, c.GetNull(r))
		if v.Valid {
			assert.Contains(t, c.FindAll(v.Int64, 0, primitives.NPos), r)
		} else {
			assert.Contains(t, x.FindAll(c.KeyAt(r)), r)
		}
	}
}

func TestIntColumnNullability(t *testing.T) {
	a := newAlloc()
	c, _ := intColumn(t, a, false, 1)
	err := c.SetNull(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, dberr.ErrColumnNotNullable)
	category, ok := dberr.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, dberr.ErrCategoryLogic, category)

	n, _ := intColumn(t, a, true, 1)
	n.InsertRows(1, 2, 1)
	assert.True(t, n.IsNull(1))
	assert.True(t, n.IsNull(2))
	assert.Equal(t, 1, n.FindFirstNull(0, primitives.NPos))
	assert.True(t, n.Value(1).IsNull())
}

func TestIntColumnAggregates(t *testing.T) {
	a := newAlloc()
	c, _ := intColumn(t, a, true, 4, -2, 9, 3)
	c.InsertNullable(2, array.NullInt{}, 1) // 4 -2 null 9 3

	tests := []struct {
		name       string
		begin, end int
		limit      int
		sum        int64
		min, max   int64
		minRow     int
		maxRow     int
		count      int
	}{
		{"all", 0, primitives.NPos, -1, 14, -2, 9, 1, 3, 4},
		{"range", 2, 5, -1, 12, 3, 9, 4, 3, 2},
		{"limit", 0, primitives.NPos, 2, 2, -2, 4, 1, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sum, c.Sum(tt.begin, tt.end, tt.limit))
			mn, mnRow := c.Minimum(tt.begin, tt.end, tt.limit)
			assert.Equal(t, tt.min, mn)
			assert.Equal(t, tt.minRow, mnRow)
			mx, mxRow := c.Maximum(tt.begin, tt.end, tt.limit)
			assert.Equal(t, tt.max, mx)
			assert.Equal(t, tt.maxRow, mxRow)
			assert.Equal(t, tt.count, c.CountNotNull(tt.begin, tt.end, tt.limit))
		})
	}

	avg, n := c.Average(0, primitives.NPos, -1)
	assert.Equal(t, 4, n)
	assert.InDelta(t, 3.5, avg, 1e-9)

	empty, _ := intColumn(t, a, true)
	avg, n = empty.Average(0, primitives.NPos, -1)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0.0, avg)
	_, row := empty.Minimum(0, primitives.NPos, -1)
	assert.Equal(t, primitives.NotFound, row)
}

func TestFindGTE(t *testing.T) {
	smallNodes(t)
	a := newAlloc()
	c, _ := intColumn(t, a, true)
	c.InsertNullable(primitives.NPos, array.NullInt{}, 2)
	for v := int64(0); v < 40; v += 2 {
		c.Add(v)
	}

	tests := []struct {
		v     int64
		begin int
		want  int
	}{
		{-5, 0, 2},
		{0, 0, 2},
		{1, 0, 3},
		{7, 0, 6},
		{38, 0, 21},
		{39, 0, primitives.NotFound},
		{4, 10, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.FindGTE(tt.v, tt.begin), "v=%d begin=%d", tt.v, tt.begin)
	}

	d := CreateDoubleColumn(a, false, 0)
	for _, v := range []float64{-1.5, 0, 2.5, 2.5, 10} {
		d.Add(v)
	}
	assert.Equal(t, 2, d.FindGTE(1, 0))
	assert.Equal(t, primitives.NotFound, d.FindGTE(11, 0))
}

func TestDoubleColumn(t *testing.T) {
	a := newAlloc()
	c := CreateDoubleColumn(a, true, 2)
	assert.True(t, c.IsNull(0))
	c.Set(0, 2.5)
	c.Add(-1)
	c.Add(4)
	// 2.5 null -1 4
	assert.Equal(t, 5.5, c.Sum(0, primitives.NPos, -1))
	mn, row := c.Minimum(0, primitives.NPos, -1)
	assert.Equal(t, -1.0, mn)
	assert.Equal(t, 2, row)
	avg, n := c.Average(0, primitives.NPos, -1)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 5.5/3, avg, 1e-9)
	assert.Equal(t, 1, c.FindFirst(c.NullValue(), 0, primitives.NPos))
	assert.Nil(t, c.CreateSearchIndex())
	assert.Equal(t, -1, c.CompareValues(1, 2))

	f := CreateFloatColumn(a, false, 1)
	f.Set(0, 1.25)
	assert.Equal(t, float32(1.25), f.Get(0))
	assert.Error(t, f.SetNull(0))
	assert.Equal(t, types.MixedFloat(1.25), f.Value(0))
}

func TestStringColumn(t *testing.T) {
	smallNodes(t)
	a := newAlloc()
	h := holder(a, 2)
	c := CreateStringColumn(a, true, 0)
	h.Set(0, int64(c.Ref()))
	c.SetParent(h, 0)

	for _, s := range []string{"pear", "apple", "", "fig", "apple"} {
		c.Add(s)
	}
	require.NoError(t, c.Insert(2, nil, 1)) // pear apple null "" fig apple
	h.Set(1, int64(c.CreateSearchIndex().Ref()))

	assert.Equal(t, 1, c.FindFirst([]byte("apple"), 0, primitives.NPos))
	assert.Equal(t, []int{1, 5}, c.FindAll([]byte("apple"), 0, primitives.NPos))
	assert.Equal(t, 2, c.FindFirst(nil, 0, primitives.NPos))
	assert.Equal(t, 3, c.FindFirst([]byte{}, 0, primitives.NPos))
	assert.Equal(t, 5, c.FindFirst([]byte("apple"), 2, primitives.NPos))
	assert.True(t, c.IsNull(2))
	assert.False(t, c.IsNull(3))

	c.SwapRows(0, 5)
	assert.Equal(t, "apple", c.GetString(0))
	assert.Equal(t, "pear", c.GetString(5))
	c.MoveLastOver(1, 5)
	assert.Equal(t, "pear", c.GetString(1))
	require.NoError(t, c.Verify())

	// null sorts after everything
	assert.Equal(t, 1, c.CompareValues(2, 0))
	assert.Equal(t, -1, c.CompareValues(3, 0))

	nn := CreateStringColumn(a, false, 1)
	assert.Equal(t, "", nn.GetString(0))
	assert.False(t, nn.IsNull(0))
	assert.ErrorIs(t, nn.Set(0, nil), dberr.ErrColumnNotNullable)

	big := make([]byte, MaxStringSize+1)
	assert.ErrorIs(t, nn.Set(0, big), dberr.ErrStringTooBig)
	bin := CreateBinaryColumn(a, false, 1)
	assert.ErrorIs(t, bin.Set(0, big), dberr.ErrBinaryTooBig)
	assert.Nil(t, bin.CreateSearchIndex())
}

func TestTimestampColumn(t *testing.T) {
	a := newAlloc()
	h := holder(a, 2)
	c := CreateTimestampColumn(a, true, 1)
	h.Set(0, int64(c.Ref()))
	c.SetParent(h, 0)

	require.NoError(t, c.Add(types.NewTimestamp(10, 5)))
	require.NoError(t, c.Add(types.NewTimestamp(-3, 0)))
	require.NoError(t, c.Add(types.NewTimestamp(10, 5)))
	h.Set(1, int64(c.CreateSearchIndex().Ref()))

	assert.True(t, c.IsNull(0))
	assert.Equal(t, []int{1, 3}, c.FindAll(types.NewTimestamp(10, 5), 0, primitives.NPos))
	assert.Equal(t, 0, c.FindFirst(types.NullTimestamp(), 0, primitives.NPos))

	mn, row := c.Minimum(0, primitives.NPos, -1)
	assert.Equal(t, types.NewTimestamp(-3, 0), mn)
	assert.Equal(t, 2, row)
	mx, row := c.Maximum(0, primitives.NPos, -1)
	assert.Equal(t, types.NewTimestamp(10, 5), mx)
	assert.Equal(t, 1, row)
	assert.Equal(t, 3, c.CountNotNull(0, primitives.NPos, -1))

	c.MoveLastOver(0, 3)
	assert.Equal(t, types.NewTimestamp(10, 5), c.Get(0))
	c.SwapRows(0, 2)
	assert.Equal(t, types.NewTimestamp(-3, 0), c.Get(0))
	require.NoError(t, c.Set(1, types.NewTimestamp(1, 1)))
	assert.Equal(t, 1, c.FindFirst(types.NewTimestamp(1, 1), 0, primitives.NPos))
	require.NoError(t, c.Verify())

	other := NewTimestampColumn(a, true)
	other.SetParent(h, 0)
	other.UpdateFromParent()
	assert.Equal(t, c.Size(), other.Size())

	nn := CreateTimestampColumn(a, false, 1)
	assert.ErrorIs(t, nn.SetNull(0), dberr.ErrColumnNotNullable)
}

func enumColumn(t *testing.T, a alloc.Allocator, values ...string) (*StringEnumColumn, *array.Array) {
	t.Helper()
	h := holder(a, 3)
	keys := CreateStringColumn(a, true, 0)
	h.Set(2, int64(keys.Ref()))
	keys.SetParent(h, 2)

	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}
	c := CreateStringEnumColumn(a, keys, true, raw)
	h.Set(0, int64(c.Ref()))
	c.SetParent(h, 0)
	return c, h
}

func TestStringEnumColumn(t *testing.T) {
	a := newAlloc()
	c, h := enumColumn(t, a, "a", "b", "a", "c")

	assert.Equal(t, 2, c.Count([]byte("a")))
	k := c.GetKeyNdx([]byte("a"))
	require.NotEqual(t, primitives.NotFound, k)

	c.Add("d")
	require.NoError(t, c.Insert(0, []byte("e"), 2))
	assert.Equal(t, k, c.GetKeyNdx([]byte("a")))
	assert.Equal(t, 3, c.GetKeyNdx([]byte("d")))
	assert.Equal(t, primitives.NotFound, c.GetKeyNdx([]byte("zzz")))
	assert.Equal(t, 0, c.Count([]byte("zzz")))

	res, _, key := c.FindAllIndexRef([]byte("a"))
	assert.Equal(t, FindResColumn, res)
	assert.Equal(t, k, key)

	h.Set(1, int64(c.CreateSearchIndex().Ref()))
	res, rows, _ := c.FindAllIndexRef([]byte("a"))
	assert.Equal(t, FindResList, res)
	assert.Equal(t, []int{2, 4}, rows)
	res, rows, _ = c.FindAllIndexRef([]byte("c"))
	assert.Equal(t, FindResSingle, res)
	assert.Equal(t, []int{5}, rows)
	res, _, _ = c.FindAllIndexRef([]byte("zzz"))
	assert.Equal(t, FindResNotFound, res)

	require.NoError(t, c.SetNull(3))
	assert.True(t, c.IsNull(3))
	assert.Equal(t, 1, c.CompareValues(3, 0))
	require.NoError(t, c.Verify())
}

func TestStringEnumPruneKeys(t *testing.T) {
	a := newAlloc()
	c, h := enumColumn(t, a, "x", "y", "z", "y")
	h.Set(1, int64(c.CreateSearchIndex().Ref()))

	c.MoveLastOver(0, 3) // y y z
	c.Erase(2, true)     // y y
	assert.Equal(t, 3, c.Keys().Size())

	assert.Equal(t, 2, c.PruneKeys())
	assert.Equal(t, 1, c.Keys().Size())
	assert.Equal(t, "y", c.GetString(0))
	assert.Equal(t, "y", c.GetString(1))
	assert.Equal(t, 2, c.Count([]byte("y")))
	require.NoError(t, c.Verify())
}

func TestEraseRows(t *testing.T) {
	a := newAlloc()
	c, h := intColumn(t, a, false, 0, 1, 2, 3, 4, 5)
	h.Set(1, int64(c.CreateSearchIndex().Ref()))
	EraseRows(c, 1, 3, 6)
	assert.Equal(t, []int64{0, 4, 5}, intValues(c))
	EraseRows(c, 1, 2, 3)
	assert.Equal(t, []int64{0}, intValues(c))
	require.NoError(t, c.Verify())
}

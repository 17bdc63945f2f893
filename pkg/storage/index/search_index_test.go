package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/types"
)

func newIndex(t *testing.T) *SearchIndex {
	t.Helper()
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	return Create(a)
}

func TestKeyOrdering(t *testing.T) {
	ordered := []Key{
		NullKey(),
		IntKey(-1 << 40),
		IntKey(-1),
		IntKey(0),
		IntKey(7),
		IntKey(1 << 50),
		StringKey([]byte("")),
		StringKey([]byte("a")),
		StringKey([]byte("ab")),
		StringKey([]byte("b")),
		TimestampKey(types.NewTimestamp(-5, 0)),
		TimestampKey(types.NewTimestamp(0, 1)),
		TimestampKey(types.NewTimestamp(3, 0)),
	}
	for i := 1; i < len(ordered); i++ {
		assert.Negative(t, ordered[i-1].Compare(ordered[i]), "key %d vs %d", i-1, i)
	}
	assert.True(t, TimestampKey(types.NullTimestamp()).IsNull())
}

func TestSearchIndexInsertFind(t *testing.T) {
	x := newIndex(t)
	values := []int64{10, 20, 30, 20}
	for row, v := range values {
		x.Insert(row, IntKey(v), 1, true)
	}
	require.NoError(t, x.Verify())

	assert.Equal(t, 1, x.FindFirst(IntKey(20)))
	assert.Equal(t, []int{1, 3}, x.FindAll(IntKey(20)))
	assert.Equal(t, 2, x.Count(IntKey(20)))
	assert.Equal(t, primitives.NotFound, x.FindFirst(IntKey(99)))
	assert.True(t, x.HasDuplicates())
}

func TestSearchIndexRowShifts(t *testing.T) {
	x := newIndex(t)
	for row, s := range []string{"a", "b", "c"} {
		x.Insert(row, StringKey([]byte(s)), 1, true)
	}

	// insert "z" twice before row 1: a z z b c
	x.Insert(1, StringKey([]byte("z")), 2, false)
	assert.Equal(t, 3, x.FindFirst(StringKey([]byte("b"))))
	assert.Equal(t, []int{1, 2}, x.FindAll(StringKey([]byte("z"))))

	// erase row 0: z z b c
	x.Erase(0, StringKey([]byte("a")), false)
	assert.Equal(t, 2, x.FindFirst(StringKey([]byte("b"))))
	assert.Equal(t, 3, x.FindFirst(StringKey([]byte("c"))))

	// move last over row 0: c z b
	x.MoveLastOver(0, 3, StringKey([]byte("z")), StringKey([]byte("c")))
	assert.Equal(t, 0, x.FindFirst(StringKey([]byte("c"))))
	assert.Equal(t, []int{1}, x.FindAll(StringKey([]byte("z"))))

	// swap rows 0 and 2: b z c
	x.Swap(0, 2, StringKey([]byte("c")), StringKey([]byte("b")))
	assert.Equal(t, 0, x.FindFirst(StringKey([]byte("b"))))
	assert.Equal(t, 2, x.FindFirst(StringKey([]byte("c"))))

	x.Set(1, StringKey([]byte("z")), NullKey())
	assert.Equal(t, 1, x.FindFirst(NullKey()))
	assert.Equal(t, primitives.NotFound, x.FindFirst(StringKey([]byte("z"))))
	require.NoError(t, x.Verify())
	assert.Equal(t, 3, x.Size())
}

func TestSearchIndexPrefix(t *testing.T) {
	x := newIndex(t)
	for row, s := range []string{"apple", "banana", "apricot", "ap", "b"} {
		x.Insert(row, StringKey([]byte(s)), 1, true)
	}
	assert.Equal(t, []int{0, 2, 3}, x.FindPrefix([]byte("ap")))
	assert.Empty(t, x.FindPrefix([]byte("c")))
}

func TestSearchIndexManyEntries(t *testing.T) {
	old := array.MaxBpNodeSize
	array.MaxBpNodeSize = 4
	t.Cleanup(func() { array.MaxBpNodeSize = old })

	x := newIndex(t)
	for row := 0; row < 200; row++ {
		x.Insert(row, IntKey(int64(row%7)), 1, true)
	}
	require.NoError(t, x.Verify())
	for v := 0; v < 7; v++ {
		rows := x.FindAll(IntKey(int64(v)))
		for _, r := range rows {
			assert.Equal(t, v, r%7)
		}
	}
	assert.Equal(t, 29, x.Count(IntKey(0)))

	x.Clear()
	assert.Equal(t, 0, x.Size())
}

func TestSearchIndexReattach(t *testing.T) {
	a := alloc.NewSlabAlloc()
	a.AttachEmpty()
	x := Create(a)
	x.Insert(0, IntKey(5), 3, true)

	y := New(a)
	y.InitFromRef(x.Ref())
	assert.Equal(t, []int{0, 1, 2}, y.FindAll(IntKey(5)))
	entries := y.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[2].Row)
}

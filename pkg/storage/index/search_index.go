// Package index implements the search index attached to indexed columns: a
// sorted map from value to the rows holding it, duplicates allowed.
package index

import (
	"fmt"
	"slices"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/bptree"
)

// IndexEntry is one (key, row) pair of a SearchIndex.
type IndexEntry struct {
	Key Key
	Row int
}

// SearchIndex is stored as a has-refs node [keys, rows] of two parallel
// trees kept sorted by (key, row).
type SearchIndex struct {
	alloc alloc.Allocator
	top   *array.Array
	keys  *bptree.Tree[[]byte]
	rows  *bptree.Tree[int64]
}

// New returns an unattached accessor.
func New(a alloc.Allocator) *SearchIndex {
	x := &SearchIndex{
		alloc: a,
		top:   array.New(a),
		keys:  bptree.New(a, bptree.NewBlobLeaf),
		rows:  bptree.New(a, bptree.NewIntLeaf),
	}
	x.keys.SetParent(x.top, 0)
	x.rows.SetParent(x.top, 1)
	return x
}

// Create allocates an empty index and returns its accessor.
func Create(a alloc.Allocator) *SearchIndex {
	x := New(a)
	x.top.Create(array.TypeHasRefs, false, 2, 0)
	x.top.Set(0, int64(x.keys.Create()))
	x.top.Set(1, int64(x.rows.Create()))
	return x
}

// Ref returns the ref of the index root.
func (x *SearchIndex) Ref() primitives.Ref {
	return x.top.Ref()
}

// SetParent sets where the index ref is stored.
func (x *SearchIndex) SetParent(p array.Parent, ndx int) {
	x.top.SetParent(p, ndx)
}

// NdxInParent returns the slot of the index ref in its parent.
func (x *SearchIndex) NdxInParent() int {
	return x.top.NdxInParent()
}

// InitFromRef attaches the accessor to an existing index.
func (x *SearchIndex) InitFromRef(ref primitives.Ref) {
	x.top.InitFromRef(ref)
	x.keys.InitFromParent()
	x.rows.InitFromParent()
}

// UpdateFromParent re-reads the index ref from the parent.
func (x *SearchIndex) UpdateFromParent() {
	x.top.UpdateFromParent()
	x.keys.InitFromParent()
	x.rows.InitFromParent()
}

// Size returns the number of entries.
func (x *SearchIndex) Size() int {
	return x.rows.Size()
}

// Destroy frees the index.
func (x *SearchIndex) Destroy() {
	x.top.DestroyDeep()
}

// Clear removes every entry.
func (x *SearchIndex) Clear() {
	x.keys.Clear()
	x.rows.Clear()
}

func (x *SearchIndex) entryAt(i int) (Key, int) {
	return Key(x.keys.Get(i)), int(x.rows.Get(i))
}

// lowerBound returns the position of the first entry not less than (key, row).
func (x *SearchIndex) lowerBound(key Key, row int) int {
	lo, hi := 0, x.Size()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		k, r := x.entryAt(mid)
		c := k.Compare(key)
		if c < 0 || (c == 0 && r < row) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the position after the last entry for key.
func (x *SearchIndex) upperBound(key Key) int {
	lo, hi := 0, x.Size()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if Key(x.keys.Get(mid)).Compare(key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (x *SearchIndex) insertEntry(key Key, row int) {
	pos := x.lowerBound(key, row)
	x.keys.Insert(pos, []byte(key))
	x.rows.Insert(pos, int64(row))
}

func (x *SearchIndex) eraseEntry(key Key, row int) {
	pos := x.lowerBound(key, row)
	if pos == x.Size() {
		panic(fmt.Sprintf("search index: no entry for row %d", row))
	}
	if k, r := x.entryAt(pos); r != row || k.Compare(key) != 0 {
		panic(fmt.Sprintf("search index: no entry for row %d", row))
	}
	x.keys.Erase(pos)
	x.rows.Erase(pos)
}

// shiftRows adds delta to every row number >= from.
func (x *SearchIndex) shiftRows(from, delta int) {
	for i, n := 0, x.Size(); i < n; i++ {
		if r := x.rows.Get(i); r >= int64(from) {
			x.rows.Set(i, r+int64(delta))
		}
	}
}

// Insert records n rows holding key starting at row. Unless isAppend, rows at
// or after row are shifted up first.
func (x *SearchIndex) Insert(row int, key Key, n int, isAppend bool) {
	if !isAppend {
		x.shiftRows(row, n)
	}
	for i := 0; i < n; i++ {
		x.insertEntry(key, row+i)
	}
}

// Erase removes the entry of row, which held key. Unless isLast, later rows
// are shifted down.
func (x *SearchIndex) Erase(row int, key Key, isLast bool) {
	x.eraseEntry(key, row)
	if !isLast {
		x.shiftRows(row+1, -1)
	}
}

// Set changes the value recorded for row.
func (x *SearchIndex) Set(row int, oldKey, newKey Key) {
	if oldKey.Compare(newKey) == 0 {
		return
	}
	x.eraseEntry(oldKey, row)
	x.insertEntry(newKey, row)
}

// MoveLastOver drops row and renumbers the entry of last to row.
func (x *SearchIndex) MoveLastOver(row, last int, key, lastKey Key) {
	x.eraseEntry(key, row)
	if row != last {
		x.eraseEntry(lastKey, last)
		x.insertEntry(lastKey, row)
	}
}

// Swap exchanges the entries of rows a and b.
func (x *SearchIndex) Swap(a, b int, keyA, keyB Key) {
	x.eraseEntry(keyA, a)
	x.eraseEntry(keyB, b)
	x.insertEntry(keyB, a)
	x.insertEntry(keyA, b)
}

// FindFirst returns the lowest row holding key, or NotFound.
func (x *SearchIndex) FindFirst(key Key) int {
	pos := x.lowerBound(key, 0)
	if pos == x.Size() {
		return primitives.NotFound
	}
	k, r := x.entryAt(pos)
	if k.Compare(key) != 0 {
		return primitives.NotFound
	}
	return r
}

// FindAll returns every row holding key in ascending order.
func (x *SearchIndex) FindAll(key Key) []int {
	begin := x.lowerBound(key, 0)
	end := x.upperBound(key)
	rows := make([]int, 0, end-begin)
	for i := begin; i < end; i++ {
		rows = append(rows, int(x.rows.Get(i)))
	}
	return rows
}

// Count returns the number of rows holding key.
func (x *SearchIndex) Count(key Key) int {
	return x.upperBound(key) - x.lowerBound(key, 0)
}

// FindPrefix returns, in ascending order, every row whose string key starts
// with prefix.
func (x *SearchIndex) FindPrefix(prefix []byte) []int {
	var rows []int
	for i := x.lowerBound(StringKey(prefix), 0); i < x.Size(); i++ {
		k, r := x.entryAt(i)
		if !k.HasPrefix(prefix) {
			break
		}
		rows = append(rows, r)
	}
	slices.Sort(rows)
	return rows
}

// HasDuplicates reports whether any key is held by more than one row.
func (x *SearchIndex) HasDuplicates() bool {
	for i := 1; i < x.Size(); i++ {
		if Key(x.keys.Get(i)).Compare(Key(x.keys.Get(i-1))) == 0 {
			return true
		}
	}
	return false
}

// Entries returns a copy of every entry in index order.
func (x *SearchIndex) Entries() []IndexEntry {
	out := make([]IndexEntry, x.Size())
	for i := range out {
		k, r := x.entryAt(i)
		out[i] = IndexEntry{Key: append(Key(nil), k...), Row: r}
	}
	return out
}

// Verify checks that entries are strictly ordered by (key, row).
func (x *SearchIndex) Verify() error {
	if x.keys.Size() != x.rows.Size() {
		return fmt.Errorf("search index: %d keys but %d rows", x.keys.Size(), x.rows.Size())
	}
	for i := 1; i < x.Size(); i++ {
		pk, pr := x.entryAt(i - 1)
		k, r := x.entryAt(i)
		c := pk.Compare(k)
		if c > 0 || (c == 0 && pr >= r) {
			return fmt.Errorf("search index: entries %d and %d out of order", i-1, i)
		}
	}
	return nil
}

package bptree

import (
	"math"

	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

// Leaf is the accessor for one leaf of a Tree.
type Leaf[T any] interface {
	Ref() primitives.Ref
	Create()
	InitFromRef(ref primitives.Ref)
	SetParent(p array.Parent, ndx int)
	Size() int
	Get(i int) T
	Set(i int, v T)
	Insert(i int, v T)
	Erase(i int)
	Truncate(n int)
	// Destroy frees the leaf and everything it owns.
	Destroy()
}

// LeafFactory returns a new unattached leaf accessor.
type LeafFactory[T any] func(a alloc.Allocator) Leaf[T]

// IntLeaf holds plain integers.
type IntLeaf struct{ *array.Array }

func NewIntLeaf(a alloc.Allocator) Leaf[int64] { return IntLeaf{array.New(a)} }

func (l IntLeaf) Create()       { l.Array.Create(array.TypeNormal, false, 0, 0) }
func (l IntLeaf) Destroy()      { l.Array.Destroy() }
func (l IntLeaf) Truncate(n int) { l.Array.Truncate(n) }

// RefLeaf holds refs and tagged integers. Removing elements does not free
// the subtrees they point at; the owning column does that.
type RefLeaf struct{ *array.Array }

func NewRefLeaf(a alloc.Allocator) Leaf[int64] { return RefLeaf{array.New(a)} }

func (l RefLeaf) Create()        { l.Array.Create(array.TypeHasRefs, false, 0, 0) }
func (l RefLeaf) Destroy()       { l.Array.DestroyDeep() }
func (l RefLeaf) Truncate(n int) { l.Array.Truncate(n) }

// NotNullIntLeaf presents a plain integer leaf through the nullable
// interface so that nullable and non-nullable integer columns share a tree
// type.
type NotNullIntLeaf struct{ arr *array.Array }

func NewNotNullIntLeaf(a alloc.Allocator) Leaf[array.NullInt] {
	return NotNullIntLeaf{array.New(a)}
}

func (l NotNullIntLeaf) Ref() primitives.Ref               { return l.arr.Ref() }
func (l NotNullIntLeaf) Create()                           { l.arr.Create(array.TypeNormal, false, 0, 0) }
func (l NotNullIntLeaf) InitFromRef(ref primitives.Ref)    { l.arr.InitFromRef(ref) }
func (l NotNullIntLeaf) SetParent(p array.Parent, ndx int) { l.arr.SetParent(p, ndx) }
func (l NotNullIntLeaf) Size() int                         { return l.arr.Size() }
func (l NotNullIntLeaf) Get(i int) array.NullInt           { return array.Int(l.arr.Get(i)) }
func (l NotNullIntLeaf) Set(i int, v array.NullInt)        { l.arr.Set(i, v.Int64) }
func (l NotNullIntLeaf) Insert(i int, v array.NullInt)     { l.arr.Insert(i, v.Int64) }
func (l NotNullIntLeaf) Erase(i int)                       { l.arr.Erase(i) }
func (l NotNullIntLeaf) Truncate(n int)                    { l.arr.Truncate(n) }
func (l NotNullIntLeaf) Destroy()                          { l.arr.Destroy() }

// IntNullLeaf holds nullable integers.
type IntNullLeaf struct{ *array.IntNull }

func NewIntNullLeaf(a alloc.Allocator) Leaf[array.NullInt] {
	return IntNullLeaf{array.NewIntNull(a)}
}

func (l IntNullLeaf) Create() { l.IntNull.Create(0) }

// Float null is a quiet NaN with a distinctive payload, so that a NaN
// produced by arithmetic is not mistaken for null.
const (
	FloatNullBits  uint32 = 0x7fc000aa
	DoubleNullBits uint64 = 0x7ff80000000000aa
)

// FloatNull returns the float null value.
func FloatNull() float32 { return math.Float32frombits(FloatNullBits) }

// DoubleNull returns the double null value.
func DoubleNull() float64 { return math.Float64frombits(DoubleNullBits) }

// IsFloatNull reports whether v is the float null value.
func IsFloatNull(v float32) bool { return math.Float32bits(v) == FloatNullBits }

// IsDoubleNull reports whether v is the double null value.
func IsDoubleNull(v float64) bool { return math.Float64bits(v) == DoubleNullBits }

// FloatLeaf holds float32 values.
type FloatLeaf struct{ f *array.Floats }

func NewFloatLeaf(a alloc.Allocator) Leaf[float32] { return FloatLeaf{array.NewFloats(a, 4)} }

func (l FloatLeaf) Ref() primitives.Ref               { return l.f.Ref() }
func (l FloatLeaf) Create()                           { l.f.Create(0, 0) }
func (l FloatLeaf) InitFromRef(ref primitives.Ref)    { l.f.InitFromRef(ref) }
func (l FloatLeaf) SetParent(p array.Parent, ndx int) { l.f.SetParent(p, ndx) }
func (l FloatLeaf) Size() int                         { return l.f.Size() }
func (l FloatLeaf) Get(i int) float32                 { return math.Float32frombits(uint32(l.f.Get(i))) }
func (l FloatLeaf) Set(i int, v float32)              { l.f.Set(i, uint64(math.Float32bits(v))) }
func (l FloatLeaf) Insert(i int, v float32)           { l.f.Insert(i, uint64(math.Float32bits(v))) }
func (l FloatLeaf) Erase(i int)                       { l.f.Erase(i) }
func (l FloatLeaf) Truncate(n int)                    { l.f.Truncate(n) }
func (l FloatLeaf) Destroy()                          { l.f.Destroy() }

// DoubleLeaf holds float64 values.
type DoubleLeaf struct{ f *array.Floats }

func NewDoubleLeaf(a alloc.Allocator) Leaf[float64] { return DoubleLeaf{array.NewFloats(a, 8)} }

func (l DoubleLeaf) Ref() primitives.Ref               { return l.f.Ref() }
func (l DoubleLeaf) Create()                           { l.f.Create(0, 0) }
func (l DoubleLeaf) InitFromRef(ref primitives.Ref)    { l.f.InitFromRef(ref) }
func (l DoubleLeaf) SetParent(p array.Parent, ndx int) { l.f.SetParent(p, ndx) }
func (l DoubleLeaf) Size() int                         { return l.f.Size() }
func (l DoubleLeaf) Get(i int) float64                 { return math.Float64frombits(l.f.Get(i)) }
func (l DoubleLeaf) Set(i int, v float64)              { l.f.Set(i, math.Float64bits(v)) }
func (l DoubleLeaf) Insert(i int, v float64)           { l.f.Insert(i, math.Float64bits(v)) }
func (l DoubleLeaf) Erase(i int)                       { l.f.Erase(i) }
func (l DoubleLeaf) Truncate(n int)                    { l.f.Truncate(n) }
func (l DoubleLeaf) Destroy()                          { l.f.Destroy() }

// BlobLeaf holds strings or binaries; nil is null.
type BlobLeaf struct{ *array.Blobs }

func NewBlobLeaf(a alloc.Allocator) Leaf[[]byte] { return BlobLeaf{array.NewBlobs(a)} }

func (l BlobLeaf) Create() { l.Blobs.Create(0, nil) }

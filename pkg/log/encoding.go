package log

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// Binary format: a changeset is a sequence of instructions, each
//
//	[type:1][fields...]
//
// where the fields present depend on the type (see layouts) and appear in
// the order of the field bits. Integers are zig-zag varints, strings are a
// uvarint length followed by bytes, values are [kind:1][payload].

type fieldSet uint16

const (
	fTable fieldSet = 1 << iota
	fCol
	fRow
	fRow2
	fN
	fPrior
	fUnordered
	fNdx
	fNdx2
	fName
	fColType
	fNullable
	fLinkTarget
	fValue
)

var layouts = map[InstrType]fieldSet{
	InsertTable:       fTable | fName,
	EraseTable:        fTable | fName,
	RenameTable:       fTable | fName,
	MoveTable:         fTable | fCol,
	InsertColumn:      fTable | fCol | fName | fColType | fNullable | fLinkTarget,
	EraseColumn:       fTable | fCol | fColType | fLinkTarget,
	RenameColumn:      fTable | fCol | fName,
	AddSearchIndex:    fTable | fCol,
	RemoveSearchIndex: fTable | fCol,
	InsertRows:        fTable | fRow | fN | fPrior | fUnordered,
	EraseRows:         fTable | fRow | fN | fPrior | fUnordered,
	SwapRows:          fTable | fRow | fRow2,
	ClearTable:        fTable | fPrior,
	OptimizeTable:     fTable,
	SetValue:          fTable | fCol | fRow | fValue,
	SubtableChanged:   fTable | fCol | fRow,
	LinkListSet:       fTable | fCol | fRow | fNdx | fLinkTarget,
	LinkListInsert:    fTable | fCol | fRow | fNdx | fLinkTarget,
	LinkListErase:     fTable | fCol | fRow | fNdx,
	LinkListMove:      fTable | fCol | fRow | fNdx | fNdx2,
	LinkListSwap:      fTable | fCol | fRow | fNdx | fNdx2,
	LinkListClear:     fTable | fCol | fRow | fPrior,
}

// ErrCorruptChangeset is returned for changesets that cannot be decoded.
var ErrCorruptChangeset = errors.New("corrupt changeset")

// Encoder accumulates the changeset of one write transaction.
type Encoder struct {
	buf   bytes.Buffer
	count int
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Append encodes in at the end of the changeset.
func (e *Encoder) Append(in Instruction) {
	layout, ok := layouts[in.Type]
	if !ok {
		panic(fmt.Sprintf("changeset: unknown instruction %v", in.Type))
	}
	e.buf.WriteByte(byte(in.Type))
	e.putInt(layout, fTable, int64(in.Table))
	e.putInt(layout, fCol, int64(in.Col))
	e.putInt(layout, fRow, int64(in.Row))
	e.putInt(layout, fRow2, int64(in.Row2))
	e.putInt(layout, fN, int64(in.N))
	e.putInt(layout, fPrior, int64(in.PriorSize))
	if layout&fUnordered != 0 {
		e.putBool(in.Unordered)
	}
	e.putInt(layout, fNdx, int64(in.Ndx))
	e.putInt(layout, fNdx2, int64(in.Ndx2))
	if layout&fName != 0 {
		e.putBytes([]byte(in.Name))
	}
	e.putInt(layout, fColType, int64(in.ColType))
	if layout&fNullable != 0 {
		e.putBool(in.Nullable)
	}
	e.putInt(layout, fLinkTarget, int64(in.LinkTarget))
	if layout&fValue != 0 {
		e.putValue(in.Value)
	}
	e.count++
}

func (e *Encoder) putInt(layout, f fieldSet, v int64) {
	if layout&f == 0 {
		return
	}
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	e.buf.Write(tmp[:n])
}

func (e *Encoder) putBool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *Encoder) putBytes(b []byte) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	e.buf.Write(tmp[:n])
	e.buf.Write(b)
}

const (
	valNull byte = iota
	valInt
	valBool
	valFloat
	valDouble
	valString
	valBinary
	valTimestamp
	valLink
	valSubtable
)

func (e *Encoder) putValue(v types.Mixed) {
	var tmp [binary.MaxVarintLen64]byte
	if v.IsNull() {
		e.buf.WriteByte(valNull)
		return
	}
	switch v.Type() {
	case types.Int:
		e.buf.WriteByte(valInt)
		e.buf.Write(tmp[:binary.PutVarint(tmp[:], v.Int())])
	case types.Bool:
		e.buf.WriteByte(valBool)
		e.putBool(v.Bool())
	case types.Float:
		e.buf.WriteByte(valFloat)
		binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v.Float()))
		e.buf.Write(tmp[:4])
	case types.Double:
		e.buf.WriteByte(valDouble)
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Double()))
		e.buf.Write(tmp[:8])
	case types.String:
		e.buf.WriteByte(valString)
		e.putBytes(v.Bytes())
	case types.Binary:
		e.buf.WriteByte(valBinary)
		e.putBytes(v.Bytes())
	case types.Timestamp:
		e.buf.WriteByte(valTimestamp)
		ts := v.Timestamp()
		e.buf.Write(tmp[:binary.PutVarint(tmp[:], ts.Seconds)])
		e.buf.Write(tmp[:binary.PutVarint(tmp[:], int64(ts.Nanos))])
	case types.Link:
		e.buf.WriteByte(valLink)
		e.buf.Write(tmp[:binary.PutVarint(tmp[:], v.Int())])
	case types.Table:
		e.buf.WriteByte(valSubtable)
	default:
		e.buf.WriteByte(valNull)
	}
}

// Bytes returns the encoded changeset. The slice is valid until the next
// Append or Reset.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// Len returns the number of instructions appended.
func (e *Encoder) Len() int { return e.count }

// Reset discards the changeset.
func (e *Encoder) Reset() {
	e.buf.Reset()
	e.count = 0
}

type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = fmt.Errorf("%w: truncated at byte %d", ErrCorruptChangeset, d.pos)
	}
}

func (d *decoder) byte() byte {
	if d.pos >= len(d.data) {
		d.fail()
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) varint() int64 {
	v, n := binary.Varint(d.data[d.pos:])
	if n <= 0 {
		d.fail()
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) bytes() []byte {
	l, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 || uint64(len(d.data)-d.pos-n) < l {
		d.fail()
		return nil
	}
	d.pos += n
	b := append([]byte{}, d.data[d.pos:d.pos+int(l)]...)
	d.pos += int(l)
	return b
}

func (d *decoder) fixed(n int) []byte {
	if len(d.data)-d.pos < n {
		d.fail()
		return make([]byte, n)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) int(layout, f fieldSet) int {
	if layout&f == 0 {
		return 0
	}
	return int(d.varint())
}

func (d *decoder) value() types.Mixed {
	switch d.byte() {
	case valInt:
		return types.MixedInt(d.varint())
	case valBool:
		return types.MixedBool(d.byte() != 0)
	case valFloat:
		return types.MixedFloat(math.Float32frombits(binary.LittleEndian.Uint32(d.fixed(4))))
	case valDouble:
		return types.MixedDouble(math.Float64frombits(binary.LittleEndian.Uint64(d.fixed(8))))
	case valString:
		return types.MixedString(string(d.bytes()))
	case valBinary:
		return types.MixedBinary(d.bytes())
	case valTimestamp:
		s := d.varint()
		return types.MixedTimestamp(types.NewTimestamp(s, int32(d.varint())))
	case valLink:
		return types.MixedLink(d.varint())
	case valSubtable:
		return types.MixedSubtable()
	default:
		return types.NullMixed()
	}
}

func (d *decoder) next() (Instruction, bool) {
	in := Instruction{Type: InstrType(d.byte())}
	layout, ok := layouts[in.Type]
	if !ok {
		if d.err == nil {
			d.err = fmt.Errorf("%w: unknown instruction %d at byte %d", ErrCorruptChangeset, in.Type, d.pos-1)
		}
		return in, false
	}
	in.Table = d.int(layout, fTable)
	in.Col = d.int(layout, fCol)
	in.Row = d.int(layout, fRow)
	in.Row2 = d.int(layout, fRow2)
	in.N = d.int(layout, fN)
	in.PriorSize = d.int(layout, fPrior)
	if layout&fUnordered != 0 {
		in.Unordered = d.byte() != 0
	}
	in.Ndx = d.int(layout, fNdx)
	in.Ndx2 = d.int(layout, fNdx2)
	if layout&fName != 0 {
		in.Name = string(d.bytes())
	}
	in.ColType = primitives.ColumnType(d.int(layout, fColType))
	if layout&fNullable != 0 {
		in.Nullable = d.byte() != 0
	}
	in.LinkTarget = d.int(layout, fLinkTarget)
	if layout&fValue != 0 {
		in.Value = d.value()
	}
	return in, d.err == nil
}

// Parse decodes a whole changeset.
func Parse(data []byte) ([]Instruction, error) {
	d := &decoder{data: data}
	var out []Instruction
	for d.pos < len(d.data) {
		in, ok := d.next()
		if !ok {
			return nil, d.err
		}
		out = append(out, in)
	}
	return out, nil
}

// Apply decodes data and hands every instruction to h in order.
func Apply(data []byte, h Handler) error {
	d := &decoder{data: data}
	for d.pos < len(d.data) {
		in, ok := d.next()
		if !ok {
			return d.err
		}
		if err := h.Handle(&in); err != nil {
			return err
		}
	}
	return nil
}

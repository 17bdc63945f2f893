package types

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// Mixed holds a single value of any storable type. It is the cell type of
// mixed columns and the generic value used when rows are compared or dumped.
// The zero value is null.
type Mixed struct {
	typ   DataType
	valid bool
	i     int64
	d     float64
	bytes []byte
	ts    TimestampValue
}

func NullMixed() Mixed { return Mixed{} }

func MixedInt(v int64) Mixed { return Mixed{typ: Int, valid: true, i: v} }

func MixedBool(v bool) Mixed {
	m := Mixed{typ: Bool, valid: true}
	if v {
		m.i = 1
	}
	return m
}

func MixedFloat(v float32) Mixed { return Mixed{typ: Float, valid: true, d: float64(v)} }

func MixedDouble(v float64) Mixed { return Mixed{typ: Double, valid: true, d: v} }

func MixedString(v string) Mixed { return Mixed{typ: String, valid: true, bytes: []byte(v)} }

// MixedBinary copies v. A nil slice yields an empty (not null) binary.
func MixedBinary(v []byte) Mixed {
	return Mixed{typ: Binary, valid: true, bytes: append([]byte{}, v...)}
}

func MixedTimestamp(v TimestampValue) Mixed {
	if v.IsNull() {
		return NullMixed()
	}
	return Mixed{typ: Timestamp, valid: true, ts: v}
}

// MixedSubtable denotes a subtable cell. Its contents are reached through the
// owning table; the value only records the type.
func MixedSubtable() Mixed { return Mixed{typ: Table, valid: true} }

// MixedLink records a single link target, or null when target is negative.
func MixedLink(target int64) Mixed {
	if target < 0 {
		return NullMixed()
	}
	return Mixed{typ: Link, valid: true, i: target}
}

// IsNull reports whether m is null. The zero Mixed is null.
func (m Mixed) IsNull() bool {
	return !m.valid
}

func (m Mixed) Type() DataType { return m.typ }

func (m Mixed) Int() int64 { return m.i }

func (m Mixed) Bool() bool { return m.i != 0 }

func (m Mixed) Float() float32 { return float32(m.d) }

func (m Mixed) Double() float64 { return m.d }

func (m Mixed) String() string {
	if !m.valid {
		return "null"
	}
	switch m.typ {
	case Int, Link:
		return strconv.FormatInt(m.i, 10)
	case Bool:
		return strconv.FormatBool(m.i != 0)
	case Float:
		return strconv.FormatFloat(m.d, 'g', -1, 32)
	case Double:
		return strconv.FormatFloat(m.d, 'g', -1, 64)
	case String:
		return string(m.bytes)
	case Binary:
		return fmt.Sprintf("%x", m.bytes)
	case Timestamp:
		return m.ts.String()
	case Table:
		return "<subtable>"
	default:
		return "?"
	}
}

// Str returns the string payload.
func (m Mixed) Str() string { return string(m.bytes) }

// Bytes returns the binary payload without copying.
func (m Mixed) Bytes() []byte { return m.bytes }

func (m Mixed) Timestamp() TimestampValue { return m.ts }

// Equal compares type and payload. Two nulls are equal; floats compare by
// bit pattern so that NaN payloads round-trip.
func (m Mixed) Equal(o Mixed) bool {
	if !m.valid || !o.valid {
		return m.valid == o.valid
	}
	if m.typ != o.typ {
		return false
	}
	switch m.typ {
	case Float, Double:
		return math.Float64bits(m.d) == math.Float64bits(o.d)
	case String, Binary:
		return bytes.Equal(m.bytes, o.bytes)
	case Timestamp:
		return m.ts.Equal(o.ts)
	case Table:
		return true
	default:
		return m.i == o.i
	}
}

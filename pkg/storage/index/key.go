package index

import (
	"bytes"
	"encoding/binary"

	"colstore/pkg/types"
)

// Key is an order-preserving byte encoding of an indexed value. Keys of
// different kinds never compare equal; null sorts before everything.
type Key []byte

const (
	kindNull byte = iota
	kindInt
	kindString
	kindTimestamp
)

const signBit = 1 << 63

// NullKey is the key of a null cell.
func NullKey() Key {
	return Key{kindNull}
}

// IntKey encodes an integer (also used for bools and link targets).
func IntKey(v int64) Key {
	k := make(Key, 9)
	k[0] = kindInt
	binary.BigEndian.PutUint64(k[1:], uint64(v)^signBit)
	return k
}

// StringKey encodes a string or binary value.
func StringKey(s []byte) Key {
	k := make(Key, 1+len(s))
	k[0] = kindString
	copy(k[1:], s)
	return k
}

// TimestampKey encodes a timestamp; a null timestamp maps to NullKey.
func TimestampKey(ts types.TimestampValue) Key {
	if ts.IsNull() {
		return NullKey()
	}
	k := make(Key, 13)
	k[0] = kindTimestamp
	binary.BigEndian.PutUint64(k[1:], uint64(ts.Seconds)^signBit)
	binary.BigEndian.PutUint32(k[9:], uint32(ts.Nanos)^(1<<31))
	return k
}

// Compare orders two keys.
func (k Key) Compare(o Key) int {
	return bytes.Compare(k, o)
}

// IsNull reports whether k is the null key.
func (k Key) IsNull() bool {
	return len(k) == 1 && k[0] == kindNull
}

// HasPrefix reports whether k is a string key starting with prefix.
func (k Key) HasPrefix(prefix []byte) bool {
	return len(k) > 0 && k[0] == kindString && bytes.HasPrefix(k[1:], prefix)
}

// Package array implements the node format shared by every persisted
// structure: an 8-byte header followed by a packed payload.
//
// Header layout:
//
//	byte 0     flags: 0x80 inner B+-tree node, 0x40 has refs, 0x20 context,
//	           bits 3-4 width type (bits, multiply, ignore)
//	byte 1     width: log-coded bit width for the bits type, element byte
//	           size for the multiply type
//	bytes 2-4  number of elements (big endian)
//	bytes 5-7  capacity of the block in 8-byte units (big endian)
package array

const (
	// HeaderSize is the size of every node header.
	HeaderSize = 8

	flagInner   = 0x80
	flagHasRefs = 0x40
	flagContext = 0x20
	wtypeShift  = 3
	wtypeMask   = 0x18

	// MaxSize is the largest element count a node can record.
	MaxSize = 1<<24 - 1

	minCapacity = 64
)

// WidthType tells how the width byte is interpreted.
type WidthType int

const (
	WidthTypeBits WidthType = iota
	WidthTypeMultiply
	WidthTypeIgnore
)

var widthCodes = [...]int{0, 1, 2, 4, 8, 16, 32, 64}

func encodeBitWidth(w int) byte {
	for i, c := range widthCodes {
		if c == w {
			return byte(i)
		}
	}
	panic("array: invalid bit width")
}

func getUint24(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

func putUint24(b []byte, v int) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func headerWidthType(mem []byte) WidthType {
	return WidthType((mem[0] & wtypeMask) >> wtypeShift)
}

// headerWidth returns the bit width for the bits type and the element size
// in bytes otherwise.
func headerWidth(mem []byte) int {
	if headerWidthType(mem) == WidthTypeBits {
		return widthCodes[mem[1]&7]
	}
	return int(mem[1])
}

func headerSize(mem []byte) int {
	return getUint24(mem[2:5])
}

func headerCapacity(mem []byte) int {
	return getUint24(mem[5:8]) * 8
}

func setHeaderSize(mem []byte, n int) {
	putUint24(mem[2:5], n)
}

func setHeaderCapacity(mem []byte, capBytes int) {
	putUint24(mem[5:8], capBytes/8)
}

func setHeaderWidth(mem []byte, wt WidthType, w int) {
	if wt == WidthTypeBits {
		mem[1] = encodeBitWidth(w)
	} else {
		mem[1] = byte(w)
	}
}

func initHeader(mem []byte, flags byte, wt WidthType, w, size, capBytes int) {
	mem[0] = flags&^wtypeMask | byte(wt)<<wtypeShift
	setHeaderWidth(mem, wt, w)
	setHeaderSize(mem, size)
	setHeaderCapacity(mem, capBytes)
}

func payloadBytes(wt WidthType, w, size int) int {
	switch wt {
	case WidthTypeBits:
		return (size*w + 7) / 8
	case WidthTypeMultiply:
		return size * w
	default:
		return size
	}
}

// usedBytes is the unaligned number of bytes occupied by the node.
func usedBytes(mem []byte) int {
	return HeaderSize + payloadBytes(headerWidthType(mem), headerWidth(mem), headerSize(mem))
}

// NodeByteSize returns the 8-aligned number of bytes a node occupies when
// written out.
func NodeByteSize(mem []byte) int {
	return (usedBytes(mem) + 7) &^ 7
}

// NodeHasRefs reports whether the node's elements are refs or tagged integers.
func NodeHasRefs(mem []byte) bool {
	return mem[0]&flagHasRefs != 0
}

// NodeIsInner reports whether the node is an inner B+-tree node.
func NodeIsInner(mem []byte) bool {
	return mem[0]&flagInner != 0
}

// NodeCapacity returns the capacity recorded in the header, in bytes.
func NodeCapacity(mem []byte) int {
	return headerCapacity(mem)
}

// SetNodeCapacity overwrites the capacity field; the group writer uses it to
// make a written node's capacity equal its size.
func SetNodeCapacity(mem []byte, capBytes int) {
	setHeaderCapacity(mem, capBytes)
}

package alloc

import (
	"bytes"
	"encoding/binary"

	"colstore/pkg/primitives"
)

// File layout constants.
const (
	// HeaderSize is the size of the file header holding the two top ref slots.
	HeaderSize = 24

	// FooterSize is the size of the footer of streaming-form files.
	FooterSize = 16

	// CurrentFileFormat is written by every commit.
	CurrentFileFormat = 9

	// UpgradableFileFormat can be opened only when upgrades are allowed.
	UpgradableFileFormat = 8

	streamingTopRef uint64 = 0xFFFFFFFFFFFFFFFF
	footerCookie    uint64 = 0x3034125237E526C8

	flagSelectBit = 0x01
)

var headerMagic = []byte("T-DB")

// Header is the decoded form of the 24-byte file header.
type Header struct {
	TopRefs [2]uint64
	Formats [2]byte
	Flags   byte
}

// Select returns the index of the active top ref slot.
func (h Header) Select() int {
	return int(h.Flags & flagSelectBit)
}

// IsStreaming reports whether the file was produced by the streaming writer.
func (h Header) IsStreaming() bool {
	return h.TopRefs[0] == streamingTopRef
}

// TopRef returns the active top ref of a non-streaming file.
func (h Header) TopRef() primitives.Ref {
	return primitives.Ref(h.TopRefs[h.Select()])
}

// Format returns the file format of the active slot.
func (h Header) Format() int {
	return int(h.Formats[h.Select()])
}

// EncodeHeader serializes h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:], h.TopRefs[0])
	binary.LittleEndian.PutUint64(buf[8:], h.TopRefs[1])
	copy(buf[16:20], headerMagic)
	buf[20] = h.Formats[0]
	buf[21] = h.Formats[1]
	buf[23] = h.Flags
	return buf
}

// DecodeHeader parses and validates a file header.
func DecodeHeader(buf []byte) (Header, bool) {
	var h Header
	if len(buf) < HeaderSize || !bytes.Equal(buf[16:20], headerMagic) {
		return h, false
	}
	h.TopRefs[0] = binary.LittleEndian.Uint64(buf[0:])
	h.TopRefs[1] = binary.LittleEndian.Uint64(buf[8:])
	h.Formats[0] = buf[20]
	h.Formats[1] = buf[21]
	h.Flags = buf[23]
	return h, true
}

// EmptyHeader is the header of a freshly created file without any data.
func EmptyHeader() Header {
	return Header{Formats: [2]byte{CurrentFileFormat, CurrentFileFormat}}
}

// StreamingHeader is the header written at the start of a streaming-form file.
func StreamingHeader() Header {
	return Header{
		TopRefs: [2]uint64{streamingTopRef, 0},
		Formats: [2]byte{CurrentFileFormat, CurrentFileFormat},
	}
}

// EncodeFooter serializes the streaming footer.
func EncodeFooter(top primitives.Ref) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint64(buf[0:], uint64(top))
	binary.LittleEndian.PutUint64(buf[8:], footerCookie)
	return buf
}

// decodeFooter returns the top ref stored in the last FooterSize bytes of data.
func decodeFooter(data []byte) (primitives.Ref, bool) {
	if len(data) < HeaderSize+FooterSize {
		return 0, false
	}
	f := data[len(data)-FooterSize:]
	if binary.LittleEndian.Uint64(f[8:]) != footerCookie {
		return 0, false
	}
	return primitives.Ref(binary.LittleEndian.Uint64(f[0:])), true
}

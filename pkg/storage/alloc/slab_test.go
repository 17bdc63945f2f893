package alloc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
)

func TestSlabAllocEmpty(t *testing.T) {
	a := NewSlabAlloc()
	a.AttachEmpty()

	r1 := a.Alloc(10)
	r2 := a.Alloc(24)
	assert.Equal(t, primitives.Ref(HeaderSize), r1)
	assert.Equal(t, r1+16, r2)
	assert.False(t, a.IsReadOnly(r1))

	copy(a.Translate(r1), "hello")
	assert.Equal(t, "hello", string(a.Translate(r1)[:5]))

	a.Free(r1, 10)
	r3 := a.Alloc(8)
	assert.Equal(t, r1, r3, "freed slab space is reused")
	assert.Equal(t, byte(0), a.Translate(r3)[0], "reused memory is zeroed")
}

func TestSlabAllocGrowsSlabs(t *testing.T) {
	a := NewSlabAlloc()
	a.AttachEmpty()

	big := a.Alloc(minSlabSize * 3)
	small := a.Alloc(8)
	assert.Greater(t, small, big)
	assert.Len(t, a.Translate(big), minSlabSize*4)
	assert.True(t, a.HasSlabs())

	a.ResetSlabs()
	assert.False(t, a.HasSlabs())
}

func TestAttachFileCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.col")
	a := NewSlabAlloc()
	res, err := a.AttachFile(path, AttachOptions{})
	require.NoError(t, err)
	defer a.Detach()

	assert.True(t, res.Created)
	assert.Equal(t, primitives.NullRef, res.TopRef)
	assert.Equal(t, CurrentFileFormat, res.FileFormat)
	assert.Equal(t, HeaderSize, res.FileSize)
	assert.True(t, a.IsReadOnly(8))
	assert.Equal(t, primitives.Ref(HeaderSize), a.Baseline())
}

func TestAttachFileNoCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.col")
	_, err := NewSlabAlloc().AttachFile(path, AttachOptions{NoCreate: true})
	assert.True(t, errors.Is(err, dberr.ErrFileAccess))
}

func TestAttachInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"garbage", []byte("this is not a database file at all"), dberr.ErrInvalidDatabase},
		{"old format", func() []byte {
			h := EmptyHeader()
			h.Formats = [2]byte{UpgradableFileFormat, UpgradableFileFormat}
			h.TopRefs[0] = HeaderSize
			return append(EncodeHeader(h), make([]byte, 16)...)
		}(), dberr.ErrFileFormatUpgradeRequired},
		{"bad top", func() []byte {
			h := EmptyHeader()
			h.TopRefs[0] = 4096
			return EncodeHeader(h)
		}(), dberr.ErrInvalidDatabase},
		{"broken footer", append(EncodeHeader(StreamingHeader()), make([]byte, 32)...), dberr.ErrInvalidDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSlabAlloc().AttachBuffer(tt.data, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestAttachUpgradeAllowed(t *testing.T) {
	h := EmptyHeader()
	h.Formats = [2]byte{UpgradableFileFormat, UpgradableFileFormat}
	h.TopRefs[0] = HeaderSize
	buf := append(EncodeHeader(h), make([]byte, 16)...)

	res, err := NewSlabAlloc().AttachBuffer(buf, true)
	require.NoError(t, err)
	assert.Equal(t, UpgradableFileFormat, res.FileFormat)
}

func TestStreamingFooter(t *testing.T) {
	buf := EncodeHeader(StreamingHeader())
	buf = append(buf, make([]byte, 16)...)
	buf = append(buf, EncodeFooter(HeaderSize)...)

	a := NewSlabAlloc()
	res, err := a.AttachBuffer(buf, false)
	require.NoError(t, err)
	assert.True(t, res.Streaming)
	assert.Equal(t, primitives.Ref(HeaderSize), res.TopRef)
}

func TestRemapAndFreedReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.col")
	a := NewSlabAlloc()
	_, err := a.AttachFile(path, AttachOptions{})
	require.NoError(t, err)
	defer a.Detach()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("payload!"), HeaderSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, a.Remap(HeaderSize+8))
	assert.Equal(t, "payload!", string(a.Translate(HeaderSize)[:8]))

	a.Free(HeaderSize, 8)
	assert.Equal(t, []Chunk{{Ref: HeaderSize, Size: 8}}, a.FreedReadOnly())
}

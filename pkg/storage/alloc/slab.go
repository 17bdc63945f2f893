package alloc

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
)

const minSlabSize = 64 * 1024

type attachMode int

const (
	attachNone attachMode = iota
	attachEmpty
	attachBuffer
	attachFile
)

type slab struct {
	ref  primitives.Ref
	mem  []byte
	used int
}

func (s *slab) end() primitives.Ref {
	return s.ref + primitives.Ref(len(s.mem))
}

// AttachOptions controls how a database file is attached.
type AttachOptions struct {
	ReadOnly     bool
	NoCreate     bool
	AllowUpgrade bool
	// SkipValidate trusts the header; used by sessions that join an
	// already initialized shared file.
	SkipValidate bool
}

// AttachResult describes the attached file.
type AttachResult struct {
	TopRef     primitives.Ref
	FileSize   int
	FileFormat int
	Streaming  bool
	Created    bool
}

// SlabAlloc is the Allocator used by groups. The attached region (a
// read-only shared mapping of the file, or a caller supplied buffer) holds the
// last committed state; everything allocated during a write transaction
// lives in slabs until the group writer persists it.
type SlabAlloc struct {
	mode     attachMode
	data     []byte
	mappings [][]byte
	file     *os.File
	path     string
	baseline primitives.Ref

	slabs    []*slab
	freeSlab []Chunk
	freedRO  []Chunk

	fileFormat int
}

// NewSlabAlloc returns an unattached allocator.
func NewSlabAlloc() *SlabAlloc {
	return &SlabAlloc{}
}

// AttachEmpty prepares the allocator for a group that has no backing storage.
func (a *SlabAlloc) AttachEmpty() {
	a.mode = attachEmpty
	a.baseline = HeaderSize
	a.fileFormat = CurrentFileFormat
}

// AttachBuffer attaches an in-memory database image. The buffer is never
// modified.
func (a *SlabAlloc) AttachBuffer(buf []byte, allowUpgrade bool) (AttachResult, error) {
	res, err := a.validate(buf, allowUpgrade)
	if err != nil {
		return res, err
	}
	a.mode = attachBuffer
	a.data = buf
	a.baseline = primitives.Ref(AlignSize(len(buf)))
	return res, nil
}

// AttachFile opens (and if allowed creates) the database file at path and
// maps it read-only.
//
// Parameters:
//   - path: Database file location
//   - opts: Creation, upgrade and validation behavior
//
// Returns:
//   - AttachResult: Top ref, size and format of the attached file
//   - error: FILE_ACCESS, INVALID_DATABASE or FILE_FORMAT_UPGRADE_REQUIRED
func (a *SlabAlloc) AttachFile(path string, opts AttachOptions) (AttachResult, error) {
	var res AttachResult

	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	if !opts.NoCreate && !opts.ReadOnly {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return res, dberr.From(dberr.ErrFileAccess).WithDetail("%s", path).WithCause(err).In("AttachFile", "SlabAlloc")
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return res, dberr.From(dberr.ErrFileAccess).WithCause(err).In("AttachFile", "SlabAlloc")
	}

	size := int(st.Size())
	if size == 0 {
		if opts.ReadOnly {
			f.Close()
			return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("%s is empty", path).In("AttachFile", "SlabAlloc")
		}
		if _, err := f.WriteAt(EncodeHeader(EmptyHeader()), 0); err != nil {
			f.Close()
			return res, dberr.From(dberr.ErrFileAccess).WithCause(err).In("AttachFile", "SlabAlloc")
		}
		size = HeaderSize
		res.Created = true
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return res, dberr.From(dberr.ErrFileAccess).WithDetail("mmap %s", path).WithCause(err).In("AttachFile", "SlabAlloc")
	}

	if opts.SkipValidate {
		h, _ := DecodeHeader(mapping)
		res.TopRef = h.TopRef()
		res.FileFormat = h.Format()
		res.FileSize = size
	} else {
		created := res.Created
		res, err = a.validate(mapping, opts.AllowUpgrade)
		res.Created = created
		if err != nil {
			_ = unix.Munmap(mapping)
			f.Close()
			return res, err
		}
	}

	a.mode = attachFile
	a.file = f
	a.path = path
	a.data = mapping
	a.mappings = append(a.mappings, mapping)
	a.baseline = primitives.Ref(AlignSize(size))
	a.fileFormat = res.FileFormat
	return res, nil
}

func (a *SlabAlloc) validate(data []byte, allowUpgrade bool) (AttachResult, error) {
	var res AttachResult
	h, ok := DecodeHeader(data)
	if !ok {
		return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("bad header").In("Attach", "SlabAlloc")
	}

	res.FileSize = len(data)
	if h.IsStreaming() {
		top, ok := decodeFooter(data)
		if !ok {
			return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("bad streaming footer").In("Attach", "SlabAlloc")
		}
		res.TopRef = top
		res.Streaming = true
		res.FileFormat = int(h.Formats[0])
	} else {
		res.TopRef = h.TopRef()
		res.FileFormat = h.Format()
	}

	if res.TopRef != 0 && (res.TopRef%8 != 0 || int(res.TopRef) >= len(data)) {
		return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("top ref %d out of range", res.TopRef).In("Attach", "SlabAlloc")
	}

	switch res.FileFormat {
	case CurrentFileFormat:
	case UpgradableFileFormat:
		if !allowUpgrade {
			return res, dberr.From(dberr.ErrFileFormatUpgradeRequired).
				WithDetail("format %d", res.FileFormat).In("Attach", "SlabAlloc")
		}
	case 0:
		// Files created without a top ref carry no meaningful format yet.
		if res.TopRef != 0 {
			return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("missing file format").In("Attach", "SlabAlloc")
		}
		res.FileFormat = CurrentFileFormat
	default:
		return res, dberr.From(dberr.ErrInvalidDatabase).WithDetail("unsupported file format %d", res.FileFormat).In("Attach", "SlabAlloc")
	}
	a.fileFormat = res.FileFormat
	return res, nil
}

// Remap extends the read-only mapping to cover fileSize bytes. Older
// mappings stay valid until Detach so that previously translated memory can
// still be read. Remap must only be called while no slabs are in use.
func (a *SlabAlloc) Remap(fileSize int) error {
	if a.mode != attachFile || fileSize <= len(a.data) {
		return nil
	}
	if len(a.slabs) > 0 {
		return errors.New("remap with live slabs")
	}

	mapping, err := unix.Mmap(int(a.file.Fd()), 0, fileSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return dberr.From(dberr.ErrFileAccess).WithDetail("remap %s to %d bytes", a.path, fileSize).WithCause(err).In("Remap", "SlabAlloc")
	}
	logging.WithComponent("slab_alloc").Debug("remapped database file", "path", a.path, "from", len(a.data), "to", fileSize)

	a.data = mapping
	a.mappings = append(a.mappings, mapping)
	a.baseline = primitives.Ref(AlignSize(fileSize))
	return nil
}

// Alloc implements Allocator. Blocks are carved from slabs above the
// baseline, reusing freed slab space first-fit.
func (a *SlabAlloc) Alloc(size int) primitives.Ref {
	size = AlignSize(size)
	if size == 0 {
		size = 8
	}

	for i, c := range a.freeSlab {
		if c.Size < size {
			continue
		}
		ref := c.Ref
		if c.Size == size {
			a.freeSlab = append(a.freeSlab[:i], a.freeSlab[i+1:]...)
		} else {
			a.freeSlab[i] = Chunk{Ref: c.Ref + primitives.Ref(size), Size: c.Size - size}
		}
		clear(a.Translate(ref)[:size])
		return ref
	}

	var s *slab
	if n := len(a.slabs); n > 0 && len(a.slabs[n-1].mem)-a.slabs[n-1].used >= size {
		s = a.slabs[n-1]
	} else {
		s = a.newSlab(size)
	}
	ref := s.ref + primitives.Ref(s.used)
	s.used += size
	return ref
}

func (a *SlabAlloc) newSlab(minSize int) *slab {
	start := a.baseline
	slabSize := minSlabSize
	if n := len(a.slabs); n > 0 {
		last := a.slabs[n-1]
		// the unused tail of the previous slab is handed to the free list
		if rest := len(last.mem) - last.used; rest > 0 {
			a.freeSlab = append(a.freeSlab, Chunk{Ref: last.ref + primitives.Ref(last.used), Size: rest})
			last.used = len(last.mem)
		}
		start = last.end()
		slabSize = 2 * len(last.mem)
	}
	for slabSize < minSize {
		slabSize *= 2
	}
	s := &slab{ref: start, mem: make([]byte, slabSize)}
	a.slabs = append(a.slabs, s)
	return s
}

// Translate implements Allocator.
func (a *SlabAlloc) Translate(ref primitives.Ref) []byte {
	if ref < a.baseline {
		return a.data[ref:]
	}
	i := sort.Search(len(a.slabs), func(i int) bool { return a.slabs[i].end() > ref })
	if i == len(a.slabs) {
		panic(fmt.Sprintf("alloc: ref %d beyond last slab", ref))
	}
	s := a.slabs[i]
	return s.mem[ref-s.ref:]
}

// Free implements Allocator.
func (a *SlabAlloc) Free(ref primitives.Ref, size int) {
	c := Chunk{Ref: ref, Size: AlignSize(size)}
	if a.IsReadOnly(ref) {
		a.freedRO = append(a.freedRO, c)
		return
	}
	a.freeSlab = append(a.freeSlab, c)
}

// IsReadOnly implements Allocator.
func (a *SlabAlloc) IsReadOnly(ref primitives.Ref) bool {
	return ref < a.baseline
}

// Baseline returns the first slab ref.
func (a *SlabAlloc) Baseline() primitives.Ref {
	return a.baseline
}

// FreedReadOnly returns the read-only blocks freed since the last reset.
func (a *SlabAlloc) FreedReadOnly() []Chunk {
	return a.freedRO
}

// HasSlabs reports whether the current transaction allocated anything.
func (a *SlabAlloc) HasSlabs() bool {
	return len(a.slabs) > 0
}

// ResetSlabs drops every slab and the free-space bookkeeping of the current
// transaction. Called after a commit has persisted the slabs or a rollback
// has abandoned them.
func (a *SlabAlloc) ResetSlabs() {
	a.slabs = nil
	a.freeSlab = nil
	a.freedRO = nil
}

// File returns the attached file, or nil.
func (a *SlabAlloc) File() *os.File {
	return a.file
}

// Path returns the attached file path.
func (a *SlabAlloc) Path() string {
	return a.path
}

// IsAttached reports whether the allocator is attached to anything.
func (a *SlabAlloc) IsAttached() bool {
	return a.mode != attachNone
}

// IsFileBacked reports whether the allocator is attached to a file.
func (a *SlabAlloc) IsFileBacked() bool {
	return a.mode == attachFile
}

// Data returns the attached read-only region.
func (a *SlabAlloc) Data() []byte {
	return a.data
}

// FileFormat returns the format of the attached file.
func (a *SlabAlloc) FileFormat() int {
	return a.fileFormat
}

// SetFileFormat records the format written by the latest commit.
func (a *SlabAlloc) SetFileFormat(v int) {
	a.fileFormat = v
}

// Detach unmaps the file and releases every slab.
func (a *SlabAlloc) Detach() error {
	var firstErr error
	for _, m := range a.mappings {
		if err := unix.Munmap(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.mappings = nil
	if a.file != nil {
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.file = nil
	}
	a.data = nil
	a.mode = attachNone
	a.ResetSlabs()
	return firstErr
}

package database

import (
	"bufio"
	"cmp"
	"io"
	"slices"

	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
	"colstore/pkg/storage/array"
)

// nodeWriter copies the tree reachable from a ref into another address
// space. Nodes are written children first, so a parent is re-encoded with
// the new refs of its children before it is placed.
type nodeWriter struct {
	src     alloc.Allocator
	scratch *alloc.SlabAlloc

	// keep reports refs that are already persisted and can be reused as is.
	keep  func(primitives.Ref) bool
	place func(size int) primitives.Ref
	emit  func(pos primitives.Ref, data []byte) error

	written int
	bytes   int
}

func newNodeWriter(src alloc.Allocator) *nodeWriter {
	scratch := alloc.NewSlabAlloc()
	scratch.AttachEmpty()
	return &nodeWriter{src: src, scratch: scratch}
}

func (w *nodeWriter) write(ref primitives.Ref) (primitives.Ref, error) {
	if ref == primitives.NullRef || (w.keep != nil && w.keep(ref)) {
		return ref, nil
	}
	mem := w.src.Translate(ref)
	if !array.NodeHasRefs(mem) {
		return w.put(mem)
	}

	arr := w.stage(mem)
	defer arr.Destroy()
	for i := 0; i < arr.Size(); i++ {
		v := arr.Get(i)
		if v == 0 || primitives.IsTagged(v) {
			continue
		}
		nr, err := w.write(primitives.Ref(v))
		if err != nil {
			return primitives.NullRef, err
		}
		arr.Set(i, int64(nr))
	}
	return w.put(w.scratch.Translate(arr.Ref()))
}

// stage copies a has-refs node into scratch memory so its child refs can be
// rewritten.
func (w *nodeWriter) stage(mem []byte) *array.Array {
	size := array.NodeByteSize(mem)
	ref := w.scratch.Alloc(size)
	m := w.scratch.Translate(ref)[:size]
	copy(m, mem[:min(size, len(mem))])
	array.SetNodeCapacity(m, size)
	arr := array.New(w.scratch)
	arr.InitFromRef(ref)
	return arr
}

// put places and emits one encoded node, trimming its capacity to its size.
func (w *nodeWriter) put(mem []byte) (primitives.Ref, error) {
	size := array.NodeByteSize(mem)
	out := make([]byte, size)
	copy(out, mem[:min(size, len(mem))])
	array.SetNodeCapacity(out, size)
	pos := w.place(size)
	w.written++
	w.bytes += size
	return pos, w.emit(pos, out)
}

// encodeTop builds a top array from slots. The logical file size stored in
// it depends on the size of the top itself, so the encoding is repeated
// until that size is stable.
func (w *nodeWriter) encodeTop(slots []int64, fileSizeFor func(topSize int) int) []byte {
	top := array.CreateArray(w.scratch, array.TypeHasRefs, false, 0, 0)
	defer top.Destroy()
	for _, v := range slots {
		top.Add(v)
	}
	size := 0
	for {
		top.Set(topFileSize, primitives.TagInt(int64(fileSizeFor(size))))
		n := array.NodeByteSize(w.scratch.Translate(top.Ref()))
		if n == size {
			break
		}
		size = n
	}
	out := make([]byte, size)
	copy(out, w.scratch.Translate(top.Ref()))
	array.SetNodeCapacity(out, size)
	return out
}

// encodeList builds a plain integer array.
func (w *nodeWriter) encodeList(values []int64) []byte {
	arr := array.CreateArray(w.scratch, array.TypeNormal, false, 0, 0)
	defer arr.Destroy()
	for _, v := range values {
		arr.Add(v)
	}
	mem := w.scratch.Translate(arr.Ref())
	size := array.NodeByteSize(mem)
	out := make([]byte, size)
	copy(out, mem[:size])
	array.SetNodeCapacity(out, size)
	return out
}

// writeStreaming writes a compacted image of g: header, every node in
// children-first order, a minimal top array and the footer.
func writeStreaming(g *Group, out io.Writer) error {
	bw := bufio.NewWriter(out)
	if _, err := bw.Write(alloc.EncodeHeader(alloc.StreamingHeader())); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}

	pos := primitives.Ref(alloc.HeaderSize)
	w := newNodeWriter(g.alloc)
	w.place = func(size int) primitives.Ref {
		p := pos
		pos += primitives.Ref(size)
		return p
	}
	w.emit = func(_ primitives.Ref, data []byte) error {
		_, err := bw.Write(data)
		return err
	}

	names, err := w.write(g.top.GetAsRef(topNames))
	if err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}
	tables, err := w.write(g.top.GetAsRef(topTables))
	if err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}

	topPos := pos
	top := w.encodeTop([]int64{int64(names), int64(tables), 0}, func(topSize int) int {
		return int(topPos) + topSize + alloc.FooterSize
	})
	if _, err := bw.Write(top); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}
	if _, err := bw.Write(alloc.EncodeFooter(topPos)); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}
	if err := bw.Flush(); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In("Write", "Group")
	}
	logging.Debug("group written", "nodes", w.written, "bytes", int(topPos)+len(top)+alloc.FooterSize)
	return nil
}

// freeChunk is a free range of the file. Version is the version whose
// commit released it; the range may still be read by snapshots older
// than that.
type freeChunk struct {
	Pos     primitives.Ref
	Size    int
	Version primitives.Version
}

// freeList reads the free-space lists of the attached snapshot.
func (g *Group) freeList() []freeChunk {
	posRef, lenRef := g.topRef(topFreePositions), g.topRef(topFreeLengths)
	if posRef == primitives.NullRef || lenRef == primitives.NullRef {
		return nil
	}
	positions, lengths := array.New(g.alloc), array.New(g.alloc)
	positions.InitFromRef(posRef)
	lengths.InitFromRef(lenRef)
	var versions *array.Array
	if ref := g.topRef(topFreeVersions); ref != primitives.NullRef {
		versions = array.New(g.alloc)
		versions.InitFromRef(ref)
	}
	out := make([]freeChunk, positions.Size())
	for i := range out {
		out[i] = freeChunk{Pos: primitives.Ref(positions.Get(i)), Size: int(lengths.Get(i))}
		if versions != nil {
			out[i].Version = primitives.Version(versions.Get(i))
		}
	}
	return out
}

// coalesce sorts chunks by position and merges neighbours. A merged chunk
// carries the newest version of its parts.
func coalesce(chunks []freeChunk) []freeChunk {
	slices.SortFunc(chunks, func(a, b freeChunk) int { return cmp.Compare(a.Pos, b.Pos) })
	out := chunks[:0]
	for _, c := range chunks {
		if c.Size <= 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Pos+primitives.Ref(out[n-1].Size) == c.Pos {
			out[n-1].Size += c.Size
			out[n-1].Version = max(out[n-1].Version, c.Version)
			continue
		}
		out = append(out, c)
	}
	return out
}

// CommitResult describes a snapshot written by a commit.
type CommitResult struct {
	TopRef   primitives.Ref
	FileSize int
	Version  primitives.Version
}

// writeCommit persists everything the current transaction allocated into
// the attached file and makes the new top the active one in the header.
// Free space released by commits up to oldestLive is reused; newer free
// space may still be visible to live snapshots and is only recorded.
func (g *Group) writeCommit(oldestLive primitives.Version, durable bool) (CommitResult, error) {
	const op = "Commit"
	f := g.alloc.File()
	version := g.SnapshotVersion() + 1

	chunks := g.freeList()
	for _, c := range g.alloc.FreedReadOnly() {
		chunks = append(chunks, freeChunk{Pos: c.Ref, Size: c.Size, Version: version})
	}
	if ref := g.top.Ref(); g.alloc.IsReadOnly(ref) {
		chunks = append(chunks, freeChunk{Pos: ref, Size: array.NodeCapacity(g.alloc.Translate(ref)), Version: version})
	}
	for _, slot := range []int{topFreePositions, topFreeLengths, topFreeVersions} {
		if ref := g.topRef(slot); ref != primitives.NullRef {
			chunks = append(chunks, freeChunk{Pos: ref, Size: array.NodeCapacity(g.alloc.Translate(ref)), Version: version})
		}
	}
	chunks = coalesce(chunks)

	end := primitives.Ref(alloc.AlignSize(max(g.logicalFileSize(), alloc.HeaderSize)))
	extend := func(size int) primitives.Ref {
		p := end
		end += primitives.Ref(size)
		return p
	}

	w := newNodeWriter(g.alloc)
	w.keep = g.alloc.IsReadOnly
	w.place = func(size int) primitives.Ref {
		for i := range chunks {
			c := &chunks[i]
			if c.Version > oldestLive || c.Size < size {
				continue
			}
			p := c.Pos
			c.Pos += primitives.Ref(size)
			c.Size -= size
			return p
		}
		return extend(size)
	}
	w.emit = func(pos primitives.Ref, data []byte) error {
		_, err := f.WriteAt(data, int64(pos))
		return err
	}

	names, err := w.write(g.top.GetAsRef(topNames))
	if err != nil {
		return CommitResult{}, dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
	}
	tables, err := w.write(g.top.GetAsRef(topTables))
	if err != nil {
		return CommitResult{}, dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
	}

	chunks = slices.DeleteFunc(chunks, func(c freeChunk) bool { return c.Size == 0 })
	positions := make([]int64, len(chunks))
	lengths := make([]int64, len(chunks))
	versions := make([]int64, len(chunks))
	for i, c := range chunks {
		positions[i], lengths[i], versions[i] = int64(c.Pos), int64(c.Size), int64(c.Version)
	}
	var lists [3]primitives.Ref
	for i, values := range [][]int64{positions, lengths, versions} {
		data := w.encodeList(values)
		lists[i] = extend(len(data))
		if err := w.emit(lists[i], data); err != nil {
			return CommitResult{}, dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
		}
	}

	topPos := end
	top := w.encodeTop([]int64{
		int64(names), int64(tables), 0,
		int64(lists[0]), int64(lists[1]), int64(lists[2]),
		primitives.TagInt(int64(version)),
		primitives.TagInt(cmp.Or(g.historyType, g.topValue(topHistoryType))),
		primitives.TagInt(g.topValue(topHistorySchema)),
	}, func(topSize int) int { return int(topPos) + topSize })
	extend(len(top))
	if err := w.emit(topPos, top); err != nil {
		return CommitResult{}, dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
	}

	if err := g.switchTop(topPos, durable); err != nil {
		return CommitResult{}, err
	}
	g.alloc.SetFileFormat(alloc.CurrentFileFormat)
	logging.WithVersion(uint64(version)).Debug("commit written", "top", topPos, "file_size", int(end),
		"nodes", w.written, "bytes", w.bytes, "free_chunks", len(chunks))
	return CommitResult{TopRef: topPos, FileSize: int(end), Version: version}, nil
}

// switchTop installs top in the inactive header slot and then flips the
// select bit, syncing in between when durable. A streaming-form file is
// converted on its first commit.
func (g *Group) switchTop(top primitives.Ref, durable bool) error {
	const op = "Commit"
	f := g.alloc.File()
	sync := func() error {
		if !durable {
			return nil
		}
		if err := f.Sync(); err != nil {
			return dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
		}
		return nil
	}
	if err := sync(); err != nil {
		return err
	}

	h, ok := alloc.DecodeHeader(g.alloc.Data())
	if !ok {
		return dberr.From(dberr.ErrInvalidDatabase).WithDetail("bad header").In(op, "Group")
	}
	if h.IsStreaming() {
		h = alloc.Header{
			TopRefs: [2]uint64{0, uint64(top)},
			Formats: [2]byte{alloc.CurrentFileFormat, alloc.CurrentFileFormat},
			Flags:   1,
		}
		if _, err := f.WriteAt(alloc.EncodeHeader(h), 0); err != nil {
			return dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
		}
		return sync()
	}
	slot := 1 - h.Select()
	h.TopRefs[slot] = uint64(top)
	h.Formats[slot] = alloc.CurrentFileFormat
	buf := alloc.EncodeHeader(h)
	if _, err := f.WriteAt(buf[:alloc.HeaderSize-1], 0); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
	}
	if err := sync(); err != nil {
		return err
	}

	h.Flags = h.Flags&^1 | byte(slot)
	buf = alloc.EncodeHeader(h)
	if _, err := f.WriteAt(buf[alloc.HeaderSize-1:], alloc.HeaderSize-1); err != nil {
		return dberr.From(dberr.ErrFileAccess).WithCause(err).In(op, "Group")
	}
	return sync()
}

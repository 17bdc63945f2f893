package lock

import (
	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
)

func entryOff(i uint32) int { return headerSize + int(i)*entrySize }

func (lf *File) entry(i uint32) Entry {
	o := entryOff(i)
	return Entry{
		Snapshot: Snapshot{
			Version:  primitives.Version(lf.u64(o + entVersion)),
			TopRef:   primitives.Ref(lf.u64(o + entTop)),
			FileSize: int(lf.u64(o + entFileSize)),
		},
		Index:   i,
		Readers: lf.u32(o + entReaders),
	}
}

// setEntry leaves the next link alone.
func (lf *File) setEntry(i uint32, s Snapshot, readers uint32) {
	o := entryOff(i)
	lf.putU64(o+entVersion, uint64(s.Version))
	lf.putU64(o+entTop, uint64(s.TopRef))
	lf.putU64(o+entFileSize, uint64(s.FileSize))
	lf.putU32(o+entReaders, readers)
}

func (lf *File) readers(i uint32) uint32 { return lf.u32(entryOff(i) + entReaders) }
func (lf *File) setReaders(i, n uint32) { lf.putU32(entryOff(i)+entReaders, n) }
func (lf *File) next(i uint32) uint32 { return lf.u32(entryOff(i) + entNext) }
func (lf *File) setNext(i uint32, n uint32) { lf.putU32(entryOff(i)+entNext, n) }
func (lf *File) capacity() uint32 { return lf.u32(offCapacity) }

// walk visits the live entries from oldest to newest.
func (lf *File) walk(fn func(i uint32) bool) {
	put := lf.u32(offPut)
	i := lf.u32(offOld)
	for range lf.capacity() {
		if !fn(i) || i == put {
			return
		}
		i = lf.next(i)
	}
}

func (lf *File) live(i uint32) bool {
	if i >= lf.capacity() {
		return false
	}
	found := false
	lf.walk(func(j uint32) bool {
		found = j == i
		return !found
	})
	return found
}

// cleanup reclaims unread entries at the old end. The newest entry always
// stays.
func (lf *File) cleanup() {
	old, put := lf.u32(offOld), lf.u32(offPut)
	for old != put && lf.readers(old) == 0 {
		old = lf.next(old)
	}
	lf.putU32(offOld, old)
}

// grow doubles the ring, splicing the new entries in after the newest one
// so that every existing index keeps naming the same snapshot.
func (lf *File) grow() error {
	capacity := lf.capacity()
	grown := capacity * 2
	size := headerSize + int(grown)*entrySize
	if err := lf.f.Truncate(int64(size)); err != nil {
		return fileErr("Grow", lf.path, err)
	}
	if err := lf.mapSize(size); err != nil {
		return err
	}
	put := lf.u32(offPut)
	for i := capacity; i < grown-1; i++ {
		lf.setNext(i, i+1)
	}
	lf.setNext(grown-1, lf.next(put))
	lf.setNext(put, capacity)
	lf.putU32(offCapacity, grown)

	logger().Debug("lock file ring buffer grown", "path", lf.path, "entries", grown)
	if lf.opts.OnGrow != nil {
		lf.opts.OnGrow(int(grown))
	}
	return nil
}

// GrabLatest takes a read lock on the newest snapshot.
func (lf *File) GrabLatest() (ReadLock, error) {
	var rl ReadLock
	err := lf.withControl("GrabLatest", func() error {
		put := lf.u32(offPut)
		e := lf.entry(put)
		lf.setReaders(put, e.Readers+1)
		rl = ReadLock{Snapshot: e.Snapshot, Index: put}
		return nil
	})
	return rl, err
}

// Grab takes a read lock on the snapshot named by id. It fails with
// BAD_VERSION unless that snapshot is still held in the ring.
func (lf *File) Grab(id primitives.VersionID) (ReadLock, error) {
	if id.IsLatest() {
		return lf.GrabLatest()
	}
	var rl ReadLock
	err := lf.withControl("Grab", func() error {
		if !lf.live(id.Index) || lf.entry(id.Index).Version != id.Version {
			return dberr.From(dberr.ErrBadVersion).WithDetail("%s is no longer held", id).In("Grab", "LockFile")
		}
		e := lf.entry(id.Index)
		lf.setReaders(id.Index, e.Readers+1)
		rl = ReadLock{Snapshot: e.Snapshot, Index: id.Index}
		return nil
	})
	return rl, err
}

// Release gives up a read lock. Entries nobody reads any more are
// reclaimed from the old end.
func (lf *File) Release(rl ReadLock) error {
	return lf.withControl("Release", func() error {
		e := lf.entry(rl.Index)
		if e.Version != rl.Version || e.Readers == 0 {
			logger().Warn("release of a read lock that is not held", "path", lf.path, "version", rl.Version, "index", rl.Index)
			return nil
		}
		lf.setReaders(rl.Index, e.Readers-1)
		lf.cleanup()
		return nil
	})
}

// Publish appends snap as the newest snapshot, growing the ring when it is
// full. With hold the caller gets a read lock on the new entry.
func (lf *File) Publish(snap Snapshot, hold bool) (ReadLock, error) {
	var rl ReadLock
	err := lf.withControl("Publish", func() error {
		put := lf.u32(offPut)
		if latest := lf.entry(put).Version; snap.Version <= latest {
			return dberr.From(dberr.ErrBadVersion).
				WithDetail("version %d does not follow %d", snap.Version, latest).In("Publish", "LockFile")
		}
		if lf.next(put) == lf.u32(offOld) {
			if err := lf.grow(); err != nil {
				return err
			}
		}
		n := lf.next(put)
		var readers uint32
		if hold {
			readers = 1
		}
		lf.setEntry(n, snap, readers)
		lf.putU32(offPut, n)
		lf.cleanup()
		rl = ReadLock{Snapshot: snap, Index: n}
		return nil
	})
	return rl, err
}

// Latest returns the newest snapshot without locking it.
func (lf *File) Latest() (Snapshot, error) {
	var s Snapshot
	err := lf.withControl("Latest", func() error {
		s = lf.entry(lf.u32(offPut)).Snapshot
		return nil
	})
	return s, err
}

// Oldest returns the version of the oldest snapshot still held. Space freed
// by later versions may not be reused yet.
func (lf *File) Oldest() (primitives.Version, error) {
	var v primitives.Version
	err := lf.withControl("Oldest", func() error {
		v = lf.entry(lf.u32(offOld)).Version
		return nil
	})
	return v, err
}

// Entries lists the live ring entries from oldest to newest.
func (lf *File) Entries() ([]Entry, error) {
	var out []Entry
	err := lf.withControl("Entries", func() error {
		lf.walk(func(i uint32) bool {
			out = append(out, lf.entry(i))
			return true
		})
		return nil
	})
	return out, err
}

// Capacity returns the current number of ring entries.
func (lf *File) Capacity() (int, error) {
	var n int
	err := lf.withControl("Capacity", func() error {
		n = int(lf.capacity())
		return nil
	})
	return n, err
}

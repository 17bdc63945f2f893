package lock

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"colstore/pkg/config"
	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
)

const (
	// Suffix is appended to the database path to name the lock file.
	Suffix = ".lock"
	// ManagementSuffix is appended to the database path to name the
	// directory holding the mutex and notification files.
	ManagementSuffix = ".management"

	// DefaultEntries is the ring size used when none is configured.
	DefaultEntries = 32

	magic         = 0x4b4c5343 // "CSLK"
	layoutVersion = 2

	headerSize = 64
	entrySize  = 32
)

// header layout
const (
	offMagic      = 0
	offLayout     = 4
	offDurability = 8
	offCapacity   = 12
	offOld        = 16
	offPut        = 20
	offCommits    = 24
	offSessions   = 32
	offHistory    = 36
)

// entry layout
const (
	entVersion  = 0
	entTop      = 8
	entFileSize = 16
	entReaders  = 24
	entNext     = 28
)

// Snapshot locates one committed state of the database file.
type Snapshot struct {
	Version  primitives.Version
	TopRef   primitives.Ref
	FileSize int
}

// ReadLock is a read lock held on one ring buffer entry.
type ReadLock struct {
	Snapshot
	Index uint32
}

// ID returns the version id that re-acquires the same entry.
func (rl ReadLock) ID() primitives.VersionID {
	return primitives.VersionID{Version: rl.Version, Index: rl.Index}
}

// Entry is a ring buffer entry as reported by Entries.
type Entry struct {
	Snapshot
	Index   uint32
	Readers uint32
}

// Options configures Open.
type Options struct {
	// Entries is the ring size of a newly initialized lock file.
	Entries int
	// Durability must match the value every other session opened with.
	Durability config.Durability
	// History asks for a changeset history. Only the initializing session
	// decides; every other session adopts the setting of the lock file.
	History bool
	// OnGrow is called after this session grew the ring buffer.
	OnGrow func(entries int)
}

// InitFunc returns the snapshot found in the database file. Open calls it
// only in the session that initializes the lock file, while every other
// opener is held off.
type InitFunc func() (Snapshot, error)

// File is one session's handle on the lock file of a database. A File is
// used by one goroutine at a time.
type File struct {
	path string
	dir  string
	opts Options

	f       *os.File
	control *os.File
	write   *os.File
	commit  *os.File
	mem     []byte

	writing bool
}

// logger is the logger of lock file events.
func logger() *slog.Logger {
	return logging.WithComponent("lock_file")
}

func durabilityCode(d config.Durability) uint32 {
	switch d {
	case config.DurabilityAsync:
		return 1
	case config.DurabilityMemOnly:
		return 2
	default:
		return 0
	}
}

func boolCode(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func fileErr(op, path string, err error) error {
	return dberr.From(dberr.ErrFileAccess).WithDetail("%s", path).WithCause(err).In(op, "LockFile")
}

func incompatible(path, format string, args ...any) error {
	return dberr.From(dberr.ErrIncompatibleLockFile).WithDetail("%s: "+format, append([]any{path}, args...)...).In("Open", "LockFile")
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// Open attaches a session to the lock file of the database at dbPath,
// creating and initializing it when no other session is live.
//
// Parameters:
//   - dbPath: Database file location; the lock file lives next to it
//   - opts: Ring size for new lock files and the session durability
//   - init: Reads the database file when this session initializes the ring
//
// Returns:
//   - *File: The session handle, holding a shared flock on the lock file
//   - error: FILE_ACCESS, INCOMPATIBLE_LOCK_FILE or whatever init returned
func Open(dbPath string, opts Options, init InitFunc) (*File, error) {
	const op = "Open"
	if opts.Entries < 2 {
		opts.Entries = DefaultEntries
	}
	lf := &File{path: dbPath + Suffix, dir: dbPath + ManagementSuffix, opts: opts}
	if err := lf.openFiles(); err != nil {
		lf.closeFiles()
		return nil, err
	}

	if err := flock(lf.control, unix.LOCK_EX); err != nil {
		lf.closeFiles()
		return nil, fileErr(op, lf.dir, err)
	}
	err := lf.attach(init)
	_ = flock(lf.control, unix.LOCK_UN)
	if err != nil {
		_ = lf.unmap()
		lf.closeFiles()
		return nil, err
	}
	return lf, nil
}

func (lf *File) openFiles() error {
	if err := os.MkdirAll(lf.dir, 0o755); err != nil {
		return fileErr("Open", lf.dir, err)
	}
	var err error
	open := func(path string) *os.File {
		if err != nil {
			return nil
		}
		f, e := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if e != nil {
			err = fileErr("Open", path, e)
			return nil
		}
		return f
	}
	lf.f = open(lf.path)
	lf.control = open(filepath.Join(lf.dir, "control"))
	lf.write = open(filepath.Join(lf.dir, "write"))
	lf.commit = open(filepath.Join(lf.dir, "commit"))
	return err
}

func (lf *File) closeFiles() {
	for _, f := range []*os.File{lf.f, lf.control, lf.write, lf.commit} {
		if f != nil {
			f.Close()
		}
	}
	lf.f, lf.control, lf.write, lf.commit = nil, nil, nil, nil
}

// attach runs under the control mutex.
func (lf *File) attach(init InitFunc) error {
	err := unix.Flock(int(lf.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		snap, err := init()
		if err != nil {
			return err
		}
		if err := lf.reset(snap, 0); err != nil {
			return err
		}
	case errors.Is(err, unix.EWOULDBLOCK):
		if err := flock(lf.f, unix.LOCK_SH); err != nil {
			return fileErr("Open", lf.path, err)
		}
		if err := lf.join(); err != nil {
			return err
		}
	default:
		return fileErr("Open", lf.path, err)
	}

	if err := flock(lf.f, unix.LOCK_SH); err != nil {
		return fileErr("Open", lf.path, err)
	}
	lf.putU32(offSessions, lf.u32(offSessions)+1)
	return nil
}

// reset lays out a fresh ring whose only entry is snap.
func (lf *File) reset(snap Snapshot, sessions uint32) error {
	if err := lf.unmap(); err != nil {
		return fileErr("Open", lf.path, err)
	}
	n := uint32(lf.opts.Entries)
	size := headerSize + int(n)*entrySize
	if err := lf.f.Truncate(0); err != nil {
		return fileErr("Open", lf.path, err)
	}
	if err := lf.f.Truncate(int64(size)); err != nil {
		return fileErr("Open", lf.path, err)
	}
	if err := lf.mapSize(size); err != nil {
		return err
	}

	lf.putU32(offMagic, magic)
	lf.putU32(offLayout, layoutVersion)
	lf.putU32(offDurability, durabilityCode(lf.opts.Durability))
	lf.putU32(offCapacity, n)
	lf.putU32(offOld, 0)
	lf.putU32(offPut, 0)
	lf.putU64(offCommits, 0)
	lf.putU32(offSessions, sessions)
	lf.putU32(offHistory, boolCode(lf.opts.History))
	for i := range n {
		lf.setNext(i, (i+1)%n)
	}
	lf.setEntry(0, snap, 0)
	logger().Debug("lock file initialized", "path", lf.path, "entries", n, "version", snap.Version, "top", snap.TopRef)
	return nil
}

func (lf *File) join() error {
	st, err := lf.f.Stat()
	if err != nil {
		return fileErr("Open", lf.path, err)
	}
	if st.Size() < headerSize {
		return incompatible(lf.path, "%d bytes is too small", st.Size())
	}
	if err := lf.mapSize(int(st.Size())); err != nil {
		return err
	}
	switch {
	case lf.u32(offMagic) != magic:
		return incompatible(lf.path, "bad magic %#x", lf.u32(offMagic))
	case lf.u32(offLayout) != layoutVersion:
		return incompatible(lf.path, "layout %d, expected %d", lf.u32(offLayout), layoutVersion)
	case lf.u32(offDurability) != durabilityCode(lf.opts.Durability):
		return incompatible(lf.path, "opened with durability %q by another session", lf.opts.Durability)
	}
	lf.opts.History = lf.u32(offHistory) != 0
	return lf.ensureMapped()
}

func (lf *File) mapSize(size int) error {
	if err := lf.unmap(); err != nil {
		return fileErr("Map", lf.path, err)
	}
	mem, err := unix.Mmap(int(lf.f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fileErr("Map", lf.path, err)
	}
	lf.mem = mem
	return nil
}

func (lf *File) unmap() error {
	if lf.mem == nil {
		return nil
	}
	err := unix.Munmap(lf.mem)
	lf.mem = nil
	return err
}

// ensureMapped extends the mapping after another session grew the ring.
func (lf *File) ensureMapped() error {
	need := headerSize + int(lf.u32(offCapacity))*entrySize
	if need <= len(lf.mem) {
		return nil
	}
	logger().Debug("remapping lock file", "path", lf.path, "from", len(lf.mem), "to", need)
	return lf.mapSize(need)
}

func (lf *File) withControl(op string, fn func() error) error {
	if lf.mem == nil {
		return dberr.From(dberr.ErrWrongTransactState).WithDetail("lock file is closed").In(op, "LockFile")
	}
	if err := flock(lf.control, unix.LOCK_EX); err != nil {
		return fileErr(op, lf.dir, err)
	}
	defer flock(lf.control, unix.LOCK_UN)
	if err := lf.ensureMapped(); err != nil {
		return err
	}
	return fn()
}

func (lf *File) u32(off int) uint32 { return binary.LittleEndian.Uint32(lf.mem[off:]) }
func (lf *File) u64(off int) uint64 { return binary.LittleEndian.Uint64(lf.mem[off:]) }

func (lf *File) putU32(off int, v uint32) { binary.LittleEndian.PutUint32(lf.mem[off:], v) }
func (lf *File) putU64(off int, v uint64) { binary.LittleEndian.PutUint64(lf.mem[off:], v) }

// Path returns the lock file location.
func (lf *File) Path() string { return lf.path }

// CommitPath returns the file rewritten on every commit notification.
func (lf *File) CommitPath() string { return filepath.Join(lf.dir, "commit") }

// LockWrite blocks until this session holds the write mutex.
func (lf *File) LockWrite() error {
	if lf.writing {
		return dberr.From(dberr.ErrWrongTransactState).WithDetail("write mutex already held").In("LockWrite", "LockFile")
	}
	if err := flock(lf.write, unix.LOCK_EX); err != nil {
		return fileErr("LockWrite", lf.dir, err)
	}
	lf.writing = true
	return nil
}

// UnlockWrite releases the write mutex if this session holds it.
func (lf *File) UnlockWrite() {
	if !lf.writing {
		return
	}
	if err := flock(lf.write, unix.LOCK_UN); err != nil {
		logging.WithError(err).Warn("write mutex release failed", "component", "lock_file", "path", lf.path)
	}
	lf.writing = false
}

// HoldsWrite reports whether this session holds the write mutex.
func (lf *File) HoldsWrite() bool { return lf.writing }

// NotifyCommit bumps the shared commit counter and rewrites the commit
// file so that file watchers of every session wake up.
func (lf *File) NotifyCommit() error {
	var n uint64
	err := lf.withControl("NotifyCommit", func() error {
		n = lf.u64(offCommits) + 1
		lf.putU64(offCommits, n)
		return nil
	})
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	if _, err := lf.commit.WriteAt(buf[:], 0); err != nil {
		return fileErr("NotifyCommit", lf.CommitPath(), err)
	}
	return nil
}

// History reports whether the sessions of the database keep a changeset
// history, as decided by the session that initialized the lock file.
func (lf *File) History() bool { return lf.opts.History }

// Commits returns the number of commit notifications since the lock file
// was initialized.
func (lf *File) Commits() (uint64, error) {
	var n uint64
	err := lf.withControl("Commits", func() error {
		n = lf.u64(offCommits)
		return nil
	})
	return n, err
}

// Sessions returns the number of sessions attached to the lock file.
func (lf *File) Sessions() (int, error) {
	var n int
	err := lf.withControl("Sessions", func() error {
		n = int(lf.u32(offSessions))
		return nil
	})
	return n, err
}

// Exclusive runs fn if this is the only live session and re-initializes
// the ring with the snapshot fn returns. It reports whether fn ran.
func (lf *File) Exclusive(fn InitFunc) (bool, error) {
	ran := false
	err := lf.withControl("Exclusive", func() error {
		err := unix.Flock(int(lf.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil
		}
		if err != nil {
			return fileErr("Exclusive", lf.path, err)
		}
		defer flock(lf.f, unix.LOCK_SH)

		snap, err := fn()
		if err != nil {
			return err
		}
		ran = true
		return lf.reset(snap, 1)
	})
	return ran, err
}

// Close detaches the session. onLast runs, still under the control mutex,
// when no other session remains attached.
func (lf *File) Close(onLast func()) error {
	if lf.f == nil {
		return nil
	}
	lf.UnlockWrite()
	var err error
	if lf.mem != nil {
		err = lf.withControl("Close", func() error {
			if n := lf.u32(offSessions); n > 0 {
				lf.putU32(offSessions, n-1)
			}
			if unix.Flock(int(lf.f.Fd()), unix.LOCK_EX|unix.LOCK_NB) == nil && onLast != nil {
				onLast()
			}
			return nil
		})
	}
	if e := lf.unmap(); e != nil && err == nil {
		err = fileErr("Close", lf.path, e)
	}
	lf.closeFiles()
	return err
}

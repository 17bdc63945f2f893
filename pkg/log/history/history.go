// Package history persists the changeset of every committed version so that
// sessions can advance a read transaction, promote it to a write
// transaction, or roll back while keeping their accessors alive.
//
// Changesets live in a badger store next to the database file, keyed by the
// big-endian version they produce. Sessions of every process attached to
// the database append to and read from the same store. Badger admits a
// single process per directory, so the store is opened for the duration of
// one operation only, under an exclusive flock that serializes the
// operations of all processes.
package history

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sys/unix"

	dberr "colstore/pkg/error"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
)

// DirSuffix is appended to the database path to form the default history
// directory.
const DirSuffix = ".history"

// lockName is the file inside the history directory that carries the
// cross-process flock. Badger keeps its own LOCK file next to it.
const lockName = "colstore.lock"

// History is the changeset store of one database.
type History struct {
	dir  string
	refs int

	mu   sync.Mutex
	lock *os.File
	mem  *badger.DB
}

var (
	registryMu sync.Mutex
	registry   = map[string]*History{}
)

func logger() *slog.Logger {
	return logging.WithComponent("history")
}

// badgerLogger routes badger's messages into the process logger. Badger
// reports every open and close at info level, so those go to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open returns the history stored in dir. Sessions of one process share a
// handle; an empty dir yields an in-memory history private to the caller.
//
// Returns HISTORY_UNAVAILABLE when the directory cannot be created.
func Open(dir string) (*History, error) {
	if dir == "" {
		opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, unavailable(dir, err)
		}
		return &History{mem: db, refs: 1}, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, unavailable(dir, err)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if h, ok := registry[abs]; ok {
		h.refs++
		return h, nil
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, unavailable(abs, err)
	}
	f, err := os.OpenFile(filepath.Join(abs, lockName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, unavailable(abs, err)
	}

	h := &History{dir: abs, refs: 1, lock: f}
	registry[abs] = h
	logger().Debug("history attached", "dir", abs)
	return h, nil
}

func unavailable(dir string, err error) error {
	return dberr.From(dberr.ErrHistoryUnavailable).WithDetail("%s", dir).WithCause(err).In("Open", "History")
}

func wrap(op string, err error) error {
	var dbErr *dberr.DBError
	if errors.As(err, &dbErr) {
		return dbErr.In(op, "History")
	}
	return dberr.Wrap(err, dberr.CodeHistoryUnavailable, op, "History")
}

// Dir returns the directory of a persistent history, or "" in memory.
func (h *History) Dir() string {
	return h.dir
}

func (h *History) options() badger.Options {
	return badger.DefaultOptions(h.dir).
		WithLogger(badgerLogger{logger: logger().With("dir", h.dir)}).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithMemTableSize(8 << 20).
		WithValueLogFileSize(16 << 20)
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// with runs fn on the opened store. A persistent store is opened and
// closed around fn while the history flock is held, so no other process
// has it open at the same time.
func (h *History) with(op string, fn func(db *badger.DB) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mem != nil {
		if err := fn(h.mem); err != nil {
			return wrap(op, err)
		}
		return nil
	}
	if h.lock == nil {
		return dberr.From(dberr.ErrHistoryUnavailable).WithDetail("%s: history is closed", h.dir).In(op, "History")
	}

	if err := flock(h.lock, unix.LOCK_EX); err != nil {
		return wrap(op, err)
	}
	defer func() {
		if err := flock(h.lock, unix.LOCK_UN); err != nil {
			logging.WithError(err).Warn("history unlock failed", "component", "history", "dir", h.dir)
		}
	}()

	db, err := badger.Open(h.options())
	if err != nil {
		return wrap(op, err)
	}
	ferr := fn(db)
	if err := db.Close(); err != nil && ferr == nil {
		ferr = err
	}
	if ferr != nil {
		return wrap(op, ferr)
	}
	return nil
}

func versionKey(v primitives.Version) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(v))
	return k[:]
}

// Append stores the changeset that produced version and drops every
// changeset producing a version <= keepAfter, which no live snapshot can
// need any more. It returns the number of changesets dropped.
func (h *History) Append(version primitives.Version, changeset []byte, keepAfter primitives.Version) (int, error) {
	var trimmed int
	err := h.with("Append", func(db *badger.DB) error {
		err := db.Update(func(txn *badger.Txn) error {
			return txn.Set(versionKey(version), append([]byte{}, changeset...))
		})
		if err != nil {
			return err
		}
		trimmed, err = trim(db, keepAfter)
		return err
	})
	if err != nil {
		return 0, err
	}
	if trimmed > 0 {
		logging.WithVersion(uint64(version)).Debug("history trimmed", "component", "history", "below", keepAfter, "dropped", trimmed)
	}
	return trimmed, nil
}

// trim deletes every changeset producing a version <= upTo.
func trim(db *badger.DB, upTo primitives.Version) (int, error) {
	var keys [][]byte
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if primitives.Version(binary.BigEndian.Uint64(k)) > upTo {
				break
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Changesets returns the changesets producing the versions in (from, to],
// in version order. A version missing from the store fails with BAD_VERSION,
// since accessors could not be brought up to date across the gap.
func (h *History) Changesets(from, to primitives.Version) ([][]byte, error) {
	if to <= from {
		return nil, nil
	}
	out := make([][]byte, 0, to-from)
	err := h.with("Changesets", func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			next := from + 1
			for it.Seek(versionKey(next)); it.Valid() && next <= to; it.Next() {
				item := it.Item()
				v := primitives.Version(binary.BigEndian.Uint64(item.Key()))
				if v != next {
					break
				}
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				out = append(out, val)
				next++
			}
			if next <= to {
				return dberr.From(dberr.ErrBadVersion).WithDetail("no changeset for version %d", next)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the newest stored version, or 0 when the store is empty.
func (h *History) Latest() (primitives.Version, error) {
	var latest primitives.Version
	err := h.with("Latest", func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Reverse = true
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()
			it.Seek(versionKey(primitives.Version(^uint64(0))))
			if it.Valid() {
				latest = primitives.Version(binary.BigEndian.Uint64(it.Item().Key()))
			}
			return nil
		})
	})
	return latest, err
}

// Reset drops every stored changeset and reclaims the space they used.
// Used when the database file is recreated, compacted or attached afresh,
// which is when no snapshot older than the file's own can be live.
func (h *History) Reset() error {
	return h.with("Reset", func(db *badger.DB) error {
		if err := db.DropAll(); err != nil {
			return err
		}
		if h.mem != nil {
			return nil
		}
		for {
			if err := db.RunValueLogGC(0.5); err != nil {
				if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
					logging.WithError(err).Warn("history value log gc failed", "component", "history", "dir", h.dir)
				}
				return nil
			}
		}
	})
}

// Close releases the caller's reference. The handle is dropped when the
// last session of the process lets go of it.
func (h *History) Close() error {
	if h.mem != nil {
		return h.mem.Close()
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(registry, h.dir)

	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.lock.Close()
	h.lock = nil
	logger().Debug("history detached", "dir", h.dir)
	return err
}

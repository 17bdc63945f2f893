// Package transaction implements SharedGroup, the multi-version
// transaction manager of colstore.
//
// Every SharedGroup is one session on a database file. Sessions of the same
// process and of other processes coordinate through the lock file (package
// lock): readers hold a read lock on the snapshot they are bound to, and a
// single writer at a time holds the write mutex. Committed changesets are
// kept in a history store so that a session can move its accessors to a
// newer snapshot (AdvanceRead, PromoteToWrite) or undo a write while
// keeping them (RollbackAndContinueAsRead).
//
// A SharedGroup, like every accessor it hands out, is used by one goroutine
// at a time. Accessors move between sessions through handover.
package transaction

import (
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"colstore/pkg/concurrency/lock"
	"colstore/pkg/config"
	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/log/history"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// historyChangesets is the history type recorded in files whose
// changesets are kept in a history store.
const historyChangesets = 1

// SharedGroup is a session on a database file shared with other sessions.
type SharedGroup struct {
	id   string
	path string
	opts config.Options
	log  *slog.Logger

	lf    *lock.File
	alloc *alloc.SlabAlloc
	group *database.Group
	hist  *history.History

	stage      TransactStage
	readLock   lock.ReadLock
	lastSeen   primitives.Version
	writeStart time.Time

	watcher     *fsnotify.Watcher
	waitEnabled atomic.Bool
	wake        chan struct{}

	metrics *sessionMetrics
}

// Open starts a session on the database at path, creating the file unless
// opts.NoCreate is set.
//
// Parameters:
//   - path: Database file location
//   - opts: Durability, history and lock file settings
//
// Returns:
//   - *SharedGroup: A session in StageReady
//   - error: FILE_ACCESS, INVALID_DATABASE, FILE_FORMAT_UPGRADE_REQUIRED,
//     INCOMPATIBLE_LOCK_FILE or HISTORY_UNAVAILABLE
func Open(path string, opts config.Options) (*SharedGroup, error) {
	const op = "Open"
	if err := opts.Validate(); err != nil {
		return nil, dberr.From(dberr.ErrIllegalCombination).WithCause(err).In(op, "SharedGroup")
	}

	sg := &SharedGroup{
		id:    uuid.NewString(),
		path:  path,
		opts:  opts,
		alloc: alloc.NewSlabAlloc(),
		wake:  make(chan struct{}, 1),
	}
	sg.log = logging.WithSession(sg.id, path)
	sg.group = database.NewSessionGroup(sg.alloc)
	sg.waitEnabled.Store(true)
	if opts.Metrics {
		sg.metrics = &sessionMetrics{path: path}
	}

	// opened ahead of the lock file since the initializing session resets it
	if opts.History {
		if err := sg.openHistory(); err != nil {
			return nil, err
		}
	}

	attached := false
	lf, err := lock.Open(path, lock.Options{
		Entries:    opts.RingBufferEntries,
		Durability: opts.Durability,
		History:    opts.History,
		OnGrow:     func(int) { sg.metrics.grown() },
	}, func() (lock.Snapshot, error) {
		snap, err := sg.attachFile(true)
		attached = err == nil
		return snap, err
	})
	if err != nil {
		if attached {
			sg.alloc.Detach()
		}
		sg.closeHistory()
		return nil, err
	}
	sg.lf = lf

	if err := sg.adoptHistory(); err != nil {
		lf.Close(nil)
		if attached {
			sg.alloc.Detach()
		}
		sg.closeHistory()
		return nil, err
	}

	if !attached {
		if _, err := sg.attachFile(false); err != nil {
			lf.Close(nil)
			sg.closeHistory()
			return nil, err
		}
	}

	latest, err := lf.Latest()
	if err != nil {
		sg.Close()
		return nil, err
	}
	sg.lastSeen = latest.Version
	sg.log.Debug("session opened", "version", latest.Version, "durability", opts.Durability, "history", sg.opts.History)
	return sg, nil
}

// attachFile maps the database file. The initializing session also reads
// the snapshot the file holds and discards history left by an older file.
func (sg *SharedGroup) attachFile(first bool) (lock.Snapshot, error) {
	if first && sg.opts.Durability == config.DurabilityMemOnly {
		if err := os.Remove(sg.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return lock.Snapshot{}, dberr.From(dberr.ErrFileAccess).WithCause(err).In("Open", "SharedGroup")
		}
	}
	res, err := sg.alloc.AttachFile(sg.path, alloc.AttachOptions{
		NoCreate:     sg.opts.NoCreate,
		AllowUpgrade: sg.opts.AllowFileFormatUpgrade,
		SkipValidate: !first,
	})
	if err != nil || !first {
		return lock.Snapshot{}, err
	}

	if err := sg.group.AttachSnapshot(res.TopRef, res.FileSize, false); err != nil {
		sg.alloc.Detach()
		return lock.Snapshot{}, err
	}
	version := sg.group.SnapshotVersion()
	sg.group.DetachSnapshot()

	// only the file's own snapshot is live, so no changeset can be needed
	if sg.hist != nil {
		if err := sg.hist.Reset(); err != nil {
			sg.alloc.Detach()
			return lock.Snapshot{}, err
		}
		sg.log.Debug("history reset", "file_version", version)
	}
	return lock.Snapshot{Version: version, TopRef: res.TopRef, FileSize: res.FileSize}, nil
}

func (sg *SharedGroup) openHistory() error {
	h, err := history.Open(sg.opts.HistoryPath(sg.path))
	if err != nil {
		return err
	}
	sg.hist = h
	sg.group.SetHistoryType(historyChangesets)
	return nil
}

// adoptHistory follows the history setting of the lock file, so that the
// sessions of a database either all record changesets or none does.
func (sg *SharedGroup) adoptHistory() error {
	want := sg.lf.History()
	if want == sg.opts.History {
		return nil
	}
	sg.log.Info("adopting history setting of attached sessions", "history", want)
	sg.opts.History = want
	if !want {
		sg.closeHistory()
		sg.group.SetHistoryType(0)
		return nil
	}
	return sg.openHistory()
}

// ID returns the session id used in logs and handover.
func (sg *SharedGroup) ID() string { return sg.id }

// Path returns the database file location.
func (sg *SharedGroup) Path() string { return sg.path }

// Options returns the options the session was opened with, with History
// following the sessions already attached.
func (sg *SharedGroup) Options() config.Options { return sg.opts }

// Group returns the group of the session. It is attached only while a
// transaction is active.
func (sg *SharedGroup) Group() *database.Group { return sg.group }

// TransactStage returns the state of the session.
func (sg *SharedGroup) TransactStage() TransactStage { return sg.stage }

func wrongStage(op string, s TransactStage) error {
	return dberr.From(dberr.ErrWrongTransactState).WithDetail("session is %s", s).In(op, "SharedGroup")
}

func (sg *SharedGroup) closed(op string) error {
	if sg.lf == nil {
		return dberr.From(dberr.ErrWrongTransactState).WithDetail("session is closed").In(op, "SharedGroup")
	}
	return nil
}

func (sg *SharedGroup) durable() bool {
	return sg.opts.Durability == config.DurabilityFull
}

// warn logs a failure the session recovers from.
func (sg *SharedGroup) warn(err error, msg string, args ...any) {
	logging.WithError(err).Warn(msg, append([]any{"session", sg.id, "path", sg.path}, args...)...)
}

func (sg *SharedGroup) release(rl lock.ReadLock) {
	if err := sg.lf.Release(rl); err != nil {
		sg.warn(err, "read lock release failed", "version", rl.Version)
	}
}

func (sg *SharedGroup) bind(rl lock.ReadLock) {
	sg.readLock = rl
	sg.lastSeen = rl.Version
}

func (sg *SharedGroup) observeRing() {
	if sg.metrics == nil {
		return
	}
	if entries, err := sg.lf.Entries(); err == nil {
		sg.metrics.versions(len(entries))
	}
}

// BeginRead starts a read transaction on the latest snapshot.
func (sg *SharedGroup) BeginRead() (*database.Group, error) {
	return sg.BeginReadAt(primitives.LatestVersion)
}

// BeginReadAt starts a read transaction on the snapshot named by id, which
// must still be held by some session (see PinVersion).
//
// Returns:
//   - *database.Group: The group bound to the snapshot, read only
//   - error: WRONG_TRANSACT_STATE unless ready, BAD_VERSION if the
//     snapshot is gone
func (sg *SharedGroup) BeginReadAt(id primitives.VersionID) (*database.Group, error) {
	const op = "BeginRead"
	if err := sg.closed(op); err != nil {
		return nil, err
	}
	if sg.stage != StageReady {
		return nil, wrongStage(op, sg.stage)
	}
	rl, err := sg.lf.Grab(id)
	if err != nil {
		return nil, err
	}
	if err := sg.group.AttachSnapshot(rl.TopRef, rl.FileSize, false); err != nil {
		sg.release(rl)
		return nil, err
	}
	sg.bind(rl)
	sg.stage = StageReading
	sg.metrics.begun("read")
	sg.log.Debug("read transaction started", "version", rl.Version)
	return sg.group, nil
}

// EndRead ends a read transaction and releases its snapshot. It does
// nothing when no read transaction is active.
func (sg *SharedGroup) EndRead() {
	if sg.lf == nil || !sg.stage.reading() {
		if sg.stage.writing() {
			sg.log.Warn("EndRead during a write transaction ignored")
		}
		return
	}
	sg.group.DetachSnapshot()
	sg.release(sg.readLock)
	sg.stage = StageReady
	sg.observeRing()
}

// BeginWrite waits for the write mutex and starts a write transaction on
// the snapshot that is latest once the mutex is held.
func (sg *SharedGroup) BeginWrite() (*database.Group, error) {
	const op = "BeginWrite"
	if err := sg.closed(op); err != nil {
		return nil, err
	}
	if sg.stage != StageReady {
		return nil, wrongStage(op, sg.stage)
	}
	if err := sg.lf.LockWrite(); err != nil {
		return nil, err
	}
	rl, err := sg.lf.GrabLatest()
	if err != nil {
		sg.lf.UnlockWrite()
		return nil, err
	}
	if err := sg.group.AttachSnapshot(rl.TopRef, rl.FileSize, true); err != nil {
		sg.release(rl)
		sg.lf.UnlockWrite()
		return nil, err
	}
	sg.bind(rl)
	sg.startWrite("write")
	return sg.group, nil
}

func (sg *SharedGroup) startWrite(kind string) {
	sg.group.StartRecording()
	sg.writeStart = time.Now()
	sg.stage = StageWriting
	sg.metrics.begun(kind)
	sg.log.Debug("write transaction started", "version", sg.readLock.Version, "kind", kind)
}

// Commit writes the changes of the write transaction as a new snapshot and
// ends the transaction.
//
// Returns:
//   - primitives.Version: The version of the new snapshot
//   - error: WRONG_TRANSACT_STATE unless writing; any other error leaves
//     the session in StageWriteFailed
func (sg *SharedGroup) Commit() (primitives.Version, error) {
	v, err := sg.commit("Commit")
	if err != nil {
		return 0, err
	}
	sg.group.DetachSnapshot()
	sg.release(sg.readLock)
	sg.stage = StageReady
	sg.observeRing()
	return v, nil
}

// CommitAndContinueAsRead commits and keeps the session reading the
// snapshot it just wrote. Accessors stay attached.
func (sg *SharedGroup) CommitAndContinueAsRead() (primitives.Version, error) {
	const op = "CommitAndContinueAsRead"
	v, err := sg.commit(op)
	if err != nil {
		return 0, err
	}
	if err := sg.group.AttachSnapshot(sg.readLock.TopRef, sg.readLock.FileSize, false); err != nil {
		sg.stage = StageReadFailed
		return v, err
	}
	sg.stage = StageReading
	sg.observeRing()
	return v, nil
}

// commit publishes the new snapshot and leaves the session holding a read
// lock on it, with the write mutex released.
func (sg *SharedGroup) commit(op string) (primitives.Version, error) {
	if err := sg.closed(op); err != nil {
		return 0, err
	}
	if sg.stage != StageWriting {
		return 0, wrongStage(op, sg.stage)
	}

	oldest, err := sg.lf.Oldest()
	if err != nil {
		sg.stage = StageWriteFailed
		return 0, err
	}
	version := sg.group.SnapshotVersion() + 1
	if sg.hist != nil {
		// stored before the snapshot is published so that no session can
		// see the version without its changeset
		if _, err := sg.hist.Append(version, sg.group.Changeset(), oldest); err != nil {
			sg.stage = StageWriteFailed
			return 0, err
		}
	}
	res, err := sg.group.CommitSnapshot(oldest, sg.durable())
	if err != nil {
		sg.stage = StageWriteFailed
		return 0, err
	}
	held, err := sg.lf.Publish(lock.Snapshot{Version: res.Version, TopRef: res.TopRef, FileSize: res.FileSize}, true)
	if err != nil {
		// the file must not name a snapshot the lock file never saw
		if rerr := sg.group.RestoreTop(sg.readLock.TopRef, sg.durable()); rerr != nil {
			sg.warn(rerr, "restoring the file header failed", "version", res.Version)
		}
		sg.stage = StageWriteFailed
		return 0, err
	}

	sg.group.StopRecording()
	sg.release(sg.readLock)
	sg.bind(held)
	sg.lf.UnlockWrite()
	if err := sg.lf.NotifyCommit(); err != nil {
		sg.warn(err, "commit notification failed", "version", res.Version)
	}

	sg.metrics.committed(sg.writeStart)
	sg.log.Debug("committed", "version", res.Version, "top", res.TopRef, "file_size", res.FileSize, "oldest_live", oldest)
	return res.Version, nil
}

// Rollback abandons the write transaction. Accessors are brought back to
// the snapshot the transaction started from and then detached. It does
// nothing when no write transaction is active.
func (sg *SharedGroup) Rollback() {
	if sg.lf == nil || !sg.stage.writing() {
		return
	}
	if err := sg.group.RollbackTransact(sg.readLock.TopRef, sg.readLock.FileSize, nil); err != nil {
		sg.warn(err, "rollback left accessors detached")
	}
	sg.group.DetachSnapshot()
	sg.release(sg.readLock)
	sg.lf.UnlockWrite()
	sg.stage = StageReady
	sg.metrics.rolledBack()
	sg.log.Debug("rolled back", "version", sg.readLock.Version)
}

// RollbackAndContinueAsRead abandons the write transaction and keeps
// reading the snapshot it started from. Every undone change is reported to
// observer, newest first, before the accessors follow it.
func (sg *SharedGroup) RollbackAndContinueAsRead(observer log.Handler) error {
	const op = "RollbackAndContinueAsRead"
	if err := sg.closed(op); err != nil {
		return err
	}
	if !sg.stage.writing() {
		return wrongStage(op, sg.stage)
	}
	if sg.hist == nil {
		return dberr.From(dberr.ErrNoHistory).In(op, "SharedGroup")
	}
	err := sg.group.RollbackTransact(sg.readLock.TopRef, sg.readLock.FileSize, observer)
	sg.lf.UnlockWrite()
	sg.metrics.rolledBack()
	if err != nil {
		sg.stage = StageReadFailed
		return err
	}
	sg.stage = StageReading
	return nil
}

// AdvanceRead moves the read transaction to the latest snapshot, replaying
// the changes in between through observer and the session's accessors.
func (sg *SharedGroup) AdvanceRead(observer log.Handler) error {
	return sg.AdvanceReadTo(observer, primitives.LatestVersion)
}

// AdvanceReadTo moves the read transaction to the snapshot named by id,
// which may not be older than the current one.
func (sg *SharedGroup) AdvanceReadTo(observer log.Handler, id primitives.VersionID) error {
	const op = "AdvanceRead"
	if err := sg.closed(op); err != nil {
		return err
	}
	if sg.stage != StageReading {
		return wrongStage(op, sg.stage)
	}
	if sg.hist == nil {
		return dberr.From(dberr.ErrNoHistory).In(op, "SharedGroup")
	}
	rl, err := sg.lf.Grab(id)
	if err != nil {
		return err
	}
	if rl.Version < sg.readLock.Version {
		sg.release(rl)
		return dberr.From(dberr.ErrBadVersion).
			WithDetail("cannot go back from %d to %d", sg.readLock.Version, rl.Version).In(op, "SharedGroup")
	}
	if err := sg.advance(op, rl, observer); err != nil {
		return err
	}
	sg.metrics.advanced()
	return nil
}

// advance moves the bound snapshot forward to rl, which the caller holds.
func (sg *SharedGroup) advance(op string, rl lock.ReadLock, observer log.Handler) error {
	if rl.Version == sg.readLock.Version {
		sg.release(rl)
		return nil
	}
	changesets, err := sg.hist.Changesets(sg.readLock.Version, rl.Version)
	if err != nil {
		sg.release(rl)
		return err
	}
	if err := sg.group.AdvanceTransact(rl.TopRef, rl.FileSize, changesets, observer); err != nil {
		sg.release(rl)
		sg.stage = StageReadFailed
		return err
	}
	sg.log.Debug("advanced", "op", op, "from", sg.readLock.Version, "to", rl.Version, "changesets", len(changesets))
	sg.release(sg.readLock)
	sg.bind(rl)
	sg.observeRing()
	return nil
}

// PromoteToWrite turns the read transaction into a write transaction,
// first advancing it to the latest snapshot through observer.
func (sg *SharedGroup) PromoteToWrite(observer log.Handler) error {
	const op = "PromoteToWrite"
	if err := sg.closed(op); err != nil {
		return err
	}
	if sg.stage != StageReading {
		return wrongStage(op, sg.stage)
	}
	if sg.hist == nil {
		return dberr.From(dberr.ErrNoHistory).In(op, "SharedGroup")
	}
	if err := sg.lf.LockWrite(); err != nil {
		return err
	}
	rl, err := sg.lf.GrabLatest()
	if err != nil {
		sg.lf.UnlockWrite()
		return err
	}
	if err := sg.advance(op, rl, observer); err != nil {
		sg.lf.UnlockWrite()
		return err
	}
	sg.group.SetWritable(true)
	sg.startWrite("promote")
	return nil
}

// PinVersion keeps a snapshot available until UnpinVersion: the snapshot of
// the current transaction, or the latest one when none is active. Another
// session can begin reading it with BeginReadAt.
func (sg *SharedGroup) PinVersion() (primitives.VersionID, error) {
	const op = "PinVersion"
	if err := sg.closed(op); err != nil {
		return primitives.VersionID{}, err
	}
	id := primitives.LatestVersion
	if sg.stage != StageReady {
		id = sg.readLock.ID()
	}
	rl, err := sg.lf.Grab(id)
	if err != nil {
		return primitives.VersionID{}, err
	}
	return rl.ID(), nil
}

// UnpinVersion releases a snapshot pinned with PinVersion.
func (sg *SharedGroup) UnpinVersion(id primitives.VersionID) {
	if sg.lf == nil {
		return
	}
	sg.release(lock.ReadLock{Snapshot: lock.Snapshot{Version: id.Version}, Index: id.Index})
	sg.observeRing()
}

// GetVersionOfCurrentTransaction names the snapshot the session is bound
// to. It is the zero VersionID when no transaction is active.
func (sg *SharedGroup) GetVersionOfCurrentTransaction() primitives.VersionID {
	if sg.stage == StageReady {
		return primitives.VersionID{}
	}
	return sg.readLock.ID()
}

// HasChanged reports whether a snapshot newer than the last one this
// session saw has been committed.
func (sg *SharedGroup) HasChanged() (bool, error) {
	if err := sg.closed("HasChanged"); err != nil {
		return false, err
	}
	latest, err := sg.lf.Latest()
	if err != nil {
		return false, err
	}
	return latest.Version != sg.lastSeen, nil
}

// Sessions counts the sessions attached to the database file, this one
// included.
func (sg *SharedGroup) Sessions() (int, error) {
	if err := sg.closed("Sessions"); err != nil {
		return 0, err
	}
	return sg.lf.Sessions()
}

// Commits counts the commits since the lock file was initialized.
func (sg *SharedGroup) Commits() (uint64, error) {
	if err := sg.closed("Commits"); err != nil {
		return 0, err
	}
	return sg.lf.Commits()
}

// Compact rewrites the database file without free space. It needs the
// write mutex and must be the only session attached; it reports false,
// leaving the file alone, when other sessions are live. Version numbering
// and history start over.
func (sg *SharedGroup) Compact() (bool, error) {
	const op = "Compact"
	if err := sg.closed(op); err != nil {
		return false, err
	}
	if sg.stage != StageReady {
		return false, wrongStage(op, sg.stage)
	}
	if err := sg.lf.LockWrite(); err != nil {
		return false, err
	}
	defer sg.lf.UnlockWrite()

	latest, err := sg.lf.Latest()
	if err != nil {
		return false, err
	}
	ran, err := sg.lf.Exclusive(func() (lock.Snapshot, error) {
		return sg.compactFile(latest)
	})
	if err != nil || !ran {
		return ran, err
	}
	sg.lastSeen = 0
	return true, nil
}

func (sg *SharedGroup) compactFile(latest lock.Snapshot) (lock.Snapshot, error) {
	const op = "Compact"
	if err := sg.group.AttachSnapshot(latest.TopRef, latest.FileSize, false); err != nil {
		return lock.Snapshot{}, err
	}
	tmp := sg.path + ".compact"
	_ = os.Remove(tmp)
	err := sg.group.WriteToFile(tmp)
	sg.group.DetachSnapshot()
	if err != nil {
		return lock.Snapshot{}, err
	}

	if err := sg.alloc.Detach(); err != nil {
		sg.warn(err, "unmapping before compaction failed")
	}
	renameErr := os.Rename(tmp, sg.path)
	if renameErr != nil {
		_ = os.Remove(tmp)
	}
	res, err := sg.alloc.AttachFile(sg.path, alloc.AttachOptions{NoCreate: true})
	switch {
	case err != nil:
		return lock.Snapshot{}, err
	case renameErr != nil:
		return lock.Snapshot{}, dberr.From(dberr.ErrFileAccess).WithCause(renameErr).In(op, "SharedGroup")
	}

	if sg.hist != nil {
		if err := sg.hist.Reset(); err != nil {
			sg.warn(err, "history reset after compaction failed")
		}
	}
	sg.log.Info("database compacted", "from", latest.FileSize, "to", res.FileSize, "version", latest.Version)
	return lock.Snapshot{Version: 0, TopRef: res.TopRef, FileSize: res.FileSize}, nil
}

// Close ends any active transaction and detaches the session. The last
// session of a mem_only database removes the file.
func (sg *SharedGroup) Close() error {
	if sg.lf == nil {
		return nil
	}
	switch {
	case sg.stage.writing():
		sg.Rollback()
	case sg.stage.reading():
		sg.EndRead()
	}
	if sg.watcher != nil {
		sg.watcher.Close()
		sg.watcher = nil
	}

	err := sg.lf.Close(func() {
		if sg.opts.Durability != config.DurabilityMemOnly {
			return
		}
		if err := os.Remove(sg.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			sg.warn(err, "removing mem_only database failed")
		}
		if sg.hist != nil {
			if err := sg.hist.Reset(); err != nil {
				sg.warn(err, "history reset failed")
			}
		}
	})
	sg.lf = nil
	if e := sg.group.Close(); e != nil && err == nil {
		err = e
	}
	if e := sg.alloc.Detach(); e != nil && err == nil {
		err = e
	}
	sg.closeHistory()
	sg.log.Debug("session closed")
	return err
}

func (sg *SharedGroup) closeHistory() {
	if sg.hist == nil {
		return
	}
	if err := sg.hist.Close(); err != nil {
		sg.warn(err, "history close failed")
	}
	sg.hist = nil
}

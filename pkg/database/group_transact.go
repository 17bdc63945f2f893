package database

import (
	dberr "colstore/pkg/error"
	"colstore/pkg/log"
	"colstore/pkg/logging"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/alloc"
)

// This file is the narrow surface the transaction layer drives a group
// through. Applications use transaction.SharedGroup instead of calling
// these directly.

// NewSessionGroup returns a detached group over an allocator managed by
// the caller. Close leaves the allocator attached.
func NewSessionGroup(a *alloc.SlabAlloc) *Group {
	g := newGroup(a)
	g.owned = false
	g.readOnly = true
	return g
}

// Alloc returns the allocator backing the group.
func (g *Group) Alloc() *alloc.SlabAlloc {
	return g.alloc
}

// AttachSnapshot binds the group to the snapshot with the given top ref,
// dropping any uncommitted allocations first. Existing accessors are
// re-attached to the new refs as they are.
func (g *Group) AttachSnapshot(top primitives.Ref, fileSize int, writable bool) error {
	if err := g.remapAndAttach(top, fileSize); err != nil {
		return err
	}
	g.readOnly = !writable
	return nil
}

// DetachSnapshot detaches every accessor; the group can be attached again.
func (g *Group) DetachSnapshot() {
	g.detachAccessors()
	g.readOnly = true
	g.recorder = nil
	g.alloc.ResetSlabs()
}

// SetWritable switches the attached snapshot between read and write
// access without re-attaching.
func (g *Group) SetWritable(writable bool) {
	g.readOnly = !writable
}

// StartRecording makes every following change append to a fresh changeset.
func (g *Group) StartRecording() {
	g.recorder = log.NewEncoder()
}

// StopRecording ends recording and returns the changeset.
func (g *Group) StopRecording() []byte {
	if g.recorder == nil {
		return nil
	}
	cs := append([]byte(nil), g.recorder.Bytes()...)
	g.recorder = nil
	return cs
}

// Changeset returns the changes recorded so far without ending recording.
func (g *Group) Changeset() []byte {
	if g.recorder == nil {
		return nil
	}
	return g.recorder.Bytes()
}

// SetHistoryType records the kind of history kept for the file; the next
// commit stores it in the top array.
func (g *Group) SetHistoryType(kind int) {
	g.historyType = int64(kind)
}

// CommitSnapshot writes the changes of the current write transaction to
// the file. Free space released at or before oldestLive may be reused.
// The group stays bound to the old snapshot; callers re-attach or detach.
func (g *Group) CommitSnapshot(oldestLive primitives.Version, durable bool) (CommitResult, error) {
	if err := g.checkWritable("Commit"); err != nil {
		return CommitResult{}, err
	}
	return g.writeCommit(oldestLive, durable)
}

// RestoreTop makes top the active snapshot of the file header again,
// undoing the header switch of a commit no other session has seen.
func (g *Group) RestoreTop(top primitives.Ref, durable bool) error {
	if !g.alloc.IsFileBacked() {
		return dberr.From(dberr.ErrWrongTransactState).WithDetail("group is not attached to a file").In("RestoreTop", "Group")
	}
	if err := g.switchTop(top, durable); err != nil {
		return err
	}
	logging.Debug("file header restored", "top", top)
	return nil
}

// AdvanceTransact moves a read-bound group to a newer snapshot. The
// changesets between the two versions are replayed, oldest first, into the
// accessor updater and into observer, so that every accessor still names
// the same object afterwards.
func (g *Group) AdvanceTransact(top primitives.Ref, fileSize int, changesets [][]byte, observer log.Handler) error {
	const op = "AdvanceRead"
	if err := g.checkAttached(op); err != nil {
		return err
	}
	h := multiHandler{accessorUpdater{g: g}, observer}
	for _, cs := range changesets {
		if err := log.Apply(cs, h); err != nil {
			g.detachAccessors()
			return dberr.From(dberr.ErrHistoryUnavailable).WithCause(err).In(op, "Group")
		}
	}
	logging.Debug("advancing group", "top", top, "file_size", fileSize, "changesets", len(changesets))
	return g.AttachSnapshot(top, fileSize, !g.readOnly)
}

// RollbackTransact abandons the current write transaction and returns to
// the snapshot it started from. The recorded changes are undone on the
// accessors, and reported to observer, in reverse order.
func (g *Group) RollbackTransact(top primitives.Ref, fileSize int, observer log.Handler) error {
	cs := g.StopRecording()
	undo, err := log.ReverseChangeset(cs)
	if err != nil {
		g.detachAccessors()
		return dberr.From(dberr.ErrInvalidDatabase).WithCause(err).In("Rollback", "Group")
	}
	h := multiHandler{accessorUpdater{g: g}, observer}
	for i := range undo {
		if err := h.Handle(&undo[i]); err != nil {
			g.detachAccessors()
			return err
		}
	}
	return g.AttachSnapshot(top, fileSize, false)
}

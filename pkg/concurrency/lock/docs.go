// Package lock implements the shared lock file that coordinates every
// session (SharedGroup) attached to one database file, in this process or
// in others.
//
// # Overview
//
// A database at path P owns two companions:
//
//   - P.lock        the lock file. It holds a small header and a ring
//     buffer of snapshot entries, and is mapped read-write by every
//     session. Each live session holds a shared flock on it.
//   - P.management  a directory with the files backing the cross-process
//     mutexes ("control" and "write") and the commit notification file
//     ("commit").
//
// # Ring Buffer
//
// Every entry describes one committed snapshot: its version, top ref and
// file size, plus the number of read locks currently held on it. Entries
// are chained through a next index so that the ring can grow in place:
// new entries are spliced in after the newest one and existing indices stay
// valid. A [ReadLock] names its entry by index, which is what lets a pinned
// or handed over snapshot be re-acquired without searching.
//
// The oldest entry is reclaimed once no reader holds it; the newest entry is
// never reclaimed, so the latest snapshot is always available.
//
// # Mutexes
//
// All ring buffer updates happen under the control mutex. The write mutex is
// held for the duration of a write transaction. Both are exclusive flocks on
// their own file, taken through a file descriptor private to the session, so
// they exclude sessions of the same process as well as other processes.
//
// # Session Lifetime
//
// The first session to open a lock file (the one that can take an exclusive
// flock on it) initializes the ring from the database file and then
// downgrades to a shared flock. The last session to close is told so, which
// is when mem_only databases are removed.
package lock

package transaction

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// waitPoll bounds how long WaitForChange trusts the file watcher before it
// looks at the lock file again.
const waitPoll = 250 * time.Millisecond

func (sg *SharedGroup) ensureWatcher() *fsnotify.Watcher {
	if sg.watcher != nil {
		return sg.watcher
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		sg.warn(err, "file watcher unavailable, polling for commits")
		return nil
	}
	if err := w.Add(sg.lf.CommitPath()); err != nil {
		w.Close()
		sg.warn(err, "file watcher unavailable, polling for commits", "commit_file", sg.lf.CommitPath())
		return nil
	}
	sg.watcher = w
	return w
}

// WaitForChange blocks until a snapshot newer than the last one this
// session saw is committed, and reports true. It returns false at once, or
// as soon as it happens, when waiting is released with
// WaitForChangeRelease.
func (sg *SharedGroup) WaitForChange() bool {
	if sg.lf == nil {
		return false
	}
	w := sg.ensureWatcher()
	for {
		if !sg.waitEnabled.Load() {
			return false
		}
		changed, err := sg.HasChanged()
		if err != nil {
			sg.warn(err, "wait for change stopped")
			return false
		}
		if changed {
			return true
		}

		var (
			events <-chan fsnotify.Event
			errs   <-chan error
		)
		if w != nil {
			events, errs = w.Events, w.Errors
		}
		timer := time.NewTimer(waitPoll)
		select {
		case _, ok := <-events:
			if !ok {
				w = nil
			}
		case err, ok := <-errs:
			if !ok {
				w = nil
			} else {
				sg.warn(err, "file watcher error")
			}
		case <-sg.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// WaitForChangeRelease makes a WaitForChange blocked in another goroutine
// return false, and every later call until EnableWaitForChange. It is the
// one method that may be called from a goroutine other than the owner.
func (sg *SharedGroup) WaitForChangeRelease() {
	sg.waitEnabled.Store(false)
	select {
	case sg.wake <- struct{}{}:
	default:
	}
}

// EnableWaitForChange re-arms WaitForChange after a release.
func (sg *SharedGroup) EnableWaitForChange() {
	sg.waitEnabled.Store(true)
	select {
	case <-sg.wake:
	default:
	}
}

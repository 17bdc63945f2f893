package ui

import (
	"colstore/pkg/concurrency/transaction"
	"colstore/pkg/logging"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

// Run browses the database of sg until the user quits. sg must not be in a
// transaction. A second session on the same file waits for commits so the
// browser can mark the snapshot stale or follow it.
func Run(sg *transaction.SharedGroup) error {
	m, err := NewModel(sg)
	if err != nil {
		return err
	}
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())

	var eg errgroup.Group
	watch, err := transaction.Open(sg.Path(), sg.Options())
	if err != nil {
		logging.Warn("change notifications disabled", "path", sg.Path(), "error", err)
	} else {
		eg.Go(func() error {
			for watch.WaitForChange() {
				// a read marks the latest snapshot as seen
				if _, err := watch.BeginRead(); err != nil {
					return err
				}
				watch.EndRead()
				p.Send(changedMsg{})
			}
			return nil
		})
	}

	_, runErr := p.Run()
	if watch != nil {
		watch.WaitForChangeRelease()
		if err := eg.Wait(); err != nil {
			logging.Warn("change watcher stopped", "error", err)
		}
		watch.Close()
	}
	return runErr
}

package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestWaitForChangeSeesCommit(t *testing.T) {
	path := dbPath(t)
	waiter := openSession(t, path, testOptions())
	writer := openSession(t, path, testOptions())
	seed(t, writer, 1)

	// the seed commit is already newer than what waiter saw at open
	assert.True(t, waiter.WaitForChange())

	_, err := waiter.BeginRead()
	require.NoError(t, err)
	waiter.EndRead()

	var eg errgroup.Group
	done := make(chan bool, 1)
	eg.Go(func() error {
		done <- waiter.WaitForChange()
		return nil
	})

	select {
	case <-done:
		t.Fatal("WaitForChange returned before any commit")
	case <-time.After(50 * time.Millisecond):
	}

	appendRows(t, writer, 1)
	select {
	case changed := <-done:
		assert.True(t, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForChange did not observe the commit")
	}
	require.NoError(t, eg.Wait())
}

func TestWaitForChangeRelease(t *testing.T) {
	path := dbPath(t)
	sg := openSession(t, path, testOptions())

	var eg errgroup.Group
	done := make(chan bool, 1)
	eg.Go(func() error {
		done <- sg.WaitForChange()
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	sg.WaitForChangeRelease()
	select {
	case changed := <-done:
		assert.False(t, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("release did not wake the waiter")
	}
	require.NoError(t, eg.Wait())

	// released until re-enabled, even with a change pending
	writer := openSession(t, path, testOptions())
	seed(t, writer, 1)
	assert.False(t, sg.WaitForChange())

	sg.EnableWaitForChange()
	assert.True(t, sg.WaitForChange())
}

func TestWaitForChangeAfterClose(t *testing.T) {
	sg, err := Open(dbPath(t), testOptions())
	require.NoError(t, err)
	require.NoError(t, sg.Close())
	assert.False(t, sg.WaitForChange())
}

package transaction

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberr "colstore/pkg/error"
)

const holderEnv = "COLSTORE_HOLDER_DB"

// TestHolderProcess is the body of the child process started by
// TestSecondProcess. It keeps a session open on the database named by
// holderEnv and runs the commands read from stdin.
func TestHolderProcess(t *testing.T) {
	path := os.Getenv(holderEnv)
	if path == "" {
		t.Skip("runs as a child of TestSecondProcess")
	}
	sg := openSession(t, path, testOptions())
	fmt.Println("ready")

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		switch in.Text() {
		case "seed":
			seed(t, sg, 3)
			fmt.Println("ok")
		case "append":
			appendRows(t, sg, 2)
			fmt.Println("ok")
		case "count":
			g, err := sg.BeginRead()
			require.NoError(t, err)
			fmt.Println(itemCount(t, g))
			sg.EndRead()
		}
	}
}

type holder struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Scanner
}

func startHolder(t *testing.T, path string) *holder {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestHolderProcess$")
	cmd.Env = append(os.Environ(), holderEnv+"="+path)
	cmd.Stderr = os.Stderr
	in, err := cmd.StdinPipe()
	require.NoError(t, err)
	out, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	h := &holder{cmd: cmd, in: in, out: bufio.NewScanner(out)}
	t.Cleanup(func() {
		h.in.Close()
		h.cmd.Wait()
	})
	assert.Equal(t, "ready", h.reply(t))
	return h
}

// reply returns the next line the holder prints.
func (h *holder) reply(t *testing.T) string {
	t.Helper()
	require.True(t, h.out.Scan(), "holder exited: %v", h.out.Err())
	return h.out.Text()
}

func (h *holder) send(t *testing.T, command string) string {
	t.Helper()
	_, err := fmt.Fprintln(h.in, command)
	require.NoError(t, err)
	return h.reply(t)
}

func TestSecondProcess(t *testing.T) {
	path := dbPath(t)
	h := startHolder(t, path)

	sg := openSession(t, path, testOptions())
	assert.True(t, sg.Options().History)
	sessions, err := sg.Sessions()
	require.NoError(t, err)
	assert.Equal(t, 2, sessions)

	require.Equal(t, "ok", h.send(t, "seed"))
	g, err := sg.BeginRead()
	require.NoError(t, err)
	tbl, err := g.GetTableByName("items")
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Size())

	// the changeset written by the holder brings this session's accessors forward
	require.Equal(t, "ok", h.send(t, "append"))
	require.NoError(t, sg.AdvanceRead(nil))
	assert.True(t, tbl.IsAttached())
	assert.Equal(t, 5, tbl.Size())
	sg.EndRead()

	appendRows(t, sg, 4)
	n, err := strconv.Atoi(h.send(t, "count"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	h.in.Close()
	require.NoError(t, h.cmd.Wait())
}

func TestJoiningSessionAdoptsHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		path := dbPath(t)
		opts := testOptions()
		opts.History = false
		first := openSession(t, path, opts)
		second := openSession(t, path, testOptions())
		assert.False(t, second.Options().History)

		seed(t, first, 2)
		_, err := second.BeginRead()
		require.NoError(t, err)
		appendRows(t, first, 1)
		assert.ErrorIs(t, second.AdvanceRead(nil), dberr.ErrNoHistory)
		second.EndRead()
	})

	t.Run("enabled", func(t *testing.T) {
		path := dbPath(t)
		first := openSession(t, path, testOptions())
		opts := testOptions()
		opts.History = false
		second := openSession(t, path, opts)
		assert.True(t, second.Options().History)

		seed(t, first, 2)
		g, err := second.BeginRead()
		require.NoError(t, err)
		appendRows(t, first, 1)
		require.NoError(t, second.AdvanceRead(nil))
		assert.Equal(t, 3, itemCount(t, g))
		second.EndRead()
	})
}

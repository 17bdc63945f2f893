package history

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
)

func TestAppendAndRange(t *testing.T) {
	h, err := Open("")
	require.NoError(t, err)
	defer h.Close()

	for v := primitives.Version(2); v <= 6; v++ {
		_, err := h.Append(v, []byte{byte(v)}, 0)
		require.NoError(t, err)
	}

	got, err := h.Changesets(2, 5)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{3}, {4}, {5}}, got)

	got, err = h.Changesets(4, 4)
	require.NoError(t, err)
	assert.Empty(t, got)

	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, primitives.Version(6), latest)
}

func TestChangesetsGap(t *testing.T) {
	h, err := Open("")
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Append(2, []byte("a"), 0)
	require.NoError(t, err)
	_, err = h.Append(4, []byte("c"), 0)
	require.NoError(t, err)

	_, err = h.Changesets(1, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberr.ErrBadVersion))
}

func TestAppendTrims(t *testing.T) {
	h, err := Open("")
	require.NoError(t, err)
	defer h.Close()

	for v := primitives.Version(1); v <= 9; v++ {
		_, err := h.Append(v, []byte("x"), 0)
		require.NoError(t, err)
	}
	n, err := h.Append(10, []byte("x"), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = h.Changesets(5, 8)
	assert.ErrorIs(t, err, dberr.ErrBadVersion)

	got, err := h.Changesets(7, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	require.NoError(t, h.Reset())
	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, primitives.Version(0), latest)
}

func TestSharedWithinProcess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db"+DirSuffix)

	a, err := Open(dir)
	require.NoError(t, err)
	b, err := Open(dir)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = a.Append(2, []byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	got, err := b.Changesets(1, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello")}, got)
	require.NoError(t, b.Close())

	_, err = b.Latest()
	assert.ErrorIs(t, err, dberr.ErrHistoryUnavailable)

	// reopening after the last close reads the persisted changesets
	c, err := Open(dir)
	require.NoError(t, err)
	defer c.Close()
	latest, err := c.Latest()
	require.NoError(t, err)
	assert.Equal(t, primitives.Version(2), latest)
}

func TestPersistentResetAndTrim(t *testing.T) {
	h, err := Open(filepath.Join(t.TempDir(), "db"+DirSuffix))
	require.NoError(t, err)
	defer h.Close()

	for v := primitives.Version(1); v <= 4; v++ {
		_, err := h.Append(v, []byte{byte(v)}, v-1)
		require.NoError(t, err)
	}
	got, err := h.Changesets(3, 4)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{4}}, got)
	_, err = h.Changesets(2, 4)
	assert.ErrorIs(t, err, dberr.ErrBadVersion)

	require.NoError(t, h.Reset())
	latest, err := h.Latest()
	require.NoError(t, err)
	assert.Equal(t, primitives.Version(0), latest)
}

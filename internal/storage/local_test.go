package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return l
}

func TestLocalSaveRead(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	require.NoError(t, l.Save(ctx, []byte("hello"), "1_abc/merged.txt"))

	data, err := l.Read(ctx, "1_abc/merged.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(filepath.Join(l.Base(), "1_abc", "merged.txt"))
	assert.NoError(t, err)
}

func TestLocalOverwrite(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	require.NoError(t, l.Save(ctx, []byte("first"), "k.txt"))
	require.NoError(t, l.Save(ctx, []byte("second"), "k.txt"))

	data, err := l.Read(ctx, "k.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalReadMissing(t *testing.T) {
	_, err := newTestLocal(t).Read(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	ok, err := l.Exists(ctx, "a/b.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Save(ctx, []byte{1, 2, 3}, "a/b.wav"))
	ok, err = l.Exists(ctx, "a/b.wav")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Delete(ctx, "a/b.wav"))
	ok, err = l.Exists(ctx, "a/b.wav")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, l.Delete(ctx, "a/b.wav"), "deleting twice is fine")
}

func TestLocalRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	for _, p := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd", ""} {
		t.Run(p, func(t *testing.T) {
			err := l.Save(ctx, []byte("x"), p)
			assert.ErrorIs(t, err, ErrInvalidPath)
			_, err = l.Read(ctx, p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

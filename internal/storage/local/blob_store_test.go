package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesFileAndReturnsURI(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := New(Config{BaseDir: base})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "snapshots/abc.md", "text/markdown", []byte("# Docs"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(base, "snapshots", "abc.md"), uri)

	data, err := os.ReadFile(filepath.Join(base, "snapshots", "abc.md"))
	require.NoError(t, err)
	require.Equal(t, "# Docs", string(data))
}

func TestPutObjectRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.md", "", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "path traversal")
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsStable(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, Hash(root), Hash(root))
	assert.Len(t, Hash(root), 16) // 8 bytes hex encoded
	assert.NotEqual(t, Hash(root), Hash(filepath.Join(root, "sub")))
}

func TestHashResolvesRelativePaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, Hash(wd), Hash("."))
}

func TestResolveCreatesLayout(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()

	layout, err := Resolve(base, root)
	require.NoError(t, err)

	assert.Equal(t, Hash(root), layout.Hash)
	assert.Equal(t, filepath.Join(base, "projects", layout.Hash), layout.Dir)
	assert.Equal(t, filepath.Join(layout.Dir, "vectors.db"), layout.VectorDBPath)
	assert.Equal(t, filepath.Join(layout.Dir, "metadata.db"), layout.MetadataDBPath)
	assert.Equal(t, filepath.Join(layout.Dir, "graph.db"), layout.GraphDBPath)
	assert.Equal(t, filepath.Join(layout.Dir, "checkpoint.json"), layout.CheckpointPath)

	info, err := os.Stat(layout.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveSameRootSameDir(t *testing.T) {
	base := t.TempDir()
	root := t.TempDir()

	a, err := Resolve(base, root)
	require.NoError(t, err)
	b, err := Resolve(base, root)
	require.NoError(t, err)
	assert.Equal(t, a.Dir, b.Dir)
}

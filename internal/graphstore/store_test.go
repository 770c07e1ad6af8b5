package graphstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndQueryEdges(t *testing.T) {
	s := openTestStore(t)

	edges := []Edge{
		{SourceChunkID: "c1", Target: "Fetch", Kind: "call", Line: 12},
		{SourceChunkID: "c1", Target: "parse", Kind: "call", Line: 15},
		{SourceChunkID: "c2", Target: "Fetch", Kind: "call", Line: 40},
	}
	require.NoError(t, s.UpsertFileEdges("client.go", edges))

	got, err := s.EdgesForPath("client.go")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, e := range got {
		assert.Equal(t, "client.go", e.SourcePath)
	}

	refs, err := s.References("Fetch")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestUpsertReplacesFileEdges(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileEdges("a.go", []Edge{
		{SourceChunkID: "c1", Target: "old", Kind: "call", Line: 1},
	}))
	require.NoError(t, s.UpsertFileEdges("a.go", []Edge{
		{SourceChunkID: "c2", Target: "new", Kind: "call", Line: 2},
	}))

	got, err := s.EdgesForPath("a.go")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Target)

	refs, err := s.References("old")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestUpsertEmptyClearsFileEdges(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileEdges("a.go", []Edge{
		{SourceChunkID: "c1", Target: "fn", Kind: "call", Line: 1},
	}))
	require.NoError(t, s.UpsertFileEdges("a.go", nil))

	got, err := s.EdgesForPath("a.go")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteByFilePath(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileEdges("a.go", []Edge{{SourceChunkID: "c1", Target: "fn", Kind: "call", Line: 1}}))
	require.NoError(t, s.UpsertFileEdges("b.go", []Edge{{SourceChunkID: "c2", Target: "fn", Kind: "call", Line: 2}}))

	require.NoError(t, s.DeleteByFilePath("a.go"))

	refs, err := s.References("fn")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "b.go", refs[0].SourcePath)
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.UpsertFileEdges("a.go", []Edge{{SourceChunkID: "c1", Target: "fn", Kind: "call", Line: 1}}))
	require.NoError(t, s.Clear())

	refs, err := s.References("fn")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

package vectorstore

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vectors.db"), testDim)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// vec builds a unit-ish test vector pointed mostly along one axis.
func vec(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis%testDim] = 1
	return v
}

func makeChunks(path string, n int) ([]Chunk, [][]float32) {
	chunks := make([]Chunk, n)
	embeddings := make([][]float32, n)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:        fmt.Sprintf("%s-%04d", path, i),
			FilePath:  path,
			Content:   fmt.Sprintf("func chunk%d() {}", i),
			StartLine: i*10 + 1,
			EndLine:   i*10 + 8,
		}
		embeddings[i] = vec(i)
	}
	return chunks, embeddings
}

func TestOpenRejectsBadDimension(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "v.db"), 0)
	assert.Error(t, err)
}

func TestInsertAndQuery(t *testing.T) {
	s := openTestStore(t)

	chunks := []Chunk{
		{ID: "a", FilePath: "a.go", Content: "func A() {}", StartLine: 1, EndLine: 3},
		{ID: "b", FilePath: "b.go", Content: "func B() {}", StartLine: 5, EndLine: 9},
	}
	embeddings := [][]float32{vec(0), vec(1)}
	require.NoError(t, s.InsertBatch(chunks, embeddings))

	results, err := s.Query(vec(0), 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "a.go", results[0].FilePath)
	assert.Equal(t, "func A() {}", results[0].Content)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestInsertBatchLengthMismatch(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertBatch([]Chunk{{ID: "a"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatched")
}

func TestInsertBatchDimensionMismatchNamesOffset(t *testing.T) {
	s := openTestStore(t)

	chunks, embeddings := makeChunks("big.go", insertSubBatchSize+5)
	embeddings[insertSubBatchSize+2] = []float32{1, 2} // wrong dimension in second sub-batch

	err := s.InsertBatch(chunks, embeddings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("insert sub-batch at offset %d", insertSubBatchSize))

	// The first sub-batch committed before the failure.
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, insertSubBatchSize, stats.DocCount)
}

func TestInsertIsUpsert(t *testing.T) {
	s := openTestStore(t)

	chunk := Chunk{ID: "a", FilePath: "a.go", Content: "old", StartLine: 1, EndLine: 2}
	require.NoError(t, s.InsertBatch([]Chunk{chunk}, [][]float32{vec(0)}))

	chunk.Content = "new"
	require.NoError(t, s.InsertBatch([]Chunk{chunk}, [][]float32{vec(1)}))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)

	results, err := s.Query(vec(1), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Content)
}

func TestQueryWithFileFilter(t *testing.T) {
	s := openTestStore(t)

	chunks := []Chunk{
		{ID: "a", FilePath: "a.go", Content: "func A() {}", StartLine: 1, EndLine: 1},
		{ID: "b", FilePath: "b.go", Content: "func B() {}", StartLine: 1, EndLine: 1},
	}
	require.NoError(t, s.InsertBatch(chunks, [][]float32{vec(0), vec(0)}))

	results, err := s.Query(vec(0), 10, &Filter{FilePath: "b.go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestQueryFilterWithQuotes(t *testing.T) {
	s := openTestStore(t)

	odd := "we'ird.go"
	require.NoError(t, s.InsertBatch(
		[]Chunk{{ID: "q", FilePath: odd, Content: "x", StartLine: 1, EndLine: 1}},
		[][]float32{vec(0)},
	))

	results, err := s.Query(vec(0), 10, &Filter{FilePath: odd})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, odd, results[0].FilePath)
}

func TestEscapeFilterValue(t *testing.T) {
	assert.Equal(t, "plain", EscapeFilterValue("plain"))
	assert.Equal(t, "it''s", EscapeFilterValue("it's"))
	assert.Equal(t, "''''", EscapeFilterValue("''"))
}

func TestDeleteByFilePathPages(t *testing.T) {
	s := openTestStore(t)

	// More chunks than one delete page to force the re-query loop.
	chunks, embeddings := makeChunks("huge.go", deletePageSize+500)
	require.NoError(t, s.InsertBatch(chunks, embeddings))

	keep := Chunk{ID: "keep", FilePath: "other.go", Content: "x", StartLine: 1, EndLine: 1}
	require.NoError(t, s.InsertBatch([]Chunk{keep}, [][]float32{vec(0)}))

	require.NoError(t, s.DeleteByFilePath("huge.go"))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocCount)

	ids, err := s.ChunkIDsForPath("huge.go")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDeleteByFilePathMissing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.DeleteByFilePath("absent.go"))
}

func TestDeleteByChunkIDs(t *testing.T) {
	s := openTestStore(t)

	chunks, embeddings := makeChunks("a.go", 3)
	require.NoError(t, s.InsertBatch(chunks, embeddings))

	require.NoError(t, s.DeleteByChunkIDs([]string{chunks[0].ID, chunks[2].ID, "not-there"}))

	ids, err := s.ChunkIDsForPath("a.go")
	require.NoError(t, err)
	assert.Equal(t, []string{chunks[1].ID}, ids)
}

func TestClear(t *testing.T) {
	s := openTestStore(t)

	chunks, embeddings := makeChunks("a.go", 5)
	require.NoError(t, s.InsertBatch(chunks, embeddings))
	require.NoError(t, s.Clear())

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocCount)

	results, err := s.Query(vec(0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChunkIDsForPathOrderedByLine(t *testing.T) {
	s := openTestStore(t)

	chunks := []Chunk{
		{ID: "late", FilePath: "a.go", Content: "y", StartLine: 50, EndLine: 60},
		{ID: "early", FilePath: "a.go", Content: "x", StartLine: 1, EndLine: 10},
	}
	require.NoError(t, s.InsertBatch(chunks, [][]float32{vec(0), vec(1)}))

	ids, err := s.ChunkIDsForPath("a.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids)
}

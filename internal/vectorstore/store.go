// Package vectorstore is the durable nearest-neighbor index over chunk
// embeddings, backed by SQLite + sqlite-vec.
package vectorstore

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// vecInit loads the sqlite-vec extension exactly once per process. The
// native engine must not be registered twice, so registration goes through
// a guarded singleton instead of a bare init flag.
var vecInit sync.Once

// Chunk is a stored chunk row.
type Chunk struct {
	ID        string
	FilePath  string
	Content   string
	StartLine int
	EndLine   int
}

// SearchResult is a query hit. Ephemeral, query-scoped.
type SearchResult struct {
	ChunkID   string
	FilePath  string
	Content   string
	StartLine int
	EndLine   int
	Score     float64
	Rank      int
}

// Filter restricts a query to chunks from one file path.
type Filter struct {
	FilePath string
}

// Stats summarizes the store contents.
type Stats struct {
	DocCount int
}

const (
	// insertSubBatchSize bounds the per-transaction payload and isolates
	// partial failures at sub-batch granularity.
	insertSubBatchSize = 100
	// deletePageSize bounds id pages during per-file deletion; a single
	// file can have more chunks than one page can address.
	deletePageSize = 1000
)

// Store implements the vector store on SQLite + sqlite-vec.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates or opens the vector database at path with the given
// embedding dimension.
func Open(path string, dim int) (*Store, error) {
	vecInit.Do(sqlite_vec.Auto)

	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	ddl := fmt.Sprintf(`
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS chunks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_key  TEXT NOT NULL UNIQUE,
    file_path  TEXT NOT NULL,
    content    TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`, dim)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}

	return &Store{db: db, dim: dim}, nil
}

// InsertBatch stores chunks with their embeddings. The batch is written in
// sub-batches; a sub-batch failure aborts the whole call with an error
// naming the failing offset, leaving earlier sub-batches committed.
func (s *Store) InsertBatch(chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("mismatched chunks (%d) and embeddings (%d)", len(chunks), len(embeddings))
	}

	for off := 0; off < len(chunks); off += insertSubBatchSize {
		end := off + insertSubBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.insertSubBatch(chunks[off:end], embeddings[off:end]); err != nil {
			return fmt.Errorf("insert sub-batch at offset %d: %w", off, err)
		}
	}
	return nil
}

func (s *Store) insertSubBatch(chunks []Chunk, embeddings [][]float32) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insChunk, err := tx.Prepare(`
		INSERT INTO chunks (chunk_key, file_path, content, start_line, end_line)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_key) DO UPDATE SET
			file_path = excluded.file_path,
			content = excluded.content,
			start_line = excluded.start_line,
			end_line = excluded.end_line
	`)
	if err != nil {
		return err
	}
	defer insChunk.Close()

	insVec, err := tx.Prepare("INSERT OR REPLACE INTO vec_chunks (chunk_id, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer insVec.Close()

	for i, c := range chunks {
		if len(embeddings[i]) != s.dim {
			return fmt.Errorf("chunk %s: embedding dimension %d, want %d", c.ID, len(embeddings[i]), s.dim)
		}
		if _, err := insChunk.Exec(c.ID, c.FilePath, c.Content, c.StartLine, c.EndLine); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}

		var rowID int64
		if err := tx.QueryRow("SELECT id FROM chunks WHERE chunk_key = ?", c.ID).Scan(&rowID); err != nil {
			return fmt.Errorf("resolve chunk %s: %w", c.ID, err)
		}

		blob, err := sqlite_vec.SerializeFloat32(embeddings[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %s: %w", c.ID, err)
		}
		if _, err := insVec.Exec(rowID, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Query finds the topK chunks closest to the query vector, optionally
// restricted by a filter.
func (s *Store) Query(vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	if topK <= 0 {
		topK = 10
	}

	// Filter values are escaped by quote-doubling before interpolation so
	// a file path containing quotes cannot break out of the expression.
	where := ""
	if filter != nil && filter.FilePath != "" {
		where = fmt.Sprintf(" AND c.file_path = '%s'", EscapeFilterValue(filter.FilePath))
	}

	q := fmt.Sprintf(`
		SELECT c.chunk_key, c.file_path, c.content, c.start_line, c.end_line, v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ?%s
		ORDER BY v.distance
		LIMIT ?
	`, where)

	rows, err := s.db.Query(q, blob, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.ChunkID, &r.FilePath, &r.Content, &r.StartLine, &r.EndLine, &distance); err != nil {
			return nil, err
		}
		r.Score = 1.0 / (1.0 + distance)
		r.Rank = len(results) + 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// EscapeFilterValue doubles single quotes so the value is safe to
// interpolate into a filter expression.
func EscapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// DeleteByFilePath removes every chunk for path. Deletion loops in
// fixed-size id pages, re-querying after each page.
func (s *Store) DeleteByFilePath(path string) error {
	for {
		rows, err := s.db.Query("SELECT id FROM chunks WHERE file_path = ? LIMIT ?", path, deletePageSize)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := s.deleteRows(ids); err != nil {
			return fmt.Errorf("delete page for %s: %w", path, err)
		}
	}
}

// DeleteByChunkIDs removes the chunks with the given content-addressed ids.
func (s *Store) DeleteByChunkIDs(ids []string) error {
	for off := 0; off < len(ids); off += deletePageSize {
		end := off + deletePageSize
		if end > len(ids) {
			end = len(ids)
		}
		page := ids[off:end]

		args := make([]any, len(page))
		for i, id := range page {
			args[i] = id
		}
		q := fmt.Sprintf("SELECT id FROM chunks WHERE chunk_key IN (%s)", placeholders(len(page)))
		rows, err := s.db.Query(q, args...)
		if err != nil {
			return err
		}
		var rowIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			rowIDs = append(rowIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if err := s.deleteRows(rowIDs); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteRows(rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	args := make([]any, len(rowIDs))
	for i, id := range rowIDs {
		args[i] = id
	}
	ph := placeholders(len(rowIDs))
	if _, err := tx.Exec("DELETE FROM vec_chunks WHERE chunk_id IN ("+ph+")", args...); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE id IN ("+ph+")", args...); err != nil {
		return err
	}
	return tx.Commit()
}

// ChunkIDsForPath returns the content-addressed ids stored for path.
func (s *Store) ChunkIDsForPath(path string) ([]string, error) {
	rows, err := s.db.Query("SELECT chunk_key FROM chunks WHERE file_path = ? ORDER BY start_line", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Clear removes every chunk and embedding.
func (s *Store) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM vec_chunks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks"); err != nil {
		return err
	}
	return tx.Commit()
}

// Optimize compacts the database after bulk insertion. Not required for
// correctness.
func (s *Store) Optimize() error {
	if _, err := s.db.Exec("PRAGMA optimize"); err != nil {
		return err
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Stats returns the number of stored chunks.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&st.DocCount)
	return st, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

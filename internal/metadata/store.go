// Package metadata is the durable map of file → content hash → chunk ids,
// the source of truth for change detection.
package metadata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FileRecord is the per-file index state. ChunkIDs always reflects the
// chunks currently present in the vector store for the path; the indexer
// keeps both in step by deleting-then-reinserting per file.
type FileRecord struct {
	Path          string
	ContentHash   string
	ChunkIDs      []string
	LastIndexedAt time.Time
}

// ChangeSet is the file-level delta between the store and the tree on disk.
type ChangeSet struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the change set names no files.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Total returns the number of files named by the change set.
func (c ChangeSet) Total() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

const ddl = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS files (
    path            TEXT PRIMARY KEY,
    content_hash    TEXT NOT NULL,
    chunk_ids       TEXT NOT NULL DEFAULT '[]',
    last_indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Store is the SQLite-backed metadata store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the metadata database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init metadata schema: %w", err)
	}
	return &Store{db: db}, nil
}

// GetFileRecord returns the record for path, or nil when not indexed.
func (s *Store) GetFileRecord(path string) (*FileRecord, error) {
	var rec FileRecord
	var chunkIDs string
	err := s.db.QueryRow(
		"SELECT path, content_hash, chunk_ids, last_indexed_at FROM files WHERE path = ?", path,
	).Scan(&rec.Path, &rec.ContentHash, &chunkIDs, &rec.LastIndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(chunkIDs), &rec.ChunkIDs); err != nil {
		return nil, fmt.Errorf("decode chunk ids for %s: %w", path, err)
	}
	return &rec, nil
}

// UpsertFileRecord inserts or replaces the record for rec.Path.
func (s *Store) UpsertFileRecord(rec FileRecord) error {
	ids, err := json.Marshal(rec.ChunkIDs)
	if err != nil {
		return fmt.Errorf("encode chunk ids for %s: %w", rec.Path, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO files (path, content_hash, chunk_ids, last_indexed_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			chunk_ids = excluded.chunk_ids,
			last_indexed_at = CURRENT_TIMESTAMP
	`, rec.Path, rec.ContentHash, string(ids))
	return err
}

// DeleteFileRecord removes the record for path. Missing paths are not an error.
func (s *Store) DeleteFileRecord(path string) error {
	_, err := s.db.Exec("DELETE FROM files WHERE path = ?", path)
	return err
}

// Paths returns every indexed path.
func (s *Store) Paths() ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Count returns the number of indexed files.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&n)
	return n, err
}

// Diff compares current (path → fresh content hash) against the stored
// records. Files absent from the store are added; files with a different
// stored hash are modified; stored files absent from current are deleted.
func (s *Store) Diff(current map[string]string) (ChangeSet, error) {
	rows, err := s.db.Query("SELECT path, content_hash FROM files")
	if err != nil {
		return ChangeSet{}, err
	}
	defer rows.Close()

	stored := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return ChangeSet{}, err
		}
		stored[path] = hash
	}
	if err := rows.Err(); err != nil {
		return ChangeSet{}, err
	}

	var cs ChangeSet
	for path, hash := range current {
		prev, ok := stored[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, path)
		case prev != hash:
			cs.Modified = append(cs.Modified, path)
		}
	}
	for path := range stored {
		if _, ok := current[path]; !ok {
			cs.Deleted = append(cs.Deleted, path)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Deleted)
	return cs, nil
}

// GetMeta returns a metadata value by key, or "" if not set.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta sets a metadata key-value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Clear removes every file record.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM files")
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

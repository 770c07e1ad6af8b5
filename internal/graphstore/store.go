// Package graphstore persists code-relationship edges derived from chunks.
// The store is optional: indexing runs fine without it.
package graphstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Edge links a source chunk to a symbol it calls or references.
type Edge struct {
	SourceChunkID string
	SourcePath    string
	Target        string
	Kind          string
	Line          int
}

const ddl = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS edges (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    source_chunk_id TEXT NOT NULL,
    source_path     TEXT NOT NULL,
    target          TEXT NOT NULL,
    kind            TEXT NOT NULL DEFAULT 'call',
    line            INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_edges_source_path ON edges(source_path);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

// Store is the SQLite-backed graph store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the graph database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("init graph schema: %w", err)
	}
	return &Store{db: db}, nil
}

// UpsertFileEdges replaces every edge originating from path in one
// transaction (delete-then-insert, matching the per-file consistency rule
// the other stores follow).
func (s *Store) UpsertFileEdges(path string, edges []Edge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM edges WHERE source_path = ?", path); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO edges (source_chunk_id, source_path, target, kind, line) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.Exec(e.SourceChunkID, path, e.Target, e.Kind, e.Line); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.SourceChunkID, e.Target, err)
		}
	}
	return tx.Commit()
}

// EdgesForPath returns every edge originating from path.
func (s *Store) EdgesForPath(path string) ([]Edge, error) {
	return s.query("SELECT source_chunk_id, source_path, target, kind, line FROM edges WHERE source_path = ? ORDER BY line", path)
}

// References returns every edge targeting the given symbol.
func (s *Store) References(symbol string) ([]Edge, error) {
	return s.query("SELECT source_chunk_id, source_path, target, kind, line FROM edges WHERE target = ? ORDER BY source_path, line", symbol)
}

func (s *Store) query(q string, args ...any) ([]Edge, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SourceChunkID, &e.SourcePath, &e.Target, &e.Kind, &e.Line); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// DeleteByFilePath removes every edge originating from path.
func (s *Store) DeleteByFilePath(path string) error {
	_, err := s.db.Exec("DELETE FROM edges WHERE source_path = ?", path)
	return err
}

// Clear removes every edge.
func (s *Store) Clear() error {
	_, err := s.db.Exec("DELETE FROM edges")
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

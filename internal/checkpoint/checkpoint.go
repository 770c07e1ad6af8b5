// Package checkpoint persists indexing progress so an interrupted build can
// be resumed after a crash, pause, or cancellation.
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Version guards against loading checkpoints written by incompatible code.
const Version = 1

// Checkpoint is the durable progress record of one indexing run.
type Checkpoint struct {
	Version           int       `json:"version"`
	Phase             string    `json:"phase"`
	LastProcessedPath string    `json:"last_processed_path,omitempty"`
	ScannedFiles      int       `json:"scanned_files"`
	TotalFiles        int       `json:"total_files"`
	ChunkedFiles      int       `json:"chunked_files"`
	EmbeddedChunks    int       `json:"embedded_chunks"`
	StoredChunks      int       `json:"stored_chunks"`
	StartedAt         time.Time `json:"started_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Manager owns the checkpoint file for one project.
type Manager struct {
	path    string
	current *Checkpoint
}

// NewManager creates a manager writing to path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Start returns the existing valid checkpoint if present, otherwise a fresh
// one. A corrupted or unreadable checkpoint is treated as absent, never as
// a fatal error.
func (m *Manager) Start() *Checkpoint {
	if cp := m.load(); cp != nil {
		m.current = cp
		return cp
	}
	m.current = &Checkpoint{
		Version:   Version,
		StartedAt: time.Now().UTC(),
	}
	return m.current
}

// HasValidCheckpoint reports whether a loadable checkpoint exists on disk.
func (m *Manager) HasValidCheckpoint() bool {
	return m.load() != nil
}

// Update mutates the in-memory checkpoint. Call Save to persist.
func (m *Manager) Update(fn func(*Checkpoint)) {
	if m.current == nil {
		m.Start()
	}
	fn(m.current)
}

// Save writes the checkpoint durably via a temp file and atomic rename, so
// a crash mid-save can never leave a corrupted checkpoint in place.
func (m *Manager) Save() error {
	if m.current == nil {
		return nil
	}
	m.current.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m.current, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Clear removes the checkpoint after a successful run.
func (m *Manager) Clear() error {
	m.current = nil
	err := os.Remove(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Stop releases the in-memory state without touching the file, leaving it
// intact for a later resume.
func (m *Manager) Stop() {
	m.current = nil
}

// Current returns the in-memory checkpoint, or nil when no run is active.
func (m *Manager) Current() *Checkpoint {
	return m.current
}

func (m *Manager) load() *Checkpoint {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	if cp.Version != Version {
		return nil
	}
	return &cp
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return filepath.Clean(m.path)
}

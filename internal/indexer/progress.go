package indexer

import "time"

// Status names the pipeline phase currently executing.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusScanning  Status = "scanning"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusStoring   Status = "storing"
)

// Progress is a snapshot of an indexing run. Mutated only by the Manager;
// consumers receive copies.
type Progress struct {
	Status          Status    `json:"status"`
	Phase           string    `json:"phase"`
	PhaseProgress   float64   `json:"phase_progress"`
	OverallProgress float64   `json:"overall_progress"`
	ScannedFiles    int       `json:"scanned_files"`
	TotalFiles      int       `json:"total_files"`
	ChunkedFiles    int       `json:"chunked_files"`
	EmbeddedChunks  int       `json:"embedded_chunks"`
	TotalChunks     int       `json:"total_chunks"`
	StoredChunks    int       `json:"stored_chunks"`
	StartTime       time.Time `json:"start_time"`
}

// ProgressFunc receives progress snapshots during a run.
type ProgressFunc func(Progress)

// scanWeight is the share of overall progress attributed to the scan phase;
// the per-file chunk/embed/store work carries the rest.
const scanWeight = 0.1

// setProgress applies fn to the current progress under the manager lock and
// notifies cb. OverallProgress never decreases within one run.
func (m *Manager) setProgress(cb ProgressFunc, fn func(*Progress)) {
	m.mu.Lock()
	prev := m.progress.OverallProgress
	fn(&m.progress)
	if m.progress.OverallProgress < prev {
		m.progress.OverallProgress = prev
	}
	snapshot := m.progress
	m.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// GetProgress returns the current progress snapshot, or an idle zeroed
// snapshot when no run has started.
func (m *Manager) GetProgress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progress.Status == "" {
		return Progress{Status: StatusIdle}
	}
	return m.progress
}

// overallFor computes overall progress from scan completion and per-file
// processing completion.
func overallFor(scanned, processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	scan := float64(scanned) / float64(total)
	if scan > 1 {
		scan = 1
	}
	proc := float64(processed) / float64(total)
	if proc > 1 {
		proc = 1
	}
	return scanWeight*scan + (1-scanWeight)*proc
}

package worker

import (
	"sync"

	"github.com/rs/zerolog"

	"quarry/internal/indexer"
	"quarry/internal/project"
)

// Host owns at most one worker per project hash, which is what serializes
// all builds and updates against a project's stores.
type Host struct {
	log        zerolog.Logger
	newManager func(root string) (*indexer.Manager, error)

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewHost creates a host that builds managers with newManager.
func NewHost(newManager func(root string) (*indexer.Manager, error), log zerolog.Logger) *Host {
	return &Host{
		log:        log,
		newManager: newManager,
		workers:    make(map[string]*Worker),
	}
}

// Worker returns the worker for the project rooted at root, starting one if
// needed. Two roots with the same hash share a worker.
func (h *Host) Worker(root string) *Worker {
	hash := project.Hash(root)

	h.mu.Lock()
	defer h.mu.Unlock()
	if w, ok := h.workers[hash]; ok {
		return w
	}

	w := New(func() (*indexer.Manager, error) {
		return h.newManager(root)
	}, h.log.With().Str("project", hash).Logger())
	w.Start()
	h.workers[hash] = w
	return w
}

// Close tears down every worker.
func (h *Host) Close() {
	h.mu.Lock()
	workers := make([]*Worker, 0, len(h.workers))
	for _, w := range h.workers {
		workers = append(workers, w)
	}
	h.workers = make(map[string]*Worker)
	h.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}
}

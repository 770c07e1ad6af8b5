// Package watcher monitors a project tree for changes with debouncing and
// pause/resume support, feeding incremental updates.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce batches rapid change bursts into one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watcher is a debounced filesystem watcher. Pause stops callbacks while
// still accumulating events; Resume fires immediately if anything piled up.
type Watcher struct {
	root     string
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	paused  bool

	fw *fsnotify.Watcher
}

// New creates a watcher for root. A non-positive debounce uses the default.
func New(root string, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		log:      log.With().Str("component", "watcher").Logger(),
		pending:  make(map[string]struct{}),
		fw:       fw,
	}, nil
}

// Start watches root and its subdirectories, invoking callback with batches
// of changed relative paths. It blocks until ctx is done.
func (w *Watcher) Start(ctx context.Context, callback func(files []string)) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.observe(ev)
			timer.Reset(w.debounce)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")

		case <-timer.C:
			if batch := w.take(); len(batch) > 0 {
				callback(batch)
			}
		}
	}
}

// Pause stops firing callbacks but keeps accumulating events.
func (w *Watcher) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume re-enables callbacks. Accumulated events fire on the next tick.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.fw.Close()
}

func (w *Watcher) observe(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	// New directories must be added to the watch set.
	if ev.Op&fsnotify.Create != 0 {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addRecursive(ev.Name)
		}
	}

	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.mu.Unlock()
}

// take drains the pending set unless paused.
func (w *Watcher) take() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused || len(w.pending) == 0 {
		return nil
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	w.pending = make(map[string]struct{})
	return batch
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if name == ".git" || name == "node_modules" || name == ".quarry" || name == "vendor" {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			w.log.Debug().Str("dir", path).Err(err).Msg("watch add failed")
		}
		return nil
	})
}

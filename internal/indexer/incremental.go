package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"quarry/internal/checkpoint"
	"quarry/internal/metadata"
	"quarry/internal/scanner"
)

// IncrementalUpdate reindexes only the files named by the change set.
// A nil change set is an error: callers must compute or supply one, there
// is no implicit full rescan. Deleted files lose their metadata, vectors,
// and edges; added and modified files are re-chunked and re-embedded, with
// metadata and vectors updated per file.
func (m *Manager) IncrementalUpdate(ctx context.Context, changes *metadata.ChangeSet, cb ProgressFunc) error {
	if changes == nil {
		return ErrNoChanges
	}
	if !m.lock.tryAcquire() {
		return ErrBusy
	}
	defer m.lock.release()
	m.state.start()
	defer m.state.stop()

	total := changes.Total()
	m.mu.Lock()
	m.progress = Progress{Status: StatusScanning, Phase: "updating", TotalFiles: total, StartTime: m.progress.StartTime}
	m.mu.Unlock()

	m.updateCheckpoint(func(cp *checkpoint.Checkpoint) {
		cp.Phase = "updating"
		cp.TotalFiles = total
	})

	processed := 0
	tick := func(path string) {
		processed++
		n := processed
		m.setProgress(cb, func(p *Progress) {
			p.ScannedFiles = n
			p.PhaseProgress = float64(n) / float64(total)
			p.OverallProgress = p.PhaseProgress
		})
		m.checkpointTick(path, n)
	}

	for _, path := range changes.Deleted {
		if err := m.state.yield(ctx); err != nil {
			m.saveCheckpoint()
			return err
		}
		if err := m.deleteFile(path); err != nil {
			m.saveCheckpoint()
			return err
		}
		tick(path)
	}

	for _, path := range append(append([]string{}, changes.Added...), changes.Modified...) {
		if err := m.state.yield(ctx); err != nil {
			m.saveCheckpoint()
			return err
		}

		abs := filepath.Join(m.cfg.Root, filepath.FromSlash(path))
		src, err := os.ReadFile(abs)
		if err != nil {
			m.log.Warn().Str("path", path).Err(err).Msg("skipping unreadable file")
			tick(path)
			continue
		}
		job := fileJob{
			info: scanner.FileInfo{Path: abs, RelPath: path, Size: int64(len(src))},
			src:  src,
			hash: hashBytes(src),
		}
		if err := m.processFile(ctx, job, cb); err != nil {
			m.saveCheckpoint()
			return err
		}
		tick(path)
	}

	return m.finishRun(cb)
}

// deleteFile removes every trace of a file across the stores. Vectors go
// first, then edges, then the metadata record, so a partial failure leaves
// orphans that the next update for the path cleans up rather than a record
// pointing at missing vectors.
func (m *Manager) deleteFile(path string) error {
	if err := m.stores.Vectors.DeleteByFilePath(path); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", path, err)
	}
	if m.stores.Graph != nil {
		if err := m.stores.Graph.DeleteByFilePath(path); err != nil {
			return fmt.Errorf("delete edges for %s: %w", path, err)
		}
	}
	if err := m.stores.Meta.DeleteFileRecord(path); err != nil {
		return fmt.Errorf("delete metadata for %s: %w", path, err)
	}
	return nil
}

// ComputeChangeSet hashes the current tree and diffs it against the
// metadata store. Unreadable files are skipped, matching scan semantics.
func (m *Manager) ComputeChangeSet(ctx context.Context) (metadata.ChangeSet, error) {
	exts := m.chunks.Registry().Extensions()
	fileCh, errCh := scanner.Scan(m.cfg.Root, exts)

	current := make(map[string]string)
	for fi := range fileCh {
		if err := ctx.Err(); err != nil {
			drain(fileCh)
			return metadata.ChangeSet{}, err
		}
		src, err := os.ReadFile(fi.Path)
		if err != nil {
			continue
		}
		current[fi.RelPath] = hashBytes(src)
	}
	if err := <-errCh; err != nil {
		return metadata.ChangeSet{}, fmt.Errorf("scan: %w", err)
	}

	return m.stores.Meta.Diff(current)
}

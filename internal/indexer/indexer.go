// Package indexer orchestrates the indexing pipeline: scan → diff →
// (chunk → embed → store) per file, with checkpointed progress and
// cooperative pause/resume/cancel.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"quarry/internal/checkpoint"
	"quarry/internal/chunker"
	"quarry/internal/embedder"
	"quarry/internal/graphstore"
	"quarry/internal/metadata"
	"quarry/internal/scanner"
	"quarry/internal/vectorstore"
)

// ErrBusy is returned when a build or update is already running.
var ErrBusy = errors.New("an indexing run is already in progress")

// ErrNoChanges is returned by IncrementalUpdate when no change set is
// provided. Callers must supply one; there is no implicit full rescan.
var ErrNoChanges = errors.New("no changes provided")

// Config holds the pipeline tunables.
type Config struct {
	Root string

	// MaxTokens is the chunk token budget (default 512).
	MaxTokens int
	// EmbedBatchSize caps texts per embedding call (default 32).
	EmbedBatchSize int
	// StreamingThreshold is the file count above which Build switches
	// from in-memory batch mode to streaming mode (default 500).
	StreamingThreshold int
	// CheckpointEvery is the number of processed files between
	// checkpoint saves (default 10).
	CheckpointEvery int
}

func (c *Config) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 32
	}
	if c.StreamingThreshold <= 0 {
		c.StreamingThreshold = 500
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 10
	}
}

// Stores groups the persistent collaborators. Graph may be nil; indexing
// runs without relationship extraction in that case.
type Stores struct {
	Meta    *metadata.Store
	Vectors *vectorstore.Store
	Graph   *graphstore.Store
}

// BuildOptions tunes one Build invocation.
type BuildOptions struct {
	// PreComputedFileCount skips the counting pass when the caller has
	// already counted (the count picks the mode and totalFiles).
	PreComputedFileCount int
	// ResumeFromCheckpoint reports the saved phase in the initial
	// progress event when a valid checkpoint exists. Skipping
	// already-done work is governed by hash comparison regardless.
	ResumeFromCheckpoint bool
}

// Manager owns the pipeline for one project. At most one build or update
// runs at a time; the worker host additionally serializes commands.
type Manager struct {
	cfg    Config
	stores Stores
	chunks *chunker.Chunker
	embed  embedder.Embedder
	log    zerolog.Logger

	lock  runLock
	state *runState

	ckptMu sync.Mutex
	ckpt   *checkpoint.Manager

	mu       sync.Mutex
	progress Progress
}

// New creates a Manager. The embedder must be configured; indexing without
// one fails fast at construction.
func New(cfg Config, stores Stores, ch *chunker.Chunker, emb embedder.Embedder, ckpt *checkpoint.Manager, log zerolog.Logger) (*Manager, error) {
	if emb == nil {
		return nil, embedder.ErrNoEmbedder
	}
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		stores: stores,
		chunks: ch,
		embed:  emb,
		ckpt:   ckpt,
		state:  newRunState(),
		log:    log.With().Str("component", "indexer").Logger(),
	}, nil
}

// fileJob is one file ready for the chunk → embed → store steps.
type fileJob struct {
	info scanner.FileInfo
	src  []byte
	hash string
}

// Build performs a full rebuild. Streaming mode (bounded memory) is chosen
// when the file count exceeds the configured threshold, batch mode
// otherwise; the count is taken once and reused as the progress total.
func (m *Manager) Build(ctx context.Context, opts BuildOptions, cb ProgressFunc) error {
	if !m.lock.tryAcquire() {
		return ErrBusy
	}
	defer m.lock.release()
	m.state.start()
	defer m.state.stop()

	exts := m.chunks.Registry().Extensions()

	total := opts.PreComputedFileCount
	if total <= 0 {
		n, err := scanner.Count(m.cfg.Root, exts)
		if err != nil {
			return fmt.Errorf("count files: %w", err)
		}
		total = n
	}

	m.mu.Lock()
	m.progress = Progress{Status: StatusScanning, Phase: "scanning", TotalFiles: total, StartTime: time.Now()}
	m.mu.Unlock()

	// A pause or cancel can save the checkpoint concurrently once the run
	// has started, so the setup holds ckptMu too.
	m.ckptMu.Lock()
	resuming := opts.ResumeFromCheckpoint && m.ckpt.HasValidCheckpoint()
	saved := m.ckpt.Start()
	m.ckptMu.Unlock()
	if resuming {
		m.setProgress(cb, func(p *Progress) {
			p.Phase = "resuming: " + saved.Phase
			p.ChunkedFiles = saved.ChunkedFiles
			p.EmbeddedChunks = saved.EmbeddedChunks
			p.StoredChunks = saved.StoredChunks
		})
	}
	m.updateCheckpoint(func(cp *checkpoint.Checkpoint) {
		cp.Phase = string(StatusScanning)
		cp.TotalFiles = total
	})
	if err := m.saveCheckpoint(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if err := m.checkEmbeddingModel(); err != nil {
		return err
	}

	var seen map[string]struct{}
	var err error
	if total > m.cfg.StreamingThreshold {
		seen, err = m.buildStreaming(ctx, total, cb)
	} else {
		seen, err = m.buildBatch(ctx, total, cb)
	}
	if err == nil {
		err = m.pruneDeleted(seen)
	}
	if err != nil {
		// The last successful checkpoint stays on disk for resume.
		m.saveCheckpoint()
		m.ckptMu.Lock()
		m.ckpt.Stop()
		m.ckptMu.Unlock()
		return err
	}

	return m.finishRun(cb)
}

// buildBatch reads and hashes files with a bounded worker pool, then runs
// the chunk → embed → store steps sequentially per file. It returns the set
// of paths the scan produced so the caller can prune vanished files.
func (m *Manager) buildBatch(ctx context.Context, total int, cb ProgressFunc) (map[string]struct{}, error) {
	exts := m.chunks.Registry().Extensions()
	fileCh, errCh := scanner.Scan(m.cfg.Root, exts)

	var jobMu sync.Mutex
	var jobs []fileJob
	seen := make(map[string]struct{}, total)
	scanned := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for fi := range fileCh {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			job, skip := m.loadFile(fi)
			jobMu.Lock()
			scanned++
			n := scanned
			seen[fi.RelPath] = struct{}{}
			if !skip {
				jobs = append(jobs, job)
			}
			jobMu.Unlock()
			m.setProgress(cb, func(p *Progress) {
				p.ScannedFiles = n
				p.OverallProgress = overallFor(n, 0, total)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return seen, m.processJobs(ctx, jobs, total, cb)
}

// buildStreaming processes files as the scanner emits them, keeping memory
// bounded for very large trees. It returns the set of paths the scan
// produced so the caller can prune vanished files.
func (m *Manager) buildStreaming(ctx context.Context, total int, cb ProgressFunc) (map[string]struct{}, error) {
	exts := m.chunks.Registry().Extensions()
	fileCh, errCh := scanner.Scan(m.cfg.Root, exts)

	seen := make(map[string]struct{}, total)
	processed := 0
	for fi := range fileCh {
		if err := m.state.yield(ctx); err != nil {
			drain(fileCh)
			return nil, err
		}

		job, skip := m.loadFile(fi)
		seen[fi.RelPath] = struct{}{}
		processed++
		n := processed
		m.setProgress(cb, func(p *Progress) {
			p.ScannedFiles = n
			p.OverallProgress = overallFor(n, n, total)
		})
		if skip {
			continue
		}
		if err := m.processFile(ctx, job, cb); err != nil {
			drain(fileCh)
			return nil, err
		}
		m.checkpointTick(job.info.RelPath, n)
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return seen, nil
}

// pruneDeleted drops stored state for every indexed file the scan did not
// see. A full build describes the whole tree, so records for files that no
// longer exist are stale by definition.
func (m *Manager) pruneDeleted(seen map[string]struct{}) error {
	paths, err := m.stores.Meta.Paths()
	if err != nil {
		return fmt.Errorf("list indexed files: %w", err)
	}
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		m.log.Debug().Str("path", path).Msg("removing index entries for deleted file")
		if err := m.deleteFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) processJobs(ctx context.Context, jobs []fileJob, total int, cb ProgressFunc) error {
	for i, job := range jobs {
		if err := m.state.yield(ctx); err != nil {
			return err
		}
		if err := m.processFile(ctx, job, cb); err != nil {
			return err
		}
		n := i + 1
		m.setProgress(cb, func(p *Progress) {
			p.PhaseProgress = float64(n) / float64(len(jobs))
			p.OverallProgress = scanWeight + (1-scanWeight)*p.PhaseProgress
		})
		m.checkpointTick(job.info.RelPath, n)
	}
	return nil
}

// loadFile reads and hashes one file, deciding whether it can be skipped.
// Unchanged files (same stored hash) are skipped: hash comparison is the
// real resumability primitive. Read failures skip the file, never abort.
func (m *Manager) loadFile(fi scanner.FileInfo) (fileJob, bool) {
	src, err := os.ReadFile(fi.Path)
	if err != nil {
		m.log.Warn().Str("path", fi.RelPath).Err(err).Msg("skipping unreadable file")
		return fileJob{}, true
	}
	hash := hashBytes(src)

	rec, err := m.stores.Meta.GetFileRecord(fi.RelPath)
	if err == nil && rec != nil && rec.ContentHash == hash {
		return fileJob{}, true // unchanged
	}

	return fileJob{info: fi, src: src, hash: hash}, false
}

// processFile runs chunk → embed → store for one file. Chunk errors skip
// the file; embedding and store errors abort the run.
func (m *Manager) processFile(ctx context.Context, job fileJob, cb ProgressFunc) error {
	rel := job.info.RelPath

	seq, err := m.chunks.File(rel, job.src, m.cfg.MaxTokens)
	if err != nil {
		m.log.Warn().Str("path", rel).Err(err).Msg("chunking failed, skipping file")
		return nil
	}
	if seq == nil {
		return nil
	}

	var chunks []chunker.Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}

	m.setProgress(cb, func(p *Progress) {
		p.Status = StatusChunking
		p.Phase = "chunking"
		p.ChunkedFiles++
		p.TotalChunks += len(chunks)
	})

	if len(chunks) == 0 {
		// The file no longer yields chunks; drop stale state for it.
		if err := m.stores.Vectors.DeleteByFilePath(rel); err != nil {
			return fmt.Errorf("delete vectors for %s: %w", rel, err)
		}
		return m.stores.Meta.UpsertFileRecord(metadata.FileRecord{Path: rel, ContentHash: job.hash})
	}

	embeddings, err := m.embedChunks(ctx, chunks, cb)
	if err != nil {
		return err
	}

	return m.storeFile(job, chunks, embeddings, cb)
}

// embedChunks calls the embedding collaborator in capped batches, yielding
// between batches. In-flight batch size is bounded; the collaborator's own
// concurrency limits are respected by issuing one call at a time.
func (m *Manager) embedChunks(ctx context.Context, chunks []chunker.Chunk, cb ProgressFunc) ([][]float32, error) {
	m.setProgress(cb, func(p *Progress) {
		p.Status = StatusEmbedding
		p.Phase = "embedding"
	})

	embeddings := make([][]float32, 0, len(chunks))
	for off := 0; off < len(chunks); off += m.cfg.EmbedBatchSize {
		if err := m.state.yield(ctx); err != nil {
			return nil, err
		}
		end := off + m.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-off)
		for _, c := range chunks[off:end] {
			texts = append(texts, c.Content)
		}

		vecs, tokens, err := m.embed.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch at offset %d: %w", off, err)
		}
		embeddings = append(embeddings, vecs...)

		n := len(texts)
		m.setProgress(cb, func(p *Progress) {
			p.EmbeddedChunks += n
		})
		m.log.Debug().Int("chunks", n).Int("tokens", tokens).Msg("embedded batch")
	}
	return embeddings, nil
}

// storeFile writes one file's chunks. Old vectors for the path are deleted
// before the new ones go in, and the metadata record is written last, so an
// interrupted step can only leave orphaned vectors that the next attempt
// for the path cleans up.
func (m *Manager) storeFile(job fileJob, chunks []chunker.Chunk, embeddings [][]float32, cb ProgressFunc) error {
	rel := job.info.RelPath

	m.setProgress(cb, func(p *Progress) {
		p.Status = StatusStoring
		p.Phase = "storing"
	})

	if err := m.stores.Vectors.DeleteByFilePath(rel); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", rel, err)
	}

	vsChunks := make([]vectorstore.Chunk, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		vsChunks[i] = vectorstore.Chunk{
			ID:        c.ID,
			FilePath:  c.FilePath,
			Content:   c.Content,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
		}
		chunkIDs[i] = c.ID
	}
	if err := m.stores.Vectors.InsertBatch(vsChunks, embeddings); err != nil {
		return fmt.Errorf("store vectors for %s: %w", rel, err)
	}

	if m.stores.Graph != nil {
		if err := m.storeEdges(rel, job.src, chunks); err != nil {
			m.log.Warn().Str("path", rel).Err(err).Msg("graph extraction failed")
		}
	}

	err := m.stores.Meta.UpsertFileRecord(metadata.FileRecord{
		Path:        rel,
		ContentHash: job.hash,
		ChunkIDs:    chunkIDs,
	})
	if err != nil {
		return fmt.Errorf("store metadata for %s: %w", rel, err)
	}

	n := len(chunks)
	m.setProgress(cb, func(p *Progress) {
		p.StoredChunks += n
	})
	return nil
}

// storeEdges derives call/reference edges for one file and attributes each
// to the chunk enclosing its line.
func (m *Manager) storeEdges(rel string, src []byte, chunks []chunker.Chunk) error {
	refs, err := m.chunks.References(rel, src)
	if err != nil {
		return err
	}

	var edges []graphstore.Edge
	for _, ref := range refs {
		sourceID := ""
		for _, c := range chunks {
			if ref.Line >= c.StartLine && ref.Line <= c.EndLine {
				sourceID = c.ID
				break
			}
		}
		if sourceID == "" {
			continue
		}
		edges = append(edges, graphstore.Edge{
			SourceChunkID: sourceID,
			SourcePath:    rel,
			Target:        ref.Name,
			Kind:          ref.Kind,
			Line:          ref.Line,
		})
	}
	return m.stores.Graph.UpsertFileEdges(rel, edges)
}

// checkEmbeddingModel forces a full re-index when the embedding model
// changed since the last run: stored vectors from another model are not
// comparable.
func (m *Manager) checkEmbeddingModel() error {
	last, err := m.stores.Meta.GetMeta("embedding_model")
	if err != nil {
		return fmt.Errorf("get embedding model: %w", err)
	}
	if last == "" || last == m.embed.Model() {
		return nil
	}

	m.log.Info().Str("from", last).Str("to", m.embed.Model()).Msg("embedding model changed, resetting index")
	if err := m.stores.Vectors.Clear(); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	if m.stores.Graph != nil {
		if err := m.stores.Graph.Clear(); err != nil {
			return fmt.Errorf("clear graph: %w", err)
		}
	}
	return m.stores.Meta.Clear()
}

// finishRun records the model, optimizes the vector store, and clears the
// checkpoint after a fully successful run.
func (m *Manager) finishRun(cb ProgressFunc) error {
	if err := m.stores.Meta.SetMeta("embedding_model", m.embed.Model()); err != nil {
		return fmt.Errorf("set embedding model: %w", err)
	}
	if err := m.stores.Vectors.Optimize(); err != nil {
		m.log.Warn().Err(err).Msg("vector store optimize failed")
	}

	m.ckptMu.Lock()
	err := m.ckpt.Clear()
	m.ckptMu.Unlock()
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}

	m.setProgress(cb, func(p *Progress) {
		p.Status = StatusIdle
		p.Phase = "done"
		p.PhaseProgress = 1
		p.OverallProgress = 1
	})
	return nil
}

// Pause requests a cooperative pause and saves a checkpoint so the pause
// point survives a crash.
func (m *Manager) Pause() bool {
	if !m.state.pause() {
		return false
	}
	if err := m.saveCheckpoint(); err != nil {
		m.log.Warn().Err(err).Msg("checkpoint save on pause failed")
	}
	return true
}

// Resume clears the pause flag; the next scheduling tick proceeds.
func (m *Manager) Resume() bool {
	return m.state.resume()
}

// Cancel requests cooperative termination. The checkpoint is saved before
// Cancel returns, so a later resume cannot silently lose the cancellation
// point.
func (m *Manager) Cancel() {
	m.state.cancel()
	if err := m.saveCheckpoint(); err != nil {
		m.log.Warn().Err(err).Msg("checkpoint save on cancel failed")
	}
}

// Paused reports whether the run is currently paused.
func (m *Manager) Paused() bool {
	return m.state.paused()
}

// checkpointTick updates the checkpoint with current counts and saves it
// every CheckpointEvery processed files.
func (m *Manager) checkpointTick(lastPath string, processed int) {
	p := m.GetProgress()
	m.updateCheckpoint(func(cp *checkpoint.Checkpoint) {
		cp.Phase = string(p.Status)
		cp.LastProcessedPath = lastPath
		cp.ScannedFiles = p.ScannedFiles
		cp.ChunkedFiles = p.ChunkedFiles
		cp.EmbeddedChunks = p.EmbeddedChunks
		cp.StoredChunks = p.StoredChunks
	})
	if processed%m.cfg.CheckpointEvery == 0 {
		if err := m.saveCheckpoint(); err != nil {
			m.log.Warn().Err(err).Msg("checkpoint save failed")
		}
	}
}

func (m *Manager) updateCheckpoint(fn func(*checkpoint.Checkpoint)) {
	m.ckptMu.Lock()
	defer m.ckptMu.Unlock()
	m.ckpt.Update(fn)
}

func (m *Manager) saveCheckpoint() error {
	m.ckptMu.Lock()
	defer m.ckptMu.Unlock()
	if m.ckpt.Current() == nil {
		return nil
	}
	return m.ckpt.Save()
}

// Close flushes and closes every store.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.stores.Meta.Close(); err != nil {
		firstErr = err
	}
	if err := m.stores.Vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if m.stores.Graph != nil {
		if err := m.stores.Graph.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func hashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func drain(ch <-chan scanner.FileInfo) {
	for range ch {
	}
}

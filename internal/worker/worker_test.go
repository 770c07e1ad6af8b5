package worker_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/checkpoint"
	"quarry/internal/chunker"
	"quarry/internal/chunker/languages"
	"quarry/internal/graphstore"
	"quarry/internal/indexer"
	"quarry/internal/logging"
	"quarry/internal/metadata"
	"quarry/internal/vectorstore"
	"quarry/internal/worker"
)

const testDim = 4

type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, len(texts), nil
}

func (s *stubEmbedder) Dimension() int { return testDim }
func (s *stubEmbedder) Model() string  { return "stub" }

func writeGoFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	src := fmt.Sprintf("package p\n\nfunc %s() {\n\twork()\n}\n", rel[:len(rel)-3])
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func testFactory(t *testing.T, root string) worker.ManagerFactory {
	t.Helper()
	dataDir := t.TempDir()
	return func() (*indexer.Manager, error) {
		vectors, err := vectorstore.Open(filepath.Join(dataDir, "vectors.db"), testDim)
		if err != nil {
			return nil, err
		}
		meta, err := metadata.Open(filepath.Join(dataDir, "metadata.db"))
		if err != nil {
			return nil, err
		}
		graph, err := graphstore.Open(filepath.Join(dataDir, "graph.db"))
		if err != nil {
			return nil, err
		}

		reg := chunker.NewRegistry()
		languages.RegisterAll(reg)
		return indexer.New(
			indexer.Config{Root: root},
			indexer.Stores{Meta: meta, Vectors: vectors, Graph: graph},
			chunker.New(reg),
			&stubEmbedder{},
			checkpoint.NewManager(filepath.Join(dataDir, "checkpoint.json")),
			logging.Nop(),
		)
	}
}

func startWorker(t *testing.T, factory worker.ManagerFactory) *worker.Worker {
	t.Helper()
	w := worker.New(factory, logging.Nop())
	w.Start()
	t.Cleanup(w.Close)
	return w
}

// waitFor reads events until pred matches one, failing on timeout or on a
// closed stream.
func waitFor(t *testing.T, w *worker.Worker, pred func(worker.Event) bool) worker.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event stream closed while waiting")
			if pred(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBuildCommandProducesCompleteEvent(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "a.go")
	writeGoFile(t, root, "b.go")

	w := startWorker(t, testFactory(t, root))

	cmd := worker.BuildCommand{Envelope: worker.NewEnvelope()}
	require.NoError(t, w.Send(cmd))

	var sawProgress bool
	ev := waitFor(t, w, func(ev worker.Event) bool {
		if _, ok := ev.(worker.ProgressEvent); ok {
			sawProgress = true
		}
		_, done := ev.(worker.BuildCompleteEvent)
		return done
	})

	complete := ev.(worker.BuildCompleteEvent)
	assert.Equal(t, cmd.ID, complete.EventID())
	assert.Equal(t, 1.0, complete.Progress.OverallProgress)
	assert.True(t, sawProgress, "expected progress events before completion")
}

func TestUpdateCommand(t *testing.T) {
	root := t.TempDir()
	writeGoFile(t, root, "a.go")

	w := startWorker(t, testFactory(t, root))

	build := worker.BuildCommand{Envelope: worker.NewEnvelope()}
	require.NoError(t, w.Send(build))
	waitFor(t, w, func(ev worker.Event) bool {
		_, done := ev.(worker.BuildCompleteEvent)
		return done
	})

	writeGoFile(t, root, "b.go")
	upd := worker.UpdateCommand{
		Envelope: worker.NewEnvelope(),
		Changes:  &metadata.ChangeSet{Added: []string{"b.go"}},
	}
	require.NoError(t, w.Send(upd))

	ev := waitFor(t, w, func(ev worker.Event) bool {
		_, done := ev.(worker.UpdateCompleteEvent)
		return done
	})
	assert.Equal(t, upd.ID, ev.EventID())
}

func TestUpdateCommandWithoutChanges(t *testing.T) {
	root := t.TempDir()
	w := startWorker(t, testFactory(t, root))

	upd := worker.UpdateCommand{Envelope: worker.NewEnvelope()}
	require.NoError(t, w.Send(upd))

	ev := waitFor(t, w, func(ev worker.Event) bool {
		_, isErr := ev.(worker.ErrorEvent)
		return isErr
	})
	assert.Contains(t, ev.(worker.ErrorEvent).Message, indexer.ErrNoChanges.Error())
}

func TestStatusCommand(t *testing.T) {
	root := t.TempDir()
	w := startWorker(t, testFactory(t, root))

	cmd := worker.StatusCommand{Envelope: worker.NewEnvelope()}
	require.NoError(t, w.Send(cmd))

	ev := waitFor(t, w, func(ev worker.Event) bool {
		_, ok := ev.(worker.StatusEvent)
		return ok
	})
	status := ev.(worker.StatusEvent)
	assert.Equal(t, cmd.ID, status.EventID())
	assert.Equal(t, indexer.StatusIdle, status.Progress.Status)
}

func TestPauseWithoutRunReportsError(t *testing.T) {
	root := t.TempDir()
	w := startWorker(t, testFactory(t, root))

	cmd := worker.PauseCommand{Envelope: worker.NewEnvelope()}
	require.NoError(t, w.Send(cmd))

	ev := waitFor(t, w, func(ev worker.Event) bool {
		_, isErr := ev.(worker.ErrorEvent)
		return isErr
	})
	assert.Equal(t, cmd.ID, ev.EventID())
}

func TestFactoryFailureIsReportedPerCommand(t *testing.T) {
	w := startWorker(t, func() (*indexer.Manager, error) {
		return nil, errors.New("stores unavailable")
	})

	for i := 0; i < 2; i++ {
		cmd := worker.StatusCommand{Envelope: worker.NewEnvelope()}
		require.NoError(t, w.Send(cmd))
		ev := waitFor(t, w, func(ev worker.Event) bool {
			_, isErr := ev.(worker.ErrorEvent)
			return isErr
		})
		assert.Equal(t, cmd.ID, ev.EventID())
		assert.Contains(t, ev.(worker.ErrorEvent).Message, "stores unavailable")
	}
}

func TestCloseShutsDownEventStream(t *testing.T) {
	root := t.TempDir()
	w := startWorker(t, testFactory(t, root))

	require.NoError(t, w.Send(worker.StatusCommand{Envelope: worker.NewEnvelope()}))
	waitFor(t, w, func(ev worker.Event) bool {
		_, ok := ev.(worker.StatusEvent)
		return ok
	})

	w.Close()

	// The stream closes once the loop drains.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-w.Events():
			if !ok {
				assert.Error(t, w.Send(worker.StatusCommand{Envelope: worker.NewEnvelope()}))
				return
			}
		case <-deadline:
			t.Fatal("event stream never closed")
		}
	}
}

func TestHostSharesWorkerPerProject(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()

	h := worker.NewHost(func(root string) (*indexer.Manager, error) {
		return testFactory(t, root)()
	}, logging.Nop())
	t.Cleanup(h.Close)

	wa1 := h.Worker(rootA)
	wa2 := h.Worker(rootA)
	wb := h.Worker(rootB)

	assert.Same(t, wa1, wa2)
	assert.NotSame(t, wa1, wb)
}

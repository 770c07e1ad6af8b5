package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"quarry/internal/indexer"
)

// ManagerFactory builds the IndexManager (and opens its stores) for a
// project. It runs exactly once per worker, inside the worker goroutine.
type ManagerFactory func() (*indexer.Manager, error)

// Worker hosts one IndexManager for one project. Commands go in through
// Send, events come out of Events. The command loop never blocks on a run:
// builds and updates execute in a child goroutine so pause/resume/cancel
// and status queries stay responsive.
type Worker struct {
	factory ManagerFactory
	log     zerolog.Logger

	cmds   chan Command
	events chan Event

	initOnce  sync.Once
	mgr       *indexer.Manager
	initErr   error
	runWG     sync.WaitGroup
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a worker; Start must be called before Send.
func New(factory ManagerFactory, log zerolog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		factory: factory,
		log:     log.With().Str("component", "worker").Logger(),
		cmds:    make(chan Command, 16),
		events:  make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the message loop.
func (w *Worker) Start() {
	go w.loop()
}

// Send queues a command for the worker.
func (w *Worker) Send(cmd Command) error {
	select {
	case <-w.ctx.Done():
		return errors.New("worker is shut down")
	case w.cmds <- cmd:
		return nil
	}
}

// Events returns the outbound event stream. It is closed on teardown.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// Close tears the worker down: the active run is cancelled, the loop
// drains, and all stores are flushed and closed.
func (w *Worker) Close() {
	// Cancelling the context aborts any active run at its next yield
	// point; the loop then drains and closes the stores.
	w.closeOnce.Do(w.cancel)
}

func (w *Worker) loop() {
	defer func() {
		// An unhandled fault is forwarded, never a silent death.
		if r := recover(); r != nil {
			w.emit(ErrorEvent{Message: fmt.Sprintf("worker fault: %v", r)})
		}
		w.runWG.Wait()
		if w.mgr != nil {
			if err := w.mgr.Close(); err != nil {
				w.log.Warn().Err(err).Msg("store close failed")
			}
		}
		close(w.events)
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case cmd := <-w.cmds:
			if !w.init() {
				w.emit(ErrorEvent{EventHeader: EventHeader{ID: cmd.CommandID()}, Message: w.initErr.Error()})
				continue
			}
			w.handle(cmd)
		}
	}
}

// init opens the stores exactly once. Repeated failures are reported per
// command but the factory itself is not retried.
func (w *Worker) init() bool {
	w.initOnce.Do(func() {
		w.mgr, w.initErr = w.factory()
	})
	return w.initErr == nil
}

func (w *Worker) handle(cmd Command) {
	id := cmd.CommandID()
	switch c := cmd.(type) {
	case BuildCommand:
		w.startRun(id, func(ctx context.Context, cb indexer.ProgressFunc) error {
			return w.mgr.Build(ctx, indexer.BuildOptions{ResumeFromCheckpoint: c.ResumeFromCheckpoint}, cb)
		}, func() Event {
			return BuildCompleteEvent{EventHeader{ID: id}, w.mgr.GetProgress()}
		})

	case UpdateCommand:
		w.startRun(id, func(ctx context.Context, cb indexer.ProgressFunc) error {
			return w.mgr.IncrementalUpdate(ctx, c.Changes, cb)
		}, func() Event {
			return UpdateCompleteEvent{EventHeader{ID: id}, w.mgr.GetProgress()}
		})

	case PauseCommand:
		if w.mgr.Pause() {
			w.emit(PausedEvent{EventHeader{ID: id}})
		} else {
			w.emit(ErrorEvent{EventHeader{ID: id}, "no pausable run in progress"})
		}

	case ResumeCommand:
		if w.mgr.Resume() {
			w.emit(ResumedEvent{EventHeader{ID: id}})
		} else {
			w.emit(ErrorEvent{EventHeader{ID: id}, "no paused run to resume"})
		}

	case CancelCommand:
		// Cancel saves a checkpoint before the acknowledgement goes out.
		w.mgr.Cancel()
		w.emit(CancelledEvent{EventHeader{ID: id}})

	case StatusCommand:
		w.emit(StatusEvent{EventHeader{ID: id}, w.mgr.GetProgress()})

	default:
		w.emit(ErrorEvent{EventHeader{ID: id}, fmt.Sprintf("unknown command %T", cmd)})
	}
}

// startRun executes a build or update in a child goroutine so the command
// loop stays responsive to control messages.
func (w *Worker) startRun(id string, run func(context.Context, indexer.ProgressFunc) error, complete func() Event) {
	w.runWG.Add(1)
	go func() {
		defer w.runWG.Done()
		defer func() {
			if r := recover(); r != nil {
				w.emit(ErrorEvent{EventHeader{ID: id}, fmt.Sprintf("run fault: %v", r)})
			}
		}()

		err := run(w.ctx, func(p indexer.Progress) {
			w.emit(ProgressEvent{EventHeader{ID: id}, p})
		})
		switch {
		case errors.Is(err, indexer.ErrCancelled):
			w.emit(CancelledEvent{EventHeader{ID: id}})
		case errors.Is(err, indexer.ErrBusy):
			w.emit(ErrorEvent{EventHeader{ID: id}, indexer.ErrBusy.Error()})
		case err != nil:
			w.emit(ErrorEvent{EventHeader{ID: id}, err.Error()})
		default:
			w.emit(complete())
		}
	}()
}

// emit delivers an event without ever blocking the loop forever: if the
// consumer is gone the event is dropped with a log line.
func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.ctx.Done():
		w.log.Debug().Str("event", fmt.Sprintf("%T", ev)).Msg("dropped event after shutdown")
	}
}

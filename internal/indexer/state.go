package indexer

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is returned by a run that observed a cancellation signal.
var ErrCancelled = errors.New("indexing cancelled")

// runPhase is the cooperative run state. Pause, resume, and cancel are
// signals observed between units of work, never preemptive interrupts.
type runPhase int

const (
	phaseIdle runPhase = iota
	phaseRunning
	phasePaused
	phaseCancelling
	phaseStopped
)

// runState is the explicit state machine checked at yield points.
type runState struct {
	mu    sync.Mutex
	cond  *sync.Cond
	phase runPhase
}

func newRunState() *runState {
	s := &runState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *runState) start() {
	s.mu.Lock()
	s.phase = phaseRunning
	s.mu.Unlock()
}

// pause moves Running → Paused. Returns false in any other state.
func (s *runState) pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseRunning {
		return false
	}
	s.phase = phasePaused
	return true
}

// resume clears the pause flag; the next yield proceeds. It does not by
// itself restart any work.
func (s *runState) resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phasePaused {
		return false
	}
	s.phase = phaseRunning
	s.cond.Broadcast()
	return true
}

// cancel requests cooperative termination and wakes a paused run so it can
// observe the signal.
func (s *runState) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phaseIdle || s.phase == phaseStopped {
		return
	}
	s.phase = phaseCancelling
	s.cond.Broadcast()
}

func (s *runState) stop() {
	s.mu.Lock()
	s.phase = phaseStopped
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *runState) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phasePaused
}

// yield is the cooperative scheduling point, called at file or batch
// boundaries. It blocks while paused and returns ErrCancelled once a
// cancellation has been requested.
func (s *runState) yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.phase == phasePaused {
		s.cond.Wait()
	}
	if s.phase == phaseCancelling || s.phase == phaseStopped {
		return ErrCancelled
	}
	return nil
}

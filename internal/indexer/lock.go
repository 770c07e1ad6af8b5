package indexer

import "sync/atomic"

// runLock provides non-blocking lock semantics so at most one build or
// update runs per project at a time.
type runLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// tryAcquire attempts to acquire the lock without blocking.
func (l *runLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release releases the lock. Must only be called after a successful acquire.
func (l *runLock) release() {
	l.state.Store(0)
}

package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock(t *testing.T) {
	var l runLock
	assert.True(t, l.tryAcquire())
	assert.False(t, l.tryAcquire())
	l.release()
	assert.True(t, l.tryAcquire())
}

func TestYieldRunning(t *testing.T) {
	s := newRunState()
	s.start()
	assert.NoError(t, s.yield(context.Background()))
}

func TestYieldAfterCancel(t *testing.T) {
	s := newRunState()
	s.start()
	s.cancel()
	assert.ErrorIs(t, s.yield(context.Background()), ErrCancelled)
}

func TestYieldHonorsContext(t *testing.T) {
	s := newRunState()
	s.start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.yield(ctx), context.Canceled)
}

func TestPauseOnlyWhileRunning(t *testing.T) {
	s := newRunState()
	assert.False(t, s.pause()) // idle
	s.start()
	assert.True(t, s.pause())
	assert.False(t, s.pause()) // already paused
	assert.True(t, s.resume())
	assert.False(t, s.resume()) // not paused anymore
}

func TestYieldBlocksWhilePaused(t *testing.T) {
	s := newRunState()
	s.start()
	require.True(t, s.pause())

	done := make(chan error, 1)
	go func() { done <- s.yield(context.Background()) }()

	select {
	case <-done:
		t.Fatal("yield returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, s.resume())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("yield did not wake after resume")
	}
}

func TestCancelWakesPausedRun(t *testing.T) {
	s := newRunState()
	s.start()
	require.True(t, s.pause())

	done := make(chan error, 1)
	go func() { done <- s.yield(context.Background()) }()

	s.cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("yield did not observe cancellation")
	}
}

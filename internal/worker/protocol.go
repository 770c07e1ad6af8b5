// Package worker runs an IndexManager in its own goroutine and exchanges
// typed messages with the controlling process, so long scans and embedding
// calls never block the interactive caller.
package worker

import (
	"github.com/google/uuid"

	"quarry/internal/indexer"
	"quarry/internal/metadata"
)

// Command is the inbound message union. Every concrete command carries an
// envelope id echoed by the events it produces.
type Command interface {
	isCommand()
	CommandID() string
}

// Envelope is the shared command header.
type Envelope struct {
	ID string
}

func (e Envelope) CommandID() string { return e.ID }

// NewEnvelope allocates a fresh message id.
func NewEnvelope() Envelope {
	return Envelope{ID: uuid.NewString()}
}

// BuildCommand requests a full rebuild.
type BuildCommand struct {
	Envelope
	ResumeFromCheckpoint bool
}

// UpdateCommand requests an incremental update for the given change set.
type UpdateCommand struct {
	Envelope
	Changes *metadata.ChangeSet
}

// PauseCommand requests a cooperative pause of the active run.
type PauseCommand struct{ Envelope }

// ResumeCommand clears the pause flag of the active run.
type ResumeCommand struct{ Envelope }

// CancelCommand requests cooperative termination of the active run.
type CancelCommand struct{ Envelope }

// StatusCommand requests a progress snapshot.
type StatusCommand struct{ Envelope }

func (BuildCommand) isCommand()  {}
func (UpdateCommand) isCommand() {}
func (PauseCommand) isCommand()  {}
func (ResumeCommand) isCommand() {}
func (CancelCommand) isCommand() {}
func (StatusCommand) isCommand() {}

// Event is the outbound message union.
type Event interface {
	isEvent()
	EventID() string
}

// EventHeader links an event back to the command that produced it.
type EventHeader struct {
	ID string
}

func (h EventHeader) EventID() string { return h.ID }

// ProgressEvent streams run progress.
type ProgressEvent struct {
	EventHeader
	Progress indexer.Progress
}

// BuildCompleteEvent signals a successful build.
type BuildCompleteEvent struct {
	EventHeader
	Progress indexer.Progress
}

// UpdateCompleteEvent signals a successful incremental update.
type UpdateCompleteEvent struct {
	EventHeader
	Progress indexer.Progress
}

// PausedEvent acknowledges a pause.
type PausedEvent struct{ EventHeader }

// ResumedEvent acknowledges a resume.
type ResumedEvent struct{ EventHeader }

// CancelledEvent acknowledges a cancellation; the checkpoint has been saved
// by the time it is emitted.
type CancelledEvent struct{ EventHeader }

// StatusEvent answers a status query.
type StatusEvent struct {
	EventHeader
	Progress indexer.Progress
}

// ErrorEvent forwards a fault instead of letting the worker die silently.
type ErrorEvent struct {
	EventHeader
	Message string
}

func (ProgressEvent) isEvent()       {}
func (BuildCompleteEvent) isEvent()  {}
func (UpdateCompleteEvent) isEvent() {}
func (PausedEvent) isEvent()         {}
func (ResumedEvent) isEvent()        {}
func (CancelledEvent) isEvent()      {}
func (StatusEvent) isEvent()         {}
func (ErrorEvent) isEvent()          {}

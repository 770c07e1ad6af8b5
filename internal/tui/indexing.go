// Package tui renders indexing progress from the worker's event stream.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"quarry/internal/indexer"
	"quarry/internal/worker"
)

type eventMsg struct{ ev worker.Event }

type streamClosedMsg struct{}

// IndexingModel displays the progress of one build or update.
type IndexingModel struct {
	spinner  spinner.Model
	events   <-chan worker.Event
	progress indexer.Progress
	done     bool
	errMsg   string
}

// NewIndexing creates a model consuming events until a terminal event or
// channel close.
func NewIndexing(events <-chan worker.Event) IndexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return IndexingModel{spinner: sp, events: events}
}

// Run drives the model to completion and returns an error when the run
// failed.
func Run(events <-chan worker.Event) error {
	final, err := tea.NewProgram(NewIndexing(events)).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(IndexingModel); ok && m.errMsg != "" {
		return fmt.Errorf("indexing failed: %s", m.errMsg)
	}
	return nil
}

func (m IndexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitEvent(m.events))
}

func waitEvent(events <-chan worker.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m IndexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case eventMsg:
		switch ev := msg.ev.(type) {
		case worker.ProgressEvent:
			m.progress = ev.Progress
		case worker.BuildCompleteEvent:
			m.progress = ev.Progress
			m.done = true
			return m, tea.Quit
		case worker.UpdateCompleteEvent:
			m.progress = ev.Progress
			m.done = true
			return m, tea.Quit
		case worker.CancelledEvent:
			m.errMsg = "cancelled"
			m.done = true
			return m, tea.Quit
		case worker.ErrorEvent:
			m.errMsg = ev.Message
			m.done = true
			return m, tea.Quit
		}
		return m, waitEvent(m.events)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m IndexingModel) View() string {
	s := "\n" + titleStyle.Render("  Indexing") + "\n\n"

	if m.done {
		if m.errMsg != "" {
			return s + errorStyle.Render(fmt.Sprintf("  Error: %s", m.errMsg)) + "\n"
		}
		s += successStyle.Render("  ✓ Indexing complete") + "\n\n"
		s += fmt.Sprintf("  Files:  %d scanned, %d chunked\n", m.progress.ScannedFiles, m.progress.ChunkedFiles)
		s += fmt.Sprintf("  Chunks: %d embedded, %d stored\n", m.progress.EmbeddedChunks, m.progress.StoredChunks)
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.progress.Phase)
	if m.progress.TotalFiles > 0 {
		s += fmt.Sprintf("  %d / %d files — %.0f%%\n",
			m.progress.ScannedFiles, m.progress.TotalFiles, m.progress.OverallProgress*100)
	}
	s += "\n" + dimStyle.Render("  This may take a while for large codebases... (q to quit)") + "\n"
	return s
}

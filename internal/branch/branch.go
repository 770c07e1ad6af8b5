// Package branch detects version-control branch transitions and file-level
// deltas between branches. All git queries degrade to "not a repository" or
// an empty list on failure rather than returning errors to the pipeline.
package branch

import (
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ChangeCallback is invoked with (oldBranch, newBranch) on a branch switch.
type ChangeCallback func(oldBranch, newBranch string)

// Handler watches the branch of one repository root.
type Handler struct {
	root string
	log  zerolog.Logger

	mu         sync.Mutex
	lastBranch string
	baselined  bool
	callbacks  map[int]ChangeCallback
	nextID     int
}

// NewHandler creates a handler for the repository at root.
func NewHandler(root string, log zerolog.Logger) *Handler {
	return &Handler{
		root:      root,
		log:       log.With().Str("component", "branch").Logger(),
		callbacks: make(map[int]ChangeCallback),
	}
}

// IsGitRepository reports whether root is inside a git work tree.
func (h *Handler) IsGitRepository() bool {
	out, err := h.git("rev-parse", "--git-dir")
	return err == nil && out != ""
}

// GetCurrentBranch returns the current branch name, or "" when not a
// repository or in a detached state it cannot name.
func (h *Handler) GetCurrentBranch() string {
	out, err := h.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// CheckBranchChange compares the current branch to the last recorded one.
// The first call only records the baseline and returns false, since there
// is nothing to compare against yet. On a genuine change the recorded branch
// is updated, every registered callback fires with (old, new), and the
// method returns true.
func (h *Handler) CheckBranchChange() bool {
	current := h.GetCurrentBranch()
	if current == "" {
		return false
	}

	h.mu.Lock()
	if !h.baselined {
		h.lastBranch = current
		h.baselined = true
		h.mu.Unlock()
		return false
	}
	old := h.lastBranch
	if old == current {
		h.mu.Unlock()
		return false
	}
	h.lastBranch = current
	cbs := make([]ChangeCallback, 0, len(h.callbacks))
	for _, cb := range h.callbacks {
		cbs = append(cbs, cb)
	}
	h.mu.Unlock()

	h.log.Info().Str("from", old).Str("to", current).Msg("branch changed")
	for _, cb := range cbs {
		h.invoke(cb, old, current)
	}
	return true
}

// invoke runs one callback, recovering a panic so a failing callback can
// neither crash the check nor starve the remaining callbacks.
func (h *Handler) invoke(cb ChangeCallback, old, current string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("branch change callback panicked")
		}
	}()
	cb(old, current)
}

// OnBranchChange registers a callback and returns an id for removal.
func (h *Handler) OnBranchChange(cb ChangeCallback) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.callbacks[id] = cb
	return id
}

// OffBranchChange removes a previously registered callback.
func (h *Handler) OffBranchChange(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.callbacks, id)
}

// SetLastBranch overrides the recorded baseline branch.
func (h *Handler) SetLastBranch(branch string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBranch = branch
	h.baselined = true
}

// GetChangedFilesBetween lists paths that differ between two refs. A failed
// comparison (e.g. no common history) returns an empty list.
func (h *Handler) GetChangedFilesBetween(a, b string) []string {
	out, err := h.git("diff", "--name-only", a, b)
	if err != nil {
		h.log.Debug().Str("a", a).Str("b", b).Err(err).Msg("branch diff failed")
		return nil
	}
	return splitLines(out)
}

// GetModifiedFiles lists paths modified relative to HEAD.
func (h *Handler) GetModifiedFiles() []string {
	out, err := h.git("diff", "--name-only", "HEAD")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

// GetUntrackedFiles lists untracked, non-ignored paths.
func (h *Handler) GetUntrackedFiles() []string {
	out, err := h.git("ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil
	}
	return splitLines(out)
}

func (h *Handler) git(args ...string) (string, error) {
	full := append([]string{"-C", h.root}, args...)
	out, err := exec.Command("git", full...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

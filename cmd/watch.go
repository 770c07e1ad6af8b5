package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quarry/internal/branch"
	"quarry/internal/indexer"
	"quarry/internal/metadata"
	"quarry/internal/watcher"
	"quarry/internal/worker"
)

var flagDebounce time.Duration

// branchPollInterval bounds how stale a detected branch switch can be.
const branchPollInterval = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a codebase and keep its index up to date",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		log := newLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		host := worker.NewHost(func(r string) (*indexer.Manager, error) {
			return openManager(r, log)
		}, log)
		defer host.Close()

		w := host.Worker(root)

		// Only registered languages are indexable; everything else the
		// watcher reports is noise.
		exts := newChunker().Registry().Extensions()

		sendUpdate := func(files []string) {
			changes := classifyChanges(root, files, exts)
			if changes.Empty() {
				return
			}
			log.Info().
				Int("added", len(changes.Added)).
				Int("modified", len(changes.Modified)).
				Int("deleted", len(changes.Deleted)).
				Msg("files changed")
			upd := worker.UpdateCommand{Envelope: worker.NewEnvelope(), Changes: &changes}
			if err := w.Send(upd); err != nil {
				log.Error().Err(err).Msg("send update")
			}
		}

		go logEvents(log, w.Events())

		bh := branch.NewHandler(root, log)
		if bh.IsGitRepository() {
			bh.CheckBranchChange() // baseline the current branch
			bh.OnBranchChange(func(old, current string) {
				log.Info().Str("from", old).Str("to", current).Msg("branch changed")
				sendUpdate(bh.GetChangedFilesBetween(old, current))
			})
			go pollBranch(ctx, bh)
		}

		fw, err := watcher.New(root, flagDebounce, log)
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer fw.Stop()

		fmt.Printf("Watching %s (ctrl+c to stop)\n", root)
		return fw.Start(ctx, sendUpdate)
	},
}

// classifyChanges turns watcher or git paths (relative, slash-separated)
// into a change set. A path that no longer exists is a deletion; everything
// else is treated as modified, which covers creations too since the indexer
// upserts.
func classifyChanges(root string, files []string, exts map[string]bool) metadata.ChangeSet {
	var changes metadata.ChangeSet
	for _, rel := range files {
		ext := filepath.Ext(rel)
		if len(ext) == 0 || !exts[ext[1:]] {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); os.IsNotExist(err) {
			changes.Deleted = append(changes.Deleted, rel)
		} else {
			changes.Modified = append(changes.Modified, rel)
		}
	}
	return changes
}

func pollBranch(ctx context.Context, bh *branch.Handler) {
	ticker := time.NewTicker(branchPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bh.CheckBranchChange()
		}
	}
}

// logEvents drains the worker event stream for the lifetime of the watch.
func logEvents(log zerolog.Logger, events <-chan worker.Event) {
	for ev := range events {
		switch ev := ev.(type) {
		case worker.UpdateCompleteEvent:
			log.Info().Int("chunks", ev.Progress.StoredChunks).Msg("index updated")
		case worker.BuildCompleteEvent:
			log.Info().Int("chunks", ev.Progress.StoredChunks).Msg("build complete")
		case worker.ErrorEvent:
			log.Error().Str("error", ev.Message).Msg("indexing failed")
		}
	}
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watcher.DefaultDebounce, "quiet period before reindexing a burst of changes")
	rootCmd.AddCommand(watchCmd)
}

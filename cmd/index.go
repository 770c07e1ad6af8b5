package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quarry/internal/indexer"
	"quarry/internal/tui"
	"quarry/internal/worker"
)

var flagResume bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Build the search index for a codebase",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		log := newLogger()

		host := worker.NewHost(func(r string) (*indexer.Manager, error) {
			return openManager(r, log)
		}, log)
		defer host.Close()

		w := host.Worker(root)
		if err := w.Send(worker.BuildCommand{
			Envelope:             worker.NewEnvelope(),
			ResumeFromCheckpoint: flagResume,
		}); err != nil {
			return err
		}

		if flagPlain {
			return consumeEvents(log, w.Events())
		}
		return tui.Run(w.Events())
	},
}

func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	return filepath.Abs(root)
}

// consumeEvents logs the event stream until a terminal event arrives.
// Used when stdout is not a terminal or --plain is set.
func consumeEvents(log zerolog.Logger, events <-chan worker.Event) error {
	for ev := range events {
		switch ev := ev.(type) {
		case worker.ProgressEvent:
			log.Info().
				Str("phase", ev.Progress.Phase).
				Int("scanned", ev.Progress.ScannedFiles).
				Int("total", ev.Progress.TotalFiles).
				Float64("overall", ev.Progress.OverallProgress).
				Msg("indexing")
		case worker.BuildCompleteEvent:
			log.Info().
				Int("files", ev.Progress.ChunkedFiles).
				Int("chunks", ev.Progress.StoredChunks).
				Msg("build complete")
			return nil
		case worker.UpdateCompleteEvent:
			log.Info().
				Int("files", ev.Progress.ChunkedFiles).
				Int("chunks", ev.Progress.StoredChunks).
				Msg("update complete")
			return nil
		case worker.CancelledEvent:
			return errors.New("indexing cancelled")
		case worker.ErrorEvent:
			return fmt.Errorf("indexing failed: %s", ev.Message)
		}
	}
	return nil
}

func init() {
	indexCmd.Flags().BoolVar(&flagResume, "resume", false, "resume from a saved checkpoint if one exists")
	rootCmd.AddCommand(indexCmd)
}

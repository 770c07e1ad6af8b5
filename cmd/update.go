package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quarry/internal/indexer"
)

var updateCmd = &cobra.Command{
	Use:   "update [path]",
	Short: "Incrementally reindex files that changed since the last run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}
		log := newLogger()

		mgr, err := openManager(root, log)
		if err != nil {
			return err
		}
		defer mgr.Close()

		changes, err := mgr.ComputeChangeSet(cmd.Context())
		if err != nil {
			return fmt.Errorf("compute changes: %w", err)
		}
		if changes.Empty() {
			fmt.Println("Index is up to date.")
			return nil
		}

		fmt.Printf("Updating: %d added, %d modified, %d deleted\n",
			len(changes.Added), len(changes.Modified), len(changes.Deleted))

		err = mgr.IncrementalUpdate(cmd.Context(), &changes, func(p indexer.Progress) {
			log.Debug().Str("phase", p.Phase).Float64("overall", p.OverallProgress).Msg("updating")
		})
		if err != nil {
			return err
		}

		fmt.Println("Update complete.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

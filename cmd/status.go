package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quarry/internal/branch"
	"quarry/internal/checkpoint"
	"quarry/internal/logging"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show index statistics for a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(args)
		if err != nil {
			return err
		}

		layout, vectors, meta, err := openIndex(root)
		if err != nil {
			return err
		}
		defer vectors.Close()
		defer meta.Close()

		files, err := meta.Count()
		if err != nil {
			return err
		}
		stats, err := vectors.Stats()
		if err != nil {
			return err
		}
		model, err := meta.GetMeta("embedding_model")
		if err != nil {
			return err
		}

		fmt.Printf("Project:  %s\n", layout.Root)
		fmt.Printf("Data dir: %s\n", layout.Dir)
		fmt.Printf("Files:    %d indexed\n", files)
		fmt.Printf("Chunks:   %d stored\n", stats.DocCount)
		if model != "" {
			fmt.Printf("Model:    %s\n", model)
		}

		ckpt := checkpoint.NewManager(layout.CheckpointPath)
		if ckpt.HasValidCheckpoint() {
			cp := ckpt.Start()
			fmt.Printf("Resumable run: phase %s, %d/%d files (run 'quarry index --resume')\n",
				cp.Phase, cp.ChunkedFiles, cp.TotalFiles)
		}

		bh := branch.NewHandler(layout.Root, logging.Nop())
		if bh.IsGitRepository() {
			fmt.Printf("Branch:   %s\n", bh.GetCurrentBranch())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

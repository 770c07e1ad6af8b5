package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDataDir  string
	flagOllama   string
	flagModel    string
	flagDim      int
	flagGraph    bool
	flagLogLevel string
	flagPlain    bool
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Local codebase indexing and semantic code search",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.quarry)")
	rootCmd.PersistentFlags().StringVar(&flagOllama, "ollama", "http://localhost:11434", "ollama base URL")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "nomic-embed-text", "embedding model")
	rootCmd.PersistentFlags().IntVar(&flagDim, "dim", 768, "embedding dimension")
	rootCmd.PersistentFlags().BoolVar(&flagGraph, "graph", true, "extract reference edges into the graph store")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagPlain, "plain", false, "plain log output instead of the progress view")
}

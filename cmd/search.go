package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"quarry/internal/embedder"
	"quarry/internal/vectorstore"
)

var (
	flagProject  string
	flagTopK     int
	flagFile     string
	flagRerank   string
	flagInstruct string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantically search an indexed codebase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		root, err := filepath.Abs(flagProject)
		if err != nil {
			return err
		}

		_, vectors, meta, err := openIndex(root)
		if err != nil {
			return err
		}
		defer vectors.Close()
		defer meta.Close()

		emb, err := embedder.NewOllama(flagOllama, flagModel, flagDim)
		if err != nil {
			return err
		}

		vec, err := emb.EmbedSingle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}

		var filter *vectorstore.Filter
		if flagFile != "" {
			filter = &vectorstore.Filter{FilePath: flagFile}
		}

		results, err := vectors.Query(vec, flagTopK, filter)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		if flagRerank != "" {
			results, err = rerankResults(cmd, query, results)
			if err != nil {
				return err
			}
		}

		md := formatSearchResults(query, results)
		if flagPlain {
			fmt.Println(md)
			return nil
		}
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
		if err != nil {
			fmt.Println(md)
			return nil
		}
		out, err := r.Render(md)
		if err != nil {
			fmt.Println(md)
			return nil
		}
		fmt.Print(out)
		return nil
	},
}

func rerankResults(cmd *cobra.Command, query string, results []vectorstore.SearchResult) ([]vectorstore.SearchResult, error) {
	rr, err := embedder.NewReranker(flagOllama, flagRerank)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Content
	}
	scored, err := rr.Rerank(cmd.Context(), query, docs, flagInstruct)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	for _, s := range scored {
		results[s.Index].Score = s.Score
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// formatSearchResults renders results as markdown. Shared with the MCP
// search tool so both surfaces print identically.
func formatSearchResults(query string, results []vectorstore.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Results for %q (%d)\n\n", query, len(results))
	for _, res := range results {
		fmt.Fprintf(&sb, "### %d. %s:%d-%d (score %.3f)\n\n", res.Rank, res.FilePath, res.StartLine, res.EndLine, res.Score)
		fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", fenceLang(res.FilePath), strings.TrimRight(res.Content, "\n"))
	}
	return sb.String()
}

func fenceLang(path string) string {
	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case "go":
		return "go"
	case "py":
		return "python"
	case "js", "jsx":
		return "javascript"
	case "ts", "tsx":
		return "typescript"
	default:
		return ""
	}
}

func init() {
	searchCmd.Flags().StringVar(&flagProject, "project", ".", "project root")
	searchCmd.Flags().IntVar(&flagTopK, "k", 10, "maximum results")
	searchCmd.Flags().StringVar(&flagFile, "file", "", "restrict results to one file path")
	searchCmd.Flags().StringVar(&flagRerank, "rerank", "", "rerank model (disabled when empty)")
	searchCmd.Flags().StringVar(&flagInstruct, "instruct", "", "instruct prompt for instruct-aware rerank models")
	rootCmd.AddCommand(searchCmd)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"quarry/internal/embedder"
	"quarry/internal/graphstore"
	"quarry/internal/metadata"
	"quarry/internal/vectorstore"
)

var flagMCPProject string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing codebase search tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(flagMCPProject)
	if err != nil {
		return err
	}

	layout, vectors, meta, err := openIndex(root)
	if err != nil {
		return err
	}
	defer vectors.Close()
	defer meta.Close()

	emb, err := embedder.NewOllama(flagOllama, flagModel, flagDim)
	if err != nil {
		return err
	}

	s := mcpserver.NewMCPServer("quarry", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchCodebaseTool(), makeSearchHandler(vectors, emb))
	s.AddTool(indexStatusTool(), makeStatusHandler(layout.Root, vectors, meta))
	s.AddTool(listIndexedFilesTool(), makeListFilesHandler(meta))

	// The references tool only makes sense when a graph was built.
	if _, err := os.Stat(layout.GraphDBPath); err == nil {
		graph, err := graphstore.Open(layout.GraphDBPath)
		if err != nil {
			return fmt.Errorf("open graph store: %w", err)
		}
		defer graph.Close()
		s.AddTool(findReferencesTool(), makeReferencesHandler(graph))
	}

	return mcpserver.ServeStdio(s)
}

func init() {
	mcpCmd.Flags().StringVar(&flagMCPProject, "project", ".", "project root")
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodebaseTool() mcp.Tool {
	return mcp.NewTool("search_codebase",
		mcp.WithDescription("Semantically search the indexed codebase by vector similarity. Returns relevant code chunks with file paths and line numbers."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language or keyword query to search the codebase"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default 10)"),
		),
		mcp.WithString("file",
			mcp.Description("Optional file path to restrict the search to"),
		),
	)
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool("index_status",
		mcp.WithDescription("Get index statistics: file count, chunk count, and the embedding model used."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func listIndexedFilesTool() mcp.Tool {
	return mcp.NewTool("list_indexed_files",
		mcp.WithDescription("List all files currently in the index."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("prefix",
			mcp.Description("Optional path prefix filter (e.g. 'internal/')"),
		),
	)
}

func findReferencesTool() mcp.Tool {
	return mcp.NewTool("find_references",
		mcp.WithDescription("Find call sites of a symbol across the indexed codebase using the reference graph."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("symbol",
			mcp.Required(),
			mcp.Description("Symbol name to look up (function or method name)"),
		),
	)
}

// --- Handler factories ---

func makeSearchHandler(vectors *vectorstore.Store, emb *embedder.OllamaEmbedder) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", 10)
		if k <= 0 {
			k = 10
		}

		vec, err := emb.EmbedSingle(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("embed query: %v", err)), nil
		}

		var filter *vectorstore.Filter
		if file := req.GetString("file", ""); file != "" {
			filter = &vectorstore.Filter{FilePath: file}
		}

		results, err := vectors.Query(vec, k, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText("No results."), nil
		}
		return mcp.NewToolResultText(formatSearchResults(query, results)), nil
	}
}

func makeStatusHandler(root string, vectors *vectorstore.Store, meta *metadata.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		files, err := meta.Count()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("count files: %v", err)), nil
		}
		stats, err := vectors.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("vector stats: %v", err)), nil
		}
		model, _ := meta.GetMeta("embedding_model")

		return mcp.NewToolResultText(fmt.Sprintf(
			"## Index status\n\n**Project:** %s  \n**Files:** %d  \n**Chunks:** %d  \n**Model:** %s",
			root, files, stats.DocCount, model)), nil
	}
}

func makeListFilesHandler(meta *metadata.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prefix := req.GetString("prefix", "")

		paths, err := meta.Paths()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files failed: %v", err)), nil
		}

		var filtered []string
		for _, p := range paths {
			if prefix == "" || strings.HasPrefix(p, prefix) {
				filtered = append(filtered, p)
			}
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Indexed files (%d)\n\n", len(filtered))
		for _, p := range filtered {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeReferencesHandler(graph *graphstore.Store) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		symbol := req.GetString("symbol", "")
		if symbol == "" {
			return mcp.NewToolResultError("symbol is required"), nil
		}

		edges, err := graph.References(symbol)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reference lookup failed: %v", err)), nil
		}
		if len(edges) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No references to %q found.", symbol)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## References to %q (%d)\n\n", symbol, len(edges))
		for _, e := range edges {
			fmt.Fprintf(&sb, "- %s:%d (%s)\n", e.SourcePath, e.Line, e.Kind)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

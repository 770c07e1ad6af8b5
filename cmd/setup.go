package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"quarry/internal/checkpoint"
	"quarry/internal/chunker"
	"quarry/internal/chunker/languages"
	"quarry/internal/embedder"
	"quarry/internal/graphstore"
	"quarry/internal/indexer"
	"quarry/internal/logging"
	"quarry/internal/metadata"
	"quarry/internal/project"
	"quarry/internal/vectorstore"
)

func newLogger() zerolog.Logger {
	return logging.New(logging.Config{Level: flagLogLevel, Pretty: true, Out: os.Stderr})
}

func newChunker() *chunker.Chunker {
	reg := chunker.NewRegistry()
	languages.RegisterAll(reg)
	return chunker.New(reg)
}

func baseDir() string {
	if flagDataDir != "" {
		return flagDataDir
	}
	return project.DefaultBaseDir()
}

// openManager wires the full pipeline for one project root. The caller owns
// the returned manager and must Close it.
func openManager(root string, log zerolog.Logger) (*indexer.Manager, error) {
	layout, err := project.Resolve(baseDir(), root)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.NewOllama(flagOllama, flagModel, flagDim)
	if err != nil {
		return nil, err
	}

	vectors, err := vectorstore.Open(layout.VectorDBPath, emb.Dimension())
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	meta, err := metadata.Open(layout.MetadataDBPath)
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	var graph *graphstore.Store
	if flagGraph {
		graph, err = graphstore.Open(layout.GraphDBPath)
		if err != nil {
			vectors.Close()
			meta.Close()
			return nil, fmt.Errorf("open graph store: %w", err)
		}
	}

	stores := indexer.Stores{Meta: meta, Vectors: vectors, Graph: graph}
	ckpt := checkpoint.NewManager(layout.CheckpointPath)

	mgr, err := indexer.New(indexer.Config{Root: layout.Root}, stores, newChunker(), emb, ckpt, log)
	if err != nil {
		vectors.Close()
		meta.Close()
		if graph != nil {
			graph.Close()
		}
		return nil, err
	}
	return mgr, nil
}

// openIndex opens the stores of an existing project read side only, for
// search and status. It fails when the project was never indexed.
func openIndex(root string) (*project.Layout, *vectorstore.Store, *metadata.Store, error) {
	layout, err := project.Resolve(baseDir(), root)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := os.Stat(layout.VectorDBPath); os.IsNotExist(err) {
		return nil, nil, nil, fmt.Errorf("no index found for %s\nRun 'quarry index %s' first", layout.Root, root)
	}

	vectors, err := vectorstore.Open(layout.VectorDBPath, flagDim)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open vector store: %w", err)
	}
	meta, err := metadata.Open(layout.MetadataDBPath)
	if err != nil {
		vectors.Close()
		return nil, nil, nil, fmt.Errorf("open metadata store: %w", err)
	}
	return layout, vectors, meta, nil
}

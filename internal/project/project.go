// Package project maps a project root to its on-disk store layout.
//
// Every project is addressed by a stable hash of its absolute root path.
// All stores (vector, metadata, graph, checkpoint) live under a directory
// keyed by that hash, so two projects never collide and a project can be
// fully reset by deleting its subtree.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Layout holds the resolved store paths for one project.
type Layout struct {
	Root           string // absolute project root
	Hash           string // stable hash of Root
	Dir            string // per-project data directory
	VectorDBPath   string
	MetadataDBPath string
	GraphDBPath    string
	CheckpointPath string
}

// Hash returns the stable identifier for a project root.
func Hash(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(filepath.ToSlash(abs)))
	return hex.EncodeToString(sum[:8])
}

// Resolve computes the store layout for root under baseDir, creating the
// per-project directory if needed.
func Resolve(baseDir, root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	hash := Hash(abs)
	dir := filepath.Join(baseDir, "projects", hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}

	return &Layout{
		Root:           abs,
		Hash:           hash,
		Dir:            dir,
		VectorDBPath:   filepath.Join(dir, "vectors.db"),
		MetadataDBPath: filepath.Join(dir, "metadata.db"),
		GraphDBPath:    filepath.Join(dir, "graph.db"),
		CheckpointPath: filepath.Join(dir, "checkpoint.json"),
	}, nil
}

// DefaultBaseDir is ~/.quarry, falling back to the working directory when
// the home directory cannot be determined.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quarry"
	}
	return filepath.Join(home, ".quarry")
}

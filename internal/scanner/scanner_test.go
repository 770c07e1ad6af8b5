package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goOnly = map[string]bool{"go": true}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func scanAll(t *testing.T, root string, exts map[string]bool) []FileInfo {
	t.Helper()
	files, errs := Scan(root, exts)
	var out []FileInfo
	for fi := range files {
		out = append(out, fi)
	}
	require.NoError(t, <-errs)
	return out
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestScanFiltersByExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "lib/util.go", "package lib\n")
	writeFile(t, root, "README.md", "# readme\n")
	writeFile(t, root, "script.py", "print(1)\n")

	rels := relPaths(scanAll(t, root, goOnly))
	assert.ElementsMatch(t, []string{"main.go", "lib/util.go"}, rels)
}

func TestScanSkipsDefaultIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/dep/index.go", "package dep\n")
	writeFile(t, root, "vendor/lib/lib.go", "package lib\n")
	writeFile(t, root, ".git/hooks/hook.go", "package hooks\n")

	rels := relPaths(scanAll(t, root, goOnly))
	assert.Equal(t, []string{"main.go"}, rels)

	// The first scan materializes the default ignore file.
	_, err := os.Stat(filepath.Join(root, IgnoreFile))
	assert.NoError(t, err)
}

func TestScanHonorsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, IgnoreFile, "# comment\n\ngenerated\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/gen.go", "package generated\n")

	rels := relPaths(scanAll(t, root, goOnly))
	assert.Equal(t, []string{"main.go"}, rels)
}

func TestScanSkipsEmptyAndOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "empty.go", "")
	writeFile(t, root, "ok.go", "package main\n")

	big := make([]byte, maxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	writeFile(t, root, "big.go", string(big))

	rels := relPaths(scanAll(t, root, goOnly))
	assert.Equal(t, []string{"ok.go"}, rels)
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", "package main\n")
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	rels := relPaths(scanAll(t, root, goOnly))
	assert.Equal(t, []string{"real.go"}, rels)
}

func TestCountMatchesScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b/b.go", "package b\n")
	writeFile(t, root, "c/c/c.go", "package c\n")
	writeFile(t, root, "skip.md", "nope\n")

	n, err := Count(root, goOnly)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, scanAll(t, root, goOnly), n)
}

func TestMatchesIgnore(t *testing.T) {
	patterns := []string{"node_modules", "*.tmp", "docs/internal"}

	assert.True(t, matchesIgnore("node_modules", "pkg/node_modules", patterns))
	assert.True(t, matchesIgnore("cache.tmp", "cache.tmp", patterns))
	assert.True(t, matchesIgnore("internal", "docs/internal", patterns))
	assert.False(t, matchesIgnore("src", "src", patterns))
}

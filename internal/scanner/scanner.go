// Package scanner walks a project tree and emits indexable source files.
package scanner

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// maxFileSize is the largest file we'll consider (1 MB).
const maxFileSize = 1 << 20

// IgnoreFile is the per-project ignore list, one pattern per line.
const IgnoreFile = ".quarryignore"

// defaultIgnores are used when no ignore file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	".quarry",
	"dist",
	"build",
	"target",
}

// Scan traverses the directory tree rooted at root and sends discovered
// source files on the returned channel. Only files whose extension is in
// allowedExts are emitted; unreadable entries are skipped, never fatal.
func Scan(root string, allowedExts map[string]bool) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		ignores := loadIgnorePatterns(absRoot)

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries, keep walking
			}
			fi, skipDir := inspect(absRoot, path, d, allowedExts, ignores)
			if skipDir {
				return filepath.SkipDir
			}
			if fi != nil {
				files <- *fi
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Count walks the tree once and returns how many files Scan would emit.
// The pipeline counts files a single time and reuses the result both to
// pick batch vs streaming mode and as the progress denominator.
func Count(root string, allowedExts map[string]bool) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, err
	}
	ignores := loadIgnorePatterns(absRoot)

	n := 0
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		fi, skipDir := inspect(absRoot, path, d, allowedExts, ignores)
		if skipDir {
			return filepath.SkipDir
		}
		if fi != nil {
			n++
		}
		return nil
	})
	return n, err
}

// inspect applies the shared walk rules to one entry. It returns the file
// to emit (or nil) and whether the walker should skip the directory.
func inspect(absRoot, path string, d fs.DirEntry, allowedExts map[string]bool, ignores []string) (*FileInfo, bool) {
	if d.IsDir() {
		if path == absRoot {
			return nil, false
		}
		rel, _ := filepath.Rel(absRoot, path)
		if matchesIgnore(d.Name(), filepath.ToSlash(rel), ignores) {
			return nil, true
		}
		return nil, false
	}

	if d.Type()&fs.ModeSymlink != 0 {
		return nil, false
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !allowedExts[ext] {
		return nil, false
	}

	info, err := d.Info()
	if err != nil {
		return nil, false
	}
	if info.Size() > maxFileSize || info.Size() == 0 {
		return nil, false
	}

	relPath, _ := filepath.Rel(absRoot, path)
	return &FileInfo{
		Path:    path,
		RelPath: filepath.ToSlash(relPath),
		Size:    info.Size(),
	}, false
}

// loadIgnorePatterns reads the ignore file from the project root, creating
// one with the defaults when absent.
func loadIgnorePatterns(root string) []string {
	ignorePath := filepath.Join(root, IgnoreFile)

	f, err := os.Open(ignorePath)
	if err != nil {
		createDefaultIgnoreFile(ignorePath)
		return defaultIgnores
	}
	defer f.Close()

	var patterns []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if len(patterns) == 0 {
		return defaultIgnores
	}
	return patterns
}

func createDefaultIgnoreFile(path string) {
	var b strings.Builder
	b.WriteString("# Directories to exclude from indexing.\n")
	b.WriteString("# One pattern per line. Supports exact names and globs.\n\n")
	for _, p := range defaultIgnores {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	// Best-effort write; the defaults are still used in memory on failure.
	os.WriteFile(path, []byte(b.String()), 0o644)
}

// matchesIgnore checks a directory name or relative path against the patterns.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if strings.HasPrefix(relPath, p) {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}

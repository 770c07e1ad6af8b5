// Package chunker splits parsed source files into size-bounded,
// semantically meaningful chunks.
//
// The walk is AST-aware: class-like and function-like nodes that exceed the
// token budget are emitted in a collapsed form (signature kept, body
// replaced), and every child is still visited so nothing is permanently
// lost: oversized constructs reappear in full, or further collapsed, lower
// in the sequence.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"iter"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Chunk is a bounded slice of a source file produced for embedding/search.
// Immutable once produced; identity is the content-addressed ID.
type Chunk struct {
	ID        string
	FilePath  string
	Content   string
	StartLine int
	EndLine   int
}

// EstimateTokens approximates the token count of text as ceil(len/4).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Chunker produces chunks for files whose language is registered.
type Chunker struct {
	registry *Registry
}

// New creates a chunker backed by the given registry.
func New(r *Registry) *Chunker {
	return &Chunker{registry: r}
}

// Registry returns the language registry backing the chunker.
func (c *Chunker) Registry() *Registry { return c.registry }

// File parses src and returns the lazy chunk sequence for it. If no grammar
// is registered for the path it returns (nil, nil); parse failures are
// returned as errors so the caller can skip the file.
func (c *Chunker) File(path string, src []byte, maxTokens int) (iter.Seq[Chunk], error) {
	spec, _ := c.registry.Lookup(path)
	if spec == nil {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	walk := Walk(tree, src, path, spec, maxTokens)
	return func(yield func(Chunk) bool) {
		defer tree.Close()
		for ch := range walk {
			if !yield(ch) {
				return
			}
		}
	}, nil
}

// Walk produces the chunk sequence for an already-parsed tree. The sequence
// is finite and single-use: each call to Walk re-walks the tree, but a
// returned sequence must not be ranged twice.
//
// The traversal is an explicit stack-based depth-first walk rather than
// recursion, so arbitrarily deep trees cannot exhaust the goroutine stack.
func Walk(tree *sitter.Tree, src []byte, path string, spec *LanguageSpec, maxTokens int) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if strings.TrimSpace(string(src)) == "" {
			return
		}

		root := tree.RootNode()
		stack := []*sitter.Node{root}

		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if text, ok := render(node, node == root, src, spec, maxTokens); ok {
				if !yield(makeChunk(path, node, text)) {
					return
				}
			}

			// Children are pushed in reverse so the walk stays
			// depth-first in source order.
			for i := int(node.ChildCount()) - 1; i >= 0; i-- {
				stack = append(stack, node.Child(i))
			}
		}
	}
}

// render decides whether a node is emitted and in what form. Nodes without
// a registered collapse form (other than the root) are never emitted
// themselves; the walk still descends into them.
func render(node *sitter.Node, isRoot bool, src []byte, spec *LanguageSpec, maxTokens int) (string, bool) {
	kind := spec.CollapseKind(node.Type())
	if !isRoot && kind == KindNone {
		return "", false
	}

	full := collapseCommentRuns(node.Content(src), spec.LineComment)
	if EstimateTokens(full) <= maxTokens {
		if strings.TrimSpace(full) == "" {
			return "", false
		}
		return full, true
	}

	switch kind {
	case KindFunction:
		return collapseFunction(node, src, spec, maxTokens, true)
	case KindClass:
		return collapseClass(node, src, spec, maxTokens)
	default:
		// Too large and no collapse form: recurse only.
		return "", false
	}
}

func makeChunk(path string, node *sitter.Node, content string) Chunk {
	start := int(node.StartPoint().Row) + 1
	end := int(node.EndPoint().Row) + 1
	return Chunk{
		ID:        chunkID(path, start, end, content),
		FilePath:  path,
		Content:   content,
		StartLine: start,
		EndLine:   end,
	}
}

// chunkID derives a content-addressed chunk identity from the path, the
// line range, and the rendered content.
func chunkID(path string, start, end int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00", path, start, end)
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

package chunker

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// NodeKind classifies node types that have a registered collapsed form.
type NodeKind int

const (
	KindNone NodeKind = iota
	// KindFunction marks function-like nodes: the body collapses to a
	// placeholder while the signature is kept.
	KindFunction
	// KindClass marks class-like nodes: the header is kept and members
	// are collapsed or dropped from the end until the text fits.
	KindClass
)

// LanguageSpec describes how to parse and collapse one language.
type LanguageSpec struct {
	Language   *sitter.Language
	Extensions []string

	// Functions and Classes list the node types with a collapsed form.
	Functions map[string]bool
	Classes   map[string]bool

	// BodyField is the tree-sitter field name of a definition body.
	BodyField string

	// LineComment is the line-comment prefix used when collapsing
	// comment runs (e.g. "//" or "#").
	LineComment string

	// ReferenceQuery optionally captures outgoing call/reference
	// identifiers as @ref for graph-edge extraction.
	ReferenceQuery string
}

// CollapseKind returns the registered collapse form for a node type.
func (s *LanguageSpec) CollapseKind(nodeType string) NodeKind {
	switch {
	case s.Functions[nodeType]:
		return KindFunction
	case s.Classes[nodeType]:
		return KindClass
	default:
		return KindNone
	}
}

// Registry maps file extensions to language specs.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]*LanguageSpec
	names map[string]*LanguageSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt: make(map[string]*LanguageSpec),
		names: make(map[string]*LanguageSpec),
	}
}

// Register adds a language spec under the given name.
func (r *Registry) Register(name string, spec *LanguageSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = spec
	for _, ext := range spec.Extensions {
		r.byExt[ext] = spec
	}
}

// Lookup returns the spec for a file path based on its extension, or nil.
func (r *Registry) Lookup(path string) (*LanguageSpec, string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byExt[ext]
	if !ok {
		return nil, ""
	}
	for name, sp := range r.names {
		if sp == s {
			return s, name
		}
	}
	return s, ext
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.byExt))
	for ext := range r.byExt {
		exts[ext] = true
	}
	return exts
}

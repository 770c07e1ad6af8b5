// Package languages registers the supported tree-sitter grammars and their
// collapse specs with a chunker registry.
package languages

import (
	"quarry/internal/chunker"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *chunker.Registry) {
	r.Register("go", &chunker.LanguageSpec{
		Language:   golang.GetLanguage(),
		Extensions: []string{"go"},
		Functions: map[string]bool{
			"function_declaration": true,
			"method_declaration":   true,
			"func_literal":         true,
		},
		Classes: map[string]bool{
			"type_declaration": true,
		},
		BodyField:   "body",
		LineComment: "//",
		ReferenceQuery: `
			(call_expression function: (identifier) @ref)
			(call_expression function: (selector_expression field: (field_identifier) @ref))
		`,
	})
}

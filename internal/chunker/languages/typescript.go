package languages

import (
	"quarry/internal/chunker"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *chunker.Registry) {
	r.Register("typescript", &chunker.LanguageSpec{
		Language:   typescript.GetLanguage(),
		Extensions: []string{"ts", "tsx"},
		Functions: map[string]bool{
			"function_declaration":           true,
			"generator_function_declaration": true,
			"method_definition":              true,
		},
		Classes: map[string]bool{
			"class_declaration":          true,
			"abstract_class_declaration": true,
			"interface_declaration":      true,
		},
		BodyField:   "body",
		LineComment: "//",
		ReferenceQuery: `
			(call_expression function: (identifier) @ref)
			(call_expression function: (member_expression property: (property_identifier) @ref))
		`,
	})
}

package languages

import (
	"quarry/internal/chunker"

	"github.com/smacker/go-tree-sitter/javascript"
)

func RegisterJavaScript(r *chunker.Registry) {
	r.Register("javascript", &chunker.LanguageSpec{
		Language:   javascript.GetLanguage(),
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Functions: map[string]bool{
			"function_declaration":           true,
			"generator_function_declaration": true,
			"method_definition":              true,
		},
		Classes: map[string]bool{
			"class_declaration": true,
		},
		BodyField:   "body",
		LineComment: "//",
		ReferenceQuery: `
			(call_expression function: (identifier) @ref)
			(call_expression function: (member_expression property: (property_identifier) @ref))
		`,
	})
}

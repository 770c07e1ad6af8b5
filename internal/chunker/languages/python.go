package languages

import (
	"quarry/internal/chunker"

	"github.com/smacker/go-tree-sitter/python"
)

func RegisterPython(r *chunker.Registry) {
	r.Register("python", &chunker.LanguageSpec{
		Language:   python.GetLanguage(),
		Extensions: []string{"py"},
		Functions: map[string]bool{
			"function_definition": true,
		},
		Classes: map[string]bool{
			"class_definition": true,
		},
		BodyField:   "body",
		LineComment: "#",
		ReferenceQuery: `
			(call function: (identifier) @ref)
			(call function: (attribute attribute: (identifier) @ref))
		`,
	})
}

// RegisterAll registers every supported language.
func RegisterAll(r *chunker.Registry) {
	RegisterGo(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterPython(r)
}

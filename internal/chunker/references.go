package chunker

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Reference is an outgoing call or type reference found in a source file,
// used to derive graph edges between chunks and symbols.
type Reference struct {
	Name string
	Kind string
	Line int
}

// References extracts the outgoing references from src using the language's
// reference query. Languages without a query yield no references.
func (c *Chunker) References(path string, src []byte) ([]Reference, error) {
	spec, lang := c.registry.Lookup(path)
	if spec == nil || spec.ReferenceQuery == "" {
		return nil, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	q, err := sitter.NewQuery([]byte(spec.ReferenceQuery), spec.Language)
	if err != nil {
		return nil, fmt.Errorf("compile reference query for %s: %w", lang, err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var refs []Reference
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, cap := range m.Captures {
			name := q.CaptureNameForId(cap.Index)
			if name != "ref" {
				continue
			}
			refs = append(refs, Reference{
				Name: cap.Node.Content(src),
				Kind: "call",
				Line: int(cap.Node.StartPoint().Row) + 1,
			})
		}
	}
	return refs, nil
}

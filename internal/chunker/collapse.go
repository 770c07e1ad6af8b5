package chunker

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// collapseFunction shrinks a function-like node, keeping the signature and
// replacing the body with a placeholder. Fallback order: full signature +
// placeholder, first signature line + placeholder, placeholder alone; the
// first variant under budget wins. Methods inside a class-like ancestor are
// prefixed with one line of the class header followed by an ellipsis line
// (withContext controls this; class collapse renders members without it).
func collapseFunction(node *sitter.Node, src []byte, spec *LanguageSpec, maxTokens int, withContext bool) (string, bool) {
	prefix := ""
	if withContext {
		if class := enclosingClass(node, spec); class != nil {
			prefix = firstLine(class.Content(src)) + "\n...\n"
		}
	}

	for _, v := range functionVariants(node, src, spec) {
		text := prefix + v
		if EstimateTokens(text) <= maxTokens {
			return text, true
		}
	}
	return "", false
}

// functionVariants returns the collapsed candidates in decreasing fidelity.
func functionVariants(node *sitter.Node, src []byte, spec *LanguageSpec) []string {
	body := node.ChildByFieldName(spec.BodyField)
	placeholder := "..."
	if body != nil && strings.HasPrefix(body.Content(src), "{") {
		placeholder = "{ ... }"
	}

	var sig string
	if body != nil && body.StartByte() > node.StartByte() {
		sig = strings.TrimRight(string(src[node.StartByte():body.StartByte()]), " \t\n")
	} else {
		sig = firstLine(node.Content(src))
	}

	variants := []string{sig + " " + placeholder}
	if fl := firstLine(sig); fl != sig {
		variants = append(variants, fl+" "+placeholder)
	}
	return append(variants, placeholder)
}

// collapseClass shrinks a class-like node: the header is kept, oversized
// members are replaced with their collapsed form, and members are dropped
// from the end until the remaining text fits the budget.
func collapseClass(node *sitter.Node, src []byte, spec *LanguageSpec, maxTokens int) (string, bool) {
	body := node.ChildByFieldName(spec.BodyField)
	if body == nil {
		text := firstLine(node.Content(src)) + " ..."
		if EstimateTokens(text) <= maxTokens {
			return text, true
		}
		return "", false
	}

	header := strings.TrimRight(string(src[node.StartByte():body.StartByte()]), " \t\n")
	closer := ""
	if strings.HasPrefix(body.Content(src), "{") {
		header += " {"
		closer = "}"
	}

	// Member declarations, each pre-collapsed when its own text would
	// blow the whole budget.
	var members []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		indent := strings.Repeat(" ", int(m.StartPoint().Column))
		text := collapseCommentRuns(m.Content(src), spec.LineComment)
		if spec.CollapseKind(m.Type()) == KindFunction && EstimateTokens(text) > maxTokens {
			if collapsed, ok := collapseFunction(m, src, spec, maxTokens, false); ok {
				text = collapsed
			}
		}
		members = append(members, indent+text)
	}

	// Drop members from the end until the assembled text fits.
	for keep := len(members); keep >= 0; keep-- {
		var b strings.Builder
		b.WriteString(header)
		for _, m := range members[:keep] {
			b.WriteString("\n\n")
			b.WriteString(m)
		}
		if closer != "" {
			b.WriteString("\n")
			b.WriteString(closer)
		}
		text := squashBlankRuns(b.String())
		if EstimateTokens(text) <= maxTokens {
			return text, true
		}
	}
	return "", false
}

// enclosingClass returns the nearest class-like ancestor, or nil.
func enclosingClass(node *sitter.Node, spec *LanguageSpec) *sitter.Node {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if spec.CollapseKind(p.Type()) == KindClass {
			return p
		}
	}
	return nil
}

// collapseCommentRuns replaces runs of 3 or more consecutive line comments
// with the first comment line plus a single ellipsis comment line.
func collapseCommentRuns(text, lineComment string) string {
	if lineComment == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	var out []string

	for i := 0; i < len(lines); {
		if !isCommentLine(lines[i], lineComment) {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i
		for j < len(lines) && isCommentLine(lines[j], lineComment) {
			j++
		}
		if j-i >= 3 {
			out = append(out, lines[i])
			indent := lines[i][:len(lines[i])-len(strings.TrimLeft(lines[i], " \t"))]
			out = append(out, indent+lineComment+" ...")
		} else {
			out = append(out, lines[i:j]...)
		}
		i = j
	}
	return strings.Join(out, "\n")
}

func isCommentLine(line, lineComment string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), lineComment)
}

// squashBlankRuns collapses runs of 3 or more consecutive blank lines to a
// single blank line.
func squashBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	var out []string

	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j-i >= 3 {
			out = append(out, "")
		} else {
			out = append(out, lines[i:j]...)
		}
		i = j
	}
	return strings.Join(out, "\n")
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

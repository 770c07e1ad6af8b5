package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quarry/internal/chunker"
	"quarry/internal/chunker/languages"
)

func newChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	reg := chunker.NewRegistry()
	languages.RegisterAll(reg)
	return chunker.New(reg)
}

func collect(t *testing.T, c *chunker.Chunker, path, src string, maxTokens int) []chunker.Chunk {
	t.Helper()
	seq, err := c.File(path, []byte(src), maxTokens)
	require.NoError(t, err)
	require.NotNil(t, seq)

	var chunks []chunker.Chunk
	for ch := range seq {
		chunks = append(chunks, ch)
	}
	return chunks
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, chunker.EstimateTokens(""))
	assert.Equal(t, 1, chunker.EstimateTokens("abcd"))
	assert.Equal(t, 2, chunker.EstimateTokens("abcde"))
	assert.Equal(t, 2, chunker.EstimateTokens("abcdefgh"))
}

func TestFileUnknownExtension(t *testing.T) {
	c := newChunker(t)
	seq, err := c.File("notes.txt", []byte("hello"), 512)
	assert.NoError(t, err)
	assert.Nil(t, seq)
}

func TestFileEmptySource(t *testing.T) {
	c := newChunker(t)
	for _, src := range []string{"", "   \n\n\t "} {
		chunks := collect(t, c, "empty.go", src, 512)
		assert.Empty(t, chunks)
	}
}

func TestBudgetIsNeverExceeded(t *testing.T) {
	c := newChunker(t)

	var b strings.Builder
	b.WriteString("package main\n\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "func fn%d() {\n", i)
		for j := 0; j < 30; j++ {
			fmt.Fprintf(&b, "\tvalue%d := compute(%d, %d)\n\t_ = value%d\n", j, i, j, j)
		}
		b.WriteString("}\n\n")
	}

	for _, budget := range []int{20, 80, 512} {
		chunks := collect(t, c, "main.go", b.String(), budget)
		require.NotEmpty(t, chunks)
		for _, ch := range chunks {
			assert.LessOrEqual(t, chunker.EstimateTokens(ch.Content), budget,
				"chunk %s:%d exceeds budget %d", ch.FilePath, ch.StartLine, budget)
		}
	}
}

func TestOversizedFunctionCollapses(t *testing.T) {
	c := newChunker(t)

	var b strings.Builder
	b.WriteString("package main\n\n")
	b.WriteString("func Big(a, b int) int {\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&b, "\ta = a + b*%d\n", i)
	}
	b.WriteString("\treturn a\n}\n\n")
	b.WriteString("func tiny() {}\n")

	chunks := collect(t, c, "main.go", b.String(), 30)

	var collapsed, full bool
	for _, ch := range chunks {
		if strings.HasPrefix(ch.Content, "func Big") {
			collapsed = true
			assert.Contains(t, ch.Content, "{ ... }")
			assert.NotContains(t, ch.Content, "a = a + b*50")
		}
		if ch.Content == "func tiny() {}" {
			full = true
		}
	}
	assert.True(t, collapsed, "expected a collapsed chunk for Big")
	assert.True(t, full, "expected tiny to be emitted in full")
}

func TestOversizedClassKeepsHeader(t *testing.T) {
	c := newChunker(t)

	var b strings.Builder
	b.WriteString("class Foo:\n")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, "    def method%d(self, arg):\n", i)
		b.WriteString("        total = arg * arg + arg\n")
		b.WriteString("        return total\n\n")
	}

	chunks := collect(t, c, "foo.py", b.String(), 25)
	require.NotEmpty(t, chunks)

	var classChunk *chunker.Chunk
	for i := range chunks {
		if strings.HasPrefix(chunks[i].Content, "class Foo") {
			classChunk = &chunks[i]
			break
		}
	}
	require.NotNil(t, classChunk, "expected a chunk for the class itself")
	assert.LessOrEqual(t, chunker.EstimateTokens(classChunk.Content), 25)

	// Each method still appears as its own chunk further down the walk.
	var methods int
	for _, ch := range chunks {
		if strings.HasPrefix(strings.TrimSpace(ch.Content), "def method") {
			methods++
		}
	}
	assert.Equal(t, 6, methods)
}

func TestOversizedMethodCarriesClassContext(t *testing.T) {
	c := newChunker(t)

	var b strings.Builder
	b.WriteString("class Widget:\n")
	b.WriteString("    def render(self, canvas, palette, depth):\n")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "        canvas.draw(%d, palette[%d %% len(palette)])\n", i, i)
	}

	chunks := collect(t, c, "widget.py", b.String(), 30)

	var found bool
	for _, ch := range chunks {
		if strings.HasPrefix(ch.Content, "class Widget:\n...\ndef render") {
			found = true
			assert.NotContains(t, ch.Content, "canvas.draw(40")
		}
	}
	assert.True(t, found, "expected collapsed method prefixed with its class header")
}

func TestCommentRunsCollapse(t *testing.T) {
	c := newChunker(t)

	src := `package main

func documented() {
	// step one
	// step two
	// step three
	// step four
	work()
}
`
	chunks := collect(t, c, "main.go", src, 512)
	require.NotEmpty(t, chunks)

	var ch chunker.Chunk
	for _, cand := range chunks {
		if strings.HasPrefix(cand.Content, "func documented") {
			ch = cand
		}
	}
	require.NotEmpty(t, ch.Content)
	assert.Contains(t, ch.Content, "// step one")
	assert.Contains(t, ch.Content, "// ...")
	assert.NotContains(t, ch.Content, "// step three")
}

func TestChunkIDsAreContentAddressed(t *testing.T) {
	c := newChunker(t)
	src := "package main\n\nfunc a() {}\n\nfunc b() {}\n"

	first := collect(t, c, "main.go", src, 512)
	second := collect(t, c, "main.go", src, 512)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Len(t, first[i].ID, 32) // 16 bytes hex encoded
	}

	// A different path changes every identity.
	moved := collect(t, c, "other.go", src, 512)
	for i := range first {
		assert.NotEqual(t, first[i].ID, moved[i].ID)
	}
}

func TestReferences(t *testing.T) {
	c := newChunker(t)
	src := `package main

func run() {
	setup()
	client.Fetch()
}
`
	refs, err := c.References("main.go", []byte(src))
	require.NoError(t, err)

	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Name
	}
	assert.Contains(t, names, "setup")
	assert.Contains(t, names, "Fetch")
	for _, r := range refs {
		assert.Equal(t, "call", r.Kind)
		assert.Greater(t, r.Line, 0)
	}
}

func TestReferencesUnknownLanguage(t *testing.T) {
	c := newChunker(t)
	refs, err := c.References("data.json", []byte("{}"))
	assert.NoError(t, err)
	assert.Nil(t, refs)
}

package chunker_test

import (
	"strings"
	"testing"

	"github.com/momo-mem/momo/internal/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_UnsupportedContentTypeIsRejected(t *testing.T) {
	r := chunker.NewRegistry()
	_, err := r.Chunk("whatever", "bogus", chunker.Options{ChunkSize: 100, ChunkOverlap: 10})
	require.Error(t, err)
}

func TestRegistry_RoutesPlainText(t *testing.T) {
	r := chunker.NewRegistry()
	chunks, err := r.Chunk("Hello world. This is a test.", "text", chunker.Options{ChunkSize: 1000, ChunkOverlap: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Hello world")
}

func TestPlainChunker_SplitsLongContentWithOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("This is sentence number filler text to pad things out. ")
	}
	p := &chunker.PlainChunker{}
	chunks, err := p.Chunk(sb.String(), chunker.Options{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.NotEmpty(t, c.Content)
		assert.Greater(t, c.TokenCount, 0)
	}
}

func TestPlainChunker_EmptyContentProducesNoChunks(t *testing.T) {
	p := &chunker.PlainChunker{}
	chunks, err := p.Chunk("   \n  ", chunker.Options{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMarkdownChunker_PrefersHeadingBoundaries(t *testing.T) {
	content := strings.Repeat("Filler sentence text here. ", 40) +
		"\n\n# Section Two\n\n" + strings.Repeat("More filler text content. ", 40)
	m := &chunker.MarkdownChunker{}
	chunks, err := m.Chunk(content, chunker.Options{ChunkSize: 60, ChunkOverlap: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
}

func TestCodeChunker_OneChunkPerTopLevelDeclaration(t *testing.T) {
	content := "package main\n\nimport \"fmt\"\n\nfunc Foo() {\n\tfmt.Println(\"foo\")\n}\n\nfunc Bar() {\n\tfmt.Println(\"bar\")\n}\n"
	c := &chunker.CodeChunker{}
	chunks, err := c.Chunk(content, chunker.Options{ChunkSize: 1000, ChunkOverlap: 0})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "func Foo")
	assert.Contains(t, chunks[1].Content, "func Bar")
	assert.Contains(t, chunks[1].Content, "import \"fmt\"")
}

func TestStructuredChunker_GroupsRowsWithHeader(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,name\n")
	for i := 0; i < 120; i++ {
		sb.WriteString("1,row\n")
	}
	s := &chunker.StructuredChunker{}
	chunks, err := s.Chunk(sb.String(), chunker.Options{})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Contains(t, c.Content, "id,name")
	}
}

func TestWebpageChunker_StripsTagsBeforeFallback(t *testing.T) {
	r := chunker.NewRegistry()
	html := "<html><head><style>.x{}</style></head><body><nav>menu</nav><p>Real content here.</p></body></html>"
	chunks, err := r.Chunk(html, "webpage", chunker.Options{ChunkSize: 1000, ChunkOverlap: 10})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "Real content here")
	assert.NotContains(t, chunks[0].Content, "<p>")
	assert.NotContains(t, chunks[0].Content, "menu")
}

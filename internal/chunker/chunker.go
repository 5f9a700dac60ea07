// Package chunker routes document content to a type-specific splitter and
// returns ordered, token-counted chunks ready for embedding.
package chunker

import (
	"fmt"
	"strings"

	"github.com/momo-mem/momo/pkg/errs"
)

// Chunk is one ordered piece of a document's content, not yet embedded.
type Chunk struct {
	Content    string
	TokenCount int
	Metadata   map[string]string
}

// Chunker splits content of one content type into ordered chunks.
type Chunker interface {
	Chunk(content string, opts Options) ([]Chunk, error)
}

// Options carries the size knobs shared by every chunker.
type Options struct {
	ChunkSize    int // target tokens per chunk
	ChunkOverlap int // overlap tokens between consecutive chunks
}

// Registry dispatches by detected content type to a concrete Chunker.
// Construction mirrors the provider factory: a small static switch on the
// exact content-type string, not a reflection-based dispatch.
type Registry struct {
	plain      Chunker
	markdown   Chunker
	code       Chunker
	structured Chunker
	webpage    Chunker
}

func NewRegistry() *Registry {
	plain := &PlainChunker{}
	return &Registry{
		plain:      plain,
		markdown:   &MarkdownChunker{},
		code:       &CodeChunker{},
		structured: &StructuredChunker{},
		webpage:    &WebpageChunker{fallback: plain},
	}
}

// Chunk dispatches content to the chunker registered for contentType, one
// of the types.DocumentContentType values. Unknown types are rejected with
// errs.ErrInvalidRequest wrapped as UnsupportedContentType, per the
// ingestion pipeline's extract step.
func (r *Registry) Chunk(content, contentType string, opts Options) ([]Chunk, error) {
	c, ok := r.lookup(contentType)
	if !ok {
		return nil, fmt.Errorf("chunker: unsupported content type %q: %w", contentType, errs.ErrInvalidRequest)
	}
	return c.Chunk(content, opts)
}

// lookup maps a types.DocumentContentType string to the chunker that
// handles it. Binary formats without a concrete Extractor (pdf, docx, pptx,
// image, audio, video) fall back to the plain chunker over whatever
// text the caller already extracted, and "unknown" does the same.
func (r *Registry) lookup(contentType string) (Chunker, bool) {
	switch strings.ToLower(contentType) {
	case "markdown":
		return r.markdown, true
	case "code":
		return r.code, true
	case "csv", "xlsx":
		return r.structured, true
	case "webpage":
		return r.webpage, true
	case "text", "pdf", "docx", "pptx", "image", "audio", "video", "unknown":
		return r.plain, true
	default:
		return nil, false
	}
}

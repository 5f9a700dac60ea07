// Package providers defines the capability contracts the memory engine
// uses to reach outside its own process — embeddings, text completion,
// reranking, and content extraction — plus a factory that builds concrete
// implementations from a "provider/model" configuration string.
package providers

import "context"

// Embedder turns text into vectors for storage and similarity search.
// All vectors returned by a single Embedder must share Dimension().
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// Model reports the embedding model's name, recorded on every memory's
	// EmbeddingModel field. The embedding-fingerprint check compares the
	// configured model string instead.
	Model() string
}

// LLM completes prompts and, where the backend supports it, extracts
// structured output against a caller-supplied schema.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// CompleteStructured asks the model to fill schema and decodes the
	// result into out. Implementations that lack native structured output
	// fall back to prompting for JSON and decoding the response body.
	CompleteStructured(ctx context.Context, prompt string, schema any, out any) error
	Model() string
}

// Reranker scores passages against a query for the optional cross-encoder
// rerank pass in the Search Service.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// ExtractHints carries caller-known context (declared content type, source
// filename) that an Extractor may use to pick a parsing strategy.
type ExtractHints struct {
	DeclaredContentType string
	SourceURL           string
}

// Extractor pulls plain text out of binary or semi-structured input
// (PDF, HTML, images via OCR) ahead of chunking. refinedType reports a
// more specific content type than hints.DeclaredContentType when the
// extractor can tell (e.g. "application/pdf" detected from a webpage
// fetch declared as "text/html").
type Extractor interface {
	Extract(ctx context.Context, data []byte, hints ExtractHints) (text string, refinedType string, err error)
}

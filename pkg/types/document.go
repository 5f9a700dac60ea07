package types

import "time"

// Document is a unit of ingested content: a conversation transcript, a file,
// or arbitrary text submitted by a client. It is processed by the ingestion
// pipeline into chunks and, optionally, extracted memories.
type Document struct {
	ID           string              `json:"id"`
	SourceURL    string              `json:"source_url,omitempty"`
	ContentType  DocumentContentType `json:"content_type"`
	Title        string              `json:"title,omitempty"`
	Summary      string              `json:"summary,omitempty"`
	Status       DocumentStatus      `json:"status"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ContainerTag string              `json:"container_tag"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is an embedded slice of a Document's content. Chunks are created in
// a single transactional batch during ingestion; RequeueAllForRebuild
// clears their embeddings in place.
type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	TokenCount int                    `json:"token_count"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MemorySource links a memory back to the document/chunk it was extracted
// from. Used by hybrid search to suppress a chunk result when a latest,
// non-forgotten memory is sourced from it, whether or not that memory is in
// the result set.
type MemorySource struct {
	MemoryID   string  `json:"memory_id"`
	DocumentID *string `json:"document_id,omitempty"`
	ChunkID    *string `json:"chunk_id,omitempty"`
}

// SystemMetadata is a persisted key/value row. Momo uses it to record the
// embedding model fingerprint, embedding dimension, and schema version, read
// at startup to detect a dimension mismatch and drive migration.
type SystemMetadata struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	MetaKeyEmbeddingModel     = "embedding_model"
	MetaKeyEmbeddingDimension = "embedding_dimension"
	MetaKeySchemaVersion      = "schema_version"
)

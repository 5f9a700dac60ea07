package storage

import (
	"context"
	"time"

	"github.com/momo-mem/momo/pkg/types"
)

// DocumentStore is the typed repository over documents. Delete cascades to
// chunks and to memory-source links referencing the document; memories
// sourced from it remain.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocuments(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Document], error)
	UpdateDocument(ctx context.Context, doc *types.Document) error
	UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus, errMsg string) error
	DeleteDocument(ctx context.Context, id string) error
	// RequeueAllForRebuild sets every document back to "queued" and clears
	// chunk embeddings, used by the dimension-mismatch migration path.
	RequeueAllForRebuild(ctx context.Context) (int, error)
}

// ChunkStore is the typed repository over chunks. InsertChunks is
// transactional and all-or-nothing, matching the ingestion pipeline's index
// step.
type ChunkStore interface {
	InsertChunks(ctx context.Context, documentID string, chunks []*types.Chunk) error
	GetChunk(ctx context.Context, id string) (*types.Chunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
}

// MemStore is the typed repository over memories.
type MemStore interface {
	CreateMemory(ctx context.Context, mem *types.Memory) error
	GetMemory(ctx context.Context, id string) (*types.Memory, error)
	// GetLatestByContentHash backs the memory-creation sub-pipeline's
	// exact-content idempotence check.
	GetLatestByContentHash(ctx context.Context, containerTag, hash string) (*types.Memory, error)
	ListMemories(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)
	UpdateMemory(ctx context.Context, mem *types.Memory) error
	// SetLatest flips is_latest for a single memory row. Used inside the
	// atomic version-chain supersession transaction.
	SetLatest(ctx context.Context, id string, isLatest bool) error
	// SuperviseSupersession atomically flips oldID.is_latest=false and
	// inserts newMem in one transaction; failure before commit leaves the
	// old memory latest.
	SuperviseSupersession(ctx context.Context, oldID string, newMem *types.Memory) error
	ForgetMemory(ctx context.Context, id string, reason string) error
	ScheduleForget(ctx context.Context, id string, forgetAfter time.Time) error
	HardForgetDue(ctx context.Context, now time.Time) (int, error)
	TouchAccessed(ctx context.Context, ids []string, when time.Time) error
	DeleteMemory(ctx context.Context, id string) error
	GetEvolutionChain(ctx context.Context, id string) ([]*types.Memory, error)
	// IncrementSourceCount bumps source_count by 1 (reinforcement counter).
	IncrementSourceCount(ctx context.Context, id string) error
}

// MemorySourceStore links memories back to the document/chunk they were
// extracted from.
type MemorySourceStore interface {
	LinkMemorySource(ctx context.Context, link types.MemorySource) error
	GetMemorySourcesByDocument(ctx context.Context, documentID string) ([]types.MemorySource, error)
	// ChunksWithLatestMemory reports which of the given chunk ids have a
	// latest, non-forgotten memory sourced from them — the hybrid-search
	// dedup lookup.
	ChunksWithLatestMemory(ctx context.Context, chunkIDs []string) (map[string]bool, error)
}

// SearchProvider hides the vector index behind two calls returning
// {id, similarity} pairs, plus an FTS5-backed lexical path over memories
// the Search Service fuses in via RRF alongside the vector hits.
type SearchProvider interface {
	SearchSimilarChunks(ctx context.Context, queryVec []float32, k int, filter ChunkFilter) ([]Similarity, error)
	SearchSimilarMemories(ctx context.Context, queryVec []float32, k int, filter MemoryFilter) ([]Similarity, error)
	// FullTextSearchMemories returns memory ids ranked by FTS5 match quality,
	// best first. No similarity score is returned — rank position is the
	// only signal, fused via RRF rather than threshold-filtered.
	FullTextSearchMemories(ctx context.Context, queryText string, k int, filter MemoryFilter) ([]string, error)
}

// GraphProvider performs a bounded BFS from a seed memory.
type GraphProvider interface {
	Traverse(ctx context.Context, seedID string, bounds GraphBounds) (*GraphResult, error)
}

// SystemMetadataStore persists the embedding-model fingerprint, dimension,
// and schema version read at startup to detect a dimension mismatch.
type SystemMetadataStore interface {
	GetSystemMetadata(ctx context.Context, key string) (string, bool, error)
	SetSystemMetadata(ctx context.Context, key, value string) error
}

// Store is the full contract the engine layer depends on. A single backend
// (sqlite) implements all of it; tests may compose fakes per sub-interface.
type Store interface {
	DocumentStore
	ChunkStore
	MemStore
	MemorySourceStore
	SearchProvider
	GraphProvider
	SystemMetadataStore

	Close() error
}

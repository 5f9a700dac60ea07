// Package storage defines the Store contract: typed CRUD and query
// operations over documents, chunks, memories, memory sources, and system
// metadata, plus the vector-search and graph-traversal surfaces the engine
// layer composes against.
package storage

import (
	"fmt"
	"time"

	"github.com/momo-mem/momo/pkg/errs"
	"github.com/momo-mem/momo/pkg/types"
)

// Re-exported for convenience so callers need not import pkg/errs directly
// when they already import storage.
var (
	ErrNotFound            = errs.ErrNotFound
	ErrInvalidInput        = errs.ErrInvalidRequest
	ErrConflict            = errs.ErrConflict
	ErrBackendUnavailable  = errs.ErrDependencyUnavailable
	ErrGraphBoundsExceeded = errs.ErrGraphBoundsExceeded
)

// PaginatedResult is a page of T plus the cursor/count bookkeeping callers
// need to keep paging.
type PaginatedResult[T any] struct {
	Items      []T
	Total      int
	HasMore    bool
	NextCursor string
}

// ListOptions drives List queries across Document/Memory stores. SortBy is
// validated against one shared whitelist to avoid SQL injection via dynamic
// ORDER BY clauses.
type ListOptions struct {
	Cursor    string
	Limit     int
	SortBy    string
	SortOrder string // "asc" | "desc"

	ContainerTag      string
	IncludeLatestOnly bool // memories: is_latest=true
	IncludeForgotten  bool // memories: include is_forgotten=true rows
	Classification    types.MemoryClassification
	Status            types.DocumentStatus
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
}

// sortByWhitelist is the set of columns callers may sort on; anything else
// silently falls back to the default.
var sortByWhitelist = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"version":    true,
}

// Normalize clamps Limit to (0,100], defaults SortBy/SortOrder, and rejects
// an unknown SortBy in favor of "created_at".
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.SortBy == "" || !sortByWhitelist[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" {
		o.SortOrder = "desc"
	}
}

// Similarity is one hit from a vector-search call: an entity id paired with
// its cosine similarity in [-1,1].
type Similarity struct {
	ID         string
	Similarity float64
}

// ChunkFilter scopes search_similar_chunks.
type ChunkFilter struct {
	ContainerTag string
}

// MemoryFilter scopes search_similar_memories. The zero value applies the
// standard search filter (is_latest=true, is_forgotten=false); set
// IncludeAllVersions/IncludeForgotten to relax it.
type MemoryFilter struct {
	ContainerTag       string
	IncludeAllVersions bool
	IncludeForgotten   bool
	Classification     types.MemoryClassification
	ExcludeID          string
}

// GraphBounds limits a bounded graph traversal to prevent combinatorial
// explosion. Normalize applies default caps.
type GraphBounds struct {
	MaxHops  int
	MaxNodes int
	MaxEdges int
	Timeout  time.Duration

	RelationTypes []types.RelationType // nil = all
}

func (b *GraphBounds) Normalize() {
	if b.MaxHops <= 0 {
		b.MaxHops = 3
	}
	if b.MaxHops > 10 {
		b.MaxHops = 10
	}
	if b.MaxNodes <= 0 {
		b.MaxNodes = 100
	}
	if b.MaxNodes > 1000 {
		b.MaxNodes = 1000
	}
	if b.MaxEdges <= 0 {
		b.MaxEdges = 500
	}
	if b.MaxEdges > 5000 {
		b.MaxEdges = 5000
	}
	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.Timeout > 5*time.Minute {
		b.Timeout = 5 * time.Minute
	}
}

// GraphNode and GraphEdge are the bounded BFS payload the Graph View returns.
type GraphNode struct {
	ID             string                      `json:"id"`
	ContentPreview string                      `json:"content_preview"`
	Classification types.MemoryClassification `json:"classification"`
}

type GraphEdge struct {
	From string             `json:"from"`
	To   string             `json:"to"`
	Type types.RelationType `json:"type"`
}

type GraphResult struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphEdge `json:"links"`
}

// wrapf wraps kind with a formatted message. It is unexported, so the
// sqlite package cannot call it.
func wrapf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

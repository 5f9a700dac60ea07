package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/errs"
	"github.com/momo-mem/momo/pkg/types"
)

// fakeStore is a minimal in-memory storage.Store used across engine package
// tests so the Forgetting Manager, Inference Engine, and Profile/Graph View
// can be exercised without a real sqlite database.
type fakeStore struct {
	mu        sync.Mutex
	memories  map[string]*types.Memory
	documents map[string]*types.Document
	chunks    map[string][]*types.Chunk
	sources   []types.MemorySource
	meta      map[string]string
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:  map[string]*types.Memory{},
		documents: map[string]*types.Document{},
		chunks:    map[string][]*types.Chunk{},
		meta:      map[string]string{},
	}
}

func (s *fakeStore) CreateDocument(ctx context.Context, doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *fakeStore) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return d, nil
}

// ListDocuments implements the one filter the ingestion recovery sweep
// actually needs: by Status, with a cursor holding the id of the last item
// returned.
func (s *fakeStore) ListDocuments(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Document], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts.Normalize()

	var items []types.Document
	for _, d := range s.documents {
		if opts.Status != "" && d.Status != opts.Status {
			continue
		}
		items = append(items, *d)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	start := 0
	if opts.Cursor != "" {
		for i, it := range items {
			if it.ID == opts.Cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + opts.Limit
	if end > len(items) {
		end = len(items)
	}
	if start > len(items) {
		start = len(items)
	}
	page := items[start:end]

	result := &storage.PaginatedResult[types.Document]{Items: page, Total: len(items)}
	if end < len(items) {
		result.HasMore = true
		result.NextCursor = page[len(page)-1].ID
	}
	return result, nil
}

func (s *fakeStore) UpdateDocument(ctx context.Context, doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *fakeStore) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus, errMsg string) error {
	return nil
}

func (s *fakeStore) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	return nil
}

func (s *fakeStore) RequeueAllForRebuild(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *fakeStore) InsertChunks(ctx context.Context, documentID string, chunks []*types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = chunks
	return nil
}

func (s *fakeStore) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	return nil, errs.ErrNotFound
}

func (s *fakeStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[documentID], nil
}

func (s *fakeStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

func (s *fakeStore) CreateMemory(ctx context.Context, mem *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *mem
	s.memories[mem.ID] = &cp
	return nil
}

func (s *fakeStore) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) GetLatestByContentHash(ctx context.Context, containerTag, hash string) (*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memories {
		if m.ContainerTag == containerTag && m.ContentHash == hash && m.IsLatest {
			return m, nil
		}
	}
	return nil, errs.ErrNotFound
}

// ListMemories implements the one page of filtering/sorting the engine
// components actually exercise: container tag, classification,
// latest-only, and created_at/updated_at ordering, with a simple cursor
// holding the id of the last item returned.
func (s *fakeStore) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts.Normalize()

	var items []types.Memory
	for _, m := range s.memories {
		if opts.ContainerTag != "" && m.ContainerTag != opts.ContainerTag {
			continue
		}
		if opts.Classification != "" && m.Classification != opts.Classification {
			continue
		}
		if opts.IncludeLatestOnly && !m.IsLatest {
			continue
		}
		if !opts.IncludeForgotten && m.IsForgotten {
			continue
		}
		items = append(items, *m)
	}

	sort.Slice(items, func(i, j int) bool {
		var less bool
		if opts.SortBy == "updated_at" {
			less = items[i].UpdatedAt.Before(items[j].UpdatedAt)
		} else {
			less = items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		if opts.SortOrder == "desc" {
			return !less
		}
		return less
	})

	start := 0
	if opts.Cursor != "" {
		for i, it := range items {
			if it.ID == opts.Cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + opts.Limit
	if end > len(items) {
		end = len(items)
	}
	if start > len(items) {
		start = len(items)
	}
	page := items[start:end]

	result := &storage.PaginatedResult[types.Memory]{Items: page, Total: len(items)}
	if end < len(items) {
		result.HasMore = true
		result.NextCursor = page[len(page)-1].ID
	}
	return result, nil
}

func (s *fakeStore) UpdateMemory(ctx context.Context, mem *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *mem
	s.memories[mem.ID] = &cp
	return nil
}

func (s *fakeStore) SetLatest(ctx context.Context, id string, isLatest bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		m.IsLatest = isLatest
	}
	return nil
}

func (s *fakeStore) SuperviseSupersession(ctx context.Context, oldID string, newMem *types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.memories[oldID]; ok {
		old.IsLatest = false
	}
	cp := *newMem
	s.memories[newMem.ID] = &cp
	return nil
}

func (s *fakeStore) ForgetMemory(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		m.IsForgotten = true
		m.ForgetReason = &reason
	}
	return nil
}

func (s *fakeStore) ScheduleForget(ctx context.Context, id string, forgetAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		t := forgetAfter
		m.ForgetAfter = &t
	}
	return nil
}

func (s *fakeStore) HardForgetDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.memories {
		if m.ForgetAfter != nil && !m.IsForgotten && m.ForgetAfter.Before(now) {
			m.IsForgotten = true
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) TouchAccessed(ctx context.Context, ids []string, when time.Time) error {
	return nil
}

func (s *fakeStore) DeleteMemory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	return nil
}

func (s *fakeStore) GetEvolutionChain(ctx context.Context, id string) ([]*types.Memory, error) {
	return nil, nil
}

func (s *fakeStore) IncrementSourceCount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.memories[id]; ok {
		m.SourceCount++
	}
	return nil
}

func (s *fakeStore) LinkMemorySource(ctx context.Context, link types.MemorySource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, link)
	return nil
}

func (s *fakeStore) GetMemorySourcesByDocument(ctx context.Context, documentID string) ([]types.MemorySource, error) {
	return nil, nil
}

func (s *fakeStore) ChunksWithLatestMemory(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (s *fakeStore) SearchSimilarChunks(ctx context.Context, queryVec []float32, k int, filter storage.ChunkFilter) ([]storage.Similarity, error) {
	return nil, nil
}

// FullTextSearchMemories does a naive substring match over content, ranked
// by earliest match index, standing in for FTS5 ranking in tests that don't
// exercise a real sqlite store.
func (s *fakeStore) FullTextSearchMemories(ctx context.Context, queryText string, k int, filter storage.MemoryFilter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type hit struct {
		id  string
		pos int
	}
	var hits []hit
	q := strings.ToLower(queryText)
	for _, m := range s.memories {
		if filter.ContainerTag != "" && m.ContainerTag != filter.ContainerTag {
			continue
		}
		if !filter.IncludeAllVersions && !m.IsLatest {
			continue
		}
		if !filter.IncludeForgotten && m.IsForgotten {
			continue
		}
		pos := strings.Index(strings.ToLower(m.Content), q)
		if pos < 0 {
			continue
		}
		hits = append(hits, hit{id: m.ID, pos: pos})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// SearchSimilarMemories computes cosine similarity in pure Go, exactly the
// shape the real sqlite-backed vector.go implements, over the in-memory set.
func (s *fakeStore) SearchSimilarMemories(ctx context.Context, queryVec []float32, k int, filter storage.MemoryFilter) ([]storage.Similarity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []storage.Similarity
	for _, m := range s.memories {
		if filter.ContainerTag != "" && m.ContainerTag != filter.ContainerTag {
			continue
		}
		if filter.ExcludeID != "" && m.ID == filter.ExcludeID {
			continue
		}
		if !filter.IncludeAllVersions && !m.IsLatest {
			continue
		}
		if !filter.IncludeForgotten && m.IsForgotten {
			continue
		}
		if len(m.Embedding) == 0 || len(queryVec) == 0 {
			continue
		}
		hits = append(hits, storage.Similarity{ID: m.ID, Similarity: cosine(queryVec, m.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (s *fakeStore) Traverse(ctx context.Context, seedID string, bounds storage.GraphBounds) (*storage.GraphResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bounds.Normalize()

	seed, ok := s.memories[seedID]
	if !ok {
		return &storage.GraphResult{}, nil
	}
	result := &storage.GraphResult{
		Nodes: []storage.GraphNode{{ID: seed.ID, ContentPreview: seed.Content, Classification: seed.Classification}},
	}
	for targetID, relType := range seed.MemoryRelations {
		target, ok := s.memories[targetID]
		if !ok {
			continue
		}
		result.Nodes = append(result.Nodes, storage.GraphNode{ID: target.ID, ContentPreview: target.Content, Classification: target.Classification})
		result.Links = append(result.Links, storage.GraphEdge{From: seed.ID, To: target.ID, Type: relType})
	}
	return result, nil
}

func (s *fakeStore) GetSystemMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.meta[key]
	return v, ok, nil
}

func (s *fakeStore) SetSystemMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *fakeStore) Close() error { return nil }

package engine

import (
	"context"
	"math"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/momo-mem/momo/internal/providers"
	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// rrfK is the Reciprocal Rank Fusion constant: score contribution of a rank
// r is 1/(rrfK+r). 60 is the standard value from the RRF literature.
const rrfK = 60.0

// SearchOptions is the Search Service's unified entrypoint input.
type SearchOptions struct {
	Query         string
	Scope         types.SearchScope
	ContainerTags []string
	Threshold     float64
	Limit         int
	Rerank        bool
	Rewrite       bool
	IncludeHistory bool
}

// SearchResult is one hit, discriminated by Kind.
type SearchResult struct {
	Kind       types.ResultKind
	MemoryID   string
	DocumentID string
	ChunkID    string
	Content    string
	Score      float64
	UpdatedAt  time.Time
}

// SearchResponse is the Search Service's return envelope.
type SearchResponse struct {
	Results  []SearchResult
	Total    int
	TimingMs int64
}

// SearchService executes hybrid vector+FTS search over chunks and memories,
// applying temporal resolution, episode decay, an optional cross-encoder
// rerank pass, and last_accessed touch-ups. Chunk vector hits, memory vector
// hits, and memory FTS5 hits all merge via RRF score fusion, with a
// memory-source-link dedup pass so a chunk already covered by a latest
// memory doesn't surface twice.
type SearchService struct {
	cfg      Config
	store    storage.Store
	embedder providers.Embedder
	llm      providers.LLM
	reranker providers.Reranker

	rewriteCache *lru.Cache[string, string]
}

// NewSearchService builds a SearchService. llm and reranker may be nil to
// disable query rewrite and reranking respectively.
func NewSearchService(cfg Config, store storage.Store, embedder providers.Embedder, llm providers.LLM, reranker providers.Reranker) *SearchService {
	size := cfg.QueryRewriteCacheSize
	if size <= 0 {
		size = 256
	}
	cache, _ := lru.New[string, string](size)
	return &SearchService{cfg: cfg, store: store, embedder: embedder, llm: llm, reranker: reranker, rewriteCache: cache}
}

// Search runs the full hybrid retrieval pipeline: embed the query, fan out
// to vector and full-text candidate search, fuse scores, resolve temporal
// scope, apply decay and an optional rerank pass, then dedup and touch
// last-accessed timestamps on the surfaced memories.
func (s *SearchService) Search(ctx context.Context, opts SearchOptions) (*SearchResponse, error) {
	start := time.Now()
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Scope == "" {
		opts.Scope = types.ScopeHybrid
	}
	containerTag := ""
	if len(opts.ContainerTags) > 0 {
		containerTag = opts.ContainerTags[0]
	}

	// Step 1: optional query rewrite, cached by query string, deadline-bound.
	query := opts.Query
	if opts.Rewrite && s.cfg.EnableQueryRewrite && s.llm != nil {
		query = s.rewriteQuery(ctx, opts.Query)
	}

	// Step 2: embed.
	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[0]

	// Step 3: parallel vector + full-text search by scope. Memory scope fans
	// out to both SearchSimilarMemories (vector) and FullTextSearchMemories
	// (FTS5 over the memories_fts virtual table) so the two candidate sets
	// fuse via RRF below, the "hybrid FTS+vector search" the Search Service
	// promises.
	var chunkHits []storage.Similarity
	var memHits []storage.Similarity
	var ftsHitIDs []string
	errCh := make(chan error, 3)
	fanOut := 0

	if opts.Scope == types.ScopeDocuments || opts.Scope == types.ScopeHybrid {
		fanOut++
		go func() {
			sims, err := s.store.SearchSimilarChunks(ctx, queryVec, opts.Limit*2, storage.ChunkFilter{ContainerTag: containerTag})
			if err != nil {
				errCh <- err
				return
			}
			chunkHits = sims
			errCh <- nil
		}()
	}
	if opts.Scope == types.ScopeMemories || opts.Scope == types.ScopeHybrid {
		fanOut++
		go func() {
			sims, err := s.store.SearchSimilarMemories(ctx, queryVec, opts.Limit*2, storage.MemoryFilter{ContainerTag: containerTag})
			if err != nil {
				errCh <- err
				return
			}
			memHits = sims
			errCh <- nil
		}()
		fanOut++
		go func() {
			ids, err := s.store.FullTextSearchMemories(ctx, query, opts.Limit*2, storage.MemoryFilter{ContainerTag: containerTag})
			if err != nil {
				// FTS is a fusion signal, not a hard dependency; a query the
				// FTS5 tokenizer rejects (or a backend error) degrades to
				// vector-only results instead of failing the whole search.
				errCh <- nil
				return
			}
			ftsHitIDs = ids
			errCh <- nil
		}()
	}
	for i := 0; i < fanOut; i++ {
		if err := <-errCh; err != nil {
			return nil, err
		}
	}
	ftsRank := make(map[string]int, len(ftsHitIDs))
	for i, id := range ftsHitIDs {
		ftsRank[id] = i + 1
	}

	// Step 4/5: temporal resolution + episode decay, applied per memory hit.
	// FTS-only hits (present in ftsHitIDs but not in the vector memHits) are
	// pulled in here too so they get the same decay treatment and a seat in
	// the RRF fusion below, not just a score bump on hits vector search
	// already found.
	var decayedMem []storage.Similarity
	var memByID = map[string]*types.Memory{}
	viaVector := make(map[string]bool, len(memHits))
	loadMemHit := func(id string, vectorSimilarity float64, fromVector bool) {
		if fromVector {
			viaVector[id] = true
		}
		if _, ok := memByID[id]; ok {
			return
		}
		mem, err := s.store.GetMemory(ctx, id)
		if err != nil {
			return
		}
		if opts.IncludeHistory {
			mem = s.resolveLatest(ctx, mem)
		}
		score := vectorSimilarity
		if mem.Classification == types.ClassificationEpisode {
			score *= episodeDecayMultiplier(mem, s.cfg.EpisodeDecayFactor, s.cfg.EpisodeDecayDays)
		}
		decayedMem = append(decayedMem, storage.Similarity{ID: mem.ID, Similarity: score})
		memByID[mem.ID] = mem
	}
	for _, hit := range memHits {
		loadMemHit(hit.ID, hit.Similarity, true)
	}
	for _, id := range ftsHitIDs {
		loadMemHit(id, 0, false)
	}

	// Step 6: threshold filter, then merge via RRF. A chunk's vector
	// similarity gates chunk results; an FTS-only memory hit has no vector
	// score to gate on, so it bypasses the threshold. In mergeRRF it is
	// ranked after every vector hit in the memory list, plus its FTS-rank
	// term.
	var filteredMem []storage.Similarity
	var ftsOnly []storage.Similarity
	for _, m := range decayedMem {
		if viaVector[m.ID] {
			filteredMem = append(filteredMem, m)
			continue
		}
		ftsOnly = append(ftsOnly, m)
	}
	filteredMem = thresholdFilter(filteredMem, opts.Threshold)
	filteredMem = append(filteredMem, ftsOnly...)
	filteredChunk := thresholdFilter(chunkHits, opts.Threshold)

	merged := s.mergeRRF(ctx, filteredChunk, filteredMem, memByID, ftsRank)

	// Step 7: optional rerank.
	if (opts.Rerank || s.cfg.RerankEnabled) && s.reranker != nil && len(merged) > 0 {
		merged = s.rerank(ctx, query, merged)
	}

	sortResults(merged)
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}

	// Step 8: touch last_accessed for every memory in the final result set.
	var touchIDs []string
	for _, r := range merged {
		if r.Kind == types.ResultKindMemory {
			touchIDs = append(touchIDs, r.MemoryID)
		}
	}
	if len(touchIDs) > 0 {
		_ = s.store.TouchAccessed(ctx, touchIDs, time.Now())
	}

	return &SearchResponse{
		Results:  merged,
		Total:    len(merged),
		TimingMs: time.Since(start).Milliseconds(),
	}, nil
}

func (s *SearchService) rewriteQuery(ctx context.Context, query string) string {
	if cached, ok := s.rewriteCache.Get(query); ok {
		return cached
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryRewriteTimeout)
	defer cancel()
	prompt := "Rewrite the following search query to be more specific and retrieval-friendly, preserving its meaning. Return only the rewritten query.\nQuery: " + query
	rewritten, err := s.llm.Complete(ctx, prompt)
	if err != nil || rewritten == "" {
		return query
	}
	s.rewriteCache.Add(query, rewritten)
	return rewritten
}

func (s *SearchService) resolveLatest(ctx context.Context, mem *types.Memory) *types.Memory {
	if mem.IsLatest {
		return mem
	}
	chain, err := s.store.GetEvolutionChain(ctx, mem.ID)
	if err != nil || len(chain) == 0 {
		return mem
	}
	latest := mem
	for _, m := range chain {
		if m.IsLatest {
			latest = m
			break
		}
	}
	return latest
}

// episodeDecayMultiplier computes
// EPISODE_DECAY_FACTOR ^ (days_since_last_access / EPISODE_DECAY_DAYS).
func episodeDecayMultiplier(mem *types.Memory, factor, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0
	}
	ref := mem.CreatedAt
	if mem.LastAccessed != nil {
		ref = *mem.LastAccessed
	}
	days := time.Since(ref).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Pow(factor, days/halfLifeDays)
}

func thresholdFilter(sims []storage.Similarity, threshold float64) []storage.Similarity {
	if threshold <= 0 {
		return sims
	}
	out := sims[:0]
	for _, s := range sims {
		if s.Similarity >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// mergeRRF fuses chunk and memory hits via Reciprocal Rank Fusion, folding
// in each memory's FTS5 rank (if any) as a second ranked list over the same
// candidates, then suppresses a chunk result when any latest, non-forgotten
// memory was sourced from that chunk or its document. Whether that memory
// is itself in the merged set is not checked.
func (s *SearchService) mergeRRF(ctx context.Context, chunkHits []storage.Similarity, memHits []storage.Similarity, memByID map[string]*types.Memory, ftsRank map[string]int) []SearchResult {
	chunkRank := rankOf(chunkHits)
	memRank := rankOf(memHits)

	chunkIDs := make([]string, 0, len(chunkHits))
	for _, h := range chunkHits {
		chunkIDs = append(chunkIDs, h.ID)
	}
	sourced, _ := s.store.ChunksWithLatestMemory(ctx, chunkIDs)

	var results []SearchResult
	for _, h := range chunkHits {
		if sourced[h.ID] {
			continue // suppressed: a latest memory already sourced from this chunk
		}
		chunk, err := lookupChunk(ctx, s.store, h.ID)
		if err != nil || chunk == nil {
			continue
		}
		results = append(results, SearchResult{
			Kind:       types.ResultKindDocument,
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
			Content:    chunk.Content,
			Score:      1.0 / (rrfK + float64(chunkRank[h.ID])),
			UpdatedAt:  chunk.CreatedAt,
		})
	}
	for _, h := range memHits {
		mem := memByID[h.ID]
		if mem == nil {
			continue
		}
		score := 1.0 / (rrfK + float64(memRank[h.ID]))
		if r, ok := ftsRank[h.ID]; ok {
			score += 1.0 / (rrfK + float64(r))
		}
		results = append(results, SearchResult{
			Kind:      types.ResultKindMemory,
			MemoryID:  mem.ID,
			Content:   mem.Content,
			Score:     score,
			UpdatedAt: mem.UpdatedAt,
		})
	}
	return results
}

func (s *SearchService) rerank(ctx context.Context, query string, results []SearchResult) []SearchResult {
	top := results
	if len(top) > s.cfg.RerankTopK {
		top = top[:s.cfg.RerankTopK]
	}
	passages := make([]string, len(top))
	for i, r := range top {
		passages[i] = r.Content
	}
	scores, err := s.reranker.Rerank(ctx, query, passages)
	if err != nil || len(scores) != len(top) {
		return results
	}
	for i := range top {
		top[i].Score = scores[i]
	}
	return append(append([]SearchResult{}, top...), results[len(top):]...)
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].UpdatedAt.Equal(results[j].UpdatedAt) {
			return results[i].UpdatedAt.After(results[j].UpdatedAt)
		}
		return resultID(results[i]) < resultID(results[j])
	})
}

func resultID(r SearchResult) string {
	if r.Kind == types.ResultKindMemory {
		return r.MemoryID
	}
	return r.ChunkID
}

func rankOf(sims []storage.Similarity) map[string]int {
	sorted := append([]storage.Similarity{}, sims...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Similarity > sorted[j].Similarity })
	out := make(map[string]int, len(sorted))
	for i, s := range sorted {
		out[s.ID] = i + 1
	}
	return out
}

func lookupChunk(ctx context.Context, store storage.Store, chunkID string) (*types.Chunk, error) {
	return store.GetChunk(ctx, chunkID)
}

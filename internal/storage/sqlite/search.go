package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/momo-mem/momo/internal/storage"
)

// vectorSearchMaxCandidates caps how many embeddings are loaded into Go
// memory per query. Candidates are pulled in recency order so the most
// recently written rows are always considered. Past this size a real ANN
// index (e.g. sqlite-vec, or migrating to a pgvector-backed deployment) is
// the right fix; for the embedded single-tenant deployments this module
// targets, the cap is never hit.
const vectorSearchMaxCandidates = 10_000

func (s *Store) SearchSimilarChunks(ctx context.Context, queryVec []float32, k int, filter storage.ChunkFilter) ([]storage.Similarity, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL
	`
	var args []interface{}
	if filter.ContainerTag != "" {
		query += " AND d.container_tag = ?"
		args = append(args, filter.ContainerTag)
	}
	query += " ORDER BY c.created_at DESC LIMIT ?"
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchSimilarChunks: %w", err)
	}
	defer rows.Close()

	var candidates []storage.Similarity
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		vec, err := unpackEmbedding(blob)
		if err != nil {
			continue
		}
		candidates = append(candidates, storage.Similarity{ID: id, Similarity: cosineSimilarity(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: SearchSimilarChunks rows: %w", err)
	}

	return topK(candidates, k), nil
}

func (s *Store) SearchSimilarMemories(ctx context.Context, queryVec []float32, k int, filter storage.MemoryFilter) ([]storage.Similarity, error) {
	if len(queryVec) == 0 {
		return nil, nil
	}

	query := `SELECT id, embedding FROM memories WHERE embedding IS NOT NULL`
	var args []interface{}
	if filter.ContainerTag != "" {
		query += " AND container_tag = ?"
		args = append(args, filter.ContainerTag)
	}
	if !filter.IncludeAllVersions {
		query += " AND is_latest = 1"
	}
	if !filter.IncludeForgotten {
		query += " AND is_forgotten = 0"
	}
	if filter.Classification != "" {
		query += " AND classification = ?"
		args = append(args, string(filter.Classification))
	}
	if filter.ExcludeID != "" {
		query += " AND id != ?"
		args = append(args, filter.ExcludeID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchSimilarMemories: %w", err)
	}
	defer rows.Close()

	var candidates []storage.Similarity
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		vec, err := unpackEmbedding(blob)
		if err != nil {
			continue
		}
		candidates = append(candidates, storage.Similarity{ID: id, Similarity: cosineSimilarity(queryVec, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: SearchSimilarMemories rows: %w", err)
	}

	return topK(candidates, k), nil
}

func topK(candidates []storage.Similarity, k int) []storage.Similarity {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// FullTextSearchMemories performs FTS5-backed lexical search over memory
// content, returning ids in rank order. Used by the Search Service's hybrid
// path alongside SearchSimilarMemories, merged with Reciprocal Rank Fusion.
func (s *Store) FullTextSearchMemories(ctx context.Context, queryText string, k int, filter storage.MemoryFilter) ([]string, error) {
	if queryText == "" {
		return nil, nil
	}
	ftsQuery := sanitiseFTSQuery(queryText)

	query := `
		SELECT m.id
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ?
	`
	args := []interface{}{ftsQuery}
	if filter.ContainerTag != "" {
		query += " AND m.container_tag = ?"
		args = append(args, filter.ContainerTag)
	}
	if !filter.IncludeAllVersions {
		query += " AND m.is_latest = 1"
	}
	if !filter.IncludeForgotten {
		query += " AND m.is_forgotten = 0"
	}
	query += " ORDER BY rank LIMIT ?"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FullTextSearchMemories MATCH %q: %w", queryText, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: FullTextSearchMemories scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ storage.SearchProvider = (*Store)(nil)

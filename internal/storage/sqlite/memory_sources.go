package sqlite

import (
	"context"
	"fmt"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

func (s *Store) LinkMemorySource(ctx context.Context, link types.MemorySource) error {
	if link.MemoryID == "" {
		return fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	var docID, chunkID interface{}
	if link.DocumentID != nil {
		docID = *link.DocumentID
	}
	if link.ChunkID != nil {
		chunkID = *link.ChunkID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO memory_sources (memory_id, document_id, chunk_id) VALUES (?, ?, ?)
	`, link.MemoryID, docID, chunkID)
	if err != nil {
		return fmt.Errorf("sqlite: LinkMemorySource: %w", err)
	}
	return nil
}

func (s *Store) GetMemorySourcesByDocument(ctx context.Context, documentID string) ([]types.MemorySource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, document_id, chunk_id FROM memory_sources WHERE document_id = ?
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetMemorySourcesByDocument: %w", err)
	}
	defer rows.Close()

	var links []types.MemorySource
	for rows.Next() {
		var l types.MemorySource
		var docID, chunkID *string
		if err := rows.Scan(&l.MemoryID, &docID, &chunkID); err != nil {
			return nil, fmt.Errorf("sqlite: GetMemorySourcesByDocument scan: %w", err)
		}
		l.DocumentID = docID
		l.ChunkID = chunkID
		links = append(links, l)
	}
	return links, rows.Err()
}

// ChunksWithLatestMemory reports which of the given chunk ids have a latest,
// non-forgotten memory sourced from them — the hybrid-search dedup lookup
// that suppresses a raw-chunk hit. It does not look at which memories are
// in a given result set.
func (s *Store) ChunksWithLatestMemory(ctx context.Context, chunkIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return result, nil
	}

	inClause := buildInClause(len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	// A chunk is suppressed when a latest, active memory is sourced from it
	// directly (ms.chunk_id) or from its parent document (ms.document_id) —
	// ingestion only ever links the document id, so the document_id match is
	// what actually makes the dedup fire in practice.
	query := fmt.Sprintf(`
		SELECT DISTINCT c.id
		FROM chunks c
		JOIN memory_sources ms ON ms.chunk_id = c.id OR ms.document_id = c.document_id
		JOIN memories m ON m.id = ms.memory_id
		WHERE c.id IN (%s) AND m.is_latest = 1 AND m.is_forgotten = 0
	`, inClause)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ChunksWithLatestMemory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, fmt.Errorf("sqlite: ChunksWithLatestMemory scan: %w", err)
		}
		result[chunkID] = true
	}
	return result, rows.Err()
}

func buildInClause(n int) string {
	if n == 0 {
		return ""
	}
	clause := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			clause = append(clause, ',')
		}
		clause = append(clause, '?')
	}
	return string(clause)
}

var _ storage.MemorySourceStore = (*Store)(nil)

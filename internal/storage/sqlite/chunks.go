package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

// InsertChunks writes all chunks for a document in a single transaction:
// the ingestion pipeline's index step must be all-or-nothing so a partial
// failure never leaves a document half-chunked.
func (s *Store) InsertChunks(ctx context.Context, documentID string, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: InsertChunks begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, chunk_index, content, token_count, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: InsertChunks prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metaJSON, err := marshalMeta(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.ChunkIndex, c.Content, c.TokenCount,
			packEmbedding(c.Embedding), nullableString(string(metaJSON)), c.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: InsertChunks exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: InsertChunks commit: %w", err)
	}
	return nil
}

func (s *Store) GetChunksByDocument(ctx context.Context, documentID string) ([]*types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, embedding, metadata, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetChunksByDocument: %w", err)
	}
	defer rows.Close()

	var chunks []*types.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: GetChunksByDocument scan: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetChunk looks up a single chunk by id, used by the Search Service to
// resolve a vector-search hit back into its content and owning document.
func (s *Store) GetChunk(ctx context.Context, id string) (*types.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, embedding, metadata, created_at
		FROM chunks WHERE id = ?
	`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: GetChunk %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetChunk: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("sqlite: DeleteChunksByDocument: %w", err)
	}
	return nil
}

func scanChunk(row rowScanner) (*types.Chunk, error) {
	var c types.Chunk
	var embeddingBlob []byte
	var metaJSON sql.NullString
	if err := row.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.TokenCount, &embeddingBlob, &metaJSON, &c.CreatedAt); err != nil {
		return nil, err
	}
	emb, err := unpackEmbedding(embeddingBlob)
	if err != nil {
		return nil, err
	}
	c.Embedding = emb
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
	}
	return &c, nil
}

var _ storage.ChunkStore = (*Store)(nil)

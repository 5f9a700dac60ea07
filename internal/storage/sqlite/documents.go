package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/momo-mem/momo/internal/storage"
	"github.com/momo-mem/momo/pkg/types"
)

func (s *Store) CreateDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidInput)
	}
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	if doc.Status == "" {
		doc.Status = types.DocStatusQueued
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source_url, content_type, title, summary, status, metadata, container_tag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, nullableString(doc.SourceURL), string(doc.ContentType), nullableString(doc.Title),
		nullableString(doc.Summary), string(doc.Status), nullableString(string(metaJSON)),
		doc.ContainerTag, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: CreateDocument: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_url, content_type, title, summary, status, metadata, container_tag, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetDocument: %w", err)
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Document], error) {
	opts.Normalize()

	var conditions []string
	var args []interface{}
	if opts.ContainerTag != "" {
		conditions = append(conditions, "container_tag = ?")
		args = append(args, opts.ContainerTag)
	}
	if opts.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.CreatedAfter != nil {
		conditions = append(conditions, "created_at > ?")
		args = append(args, *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, *opts.CreatedBefore)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	offset := decodeCursor(opts.Cursor)
	query := fmt.Sprintf(`
		SELECT id, source_url, content_type, title, summary, status, metadata, container_tag, created_at, updated_at
		FROM documents%s ORDER BY %s %s LIMIT ? OFFSET ?
	`, where, opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, append(append([]interface{}{}, args...), opts.Limit+1, offset)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListDocuments: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListDocuments scan: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: ListDocuments rows: %w", err)
	}

	var countTotal int
	countQuery := "SELECT COUNT(*) FROM documents" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&countTotal); err != nil {
		return nil, fmt.Errorf("sqlite: ListDocuments count: %w", err)
	}

	hasMore := len(docs) > opts.Limit
	if hasMore {
		docs = docs[:opts.Limit]
	}
	return &storage.PaginatedResult[types.Document]{
		Items:      docs,
		Total:      countTotal,
		HasMore:    hasMore,
		NextCursor: encodeCursor(offset + len(docs)),
	}, nil
}

func (s *Store) UpdateDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidInput)
	}
	metaJSON, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}
	doc.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET source_url=?, content_type=?, title=?, summary=?, status=?, metadata=?, updated_at=?
		WHERE id = ?
	`, nullableString(doc.SourceURL), string(doc.ContentType), nullableString(doc.Title),
		nullableString(doc.Summary), string(doc.Status), nullableString(string(metaJSON)), doc.UpdatedAt, doc.ID)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateDocument: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus, errMsg string) error {
	var meta map[string]interface{}
	if errMsg != "" {
		meta = map[string]interface{}{"error": errMsg}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateDocumentStatus: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if meta != nil {
		metaJSON, _ := json.Marshal(meta)
		if _, err := s.db.ExecContext(ctx, `UPDATE documents SET metadata = ? WHERE id = ?`, string(metaJSON), id); err != nil {
			return fmt.Errorf("sqlite: UpdateDocumentStatus metadata: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteDocument: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_sources WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: DeleteDocument memory_sources cleanup: %w", err)
	}
	return nil
}

// RequeueAllForRebuild resets every document to "queued" and clears chunk
// embeddings, the non-interactive path driven by --rebuild-embeddings when
// the configured embedding dimension no longer matches what is stored.
func (s *Store) RequeueAllForRebuild(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status = ?, updated_at = ?`, string(types.DocStatusQueued), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: RequeueAllForRebuild documents: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = NULL`); err != nil {
		return 0, fmt.Errorf("sqlite: RequeueAllForRebuild chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: RequeueAllForRebuild rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var d types.Document
	var sourceURL, title, summary, metaJSON sql.NullString
	var contentType, status string
	if err := row.Scan(&d.ID, &sourceURL, &contentType, &title, &summary, &status, &metaJSON, &d.ContainerTag, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.SourceURL = sourceURL.String
	d.ContentType = types.DocumentContentType(contentType)
	d.Title = title.String
	d.Summary = summary.String
	d.Status = types.DocumentStatus(status)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal document metadata: %w", err)
		}
	}
	return &d, nil
}

func marshalMeta(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// decodeCursor/encodeCursor treat the cursor as a plain offset. The type
// signature stays opaque to callers so the encoding can change later
// without touching storage.ListOptions.
func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(cursor, "%d", &n); err != nil || n < 0 {
		return 0
	}
	return n
}

func encodeCursor(offset int) string {
	return fmt.Sprintf("%d", offset)
}

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

func (s *Store) CreateMemory(ctx context.Context, mem *types.Memory) error {
	if mem == nil || mem.ID == "" {
		return fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	if mem.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if !types.IsValidClassification(mem.Classification) {
		return fmt.Errorf("%w: invalid classification %q", storage.ErrInvalidInput, mem.Classification)
	}
	if mem.Version == 0 {
		mem.Version = 1
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	if mem.UpdatedAt.IsZero() {
		mem.UpdatedAt = mem.CreatedAt
	}
	if mem.SourceCount == 0 {
		mem.SourceCount = 1
	}
	if mem.Confidence == 0 {
		mem.Confidence = 1.0
	}

	relJSON, err := marshalRelations(mem.MemoryRelations)
	if err != nil {
		return err
	}
	metaJSON, err := marshalMeta(mem.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, container_tag, space_id, classification, version, is_latest,
			parent_memory_id, root_memory_id, memory_relations, source_count,
			is_inference, is_static, is_forgotten, confidence,
			forget_after, forget_reason, last_accessed,
			embedding, embedding_model, metadata, content_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		mem.ID, mem.Content, mem.ContainerTag, mem.SpaceID, string(mem.Classification), mem.Version, mem.IsLatest,
		nullableStringPtr(mem.ParentMemoryID), nullableStringPtr(mem.RootMemoryID), nullableString(string(relJSON)), mem.SourceCount,
		mem.IsInference, mem.IsStatic, mem.IsForgotten, mem.Confidence,
		nullableTimePtr(mem.ForgetAfter), nullableStringPtr(mem.ForgetReason), nullableTimePtr(mem.LastAccessed),
		packEmbedding(mem.Embedding), nullableString(mem.EmbeddingModel), nullableString(string(metaJSON)), mem.ContentHash,
		mem.CreatedAt, mem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: CreateMemory: %w", err)
	}
	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, memorySelectSQL+" WHERE id = ?", id)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetMemory: %w", err)
	}
	return mem, nil
}

func (s *Store) GetLatestByContentHash(ctx context.Context, containerTag, hash string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, memorySelectSQL+`
		WHERE container_tag = ? AND content_hash = ? AND is_latest = 1
		ORDER BY created_at DESC LIMIT 1
	`, containerTag, hash)
	mem, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetLatestByContentHash: %w", err)
	}
	return mem, nil
}

func (s *Store) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var conditions []string
	var args []interface{}
	if opts.ContainerTag != "" {
		conditions = append(conditions, "container_tag = ?")
		args = append(args, opts.ContainerTag)
	}
	if opts.IncludeLatestOnly {
		conditions = append(conditions, "is_latest = 1")
	}
	if !opts.IncludeForgotten {
		conditions = append(conditions, "is_forgotten = 0")
	}
	if opts.Classification != "" {
		conditions = append(conditions, "classification = ?")
		args = append(args, string(opts.Classification))
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
	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT ? OFFSET ?", memorySelectSQL, where, opts.SortBy, opts.SortOrder)
	rows, err := s.db.QueryContext(ctx, query, append(append([]interface{}{}, args...), opts.Limit+1, offset)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListMemories: %w", err)
	}
	defer rows.Close()

	var mems []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListMemories scan: %w", err)
		}
		mems = append(mems, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: ListMemories rows: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: ListMemories count: %w", err)
	}

	hasMore := len(mems) > opts.Limit
	if hasMore {
		mems = mems[:opts.Limit]
	}
	return &storage.PaginatedResult[types.Memory]{
		Items:      mems,
		Total:      total,
		HasMore:    hasMore,
		NextCursor: encodeCursor(offset + len(mems)),
	}, nil
}

func (s *Store) UpdateMemory(ctx context.Context, mem *types.Memory) error {
	if mem == nil || mem.ID == "" {
		return fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	relJSON, err := marshalRelations(mem.MemoryRelations)
	if err != nil {
		return err
	}
	metaJSON, err := marshalMeta(mem.Metadata)
	if err != nil {
		return err
	}
	mem.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, classification = ?, memory_relations = ?, source_count = ?,
			is_inference = ?, is_static = ?, is_forgotten = ?, confidence = ?,
			forget_after = ?, forget_reason = ?, last_accessed = ?,
			embedding = ?, embedding_model = ?, metadata = ?, content_hash = ?, updated_at = ?
		WHERE id = ?
	`,
		mem.Content, string(mem.Classification), nullableString(string(relJSON)), mem.SourceCount,
		mem.IsInference, mem.IsStatic, mem.IsForgotten, mem.Confidence,
		nullableTimePtr(mem.ForgetAfter), nullableStringPtr(mem.ForgetReason), nullableTimePtr(mem.LastAccessed),
		packEmbedding(mem.Embedding), nullableString(mem.EmbeddingModel), nullableString(string(metaJSON)), mem.ContentHash, mem.UpdatedAt,
		mem.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: UpdateMemory: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) SetLatest(ctx context.Context, id string, isLatest bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET is_latest = ?, updated_at = ? WHERE id = ?`, isLatest, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: SetLatest: %w", err)
	}
	return checkRowsAffected(res)
}

// SuperviseSupersession atomically flips oldID.is_latest=false and inserts
// newMem, so a crash before commit leaves oldID the latest version rather
// than an orphaned chain with two "latest" rows or none.
func (s *Store) SuperviseSupersession(ctx context.Context, oldID string, newMem *types.Memory) error {
	if newMem == nil || newMem.ID == "" {
		return fmt.Errorf("%w: new memory id is required", storage.ErrInvalidInput)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: SuperviseSupersession begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE memories SET is_latest = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), oldID)
	if err != nil {
		return fmt.Errorf("sqlite: SuperviseSupersession flip old: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	if newMem.Version == 0 {
		newMem.Version = 1
	}
	if newMem.CreatedAt.IsZero() {
		newMem.CreatedAt = time.Now().UTC()
	}
	if newMem.UpdatedAt.IsZero() {
		newMem.UpdatedAt = newMem.CreatedAt
	}
	newMem.IsLatest = true

	relJSON, err := marshalRelations(newMem.MemoryRelations)
	if err != nil {
		return err
	}
	metaJSON, err := marshalMeta(newMem.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, container_tag, space_id, classification, version, is_latest,
			parent_memory_id, root_memory_id, memory_relations, source_count,
			is_inference, is_static, is_forgotten, confidence,
			forget_after, forget_reason, last_accessed,
			embedding, embedding_model, metadata, content_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		newMem.ID, newMem.Content, newMem.ContainerTag, newMem.SpaceID, string(newMem.Classification), newMem.Version, newMem.IsLatest,
		nullableStringPtr(newMem.ParentMemoryID), nullableStringPtr(newMem.RootMemoryID), nullableString(string(relJSON)), newMem.SourceCount,
		newMem.IsInference, newMem.IsStatic, newMem.IsForgotten, newMem.Confidence,
		nullableTimePtr(newMem.ForgetAfter), nullableStringPtr(newMem.ForgetReason), nullableTimePtr(newMem.LastAccessed),
		packEmbedding(newMem.Embedding), nullableString(newMem.EmbeddingModel), nullableString(string(metaJSON)), newMem.ContentHash,
		newMem.CreatedAt, newMem.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: SuperviseSupersession insert new: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: SuperviseSupersession commit: %w", err)
	}
	return nil
}

func (s *Store) ForgetMemory(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET is_forgotten = 1, forget_reason = ?, updated_at = ? WHERE id = ?
	`, nullableString(reason), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: ForgetMemory: %w", err)
	}
	return checkRowsAffected(res)
}

func (s *Store) ScheduleForget(ctx context.Context, id string, forgetAfter time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET forget_after = ?, updated_at = ? WHERE id = ?
	`, forgetAfter, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: ScheduleForget: %w", err)
	}
	return checkRowsAffected(res)
}

// HardForgetDue marks every memory whose forget_after has elapsed as
// forgotten, returning the number affected. Called periodically by the
// Forgetting Manager.
func (s *Store) HardForgetDue(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET is_forgotten = 1, forget_reason = COALESCE(forget_reason, 'decayed'), updated_at = ?
		WHERE forget_after IS NOT NULL AND forget_after <= ? AND is_forgotten = 0
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: HardForgetDue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: HardForgetDue rows affected: %w", err)
	}
	return int(n), nil
}

func (s *Store) TouchAccessed(ctx context.Context, ids []string, when time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: TouchAccessed begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET last_accessed = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: TouchAccessed prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, when, id); err != nil {
			return fmt.Errorf("sqlite: TouchAccessed exec: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: TouchAccessed commit: %w", err)
	}
	return nil
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: DeleteMemory: %w", err)
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_sources WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: DeleteMemory memory_sources cleanup: %w", err)
	}
	return nil
}

// GetEvolutionChain returns the full version history for a memory ordered
// oldest to newest, walking backward via parent_memory_id and forward via
// reverse lookup. Capped to prevent an accidental cycle from looping forever.
func (s *Store) GetEvolutionChain(ctx context.Context, id string) ([]*types.Memory, error) {
	const maxChain = 100

	current, err := s.GetMemory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: GetEvolutionChain: %w", err)
	}

	var chain []*types.Memory
	visited := map[string]bool{current.ID: true}
	node := current
	for len(chain) < maxChain {
		if node.ParentMemoryID == nil || *node.ParentMemoryID == "" {
			break
		}
		if visited[*node.ParentMemoryID] {
			break
		}
		parent, err := s.GetMemory(ctx, *node.ParentMemoryID)
		if err != nil {
			break
		}
		visited[parent.ID] = true
		chain = append([]*types.Memory{parent}, chain...)
		node = parent
	}
	chain = append(chain, current)

	tip := chain[len(chain)-1]
	for len(chain) < maxChain {
		row := s.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE parent_memory_id = ? LIMIT 1`, tip.ID)
		var nextID string
		if err := row.Scan(&nextID); err != nil {
			break
		}
		if nextID == "" || visited[nextID] {
			break
		}
		next, err := s.GetMemory(ctx, nextID)
		if err != nil {
			break
		}
		visited[nextID] = true
		chain = append(chain, next)
		tip = next
	}

	return chain, nil
}

func (s *Store) IncrementSourceCount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET source_count = source_count + 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: IncrementSourceCount: %w", err)
	}
	return checkRowsAffected(res)
}

const memorySelectSQL = `
	SELECT id, content, container_tag, space_id, classification, version, is_latest,
		parent_memory_id, root_memory_id, memory_relations, source_count,
		is_inference, is_static, is_forgotten, confidence,
		forget_after, forget_reason, last_accessed,
		embedding, embedding_model, metadata, content_hash,
		created_at, updated_at
	FROM memories
`

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var classification string
	var parentID, rootID, relJSON, forgetReason, embeddingModel, metaJSON sql.NullString
	var forgetAfter, lastAccessed sql.NullTime
	var embeddingBlob []byte

	if err := row.Scan(
		&m.ID, &m.Content, &m.ContainerTag, &m.SpaceID, &classification, &m.Version, &m.IsLatest,
		&parentID, &rootID, &relJSON, &m.SourceCount,
		&m.IsInference, &m.IsStatic, &m.IsForgotten, &m.Confidence,
		&forgetAfter, &forgetReason, &lastAccessed,
		&embeddingBlob, &embeddingModel, &metaJSON, &m.ContentHash,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	m.Classification = types.MemoryClassification(classification)
	if parentID.Valid {
		v := parentID.String
		m.ParentMemoryID = &v
	}
	if rootID.Valid {
		v := rootID.String
		m.RootMemoryID = &v
	}
	if relJSON.Valid && relJSON.String != "" {
		if err := json.Unmarshal([]byte(relJSON.String), &m.MemoryRelations); err != nil {
			return nil, fmt.Errorf("unmarshal memory_relations: %w", err)
		}
	}
	if forgetAfter.Valid {
		t := forgetAfter.Time
		m.ForgetAfter = &t
	}
	if forgetReason.Valid {
		v := forgetReason.String
		m.ForgetReason = &v
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		m.LastAccessed = &t
	}
	emb, err := unpackEmbedding(embeddingBlob)
	if err != nil {
		return nil, err
	}
	m.Embedding = emb
	m.EmbeddingModel = embeddingModel.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal memory metadata: %w", err)
		}
	}
	return &m, nil
}

func marshalRelations(rel map[string]types.RelationType) ([]byte, error) {
	if rel == nil {
		return nil, nil
	}
	b, err := json.Marshal(rel)
	if err != nil {
		return nil, fmt.Errorf("marshal memory_relations: %w", err)
	}
	return b, nil
}

func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ storage.MemStore = (*Store)(nil)

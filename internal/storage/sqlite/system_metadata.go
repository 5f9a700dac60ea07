package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/momo-mem/momo/internal/storage"
)

func (s *Store) GetSystemMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: GetSystemMetadata: %w", err)
	}
	return value, true, nil
}

func (s *Store) SetSystemMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: SetSystemMetadata: %w", err)
	}
	return nil
}

var _ storage.SystemMetadataStore = (*Store)(nil)

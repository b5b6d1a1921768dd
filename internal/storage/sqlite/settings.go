package sqlite

import (
	"context"
	"database/sql"

	"github.com/holdmymap/holdmymap/internal/errs"
)

// SetSetting stores a key/value pair, overwriting any previous value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return errs.Storage("set setting", err)
	}
	return nil
}

// GetSetting retrieves a setting value, or errs.ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errs.ErrNotFound
	}
	if err != nil {
		return "", errs.Storage("get setting", err)
	}
	return value, nil
}

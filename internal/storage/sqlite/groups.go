package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
)

// CreateGroup inserts a new group. The code is stored normalized; a taken
// code yields errs.ErrConflict.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	code := models.NormalizeCode(group.Code)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO groups (id, code, name, created_at) VALUES (?, ?, ?, ?)",
		group.ID, code, group.Name, fmtTime(group.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrConflict
		}
		return errs.Storage("create group", err)
	}
	group.Code = code
	return nil
}

// isUniqueViolation matches the driver's typed result codes. A primary key
// is a unique index too, so both extended codes count.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// UpsertGroup inserts or replaces a group by ID.
func (s *SQLiteStore) UpsertGroup(ctx context.Context, group *models.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, code, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			created_at = excluded.created_at`,
		group.ID, models.NormalizeCode(group.Code), group.Name, fmtTime(group.CreatedAt),
	)
	if err != nil {
		return errs.Storage("upsert group", err)
	}
	return nil
}

// GetGroupByCode retrieves a group by its normalized code.
func (s *SQLiteStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	group := &models.Group{}
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, created_at FROM groups WHERE code = ?",
		models.NormalizeCode(code),
	).Scan(&group.ID, &group.Code, &group.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Storage("get group by code", err)
	}

	group.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, errs.Storage("parse group created_at", err)
	}
	return group, nil
}

// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface for the server. Devices always run the sqlite
// store; this backend exists for multi-instance server deployments where a
// file database does not fit.
package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    code TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS points (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    sync_status TEXT NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_groups_code ON groups(code);
CREATE INDEX IF NOT EXISTS idx_points_group_id ON points(group_id);
CREATE INDEX IF NOT EXISTS idx_points_sync_status ON points(sync_status);
`

const pointColumns = "id, group_id, name, description, latitude, longitude, created_at, updated_at, sync_status"

// PostgresStore implements storage.Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// New connects to the database at the given URL, verifies the connection,
// and ensures the schema exists.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errs.Storage("open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.Storage("ping database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.Storage("run migrations", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateGroup inserts a new group, normalizing its code.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	code := models.NormalizeCode(group.Code)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO groups (id, code, name, created_at) VALUES ($1, $2, $3, $4)",
		group.ID, code, group.Name, group.CreatedAt.UTC(),
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

// UpsertGroup inserts or replaces a group by ID.
func (s *PostgresStore) UpsertGroup(ctx context.Context, group *models.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, code, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			created_at = EXCLUDED.created_at`,
		group.ID, models.NormalizeCode(group.Code), group.Name, group.CreatedAt.UTC(),
	)
	if err != nil {
		return errs.Storage("upsert group", err)
	}
	return nil
}

// GetGroupByCode retrieves a group by its normalized code.
func (s *PostgresStore) GetGroupByCode(ctx context.Context, code string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, name, created_at FROM groups WHERE code = $1",
		models.NormalizeCode(code),
	).Scan(&group.ID, &group.Code, &group.Name, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Storage("get group by code", err)
	}
	return group, nil
}

// UpsertPoint inserts or replaces a point by ID.
func (s *PostgresStore) UpsertPoint(ctx context.Context, point *models.Point) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points (`+pointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			sync_status = EXCLUDED.sync_status`,
		point.ID, point.GroupID, point.Name, nullableDesc(point.Description),
		point.Latitude, point.Longitude,
		point.CreatedAt.UTC(), point.UpdatedAt.UTC(), string(point.SyncStatus),
	)
	if err != nil {
		return errs.Storage("upsert point", err)
	}
	return nil
}

// UpdatePoint overwrites the mutable attributes of an existing point.
func (s *PostgresStore) UpdatePoint(ctx context.Context, point *models.Point) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE points
		SET name = $1, description = $2, latitude = $3, longitude = $4, updated_at = $5
		WHERE id = $6`,
		point.Name, nullableDesc(point.Description),
		point.Latitude, point.Longitude, point.UpdatedAt.UTC(), point.ID,
	)
	if err != nil {
		return errs.Storage("update point", err)
	}
	return nil
}

// GetPoint retrieves a point by ID.
func (s *PostgresStore) GetPoint(ctx context.Context, id string) (*models.Point, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pointColumns+" FROM points WHERE id = $1", id)

	point, err := scanPoint(row)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Storage("get point", err)
	}
	return point, nil
}

// ListPointsByGroup returns the group's points ordered by name.
func (s *PostgresStore) ListPointsByGroup(ctx context.Context, groupID string) ([]models.Point, error) {
	return s.listPoints(ctx,
		"SELECT "+pointColumns+" FROM points WHERE group_id = $1 ORDER BY name", groupID)
}

// ListPointsByStatus returns all points with the given sync status.
func (s *PostgresStore) ListPointsByStatus(ctx context.Context, status models.SyncStatus) ([]models.Point, error) {
	return s.listPoints(ctx,
		"SELECT "+pointColumns+" FROM points WHERE sync_status = $1 ORDER BY name", string(status))
}

func (s *PostgresStore) listPoints(ctx context.Context, query string, arg any) ([]models.Point, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, errs.Storage("list points", err)
	}
	defer rows.Close()

	var points []models.Point
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, errs.Storage("scan point", err)
		}
		points = append(points, *point)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("iterate points", err)
	}
	return points, nil
}

// MarkPointSynced flips a point's sync status to synced.
func (s *PostgresStore) MarkPointSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE points SET sync_status = $1 WHERE id = $2",
		string(models.SyncSynced), id,
	)
	if err != nil {
		return errs.Storage("mark point synced", err)
	}
	return nil
}

// DeletePoint removes a point unconditionally. A missing row is a no-op.
func (s *PostgresStore) DeletePoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE id = $1", id)
	if err != nil {
		return errs.Storage("delete point", err)
	}
	return nil
}

// ReplaceGroupPoints atomically swaps the group's entire point set.
func (s *PostgresStore) ReplaceGroupPoints(ctx context.Context, groupID string, points []models.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin replace transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM points WHERE group_id = $1", groupID); err != nil {
		return errs.Storage("clear group points", err)
	}

	for i := range points {
		point := &points[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO points (`+pointColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			point.ID, point.GroupID, point.Name, nullableDesc(point.Description),
			point.Latitude, point.Longitude,
			point.CreatedAt.UTC(), point.UpdatedAt.UTC(), string(point.SyncStatus),
		)
		if err != nil {
			return errs.Storage("insert replacement point", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit replace transaction", err)
	}
	return nil
}

// SetSetting stores a key/value pair, overwriting any previous value.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return errs.Storage("set setting", err)
	}
	return nil
}

// GetSetting retrieves a setting value, or errs.ErrNotFound.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = $1", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errs.ErrNotFound
	}
	if err != nil {
		return "", errs.Storage("get setting", err)
	}
	return value, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(row scanner) (*models.Point, error) {
	point := &models.Point{}
	var desc sql.NullString
	var status string

	err := row.Scan(
		&point.ID, &point.GroupID, &point.Name, &desc,
		&point.Latitude, &point.Longitude,
		&point.CreatedAt, &point.UpdatedAt, &status,
	)
	if err != nil {
		return nil, err
	}

	point.Description = desc.String
	point.SyncStatus = models.SyncStatus(status)
	return point, nil
}

func nullableDesc(desc string) sql.NullString {
	return sql.NullString{String: desc, Valid: desc != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

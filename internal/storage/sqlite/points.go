package sqlite

import (
	"context"
	"database/sql"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
)

const pointColumns = "id, group_id, name, description, latitude, longitude, created_at, updated_at, sync_status"

// UpsertPoint inserts or replaces a point by ID. Repeating the call with the
// same payload leaves a single row in the same final state.
func (s *SQLiteStore) UpsertPoint(ctx context.Context, point *models.Point) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO points (`+pointColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			name = excluded.name,
			description = excluded.description,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status`,
		point.ID, point.GroupID, point.Name, nullableDesc(point.Description),
		point.Latitude, point.Longitude,
		fmtTime(point.CreatedAt), fmtTime(point.UpdatedAt), string(point.SyncStatus),
	)
	if err != nil {
		return errs.Storage("upsert point", err)
	}
	return nil
}

// UpdatePoint overwrites the mutable attributes of an existing point.
// A missing row is a no-op, matching the wire contract's blind update.
func (s *SQLiteStore) UpdatePoint(ctx context.Context, point *models.Point) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE points
		SET name = ?, description = ?, latitude = ?, longitude = ?, updated_at = ?
		WHERE id = ?`,
		point.Name, nullableDesc(point.Description),
		point.Latitude, point.Longitude, fmtTime(point.UpdatedAt), point.ID,
	)
	if err != nil {
		return errs.Storage("update point", err)
	}
	return nil
}

// GetPoint retrieves a point by ID.
func (s *SQLiteStore) GetPoint(ctx context.Context, id string) (*models.Point, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+pointColumns+" FROM points WHERE id = ?", id)

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
func (s *SQLiteStore) ListPointsByGroup(ctx context.Context, groupID string) ([]models.Point, error) {
	return s.listPoints(ctx,
		"SELECT "+pointColumns+" FROM points WHERE group_id = ? ORDER BY name", groupID)
}

// ListPointsByStatus returns all points with the given sync status.
func (s *SQLiteStore) ListPointsByStatus(ctx context.Context, status models.SyncStatus) ([]models.Point, error) {
	return s.listPoints(ctx,
		"SELECT "+pointColumns+" FROM points WHERE sync_status = ? ORDER BY name", string(status))
}

func (s *SQLiteStore) listPoints(ctx context.Context, query string, arg any) ([]models.Point, error) {
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

// MarkPointSynced flips a point's sync status to synced, leaving its other
// attributes untouched.
func (s *SQLiteStore) MarkPointSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE points SET sync_status = ? WHERE id = ?",
		string(models.SyncSynced), id,
	)
	if err != nil {
		return errs.Storage("mark point synced", err)
	}
	return nil
}

// DeletePoint removes a point unconditionally. A missing row is a no-op.
func (s *SQLiteStore) DeletePoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM points WHERE id = ?", id)
	if err != nil {
		return errs.Storage("delete point", err)
	}
	return nil
}

// ReplaceGroupPoints atomically swaps the group's entire point set for the
// given one. All-or-nothing within a single transaction.
func (s *SQLiteStore) ReplaceGroupPoints(ctx context.Context, groupID string, points []models.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin replace transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM points WHERE group_id = ?", groupID); err != nil {
		return errs.Storage("clear group points", err)
	}

	for i := range points {
		point := &points[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO points (`+pointColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			point.ID, point.GroupID, point.Name, nullableDesc(point.Description),
			point.Latitude, point.Longitude,
			fmtTime(point.CreatedAt), fmtTime(point.UpdatedAt), string(point.SyncStatus),
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

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(row scanner) (*models.Point, error) {
	point := &models.Point{}
	var desc sql.NullString
	var createdAt, updatedAt, status string

	err := row.Scan(
		&point.ID, &point.GroupID, &point.Name, &desc,
		&point.Latitude, &point.Longitude,
		&createdAt, &updatedAt, &status,
	)
	if err != nil {
		return nil, err
	}

	point.Description = desc.String
	point.SyncStatus = models.SyncStatus(status)
	if point.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if point.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return point, nil
}

func nullableDesc(desc string) sql.NullString {
	return sql.NullString{String: desc, Valid: desc != ""}
}

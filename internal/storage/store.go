// Package storage provides abstractions for persistent group and point
// storage.
package storage

import (
	"context"

	"github.com/holdmymap/holdmymap/internal/models"
)

// Store defines the operations both replicas need: the device-local store
// uses the full surface (pending tracking, settings, wholesale replace),
// while the server store keeps every point synced. The abstraction allows
// swapping backends (SQLite on the device and by default on the server,
// PostgreSQL server-side) without changing callers.
//
// Implementations report missing rows as errs.ErrNotFound, unique-code
// violations as errs.ErrConflict, and every other failure wrapped in
// *errs.StorageError. Callers must not assume partial writes on failure:
// batch operations are atomic within one collection.
type Store interface {
	// CreateGroup inserts a new group. Returns errs.ErrConflict if the
	// normalized code is already taken.
	CreateGroup(ctx context.Context, group *models.Group) error

	// UpsertGroup inserts or replaces a group by ID.
	UpsertGroup(ctx context.Context, group *models.Group) error

	// GetGroupByCode retrieves a group by its normalized code.
	GetGroupByCode(ctx context.Context, code string) (*models.Group, error)

	// UpsertPoint inserts or replaces a point by ID.
	UpsertPoint(ctx context.Context, point *models.Point) error

	// UpdatePoint overwrites the mutable attributes of an existing point.
	// Points that do not exist are left untouched without error, matching
	// the wire contract's blind update.
	UpdatePoint(ctx context.Context, point *models.Point) error

	// GetPoint retrieves a point by ID.
	GetPoint(ctx context.Context, id string) (*models.Point, error)

	// ListPointsByGroup returns the group's points ordered by name.
	ListPointsByGroup(ctx context.Context, groupID string) ([]models.Point, error)

	// ListPointsByStatus returns all points with the given sync status.
	ListPointsByStatus(ctx context.Context, status models.SyncStatus) ([]models.Point, error)

	// MarkPointSynced flips a point's sync status to synced, leaving its
	// other attributes untouched. Missing points are a no-op.
	MarkPointSynced(ctx context.Context, id string) error

	// DeletePoint removes a point unconditionally. Missing points are a
	// no-op.
	DeletePoint(ctx context.Context, id string) error

	// ReplaceGroupPoints atomically deletes every point held for groupID
	// and inserts the given set. All-or-nothing: on error the previous
	// rows remain intact.
	ReplaceGroupPoints(ctx context.Context, groupID string, points []models.Point) error

	// SetSetting stores a key/value pair, overwriting any previous value.
	SetSetting(ctx context.Context, key, value string) error

	// GetSetting retrieves a setting value, or errs.ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// Close releases any resources held by the store.
	Close() error
}

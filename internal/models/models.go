package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/holdmymap/holdmymap/internal/errs"
)

// SyncStatus tracks whether a local point matches the remote authoritative
// copy. Pending means the local copy may differ; synced means it was
// byte-for-byte identical as of the last successful exchange.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
)

// Group identifies a namespace of points, resolved by a human-shareable code.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Code is the shareable group code. Always stored case-normalized
	// (uppercase, trimmed).
	Code string `json:"code"`

	// Name is the display name of the group.
	Name string `json:"name"`

	// CreatedAt is when the group was created.
	CreatedAt time.Time `json:"created_at"`
}

// Point is a geo-located entry belonging to a group.
type Point struct {
	ID          string     `json:"id"`
	GroupID     string     `json:"group_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// Setting is a small persisted key/value pair (e.g. the last-used group
// code). Lazily created, overwritten in place, never deleted.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BulkImportResult partitions a bulk import's input by outcome.
// Imported + Failed always equals Total.
type BulkImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// Well-known setting keys.
const (
	SettingLastGroupCode = "last_group_code"
)

// NormalizeCode canonicalizes a group code: trimmed and uppercased.
// Codes compare equal after normalization everywhere in the system.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewPoint builds a point for the given group with a fresh ID, creation
// timestamps, and pending sync status.
func NewPoint(groupID, name, description string, lat, lng float64) *Point {
	now := time.Now().UTC()
	return &Point{
		ID:          uuid.New().String(),
		GroupID:     groupID,
		Name:        name,
		Description: description,
		Latitude:    lat,
		Longitude:   lng,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  SyncPending,
	}
}

// NewGroup builds a group with a fresh ID, normalized code, and creation
// timestamp.
func NewGroup(code, name string) *Group {
	return &Group{
		ID:        uuid.New().String(),
		Code:      NormalizeCode(code),
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the fields the wire contract requires for a point.
func (p *Point) Validate() error {
	if p.ID == "" {
		return errs.Validation("id", "required")
	}
	if p.GroupID == "" {
		return errs.Validation("group_id", "required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errs.Validation("name", "required")
	}
	// NaN slips through plain range comparisons.
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return errs.Validation("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return errs.Validation("longitude", "must be between -180 and 180")
	}
	return nil
}

// Validate checks the fields required to create a group.
func (g *Group) Validate() error {
	if strings.TrimSpace(g.Code) == "" {
		return errs.Validation("code", "required")
	}
	if strings.TrimSpace(g.Name) == "" {
		return errs.Validation("name", "required")
	}
	return nil
}

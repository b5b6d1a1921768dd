// Package syncer implements the reconciliation protocol between the
// device-local replica and the remote authoritative store.
//
// The engine exposes two independent halves. Push sends locally pending
// mutations upward; Pull replaces the local point set with the server's
// canonical one. The replica controller composes them, always awaiting Push
// to completion before starting Pull.
//
// Pull is a wholesale replace, not a merge. A point still pending at the
// moment of the replace (its push failed, or it was created between the
// push and pull steps) is discarded from the local view unless the server
// independently holds it. Running Push first narrows that window; nothing
// closes it. There is no atomicity across the two steps.
package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/gateway"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/storage"
)

// Engine reconciles a local store with a remote gateway.
type Engine struct {
	store storage.Store
	gw    *gateway.Client
}

// New creates an engine over the given local store and gateway.
func New(store storage.Store, gw *gateway.Client) *Engine {
	return &Engine{store: store, gw: gw}
}

// PushResult counts the outcome of one push pass.
type PushResult struct {
	Succeeded int
	Failed    int
}

// Push sends every pending point to the server, sequentially and
// independently: one point's failure does not abort the rest. Successful
// pushes flip the local row to synced without touching its attributes.
// Failed points stay pending; they are retried on the next invocation, not
// within this one.
//
// The returned error is non-nil only for local storage failures, which are
// fatal to the pass. Network failures are counted, logged, and swallowed.
func (e *Engine) Push(ctx context.Context) (PushResult, error) {
	var result PushResult

	pending, err := e.store.ListPointsByStatus(ctx, models.SyncPending)
	if err != nil {
		return result, err
	}

	for i := range pending {
		point := &pending[i]
		if _, err := e.gw.UpsertPoint(ctx, point); err != nil {
			result.Failed++
			slog.Debug("push failed, will retry on next reconciliation",
				"point_id", point.ID, "error", err)
			continue
		}
		if err := e.store.MarkPointSynced(ctx, point.ID); err != nil {
			return result, err
		}
		result.Succeeded++
	}

	return result, nil
}

// Pull fetches the group's canonical point set and replaces the local one
// wholesale: every fetched row lands marked synced, every local row for the
// group that the server does not hold disappears. Returns the applied set.
//
// Network failures come back as *errs.NetworkError so the caller can fall
// back to a local read; storage failures propagate as-is.
func (e *Engine) Pull(ctx context.Context, groupID, groupCode string) ([]models.Point, error) {
	points, err := e.gw.ListPoints(ctx, groupCode)
	if err != nil {
		return nil, err
	}

	for i := range points {
		points[i].SyncStatus = models.SyncSynced
	}

	if err := e.store.ReplaceGroupPoints(ctx, groupID, points); err != nil {
		return nil, err
	}
	return points, nil
}

// ResolveGroup looks a group up by code, remote first. On success the group
// is cached locally and returned. A remote not-found is definitive: the
// caller decides whether to operate purely locally. Any other network
// failure falls back to the locally cached group for that code, or signals
// absence with errs.ErrNotFound.
func (e *Engine) ResolveGroup(ctx context.Context, code string) (*models.Group, error) {
	group, err := e.gw.ResolveGroup(ctx, code)
	if err == nil {
		if err := e.store.UpsertGroup(ctx, group); err != nil {
			return nil, err
		}
		return group, nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrNotFound
	}

	cached, cacheErr := e.store.GetGroupByCode(ctx, code)
	if cacheErr == nil {
		slog.Debug("group resolution fell back to local cache",
			"code", code, "error", err)
		return cached, nil
	}
	if errs.IsStorage(cacheErr) {
		return nil, cacheErr
	}
	return nil, errs.ErrNotFound
}

// CreateGroup registers a new group remotely and caches it locally. Group
// creation is the one operation that genuinely requires connectivity; there
// is no offline path.
func (e *Engine) CreateGroup(ctx context.Context, code, name string) (*models.Group, error) {
	group, err := e.gw.CreateGroup(ctx, code, name)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// PushPoint sends a single point upward (the optimistic half of add) and,
// on success, flips its local row to synced. The returned point carries the
// local attributes with the updated status; server-rewritten values are
// deliberately not merged back.
func (e *Engine) PushPoint(ctx context.Context, point *models.Point) (*models.Point, error) {
	return e.pushOne(ctx, point, e.gw.UpsertPoint)
}

// PushUpdate is PushPoint for an edited point, using the update call.
func (e *Engine) PushUpdate(ctx context.Context, point *models.Point) (*models.Point, error) {
	return e.pushOne(ctx, point, e.gw.UpdatePoint)
}

func (e *Engine) pushOne(ctx context.Context, point *models.Point, send func(context.Context, *models.Point) (*models.Point, error)) (*models.Point, error) {
	if _, err := send(ctx, point); err != nil {
		return nil, err
	}
	if err := e.store.MarkPointSynced(ctx, point.ID); err != nil {
		return nil, err
	}
	synced := *point
	synced.SyncStatus = models.SyncSynced
	return &synced, nil
}

// DeleteRemote attempts the remote half of a delete, fire-and-forget.
// Failures are logged and dropped: there is no tombstone and no retry, so a
// failed remote delete leaves the point on the server and a later Pull
// resurrects it locally.
func (e *Engine) DeleteRemote(ctx context.Context, id string) {
	if err := e.gw.DeletePoint(ctx, id); err != nil {
		slog.Debug("remote delete failed; point may resurface on next pull",
			"point_id", id, "error", err)
	}
}

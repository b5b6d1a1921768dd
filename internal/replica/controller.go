// Package replica is the device-side façade over the local store, the sync
// engine and the connectivity monitor. Every mutation lands locally first
// and returns immediately; the remote half runs opportunistically and its
// network failures never surface to the caller. Validation and local storage
// failures do.
package replica

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/netmon"
	"github.com/holdmymap/holdmymap/internal/storage"
	"github.com/holdmymap/holdmymap/internal/syncer"
)

// Controller owns one active group and an in-memory view of its points.
// All methods are safe for concurrent use.
type Controller struct {
	store   storage.Store
	engine  *syncer.Engine
	monitor *netmon.Monitor

	mu     sync.Mutex
	group  *models.Group
	points []models.Point
}

// NewController wires the façade together. A transition back to online
// triggers a background refresh of the active group. The refresh runs in its
// own goroutine so the monitor's synchronous notification path never blocks
// on the controller's lock.
func NewController(store storage.Store, engine *syncer.Engine, monitor *netmon.Monitor) *Controller {
	c := &Controller{
		store:   store,
		engine:  engine,
		monitor: monitor,
	}
	monitor.Subscribe(func(offline bool) {
		if offline {
			return
		}
		go func() {
			if err := c.Refresh(context.Background()); err != nil {
				slog.Debug("refresh after reconnect failed", "error", err)
			}
		}()
	})
	return c
}

// UseGroup resolves a group by code, makes it the active one, remembers it
// for the next session and loads its points.
func (c *Controller) UseGroup(ctx context.Context, code string) error {
	group, err := c.engine.ResolveGroup(ctx, code)
	if err != nil {
		return err
	}
	return c.activate(ctx, group)
}

// CreateGroup registers a new group remotely, then activates it. Unlike
// every other operation this one requires connectivity.
func (c *Controller) CreateGroup(ctx context.Context, code, name string) error {
	group, err := c.engine.CreateGroup(ctx, code, name)
	if err != nil {
		return err
	}
	return c.activate(ctx, group)
}

func (c *Controller) activate(ctx context.Context, group *models.Group) error {
	if err := c.store.SetSetting(ctx, models.SettingLastGroupCode, group.Code); err != nil {
		return err
	}

	c.mu.Lock()
	c.group = group
	c.points = nil
	c.mu.Unlock()

	return c.Load(ctx)
}

// RestoreLastGroup reactivates the group used in the previous session.
// Returns errs.ErrNotFound when no group was ever activated.
func (c *Controller) RestoreLastGroup(ctx context.Context) error {
	code, err := c.store.GetSetting(ctx, models.SettingLastGroupCode)
	if err != nil {
		return err
	}
	return c.UseGroup(ctx, code)
}

// Load populates the in-memory point set for the active group. Online it
// reconciles first (push, then pull); offline, or when the pull fails for
// anything but a local storage error, it silently falls back to the local
// rows. Local storage failures propagate.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

// Refresh is Load under its caller-facing name: re-run reconciliation for
// the active group on demand.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

func (c *Controller) loadLocked(ctx context.Context) error {
	if c.group == nil {
		return errs.ErrNotFound
	}

	if !c.monitor.Offline() {
		if _, err := c.engine.Push(ctx); err != nil {
			return err
		}
		points, err := c.engine.Pull(ctx, c.group.ID, c.group.Code)
		if err == nil {
			c.monitor.SetOffline(false)
			c.points = points
			return nil
		}
		if errs.IsStorage(err) {
			return err
		}
		// Any other pull failure, a remote not-found included, drops to the
		// local rows: the group still exists here, so the caller must not
		// see an error. Only a transport failure says anything about
		// connectivity.
		if errs.IsNetwork(err) {
			c.monitor.SetOffline(true)
		}
		slog.Debug("pull failed, serving local replica", "group", c.group.Code, "error", err)
	}

	points, err := c.store.ListPointsByGroup(ctx, c.group.ID)
	if err != nil {
		return err
	}
	c.points = points
	return nil
}

// Add creates a point in the active group. The point is validated, written
// locally as pending and visible to Points before any network activity; if
// the device is online the push happens in the same call and, on success,
// the returned point is already synced.
func (c *Controller) Add(ctx context.Context, name, description string, lat, lng float64) (*models.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return nil, errs.ErrNotFound
	}

	point := models.NewPoint(c.group.ID, name, description, lat, lng)
	if err := point.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.UpsertPoint(ctx, point); err != nil {
		return nil, err
	}
	c.points = append(c.points, *point)

	return c.pushOptimistic(ctx, point, c.engine.PushPoint)
}

// Update overwrites a point's attributes. Same optimistic shape as Add: the
// local row flips to pending, the remote push is best-effort.
func (c *Controller) Update(ctx context.Context, point *models.Point) (*models.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := *point
	updated.UpdatedAt = time.Now().UTC()
	updated.SyncStatus = models.SyncPending
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.UpsertPoint(ctx, &updated); err != nil {
		return nil, err
	}
	c.replaceInMemory(updated)

	return c.pushOptimistic(ctx, &updated, c.engine.PushUpdate)
}

func (c *Controller) pushOptimistic(ctx context.Context, point *models.Point, push func(context.Context, *models.Point) (*models.Point, error)) (*models.Point, error) {
	if c.monitor.Offline() {
		result := *point
		return &result, nil
	}

	synced, err := push(ctx, point)
	if err == nil {
		c.monitor.SetOffline(false)
		c.replaceInMemory(*synced)
		return synced, nil
	}
	if !errs.IsNetwork(err) {
		return nil, err
	}
	c.monitor.SetOffline(true)
	slog.Debug("push failed, point stays pending", "point_id", point.ID, "error", err)

	result := *point
	return &result, nil
}

// Delete removes a point locally and, when online, fires the remote delete
// without waiting on or reacting to its outcome. A failed remote delete
// means the point can resurface on a later pull; there is no tombstone.
func (c *Controller) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.DeletePoint(ctx, id); err != nil {
		return err
	}
	for i := range c.points {
		if c.points[i].ID == id {
			c.points = append(c.points[:i], c.points[i+1:]...)
			break
		}
	}

	if !c.monitor.Offline() {
		c.engine.DeleteRemote(ctx, id)
	}
	return nil
}

// Points returns a copy of the in-memory view.
func (c *Controller) Points() []models.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	points := make([]models.Point, len(c.points))
	copy(points, c.points)
	return points
}

// ActiveGroup returns the active group, or nil before UseGroup.
func (c *Controller) ActiveGroup() *models.Group {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return nil
	}
	group := *c.group
	return &group
}

func (c *Controller) replaceInMemory(point models.Point) {
	for i := range c.points {
		if c.points[i].ID == point.ID {
			c.points[i] = point
			return
		}
	}
	c.points = append(c.points, point)
}

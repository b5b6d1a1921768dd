package replica

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/gateway"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/netmon"
	"github.com/holdmymap/holdmymap/internal/storage/sqlite"
	"github.com/holdmymap/holdmymap/internal/syncer"
)

// fakeRemote counts every request so tests can assert that offline
// operations never touch the network.
type fakeRemote struct {
	mu          sync.Mutex
	groups      map[string]models.Group
	points      map[string]models.Point
	requests    int
	failDeletes bool
	failAll     bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		groups: make(map[string]models.Group),
		points: make(map[string]models.Point),
	}
}

func (f *fakeRemote) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /groups", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		if f.failAll {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		g, ok := f.groups[r.URL.Query().Get("code")]
		if !ok {
			http.Error(w, `{"error":"Group not found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(g)
	})

	mux.HandleFunc("POST /groups", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code string `json:"code"`
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		g := *models.NewGroup(body.Code, body.Name)
		f.groups[g.Code] = g
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(g)
	})

	mux.HandleFunc("GET /points", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		if f.failAll {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		g, ok := f.groups[r.URL.Query().Get("groupCode")]
		if !ok {
			http.Error(w, `{"error":"Group not found"}`, http.StatusNotFound)
			return
		}
		var points []models.Point
		for _, p := range f.points {
			if p.GroupID == g.ID {
				points = append(points, p)
			}
		}
		sort.Slice(points, func(i, j int) bool { return points[i].Name < points[j].Name })
		json.NewEncoder(w).Encode(map[string][]models.Point{"points": points})
	})

	upsert := func(w http.ResponseWriter, r *http.Request, status int) {
		var p models.Point
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		if f.failAll {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		p.SyncStatus = models.SyncSynced
		f.points[p.ID] = p
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(p)
	}
	mux.HandleFunc("POST /points", func(w http.ResponseWriter, r *http.Request) {
		upsert(w, r, http.StatusCreated)
	})
	mux.HandleFunc("PUT /points", func(w http.ResponseWriter, r *http.Request) {
		upsert(w, r, http.StatusOK)
	})

	mux.HandleFunc("DELETE /points", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests++
		if f.failAll || f.failDeletes {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		delete(f.points, r.URL.Query().Get("id"))
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	return mux
}

func newTestController(t *testing.T, remote *fakeRemote) (*Controller, *netmon.Monitor, *sqlite.SQLiteStore) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "holdmymap-replica-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "replica.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server := httptest.NewServer(remote.handler())
	t.Cleanup(server.Close)

	monitor := netmon.New()
	engine := syncer.New(store, gateway.New(server.URL, nil))
	return NewController(store, engine, monitor), monitor, store
}

func TestOfflineAddStaysLocal(t *testing.T) {
	remote := newFakeRemote()
	controller, monitor, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group

	if err := controller.UseGroup(ctx, "bom-norte"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}
	baseline := remote.requestCount()

	monitor.SetOffline(true)
	point, err := controller.Add(ctx, "Tanque Norte", "2000L", -33.49, -64.36)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if point.SyncStatus != models.SyncPending {
		t.Errorf("status: got %s, want pending", point.SyncStatus)
	}
	if got := remote.requestCount(); got != baseline {
		t.Errorf("offline add made %d network requests", got-baseline)
	}

	// Visible immediately in the memory view and durable in the store.
	if points := controller.Points(); len(points) != 1 || points[0].ID != point.ID {
		t.Fatalf("Points: got %d entries", len(points))
	}
	stored, err := store.GetPoint(ctx, point.ID)
	if err != nil {
		t.Fatalf("GetPoint failed: %v", err)
	}
	if stored.SyncStatus != models.SyncPending {
		t.Errorf("stored status: got %s, want pending", stored.SyncStatus)
	}
}

func TestOnlineAddPushesImmediately(t *testing.T) {
	remote := newFakeRemote()
	controller, _, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group

	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	point, err := controller.Add(ctx, "Tanque Norte", "", -33.49, -64.36)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if point.SyncStatus != models.SyncSynced {
		t.Errorf("returned status: got %s, want synced", point.SyncStatus)
	}

	stored, err := store.GetPoint(ctx, point.ID)
	if err != nil {
		t.Fatalf("GetPoint failed: %v", err)
	}
	if stored.SyncStatus != models.SyncSynced {
		t.Errorf("stored status: got %s, want synced", stored.SyncStatus)
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if _, ok := remote.points[point.ID]; !ok {
		t.Error("point never reached the remote")
	}
}

func TestAddValidationFailsFast(t *testing.T) {
	remote := newFakeRemote()
	controller, _, _ := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	_, err := controller.Add(ctx, "", "", -33.49, -64.36)
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(controller.Points()) != 0 {
		t.Error("invalid point must not enter the memory view")
	}

	if _, err := controller.Add(ctx, "Bad Lat", "", 91, 0); err == nil {
		t.Error("expected latitude validation to fail")
	}
}

func TestLoadFallsBackSilently(t *testing.T) {
	remote := newFakeRemote()
	controller, monitor, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	local := models.NewPoint(group.ID, "Survivor", "", 1, 1)
	if err := store.UpsertPoint(ctx, local); err != nil {
		t.Fatalf("UpsertPoint failed: %v", err)
	}

	// Server starts failing but the monitor still says online: the load
	// must succeed from local rows and flip the monitor offline.
	remote.failAll = true
	if err := controller.Load(ctx); err != nil {
		t.Fatalf("Load should fall back silently, got: %v", err)
	}
	if points := controller.Points(); len(points) != 1 || points[0].ID != local.ID {
		t.Fatalf("expected the local row, got %d points", len(controller.Points()))
	}
	if !monitor.Offline() {
		t.Error("expected monitor offline after failed pull")
	}
}

func TestLoadServesLocalWhenGroupGoneRemotely(t *testing.T) {
	remote := newFakeRemote()
	controller, monitor, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	local := models.NewPoint(group.ID, "Survivor", "", 1, 1)
	if err := store.UpsertPoint(ctx, local); err != nil {
		t.Fatalf("UpsertPoint failed: %v", err)
	}

	// The group disappears remotely after activation. The pull now 404s,
	// but the group and its points still exist here, so the load must
	// serve them without surfacing an error.
	remote.mu.Lock()
	delete(remote.groups, group.Code)
	remote.mu.Unlock()

	if err := controller.Load(ctx); err != nil {
		t.Fatalf("Load must fall back silently on a remote not-found, got: %v", err)
	}
	if points := controller.Points(); len(points) != 1 || points[0].ID != local.ID {
		t.Fatalf("expected the local row, got %d points", len(controller.Points()))
	}

	// A 404 is a live server answering; connectivity state is untouched.
	if monitor.Offline() {
		t.Error("remote not-found must not flip the monitor offline")
	}
}

func TestOfflineLoadSkipsNetwork(t *testing.T) {
	remote := newFakeRemote()
	controller, monitor, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	local := models.NewPoint(group.ID, "Local Only", "", 1, 1)
	if err := store.UpsertPoint(ctx, local); err != nil {
		t.Fatalf("UpsertPoint failed: %v", err)
	}

	monitor.SetOffline(true)
	baseline := remote.requestCount()
	if err := controller.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := remote.requestCount(); got != baseline {
		t.Errorf("offline load made %d network requests", got-baseline)
	}
	if len(controller.Points()) != 1 {
		t.Errorf("Points: got %d, want 1", len(controller.Points()))
	}
}

func TestUpdateMarksPendingThenSyncs(t *testing.T) {
	remote := newFakeRemote()
	controller, monitor, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	point, err := controller.Add(ctx, "Tanque", "old", 1, 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Offline edit stays pending.
	monitor.SetOffline(true)
	point.Description = "new"
	updated, err := controller.Update(ctx, point)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.SyncStatus != models.SyncPending {
		t.Errorf("offline update status: got %s, want pending", updated.SyncStatus)
	}
	if !updated.UpdatedAt.After(point.UpdatedAt) {
		t.Error("expected UpdatedAt to advance")
	}

	// Back online the same edit syncs through.
	monitor.SetOffline(false)
	synced, err := controller.Update(ctx, updated)
	if err != nil {
		t.Fatalf("Update (online) failed: %v", err)
	}
	if synced.SyncStatus != models.SyncSynced {
		t.Errorf("online update status: got %s, want synced", synced.SyncStatus)
	}
	stored, err := store.GetPoint(ctx, point.ID)
	if err != nil {
		t.Fatalf("GetPoint failed: %v", err)
	}
	if stored.Description != "new" {
		t.Errorf("description: got %q, want new", stored.Description)
	}
}

func TestDeleteIsFireAndForget(t *testing.T) {
	remote := newFakeRemote()
	controller, _, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group
	if err := controller.UseGroup(ctx, "BOM-NORTE"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	point, err := controller.Add(ctx, "Doomed", "", 1, 1)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Remote delete fails. Delete still succeeds locally.
	remote.failDeletes = true
	if err := controller.Delete(ctx, point.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(controller.Points()) != 0 {
		t.Fatal("point should be gone from the memory view")
	}
	if _, err := store.GetPoint(ctx, point.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("point should be gone locally, got %v", err)
	}

	// The server kept the point, so the next refresh resurrects it. This
	// is the documented consequence of delete-then-pull without tombstones.
	if err := controller.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if points := controller.Points(); len(points) != 1 || points[0].ID != point.ID {
		t.Fatalf("expected the point to resurface, got %d points", len(controller.Points()))
	}
}

func TestRestoreLastGroup(t *testing.T) {
	remote := newFakeRemote()
	controller, _, store := newTestController(t, remote)
	ctx := context.Background()

	group := models.NewGroup("BOM-NORTE", "Bomberos Norte")
	remote.groups[group.Code] = *group

	if err := controller.UseGroup(ctx, "bom-norte"); err != nil {
		t.Fatalf("UseGroup failed: %v", err)
	}

	code, err := store.GetSetting(ctx, models.SettingLastGroupCode)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if code != "BOM-NORTE" {
		t.Errorf("persisted code: got %q, want BOM-NORTE", code)
	}

	if err := controller.RestoreLastGroup(ctx); err != nil {
		t.Fatalf("RestoreLastGroup failed: %v", err)
	}
	if g := controller.ActiveGroup(); g == nil || g.Code != "BOM-NORTE" {
		t.Fatalf("active group: got %+v", g)
	}

	// A controller over a fresh, empty store has nothing to restore.
	fresh, _, _ := newTestController(t, remote)
	if err := fresh.RestoreLastGroup(ctx); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("fresh store should have no last group, got %v", err)
	}
}

func TestCreateGroupActivates(t *testing.T) {
	remote := newFakeRemote()
	controller, _, _ := newTestController(t, remote)
	ctx := context.Background()

	if err := controller.CreateGroup(ctx, "NUEVO", "Grupo Nuevo"); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if g := controller.ActiveGroup(); g == nil || g.Code != "NUEVO" {
		t.Fatalf("active group: got %+v", g)
	}
}

func TestLoadWithoutGroup(t *testing.T) {
	remote := newFakeRemote()
	controller, _, _ := newTestController(t, remote)

	if err := controller.Load(context.Background()); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound before UseGroup, got %v", err)
	}
}

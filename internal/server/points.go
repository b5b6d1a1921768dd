package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/middleware"
	"github.com/holdmymap/holdmymap/internal/models"
	"github.com/holdmymap/holdmymap/internal/storage"
)

type PointHandler struct {
	store storage.Store
}

func NewPointHandler(store storage.Store) *PointHandler {
	return &PointHandler{store: store}
}

// List handles GET /points?groupCode=CODE.
func (h *PointHandler) List(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeCode(r.URL.Query().Get("groupCode"))
	group, err := h.store.GetGroupByCode(r.Context(), code)
	if errors.Is(err, errs.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Group not found")
		return
	}
	if err != nil {
		slog.Error("failed to look up group", "code", code, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	points, err := h.store.ListPointsByGroup(r.Context(), group.ID)
	if err != nil {
		slog.Error("failed to list points", "group", group.Code, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	if points == nil {
		points = []models.Point{}
	}

	middleware.JSONResponse(w, http.StatusOK, map[string][]models.Point{"points": points})
}

// Upsert handles POST /points: create or replace by id, idempotently.
func (h *PointHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	point, ok := h.decodePoint(w, r)
	if !ok {
		return
	}

	if err := h.store.UpsertPoint(r.Context(), point); err != nil {
		slog.Error("failed to upsert point", "id", point.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, point)
}

// Update handles PUT /points. The update is blind: a missing id is not an
// error, the row is simply left absent.
func (h *PointHandler) Update(w http.ResponseWriter, r *http.Request) {
	point, ok := h.decodePoint(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdatePoint(r.Context(), point); err != nil {
		slog.Error("failed to update point", "id", point.ID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, point)
}

// Delete handles DELETE /points?id=ID. Deleting an absent point succeeds.
func (h *PointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Id is required")
		return
	}

	if err := h.store.DeletePoint(r.Context(), id); err != nil {
		slog.Error("failed to delete point", "id", id, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, map[string]bool{"success": true})
}

// BulkImport handles POST /points/bulk. Rows are upserted independently;
// the response partitions the input by outcome.
func (h *PointHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []models.Point `json:"points"`
	}
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result := models.BulkImportResult{Total: len(req.Points)}
	for i := range req.Points {
		point := &req.Points[i]
		point.SyncStatus = models.SyncSynced
		if err := point.Validate(); err != nil {
			result.Failed++
			continue
		}
		if err := h.store.UpsertPoint(r.Context(), point); err != nil {
			slog.Warn("bulk import row failed", "id", point.ID, "error", err)
			result.Failed++
			continue
		}
		result.Imported++
	}

	slog.Info("bulk import finished",
		"imported", result.Imported, "failed", result.Failed, "total", result.Total)
	middleware.JSONResponse(w, http.StatusOK, result)
}

// decodePoint parses and validates a point body. The server is the
// authority, so whatever sync status the client sent is overwritten with
// synced before the row lands.
func (h *PointHandler) decodePoint(w http.ResponseWriter, r *http.Request) (*models.Point, bool) {
	var point models.Point
	if err := middleware.ParseJSONBody(r, &point); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}

	point.SyncStatus = models.SyncSynced
	if err := point.Validate(); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &point, true
}

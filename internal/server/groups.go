// Package server implements the remote half of the sync protocol: a plain
// HTTP/JSON API over a storage.Store where every row is authoritative and
// therefore always synced.
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

type GroupHandler struct {
	store storage.Store
}

func NewGroupHandler(store storage.Store) *GroupHandler {
	return &GroupHandler{store: store}
}

// Resolve handles GET /groups?code=CODE.
func (h *GroupHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Code is required")
		return
	}

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

	middleware.JSONResponse(w, http.StatusOK, group)
}

// Create handles POST /groups.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Code == "" || req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Code and name are required")
		return
	}

	group := models.NewGroup(req.Code, req.Name)
	if err := group.Validate(); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.CreateGroup(r.Context(), group)
	if errors.Is(err, errs.ErrConflict) {
		middleware.ErrorResponse(w, http.StatusConflict, "Group already exists")
		return
	}
	if err != nil {
		slog.Error("failed to create group", "code", group.Code, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	slog.Info("group created", "code", group.Code, "id", group.ID)
	middleware.JSONResponse(w, http.StatusCreated, group)
}

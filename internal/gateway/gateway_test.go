package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/models"
)

func TestResolveGroup(t *testing.T) {
	t.Run("success decodes and keeps normalized code in query", func(t *testing.T) {
		var gotCode string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCode = r.URL.Query().Get("code")
			json.NewEncoder(w).Encode(models.NewGroup("BOM-NORTE", "Bomberos Norte"))
		}))
		defer server.Close()

		client := New(server.URL, nil)
		group, err := client.ResolveGroup(context.Background(), " bom-norte ")
		if err != nil {
			t.Fatalf("ResolveGroup failed: %v", err)
		}
		if gotCode != "BOM-NORTE" {
			t.Errorf("query code: got %q, want BOM-NORTE", gotCode)
		}
		if group.Code != "BOM-NORTE" {
			t.Errorf("group code: got %q", group.Code)
		}
	})

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Group not found"}`, http.StatusNotFound)
		}))
		defer server.Close()

		_, err := New(server.URL, nil).ResolveGroup(context.Background(), "NOPE")
		if !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("500 collapses to NetworkError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := New(server.URL, nil).ResolveGroup(context.Background(), "ANY")
		if !errs.IsNetwork(err) {
			t.Errorf("expected NetworkError, got %v", err)
		}
	})

	t.Run("dead server collapses to NetworkError", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		_, err := New(server.URL, nil).ResolveGroup(context.Background(), "ANY")
		if !errs.IsNetwork(err) {
			t.Errorf("expected NetworkError, got %v", err)
		}
	})
}

func TestCreateGroup(t *testing.T) {
	t.Run("409 maps to ErrConflict", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Group already exists"}`, http.StatusConflict)
		}))
		defer server.Close()

		_, err := New(server.URL, nil).CreateGroup(context.Background(), "TAKEN", "Taken")
		if !errors.Is(err, errs.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("400 maps to ValidationError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Code and name are required"}`, http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := New(server.URL, nil).CreateGroup(context.Background(), "", "")
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestUpsertPoint(t *testing.T) {
	point := models.NewPoint("group-1", "Tank 1", "", -33.49, -64.36)

	t.Run("201 returns server point", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method: got %s, want POST", r.Method)
			}
			var got models.Point
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			got.SyncStatus = models.SyncSynced
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(got)
		}))
		defer server.Close()

		saved, err := New(server.URL, nil).UpsertPoint(context.Background(), point)
		if err != nil {
			t.Fatalf("UpsertPoint failed: %v", err)
		}
		if saved.ID != point.ID {
			t.Errorf("id: got %s, want %s", saved.ID, point.ID)
		}
		if saved.SyncStatus != models.SyncSynced {
			t.Errorf("sync_status: got %s, want synced", saved.SyncStatus)
		}
	})

	t.Run("400 maps to ValidationError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"Missing required fields"}`, http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := New(server.URL, nil).UpsertPoint(context.Background(), point)
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestDeletePoint(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method: got %s, want DELETE", r.Method)
		}
		gotID = r.URL.Query().Get("id")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	defer server.Close()

	if err := New(server.URL, nil).DeletePoint(context.Background(), "p-1"); err != nil {
		t.Fatalf("DeletePoint failed: %v", err)
	}
	if gotID != "p-1" {
		t.Errorf("id: got %q, want p-1", gotID)
	}
}

func TestBulkImport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Points []models.Point `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(models.BulkImportResult{
			Imported: len(payload.Points), Failed: 0, Total: len(payload.Points),
		})
	}))
	defer server.Close()

	points := []models.Point{
		*models.NewPoint("g", "A", "", 1, 1),
		*models.NewPoint("g", "B", "", 2, 2),
	}
	result, err := New(server.URL, nil).BulkImport(context.Background(), points)
	if err != nil {
		t.Fatalf("BulkImport failed: %v", err)
	}
	if result.Imported != 2 || result.Total != 2 {
		t.Errorf("result: got %+v", result)
	}
}

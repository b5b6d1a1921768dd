package server

import (
	"net/http"

	"github.com/holdmymap/holdmymap/internal/middleware"
	"github.com/holdmymap/holdmymap/internal/storage"
)

// NewRouter builds the full HTTP surface over the given store.
func NewRouter(store storage.Store) http.Handler {
	mux := http.NewServeMux()

	groups := NewGroupHandler(store)
	points := NewPointHandler(store)

	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, middleware.WithLogging(middleware.WithMetrics(pattern, h)))
	}

	route("GET /groups", groups.Resolve)
	route("POST /groups", groups.Create)

	route("GET /points", points.List)
	route("POST /points", points.Upsert)
	route("PUT /points", points.Update)
	route("DELETE /points", points.Delete)
	route("POST /points/bulk", points.BulkImport)

	mux.HandleFunc("GET /ws", Connectivity)
	mux.Handle("GET /metrics", middleware.MetricsHandler())

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.CORS(mux)
}

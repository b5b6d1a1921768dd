package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// The API is origin-agnostic; replicas connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Connectivity handles GET /ws. Replicas hold the socket open as a liveness
// signal: a successful upgrade means online, a dropped connection means
// offline. No payload flows in either direction; the read loop exists only
// to notice the close.
func Connectivity(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

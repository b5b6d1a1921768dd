package netmon

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialRedial = time.Second
	maxRedial     = 30 * time.Second
)

// Watcher keeps a websocket to the server's connectivity endpoint and drives
// a Monitor from its lifecycle: a successful dial flips online, a read
// failure flips offline. Re-dials back off exponentially up to a cap; there
// is no request polling involved.
type Watcher struct {
	monitor *Monitor
	url     string
	dialer  *websocket.Dialer
}

// NewWatcher builds a watcher for the given server base URL (http or https).
func NewWatcher(monitor *Monitor, serverURL string) *Watcher {
	return &Watcher{
		monitor: monitor,
		url:     ConnectivityURL(serverURL),
		dialer:  websocket.DefaultDialer,
	}
}

// ConnectivityURL converts a server base URL into its websocket
// connectivity endpoint.
func ConnectivityURL(serverURL string) string {
	wsURL := strings.TrimSuffix(serverURL, "/")
	if u, err := url.Parse(wsURL); err == nil {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		wsURL = u.String()
	}
	return wsURL + "/ws"
}

// Run maintains the connection until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	backoff := initialRedial

	for {
		conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			w.monitor.SetOffline(true)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxRedial {
				backoff = maxRedial
			}
			continue
		}

		w.monitor.SetOffline(false)
		backoff = initialRedial
		slog.Debug("connectivity watcher connected", "url", w.url)

		w.readUntilClosed(ctx, conn)
		w.monitor.SetOffline(true)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (w *Watcher) readUntilClosed(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

// Probe performs a single connectivity check against the server and records
// the result in the monitor. One-shot consumers (the CLI) use this instead
// of a long-running watcher.
func Probe(ctx context.Context, monitor *Monitor, serverURL string) bool {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, ConnectivityURL(serverURL), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		monitor.SetOffline(true)
		return false
	}
	conn.Close()
	monitor.SetOffline(false)
	return true
}

// Package netmon tracks remote connectivity for the local-first engine.
//
// The Monitor holds a single offline boolean and notifies subscribers
// synchronously on every transition. It never triggers synchronization
// itself; reacting to a transition is the replica controller's job. State
// changes come from a Watcher (a held-open websocket to the server) or from
// a one-shot Probe, never from polling.
package netmon

import "sync"

// Monitor exposes the current online/offline state.
type Monitor struct {
	mu      sync.Mutex
	offline bool
	subs    []func(offline bool)
}

// New returns a monitor that starts online. The optimistic default matches
// the first operation attempting the network and flipping the state on
// failure.
func New() *Monitor {
	return &Monitor{}
}

// Offline reports whether the device currently has no remote connectivity.
func (m *Monitor) Offline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// SetOffline records a connectivity state. Subscribers are invoked
// synchronously, and only on an actual transition.
func (m *Monitor) SetOffline(offline bool) {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return
	}
	m.offline = offline
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(offline)
	}
}

// Subscribe registers fn to be called on every connectivity transition.
// Subscriptions cannot be removed; subscribers live as long as the monitor.
func (m *Monitor) Subscribe(fn func(offline bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

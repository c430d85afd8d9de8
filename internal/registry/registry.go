package registry

import (
	"errors"
	"log/slog"
	"sync"

	"inkrelay/internal/user"
)

// ErrClosed is returned by Register once CloseAll has run
var ErrClosed = errors.New("registry closed")

// Registry tracks the currently open connections
type Registry struct {
	connections map[string]*user.User
	broadcaster *Broadcaster
	closed      bool
	mu          sync.RWMutex
}

// New: creates an empty registry
func New(logger *slog.Logger) *Registry {
	r := &Registry{
		connections: make(map[string]*user.User),
	}
	r.broadcaster = NewBroadcaster(r, logger)
	return r
}

// Register: adds a newly handshaken connection. After CloseAll the
// connection is closed instead and ErrClosed returned.
func (r *Registry) Register(u *user.User) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		u.Close()
		return ErrClosed
	}
	r.connections[u.ID] = u
	r.mu.Unlock()
	return nil
}

// Unregister: removes a connection, no-op when already gone
func (r *Registry) Unregister(u *user.User) {
	r.RemoveConnection(u.ID)
}

// RemoveConnection: removes a connection by id
func (r *Registry) RemoveConnection(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, userID)
}

// Snapshot: copy of the current connections
func (r *Registry) Snapshot() []*user.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*user.User, 0, len(r.connections))
	for _, u := range r.connections {
		snapshot = append(snapshot, u)
	}
	return snapshot
}

// Count: number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

// BroadcastAll: sends msg to every open connection, returns how many received it
func (r *Registry) BroadcastAll(msg []byte) int {
	return r.broadcaster.Broadcast(msg, nil)
}

// BroadcastExcept: sends msg to every open connection but sender
func (r *Registry) BroadcastExcept(sender *user.User, msg []byte) int {
	return r.broadcaster.Broadcast(msg, sender)
}

// CloseAll: closes and forgets every connection, later registrations are refused
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	connections := r.connections
	r.connections = make(map[string]*user.User)
	r.mu.Unlock()

	for _, u := range connections {
		u.Close()
	}
}

package presence

import "sync"

// Handle is the live-delivery surface the dispatcher sees. *Conn
// implements it; tests substitute fakes.
type Handle interface {
	Push(payload []byte) error
}

// Registry maps a user id to their current live handle. It is the
// source of truth for "is this user reachable right now" on the
// routing path; the heartbeat flag in the store is a separate,
// coarser signal. All methods are safe for concurrent use and never
// block on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Handle
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Handle)}
}

// Register installs conn as the user's live handle and returns the
// handle it replaced, if any. The caller is expected to close the
// replaced handle; once swapped out it receives no further writes.
func (r *Registry) Register(userID int64, conn Handle) Handle {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = conn
	r.mu.Unlock()
	return previous
}

// Unregister removes the user's entry only if conn is still the
// registered handle. A close handler for a connection that has already
// been replaced must not evict its successor.
func (r *Registry) Unregister(userID int64, conn Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup returns the user's live handle, or nil.
func (r *Registry) Lookup(userID int64) Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID]
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID int64) bool {
	return r.Lookup(userID) != nil
}

// Len returns the number of live connections, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Package lockregistry hands out one mutex per account id.
//
// Handles are created on first use and kept for the life of the process,
// even after the account itself is gone, so a caller can never end up
// holding a handle that another caller has replaced.
package lockregistry

import "sync"

// Registry maps account ids to their lock handles
type Registry struct {
	handles map[string]*sync.Mutex
	mu      sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		handles: make(map[string]*sync.Mutex),
	}
}

// Handle returns the lock handle for id, creating it if absent.
// Concurrent first calls for the same id all receive the same handle.
func (r *Registry) Handle(id string) *sync.Mutex {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another goroutine may have created it between the locks.
	if h, ok := r.handles[id]; ok {
		return h
	}
	h = &sync.Mutex{}
	r.handles[id] = h
	return h
}

// Len returns the number of handles created so far
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

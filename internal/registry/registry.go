// Package registry tracks the identifiers of remote jobs currently being
// polled. The shutdown sequence snapshots it to know what to cancel.
package registry

import "sync"

// Registry is a mutex-guarded set of in-flight job identifiers.
// The zero value is not usable; call New.
type Registry struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Add inserts a job identifier.
func (r *Registry) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids[id] = struct{}{}
}

// Remove deletes a job identifier. Removing an identifier that is not
// present is a no-op: the runner and the shutdown path may race on it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.ids, id)
}

// Snapshot returns the current identifiers in no particular order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}

	return ids
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.ids)
}

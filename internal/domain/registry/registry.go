// Package registry tracks in-flight resolutions and processed collections
// for idempotency.
//
// The registry is instance state owned by its coordinator, not a process
// global, so tests and multiple coordinators never leak into each other.
// All check-then-set operations are atomic under one mutex.
package registry

import "sync"

// Registry deduplicates resolution triggers.
//
// Active entries live from Begin to End and stop the same tie group from
// being resolved twice when two update events race. Processed entries are
// keyed by collection id and persist until Forget is called for that
// collection; a collection triggers detection-driven resolution at most
// once per lifetime.
type Registry struct {
	mu        sync.Mutex
	active    map[string]struct{}
	processed map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		active:    make(map[string]struct{}),
		processed: make(map[string]struct{}),
	}
}

// Begin atomically records a resolution as in-flight. Returns false when
// the id is already active, in which case the caller must not start a
// second resolution.
func (r *Registry) Begin(resolutionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[resolutionID]; ok {
		return false
	}
	r.active[resolutionID] = struct{}{}
	return true
}

// End removes an in-flight resolution, whether it completed or was
// abandoned.
func (r *Registry) End(resolutionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, resolutionID)
}

// ActiveCount returns the number of in-flight resolutions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// MarkProcessed atomically records that a collection has had its ties
// detected. Returns false when the collection was already marked.
func (r *Registry) MarkProcessed(collectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processed[collectionID]; ok {
		return false
	}
	r.processed[collectionID] = struct{}{}
	return true
}

// Processed reports whether a collection has already been through
// detection.
func (r *Registry) Processed(collectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[collectionID]
	return ok
}

// Forget drops a collection's processed mark. Called only when the owning
// collection is deleted; processed marks are otherwise permanent.
func (r *Registry) Forget(collectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.processed, collectionID)
}

// Reset clears all state. Intended for coordinator lifecycle boundaries
// and tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = make(map[string]struct{})
	r.processed = make(map[string]struct{})
}

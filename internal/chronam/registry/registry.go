// Package registry tracks in-flight archive requests so duplicates can be
// rejected and live requests cancelled.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// ActiveRequest is a registered in-flight request. It is owned by the
// registry from Register until it is removed.
type ActiveRequest[K comparable] struct {
	Key          K
	ID           string
	Handle       types.Handle
	RegisteredAt time.Time
}

// Registry maps request keys to in-flight handles. All mutations are
// serialized by a single mutex; handle cancellation runs outside the lock.
type Registry[K comparable] struct {
	mu      sync.RWMutex
	entries map[K]*ActiveRequest[K]
	now     func() time.Time
}

// New creates an empty registry
func New[K comparable]() *Registry[K] {
	return &Registry[K]{
		entries: make(map[K]*ActiveRequest[K]),
		now:     time.Now,
	}
}

// Register stores handle under key. It fails with ErrDuplicateRequest when
// the key is already present, leaving the existing entry untouched.
func (r *Registry[K]) Register(key K, handle types.Handle) (*ActiveRequest[K], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return nil, types.ErrDuplicateRequest
	}

	entry := &ActiveRequest[K]{
		Key:          key,
		ID:           uuid.NewString(),
		Handle:       handle,
		RegisteredAt: r.now(),
	}
	r.entries[key] = entry
	return entry, nil
}

// Lookup returns the handle registered under key
func (r *Registry[K]) Lookup(key K) (types.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Handle, true
}

// Contains reports whether key is registered
func (r *Registry[K]) Contains(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Remove deletes key. Removing an absent key is a no-op.
func (r *Registry[K]) Remove(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// RemoveEntry deletes entry only if its key still maps to it. A completion
// arriving for a cancelled request therefore never evicts a newer request
// registered under the same key.
func (r *Registry[K]) RemoveEntry(entry *ActiveRequest[K]) bool {
	if entry == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[entry.Key] != entry {
		return false
	}
	delete(r.entries, entry.Key)
	return true
}

// CancelAndRemove removes key and cancels its handle. Concurrent callers
// race for the removal, so the handle is cancelled at most once per
// registration. Returns false when key was absent.
func (r *Registry[K]) CancelAndRemove(key K) bool {
	r.mu.Lock()
	entry, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if entry.Handle != nil {
		entry.Handle.Cancel()
	}
	return true
}

// CancelAll cancels and removes every registered request
func (r *Registry[K]) CancelAll() int {
	r.mu.Lock()
	entries := make([]*ActiveRequest[K], 0, len(r.entries))
	for key, entry := range r.entries {
		entries = append(entries, entry)
		delete(r.entries, key)
	}
	r.mu.Unlock()

	for _, entry := range entries {
		if entry.Handle != nil {
			entry.Handle.Cancel()
		}
	}
	return len(entries)
}

// Len returns the number of in-flight requests
func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys lists the registered keys in no particular order
func (r *Registry[K]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]K, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	return keys
}

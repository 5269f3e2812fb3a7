// Package service implements the archive request lifecycle: validation,
// duplicate rejection, cancellation and single-fire completion on top of a
// request registry and a transport.
package service

import (
	"sync"

	"github.com/lk2023060901/american-chronicle/internal/chronam/registry"
	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// deferredHandle stands in for the transport handle while the request is
// being issued. A cancel that arrives before bind is replayed on the real
// handle as soon as it is bound.
type deferredHandle struct {
	mu        sync.Mutex
	inner     types.Handle
	cancelled bool
}

func (h *deferredHandle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	inner := h.inner
	h.mu.Unlock()

	if inner != nil {
		inner.Cancel()
	}
}

func (h *deferredHandle) bind(inner types.Handle) {
	if inner == nil {
		return
	}

	h.mu.Lock()
	h.inner = inner
	cancelled := h.cancelled
	h.mu.Unlock()

	if cancelled {
		inner.Cancel()
	}
}

// track registers key, issues the request and arranges for completion to
// run exactly once, after the registry entry has been released. It returns
// ErrDuplicateRequest without issuing anything when key is already live.
func track[K comparable, T any](
	reg *registry.Registry[K],
	key K,
	issue func(done func(T, error)) types.Handle,
	completion func(T, error),
) (*registry.ActiveRequest[K], error) {
	handle := &deferredHandle{}
	entry, err := reg.Register(key, handle)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	done := func(result T, err error) {
		once.Do(func() {
			reg.RemoveEntry(entry)
			completion(result, err)
		})
	}

	handle.bind(issue(done))
	return entry, nil
}

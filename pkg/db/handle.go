package db

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// handle guards one engine reference. Every use of the reference happens under
// mu after a liveness check, and the reference is cleared exactly once, so a
// released handle never reaches the engine again.
//
// The lock is never held while user code runs: callbacks passed to Batch,
// Transaction and ForEach are invoked between handle calls, which is what makes
// calling back into the same handle from a callback safe.
type handle[T any] struct {
	mu     sync.Mutex
	ref    T
	live   bool
	closed error
}

func newHandle[T any](ref T, closed error) *handle[T] {
	return &handle[T]{ref: ref, live: true, closed: closed}
}

// with runs fn with the reference, or returns the handle's closed error.
func (h *handle[T]) with(fn func(ref T) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.live {
		return h.closed
	}
	return fn(h.ref)
}

func (h *handle[T]) alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// release clears the reference and hands it to fn. Releasing a released
// handle is a no-op.
func (h *handle[T]) release(fn func(ref T) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.live {
		return nil
	}
	return h.clear(fn)
}

// finish is release for terminal operations that must not be repeated: it
// returns the closed error when the handle is already released.
func (h *handle[T]) finish(fn func(ref T) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.live {
		return h.closed
	}
	return h.clear(fn)
}

func (h *handle[T]) clear(fn func(ref T) error) error {
	ref := h.ref
	var zero T
	h.ref = zero
	h.live = false
	return fn(ref)
}

// registry tracks the live children of a handle so they can be released
// before their parent.
type registry struct {
	mu     sync.Mutex
	items  map[any]child
	seq    uint64
	closed bool
}

type child struct {
	seq     uint64
	release func() error
}

func newRegistry() *registry {
	return &registry{items: make(map[any]child)}
}

// add registers release under key. It reports false once the registry has
// been released.
func (r *registry) add(key any, release func() error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.seq++
	r.items[key] = child{seq: r.seq, release: release}
	return true
}

func (r *registry) remove(key any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// releaseAll releases every registered child, newest first, so an iterator
// goes before the snapshot it reads. The registry lock is not held while
// children release, since they remove themselves.
func (r *registry) releaseAll() error {
	r.mu.Lock()
	items := make([]child, 0, len(r.items))
	for _, c := range r.items {
		items = append(items, c)
	}
	r.items = make(map[any]child)
	r.mu.Unlock()

	slices.SortFunc(items, func(a, b child) int {
		return cmp.Compare(b.seq, a.seq)
	})
	var errs []error
	for _, c := range items {
		errs = append(errs, c.release())
	}
	return errors.Join(errs...)
}

// close releases every child and refuses new ones.
func (r *registry) close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.releaseAll()
}

package http

import (
	"sync"

	"flowload/internal/core"
)

// InitBarrier runs a shared initialization once for all actors. Callers
// that arrive while it is running block until it finishes. A failed run is
// not remembered, so the next caller tries again.
type InitBarrier struct {
	mu       sync.Mutex
	done     bool
	snapshot core.Context
}

// Do runs fn if no earlier call has succeeded and returns a copy of the
// context it produced.
func (b *InitBarrier) Do(fn func() (core.Context, error)) (core.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.done {
		snap, err := fn()
		if err != nil {
			return nil, err
		}
		b.snapshot = snap
		b.done = true
	}
	return core.NewContext(b.snapshot), nil
}

// Done reports whether the shared initialization has completed.
func (b *InitBarrier) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

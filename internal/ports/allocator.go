// Package ports manages the fixed pool of host ports handed to session
// workers. One port per active session, never shared.
package ports

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when no port is free. The capacity gate is
// sized to the pool, so callers treat this as an invariant violation.
var ErrExhausted = errors.New("port pool exhausted")

// Allocator hands out ports from [base, base+size).
type Allocator struct {
	mu    sync.Mutex
	base  int
	size  int
	inUse map[int]bool
}

// New creates an allocator over [base, base+size).
func New(base, size int) *Allocator {
	return &Allocator{
		base:  base,
		size:  size,
		inUse: make(map[int]bool, size),
	}
}

// Acquire reserves the lowest free port. Atomic with respect to concurrent
// callers: two concurrent acquires never return the same port.
func (a *Allocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := a.base; p < a.base+a.size; p++ {
		if !a.inUse[p] {
			a.inUse[p] = true
			return p, nil
		}
	}
	return 0, ErrExhausted
}

// Release returns a port to the pool. Idempotent: releasing a free or
// out-of-range port is a no-op, which keeps double-teardown races harmless.
func (a *Allocator) Release(port int) {
	if port < a.base || port >= a.base+a.size {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, port)
}

// Free returns the number of unallocated ports.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size - len(a.inUse)
}

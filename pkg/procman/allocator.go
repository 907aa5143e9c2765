// Package procman supervises per-workspace dev-server processes: port
// leasing, dependency install, spawn, output capture into the log bus, and
// exit reaping.
package procman

import (
	"errors"
	"sync"
)

// ErrPortsExhausted indicates every port in the pool is leased.
var ErrPortsExhausted = errors.New("no preview ports available")

// Allocator hands out dev-server ports from a fixed pool [base, base+size).
// It never probes the OS; a lease is the only source of truth. The pool
// size doubles as the cap on concurrently running workspaces.
type Allocator struct {
	mu    sync.Mutex
	base  int
	inUse []bool
}

// NewAllocator creates a pool of size candidate ports starting at base.
func NewAllocator(base, size int) *Allocator {
	return &Allocator{
		base:  base,
		inUse: make([]bool, size),
	}
}

// Acquire leases the lowest free port or fails with ErrPortsExhausted.
func (a *Allocator) Acquire() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, used := range a.inUse {
		if !used {
			a.inUse[i] = true
			return a.base + i, nil
		}
	}
	return 0, ErrPortsExhausted
}

// Release returns a port to the pool. Ports outside the pool and
// double-releases are ignored.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := port - a.base
	if i < 0 || i >= len(a.inUse) {
		return
	}
	a.inUse[i] = false
}

// Leased reports how many ports are currently out.
func (a *Allocator) Leased() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, used := range a.inUse {
		if used {
			n++
		}
	}
	return n
}

// Package sync provides the synchronization primitives used by the early
// bring-up code, where goroutines and the scheduler are not yet available.
package sync

import (
	"sync/atomic"

	"gopherboot/kernel/cpu"
)

// Spinlock implements a lock where each core trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the current core. Any
// attempt to re-acquire a lock already held by the current core will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	for !l.TryToAcquire() {
		cpu.Relax()
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other cores to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

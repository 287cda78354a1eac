// Package ksync implements the kernel's blocking-capable synchronization
// primitives: a busy-wait spin mutex, a blocking mutex with
// direct hand-off wakeup, a counting semaphore and a condition variable.
// The spin mutex is grounded on gopher-os's kernel/sync.Spinlock
// (CAS-on-uint32, busy-wait Acquire, atomic-store Release); the blocking
// primitives generalize that shape to park on a wait queue instead of
// spinning: threads that cannot immediately acquire the resource block
// rather than spin.
package ksync

import "sync/atomic"

// SpinMutex busy-waits to acquire; reserved for the short kernel-internal
// critical sections that never block on I/O, the same role gopher-os's
// Spinlock plays.
type SpinMutex struct {
	state uint32
}

// Lock spins until the lock is free and atomically claims it.
func (l *SpinMutex) Lock() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// TryLock attempts to claim the lock without spinning.
func (l *SpinMutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Unlock releases a held lock. Unlocking a free lock has no effect,
// matching gopher-os's Spinlock.Release semantics.
func (l *SpinMutex) Unlock() {
	atomic.StoreUint32(&l.state, 0)
}

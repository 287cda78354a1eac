package ksync

import "sync"

// Mutex is a blocking mutex with direct hand-off: Unlock, when waiters
// are queued, transfers ownership straight to the longest-waiting
// blocked caller rather than clearing the lock and letting every waiter
// race to re-acquire it. This package's synchronization model calls for
// exactly this hand-off (a waiter that is woken is guaranteed to hold the lock next,
// with no possibility of being overtaken by a fresh Lock call), which
// Go's own sync.Mutex does not guarantee under contention, so this type
// is hand-rolled on channels — the idiomatic Go substitute for a wait
// queue of parked goroutines, one per kernel thread in this model.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock blocks until the mutex is acquired.
func (m *Mutex) Lock() {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()
	<-ch // woken already holding the lock: no re-check, no race to reacquire
}

// TryLock attempts to acquire without blocking.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases the mutex, handing it directly to the oldest queued
// waiter if one exists, or else marking it free.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		next <- struct{}{}
		return
	}
	m.locked = false
	m.mu.Unlock()
}

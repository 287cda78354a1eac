package ksync

import "sync"

// Semaphore is a counting semaphore with the same direct hand-off
// discipline as Mutex: Up(), when a waiter is queued, transfers a unit
// of the resource straight to it instead of incrementing the count and
// relying on a fresh race, matching this kernel's blocking-primitives model.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	waiters []chan struct{}
}

// NewSemaphore creates a semaphore with the given initial count.
func NewSemaphore(initial int) *Semaphore {
	return &Semaphore{count: initial}
}

// Down acquires one unit, blocking while the count is zero.
func (s *Semaphore) Down() {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	<-ch
}

// TryDown attempts to acquire one unit without blocking.
func (s *Semaphore) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	return false
}

// Up releases one unit, handing it to the oldest waiter if any.
func (s *Semaphore) Up() {
	s.mu.Lock()
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.mu.Unlock()
		next <- struct{}{}
		return
	}
	s.count++
	s.mu.Unlock()
}

// Count returns the current available count, for diagnostics/tests only.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

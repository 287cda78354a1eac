package kscall

import (
	"sync"

	"rvos/errs"
	"rvos/ksync"
	"rvos/proc"
)

// condWaiters tracks, per ksync.Condvar, the threads parked in
// sysCondvarWait. A raw ksync.Condvar.Wait blocks the calling goroutine
// directly with no scheduler involvement — fine for two ordinary Go
// goroutines, but fatal for a cooperatively scheduled task body, which
// would take the single hart down with it until some other (now
// unschedulable) task signalled the condvar. So kscall keeps its own
// wait list here and drives parking/waking through Thread.Block/
// Kernel.Wakeup instead, the same scheduler-integrated idiom
// original_source's condvar.rs uses (its own wait() calls
// block_current_and_run_next directly).
type condWaiters struct {
	mu      sync.Mutex
	waiting map[*ksync.Condvar][]*proc.Thread
}

func newCondWaiters() *condWaiters {
	return &condWaiters{waiting: make(map[*ksync.Condvar][]*proc.Thread)}
}

func (w *condWaiters) push(c *ksync.Condvar, th *proc.Thread) {
	w.mu.Lock()
	w.waiting[c] = append(w.waiting[c], th)
	w.mu.Unlock()
}

func (w *condWaiters) popOne(c *ksync.Condvar) (*proc.Thread, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.waiting[c]
	if len(q) == 0 {
		return nil, false
	}
	w.waiting[c] = q[1:]
	return q[0], true
}

func (d *Dispatcher) sysMutexCreate(th *proc.Thread) int64 {
	return ok(uint64(th.Process().CreateMutex()))
}

// sysMutexLock implements mutex_lock as a TryLock-then-yield
// loop: a raw Mutex.Lock would block this task's goroutine on a channel
// no scheduled task could ever signal without itself being scheduled,
// the same deadlock class TestForkAndWait's fix established for blocking
// primitives generally.
func (d *Dispatcher) sysMutexLock(th *proc.Thread, args [6]uint64) int64 {
	m := th.Process().Mutex(int(args[0]))
	if m == nil {
		return errVal(errs.EINVAL)
	}
	for !m.TryLock() {
		th.Yield()
	}
	return 0
}

func (d *Dispatcher) sysMutexUnlock(th *proc.Thread, args [6]uint64) int64 {
	m := th.Process().Mutex(int(args[0]))
	if m == nil {
		return errVal(errs.EINVAL)
	}
	m.Unlock()
	return 0
}

func (d *Dispatcher) sysSemaCreate(th *proc.Thread, args [6]uint64) int64 {
	return ok(uint64(th.Process().CreateSemaphore(int(int32(args[0])))))
}

func (d *Dispatcher) sysSemaUp(th *proc.Thread, args [6]uint64) int64 {
	s := th.Process().Semaphore(int(args[0]))
	if s == nil {
		return errVal(errs.EINVAL)
	}
	s.Up()
	return 0
}

// sysSemaDown implements semaphore_down as a TryDown-then-yield
// loop, for the same reason sysMutexLock avoids Mutex.Lock directly.
func (d *Dispatcher) sysSemaDown(th *proc.Thread, args [6]uint64) int64 {
	s := th.Process().Semaphore(int(args[0]))
	if s == nil {
		return errVal(errs.EINVAL)
	}
	for !s.TryDown() {
		th.Yield()
	}
	return 0
}

func (d *Dispatcher) sysCondvarCreate(th *proc.Thread) int64 {
	return ok(uint64(th.Process().CreateCondvar()))
}

// sysCondvarSignal implements condvar_signal: wakes one thread
// parked in sysCondvarWait, if any, through the scheduler rather than
// ksync.Condvar's own (unused here) channel-based waiter list.
func (d *Dispatcher) sysCondvarSignal(th *proc.Thread, args [6]uint64) int64 {
	c := th.Process().Condvar(int(args[0]))
	if c == nil {
		return errVal(errs.EINVAL)
	}
	if waiter, ok2 := d.condWaiters.popOne(c); ok2 {
		d.k.Wakeup(waiter)
	}
	return 0
}

// sysCondvarWait implements condvar_wait(cond, mutex): releases
// the named mutex, parks on the condvar's own wait list, blocks via
// Thread.Block (handing the hart to another ready task, unlike
// ksync.Condvar.Wait's raw channel receive), and on wakeup reacquires the
// mutex through the same TryLock-then-yield loop sysMutexLock uses.
func (d *Dispatcher) sysCondvarWait(th *proc.Thread, args [6]uint64) int64 {
	c := th.Process().Condvar(int(args[0]))
	m := th.Process().Mutex(int(args[1]))
	if c == nil || m == nil {
		return errVal(errs.EINVAL)
	}

	m.Unlock()
	d.condWaiters.push(c, th)
	th.Block()

	for !m.TryLock() {
		th.Yield()
	}
	return 0
}

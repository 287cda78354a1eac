package proc

import "sync"

// Accnt accumulates per-thread CPU-time accounting, in nanoseconds.
// Grounded on biscuit's accnt.Accnt_t (accnt/accnt.go): the same
// user/sys counter pair updated with atomic-style adds and merged into a
// parent total on thread exit, generalized from biscuit's
// time.Now()-based wall clock (this model has no hardware timer to read,
// so callers pass elapsed nanoseconds directly rather than this type
// sampling a clock itself).
type Accnt struct {
	mu      sync.Mutex
	UserNS  int64
	SysNS   int64
}

// AddUser records delta nanoseconds of user-mode execution.
func (a *Accnt) AddUser(delta int64) {
	a.mu.Lock()
	a.UserNS += delta
	a.mu.Unlock()
}

// AddSys records delta nanoseconds of kernel-mode execution (syscall
// handling, page-fault service, trap dispatch).
func (a *Accnt) AddSys(delta int64) {
	a.mu.Lock()
	a.SysNS += delta
	a.mu.Unlock()
}

// Snapshot returns a consistent (userNS, sysNS) pair.
func (a *Accnt) Snapshot() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.UserNS, a.SysNS
}

// Merge folds another thread's accounting into this one, used when a
// process retires a thread and wants to keep its usage in the process
// total (biscuit's Accnt_t.Add, used when a process's last thread
// exits and its resource usage is reported to a waiting parent).
func (a *Accnt) Merge(other *Accnt) {
	us, ss := other.Snapshot()
	a.mu.Lock()
	a.UserNS += us
	a.SysNS += ss
	a.mu.Unlock()
}

package sched

import "sync"

// Processor is the single-hart scheduler: one ready queue, one notion of
// "current", and the primitives every blocking syscall, timer tick and
// waker drives. Matches biscuit's single-Processor
// design in spirit (one hart, one active task at a time) with the
// ready-queue FIFO and idle handling this package implements.
type Processor struct {
	mu      sync.Mutex
	ready   []*Task
	current *Task
}

// New returns an idle processor with an empty ready queue.
func New() *Processor {
	return &Processor{}
}

// Spawn registers a new task in the ready queue and starts the goroutine
// that will run its body once scheduled. The task auto-exits when Body
// returns, the same way a thread falling off the end of its entry
// function implicitly calls exit.
func (p *Processor) Spawn(t *Task) {
	p.mu.Lock()
	p.ready = append(p.ready, t)
	p.mu.Unlock()

	go func() {
		<-t.resume
		t.Body()
		p.ExitCurrentAndRunNext(t)
	}()
}

func (p *Processor) popReady() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ready) == 0 {
		return nil
	}
	t := p.ready[0]
	p.ready = p.ready[1:]
	return t
}

// Run drives the hart forever: pop the next ready task, hand it control,
// and wait for it to yield (by suspending, blocking, or exiting) before
// picking the next one. Call it from the boot goroutine; it never
// returns.
func (p *Processor) Run() {
	for {
		t := p.popReady()
		if t == nil {
			continue // idle: real hardware would wfi; nothing useful to do here
		}

		p.mu.Lock()
		p.current = t
		t.state = StateRunning
		p.mu.Unlock()

		t.resume <- struct{}{}
		<-t.yield
	}
}

// RunOnce pops and runs exactly one task to completion of its current
// quantum, for deterministic tests that don't want a forever loop.
// Returns false if the ready queue was empty.
func (p *Processor) RunOnce() bool {
	t := p.popReady()
	if t == nil {
		return false
	}
	p.mu.Lock()
	p.current = t
	t.state = StateRunning
	p.mu.Unlock()

	t.resume <- struct{}{}
	<-t.yield
	return true
}

// Current returns the task presently holding the hart, or nil if idle.
func (p *Processor) Current() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SuspendCurrentAndRunNext yields the hart, re-queues self as ready (a
// timer-preemption or voluntary yield), and blocks self's goroutine until
// it is scheduled again.
func (p *Processor) SuspendCurrentAndRunNext(self *Task) {
	p.mu.Lock()
	self.state = StateReady
	p.ready = append(p.ready, self)
	p.current = nil
	p.mu.Unlock()

	self.yield <- struct{}{}
	<-self.resume
}

// BlockCurrentAndRunNext yields the hart without re-queueing self; some
// other task must later call WakeupTask(self) to make it runnable again
// (blocking syscalls and sync primitives drive this path).
func (p *Processor) BlockCurrentAndRunNext(self *Task) {
	p.mu.Lock()
	self.state = StateBlocked
	p.current = nil
	p.mu.Unlock()

	self.yield <- struct{}{}
	<-self.resume
}

// WakeupTask moves a blocked task back onto the ready queue. It panics
// if t is not currently blocked, since waking an already-runnable task
// indicates a bookkeeping bug elsewhere in the kernel.
func (p *Processor) WakeupTask(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.state != StateBlocked {
		panic("sched: wakeup of task not in blocked state")
	}
	t.state = StateReady
	p.ready = append(p.ready, t)
}

// ExitCurrentAndRunNext marks self permanently retired and yields the
// hart. Unlike Suspend/Block, the caller's goroutine is expected to
// return immediately afterward rather than wait on self.resume again.
func (p *Processor) ExitCurrentAndRunNext(self *Task) {
	p.mu.Lock()
	self.state = StateZombie
	p.current = nil
	p.mu.Unlock()

	self.yield <- struct{}{}
}

package proc

import (
	"rvos/idalloc"
	"rvos/pagetable"
	"rvos/sched"
	"rvos/timer"
	"rvos/trap"
	"rvos/vm"
)

// Thread is the kernel's Thread Control Block: the
// owning process, its scheduler task, its trap context, and the
// deterministic per-thread VA placement idalloc computes. There is no
// separately mapped kernel-stack/trap-context page in this model — the
// Go goroutine backing task stands in for the kernel stack, the same
// architecture-boundary substitution package sched documents — so
// kstackID/trapCxVPN are retained purely as spec-faithful bookkeeping
// (what cmd/kstat or a debugger would report), not addresses this
// kernel's own code ever dereferences.
type Thread struct {
	process  *Process
	tid      int
	kstackID int

	task  *sched.Task
	trapCx *trap.TrapContext
	trapCxVPN pagetable.VPN

	userStackBase uint64
	exitCode      *int

	accnt Accnt
}

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.process }

// TID returns the thread's process-local identifier.
func (t *Thread) TID() int { return t.tid }

// TrapContext exposes the thread's saved user register file for trap
// dispatch and syscall argument/return marshalling.
func (t *Thread) TrapContext() *trap.TrapContext { return t.trapCx }

// State delegates to the underlying scheduler task.
func (t *Thread) State() sched.State { return t.task.State() }

// Yield voluntarily gives up the hart and re-queues this thread at the
// tail of the ready queue, the cooperative "yield+retry" loop the kernel
// names for a blocking syscall's userspace-visible polling wrapper
// (e.g. a blocking waitpid built on top of the nonblocking probe).
func (t *Thread) Yield() {
	t.process.k.Processor.SuspendCurrentAndRunNext(t.task)
}

// Block parks this thread off the ready queue entirely; some other
// thread must call Kernel.Wakeup(t) to make it runnable again (used by
// ksync's blocking primitives and blocking I/O).
func (t *Thread) Block() {
	t.process.k.Processor.BlockCurrentAndRunNext(t.task)
}

// Wakeup moves a blocked thread back onto the ready queue.
func (k *Kernel) Wakeup(t *Thread) {
	k.Processor.WakeupTask(t.task)
}

// SleepMillis blocks the calling thread for at least ms milliseconds,
// registering a deadline with the kernel's timer queue and parking via
// Block rather than a raw time.Sleep, so the hart is relinquished to
// other ready tasks for the duration (sys_sleep, ported from
// original_source's add_timer + block_current_and_run_next pair).
func (t *Thread) SleepMillis(ms int64) {
	deadline := timer.Tick(uint64(t.process.k.Now()) + millisToTicks(ms))
	t.process.k.Timers.Add(deadline, t.task.ID)
	t.Block()
}

// ExitCode returns the thread's exit code and whether it has exited.
func (t *Thread) ExitCode() (int, bool) {
	if t.exitCode == nil {
		return 0, false
	}
	return *t.exitCode, true
}

// newMainTrapContext builds the initial TrapContext for a thread's entry
// into user mode, placing the bookkeeping-only kernel_sp/trap_handler
// fields at the VAs idalloc would have reserved for them in a model with
// a literal mapped kernel stack.
func newMainTrapContext(entry, userSP, kernelSatp uint64, kstackID, tid int) *trap.TrapContext {
	_, kstackTopVPN := idalloc.KernelStackSpan(kstackID)
	kernelSP := pagetable.VPNBase(kstackTopVPN)
	trapHandler := pagetable.VPNBase(idalloc.TrapContextVPN(tid))
	return trap.NewUserTrapContext(entry, userSP, kernelSatp, kernelSP, trapHandler)
}

// spawnMainThread allocates tid 0 plus a kernel-stack id for p's first
// thread, builds its initial trap context, registers it with the
// process, and enqueues it on the kernel's ready queue. program supplies
// the thread's body and is run to completion before the thread's exit is
// recorded with package sched.
func (p *Process) spawnMainThread(entry, userSP uint64, program func(*Thread) int) *Thread {
	tid := p.tidAlloc.Alloc()
	return p.newThread(tid, entry, userSP, 0, program)
}

// CreateThread allocates a fresh tid, a user stack within p's own
// address space (idalloc.UserStackSpan), and a kernel-stack id, then
// enqueues a new thread starting at entry with arg0 stamped into a0 —
// THREAD_CREATE syscall, ported from original_source's
// sys_thread_create (os/src/syscall/thread.rs), which likewise gives
// every non-main thread its own freshly mapped user stack rather than
// sharing tid 0's.
func (p *Process) CreateThread(entry, arg uint64, program func(*Thread) int) *Thread {
	tid := p.tidAlloc.Alloc()
	bottom, top := idalloc.UserStackSpan(tid)
	p.mu.Lock()
	p.ms.InsertFramed(bottom, top, vm.PermR|vm.PermW|vm.PermU)
	p.mu.Unlock()
	userSP := pagetable.VPNBase(top)
	return p.newThread(tid, entry, userSP, arg, program)
}

// newThread builds and enqueues a thread with the given tid, entry
// point, initial stack pointer and a0 argument, shared by spawnMainThread
// and CreateThread.
func (p *Process) newThread(tid int, entry, userSP, arg0 uint64, program func(*Thread) int) *Thread {
	kstackID := p.k.kstackAlloc.Alloc()

	th := &Thread{
		process:       p,
		tid:           tid,
		kstackID:      kstackID,
		trapCxVPN:     idalloc.TrapContextVPN(tid),
		userStackBase: userSP,
	}
	th.trapCx = newMainTrapContext(entry, userSP, p.ms.Token(), kstackID, tid)
	th.trapCx.X[trap.RegA0] = arg0

	taskID := p.k.nextTaskID()
	th.task = sched.NewTask(taskID, func() {
		code := program(th)
		p.exitThread(th, code)
	})
	p.k.registerThread(taskID, th)

	p.mu.Lock()
	p.threads = append(p.threads, th)
	p.mu.Unlock()

	p.k.Processor.Spawn(th.task)
	return th
}

// pushArgv lays out an argv array on the top of the user stack: a NULL-
// terminated array of pointers followed by the argument strings
// themselves, matching exec description (pointer array
// then strings, aligned down to a pointer). Returns the base address of
// the pointer array (argv for the new a1) and the new stack top (new
// sp).
func pushArgv(ms *vm.MemorySet, stackTop uint64, argv []string) (uint64, uint64) {
	const ptrSize = 8
	sp := stackTop

	strAddrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		sp -= uint64(len(s) + 1) // NUL-terminated
		ms.WriteUserBytes(sp, append([]byte(s), 0))
		strAddrs[i] = sp
	}

	sp &^= ptrSize - 1 // align down to a pointer before the array

	sp -= uint64(len(argv)+1) * ptrSize
	argvBase := sp
	for i, addr := range strAddrs {
		ms.WriteUserBytes(argvBase+uint64(i)*ptrSize, le64(addr))
	}
	ms.WriteUserBytes(argvBase+uint64(len(argv))*ptrSize, le64(0)) // NULL terminator

	return argvBase, sp
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

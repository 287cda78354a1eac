package proc

import (
	"sync"

	"rvos/config"
	"rvos/errs"
	"rvos/idalloc"
	"rvos/kfile"
	"rvos/ksignal"
	"rvos/ksync"
	"rvos/pagetable"
	"rvos/trap"
	"rvos/vm"
)

// Process is the kernel's Process Control Block:
// address space, parent/children tree, fd table, per-process signal
// state and sync-object handle tables, plus the heap/mmap bookkeeping
// sbrk and mmap need. mu is the "PCB inner" exclusive cell the lock
// ordering rule requires callers to drop before invoking anything in
// package sched that might block.
type Process struct {
	k   *Kernel
	pid int

	mu       sync.Mutex
	ms       *vm.MemorySet
	parent   *Process
	children []*Process
	exitCode int
	zombie   bool

	fds      FDTable
	threads  []*Thread
	tidAlloc *idalloc.Allocator

	sig *ksignal.State

	mutexes  []*ksync.Mutex
	sems     []*ksync.Semaphore
	condvars []*ksync.Condvar

	heapBottom uint64
	programBrk uint64
	mmapNext   pagetable.VPN

	accnt Accnt
}

// PID returns the process's unique identifier.
func (p *Process) PID() int { return p.pid }

// MemorySet exposes the address space for syscall-argument translation
// and page-fault handling.
func (p *Process) MemorySet() *vm.MemorySet { return p.ms }

// Signals exposes the per-process signal state.
func (p *Process) Signals() *ksignal.State { return p.sig }

// Accnt exposes the process's accumulated CPU-time accounting, for
// tooling (cmd/kstat) that reports per-process usage outside the kernel.
func (p *Process) Accnt() *Accnt { return &p.accnt }

// Spawn builds a fresh single-threaded process from an ELF image,
// installs stdin/stdout/stderr as fds 0/1/2, and enqueues its main
// thread on the kernel's ready queue.
// program is the thread body; in this model it stands in for "execute
// user instructions until a trap," since there is no RISC-V interpreter
// in this kernel core — callers (tests, cmd tools) supply it directly.
func (k *Kernel) Spawn(elfImage []byte, program func(*Thread) int, stdin, stdout, stderr kfile.File) (*Process, errs.Err_t) {
	ms, stackTop, entry, heapBase, err := vm.FromELF(k.Alloc, elfImage, k.TrampolinePPN)
	if err != nil {
		return nil, errs.ENOMEM
	}

	p := &Process{
		k:          k,
		ms:         ms,
		tidAlloc:   idalloc.New(0),
		sig:        ksignal.NewState(),
		heapBottom: heapBase,
		programBrk: heapBase,
		mmapNext:   pagetable.VAFloorVPN(stackTop) + 16, // leave headroom above the stack guard
	}
	p.pid = k.pidAlloc.Alloc()
	p.fds.Install(stdin)
	p.fds.Install(stdout)
	p.fds.Install(stderr)

	k.register(p)
	p.spawnMainThread(entry, stackTop, program)
	return p, errs.OK
}

// Fork clones the calling (single-threaded) process: a deep copy of its
// address space, a cloned fd table sharing the same underlying File
// objects, and copied signal mask/actions with a fresh empty pending
// set. The child is registered and its main
// thread enqueued; program supplies the child's thread body (the parent
// is responsible for arranging that it eventually calls Exit).
func (p *Process) Fork(program func(*Thread) int) (*Process, errs.Err_t) {
	p.mu.Lock()
	if len(p.threads) != 1 {
		p.mu.Unlock()
		return nil, errs.EINVAL
	}
	parentThread := p.threads[0]
	childMS := vm.FromExisting(p.ms, p.k.Alloc, p.k.TrampolinePPN)
	childSig := ksignal.NewState()
	childSig.Mask = p.sig.Mask
	childSig.Actions = p.sig.Actions
	child := &Process{
		k:          p.k,
		ms:         childMS,
		parent:     p,
		fds:        p.fds.clone(),
		tidAlloc:   idalloc.New(0),
		sig:        childSig,
		heapBottom: p.heapBottom,
		programBrk: p.programBrk,
		mmapNext:   p.mmapNext,
	}
	userStackBase := parentThread.userStackBase
	entry := parentThread.trapCx.Sepc
	p.mu.Unlock()

	child.pid = p.k.pidAlloc.Alloc()
	p.k.register(child)

	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()

	// The child's main thread reuses the already-cloned user stack
	// (FromExisting copied it byte for byte), so it does not re-allocate
	// user resources — only a fresh kernel stack, matching
	// original_source's alloc_user_res=false path. Its trap context is
	// built fresh: the parent's sepc and user stack top, with a0 = 0; the
	// parent's other registers are not copied.
	child.spawnMainThread(entry, userStackBase, program)
	return child, errs.OK
}

// Exec replaces the calling (single-threaded) process's address space
// with a fresh one built from elfImage, resets heap/mmap bookkeeping,
// and reinitializes the main thread's trap context with the new entry
// point and a freshly built argv on the user stack.
func (p *Process) Exec(elfImage []byte, argv []string) errs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.threads) != 1 {
		return errs.EINVAL
	}

	ms, stackTop, entry, heapBase, err := vm.FromELF(p.k.Alloc, elfImage, p.k.TrampolinePPN)
	if err != nil {
		return errs.ENOENT
	}
	p.ms.Destroy()
	p.ms = ms
	p.heapBottom = heapBase
	p.programBrk = heapBase
	p.mmapNext = pagetable.VAFloorVPN(stackTop) + 16

	argvBase, newSP := pushArgv(p.ms, stackTop, argv)

	th := p.threads[0]
	th.userStackBase = stackTop
	th.trapCx = newMainTrapContext(entry, newSP, p.ms.Token(), th.kstackID, th.tid)
	th.trapCx.X[trap.RegA0] = uint64(len(argv))
	th.trapCx.X[trap.RegA1] = argvBase
	return errs.OK
}

// exitThread records tid's exit code and, if it was the process's last
// thread, marks the process a zombie and reparents its children to its
// own parent (or drops them, if init has no parent): the zombie
// transition.
func (p *Process) exitThread(th *Thread, code int) {
	p.mu.Lock()
	if th.exitCode != nil {
		p.mu.Unlock()
		return
	}
	th.exitCode = &code
	p.accnt.Merge(&th.accnt)

	stillAlive := false
	for _, t := range p.threads {
		if t != th && t.exitCode == nil {
			stillAlive = true
			break
		}
	}
	var orphans []*Process
	if !stillAlive {
		p.zombie = true
		p.exitCode = code
		orphans = p.children
		p.children = nil
		if err := p.ms.SyncAllFileMappings(); err != nil {
			panic("proc: flushing file mappings at exit: " + err.Error())
		}
	}
	parent := p.parent
	p.mu.Unlock()

	if !stillAlive && parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, orphans...)
		for _, c := range orphans {
			c.mu.Lock()
			c.parent = parent
			c.mu.Unlock()
		}
		parent.mu.Unlock()
	}
}

// Exit terminates every thread of the process with the given code; used
// by SIGKILL delivery and process-wide abort ("whole process exits"
// paths, e.g. an unhandled SIGSEGV).
func (p *Process) Exit(code int) {
	p.mu.Lock()
	threads := append([]*Thread(nil), p.threads...)
	p.mu.Unlock()
	for _, th := range threads {
		if th.exitCode == nil {
			p.exitThread(th, code)
		}
	}
}

// IsZombie reports whether every thread of the process has exited.
func (p *Process) IsZombie() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zombie
}

// ExitCode returns the process's recorded exit code (valid once
// IsZombie is true).
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Children returns a snapshot of the process's current child list.
func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Process(nil), p.children...)
}

// Fds exposes the fd table for syscall handlers (package kscall).
func (p *Process) Fds() *FDTable { return &p.fds }

// CreateMutex installs a fresh blocking mutex in the process's handle
// table, returning its index (the userspace "mutex id" mutex_create
// hands back).
func (p *Process) CreateMutex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutexes = append(p.mutexes, &ksync.Mutex{})
	return len(p.mutexes) - 1
}

// Mutex returns the mutex at id, or nil if out of range.
func (p *Process) Mutex(id int) *ksync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.mutexes) {
		return nil
	}
	return p.mutexes[id]
}

// CreateSemaphore installs a fresh counting semaphore, returning its id.
func (p *Process) CreateSemaphore(initial int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sems = append(p.sems, ksync.NewSemaphore(initial))
	return len(p.sems) - 1
}

// Semaphore returns the semaphore at id, or nil if out of range.
func (p *Process) Semaphore(id int) *ksync.Semaphore {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.sems) {
		return nil
	}
	return p.sems[id]
}

// CreateCondvar installs a fresh condition variable, returning its id.
func (p *Process) CreateCondvar() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condvars = append(p.condvars, &ksync.Condvar{})
	return len(p.condvars) - 1
}

// Condvar returns the condvar at id, or nil if out of range.
func (p *Process) Condvar(id int) *ksync.Condvar {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.condvars) {
		return nil
	}
	return p.condvars[id]
}

// Mmap installs a demand-paged file-backed mapping in the process's own
// private mmap region, growing mmapNext past it with a one-page gap
// between successive mappings. Returns the VA the mapping starts at.
func (p *Process) Mmap(backing vm.FileBacking, length int, fileOffset int64, perm vm.Perm) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := p.mmapNext
	pages := pagetable.VPN((length + int(config.PageSize) - 1) / config.PageSize)
	if pages == 0 {
		pages = 1
	}
	end := start + pages
	p.ms.NewFileMapping(start, end, fileOffset, perm, backing)
	p.mmapNext = end + 1
	return pagetable.VPNBase(start)
}

// Munmap syncs and releases the file mapping starting at va: any
// dirtied pages are written back to the backing file before the
// mapping is dropped.
func (p *Process) Munmap(va uint64) errs.Err_t {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ms.RemoveFileMapping(pagetable.VAFloorVPN(va)) {
		return errs.EINVAL
	}
	return errs.OK
}

// Sbrk adjusts program_brk by delta bytes: a negative delta shrinks via
// MemorySet.ShrinkTo, a positive one grows via AppendTo. Returns the old
// brk, or an error if the new brk would fall below heap_bottom.
func (p *Process) Sbrk(delta int64) (uint64, errs.Err_t) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.programBrk
	next := int64(old) + delta
	if uint64(next) < p.heapBottom {
		return 0, errs.EINVAL
	}

	startVPN := pagetable.VAFloorVPN(p.heapBottom)
	oldEndVPN := pagetable.VAFloorVPN(old-1) + 1
	if old == p.heapBottom {
		oldEndVPN = startVPN
	}
	newEndVPN := pagetable.VAFloorVPN(uint64(next)-1) + 1
	if uint64(next) == p.heapBottom {
		newEndVPN = startVPN
	}

	if delta < 0 {
		if newEndVPN < oldEndVPN {
			if oldEndVPN > startVPN {
				p.ms.ShrinkTo(startVPN, newEndVPN)
			}
		}
	} else if delta > 0 {
		if oldEndVPN == startVPN && newEndVPN > startVPN {
			p.ms.InsertFramed(startVPN, newEndVPN, vm.PermR|vm.PermW|vm.PermU)
		} else if newEndVPN > oldEndVPN {
			p.ms.AppendTo(startVPN, newEndVPN)
		}
	}

	p.programBrk = uint64(next)
	return old, errs.OK
}

package kscall

import (
	"rvos/errs"
	"rvos/ksignal"
	"rvos/proc"
	"rvos/trap"
)

// Dispatcher holds the running Kernel and wires the syscall and
// page-fault causes into a package trap Dispatcher, sitting between
// package trap's trap entry and the rest of the kernel.
type Dispatcher struct {
	k           *proc.Kernel
	condWaiters *condWaiters
}

// New returns a syscall dispatcher over k.
func New(k *proc.Kernel) *Dispatcher {
	return &Dispatcher{k: k, condWaiters: newCondWaiters()}
}

// Wire registers this dispatcher's handlers on td for the user-ecall
// cause (the syscall path) and the three page-fault causes (lazily
// backed FileMapping pages), matching the control-flow line running
// from the trap entry through this dispatcher and package vm and back.
func (d *Dispatcher) Wire(td *trap.Dispatcher) {
	td.Register(trap.CauseUserEnvCall, d.handleEcall)
	pf := func(tc *trap.TrapContext) error {
		return d.handlePageFault(tc)
	}
	td.Register(trap.CauseStorePageFault, pf)
	td.Register(trap.CauseLoadPageFault, pf)
	td.Register(trap.CauseInstructionPageFault, pf)
}

// handlePageFault resolves the faulting address against the current
// thread's MemorySet; an unresolved fault raises SIGSEGV on the
// faulting thread rather than panicking the whole kernel, so a stray
// user pointer only kills the offending process.
func (d *Dispatcher) handlePageFault(tc *trap.TrapContext) error {
	th, ok := d.k.CurrentThread()
	if !ok {
		return trap.ErrNoHandler
	}
	if !th.Process().MemorySet().HandlePageFault(tc.Sepc) {
		th.Process().Signals().Raise(ksignal.SIGSEGV)
	}
	d.checkSignals(th)
	return nil
}

// handleEcall is the trap.Handler registered for CauseUserEnvCall: reads
// the pending syscall number/args out of tc, dispatches, writes the
// result back into a0, and runs the post-syscall signal check right
// before the return to user mode. sepc is advanced past the ecall
// unconditionally up front, matching original_source's trap handler
// (`cx.sepc += 4` before calling syscall), since exec can replace the
// whole trap context including sepc during the call.
func (d *Dispatcher) handleEcall(tc *trap.TrapContext) error {
	th, ok := d.k.CurrentThread()
	if !ok {
		return trap.ErrNoHandler
	}
	tc.Sepc += 4

	id := ID(tc.SyscallID())
	args := tc.SyscallArgs()
	result := d.dispatch(th, id, args)

	// exec/exit may have replaced th's trap context entirely; always
	// reload the live pointer before writing the return value.
	live := th.TrapContext()
	live.X[trap.RegA0] = uint64(result)
	d.checkSignals(th)
	return nil
}

// dispatch routes one syscall to its handler. A handler returns a raw
// a0 value: non-negative on success, or a negative Err_t value on
// failure — a signed generalization of the usual -1-on-error/-2-on-
// would-block convention to the full Err_t range.
func (d *Dispatcher) dispatch(th *proc.Thread, id ID, args [6]uint64) int64 {
	switch id {
	case SysExit:
		return d.sysExit(th, args)
	case SysYield:
		return d.sysYield(th)
	case SysGetPID:
		return d.sysGetPID(th)
	case SysGetTime:
		return d.sysGetTime(th)
	case SysSbrk:
		return d.sysSbrk(th, args)
	case SysFork:
		return d.sysFork(th)
	case SysExec:
		return d.sysExec(th, args)
	case SysWaitPID:
		return d.sysWaitPID(th, args)
	case SysSleep:
		return d.sysSleep(th, args)
	case SysKill:
		return d.sysKill(th, args)
	case SysSigAction:
		return d.sysSigAction(th, args)
	case SysSigProcMask:
		return d.sysSigProcMask(th, args)
	case SysSigReturn:
		return d.sysSigReturn(th)

	case SysThreadCreate:
		return d.sysThreadCreate(th, args)
	case SysGetTID:
		return d.sysGetTID(th)
	case SysWaitTID:
		return d.sysWaitTID(th, args)

	case SysRead:
		return d.sysRead(th, args)
	case SysWrite:
		return d.sysWrite(th, args)
	case SysOpen:
		return d.sysOpen(th, args)
	case SysClose:
		return d.sysClose(th, args)
	case SysPipe:
		return d.sysPipe(th, args)
	case SysDup:
		return d.sysDup(th, args)

	case SysMmap:
		return d.sysMmap(th, args)
	case SysMunmap:
		return d.sysMunmap(th, args)

	case SysMutexCreate:
		return d.sysMutexCreate(th)
	case SysMutexLock:
		return d.sysMutexLock(th, args)
	case SysMutexUnlock:
		return d.sysMutexUnlock(th, args)
	case SysSemaCreate:
		return d.sysSemaCreate(th, args)
	case SysSemaUp:
		return d.sysSemaUp(th, args)
	case SysSemaDown:
		return d.sysSemaDown(th, args)
	case SysCondvarCreate:
		return d.sysCondvarCreate(th)
	case SysCondvarSignal:
		return d.sysCondvarSignal(th, args)
	case SysCondvarWait:
		return d.sysCondvarWait(th, args)

	default:
		return errVal(errs.ENOENT)
	}
}

// checkSignals drains kernel-only signals (SIGKILL terminates the whole
// process; SIGSTOP/SIGCONT toggle Frozen) and, for fatal signals with no
// installed handler, kills the process with the negative-signal exit
// code original_source's SignalFlags::check_error table uses; otherwise
// it delivers the lowest-numbered caught signal by rewriting tc to enter
// the user handler. Called at the tail of every syscall and page fault,
// right before control returns to user mode.
func (d *Dispatcher) checkSignals(th *proc.Thread) {
	sig := th.Process().Signals()
	switch sig.DrainKernelSignals() {
	case ksignal.KernelActionKill:
		th.Process().Exit(-9)
		return
	}

	if code, fatal := fatalDefault(sig); fatal {
		th.Process().Exit(code)
		return
	}

	if s, ok := sig.NextDeliverable(); ok {
		act := sig.Actions[s]
		sig.EnterHandler(th.TrapContext(), s, act.Handler, sigreturnTrampolineVA)
	}
}

// fatalDefault reports whether a pending signal with no installed
// handler has a fatal default action, and the process exit code that
// action implies (ported from original_source's SignalFlags::check_error).
func fatalDefault(sig *ksignal.State) (int, bool) {
	fatal := []struct {
		sig  ksignal.Signal
		code int
	}{
		{ksignal.SIGINT, -2},
		{ksignal.SIGILL, -4},
		{ksignal.SIGABRT, -6},
		{ksignal.SIGFPE, -8},
		{ksignal.SIGSEGV, -11},
	}
	for _, f := range fatal {
		if sig.Pending.Test(f.sig) && sig.Actions[f.sig].Handler == 0 {
			sig.Pending.Clear(f.sig)
			return f.code, true
		}
	}
	return 0, false
}

// sigreturnTrampolineVA is the fixed user-space address EnterHandler
// stamps into ra so a signal handler's return lands back in the kernel
// (a sigreturn ecall) rather than wherever it was interrupted; real
// hardware would place this in the mapped trampoline page, but this
// kernel's trampoline is a Go data structure, not mapped user code (see
// package trap's doc comment), so user runtimes in this model are
// expected to install their own sigreturn stub at this well-known
// offset below the trampoline instead of relying on kernel-mapped code.
const sigreturnTrampolineVA = 0

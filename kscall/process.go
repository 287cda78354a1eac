package kscall

import (
	"rvos/errs"
	"rvos/ksignal"
	"rvos/proc"
	"rvos/trap"
	"rvos/vm"
)

// sysExit implements exit(code): the calling thread's body is
// already mid-call inside package proc's scheduled goroutine, so this
// only records the exit code seen by the syscall ABI — the thread
// actually unwinds when the goroutine backing it returns, the same
// "falls off the end" path spawnMainThread wires up. In this model the
// handler reports the code to the caller's process bookkeeping directly
// rather than unwinding a call stack that does not exist in Go's sense.
func (d *Dispatcher) sysExit(th *proc.Thread, args [6]uint64) int64 {
	th.Process().Exit(int(int32(args[0])))
	return 0
}

// sysYield implements sched_yield: give up the hart, re-queue
// at the tail of ready.
func (d *Dispatcher) sysYield(th *proc.Thread) int64 {
	th.Yield()
	return 0
}

func (d *Dispatcher) sysGetPID(th *proc.Thread) int64 {
	return ok(uint64(th.Process().PID()))
}

// sysGetTime returns the kernel's logical tick count (stands in for the mtime CSR).
func (d *Dispatcher) sysGetTime(th *proc.Thread) int64 {
	return ok(uint64(d.k.Now()))
}

func (d *Dispatcher) sysSbrk(th *proc.Thread, args [6]uint64) int64 {
	old, err := th.Process().Sbrk(int64(int32(args[0])))
	if err != errs.OK {
		return errVal(err)
	}
	return ok(old)
}

// sysFork implements fork. A freshly forked user thread returns 0 from
// fork and otherwise runs the same program text as its parent; there
// being no RISC-V interpreter in this model, the child's thread body
// only stamps a0 = 0 and the parent's sepc into its trap context (the
// state a child resumes from after fork() returns) and then returns 0,
// ending the child with exit code 0.
func (d *Dispatcher) sysFork(th *proc.Thread) int64 {
	entry := th.TrapContext().Sepc
	child, err := th.Process().Fork(func(ct *proc.Thread) int {
		ct.TrapContext().X[trap.RegA0] = 0
		ct.TrapContext().Sepc = entry
		return 0
	})
	if err != errs.OK {
		return errVal(err)
	}
	return ok(uint64(child.PID()))
}

// sysExec implements exec(path, argv): reads the path and argv
// strings out of user memory, then replaces the calling process's
// address space in place (ProcessControlBlock::exec).
func (d *Dispatcher) sysExec(th *proc.Thread, args [6]uint64) int64 {
	ms := th.Process().MemorySet()
	path, ok2 := ms.ReadUserCString(args[0], maxPathLen)
	if !ok2 {
		return errVal(errs.EFAULT)
	}
	argv, ok3 := readArgv(ms, args[1])
	if !ok3 {
		return errVal(errs.EFAULT)
	}

	elfImage, found := d.k.ReadFile(path)
	if !found {
		return errVal(errs.ENOENT)
	}
	if err := th.Process().Exec(elfImage, argv); err != errs.OK {
		return errVal(err)
	}
	return ok(uint64(len(argv)))
}

// readArgv walks the NULL-terminated array of user-space string pointers
// starting at argvVA, translating each string in turn.
func readArgv(ms *vm.MemorySet, argvVA uint64) ([]string, bool) {
	var argv []string
	for i := 0; ; i++ {
		ptrBytes, ok := ms.ReadUserBytes(argvVA+uint64(i)*8, 8)
		if !ok {
			return nil, false
		}
		var p uint64
		for i, b := range ptrBytes {
			p |= uint64(b) << (8 * i)
		}
		if p == 0 {
			break
		}
		s, ok := ms.ReadUserCString(p, maxPathLen)
		if !ok {
			return nil, false
		}
		argv = append(argv, s)
	}
	return argv, true
}

const maxPathLen = 256

// sysWaitPID implements waitpid(pid, &code): a single
// nonblocking probe. A blocking caller is expected to loop
// yield()-then-retry at user level, exactly the idiom
// TestForkAndWait exercises against Process.Wait directly.
func (d *Dispatcher) sysWaitPID(th *proc.Thread, args [6]uint64) int64 {
	pid := int(int32(args[0]))
	childPID, code, found, err := th.Process().Wait(pid)
	if err != errs.OK {
		return errVal(err)
	}
	if !found {
		return ok(^uint64(1)) // -2: exists but not yet exited
	}
	codeVA := args[1]
	if codeVA != 0 {
		th.Process().MemorySet().WriteUserBytes(codeVA, le32(uint32(code)))
	}
	return ok(uint64(childPID))
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// sysSleep implements sleep(ms): park via the timer queue
// rather than a raw channel wait, so the hart serves other ready threads
// for the duration (ported from original_source's add_timer +
// block_current_and_run_next).
func (d *Dispatcher) sysSleep(th *proc.Thread, args [6]uint64) int64 {
	th.SleepMillis(int64(args[0]))
	return 0
}

// sysKill implements kill(pid, sig): raises sig on the target
// process's signal state. Since this model's signal state is
// process-wide rather than per-thread, delivery fans out through
// whichever thread next checks signals, matching original_source's
// single-signal-state-per-task simplification scaled up to a process.
func (d *Dispatcher) sysKill(th *proc.Thread, args [6]uint64) int64 {
	target, ok2 := d.k.Lookup(int(int32(args[0])))
	if !ok2 {
		return errVal(errs.ESRCH)
	}
	sig := ksignal.Signal(args[1])
	if sig >= ksignal.MaxSignal {
		return errVal(errs.EINVAL)
	}
	target.Signals().Raise(sig)
	return 0
}

// sysSigAction implements sigaction(sig, &newAction): installs
// a custom handler/mask for sig, rejecting kernel-only signals the same
// way ksignal.State.SetAction does.
func (d *Dispatcher) sysSigAction(th *proc.Thread, args [6]uint64) int64 {
	sig := ksignal.Signal(args[0])
	act := ksignal.Action{Handler: args[1], Mask: ksignal.Bitset(args[2])}
	if !th.Process().Signals().SetAction(sig, act) {
		return errVal(errs.EINVAL)
	}
	return 0
}

// sysSigProcMask implements sigprocmask: replaces the process's
// blocked-signal set wholesale (this kernel tracks one mask per process,
// not per thread — see sysKill's doc comment).
func (d *Dispatcher) sysSigProcMask(th *proc.Thread, args [6]uint64) int64 {
	th.Process().Signals().SetMask(ksignal.Bitset(args[0]))
	return 0
}

// sysSigReturn implements sigreturn: restores the trap context
// EnterHandler snapshotted before entering the signal handler.
func (d *Dispatcher) sysSigReturn(th *proc.Thread) int64 {
	if !th.Process().Signals().SigReturn(th.TrapContext()) {
		return errVal(errs.EINVAL)
	}
	return ok(th.TrapContext().X[trap.RegA0])
}

package kscall

import (
	"rvos/errs"
	"rvos/proc"
)

// sysThreadCreate implements thread_create(entry, arg): gives
// the new thread its own user stack via Process.CreateThread and starts
// it at the caller-supplied entry with arg in a0, matching
// original_source's sys_thread_create, where the new task's trap context
// is primed directly rather than re-running any loader.
func (d *Dispatcher) sysThreadCreate(th *proc.Thread, args [6]uint64) int64 {
	entry, arg := args[0], args[1]
	child := th.Process().CreateThread(entry, arg, func(ct *proc.Thread) int {
		return runUserThread(ct)
	})
	return ok(uint64(child.TID()))
}

// runUserThread stands in for "run the user program until it calls
// exit", the same substitution package proc's spawnMainThread documents
// for a process's main thread: there is no RISC-V interpreter in this
// kernel core, so a created thread's body is a no-op placeholder a real
// caller (a test, or a future interpreter loop) is expected to replace.
func runUserThread(ct *proc.Thread) int {
	_ = ct
	return 0
}

func (d *Dispatcher) sysGetTID(th *proc.Thread) int64 {
	return ok(uint64(th.TID()))
}

// sysWaitTID implements waittid(tid): a single nonblocking
// probe, same "caller yields and retries" contract as sysWaitPID.
func (d *Dispatcher) sysWaitTID(th *proc.Thread, args [6]uint64) int64 {
	tid := int(int32(args[0]))
	code, found, err := th.Process().WaitTid(tid)
	if err != errs.OK {
		return errVal(err)
	}
	if !found {
		return ok(^uint64(1)) // -2: exists but not yet exited
	}
	return ok(uint64(int64(code)))
}

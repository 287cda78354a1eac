// Package trap models the trap entry/exit boundary: the
// saved user register file (TrapContext), the callee-saved switch frame
// used between kernel threads (TaskContext), and the cause dispatch that
// routes a trap to the scheduler, the syscall table or the page-fault
// handler.
//
// Biscuit crosses this boundary in hand-written x86 assembly (there is
// no Go source for it to borrow: biscuit's proc/ package, where Tf_t and
// the context-switch stubs would live, ships only as an empty module).
// Real RISC-V trampoline/switch assembly has no meaningful Go
// expression, so this package keeps biscuit's *data shapes* (a flat
// saved-register struct, a separate callee-saved switch struct) but
// replaces the assembly trampoline with
// an explicit Go call boundary: package sched's goroutine hand-off
// stands in for the architecture's __switch/trapret, the same way a
// host-arch stub stands in for inline assembly in any portable Go
// runtime package.
package trap

// TrapContext is the saved user register file plus the fields the trap
// trampoline needs to re-enter the kernel.
type TrapContext struct {
	X          [32]uint64 // general registers x0..x31 (x2 is sp)
	Sstatus    uint64
	Sepc       uint64
	KernelSatp uint64
	KernelSp   uint64
	TrapHandler uint64
}

// NewUserTrapContext builds the initial TrapContext for a freshly loaded
// or forked thread: pc set to entry, sp set to the user stack top, and
// the fields the trampoline needs to find its way back into the kernel.
func NewUserTrapContext(entry, userSP, kernelSatp, kernelSP, trapHandler uint64) *TrapContext {
	tc := &TrapContext{
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSP,
		TrapHandler: trapHandler,
	}
	tc.X[2] = userSP // sp
	return tc
}

// A0..A7 name the argument/return register indices used by the syscall
// ABI, matching calling convention.
const (
	RegSP = 2
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
	RegA4 = 14
	RegA5 = 15
	RegA7 = 17 // syscall number
)

// SyscallID returns the pending syscall number (a7).
func (tc *TrapContext) SyscallID() uint64 { return tc.X[RegA7] }

// SyscallArgs returns the first six argument registers (a0..a5).
func (tc *TrapContext) SyscallArgs() [6]uint64 {
	return [6]uint64{tc.X[RegA0], tc.X[RegA1], tc.X[RegA2], tc.X[RegA3], tc.X[RegA4], tc.X[RegA5]}
}

// SetReturn stores a syscall's result into a0 and advances sepc past the
// ecall instruction (4 bytes), so re-entering the user program resumes
// after the call rather than re-trapping on it.
func (tc *TrapContext) SetReturn(v uint64) {
	tc.Sepc += 4
	tc.X[RegA0] = v
}

// TaskContext holds the callee-saved registers swapped by a kernel
// thread switch: return address, stack pointer, and s0..s11.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// GoZero builds a TaskContext that, on first switch-in, "returns into"
// entry with the given kernel stack top — the Go analogue of biscuit's
// trapret-primed initial context for a brand new thread.
func GoZero(entry, kernelSP uint64) *TaskContext {
	return &TaskContext{RA: entry, SP: kernelSP}
}

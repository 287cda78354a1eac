package trap

import (
	"fmt"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// Cause identifies why control entered the trap handler, collapsing the
// scause CSR's interrupt bit and exception code into one Go value.
type Cause int

const (
	CauseUnknown Cause = iota
	CauseUserEnvCall
	CauseStorePageFault
	CauseLoadPageFault
	CauseInstructionPageFault
	CauseIllegalInstruction
	CauseTimerInterrupt
)

func (c Cause) String() string {
	switch c {
	case CauseUserEnvCall:
		return "user ecall"
	case CauseStorePageFault:
		return "store page fault"
	case CauseLoadPageFault:
		return "load page fault"
	case CauseInstructionPageFault:
		return "instruction page fault"
	case CauseIllegalInstruction:
		return "illegal instruction"
	case CauseTimerInterrupt:
		return "timer interrupt"
	default:
		return "unknown cause"
	}
}

// IsPageFault reports whether the cause is one of the three page-fault
// exceptions, the cases HandlePageFault in package vm is consulted for.
func (c Cause) IsPageFault() bool {
	switch c {
	case CauseStorePageFault, CauseLoadPageFault, CauseInstructionPageFault:
		return true
	}
	return false
}

// DescribeIllegalInstruction disassembles the faulting word at the
// current pc for inclusion in a fatal-signal diagnostic message. It is
// best-effort: a decode failure still yields a usable message instead of
// propagating the error, since this only ever feeds human-readable
// output on the way to killing the offending thread.
func DescribeIllegalInstruction(pcBytes []byte) string {
	inst, err := riscv64asm.Decode(pcBytes)
	if err != nil {
		return fmt.Sprintf("undecodable instruction bytes %x", pcBytes)
	}
	return inst.String()
}

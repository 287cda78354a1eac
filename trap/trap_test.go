package trap

import "testing"

func TestSyscallArgsAndReturn(t *testing.T) {
	tc := NewUserTrapContext(0x1000, 0x2000, 0x8000000000001234, 0x3000, 0x4000)
	tc.X[RegA7] = 64 // sys_write
	tc.X[RegA0] = 1
	tc.X[RegA1] = 0xdead
	tc.X[RegA2] = 5

	if tc.SyscallID() != 64 {
		t.Fatalf("syscall id = %d, want 64", tc.SyscallID())
	}
	args := tc.SyscallArgs()
	if args[0] != 1 || args[1] != 0xdead || args[2] != 5 {
		t.Fatalf("unexpected args: %v", args)
	}

	before := tc.Sepc
	tc.SetReturn(3)
	if tc.X[RegA0] != 3 {
		t.Fatalf("a0 = %d, want 3", tc.X[RegA0])
	}
	if tc.Sepc != before+4 {
		t.Fatalf("sepc not advanced: got %#x want %#x", tc.Sepc, before+4)
	}
}

func TestCauseIsPageFault(t *testing.T) {
	for _, c := range []Cause{CauseStorePageFault, CauseLoadPageFault, CauseInstructionPageFault} {
		if !c.IsPageFault() {
			t.Fatalf("%v should be a page fault", c)
		}
	}
	if CauseUserEnvCall.IsPageFault() {
		t.Fatal("ecall is not a page fault")
	}
}

func TestDispatcherRoutesByCause(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.Register(CauseUserEnvCall, func(tc *TrapContext) error {
		called = true
		return nil
	})
	tc := &TrapContext{}
	if err := d.Dispatch(CauseUserEnvCall, tc); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !called {
		t.Fatal("expected handler to run")
	}
	if err := d.Dispatch(CauseTimerInterrupt, tc); err != ErrNoHandler {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

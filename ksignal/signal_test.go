package ksignal

import (
	"testing"

	"rvos/trap"
)

func TestSetActionRejectsKernelOnlySignals(t *testing.T) {
	s := NewState()
	if s.SetAction(SIGKILL, Action{Handler: 0x4000}) {
		t.Fatal("expected SIGKILL action to be rejected")
	}
	if s.SetAction(SIGSTOP, Action{Handler: 0x4000}) {
		t.Fatal("expected SIGSTOP action to be rejected")
	}
	if !s.SetAction(SIGUSR1, Action{Handler: 0x4000}) {
		t.Fatal("expected SIGUSR1 action to be accepted")
	}
}

func TestDrainKernelSignalsKillWins(t *testing.T) {
	s := NewState()
	s.Raise(SIGSTOP)
	s.Raise(SIGKILL)
	if got := s.DrainKernelSignals(); got != KernelActionKill {
		t.Fatalf("action = %v, want kill", got)
	}
	if !s.Killed {
		t.Fatal("expected Killed to be set")
	}
	if s.Pending.Test(SIGSTOP) {
		t.Fatal("SIGSTOP should have been cleared too")
	}
}

func TestDrainKernelSignalsStopThenContinue(t *testing.T) {
	s := NewState()
	s.Raise(SIGSTOP)
	if got := s.DrainKernelSignals(); got != KernelActionStop || !s.Frozen {
		t.Fatalf("action = %v frozen=%v, want stop/true", got, s.Frozen)
	}
	s.Raise(SIGCONT)
	if got := s.DrainKernelSignals(); got != KernelActionContinue || s.Frozen {
		t.Fatalf("action = %v frozen=%v, want continue/false", got, s.Frozen)
	}
}

func TestNextDeliverableSkipsMaskedAndDefault(t *testing.T) {
	s := NewState()
	s.Raise(SIGUSR1) // no handler installed: default no-op, should be skipped
	if _, ok := s.NextDeliverable(); ok {
		t.Fatal("expected no deliverable signal without a handler")
	}

	s.SetAction(SIGUSR1, Action{Handler: 0x5000})
	s.Raise(SIGUSR1)
	s.Mask.Set(SIGUSR1)
	if _, ok := s.NextDeliverable(); ok {
		t.Fatal("expected masked signal to be skipped")
	}

	s.Mask.Clear(SIGUSR1)
	sig, ok := s.NextDeliverable()
	if !ok || sig != SIGUSR1 {
		t.Fatalf("expected SIGUSR1 deliverable, got %v ok=%v", sig, ok)
	}
}

func TestEnterHandlerAndSigReturnRoundTrip(t *testing.T) {
	s := NewState()
	s.SetAction(SIGUSR1, Action{Handler: 0x5000, Mask: 0})
	s.Raise(SIGUSR1)

	tc := trap.NewUserTrapContext(0x1000, 0x2000, 0, 0, 0)
	origSepc := tc.Sepc

	sig, ok := s.NextDeliverable()
	if !ok || sig != SIGUSR1 {
		t.Fatalf("expected SIGUSR1 ready, got %v/%v", sig, ok)
	}
	s.EnterHandler(tc, sig, 0x5000, 0x7000)
	if tc.Sepc != 0x5000 {
		t.Fatalf("sepc = %#x, want handler entry", tc.Sepc)
	}
	if tc.X[trap.RegA0] != uint64(SIGUSR1) {
		t.Fatalf("a0 = %d, want signal number", tc.X[trap.RegA0])
	}

	if !s.SigReturn(tc) {
		t.Fatal("expected sigreturn to succeed")
	}
	if tc.Sepc != origSepc {
		t.Fatalf("sepc after sigreturn = %#x, want restored %#x", tc.Sepc, origSepc)
	}
	if s.SigReturn(tc) {
		t.Fatal("expected a second sigreturn with no handler in progress to fail")
	}
}

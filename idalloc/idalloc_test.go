package idalloc

import "testing"

func TestAllocRecyclesBeforeBumping(t *testing.T) {
	a := New(0)
	ids := []int{a.Alloc(), a.Alloc(), a.Alloc()}
	if ids[0] != 0 || ids[1] != 1 || ids[2] != 2 {
		t.Fatalf("unexpected id sequence: %v", ids)
	}
	a.Dealloc(1)
	if got := a.Alloc(); got != 1 {
		t.Fatalf("expected recycled id 1, got %d", got)
	}
	if got := a.Alloc(); got != 3 {
		t.Fatalf("expected fresh bump to 3, got %d", got)
	}
}

func TestDeallocTwicePanics(t *testing.T) {
	a := New(0)
	id := a.Alloc()
	a.Dealloc(id)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double dealloc")
		}
	}()
	a.Dealloc(id)
}

func TestDeallocNeverAllocatedPanics(t *testing.T) {
	a := New(0)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on dealloc of unallocated id")
		}
	}()
	a.Dealloc(5)
}

func TestKernelStackSpansDontOverlap(t *testing.T) {
	b0, t0 := KernelStackSpan(0)
	b1, t1 := KernelStackSpan(1)
	if t0 <= b0 {
		t.Fatal("bad span for id 0")
	}
	if b1 >= b0 {
		t.Fatal("expected id 1's span to sit below id 0's")
	}
	if t1 > b0 {
		t.Fatal("expected a guard gap between stack spans")
	}
}

func TestTrapContextVPNDescendsPerThread(t *testing.T) {
	if TrapContextVPN(1) >= TrapContextVPN(0) {
		t.Fatal("expected trap context pages to descend with thread id")
	}
}

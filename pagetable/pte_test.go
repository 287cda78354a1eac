package pagetable

import (
	"testing"

	"rvos/mem"
)

func newAlloc() *mem.FrameAllocator {
	return mem.NewFrameAllocator(0, 4096)
}

func TestMapTranslateUnmap(t *testing.T) {
	pt := New(newAlloc())
	fr, ok := mem.NewFrameTracker(pt.alloc)
	if !ok {
		t.Fatal("alloc failed")
	}
	vpn := VPN(0x1234)
	pt.Map(vpn, fr.PPN, FlagR|FlagW|FlagU)

	pte, ok := pt.Translate(vpn)
	if !ok {
		t.Fatal("expected mapping")
	}
	if pte.PPN() != fr.PPN {
		t.Fatalf("ppn mismatch: got %d want %d", pte.PPN(), fr.PPN)
	}
	if !pte.Readable() || !pte.Writable() || !pte.User() || pte.Executable() {
		t.Fatalf("unexpected flags: %#x", pte.Flags())
	}

	pt.Unmap(vpn)
	if _, ok := pt.Translate(vpn); ok {
		t.Fatal("expected unmapped")
	}
}

func TestMapTwiceSamePagePanics(t *testing.T) {
	pt := New(newAlloc())
	fr, _ := mem.NewFrameTracker(pt.alloc)
	vpn := VPN(7)
	pt.Map(vpn, fr.PPN, FlagR)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double map")
		}
	}()
	pt.Map(vpn, fr.PPN, FlagR)
}

func TestUnmapUnmappedPanics(t *testing.T) {
	pt := New(newAlloc())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unmap of unmapped vpn")
		}
	}()
	pt.Unmap(VPN(99))
}

func TestTranslateVA(t *testing.T) {
	pt := New(newAlloc())
	fr, _ := mem.NewFrameTracker(pt.alloc)
	vpn := VPN(3)
	pt.Map(vpn, fr.PPN, FlagR|FlagW)

	va := VPNBase(vpn) + 0x42
	pa, ok := pt.TranslateVA(va)
	if !ok {
		t.Fatal("expected translation")
	}
	want := uint64(fr.PPN)<<12 | 0x42
	if pa != want {
		t.Fatalf("got %#x want %#x", pa, want)
	}
}

package vm

import (
	"debug/elf"
	"testing"

	"rvos/mem"
	"rvos/pagetable"
)

func newTestAlloc() *mem.FrameAllocator {
	return mem.NewFrameAllocator(0, 4096)
}

func trampolineFrame(alloc *mem.FrameAllocator) mem.PPN {
	fr, ok := mem.NewFrameTracker(alloc)
	if !ok {
		panic("alloc failed")
	}
	return fr.PPN
}

func TestInsertFramedOverlapPanics(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	ms.InsertFramed(0, 4, PermR|PermW)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overlapping insert")
		}
	}()
	ms.InsertFramed(2, 6, PermR)
}

func TestInsertFramedAndTranslate(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	ms.MapTrampoline(trampolineFrame(alloc))

	a := ms.InsertFramed(10, 12, PermR|PermW|PermU)
	if len(a.frames) != 2 {
		t.Fatalf("frames = %d, want 2 (InsertFramed maps every page of [10,12) eagerly)", len(a.frames))
	}
	pte, ok := ms.Translate(10)
	if !ok || !pte.Readable() || !pte.Writable() || !pte.User() {
		t.Fatalf("bad translation for vpn 10: %#v ok=%v", pte, ok)
	}
}

func TestRemoveAreaReleasesFrames(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	before := alloc.Free()
	ms.InsertFramed(0, 3, PermR|PermW)
	if alloc.Free() != before-5 {
		t.Fatalf("expected 3 data frames plus 2 interior page-table frames consumed, free=%d before=%d", alloc.Free(), before)
	}
	ms.RemoveArea(0)
	if alloc.Free() != before-2 {
		t.Fatalf("expected the 3 data frames released (interior page-table frames stay with the table), free=%d before=%d", alloc.Free(), before)
	}
}

func TestAppendAndShrink(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	ms.InsertFramed(0, 2, PermR|PermW)
	ms.AppendTo(0, 5)
	if _, ok := ms.Translate(4); !ok {
		t.Fatal("expected vpn 4 mapped after append")
	}
	ms.ShrinkTo(0, 2)
	if _, ok := ms.Translate(4); ok {
		t.Fatal("expected vpn 4 unmapped after shrink")
	}
}

func TestFromExistingDeepCopiesBytes(t *testing.T) {
	alloc := newTestAlloc()
	tramp := trampolineFrame(alloc)
	src := NewBare(alloc)
	src.MapTrampoline(tramp)
	src.InsertFramed(0, 1, PermR|PermW)

	srcBytes, _ := src.pt.PageBytes(0)
	srcBytes[0] = 0xAB

	dst := FromExisting(src, alloc, tramp)
	dstBytes, ok := dst.pt.PageBytes(0)
	if !ok {
		t.Fatal("expected vpn 0 mapped in cloned set")
	}
	if dstBytes[0] != 0xAB {
		t.Fatalf("expected cloned byte 0xAB, got %#x", dstBytes[0])
	}

	// Mutating the child must not affect the parent (eager copy, not COW).
	dstBytes[0] = 0xCD
	if srcBytes[0] != 0xAB {
		t.Fatalf("parent page mutated through child: %#x", srcBytes[0])
	}
}

func TestReadWriteUserBytesRoundTrip(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	ms.InsertFramed(0, 2, PermR|PermW|PermU)

	want := []byte("hello, kernel")
	ms.WriteUserBytes(100, want)
	got, ok := ms.ReadUserBytes(100, len(want))
	if !ok {
		t.Fatal("expected read to succeed")
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadUserCStringFindsNULAcrossPageBoundary(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	ms.InsertFramed(0, 2, PermR|PermW|PermU)

	const pageSize = 4096
	va := uint64(pageSize - 4)
	ms.WriteUserBytes(va, append([]byte("over"), 0))

	got, ok := ms.ReadUserCString(va, 64)
	if !ok || got != "over" {
		t.Fatalf("ReadUserCString = (%q, %v), want (\"over\", true)", got, ok)
	}
}

func TestReadUserBytesUnmappedFails(t *testing.T) {
	alloc := newTestAlloc()
	ms := NewBare(alloc)
	if _, ok := ms.ReadUserBytes(0, 8); ok {
		t.Fatal("expected failure reading unmapped va")
	}
}

// minimalELF builds the smallest valid little-endian riscv64 ELF with a
// single PT_LOAD segment, enough for FromELF to exercise its segment
// walk without needing a real toolchain-built binary on disk.
func minimalELF(t *testing.T) []byte {
	t.Helper()
	const vaddr = 0x1000
	text := []byte{0x13, 0x00, 0x00, 0x00} // addi x0, x0, 0 (nop)

	ehsize := 64
	phsize := 56
	phoff := ehsize
	dataOff := phoff + phsize

	buf := make([]byte, dataOff+len(text))

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little endian
	buf[6] = 1 // EV_CURRENT
	buf[7] = byte(elf.ELFOSABI_NONE)

	le := func(off int, v uint64, n int) {
		for i := 0; i < n; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	le(16, uint64(elf.ET_EXEC), 2)
	le(18, uint64(elf.EM_RISCV), 2)
	le(20, uint64(elf.EV_CURRENT), 4)
	le(24, vaddr, 8)           // e_entry
	le(32, uint64(phoff), 8)   // e_phoff
	le(40, 0, 8)               // e_shoff
	le(48, 0, 4)               // e_flags
	le(52, uint64(ehsize), 2)  // e_ehsize
	le(54, uint64(phsize), 2)  // e_phentsize
	le(56, 1, 2)               // e_phnum

	ph := buf[phoff:]
	w := func(off int, v uint64, n int) {
		for i := 0; i < n; i++ {
			ph[off+i] = byte(v >> (8 * i))
		}
	}
	w(0, uint64(elf.PT_LOAD), 4)
	w(4, uint64(elf.PF_R|elf.PF_X), 4)
	w(8, uint64(dataOff), 8)        // p_offset
	w(16, vaddr, 8)                 // p_vaddr
	w(24, vaddr, 8)                 // p_paddr
	w(32, uint64(len(text)), 8)     // p_filesz
	w(40, uint64(len(text)), 8)     // p_memsz
	w(48, uint64(0x1000), 8)        // p_align

	copy(buf[dataOff:], text)
	return buf
}

func TestFromELFLoadsSegmentAndSetsUpStack(t *testing.T) {
	alloc := newTestAlloc()
	image := minimalELF(t)

	ms, sp, entry, heapBase, err := FromELF(alloc, image, trampolineFrame(alloc))
	if err != nil {
		t.Fatalf("FromELF: %v", err)
	}
	if entry != 0x1000 {
		t.Fatalf("entry = %#x, want %#x", entry, 0x1000)
	}
	if sp == 0 {
		t.Fatal("expected non-zero stack top")
	}
	if heapBase == 0 || heapBase >= sp {
		t.Fatalf("heapBase = %#x, want nonzero and below stack top %#x", heapBase, sp)
	}
	pa, ok := ms.pt.TranslateVA(0x1000)
	if !ok {
		t.Fatal("expected entry address mapped")
	}
	_ = pa

	stackVPN := pagetable.VAFloorVPN(sp - 1)
	if _, ok := ms.pt.Translate(stackVPN); !ok {
		t.Fatal("expected top-of-stack page mapped")
	}
}

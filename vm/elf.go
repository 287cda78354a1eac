package vm

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"

	"rvos/config"
	"rvos/mem"
	"rvos/pagetable"
)

// elfFlagsToPerm maps an ELF program header's R/W/X bits onto the
// kernel's own Perm bits, always adding U since every PT_LOAD segment in
// this kernel belongs to user code.
func elfFlagsToPerm(f elf.ProgFlag) Perm {
	var p Perm = PermU
	if f&elf.PF_R != 0 {
		p |= PermR
	}
	if f&elf.PF_W != 0 {
		p |= PermW
	}
	if f&elf.PF_X != 0 {
		p |= PermX
	}
	return p
}

// FromELF builds a fresh user address space from an ELF image: one
// Framed area per PT_LOAD segment, a guard-paged user stack above the
// highest segment, and the shared trampoline. It is grounded on
// biscuit's boot-time ELF walk (kernel/chentry.go), generalized from
// that file's fixed kernel-image layout to arbitrary user binaries.
//
// It returns the new address space, the top-of-stack VA (the initial
// user sp), the entry point VA, and the heap base VA (the page right
// after the highest loaded segment, where sbrk's first Framed area
// should be anchored).
func FromELF(alloc *mem.FrameAllocator, image []byte, trampolinePPN mem.PPN) (*MemorySet, uint64, uint64, uint64, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("vm: parse elf: %w", err)
	}
	defer f.Close()

	ms := NewBare(alloc)
	ms.MapTrampoline(trampolinePPN)

	var maxEndVPN pagetable.VPN
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		startVPN := pagetable.VAFloorVPN(prog.Vaddr)
		endVA := prog.Vaddr + prog.Memsz
		endVPN := pagetable.VAFloorVPN(endVA-1) + 1

		perm := elfFlagsToPerm(prog.Flags)
		area := ms.InsertFramed(startVPN, endVPN, perm|PermW) // writable while loading

		data := make([]byte, prog.Filesz)
		sr := io.NewSectionReader(bytes.NewReader(image), int64(prog.Off), int64(prog.Filesz))
		if _, err := io.ReadFull(sr, data); err != nil {
			return nil, 0, 0, 0, fmt.Errorf("vm: read segment: %w", err)
		}
		area.writeBytes(ms.pt, prog.Vaddr, data)
		area.Perm = perm // drop the forced W once data is in place

		if endVPN > maxEndVPN {
			maxEndVPN = endVPN
		}
	}

	// One guard page, then the user stack, matching layout.
	stackBottomVPN := maxEndVPN + 1
	stackTopVPN := stackBottomVPN + pagetable.VPN(config.UserStackSize/config.PageSize)
	ms.InsertFramed(stackBottomVPN, stackTopVPN, PermR|PermW|PermU)

	heapBase := pagetable.VPNBase(maxEndVPN)
	return ms, pagetable.VPNBase(stackTopVPN), f.Entry, heapBase, nil
}

// Package vm implements the address-space engine: MapArea
// regions, the MemorySet that owns a page table plus an ordered list of
// them, the trampoline mapping, ELF loading, fork's copy-on-fork of user
// space, and demand-paged file mappings. It is grounded on biscuit
// kernel's vm.Vm_t (biscuit's per-process address space type): the COW
// bookkeeping, the translated user-pointer helpers (Userdmap8/Userstr)
// and the page-fault entry point all mirror vm/as.go's Vm_t, Vminfo_t and
// Sys_pgfault, adapted from biscuit's x86 PTE_COW scheme to the kernel's
// simpler "eager Framed copy on fork, demand-paged only for file
// mappings" model.
package vm

import (
	"fmt"

	"rvos/mem"
	"rvos/pagetable"
)

// Policy is a MapArea's mapping strategy.
type Policy int

const (
	// Identical maps VPN == PPN; used for kernel text/data/MMIO.
	Identical Policy = iota
	// Framed allocates one fresh frame per mapped VPN, owned by the area.
	Framed
	// Linear maps VPN to PPN with a constant offset.
	Linear
)

// Perm is a permission subset of {R,W,X,U}.
type Perm = pagetable.Flag

const (
	PermR = pagetable.FlagR
	PermW = pagetable.FlagW
	PermX = pagetable.FlagX
	PermU = pagetable.FlagU
)

// MapArea is a logical VPN-range region within a MemorySet.
type MapArea struct {
	Start, End pagetable.VPN // [Start, End)
	Policy     Policy
	Perm       Perm
	Offset     uint64 // for Linear
	frames     map[pagetable.VPN]*mem.FrameTracker
}

func newArea(start, end pagetable.VPN, policy Policy, perm Perm, offset uint64) *MapArea {
	if end < start {
		panic("vm: bad map area range")
	}
	return &MapArea{Start: start, End: end, Policy: policy, Perm: perm, Offset: offset,
		frames: make(map[pagetable.VPN]*mem.FrameTracker)}
}

func (a *MapArea) contains(v pagetable.VPN) bool { return v >= a.Start && v < a.End }

func (a *MapArea) overlaps(b *MapArea) bool {
	return a.Start < b.End && b.Start < a.End
}

// mapOne installs the mapping for a single VPN into pt according to the
// area's policy, allocating a frame for Framed areas.
func (a *MapArea) mapOne(pt *pagetable.PageTable, alloc *mem.FrameAllocator, v pagetable.VPN) {
	switch a.Policy {
	case Identical:
		pt.Map(v, mem.PPN(v), a.Perm)
	case Linear:
		pt.Map(v, mem.PPN(uint64(v)-a.Offset), a.Perm)
	case Framed:
		fr, ok := mem.NewFrameTracker(alloc)
		if !ok {
			panic("vm: out of memory mapping framed area")
		}
		a.frames[v] = fr
		pt.Map(v, fr.PPN, a.Perm)
	default:
		panic("vm: unknown policy")
	}
}

// mapAll installs every VPN in the area's range.
func (a *MapArea) mapAll(pt *pagetable.PageTable, alloc *mem.FrameAllocator) {
	for v := a.Start; v < a.End; v++ {
		a.mapOne(pt, alloc, v)
	}
}

// unmapAll removes every mapping in the area's range and releases any
// owned frames.
func (a *MapArea) unmapAll(pt *pagetable.PageTable) {
	for v := a.Start; v < a.End; v++ {
		if _, ok := pt.Translate(v); ok {
			pt.Unmap(v)
		}
		if fr, ok := a.frames[v]; ok {
			fr.Release()
			delete(a.frames, v)
		}
	}
}

// writeBytes copies data into the area starting at startVA (used by the
// ELF loader for filesz bytes of a PT_LOAD segment). The area must
// already be mapped.
func (a *MapArea) writeBytes(pt *pagetable.PageTable, startVA uint64, data []byte) {
	off := 0
	for off < len(data) {
		va := startVA + uint64(off)
		vpn := pagetable.VAFloorVPN(va)
		page, ok := pt.PageBytes(vpn)
		if !ok {
			panic(fmt.Sprintf("vm: writeBytes to unmapped vpn %#x", vpn))
		}
		pageOff := pagetable.OffsetOf(va)
		n := copy(page[pageOff:], data[off:])
		off += n
	}
}

// clone produces a deep copy of a Framed area for MemorySet.FromExisting,
// copying every owned page byte-for-byte from oldPT into a freshly
// allocated frame mapped into newPT.
func (a *MapArea) clone(oldPT, newPT *pagetable.PageTable, alloc *mem.FrameAllocator) *MapArea {
	n := newArea(a.Start, a.End, a.Policy, a.Perm, a.Offset)
	switch a.Policy {
	case Framed:
		for v := a.Start; v < a.End; v++ {
			n.mapOne(newPT, alloc, v)
			src, ok := oldPT.PageBytes(v)
			if !ok {
				panic(fmt.Sprintf("vm: clone source vpn %#x not mapped", v))
			}
			dst, _ := newPT.PageBytes(v)
			copy(dst, src)
		}
	default:
		n.mapAll(newPT, alloc)
	}
	return n
}

package vm

import (
	"fmt"
	"sort"

	"rvos/config"
	"rvos/mem"
	"rvos/pagetable"
)

// trampolineVPN is the single page shared, identically mapped, by every
// MemorySet in the system.
var trampolineVPN = pagetable.VAFloorVPN(config.TrampolineVA)

// MemorySet owns a page table, the ordered list of MapAreas mapped into
// it, and the frame allocator areas draw from. It is grounded on
// biscuit's Vm_t (vm/as.go), generalized from biscuit's COW-based
// fork to eager-copy fork and trimmed of the x86-specific
// shared/anon-map bookkeeping this kernel does not need.
type MemorySet struct {
	pt    *pagetable.PageTable
	alloc *mem.FrameAllocator
	areas []*MapArea

	fileMaps []*FileMapping
}

// NewBare creates an empty address space with just a root page table.
func NewBare(alloc *mem.FrameAllocator) *MemorySet {
	return &MemorySet{pt: pagetable.New(alloc), alloc: alloc}
}

// Token returns the satp value for activating this address space.
func (ms *MemorySet) Token() uint64 { return ms.pt.Token() }

// PageTable exposes the underlying page table for trap-argument
// translation helpers.
func (ms *MemorySet) PageTable() *pagetable.PageTable { return ms.pt }

// MapTrampoline installs the shared trampoline mapping. The trampoline
// frame itself is supplied by the caller (package proc's Kernel holds one
// system-wide trampoline frame) since every address space must map the
// very same physical page there.
func (ms *MemorySet) MapTrampoline(trampolinePPN mem.PPN) {
	if _, ok := ms.pt.Translate(trampolineVPN); ok {
		return
	}
	ms.pt.Map(trampolineVPN, trampolinePPN, pagetable.FlagR|pagetable.FlagX)
}

// findOverlap returns the index of an area overlapping [start,end), or -1.
func (ms *MemorySet) findOverlap(start, end pagetable.VPN) int {
	probe := &MapArea{Start: start, End: end}
	for i, a := range ms.areas {
		if a.overlaps(probe) {
			return i
		}
	}
	return -1
}

// InsertFramed maps a fresh Framed area [start,end) with the given perm.
// It panics on overlap with an existing area, matching the kernel's
// disjoint-areas invariant (invariant 5).
func (ms *MemorySet) InsertFramed(start, end pagetable.VPN, perm Perm) *MapArea {
	if i := ms.findOverlap(start, end); i != -1 {
		panic("vm: overlapping map area insert")
	}
	a := newArea(start, end, Framed, perm, 0)
	a.mapAll(ms.pt, ms.alloc)
	ms.areas = append(ms.areas, a)
	ms.sortAreas()
	return a
}

// InsertIdentical maps a fresh Identical area, used for kernel
// text/data/MMIO ranges that share the kernel's own page table.
func (ms *MemorySet) InsertIdentical(start, end pagetable.VPN, perm Perm) *MapArea {
	if i := ms.findOverlap(start, end); i != -1 {
		panic("vm: overlapping map area insert")
	}
	a := newArea(start, end, Identical, perm, 0)
	a.mapAll(ms.pt, ms.alloc)
	ms.areas = append(ms.areas, a)
	ms.sortAreas()
	return a
}

func (ms *MemorySet) sortAreas() {
	sort.Slice(ms.areas, func(i, j int) bool { return ms.areas[i].Start < ms.areas[j].Start })
}

// RemoveArea unmaps and releases the area starting at start, panicking if
// none exists there (callers are expected to know the exact boundary,
// mirroring biscuit's munmap handling).
func (ms *MemorySet) RemoveArea(start pagetable.VPN) {
	for i, a := range ms.areas {
		if a.Start == start {
			a.unmapAll(ms.pt)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return
		}
	}
	panic("vm: no map area at given start vpn")
}

// ShrinkTo truncates the area starting at start down to newEnd, releasing
// the tail pages; used by sbrk-style heap shrink .
func (ms *MemorySet) ShrinkTo(start, newEnd pagetable.VPN) {
	a := ms.areaAt(start)
	for v := newEnd; v < a.End; v++ {
		if _, ok := ms.pt.Translate(v); ok {
			ms.pt.Unmap(v)
		}
		if fr, ok := a.frames[v]; ok {
			fr.Release()
			delete(a.frames, v)
		}
	}
	a.End = newEnd
}

// AppendTo extends the area starting at start up to newEnd, mapping fresh
// frames for the newly covered range; used by sbrk-style heap growth.
func (ms *MemorySet) AppendTo(start, newEnd pagetable.VPN) {
	a := ms.areaAt(start)
	for v := a.End; v < newEnd; v++ {
		a.mapOne(ms.pt, ms.alloc, v)
	}
	a.End = newEnd
}

func (ms *MemorySet) areaAt(start pagetable.VPN) *MapArea {
	for _, a := range ms.areas {
		if a.Start == start {
			return a
		}
	}
	panic("vm: no map area at given start vpn")
}

// Translate is a thin pass-through to the underlying page table, used by
// the syscall-argument marshalling helpers in package kscall.
func (ms *MemorySet) Translate(vpn pagetable.VPN) (pagetable.PTE, bool) {
	return ms.pt.Translate(vpn)
}

// WriteUserBytes copies data into already-mapped user pages starting at
// va, the same page-spanning write the ELF loader's MapArea.writeBytes
// performs, exposed here for building argv on a freshly exec'd stack.
func (ms *MemorySet) WriteUserBytes(va uint64, data []byte) {
	off := 0
	for off < len(data) {
		cur := va + uint64(off)
		vpn := pagetable.VAFloorVPN(cur)
		page, ok := ms.pt.PageBytes(vpn)
		if !ok {
			panic(fmt.Sprintf("vm: WriteUserBytes to unmapped vpn %#x", vpn))
		}
		n := copy(page[pagetable.OffsetOf(cur):], data[off:])
		off += n
	}
}

// ReadUserBytes copies n bytes starting at va out of the address space
// into a freshly allocated slice, walking page boundaries the same way
// WriteUserBytes does. It returns ok=false instead of panicking on an
// unmapped page, since va here is a raw, untrusted syscall argument
// (package kscall's translated_byte_buffer equivalent).
func (ms *MemorySet) ReadUserBytes(va uint64, n int) ([]byte, bool) {
	out := make([]byte, n)
	off := 0
	for off < n {
		cur := va + uint64(off)
		vpn := pagetable.VAFloorVPN(cur)
		page, ok := ms.pt.PageBytes(vpn)
		if !ok {
			return nil, false
		}
		c := copy(out[off:], page[pagetable.OffsetOf(cur):])
		off += c
	}
	return out, true
}

// ReadUserCString reads a NUL-terminated string starting at va, one page
// at a time, up to maxLen bytes (callers pass a generous kernel-side
// bound; there is no way to validate length before finding the NUL).
// Returns ok=false if the NUL is never found within maxLen or a page
// along the way is unmapped.
func (ms *MemorySet) ReadUserCString(va uint64, maxLen int) (string, bool) {
	var out []byte
	for len(out) < maxLen {
		cur := va + uint64(len(out))
		vpn := pagetable.VAFloorVPN(cur)
		page, ok := ms.pt.PageBytes(vpn)
		if !ok {
			return "", false
		}
		rest := page[pagetable.OffsetOf(cur):]
		for _, b := range rest {
			if b == 0 {
				return string(out), true
			}
			out = append(out, b)
			if len(out) >= maxLen {
				return "", false
			}
		}
	}
	return "", false
}

// FromExisting deep-copies another address space: every Framed area's
// pages are byte-for-byte duplicated into fresh frames. Identical areas are re-established by policy since
// they carry no area-owned frames.
func FromExisting(src *MemorySet, alloc *mem.FrameAllocator, trampolinePPN mem.PPN) *MemorySet {
	ms := NewBare(alloc)
	ms.MapTrampoline(trampolinePPN)
	for _, a := range src.areas {
		ms.areas = append(ms.areas, a.clone(src.pt, ms.pt, alloc))
	}
	ms.sortAreas()
	for _, fm := range src.fileMaps {
		ms.fileMaps = append(ms.fileMaps, fm.cloneEmpty())
	}
	return ms
}

// Destroy releases every area's frames. The root page table's own
// interior frames are GC'd with the PageTable value since Go has no
// explicit kernel address space to reclaim by hand.
func (ms *MemorySet) Destroy() {
	for _, a := range ms.areas {
		a.unmapAll(ms.pt)
	}
	ms.areas = nil
}

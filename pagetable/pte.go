// Package pagetable implements the SV39 multi-level page table: three
// levels of 512 entries, map/unmap/translate, and the cross-address-space
// copy helpers used by the trap-arg marshalling code. The VPN-splitting
// arithmetic is grounded directly on biscuit's mem.pgbits/shl helpers
// (mem/dmap.go), which extract the same
// three 9-bit indices from a virtual address for x86's PML4; SV39 uses
// exactly the same three-level, 9-bit-per-level shape with one fewer
// level than x86_64's four, so the helper ports over unchanged in spirit.
package pagetable

import (
	"fmt"
	"unsafe"

	"rvos/config"
	"rvos/mem"
)

// Flag is one bit of a page table entry.
type Flag uint64

const (
	FlagV Flag = 1 << 0 // valid
	FlagR Flag = 1 << 1 // readable
	FlagW Flag = 1 << 2 // writable
	FlagX Flag = 1 << 3 // executable
	FlagU Flag = 1 << 4 // user-accessible
	FlagG Flag = 1 << 5 // global
	FlagA Flag = 1 << 6 // accessed
	FlagD Flag = 1 << 7 // dirty
)

const ppnShift = 10

// PTE is one 8-byte SV39 page table entry.
type PTE uint64

func mkPTE(ppn mem.PPN, flags Flag) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags))
}

// PPN extracts the physical page number field.
func (p PTE) PPN() mem.PPN { return mem.PPN(uint64(p) >> ppnShift) }

// Flags extracts the low 8 flag bits.
func (p PTE) Flags() Flag { return Flag(uint64(p) & 0xff) }

// Valid reports the V bit.
func (p PTE) Valid() bool { return p.Flags()&FlagV != 0 }

// Readable, Writable, Executable and User report their respective bits.
func (p PTE) Readable() bool   { return p.Flags()&FlagR != 0 }
func (p PTE) Writable() bool   { return p.Flags()&FlagW != 0 }
func (p PTE) Executable() bool { return p.Flags()&FlagX != 0 }
func (p PTE) User() bool       { return p.Flags()&FlagU != 0 }

// VPN is a virtual page number (27 significant bits in SV39: three
// 9-bit indices).
type VPN uint64

// Indices returns the three 9-bit level indices, level 2 (root) first.
func (v VPN) Indices() [3]uint64 {
	x := uint64(v)
	return [3]uint64{
		(x >> 18) & 0x1ff,
		(x >> 9) & 0x1ff,
		x & 0x1ff,
	}
}

// VAFloorVPN/OffsetOf split a virtual address per SV39's 12-bit page
// offset; VPNBase turns a VPN back into its page's base address.
func VAFloorVPN(va uint64) VPN   { return VPN(va >> config.PageShift) }
func OffsetOf(va uint64) uint64  { return va & config.PageMask }
func VPNBase(v VPN) uint64       { return uint64(v) << config.PageShift }

// Table is a single level of 512 entries.
type Table [config.PTEsPerPage]PTE

// PageTable owns the frames backing its interior nodes (including the
// root) and provides walk/map/unmap/translate over them.
type PageTable struct {
	alloc  *mem.FrameAllocator
	root   *mem.FrameTracker
	frames []*mem.FrameTracker // interior + leaf frames this table owns
}

// New allocates a root frame for a fresh page table.
func New(a *mem.FrameAllocator) *PageTable {
	root, ok := mem.NewFrameTracker(a)
	if !ok {
		panic("pagetable: out of memory allocating root")
	}
	return &PageTable{alloc: a, root: root, frames: []*mem.FrameTracker{root}}
}

// Token returns the SV39 satp value: mode 8 (Sv39) in the top four bits
// plus the root PPN.
func (pt *PageTable) Token() uint64 {
	const modeSv39 = 8
	return uint64(modeSv39)<<60 | uint64(pt.root.PPN)
}

func (pt *PageTable) tableAt(ppn mem.PPN) *Table {
	return (*Table)(pagePointer(pt.alloc.Page(ppn)))
}

// pagePointer reinterprets a raw physical page as a table of PTEs, the
// same "typed view into a page-sized buffer" trick biscuit
// uses throughout mem.Pg2bytes/Bytepg2pg.
func pagePointer(p *mem.Page) *[config.PTEsPerPage]PTE {
	return (*[config.PTEsPerPage]PTE)(unsafe.Pointer(p))
}

// findPTE walks the three levels, optionally creating interior tables
// along the way. Returns nil if not found and create is false.
func (pt *PageTable) findPTE(vpn VPN, create bool) *PTE {
	idx := vpn.Indices()
	ppn := pt.root.PPN
	for level := 0; level < 2; level++ {
		tbl := pt.tableAt(ppn)
		entry := &tbl[idx[level]]
		if !entry.Valid() {
			if !create {
				return nil
			}
			child, ok := mem.NewFrameTracker(pt.alloc)
			if !ok {
				panic("pagetable: out of memory extending table")
			}
			pt.frames = append(pt.frames, child)
			*entry = mkPTE(child.PPN, FlagV)
		}
		ppn = entry.PPN()
	}
	tbl := pt.tableAt(ppn)
	return &tbl[idx[2]]
}

// Map installs vpn -> ppn with the given flags (V is added automatically).
// It panics if the leaf is already valid.
func (pt *PageTable) Map(vpn VPN, ppn mem.PPN, flags Flag) {
	pte := pt.findPTE(vpn, true)
	if pte.Valid() {
		panic(fmt.Sprintf("pagetable: vpn %#x already mapped", vpn))
	}
	*pte = mkPTE(ppn, flags|FlagV)
}

// Unmap clears the mapping for vpn. It panics if no valid leaf exists.
func (pt *PageTable) Unmap(vpn VPN) {
	pte := pt.findPTE(vpn, false)
	if pte == nil || !pte.Valid() {
		panic(fmt.Sprintf("pagetable: vpn %#x not mapped", vpn))
	}
	*pte = 0
}

// Translate performs a read-only walk and returns the leaf PTE if valid.
func (pt *PageTable) Translate(vpn VPN) (PTE, bool) {
	pte := pt.findPTE(vpn, false)
	if pte == nil || !pte.Valid() {
		return 0, false
	}
	return *pte, true
}

// TranslateVA resolves an arbitrary virtual address to a physical one.
func (pt *PageTable) TranslateVA(va uint64) (uint64, bool) {
	pte, ok := pt.Translate(VAFloorVPN(va))
	if !ok {
		return 0, false
	}
	return uint64(pte.PPN())<<config.PageShift | OffsetOf(va), true
}

// PageBytes returns the live byte slice for the frame backing a mapped
// VPN; used by the cross-space copy helpers in package vm.
func (pt *PageTable) PageBytes(vpn VPN) ([]byte, bool) {
	pte, ok := pt.Translate(vpn)
	if !ok {
		return nil, false
	}
	pg := pt.alloc.Page(pte.PPN())
	return pg[:], true
}

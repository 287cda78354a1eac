// Package mem implements the physical frame allocator: a
// bump-with-recycle page-frame manager plus the FrameTracker ownership
// type. It is grounded on biscuit's mem.Physmem_t free-list
// design (mem/mem.go in biscuit), simplified down from biscuit's
// multi-level x86 per-CPU free lists to a single-hart bump allocator.
package mem

import (
	"fmt"
	"sync"

	"rvos/config"
)

// PPN is a physical page number.
type PPN uint64

// Page is the byte contents of one physical frame.
type Page [config.PageSize]byte

// FrameAllocator hands out physical frames in [start, end). It pops the
// recycled list first and otherwise bumps current, per C3.
type FrameAllocator struct {
	mu       sync.Mutex
	current  PPN
	end      PPN
	recycled []PPN
	pages    map[PPN]*Page
}

// NewFrameAllocator creates an allocator spanning [start, end).
func NewFrameAllocator(start, end PPN) *FrameAllocator {
	if end < start {
		panic("mem: bad frame range")
	}
	return &FrameAllocator{
		current: start,
		end:     end,
		pages:   make(map[PPN]*Page),
	}
}

// alloc returns a fresh, uninitialized frame or false if the allocator is
// exhausted. Code outside this package allocates through
// NewFrameTracker, which zeroes the frame.
func (a *FrameAllocator) alloc() (PPN, *Page, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ppn PPN
	if n := len(a.recycled); n > 0 {
		ppn = a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
	} else {
		if a.current >= a.end {
			return 0, nil, false
		}
		ppn = a.current
		a.current++
	}
	pg, ok := a.pages[ppn]
	if !ok {
		pg = new(Page)
		a.pages[ppn] = pg
	}
	return ppn, pg, true
}

// dealloc returns a frame to the recycled list. It panics on a double
// free, matching this kernel's invariant-violation taxonomy.
func (a *FrameAllocator) dealloc(ppn PPN) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ppn < 0 || ppn >= a.current {
		panic(fmt.Sprintf("mem: dealloc of frame %d never allocated", ppn))
	}
	for _, r := range a.recycled {
		if r == ppn {
			panic(fmt.Sprintf("mem: double free of frame %d", ppn))
		}
	}
	a.recycled = append(a.recycled, ppn)
}

// Page looks up the backing storage for an allocated PPN. Used by the
// page table and address space code to turn a PTE's PPN into bytes.
func (a *FrameAllocator) Page(ppn PPN) *Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	pg, ok := a.pages[ppn]
	if !ok {
		panic("mem: access to unbacked frame")
	}
	return pg
}

// Free reports the number of frames available for allocation (recycled +
// never-touched), useful for accounting and tests.
func (a *FrameAllocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recycled) + int(a.end-a.current)
}

// FrameTracker owns exactly one physical frame. Construction zeroes the
// page; when the last tracker for a frame is released the frame returns
// to the allocator.
// Go has no destructors, so ownership transfer is explicit: callers must
// call Release when the frame is no longer needed, the same discipline
// biscuit's reference-counted Physmem_t pages require of their callers.
type FrameTracker struct {
	PPN    PPN
	Page   *Page
	alloc  *FrameAllocator
	freed  bool
}

// NewFrameTracker allocates and zeroes a fresh frame.
func NewFrameTracker(a *FrameAllocator) (*FrameTracker, bool) {
	ppn, pg, ok := a.alloc()
	if !ok {
		return nil, false
	}
	for i := range pg {
		pg[i] = 0
	}
	return &FrameTracker{PPN: ppn, Page: pg, alloc: a}, true
}

// Release returns the frame to its allocator. It panics on double
// release, matching invariant-violation policy.
func (f *FrameTracker) Release() {
	if f.freed {
		panic("mem: frame tracker released twice")
	}
	f.freed = true
	f.alloc.dealloc(f.PPN)
}

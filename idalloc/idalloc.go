// Package idalloc implements the recycling ID allocators
// used for PIDs, TIDs and kernel-stack slots, plus the deterministic VA
// placement helpers that turn a kernel-stack ID or thread-local ID into
// the kernel/user-space addresses this kernel's memory layout calls for.
// The allocator itself is grounded on the same bump-with-recycle shape as
// package mem's FrameAllocator (itself grounded on biscuit's
// mem.Physmem_t free list) — PIDs and TIDs are just a smaller-alphabet
// instance of the identical "bump until exhausted, then pop the recycled
// stack" policy.
package idalloc

import (
	"fmt"
	"sync"

	"rvos/config"
	"rvos/pagetable"
)

// Allocator hands out small non-negative integer IDs starting at a given
// floor, recycling released ones before bumping further.
type Allocator struct {
	mu       sync.Mutex
	current  int
	recycled []int
}

// New creates an allocator that begins handing out IDs at start.
func New(start int) *Allocator {
	return &Allocator{current: start}
}

// Alloc returns a fresh or recycled ID.
func (a *Allocator) Alloc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.recycled); n > 0 {
		id := a.recycled[n-1]
		a.recycled = a.recycled[:n-1]
		return id
	}
	id := a.current
	a.current++
	return id
}

// Dealloc returns id to the pool. It panics on a double free or on
// releasing an ID that was never handed out, matching the kernel's
// invariant-violation taxonomy.
func (a *Allocator) Dealloc(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id >= a.current {
		panic(fmt.Sprintf("idalloc: dealloc of id %d never allocated", id))
	}
	for _, r := range a.recycled {
		if r == id {
			panic(fmt.Sprintf("idalloc: double free of id %d", id))
		}
	}
	a.recycled = append(a.recycled, id)
}

const guardPages = 1

// KernelStackSpan returns the [bottom, top) VPN range reserved for the
// kernel stack belonging to kstackID, each slot separated from its
// neighbor by a one-page unmapped guard gap immediately below the
// trampoline.
func KernelStackSpan(kstackID int) (bottom, top pagetable.VPN) {
	stackPages := pagetable.VPN(config.KernelStackSize / config.PageSize)
	slot := stackPages + guardPages
	trampolineVPN := pagetable.VAFloorVPN(config.TrampolineVA)
	top = trampolineVPN - pagetable.VPN(kstackID)*slot
	bottom = top - stackPages
	return bottom, top
}

// TrapContextVPN returns the per-thread trap-context page, one page per
// thread-local ID directly below the shared trampoline page.
func TrapContextVPN(tid int) pagetable.VPN {
	return pagetable.VAFloorVPN(config.TrapContextVA) - pagetable.VPN(tid)
}

// UserStackSpan returns the [bottom, top) VPN range reserved for thread
// tid's user stack within its own process's address space, separated
// from its neighbors by a guard page, the same descending-slots idiom
// KernelStackSpan uses — ported from original_source's per-thread
// ustack_base formula (sys_thread_create needs a fresh user stack for
// every thread beyond tid 0, which FromELF only maps for).
func UserStackSpan(tid int) (bottom, top pagetable.VPN) {
	stackPages := pagetable.VPN(config.UserStackSize / config.PageSize)
	slot := stackPages + guardPages
	topVPN := pagetable.VAFloorVPN(config.UserStackAreaTop)
	top = topVPN - pagetable.VPN(tid)*slot
	bottom = top - stackPages
	return bottom, top
}

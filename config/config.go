// Package config gathers the compile-time layout and tuning constants
// shared by every kernel subsystem, the way biscuit keeps a
// single struct of tunables in its limits package.
package config

const (
	// PageShift is log2 of the page size.
	PageShift = 12
	// PageSize is the SV39 page size in bytes.
	PageSize = 1 << PageShift
	// PageMask selects the offset bits within a page.
	PageMask = PageSize - 1

	// SV39 has three levels of 512 entries each.
	PTEsPerPage = 512
	VPNBits     = 9
	VPNLevels   = 3

	// MaxVA is the highest address representable in SV39 (39 significant
	// bits, sign-extended in hardware; the kernel only ever uses the low
	// canonical half for user/kernel space described below).
	MaxVA = 1 << 38

	// TrampolineVA is the top page of the SV39 address space; it holds
	// the user<->kernel trap entry/exit stubs and is mapped identically
	// in every address space.
	TrampolineVA = MaxVA - PageSize
	// TrapContextVA is the trap-context page for thread-local-id 0; each
	// additional thread gets the next page down.
	TrapContextVA = TrampolineVA - PageSize

	// UserStackAreaTop bounds the per-thread user stack region from
	// above, leaving a generous gap below the descending trap-context
	// pages so the two regions can never collide regardless of how many
	// threads a process creates.
	UserStackAreaTop = TrapContextVA - (1<<20)*PageSize

	// KernelStackSize is the size of a kernel stack, not counting its
	// guard page.
	KernelStackSize = 2 * PageSize
	// UserStackSize is the size of a user stack, not counting its guard
	// page.
	UserStackSize = 2 * PageSize

	// BlockSize is the on-disk block size used by the filesystem.
	BlockSize = 512

	// TicksPerSecond models CLOCK_FREQ; a timer interrupt is scheduled
	// every 1/100th of a second (10ms), matching trap handler.
	TicksPerSecond  = 100
	TimesliceMillis = 1000 / TicksPerSecond

	// MaxSignal is the number of distinct signal numbers the kernel
	// tracks (0..31).
	MaxSignal = 32

	// BlockCacheCapacity is the hard cap on cached blocks for the simple
	// FIFO cache variant .
	BlockCacheCapacity = 16
)

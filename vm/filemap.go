package vm

import (
	"fmt"

	"rvos/config"
	"rvos/mem"
	"rvos/pagetable"
)

// FileBacking is the narrow slice of the file abstraction (package
// kfile's File) that demand-paged mappings need: page-granular reads and
// writes at a byte offset. Kept as a local interface rather than
// importing kfile directly so vm has no dependency on the file-descriptor
// layer built on top of it.
type FileBacking interface {
	ReadAt(buf []byte, offset int64) (int, error)
	WriteAt(buf []byte, offset int64) (int, error)
}

// FileMapping is a demand-paged, file-backed VPN range:
// pages are faulted in lazily from the backing file and written back
// when dirtied, rather than eagerly copied like an ordinary Framed area.
// Grounded on biscuit's Vmadd_sharefile/Vmadd_file handling in
// vm/as.go, simplified to a private (non-shared) mapping since the kernel
// scopes out shared file mappings across processes.
type FileMapping struct {
	Start, End pagetable.VPN
	FileOffset int64 // file byte offset corresponding to Start
	Perm       Perm
	backing    FileBacking

	cache map[pagetable.VPN]*mem.FrameTracker
	dirty map[pagetable.VPN]bool
}

// NewFileMapping registers a demand-paged range without touching the
// page table; pages are faulted in one at a time via HandlePageFault.
func (ms *MemorySet) NewFileMapping(start, end pagetable.VPN, fileOffset int64, perm Perm, backing FileBacking) *FileMapping {
	if i := ms.findOverlap(start, end); i != -1 {
		panic("vm: overlapping file mapping insert")
	}
	fm := &FileMapping{
		Start: start, End: end, FileOffset: fileOffset, Perm: perm, backing: backing,
		cache: make(map[pagetable.VPN]*mem.FrameTracker),
		dirty: make(map[pagetable.VPN]bool),
	}
	ms.fileMaps = append(ms.fileMaps, fm)
	return fm
}

func (fm *FileMapping) contains(v pagetable.VPN) bool { return v >= fm.Start && v < fm.End }

func (fm *FileMapping) offsetFor(v pagetable.VPN) int64 {
	return fm.FileOffset + int64(uint64(v-fm.Start)<<config.PageShift)
}

// cloneEmpty produces a fresh mapping over the same range and backing
// file with no cached pages, so a forked child re-faults its own copies
// rather than sharing the parent's frames.
func (fm *FileMapping) cloneEmpty() *FileMapping {
	return &FileMapping{
		Start: fm.Start, End: fm.End, FileOffset: fm.FileOffset, Perm: fm.Perm, backing: fm.backing,
		cache: make(map[pagetable.VPN]*mem.FrameTracker),
		dirty: make(map[pagetable.VPN]bool),
	}
}

// HandlePageFault looks up the FileMapping covering va, if any, faults
// the backing page in on first touch, and installs the mapping. It
// returns false if va falls in no FileMapping (the caller should then
// treat the fault as fatal, per page-fault taxonomy).
func (ms *MemorySet) HandlePageFault(va uint64) bool {
	vpn := pagetable.VAFloorVPN(va)
	for _, fm := range ms.fileMaps {
		if !fm.contains(vpn) {
			continue
		}
		if _, already := ms.pt.Translate(vpn); already {
			return true
		}
		fr, ok := mem.NewFrameTracker(ms.alloc)
		if !ok {
			panic("vm: out of memory handling file page fault")
		}
		n, err := fm.backing.ReadAt(fr.Page[:], fm.offsetFor(vpn))
		if err != nil && n == 0 {
			fr.Release()
			panic(fmt.Sprintf("vm: file mapping read failed: %v", err))
		}
		fm.cache[vpn] = fr
		ms.pt.Map(vpn, fr.PPN, fm.Perm|pagetable.FlagV)
		return true
	}
	return false
}

// MarkDirty records that the page covering va was written through a
// store-page-fault path; callers that track dirtiness at a coarser
// granularity (e.g. every write syscall) can call this directly instead.
func (fm *FileMapping) MarkDirty(va uint64) {
	fm.dirty[pagetable.VAFloorVPN(va)] = true
}

// Sync writes every dirtied cached page back to the backing file.
func (fm *FileMapping) Sync() error {
	for vpn, fr := range fm.cache {
		if !fm.dirty[vpn] {
			continue
		}
		if _, err := fm.backing.WriteAt(fr.Page[:], fm.offsetFor(vpn)); err != nil {
			return err
		}
		fm.dirty[vpn] = false
	}
	return nil
}

// SyncAllFileMappings flushes every dirtied file-backed page in the
// address space, called on process exit (munmap syncs its one mapping
// through RemoveFileMapping).
func (ms *MemorySet) SyncAllFileMappings() error {
	for _, fm := range ms.fileMaps {
		if err := fm.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// RemoveFileMapping flushes and releases the file mapping starting at
// start, unmapping every page it had faulted in and releasing the
// frames that cached them. Reports false if no mapping starts there.
func (ms *MemorySet) RemoveFileMapping(start pagetable.VPN) bool {
	for i, fm := range ms.fileMaps {
		if fm.Start != start {
			continue
		}
		fm.Sync()
		for v := fm.Start; v < fm.End; v++ {
			if fr, cached := fm.cache[v]; cached {
				fr.Release()
			}
			if _, mapped := ms.pt.Translate(v); mapped {
				ms.pt.Unmap(v)
			}
		}
		ms.fileMaps = append(ms.fileMaps[:i], ms.fileMaps[i+1:]...)
		return true
	}
	return false
}

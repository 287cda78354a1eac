package kscall

import (
	"fmt"
	"sync"

	"rvos/errs"
	"rvos/kfile"
	"rvos/proc"
	"rvos/vm"
)

// seekableFile is the narrow capability sysMmap needs from an open file
// descriptor to back a demand-paged mapping: byte-offset repositioning
// plus ordinary Read/Write. Only OSInode (package kfile) satisfies it —
// pipes and console files have no stable backing store to page from.
type seekableFile interface {
	kfile.File
	kfile.Seeker
}

// fdFileBacking adapts an open kfile.File (the Err_t-returning, cursor-
// based convention the fd table uses) to vm.FileBacking (the Go-error,
// offset-parameterized convention package vm's demand paging expects),
// by seeking the shared cursor before each access. Calls are
// serialized, since concurrent seek+read/write pairs from two page
// faults on the same mapping would otherwise race on the cursor.
type fdFileBacking struct {
	mu   sync.Mutex
	file seekableFile
}

func (b *fdFileBacking) ReadAt(buf []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Seek(offset, 0); err != errs.OK {
		return 0, fmt.Errorf("kscall: seek: %w", asError(err))
	}
	n, err := b.file.Read(buf)
	if err != errs.OK {
		return n, asError(err)
	}
	return n, nil
}

func (b *fdFileBacking) WriteAt(buf []byte, offset int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Seek(offset, 0); err != errs.OK {
		return 0, fmt.Errorf("kscall: seek: %w", asError(err))
	}
	n, err := b.file.Write(buf)
	if err != errs.OK {
		return n, asError(err)
	}
	return n, nil
}

// asError wraps an Err_t as a plain Go error for the vm.FileBacking
// boundary, which (unlike the rest of this kernel's call surface) uses
// the io.ReaderAt/WriterAt-shaped Go convention.
type errWrap errs.Err_t

func (e errWrap) Error() string { return fmt.Sprintf("errno %d", errs.Err_t(e).Int()) }

func asError(e errs.Err_t) error { return errWrap(e) }

// sysMmap implements mmap(fd, len, offset): installs a
// demand-paged mapping over fd's backing file in the calling process's
// private mmap region. Nothing is faulted in until first touch — see
// package vm's HandlePageFault, wired to the page-fault trap causes by
// Dispatcher.Wire.
func (d *Dispatcher) sysMmap(th *proc.Thread, args [6]uint64) int64 {
	f, err := th.Process().Fds().Get(int(args[0]))
	if err != errs.OK {
		return errVal(err)
	}
	sf, ok2 := f.(seekableFile)
	if !ok2 {
		return errVal(errs.EINVAL)
	}
	length := int(args[1])
	offset := int64(args[2])
	backing := &fdFileBacking{file: sf}
	va := th.Process().Mmap(backing, length, offset, vm.PermR|vm.PermW|vm.PermU)
	return ok(va)
}

// sysMunmap implements munmap(addr, len): syncs dirtied pages
// back to the backing file and drops the mapping.
func (d *Dispatcher) sysMunmap(th *proc.Thread, args [6]uint64) int64 {
	if err := th.Process().Munmap(args[0]); err != errs.OK {
		return errVal(err)
	}
	return 0
}

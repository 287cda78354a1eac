// Package kfile implements the uniform file abstraction:
// every open file descriptor, whether console, pipe or on-disk inode,
// satisfies the same File interface, matching biscuit's own
// fd.Fdops_i/fd.Fd_t split between "what a descriptor can do" and "the
// bookkeeping every descriptor shares" (fd/fd.go).
package kfile

import "rvos/errs"

// File is the capability every open file descriptor exposes. Read/Write
// use the kernel's Err_t return convention (package errs) rather than Go
// error, matching the call surface the rest of the kernel core uses.
type File interface {
	Read(buf []byte) (int, errs.Err_t)
	Write(buf []byte) (int, errs.Err_t)
	Close() errs.Err_t
}

// Seeker is implemented by files that support repositioning (ordinary
// inode-backed files; pipes and console files do not).
type Seeker interface {
	Seek(offset int64, whence int) (int64, errs.Err_t)
}

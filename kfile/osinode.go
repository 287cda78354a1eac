package kfile

import (
	"sync"

	"rvos/errs"
)

// InodeBacking is the narrow slice of the filesystem's inode (package
// fs) that an open file needs: byte-ranged reads/writes plus a size
// query for growing files on write-past-end. Declared locally rather
// than importing fs directly so the file-descriptor layer and the
// filesystem layer stay decoupled, the same boundary package vm draws
// around FileBacking for demand-paged mappings.
type InodeBacking interface {
	ReadAt(buf []byte, offset int) (int, errs.Err_t)
	WriteAt(buf []byte, offset int) (int, errs.Err_t)
	Size() int
}

// OSInode is a File backed by an on-disk inode, with its own read/write
// cursor (open file description semantics: each open() gets an
// independent offset even for the same underlying inode).
type OSInode struct {
	mu     sync.Mutex
	inode  InodeBacking
	offset int
	readable, writable bool
}

// NewOSInode wraps inode as an open File at offset 0.
func NewOSInode(inode InodeBacking, readable, writable bool) *OSInode {
	return &OSInode{inode: inode, readable: readable, writable: writable}
}

func (f *OSInode) Read(buf []byte) (int, errs.Err_t) {
	if !f.readable {
		return 0, errs.EPERM
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.inode.ReadAt(buf, f.offset)
	if !err.Ok() {
		return 0, err
	}
	f.offset += n
	return n, errs.OK
}

func (f *OSInode) Write(buf []byte) (int, errs.Err_t) {
	if !f.writable {
		return 0, errs.EPERM
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.inode.WriteAt(buf, f.offset)
	if !err.Ok() {
		return 0, err
	}
	f.offset += n
	return n, errs.OK
}

func (f *OSInode) Close() errs.Err_t { return errs.OK }

// Seek repositions the cursor. whence follows the same 0/1/2
// (start/current/end) convention as lseek.
func (f *OSInode) Seek(offset int64, whence int) (int64, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int
	switch whence {
	case 0:
		base = 0
	case 1:
		base = f.offset
	case 2:
		base = f.inode.Size()
	default:
		return 0, errs.EINVAL
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errs.EINVAL
	}
	f.offset = next
	return int64(f.offset), errs.OK
}

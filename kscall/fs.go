package kscall

import (
	"rvos/errs"
	"rvos/fs"
	"rvos/kfile"
	"rvos/proc"
)

// OpenFlags mirrors original_source's fs::OpenFlags bitset (os/src/fs/inode.rs):
// the low two bits pick the access mode, bit 9 requests create-or-truncate.
type OpenFlags uint32

const (
	ORDONLY OpenFlags = 0
	OWRONLY OpenFlags = 1 << 0
	ORDWR   OpenFlags = 1 << 1
	OCREATE OpenFlags = 1 << 9
)

func (f OpenFlags) readable() bool { return f&(OWRONLY) == 0 }
func (f OpenFlags) writable() bool { return f&(OWRONLY|ORDWR) != 0 }

// tryReader/tryWriter are implemented by the File kinds whose blocking
// Read/Write would park the calling goroutine directly (console, pipe) —
// see kfile.PipeReader.TryRead's doc comment. Plain inode-backed files
// satisfy neither, since OSInode.Read/Write never block.
type tryReader interface {
	TryRead(buf []byte) (int, errs.Err_t)
}
type tryWriter interface {
	TryWrite(buf []byte) (int, errs.Err_t)
}

// sysRead implements read(fd, buf, len): probes a potentially-blocking
// file with TryRead, yielding and retrying on EAGAIN, so a read from an
// empty pipe or console never stalls the hart — ported from
// original_source's suspend-and-retry console read loop.
func (d *Dispatcher) sysRead(th *proc.Thread, args [6]uint64) int64 {
	f, err := th.Process().Fds().Get(int(args[0]))
	if err != errs.OK {
		return errVal(err)
	}

	n := int(args[2])
	if n <= 0 {
		return 0
	}
	buf := make([]byte, n)

	var read int
	var rerr errs.Err_t
	if tr, ok := f.(tryReader); ok {
		for {
			read, rerr = tr.TryRead(buf)
			if rerr != errs.EAGAIN {
				break
			}
			th.Yield()
		}
	} else {
		read, rerr = f.Read(buf)
	}
	if rerr != errs.OK {
		return errVal(rerr)
	}

	if read > 0 {
		th.Process().MemorySet().WriteUserBytes(args[1], buf[:read])
	}
	return ok(uint64(read))
}

// sysWrite implements write(fd, buf, len), the write-side twin
// of sysRead: a full pipe is drained by yielding and retrying TryWrite
// rather than calling the blocking Write directly.
func (d *Dispatcher) sysWrite(th *proc.Thread, args [6]uint64) int64 {
	f, err := th.Process().Fds().Get(int(args[0]))
	if err != errs.OK {
		return errVal(err)
	}

	n := int(args[2])
	if n <= 0 {
		return 0
	}
	data, ok2 := th.Process().MemorySet().ReadUserBytes(args[1], n)
	if !ok2 {
		return errVal(errs.EFAULT)
	}

	tw, isTryWriter := f.(tryWriter)
	if !isTryWriter {
		written, werr := f.Write(data)
		if werr != errs.OK {
			return errVal(werr)
		}
		return ok(uint64(written))
	}

	total := 0
	for total < len(data) {
		w, werr := tw.TryWrite(data[total:])
		if werr != errs.OK && werr != errs.EAGAIN {
			if total > 0 {
				break
			}
			return errVal(werr)
		}
		if werr == errs.EAGAIN {
			th.Yield()
			continue
		}
		total += w
	}
	return ok(uint64(total))
}

// sysOpen implements open(path, flags) against the single flat
// root directory mounted on the kernel. CREATE makes a fresh empty file
// when the name is absent and truncates an existing one to empty (per
// original_source).
func (d *Dispatcher) sysOpen(th *proc.Thread, args [6]uint64) int64 {
	if d.k.RootFS == nil {
		return errVal(errs.ENOENT)
	}
	path, ok2 := th.Process().MemorySet().ReadUserCString(args[0], maxPathLen)
	if !ok2 {
		return errVal(errs.EFAULT)
	}
	flags := OpenFlags(args[1])

	inode, found := d.k.RootFS.Find(path)
	if !found {
		if flags&OCREATE == 0 {
			return errVal(errs.ENOENT)
		}
		var created bool
		inode, created = d.k.RootFS.Create(path)
		if !created {
			return errVal(errs.EEXIST)
		}
	} else if flags&OCREATE != 0 {
		inode.Clear()
	}

	f := kfile.NewOSInode(inodeBacking{inode}, flags.readable(), flags.writable())
	fd, ferr := th.Process().Fds().Install(f)
	if ferr != errs.OK {
		return errVal(ferr)
	}
	return ok(uint64(fd))
}

// inodeBacking adapts *fs.Inode's Go-error ReadAt/WriteAt to the Err_t
// results kfile.InodeBacking takes; a filesystem error becomes EIO.
type inodeBacking struct{ *fs.Inode }

func (b inodeBacking) ReadAt(buf []byte, off int) (int, errs.Err_t) {
	n, err := b.Inode.ReadAt(buf, off)
	if err != nil {
		return n, errs.EIO
	}
	return n, errs.OK
}

func (b inodeBacking) WriteAt(buf []byte, off int) (int, errs.Err_t) {
	n, err := b.Inode.WriteAt(buf, off)
	if err != nil {
		return n, errs.EIO
	}
	return n, errs.OK
}

func (d *Dispatcher) sysClose(th *proc.Thread, args [6]uint64) int64 {
	if err := th.Process().Fds().Close(int(args[0])); err != errs.OK {
		return errVal(err)
	}
	return 0
}

// sysPipe implements pipe(fds): installs a connected
// reader/writer pair and writes their fd numbers back to the two-element
// user array at args[0].
func (d *Dispatcher) sysPipe(th *proc.Thread, args [6]uint64) int64 {
	r, w := kfile.NewPipe()
	fds := th.Process().Fds()
	rfd, err := fds.Install(r)
	if err != errs.OK {
		return errVal(err)
	}
	wfd, err := fds.Install(w)
	if err != errs.OK {
		return errVal(err)
	}
	ms := th.Process().MemorySet()
	ms.WriteUserBytes(args[0], le32(uint32(rfd)))
	ms.WriteUserBytes(args[0]+4, le32(uint32(wfd)))
	return 0
}

// sysDup implements dup(fd): installs the same File instance
// under a fresh fd, sharing the offset cursor for inode-backed files
// (the same "file description," not just descriptor, is shared).
func (d *Dispatcher) sysDup(th *proc.Thread, args [6]uint64) int64 {
	f, err := th.Process().Fds().Get(int(args[0]))
	if err != errs.OK {
		return errVal(err)
	}
	fd, ferr := th.Process().Fds().Install(f)
	if ferr != errs.OK {
		return errVal(ferr)
	}
	return ok(uint64(fd))
}

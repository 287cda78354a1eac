package fs

import (
	"bytes"
	"rvos/block"
)

const (
	dirEntNameLen = 28
	dirEntSize    = dirEntNameLen + 4
)

// dirEntry is one 32-byte directory entry: a fixed-width name field plus
// the inode id it names, matching this kernel's flat-directory layout.
type dirEntry struct {
	name [dirEntNameLen]byte
	ino  uint32
}

func (e *dirEntry) nameString() string {
	i := bytes.IndexByte(e.name[:], 0)
	if i < 0 {
		i = len(e.name)
	}
	return string(e.name[:i])
}

func (e *dirEntry) encode() [dirEntSize]byte {
	var buf [dirEntSize]byte
	copy(buf[:dirEntNameLen], e.name[:])
	putLe32(buf[dirEntNameLen:], e.ino)
	return buf
}

func decodeDirEntry(buf []byte) dirEntry {
	var e dirEntry
	copy(e.name[:], buf[:dirEntNameLen])
	e.ino = le32(buf[dirEntNameLen:])
	return e
}

// Inode is the VFS handle for one on-disk inode: an id plus the
// filesystem it belongs to. Grounded on biscuit's ufs inode walk
// (ufs/ufs.go) for the find/create-by-linear-scan directory model, since
// a single flat root directory calls for nothing more sophisticated than
// a linear directory entry scan.
type Inode struct {
	id uint32
	fs *EasyFileSystem
}

// IsDir reports whether the inode is a directory.
func (n *Inode) IsDir() bool {
	var isDir bool
	n.fs.readDiskInode(n.id, func(di *diskInode) { isDir = di.isDir() })
	return isDir
}

// Size reports the inode's current byte length.
func (n *Inode) Size() int {
	var sz uint32
	n.fs.readDiskInode(n.id, func(di *diskInode) { sz = di.size() })
	return int(sz)
}

// Find looks up name among this directory's entries.
func (n *Inode) Find(name string) (*Inode, bool) {
	if !n.IsDir() {
		return nil, false
	}
	var found int32 = -1
	n.fs.readDiskInode(n.id, func(di *diskInode) {
		count := di.size() / dirEntSize
		buf := make([]byte, dirEntSize)
		for i := uint32(0); i < count; i++ {
			n.readDirAt(di, i, buf)
			e := decodeDirEntry(buf)
			if e.nameString() == name {
				found = int32(e.ino)
				return
			}
		}
	})
	if found < 0 {
		return nil, false
	}
	return &Inode{id: uint32(found), fs: n.fs}, true
}

// readDirAt reads directory entry index i of di into buf, going through
// blockIDAt/cache rather than Inode.ReadAt to avoid re-resolving di from
// disk on every entry.
func (n *Inode) readDirAt(di *diskInode, i uint32, buf []byte) {
	off := int(i) * dirEntSize
	n.readBytesAt(di, off, buf)
}

func (n *Inode) readBytesAt(di *diskInode, offset int, buf []byte) int {
	read := 0
	for read < len(buf) {
		pos := offset + read
		if uint32(pos) >= di.size() {
			break
		}
		blk := pos / block.BlockSize
		blkOff := pos % block.BlockSize
		id, err := n.fs.blockIDAt(di, blk)
		if err != nil {
			break
		}
		var raw [block.BlockSize]byte
		if err := n.fs.cache.Read(uint64(id), raw[:]); err != nil {
			break
		}
		n2 := copy(buf[read:], raw[blkOff:])
		read += n2
	}
	return read
}

// Ls lists every entry name in this directory.
func (n *Inode) Ls() []string {
	var names []string
	n.fs.readDiskInode(n.id, func(di *diskInode) {
		count := di.size() / dirEntSize
		buf := make([]byte, dirEntSize)
		for i := uint32(0); i < count; i++ {
			n.readDirAt(di, i, buf)
			e := decodeDirEntry(buf)
			names = append(names, e.nameString())
		}
	})
	return names
}

// Create makes a new empty file named name in this directory. It fails
// if name already exists or this inode is not a directory.
func (n *Inode) Create(name string) (*Inode, bool) {
	if !n.IsDir() {
		return nil, false
	}
	if _, ok := n.Find(name); ok {
		return nil, false
	}
	childID, err := n.fs.allocInode()
	if err != nil {
		return nil, false
	}
	if err := n.fs.modifyDiskInode(childID, func(di *diskInode) {
		di.setType(InodeFile)
		di.setSize(0)
	}); err != nil {
		return nil, false
	}

	var e dirEntry
	copy(e.name[:], name)
	e.ino = childID
	enc := e.encode()

	err = n.fs.modifyDiskInode(n.id, func(di *diskInode) {
		off := di.size()
		if err := n.fs.increaseSize(di, off+dirEntSize); err != nil {
			return
		}
		n.writeBytesAt(di, int(off), enc[:])
	})
	if err != nil {
		return nil, false
	}
	return &Inode{id: childID, fs: n.fs}, true
}

func (n *Inode) writeBytesAt(di *diskInode, offset int, buf []byte) int {
	written := 0
	for written < len(buf) {
		pos := offset + written
		blk := pos / block.BlockSize
		blkOff := pos % block.BlockSize
		id, err := n.fs.blockIDAt(di, blk)
		if err != nil || id == 0 {
			break
		}
		toWrite := buf[written:]
		var n2 int
		n.fs.cache.Modify(uint64(id), func(raw []byte) {
			n2 = copy(raw[blkOff:], toWrite)
		})
		written += n2
		if n2 == 0 {
			break
		}
	}
	return written
}

// ReadAt reads into buf starting at byte offset, returning the number of
// bytes actually read (short if offset+len(buf) exceeds the file size).
func (n *Inode) ReadAt(buf []byte, offset int) (int, error) {
	var read int
	err := n.fs.readDiskInode(n.id, func(di *diskInode) {
		if offset >= int(di.size()) {
			return
		}
		limit := len(buf)
		if offset+limit > int(di.size()) {
			limit = int(di.size()) - offset
		}
		read = n.readBytesAt(di, offset, buf[:limit])
	})
	return read, err
}

// WriteAt writes buf at byte offset, growing the file if the write
// extends past its current size.
func (n *Inode) WriteAt(buf []byte, offset int) (int, error) {
	var written int
	err := n.fs.modifyDiskInode(n.id, func(di *diskInode) {
		end := uint32(offset + len(buf))
		if end > di.size() {
			if err := n.fs.increaseSize(di, end); err != nil {
				return
			}
		}
		written = n.writeBytesAt(di, offset, buf)
	})
	return written, err
}

// Clear truncates the file to zero length, releasing all its blocks.
func (n *Inode) Clear() error {
	return n.fs.modifyDiskInode(n.id, func(di *diskInode) {
		n.fs.clear(di)
	})
}

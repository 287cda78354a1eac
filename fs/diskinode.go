package fs

import (
	"encoding/binary"

	"rvos/block"
)

const (
	directCount       = 28
	ptrsPerIndirect    = block.BlockSize / 4 // 128 u32 block ids per indirect block
	diskInodeSize      = 128

	// Capacity reachable through each tier, in blocks.
	directCapacity   = directCount
	indirect1Capacity = ptrsPerIndirect
	indirect2Capacity = ptrsPerIndirect * ptrsPerIndirect
)

// InodeType distinguishes a file from a directory, stored in the last
// field of the on-disk inode.
type InodeType uint32

const (
	InodeFile InodeType = iota
	InodeDirectory
)

// diskInode is the 128-byte on-disk inode: size, 28 direct block
// pointers, one singly- and one doubly-indirect pointer, and a type
// tag — the same three-tier layout biscuit's own UFS inode walk uses
// (ufs/ufs.go's block-index resolution), adapted from biscuit's larger
// x86 inode fields down to this fixed 128-byte record.
type diskInode struct {
	buf [diskInodeSize]byte
}

const (
	diOffSize      = 0
	diOffDirect    = 4
	diOffIndirect1 = 4 + directCount*4
	diOffIndirect2 = diOffIndirect1 + 4
	diOffType      = diOffIndirect2 + 4
)

func (d *diskInode) size() uint32  { return binary.LittleEndian.Uint32(d.buf[diOffSize:]) }
func (d *diskInode) setSize(v uint32) { binary.LittleEndian.PutUint32(d.buf[diOffSize:], v) }

func (d *diskInode) direct(i int) uint32 {
	return binary.LittleEndian.Uint32(d.buf[diOffDirect+i*4:])
}
func (d *diskInode) setDirect(i int, v uint32) {
	binary.LittleEndian.PutUint32(d.buf[diOffDirect+i*4:], v)
}

func (d *diskInode) indirect1() uint32     { return binary.LittleEndian.Uint32(d.buf[diOffIndirect1:]) }
func (d *diskInode) setIndirect1(v uint32) { binary.LittleEndian.PutUint32(d.buf[diOffIndirect1:], v) }
func (d *diskInode) indirect2() uint32     { return binary.LittleEndian.Uint32(d.buf[diOffIndirect2:]) }
func (d *diskInode) setIndirect2(v uint32) { binary.LittleEndian.PutUint32(d.buf[diOffIndirect2:], v) }

func (d *diskInode) itype() InodeType     { return InodeType(binary.LittleEndian.Uint32(d.buf[diOffType:])) }
func (d *diskInode) setType(t InodeType)  { binary.LittleEndian.PutUint32(d.buf[diOffType:], uint32(t)) }

func (d *diskInode) isDir() bool  { return d.itype() == InodeDirectory }
func (d *diskInode) isFile() bool { return d.itype() == InodeFile }

// blocksNeeded returns how many data blocks a file of size bytes needs.
func blocksNeeded(size uint32) uint32 {
	return (size + block.BlockSize - 1) / block.BlockSize
}

// totalBlocksForData returns the number of data blocks PLUS the indirect
// index blocks required to address them, for allocation accounting.
func totalBlocksForData(dataBlocks uint32) uint32 {
	total := dataBlocks
	if dataBlocks > directCapacity {
		total++ // indirect1 block itself
	}
	if dataBlocks > directCapacity+indirect1Capacity {
		extra := dataBlocks - directCapacity - indirect1Capacity
		indirect1Blocks := (extra + ptrsPerIndirect - 1) / ptrsPerIndirect
		total += 1 + indirect1Blocks // indirect2 block + each indirect1 it points to
	}
	return total
}

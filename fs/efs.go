package fs

import (
	"encoding/binary"
	"fmt"

	"rvos/block"
)

const inodesPerBlock = block.BlockSize / diskInodeSize // 4

// EasyFileSystem owns the on-disk layout: superblock at block 0, then an
// inode bitmap, an inode area, a data bitmap, and a data area: the
// classic EFS layout. Grounded on biscuit's ufs driver
// (ufs/driver.go) for the "one object owns the cache plus every layout
// offset" shape, simplified from biscuit's journaled UFS down to EFS's
// two plain bitmaps.
type EasyFileSystem struct {
	cache *block.Cache

	inodeBitmap bitmap
	dataBitmap  bitmap

	inodeAreaStart uint32
	dataAreaStart  uint32
	totalBlocks    uint32
}

// Create formats a fresh filesystem of totalBlocks blocks over cache,
// reserving inodeBitmapBlocks blocks for the inode bitmap (the inode
// area size follows from how many inodes that many bits can address),
// and returns the root directory's filesystem handle.
func Create(cache *block.Cache, totalBlocks, inodeBitmapBlocks uint32) (*EasyFileSystem, error) {
	inodeBitmapCap := inodeBitmapBlocks * bitsPerBlock
	inodeAreaBlocks := (inodeBitmapCap + inodesPerBlock - 1) / inodesPerBlock

	reserved := 1 + inodeBitmapBlocks + inodeAreaBlocks // superblock + inode region
	if reserved >= totalBlocks {
		return nil, fmt.Errorf("fs: not enough blocks for inode region")
	}
	remaining := totalBlocks - reserved

	// One data-bitmap block addresses bitsPerBlock data blocks; solve for
	// how many bitmap blocks are needed to cover the rest as data blocks.
	dataBitmapBlocks := (remaining + bitsPerBlock) / (bitsPerBlock + 1)
	if dataBitmapBlocks == 0 {
		dataBitmapBlocks = 1
	}
	dataAreaBlocks := remaining - dataBitmapBlocks

	efs := &EasyFileSystem{
		cache:          cache,
		inodeBitmap:    bitmap{startBlock: 1, blocks: int(inodeBitmapBlocks)},
		dataBitmap:     bitmap{startBlock: int(1 + inodeBitmapBlocks + inodeAreaBlocks), blocks: int(dataBitmapBlocks)},
		inodeAreaStart: 1 + inodeBitmapBlocks,
		dataAreaStart:  1 + inodeBitmapBlocks + inodeAreaBlocks + dataBitmapBlocks,
		totalBlocks:    totalBlocks,
	}

	// Zero every block this filesystem claims so stale disk image bytes
	// never masquerade as valid bitmap/inode/data content.
	for b := uint32(0); b < totalBlocks; b++ {
		if err := cache.Modify(uint64(b), func(buf []byte) {
			for i := range buf {
				buf[i] = 0
			}
		}); err != nil {
			return nil, err
		}
	}

	var sb superblockFields
	sb.SetMagic(magic)
	sb.SetTotalBlocks(totalBlocks)
	sb.SetInodeBitmapBlocks(inodeBitmapBlocks)
	sb.SetInodeAreaBlocks(inodeAreaBlocks)
	sb.SetDataBitmapBlocks(dataBitmapBlocks)
	sb.SetDataAreaBlocks(dataAreaBlocks)
	if err := cache.Modify(0, func(buf []byte) { copy(buf, sb.buf[:]) }); err != nil {
		return nil, err
	}

	rootID, err := efs.allocInode()
	if err != nil {
		return nil, err
	}
	if rootID != 0 {
		return nil, fmt.Errorf("fs: expected root inode id 0, got %d", rootID)
	}
	if err := efs.modifyDiskInode(0, func(di *diskInode) {
		di.setType(InodeDirectory)
		di.setSize(0)
	}); err != nil {
		return nil, err
	}

	return efs, nil
}

// Open reads back a filesystem previously written by Create.
func Open(cache *block.Cache) (*EasyFileSystem, error) {
	var buf [block.BlockSize]byte
	if err := cache.Read(0, buf[:]); err != nil {
		return nil, err
	}
	var sb superblockFields
	copy(sb.buf[:], buf[:])
	if err := sb.valid(); err != nil {
		return nil, err
	}

	inodeBitmapBlocks := sb.InodeBitmapBlocks()
	inodeAreaBlocks := sb.InodeAreaBlocks()
	dataBitmapBlocks := sb.DataBitmapBlocks()

	return &EasyFileSystem{
		cache:          cache,
		inodeBitmap:    bitmap{startBlock: 1, blocks: int(inodeBitmapBlocks)},
		dataBitmap:     bitmap{startBlock: int(1 + inodeBitmapBlocks + inodeAreaBlocks), blocks: int(dataBitmapBlocks)},
		inodeAreaStart: 1 + inodeBitmapBlocks,
		dataAreaStart:  1 + inodeBitmapBlocks + inodeAreaBlocks + dataBitmapBlocks,
		totalBlocks:    sb.TotalBlocks(),
	}, nil
}

// RootInode returns the VFS handle for inode 0, the filesystem's root
// directory.
func (fs *EasyFileSystem) RootInode() *Inode {
	return &Inode{id: 0, fs: fs}
}

func (fs *EasyFileSystem) inodePos(id uint32) (blockID uint64, offset int) {
	return uint64(fs.inodeAreaStart) + uint64(id/inodesPerBlock), int(id%inodesPerBlock) * diskInodeSize
}

func (fs *EasyFileSystem) readDiskInode(id uint32, fn func(*diskInode)) error {
	blk, off := fs.inodePos(id)
	var full [block.BlockSize]byte
	if err := fs.cache.Read(blk, full[:]); err != nil {
		return err
	}
	var di diskInode
	copy(di.buf[:], full[off:off+diskInodeSize])
	fn(&di)
	return nil
}

func (fs *EasyFileSystem) modifyDiskInode(id uint32, fn func(*diskInode)) error {
	blk, off := fs.inodePos(id)
	var full [block.BlockSize]byte
	if err := fs.cache.Read(blk, full[:]); err != nil {
		return err
	}
	var di diskInode
	copy(di.buf[:], full[off:off+diskInodeSize])
	fn(&di)
	return fs.cache.Modify(blk, func(buf []byte) {
		copy(buf[off:off+diskInodeSize], di.buf[:])
	})
}

func (fs *EasyFileSystem) allocInode() (uint32, error) {
	bit, err := fs.inodeBitmap.alloc(fs.cache)
	if err != nil {
		return 0, err
	}
	if bit < 0 {
		return 0, fmt.Errorf("fs: no free inodes")
	}
	return uint32(bit), nil
}

func (fs *EasyFileSystem) deallocInode(id uint32) error {
	return fs.inodeBitmap.dealloc(fs.cache, int(id))
}

func (fs *EasyFileSystem) allocDataBlock() (uint32, error) {
	bit, err := fs.dataBitmap.alloc(fs.cache)
	if err != nil {
		return 0, err
	}
	if bit < 0 {
		return 0, fmt.Errorf("fs: disk full")
	}
	id := fs.dataAreaStart + uint32(bit)
	if err := fs.cache.Modify(uint64(id), func(buf []byte) {
		for i := range buf {
			buf[i] = 0
		}
	}); err != nil {
		return 0, err
	}
	return id, nil
}

func (fs *EasyFileSystem) deallocDataBlock(id uint32) error {
	return fs.dataBitmap.dealloc(fs.cache, int(id-fs.dataAreaStart))
}

func le32(buf []byte) uint32       { return binary.LittleEndian.Uint32(buf) }
func putLe32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

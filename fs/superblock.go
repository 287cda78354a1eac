// Package fs implements the on-disk filesystem: a
// superblock-plus-two-bitmaps layout, a 128-byte DiskInode with
// direct/indirect block pointers, 32-byte directory entries, and the VFS
// inode operations (find/create/ls/read_at/write_at/clear) built on top
// of package block's cache. Grounded on biscuit's
// Superblock_t field-accessor style (fs/super.go) and its ufs driver
// (ufs/ufs.go, ufs/driver.go) for the bitmap-plus-inode-table layout
// idiom, adapted from biscuit's on-disk log/orphan-inode design to
// simpler two-bitmap EFS layout (no journal).
package fs

import (
	"encoding/binary"
	"fmt"

	"rvos/block"
)

const magic = 0x3b800001

// superblockFields mirrors biscuit's Superblock_t: a handful of
// block-count fields read/written through a raw buffer view rather than
// a parsed struct, the same "field accessor over a page" idiom fs/super.go
// uses for its own superblock.
type superblockFields struct {
	buf [block.BlockSize]byte
}

const (
	sbOffMagic            = 0
	sbOffTotalBlocks       = 4
	sbOffInodeBitmapBlocks = 8
	sbOffInodeAreaBlocks   = 12
	sbOffDataBitmapBlocks  = 16
	sbOffDataAreaBlocks    = 20
)

func (s *superblockFields) fieldr(off int) uint32 {
	return binary.LittleEndian.Uint32(s.buf[off:])
}
func (s *superblockFields) fieldw(off int, v uint32) {
	binary.LittleEndian.PutUint32(s.buf[off:], v)
}

func (s *superblockFields) Magic() uint32            { return s.fieldr(sbOffMagic) }
func (s *superblockFields) TotalBlocks() uint32       { return s.fieldr(sbOffTotalBlocks) }
func (s *superblockFields) InodeBitmapBlocks() uint32 { return s.fieldr(sbOffInodeBitmapBlocks) }
func (s *superblockFields) InodeAreaBlocks() uint32   { return s.fieldr(sbOffInodeAreaBlocks) }
func (s *superblockFields) DataBitmapBlocks() uint32  { return s.fieldr(sbOffDataBitmapBlocks) }
func (s *superblockFields) DataAreaBlocks() uint32    { return s.fieldr(sbOffDataAreaBlocks) }

func (s *superblockFields) SetMagic(v uint32)            { s.fieldw(sbOffMagic, v) }
func (s *superblockFields) SetTotalBlocks(v uint32)       { s.fieldw(sbOffTotalBlocks, v) }
func (s *superblockFields) SetInodeBitmapBlocks(v uint32) { s.fieldw(sbOffInodeBitmapBlocks, v) }
func (s *superblockFields) SetInodeAreaBlocks(v uint32)   { s.fieldw(sbOffInodeAreaBlocks, v) }
func (s *superblockFields) SetDataBitmapBlocks(v uint32)  { s.fieldw(sbOffDataBitmapBlocks, v) }
func (s *superblockFields) SetDataAreaBlocks(v uint32)    { s.fieldw(sbOffDataAreaBlocks, v) }

func (s *superblockFields) valid() error {
	if s.Magic() != magic {
		return fmt.Errorf("fs: bad superblock magic %#x", s.Magic())
	}
	return nil
}

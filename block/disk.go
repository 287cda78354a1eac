// Package block implements the block-device cache: a
// fixed-capacity FIFO cache of fixed-size blocks sitting in front of a
// Disk, with miss deduplication and parallel write-back. Grounded on
// biscuit's block-cache pattern in fs/blk.go / ufs/driver.go (a
// cache keyed by block number, backed by an AHCI-style Disk interface),
// generalized from biscuit's reference-counted bdev_block_t cache to a
// simpler fixed-capacity FIFO-eviction cache.
package block

import "rvos/config"

// Disk is the raw block-addressable backing store a Cache multiplexes
// access to (an in-memory image, a host file via package hostdisk, or
// any future device).
type Disk interface {
	ReadBlock(id uint64, buf []byte) error
	WriteBlock(id uint64, buf []byte) error
}

// BlockSize is the fixed block size every Disk and Cache operate in.
const BlockSize = config.BlockSize

// Package hostdisk implements block.Disk over a plain host file, mapped
// into memory with golang.org/x/sys/unix rather than readat/pwriteat
// (a disk image is just a file the build tooling and the VM both
// address by byte offset). It exists purely for host tools (cmd/mkfs,
// tests) that need to build or inspect a filesystem image
// without a running kernel underneath them — there is no in-kernel
// AHCI/NVMe driver in this model; ufs/driver.go's ahci_disk_t plays the
// same test-only stand-in role for real disk hardware.
package hostdisk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"rvos/block"
)

// Disk is a block.Disk backed by an mmap'd host file. The whole image is
// mapped once at Open and addressed by byte offset on every
// ReadBlock/WriteBlock — no per-call syscall, unlike a seek-then-
// read()/write() driver.
type Disk struct {
	f    *os.File
	data []byte
}

// Open mmaps path read-write at its current size; the number of
// addressable blocks follows from that size. Create should be used
// instead when building a fresh image from scratch.
func Open(path string) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("hostdisk: open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hostdisk: stat %s: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hostdisk: mmap %s: %w", path, err)
	}
	return &Disk{f: f, data: data}, nil
}

// Create truncates path to exactly nblocks*block.BlockSize bytes
// (zero-filled, via Truncate rather than writing zeroes by hand) and
// opens it, sizing the image before a filesystem is ever formatted
// onto it.
func Create(path string, nblocks int) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("hostdisk: create %s: %w", path, err)
	}
	size := int64(nblocks) * int64(block.BlockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("hostdisk: truncate %s: %w", path, err)
	}
	f.Close()
	return Open(path)
}

func (d *Disk) bounds(id uint64) (int, int, error) {
	off := int(id) * block.BlockSize
	end := off + block.BlockSize
	if off < 0 || end > len(d.data) {
		return 0, 0, fmt.Errorf("hostdisk: block %d out of range (image has %d blocks)", id, len(d.data)/block.BlockSize)
	}
	return off, end, nil
}

func (d *Disk) ReadBlock(id uint64, buf []byte) error {
	off, end, err := d.bounds(id)
	if err != nil {
		return err
	}
	copy(buf, d.data[off:end])
	return nil
}

func (d *Disk) WriteBlock(id uint64, buf []byte) error {
	off, end, err := d.bounds(id)
	if err != nil {
		return err
	}
	copy(d.data[off:end], buf)
	return nil
}

// Sync flushes the mapped image back to disk (msync), the mmap
// equivalent of flushing a disk write-back cache.
func (d *Disk) Sync() error {
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("hostdisk: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the backing file.
func (d *Disk) Close() error {
	if err := unix.Munmap(d.data); err != nil {
		return fmt.Errorf("hostdisk: munmap: %w", err)
	}
	return d.f.Close()
}

var _ block.Disk = (*Disk)(nil)

package hostdisk

import (
	"path/filepath"
	"testing"

	"rvos/block"
)

func TestCreateThenReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	d, err := Create(path, 8)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer d.Close()

	buf := make([]byte, block.BlockSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	if err := d.WriteBlock(3, buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make([]byte, block.BlockSize)
	if err := d.ReadBlock(3, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(buf) {
		t.Fatal("read back different bytes than written")
	}
}

func TestWriteThenCloseThenReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	d, err := Create(path, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	buf := make([]byte, block.BlockSize)
	buf[0] = 0x7a
	if err := d.WriteBlock(0, buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got := make([]byte, block.BlockSize)
	if err := reopened.ReadBlock(0, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got[0] != 0x7a {
		t.Fatalf("got %#x, want 0x7a", got[0])
	}
}

func TestReadBlockOutOfRangeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	d, err := Create(path, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer d.Close()

	buf := make([]byte, block.BlockSize)
	if err := d.ReadBlock(5, buf); err == nil {
		t.Fatal("expected an error reading past the image")
	}
}

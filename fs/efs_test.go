package fs

import (
	"testing"

	"rvos/block"
)

func newTestFS(t *testing.T) *EasyFileSystem {
	t.Helper()
	disk := block.NewMemDisk(4096)
	cache := block.NewCache(disk, 32)
	efs, err := Create(cache, 4096, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return efs
}

func TestCreateAndFindFile(t *testing.T) {
	efs := newTestFS(t)
	root := efs.RootInode()

	if _, ok := root.Find("hello"); ok {
		t.Fatal("expected no entry before creation")
	}
	f, ok := root.Create("hello")
	if !ok {
		t.Fatal("create failed")
	}
	if f.IsDir() {
		t.Fatal("expected created inode to be a file")
	}

	got, ok := root.Find("hello")
	if !ok || got.id != f.id {
		t.Fatalf("find mismatch: ok=%v id=%d want=%d", ok, got.id, f.id)
	}

	names := root.Ls()
	if len(names) != 1 || names[0] != "hello" {
		t.Fatalf("ls = %v, want [hello]", names)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	efs := newTestFS(t)
	root := efs.RootInode()
	root.Create("a")
	if _, ok := root.Create("a"); ok {
		t.Fatal("expected duplicate create to fail")
	}
}

func TestReadWriteRoundTripAcrossBlocks(t *testing.T) {
	efs := newTestFS(t)
	root := efs.RootInode()
	f, ok := root.Create("big")
	if !ok {
		t.Fatal("create failed")
	}

	data := make([]byte, block.BlockSize*3+17)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := f.WriteAt(data, 0)
	if err != nil || n != len(data) {
		t.Fatalf("write = %d err=%v", n, err)
	}
	if f.Size() != len(data) {
		t.Fatalf("size = %d, want %d", f.Size(), len(data))
	}

	got := make([]byte, len(data))
	n, err = f.ReadAt(got, 0)
	if err != nil || n != len(data) {
		t.Fatalf("read = %d err=%v", n, err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], data[i])
		}
	}
}

func TestWriteAtOffsetGrowsFile(t *testing.T) {
	efs := newTestFS(t)
	root := efs.RootInode()
	f, _ := root.Create("sparse")

	f.WriteAt([]byte("end"), 1000)
	if f.Size() != 1003 {
		t.Fatalf("size = %d, want 1003", f.Size())
	}

	buf := make([]byte, 3)
	f.ReadAt(buf, 1000)
	if string(buf) != "end" {
		t.Fatalf("got %q, want \"end\"", buf)
	}
}

func TestClearReleasesBlocks(t *testing.T) {
	efs := newTestFS(t)
	root := efs.RootInode()
	f, _ := root.Create("tmp")
	f.WriteAt(make([]byte, block.BlockSize*2), 0)

	before, _ := efs.dataBitmap.alloc(efs.cache)
	efs.dataBitmap.dealloc(efs.cache, before) // undo the probe allocation

	if err := f.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if f.Size() != 0 {
		t.Fatalf("size after clear = %d, want 0", f.Size())
	}

	after, _ := efs.dataBitmap.alloc(efs.cache)
	efs.dataBitmap.dealloc(efs.cache, after)
	if after >= before {
		t.Fatalf("first free data bit after clear = %d, want below %d (blocks released)", after, before)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	disk := block.NewMemDisk(4096)
	cache := block.NewCache(disk, 32)
	efs, err := Create(cache, 4096, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	root := efs.RootInode()
	root.Create("persisted")
	if err := cache.SyncAll(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	cache2 := block.NewCache(disk, 32)
	efs2, err := Open(cache2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := efs2.RootInode().Find("persisted"); !ok {
		t.Fatal("expected entry to survive reopen")
	}
}

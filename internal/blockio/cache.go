package blockio

import (
	"sync"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
)

// Cache is the host-provided block cache the B-tree engine and allocator
// depend on (spec.md §4.B). At most one lease is outstanding for a given
// block number at any instant. Invalidate ends a lease and discards its
// bytes; the invalidated Buffer's Data then returns nil (no ErrIO is
// reported), and the next Read or Get of that block starts from fresh bytes.
type Cache struct {
	backing   Backing
	blockSize uint32

	mu      sync.Mutex
	entries map[uint64]*entry // blockNo -> entry
}

type entry struct {
	cond      *sync.Cond
	leased    bool
	invalid   bool
	dirty     bool
	delayed   bool
	data      []byte
	waitGroup sync.WaitGroup // async writes in flight for this entry
}

// NewCache wraps backing as a block cache with the given block size.
func NewCache(backing Backing, blockSize uint32) *Cache {
	return &Cache{backing: backing, blockSize: blockSize, entries: make(map[uint64]*entry)}
}

// BlockSize returns the cache's fixed block size.
func (c *Cache) BlockSize() uint32 { return c.blockSize }

// Backing exposes the underlying store, mainly so callers can query total size.
func (c *Cache) Backing() Backing { return c.backing }

// Buffer is a scoped lease on one block's bytes. Every exit path — success,
// error, or a recovered panic — must call Release (or Invalidate), typically
// via defer, satisfying spec.md §4.B / §9's "guaranteed release on all exit
// paths" requirement.
type Buffer struct {
	cache   *Cache
	block   uint64
	e       *entry
	released bool
}

// Block returns the block number this buffer leases.
func (b *Buffer) Block() uint64 { return b.block }

// Data returns the buffer's bytes, valid until Release or Invalidate.
func (b *Buffer) Data() []byte { return b.e.data }

func (c *Cache) acquire(block uint64) *entry {
	c.mu.Lock()
	e, ok := c.entries[block]
	if !ok {
		e = &entry{cond: sync.NewCond(&c.mu)}
		c.entries[block] = e
	}
	for e.leased {
		e.cond.Wait()
	}
	e.leased = true
	c.mu.Unlock()
	return e
}

// Read fetches a block, reading from the backing store if not already cached.
func (c *Cache) Read(block uint64) (*Buffer, error) {
	e := c.acquire(block)
	if e.data == nil {
		e.data = make([]byte, c.blockSize)
		_, err := c.backing.ReadAt(e.data, int64(block)*int64(c.blockSize))
		if err != nil {
			c.release(block, e)
			return nil, hfserrors.Wrap(hfserrors.ErrIO, err, "read block")
		}
	}
	if e.invalid {
		c.release(block, e)
		return nil, hfserrors.New(hfserrors.ErrIO, "block was invalidated while unleased")
	}
	return &Buffer{cache: c, block: block, e: e}, nil
}

// Get returns a scratch buffer for block without reading it; the caller
// intends to overwrite every byte (e.g. a freshly allocated B-tree node).
func (c *Cache) Get(block uint64) (*Buffer, error) {
	e := c.acquire(block)
	if e.data == nil || e.invalid {
		e.data = make([]byte, c.blockSize)
		e.invalid = false
	}
	return &Buffer{cache: c, block: block, e: e}, nil
}

// Dirty marks the buffer modified; it will be written back on the next Flush.
func (b *Buffer) Dirty() {
	b.e.dirty = true
	b.e.delayed = false
}

// DirtyDelayed marks the buffer modified and queues it for a later periodic
// flush rather than forcing synchronous durability now.
func (b *Buffer) DirtyDelayed() {
	b.e.dirty = true
	b.e.delayed = true
}

// Write forces this buffer to disk synchronously now.
func (b *Buffer) Write() error {
	if err := b.flushOne(); err != nil {
		return err
	}
	return b.cache.backing.Sync()
}

// WriteAsync queues a background write for this buffer and returns
// immediately; WaitNumOut for this block blocks until it (and any other
// async writes for the same block) complete.
func (b *Buffer) WriteAsync() {
	b.e.waitGroup.Add(1)
	go func(e *entry, data []byte, block uint64, backing Backing) {
		defer e.waitGroup.Done()
		backing.WriteAt(data, int64(block)*int64(len(data)))
	}(b.e, append([]byte(nil), b.e.data...), b.block, b.cache.backing)
}

func (b *Buffer) flushOne() error {
	_, err := b.cache.backing.WriteAt(b.e.data, int64(b.block)*int64(len(b.e.data)))
	if err != nil {
		return hfserrors.Wrap(hfserrors.ErrIO, err, "write block")
	}
	b.e.dirty = false
	b.e.delayed = false
	return nil
}

// Release drops this buffer's lease. If it is clean, the underlying entry
// may be recycled by a future Invalidate; if dirty-delayed, it is left dirty
// for a subsequent Cache.Flush.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.cache.release(b.block, b.e)
}

// Invalidate drops and discards this lease, even if dirty — a subsequent
// Read/Get for the same block re-fetches from the backing store.
func (b *Buffer) Invalidate() {
	if b.released {
		return
	}
	b.released = true
	b.e.data = nil
	b.e.dirty = false
	b.e.delayed = false
	b.cache.release(b.block, b.e)
}

// WaitNumOut blocks until all outstanding async writes started with
// WriteAsync for block have completed (spec.md §4.B "wait_numout").
func (c *Cache) WaitNumOut(block uint64) {
	c.mu.Lock()
	e, ok := c.entries[block]
	c.mu.Unlock()
	if ok {
		e.waitGroup.Wait()
	}
}

func (c *Cache) release(block uint64, e *entry) {
	c.mu.Lock()
	e.leased = false
	e.cond.Signal()
	c.mu.Unlock()
}

// Flush writes every dirty leased or cached buffer synchronously. Used by
// the volume's explicit flush (spec.md §4.E.7, §4.G.2).
func (c *Cache) Flush() error {
	c.mu.Lock()
	blocks := make([]uint64, 0, len(c.entries))
	for blk, e := range c.entries {
		if e.dirty {
			blocks = append(blocks, blk)
		}
	}
	c.mu.Unlock()

	for _, blk := range blocks {
		e := c.acquire(blk)
		if e.dirty && e.data != nil {
			if _, err := c.backing.WriteAt(e.data, int64(blk)*int64(c.blockSize)); err != nil {
				c.release(blk, e)
				return hfserrors.Wrap(hfserrors.ErrIO, err, "flush block")
			}
			e.dirty = false
			e.delayed = false
		}
		c.release(blk, e)
	}
	if err := c.backing.Sync(); err != nil {
		return hfserrors.Wrap(hfserrors.ErrIO, err, "sync backing store")
	}
	hfslog.Logger.WithFields(hfslog.Fields{"blocks": len(blocks)}).Debug("blockio: flushed dirty blocks")
	return nil
}

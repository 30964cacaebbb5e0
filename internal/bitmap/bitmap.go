// Package bitmap implements the HFS+ allocation bitmap (spec.md §4.C): one
// bit per allocation block, contiguous-range allocation with a rover hint,
// and loaned-block accounting for deferred allocation.
package bitmap

import (
	"sync"

	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// Bitmap owns the allocation bitmap file's bytes and in-memory rover/loan
// state. Per spec.md §5, it shares a lock with the extents-overflow
// metadata lock in the caller (internal/volume); this type itself is not
// safe for concurrent use without that external lock, except CountFree
// which is safe to call for advisory reporting.
type Bitmap struct {
	cache       *blockio.Cache
	allocation  types.ExtentRecord // bitmap file's own inline extents (never overflows, see DESIGN.md)
	allocationBlockSize uint32
	totalBlocks uint32

	mu      sync.Mutex
	rover   uint32
	loaned  uint32
	freeHint uint32
	haveFreeHint bool
}

// New constructs a Bitmap over the allocation file described by fork, for a
// volume with totalBlocks allocation blocks of allocationBlockSize bytes
// each.
func New(cache *blockio.Cache, fork types.ForkData, totalBlocks, allocationBlockSize uint32) *Bitmap {
	return &Bitmap{
		cache:               cache,
		allocation:          fork.Extents,
		allocationBlockSize: allocationBlockSize,
		totalBlocks:         totalBlocks,
	}
}

// bitLocation resolves allocation block i to the (physical allocation
// block, byte offset within it, bit within that byte) that stores its bit.
func (b *Bitmap) bitLocation(i uint32) (physBlock uint32, byteOff uint32, bit uint8, err error) {
	byteIndex := i / 8
	blockIndex := byteIndex / b.allocationBlockSize
	within := byteIndex % b.allocationBlockSize
	phys, _, ok := b.allocation.MapInline(blockIndex)
	if !ok {
		return 0, 0, 0, hfserrors.Newf(hfserrors.ErrBadFormat, "allocation bitmap has no extent covering block %d", blockIndex)
	}
	return phys, within, uint8(7 - i%8), nil
}

func (b *Bitmap) readBit(i uint32) (bool, error) {
	phys, off, bit, err := b.bitLocation(i)
	if err != nil {
		return false, err
	}
	buf, err := b.cache.Read(uint64(phys))
	if err != nil {
		return false, err
	}
	defer buf.Release()
	return buf.Data()[off]&(1<<bit) != 0, nil
}

func (b *Bitmap) setBit(i uint32, value bool) error {
	phys, off, bit, err := b.bitLocation(i)
	if err != nil {
		return err
	}
	buf, err := b.cache.Read(uint64(phys))
	if err != nil {
		return err
	}
	defer buf.Release()
	if value {
		buf.Data()[off] |= 1 << bit
	} else {
		buf.Data()[off] &^= 1 << bit
	}
	buf.DirtyDelayed()
	return nil
}

// runLength returns how many consecutive free bits start at i, capped at max.
func (b *Bitmap) runLength(i, max uint32) (uint32, error) {
	var n uint32
	for n < max && i+n < b.totalBlocks {
		used, err := b.readBit(i + n)
		if err != nil {
			return n, err
		}
		if used {
			break
		}
		n++
	}
	return n, nil
}

// AllocContig finds the longest free run >= minBlocks, at or after
// startHint, wrapping once at end-of-volume (spec.md §4.C). It never
// returns more than maxBlocks.
func (b *Bitmap) AllocContig(startHint, minBlocks, maxBlocks uint32) (uint32, uint32, error) {
	if minBlocks == 0 {
		return 0, 0, hfserrors.New(hfserrors.ErrDiskFull, "zero-block allocation requested")
	}
	if start, n, ok, err := b.scanFrom(startHint, b.totalBlocks, minBlocks, maxBlocks); err != nil {
		return 0, 0, err
	} else if ok {
		return b.commit(start, n)
	}
	// Wrap: search from block 0 up to startHint (spec.md §4.C policy).
	if start, n, ok, err := b.scanFrom(0, startHint, minBlocks, maxBlocks); err != nil {
		return 0, 0, err
	} else if ok {
		return b.commit(start, n)
	}
	return 0, 0, hfserrors.New(hfserrors.ErrDiskFull, "no free run satisfies minimum block request")
}

// scanFrom looks for the longest run >= minBlocks in [from, to), stopping
// at the first run that already reaches maxBlocks.
func (b *Bitmap) scanFrom(from, to, minBlocks, maxBlocks uint32) (start, length uint32, ok bool, err error) {
	var bestStart, bestLen uint32
	i := from
	for i < to {
		used, rerr := b.readBit(i)
		if rerr != nil {
			return 0, 0, false, rerr
		}
		if used {
			i++
			continue
		}
		runMax := maxBlocks
		if to-i < runMax {
			runMax = to - i
		}
		n, rerr := b.runLength(i, runMax)
		if rerr != nil {
			return 0, 0, false, rerr
		}
		if n >= minBlocks && n >= maxBlocks {
			return i, n, true, nil
		}
		if n > bestLen {
			bestStart, bestLen = i, n
		}
		i += n + 1
	}
	if bestLen > 0 && bestLen >= minBlocks {
		return bestStart, bestLen, true, nil
	}
	return 0, 0, false, nil
}

func (b *Bitmap) commit(start, count uint32) (uint32, uint32, error) {
	if err := b.MarkUsed(start, count); err != nil {
		return 0, 0, err
	}
	b.mu.Lock()
	b.rover = start + count
	if b.rover >= b.totalBlocks {
		b.rover = 0
	}
	b.haveFreeHint = false
	b.mu.Unlock()
	hfslog.Logger.WithFields(hfslog.Fields{"start": start, "count": count}).Debug("bitmap: allocated contiguous run")
	return start, count, nil
}

// AllocAny allocates using the volume's rover as the starting hint,
// advancing the rover by the allocated count (spec.md §4.C).
func (b *Bitmap) AllocAny(minBlocks, maxBlocks uint32) (uint32, uint32, error) {
	b.mu.Lock()
	hint := b.rover
	b.mu.Unlock()
	return b.AllocContig(hint, minBlocks, maxBlocks)
}

// Free clears count bits starting at start.
func (b *Bitmap) Free(start, count uint32) error {
	for i := uint32(0); i < count; i++ {
		if err := b.setBit(start+i, false); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.haveFreeHint = false
	b.mu.Unlock()
	hfslog.Logger.WithFields(hfslog.Fields{"start": start, "count": count}).Debug("bitmap: freed run")
	return nil
}

// MarkUsed sets count bits starting at start (used at mount-time init and
// by AllocContig's commit step).
func (b *Bitmap) MarkUsed(start, count uint32) error {
	for i := uint32(0); i < count; i++ {
		if err := b.setBit(start+i, true); err != nil {
			return err
		}
	}
	return nil
}

// CountFree scans the bitmap and returns the number of free blocks. Callers
// that need this often should instead track VCB.FreeBlocks incrementally;
// this is for verification (spec.md §8.1 "bitmap consistency").
func (b *Bitmap) CountFree() (uint32, error) {
	var free uint32
	for i := uint32(0); i < b.totalBlocks; i++ {
		used, err := b.readBit(i)
		if err != nil {
			return 0, err
		}
		if !used {
			free++
		}
	}
	return free, nil
}

// Loan reserves n blocks in memory without touching the bitmap (deferred
// allocation for holes, spec.md §4.C).
func (b *Bitmap) Loan(n uint32) {
	b.mu.Lock()
	b.loaned += n
	b.mu.Unlock()
}

// Unloan returns n previously loaned blocks, e.g. on truncation of an
// unwritten hole.
func (b *Bitmap) Unloan(n uint32) {
	b.mu.Lock()
	if n > b.loaned {
		n = b.loaned
	}
	b.loaned -= n
	b.mu.Unlock()
}

// LoanedBlocks returns the current loaned-block count.
func (b *Bitmap) LoanedBlocks() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaned
}

// Rover returns the current allocation rover hint.
func (b *Bitmap) Rover() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rover
}

// Package extents implements the HFS+ extent manager (spec.md §4.D): it
// turns a fork's eight inline extent descriptors, plus an optional overflow
// B-tree for forks that outgrow them, into a contiguous logical byte space
// addressable by block-size-granular reads and writes.
package extents

import (
	"github.com/go-hfsplus/hfsplus/internal/bitmap"
	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// OverflowTree is the subset of *btree.Tree the extent manager needs for its
// own overflow records. ForkHandle depends only on this interface;
// OverflowTreeHandle (overflow.go) is the implementation backed by
// internal/btree.
type OverflowTree interface {
	Search(key types.ExtentKey) (rec types.ExtentRecord, found bool, err error)
	Insert(key types.ExtentKey, rec types.ExtentRecord) error
	Replace(key types.ExtentKey, rec types.ExtentRecord) error
	Delete(key types.ExtentKey) error
	SearchFloor(key types.ExtentKey) (foundKey types.ExtentKey, rec types.ExtentRecord, found bool, err error)
}

// ExtendFlags controls Extend's allocation policy (spec.md §4.D).
type ExtendFlags struct {
	Contiguous     bool // fail if the request cannot be satisfied in one run
	AllOrNothing   bool // fail rather than return a partial allocation
	NoClumpRoundUp bool
	Reserve        bool // when unset, one request is capped at 98% of the volume's blocks; where the blocks land is not restricted
	Defer          bool // do not touch the bitmap, only update the loaned count
}

// ForkHandle is a byte-addressable view of one fork (data or resource) of
// one file, including its inline extents and, if allowOverflow is set, an
// overflow B-tree for records past the inline eight.
//
// The extents-overflow file's own fork and the allocation bitmap file's own
// fork are constructed with allowOverflow=false: real HFS+ volumes never let
// these two metadata forks grow into the overflow tree, since the overflow
// tree is itself stored through this same mechanism (see DESIGN.md).
type ForkHandle struct {
	cache         *blockio.Cache
	bmp           *bitmap.Bitmap
	overflow      OverflowTree
	allowOverflow bool

	fileID   types.CNID
	forkType uint8

	fork       *types.ForkData
	blockSize  uint32
	reserveFraction float64 // fraction of totalBlocks withheld unless Reserve is set
	totalVolumeBlocks uint32
}

// New constructs a ForkHandle over fork, backed by cache (block-size granular
// I/O) and bmp (the volume's allocation bitmap). overflow may be nil only if
// allowOverflow is false.
func New(cache *blockio.Cache, bmp *bitmap.Bitmap, fork *types.ForkData, fileID types.CNID, forkType uint8, allowOverflow bool, overflow OverflowTree, totalVolumeBlocks uint32) *ForkHandle {
	return &ForkHandle{
		cache:             cache,
		bmp:               bmp,
		overflow:          overflow,
		allowOverflow:     allowOverflow,
		fileID:            fileID,
		forkType:          forkType,
		fork:              fork,
		blockSize:         cache.BlockSize(),
		reserveFraction:   0.02,
		totalVolumeBlocks: totalVolumeBlocks,
	}
}

// Size returns the fork's logical size in bytes.
func (h *ForkHandle) Size() int64 { return int64(h.fork.LogicalSize) }

// TotalBlocks returns the fork's total allocated blocks (inline + overflow).
func (h *ForkHandle) TotalBlocks() uint32 { return h.fork.TotalBlocks }

// BlockSize returns the allocation block size backing this fork.
func (h *ForkHandle) BlockSize() uint32 { return h.blockSize }

// MapBlock implements spec.md §4.D's primary extent-manager operation: it
// translates a fork-logical allocation block into a physical one, consulting
// the overflow tree only if the inline extents don't cover it.
func (h *ForkHandle) MapBlock(logicalBlock uint32) (startBlock, contiguousBlocks uint32, hole bool, err error) {
	if logicalBlock >= h.fork.TotalBlocks {
		return 0, 0, true, nil
	}
	if phys, n, ok := h.fork.Extents.MapInline(logicalBlock); ok {
		return phys, n, false, nil
	}
	if !h.allowOverflow || h.overflow == nil {
		return 0, 0, false, hfserrors.Newf(hfserrors.ErrBadFormat, "fork %d has logical block %d past inline extents with no overflow tree", h.fileID, logicalBlock)
	}

	inlineTotal := h.fork.Extents.InlineTotalBlocks()
	key, rec, found, err := h.overflow.SearchFloor(types.ExtentKey{
		ForkType:   h.forkType,
		FileID:     h.fileID,
		StartBlock: logicalBlock,
	})
	if err != nil {
		return 0, 0, false, err
	}
	if !found || key.FileID != h.fileID || key.ForkType != h.forkType {
		return 0, 0, false, hfserrors.Newf(hfserrors.ErrBadFormat, "no overflow extent record covers fork %d block %d", h.fileID, logicalBlock)
	}
	cursor := key.StartBlock
	_ = inlineTotal
	for _, e := range rec {
		if e.Empty() {
			break
		}
		if logicalBlock < cursor+e.BlockCount {
			offset := logicalBlock - cursor
			return e.StartBlock + offset, e.BlockCount - offset, false, nil
		}
		cursor += e.BlockCount
	}
	return 0, 0, false, hfserrors.Newf(hfserrors.ErrBadFormat, "overflow extent record for fork %d does not cover block %d", h.fileID, logicalBlock)
}

// ReadAt reads len(buf) bytes starting at logical byte offset off, which may
// span multiple allocation blocks and multiple extents.
func (h *ForkHandle) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > int64(h.fork.LogicalSize) {
		return 0, hfserrors.New(hfserrors.ErrIO, "read past fork end")
	}
	return h.ioAt(buf, off, false)
}

// WriteAt writes len(buf) bytes at logical byte offset off; off+len(buf)
// must not exceed the fork's already-allocated TotalBlocks×blockSize.
func (h *ForkHandle) WriteAt(buf []byte, off int64) (int, error) {
	limit := int64(h.fork.TotalBlocks) * int64(h.blockSize)
	if off < 0 || off+int64(len(buf)) > limit {
		return 0, hfserrors.New(hfserrors.ErrIO, "write past fork allocation; call Extend first")
	}
	return h.ioAt(buf, off, true)
}

func (h *ForkHandle) ioAt(buf []byte, off int64, write bool) (int, error) {
	var done int
	for done < len(buf) {
		logicalBlock := uint32((off + int64(done)) / int64(h.blockSize))
		within := uint32((off + int64(done)) % int64(h.blockSize))

		phys, _, hole, err := h.MapBlock(logicalBlock)
		if err != nil {
			return done, err
		}
		if hole {
			return done, hfserrors.New(hfserrors.ErrIO, "unmapped hole in fork")
		}

		n := int(h.blockSize - within)
		if remaining := len(buf) - done; n > remaining {
			n = remaining
		}

		if write {
			b, err := h.cache.Read(uint64(phys))
			if err != nil {
				return done, err
			}
			copy(b.Data()[within:], buf[done:done+n])
			b.DirtyDelayed()
			b.Release()
		} else {
			b, err := h.cache.Read(uint64(phys))
			if err != nil {
				return done, err
			}
			copy(buf[done:done+n], b.Data()[within:within+uint32(n)])
			b.Release()
		}
		done += n
	}
	return done, nil
}

// Extend implements spec.md §4.D's extend operation: it grows the fork by
// at least one allocation-block chunk satisfying bytesRequested, appending
// the new extent inline or, if the inline slots are full and overflow is
// allowed, into the overflow tree.
func (h *ForkHandle) Extend(bytesRequested int64, flags ExtendFlags) (int64, error) {
	if bytesRequested <= 0 {
		return 0, nil
	}
	clump := h.fork.ClumpSize
	if clump == 0 {
		clump = h.blockSize
	}
	want := bytesRequested
	if !flags.NoClumpRoundUp {
		want = roundUp(want, int64(clump))
	}
	wantBlocks := uint32((want + int64(h.blockSize) - 1) / int64(h.blockSize))
	if wantBlocks == 0 {
		wantBlocks = 1
	}

	maxStart := h.totalVolumeBlocks
	if !flags.Reserve {
		reserved := uint32(float64(h.totalVolumeBlocks) * h.reserveFraction)
		if reserved < maxStart {
			maxStart -= reserved
		}
	}

	if flags.Defer {
		// A deferred extend only adds wantBlocks to the bitmap's loaned
		// counter: no physical extent is assigned and TotalBlocks is
		// unchanged. No later Extend or Truncate returns the loan.
		h.bmp.Loan(wantBlocks)
		return int64(wantBlocks) * int64(h.blockSize), nil
	}

	granted := uint32(0)
	req := wantBlocks
	for req > 0 {
		minBlocks := uint32(1)
		if flags.AllOrNothing || flags.Contiguous {
			minBlocks = req
		}
		start, n, err := h.bmp.AllocContig(h.bmp.Rover(), minUint32(minBlocks, req), minUint32(req, maxStart))
		if err != nil {
			if (flags.AllOrNothing || flags.Contiguous) && granted == 0 {
				return 0, hfserrors.Wrap(hfserrors.ErrDiskFull, err, "extend: no single free run satisfies the request")
			}
			if granted > 0 {
				break
			}
			req /= 2
			if req == 0 {
				return 0, hfserrors.Wrap(hfserrors.ErrDiskFull, err, "extend: no space available")
			}
			continue
		}
		if !h.appendExtent(types.ExtentDescriptor{StartBlock: start, BlockCount: n}) {
			return 0, hfserrors.New(hfserrors.ErrBadFormat, "no inline slot and no overflow tree to extend into")
		}
		h.fork.TotalBlocks += n
		granted += n
		req -= n
		if flags.Contiguous {
			break
		}
	}
	added := int64(granted) * int64(h.blockSize)
	hfslog.Logger.WithFields(hfslog.Fields{"fileID": h.fileID, "forkType": h.forkType, "blocks": granted}).Debug("extents: extended fork")
	return added, nil
}

func (h *ForkHandle) appendExtent(e types.ExtentDescriptor) bool {
	if h.fork.Extents.AppendOrMerge(e) {
		return true
	}
	if !h.allowOverflow || h.overflow == nil {
		return false
	}
	// Keyed by the fork-logical block e starts at, which MapBlock's floor
	// search relies on; TotalBlocks has not yet been advanced past e.
	key := types.ExtentKey{ForkType: h.forkType, FileID: h.fileID, StartBlock: h.fork.TotalBlocks}
	var rec types.ExtentRecord
	rec[0] = e
	if err := h.overflow.Insert(key, rec); err != nil {
		return false
	}
	return true
}

// Truncate implements spec.md §4.D's truncate operation: drop overflow
// extents past the new end, trim the tail extent, and return freed blocks
// to the allocator.
func (h *ForkHandle) Truncate(newSize int64) error {
	if newSize < 0 {
		return hfserrors.New(hfserrors.ErrIO, "negative truncate size")
	}
	newBlocks := uint32((newSize + int64(h.blockSize) - 1) / int64(h.blockSize))
	if newBlocks >= h.fork.TotalBlocks {
		h.fork.LogicalSize = uint64(newSize)
		return nil
	}

	var cursor uint32
	for i := range h.fork.Extents {
		e := h.fork.Extents[i]
		if e.Empty() {
			break
		}
		if cursor >= newBlocks {
			if err := h.bmp.Free(e.StartBlock, e.BlockCount); err != nil {
				return err
			}
			h.fork.Extents[i] = types.ExtentDescriptor{}
			h.fork.TotalBlocks -= e.BlockCount
			continue
		}
		if cursor+e.BlockCount > newBlocks {
			keep := newBlocks - cursor
			drop := e.BlockCount - keep
			if err := h.bmp.Free(e.StartBlock+keep, drop); err != nil {
				return err
			}
			h.fork.Extents[i].BlockCount = keep
			h.fork.TotalBlocks -= drop
		}
		cursor += e.BlockCount
	}

	if h.allowOverflow && h.overflow != nil {
		for {
			key, rec, found, err := h.overflow.SearchFloor(types.ExtentKey{ForkType: h.forkType, FileID: h.fileID, StartBlock: ^uint32(0)})
			if err != nil || !found || key.FileID != h.fileID || key.ForkType != h.forkType {
				break
			}
			if key.StartBlock < newBlocks {
				break
			}
			for _, e := range rec {
				if e.Empty() {
					break
				}
				if err := h.bmp.Free(e.StartBlock, e.BlockCount); err != nil {
					return err
				}
				h.fork.TotalBlocks -= e.BlockCount
			}
			if err := h.overflow.Delete(key); err != nil {
				return err
			}
		}
	}

	h.fork.LogicalSize = uint64(newSize)
	return nil
}

func roundUp(v, align int64) int64 {
	if align <= 0 {
		return v
	}
	return (v + align - 1) / align * align
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// NodeSpace adapts a ForkHandle to the node-granular space a B-tree expects
// (internal/btree's locally declared NodeSpace interface), for forks that
// hold a B-tree's nodes (catalog file, extents overflow file, attributes
// file).
type NodeSpace struct {
	Handle *ForkHandle
	Size   uint32
}

// NodeSize returns the fixed node size this space was configured with.
func (n *NodeSpace) NodeSize() uint32 { return n.Size }

// ReadNode reads one node's bytes.
func (n *NodeSpace) ReadNode(nodeNum uint32) ([]byte, error) {
	buf := make([]byte, n.Size)
	_, err := n.Handle.ReadAt(buf, int64(nodeNum)*int64(n.Size))
	return buf, err
}

// WriteNode writes one node's bytes back.
func (n *NodeSpace) WriteNode(nodeNum uint32, data []byte) error {
	_, err := n.Handle.WriteAt(data, int64(nodeNum)*int64(n.Size))
	return err
}

// TotalNodes returns how many whole nodes currently fit in the fork's
// allocation.
func (n *NodeSpace) TotalNodes() uint32 {
	return (n.Handle.fork.TotalBlocks * n.Handle.blockSize) / n.Size
}

// Grow extends the underlying fork so it holds at least newTotalNodes nodes.
func (n *NodeSpace) Grow(newTotalNodes uint32) error {
	needBytes := int64(newTotalNodes)*int64(n.Size) - n.Handle.Size()
	if needBytes <= 0 {
		return nil
	}
	added, err := n.Handle.Extend(needBytes, ExtendFlags{})
	if err != nil {
		return err
	}
	n.Handle.fork.LogicalSize += uint64(added)
	return nil
}

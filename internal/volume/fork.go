package volume

import (
	"github.com/go-hfsplus/hfsplus/internal/extents"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// forkReader is an ad hoc ForkHandle over an arbitrary catalog file's fork,
// built the same way the volume wires its five system files, so CLI-level
// readers (cat, stat) exercise the same extents/overflow path normal I/O
// does rather than a special-cased shortcut.
type forkReader struct {
	v        *Volume
	fork     *types.ForkData
	fileID   types.CNID
	forkType uint8
}

func (r *forkReader) handle() *extents.ForkHandle {
	return extents.New(r.v.cache, r.v.Bitmap, r.fork, r.fileID, r.forkType, true, r.v.Overflow, r.v.header.TotalBlocks)
}

// ReadAt reads from the fork's logical byte offset off.
func (r *forkReader) ReadAt(buf []byte, off int64) (int, error) {
	return r.handle().ReadAt(buf, off)
}

// Size returns the fork's logical size in bytes.
func (r *forkReader) Size() int64 { return int64(r.fork.LogicalSize) }

// MapBlock reports the physical extent covering logicalBlock, for
// fragmentation reporting.
func (r *forkReader) MapBlock(logicalBlock uint32) (startBlock, contiguousBlocks uint32, hole bool, err error) {
	return r.handle().MapBlock(logicalBlock)
}

// BlockSize returns the volume's allocation block size.
func (r *forkReader) BlockSize() uint32 { return r.v.header.BlockSize }

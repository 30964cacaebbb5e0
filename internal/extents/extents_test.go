package extents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/bitmap"
	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

const testBlockSize = 512

func newTestRig(t *testing.T, totalBlocks uint32) (*blockio.Cache, *bitmap.Bitmap) {
	t.Helper()
	backing := blockio.NewMemoryBacking(int64(totalBlocks) * testBlockSize)
	cache := blockio.NewCache(backing, testBlockSize)

	bmpFork := types.ForkData{
		TotalBlocks: 1,
		Extents:     types.ExtentRecord{{StartBlock: 0, BlockCount: 1}},
	}
	bmp := bitmap.New(cache, bmpFork, totalBlocks, testBlockSize)
	require.NoError(t, bmp.MarkUsed(0, 1)) // the bitmap's own block is used

	return cache, bmp
}

func TestForkHandleReadWriteRoundTrip(t *testing.T) {
	cache, bmp := newTestRig(t, 64)

	fork := &types.ForkData{
		TotalBlocks: 2,
		LogicalSize: 2 * testBlockSize,
		Extents:     types.ExtentRecord{{StartBlock: 1, BlockCount: 2}},
	}
	require.NoError(t, bmp.MarkUsed(1, 2))

	handle := New(cache, bmp, fork, 16, 0, false, nil, 64)

	payload := make([]byte, testBlockSize)
	copy(payload, []byte("hfs plus fork payload"))
	_, err := handle.WriteAt(payload, 0)
	require.NoError(t, err)

	out := make([]byte, len(payload))
	_, err = handle.ReadAt(out, 0)
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestForkHandleMapBlockInline(t *testing.T) {
	cache, bmp := newTestRig(t, 64)
	fork := &types.ForkData{
		TotalBlocks: 4,
		Extents:     types.ExtentRecord{{StartBlock: 10, BlockCount: 4}},
	}
	handle := New(cache, bmp, fork, 20, 0, false, nil, 64)

	phys, contig, hole, err := handle.MapBlock(2)
	require.NoError(t, err)
	require.False(t, hole)
	require.Equal(t, uint32(12), phys)
	require.Equal(t, uint32(2), contig)
}

func TestForkHandleMapBlockHoleWhenPastEnd(t *testing.T) {
	cache, bmp := newTestRig(t, 64)
	fork := &types.ForkData{
		TotalBlocks: 2,
		Extents:     types.ExtentRecord{{StartBlock: 10, BlockCount: 2}},
	}
	handle := New(cache, bmp, fork, 21, 0, false, nil, 64)

	_, _, hole, err := handle.MapBlock(5)
	require.NoError(t, err)
	require.True(t, hole)
}

func TestForkHandleExtendGrowsInlineExtent(t *testing.T) {
	cache, bmp := newTestRig(t, 64)
	fork := &types.ForkData{}
	handle := New(cache, bmp, fork, 22, 0, false, nil, 64)

	added, err := handle.Extend(int64(4*testBlockSize), ExtendFlags{NoClumpRoundUp: true})
	require.NoError(t, err)
	require.Equal(t, int64(4*testBlockSize), added)
	require.Equal(t, uint32(4), fork.TotalBlocks)
}

func TestForkHandleTruncateFreesTailBlocks(t *testing.T) {
	cache, bmp := newTestRig(t, 64)
	fork := &types.ForkData{}
	handle := New(cache, bmp, fork, 23, 0, false, nil, 64)

	_, err := handle.Extend(int64(8*testBlockSize), ExtendFlags{NoClumpRoundUp: true})
	require.NoError(t, err)
	before, err := bmp.CountFree()
	require.NoError(t, err)

	require.NoError(t, handle.Truncate(int64(3*testBlockSize)))
	require.Equal(t, uint32(3), fork.TotalBlocks)

	after, err := bmp.CountFree()
	require.NoError(t, err)
	require.Equal(t, before+5, after)
}

func TestForkHandleDeferredExtendOnlyLoans(t *testing.T) {
	cache, bmp := newTestRig(t, 64)
	fork := &types.ForkData{}
	handle := New(cache, bmp, fork, 24, 0, false, nil, 64)

	freeBefore, err := bmp.CountFree()
	require.NoError(t, err)

	_, err = handle.Extend(int64(2*testBlockSize), ExtendFlags{Defer: true, NoClumpRoundUp: true})
	require.NoError(t, err)

	freeAfter, err := bmp.CountFree()
	require.NoError(t, err)
	require.Equal(t, freeBefore, freeAfter, "deferred extend must not touch the bitmap")
	require.Equal(t, uint32(2), bmp.LoanedBlocks())
}

package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

func newTestBitmap(t *testing.T, totalBlocks uint32) (*Bitmap, *blockio.Cache) {
	t.Helper()
	const blockSize = 512
	backing := blockio.NewMemoryBacking(blockSize * 8)
	cache := blockio.NewCache(backing, blockSize)

	fork := types.ForkData{
		TotalBlocks: 1,
		Extents: types.ExtentRecord{
			{StartBlock: 0, BlockCount: 1},
		},
	}
	return New(cache, fork, totalBlocks, blockSize), cache
}

func TestAllocContigFindsFreeRun(t *testing.T) {
	b, _ := newTestBitmap(t, 64)

	start, n, err := b.AllocContig(0, 4, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(0), start)
	require.Equal(t, uint32(8), n)

	free, err := b.CountFree()
	require.NoError(t, err)
	require.Equal(t, uint32(56), free)
}

func TestAllocContigSkipsUsedRuns(t *testing.T) {
	b, _ := newTestBitmap(t, 32)

	require.NoError(t, b.MarkUsed(0, 8))
	start, n, err := b.AllocContig(0, 1, 8)
	require.NoError(t, err)
	require.Equal(t, uint32(8), start)
	require.Equal(t, uint32(8), n)
}

func TestAllocContigWrapsAtEndOfVolume(t *testing.T) {
	b, _ := newTestBitmap(t, 16)

	require.NoError(t, b.MarkUsed(0, 4))
	require.NoError(t, b.MarkUsed(8, 8))

	start, n, err := b.AllocContig(12, 4, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(4), start)
	require.Equal(t, uint32(4), n)
}

func TestAllocContigFailsWhenDiskFull(t *testing.T) {
	b, _ := newTestBitmap(t, 8)

	require.NoError(t, b.MarkUsed(0, 8))
	_, _, err := b.AllocContig(0, 1, 1)
	require.Error(t, err)
}

func TestFreeMakesBlocksAvailableAgain(t *testing.T) {
	b, _ := newTestBitmap(t, 16)

	start, n, err := b.AllocContig(0, 4, 4)
	require.NoError(t, err)
	require.NoError(t, b.Free(start, n))

	free, err := b.CountFree()
	require.NoError(t, err)
	require.Equal(t, uint32(16), free)
}

func TestLoanAndUnloanTrackSeparatelyFromBitmap(t *testing.T) {
	b, _ := newTestBitmap(t, 16)

	b.Loan(5)
	require.Equal(t, uint32(5), b.LoanedBlocks())
	b.Unloan(2)
	require.Equal(t, uint32(3), b.LoanedBlocks())

	free, err := b.CountFree()
	require.NoError(t, err)
	require.Equal(t, uint32(16), free, "loaned blocks are an in-memory reservation, not a bitmap write")
}

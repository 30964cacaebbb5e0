package cnode

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/bitmap"
	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/catalog"
	"github.com/go-hfsplus/hfsplus/internal/extents"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

const testBlockSize = 512

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	totalBlocks := uint32(4096)
	backing := blockio.NewMemoryBacking(int64(totalBlocks) * testBlockSize)
	cache := blockio.NewCache(backing, testBlockSize)

	bmpFork := types.ForkData{TotalBlocks: 1, Extents: types.ExtentRecord{{StartBlock: 0, BlockCount: 1}}}
	bmp := bitmap.New(cache, bmpFork, totalBlocks, testBlockSize)
	require.NoError(t, bmp.MarkUsed(0, 1))

	catFork := &types.ForkData{}
	handle := extents.New(cache, bmp, catFork, types.CNIDCatalogFile, 0, false, nil, totalBlocks)
	space := &extents.NodeSpace{Handle: handle, Size: 512}

	cat, err := catalog.New(space, 512, 0)
	require.NoError(t, err)
	return cat
}

func TestGetOrLoadCachesAndPins(t *testing.T) {
	cat := newTestCatalog(t)
	id, err := cat.CreateFolder(types.CNIDRootParent, "root", types.CatalogFolder{})
	require.NoError(t, err)

	c := New(cat, 8)
	n1, err := c.GetOrLoad(id)
	require.NoError(t, err)
	require.Equal(t, "root", n1.Name)

	n2, err := c.GetOrLoad(id)
	require.NoError(t, err)
	require.Same(t, n1, n2)

	c.Release(id)
	c.Release(id)
}

func TestGetOrLoadConcurrentCallsCoalesce(t *testing.T) {
	cat := newTestCatalog(t)
	id, err := cat.CreateFolder(types.CNIDRootParent, "root", types.CatalogFolder{})
	require.NoError(t, err)

	c := New(cat, 8)
	var wg sync.WaitGroup
	results := make([]*CNode, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := c.GetOrLoad(id)
			require.NoError(t, err)
			results[i] = n
		}(i)
	}
	wg.Wait()
	for _, n := range results {
		require.Same(t, results[0], n)
	}
}

func TestInvalidateRefusesWhilePinned(t *testing.T) {
	cat := newTestCatalog(t)
	id, err := cat.CreateFolder(types.CNIDRootParent, "root", types.CatalogFolder{})
	require.NoError(t, err)

	c := New(cat, 8)
	_, err = c.GetOrLoad(id)
	require.NoError(t, err)

	require.Error(t, c.Invalidate(id))
	c.Release(id)
	require.NoError(t, c.Invalidate(id))
}

package btree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/types"
)

// memNodeSpace is a simple in-memory NodeSpace for exercising the engine
// without pulling in internal/extents, keeping this package's tests free of
// a cyclic test-only dependency.
type memNodeSpace struct {
	nodeSize uint32
	nodes    map[uint32][]byte
	total    uint32
}

func newMemNodeSpace(nodeSize uint32) *memNodeSpace {
	return &memNodeSpace{nodeSize: nodeSize, nodes: make(map[uint32][]byte)}
}

func (m *memNodeSpace) NodeSize() uint32 { return m.nodeSize }

func (m *memNodeSpace) ReadNode(nodeNum uint32) ([]byte, error) {
	if data, ok := m.nodes[nodeNum]; ok {
		return append([]byte(nil), data...), nil
	}
	return make([]byte, m.nodeSize), nil
}

func (m *memNodeSpace) WriteNode(nodeNum uint32, data []byte) error {
	m.nodes[nodeNum] = append([]byte(nil), data...)
	if nodeNum >= m.total {
		m.total = nodeNum + 1
	}
	return nil
}

func (m *memNodeSpace) TotalNodes() uint32 { return m.total }

func (m *memNodeSpace) Grow(newTotalNodes uint32) error {
	if newTotalNodes > m.total {
		m.total = newTotalNodes
	}
	return nil
}

func uint32Codec() Codec[uint32, uint32] {
	return Codec[uint32, uint32]{
		Compare: func(a, b uint32) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		EncodeKey: func(k uint32) []byte {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, k)
			return b
		},
		DecodeKey: func(b []byte) (uint32, int, error) {
			return binary.BigEndian.Uint32(b), 4, nil
		},
		EncodeRecord: func(v uint32) []byte {
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, v)
			return b
		},
		DecodeRecord: func(b []byte) (uint32, error) {
			return binary.BigEndian.Uint32(b), nil
		},
	}
}

func TestTreeInsertAndSearch(t *testing.T) {
	space := newMemNodeSpace(512)
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	for i := uint32(0); i < 40; i++ {
		require.NoError(t, tree.Insert(i, i*10))
	}

	for i := uint32(0); i < 40; i++ {
		v, found, err := tree.Search(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, i*10, v)
	}

	_, found, err := tree.Search(999)
	require.NoError(t, err)
	require.False(t, found)
}

func TestTreeInsertDuplicateFails(t *testing.T) {
	space := newMemNodeSpace(512)
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	require.NoError(t, tree.Insert(1, 100))
	err = tree.Insert(1, 200)
	require.Error(t, err)
}

func TestTreeDeleteRemovesKey(t *testing.T) {
	space := newMemNodeSpace(512)
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	for i := uint32(0); i < 20; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	require.NoError(t, tree.Delete(5))

	_, found, err := tree.Search(5)
	require.NoError(t, err)
	require.False(t, found)

	err = tree.Delete(5)
	require.Error(t, err)
}

func TestTreeIteratesInKeyOrder(t *testing.T) {
	space := newMemNodeSpace(512)
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	inserted := []uint32{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, k := range inserted {
		require.NoError(t, tree.Insert(k, k))
	}

	it, err := tree.IterateFirst()
	require.NoError(t, err)

	var seen []uint32
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, k)
	}
	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestTreeSearchFloorFindsGreatestKeyLessOrEqual(t *testing.T) {
	space := newMemNodeSpace(512)
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	for _, k := range []uint32{10, 20, 30} {
		require.NoError(t, tree.Insert(k, k*100))
	}

	k, v, found, err := tree.SearchFloor(25)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(20), k)
	require.Equal(t, uint32(2000), v)
}

func TestTreeSplitsAcrossManyInserts(t *testing.T) {
	space := newMemNodeSpace(512) // smallest legal node size forces splits quickly
	tree, err := Create[uint32, uint32](space, 512, types.BTreeCompareBinary, 4, 512, uint32Codec())
	require.NoError(t, err)

	const n = 200
	for i := uint32(0); i < n; i++ {
		require.NoError(t, tree.Insert(i, i))
	}
	_, _, depth, totalNodes, _, _, _ := tree.GetInfo()
	require.Greater(t, depth, uint32(1), "enough inserts at a small node size must force at least one split")
	require.Greater(t, totalNodes, uint32(2))

	for i := uint32(0); i < n; i++ {
		v, found, err := tree.Search(i)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, i, v)
	}
}

package endian

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-hfsplus/hfsplus/internal/types"
)

// TestVolumeHeaderRoundTrip exercises spec.md §8.1's "endian round-trip"
// invariant: swap-to-disk then swap-from-disk yields the original value.
func TestVolumeHeaderRoundTrip(t *testing.T) {
	h := &types.VolumeHeader{
		Signature:      types.SigHFSPlus,
		Version:        types.VolumeHeaderVersion,
		Attributes:     types.VolAttrUnmounted,
		BlockSize:      4096,
		TotalBlocks:    25600,
		FreeBlocks:     25000,
		NextAllocation: 10,
		NextCatalogID:  types.CNIDFirstUserCatalogNodeID,
		FinderInfo:     [8]uint32{1, 2, 3, 4, 5, 6, 7, 8},
	}
	h.CatalogFile.LogicalSize = 8192
	h.CatalogFile.Extents[0] = types.ExtentDescriptor{StartBlock: 100, BlockCount: 20}

	buf := make([]byte, types.VolumeHeaderSize)
	require.NoError(t, WriteVolumeHeader(h, buf))

	got, err := ReadVolumeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestBTNodeDescriptorRoundTrip(t *testing.T) {
	d := types.BTNodeDescriptor{FLink: 1, BLink: 2, Kind: types.BTNodeKindLeaf, Height: 1, NumRecords: 5}
	buf := make([]byte, types.BTNodeDescriptorSize)
	WriteBTNodeDescriptor(d, buf)
	got, err := ReadBTNodeDescriptor(buf)
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestBTHeaderRecRoundTrip(t *testing.T) {
	r := types.BTHeaderRec{
		TreeDepth:      2,
		RootNode:       3,
		LeafRecords:    400,
		FirstLeafNode:  5,
		LastLeafNode:   6,
		NodeSize:       4096,
		MaxKeyLength:   516,
		TotalNodes:     1000,
		FreeNodes:      500,
		ClumpSize:      4194304,
		BTreeType:      0,
		KeyCompareType: types.BTKeyCompareCaseFolding,
		Attributes:     types.BTHeaderAttrBigKeys,
	}
	buf := make([]byte, types.BTHeaderRecSize)
	WriteBTHeaderRec(r, buf)
	got, err := ReadBTHeaderRec(buf)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestCatalogKeyRoundTrip(t *testing.T) {
	key := types.CatalogKey{
		ParentID: 16,
		NodeName: types.HFSUniStr255{Length: 5, Unicode: []uint16{'h', 'e', 'l', 'l', 'o'}},
	}
	buf := WriteCatalogKey(key)
	got, n, err := ReadCatalogKey(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, key, got)
}

func TestExtentKeyRoundTrip(t *testing.T) {
	key := types.ExtentKey{ForkType: types.ForkTypeData, FileID: 42, StartBlock: 9}
	buf := WriteExtentKey(key)
	got, n, err := ReadExtentKey(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, key, got)
}

func TestCatalogFolderRoundTrip(t *testing.T) {
	f := types.CatalogFolder{
		RecordType: types.RecTypeFolder,
		Flags:      0,
		Valence:    3,
		FolderID:   20,
		CreateDate: 100,
		BSD:        types.BSDInfo{OwnerID: 501, GroupID: 20, FileMode: 0040755},
	}
	buf := make([]byte, CatalogFolderSize)
	WriteCatalogFolder(f, buf)
	got, err := ReadCatalogFolder(buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestCatalogFileRoundTrip(t *testing.T) {
	f := types.CatalogFile{
		RecordType: types.RecTypeFile,
		FileID:     21,
		CreateDate: 200,
		BSD:        types.BSDInfo{OwnerID: 501, GroupID: 20, FileMode: 0100644},
	}
	f.UserInfo.FileType = [4]byte{'T', 'E', 'X', 'T'}
	f.UserInfo.FileCreator = [4]byte{'t', 't', 'x', 't'}
	f.DataFork.LogicalSize = 3
	f.DataFork.Extents[0] = types.ExtentDescriptor{StartBlock: 50, BlockCount: 1}

	buf := make([]byte, CatalogFileSize)
	WriteCatalogFile(f, buf)
	got, err := ReadCatalogFile(buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestCatalogThreadRoundTrip(t *testing.T) {
	th := types.CatalogThread{
		RecordType: types.RecTypeFileThread,
		ParentID:   16,
		NodeName:   types.HFSUniStr255{Length: 3, Unicode: []uint16{'f', 'o', 'o'}},
	}
	buf := WriteCatalogThread(th)
	got, err := ReadCatalogThread(buf)
	require.NoError(t, err)
	require.Equal(t, th, got)
}

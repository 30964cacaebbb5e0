package extents

import (
	"github.com/go-hfsplus/hfsplus/internal/btree"
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// OverflowTreeHandle adapts a generic btree.Tree[ExtentKey, ExtentRecord]
// to the OverflowTree interface ForkHandle needs, and is the concrete type
// internal/volume constructs when mounting the extents-overflow file.
type OverflowTreeHandle struct {
	tree *btree.Tree[types.ExtentKey, types.ExtentRecord]
}

func extentKeyCompare(a, b types.ExtentKey) int {
	if a.FileID != b.FileID {
		if a.FileID < b.FileID {
			return -1
		}
		return 1
	}
	if a.ForkType != b.ForkType {
		if a.ForkType < b.ForkType {
			return -1
		}
		return 1
	}
	switch {
	case a.StartBlock < b.StartBlock:
		return -1
	case a.StartBlock > b.StartBlock:
		return 1
	default:
		return 0
	}
}

func extentCodec() btree.Codec[types.ExtentKey, types.ExtentRecord] {
	return btree.Codec[types.ExtentKey, types.ExtentRecord]{
		Compare:   extentKeyCompare,
		EncodeKey: endian.WriteExtentKey,
		DecodeKey: endian.ReadExtentKey,
		EncodeRecord: func(r types.ExtentRecord) []byte {
			buf := make([]byte, extentRecordSize)
			endian.WriteExtentRecord(r, buf)
			return buf
		},
		DecodeRecord: func(b []byte) (types.ExtentRecord, error) {
			return endian.ReadExtentRecord(b)
		},
	}
}

const extentRecordSize = 8 * 8 // 8 descriptors * (startBlock + blockCount)

// CreateOverflowTree formats a brand-new extents-overflow B-tree over space.
func CreateOverflowTree(space btree.NodeSpace, nodeSize uint32, clumpSize uint32) (*OverflowTreeHandle, error) {
	tree, err := btree.Create[types.ExtentKey, types.ExtentRecord](space, nodeSize, types.BTreeCompareBinary, types.ExtentKeySize, clumpSize, extentCodec())
	if err != nil {
		return nil, err
	}
	return &OverflowTreeHandle{tree: tree}, nil
}

// OpenOverflowTree opens an existing extents-overflow B-tree.
func OpenOverflowTree(space btree.NodeSpace) (*OverflowTreeHandle, error) {
	tree, err := btree.Open[types.ExtentKey, types.ExtentRecord](space, extentCodec())
	if err != nil {
		return nil, err
	}
	return &OverflowTreeHandle{tree: tree}, nil
}

// Search implements OverflowTree.
func (o *OverflowTreeHandle) Search(key types.ExtentKey) (types.ExtentRecord, bool, error) {
	return o.tree.Search(key)
}

// Insert implements OverflowTree.
func (o *OverflowTreeHandle) Insert(key types.ExtentKey, rec types.ExtentRecord) error {
	return o.tree.Insert(key, rec)
}

// Replace implements OverflowTree.
func (o *OverflowTreeHandle) Replace(key types.ExtentKey, rec types.ExtentRecord) error {
	return o.tree.Replace(key, rec)
}

// Delete implements OverflowTree.
func (o *OverflowTreeHandle) Delete(key types.ExtentKey) error {
	return o.tree.Delete(key)
}

// SearchFloor implements OverflowTree.
func (o *OverflowTreeHandle) SearchFloor(key types.ExtentKey) (types.ExtentKey, types.ExtentRecord, bool, error) {
	return o.tree.SearchFloor(key)
}

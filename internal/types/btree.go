package types

// BTNodeDescriptor is the 14-byte header present at the start of every
// B-tree node (TN1150 page 34).
type BTNodeDescriptor struct {
	FLink      uint32
	BLink      uint32
	Kind       int8
	Height     uint8
	NumRecords uint16
	Reserved   uint16
}

// BTNodeDescriptorSize is the on-disk size of BTNodeDescriptor.
const BTNodeDescriptorSize = 4 + 4 + 1 + 1 + 2 + 2

// BTHeaderRec is the header record carried in record 0 of a B-tree's header
// node (node 0) (TN1150 pages 36-38).
type BTHeaderRec struct {
	TreeDepth      uint16
	RootNode       uint32
	LeafRecords    uint32
	FirstLeafNode  uint32
	LastLeafNode   uint32
	NodeSize       uint16
	MaxKeyLength   uint16
	TotalNodes     uint32
	FreeNodes      uint32
	Reserved1      uint16
	ClumpSize      uint32
	BTreeType      uint8
	KeyCompareType uint8
	Attributes     uint32
	Reserved3      [16]uint32
}

// BTHeaderRecSize is the on-disk size of BTHeaderRec.
const BTHeaderRecSize = 2 + 4 + 4 + 4 + 4 + 2 + 2 + 4 + 4 + 2 + 4 + 1 + 1 + 4 + 16*4

// BTHeaderUserAreaSize is the size of the reserved user area following the
// header record in the header node (TN1150 page 36).
const BTHeaderUserAreaSize = 128

// BTreeKeyCompare identifies how a tree orders its keys (spec.md §4.E.3).
type BTreeKeyCompare uint8

const (
	BTreeCompareBinary BTreeKeyCompare = iota
	BTreeCompareCaseFoldedUnicode
)

// CatalogKey is the variable-length key of a catalog B-tree record
// (TN1150 page 25): parentID followed by a Pascal-ish Unicode name.
type CatalogKey struct {
	ParentID CNID
	NodeName HFSUniStr255
}

// HFSUniStr255 is a length-prefixed UTF-16 string of at most 255 code units
// (TN1150 page 24).
type HFSUniStr255 struct {
	Length  uint16
	Unicode []uint16 // len == Length, big-endian UTF-16 code units on disk
}

// ExtentKey is the key of an extents-overflow B-tree record (TN1150 page 41).
type ExtentKey struct {
	ForkType   uint8
	Pad        uint8
	FileID     CNID
	StartBlock uint32
}

// ExtentKeySize is the fixed on-disk size of an ExtentKey (excluding the
// leading key-length prefix).
const ExtentKeySize = 1 + 1 + 4 + 4

// CNID is a catalog node identifier (TN1150 page 20).
type CNID uint32

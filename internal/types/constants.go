// Package types holds the on-disk and general-purpose data structures of an
// HFS+ volume, modeled directly on Apple Technical Note TN1150 (HFS Plus
// Volume Format). Nothing in this package performs I/O; it only describes
// layout and the constants needed to interpret it.
package types

// Volume signatures (TN1150 "Volume Header", page 12).
const (
	// SigHFSPlus marks an HFS+ volume header ("H+").
	SigHFSPlus uint16 = 0x482B

	// SigHFSPlusJournaled is the "HX" signature, which TN1150 assigns to
	// HFSX volumes; Mount accepts it alongside "H+". Journaled plain HFS+
	// volumes still sign "H+".
	SigHFSPlusJournaled uint16 = 0x4858

	// SigHFSStandard marks a plain HFS (MFS-successor) Master Directory Block ("BD").
	SigHFSStandard uint16 = 0x4244

	// SigHFSPlusEmbedded is read from an HFS-standard MDB's drEmbedSigWord
	// field when the volume actually wraps an embedded HFS+ volume.
	SigHFSPlusEmbedded uint16 = 0x482B

	// VolumeHeaderVersion is the only version this driver understands.
	VolumeHeaderVersion uint16 = 4
)

// Volume header attribute bits (TN1150 page 15).
const (
	VolAttrHardwareLock    uint32 = 1 << 7
	VolAttrUnmounted       uint32 = 1 << 8 // "unmounted cleanly"
	VolAttrSparedBlocks    uint32 = 1 << 9
	VolAttrNoCacheRequired uint32 = 1 << 10
	VolAttrBootVolInconsistent uint32 = 1 << 11
	VolAttrCatalogNodeIDsReused uint32 = 1 << 12
	VolAttrJournaled       uint32 = 1 << 13
	VolAttrSoftwareLock    uint32 = 1 << 15
)

// Reserved catalog node IDs (TN1150 page 20).
const (
	CNIDRootParent     = 1
	CNIDRootFolder     = 2
	CNIDExtentsFile    = 3
	CNIDCatalogFile    = 4
	CNIDBadBlockFile   = 5
	CNIDAllocationFile = 6
	CNIDStartupFile    = 7
	CNIDAttributesFile = 8
	CNIDRepairCatalogFile = 14
	CNIDBogusExtentFile  = 15
	CNIDFirstUserCatalogNodeID = 16
)

// Fork types, used as the second half of an extents-overflow key.
const (
	ForkTypeData     uint8 = 0x00
	ForkTypeResource uint8 = 0xFF
)

// B-tree node kinds (TN1150 page 34).
const (
	BTNodeKindLeaf   int8 = -1
	BTNodeKindIndex  int8 = 0
	BTNodeKindHeader int8 = 1
	BTNodeKindMap    int8 = 2
)

// B-tree header key-compare types (TN1150 page 37).
const (
	BTKeyCompareCaseFolding uint8 = 0xCF // kHFSCaseFolding
	BTKeyCompareBinary      uint8 = 0xBC // kHFSBinaryCompare
)

// B-tree header attribute bits (TN1150 page 37).
const (
	BTHeaderAttrBadCloseTree  uint32 = 1 << 0
	BTHeaderAttrBigKeys       uint32 = 1 << 1
	BTHeaderAttrVariableIndexKeys uint32 = 1 << 2
)

// Catalog record types (TN1150 page 27).
const (
	RecTypeFolder       int16 = 1
	RecTypeFile         int16 = 2
	RecTypeFolderThread int16 = 3
	RecTypeFileThread   int16 = 4
)

// Catalog folder/file flags (TN1150 page 29-30).
const (
	FileFlagLocked   uint16 = 0x0001
	FileFlagThreadExists uint16 = 0x0002
	FolderFlagHasChildLinks uint16 = 0x0010
	FileFlagHasResourceFork uint16 = 0x0200
	FileFlagHasDataFork     uint16 = 0x0400
)

// Hard link markers (TN1150 "Hard Links", page 31). A hard-linked file's
// catalog record carries these as type/creator; its "real" content lives in
// an indirect node inside a hidden private-data folder.
const (
	HardLinkFileType    = "hlnk"
	HardLinkCreator     = "hfs+"
	HardLinkIndirectNodePrefix = "iNode"
)

// CandidateHiddenDirNames lists the private-data folder names this driver
// recognizes when resolving hard links. The spec leaves the exact set
// host-provided (see DESIGN.md, "Open Question decisions"); the canonical Apple
// name is tried first, empty list disables hard-link resolution entirely.
var CandidateHiddenDirNames = []string{
	"\x00\x00\x00\x00HFS+ Private Data",
	".HFS+ Private Directory Data\r",
}

// Allocation-block and sector constraints (spec.md §6.3).
const (
	MinSectorSize        = 512
	MinAllocationBlock   = 512
	DefaultCatalogNodeSizeSmall = 4096 // volumes < 1 GiB
	DefaultCatalogNodeSize      = 8192
	DefaultExtentsNodeSize      = 4096
	DefaultAttributesNodeSize   = 4096
	MinVolumeSizeBytes          = 4 * 1024 * 1024
	RecommendedMinVolumeSizeBytes = 32 * 1024 * 1024
	LargeVolumeThresholdBytes     = 512 * 1024 * 1024 * 1024 // 512 GiB
	LargeVolumeBlockAlignment     = 4096
)

// MaxBTreeDepth bounds B-tree height (spec.md §3.3 invariant).
const MaxBTreeDepth = 16

// MacToUnixEpochOffset converts HFS+ dates (seconds since 1904-01-01 GMT)
// to Unix epoch seconds (TN1150 "Dates", page 17).
const MacToUnixEpochOffset = 2082844800

// ExtentsPerFork is the number of inline extent descriptors in a ForkData
// record before the extents-overflow B-tree must be consulted.
const ExtentsPerFork = 8

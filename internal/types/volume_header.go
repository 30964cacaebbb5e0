package types

// ExtentDescriptor is a single (startBlock, blockCount) run of allocation
// blocks belonging to one fork (TN1150 page 24).
type ExtentDescriptor struct {
	StartBlock uint32
	BlockCount uint32
}

// Empty reports whether the descriptor describes zero blocks.
func (e ExtentDescriptor) Empty() bool {
	return e.BlockCount == 0
}

// End returns the allocation block one past the end of this extent.
func (e ExtentDescriptor) End() uint32 {
	return e.StartBlock + e.BlockCount
}

// ExtentRecord is the eight inline extent descriptors carried in every
// ForkData (TN1150 page 24).
type ExtentRecord [ExtentsPerFork]ExtentDescriptor

// ForkData describes one fork (data or resource) of a file (TN1150 page 23).
type ForkData struct {
	LogicalSize uint64
	ClumpSize   uint32
	TotalBlocks uint32
	Extents     ExtentRecord
}

// MapInline walks only the inline extent descriptors (never an overflow
// tree) to translate a fork-logical allocation block into a physical one.
// It returns ok=false if logicalBlock falls past the inline extents' total
// span, which callers interpret either as "consult the overflow tree" or,
// for forks that are defined never to overflow (the allocation bitmap and
// the extents-overflow file's own fork; see DESIGN.md), as end-of-fork.
func (r ExtentRecord) MapInline(logicalBlock uint32) (phys uint32, contiguous uint32, ok bool) {
	var cursor uint32
	for _, e := range r {
		if e.Empty() {
			break
		}
		if logicalBlock < cursor+e.BlockCount {
			offset := logicalBlock - cursor
			return e.StartBlock + offset, e.BlockCount - offset, true
		}
		cursor += e.BlockCount
	}
	return 0, 0, false
}

// InlineTotalBlocks sums the block counts of the populated inline extents.
func (r ExtentRecord) InlineTotalBlocks() uint32 {
	var total uint32
	for _, e := range r {
		if e.Empty() {
			break
		}
		total += e.BlockCount
	}
	return total
}

// AppendOrMerge adds a new extent descriptor to the first free inline slot,
// merging with the last populated extent if it is contiguous with it
// (spec.md §4.D "tie-break in extent adjacency"). Returns false if there is
// no free slot and no merge was possible.
func (r *ExtentRecord) AppendOrMerge(e ExtentDescriptor) bool {
	lastIdx := -1
	for i, cur := range r {
		if cur.Empty() {
			break
		}
		lastIdx = i
	}
	if lastIdx >= 0 && r[lastIdx].End() == e.StartBlock {
		r[lastIdx].BlockCount += e.BlockCount
		return true
	}
	if lastIdx+1 < len(r) {
		r[lastIdx+1] = e
		return true
	}
	return false
}

// UsedExtents returns the prefix of Extents that is actually populated.
func (f *ForkData) UsedExtents() []ExtentDescriptor {
	out := make([]ExtentDescriptor, 0, ExtentsPerFork)
	for _, e := range f.Extents {
		if e.Empty() {
			break
		}
		out = append(out, e)
	}
	return out
}

// VolumeHeader is the fixed-size on-disk record at byte offset 1024 (and its
// mirror near the end of the volume) (TN1150 pages 12-24).
type VolumeHeader struct {
	Signature          uint16
	Version            uint16
	Attributes         uint32
	LastMountedVersion uint32
	JournalInfoBlock   uint32

	CreateDate  uint32
	ModifyDate  uint32
	BackupDate  uint32
	CheckedDate uint32

	FileCount   uint32
	FolderCount uint32

	BlockSize       uint32
	TotalBlocks     uint32
	FreeBlocks      uint32
	NextAllocation  uint32
	RsrcClumpSize   uint32
	DataClumpSize   uint32
	NextCatalogID   uint32
	WriteCount      uint32
	EncodingsBitmap uint64

	FinderInfo [8]uint32

	AllocationFile  ForkData
	ExtentsFile     ForkData
	CatalogFile     ForkData
	AttributesFile  ForkData
	StartupFile     ForkData
}

// IsCleanlyUnmounted reports whether the "unmounted cleanly" attribute bit
// is set (TN1150 page 15).
func (h *VolumeHeader) IsCleanlyUnmounted() bool {
	return h.Attributes&VolAttrUnmounted != 0
}

// SetCleanlyUnmounted sets or clears the "unmounted cleanly" bit.
func (h *VolumeHeader) SetCleanlyUnmounted(clean bool) {
	if clean {
		h.Attributes |= VolAttrUnmounted
	} else {
		h.Attributes &^= VolAttrUnmounted
	}
}

// IsDamaged reports whether the volume is marked inconsistent (TN1150's
// kHFSVolumeInconsistentBit): a prior mount hit an I/O or structural error
// on a metadata write and withheld the clean-unmount bit. Mount logs a
// warning for such a volume and mounts it anyway; nothing here repairs it
// (spec.md §7).
func (h *VolumeHeader) IsDamaged() bool {
	return h.Attributes&VolAttrBootVolInconsistent != 0
}

// SetDamaged sets or clears the damaged-volume bit.
func (h *VolumeHeader) SetDamaged(damaged bool) {
	if damaged {
		h.Attributes |= VolAttrBootVolInconsistent
	} else {
		h.Attributes &^= VolAttrBootVolInconsistent
	}
}

// IsJournaled reports whether the journaled attribute bit is set. This
// driver never replays a journal (spec.md Non-goals); it only reports the
// bit so callers can decide whether to trust a crash-recovered mount.
func (h *VolumeHeader) IsJournaled() bool {
	return h.Attributes&VolAttrJournaled != 0
}

// VolumeHeaderSize is the fixed, on-disk encoded size of VolumeHeader in bytes.
const VolumeHeaderSize = 2 + 2 + 4 + 4 + 4 + // sig, version, attr, lastMounted, journalInfo
	4 + 4 + 4 + 4 + // 4 dates
	4 + 4 + // file/folder count
	4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 8 + // blockSize..encodingsBitmap
	32 + // finder info
	5*forkDataSize

const forkDataSize = 8 + 4 + 4 + 8*8 // logicalSize + clumpSize + totalBlocks + 8 extents

// VolumeHeaderOffset is the byte offset of the primary volume header from
// the start of the volume (TN1150 page 12): sector 2 at 512-byte sectors.
const VolumeHeaderOffset = 1024

// MirrorHeaderTrailerBytes is how far before the end of the volume the
// mirror volume header sits (TN1150 page 12).
const MirrorHeaderTrailerBytes = 1024

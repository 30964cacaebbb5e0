// Package endian is the boundary between on-disk big-endian HFS+ structures
// and their in-memory Go representation (spec.md §4.A). Every exported
// function here is total and stateless: given a correctly sized buffer it
// never fails, except the node-size bootstrap check called out by the spec.
package endian

import (
	"encoding/binary"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

var be = binary.BigEndian

// ReadVolumeHeader decodes a VolumeHeaderSize-byte buffer into a VolumeHeader.
func ReadVolumeHeader(buf []byte) (*types.VolumeHeader, error) {
	if len(buf) < types.VolumeHeaderSize {
		return nil, hfserrors.Newf(hfserrors.ErrBadFormat, "volume header buffer too short: %d bytes", len(buf))
	}
	h := &types.VolumeHeader{}
	off := 0
	h.Signature = be.Uint16(buf[off:])
	off += 2
	h.Version = be.Uint16(buf[off:])
	off += 2
	h.Attributes = be.Uint32(buf[off:])
	off += 4
	h.LastMountedVersion = be.Uint32(buf[off:])
	off += 4
	h.JournalInfoBlock = be.Uint32(buf[off:])
	off += 4
	h.CreateDate = be.Uint32(buf[off:])
	off += 4
	h.ModifyDate = be.Uint32(buf[off:])
	off += 4
	h.BackupDate = be.Uint32(buf[off:])
	off += 4
	h.CheckedDate = be.Uint32(buf[off:])
	off += 4
	h.FileCount = be.Uint32(buf[off:])
	off += 4
	h.FolderCount = be.Uint32(buf[off:])
	off += 4
	h.BlockSize = be.Uint32(buf[off:])
	off += 4
	h.TotalBlocks = be.Uint32(buf[off:])
	off += 4
	h.FreeBlocks = be.Uint32(buf[off:])
	off += 4
	h.NextAllocation = be.Uint32(buf[off:])
	off += 4
	h.RsrcClumpSize = be.Uint32(buf[off:])
	off += 4
	h.DataClumpSize = be.Uint32(buf[off:])
	off += 4
	h.NextCatalogID = be.Uint32(buf[off:])
	off += 4
	h.WriteCount = be.Uint32(buf[off:])
	off += 4
	h.EncodingsBitmap = be.Uint64(buf[off:])
	off += 8
	for i := range h.FinderInfo {
		h.FinderInfo[i] = be.Uint32(buf[off:])
		off += 4
	}
	h.AllocationFile = ReadForkData(buf[off:])
	off += forkDataSize
	h.ExtentsFile = ReadForkData(buf[off:])
	off += forkDataSize
	h.CatalogFile = ReadForkData(buf[off:])
	off += forkDataSize
	h.AttributesFile = ReadForkData(buf[off:])
	off += forkDataSize
	h.StartupFile = ReadForkData(buf[off:])
	off += forkDataSize
	return h, nil
}

const forkDataSize = 8 + 4 + 4 + 8*8

// WriteVolumeHeader encodes h into buf, which must be at least VolumeHeaderSize bytes.
func WriteVolumeHeader(h *types.VolumeHeader, buf []byte) error {
	if len(buf) < types.VolumeHeaderSize {
		return hfserrors.Newf(hfserrors.ErrBadFormat, "volume header buffer too short: %d bytes", len(buf))
	}
	off := 0
	be.PutUint16(buf[off:], h.Signature)
	off += 2
	be.PutUint16(buf[off:], h.Version)
	off += 2
	be.PutUint32(buf[off:], h.Attributes)
	off += 4
	be.PutUint32(buf[off:], h.LastMountedVersion)
	off += 4
	be.PutUint32(buf[off:], h.JournalInfoBlock)
	off += 4
	be.PutUint32(buf[off:], h.CreateDate)
	off += 4
	be.PutUint32(buf[off:], h.ModifyDate)
	off += 4
	be.PutUint32(buf[off:], h.BackupDate)
	off += 4
	be.PutUint32(buf[off:], h.CheckedDate)
	off += 4
	be.PutUint32(buf[off:], h.FileCount)
	off += 4
	be.PutUint32(buf[off:], h.FolderCount)
	off += 4
	be.PutUint32(buf[off:], h.BlockSize)
	off += 4
	be.PutUint32(buf[off:], h.TotalBlocks)
	off += 4
	be.PutUint32(buf[off:], h.FreeBlocks)
	off += 4
	be.PutUint32(buf[off:], h.NextAllocation)
	off += 4
	be.PutUint32(buf[off:], h.RsrcClumpSize)
	off += 4
	be.PutUint32(buf[off:], h.DataClumpSize)
	off += 4
	be.PutUint32(buf[off:], h.NextCatalogID)
	off += 4
	be.PutUint32(buf[off:], h.WriteCount)
	off += 4
	be.PutUint64(buf[off:], h.EncodingsBitmap)
	off += 8
	for _, v := range h.FinderInfo {
		be.PutUint32(buf[off:], v)
		off += 4
	}
	WriteForkData(h.AllocationFile, buf[off:])
	off += forkDataSize
	WriteForkData(h.ExtentsFile, buf[off:])
	off += forkDataSize
	WriteForkData(h.CatalogFile, buf[off:])
	off += forkDataSize
	WriteForkData(h.AttributesFile, buf[off:])
	off += forkDataSize
	WriteForkData(h.StartupFile, buf[off:])
	off += forkDataSize
	return nil
}

// ReadForkData decodes a ForkData record from buf (caller guarantees len >= 80).
func ReadForkData(buf []byte) types.ForkData {
	var f types.ForkData
	f.LogicalSize = be.Uint64(buf[0:])
	f.ClumpSize = be.Uint32(buf[8:])
	f.TotalBlocks = be.Uint32(buf[12:])
	off := 16
	for i := range f.Extents {
		f.Extents[i] = types.ExtentDescriptor{
			StartBlock: be.Uint32(buf[off:]),
			BlockCount: be.Uint32(buf[off+4:]),
		}
		off += 8
	}
	return f
}

// WriteForkData encodes f into buf (caller guarantees len >= 80).
func WriteForkData(f types.ForkData, buf []byte) {
	be.PutUint64(buf[0:], f.LogicalSize)
	be.PutUint32(buf[8:], f.ClumpSize)
	be.PutUint32(buf[12:], f.TotalBlocks)
	off := 16
	for _, e := range f.Extents {
		be.PutUint32(buf[off:], e.StartBlock)
		be.PutUint32(buf[off+4:], e.BlockCount)
		off += 8
	}
}

// ReadExtentRecord decodes the bare 8-descriptor extent record carried as
// an extents-overflow B-tree leaf value (TN1150 page 42); unlike ForkData
// it has no logical size/clump/total-blocks prefix.
func ReadExtentRecord(buf []byte) (types.ExtentRecord, error) {
	if len(buf) < types.ExtentsPerFork*8 {
		return types.ExtentRecord{}, hfserrors.New(hfserrors.ErrBadNode, "extent record buffer too short")
	}
	var r types.ExtentRecord
	off := 0
	for i := range r {
		r[i] = types.ExtentDescriptor{
			StartBlock: be.Uint32(buf[off:]),
			BlockCount: be.Uint32(buf[off+4:]),
		}
		off += 8
	}
	return r, nil
}

// WriteExtentRecord encodes r into buf (caller guarantees len >= 64).
func WriteExtentRecord(r types.ExtentRecord, buf []byte) {
	off := 0
	for _, e := range r {
		be.PutUint32(buf[off:], e.StartBlock)
		be.PutUint32(buf[off+4:], e.BlockCount)
		off += 8
	}
}

// ReadBTNodeDescriptor decodes the 14-byte node descriptor at the start of buf.
func ReadBTNodeDescriptor(buf []byte) (types.BTNodeDescriptor, error) {
	if len(buf) < types.BTNodeDescriptorSize {
		return types.BTNodeDescriptor{}, hfserrors.New(hfserrors.ErrBadNode, "node descriptor buffer too short")
	}
	return types.BTNodeDescriptor{
		FLink:      be.Uint32(buf[0:]),
		BLink:      be.Uint32(buf[4:]),
		Kind:       int8(buf[8]),
		Height:     buf[9],
		NumRecords: be.Uint16(buf[10:]),
		Reserved:   be.Uint16(buf[12:]),
	}, nil
}

// WriteBTNodeDescriptor encodes d into the first 14 bytes of buf.
func WriteBTNodeDescriptor(d types.BTNodeDescriptor, buf []byte) {
	be.PutUint32(buf[0:], d.FLink)
	be.PutUint32(buf[4:], d.BLink)
	buf[8] = byte(d.Kind)
	buf[9] = d.Height
	be.PutUint16(buf[10:], d.NumRecords)
	be.PutUint16(buf[12:], d.Reserved)
}

// ReadBTHeaderRec decodes a BTHeaderRec from buf.
func ReadBTHeaderRec(buf []byte) (types.BTHeaderRec, error) {
	if len(buf) < types.BTHeaderRecSize {
		return types.BTHeaderRec{}, hfserrors.New(hfserrors.ErrBadNode, "header record buffer too short")
	}
	var r types.BTHeaderRec
	r.TreeDepth = be.Uint16(buf[0:])
	r.RootNode = be.Uint32(buf[2:])
	r.LeafRecords = be.Uint32(buf[6:])
	r.FirstLeafNode = be.Uint32(buf[10:])
	r.LastLeafNode = be.Uint32(buf[14:])
	r.NodeSize = be.Uint16(buf[18:])
	r.MaxKeyLength = be.Uint16(buf[20:])
	r.TotalNodes = be.Uint32(buf[22:])
	r.FreeNodes = be.Uint32(buf[26:])
	r.Reserved1 = be.Uint16(buf[30:])
	r.ClumpSize = be.Uint32(buf[32:])
	r.BTreeType = buf[36]
	r.KeyCompareType = buf[37]
	r.Attributes = be.Uint32(buf[38:])
	return r, nil
}

// WriteBTHeaderRec encodes r into buf.
func WriteBTHeaderRec(r types.BTHeaderRec, buf []byte) {
	be.PutUint16(buf[0:], r.TreeDepth)
	be.PutUint32(buf[2:], r.RootNode)
	be.PutUint32(buf[6:], r.LeafRecords)
	be.PutUint32(buf[10:], r.FirstLeafNode)
	be.PutUint32(buf[14:], r.LastLeafNode)
	be.PutUint16(buf[18:], r.NodeSize)
	be.PutUint16(buf[20:], r.MaxKeyLength)
	be.PutUint32(buf[22:], r.TotalNodes)
	be.PutUint32(buf[26:], r.FreeNodes)
	be.PutUint16(buf[30:], r.Reserved1)
	be.PutUint32(buf[32:], r.ClumpSize)
	buf[36] = r.BTreeType
	buf[37] = r.KeyCompareType
	be.PutUint32(buf[38:], r.Attributes)
}

// ValidateNodeSize checks a node buffer's declared size against the header's
// authoritative node size, refusing anything that disagrees unless this is
// the header node itself being bootstrapped (spec.md §4.A).
func ValidateNodeSize(buf []byte, headerNodeSize uint16, isBootstrap bool) error {
	if isBootstrap {
		return nil
	}
	if len(buf) != int(headerNodeSize) {
		return hfserrors.Newf(hfserrors.ErrBadNode, "node buffer is %d bytes, tree declares node size %d", len(buf), headerNodeSize)
	}
	return nil
}

// ReadRecordOffset reads the 16-bit record offset stored at logical slot i
// from the end of a node buffer (the reversed offset array, spec.md §3.3).
func ReadRecordOffset(buf []byte, i int) uint16 {
	pos := len(buf) - 2*(i+1)
	return be.Uint16(buf[pos:])
}

// WriteRecordOffset writes the 16-bit record offset at logical slot i from
// the end of a node buffer.
func WriteRecordOffset(buf []byte, i int, offset uint16) {
	pos := len(buf) - 2*(i+1)
	be.PutUint16(buf[pos:], offset)
}

// ReadUint16 / ReadUint32 / PutUint16 / PutUint32 are thin re-exports so
// callers elsewhere in the module never need a direct encoding/binary
// import for a single field.
func ReadUint16(buf []byte) uint16 { return be.Uint16(buf) }
func ReadUint32(buf []byte) uint32 { return be.Uint32(buf) }
func PutUint16(buf []byte, v uint16) { be.PutUint16(buf, v) }
func PutUint32(buf []byte, v uint32) { be.PutUint32(buf, v) }

// Package volume implements the HFS+ volume header lifecycle (spec.md
// §4.G): mounting a device or image, wiring up the five system files'
// ForkHandles, the allocation bitmap, the catalog, and the c-node cache,
// and flushing the volume header (primary and mirror copies) back out on
// unmount or sync.
package volume

import (
	"sync"

	"github.com/google/uuid"

	"github.com/go-hfsplus/hfsplus/internal/bitmap"
	"github.com/go-hfsplus/hfsplus/internal/blockio"
	"github.com/go-hfsplus/hfsplus/internal/catalog"
	"github.com/go-hfsplus/hfsplus/internal/cnode"
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/extents"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// Volume is a mounted HFS+ volume: the live VCB plus every subsystem it
// owns.
type Volume struct {
	mu sync.RWMutex

	backing        blockio.Backing
	cache          *blockio.Cache
	header         types.VolumeHeader
	embeddedOffset int64 // byte offset of the HFS+ payload inside an HFS-standard wrapper, 0 if none
	headerDirty    bool
	readOnly       bool
	uuid           uuid.UUID

	Bitmap   *bitmap.Bitmap
	Overflow *extents.OverflowTreeHandle
	Catalog  *catalog.Catalog
	CNodes   *cnode.Cache

	allocationHandle *extents.ForkHandle
	extentsHandle    *extents.ForkHandle
	catalogHandle    *extents.ForkHandle
	attributesHandle *extents.ForkHandle
	startupHandle    *extents.ForkHandle

	// unmountWG is waited on by Unmount before it tears anything down. No
	// operation in this package adds to it, so the wait does not block on
	// in-flight operations.
	unmountWG sync.WaitGroup
}

// wrappedBacking shifts every access by a fixed byte offset, modeling an
// HFS+ volume embedded inside an HFS-standard wrapper (spec.md §4.G,
// "embedded-wrapper detection").
type wrappedBacking struct {
	blockio.Backing
	offset int64
	size   int64
}

func (w *wrappedBacking) ReadAt(p []byte, off int64) (int, error) {
	return w.Backing.ReadAt(p, off+w.offset)
}
func (w *wrappedBacking) WriteAt(p []byte, off int64) (int, error) {
	return w.Backing.WriteAt(p, off+w.offset)
}
func (w *wrappedBacking) Size() int64 { return w.size }

// Mount opens path and brings up every subsystem needed to read and modify
// the volume it contains.
func Mount(path string, opts MountOptions) (*Volume, error) {
	backing, err := blockio.OpenFileBacking(path, opts.ReadOnly)
	if err != nil {
		return nil, hfserrors.Wrap(hfserrors.ErrIO, err, "open volume image")
	}

	effective, embeddedOffset, err := detectWrapper(backing, opts)
	if err != nil {
		backing.Close()
		return nil, err
	}

	headerBuf := make([]byte, types.VolumeHeaderSize)
	if _, err := effective.ReadAt(headerBuf, types.VolumeHeaderOffset); err != nil {
		backing.Close()
		return nil, hfserrors.Wrap(hfserrors.ErrIO, err, "read volume header")
	}
	header, err := endian.ReadVolumeHeader(headerBuf)
	if err != nil {
		backing.Close()
		return nil, err
	}
	if header.Signature != types.SigHFSPlus && header.Signature != types.SigHFSPlusJournaled {
		backing.Close()
		return nil, hfserrors.Newf(hfserrors.ErrBadFormat, "not an HFS+ volume (signature 0x%04x)", header.Signature)
	}

	cache := blockio.NewCache(effective, header.BlockSize)

	v := &Volume{
		backing:        backing,
		cache:          cache,
		header:         *header,
		embeddedOffset: embeddedOffset,
		readOnly:       opts.ReadOnly,
		uuid:           readVolumeUUID(header),
	}

	if err := v.wireSubsystems(); err != nil {
		backing.Close()
		return nil, err
	}

	wasClean := header.IsCleanlyUnmounted()
	if !wasClean {
		hfslog.Logger.WithField("path", path).Warn("hfsplus: mounting a volume that was not unmounted cleanly")
	}
	if header.IsDamaged() {
		hfslog.Logger.WithField("path", path).Warn("hfsplus: mounting a volume marked damaged; no repair is attempted")
	}
	if !v.readOnly {
		v.header.SetCleanlyUnmounted(false)
		v.headerDirty = true
		if err := v.flushHeaderLocked(); err != nil {
			backing.Close()
			return nil, err
		}
	}

	hfslog.Logger.WithFields(hfslog.Fields{"path": path, "readonly": opts.ReadOnly, "cleanUnmount": wasClean}).Info("hfsplus: volume mounted")
	return v, nil
}

// detectWrapper inspects the classic Mac OS Master Directory Block at the
// same sector an HFS+ header would occupy: an HFS-standard signature there
// with an embedded-HFS+ signature means the real payload starts partway
// into the device (TN1150 "HFS Wrapper"; offsets below follow the classic
// MDB layout, drXTClpSiz/drCTClpSiz being reinterpreted as
// drEmbedSigWord/drEmbedExtent when wrapping).
func detectWrapper(backing blockio.Backing, opts MountOptions) (blockio.Backing, int64, error) {
	mdb := make([]byte, 80)
	if _, err := backing.ReadAt(mdb, types.VolumeHeaderOffset); err != nil {
		return nil, 0, hfserrors.Wrap(hfserrors.ErrIO, err, "read master directory block")
	}
	sig := endian.ReadUint16(mdb[0:2])
	if sig != types.SigHFSStandard && !opts.ForceWrapper {
		return backing, 0, nil
	}

	embedSig := endian.ReadUint16(mdb[74:76])
	if embedSig != types.SigHFSPlusEmbedded {
		return backing, 0, nil
	}

	allocBlockSize := endian.ReadUint32(mdb[20:24])
	allocBlockStart := endian.ReadUint16(mdb[28:30])
	embedStartBlock := endian.ReadUint16(mdb[76:78])
	embedBlockCount := endian.ReadUint16(mdb[78:80])

	const wrapperSectorSize = 512
	embeddedOffset := int64(allocBlockStart)*wrapperSectorSize + int64(embedStartBlock)*int64(allocBlockSize)
	embeddedSize := int64(embedBlockCount) * int64(allocBlockSize)

	hfslog.Logger.WithFields(hfslog.Fields{"offset": embeddedOffset, "size": embeddedSize}).Info("hfsplus: detected HFS+ volume embedded in HFS-standard wrapper")
	return &wrappedBacking{Backing: backing, offset: embeddedOffset, size: embeddedSize}, embeddedOffset, nil
}

// readVolumeUUID recovers the volume identifier macOS conventionally stores
// across Finder Info words 6-7 (spec.md §3 `[EXPANSION]`); a volume that
// predates this convention gets a freshly derived one so callers always
// have something stable to key on for the lifetime of the mount.
func readVolumeUUID(h *types.VolumeHeader) uuid.UUID {
	var b [16]byte
	endian.PutUint32(b[0:4], h.FinderInfo[6])
	endian.PutUint32(b[4:8], h.FinderInfo[7])
	id, err := uuid.FromBytes(b[:])
	if err != nil || id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// UUID returns the volume's identifier.
func (v *Volume) UUID() uuid.UUID { return v.uuid }

// Header returns a copy of the current in-memory volume header.
func (v *Volume) Header() types.VolumeHeader {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.header
}

func (v *Volume) wireSubsystems() error {
	h := &v.header
	totalBlocks := h.TotalBlocks

	v.Bitmap = bitmap.New(v.cache, h.AllocationFile, totalBlocks, h.BlockSize)

	v.extentsHandle = extents.New(v.cache, v.Bitmap, &h.ExtentsFile, types.CNIDExtentsFile, types.ForkTypeData, false, nil, totalBlocks)

	var overflow *extents.OverflowTreeHandle
	var err error
	if h.ExtentsFile.TotalBlocks == 0 {
		extentsSpace := &extents.NodeSpace{Handle: v.extentsHandle, Size: types.DefaultExtentsNodeSize}
		overflow, err = extents.CreateOverflowTree(extentsSpace, types.DefaultExtentsNodeSize, h.ExtentsFile.ClumpSize)
	} else {
		nodeSize, perr := probeNodeSize(v.extentsHandle)
		if perr != nil {
			return perr
		}
		overflow, err = extents.OpenOverflowTree(&extents.NodeSpace{Handle: v.extentsHandle, Size: nodeSize})
	}
	if err != nil {
		return err
	}
	v.Overflow = overflow

	v.allocationHandle = extents.New(v.cache, v.Bitmap, &h.AllocationFile, types.CNIDAllocationFile, types.ForkTypeData, false, nil, totalBlocks)
	v.attributesHandle = extents.New(v.cache, v.Bitmap, &h.AttributesFile, types.CNIDAttributesFile, types.ForkTypeData, true, overflow, totalBlocks)
	v.startupHandle = extents.New(v.cache, v.Bitmap, &h.StartupFile, types.CNIDStartupFile, types.ForkTypeData, true, overflow, totalBlocks)
	v.catalogHandle = extents.New(v.cache, v.Bitmap, &h.CatalogFile, types.CNIDCatalogFile, types.ForkTypeData, true, overflow, totalBlocks)

	var cat *catalog.Catalog
	if h.CatalogFile.TotalBlocks == 0 {
		nodeSize := defaultCatalogNodeSizeFor(totalBlocks, h.BlockSize)
		cat, err = catalog.New(&extents.NodeSpace{Handle: v.catalogHandle, Size: nodeSize}, nodeSize, h.CatalogFile.ClumpSize)
	} else {
		nodeSize, perr := probeNodeSize(v.catalogHandle)
		if perr != nil {
			return perr
		}
		cat, err = catalog.Open(&extents.NodeSpace{Handle: v.catalogHandle, Size: nodeSize}, h.NextCatalogID)
	}
	if err != nil {
		return err
	}
	v.Catalog = cat
	v.CNodes = cnode.New(cat, 1024)
	return nil
}

// probeNodeSize reads an existing B-tree's header node at its minimum
// possible size (every legal HFS+ node size is a multiple of 512, and the
// header record recording the real node size always lives within the
// first 512 bytes) to learn the node size Open needs to read the rest of
// the tree correctly.
func probeNodeSize(handle *extents.ForkHandle) (uint32, error) {
	const probeSize = 512
	buf := make([]byte, probeSize)
	if _, err := handle.ReadAt(buf, 0); err != nil {
		return 0, hfserrors.Wrap(hfserrors.ErrIO, err, "probe b-tree node size")
	}
	header, err := endian.ReadBTHeaderRec(buf[types.BTNodeDescriptorSize:])
	if err != nil {
		return 0, err
	}
	if header.NodeSize == 0 {
		return 0, hfserrors.New(hfserrors.ErrBadFormat, "b-tree header records a zero node size")
	}
	return uint32(header.NodeSize), nil
}

func defaultCatalogNodeSizeFor(totalBlocks, blockSize uint32) uint32 {
	if uint64(totalBlocks)*uint64(blockSize) < 1<<30 {
		return types.DefaultCatalogNodeSizeSmall
	}
	return types.DefaultCatalogNodeSize
}

// Sync flushes the catalog's dirty c-nodes, delayed block writes, and the
// volume header without unmounting.
func (v *Volume) Sync() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.CNodes.Flush(); err != nil {
		v.markDamagedLocked(err)
		return err
	}
	if err := v.cache.Flush(); err != nil {
		wrapped := hfserrors.Wrap(hfserrors.ErrIO, err, "flush block cache")
		v.markDamagedLocked(wrapped)
		return wrapped
	}
	v.header.NextCatalogID = v.Catalog.NextCNID()
	v.headerDirty = true
	return v.flushHeaderLocked()
}

// Unmount waits on unmountWG, syncs (read/write mounts only), marks the
// volume cleanly unmounted, and closes the backing device. The clean-unmount
// bit is withheld if the volume is already marked damaged, or if syncing or
// flushing the header here is what damages it (spec.md §7's recovery
// policy).
func (v *Volume) Unmount() error {
	v.unmountWG.Wait()

	if !v.readOnly {
		if err := v.Sync(); err != nil {
			return err
		}
	}

	v.mu.Lock()
	if !v.readOnly && !v.header.IsDamaged() {
		v.header.SetCleanlyUnmounted(true)
		v.headerDirty = true
	}
	err := v.flushHeaderLocked()
	v.mu.Unlock()
	if err != nil {
		return err
	}

	hfslog.Logger.Info("hfsplus: volume unmounted")
	return v.backing.Close()
}

// markDamagedLocked flags the volume inconsistent after a metadata write
// failure (spec.md §7: "I/O error on metadata write -> damaged-volume flag
// -> clean-unmount bit withheld"). It makes one best-effort attempt to
// persist the flag itself, swallowing a further failure, since the volume
// is already in a state no in-process recovery can fix; callers must hold
// v.mu.
func (v *Volume) markDamagedLocked(cause error) {
	if v.header.IsDamaged() {
		return
	}
	v.header.SetDamaged(true)
	v.header.SetCleanlyUnmounted(false)
	hfslog.Logger.WithError(cause).Warn("hfsplus: marking volume damaged after metadata write failure")
	if v.readOnly {
		return
	}
	buf := make([]byte, types.VolumeHeaderSize)
	if err := endian.WriteVolumeHeader(&v.header, buf); err != nil {
		return
	}
	_, _ = v.backing.WriteAt(buf, v.embeddedOffset+types.VolumeHeaderOffset)
}

// flushHeaderLocked writes the in-memory header to both the primary and
// mirror locations (TN1150 "Volume Header", page 12); callers must hold
// v.mu.
func (v *Volume) flushHeaderLocked() error {
	if v.readOnly || !v.headerDirty {
		return nil
	}
	buf := make([]byte, types.VolumeHeaderSize)
	if err := endian.WriteVolumeHeader(&v.header, buf); err != nil {
		return err
	}

	if _, err := v.backing.WriteAt(buf, v.embeddedOffset+types.VolumeHeaderOffset); err != nil {
		wrapped := hfserrors.Wrap(hfserrors.ErrIO, err, "write primary volume header")
		v.markDamagedLocked(wrapped)
		return wrapped
	}

	volumeSize := v.backing.Size() - v.embeddedOffset
	mirrorOffset := v.embeddedOffset + volumeSize - types.MirrorHeaderTrailerBytes
	if _, err := v.backing.WriteAt(buf, mirrorOffset); err != nil {
		wrapped := hfserrors.Wrap(hfserrors.ErrIO, err, "write mirror volume header")
		v.markDamagedLocked(wrapped)
		return wrapped
	}

	v.headerDirty = false
	return v.backing.Sync()
}

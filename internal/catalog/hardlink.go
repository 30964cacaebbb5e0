package catalog

import (
	"fmt"

	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// EnsureHiddenFolder finds or creates the private-data folder that holds
// hard-link indirect nodes, trying the candidate names in order (spec.md
// §4.F.3, TN1150 "Hard Links" page 31). Mount picks the first candidate
// that already exists; a brand-new volume creates the canonical one.
func (c *Catalog) EnsureHiddenFolder() (types.CNID, error) {
	c.mu.Lock()
	if c.hidden != 0 {
		defer c.mu.Unlock()
		return c.hidden, nil
	}
	c.mu.Unlock()

	for _, name := range types.CandidateHiddenDirNames {
		rec, err := c.Lookup(types.CNIDRootFolder, name)
		if err == nil && rec.IsFolder() {
			c.mu.Lock()
			c.hidden = rec.Folder.FolderID
			c.mu.Unlock()
			return rec.Folder.FolderID, nil
		}
		if err != nil && !hfserrors.Is(err, hfserrors.ErrNotFound) {
			return 0, err
		}
	}
	if len(types.CandidateHiddenDirNames) == 0 {
		return 0, hfserrors.New(hfserrors.ErrUnsupported, "hard-link resolution disabled: no hidden directory name configured")
	}
	id, err := c.CreateFolder(types.CNIDRootFolder, types.CandidateHiddenDirNames[0], types.CatalogFolder{
		Flags: 0,
	})
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.hidden = id
	c.mu.Unlock()
	return id, nil
}

// indirectNodeName is the name an inode's private-data record is filed
// under: "iNode" followed by its link-reference number (TN1150 page 32).
func indirectNodeName(linkRef uint32) string {
	return fmt.Sprintf("%s%d", types.HardLinkIndirectNodePrefix, linkRef)
}

// CreateHardLink files a new catalog entry at (parentID, name) that
// redirects to the existing file targetID's content, incrementing the
// indirect node's link count. targetID must already be (or be turned
// into) an indirect node living in the hidden private-data folder.
func (c *Catalog) CreateHardLink(parentID types.CNID, name string, targetID types.CNID) (types.CNID, error) {
	hiddenID, err := c.EnsureHiddenFolder()
	if err != nil {
		return 0, err
	}

	targetParent, targetName, err := c.LookupByCNID(targetID)
	if err != nil {
		return 0, err
	}
	targetRec, err := c.Lookup(targetParent, targetName)
	if err != nil {
		return 0, err
	}
	if targetRec.File == nil {
		return 0, hfserrors.New(hfserrors.ErrUnsupported, "hard links to folders are not supported")
	}

	var inodeID types.CNID
	if targetRec.File.IsHardLink() {
		inodeID = types.CNID(targetRec.File.BSD.Special)
	} else {
		inodeID, err = c.promoteToIndirectNode(hiddenID, targetParent, targetName, *targetRec.File)
		if err != nil {
			return 0, err
		}
	}

	link := types.CatalogFile{
		Flags: types.FileFlagThreadExists,
	}
	copy(link.UserInfo.FileType[:], types.HardLinkFileType)
	copy(link.UserInfo.FileCreator[:], types.HardLinkCreator)
	link.BSD.Special = uint32(inodeID)

	linkID, err := c.CreateFile(parentID, name, link)
	if err != nil {
		return 0, err
	}

	if err := c.bumpInodeLinkCount(hiddenID, inodeID, 1); err != nil {
		return 0, err
	}
	return linkID, nil
}

// promoteToIndirectNode turns an ordinary file into a hard-link target: its
// real record moves into the hidden folder under "iNode<id>", and the
// original (parent, name) slot becomes a link pointing at it.
func (c *Catalog) promoteToIndirectNode(hiddenID, parentID types.CNID, name string, original types.CatalogFile) (types.CNID, error) {
	inodeID := original.FileID
	inodeName := indirectNodeName(uint32(inodeID))

	original.BSD.Special = 1 // link count, starts at the one reference already in place

	c.mu.Lock()
	defer c.mu.Unlock()

	// The inode keeps the file's original CNID; its thread record at that
	// CNID already exists (pointing at parentID/name), so insertFileLocked
	// cannot also insert one under the same key. Delete it first and
	// re-create it pointed at the inode's new home.
	if err := c.tree.Delete(threadKey(inodeID)); err != nil {
		return 0, err
	}
	if err := c.insertFileLocked(hiddenID, inodeName, inodeID, original); err != nil {
		return 0, err
	}

	// The link left in the original slot gets its own CNID and thread
	// record, like every other file.
	linkID, err := c.allocateCNID()
	if err != nil {
		return 0, err
	}
	link := types.CatalogFile{RecordType: types.RecTypeFile, Flags: types.FileFlagThreadExists, FileID: linkID}
	copy(link.UserInfo.FileType[:], types.HardLinkFileType)
	copy(link.UserInfo.FileCreator[:], types.HardLinkCreator)
	link.BSD.Special = uint32(inodeID)
	linkKey := childKey(parentID, name)
	if err := c.tree.Replace(linkKey, Record{File: &link}); err != nil {
		return 0, err
	}
	thread := types.CatalogThread{RecordType: types.RecTypeFileThread, ParentID: parentID, NodeName: linkKey.NodeName}
	if err := c.tree.Insert(threadKey(linkID), Record{Thread: &thread}); err != nil {
		return 0, err
	}
	return inodeID, nil
}

func (c *Catalog) bumpInodeLinkCount(hiddenID, inodeID types.CNID, delta int32) error {
	name := indirectNodeName(uint32(inodeID))
	rec, err := c.Lookup(hiddenID, name)
	if err != nil {
		return err
	}
	if rec.File == nil {
		return hfserrors.Newf(hfserrors.ErrBadFormat, "indirect node %q is not a file", name)
	}
	rec.File.BSD.Special = uint32(int64(rec.File.BSD.Special) + int64(delta))
	return c.Update(hiddenID, name, rec)
}

// reclaimHardLink decrements the indirect node's link count after a
// hard-link redirect record has already been deleted from the tree,
// reclaiming the inode's own catalog entry and thread once no aliases
// reference it (spec.md §8.3 scenario 4: delete target, alias linkcount
// drops to 1; delete alias, inode removed). The caller must not hold c.mu.
// Fork deallocation for the reclaimed inode is left to the caller: this
// package holds no extents/bitmap handle, so the reclaimed record (forks
// intact) is returned for whoever frees blocks on delete to act on.
func (c *Catalog) reclaimHardLink(link *types.CatalogFile) (*types.CatalogFile, error) {
	hiddenID, err := c.EnsureHiddenFolder()
	if err != nil {
		return nil, err
	}
	inodeID := types.CNID(link.BSD.Special)
	if err := c.bumpInodeLinkCount(hiddenID, inodeID, -1); err != nil {
		return nil, err
	}

	inodeName := indirectNodeName(uint32(inodeID))
	inodeRec, err := c.Lookup(hiddenID, inodeName)
	if err != nil {
		return nil, err
	}
	if inodeRec.File == nil || inodeRec.File.BSD.Special != 0 {
		return nil, nil
	}

	c.mu.Lock()
	if err := c.tree.Delete(childKey(hiddenID, inodeName)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.tree.Delete(threadKey(inodeID)); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.bumpValence(hiddenID, -1)
	c.hints.invalidateFolder(hiddenID)
	c.mu.Unlock()

	hfslog.Logger.WithFields(hfslog.Fields{"inode": inodeID}).Debug("catalog: hard-link inode reclaimed, no aliases remain")
	return inodeRec.File, nil
}

// ResolveHardLink returns the indirect node's file record when rec is a
// hard-link redirect, and rec itself otherwise. The caller keeps the CNID
// the directory entry was opened under; the actual fork data is read from
// the returned inode record (spec.md §4.F.3).
func (c *Catalog) ResolveHardLink(rec types.CatalogFile) (types.CatalogFile, error) {
	if !rec.IsHardLink() {
		return rec, nil
	}
	hiddenID, err := c.EnsureHiddenFolder()
	if err != nil {
		return types.CatalogFile{}, err
	}
	inodeID := types.CNID(rec.BSD.Special)
	inodeRec, err := c.Lookup(hiddenID, indirectNodeName(uint32(inodeID)))
	if err != nil {
		return types.CatalogFile{}, err
	}
	if inodeRec.File == nil {
		return types.CatalogFile{}, hfserrors.Newf(hfserrors.ErrBadFormat, "indirect node %d is not a file", inodeID)
	}
	return *inodeRec.File, nil
}

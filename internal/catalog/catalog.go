package catalog

import (
	"sync"

	"github.com/go-hfsplus/hfsplus/internal/btree"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/hfsunicode"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// DefaultNodeSize is the node size internal/volume gives a freshly created
// catalog tree on a volume of 1 GiB or more; smaller volumes get
// types.DefaultCatalogNodeSizeSmall.
const DefaultNodeSize = types.DefaultCatalogNodeSize

// DirEntry is one child of a folder as returned by GetDirents.
type DirEntry struct {
	Name   string
	CNID   types.CNID
	Record Record
}

// Catalog is the single catalog B-tree of a mounted volume (spec.md §4.F),
// plus the CNID allocator and readdir hint cache that sit on top of it.
type Catalog struct {
	mu      sync.Mutex
	tree    *btree.Tree[types.CatalogKey, Record]
	nextID  uint32
	hints   *hintCache
	hidden  types.CNID // private-data folder CNID, 0 if not yet resolved
}

// New creates a fresh, empty catalog tree (the caller still needs to insert
// a root folder record and its thread afterward).
func New(space btree.NodeSpace, nodeSize uint32, clumpSize uint32) (*Catalog, error) {
	tree, err := btree.Create(space, nodeSize, types.BTreeCompareCaseFoldedUnicode, 516, clumpSize, codec())
	if err != nil {
		return nil, err
	}
	return &Catalog{tree: tree, nextID: types.CNIDFirstUserCatalogNodeID, hints: newHintCache()}, nil
}

// Open attaches to an existing on-disk catalog tree, seeding the CNID
// allocator from the volume header's NextCatalogID.
func Open(space btree.NodeSpace, nextCatalogID uint32) (*Catalog, error) {
	tree, err := btree.Open(space, codec())
	if err != nil {
		return nil, err
	}
	if nextCatalogID < types.CNIDFirstUserCatalogNodeID {
		nextCatalogID = types.CNIDFirstUserCatalogNodeID
	}
	return &Catalog{tree: tree, nextID: nextCatalogID, hints: newHintCache()}, nil
}

// NextCNID reports the allocator's current high-water mark, for the volume
// layer to persist back into the volume header on flush.
func (c *Catalog) NextCNID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID
}

// allocateCNID hands out a fresh id, advancing monotonically and only
// falling back to a wraparound scan for a gap once uint32 space is
// exhausted (spec.md §4.F.1 "CNID allocation").
func (c *Catalog) allocateCNID() (types.CNID, error) {
	if c.nextID != 0 {
		id := c.nextID
		c.nextID++
		return types.CNID(id), nil
	}
	for candidate := uint32(types.CNIDFirstUserCatalogNodeID); candidate != 0; candidate++ {
		key := threadKey(types.CNID(candidate))
		if _, found, err := c.tree.Search(key); err != nil {
			return 0, err
		} else if !found {
			c.nextID = candidate + 1
			return types.CNID(candidate), nil
		}
	}
	return 0, hfserrors.New(hfserrors.ErrDiskFull, "catalog node id space exhausted")
}

func childKey(parentID types.CNID, name string) types.CatalogKey {
	return types.CatalogKey{ParentID: parentID, NodeName: hfsunicode.FromGoString(name)}
}

// Lookup resolves (parentID, name) to its catalog record. Hard-link
// redirection is the caller's responsibility (see ResolveHardLink).
func (c *Catalog) Lookup(parentID types.CNID, name string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, found, err := c.tree.Search(childKey(parentID, name))
	if err != nil {
		return Record{}, err
	}
	if !found {
		return Record{}, hfserrors.Newf(hfserrors.ErrNotFound, "no entry %q in folder %d", name, parentID)
	}
	return rec, nil
}

// LookupByCNID resolves a CNID to its (parentID, name) via its thread
// record, the catalog's reverse-lookup path (TN1150 page 26).
func (c *Catalog) LookupByCNID(id types.CNID) (types.CNID, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, found, err := c.tree.Search(threadKey(id))
	if err != nil {
		return 0, "", err
	}
	if !found || rec.Thread == nil {
		return 0, "", hfserrors.Newf(hfserrors.ErrNotFound, "no thread record for cnid %d", id)
	}
	return rec.Thread.ParentID, hfsunicode.ToGoString(rec.Thread.NodeName), nil
}

// CreateFolder inserts a new folder and its thread record under parentID.
func (c *Catalog) CreateFolder(parentID types.CNID, name string, template types.CatalogFolder) (types.CNID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := childKey(parentID, name)
	if _, found, err := c.tree.Search(key); err != nil {
		return 0, err
	} else if found {
		return 0, hfserrors.Newf(hfserrors.ErrDuplicate, "entry %q already exists in folder %d", name, parentID)
	}

	id, err := c.allocateCNID()
	if err != nil {
		return 0, err
	}
	template.RecordType = types.RecTypeFolder
	template.FolderID = id

	if err := c.tree.Insert(key, Record{Folder: &template}); err != nil {
		return 0, err
	}
	thread := types.CatalogThread{RecordType: types.RecTypeFolderThread, ParentID: parentID, NodeName: hfsunicode.FromGoString(name)}
	if err := c.tree.Insert(threadKey(id), Record{Thread: &thread}); err != nil {
		return 0, err
	}
	c.bumpValence(parentID, 1)
	c.hints.invalidateFolder(parentID)
	hfslog.Logger.WithFields(hfslog.Fields{"parent": parentID, "name": name, "cnid": id}).Debug("catalog: folder created")
	return id, nil
}

// CreateFile inserts a new file and its thread record under parentID.
func (c *Catalog) CreateFile(parentID types.CNID, name string, template types.CatalogFile) (types.CNID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.allocateCNID()
	if err != nil {
		return 0, err
	}
	return id, c.insertFileLocked(parentID, name, id, template)
}

// insertFileLocked files template as a file record with a caller-chosen
// CNID, used directly by CreateFile and, with an id carried over from an
// existing record, by hard-link promotion (spec.md §4.F.3).
func (c *Catalog) insertFileLocked(parentID types.CNID, name string, id types.CNID, template types.CatalogFile) error {
	key := childKey(parentID, name)
	if _, found, err := c.tree.Search(key); err != nil {
		return err
	} else if found {
		return hfserrors.Newf(hfserrors.ErrDuplicate, "entry %q already exists in folder %d", name, parentID)
	}

	template.RecordType = types.RecTypeFile
	template.FileID = id

	if err := c.tree.Insert(key, Record{File: &template}); err != nil {
		return err
	}
	thread := types.CatalogThread{RecordType: types.RecTypeFileThread, ParentID: parentID, NodeName: hfsunicode.FromGoString(name)}
	if err := c.tree.Insert(threadKey(id), Record{Thread: &thread}); err != nil {
		return err
	}
	c.bumpValence(parentID, 1)
	c.hints.invalidateFolder(parentID)
	hfslog.Logger.WithFields(hfslog.Fields{"parent": parentID, "name": name, "cnid": id}).Debug("catalog: file created")
	return nil
}

// Delete removes the named entry and its thread record. A non-empty folder
// is refused (spec.md §4.F.1 edge case). Deleting a hard-link redirect
// record decrements the indirect node's link count, reclaiming its own
// catalog entry once no aliases remain (spec.md §8.1, §8.3 scenario 4).
func (c *Catalog) Delete(parentID types.CNID, name string) error {
	c.mu.Lock()

	key := childKey(parentID, name)
	rec, found, err := c.tree.Search(key)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !found {
		c.mu.Unlock()
		return hfserrors.Newf(hfserrors.ErrNotFound, "no entry %q in folder %d", name, parentID)
	}

	var id types.CNID
	switch {
	case rec.IsFolder():
		if rec.Folder.Valence != 0 {
			c.mu.Unlock()
			return hfserrors.Newf(hfserrors.ErrNotEmpty, "folder %q is not empty", name)
		}
		id = rec.Folder.FolderID
	case rec.IsFile():
		id = rec.File.FileID
	default:
		c.mu.Unlock()
		return hfserrors.Newf(hfserrors.ErrBadFormat, "entry %q is not a folder or file", name)
	}

	if err := c.tree.Delete(key); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.tree.Delete(threadKey(id)); err != nil {
		c.mu.Unlock()
		return err
	}
	c.bumpValence(parentID, -1)
	c.hints.invalidateFolder(parentID)
	c.mu.Unlock()

	if rec.IsFile() && rec.File.IsHardLink() {
		if _, err := c.reclaimHardLink(rec.File); err != nil {
			return err
		}
	}

	hfslog.Logger.WithFields(hfslog.Fields{"parent": parentID, "name": name, "cnid": id}).Debug("catalog: entry deleted")
	return nil
}

// Rename moves/renames an entry, updating its thread record and both
// parents' valence when the move crosses folders.
func (c *Catalog) Rename(oldParent types.CNID, oldName string, newParent types.CNID, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldKey := childKey(oldParent, oldName)
	rec, found, err := c.tree.Search(oldKey)
	if err != nil {
		return err
	}
	if !found {
		return hfserrors.Newf(hfserrors.ErrNotFound, "no entry %q in folder %d", oldName, oldParent)
	}

	newKey := childKey(newParent, newName)
	if _, exists, err := c.tree.Search(newKey); err != nil {
		return err
	} else if exists {
		return hfserrors.Newf(hfserrors.ErrDuplicate, "entry %q already exists in folder %d", newName, newParent)
	}

	var id types.CNID
	switch {
	case rec.IsFolder():
		id = rec.Folder.FolderID
	case rec.IsFile():
		id = rec.File.FileID
	default:
		return hfserrors.Newf(hfserrors.ErrBadFormat, "entry %q is not a folder or file", oldName)
	}

	if err := c.tree.Delete(oldKey); err != nil {
		return err
	}
	if err := c.tree.Insert(newKey, rec); err != nil {
		return err
	}

	threadRecType := types.RecTypeFileThread
	if rec.IsFolder() {
		threadRecType = types.RecTypeFolderThread
	}
	thread := types.CatalogThread{RecordType: threadRecType, ParentID: newParent, NodeName: hfsunicode.FromGoString(newName)}
	if err := c.tree.Replace(threadKey(id), Record{Thread: &thread}); err != nil {
		return err
	}

	if oldParent != newParent {
		c.bumpValence(oldParent, -1)
		c.bumpValence(newParent, 1)
	}
	c.hints.invalidateFolder(oldParent)
	c.hints.invalidateFolder(newParent)
	hfslog.Logger.WithFields(hfslog.Fields{"cnid": id, "from": oldName, "to": newName}).Debug("catalog: entry renamed")
	return nil
}

// Update overwrites the record stored at (parentID, name) in place,
// leaving its thread record untouched (name/parent did not change).
func (c *Catalog) Update(parentID types.CNID, name string, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := childKey(parentID, name)
	if _, found, err := c.tree.Search(key); err != nil {
		return err
	} else if !found {
		return hfserrors.Newf(hfserrors.ErrNotFound, "no entry %q in folder %d", name, parentID)
	}
	return c.tree.Replace(key, rec)
}

// bumpValence adjusts a folder's child count, best-effort: a missing or
// non-folder parentID (the volume root's synthetic parent, CNIDRootParent)
// is silently ignored.
func (c *Catalog) bumpValence(folderID types.CNID, delta int32) {
	if folderID == types.CNIDRootParent {
		return
	}
	parentID, name, err := c.lookupByCNIDLocked(folderID)
	if err != nil {
		return
	}
	key := childKey(parentID, name)
	rec, found, err := c.tree.Search(key)
	if err != nil || !found || rec.Folder == nil {
		return
	}
	rec.Folder.Valence = uint32(int64(rec.Folder.Valence) + int64(delta))
	_ = c.tree.Replace(key, rec)
}

func (c *Catalog) lookupByCNIDLocked(id types.CNID) (types.CNID, string, error) {
	rec, found, err := c.tree.Search(threadKey(id))
	if err != nil {
		return 0, "", err
	}
	if !found || rec.Thread == nil {
		return 0, "", hfserrors.Newf(hfserrors.ErrNotFound, "no thread record for cnid %d", id)
	}
	return rec.Thread.ParentID, hfsunicode.ToGoString(rec.Thread.NodeName), nil
}

// GetDirents lists up to limit children of folderID starting after offset
// entries already returned, resuming near the last position via the hint
// cache when one is available instead of re-walking from the folder's
// first child every call (spec.md §4.F.2).
func (c *Catalog) GetDirents(folderID types.CNID, offset int, limit int) ([]DirEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	startKey := childKey(folderID, "")
	skip := offset
	if offset > 0 {
		if hint, ok := c.hints.get(folderID, offset); ok {
			startKey = hint.resumeKey
			skip = 0
		}
	}

	it, err := c.tree.IterateFrom(startKey)
	if err != nil {
		return nil, false, err
	}

	var entries []DirEntry
	for {
		key, rec, ok, err := it.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok || key.ParentID != folderID {
			return entries, true, nil
		}
		if rec.IsThread() {
			continue // the folder's own thread record, not a child
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(entries) >= limit {
			c.hints.put(folderID, offset+len(entries), dirHint{resumeKey: key})
			return entries, false, nil
		}
		entries = append(entries, DirEntry{Name: hfsunicode.ToGoString(key.NodeName), CNID: entryCNID(rec), Record: rec})
	}
}

func entryCNID(rec Record) types.CNID {
	switch {
	case rec.Folder != nil:
		return rec.Folder.FolderID
	case rec.File != nil:
		return rec.File.FileID
	default:
		return 0
	}
}

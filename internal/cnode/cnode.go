// Package cnode implements the c-node cache (spec.md §4.H): the in-memory
// representation of an open catalog entry, keyed by CNID, shared by every
// caller holding it open so a fork extend or a BSD-info update is visible
// everywhere at once instead of being re-read from the catalog tree.
package cnode

import (
	"container/list"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/go-hfsplus/hfsplus/internal/catalog"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// CNode is the cached, reference-counted view of one catalog entry. For a
// hard-link redirect record, CNID stays the alias's own identity (the
// directory entry's thread record is keyed on it) while FileID is the
// indirect node's CNID and File carries the indirect node's resolved
// attributes and forks (spec.md §4.F.3/§4.H).
type CNode struct {
	CNID     types.CNID
	FileID   types.CNID
	ParentID types.CNID
	Name     string
	Folder   *types.CatalogFolder
	File     *types.CatalogFile
	mu       sync.Mutex
	refs     int
	dirty    bool
	elem     *list.Element

	// fileParentID/fileName locate the catalog slot Flush must write File
	// back to. For an ordinary file this is ParentID/Name; for a resolved
	// hard link it is the indirect node's own (hidden-folder parent, name),
	// never the alias's redirect record.
	fileParentID types.CNID
	fileName     string
}

// IsFolder reports whether this c-node describes a folder.
func (n *CNode) IsFolder() bool { return n.Folder != nil }

// IsFile reports whether this c-node describes a file.
func (n *CNode) IsFile() bool { return n.File != nil }

// MarkDirty flags this c-node's in-memory state as ahead of the catalog
// record on disk, so Cache.Flush knows to write it back.
func (n *CNode) MarkDirty() {
	n.mu.Lock()
	n.dirty = true
	n.mu.Unlock()
}

// Cache is the volume-wide table of open c-nodes, with bounded LRU
// reclamation and singleflight-coalesced loads so concurrent opens of the
// same CNID only read the catalog tree once (spec.md §4.H.2).
type Cache struct {
	mu       sync.Mutex
	cat      *catalog.Catalog
	entries  map[types.CNID]*CNode
	lru      *list.List // front = most recently used
	capacity int
	group    singleflight.Group
}

// New creates a c-node cache backed by cat, holding up to capacity
// zero-reference entries before evicting the least recently used.
func New(cat *catalog.Catalog, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		cat:      cat,
		entries:  make(map[types.CNID]*CNode),
		lru:      list.New(),
		capacity: capacity,
	}
}

// GetOrLoad returns the cached c-node for id, loading it from the catalog
// via its thread record if it is not already resident. The returned node
// is pinned (ref count incremented); callers must call Release when done.
func (c *Cache) GetOrLoad(id types.CNID) (*CNode, error) {
	c.mu.Lock()
	if n, ok := c.entries[id]; ok {
		c.pinLocked(n)
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(keyFor(id), func() (interface{}, error) {
		return c.load(id)
	})
	if err != nil {
		return nil, err
	}
	n := v.(*CNode)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok && existing != n {
		// Another caller's singleflight call lost the race to install its
		// result first; use the one already resident.
		c.pinLocked(existing)
		return existing, nil
	}
	if _, ok := c.entries[id]; !ok {
		c.installLocked(n)
	}
	c.pinLocked(n)
	return n, nil
}

func keyFor(id types.CNID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (c *Cache) load(id types.CNID) (*CNode, error) {
	parentID, name, err := c.cat.LookupByCNID(id)
	if err != nil {
		return nil, err
	}
	rec, err := c.cat.Lookup(parentID, name)
	if err != nil {
		return nil, err
	}

	n := &CNode{
		CNID: id, FileID: id,
		ParentID: parentID, Name: name,
		Folder: rec.Folder, File: rec.File,
		fileParentID: parentID, fileName: name,
	}

	if rec.File != nil && rec.File.IsHardLink() {
		resolved, err := c.cat.ResolveHardLink(*rec.File)
		if err != nil {
			return nil, err
		}
		inodeParent, inodeName, err := c.cat.LookupByCNID(resolved.FileID)
		if err != nil {
			return nil, err
		}
		n.File = &resolved
		n.FileID = resolved.FileID
		n.fileParentID, n.fileName = inodeParent, inodeName
		hfslog.Logger.WithFields(hfslog.Fields{"cnid": id, "inode": resolved.FileID}).Debug("cnode: resolved hard link to indirect node")
	}

	hfslog.Logger.WithFields(hfslog.Fields{"cnid": id, "name": name}).Debug("cnode: loaded from catalog")
	return n, nil
}

func (c *Cache) installLocked(n *CNode) {
	c.entries[n.CNID] = n
	n.elem = c.lru.PushFront(n)
	c.evictLocked()
}

func (c *Cache) pinLocked(n *CNode) {
	n.mu.Lock()
	n.refs++
	n.mu.Unlock()
	if n.elem != nil {
		c.lru.MoveToFront(n.elem)
	}
}

// Release unpins id, making it eligible for reclamation once its ref count
// reaches zero and the cache is over capacity.
func (c *Cache) Release(id types.CNID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[id]
	if !ok {
		return
	}
	n.mu.Lock()
	if n.refs > 0 {
		n.refs--
	}
	n.mu.Unlock()
	c.evictLocked()
}

// evictLocked drops zero-reference entries from the tail of the LRU list
// until the cache is back within capacity.
func (c *Cache) evictLocked() {
	if len(c.entries) <= c.capacity {
		return
	}
	for e := c.lru.Back(); e != nil && len(c.entries) > c.capacity; {
		n := e.Value.(*CNode)
		prev := e.Prev()
		n.mu.Lock()
		refs := n.refs
		dirty := n.dirty
		n.mu.Unlock()
		if refs == 0 && !dirty {
			c.lru.Remove(e)
			delete(c.entries, n.CNID)
		}
		e = prev
	}
}

// Invalidate drops id from the cache unconditionally (used after Delete),
// refusing only if it is still pinned by another caller.
func (c *Cache) Invalidate(id types.CNID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[id]
	if !ok {
		return nil
	}
	n.mu.Lock()
	refs := n.refs
	n.mu.Unlock()
	if refs > 0 {
		return hfserrors.Newf(hfserrors.ErrBusy, "cnode %d is still referenced", id)
	}
	if n.elem != nil {
		c.lru.Remove(n.elem)
	}
	delete(c.entries, id)
	return nil
}

// Flush writes back every dirty resident c-node's record to the catalog.
func (c *Cache) Flush() error {
	c.mu.Lock()
	dirty := make([]*CNode, 0)
	for _, n := range c.entries {
		n.mu.Lock()
		if n.dirty {
			dirty = append(dirty, n)
		}
		n.mu.Unlock()
	}
	c.mu.Unlock()

	for _, n := range dirty {
		var rec catalog.Record
		parentID, name := n.ParentID, n.Name
		switch {
		case n.IsFolder():
			rec = catalog.Record{Folder: n.Folder}
		case n.IsFile():
			rec = catalog.Record{File: n.File}
			// A resolved hard link's dirty content belongs to the indirect
			// node's own record, never the alias's redirect record.
			parentID, name = n.fileParentID, n.fileName
		default:
			continue
		}
		if err := c.cat.Update(parentID, name, rec); err != nil {
			return err
		}
		n.mu.Lock()
		n.dirty = false
		n.mu.Unlock()
	}
	return nil
}

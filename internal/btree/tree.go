package btree

import (
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// Codec supplies a Tree[K, V] with everything engine-level node logic needs
// to know about a particular key and record type, so this package stays
// free of any domain-specific type (spec.md §4.E.1).
type Codec[K any, V any] struct {
	Compare      func(a, b K) int
	EncodeKey    func(K) []byte
	DecodeKey    func([]byte) (K, int, error)
	EncodeRecord func(V) []byte
	DecodeRecord func([]byte) (V, error)
}

// Tree is the generic ordered B-tree engine of spec.md §4.E, parameterized
// over a key type K and record type V via a Codec.
type Tree[K any, V any] struct {
	e     *engine
	codec Codec[K, V]
}

// Create formats a brand-new tree over space: writes the header node with
// a single empty leaf as its root.
func Create[K any, V any](space NodeSpace, nodeSize uint32, compare types.BTreeKeyCompare, maxKeyLength uint16, clumpSize uint32, codec Codec[K, V]) (*Tree[K, V], error) {
	if err := space.Grow(2); err != nil {
		return nil, err
	}
	header := types.BTHeaderRec{
		TreeDepth:      1,
		RootNode:       1,
		LeafRecords:    0,
		FirstLeafNode:  1,
		LastLeafNode:   1,
		NodeSize:       uint16(nodeSize),
		MaxKeyLength:   maxKeyLength,
		TotalNodes:     space.TotalNodes(),
		ClumpSize:      clumpSize,
		KeyCompareType: keyCompareByte(compare),
	}
	// Header node carries 3 records (header rec, user area, map record),
	// so the offset table has 4 entries (numRecords+1) of 2 bytes each.
	const headerNodeOffsetTableBytes = 4 * 2
	bitsBody := nodeSize - uint32(types.BTNodeDescriptorSize) - uint32(types.BTHeaderRecSize) - uint32(types.BTHeaderUserAreaSize) - headerNodeOffsetTableBytes
	header.FreeNodes = header.TotalNodes - 2 // header + root leaf consumed
	if header.TotalNodes < 2 {
		header.FreeNodes = 0
	}

	headerNode := newRawNode(types.BTNodeKindHeader, 0, nodeSize)
	headerBytes := make([]byte, types.BTHeaderRecSize)
	headerNode.records = [][]byte{
		headerBytes,
		make([]byte, types.BTHeaderUserAreaSize),
		make([]byte, bitsBody),
	}
	setMapBits(headerNode.records[2], []uint32{0, 1})

	e := &engine{space: space, header: header}
	e.bmp = nodeBitmap{t: e}
	if err := e.writeRaw(0, headerNode); err != nil {
		return nil, err
	}

	root := newRawNode(types.BTNodeKindLeaf, 0, nodeSize)
	if err := e.writeRaw(1, root); err != nil {
		return nil, err
	}
	if err := e.flushHeader(); err != nil {
		return nil, err
	}

	return &Tree[K, V]{e: e, codec: codec}, nil
}

func setMapBits(bits []byte, nodeNums []uint32) {
	for _, n := range nodeNums {
		bits[n/8] |= 1 << (7 - n%8)
	}
}

func keyCompareByte(c types.BTreeKeyCompare) uint8 {
	if c == types.BTreeCompareCaseFoldedUnicode {
		return types.BTKeyCompareCaseFolding
	}
	return types.BTKeyCompareBinary
}

// Open reads an existing tree's header node from space.
func Open[K any, V any](space NodeSpace, codec Codec[K, V]) (*Tree[K, V], error) {
	e := &engine{space: space}
	e.bmp = nodeBitmap{t: e}
	raw, err := e.readRaw(0)
	if err != nil {
		return nil, err
	}
	if len(raw.records) == 0 {
		return nil, hfserrors.New(hfserrors.ErrBadFormat, "tree header node has no header record")
	}
	header, err := decodeHeaderRecord(raw.records[0])
	if err != nil {
		return nil, err
	}
	e.header = header
	return &Tree[K, V]{e: e, codec: codec}, nil
}

func decodeHeaderRecord(b []byte) (types.BTHeaderRec, error) {
	return endian.ReadBTHeaderRec(b)
}

// GetInfo returns the tree's current header summary (spec.md §4.E.1).
func (t *Tree[K, V]) GetInfo() (nodeSize, maxKey uint16, depth, totalNodes, freeNodes uint32, keyCompare uint8, clumpSize uint32) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	h := t.e.header
	return h.NodeSize, h.MaxKeyLength, uint32(h.TreeDepth), h.TotalNodes, h.FreeNodes, h.KeyCompareType, h.ClumpSize
}

// SetLastSync is a no-op timestamp hook kept for parity with spec.md
// §4.E.1; this driver does not persist a last-sync time in the header.
func (t *Tree[K, V]) SetLastSync(_ int64) {}

// FlushPath forces the header and any other dirty tree-level state to disk.
// Leaf and index node writes already go through the underlying NodeSpace's
// own delayed-write path (spec.md §4.E.7).
func (t *Tree[K, V]) FlushPath() error {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	if !t.e.dirty {
		return nil
	}
	return t.e.flushHeader()
}

type descentStep struct {
	nodeNum uint32
	index   int
}

// descend walks from the root to the leaf that would contain target,
// recording the path taken for split/merge propagation.
func (t *Tree[K, V]) descend(target K) (leaf *rawNode, leafNum uint32, index int, found bool, path []descentStep, err error) {
	nodeNum := t.e.header.RootNode
	for {
		raw, rerr := t.e.readRaw(nodeNum)
		if rerr != nil {
			return nil, 0, 0, false, nil, rerr
		}
		idx, isFound, derr := t.searchNode(raw, target)
		if derr != nil {
			return nil, 0, 0, false, nil, derr
		}
		if raw.isLeaf() {
			return raw, nodeNum, idx, isFound, path, nil
		}
		path = append(path, descentStep{nodeNum: nodeNum, index: idx})
		childIdx := idx
		if !isFound {
			childIdx = idx - 1
		}
		if childIdx < 0 {
			childIdx = 0
		}
		if childIdx >= len(raw.records) {
			childIdx = len(raw.records) - 1
		}
		_, childPtr, _, derr := t.decodeIndexRecord(raw.records[childIdx])
		if derr != nil {
			return nil, 0, 0, false, nil, derr
		}
		nodeNum = childPtr
	}
}

// searchNode finds the greatest record key <= target within one node,
// returning found=true only if a leaf's key compares exactly equal
// (spec.md §4.E.3).
func (t *Tree[K, V]) searchNode(raw *rawNode, target K) (int, bool, error) {
	lo, hi := 0, len(raw.records)
	for lo < hi {
		mid := (lo + hi) / 2
		key, _, err := t.decodeRecordKey(raw, mid)
		if err != nil {
			return 0, false, err
		}
		if t.codec.Compare(key, target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	insertionPoint := lo
	if insertionPoint == 0 {
		return 0, false, nil
	}
	key, _, err := t.decodeRecordKey(raw, insertionPoint-1)
	if err != nil {
		return 0, false, err
	}
	if raw.isLeaf() && t.codec.Compare(key, target) == 0 {
		return insertionPoint - 1, true, nil
	}
	return insertionPoint, false, nil
}

func (t *Tree[K, V]) decodeRecordKey(raw *rawNode, i int) (K, int, error) {
	key, n, err := t.codec.DecodeKey(raw.records[i])
	if err != nil {
		var zero K
		return zero, 0, err
	}
	return key, n, nil
}

func (t *Tree[K, V]) decodeIndexRecord(rec []byte) (K, uint32, int, error) {
	key, n, err := t.codec.DecodeKey(rec)
	if err != nil {
		var zero K
		return zero, 0, 0, err
	}
	childPtr := decodeChildPointer(rec[n:])
	return key, childPtr, n, nil
}

func (t *Tree[K, V]) decodeLeafRecord(rec []byte) (K, V, int, error) {
	key, n, err := t.codec.DecodeKey(rec)
	if err != nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, 0, err
	}
	val, err := t.codec.DecodeRecord(rec[n:])
	if err != nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, 0, err
	}
	return key, val, n, nil
}

// Search implements spec.md §4.E.1's search(key).
func (t *Tree[K, V]) Search(key K) (V, bool, error) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	var zero V
	leaf, _, idx, found, _, err := t.descend(key)
	if err != nil {
		return zero, false, err
	}
	if !found {
		return zero, false, nil
	}
	_, val, _, err := t.decodeLeafRecord(leaf.records[idx])
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// SearchFloor returns the record with the greatest key <= key, used by the
// extent manager's overflow lookup (spec.md §4.D).
func (t *Tree[K, V]) SearchFloor(key K) (K, V, bool, error) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	var zeroK K
	var zeroV V
	leaf, _, idx, found, _, err := t.descend(key)
	if err != nil {
		return zeroK, zeroV, false, err
	}
	if !found {
		idx--
	}
	if idx < 0 || idx >= len(leaf.records) {
		return zeroK, zeroV, false, nil
	}
	k, v, _, err := t.decodeLeafRecord(leaf.records[idx])
	if err != nil {
		return zeroK, zeroV, false, err
	}
	return k, v, true, nil
}

// Insert implements spec.md §4.E.1 / §4.E.4: fails with ErrDuplicate if key
// already exists, else inserts, splitting nodes up to the root as needed.
func (t *Tree[K, V]) Insert(key K, value V) error {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()

	leaf, leafNum, idx, found, path, err := t.descend(key)
	if err != nil {
		return err
	}
	if found {
		return hfserrors.New(hfserrors.ErrDuplicate, "key already present")
	}

	rec := append(append([]byte(nil), t.codec.EncodeKey(key)...), t.codec.EncodeRecord(value)...)
	insertAt(leaf, idx, rec)
	t.e.header.LeafRecords++
	t.e.dirty = true

	return t.settle(leaf, leafNum, path)
}

// Replace implements spec.md §4.E.1: fails with ErrNotFound if key is
// absent, else overwrites the record. If the new record is a different
// size than the old one, this degrades to a delete+insert so node free
// space stays consistent.
func (t *Tree[K, V]) Replace(key K, value V) error {
	t.e.mu.Lock()
	leaf, leafNum, idx, found, path, err := t.descend(key)
	if err != nil {
		t.e.mu.Unlock()
		return err
	}
	if !found {
		t.e.mu.Unlock()
		return hfserrors.New(hfserrors.ErrNotFound, "key not present")
	}
	newRec := append(append([]byte(nil), t.codec.EncodeKey(key)...), t.codec.EncodeRecord(value)...)
	if len(newRec) == len(leaf.records[idx]) {
		leaf.records[idx] = newRec
		err := t.e.writeRaw(leafNum, leaf)
		t.e.mu.Unlock()
		return err
	}
	t.e.mu.Unlock()

	if err := t.Delete(key); err != nil {
		return err
	}
	return t.Insert(key, value)
}

// Delete implements spec.md §4.E.1 / §4.E.5.
func (t *Tree[K, V]) Delete(key K) error {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()

	leaf, leafNum, idx, found, path, err := t.descend(key)
	if err != nil {
		return err
	}
	if !found {
		return hfserrors.New(hfserrors.ErrNotFound, "key not present")
	}

	removeAt(leaf, idx)
	t.e.header.LeafRecords--
	t.e.dirty = true

	if len(leaf.records) > 0 {
		return t.e.writeRaw(leafNum, leaf)
	}
	return t.collapseEmptyLeaf(leaf, leafNum, path)
}

// insertAt inserts rec at position idx in node.records, shifting later
// records up.
func insertAt(node *rawNode, idx int, rec []byte) {
	node.records = append(node.records, nil)
	copy(node.records[idx+1:], node.records[idx:])
	node.records[idx] = rec
}

func removeAt(node *rawNode, idx int) {
	node.records = append(node.records[:idx], node.records[idx+1:]...)
}

// settle writes leaf back, splitting it and propagating up path if it no
// longer fits (spec.md §4.E.4).
func (t *Tree[K, V]) settle(leaf *rawNode, leafNum uint32, path []descentStep) error {
	if _, err := leaf.encode(t.e.space.NodeSize()); err == nil {
		if err := t.e.writeRaw(leafNum, leaf); err != nil {
			return err
		}
		return t.finish()
	}
	return t.split(leaf, leafNum, path)
}

// split carves leaf's upper half into a freshly allocated sibling node,
// links it in, and promotes the sibling's first key into the parent,
// recursing upward through path as needed (spec.md §4.E.4).
func (t *Tree[K, V]) split(node *rawNode, nodeNum uint32, path []descentStep) error {
	mid := len(node.records) / 2
	if mid == 0 {
		mid = 1
	}
	upper := append([][]byte(nil), node.records[mid:]...)
	node.records = node.records[:mid]

	siblingNum, err := t.e.allocateNode()
	if err != nil {
		return err
	}
	sibling := newRawNode(node.desc.Kind, node.desc.Height, t.e.space.NodeSize())
	sibling.records = upper
	sibling.desc.FLink = node.desc.FLink
	sibling.desc.BLink = nodeNum
	node.desc.FLink = siblingNum

	if sibling.desc.FLink != 0 {
		next, err := t.e.readRaw(sibling.desc.FLink)
		if err != nil {
			return err
		}
		next.desc.BLink = siblingNum
		if err := t.e.writeRaw(sibling.desc.FLink, next); err != nil {
			return err
		}
	} else if node.isLeaf() {
		t.e.header.LastLeafNode = siblingNum
	}

	if err := t.e.writeRaw(nodeNum, node); err != nil {
		return err
	}
	if err := t.e.writeRaw(siblingNum, sibling); err != nil {
		return err
	}

	promotedKey, _, err := t.decodeRecordKey(sibling, 0)
	if err != nil {
		return err
	}

	if len(path) == 0 {
		return t.newRoot(nodeNum, siblingNum, promotedKey, node.desc.Kind)
	}

	parentStep := path[len(path)-1]
	parent, err := t.e.readRaw(parentStep.nodeNum)
	if err != nil {
		return err
	}
	rec := append(append([]byte(nil), t.codec.EncodeKey(promotedKey)...), encodeChildPointer(siblingNum)...)
	insertAt(parent, parentStep.index, rec)
	t.e.dirty = true

	return t.settle(parent, parentStep.nodeNum, path[:len(path)-1])
}

// newRoot allocates a fresh index root over left and right when a split
// propagates past the existing root (spec.md §4.E.4 step 4).
func (t *Tree[K, V]) newRoot(leftNum, rightNum uint32, rightFirstKey K, childKind int8) error {
	rootNum, err := t.e.allocateNode()
	if err != nil {
		return err
	}
	left, err := t.e.readRaw(leftNum)
	if err != nil {
		return err
	}
	leftFirstKey, _, err := t.decodeRecordKey(left, 0)
	if err != nil {
		return err
	}

	root := newRawNode(types.BTNodeKindIndex, uint8(t.e.header.TreeDepth+1), t.e.space.NodeSize())
	root.records = [][]byte{
		append(append([]byte(nil), t.codec.EncodeKey(leftFirstKey)...), encodeChildPointer(leftNum)...),
		append(append([]byte(nil), t.codec.EncodeKey(rightFirstKey)...), encodeChildPointer(rightNum)...),
	}
	if err := t.e.writeRaw(rootNum, root); err != nil {
		return err
	}

	t.e.header.RootNode = rootNum
	t.e.header.TreeDepth++
	t.e.dirty = true
	return t.finish()
}

// collapseEmptyLeaf unlinks an emptied leaf from its siblings, frees it,
// and removes the parent's pointer, recursing upward (spec.md §4.E.5). An
// emptied root leaf is kept and written back as the tree's empty root.
func (t *Tree[K, V]) collapseEmptyLeaf(leaf *rawNode, leafNum uint32, path []descentStep) error {
	if len(path) == 0 {
		// The leaf is also the root: the tree is now empty.
		if err := t.e.writeRaw(leafNum, leaf); err != nil {
			return err
		}
		return t.finish()
	}
	if err := t.unlinkSiblings(leaf); err != nil {
		return err
	}
	if t.e.header.FirstLeafNode == leafNum {
		t.e.header.FirstLeafNode = leaf.desc.FLink
	}
	if t.e.header.LastLeafNode == leafNum {
		t.e.header.LastLeafNode = leaf.desc.BLink
	}
	if err := t.e.freeNode(leafNum); err != nil {
		return err
	}

	parentStep := path[len(path)-1]
	parent, err := t.e.readRaw(parentStep.nodeNum)
	if err != nil {
		return err
	}
	// descend recorded the insertion point; the child it followed is the
	// record before it, clamped to the node's range.
	childIdx := parentStep.index - 1
	if childIdx < 0 {
		childIdx = 0
	}
	if childIdx >= len(parent.records) {
		childIdx = len(parent.records) - 1
	}
	removeAt(parent, childIdx)
	t.e.dirty = true

	if len(parent.records) > 0 {
		if err := t.e.writeRaw(parentStep.nodeNum, parent); err != nil {
			return err
		}
		return t.finish()
	}
	return t.collapseEmptyIndex(parent, parentStep.nodeNum, path[:len(path)-1])
}

// collapseEmptyIndex frees an emptied index node and removes its parent's
// pointer, recursing upward. An emptied root index means the tree holds no
// records: the root is rewritten in place as an empty leaf and the depth
// drops to 1. A root index left with a single child pointer is not
// collapsed into that child.
func (t *Tree[K, V]) collapseEmptyIndex(node *rawNode, nodeNum uint32, path []descentStep) error {
	if len(path) > 0 {
		parentStep := path[len(path)-1]
		parent, err := t.e.readRaw(parentStep.nodeNum)
		if err != nil {
			return err
		}
		childIdx := parentStep.index - 1
		if childIdx < 0 {
			childIdx = 0
		}
		if childIdx >= len(parent.records) {
			childIdx = len(parent.records) - 1
		}
		removeAt(parent, childIdx)
		if err := t.e.freeNode(nodeNum); err != nil {
			return err
		}
		if len(parent.records) > 0 {
			if err := t.e.writeRaw(parentStep.nodeNum, parent); err != nil {
				return err
			}
			return t.finish()
		}
		return t.collapseEmptyIndex(parent, parentStep.nodeNum, path[:len(path)-1])
	}

	// node is the root and its last child pointer is gone: every leaf has
	// been freed, so the root becomes the tree's only (empty) leaf.
	root := newRawNode(types.BTNodeKindLeaf, 0, t.e.space.NodeSize())
	if err := t.e.writeRaw(nodeNum, root); err != nil {
		return err
	}
	t.e.header.RootNode = nodeNum
	t.e.header.TreeDepth = 1
	t.e.header.FirstLeafNode = nodeNum
	t.e.header.LastLeafNode = nodeNum
	t.e.dirty = true
	return t.finish()
}

func (t *Tree[K, V]) unlinkSiblings(leaf *rawNode) error {
	if leaf.desc.BLink != 0 {
		prev, err := t.e.readRaw(leaf.desc.BLink)
		if err != nil {
			return err
		}
		prev.desc.FLink = leaf.desc.FLink
		if err := t.e.writeRaw(leaf.desc.BLink, prev); err != nil {
			return err
		}
	}
	if leaf.desc.FLink != 0 {
		next, err := t.e.readRaw(leaf.desc.FLink)
		if err != nil {
			return err
		}
		next.desc.BLink = leaf.desc.BLink
		if err := t.e.writeRaw(leaf.desc.FLink, next); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree[K, V]) finish() error {
	return t.e.flushHeader()
}

// Iterator walks leaf records in key order (spec.md §4.E.6). It does not
// hold any lock across Next calls; the caller must not mutate the tree
// concurrently with an open iterator.
type Iterator[K any, V any] struct {
	t       *Tree[K, V]
	nodeNum uint32
	index   int
	done    bool
}

// IterateFirst returns an iterator positioned at the first leaf record.
func (t *Tree[K, V]) IterateFirst() (*Iterator[K, V], error) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	it := &Iterator[K, V]{t: t, nodeNum: t.e.header.FirstLeafNode}
	if it.nodeNum == 0 {
		it.done = true
	}
	return it, nil
}

// IterateFrom returns an iterator positioned at the first record with a key
// >= key, letting a caller resume a scan (catalog readdir, spec.md §4.F.2)
// without walking every record from the start of the tree.
func (t *Tree[K, V]) IterateFrom(key K) (*Iterator[K, V], error) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	leaf, leafNum, idx, _, _, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	it := &Iterator[K, V]{t: t, nodeNum: leafNum, index: idx}
	if idx >= len(leaf.records) {
		if leaf.desc.FLink == 0 {
			it.done = true
		} else {
			it.nodeNum = leaf.desc.FLink
			it.index = 0
		}
	}
	return it, nil
}

// Next returns the next (key, value) pair and advances the iterator.
func (it *Iterator[K, V]) Next() (K, V, bool, error) {
	var zeroK K
	var zeroV V
	if it.done {
		return zeroK, zeroV, false, nil
	}
	it.t.e.mu.Lock()
	defer it.t.e.mu.Unlock()

	raw, err := it.t.e.readRaw(it.nodeNum)
	if err != nil {
		return zeroK, zeroV, false, err
	}
	if it.index >= len(raw.records) {
		if raw.desc.FLink == 0 {
			it.done = true
			return zeroK, zeroV, false, nil
		}
		it.nodeNum = raw.desc.FLink
		it.index = 0
		raw, err = it.t.e.readRaw(it.nodeNum)
		if err != nil {
			return zeroK, zeroV, false, err
		}
		if len(raw.records) == 0 {
			it.done = true
			return zeroK, zeroV, false, nil
		}
	}

	key, val, _, err := it.t.decodeLeafRecord(raw.records[it.index])
	if err != nil {
		return zeroK, zeroV, false, err
	}
	it.index++
	return key, val, true, nil
}

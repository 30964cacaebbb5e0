// Package btree implements the generic ordered B-tree engine of spec.md
// §4.E: the node allocation, search, insert/split, delete/merge, and
// iteration machinery shared by the catalog tree, the extents-overflow
// tree, and (if present) the attributes tree. It knows nothing about what a
// key or record means — those are supplied by the caller as encode/decode
// functions — which keeps this package free of any import on
// internal/catalog or internal/extents and avoids a dependency cycle (see
// DESIGN.md).
package btree

import (
	"sync"

	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/hfslog"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// NodeSpace is the node-granular storage a tree grows into. It is declared
// here, not imported from internal/extents, so that extents.ForkHandle can
// satisfy it structurally without internal/btree importing internal/extents
// (internal/extents already imports internal/btree for its own overflow
// tree use, so the reverse import would cycle).
type NodeSpace interface {
	NodeSize() uint32
	ReadNode(nodeNum uint32) ([]byte, error)
	WriteNode(nodeNum uint32, data []byte) error
	TotalNodes() uint32
	Grow(newTotalNodes uint32) error
}

// engine is the untyped node-level machinery shared by every Tree[K, V]
// instantiation.
type engine struct {
	mu     sync.Mutex
	space  NodeSpace
	header types.BTHeaderRec
	dirty  bool
	bmp    nodeBitmap
}

func (e *engine) readRaw(nodeNum uint32) (*rawNode, error) {
	data, err := e.space.ReadNode(nodeNum)
	if err != nil {
		return nil, err
	}
	return parseRawNode(data)
}

func (e *engine) writeRaw(nodeNum uint32, n *rawNode) error {
	data, err := n.encode(e.space.NodeSize())
	if err != nil {
		return err
	}
	return e.space.WriteNode(nodeNum, data)
}

// allocateNode implements spec.md §4.E.2: scan the map for a clear bit,
// extending the tree's node space first if every map record is full.
func (e *engine) allocateNode() (uint32, error) {
	capBits, err := e.bmp.capacityBits()
	if err != nil {
		return 0, err
	}
	if e.header.FreeNodes == 0 || capBits <= e.header.TotalNodes {
		if err := e.extendTree(e.header.TotalNodes + growthIncrement(e.header)); err != nil {
			return 0, err
		}
	}
	nodeNum, err := e.bmp.allocate()
	if err != nil {
		return 0, err
	}
	e.header.FreeNodes--
	e.dirty = true
	return nodeNum, nil
}

func growthIncrement(h types.BTHeaderRec) uint32 {
	if h.ClumpSize > 0 && h.NodeSize > 0 {
		perClump := h.ClumpSize / uint32(h.NodeSize)
		if perClump > 0 {
			return perClump
		}
	}
	return 8
}

// extendTree grows the underlying fork to hold newTotalNodes nodes and
// links in new map nodes if the existing map records can't cover the new
// total (spec.md §4.E.2 step 2).
func (e *engine) extendTree(newTotalNodes uint32) error {
	if err := e.space.Grow(newTotalNodes); err != nil {
		return err
	}
	actualTotal := e.space.TotalNodes()
	if actualTotal < newTotalNodes {
		newTotalNodes = actualTotal
	}

	// Map nodes are carved out of the newly grown range themselves, starting
	// at the first node number not already accounted for by the tree
	// (e.header.TotalNodes) — not e.space.TotalNodes(), which after Grow is
	// one past the last node the fork actually holds and would always trip
	// ForkHandle.WriteAt's bounds check.
	nextNodeNum := e.header.TotalNodes
	var usedForMap uint32

	capBits, err := e.bmp.capacityBits()
	if err != nil {
		return err
	}
	for capBits < newTotalNodes {
		if nextNodeNum >= newTotalNodes {
			return hfserrors.New(hfserrors.ErrBadNode, "extend tree: ran out of room to link a new map node")
		}
		mapNodeNum := nextNodeNum
		if err := e.allocateRawMapNode(mapNodeNum); err != nil {
			return err
		}
		nextNodeNum++
		usedForMap++

		last, err := e.bmp.lastMapNode()
		if err != nil {
			return err
		}
		if last == 0 {
			header, err := e.readRaw(0)
			if err != nil {
				return err
			}
			header.desc.FLink = mapNodeNum
			if err := e.writeRaw(0, header); err != nil {
				return err
			}
		} else {
			prev, err := e.readRaw(last)
			if err != nil {
				return err
			}
			prev.desc.FLink = mapNodeNum
			if err := e.writeRaw(last, prev); err != nil {
				return err
			}
		}

		// The map node occupies a node slot like any other; mark its own
		// bit used now that linking it in has made that bit addressable,
		// so nodeBitmap.allocate() can never hand this node number to a
		// real leaf/index node.
		if err := e.bmp.markUsed(mapNodeNum); err != nil {
			return err
		}

		capBits, err = e.bmp.capacityBits()
		if err != nil {
			return err
		}
	}

	added := newTotalNodes - e.header.TotalNodes
	e.header.TotalNodes = newTotalNodes
	e.header.FreeNodes += added - usedForMap
	e.dirty = true
	return nil
}

// allocateRawMapNode writes a brand-new, empty map node at nodeNum directly
// (it cannot go through allocateNode, which is what's growing the map in
// the first place).
func (e *engine) allocateRawMapNode(nodeNum uint32) error {
	bitsBody := e.space.NodeSize() - uint32(types.BTNodeDescriptorSize) - 4
	raw := newRawNode(types.BTNodeKindMap, 0, e.space.NodeSize())
	raw.records = [][]byte{make([]byte, bitsBody)}
	return e.writeRaw(nodeNum, raw)
}

// freeNode implements spec.md §4.E.2's free_node.
func (e *engine) freeNode(nodeNum uint32) error {
	if err := e.bmp.free(nodeNum); err != nil {
		return err
	}
	e.header.FreeNodes++
	e.dirty = true
	return nil
}

// flushHeader writes the header node back: header record, followed by the
// unchanged user area and map record already present in the node.
func (e *engine) flushHeader() error {
	raw, err := e.readRaw(0)
	if err != nil {
		return err
	}
	if len(raw.records) < 3 {
		return hfserrors.New(hfserrors.ErrBadNode, "header node missing required records")
	}
	headerBytes := make([]byte, types.BTHeaderRecSize)
	endian.WriteBTHeaderRec(e.header, headerBytes)
	raw.records[0] = headerBytes
	if err := e.writeRaw(0, raw); err != nil {
		return err
	}
	e.dirty = false
	hfslog.Logger.WithFields(hfslog.Fields{"totalNodes": e.header.TotalNodes, "freeNodes": e.header.FreeNodes}).Debug("btree: flushed header")
	return nil
}

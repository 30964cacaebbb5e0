package btree

import (
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
)

// nodeBitmap walks the header node's map record and any chained map nodes
// (TN1150 pages 36-39) to allocate and free node numbers, independent of the
// containing fork's own allocation-block mapping (spec.md §4.E.2).
type nodeBitmap struct {
	t *engine
}

// chunk is one map record's worth of bitmap bytes plus the node number it
// lives in (0 for the header node itself).
type chunk struct {
	nodeNum     uint32
	recordIndex int
	bits        []byte
	isHeader    bool
}

func (nb *nodeBitmap) chunks() ([]chunk, error) {
	var out []chunk

	header, err := nb.t.readRaw(0)
	if err != nil {
		return nil, err
	}
	if len(header.records) < 3 {
		return nil, hfserrors.New(hfserrors.ErrBadNode, "header node missing map record")
	}
	out = append(out, chunk{nodeNum: 0, recordIndex: 2, bits: header.records[2], isHeader: true})

	next := header.desc.FLink
	for next != 0 {
		mapNode, err := nb.t.readRaw(next)
		if err != nil {
			return nil, err
		}
		if len(mapNode.records) == 0 {
			return nil, hfserrors.New(hfserrors.ErrBadNode, "map node missing bitmap record")
		}
		out = append(out, chunk{nodeNum: next, recordIndex: 0, bits: mapNode.records[0]})
		next = mapNode.desc.FLink
	}
	return out, nil
}

// allocate finds the first clear bit across the chained map, sets it, and
// returns its node number.
func (nb *nodeBitmap) allocate() (uint32, error) {
	chunks, err := nb.chunks()
	if err != nil {
		return 0, err
	}
	var base uint32
	for _, c := range chunks {
		for byteIdx, b := range c.bits {
			if b == 0xFF {
				continue
			}
			for bit := 0; bit < 8; bit++ {
				nodeNum := base + uint32(byteIdx*8+bit)
				if nodeNum >= nb.t.header.TotalNodes {
					break
				}
				mask := byte(1 << (7 - bit))
				if c.bits[byteIdx]&mask == 0 {
					c.bits[byteIdx] |= mask
					if err := nb.writeChunk(c); err != nil {
						return 0, err
					}
					return nodeNum, nil
				}
			}
		}
		base += uint32(len(c.bits) * 8)
	}
	return 0, hfserrors.New(hfserrors.ErrDiskFull, "no free node available; caller must extend the tree")
}

// markUsed sets the bit for nodeNum directly, without scanning for the
// first clear bit — used when a caller (extendTree) has already decided
// which node number a newly linked map node occupies and needs that slot
// excluded from future allocate() calls.
func (nb *nodeBitmap) markUsed(nodeNum uint32) error {
	chunks, err := nb.chunks()
	if err != nil {
		return err
	}
	var base uint32
	for _, c := range chunks {
		span := uint32(len(c.bits) * 8)
		if nodeNum >= base && nodeNum < base+span {
			local := nodeNum - base
			byteIdx := local / 8
			mask := byte(1 << (7 - local%8))
			c.bits[byteIdx] |= mask
			return nb.writeChunk(c)
		}
		base += span
	}
	return hfserrors.Newf(hfserrors.ErrBadNode, "node %d is outside the allocation bitmap", nodeNum)
}

// free clears the bit for nodeNum.
func (nb *nodeBitmap) free(nodeNum uint32) error {
	chunks, err := nb.chunks()
	if err != nil {
		return err
	}
	var base uint32
	for _, c := range chunks {
		span := uint32(len(c.bits) * 8)
		if nodeNum >= base && nodeNum < base+span {
			local := nodeNum - base
			byteIdx := local / 8
			mask := byte(1 << (7 - local%8))
			c.bits[byteIdx] &^= mask
			return nb.writeChunk(c)
		}
		base += span
	}
	return hfserrors.Newf(hfserrors.ErrBadNode, "node %d is outside the allocation bitmap", nodeNum)
}

func (nb *nodeBitmap) writeChunk(c chunk) error {
	raw, err := nb.t.readRaw(c.nodeNum)
	if err != nil {
		return err
	}
	raw.records[c.recordIndex] = c.bits
	return nb.t.writeRaw(c.nodeNum, raw)
}

// capacityBits returns the total number of node-bits addressable by the
// current chain of map records.
func (nb *nodeBitmap) capacityBits() (uint32, error) {
	chunks, err := nb.chunks()
	if err != nil {
		return 0, err
	}
	var total uint32
	for _, c := range chunks {
		total += uint32(len(c.bits) * 8)
	}
	return total, nil
}

// lastMapNode returns the node number of the last node in the map chain
// (0 meaning the header node itself has no continuation yet), for linking
// a newly allocated map node onto the end of the chain.
func (nb *nodeBitmap) lastMapNode() (uint32, error) {
	header, err := nb.t.readRaw(0)
	if err != nil {
		return 0, err
	}
	if header.desc.FLink == 0 {
		return 0, nil
	}
	cur := header.desc.FLink
	for {
		node, err := nb.t.readRaw(cur)
		if err != nil {
			return 0, err
		}
		if node.desc.FLink == 0 {
			return cur, nil
		}
		cur = node.desc.FLink
	}
}

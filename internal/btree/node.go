package btree

import (
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// rawNode is a node's descriptor plus its records as raw, undecoded bytes
// (TN1150 page 34: descriptor, then records packed from the front, then a
// reversed offset table packed from the back).
type rawNode struct {
	desc    types.BTNodeDescriptor
	records [][]byte
	size    uint32
}

func parseRawNode(data []byte) (*rawNode, error) {
	desc, err := endian.ReadBTNodeDescriptor(data)
	if err != nil {
		return nil, err
	}
	n := &rawNode{desc: desc, size: uint32(len(data))}
	count := int(desc.NumRecords)
	n.records = make([][]byte, count)
	for i := 0; i < count; i++ {
		start := endian.ReadRecordOffset(data, i)
		end := endian.ReadRecordOffset(data, i+1)
		if int(end) > len(data) || start > end {
			return nil, hfserrors.New(hfserrors.ErrBadNode, "record offset out of range")
		}
		n.records[i] = append([]byte(nil), data[start:end]...)
	}
	return n, nil
}

// encode packs the node back into a nodeSize-sized buffer, returns an error
// if the records no longer fit.
func (n *rawNode) encode(nodeSize uint32) ([]byte, error) {
	buf := make([]byte, nodeSize)
	n.desc.NumRecords = uint16(len(n.records))
	endian.WriteBTNodeDescriptor(n.desc, buf)
	offset := uint16(types.BTNodeDescriptorSize)
	for i, rec := range n.records {
		endian.WriteRecordOffset(buf, i, offset)
		if int(offset)+len(rec) > len(buf) {
			return nil, hfserrors.New(hfserrors.ErrBadNode, "node overflow: records do not fit")
		}
		copy(buf[offset:], rec)
		offset += uint16(len(rec))
	}
	endian.WriteRecordOffset(buf, len(n.records), offset)
	freeTableBytes := (len(n.records) + 1) * 2
	if int(offset)+freeTableBytes > len(buf) {
		return nil, hfserrors.New(hfserrors.ErrBadNode, "node overflow: offset table does not fit")
	}
	return buf, nil
}

// usedBytes returns how many bytes the node's descriptor, records, and
// offset table currently occupy.
func (n *rawNode) usedBytes() int {
	total := types.BTNodeDescriptorSize
	for _, r := range n.records {
		total += len(r)
	}
	total += (len(n.records) + 1) * 2
	return total
}

func (n *rawNode) freeBytes() int {
	return int(n.size) - n.usedBytes()
}

func (n *rawNode) isLeaf() bool { return n.desc.Kind == types.BTNodeKindLeaf }
func (n *rawNode) isIndex() bool { return n.desc.Kind == types.BTNodeKindIndex }

func newRawNode(kind int8, height uint8, size uint32) *rawNode {
	return &rawNode{
		desc: types.BTNodeDescriptor{Kind: kind, Height: height},
		size: size,
	}
}

// childPointerSize is the fixed size of an index record's payload: a child
// node number (TN1150 page 35).
const childPointerSize = 4

func encodeChildPointer(nodeNum uint32) []byte {
	b := make([]byte, childPointerSize)
	endian.PutUint32(b, nodeNum)
	return b
}

func decodeChildPointer(b []byte) uint32 {
	return endian.ReadUint32(b)
}

package catalog

import (
	"github.com/go-hfsplus/hfsplus/internal/btree"
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/hfsunicode"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// compareKeys orders catalog keys by parentID first, then by case-folded
// name (spec.md §4.E.3: "Catalog uses [case-insensitive Unicode folded] in
// HFS+").
func compareKeys(a, b types.CatalogKey) int {
	switch {
	case a.ParentID < b.ParentID:
		return -1
	case a.ParentID > b.ParentID:
		return 1
	}
	return hfsunicode.CompareCaseFolded(a.NodeName, b.NodeName)
}

func codec() btree.Codec[types.CatalogKey, Record] {
	return btree.Codec[types.CatalogKey, Record]{
		Compare:      compareKeys,
		EncodeKey:    endian.WriteCatalogKey,
		DecodeKey:    endian.ReadCatalogKey,
		EncodeRecord: encodeRecord,
		DecodeRecord: decodeRecord,
	}
}

// threadKey is the key under which a CNID's thread record is stored: the
// catalog reserves parentID == that CNID with an empty name for it
// (TN1150 page 26).
func threadKey(cnid types.CNID) types.CatalogKey {
	return types.CatalogKey{ParentID: cnid, NodeName: types.HFSUniStr255{}}
}

// Package catalog implements the HFS+ catalog (spec.md §4.F): the single
// B-tree that holds every folder, file, and thread record for a volume,
// keyed by (parentID, name) with a name-keyed thread record at each CNID
// enabling reverse lookup.
package catalog

import (
	"github.com/go-hfsplus/hfsplus/internal/endian"
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// Record is the variant catalog B-tree leaf value: exactly one of Folder,
// File, or Thread is set, discriminated on disk by the shared RecordType
// field every one of them starts with (TN1150 page 25).
type Record struct {
	Folder *types.CatalogFolder
	File   *types.CatalogFile
	Thread *types.CatalogThread
}

// IsFolder reports whether this record describes a folder.
func (r Record) IsFolder() bool { return r.Folder != nil }

// IsFile reports whether this record describes a file.
func (r Record) IsFile() bool { return r.File != nil }

// IsThread reports whether this record is a folder- or file-thread record.
func (r Record) IsThread() bool { return r.Thread != nil }

func encodeRecord(r Record) []byte {
	switch {
	case r.Folder != nil:
		buf := make([]byte, endian.CatalogFolderSize)
		endian.WriteCatalogFolder(*r.Folder, buf)
		return buf
	case r.File != nil:
		buf := make([]byte, endian.CatalogFileSize)
		endian.WriteCatalogFile(*r.File, buf)
		return buf
	case r.Thread != nil:
		return endian.WriteCatalogThread(*r.Thread)
	default:
		return nil
	}
}

func decodeRecord(buf []byte) (Record, error) {
	if len(buf) < 2 {
		return Record{}, hfserrors.New(hfserrors.ErrBadNode, "truncated catalog record")
	}
	recType := int16(endian.ReadUint16(buf))
	switch recType {
	case types.RecTypeFolder:
		f, err := endian.ReadCatalogFolder(buf)
		if err != nil {
			return Record{}, err
		}
		return Record{Folder: &f}, nil
	case types.RecTypeFile:
		f, err := endian.ReadCatalogFile(buf)
		if err != nil {
			return Record{}, err
		}
		return Record{File: &f}, nil
	case types.RecTypeFolderThread, types.RecTypeFileThread:
		th, err := endian.ReadCatalogThread(buf)
		if err != nil {
			return Record{}, err
		}
		return Record{Thread: &th}, nil
	default:
		return Record{}, hfserrors.Newf(hfserrors.ErrBadFormat, "unknown catalog record type %d", recType)
	}
}

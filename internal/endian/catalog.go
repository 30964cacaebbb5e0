package endian

import (
	"github.com/go-hfsplus/hfsplus/internal/hfserrors"
	"github.com/go-hfsplus/hfsplus/internal/types"
)

// CatalogFolderSize is the fixed on-disk size of a CatalogFolder value (TN1150 page 27).
const CatalogFolderSize = 88

// CatalogFileSize is the fixed on-disk size of a CatalogFile value (TN1150 page 29).
const CatalogFileSize = 248

// CatalogThreadFixedSize is the size of a CatalogThread excluding its variable name.
const CatalogThreadFixedSize = 2 + 2 + 4

// ReadHFSUniStr255 decodes a length-prefixed UTF-16BE string starting at buf[0].
// It returns the decoded string and the number of bytes consumed.
func ReadHFSUniStr255(buf []byte) (types.HFSUniStr255, int, error) {
	if len(buf) < 2 {
		return types.HFSUniStr255{}, 0, hfserrors.New(hfserrors.ErrBadFormat, "truncated unicode string length")
	}
	n := be.Uint16(buf)
	need := 2 + int(n)*2
	if len(buf) < need {
		return types.HFSUniStr255{}, 0, hfserrors.New(hfserrors.ErrBadFormat, "truncated unicode string body")
	}
	units := make([]uint16, n)
	for i := 0; i < int(n); i++ {
		units[i] = be.Uint16(buf[2+i*2:])
	}
	return types.HFSUniStr255{Length: n, Unicode: units}, need, nil
}

// WriteHFSUniStr255 encodes s and returns the encoded bytes.
func WriteHFSUniStr255(s types.HFSUniStr255) []byte {
	out := make([]byte, 2+len(s.Unicode)*2)
	be.PutUint16(out, uint16(len(s.Unicode)))
	for i, u := range s.Unicode {
		be.PutUint16(out[2+i*2:], u)
	}
	return out
}

// ReadCatalogKey decodes a catalog B-tree key (a leading u16 key length,
// then parentID + name) starting at buf[0]. Returns the key and total bytes
// consumed including the key-length prefix and any padding.
func ReadCatalogKey(buf []byte) (types.CatalogKey, int, error) {
	if len(buf) < 2 {
		return types.CatalogKey{}, 0, hfserrors.New(hfserrors.ErrBadNode, "truncated catalog key")
	}
	keyLen := be.Uint16(buf)
	if len(buf) < int(keyLen)+2 {
		return types.CatalogKey{}, 0, hfserrors.New(hfserrors.ErrBadNode, "catalog key exceeds buffer")
	}
	body := buf[2 : 2+int(keyLen)]
	if len(body) < 4 {
		return types.CatalogKey{}, 0, hfserrors.New(hfserrors.ErrBadNode, "catalog key body too short")
	}
	parent := types.CNID(be.Uint32(body))
	name, _, err := ReadHFSUniStr255(body[4:])
	if err != nil {
		return types.CatalogKey{}, 0, err
	}
	return types.CatalogKey{ParentID: parent, NodeName: name}, 2 + int(keyLen), nil
}

// WriteCatalogKey encodes key with its leading key-length prefix.
func WriteCatalogKey(key types.CatalogKey) []byte {
	name := WriteHFSUniStr255(key.NodeName)
	body := make([]byte, 4+len(name))
	be.PutUint32(body, uint32(key.ParentID))
	copy(body[4:], name)
	out := make([]byte, 2+len(body))
	be.PutUint16(out, uint16(len(body)))
	copy(out[2:], body)
	return out
}

// ReadExtentKey decodes an extents-overflow B-tree key.
func ReadExtentKey(buf []byte) (types.ExtentKey, int, error) {
	if len(buf) < 2 {
		return types.ExtentKey{}, 0, hfserrors.New(hfserrors.ErrBadNode, "truncated extent key")
	}
	keyLen := be.Uint16(buf)
	if int(keyLen) != types.ExtentKeySize || len(buf) < 2+int(keyLen) {
		return types.ExtentKey{}, 0, hfserrors.New(hfserrors.ErrBadNode, "malformed extent key")
	}
	body := buf[2:]
	k := types.ExtentKey{
		ForkType:   body[0],
		Pad:        body[1],
		FileID:     types.CNID(be.Uint32(body[2:])),
		StartBlock: be.Uint32(body[6:]),
	}
	return k, 2 + int(keyLen), nil
}

// WriteExtentKey encodes key with its leading key-length prefix.
func WriteExtentKey(key types.ExtentKey) []byte {
	out := make([]byte, 2+types.ExtentKeySize)
	be.PutUint16(out, uint16(types.ExtentKeySize))
	out[2] = key.ForkType
	out[3] = key.Pad
	be.PutUint32(out[4:], uint32(key.FileID))
	be.PutUint32(out[8:], key.StartBlock)
	return out
}

// ReadCatalogFolder decodes a CatalogFolder value from buf.
func ReadCatalogFolder(buf []byte) (types.CatalogFolder, error) {
	if len(buf) < CatalogFolderSize {
		return types.CatalogFolder{}, hfserrors.New(hfserrors.ErrBadNode, "catalog folder record too short")
	}
	var f types.CatalogFolder
	f.RecordType = int16(be.Uint16(buf[0:]))
	f.Flags = be.Uint16(buf[2:])
	f.Valence = be.Uint32(buf[4:])
	f.FolderID = types.CNID(be.Uint32(buf[8:]))
	f.CreateDate = be.Uint32(buf[12:])
	f.ContentModDate = be.Uint32(buf[16:])
	f.AttributeModDate = be.Uint32(buf[20:])
	f.AccessDate = be.Uint32(buf[24:])
	f.BackupDate = be.Uint32(buf[28:])
	f.BSD = readBSDInfo(buf[32:])
	f.UserInfo = readFolderInfo(buf[48:])
	f.FinderInfo = readExtendedFolderInfo(buf[64:])
	f.TextEncoding = be.Uint32(buf[80:])
	f.Reserved = be.Uint32(buf[84:])
	return f, nil
}

// WriteCatalogFolder encodes f into buf (caller guarantees len >= CatalogFolderSize).
func WriteCatalogFolder(f types.CatalogFolder, buf []byte) {
	be.PutUint16(buf[0:], uint16(f.RecordType))
	be.PutUint16(buf[2:], f.Flags)
	be.PutUint32(buf[4:], f.Valence)
	be.PutUint32(buf[8:], uint32(f.FolderID))
	be.PutUint32(buf[12:], f.CreateDate)
	be.PutUint32(buf[16:], f.ContentModDate)
	be.PutUint32(buf[20:], f.AttributeModDate)
	be.PutUint32(buf[24:], f.AccessDate)
	be.PutUint32(buf[28:], f.BackupDate)
	writeBSDInfo(f.BSD, buf[32:])
	writeFolderInfo(f.UserInfo, buf[48:])
	writeExtendedFolderInfo(f.FinderInfo, buf[64:])
	be.PutUint32(buf[80:], f.TextEncoding)
	be.PutUint32(buf[84:], f.Reserved)
}

// ReadCatalogFile decodes a CatalogFile value from buf.
func ReadCatalogFile(buf []byte) (types.CatalogFile, error) {
	if len(buf) < CatalogFileSize {
		return types.CatalogFile{}, hfserrors.New(hfserrors.ErrBadNode, "catalog file record too short")
	}
	var f types.CatalogFile
	f.RecordType = int16(be.Uint16(buf[0:]))
	f.Flags = be.Uint16(buf[2:])
	f.Reserved1 = be.Uint32(buf[4:])
	f.FileID = types.CNID(be.Uint32(buf[8:]))
	f.CreateDate = be.Uint32(buf[12:])
	f.ContentModDate = be.Uint32(buf[16:])
	f.AttributeModDate = be.Uint32(buf[20:])
	f.AccessDate = be.Uint32(buf[24:])
	f.BackupDate = be.Uint32(buf[28:])
	f.BSD = readBSDInfo(buf[32:])
	f.UserInfo = readFileInfo(buf[48:])
	f.FinderInfo = readExtendedFileInfo(buf[64:])
	f.TextEncoding = be.Uint32(buf[80:])
	f.Reserved2 = be.Uint32(buf[84:])
	f.DataFork = ReadForkData(buf[88:])
	f.ResourceFork = ReadForkData(buf[168:])
	return f, nil
}

// WriteCatalogFile encodes f into buf (caller guarantees len >= CatalogFileSize).
func WriteCatalogFile(f types.CatalogFile, buf []byte) {
	be.PutUint16(buf[0:], uint16(f.RecordType))
	be.PutUint16(buf[2:], f.Flags)
	be.PutUint32(buf[4:], f.Reserved1)
	be.PutUint32(buf[8:], uint32(f.FileID))
	be.PutUint32(buf[12:], f.CreateDate)
	be.PutUint32(buf[16:], f.ContentModDate)
	be.PutUint32(buf[20:], f.AttributeModDate)
	be.PutUint32(buf[24:], f.AccessDate)
	be.PutUint32(buf[28:], f.BackupDate)
	writeBSDInfo(f.BSD, buf[32:])
	writeFileInfo(f.UserInfo, buf[48:])
	writeExtendedFileInfo(f.FinderInfo, buf[64:])
	be.PutUint32(buf[80:], f.TextEncoding)
	be.PutUint32(buf[84:], f.Reserved2)
	WriteForkData(f.DataFork, buf[88:])
	WriteForkData(f.ResourceFork, buf[168:])
}

// ReadCatalogThread decodes a CatalogThread value (fixed part plus variable name).
func ReadCatalogThread(buf []byte) (types.CatalogThread, error) {
	if len(buf) < CatalogThreadFixedSize {
		return types.CatalogThread{}, hfserrors.New(hfserrors.ErrBadNode, "catalog thread record too short")
	}
	var t types.CatalogThread
	t.RecordType = int16(be.Uint16(buf[0:]))
	t.Reserved = int16(be.Uint16(buf[2:]))
	t.ParentID = types.CNID(be.Uint32(buf[4:]))
	name, _, err := ReadHFSUniStr255(buf[8:])
	if err != nil {
		return types.CatalogThread{}, err
	}
	t.NodeName = name
	return t, nil
}

// WriteCatalogThread encodes t.
func WriteCatalogThread(t types.CatalogThread) []byte {
	name := WriteHFSUniStr255(t.NodeName)
	out := make([]byte, CatalogThreadFixedSize+len(name))
	be.PutUint16(out[0:], uint16(t.RecordType))
	be.PutUint16(out[2:], uint16(t.Reserved))
	be.PutUint32(out[4:], uint32(t.ParentID))
	copy(out[8:], name)
	return out
}

func readBSDInfo(buf []byte) types.BSDInfo {
	return types.BSDInfo{
		OwnerID:    be.Uint32(buf[0:]),
		GroupID:    be.Uint32(buf[4:]),
		AdminFlags: buf[8],
		OwnerFlags: buf[9],
		FileMode:   be.Uint16(buf[10:]),
		Special:    be.Uint32(buf[12:]),
	}
}

func writeBSDInfo(b types.BSDInfo, buf []byte) {
	be.PutUint32(buf[0:], b.OwnerID)
	be.PutUint32(buf[4:], b.GroupID)
	buf[8] = b.AdminFlags
	buf[9] = b.OwnerFlags
	be.PutUint16(buf[10:], b.FileMode)
	be.PutUint32(buf[12:], b.Special)
}

func readRect(buf []byte) types.Rect {
	return types.Rect{
		Top:    int16(be.Uint16(buf[0:])),
		Left:   int16(be.Uint16(buf[2:])),
		Bottom: int16(be.Uint16(buf[4:])),
		Right:  int16(be.Uint16(buf[6:])),
	}
}

func writeRect(r types.Rect, buf []byte) {
	be.PutUint16(buf[0:], uint16(r.Top))
	be.PutUint16(buf[2:], uint16(r.Left))
	be.PutUint16(buf[4:], uint16(r.Bottom))
	be.PutUint16(buf[6:], uint16(r.Right))
}

func readPoint(buf []byte) types.Point {
	return types.Point{V: int16(be.Uint16(buf[0:])), H: int16(be.Uint16(buf[2:]))}
}

func writePoint(p types.Point, buf []byte) {
	be.PutUint16(buf[0:], uint16(p.V))
	be.PutUint16(buf[2:], uint16(p.H))
}

func readFolderInfo(buf []byte) types.FolderInfo {
	return types.FolderInfo{
		WindowBounds:  readRect(buf[0:]),
		FinderFlags:   be.Uint16(buf[8:]),
		Location:      readPoint(buf[10:]),
		ReservedField: be.Uint16(buf[14:]),
	}
}

func writeFolderInfo(f types.FolderInfo, buf []byte) {
	writeRect(f.WindowBounds, buf[0:])
	be.PutUint16(buf[8:], f.FinderFlags)
	writePoint(f.Location, buf[10:])
	be.PutUint16(buf[14:], f.ReservedField)
}

func readExtendedFolderInfo(buf []byte) types.ExtendedFolderInfo {
	return types.ExtendedFolderInfo{
		ScrollPosition:      readPoint(buf[0:]),
		Reserved1:           int32(be.Uint32(buf[4:])),
		ExtendedFinderFlags: be.Uint16(buf[8:]),
		Reserved2:           int16(be.Uint16(buf[10:])),
		PutAwayFolderID:     types.CNID(be.Uint32(buf[12:])),
	}
}

func writeExtendedFolderInfo(f types.ExtendedFolderInfo, buf []byte) {
	writePoint(f.ScrollPosition, buf[0:])
	be.PutUint32(buf[4:], uint32(f.Reserved1))
	be.PutUint16(buf[8:], f.ExtendedFinderFlags)
	be.PutUint16(buf[10:], uint16(f.Reserved2))
	be.PutUint32(buf[12:], uint32(f.PutAwayFolderID))
}

func readFileInfo(buf []byte) types.FileInfo {
	var fi types.FileInfo
	copy(fi.FileType[:], buf[0:4])
	copy(fi.FileCreator[:], buf[4:8])
	fi.FinderFlags = be.Uint16(buf[8:])
	fi.Location = readPoint(buf[10:])
	fi.ReservedField = be.Uint16(buf[14:])
	return fi
}

func writeFileInfo(fi types.FileInfo, buf []byte) {
	copy(buf[0:4], fi.FileType[:])
	copy(buf[4:8], fi.FileCreator[:])
	be.PutUint16(buf[8:], fi.FinderFlags)
	writePoint(fi.Location, buf[10:])
	be.PutUint16(buf[14:], fi.ReservedField)
}

func readExtendedFileInfo(buf []byte) types.ExtendedFileInfo {
	var e types.ExtendedFileInfo
	for i := range e.Reserved1 {
		e.Reserved1[i] = int16(be.Uint16(buf[i*2:]))
	}
	e.ExtendedFinderFlags = be.Uint16(buf[8:])
	e.Reserved2 = int16(be.Uint16(buf[10:]))
	e.PutAwayFolderID = types.CNID(be.Uint32(buf[12:]))
	return e
}

func writeExtendedFileInfo(e types.ExtendedFileInfo, buf []byte) {
	for i, v := range e.Reserved1 {
		be.PutUint16(buf[i*2:], uint16(v))
	}
	be.PutUint16(buf[8:], e.ExtendedFinderFlags)
	be.PutUint16(buf[10:], uint16(e.Reserved2))
	be.PutUint32(buf[12:], uint32(e.PutAwayFolderID))
}

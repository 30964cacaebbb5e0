package types

// CatalogFolder is the value half of a folder catalog record
// (TN1150 pages 27-29).
type CatalogFolder struct {
	RecordType      int16
	Flags           uint16
	Valence         uint32 // number of direct children, spec.md §8.1 invariant target
	FolderID        CNID
	CreateDate      uint32
	ContentModDate  uint32
	AttributeModDate uint32
	AccessDate      uint32
	BackupDate      uint32
	BSD             BSDInfo
	UserInfo        FolderInfo
	FinderInfo      ExtendedFolderInfo
	TextEncoding    uint32
	Reserved        uint32
}

// CatalogFile is the value half of a file catalog record
// (TN1150 pages 29-31).
type CatalogFile struct {
	RecordType      int16
	Flags           uint16
	Reserved1       uint32
	FileID          CNID
	CreateDate      uint32
	ContentModDate  uint32
	AttributeModDate uint32
	AccessDate      uint32
	BackupDate      uint32
	BSD             BSDInfo
	UserInfo        FileInfo
	FinderInfo      ExtendedFileInfo
	TextEncoding    uint32
	Reserved2       uint32
	DataFork        ForkData
	ResourceFork    ForkData
}

// IsHardLink reports whether this file record is a hard-link redirect
// (type/creator "hlnk"/"hfs+", TN1150 "Hard Links" page 31).
func (f *CatalogFile) IsHardLink() bool {
	return string(f.UserInfo.FileType[:]) == HardLinkFileType &&
		string(f.UserInfo.FileCreator[:]) == HardLinkCreator
}

// CatalogThread is the value half of a folder- or file-thread record
// (TN1150 page 26): it names a CNID's parent, enabling reverse lookup.
type CatalogThread struct {
	RecordType int16
	Reserved   int16
	ParentID   CNID
	NodeName   HFSUniStr255
}

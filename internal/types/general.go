package types

// Point is the on-disk QuickDraw point used by Finder info (TN1150 page 28).
type Point struct {
	V, H int16
}

// Rect is the on-disk QuickDraw rectangle used by Finder info (TN1150 page 28).
type Rect struct {
	Top, Left, Bottom, Right int16
}

// FolderInfo is the Finder info carried in a folder catalog record
// (TN1150 page 28).
type FolderInfo struct {
	WindowBounds Rect
	FinderFlags  uint16
	Location     Point
	ReservedField uint16
}

// ExtendedFolderInfo is the second 16-byte Finder-info block of a folder
// record (TN1150 page 29).
type ExtendedFolderInfo struct {
	ScrollPosition Point
	Reserved1      int32
	ExtendedFinderFlags uint16
	Reserved2      int16
	PutAwayFolderID CNID
}

// FileInfo is the Finder info carried in a file catalog record
// (TN1150 page 30).
type FileInfo struct {
	FileType    [4]byte
	FileCreator [4]byte
	FinderFlags uint16
	Location    Point
	ReservedField uint16
}

// ExtendedFileInfo is the second 16-byte Finder-info block of a file record
// (TN1150 page 30).
type ExtendedFileInfo struct {
	Reserved1       [4]int16
	ExtendedFinderFlags uint16
	Reserved2       int16
	PutAwayFolderID CNID
}

// BSDInfo is the POSIX permission/ownership block embedded in both folder
// and file catalog records (TN1150 page 26).
type BSDInfo struct {
	OwnerID       uint32
	GroupID       uint32
	AdminFlags    uint8
	OwnerFlags    uint8
	FileMode      uint16
	Special       uint32 // inode/linkcount union: rdev for device files, link count for hard-link inodes
}

// FileMode bits, a subset of POSIX S_IF*/S_IS* values used in BSDInfo.FileMode.
const (
	SIFMT   = 0170000
	SIFDIR  = 0040000
	SIFREG  = 0100000
	SIFLNK  = 0120000
	SISUID  = 04000
	SISGID  = 02000
	SISVTX  = 01000
)

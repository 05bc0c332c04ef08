package hfsplus

import (
	"time"
)

const (
	// volumeHeaderOffset is the image offset of the volume header.
	volumeHeaderOffset = 1024
	volumeHeaderSize   = 512

	signatureHFSPlus = 0x482B // "H+"
	signatureHFSX    = 0x4858 // "HX"

	nodeDescriptorSize = 14
	headerRecordSize   = 106

	// minNodeSize and maxNodeSize bound the B-tree node size.
	minNodeSize = 512
	maxNodeSize = 32768

	nodeKindLeaf   = -1
	nodeKindHeader = 1

	recordTypeFolder       = 1
	recordTypeFile         = 2
	recordTypeFolderThread = 3
	recordTypeFileThread   = 4

	folderRecordSize = 88
	fileRecordSize   = 248

	// RootParentID is the parent recorded for the root folder.
	RootParentID = 1

	// RootFolderID is the CNID of the root folder.
	RootFolderID = 2

	// FirstUserCatalogID is the first CNID handed to user files.
	FirstUserCatalogID = 16
)

// ExtentDescriptor is one contiguous run of allocation blocks.
type ExtentDescriptor struct {
	StartBlock uint32
	BlockCount uint32
}

// ForkData describes the location and size of a fork. Only the first eight
// extents live here; further extents are in the extents overflow file.
type ForkData struct {
	LogicalSize uint64
	ClumpSize   uint32
	TotalBlocks uint32
	Extents     [8]ExtentDescriptor
}

// VolumeHeader is the HFS+ volume header stored at offset 1024.
type VolumeHeader struct {
	Signature          uint16
	Version            uint16
	Attributes         uint32
	LastMountedVersion uint32
	JournalInfoBlock   uint32

	CreateDate  uint32
	ModifyDate  uint32
	BackupDate  uint32
	CheckedDate uint32

	FileCount   uint32
	FolderCount uint32

	BlockSize      uint32
	TotalBlocks    uint32
	FreeBlocks     uint32
	NextAllocation uint32
	RsrcClumpSize  uint32
	DataClumpSize  uint32
	NextCatalogID  uint32

	WriteCount      uint32
	EncodingsBitmap uint64
	FinderInfo      [8]uint32

	AllocationFile ForkData
	ExtentsFile    ForkData
	CatalogFile    ForkData
	AttributesFile ForkData
	StartupFile    ForkData
}

// NodeDescriptor starts every B-tree node.
type NodeDescriptor struct {
	FLink      uint32
	BLink      uint32
	Kind       int8
	Height     uint8
	NumRecords uint16
	Reserved   uint16
}

// HeaderRecord is the first record of the B-tree header node.
type HeaderRecord struct {
	TreeDepth      uint16
	RootNode       uint32
	LeafRecords    uint32
	FirstLeafNode  uint32
	LastLeafNode   uint32
	NodeSize       uint16
	MaxKeyLength   uint16
	TotalNodes     uint32
	FreeNodes      uint32
	Reserved1      uint16
	ClumpSize      uint32
	BTreeType      uint8
	KeyCompareType uint8
	Attributes     uint32
	Reserved3      [16]uint32
}

// BSDInfo holds the permissions block of a catalog record.
type BSDInfo struct {
	OwnerID    uint32
	GroupID    uint32
	AdminFlags uint8
	OwnerFlags uint8
	FileMode   uint16
	Special    uint32
}

// catalogDates are the five timestamps shared by folder and file records.
type catalogDates struct {
	CreateDate       uint32
	ContentModDate   uint32
	AttributeModDate uint32
	AccessDate       uint32
	BackupDate       uint32
}

// FolderRecord is a catalog folder record.
type FolderRecord struct {
	RecordType   int16
	Flags        uint16
	Valence      uint32
	FolderID     uint32
	Dates        catalogDates
	Permissions  BSDInfo
	UserInfo     [16]byte
	FinderInfo   [16]byte
	TextEncoding uint32
	FolderCount  uint32
}

// FileRecord is a catalog file record.
type FileRecord struct {
	RecordType   int16
	Flags        uint16
	Reserved1    uint32
	FileID       uint32
	Dates        catalogDates
	Permissions  BSDInfo
	UserInfo     [16]byte
	FinderInfo   [16]byte
	TextEncoding uint32
	Reserved2    uint32
	DataFork     ForkData
	ResourceFork ForkData
}

// hfsEpoch is the HFS+ date origin, 1904-01-01 00:00:00 UTC.
var hfsEpoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// hfsTime converts an HFS+ date. Zero means "never set".
func hfsTime(v uint32) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return hfsEpoch.Add(time.Duration(v) * time.Second)
}

// Package catalog models a filesystem catalog: the on-disk table that maps
// identifiers (inodes, CNIDs) to names and metadata records.
//
// The package defines the Filesystem handle consumed by the directory walker,
// the InodeStore that backs it, and the catalog key name decoding shared by
// every catalog-based format.
package catalog

import (
	"context"
	"time"

	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
)

// Inum is a metadata address within a filesystem's declared range.
type Inum uint64

// RecordType is the on-disk catalog record type of an inode.
type RecordType uint16

const (
	// RecordFolder is a directory record.
	RecordFolder RecordType = 1

	// RecordFile is a regular file record.
	RecordFile RecordType = 2
)

func (t RecordType) String() string {
	switch t {
	case RecordFolder:
		return "folder"
	case RecordFile:
		return "file"
	default:
		return "unknown"
	}
}

// ErrNotFound is the errors.Is target for lookups of unknown inodes.
var ErrNotFound = diag.Sentinel(diag.FSInumNum)

// Inode is the metadata of one catalog record.
type Inode struct {
	// Inum is the record's identifier
	Inum Inum

	// Parent is the identifier of the containing directory
	Parent Inum

	// Type is the catalog record type
	Type RecordType

	// KeyOffset is the image-relative byte offset of the record's catalog
	// key (the 2-byte key length field)
	KeyOffset int64

	// Allocated is false for records recovered from unallocated space
	Allocated bool

	// Size is the logical size of the data fork (files only)
	Size uint64

	// Valence is the number of direct children (folders only)
	Valence uint32

	// OwnerID, GroupID and Mode come from the BSD permissions block
	OwnerID uint32
	GroupID uint32
	Mode    uint16

	CreateTime time.Time
	ModifyTime time.Time
	ChangeTime time.Time
	AccessTime time.Time
	BackupTime time.Time
}

// IsDir reports whether the inode is a directory record.
func (i *Inode) IsDir() bool {
	return i.Type == RecordFolder
}

// Filesystem is the handle a walk operates on.
//
// Implementations report read failures as filesystem-category *diag.Error
// values so that callers can propagate them uniformly.
type Filesystem interface {
	// FirstInum and LastInum bound the valid identifier range (inclusive)
	FirstInum() Inum
	LastInum() Inum

	// RootInum is the identifier of the root directory
	RootInum() Inum

	// ByteOrder is the byte order of on-disk structures
	ByteOrder() endian.Order

	// Lookup returns the metadata of inum or an error matching ErrNotFound
	Lookup(inum Inum) (*Inode, error)

	// Read returns exactly n bytes at the image-relative offset off
	Read(off int64, n int) ([]byte, error)
}

// ChildLister is implemented by filesystems that keep a parent to children
// index. Walkers use it instead of scanning the whole identifier range.
type ChildLister interface {
	Children(parent Inum) ([]Inum, error)
}

// InodeStore persists the inode table of an opened catalog.
type InodeStore interface {
	// Put stores or replaces an inode and indexes it under its parent
	Put(ctx context.Context, inode *Inode) error

	// Get returns the inode or an error matching ErrNotFound
	Get(ctx context.Context, inum Inum) (*Inode, error)

	// Children returns the identifiers whose parent is parent, in
	// ascending order
	Children(ctx context.Context, parent Inum) ([]Inum, error)

	// Count returns the number of stored inodes
	Count(ctx context.Context) (int, error)

	Close() error
}

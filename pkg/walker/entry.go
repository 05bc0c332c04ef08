package walker

import (
	"strings"

	"github.com/marmos91/catwalk/pkg/catalog"
)

// Flags selects which entries a walk emits and whether it recurses.
type Flags uint32

const (
	// FlagAlloc emits allocated entries
	FlagAlloc Flags = 1 << iota
	// FlagUnalloc emits entries recovered from unallocated records
	FlagUnalloc
	// FlagDir emits directories
	FlagDir
	// FlagReg emits regular files
	FlagReg
	// FlagRecurse descends into subdirectories
	FlagRecurse
)

const (
	allocMask = FlagAlloc | FlagUnalloc
	kindMask  = FlagDir | FlagReg
)

// normalize fills in "both" for an empty allocation or kind selection.
func (f Flags) normalize() Flags {
	if f&allocMask == 0 {
		f |= allocMask
	}
	if f&kindMask == 0 {
		f |= kindMask
	}
	return f
}

// matches reports whether an entry carrying entry flags passes the filter.
func (f Flags) matches(entry Flags) bool {
	return f&entry&allocMask != 0 && f&entry&kindMask != 0
}

func (f Flags) String() string {
	var parts []string
	for _, n := range []struct {
		flag Flags
		name string
	}{
		{FlagAlloc, "alloc"},
		{FlagUnalloc, "unalloc"},
		{FlagDir, "dir"},
		{FlagReg, "reg"},
		{FlagRecurse, "recurse"},
	} {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Entry is one name-to-metadata binding produced by a walk.
//
// Each callback receives a fresh Entry; it may be retained.
type Entry struct {
	// Inum is the inode the name refers to
	Inum catalog.Inum

	// Parent is the directory holding the name. For "." and ".." it is the
	// directory being listed.
	Parent catalog.Inum

	// Name is the printable name, "." or ".." for the synthesized entries
	Name string

	// Type is RecordFolder or RecordFile
	Type catalog.RecordType

	// Flags carries exactly one allocation bit and one kind bit
	Flags Flags

	// Path is the directory prefix below the walk start, "" for entries of
	// the start directory, otherwise slash terminated ("docs/old/")
	Path string

	// Depth is the recursion depth of the containing directory
	Depth int

	// Meta is the inode metadata, nil when the lookup failed (e.g. the
	// ".." of a directory whose parent has no record)
	Meta *catalog.Inode
}

// FullPath is Path joined with Name.
func (e *Entry) FullPath() string {
	return e.Path + e.Name
}

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool {
	return e.Type == catalog.RecordFolder
}

// IsDot reports whether the entry is a synthesized "." or "..".
func (e *Entry) IsDot() bool {
	return e.Name == "." || e.Name == ".."
}

// Action is a visitor's verdict on whether the walk goes on.
type Action int

const (
	// Continue keeps walking
	Continue Action = iota
	// Stop ends the walk successfully with no further visits
	Stop
)

// Visitor receives the entries of a walk.
type Visitor interface {
	Visit(fs catalog.Filesystem, e *Entry) Action
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(fs catalog.Filesystem, e *Entry) Action

func (f VisitorFunc) Visit(fs catalog.Filesystem, e *Entry) Action {
	return f(fs, e)
}

func entryFlags(inode *catalog.Inode) Flags {
	f := FlagAlloc
	if !inode.Allocated {
		f = FlagUnalloc
	}
	if inode.IsDir() {
		return f | FlagDir
	}
	return f | FlagReg
}

// Package fixture builds synthetic catalogs for the integration tests.
package fixture

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/endian"
)

const (
	RootParent catalog.Inum = 1
	Root       catalog.Inum = 2

	firstChild catalog.Inum = 16
)

// Tree is a catalog of dirs directories below the root, each holding files
// regular files. Image carries one big-endian catalog key per non-root
// inode; Inodes point their KeyOffset at it.
type Tree struct {
	Image  []byte
	Inodes []*catalog.Inode
	Last   catalog.Inum
}

// NewTree builds a Tree. Directories are named d0000, d0001, ... and files
// f0000.bin, f0001.bin, ...
func NewTree(dirs, files int) *Tree {
	t := &Tree{Image: make([]byte, 512)}
	ts := time.Date(2012, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Inodes = append(t.Inodes, &catalog.Inode{
		Inum: Root, Parent: RootParent, Type: catalog.RecordFolder,
		KeyOffset: t.key(RootParent, ""), Allocated: true,
		Valence: uint32(dirs), Mode: 0o40755, ModifyTime: ts,
	})

	next := firstChild
	for d := 0; d < dirs; d++ {
		dir := next
		next++
		t.Inodes = append(t.Inodes, &catalog.Inode{
			Inum: dir, Parent: Root, Type: catalog.RecordFolder,
			KeyOffset: t.key(Root, fmt.Sprintf("d%04d", d)), Allocated: true,
			Valence: uint32(files), Mode: 0o40755, ModifyTime: ts,
		})
		for f := 0; f < files; f++ {
			t.Inodes = append(t.Inodes, &catalog.Inode{
				Inum: next, Parent: dir, Type: catalog.RecordFile,
				KeyOffset: t.key(dir, fmt.Sprintf("f%04d.bin", f)), Allocated: f%10 != 9,
				Size: uint64(f) * 512, Mode: 0o100644, ModifyTime: ts,
			})
			next++
		}
	}
	t.Last = next - 1
	return t
}

// Config is the VolumeConfig matching the tree.
func (t *Tree) Config() catalog.VolumeConfig {
	return catalog.VolumeConfig{
		Name:  "fixture",
		Order: endian.Big,
		First: RootParent,
		Last:  t.Last,
		Root:  Root,
	}
}

// key appends a catalog key for name under parent and returns its offset.
func (t *Tree) key(parent catalog.Inum, name string) int64 {
	units := utf16.Encode([]rune(name))
	rec := make([]byte, catalog.KeyLengthSize+catalog.KeyHeaderSize+2*len(units))
	binary.BigEndian.PutUint16(rec[0:], uint16(catalog.KeyHeaderSize+2*len(units)))
	binary.BigEndian.PutUint32(rec[2:], uint32(parent))
	binary.BigEndian.PutUint16(rec[6:], uint16(len(units)))
	for i, u := range units {
		binary.BigEndian.PutUint16(rec[8+2*i:], u)
	}

	off := int64(len(t.Image))
	t.Image = append(t.Image, rec...)
	return off
}

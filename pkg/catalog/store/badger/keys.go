package badger

import (
	"encoding/binary"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/endian"
)

// Database Key Namespace Design
// ==============================
//
// Data Type        Prefix  Key Format                     Value
// ==============================================================================
// Inode            "i:"    i:<inum>                       inodeRecord (XDR)
// Children Index   "c:"    c:<parent>:<child>             empty
//
// Identifiers are written as 8-byte big-endian integers so that the
// lexicographic order badger iterates in equals numeric order: a prefix scan
// of "c:<parent>:" yields children sorted by inum without a sort step.

const (
	prefixInode = "i:"
	prefixChild = "c:"
)

func putInum(b []byte, inum catalog.Inum) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(inum))
}

// keyInode generates the key for an inode record.
func keyInode(inum catalog.Inum) []byte {
	return putInum([]byte(prefixInode), inum)
}

// keyChildPrefix generates the prefix for range scanning the children of
// parent.
func keyChildPrefix(parent catalog.Inum) []byte {
	return append(putInum([]byte(prefixChild), parent), ':')
}

// keyChild generates the index key linking parent to child.
func keyChild(parent, child catalog.Inum) []byte {
	return putInum(keyChildPrefix(parent), child)
}

// childFromKey extracts the child inum from a children index key.
func childFromKey(key []byte) (catalog.Inum, bool) {
	// "c:" + 8 + ":" + 8
	if len(key) != len(prefixChild)+8+1+8 || string(key[:len(prefixChild)]) != prefixChild {
		return 0, false
	}
	child, err := endian.ReadU64(endian.Big, key, len(key)-8)
	if err != nil {
		return 0, false
	}
	return catalog.Inum(child), true
}

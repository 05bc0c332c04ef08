package catalog

import (
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/marmos91/catwalk/pkg/textconv"
)

// Catalog key layout:
//
//	+0  key length   uint16  (bytes after this field)
//	+2  parent id    uint32
//	+6  name length  uint16  (units)
//	+8  name         UTF-16, key length - 6 bytes
const (
	KeyLengthSize = 2
	KeyHeaderSize = 6

	keyNameOffset = KeyLengthSize + KeyHeaderSize

	// MaxNameLen is the longest decodable name in wide units.
	MaxNameLen = 255
)

// ReadKeyName decodes the name stored in the catalog key at keyOffset.
//
// The name length is derived from the key length. A key length too short to
// hold the fixed header, or one implying a name longer than MaxNameLen units,
// is rejected with FSInodeCorrupt before anything else is read.
func ReadKeyName(fs Filesystem, keyOffset int64) (string, error) {
	uni, err := readKeyNameBytes(fs, keyOffset)
	if err != nil {
		return "", err
	}
	return textconv.ToPrintable(fs.ByteOrder(), uni, len(uni)/2, MaxNameLen+1), nil
}

// ReadKeyUnicodeName is ReadKeyName without the printable-ASCII reduction:
// the whole name is decoded as UTF-16.
func ReadKeyUnicodeName(fs Filesystem, keyOffset int64) (string, error) {
	uni, err := readKeyNameBytes(fs, keyOffset)
	if err != nil {
		return "", err
	}
	name, err := textconv.DecodeUTF16(fs.ByteOrder(), uni)
	if err != nil {
		return "", diag.Wrap(diag.FSUnicode, err, "catalog key at offset %d", keyOffset)
	}
	return name, nil
}

func readKeyNameBytes(fs Filesystem, keyOffset int64) ([]byte, error) {
	raw, err := fs.Read(keyOffset, KeyLengthSize)
	if err != nil {
		return nil, err
	}
	keyLen := int(endian.Uint16(fs.ByteOrder(), raw))

	if keyLen < KeyHeaderSize {
		return nil, diag.New(diag.FSInodeCorrupt,
			"catalog key length %d at offset %d is shorter than the %d byte header", keyLen, keyOffset, KeyHeaderSize)
	}

	nameBytes := keyLen - KeyHeaderSize
	if nameBytes > MaxNameLen*2 {
		return nil, diag.New(diag.FSInodeCorrupt,
			"catalog key at offset %d holds a %d byte name, limit is %d", keyOffset, nameBytes, MaxNameLen*2)
	}

	return fs.Read(keyOffset+keyNameOffset, nameBytes)
}

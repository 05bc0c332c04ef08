package hfsplus

import (
	"encoding/binary"
	"unicode/utf16"
)

const (
	testBlockSize = 4096
	testNodeSize  = 4096

	// testDate is 2007-12-20 20:32:38 UTC in HFS+ time.
	testDate = 3281027558
)

var be = binary.BigEndian

// catalogBuilder assembles a minimal HFS+ image: the volume header, a
// catalog header node in block 1, an unused block 2 filled with garbage,
// and leaf nodes from block 3 on. The catalog fork therefore has two
// extents.
type catalogBuilder struct {
	leaves    [][][]byte
	links     map[int]uint32
	signature uint16
	nextID    uint32
	firstLeaf uint32
	nodeSize  uint16
}

func newCatalogBuilder() *catalogBuilder {
	return &catalogBuilder{
		signature: signatureHFSPlus,
		nextID:    100,
		firstLeaf: 1,
		nodeSize:  testNodeSize,
		links:     map[int]uint32{},
	}
}

// leaf appends a leaf node holding records.
func (b *catalogBuilder) leaf(records ...[]byte) *catalogBuilder {
	b.leaves = append(b.leaves, records)
	return b
}

func keyBytes(parent uint32, name string) []byte {
	units := utf16.Encode([]rune(name))
	key := make([]byte, 8+2*len(units))
	be.PutUint16(key[0:], uint16(6+2*len(units)))
	be.PutUint32(key[2:], parent)
	be.PutUint16(key[6:], uint16(len(units)))
	for i, u := range units {
		be.PutUint16(key[8+2*i:], u)
	}
	return key
}

func folderRec(parent, id uint32, name string, valence uint32) []byte {
	data := make([]byte, folderRecordSize)
	be.PutUint16(data[0:], recordTypeFolder)
	be.PutUint32(data[4:], valence)
	be.PutUint32(data[8:], id)
	be.PutUint32(data[12:], testDate)
	be.PutUint32(data[16:], testDate+60)
	be.PutUint32(data[32:], 501)
	be.PutUint32(data[36:], 20)
	be.PutUint16(data[42:], 0o40755)
	return append(keyBytes(parent, name), data...)
}

func fileRec(parent, id uint32, name string, size uint64) []byte {
	data := make([]byte, fileRecordSize)
	be.PutUint16(data[0:], recordTypeFile)
	be.PutUint32(data[8:], id)
	be.PutUint32(data[12:], testDate)
	be.PutUint32(data[16:], testDate+60)
	be.PutUint32(data[24:], testDate+120)
	be.PutUint32(data[32:], 501)
	be.PutUint32(data[36:], 20)
	be.PutUint16(data[42:], 0o100644)
	be.PutUint64(data[88:], size)
	return append(keyBytes(parent, name), data...)
}

func threadRec(id, parent uint32, name string) []byte {
	data := make([]byte, 8)
	be.PutUint16(data[0:], recordTypeFolderThread)
	be.PutUint32(data[4:], parent)
	return append(append(keyBytes(id, ""), data...), keyBytes(parent, name)[6:]...)
}

func buildNode(size int, kind int8, flink uint32, records [][]byte) []byte {
	node := make([]byte, size)
	be.PutUint32(node[0:], flink)
	node[8] = byte(kind)
	node[9] = 1
	be.PutUint16(node[10:], uint16(len(records)))

	off := nodeDescriptorSize
	for i, r := range records {
		copy(node[off:], r)
		be.PutUint16(node[size-2*(i+1):], uint16(off))
		off += len(r)
	}
	be.PutUint16(node[size-2*(len(records)+1):], uint16(off))
	return node
}

func (b *catalogBuilder) build() []byte {
	nLeaves := len(b.leaves)
	totalNodes := 1 + nLeaves
	img := make([]byte, testBlockSize*(3+nLeaves))

	for i := 2 * testBlockSize; i < 3*testBlockSize; i++ {
		img[i] = 0xEE
	}

	vh := img[volumeHeaderOffset : volumeHeaderOffset+volumeHeaderSize]
	be.PutUint16(vh[0:], b.signature)
	be.PutUint16(vh[2:], 4)
	be.PutUint32(vh[40:], testBlockSize)
	be.PutUint32(vh[44:], uint32(len(img)/testBlockSize))
	be.PutUint32(vh[64:], b.nextID)

	fork := vh[272:352]
	be.PutUint64(fork[0:], uint64(totalNodes)*testBlockSize)
	be.PutUint32(fork[12:], uint32(totalNodes))
	be.PutUint32(fork[16:], 1)
	be.PutUint32(fork[20:], 1)
	if nLeaves > 0 {
		be.PutUint32(fork[24:], 3)
		be.PutUint32(fork[28:], uint32(nLeaves))
	}

	hdr := make([]byte, headerRecordSize)
	be.PutUint16(hdr[0:], 1)
	be.PutUint32(hdr[2:], b.firstLeaf)
	be.PutUint32(hdr[10:], b.firstLeaf)
	be.PutUint32(hdr[14:], uint32(nLeaves))
	be.PutUint16(hdr[18:], b.nodeSize)
	be.PutUint16(hdr[20:], 516)
	be.PutUint32(hdr[22:], uint32(totalNodes))
	copy(img[testBlockSize:], buildNode(testNodeSize, nodeKindHeader, 0, [][]byte{hdr}))

	for i, records := range b.leaves {
		flink := uint32(0)
		if i+1 < nLeaves {
			flink = uint32(i + 2)
		}
		if link, ok := b.links[i]; ok {
			flink = link
		}
		copy(img[(3+i)*testBlockSize:], buildNode(testNodeSize, nodeKindLeaf, flink, records))
	}
	return img
}

package hfsplus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/catalog/store/memory"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/marmos91/catwalk/pkg/image"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *catalogBuilder {
	return newCatalogBuilder().
		leaf(
			folderRec(RootParentID, RootFolderID, "Macintosh HD", 2),
			threadRec(RootFolderID, RootParentID, "Macintosh HD"),
			folderRec(RootFolderID, 16, "docs", 1),
		).
		leaf(
			fileRec(16, 17, "a.txt", 1234),
			fileRec(RootFolderID, 18, "b.txt", 0),
		)
}

func open(t *testing.T, img []byte, opts Options) (*catalog.Volume, LoadStats, error) {
	t.Helper()
	vol, stats, err := OpenWithStats(context.Background(), image.FromBytes(img), memory.NewMemoryInodeStore(), opts)
	if vol != nil {
		t.Cleanup(func() { vol.Close() })
	}
	return vol, stats, err
}

func TestOpen_LoadsCatalog(t *testing.T) {
	vol, stats, err := open(t, sampleTree().build(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "hfsplus", vol.Name())
	assert.Equal(t, endian.Big, vol.ByteOrder())
	assert.Equal(t, catalog.Inum(RootParentID), vol.FirstInum())
	assert.Equal(t, catalog.Inum(99), vol.LastInum())
	assert.Equal(t, catalog.Inum(RootFolderID), vol.RootInum())

	assert.Equal(t, LoadStats{Nodes: 2, Folders: 2, Files: 2, Threads: 1}, stats)

	children, err := vol.Children(RootFolderID)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Inum{16, 18}, children)

	root, err := vol.Lookup(RootFolderID)
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, catalog.Inum(RootParentID), root.Parent)
	assert.Equal(t, uint32(2), root.Valence)
	assert.Equal(t, uint16(0o40755), root.Mode)
}

func TestOpen_FileMetadata(t *testing.T) {
	vol, _, err := open(t, sampleTree().build(), Options{})
	require.NoError(t, err)

	file, err := vol.Lookup(17)
	require.NoError(t, err)
	assert.Equal(t, catalog.RecordFile, file.Type)
	assert.Equal(t, catalog.Inum(16), file.Parent)
	assert.Equal(t, uint64(1234), file.Size)
	assert.Equal(t, uint32(501), file.OwnerID)
	assert.Equal(t, uint32(20), file.GroupID)
	assert.True(t, file.Allocated)

	want := time.Date(2007, 12, 20, 20, 32, 38, 0, time.UTC)
	assert.True(t, file.CreateTime.Equal(want))
	assert.True(t, file.ModifyTime.Equal(want.Add(time.Minute)))
	assert.True(t, file.AccessTime.Equal(want.Add(2*time.Minute)))
	assert.True(t, file.BackupTime.IsZero())
}

func TestOpen_KeyOffsetsDecode(t *testing.T) {
	vol, _, err := open(t, sampleTree().build(), Options{})
	require.NoError(t, err)

	for inum, want := range map[catalog.Inum]string{
		RootFolderID: "Macintosh HD",
		16:           "docs",
		17:           "a.txt",
		18:           "b.txt",
	} {
		inode, err := vol.Lookup(inum)
		require.NoError(t, err)

		name, err := catalog.ReadKeyName(vol, inode.KeyOffset)
		require.NoError(t, err)
		assert.Equal(t, want, name, "inode %d", inum)
	}
}

func TestOpen_HFSX(t *testing.T) {
	b := sampleTree()
	b.signature = signatureHFSX

	vol, _, err := open(t, b.build(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "hfsx", vol.Name())
}

func TestOpen_BadSignature(t *testing.T) {
	b := sampleTree()
	b.signature = 0x4244 // plain HFS

	_, _, err := open(t, b.build(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSMagic)))
}

func TestOpen_TruncatedImage(t *testing.T) {
	_, _, err := open(t, make([]byte, 1200), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSRead)))
}

func TestOpen_BadNodeSize(t *testing.T) {
	b := sampleTree()
	b.nodeSize = 1000

	_, _, err := open(t, b.build(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSCorrupt)))
}

func TestOpen_LeafChainLoop(t *testing.T) {
	b := sampleTree()
	b.links[1] = 1

	_, _, err := open(t, b.build(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSCorrupt)))
	assert.Contains(t, err.Error(), "loops back")
}

func TestOpen_LeafLinkOutOfRange(t *testing.T) {
	b := sampleTree()
	b.links[1] = 40

	_, _, err := open(t, b.build(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSCorrupt)))
}

func TestOpen_SkipsMalformedRecords(t *testing.T) {
	shortKey := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x02}
	unknown := append(keyBytes(RootFolderID, "x"), 0x00, 0x09, 0x00, 0x00)

	b := newCatalogBuilder().leaf(
		folderRec(RootParentID, RootFolderID, "root", 1),
		shortKey,
		unknown,
		fileRec(RootFolderID, 20, "ok", 1),
	)

	state := &diag.State{}
	vol, stats, err := open(t, b.build(), Options{State: state})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Files)

	// The last skipped record wins.
	reported := state.Take()
	require.NotNil(t, reported)
	assert.True(t, errors.Is(reported, diag.Sentinel(diag.FSInodeCorrupt)))
	assert.Contains(t, reported.Message, "unknown catalog record type 9")
	assert.Equal(t, "catalog node 1 record 2", reported.Context)

	_, err = vol.Lookup(20)
	assert.NoError(t, err)
}

func TestParseRecord_TruncatedKey(t *testing.T) {
	l := &loader{order: endian.Big}
	node := make([]byte, 32)
	recOff := len(node) - 4
	node[recOff+1] = catalog.KeyHeaderSize

	_, err := l.parseRecord(node, recOff, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSInodeCorrupt)))
	assert.ErrorIs(t, err, endian.ErrShortBuffer)

	_, err = l.parseRecord(node, len(node)-1, 0)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSInodeCorrupt)))
}

func TestOpen_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, image.FromBytes(sampleTree().build()), memory.NewMemoryInodeStore(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForkReader_SpansExtents(t *testing.T) {
	img := make([]byte, 8*512)
	for i := range img {
		img[i] = byte(i / 512)
	}

	fork := ForkData{LogicalSize: 3 * 512}
	fork.Extents[0] = ExtentDescriptor{StartBlock: 2, BlockCount: 1}
	fork.Extents[1] = ExtentDescriptor{StartBlock: 6, BlockCount: 2}
	r := newForkReader(image.FromBytes(img), 512, fork)

	assert.Equal(t, int64(3*512), r.mappedSize())

	off, contiguous, err := r.imageOffset(600)
	require.NoError(t, err)
	assert.Equal(t, int64(6*512+88), off)
	assert.Equal(t, int64(1024-88), contiguous)

	b, err := r.read(510, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2, 6, 6}, b)

	_, _, err = r.imageOffset(3 * 512)
	assert.True(t, errors.Is(err, diag.Sentinel(diag.FSBlkNum)))
}

func TestHFSTime(t *testing.T) {
	assert.True(t, hfsTime(0).IsZero())
	assert.Equal(t, time.Date(1904, 1, 1, 0, 0, 1, 0, time.UTC), hfsTime(1))
}

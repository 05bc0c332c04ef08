// Package hfsplus loads the catalog B-tree of an HFS+ or HFSX volume into a
// catalog.InodeStore.
//
// Only the leaf level of the catalog is read: the leaf chain is followed
// from the header record's first leaf, and every folder and file record
// becomes one catalog.Inode whose KeyOffset points at the record key inside
// the image. Thread records are not needed to rebuild the tree (every key
// already carries the parent CNID) and are ignored.
//
// Limitations: the extents overflow file is not consulted, so a catalog
// fragmented beyond the eight extents of the volume header is only loaded up
// to the end of the last inline extent.
package hfsplus

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-restruct/restruct"
	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/marmos91/catwalk/pkg/image"
)

// Options tunes Open.
type Options struct {
	// State receives one report per catalog record that had to be skipped.
	// Nil disables reporting; skipped records are still counted.
	State *diag.State
}

// LoadStats summarizes one catalog load.
type LoadStats struct {
	Nodes   int
	Folders int
	Files   int
	Threads int
	Skipped int
}

// loader carries the state of one Open call.
type loader struct {
	src   image.Source
	store catalog.InodeStore
	opts  Options

	order  endian.Order
	header VolumeHeader
	fork   *forkReader
	btree  HeaderRecord

	maxID catalog.Inum
	stats LoadStats
}

// Open reads the volume header of src, loads every catalog leaf record into
// store, and returns a Volume serving the result.
//
// The returned Volume owns src and store. On error both are left open for
// the caller to release.
func Open(ctx context.Context, src image.Source, store catalog.InodeStore, opts Options) (*catalog.Volume, error) {
	vol, _, err := OpenWithStats(ctx, src, store, opts)
	return vol, err
}

// OpenWithStats is Open that also reports what was loaded.
func OpenWithStats(ctx context.Context, src image.Source, store catalog.InodeStore, opts Options) (*catalog.Volume, LoadStats, error) {
	l := &loader{src: src, store: store, opts: opts}

	if err := l.readVolumeHeader(); err != nil {
		return nil, l.stats, err
	}
	if err := l.readBTreeHeader(); err != nil {
		return nil, l.stats, err
	}
	if err := l.loadLeaves(ctx); err != nil {
		return nil, l.stats, err
	}

	name := "hfsplus"
	if l.header.Signature == signatureHFSX {
		name = "hfsx"
	}

	last := catalog.Inum(0)
	if l.header.NextCatalogID > 0 {
		last = catalog.Inum(l.header.NextCatalogID - 1)
	}
	last = max(last, l.maxID, RootFolderID)

	logger.Debug("%s: loaded %d folders, %d files from %d leaf nodes (%d records skipped)",
		name, l.stats.Folders, l.stats.Files, l.stats.Nodes, l.stats.Skipped)

	vol := catalog.NewVolume(src, store, catalog.VolumeConfig{
		Name:  name,
		Order: l.order,
		First: RootParentID,
		Last:  last,
		Root:  RootFolderID,
	})
	return vol, l.stats, nil
}

func (l *loader) readVolumeHeader() error {
	raw, err := image.ReadFull(l.src, volumeHeaderOffset, volumeHeaderSize)
	if err != nil {
		return diag.Wrap(diag.FSRead, err, "volume header")
	}

	order, err := endian.Guess16(raw[:2], signatureHFSPlus)
	if err != nil {
		order, err = endian.Guess16(raw[:2], signatureHFSX)
	}
	if err != nil {
		return diag.New(diag.FSMagic, "no HFS+ signature at offset %d", volumeHeaderOffset)
	}
	l.order = order

	if err := restruct.Unpack(raw, order.ByteOrder(), &l.header); err != nil {
		return diag.Wrap(diag.FSCorrupt, err, "volume header")
	}

	bs := l.header.BlockSize
	if bs < minNodeSize || bs&(bs-1) != 0 {
		return diag.New(diag.FSCorrupt, "invalid allocation block size %d", bs)
	}

	l.fork = newForkReader(l.src, bs, l.header.CatalogFile)
	if l.fork.mappedSize() == 0 {
		return diag.New(diag.FSCorrupt, "catalog file has no extents")
	}
	return nil
}

func (l *loader) readBTreeHeader() error {
	raw, err := l.fork.read(0, nodeDescriptorSize+headerRecordSize)
	if err != nil {
		return fmt.Errorf("catalog header node: %w", err)
	}

	var desc NodeDescriptor
	if err := restruct.Unpack(raw, l.order.ByteOrder(), &desc); err != nil {
		return diag.Wrap(diag.FSCorrupt, err, "catalog header node descriptor")
	}
	if desc.Kind != nodeKindHeader {
		return diag.New(diag.FSCorrupt, "catalog node 0 has kind %d, want header", desc.Kind)
	}

	if err := restruct.Unpack(raw[nodeDescriptorSize:], l.order.ByteOrder(), &l.btree); err != nil {
		return diag.Wrap(diag.FSCorrupt, err, "catalog header record")
	}

	ns := uint32(l.btree.NodeSize)
	if ns < minNodeSize || ns > maxNodeSize || ns&(ns-1) != 0 {
		return diag.New(diag.FSCorrupt, "invalid catalog node size %d", ns)
	}

	// The header may claim more nodes than the fork holds.
	if reachable := uint32(l.fork.mappedSize() / int64(ns)); l.btree.TotalNodes > reachable {
		logger.Warn("hfsplus: catalog claims %d nodes, only %d are mapped", l.btree.TotalNodes, reachable)
		l.btree.TotalNodes = reachable
	}
	return nil
}

// loadLeaves follows the leaf chain. A node visited twice, an index outside
// the tree, or a chain longer than TotalNodes aborts the load.
func (l *loader) loadLeaves(ctx context.Context) error {
	visited := make(map[uint32]bool)

	for node := l.btree.FirstLeafNode; node != 0; {
		if err := ctx.Err(); err != nil {
			return err
		}
		if node >= l.btree.TotalNodes {
			return diag.New(diag.FSCorrupt, "leaf link to node %d, tree has %d nodes", node, l.btree.TotalNodes)
		}
		if visited[node] {
			return diag.New(diag.FSCorrupt, "leaf chain loops back to node %d", node)
		}
		visited[node] = true

		next, err := l.loadLeaf(ctx, node)
		if err != nil {
			return err
		}
		l.stats.Nodes++
		node = next
	}
	return nil
}

// loadLeaf stores the records of one leaf node and returns its forward link.
func (l *loader) loadLeaf(ctx context.Context, node uint32) (uint32, error) {
	nodeSize := int(l.btree.NodeSize)
	nodeStart := int64(node) * int64(nodeSize)

	buf, err := l.fork.read(nodeStart, nodeSize)
	if err != nil {
		return 0, fmt.Errorf("catalog node %d: %w", node, err)
	}

	var desc NodeDescriptor
	if err := restruct.Unpack(buf[:nodeDescriptorSize], l.order.ByteOrder(), &desc); err != nil {
		return 0, diag.Wrap(diag.FSCorrupt, err, "catalog node %d descriptor", node)
	}
	if desc.Kind != nodeKindLeaf {
		return 0, diag.New(diag.FSCorrupt, "catalog node %d has kind %d, want leaf", node, desc.Kind)
	}

	// Record offsets grow down from the end of the node.
	tableStart := nodeSize - 2*(int(desc.NumRecords)+1)
	if tableStart < nodeDescriptorSize {
		return 0, diag.New(diag.FSCorrupt, "catalog node %d claims %d records", node, desc.NumRecords)
	}

	for i := 0; i < int(desc.NumRecords); i++ {
		recOff := int(endian.Uint16(l.order, buf[nodeSize-2*(i+1):]))
		inode, err := l.parseRecord(buf[:tableStart], recOff, nodeStart)
		if err != nil {
			l.skip(err, node, i)
			continue
		}
		if inode == nil {
			l.stats.Threads++
			continue
		}

		if err := l.store.Put(ctx, inode); err != nil {
			return 0, fmt.Errorf("failed to store inode %d: %w", inode.Inum, err)
		}
		l.maxID = max(l.maxID, inode.Inum)
		if inode.IsDir() {
			l.stats.Folders++
		} else {
			l.stats.Files++
		}
	}
	return desc.FLink, nil
}

// parseRecord decodes the leaf record at recOff. It returns nil, nil for
// thread records.
func (l *loader) parseRecord(node []byte, recOff int, nodeStart int64) (*catalog.Inode, error) {
	if recOff < nodeDescriptorSize || recOff+catalog.KeyLengthSize > len(node) {
		return nil, diag.New(diag.FSInodeCorrupt, "record offset %d outside node", recOff)
	}

	keyLen := int(endian.Uint16(l.order, node[recOff:]))
	if keyLen < catalog.KeyHeaderSize {
		return nil, diag.New(diag.FSInodeCorrupt, "key length %d shorter than key header", keyLen)
	}
	parentID, err := endian.ReadU32(l.order, node, recOff+catalog.KeyLengthSize)
	if err != nil {
		return nil, diag.Wrap(diag.FSInodeCorrupt, err, "parent id of record at node offset %d", recOff)
	}
	parent := catalog.Inum(parentID)

	dataOff := recOff + catalog.KeyLengthSize + keyLen
	recType, err := endian.ReadU16(l.order, node, dataOff)
	if err != nil {
		return nil, diag.New(diag.FSInodeCorrupt, "key length %d runs past the record area", keyLen)
	}

	// The walker reads the key straight from the image, so it must not
	// straddle two extents.
	keyOffset, contiguous, err := l.fork.imageOffset(nodeStart + int64(recOff))
	if err != nil {
		return nil, err
	}
	if contiguous < int64(catalog.KeyLengthSize+keyLen) {
		return nil, diag.New(diag.FSInodeCorrupt, "key at node offset %d crosses an extent boundary", recOff)
	}

	inode := &catalog.Inode{
		Parent:    parent,
		KeyOffset: keyOffset,
		Allocated: true,
	}

	switch recType {
	case recordTypeFolder:
		if dataOff+folderRecordSize > len(node) {
			return nil, diag.New(diag.FSInodeCorrupt, "truncated folder record")
		}
		var rec FolderRecord
		if err := restruct.Unpack(node[dataOff:dataOff+folderRecordSize], l.order.ByteOrder(), &rec); err != nil {
			return nil, diag.Wrap(diag.FSInodeCorrupt, err, "folder record")
		}
		inode.Inum = catalog.Inum(rec.FolderID)
		inode.Type = catalog.RecordFolder
		inode.Valence = rec.Valence
		setCommon(inode, rec.Dates, rec.Permissions)

	case recordTypeFile:
		if dataOff+fileRecordSize > len(node) {
			return nil, diag.New(diag.FSInodeCorrupt, "truncated file record")
		}
		var rec FileRecord
		if err := restruct.Unpack(node[dataOff:dataOff+fileRecordSize], l.order.ByteOrder(), &rec); err != nil {
			return nil, diag.Wrap(diag.FSInodeCorrupt, err, "file record")
		}
		inode.Inum = catalog.Inum(rec.FileID)
		inode.Type = catalog.RecordFile
		inode.Size = rec.DataFork.LogicalSize
		setCommon(inode, rec.Dates, rec.Permissions)

	case recordTypeFolderThread, recordTypeFileThread:
		return nil, nil

	default:
		return nil, diag.New(diag.FSInodeCorrupt, "unknown catalog record type %d", recType)
	}

	if inode.Inum == 0 {
		return nil, diag.New(diag.FSInodeCorrupt, "record with CNID 0")
	}
	return inode, nil
}

func setCommon(inode *catalog.Inode, d catalogDates, p BSDInfo) {
	inode.CreateTime = hfsTime(d.CreateDate)
	inode.ModifyTime = hfsTime(d.ContentModDate)
	inode.ChangeTime = hfsTime(d.AttributeModDate)
	inode.AccessTime = hfsTime(d.AccessDate)
	inode.BackupTime = hfsTime(d.BackupDate)
	inode.OwnerID = p.OwnerID
	inode.GroupID = p.GroupID
	inode.Mode = p.FileMode
}

func (l *loader) skip(err error, node uint32, record int) {
	l.stats.Skipped++
	logger.Debug("hfsplus: skipping record %d of node %d: %v", record, node, err)

	if l.opts.State == nil {
		return
	}
	var de *diag.Error
	if errors.As(err, &de) {
		l.opts.State.ReportError(de.WithContext("catalog node %d record %d", node, record))
		return
	}
	l.opts.State.Report(diag.FSInodeCorrupt, "%v", err)
	l.opts.State.AddContext("catalog node %d record %d", node, record)
}

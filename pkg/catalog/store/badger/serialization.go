package badger

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// inodeRecord is the on-disk form of catalog.Inode.
//
// Values are XDR encoded: fixed layout, big endian, no field names. The
// catalog is rebuilt from the image whenever the format changes, so there is
// no schema evolution to support.
type inodeRecord struct {
	Inum      uint64
	Parent    uint64
	Type      uint32
	KeyOffset int64
	Allocated bool
	Size      uint64
	Valence   uint32
	OwnerID   uint32
	GroupID   uint32
	Mode      uint32

	// Times are Unix seconds; noTime marks a zero time.Time.
	CreateTime int64
	ModifyTime int64
	ChangeTime int64
	AccessTime int64
	BackupTime int64
}

const noTime = math.MinInt64

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return noTime
	}
	return t.Unix()
}

func decodeTime(sec int64) time.Time {
	if sec == noTime {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// encodeInode serializes an inode to XDR bytes.
func encodeInode(inode *catalog.Inode) ([]byte, error) {
	rec := inodeRecord{
		Inum:       uint64(inode.Inum),
		Parent:     uint64(inode.Parent),
		Type:       uint32(inode.Type),
		KeyOffset:  inode.KeyOffset,
		Allocated:  inode.Allocated,
		Size:       inode.Size,
		Valence:    inode.Valence,
		OwnerID:    inode.OwnerID,
		GroupID:    inode.GroupID,
		Mode:       uint32(inode.Mode),
		CreateTime: encodeTime(inode.CreateTime),
		ModifyTime: encodeTime(inode.ModifyTime),
		ChangeTime: encodeTime(inode.ChangeTime),
		AccessTime: encodeTime(inode.AccessTime),
		BackupTime: encodeTime(inode.BackupTime),
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode inode %d: %w", inode.Inum, err)
	}
	return buf.Bytes(), nil
}

// decodeInode deserializes an inode from XDR bytes.
func decodeInode(data []byte) (*catalog.Inode, error) {
	var rec inodeRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}

	return &catalog.Inode{
		Inum:       catalog.Inum(rec.Inum),
		Parent:     catalog.Inum(rec.Parent),
		Type:       catalog.RecordType(rec.Type),
		KeyOffset:  rec.KeyOffset,
		Allocated:  rec.Allocated,
		Size:       rec.Size,
		Valence:    rec.Valence,
		OwnerID:    rec.OwnerID,
		GroupID:    rec.GroupID,
		Mode:       uint16(rec.Mode),
		CreateTime: decodeTime(rec.CreateTime),
		ModifyTime: decodeTime(rec.ModifyTime),
		ChangeTime: decodeTime(rec.ChangeTime),
		AccessTime: decodeTime(rec.AccessTime),
		BackupTime: decodeTime(rec.BackupTime),
	}, nil
}

// Package volume lists the partitions of a raw disk image and exposes each
// one as an image.Source, so that a filesystem can be opened inside it.
//
// Partition tables (GPT, MBR) are parsed with go-diskfs. Failures are
// reported as volume-category diag errors.
package volume

import (
	"fmt"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/diskfs/go-diskfs/partition/part"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/image"
)

// Partition is one entry of a partition table.
type Partition struct {
	// Index is the 1-based slot in the table
	Index int

	// Start and Size are in bytes
	Start int64
	Size  int64

	// Table is the table scheme, "gpt" or "mbr"
	Table string

	// Type is the partition type: a GUID for GPT, a hex byte for MBR
	Type string

	// Name is the GPT partition name, empty for MBR
	Name string
}

func (p Partition) String() string {
	return fmt.Sprintf("%03d: %012d-%012d %s %s %s", p.Index, p.Start, p.Start+p.Size-1, p.Table, p.Type, p.Name)
}

// Partitions reads the partition table of the image at path. Empty slots
// are left out.
func Partitions(path string) ([]Partition, error) {
	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return nil, diag.Wrap(diag.VolRead, err, "%s", path)
	}
	defer d.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, diag.Wrap(diag.VolUnkType, err, "%s", path)
	}

	var out []Partition
	for i, p := range table.GetPartitions() {
		if p == nil || p.GetSize() == 0 {
			continue
		}
		out = append(out, describe(i+1, table.Type(), p))
	}
	return out, nil
}

func describe(index int, scheme string, p part.Partition) Partition {
	info := Partition{
		Index: index,
		Start: p.GetStart(),
		Size:  p.GetSize(),
		Table: scheme,
	}
	switch v := p.(type) {
	case *gpt.Partition:
		info.Type = string(v.Type)
		info.Name = v.Name
	case *mbr.Partition:
		info.Type = fmt.Sprintf("0x%02x", byte(v.Type))
	}
	return info
}

// Locate returns the partition in slot index.
func Locate(path string, index int) (Partition, error) {
	parts, err := Partitions(path)
	if err != nil {
		return Partition{}, err
	}
	for _, p := range parts {
		if p.Index == index {
			return p, nil
		}
	}
	return Partition{}, diag.New(diag.VolBlkNum, "no partition in slot %d of %s", index, path)
}

// Open opens the image at path. Index 0 selects the whole image; any other
// value selects that partition slot.
func Open(path string, index int) (image.Source, error) {
	if index == 0 {
		return image.OpenFile(path)
	}

	p, err := Locate(path, index)
	if err != nil {
		return nil, err
	}

	src, err := image.OpenFile(path)
	if err != nil {
		return nil, err
	}
	section, err := image.Section(src, p.Start, p.Size)
	if err != nil {
		src.Close()
		return nil, diag.Wrap(diag.VolWalkRange, err, "partition %d extends past the image", index)
	}
	return section, nil
}

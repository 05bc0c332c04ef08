package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	"gopkg.in/yaml.v3"
)

// timeLayout matches istat's timestamp rendering.
const timeLayout = "2006-01-02 15:04:05 (MST)"

// InodeReport is the structured form of one inode's metadata.
type InodeReport struct {
	RunID     string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Inum      uint64 `json:"inum" yaml:"inum"`
	Parent    uint64 `json:"parent" yaml:"parent"`
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	Allocated bool   `json:"allocated" yaml:"allocated"`
	Mode      string `json:"mode" yaml:"mode"`
	UID       uint32 `json:"uid" yaml:"uid"`
	GID       uint32 `json:"gid" yaml:"gid"`
	Size      uint64 `json:"size" yaml:"size"`
	Valence   uint32 `json:"valence,omitempty" yaml:"valence,omitempty"`
	KeyOffset int64  `json:"key_offset" yaml:"key_offset"`

	Created  *time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Modified *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
	Changed  *time.Time `json:"changed,omitempty" yaml:"changed,omitempty"`
	Accessed *time.Time `json:"accessed,omitempty" yaml:"accessed,omitempty"`
	Backup   *time.Time `json:"backup,omitempty" yaml:"backup,omitempty"`
}

// NewInodeReport collects the metadata of inode. The name is decoded from
// the catalog key; a key that cannot be decoded leaves it empty.
func NewInodeReport(fs catalog.Filesystem, inode *catalog.Inode, opts Options) InodeReport {
	r := InodeReport{
		RunID:     opts.RunID,
		Inum:      uint64(inode.Inum),
		Parent:    uint64(inode.Parent),
		Type:      kindName(inode.Type),
		Allocated: inode.Allocated,
		Mode:      ModeString(inode.Mode),
		UID:       inode.OwnerID,
		GID:       inode.GroupID,
		Size:      inode.Size,
		Valence:   inode.Valence,
		KeyOffset: inode.KeyOffset,
		Created:   timePtr(inode.CreateTime),
		Modified:  timePtr(inode.ModifyTime),
		Changed:   timePtr(inode.ChangeTime),
		Accessed:  timePtr(inode.AccessTime),
		Backup:    timePtr(inode.BackupTime),
	}

	decode := catalog.ReadKeyName
	if opts.UnicodeNames {
		decode = catalog.ReadKeyUnicodeName
	}
	if inode.Inum != fs.RootInum() {
		if name, err := decode(fs, inode.KeyOffset); err == nil {
			r.Name = name
		}
	}
	return r
}

// Istat writes the metadata of inode to out.
func Istat(out io.Writer, fs catalog.Filesystem, inode *catalog.Inode, format Format, opts Options) error {
	format, err := ParseFormat(string(format))
	if err != nil {
		return err
	}

	r := NewInodeReport(fs, inode, opts)
	switch format {
	case FormatJSON:
		return json.NewEncoder(out).Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeIstatText(out, r)
	}
}

func writeIstatText(out io.Writer, r InodeReport) error {
	tw := tabwriter.NewWriter(out, 0, 8, 1, ' ', 0)

	alloc := "Allocated"
	if !r.Allocated {
		alloc = "Not Allocated"
	}
	fmt.Fprintf(tw, "Catalog Record: %d\n", r.Inum)
	fmt.Fprintf(tw, "%s\n", alloc)
	fmt.Fprintf(tw, "Type:\t%s\n", r.Type)
	fmt.Fprintf(tw, "Parent:\t%d\n", r.Parent)
	fmt.Fprintf(tw, "Name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "Mode:\t%s\n", r.Mode)
	fmt.Fprintf(tw, "uid / gid:\t%d / %d\n", r.UID, r.GID)
	if r.Type == "dir" {
		fmt.Fprintf(tw, "Valence:\t%d\n", r.Valence)
	} else {
		fmt.Fprintf(tw, "Size:\t%d\n", r.Size)
	}
	fmt.Fprintf(tw, "Key offset:\t%d\n", r.KeyOffset)

	fmt.Fprintf(tw, "\nTimes:\n")
	for _, t := range []struct {
		label string
		value *time.Time
	}{
		{"Created:", r.Created},
		{"Content Modified:", r.Modified},
		{"Attributes Modified:", r.Changed},
		{"Accessed:", r.Accessed},
		{"Backed Up:", r.Backup},
	} {
		v := "0000-00-00 00:00:00 (UTC)"
		if t.value != nil {
			v = t.value.UTC().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\n", t.label, v)
	}
	return tw.Flush()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

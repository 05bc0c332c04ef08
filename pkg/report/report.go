// Package report renders walk entries and inode metadata.
//
// Three formats are supported. Text follows the fls/istat layout of the
// forensic toolkits, JSON writes one object per line and YAML one document
// per entry, so that both can be streamed into other tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/walker"
	"gopkg.in/yaml.v3"
)

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. The empty string selects text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (valid: text, json, yaml)", s)
	}
}

// Options tunes a report.
type Options struct {
	// RunID is stamped on every structured record when set
	RunID string

	// FullPath prints the path below the walk start instead of indenting
	// names by depth (text format)
	FullPath bool

	// UnicodeNames adds the full UTF-16 decoded name to structured records
	UnicodeNames bool
}

// Record is the structured form of one walk entry.
type Record struct {
	RunID       string     `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Inum        uint64     `json:"inum" yaml:"inum"`
	Parent      uint64     `json:"parent" yaml:"parent"`
	Name        string     `json:"name" yaml:"name"`
	UnicodeName string     `json:"unicode_name,omitempty" yaml:"unicode_name,omitempty"`
	Path        string     `json:"path" yaml:"path"`
	Type        string     `json:"type" yaml:"type"`
	Allocated   bool       `json:"allocated" yaml:"allocated"`
	Depth       int        `json:"depth" yaml:"depth"`
	Size        uint64     `json:"size,omitempty" yaml:"size,omitempty"`
	Mode        string     `json:"mode,omitempty" yaml:"mode,omitempty"`
	UID         uint32     `json:"uid" yaml:"uid"`
	GID         uint32     `json:"gid" yaml:"gid"`
	Modified    *time.Time `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Writer is a walker.Visitor that writes each entry it receives.
//
// A write failure stops the walk; it is returned by Err and Close.
type Writer struct {
	out    io.Writer
	format Format
	opts   Options

	json *json.Encoder
	yaml *yaml.Encoder

	count int
	err   error
}

// NewWriter returns a Writer encoding entries to out.
func NewWriter(out io.Writer, format Format, opts Options) (*Writer, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	w := &Writer{out: out, format: format, opts: opts}
	switch format {
	case FormatJSON:
		w.json = json.NewEncoder(out)
	case FormatYAML:
		w.yaml = yaml.NewEncoder(out)
		w.yaml.SetIndent(2)
	}
	return w, nil
}

// Visit implements walker.Visitor.
func (w *Writer) Visit(fs catalog.Filesystem, e *walker.Entry) walker.Action {
	if w.err != nil {
		return walker.Stop
	}

	switch w.format {
	case FormatJSON:
		w.err = w.json.Encode(w.record(fs, e))
	case FormatYAML:
		w.err = w.yaml.Encode(w.record(fs, e))
	default:
		_, w.err = io.WriteString(w.out, w.line(e))
	}
	if w.err != nil {
		return walker.Stop
	}

	w.count++
	return walker.Continue
}

// Count is the number of entries written.
func (w *Writer) Count() int {
	return w.count
}

// Err returns the first write failure.
func (w *Writer) Err() error {
	return w.err
}

// Close flushes buffered output and returns the first failure.
func (w *Writer) Close() error {
	if w.yaml != nil {
		if err := w.yaml.Close(); err != nil && w.err == nil {
			w.err = err
		}
	}
	return w.err
}

// line renders e the way fls does:
//
//	d/d 16:	docs
//	+ r/r * 21:	old.txt
func (w *Writer) line(e *walker.Entry) string {
	var b strings.Builder

	name := e.Name
	if w.opts.FullPath {
		name = e.FullPath()
	} else if e.Depth > 0 {
		b.WriteString(strings.Repeat("+", e.Depth))
		b.WriteByte(' ')
	}

	t := typeChar(e.Type)
	b.WriteByte(t)
	b.WriteByte('/')
	b.WriteByte(t)
	if e.Flags&walker.FlagUnalloc != 0 {
		b.WriteString(" *")
	}
	fmt.Fprintf(&b, " %d:\t%s\n", e.Inum, name)
	return b.String()
}

func (w *Writer) record(fs catalog.Filesystem, e *walker.Entry) Record {
	r := Record{
		RunID:     w.opts.RunID,
		Inum:      uint64(e.Inum),
		Parent:    uint64(e.Parent),
		Name:      e.Name,
		Path:      e.FullPath(),
		Type:      kindName(e.Type),
		Allocated: e.Flags&walker.FlagAlloc != 0,
		Depth:     e.Depth,
	}

	if m := e.Meta; m != nil {
		r.Size = m.Size
		r.UID = m.OwnerID
		r.GID = m.GroupID
		if m.Mode != 0 {
			r.Mode = ModeString(m.Mode)
		}
		if !m.ModifyTime.IsZero() {
			t := m.ModifyTime
			r.Modified = &t
		}
		if w.opts.UnicodeNames && !e.IsDot() {
			if name, err := catalog.ReadKeyUnicodeName(fs, m.KeyOffset); err == nil {
				r.UnicodeName = name
			}
		}
	}
	return r
}

func typeChar(t catalog.RecordType) byte {
	switch t {
	case catalog.RecordFolder:
		return 'd'
	case catalog.RecordFile:
		return 'r'
	default:
		return '-'
	}
}

func kindName(t catalog.RecordType) string {
	switch t {
	case catalog.RecordFolder:
		return "dir"
	case catalog.RecordFile:
		return "reg"
	default:
		return "unknown"
	}
}

// ModeString renders a BSD mode as ls does, e.g. "drwxr-xr-x".
func ModeString(mode uint16) string {
	const rwx = "rwxrwxrwx"

	b := make([]byte, 10)
	switch mode & 0o170000 {
	case 0o040000:
		b[0] = 'd'
	case 0o120000:
		b[0] = 'l'
	case 0o100000:
		b[0] = '-'
	default:
		b[0] = '?'
	}
	for i := range 9 {
		if mode&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		} else {
			b[i+1] = '-'
		}
	}
	return string(b)
}

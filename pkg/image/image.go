// Package image provides random-access reads over raw disk images.
//
// A Source is anything that can serve bytes at an image-relative offset: a
// local raw (dd) image, an object in S3 (see the s3 subpackage), an in-memory
// buffer in tests, or a partition inside another Source. Failures are
// reported as image-category diag errors.
package image

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/marmos91/catwalk/pkg/diag"
)

// Source is a read-only, random-access view of an image.
type Source interface {
	io.ReaderAt

	// Size returns the length of the image in bytes.
	Size() int64

	// Close releases the underlying resources.
	Close() error
}

// fileSource serves a raw image stored in a local file.
type fileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens a raw image read-only.
func OpenFile(path string) (Source, error) {
	if path == "" {
		return nil, diag.New(diag.ImgNoFile, "empty image path")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, diag.Wrap(diag.ImgOpen, err, "%s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, diag.Wrap(diag.ImgStat, err, "%s", path)
	}
	if info.IsDir() {
		f.Close()
		return nil, diag.New(diag.ImgUnkType, "%s is a directory", path)
	}

	return &fileSource{f: f, size: info.Size()}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) Size() int64 {
	return s.size
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

// memorySource serves an image held in memory.
type memorySource struct {
	r *bytes.Reader
}

// FromBytes wraps b as a Source. b must not be modified afterwards.
func FromBytes(b []byte) Source {
	return &memorySource{r: bytes.NewReader(b)}
}

func (s *memorySource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func (s *memorySource) Size() int64 {
	return s.r.Size()
}

func (s *memorySource) Close() error {
	return nil
}

// sectionSource exposes a byte range of a parent Source, e.g. one partition.
type sectionSource struct {
	parent Source
	sr     *io.SectionReader
}

// Section returns a Source covering size bytes of src starting at off.
// Closing the section closes src.
func Section(src Source, off, size int64) (Source, error) {
	if off < 0 || size < 0 || off > src.Size() || size > src.Size()-off {
		return nil, diag.New(diag.ImgOffset, "section [%d, %d) outside image of %d bytes", off, off+size, src.Size())
	}
	return &sectionSource{parent: src, sr: io.NewSectionReader(src, off, size)}, nil
}

func (s *sectionSource) ReadAt(p []byte, off int64) (int, error) {
	return s.sr.ReadAt(p, off)
}

func (s *sectionSource) Size() int64 {
	return s.sr.Size()
}

func (s *sectionSource) Close() error {
	return s.parent.Close()
}

// ReadFull reads exactly n bytes at off.
//
// Returns:
//   - ImgReadOff if the range starts or ends beyond the image
//   - ImgRead if the underlying read fails or comes back short
func ReadFull(src Source, off int64, n int) ([]byte, error) {
	if n < 0 {
		return nil, diag.New(diag.ImgRead, "negative read length %d", n)
	}
	if off < 0 || off > src.Size() || int64(n) > src.Size()-off {
		return nil, diag.New(diag.ImgReadOff, "%d bytes at offset %d, image size %d", n, off, src.Size())
	}

	buf := make([]byte, n)
	got, err := src.ReadAt(buf, off)
	if got == n {
		// io.ReaderAt may return io.EOF together with a full read at the end.
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, diag.Wrap(diag.ImgRead, err, "read %d of %d bytes at offset %d", got, n, off)
}

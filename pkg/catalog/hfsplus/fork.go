package hfsplus

import (
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/image"
)

// forkReader maps logical fork offsets onto image offsets through the
// fork's extent records.
type forkReader struct {
	src       image.Source
	blockSize int64
	extents   []ExtentDescriptor
	size      int64
}

func newForkReader(src image.Source, blockSize uint32, fork ForkData) *forkReader {
	r := &forkReader{
		src:       src,
		blockSize: int64(blockSize),
		size:      int64(fork.LogicalSize),
	}
	for _, ext := range fork.Extents {
		if ext.BlockCount == 0 {
			break
		}
		r.extents = append(r.extents, ext)
	}
	return r
}

// mappedSize is the number of fork bytes reachable through the extents.
func (r *forkReader) mappedSize() int64 {
	var n int64
	for _, ext := range r.extents {
		n += int64(ext.BlockCount) * r.blockSize
	}
	return min(n, r.size)
}

// imageOffset translates a logical offset. It also returns how many bytes
// stay contiguous in the image from that point.
func (r *forkReader) imageOffset(logical int64) (int64, int64, error) {
	if logical < 0 || logical >= r.mappedSize() {
		return 0, 0, diag.New(diag.FSBlkNum, "fork offset %d outside the %d mapped bytes", logical, r.mappedSize())
	}

	base := int64(0)
	for _, ext := range r.extents {
		length := int64(ext.BlockCount) * r.blockSize
		if logical < base+length {
			within := logical - base
			return int64(ext.StartBlock)*r.blockSize + within, length - within, nil
		}
		base += length
	}
	// unreachable: mappedSize covers every extent
	return 0, 0, diag.New(diag.FSBlkNum, "fork offset %d not mapped", logical)
}

// read returns n bytes of the fork starting at logical, following extent
// boundaries.
func (r *forkReader) read(logical int64, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		off, contiguous, err := r.imageOffset(logical + int64(len(out)))
		if err != nil {
			return nil, err
		}
		chunk := min(int64(n-len(out)), contiguous)

		b, err := image.ReadFull(r.src, off, int(chunk))
		if err != nil {
			return nil, diag.Wrap(diag.FSRead, err, "catalog fork offset %d", logical)
		}
		out = append(out, b...)
	}
	return out, nil
}

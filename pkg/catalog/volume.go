package catalog

import (
	"context"
	"errors"

	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/marmos91/catwalk/pkg/image"
)

// VolumeConfig describes the identifier space of a Volume.
type VolumeConfig struct {
	// Name identifies the format, e.g. "hfsplus"
	Name string

	Order endian.Order
	First Inum
	Last  Inum
	Root  Inum
}

// Volume is a Filesystem backed by an image and an inode store.
type Volume struct {
	src   image.Source
	store InodeStore
	cfg   VolumeConfig
}

// NewVolume creates a Volume. The volume takes ownership of src and store
// and closes both in Close.
func NewVolume(src image.Source, store InodeStore, cfg VolumeConfig) *Volume {
	return &Volume{src: src, store: store, cfg: cfg}
}

func (v *Volume) Name() string            { return v.cfg.Name }
func (v *Volume) FirstInum() Inum         { return v.cfg.First }
func (v *Volume) LastInum() Inum          { return v.cfg.Last }
func (v *Volume) RootInum() Inum          { return v.cfg.Root }
func (v *Volume) ByteOrder() endian.Order { return v.cfg.Order }

// Lookup returns the metadata of inum from the inode store.
func (v *Volume) Lookup(inum Inum) (*Inode, error) {
	return v.store.Get(context.Background(), inum)
}

// Children returns the children of parent from the store's index.
func (v *Volume) Children(parent Inum) ([]Inum, error) {
	return v.store.Children(context.Background(), parent)
}

// Read reads n bytes at off, translating image failures into FSRead.
func (v *Volume) Read(off int64, n int) ([]byte, error) {
	b, err := image.ReadFull(v.src, off, n)
	if err != nil {
		return nil, diag.Wrap(diag.FSRead, err, "reading %d bytes at offset %d", n, off)
	}
	return b, nil
}

// Close releases the store and the image.
func (v *Volume) Close() error {
	return errors.Join(v.store.Close(), v.src.Close())
}

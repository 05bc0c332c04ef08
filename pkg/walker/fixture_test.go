package walker

import (
	"context"
	"testing"
	"unicode/utf16"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/catalog/store/memory"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/marmos91/catwalk/pkg/image"
	"github.com/stretchr/testify/require"
)

// fixture builds a catalog.Volume whose image holds nothing but catalog
// keys, one per added inode.
type fixture struct {
	t     *testing.T
	order endian.Order
	buf   []byte
	store *memory.MemoryInodeStore
	root  catalog.Inum
	first catalog.Inum
	last  catalog.Inum
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:     t,
		order: endian.Big,
		buf:   make([]byte, 16),
		store: memory.NewMemoryInodeStore(),
		root:  1,
		first: 1,
	}
	f.dir(1, 1, "")
	return f
}

func (f *fixture) key(parent catalog.Inum, units []uint16) []byte {
	bo := f.order.ByteOrder()
	key := make([]byte, 8+2*len(units))
	bo.PutUint16(key[0:], uint16(6+2*len(units)))
	bo.PutUint32(key[2:], uint32(parent))
	bo.PutUint16(key[6:], uint16(len(units)))
	for i, u := range units {
		bo.PutUint16(key[8+2*i:], u)
	}
	return key
}

// raw stores inode with key bytes written verbatim.
func (f *fixture) raw(inum, parent catalog.Inum, typ catalog.RecordType, key []byte) *catalog.Inode {
	inode := &catalog.Inode{
		Inum:      inum,
		Parent:    parent,
		Type:      typ,
		KeyOffset: int64(len(f.buf)),
		Allocated: true,
	}
	f.buf = append(f.buf, key...)
	require.NoError(f.t, f.store.Put(context.Background(), inode))
	f.last = max(f.last, inum)
	return inode
}

func (f *fixture) dir(inum, parent catalog.Inum, name string) *catalog.Inode {
	return f.raw(inum, parent, catalog.RecordFolder, f.key(parent, utf16.Encode([]rune(name))))
}

func (f *fixture) file(inum, parent catalog.Inum, name string) *catalog.Inode {
	return f.raw(inum, parent, catalog.RecordFile, f.key(parent, utf16.Encode([]rune(name))))
}

func (f *fixture) volume() *catalog.Volume {
	vol := catalog.NewVolume(image.FromBytes(f.buf), f.store, catalog.VolumeConfig{
		Name:  "fixture",
		Order: f.order,
		First: f.first,
		Last:  f.last,
		Root:  f.root,
	})
	f.t.Cleanup(func() { vol.Close() })
	return vol
}

// scanOnly hides the Volume's child index.
type scanOnly struct {
	catalog.Filesystem
}

// recorder collects visited entries.
type recorder struct {
	entries []*Entry
	stopAt  func(*Entry) bool
}

func (r *recorder) Visit(_ catalog.Filesystem, e *Entry) Action {
	r.entries = append(r.entries, e)
	if r.stopAt != nil && r.stopAt(e) {
		return Stop
	}
	return Continue
}

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) paths() []string {
	var out []string
	for _, e := range r.entries {
		if !e.IsDot() {
			out = append(out, e.FullPath())
		}
	}
	return out
}

package walker

import (
	"strings"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
)

// Lookup resolves a slash separated path, relative to the root directory,
// to its inode. Empty and "." components are ignored and ".." moves to the
// parent (the root is its own parent).
//
// Names are matched against their printable form, so a component must use
// '?' wherever the on-disk name has a non-ASCII character.
func Lookup(fs catalog.Filesystem, path string, opts ...Option) (*catalog.Inode, error) {
	cur, err := fs.Lookup(fs.RootInum())
	if err != nil {
		return nil, err
	}

	resolved := "/"
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if cur.Inum != fs.RootInum() {
				if cur, err = fs.Lookup(cur.Parent); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !cur.IsDir() {
			return nil, diag.New(diag.FSArg, "%s is not a directory", resolved)
		}

		next, err := findChild(fs, cur.Inum, part, opts)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, diag.New(diag.FSInumNum, "%s not found in %s", part, resolved)
		}
		cur = next
		resolved += part + "/"
	}
	return cur, nil
}

// findChild lists dir without recursion and returns the entry named name.
func findChild(fs catalog.Filesystem, dir catalog.Inum, name string, opts []Option) (*catalog.Inode, error) {
	var found *catalog.Inode
	_, err := Walk(fs, dir, FlagAlloc|FlagUnalloc|FlagDir|FlagReg, VisitorFunc(func(_ catalog.Filesystem, e *Entry) Action {
		if e.IsDot() || e.Name != name || e.Meta == nil {
			return Continue
		}
		found = e.Meta
		return Stop
	}), opts...)
	return found, err
}

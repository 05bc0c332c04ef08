// Package walker enumerates the directory entries of a catalog filesystem.
//
// A walk emits "." and ".." for the start directory, then one entry per
// catalog record whose parent is that directory, optionally recursing into
// subdirectories. Children are found through the filesystem's
// catalog.ChildLister index when it has one, otherwise by scanning the whole
// inode range.
//
// Damaged catalogs are walked on a best-effort basis: a record whose name
// cannot be decoded is skipped and reported to the walk's diag.State, a
// directory that is already being walked (a cycle) is listed but not entered
// again, and recursion stops silently at the depth limit. Only failures to
// resolve the start inode abort a walk.
package walker

import (
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
)

// Stats summarizes a walk.
type Stats struct {
	// Entries is the number of visitor calls
	Entries int

	// Dirs and Files count the catalog children discovered, filtered or not
	Dirs  int
	Files int

	// Skipped counts records left out because they could not be decoded
	Skipped int

	// Cycles counts directories not re-entered because they were already
	// on the walk path
	Cycles int

	// DepthLimited counts directories not entered because of the depth
	// limit
	DepthLimited int

	// Stopped is set when the visitor ended the walk
	Stopped bool
}

// walk is the state of one Walk call. It is never shared.
type walk struct {
	fs      catalog.Filesystem
	flags   Flags
	visitor Visitor
	opts    options

	path   pathStack
	active map[catalog.Inum]bool
	stats  Stats
}

// errStop unwinds the recursion after a Stop verdict.
var errStop = errors.New("walk stopped")

// Walk visits the entries of directory start (or the single entry of file
// start) on fs.
//
// A Stop from the visitor ends the walk immediately and successfully. The
// returned error is non-nil only when the start inode cannot be looked up.
func Walk(fs catalog.Filesystem, start catalog.Inum, flags Flags, visitor Visitor, opts ...Option) (Stats, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	w := &walk{
		fs:      fs,
		flags:   flags.normalize(),
		visitor: visitor,
		opts:    o,
		active:  make(map[catalog.Inum]bool),
	}

	begin := time.Now()
	err := w.run(start)

	outcome := "complete"
	switch {
	case errors.Is(err, errStop):
		w.stats.Stopped = true
		outcome = "stopped"
		err = nil
	case err != nil:
		outcome = "error"
	}
	w.opts.metrics.RecordWalk(outcome, time.Since(begin))

	return w.stats, err
}

func (w *walk) run(start catalog.Inum) error {
	if start < w.fs.FirstInum() || start > w.fs.LastInum() {
		logger.Warn("walk: invalid inode value: %d (valid range %d-%d)", start, w.fs.FirstInum(), w.fs.LastInum())
	}

	meta, err := w.fs.Lookup(start)
	if err != nil {
		return fmt.Errorf("walk start inode %d: %w", start, err)
	}

	return w.list(meta, 0)
}

// list emits ".", "..", then the children of dir (or dir itself when it is
// a file).
func (w *walk) list(dir *catalog.Inode, depth int) error {
	logger.Debug("walk: processing directory %d at depth %d", dir.Inum, depth)

	if err := w.emitDot(".", dir.Inum, dir.Inum, dir, depth); err != nil {
		return err
	}

	// The parent of root is not a directory on the volume.
	parent := dir.Parent
	if dir.Inum == w.fs.RootInum() {
		parent = dir.Inum
	}
	parentMeta, _ := w.fs.Lookup(parent)
	if err := w.emitDot("..", parent, dir.Inum, parentMeta, depth); err != nil {
		return err
	}

	if !dir.IsDir() {
		return w.emitFile(dir, depth)
	}

	w.active[dir.Inum] = true
	defer delete(w.active, dir.Inum)

	return w.eachChild(dir.Inum, func(child *catalog.Inode) error {
		return w.child(dir, child, depth)
	})
}

func (w *walk) emitDot(name string, inum, dir catalog.Inum, meta *catalog.Inode, depth int) error {
	return w.emit(&Entry{
		Inum:   inum,
		Parent: dir,
		Name:   name,
		Type:   catalog.RecordFolder,
		Flags:  FlagAlloc | FlagDir,
		Path:   w.path.String(),
		Depth:  depth,
		Meta:   meta,
	}, "dot")
}

// emitFile emits the single entry of a walk started on a regular file.
func (w *walk) emitFile(file *catalog.Inode, depth int) error {
	name, err := catalog.ReadKeyName(w.fs, file.KeyOffset)
	if err != nil {
		w.skip(err, file.Inum, "file %d", file.Inum)
		return nil
	}

	return w.emit(&Entry{
		Inum:   file.Inum,
		Parent: file.Parent,
		Name:   name,
		Type:   file.Type,
		Flags:  entryFlags(file),
		Path:   w.path.String(),
		Depth:  depth,
		Meta:   file,
	}, "reg")
}

// child handles one catalog record found under dir.
func (w *walk) child(dir, child *catalog.Inode, depth int) error {
	name, err := catalog.ReadKeyName(w.fs, child.KeyOffset)
	if err != nil {
		w.skip(err, child.Inum, "entry %d of directory %d (%s)", child.Inum, dir.Inum, w.path.display())
		return nil
	}

	e := &Entry{
		Inum:   child.Inum,
		Parent: dir.Inum,
		Name:   name,
		Type:   child.Type,
		Flags:  entryFlags(child),
		Path:   w.path.String(),
		Depth:  depth,
		Meta:   child,
	}

	if e.IsDir() {
		w.stats.Dirs++
	} else {
		w.stats.Files++
	}

	if w.flags.matches(e.Flags) {
		kind := "reg"
		if e.IsDir() {
			kind = "dir"
		}
		if err := w.emit(e, kind); err != nil {
			return err
		}
	}

	if !e.IsDir() || w.flags&FlagRecurse == 0 {
		return nil
	}

	if depth >= w.opts.maxDepth {
		w.stats.DepthLimited++
		w.opts.metrics.RecordSkipped("depth")
		logger.Debug("walk: depth limit %d reached at %s%s", w.opts.maxDepth, e.Path, e.Name)
		return nil
	}

	if w.active[child.Inum] {
		w.stats.Cycles++
		w.opts.metrics.RecordSkipped("cycle")
		w.opts.state.Report(diag.FSCorrupt, "directory %d is its own ancestor", child.Inum)
		w.opts.state.AddContext("while recursing into %s%s", e.Path, e.Name)
		logger.Warn("walk: directory %d (%s%s) is already on the walk path, not entering", child.Inum, e.Path, e.Name)
		return nil
	}

	w.path.push(name)
	defer w.path.pop()

	return w.list(child, depth+1)
}

// eachChild calls fn for every record whose parent is dir.
func (w *walk) eachChild(dir catalog.Inum, fn func(*catalog.Inode) error) error {
	if lister, ok := w.fs.(catalog.ChildLister); ok && !w.opts.linearScan {
		children, err := lister.Children(dir)
		if err == nil {
			for _, inum := range children {
				if inum == dir {
					continue
				}
				child, err := w.fs.Lookup(inum)
				if err != nil {
					w.skip(err, inum, "entry %d of directory %d", inum, dir)
					continue
				}
				if err := fn(child); err != nil {
					return err
				}
			}
			return nil
		}
		logger.Warn("walk: child index for directory %d unavailable, scanning: %v", dir, err)
	}

	first, last := w.fs.FirstInum(), w.fs.LastInum()
	if first > last {
		return nil
	}
	for inum := first; ; inum++ {
		if inum != dir {
			child, err := w.fs.Lookup(inum)
			switch {
			case err == nil:
				if child.Parent == dir {
					if err := fn(child); err != nil {
						return err
					}
				}
			case !errors.Is(err, catalog.ErrNotFound):
				w.skip(err, inum, "scanning for children of directory %d", dir)
			}
		}
		if inum == last {
			return nil
		}
	}
}

func (w *walk) emit(e *Entry, kind string) error {
	w.stats.Entries++
	w.opts.metrics.RecordEntry(kind)
	if w.visitor.Visit(w.fs, e) == Stop {
		return errStop
	}
	return nil
}

// skip reports a record that had to be left out and counts it.
func (w *walk) skip(err error, inum catalog.Inum, format string, args ...any) {
	w.stats.Skipped++

	reason := "malformed"
	var de *diag.Error
	if !errors.As(err, &de) {
		de = diag.Wrap(diag.FSRead, err, "inode %d", inum)
	}
	if de.Category == diag.CategoryFS && de.Local == diag.FSRead.Local() {
		reason = "read"
	}
	w.opts.metrics.RecordSkipped(reason)

	w.opts.state.ReportError(de)
	w.opts.state.AddContext(format, args...)
	logger.Warn("walk: skipping inode %d: %v", inum, err)
}

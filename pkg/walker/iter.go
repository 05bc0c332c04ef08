package walker

import (
	"iter"

	"github.com/marmos91/catwalk/pkg/catalog"
)

// All returns the entries of a walk as a sequence. Breaking out of the loop
// stops the walk. A walk error is yielded last, with a nil entry.
//
//	for e, err := range walker.All(fs, root, walker.FlagRecurse) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(e.FullPath())
//	}
func All(fs catalog.Filesystem, start catalog.Inum, flags Flags, opts ...Option) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		done := false
		_, err := Walk(fs, start, flags, VisitorFunc(func(_ catalog.Filesystem, e *Entry) Action {
			if !yield(e, nil) {
				done = true
				return Stop
			}
			return Continue
		}), opts...)
		if err != nil && !done {
			yield(nil, err)
		}
	}
}

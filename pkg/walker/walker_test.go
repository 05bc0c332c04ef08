package walker

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/endian"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFixture:
//
//	/            1
//	  docs/      2
//	    a.txt    4
//	    old/     5
//	      b.txt  6
//	  z.txt      3
func sampleFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.dir(2, 1, "docs")
	f.file(3, 1, "z.txt")
	f.file(4, 2, "a.txt")
	f.dir(5, 2, "old")
	f.file(6, 5, "b.txt")
	return f
}

func collectWalk(t *testing.T, fs catalog.Filesystem, start catalog.Inum, flags Flags, opts ...Option) (*recorder, Stats) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithState(&diag.State{})}, opts...)
	stats, err := Walk(fs, start, flags, rec, opts...)
	require.NoError(t, err)
	return rec, stats
}

func TestWalk_DotEntriesFirst(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, _ := collectWalk(t, vol, 1, 0)

	require.GreaterOrEqual(t, len(rec.entries), 2)
	assert.Equal(t, ".", rec.entries[0].Name)
	assert.Equal(t, catalog.Inum(1), rec.entries[0].Inum)
	assert.Equal(t, "..", rec.entries[1].Name)
	assert.Equal(t, catalog.Inum(1), rec.entries[1].Inum, "root's parent is root")

	dots := 0
	for _, e := range rec.entries {
		if e.IsDot() {
			dots++
			assert.Equal(t, FlagAlloc|FlagDir, e.Flags)
			assert.True(t, e.IsDir())
		}
	}
	assert.Equal(t, 2, dots)
}

func TestWalk_DotDotOfSubdirectory(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, _ := collectWalk(t, vol, 5, 0)

	require.Len(t, rec.entries, 3)
	assert.Equal(t, catalog.Inum(5), rec.entries[0].Inum)
	assert.Equal(t, catalog.Inum(2), rec.entries[1].Inum)
	require.NotNil(t, rec.entries[1].Meta)
	assert.Equal(t, catalog.Inum(2), rec.entries[1].Meta.Inum)
	assert.Equal(t, "b.txt", rec.entries[2].Name)
}

func TestWalk_TwoFilesUnderRoot(t *testing.T) {
	f := newFixture(t)
	f.file(2, 1, "two")
	f.file(3, 1, "three")

	for name, fs := range map[string]catalog.Filesystem{
		"index": f.volume(),
		"scan":  scanOnly{f.volume()},
	} {
		t.Run(name, func(t *testing.T) {
			rec, stats := collectWalk(t, fs, 1, FlagReg)

			require.Len(t, rec.entries, 4)
			assert.Equal(t, []string{".", ".."}, rec.names()[:2])
			assert.ElementsMatch(t, []string{"two", "three"}, rec.names()[2:])

			var inums []catalog.Inum
			for _, e := range rec.entries[2:] {
				inums = append(inums, e.Inum)
				assert.Equal(t, catalog.Inum(1), e.Parent)
				assert.Equal(t, FlagAlloc|FlagReg, e.Flags)
			}
			assert.ElementsMatch(t, []catalog.Inum{2, 3}, inums)
			assert.Equal(t, 2, stats.Files)
			assert.False(t, stats.Stopped)
		})
	}
}

func TestWalk_Recursive(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, stats := collectWalk(t, vol, 1, FlagRecurse)

	assert.Equal(t, []string{"docs", "docs/a.txt", "docs/old", "docs/old/b.txt", "z.txt"}, rec.paths())
	assert.Equal(t, 2, stats.Dirs)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, len(rec.entries), stats.Entries)

	for _, e := range rec.entries {
		if e.Name == "b.txt" {
			assert.Equal(t, 2, e.Depth)
			assert.Equal(t, "docs/old/", e.Path)
			assert.Equal(t, catalog.Inum(5), e.Parent)
		}
	}
}

func TestWalk_RecursesThroughFilteredDirectories(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, _ := collectWalk(t, vol, 1, FlagReg|FlagRecurse)

	assert.Equal(t, []string{"docs/a.txt", "docs/old/b.txt", "z.txt"}, rec.paths())
}

func TestWalk_DirectoriesOnly(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, _ := collectWalk(t, vol, 1, FlagDir|FlagRecurse)

	assert.Equal(t, []string{"docs", "docs/old"}, rec.paths())
}

func TestWalk_UnallocatedFilter(t *testing.T) {
	f := sampleFixture(t)
	deleted := f.file(7, 1, "gone.txt")
	deleted.Allocated = false
	require.NoError(t, f.store.Put(t.Context(), deleted))
	vol := f.volume()

	rec, _ := collectWalk(t, vol, 1, FlagUnalloc)
	assert.Equal(t, []string{"gone.txt"}, rec.paths())
	assert.Equal(t, FlagUnalloc|FlagReg, rec.entries[2].Flags)

	rec, _ = collectWalk(t, vol, 1, FlagAlloc|FlagReg)
	assert.Equal(t, []string{"z.txt"}, rec.paths())
}

func TestWalk_DepthLimit(t *testing.T) {
	f := newFixture(t)
	for i := catalog.Inum(2); i <= 6; i++ {
		f.dir(i, i-1, fmt.Sprintf("d%d", i))
	}
	vol := f.volume()
	state := &diag.State{}

	rec, stats := collectWalk(t, vol, 1, FlagRecurse, WithMaxDepth(2), WithState(state))

	maxDepth := 0
	for _, e := range rec.entries {
		maxDepth = max(maxDepth, e.Depth)
	}
	assert.Equal(t, 2, maxDepth)
	assert.Equal(t, []string{"d2", "d2/d3", "d2/d3/d4"}, rec.paths())
	assert.Equal(t, 1, stats.DepthLimited)
	assert.False(t, state.IsSet(), "the depth limit is not an error")
}

func TestWalk_DefaultDepthLimit(t *testing.T) {
	f := newFixture(t)
	for i := catalog.Inum(2); i <= 80; i++ {
		f.dir(i, i-1, "d")
	}
	vol := f.volume()

	rec, stats := collectWalk(t, vol, 1, FlagRecurse)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, DefaultMaxDepth, last.Depth)
	assert.Equal(t, 1, stats.DepthLimited)
}

func TestWalk_StopOnFirstEntry(t *testing.T) {
	vol := sampleFixture(t).volume()
	rec := &recorder{stopAt: func(*Entry) bool { return true }}

	stats, err := Walk(vol, 1, FlagRecurse, rec, WithState(&diag.State{}))

	require.NoError(t, err)
	assert.Len(t, rec.entries, 1)
	assert.True(t, stats.Stopped)
	assert.Equal(t, 1, stats.Entries)
}

func TestWalk_StopInsideSubtreePropagates(t *testing.T) {
	vol := sampleFixture(t).volume()
	rec := &recorder{stopAt: func(e *Entry) bool { return e.Name == "a.txt" }}

	stats, err := Walk(vol, 1, FlagRecurse, rec, WithState(&diag.State{}))

	require.NoError(t, err)
	assert.True(t, stats.Stopped)
	assert.Equal(t, "a.txt", rec.entries[len(rec.entries)-1].Name)
	assert.NotContains(t, rec.names(), "z.txt")
	assert.NotContains(t, rec.names(), "old")
}

func TestWalk_MalformedKeySkipped(t *testing.T) {
	f := sampleFixture(t)
	f.raw(8, 1, catalog.RecordFile, []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x01})
	vol := f.volume()
	state := &diag.State{}

	rec, stats := collectWalk(t, vol, 1, 0, WithState(state))

	assert.Equal(t, []string{"docs", "z.txt"}, rec.paths())
	assert.Equal(t, 1, stats.Skipped)

	reported := state.Take()
	require.NotNil(t, reported)
	assert.True(t, errors.Is(reported, diag.Sentinel(diag.FSInodeCorrupt)))
	assert.Equal(t, "entry 8 of directory 1 (/)", reported.Context)
}

func TestWalk_OversizedKeySkipped(t *testing.T) {
	f := sampleFixture(t)
	f.raw(8, 1, catalog.RecordFile, []byte{0xff, 0xff, 0x00, 0x00, 0x00, 0x01})
	vol := f.volume()
	state := &diag.State{}

	_, stats := collectWalk(t, vol, 1, 0, WithState(state))

	assert.Equal(t, 1, stats.Skipped)
	assert.True(t, errors.Is(state.Take(), diag.Sentinel(diag.FSInodeCorrupt)))
}

func TestWalk_ReadFailureSkipped(t *testing.T) {
	f := sampleFixture(t)
	broken := f.file(8, 2, "broken")
	broken.KeyOffset = 1 << 20
	require.NoError(t, f.store.Put(t.Context(), broken))
	vol := f.volume()
	state := &diag.State{}

	rec, stats := collectWalk(t, vol, 1, FlagRecurse, WithState(state))

	assert.Equal(t, 1, stats.Skipped)
	assert.Contains(t, rec.paths(), "docs/old/b.txt")

	reported := state.Take()
	require.NotNil(t, reported)
	assert.True(t, errors.Is(reported, diag.Sentinel(diag.FSRead)))
	assert.Equal(t, "entry 8 of directory 2 (/docs/)", reported.Context)
}

func TestWalk_Cycle(t *testing.T) {
	f := newFixture(t)
	f.dir(2, 1, "a")
	f.dir(3, 2, "b")
	f.dir(4, 3, "c")
	vol := f.volume()

	// Rewrite a's parent to c: a -> b -> c -> a.
	a, err := vol.Lookup(2)
	require.NoError(t, err)
	a.Parent = 4
	require.NoError(t, f.store.Put(t.Context(), a))

	state := &diag.State{}
	rec, stats := collectWalk(t, vol, 2, FlagRecurse, WithState(state))

	assert.Equal(t, 1, stats.Cycles)
	assert.Equal(t, []string{"b", "b/c", "b/c/a"}, rec.paths())

	reported := state.Take()
	require.NotNil(t, reported)
	assert.True(t, errors.Is(reported, diag.Sentinel(diag.FSCorrupt)))
	assert.Equal(t, "while recursing into b/c/a", reported.Context)
}

func TestWalk_LinearScanMatchesIndex(t *testing.T) {
	vol := sampleFixture(t).volume()

	indexed, _ := collectWalk(t, vol, 1, FlagRecurse)
	scanned, _ := collectWalk(t, vol, 1, FlagRecurse, WithLinearScan())
	wrapped, _ := collectWalk(t, scanOnly{vol}, 1, FlagRecurse)

	assert.ElementsMatch(t, indexed.paths(), scanned.paths())
	assert.ElementsMatch(t, indexed.paths(), wrapped.paths())
}

func TestWalk_OutOfRangeStartIsNotFatal(t *testing.T) {
	f := sampleFixture(t)
	f.dir(50, 1, "far")
	f.file(51, 50, "inside")
	f.last = 10
	vol := f.volume()

	rec, _ := collectWalk(t, vol, 50, 0)

	assert.Equal(t, []string{".", "..", "inside"}, rec.names())
}

func TestWalk_UnknownStart(t *testing.T) {
	vol := sampleFixture(t).volume()

	_, err := Walk(vol, 42, 0, &recorder{}, WithState(&diag.State{}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrNotFound))
}

func TestWalk_RegularFileStart(t *testing.T) {
	vol := sampleFixture(t).volume()

	rec, _ := collectWalk(t, vol, 4, FlagRecurse)

	assert.Equal(t, []string{".", "..", "a.txt"}, rec.names())
	assert.Equal(t, catalog.Inum(2), rec.entries[1].Inum)
	assert.Equal(t, FlagAlloc|FlagReg, rec.entries[2].Flags)
}

func TestWalk_NameStopsAtEmbeddedNull(t *testing.T) {
	f := newFixture(t)
	f.raw(2, 1, catalog.RecordFile, f.key(1, []uint16{'a', 'b', 0, 'c'}))
	f.raw(3, 1, catalog.RecordFile, f.key(1, []uint16{'x', 0x00e9, 'y'}))
	vol := f.volume()

	rec, _ := collectWalk(t, vol, 1, 0)

	assert.Equal(t, []string{"ab", "x?y"}, rec.paths())
}

func TestWalk_LittleEndianVolume(t *testing.T) {
	f := newFixture(t)
	f.order = endian.Little
	f.file(2, 1, "little")
	vol := f.volume()

	rec, _ := collectWalk(t, vol, 1, 0)

	assert.Equal(t, []string{"little"}, rec.paths())
}

type countingMetrics struct {
	entries  map[string]int
	skipped  map[string]int
	outcomes []string
}

func (m *countingMetrics) RecordEntry(kind string)       { m.entries[kind]++ }
func (m *countingMetrics) RecordSkipped(reason string)   { m.skipped[reason]++ }
func (m *countingMetrics) RecordWalk(outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func TestWalk_Metrics(t *testing.T) {
	f := sampleFixture(t)
	f.raw(8, 1, catalog.RecordFile, []byte{0x00, 0x01})
	vol := f.volume()
	m := &countingMetrics{entries: map[string]int{}, skipped: map[string]int{}}

	collectWalk(t, vol, 1, FlagRecurse, WithMetrics(m))
	_, _ = Walk(vol, 1, 0, &recorder{stopAt: func(*Entry) bool { return true }}, WithMetrics(m), WithState(&diag.State{}))
	_, _ = Walk(vol, 99, 0, &recorder{}, WithMetrics(m), WithState(&diag.State{}))

	assert.Equal(t, 6+1, m.entries["dot"])
	assert.Equal(t, 2, m.entries["dir"])
	assert.Equal(t, 3, m.entries["reg"])
	assert.Equal(t, 1, m.skipped["malformed"])
	assert.Equal(t, []string{"complete", "stopped", "error"}, m.outcomes)
}

func TestFlags(t *testing.T) {
	assert.Equal(t, FlagAlloc|FlagUnalloc|FlagDir|FlagReg, Flags(0).normalize())
	assert.Equal(t, FlagAlloc|FlagDir|FlagReg|FlagRecurse, (FlagAlloc | FlagRecurse).normalize())

	assert.True(t, FlagReg.normalize().matches(FlagAlloc|FlagReg))
	assert.False(t, FlagReg.normalize().matches(FlagAlloc|FlagDir))
	assert.False(t, (FlagUnalloc | FlagReg).matches(FlagAlloc|FlagReg))

	assert.Equal(t, "alloc|reg|recurse", (FlagAlloc | FlagReg | FlagRecurse).String())
	assert.Equal(t, "none", Flags(0).String())
}

func TestPathStack(t *testing.T) {
	var p pathStack
	assert.Equal(t, "", p.String())
	assert.Equal(t, "/", p.display())

	p.push("docs")
	p.push("old")
	assert.Equal(t, "docs/old/", p.String())

	p.pop()
	assert.Equal(t, "docs/", p.String())
	p.pop()
	p.pop()
	assert.Equal(t, "", p.String())
}

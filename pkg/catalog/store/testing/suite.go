// Package testing provides a contract test suite for catalog.InodeStore
// implementations.
package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the InodeStore interface contract, not implementation
// details, so it runs unchanged against every backend.
//
// Usage:
//
//	func TestMyInodeStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) catalog.InodeStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) catalog.InodeStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("PutGet_RoundTrip", suite.testPutGet)
	t.Run("Put_ReplacesAndReindexes", suite.testPutReplaces)
	t.Run("Children_Sorted", suite.testChildrenSorted)
	t.Run("Children_Empty", suite.testChildrenEmpty)
	t.Run("Count", suite.testCount)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) newStore(t *testing.T) catalog.InodeStore {
	store := suite.NewStore(t)
	t.Cleanup(func() { store.Close() })
	return store
}

// SampleInode returns a fully populated inode for round-trip checks.
func SampleInode(inum, parent catalog.Inum, typ catalog.RecordType) *catalog.Inode {
	ts := time.Date(2007, 12, 20, 20, 32, 38, 0, time.UTC)
	return &catalog.Inode{
		Inum:       inum,
		Parent:     parent,
		Type:       typ,
		KeyOffset:  int64(inum) * 512,
		Allocated:  true,
		Size:       uint64(inum) * 100,
		Valence:    3,
		OwnerID:    501,
		GroupID:    20,
		Mode:       0o100644,
		CreateTime: ts,
		ModifyTime: ts.Add(time.Hour),
		ChangeTime: ts.Add(2 * time.Hour),
		AccessTime: ts.Add(3 * time.Hour),
		BackupTime: time.Time{},
	}
}

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.newStore(t)

	_, err := store.Get(testContext(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrNotFound), "got %v", err)
}

func (suite *StoreTestSuite) testPutGet(t *testing.T) {
	store := suite.newStore(t)
	want := SampleInode(17, 2, catalog.RecordFile)

	require.NoError(t, store.Put(testContext(), want))

	got, err := store.Get(testContext(), 17)
	require.NoError(t, err)
	assert.Equal(t, want.Inum, got.Inum)
	assert.Equal(t, want.Parent, got.Parent)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.KeyOffset, got.KeyOffset)
	assert.Equal(t, want.Allocated, got.Allocated)
	assert.Equal(t, want.Size, got.Size)
	assert.Equal(t, want.Valence, got.Valence)
	assert.Equal(t, want.OwnerID, got.OwnerID)
	assert.Equal(t, want.GroupID, got.GroupID)
	assert.Equal(t, want.Mode, got.Mode)
	assert.True(t, want.CreateTime.Equal(got.CreateTime))
	assert.True(t, want.ModifyTime.Equal(got.ModifyTime))
	assert.True(t, want.ChangeTime.Equal(got.ChangeTime))
	assert.True(t, want.AccessTime.Equal(got.AccessTime))
	assert.True(t, got.BackupTime.IsZero())

	// The store owns its copy.
	got.Parent = 99
	again, err := store.Get(testContext(), 17)
	require.NoError(t, err)
	assert.Equal(t, catalog.Inum(2), again.Parent)
}

func (suite *StoreTestSuite) testPutReplaces(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	require.NoError(t, store.Put(ctx, SampleInode(20, 2, catalog.RecordFolder)))
	require.NoError(t, store.Put(ctx, SampleInode(20, 16, catalog.RecordFolder)))

	got, err := store.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, catalog.Inum(16), got.Parent)

	old, err := store.Children(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := store.Children(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Inum{20}, moved)
}

func (suite *StoreTestSuite) testChildrenSorted(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	for _, inum := range []catalog.Inum{300, 18, 2000, 19} {
		require.NoError(t, store.Put(ctx, SampleInode(inum, 2, catalog.RecordFile)))
	}
	require.NoError(t, store.Put(ctx, SampleInode(21, 18, catalog.RecordFile)))

	children, err := store.Children(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Inum{18, 19, 300, 2000}, children)

	nested, err := store.Children(ctx, 18)
	require.NoError(t, err)
	assert.Equal(t, []catalog.Inum{21}, nested)
}

func (suite *StoreTestSuite) testChildrenEmpty(t *testing.T) {
	store := suite.newStore(t)

	children, err := store.Children(testContext(), 7)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func (suite *StoreTestSuite) testCount(t *testing.T) {
	store := suite.newStore(t)
	ctx := testContext()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for inum := catalog.Inum(16); inum < 26; inum++ {
		require.NoError(t, store.Put(ctx, SampleInode(inum, 2, catalog.RecordFile)))
	}
	// Replacing must not double count.
	require.NoError(t, store.Put(ctx, SampleInode(16, 2, catalog.RecordFile)))

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

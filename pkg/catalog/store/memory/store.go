// Package memory implements catalog.InodeStore in memory.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
)

// MemoryInodeStore keeps the inode table in maps.
//
// Storage Model:
//   - inodes: inum → inode (copy owned by the store)
//   - children: parent inum → set of child inums
//
// Thread Safety:
// All operations are protected by a single read-write mutex.
type MemoryInodeStore struct {
	mu       sync.RWMutex
	inodes   map[catalog.Inum]*catalog.Inode
	children map[catalog.Inum]map[catalog.Inum]struct{}
}

// NewMemoryInodeStore creates an empty store.
func NewMemoryInodeStore() *MemoryInodeStore {
	return &MemoryInodeStore{
		inodes:   make(map[catalog.Inum]*catalog.Inode),
		children: make(map[catalog.Inum]map[catalog.Inum]struct{}),
	}
}

func (s *MemoryInodeStore) Put(ctx context.Context, inode *catalog.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-parenting an existing inode must drop the stale index entry.
	if old, ok := s.inodes[inode.Inum]; ok && old.Parent != inode.Parent {
		delete(s.children[old.Parent], inode.Inum)
	}

	cp := *inode
	s.inodes[inode.Inum] = &cp

	set, ok := s.children[inode.Parent]
	if !ok {
		set = make(map[catalog.Inum]struct{})
		s.children[inode.Parent] = set
	}
	set[inode.Inum] = struct{}{}
	return nil
}

func (s *MemoryInodeStore) Get(ctx context.Context, inum catalog.Inum) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inode, ok := s.inodes[inum]
	if !ok {
		return nil, diag.New(diag.FSInumNum, "inode %d not in catalog", inum)
	}
	cp := *inode
	return &cp, nil
}

func (s *MemoryInodeStore) Children(ctx context.Context, parent catalog.Inum) ([]catalog.Inum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.children[parent]
	out := make([]catalog.Inum, 0, len(set))
	for inum := range set {
		out = append(out, inum)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryInodeStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inodes), nil
}

func (s *MemoryInodeStore) Close() error {
	return nil
}

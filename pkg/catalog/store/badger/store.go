// Package badger implements catalog.InodeStore on BadgerDB.
//
// A persistent store lets a large catalog be parsed once and then walked
// repeatedly (fls, istat, lookup) without re-reading the image.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/diag"
)

// BadgerInodeStoreConfig configures a BadgerInodeStore.
type BadgerInodeStoreConfig struct {
	// DBPath is the directory holding the database files. Ignored when
	// InMemory is set.
	DBPath string

	// InMemory keeps the database entirely in memory
	InMemory bool

	// BlockCacheSizeMB is the block cache size (default 64MB)
	BlockCacheSizeMB int64
}

// BadgerInodeStore is a persistent InodeStore. See keys.go for the schema.
//
// Thread Safety:
// BadgerDB transactions provide isolation; the store keeps no other state.
type BadgerInodeStore struct {
	db *badger.DB
}

// NewBadgerInodeStore opens (or creates) a store.
func NewBadgerInodeStore(ctx context.Context, config BadgerInodeStoreConfig) (*BadgerInodeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger inode store: db path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}

	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerInodeStore{db: db}, nil
}

func (s *BadgerInodeStore) Put(ctx context.Context, inode *catalog.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := encodeInode(inode)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		// Drop the stale index entry when an inode moves to a new parent.
		item, err := txn.Get(keyInode(inode.Inum))
		switch {
		case err == nil:
			var old *catalog.Inode
			if err := item.Value(func(val []byte) error {
				old, err = decodeInode(val)
				return err
			}); err != nil {
				return err
			}
			if old.Parent != inode.Parent {
				if err := txn.Delete(keyChild(old.Parent, inode.Inum)); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(keyInode(inode.Inum), value); err != nil {
			return err
		}
		return txn.Set(keyChild(inode.Parent, inode.Inum), nil)
	})
}

func (s *BadgerInodeStore) Get(ctx context.Context, inum catalog.Inum) (*catalog.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inode *catalog.Inode
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyInode(inum))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return diag.New(diag.FSInumNum, "inode %d not in catalog", inum)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			inode, err = decodeInode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return inode, nil
}

func (s *BadgerInodeStore) Children(ctx context.Context, parent catalog.Inum) ([]catalog.Inum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	children := []catalog.Inum{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyChildPrefix(parent)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			child, ok := childFromKey(it.Item().Key())
			if !ok {
				return fmt.Errorf("malformed children index key %x", it.Item().Key())
			}
			children = append(children, child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (s *BadgerInodeStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixInode)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerInodeStore) Close() error {
	return s.db.Close()
}

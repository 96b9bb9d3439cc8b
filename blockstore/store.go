// Package blockstore implements the mesh's content-addressed block
// store: disk-backed block persistence, an alias/pin index on top of
// buntdb, count+byte-bounded in-memory caches, and a directory-walking
// GC pass over unpinned blocks.
/*
 * Adapted from the aistore fs/mpather idiom of separating a fast
 * in-memory working set from authoritative on-disk state, and from
 * core/lom.go's per-entity lock discipline generalized here to a
 * single store-wide RWMutex guarding the in-memory caches (the alias/pin
 * index relies on buntdb's own transactions; this package's lock is a
 * plain, non-reentrant RWMutex).
 */
package blockstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/tidwall/buntdb"

	"github.com/banyanmesh/core/cmn/cos"
	"github.com/banyanmesh/core/cmn/debug"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/model"
)

const (
	aliasPrefix = "alias:"
	pinPrefix   = "pin:"
)

// Store is a disk-backed, content-addressed block store.
type Store struct {
	dir string
	db  *buntdb.DB

	mu      sync.RWMutex
	blocks  *blockCache
	branches *branchCache
}

// Open opens (or creates) a block store rooted at dir, with its
// alias/pin index persisted in an embedded buntdb file.
func Open(dir string, blockCacheCount int, blockCacheBytes, branchCacheBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := buntdb.Open(filepath.Join(dir, "index.bunt"))
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:      dir,
		db:       db,
		blocks:   newBlockCache(blockCacheCount, blockCacheBytes),
		branches: newBranchCache(branchCacheBytes),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) path(c model.Cid) string {
	h := hex.EncodeToString(c.Bytes())
	// two-level fan-out, same idea as a git object store, keeps any
	// one directory from growing unbounded.
	return filepath.Join(s.dir, "blocks", h[:2], h[2:])
}

// branchNodeTag mirrors banyan's internal branch-node tag byte (see
// banyan/node.go's tagBranch): the leading byte of every block this
// store holds, used here only to decide which bounded cache a block
// belongs in, never to interpret the block's contents.
const branchNodeTag = 1

func (s *Store) cacheGet(block []byte, key string) ([]byte, bool) {
	if len(block) > 0 && block[0] == branchNodeTag {
		return s.branches.get(key)
	}
	return s.blocks.get(key)
}

func (s *Store) cacheAdd(key string, block []byte) {
	if len(block) > 0 && block[0] == branchNodeTag {
		s.branches.add(key, block)
		return
	}
	s.blocks.add(key, block)
}

// Put writes block to disk (if not already present) and returns its
// CID.
func (s *Store) Put(ctx context.Context, block []byte) (model.Cid, error) {
	c, err := model.CidFromBlock(block)
	if err != nil {
		return model.Cid{}, err
	}
	p := s.path(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(p); err == nil {
		s.cacheAdd(c.String(), block)
		return c, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return model.Cid{}, err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, block, 0o644); err != nil {
		return model.Cid{}, err
	}
	if err := os.Rename(tmp, p); err != nil {
		return model.Cid{}, err
	}
	s.cacheAdd(c.String(), block)
	return c, nil
}

// Get reads a block by CID, consulting the in-memory cache first.
func (s *Store) Get(ctx context.Context, c model.Cid) ([]byte, error) {
	key := c.String()
	s.mu.RLock()
	if b, ok := s.blocks.get(key); ok {
		s.mu.RUnlock()
		return b, nil
	}
	if b, ok := s.branches.get(key); ok {
		s.mu.RUnlock()
		return b, nil
	}
	s.mu.RUnlock()

	b, err := os.ReadFile(s.path(c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cos.NewErrNotFound("block %s", c)
		}
		return nil, err
	}
	s.mu.Lock()
	s.cacheAdd(key, b)
	s.mu.Unlock()
	return b, nil
}

func (s *Store) Has(ctx context.Context, c model.Cid) (bool, error) {
	s.mu.RLock()
	_, inBlocks := s.blocks.get(c.String())
	_, inBranches := s.branches.get(c.String())
	if inBlocks || inBranches {
		s.mu.RUnlock()
		return true, nil
	}
	s.mu.RUnlock()
	_, err := os.Stat(s.path(c))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Alias points name at cid; a nil cid clears the alias (spec's consumed
// `alias(name, Cid?) -> ()`). It records the name only: neither cid nor
// the blocks reachable from it are pinned, and GC keeps only blocks
// marked by Pin or TempPin.
func (s *Store) Alias(name string, c *model.Cid) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		key := aliasPrefix + name
		if c == nil {
			_, err := tx.Delete(key)
			if err != nil && err != buntdb.ErrNotFound {
				return err
			}
			return nil
		}
		_, _, err := tx.Set(key, c.String(), nil)
		return err
	})
}

// Resolve looks up the CID currently aliased to name.
func (s *Store) Resolve(name string) (model.Cid, bool, error) {
	var out model.Cid
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(aliasPrefix + name)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		c, perr := model.ParseCid(v)
		if perr != nil {
			return perr
		}
		out, found = c, true
		return nil
	})
	return out, found, err
}

// Pin marks a CID as GC-exempt indefinitely.
func (s *Store) Pin(c model.Cid) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(pinPrefix+c.String(), "1", nil)
		return err
	})
}

func (s *Store) Unpin(c model.Cid) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(pinPrefix + c.String())
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

// TempPin marks a CID as GC-exempt until ttl elapses — used to protect
// blocks mid-sync before an alias is updated to cover them.
func (s *Store) TempPin(c model.Cid, ttl time.Duration) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(pinPrefix+c.String(), "1", &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
}

func (s *Store) isPinned(tx *buntdb.Tx, c model.Cid) bool {
	_, err := tx.Get(pinPrefix + c.String())
	return err == nil
}

// interface guard: Store implements the banyan.BlockStore contract.
var _ interface {
	Put(context.Context, []byte) (model.Cid, error)
	Get(context.Context, model.Cid) ([]byte, error)
	Has(context.Context, model.Cid) (bool, error)
} = (*Store)(nil)

// GC walks the on-disk block directory, deleting every unpinned block,
// bounded by targetDur to avoid starving foreground I/O (spec §5).
func (s *Store) GC(ctx context.Context, targetDur time.Duration) (scanned, deleted int, err error) {
	deadline := time.Now().Add(targetDur)
	blocksDir := filepath.Join(s.dir, "blocks")
	if _, statErr := os.Stat(blocksDir); os.IsNotExist(statErr) {
		return 0, 0, nil
	}

	var pinned map[string]struct{}
	if err := s.db.View(func(tx *buntdb.Tx) error {
		pinned = make(map[string]struct{})
		return tx.AscendKeys(pinPrefix+"*", func(key, _ string) bool {
			pinned[key[len(pinPrefix):]] = struct{}{}
			return true
		})
	}); err != nil {
		return 0, 0, err
	}

	walkErr := godirwalk.Walk(blocksDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if time.Now().After(deadline) {
				return filepath.SkipDir
			}
			scanned++
			c, derr := cidFromPath(blocksDir, osPathname)
			if derr != nil {
				debug.Assert(false, "blockstore: malformed block path", osPathname)
				return nil
			}
			if _, ok := pinned[c.String()]; ok {
				return nil
			}
			if rmErr := os.Remove(osPathname); rmErr != nil {
				nlog.Warningf("blockstore: gc: remove %s: %v", osPathname, rmErr)
				return nil
			}
			s.mu.Lock()
			s.blocks.remove(c.String())
			s.branches.remove(c.String())
			s.mu.Unlock()
			deleted++
			return nil
		},
	})
	if walkErr != nil && walkErr != filepath.SkipDir {
		return scanned, deleted, walkErr
	}
	return scanned, deleted, nil
}

func cidFromPath(root, p string) (model.Cid, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return model.Cid{}, err
	}
	h := filepath.Dir(rel) + filepath.Base(rel)
	b, err := hex.DecodeString(h)
	if err != nil {
		return model.Cid{}, fmt.Errorf("blockstore: bad block path %q: %w", p, err)
	}
	return model.CidFromBytes(b)
}

// Package indexdb implements the mesh's persistent index: a monotone
// Lamport counter, the observed-lamport high-water mark, and the set
// of known StreamIds used to re-hydrate at startup (spec §6).
/*
 * Adapted from the aistore cmn/cos/fs.go persisted-value idiom, swapped
 * from a JSON-over-file encoding to a buntdb-backed one since this
 * index is read and updated far more often than any file-backed config
 * the teacher persists.
 */
package indexdb

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/banyanmesh/core/model"
)

const (
	keyLamport = "lamport"
	keyObserved = "observed_lamport"
	streamPrefix = "stream:"
)

// DB is the mesh's persistent index, embedding a buntdb store.
type DB struct {
	db *buntdb.DB
	mu sync.Mutex
}

func Open(dir string) (*DB, error) {
	db, err := buntdb.Open(filepath.Join(dir, "index.bunt"))
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// IncreaseLamport reserves a contiguous range of n Lamport values and
// returns the first one in the range; the counter is advanced and
// persisted before returning (spec's `increase_lamport(n) -> initial`).
func (d *DB) IncreaseLamport(n uint64) (model.LamportTimestamp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var initial uint64
	err := d.db.Update(func(tx *buntdb.Tx) error {
		cur, err := readUint(tx, keyLamport)
		if err != nil {
			return err
		}
		initial = cur
		_, _, err = tx.Set(keyLamport, strconv.FormatUint(cur+n, 10), nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return model.LamportTimestamp(initial), nil
}

// ObserveLamport advances the observed-lamport high-water mark to
// max(current, v).
func (d *DB) ObserveLamport(v model.LamportTimestamp) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Update(func(tx *buntdb.Tx) error {
		cur, err := readUint(tx, keyObserved)
		if err != nil {
			return err
		}
		if uint64(v) > cur {
			_, _, err = tx.Set(keyObserved, strconv.FormatUint(uint64(v), 10), nil)
			return err
		}
		return nil
	})
}

// AdvanceLamport bumps the persistent Lamport counter to
// max(current, remote)+1 and raises the observed-lamport high-water
// mark to remote if higher (spec §4.2: every ingested gossip message
// advances the counter this way, persisted before acknowledging).
func (d *DB) AdvanceLamport(remote model.LamportTimestamp) (model.LamportTimestamp, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var next uint64
	err := d.db.Update(func(tx *buntdb.Tx) error {
		cur, err := readUint(tx, keyLamport)
		if err != nil {
			return err
		}
		next = cur
		if uint64(remote) > next {
			next = uint64(remote)
		}
		next++
		if _, _, err := tx.Set(keyLamport, strconv.FormatUint(next, 10), nil); err != nil {
			return err
		}
		obs, err := readUint(tx, keyObserved)
		if err != nil {
			return err
		}
		if uint64(remote) > obs {
			_, _, err = tx.Set(keyObserved, strconv.FormatUint(uint64(remote), 10), nil)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return model.LamportTimestamp(next), nil
}

func (d *DB) ObservedLamport() (model.LamportTimestamp, error) {
	var v uint64
	err := d.db.View(func(tx *buntdb.Tx) error {
		var err error
		v, err = readUint(tx, keyObserved)
		return err
	})
	return model.LamportTimestamp(v), err
}

// KnownStreams returns every StreamId recorded via AddKnownStream.
func (d *DB) KnownStreams() ([]model.StreamId, error) {
	var out []model.StreamId
	err := d.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(streamPrefix+"*", func(_, value string) bool {
			if id, err := parseStreamId(value); err == nil {
				out = append(out, id)
			}
			return true
		})
	})
	return out, err
}

// AddKnownStream persists s so it survives restart.
func (d *DB) AddKnownStream(s model.StreamId) error {
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(streamPrefix+s.String(), s.String(), nil)
		return err
	})
}

func readUint(tx *buntdb.Tx, key string) (uint64, error) {
	v, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func parseStreamId(s string) (model.StreamId, error) {
	i := len(s) - 1
	for i >= 0 && s[i] != '/' {
		i--
	}
	if i < 0 {
		return model.StreamId{}, buntdb.ErrNotFound
	}
	node, err := model.ParseNodeId(s[:i])
	if err != nil {
		return model.StreamId{}, err
	}
	nr, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return model.StreamId{}, err
	}
	return model.NewStreamId(node, model.StreamNr(nr)), nil
}

package node

import (
	"context"
	"sync"
	"time"

	"github.com/banyanmesh/core/bitswap"
	"github.com/banyanmesh/core/blockstore"
	"github.com/banyanmesh/core/cmn/cos"
	"github.com/banyanmesh/core/model"
)

// fetchingStore wraps the local blockstore so that a cache miss
// transparently fetches the missing block over bitswap and blocks
// until it arrives (or ctx is cancelled), rather than failing. It
// implements banyan.BlockStore, so banyan.WalkFromRoot performs
// careful-sync (spec §4.4) simply by walking the tree: every Get it
// issues is either already local or fetched on demand.
type fetchingStore struct {
	bs     *blockstore.Store
	engine *bitswap.Engine

	mu       sync.Mutex
	waiting  map[string][]chan []byte
}

func newFetchingStore(bs *blockstore.Store, engine *bitswap.Engine) *fetchingStore {
	return &fetchingStore{bs: bs, engine: engine, waiting: make(map[string][]chan []byte)}
}

// Put and Has pass straight through to the local blockstore; only Get
// needs fetch-on-miss behavior.
func (f *fetchingStore) Put(ctx context.Context, block []byte) (model.Cid, error) {
	return f.bs.Put(ctx, block)
}

func (f *fetchingStore) Has(ctx context.Context, c model.Cid) (bool, error) {
	return f.bs.Has(ctx, c)
}

// Get returns c's block, fetching it over bitswap on a local miss and
// blocking until either the block is delivered or ctx is cancelled —
// cancelling ctx (the switch_map supersede case, spec §5) unblocks
// every Get waiting on behalf of the sync it belonged to.
func (f *fetchingStore) Get(ctx context.Context, c model.Cid) ([]byte, error) {
	block, err := f.bs.Get(ctx, c)
	if err == nil {
		return block, nil
	}
	if !cos.IsErrNotFound(err) {
		return nil, err
	}

	ch := f.registerWait(c)
	if err := f.engine.Want(ctx, []model.Cid{c}, time.Now()); err != nil {
		f.abandonWait(c, ch)
		return nil, err
	}
	select {
	case block := <-ch:
		return block, nil
	case <-ctx.Done():
		f.abandonWait(c, ch)
		return nil, ctx.Err()
	}
}

// deliver is registered as the bitswap engine's OnDeliver hook: it
// persists the block locally and wakes every fetchingStore.Get
// currently blocked on it.
func (f *fetchingStore) deliver(c model.Cid, block []byte) {
	if _, err := f.bs.Put(context.Background(), block); err != nil {
		return
	}
	f.mu.Lock()
	chans := f.waiting[c.String()]
	delete(f.waiting, c.String())
	f.mu.Unlock()
	for _, ch := range chans {
		ch <- block
	}
}

func (f *fetchingStore) registerWait(c model.Cid) chan []byte {
	ch := make(chan []byte, 1)
	f.mu.Lock()
	key := c.String()
	f.waiting[key] = append(f.waiting[key], ch)
	f.mu.Unlock()
	return ch
}

func (f *fetchingStore) abandonWait(c model.Cid, ch chan []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := c.String()
	chans := f.waiting[key]
	for i, cur := range chans {
		if cur == ch {
			f.waiting[key] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}

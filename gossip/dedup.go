package gossip

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/banyanmesh/core/model"
)

// Dedup filters root Cids this node has already ingested, so a
// RootMap digest that repeats entries already handled via RootUpdate
// doesn't re-trigger a sync attempt. The filter is probabilistic: Seen
// can report true for a Cid that was never recorded, and a caller that
// skips Ingest on true then skips that Cid.
type Dedup struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

// NewDedup sizes the filter for roughly capacity distinct Cids before
// its false-positive rate climbs meaningfully.
func NewDedup(capacity uint) *Dedup {
	return &Dedup{filter: cuckoo.NewFilter(capacity)}
}

// Seen reports whether cid was already recorded, and records it if
// not (insert-unique semantics).
func (d *Dedup) Seen(cid model.Cid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := cid.Bytes()
	if d.filter.Lookup(b) {
		return true
	}
	d.filter.InsertUnique(b)
	return false
}

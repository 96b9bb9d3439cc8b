package banyan

import (
	"context"

	"github.com/banyanmesh/core/model"
)

// BlockStore is the subset of the block store this package depends on:
// content-addressed get/put of raw node blocks. The concrete
// implementation lives in package blockstore; banyan only consumes this
// interface to avoid an import cycle. blockstore's GC does not walk
// banyan trees; it keeps only blocks that are explicitly pinned.
type BlockStore interface {
	Put(ctx context.Context, block []byte) (model.Cid, error)
	Get(ctx context.Context, c model.Cid) ([]byte, error)
	Has(ctx context.Context, c model.Cid) (bool, error)
}

package store

import (
	"context"

	"github.com/banyanmesh/core/banyan"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/model"
)

// RetentionConfig is a per-stream retention triple; any present
// constraint trims from the head, preserving the tail (spec §3).
type RetentionConfig struct {
	MaxEvents      *int64
	MaxAge         *int64 // microseconds, compared against model.Now()
	MaxSizeBytes   *int64
}

// ownStream is the mutable builder-state side of a local stream: a
// Banyan builder guarded by an async mutex, plus the stream's last
// published root.
type ownStream struct {
	nr      model.StreamNr
	builder *banyan.Builder
	mu      asyncMutex
	retain  RetentionConfig

	// nextOffset is the next Offset to assign on this stream. It only
	// ever increases: retention pruning discards sealed leaves from
	// builder, which would otherwise make builder.Count() regress and
	// reissue already-used offsets.
	nextOffset int64

	lastHeaderCid model.Cid
	lastLamport   model.LamportTimestamp
	lastRoot      model.Cid
}

func newOwnStream(nr model.StreamNr, cfg config.Banyan, bs banyan.BlockStore) *ownStream {
	return &ownStream{
		nr:      nr,
		builder: banyan.NewBuilder(cfg, bs),
		mu:      newAsyncMutex(),
	}
}

// publish packs any remaining tail, writes the tree header, and
// updates the stream's alias, under the caller's already-held lock.
func (o *ownStream) publish(ctx context.Context, bs BlockStore, stream model.StreamId, lamport model.LamportTimestamp) error {
	root, _, err := o.builder.Root(ctx)
	if err != nil {
		return err
	}
	header := TreeHeader{Root: root, Lamport: lamport, NextOffset: o.nextOffset}
	block, err := encodeHeader(header)
	if err != nil {
		return err
	}
	headerCid, err := bs.Put(ctx, block)
	if err != nil {
		return err
	}
	if err := bs.Alias(aliasName(stream), &headerCid); err != nil {
		return err
	}
	o.lastHeaderCid = headerCid
	o.lastLamport = lamport
	o.lastRoot = root
	return nil
}

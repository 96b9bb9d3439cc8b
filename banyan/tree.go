// Package banyan implements the mesh's packed, content-addressed event
// tree: an append-only, in-order-indexed structure of sealed leaves and
// branches, built and read against a content-addressed BlockStore.
/*
 * No teacher file builds a persistent packed tree; the packing
 * algorithm below follows spec.md §4.1 directly. The builder/iterator
 * split (mutable append-side Builder vs read-only Reader walking a
 * published root) mirrors the teacher's LOM-vs-cluster-map split: one
 * side mutates under a lock and publishes snapshots, the other reads
 * only published, immutable state.
 */
package banyan

import (
	"context"
	"fmt"
	"sync"

	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/model"
)

type leafRef struct {
	cid      model.Cid
	summary  Summary
	byteSize int64
}

// Builder accumulates appended events for one stream, sealing them into
// leaves and branches once the unsealed tail grows past MaxLevel.
type Builder struct {
	cfg   config.Banyan
	store BlockStore

	mu       sync.Mutex
	leaves   []leafRef
	unsealed []model.Event
}

func NewBuilder(cfg config.Banyan, store BlockStore) *Builder {
	return &Builder{cfg: cfg, store: store}
}

// Append extends the unsealed tail with events already stamped with
// their final EventKey; it packs automatically once the tail exceeds
// cfg.MaxLevel.
func (b *Builder) Append(ctx context.Context, events []model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsealed = append(b.unsealed, events...)
	if len(b.unsealed) > b.cfg.MaxLevel {
		return b.pack(ctx)
	}
	return nil
}

// Pack forces a pack pass regardless of the unsealed tail's length; the
// retention pruner calls this before applying its filters (spec §4.1:
// "pack() first to ensure sealing").
func (b *Builder) Pack(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pack(ctx)
}

// under mu
func (b *Builder) pack(ctx context.Context) error {
	chunks := chunkEvents(b.unsealed, b.cfg.MaxLeafCount, b.cfg.TargetLeafSize)
	newLeaves := make([]leafRef, 0, len(chunks))
	for _, chunk := range chunks {
		ref, err := sealLeaf(ctx, b.store, chunk)
		if err != nil {
			// builder's pre-transaction snapshot stays intact: no leaves
			// committed from this failed pass.
			return err
		}
		newLeaves = append(newLeaves, ref)
	}
	b.leaves = append(b.leaves, newLeaves...)
	b.unsealed = b.unsealed[:0]
	return nil
}

// chunkEvents splits events into leaf-sized groups bounded by both key
// count and payload byte size.
func chunkEvents(events []model.Event, maxKeys int, targetBytes int64) [][]model.Event {
	if len(events) == 0 {
		return nil
	}
	var chunks [][]model.Event
	start := 0
	var curBytes int64
	for i, e := range events {
		curBytes += int64(len(e.Payload))
		n := i - start + 1
		if n >= maxKeys || curBytes >= targetBytes {
			chunks = append(chunks, events[start:i+1])
			start = i + 1
			curBytes = 0
		}
	}
	if start < len(events) {
		chunks = append(chunks, events[start:])
	}
	return chunks
}

func sealLeaf(ctx context.Context, store BlockStore, events []model.Event) (leafRef, error) {
	leaf := &Leaf{
		Keys:     make([]model.AxKey, len(events)),
		Payloads: make([]model.Payload, len(events)),
	}
	for i, e := range events {
		leaf.Keys[i] = e.AxKey()
		leaf.Payloads[i] = e.Payload
	}
	block, err := encodeLeaf(leaf)
	if err != nil {
		return leafRef{}, err
	}
	cid, err := store.Put(ctx, block)
	if err != nil {
		return leafRef{}, err
	}
	return leafRef{cid: cid, summary: leaf.summary(), byteSize: leaf.byteSize()}, nil
}

// Count returns the total number of sealed plus unsealed events.
func (b *Builder) Count() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sealedCount() + int64(len(b.unsealed))
}

func (b *Builder) sealedCount() int64 {
	var n int64
	for _, l := range b.leaves {
		n += l.summary.EventCount
	}
	return n
}

func (b *Builder) sealedByteSize() int64 {
	var n int64
	for _, l := range b.leaves {
		n += l.byteSize
	}
	return n
}

// TrimHead drops whole sealed leaves from the head of the tree, in
// order, while any of the present bounds still demands it: maxEvents
// and maxSizeBytes each keep dropping while the remaining tail would
// still be at or above the bound after the drop, and stop as soon as
// it would fall below it, while minTime drops any leaf
// whose newest event is already older than the cutoff. A nil bound is
// unenforced. Pack is called first so every event is sealed into a
// leaf (spec §4.1: "pack() first to ensure sealing").
func (b *Builder) TrimHead(ctx context.Context, maxEvents *int64, minTime *model.Timestamp, maxSizeBytes *int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.unsealed) > 0 {
		if err := b.pack(ctx); err != nil {
			return 0, err
		}
	}
	if maxEvents == nil && minTime == nil && maxSizeBytes == nil {
		return 0, nil
	}

	remainingEvents := b.sealedCount()
	remainingBytes := b.sealedByteSize()
	drop := 0
	for drop < len(b.leaves) {
		leaf := b.leaves[drop]
		restEvents := remainingEvents - leaf.summary.EventCount
		restBytes := remainingBytes - leaf.byteSize
		overCount := maxEvents != nil && restEvents >= *maxEvents
		overSize := maxSizeBytes != nil && restBytes >= *maxSizeBytes
		overAge := minTime != nil && leaf.summary.TimeMax < *minTime
		if !(overCount || overSize || overAge) {
			break
		}
		remainingEvents = restEvents
		remainingBytes = restBytes
		drop++
	}
	if drop == 0 {
		return 0, nil
	}
	dropped := b.sealedCount() - remainingEvents
	b.leaves = append([]leafRef(nil), b.leaves[drop:]...)
	return dropped, nil
}

// Root packs any remaining unsealed events, writes the branch levels
// covering every sealed leaf, and returns the resulting root CID and
// its overall Summary. An empty tree returns model.Undef.
func (b *Builder) Root(ctx context.Context) (model.Cid, Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.unsealed) > 0 {
		if err := b.pack(ctx); err != nil {
			return model.Cid{}, Summary{}, err
		}
	}
	if len(b.leaves) == 0 {
		return model.Undef, Summary{}, nil
	}
	if len(b.leaves) == 1 {
		return b.leaves[0].cid, b.leaves[0].summary, nil
	}
	return buildBranches(ctx, b.store, b.leaves, b.cfg.MaxKeyBranches)
}

// buildBranches groups leaves/sub-branches bottom-up into sealed
// branches of at most maxChildren, repeating until one root remains.
func buildBranches(ctx context.Context, store BlockStore, level []leafRef, maxChildren int) (model.Cid, Summary, error) {
	for len(level) > 1 {
		var next []leafRef
		for i := 0; i < len(level); i += maxChildren {
			end := i + maxChildren
			if end > len(level) {
				end = len(level)
			}
			group := level[i:end]
			branch := &Branch{
				ChildSummaries: make([]Summary, len(group)),
				ChildCids:      make([]model.Cid, len(group)),
				ChildCounts:    make([]int64, len(group)),
			}
			for j, g := range group {
				branch.ChildSummaries[j] = g.summary
				branch.ChildCids[j] = g.cid
				branch.ChildCounts[j] = g.summary.EventCount
			}
			block, err := encodeBranch(branch)
			if err != nil {
				return model.Cid{}, Summary{}, err
			}
			cid, err := store.Put(ctx, block)
			if err != nil {
				return model.Cid{}, Summary{}, err
			}
			next = append(next, leafRef{cid: cid, summary: branch.summary()})
		}
		level = next
	}
	return level[0].cid, level[0].summary, nil
}

// WalkFromRoot reads an entire tree's leaf sequence, in order, starting
// from a published root CID — the read path used for replicated
// streams and for re-opening an own stream after restart.
func WalkFromRoot(ctx context.Context, store BlockStore, root model.Cid) ([]model.AxKey, []model.Payload, error) {
	if !root.IsDefined() {
		return nil, nil, nil
	}
	var keys []model.AxKey
	var payloads []model.Payload
	var walk func(model.Cid) error
	walk = func(c model.Cid) error {
		block, err := store.Get(ctx, c)
		if err != nil {
			return err
		}
		node, err := decodeNode(block)
		if err != nil {
			return err
		}
		switch n := node.(type) {
		case *Leaf:
			keys = append(keys, n.Keys...)
			payloads = append(payloads, n.Payloads...)
		case *Branch:
			for _, child := range n.ChildCids {
				if err := walk(child); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("banyan: unexpected node type %T", node)
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, nil, err
	}
	return keys, payloads, nil
}

// CollectBlocks reads every raw block reachable from root (root's own
// block plus every descendant branch/leaf), in top-down order. Used by
// the gossip fast path to ship a self-contained tree inline, and by
// careful-sync to verify every block a validated root depends on is
// actually retrievable.
func CollectBlocks(ctx context.Context, store BlockStore, root model.Cid) ([][]byte, error) {
	if !root.IsDefined() {
		return nil, nil
	}
	var blocks [][]byte
	var walk func(model.Cid) error
	walk = func(c model.Cid) error {
		block, err := store.Get(ctx, c)
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
		node, err := decodeNode(block)
		if err != nil {
			return err
		}
		if b, ok := node.(*Branch); ok {
			for _, child := range b.ChildCids {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return blocks, nil
}

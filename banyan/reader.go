package banyan

import (
	"context"
	"sort"

	"github.com/banyanmesh/core/model"
)

// Reader serves in-order event iteration over a tree's fully resolved
// leaf sequence — the read path shared by both own-stream (after
// Builder.Root) and replicated-stream trees.
type Reader struct {
	stream model.StreamId
	keys   []model.AxKey
	pay    []model.Payload
}

// OpenReader walks root via the block store and returns a Reader bound
// to stream (every event in a Banyan tree shares one StreamId, per
// spec §4.1: "a forest of Banyan trees — one per known StreamId").
func OpenReader(ctx context.Context, store BlockStore, stream model.StreamId, root model.Cid) (*Reader, error) {
	keys, pay, err := WalkFromRoot(ctx, store, root)
	if err != nil {
		return nil, err
	}
	return &Reader{stream: stream, keys: keys, pay: pay}, nil
}

func (r *Reader) Len() int64 { return int64(len(r.keys)) }

func (r *Reader) eventAt(i int) model.Event {
	k := r.keys[i]
	appID, _ := model.AppIdFromTags(k.Tags)
	return model.Event{
		Key:     model.EventKey{Lamport: k.Lamport, Stream: r.stream, Offset: k.Offset},
		Meta:    model.EventMeta{Tags: k.Tags, Timestamp: k.Timestamp, AppId: appID},
		Payload: r.pay[i],
	}
}

// indexAfter returns the index of the first key with Offset > off,
// via binary search: retention pruning can discard leading leaves, so
// a key's array position no longer necessarily equals its Offset.
func (r *Reader) indexAfter(off model.Offset) int {
	return sort.Search(len(r.keys), func(i int) bool { return r.keys[i].Offset > off })
}

// indexAtOrBefore returns the index of the last key with Offset <= off.
func (r *Reader) indexAtOrBefore(off model.Offset) int {
	return r.indexAfter(off) - 1
}

// Forward yields events with offset in (from, +inf) in ascending order:
// from itself is excluded, and model.MinOffset yields every event.
func (r *Reader) Forward(from model.OffsetOrMin, yield func(model.Event) bool) {
	start := 0
	if !from.IsMin() {
		start = r.indexAfter(from.AsOffset())
	}
	for i := start; i < len(r.keys); i++ {
		if !yield(r.eventAt(i)) {
			return
		}
	}
}

// Backward yields events with offset in (-inf, from] in descending
// order; from == nil means "start at the last event."
func (r *Reader) Backward(from *model.Offset, yield func(model.Event) bool) {
	end := len(r.keys) - 1
	if from != nil {
		if at := r.indexAtOrBefore(*from); at < end {
			end = at
		}
	}
	for i := end; i >= 0; i-- {
		if !yield(r.eventAt(i)) {
			return
		}
	}
}

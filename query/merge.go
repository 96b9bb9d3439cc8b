// Package query implements the bounded and unbounded per-stream
// mergers used by the event store to serve multi-stream queries and
// subscriptions (spec §4.8).
/*
 * Grounded on the channel-based paging idiom of xact/xs/lso.go
 * (paged, cancellable result streaming over a channel) generalized
 * here into a k-way merge; the heap itself follows the stdlib
 * container/heap example directly, as the teacher repo has no
 * comparable ordered-merge component.
 */
package query

import (
	"container/heap"
	"context"

	"github.com/banyanmesh/core/model"
)

// Iterator yields (key, event) pairs in one fixed direction; Next
// returns ok=false once exhausted.
type Iterator interface {
	Next() (model.Event, bool)
}

type heapItem struct {
	event model.Event
	it    Iterator
}

type mergeHeap struct {
	items   []heapItem
	reverse bool
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	c := h.items[i].event.Key.Compare(h.items[j].event.Key)
	if h.reverse {
		return c > 0
	}
	return c < 0
}
func (h *mergeHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x any)         { h.items = append(h.items, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// MergeOrdered k-way merges iterators into ascending (or, with
// reverse=true, descending) EventKey order, emitting onto the
// returned channel until ctx is cancelled or every iterator is
// exhausted.
func MergeOrdered(ctx context.Context, iterators []Iterator, reverse bool) <-chan model.Event {
	out := make(chan model.Event)
	go func() {
		defer close(out)
		h := &mergeHeap{reverse: reverse}
		for _, it := range iterators {
			if e, ok := it.Next(); ok {
				heap.Push(h, heapItem{event: e, it: it})
			}
		}
		heap.Init(h)
		for h.Len() > 0 {
			top := heap.Pop(h).(heapItem)
			select {
			case out <- top.event:
			case <-ctx.Done():
				return
			}
			if e, ok := top.it.Next(); ok {
				heap.Push(h, heapItem{event: e, it: top.it})
			}
		}
	}()
	return out
}

// MergeUnordered round-robins across iterators with no cross-stream
// key-ordering guarantee (spec's merge_unordered, used by
// unbounded_forward): each iterator is polled in turn, an iterator is
// dropped the first time it reports exhaustion, and the merge ends once
// none is left.
func MergeUnordered(ctx context.Context, iterators []Iterator) <-chan model.Event {
	out := make(chan model.Event)
	go func() {
		defer close(out)
		alive := append([]Iterator(nil), iterators...)
		for len(alive) > 0 {
			next := alive[:0]
			progressed := false
			for _, it := range alive {
				e, ok := it.Next()
				if !ok {
					continue
				}
				progressed = true
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
				next = append(next, it)
			}
			alive = next
			if !progressed {
				return
			}
		}
	}()
	return out
}

// SliceIterator adapts a pre-materialized, already-ordered slice of
// events into an Iterator (used by bounded queries against a
// snapshotted Banyan reader).
type SliceIterator struct {
	events []model.Event
	pos    int
}

func NewSliceIterator(events []model.Event) *SliceIterator {
	return &SliceIterator{events: events}
}

func (s *SliceIterator) Next() (model.Event, bool) {
	if s.pos >= len(s.events) {
		return model.Event{}, false
	}
	e := s.events[s.pos]
	s.pos++
	return e, true
}

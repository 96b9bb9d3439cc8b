// Package store implements the event store: a forest of per-stream
// Banyan trees addressed through a content-addressed block store,
// with routed append, bounded/unbounded multi-stream queries, and
// periodic retention pruning (spec §4.1).
/*
 * Grounded on core/lom.go's builder-under-lock discipline (mutate
 * under a per-entity lock, publish an immutable snapshot) and
 * reb/status.go's precedence-respecting state transitions, adapted
 * here to "a validated root can only ever advance, never regress."
 */
package store

import (
	"context"
	"sync"

	"github.com/banyanmesh/core/banyan"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/cmn/debug"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/indexdb"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/offsetmap"
	"github.com/banyanmesh/core/query"
	"github.com/banyanmesh/core/routing"
)

// BlockStore is the full set of block-store operations the event store
// needs: banyan's Put/Get/Has plus naming/pinning.
type BlockStore interface {
	banyan.BlockStore
	Alias(name string, c *model.Cid) error
	Resolve(name string) (model.Cid, bool, error)
}

// AppendEvent is one caller-supplied event awaiting routing and
// stamping.
type AppendEvent struct {
	Tags    model.TagSet
	Payload model.Payload
}

type replicatedState struct {
	lastValidatedCount int64
	lastValidatedRoot  model.Cid
	observedCount      int64
}

// EventStore is the top-level append/query/prune facade over one
// node's forest of Banyan trees.
type EventStore struct {
	cfg    config.Banyan
	bs     BlockStore
	idx    *indexdb.DB
	routes *routing.Table
	self   model.NodeId

	mu            sync.Mutex // "BanyanStoreGuard": reserves lamports and updates indices only, never held across I/O
	own           map[model.StreamNr]*ownStream
	replicated    map[model.StreamId]*replicatedState
	streamLamport map[model.StreamId]model.LamportTimestamp

	changed *changeSignal
}

func New(cfg config.Banyan, bs BlockStore, idx *indexdb.DB, routes *routing.Table, self model.NodeId) *EventStore {
	return &EventStore{
		cfg:           cfg,
		bs:            bs,
		idx:           idx,
		routes:        routes,
		self:          self,
		own:           make(map[model.StreamNr]*ownStream),
		replicated:    make(map[model.StreamId]*replicatedState),
		streamLamport: make(map[model.StreamId]model.LamportTimestamp),
		changed:       newChangeSignal(),
	}
}

func (s *EventStore) ownStreamFor(nr model.StreamNr) *ownStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	os, ok := s.own[nr]
	if !ok {
		os = newOwnStream(nr, s.cfg, s.bs)
		s.own[nr] = os
	}
	return os
}

// Append routes each event via the routing table, groups consecutive
// same-stream events into one batch per stream, reserves a contiguous
// Lamport range per batch, stamps every event with the batch
// timestamp, injects an internal app_id:<id> tag, and extends each
// target stream's builder.
func (s *EventStore) Append(ctx context.Context, appID model.AppId, events []AppendEvent, nonBlocking bool) ([]model.EventKey, error) {
	if len(events) == 0 {
		return nil, nil
	}
	groups := groupByStream(events, s.routes, appID)
	batchTime := model.Now()

	var keys []model.EventKey
	for _, g := range groups {
		gk, err := s.appendGroup(ctx, g.nr, appID, g.events, batchTime, nonBlocking)
		keys = append(keys, gk...)
		if err != nil {
			return keys, err
		}
	}
	return keys, nil
}

type streamGroup struct {
	nr     model.StreamNr
	events []AppendEvent
}

func groupByStream(events []AppendEvent, routes *routing.Table, appID model.AppId) []streamGroup {
	var groups []streamGroup
	for _, e := range events {
		nr := routes.GetMatchingStreamNr(e.Tags, appID)
		if n := len(groups); n > 0 && groups[n-1].nr == nr {
			groups[n-1].events = append(groups[n-1].events, e)
			continue
		}
		groups = append(groups, streamGroup{nr: nr, events: []AppendEvent{e}})
	}
	return groups
}

func (s *EventStore) appendGroup(ctx context.Context, nr model.StreamNr, appID model.AppId, events []AppendEvent, batchTime model.Timestamp, nonBlocking bool) ([]model.EventKey, error) {
	os := s.ownStreamFor(nr)

	if nonBlocking {
		if !os.mu.TryLock() {
			return nil, ErrStreamLocked
		}
	} else if err := os.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer os.mu.Unlock()

	s.mu.Lock()
	lamportStart, err := s.idx.IncreaseLamport(uint64(len(events)))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stream := model.NewStreamId(s.self, nr)
	nextOffset := os.nextOffset

	keys := make([]model.EventKey, len(events))
	built := make([]model.Event, len(events))
	for i, ae := range events {
		lamport := lamportStart + model.LamportTimestamp(i)
		offset := model.Offset(nextOffset + int64(i))
		if !offset.Valid() {
			return nil, ErrOffsetOverflow
		}
		tags := ae.Tags.Add(appID.Tag())
		key := model.EventKey{Lamport: lamport, Stream: stream, Offset: offset}
		built[i] = model.Event{
			Key:     key,
			Meta:    model.EventMeta{Tags: tags, Timestamp: batchTime, AppId: appID},
			Payload: ae.Payload,
		}
		keys[i] = key
	}

	if err := os.builder.Append(ctx, built); err != nil {
		return nil, err
	}
	os.nextOffset = nextOffset + int64(len(events))
	lastLamport := lamportStart + model.LamportTimestamp(len(events)-1)
	if err := os.publish(ctx, s.bs, stream, lastLamport); err != nil {
		return nil, err
	}
	s.ObserveStreamLamport(stream, lastLamport)
	s.changed.Broadcast()
	return keys, nil
}

// RootOf returns the most recently published tree root for stream,
// own or replicated, as needed to fill a gossip RootUpdate/RootMap
// entry.
func (s *EventStore) RootOf(stream model.StreamId) (model.Cid, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stream.Node == s.self {
		os, ok := s.own[stream.Nr]
		if !ok || !os.lastRoot.IsDefined() {
			return model.Cid{}, false
		}
		return os.lastRoot, true
	}
	r, ok := s.replicated[stream]
	if !ok || !r.lastValidatedRoot.IsDefined() {
		return model.Cid{}, false
	}
	return r.lastValidatedRoot, true
}

// ObserveStreamLamport records the highest Lamport timestamp seen for
// stream, local or remote; used only to fill RootMap digests, it never
// gates validation.
func (s *EventStore) ObserveStreamLamport(stream model.StreamId, lamport model.LamportTimestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lamport > s.streamLamport[stream] {
		s.streamLamport[stream] = lamport
	}
}

// StreamLamport returns the Lamport timestamp last observed for
// stream.
func (s *EventStore) StreamLamport(stream model.StreamId) model.LamportTimestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamLamport[stream]
}

// WaitForChange returns a channel that closes the next time present or
// replication_target offsets change, letting a subscriber re-poll
// UnboundedForward/BoundedForward with an advanced `from` instead of
// busy-looping (spec §2: "... update present offsets → wake
// subscribers").
func (s *EventStore) WaitForChange() <-chan struct{} { return s.changed.Wait() }

// Self returns the node id streams local to this store are published
// under, letting callers (the query evaluator's `isLocal` tag atom)
// tell a local stream from a replicated one.
func (s *EventStore) Self() model.NodeId { return s.self }

// Offsets returns a snapshot of present (locally validated) and
// replication_target (merely observed) offsets across every known
// stream.
func (s *EventStore) Offsets() (present, target *offsetmap.OffsetMap) {
	present = offsetmap.New()
	target = offsetmap.New()

	s.mu.Lock()
	defer s.mu.Unlock()
	for nr, os := range s.own {
		stream := model.NewStreamId(s.self, nr)
		off := model.Offset(os.nextOffset - 1).OrMin()
		present.Set(stream, off)
		target.Set(stream, off)
	}
	for stream, r := range s.replicated {
		present.Set(stream, model.Offset(r.lastValidatedCount-1).OrMin())
		tOff := r.observedCount
		if r.lastValidatedCount > tOff {
			tOff = r.lastValidatedCount
		}
		target.Set(stream, model.Offset(tOff-1).OrMin())
	}
	return present, target
}

// ApplyReplicatedRoot installs a newly validated root for a remote
// stream. A root whose event count would regress the stream's present
// offset is rejected (spec §5: "a sync that would reduce count() is
// rejected").
func (s *EventStore) ApplyReplicatedRoot(stream model.StreamId, root model.Cid, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replicated[stream]
	if !ok {
		r = &replicatedState{}
		s.replicated[stream] = r
	}
	if count < r.lastValidatedCount {
		return ErrTreeRejectedLostEvents
	}
	r.lastValidatedCount = count
	r.lastValidatedRoot = root
	if count > r.observedCount {
		r.observedCount = count
	}
	s.changed.Broadcast()
	return nil
}

// ObserveReplicationTarget records a higher offset merely observed
// (e.g. via an unfetched RootMap entry) without validating it.
func (s *EventStore) ObserveReplicationTarget(stream model.StreamId, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.replicated[stream]
	if !ok {
		r = &replicatedState{}
		s.replicated[stream] = r
	}
	if count > r.observedCount {
		r.observedCount = count
	}
	s.changed.Broadcast()
}

// openReader opens a read-only Banyan reader for any known stream,
// local or replicated.
func (s *EventStore) openReader(ctx context.Context, stream model.StreamId) (*banyan.Reader, error) {
	s.mu.Lock()
	var headerCid model.Cid
	var replicatedRoot model.Cid
	if stream.Node == s.self {
		if os, ok := s.own[stream.Nr]; ok {
			headerCid = os.lastHeaderCid
		}
	} else if r, ok := s.replicated[stream]; ok {
		replicatedRoot = r.lastValidatedRoot
	}
	s.mu.Unlock()

	if stream.Node != s.self {
		return banyan.OpenReader(ctx, s.bs, stream, replicatedRoot)
	}
	if !headerCid.IsDefined() {
		return banyan.OpenReader(ctx, s.bs, stream, model.Undef)
	}
	block, err := s.bs.Get(ctx, headerCid)
	if err != nil {
		return nil, err
	}
	header, err := decodeHeader(block)
	if err != nil {
		return nil, err
	}
	return banyan.OpenReader(ctx, s.bs, stream, header.Root)
}

// knownStreams returns every stream this node currently tracks,
// own and replicated.
func (s *EventStore) knownStreams() []model.StreamId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StreamId, 0, len(s.own)+len(s.replicated))
	for nr := range s.own {
		out = append(out, model.NewStreamId(s.self, nr))
	}
	for stream := range s.replicated {
		out = append(out, stream)
	}
	return out
}

// BoundedForward requires to <= present, merge-sorting ascending
// per-stream iterators filtered by filter (nil accepts everything).
func (s *EventStore) BoundedForward(ctx context.Context, filter func(model.Event) bool, from, to *offsetmap.OffsetMap) (<-chan model.Event, error) {
	present, _ := s.Offsets()
	if !offsetmap.LessOrEqual(to, present) {
		return nil, ErrInvalidUpperBounds
	}
	iterators, err := s.boundedIterators(ctx, filter, from, to, false)
	if err != nil {
		return nil, err
	}
	return query.MergeOrdered(ctx, iterators, false), nil
}

// BoundedBackward is BoundedForward's descending counterpart.
func (s *EventStore) BoundedBackward(ctx context.Context, filter func(model.Event) bool, from, to *offsetmap.OffsetMap) (<-chan model.Event, error) {
	present, _ := s.Offsets()
	if !offsetmap.LessOrEqual(to, present) {
		return nil, ErrInvalidUpperBounds
	}
	iterators, err := s.boundedIterators(ctx, filter, from, to, true)
	if err != nil {
		return nil, err
	}
	return query.MergeOrdered(ctx, iterators, true), nil
}

func (s *EventStore) boundedIterators(ctx context.Context, filter func(model.Event) bool, from, to *offsetmap.OffsetMap, reverse bool) ([]query.Iterator, error) {
	var iterators []query.Iterator
	for _, stream := range s.knownStreams() {
		upper := to.Get(stream)
		if upper.IsMin() {
			continue
		}
		reader, err := s.openReader(ctx, stream)
		if err != nil {
			return nil, err
		}
		lower := model.MinOffset
		if from != nil {
			lower = from.Get(stream)
		}
		var events []model.Event
		collect := func(e model.Event) bool {
			if e.Key.Offset > upper.AsOffset() {
				return true
			}
			if filter == nil || filter(e) {
				events = append(events, e)
			}
			return true
		}
		if reverse {
			u := upper.AsOffset()
			reader.Backward(&u, collect)
		} else {
			reader.Forward(lower, collect)
		}
		if len(events) > 0 {
			iterators = append(iterators, query.NewSliceIterator(events))
		}
	}
	return iterators, nil
}

// UnboundedForward interleaves streams as they make progress, with no
// cross-stream ordering guarantee (spec §4.1); this snapshot-based
// implementation serves whatever is present at call time; a caller
// wanting live updates re-invokes with an advanced `from`.
func (s *EventStore) UnboundedForward(ctx context.Context, filter func(model.Event) bool, from *offsetmap.OffsetMap) (<-chan model.Event, error) {
	var iterators []query.Iterator
	for _, stream := range s.knownStreams() {
		reader, err := s.openReader(ctx, stream)
		if err != nil {
			return nil, err
		}
		lower := model.MinOffset
		if from != nil {
			lower = from.Get(stream)
		}
		var events []model.Event
		reader.Forward(lower, func(e model.Event) bool {
			if filter == nil || filter(e) {
				events = append(events, e)
			}
			return true
		})
		if len(events) > 0 {
			iterators = append(iterators, query.NewSliceIterator(events))
		}
	}
	return query.MergeUnordered(ctx, iterators), nil
}

// ConfigureRetention sets the retention triple for a stream; the
// default stream is exempt (spec §4.1).
func (s *EventStore) ConfigureRetention(nr model.StreamNr, r RetentionConfig) error {
	if nr == model.DefaultStreamNr {
		nlog.Warningf("store: rejecting retention config for the exempt default stream")
		return ErrRetentionOnDefaultStream
	}
	os := s.ownStreamFor(nr)
	if err := os.mu.Lock(context.Background()); err != nil {
		return err
	}
	defer os.mu.Unlock()
	os.retain = r
	return nil
}

// Prune runs one retention pass: pack() each configured own stream,
// then apply the time/count/size filters in order.
func (s *EventStore) Prune(ctx context.Context) error {
	s.mu.Lock()
	nrs := make([]model.StreamNr, 0, len(s.own))
	for nr := range s.own {
		nrs = append(nrs, nr)
	}
	s.mu.Unlock()

	for _, nr := range nrs {
		if nr == model.DefaultStreamNr {
			continue
		}
		if err := s.pruneStream(ctx, nr); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventStore) pruneStream(ctx context.Context, nr model.StreamNr) error {
	os := s.ownStreamFor(nr)
	if err := os.mu.Lock(ctx); err != nil {
		return err
	}
	defer os.mu.Unlock()
	debug.Assert(nr != model.DefaultStreamNr)

	retain := os.retain
	if retain.MaxEvents == nil && retain.MaxAge == nil && retain.MaxSizeBytes == nil {
		return os.builder.Pack(ctx)
	}

	var minTime *model.Timestamp
	if retain.MaxAge != nil {
		cutoff := model.Timestamp(int64(model.Now()) - *retain.MaxAge)
		minTime = &cutoff
	}
	dropped, err := os.builder.TrimHead(ctx, retain.MaxEvents, minTime, retain.MaxSizeBytes)
	if err != nil {
		return err
	}
	if dropped == 0 {
		return nil
	}
	nlog.Infof("store: pruned %d event(s) from stream %d", dropped, nr)
	return os.publish(ctx, s.bs, model.NewStreamId(s.self, nr), os.lastLamport)
}

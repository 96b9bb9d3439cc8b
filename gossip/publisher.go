package gossip

import (
	"context"
	"time"

	"github.com/banyanmesh/core/indexdb"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/offsetmap"
)

const discoveryTopic = "banyanmesh/roots/v1"

// PubSub is the external broadcast primitive this package consumes
// (spec §6): publish raw bytes to a topic, and receive a channel of
// inbound messages for it.
type PubSub interface {
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string) (<-chan PubSubMsg, func(), error)
}

// PubSubMsg is one inbound message on a subscribed topic.
type PubSubMsg struct {
	Data []byte
}

// RootSource carries SenderPeer, but the PubSub interface above never
// identifies the sender of a Subscribe delivery; a real libp2p pubsub
// binding is expected to pair PubSubMsg with its origin out of band
// (e.g. a wrapping type in the transport layer) before calling
// HandleMessage below. The in-process test double in localbus.go
// carries no sender identity either.

// Publisher drives the two outbound cadences: an immediate RootUpdate
// after every local root change, and a periodic RootMap digest.
type Publisher struct {
	bus    PubSub
	idx    *indexdb.DB
	self   model.NodeId
	engine *Engine
}

func NewPublisher(bus PubSub, idx *indexdb.DB, self model.NodeId, engine *Engine) *Publisher {
	return &Publisher{bus: bus, idx: idx, self: self, engine: engine}
}

// PublishRootUpdate emits a RootUpdate for stream, choosing the fast
// path when deltaBlocks is non-empty.
func (p *Publisher) PublishRootUpdate(ctx context.Context, stream model.StreamId, root model.Cid, lamport model.LamportTimestamp, offset *model.Offset, deltaBlocks [][]byte) error {
	msg := Message{RootUpdate: &RootUpdate{
		Stream:  stream,
		Root:    root,
		Blocks:  deltaBlocks,
		Lamport: lamport,
		Time:    model.Now(),
		Offset:  offset,
	}}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, discoveryTopic, data)
}

// PublishRootMap emits a full digest of present built from an
// OffsetMap (offset) and a per-stream root lookup.
func (p *Publisher) PublishRootMap(ctx context.Context, present *offsetmap.OffsetMap, rootOf func(model.StreamId) (model.Cid, bool), lamportOf func(model.StreamId) model.LamportTimestamp, lamport model.LamportTimestamp) error {
	rm := RootMap{
		Entries: make(map[model.StreamId]model.Cid),
		Offsets: make(map[model.StreamId]RootMapEntry),
		Lamport: lamport,
		Time:    model.Now(),
	}
	for _, stream := range present.Streams() {
		root, ok := rootOf(stream)
		if !ok {
			continue
		}
		rm.Entries[stream] = root
		rm.Offsets[stream] = RootMapEntry{Offset: present.Get(stream).AsOffset(), Lamport: lamportOf(stream)}
	}
	data, err := Encode(Message{RootMap: &rm})
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, discoveryTopic, data)
}

// RunRootMapCadence blocks, publishing a RootMap snapshot every
// interval until ctx is cancelled (spec §4.2 default: 10s).
func (p *Publisher) RunRootMapCadence(ctx context.Context, interval time.Duration, snapshot func() (*offsetmap.OffsetMap, func(model.StreamId) (model.Cid, bool), func(model.StreamId) model.LamportTimestamp, model.LamportTimestamp)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			present, rootOf, lamportOf, lamport := snapshot()
			_ = p.PublishRootMap(ctx, present, rootOf, lamportOf, lamport)
		}
	}
}

// HandleMessage ingests one decoded inbound message: it advances the
// local Lamport counter, feeds RootUpdate/RootMap candidates into
// engine at the matching priority, and (for RootMap) reconciles every
// entry against localRoots.
func (p *Publisher) HandleMessage(msg Message, source RootSource, localRoots func(model.StreamId) (model.Cid, bool)) error {
	now := time.Now()
	switch {
	case msg.RootUpdate != nil:
		u := msg.RootUpdate
		if _, err := p.idx.AdvanceLamport(u.Lamport); err != nil {
			return err
		}
		source.Priority = PrioritySlowPath
		if u.IsFastPath() {
			source.Priority = PriorityFastPath
		}
		p.engine.Ingest(u.Stream, u.Root, source, now)
	case msg.RootMap != nil:
		rm := msg.RootMap
		if _, err := p.idx.AdvanceLamport(rm.Lamport); err != nil {
			return err
		}
		p.engine.ReconcileRootMap(*rm, source, localRoots, now)
	}
	return nil
}

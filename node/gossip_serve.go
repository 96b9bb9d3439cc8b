package node

import (
	"context"
	"time"

	"github.com/multiformats/go-multiaddr"
	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/banyan"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/discovery"
	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/offsetmap"
)

// gossipTopic mirrors gossip's own unexported topic constant; both
// sides of the wire must agree on it, and the package deliberately
// keeps it private since only its own Publisher/HandleMessage pair
// needs it internally.
const gossipTopic = "banyanmesh/roots/v1"

// runGossipServe subscribes to the root-gossip topic and feeds every
// decoded RootUpdate/RootMap into the gossip engine, persisting any
// fast-path delta blocks inline so the subsequent sync pass never
// needs to fetch them (spec §4.2).
func (n *Node) runGossipServe(ctx context.Context) {
	ch, unsubscribe, err := n.gossipBus.Subscribe(gossipTopic)
	if err != nil {
		nlog.Errorf("node: gossip subscribe failed: %v", err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			n.handleGossipMsg(ctx, raw)
		}
	}
}

func (n *Node) handleGossipMsg(ctx context.Context, raw gossip.PubSubMsg) {
	msg, err := gossip.Decode(raw.Data)
	if err != nil {
		nlog.Warningf("node: dropping malformed gossip message: %v", err)
		return
	}
	if msg.RootUpdate != nil && msg.RootUpdate.Stream.Node == n.self {
		return // our own broadcast, looped back by the bus
	}
	if u := msg.RootUpdate; u != nil && u.IsFastPath() {
		for _, block := range u.Blocks {
			if _, err := n.bs.Put(ctx, block); err != nil {
				nlog.Warningf("node: storing inline block for %s failed: %v", u.Stream, err)
				return
			}
		}
	}
	// RootSource.SenderPeer is left zero: LocalBus carries no sender
	// identity (see the RootSource note above gossip.Publisher); a real libp2p pubsub
	// binding would pair this delivery with its origin peer first.
	source := gossip.RootSource{}
	if err := n.gossipPub.HandleMessage(msg, source, n.store.RootOf); err != nil {
		nlog.Warningf("node: handling gossip message failed: %v", err)
	}
}

// publishRootUpdate emits a RootUpdate for stream using whichever path
// config.Gossip enables, shipping the entire reachable tree inline on
// the fast path (a simplification of the spec's literal wording: a
// true incremental delta would need per-peer acknowledged-state
// tracking; see DESIGN.md).
func (n *Node) publishRootUpdate(ctx context.Context, stream model.StreamId) error {
	root, ok := n.store.RootOf(stream)
	if !ok {
		return nil
	}
	lamport := n.store.StreamLamport(stream)

	var blocks [][]byte
	if n.cfg.Gossip.FastPathEnabled {
		var err error
		blocks, err = banyan.CollectBlocks(ctx, n.bs, root)
		if err != nil {
			return err
		}
	} else if !n.cfg.Gossip.SlowPathEnabled {
		return nil
	}
	return n.gossipPub.PublishRootUpdate(ctx, stream, root, lamport, nil, blocks)
}

// rootMapSnapshot supplies gossip.Publisher.RunRootMapCadence with the
// node's current view of present offsets, roots and Lamport times.
func (n *Node) rootMapSnapshot() (*offsetmap.OffsetMap, func(model.StreamId) (model.Cid, bool), func(model.StreamId) model.LamportTimestamp, model.LamportTimestamp) {
	present, _ := n.store.Offsets()
	return present, n.store.RootOf, n.store.StreamLamport, n.store.StreamLamport(model.NewStreamId(n.self, model.DefaultStreamNr))
}

// runDiscoveryServe subscribes to the discovery topic and feeds every
// decoded NodeInfo into the discovery table, logging the dial actions
// it implies (there is no real transport here to act on them).
func (n *Node) runDiscoveryServe(ctx context.Context) {
	ch, unsubscribe, err := n.discBus.Subscribe(discoveryTopicName)
	if err != nil {
		nlog.Errorf("node: discovery subscribe failed: %v", err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			n.handleDiscoveryMsg(raw)
		}
	}
}

// discoveryTopicName mirrors discovery's own unexported topic
// constant; kept in sync by discovery/message_test.go's use of the
// same literal.
const discoveryTopicName = "banyanmesh/discovery/v1"

func (n *Node) handleDiscoveryMsg(raw []byte) {
	msg, err := discovery.Decode(raw)
	if err != nil {
		nlog.Warningf("node: dropping malformed discovery message: %v", err)
		return
	}
	if msg.NodeInfo == nil {
		return
	}
	info := msg.NodeInfo
	if info.Peer == n.peer {
		return
	}
	addrs := make([]multiaddr.Multiaddr, 0, len(info.Addresses))
	for _, s := range info.Addresses {
		if a, err := multiaddr.NewMultiaddr(s); err == nil {
			addrs = append(addrs, a)
		}
	}
	actions := n.discTable.ObserveNodeInfo(info.Peer, addrs, time.Now())
	for _, a := range actions {
		if a.DialPeer != peer.ID("") {
			nlog.Infof("node: discovery would dial peer %s", a.DialPeer)
		}
		if a.DialAddress != nil {
			nlog.Infof("node: discovery would dial address %s", a.DialAddress)
		}
	}
}

// discoverySnapshot supplies discovery.Publisher.RunNodeInfoCadence;
// this node advertises no listen addresses of its own (no real
// transport), only its known-peer count.
func (n *Node) discoverySnapshot() ([]multiaddr.Multiaddr, discovery.Stats) {
	return nil, discovery.Stats{KnownPeers: len(n.discTable.KnownPeers())}
}

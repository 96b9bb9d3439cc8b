// Package node wires the mesh's independently-testable packages
// (store, banyan, blockstore, indexdb, routing, gossip, bitswap,
// discovery) into one running peer, realizing the control flow spec.md
// §2 describes: append -> publish; incoming gossip -> priority queue ->
// careful-sync -> tree validation -> wake subscribers.
/*
 * Grounded on the aistore ais/htrun.go idiom of one top-level struct
 * holding every subsystem plus the goroutines that drive them, and on
 * reb/xact.go's pattern of a context-scoped driver goroutine per
 * logical unit of concurrent work (there: per-target rebalance;
 * here: per-stream sync).
 */
package node

import (
	"context"
	"sync"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/aql"
	"github.com/banyanmesh/core/bitswap"
	"github.com/banyanmesh/core/blockstore"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/cmn/nlog"
	"github.com/banyanmesh/core/discovery"
	"github.com/banyanmesh/core/eval"
	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/indexdb"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/routing"
	"github.com/banyanmesh/core/store"
)

// PeerIDOf derives a libp2p peer.ID from a node identity; this mesh has
// no separate peer-id concept, so a node's NodeId string doubles as its
// peer.ID (real libp2p transports would instead derive peer.ID from the
// node's public key directly).
func PeerIDOf(id model.NodeId) peer.ID { return peer.ID(id.String()) }

// Node is one running mesh peer: the event store plus the gossip,
// bitswap and discovery collaborators that keep it synced with its
// peers, and the background goroutines driving all three.
type Node struct {
	cfg  *config.Config
	self model.NodeId
	peer peer.ID

	bs    *blockstore.Store
	idx   *indexdb.DB
	store *store.EventStore

	gossipBus     gossip.PubSub
	gossipEngine  *gossip.Engine
	gossipPub     *gossip.Publisher
	bitswapEngine *bitswap.Engine
	bitswapTr     bitswap.Transport
	fetch         *fetchingStore
	sync          *syncDriver

	discBus   discovery.PubSub
	discTable *discovery.Table
	discPub   *discovery.Publisher

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Deps is every external collaborator New needs; Node owns none of
// their lifecycles except what it creates itself (bs/idx are closed by
// Close).
type Deps struct {
	Dir        string
	Self       model.NodeId
	Config     *config.Config
	GossipBus  gossip.PubSub
	BitswapTr  bitswap.Transport
	DiscBus    discovery.PubSub // nil disables discovery wiring
}

// New opens the block store and index under dir, constructs the event
// store and every collaborator, and wires bitswap's OnDeliver hook into
// the fetching block-store wrapper careful-sync depends on. It does not
// start any goroutine; call Run for that.
func New(d Deps) (*Node, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}

	bs, err := blockstore.Open(d.Dir, cfg.Cache.BlockCacheCount, cfg.Cache.BlockCacheBytes, cfg.Cache.BranchCacheBytes)
	if err != nil {
		return nil, err
	}
	idx, err := indexdb.Open(d.Dir)
	if err != nil {
		bs.Close()
		return nil, err
	}

	routes := routing.New()
	es := store.New(cfg.Banyan, bs, idx, routes, d.Self)

	bitswapTr := d.BitswapTr
	bitswapEngine := bitswap.NewEngine(bitswapTr, cfg.Bitswap)
	fetch := newFetchingStore(bs, bitswapEngine)
	bitswapEngine.OnDeliver(fetch.deliver)

	gossipEngine := gossip.NewEngineWithDelay(cfg.Gossip.SlowPathDelay)
	gossipPub := gossip.NewPublisher(d.GossipBus, idx, d.Self, gossipEngine)

	n := &Node{
		cfg:           cfg,
		self:          d.Self,
		peer:          PeerIDOf(d.Self),
		bs:            bs,
		idx:           idx,
		store:         es,
		gossipBus:     d.GossipBus,
		gossipEngine:  gossipEngine,
		gossipPub:     gossipPub,
		bitswapEngine: bitswapEngine,
		bitswapTr:     bitswapTr,
		fetch:         fetch,
	}
	n.sync = newSyncDriver(n)

	if d.DiscBus != nil {
		n.discBus = d.DiscBus
		n.discTable = discovery.New(n.peer)
		n.discPub = discovery.NewPublisher(d.DiscBus, n.peer)
	}

	return n, nil
}

// Run starts every background pump (gossip ingest, bitswap wire
// service, sync driver, root-map/node-info cadences, janitors) and
// returns immediately; Close stops them all.
func (n *Node) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.spawn(func() { n.runGossipServe(ctx) })
	n.spawn(func() { n.sync.run(ctx) })
	n.spawn(func() { n.gossipPub.RunRootMapCadence(ctx, n.cfg.Intervals.RootMapCadence, n.rootMapSnapshot) })
	n.spawn(func() { n.runBitswapJanitor(ctx) })

	if n.discBus != nil {
		n.spawn(func() { n.runDiscoveryServe(ctx) })
		n.spawn(func() {
			n.discPub.RunNodeInfoCadence(ctx, time.Second, n.cfg.Intervals.DiscoveryGossip, n.discoverySnapshot)
		})
	}
}

// ConnectPeer registers p with the bitswap engine (sending it the
// current want-list) and starts draining its inbound wants traffic;
// callers own address/connection setup, this only wires the two nodes'
// bitswap state machines together.
func (n *Node) ConnectPeer(ctx context.Context, p peer.ID) error {
	if err := n.bitswapEngine.AddPeer(ctx, p); err != nil {
		return err
	}
	n.spawn(func() { n.ServeWants(ctx, p) })
	return nil
}

func (n *Node) spawn(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

// Close stops every background goroutine and releases the on-disk
// store.
func (n *Node) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.sync.stopAll()
	n.wg.Wait()
	if err := n.idx.Close(); err != nil {
		n.bs.Close()
		return err
	}
	return n.bs.Close()
}

// Self returns the node's identity.
func (n *Node) Self() model.NodeId { return n.self }

// Append routes events through the local store and publishes the
// resulting root change over gossip (spec §2: "append -> publish").
func (n *Node) Append(ctx context.Context, appID model.AppId, events []store.AppendEvent) ([]model.EventKey, error) {
	keys, err := n.store.Append(ctx, appID, events, false)
	if err != nil {
		return keys, err
	}
	if len(keys) == 0 {
		return keys, nil
	}
	stream := keys[len(keys)-1].Stream
	if err := n.publishRootUpdate(ctx, stream); err != nil {
		nlog.Warningf("node: publish root update for %s failed: %v", stream, err)
	}
	return keys, nil
}

// Query parses and runs an AQL query against the node's store.
func (n *Node) Query(ctx context.Context, src string) ([]eval.Value, error) {
	q, err := aql.ParseQuery(src, model.Now())
	if err != nil {
		return nil, err
	}
	return eval.RunQuery(ctx, q, n.store)
}

// Store exposes the underlying event store, e.g. for a CLI's
// subscribe loop driven by WaitForChange.
func (n *Node) Store() *store.EventStore { return n.store }

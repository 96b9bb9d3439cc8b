package node_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/banyanmesh/core/bitswap"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/node"
	"github.com/banyanmesh/core/store"
)

// peered constructs two in-process nodes sharing one gossip bus and
// one pair of connected LocalTransports, mirroring the event store's
// own test-construction helpers; they are not yet bitswap-connected
// (tests call n.ConnectPeer for that where careful-sync is exercised).
func peered(t *testing.T) (a, b *node.Node) {
	t.Helper()
	cfg := config.Default()
	cfg.Banyan.MaxLeafCount = 4
	cfg.Banyan.MaxLevel = 4
	cfg.Intervals.RootMapCadence = time.Hour // keep the cadence out of the way of the tests below

	bus := gossip.NewLocalBus()

	selfA := model.NodeId{0: 1}
	selfB := model.NodeId{0: 2}
	trA := bitswap.NewLocalTransport(node.PeerIDOf(selfA))
	trB := bitswap.NewLocalTransport(node.PeerIDOf(selfB))
	trA.Connect(trB)

	a = newTestNode(t, selfA, cfg, bus, trA)
	b = newTestNode(t, selfB, cfg, bus, trB)
	return a, b
}

func newTestNode(t *testing.T, self model.NodeId, cfg *config.Config, bus gossip.PubSub, tr bitswap.Transport) *node.Node {
	t.Helper()
	dir, err := os.MkdirTemp("", "nodetest-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	n, err := node.New(node.Deps{Dir: dir, Self: self, Config: cfg, GossipBus: bus, BitswapTr: tr})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func appendTagged(t *testing.T, ctx context.Context, n *node.Node, tag model.Tag, v uint64) {
	t.Helper()
	p, err := model.MarshalPayload(v)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Append(ctx, "com.x", []store.AppendEvent{{Tags: model.NewTagSet(tag), Payload: p}}); err != nil {
		t.Fatal(err)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestTwoNodeFastPathConvergence is spec scenario S3: A appends an
// event tagged "x"; within one gossip cycle B observes it present and
// can query it back.
func TestTwoNodeFastPathConvergence(t *testing.T) {
	a, b := peered(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Run(ctx)
	b.Run(ctx)

	if err := a.ConnectPeer(ctx, node.PeerIDOf(b.Self())); err != nil {
		t.Fatal(err)
	}
	if err := b.ConnectPeer(ctx, node.PeerIDOf(a.Self())); err != nil {
		t.Fatal(err)
	}

	appendTagged(t, ctx, a, "x", 42)

	streamA := model.NewStreamId(a.Self(), model.DefaultStreamNr)
	waitUntil(t, 2*time.Second, func() bool {
		present, _ := b.Store().Offsets()
		return !present.Get(streamA).IsMin()
	})

	vals, err := b.Query(ctx, `FROM 'x' SELECT _`)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 1 || vals[0].Nat != 42 {
		t.Fatalf("want [42] observed on b, got %+v", vals)
	}
}

// TestSyncRaceResolution is spec scenario S4: two roots for the same
// stream are published back to back; the validated root must end up at
// the newer of the two (switch_map semantics, spec §5), never
// regressing and never rejected as lost events.
func TestSyncRaceResolution(t *testing.T) {
	a, b := peered(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Run(ctx)
	b.Run(ctx)

	if err := a.ConnectPeer(ctx, node.PeerIDOf(b.Self())); err != nil {
		t.Fatal(err)
	}
	if err := b.ConnectPeer(ctx, node.PeerIDOf(a.Self())); err != nil {
		t.Fatal(err)
	}

	appendTagged(t, ctx, a, "x", 1)
	appendTagged(t, ctx, a, "x", 2)

	streamA := model.NewStreamId(a.Self(), model.DefaultStreamNr)
	waitUntil(t, 2*time.Second, func() bool {
		present, _ := b.Store().Offsets()
		return present.Get(streamA).AsOffset() >= 1
	})

	vals, err := b.Query(ctx, `FROM 'x' SELECT _`)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0].Nat != 1 || vals[1].Nat != 2 {
		t.Fatalf("want [1,2] in offset order on b, got %+v", vals)
	}
}

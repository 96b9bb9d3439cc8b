package discovery_test

import (
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"
	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/discovery"
)

func mustAddr(t *testing.T, s string) multiaddr.Multiaddr {
	t.Helper()
	a, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestObserveNewAddressEmitsDialAddress(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	actions := table.Observe(peer.ID("p1"), addr, discovery.ProvenanceSwarm, time.Now())
	if len(actions) != 1 || actions[0].DialAddress == nil {
		t.Fatalf("expected one DialAddress action, got %+v", actions)
	}
}

func TestSelfFilteringDropsOwnPeerId(t *testing.T) {
	self := peer.ID("self")
	table := discovery.New(self)
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	actions := table.Observe(self, addr, discovery.ProvenanceSwarm, time.Now())
	if actions != nil {
		t.Fatalf("expected self-filtering to drop the observation, got %+v", actions)
	}
	if len(table.Addresses(self)) != 0 {
		t.Fatal("expected no state recorded for self")
	}
}

func TestProvenanceNeverRegresses(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	p := peer.ID("p1")
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	now := time.Now()
	table.Observe(p, addr, discovery.ProvenanceBootstrap, now)
	table.Observe(p, addr, discovery.ProvenanceSwarm, now)

	state := table.Addresses(p)[addr.String()]
	if state.Provenance != discovery.ProvenanceBootstrap {
		t.Fatalf("expected provenance to stay Bootstrap, got %v", state.Provenance)
	}
}

func TestGCPrunesStaleNonBootstrapOnly(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	p := peer.ID("p1")
	staleAddr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	bootAddr := mustAddr(t, "/ip4/127.0.0.1/tcp/4002")
	old := time.Now().Add(-4 * 24 * time.Hour)

	table.Observe(p, staleAddr, discovery.ProvenanceSwarm, old)
	table.Observe(p, bootAddr, discovery.ProvenanceBootstrap, old)

	table.GC(3*24*time.Hour, time.Now())

	remaining := table.Addresses(p)
	if _, ok := remaining[staleAddr.String()]; ok {
		t.Fatal("expected stale non-bootstrap address to be pruned")
	}
	if _, ok := remaining[bootAddr.String()]; !ok {
		t.Fatal("expected bootstrap address to survive GC")
	}
}

func TestPeerRemovedWhenAddressSetEmpty(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	p := peer.ID("p1")
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	old := time.Now().Add(-4 * 24 * time.Hour)
	table.Observe(p, addr, discovery.ProvenanceSwarm, old)

	table.GC(3*24*time.Hour, time.Now())

	found := false
	for _, known := range table.KnownPeers() {
		if known == p {
			found = true
		}
	}
	if found {
		t.Fatal("expected peer with empty address set to be removed")
	}
}

func TestJanitorDialActionsCoverAllDisconnected(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	p1, p2 := peer.ID("p1"), peer.ID("p2")
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	now := time.Now()
	table.Observe(p1, addr, discovery.ProvenanceSwarm, now)
	table.Observe(p2, addr, discovery.ProvenanceSwarm, now)
	table.SetConnectionState(p2, addr, discovery.Connected, now)

	actions := table.JanitorDialActions()
	if len(actions) != 1 || actions[0].DialPeer != p1 {
		t.Fatalf("expected one DialPeer action for p1, got %+v", actions)
	}
}

func TestObserveNodeInfoDialsUnknownAddressesWhenDisconnected(t *testing.T) {
	table := discovery.New(peer.ID("self"))
	p := peer.ID("p1")
	a1 := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	a2 := mustAddr(t, "/ip4/127.0.0.1/tcp/4002")
	now := time.Now()

	actions := table.ObserveNodeInfo(p, []multiaddr.Multiaddr{a1, a2}, now)
	if len(actions) != 2 {
		t.Fatalf("expected two DialAddress actions, got %+v", actions)
	}
}

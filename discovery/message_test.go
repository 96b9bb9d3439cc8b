package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"
	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/discovery"
)

func TestMessageRoundTripNodeInfo(t *testing.T) {
	msg := discovery.Message{NodeInfo: &discovery.NodeInfo{
		Peer:      peer.ID("p1"),
		Addresses: []string{"/ip4/127.0.0.1/tcp/4001"},
		Stats:     discovery.Stats{KnownPeers: 3, ConnectedPeers: 1},
	}}
	data, err := discovery.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	back, err := discovery.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.NodeInfo == nil || back.NewListenAddr != nil || back.ExpiredListenAddr != nil {
		t.Fatalf("expected only NodeInfo set, got %+v", back)
	}
	if len(back.NodeInfo.Addresses) != 1 || back.NodeInfo.Addresses[0] != "/ip4/127.0.0.1/tcp/4001" {
		t.Fatalf("addresses did not round-trip: %+v", back.NodeInfo)
	}
	if back.NodeInfo.Stats.KnownPeers != 3 {
		t.Fatalf("stats did not round-trip: %+v", back.NodeInfo.Stats)
	}
}

func TestMessageRoundTripNewListenAddr(t *testing.T) {
	msg := discovery.Message{NewListenAddr: &discovery.NewListenAddr{Peer: peer.ID("p1"), Address: "/ip4/1.2.3.4/tcp/9"}}
	data, err := discovery.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	back, err := discovery.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.NewListenAddr == nil || back.NodeInfo != nil {
		t.Fatalf("expected only NewListenAddr set, got %+v", back)
	}
	if back.NewListenAddr.Address != "/ip4/1.2.3.4/tcp/9" {
		t.Fatalf("address did not round-trip")
	}
}

func TestMessageRoundTripExpiredListenAddr(t *testing.T) {
	msg := discovery.Message{ExpiredListenAddr: &discovery.ExpiredListenAddr{Peer: peer.ID("p1"), Address: "/ip4/1.2.3.4/tcp/9"}}
	data, err := discovery.Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	back, err := discovery.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.ExpiredListenAddr == nil {
		t.Fatalf("expected ExpiredListenAddr set, got %+v", back)
	}
}

func TestPublisherDeliversNodeInfoOverLocalBus(t *testing.T) {
	bus := discovery.NewLocalBus()
	pub := discovery.NewPublisher(bus, peer.ID("p1"))

	ch, cancel, err := bus.Subscribe("banyanmesh/discovery/v1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.PublishNodeInfo(context.Background(), []multiaddr.Multiaddr{addr}, discovery.Stats{KnownPeers: 1}); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-ch:
		msg, err := discovery.Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if msg.NodeInfo == nil || msg.NodeInfo.Peer != peer.ID("p1") {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NodeInfo")
	}
}

func TestRunNodeInfoCadenceFiresAfterFirstDelay(t *testing.T) {
	bus := discovery.NewLocalBus()
	pub := discovery.NewPublisher(bus, peer.ID("p1"))

	ch, cancel, err := bus.Subscribe("banyanmesh/discovery/v1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	addr, _ := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	snapshot := func() ([]multiaddr.Multiaddr, discovery.Stats) {
		return []multiaddr.Multiaddr{addr}, discovery.Stats{KnownPeers: 1}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go pub.RunNodeInfoCadence(ctx, 10*time.Millisecond, time.Hour, snapshot)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first cadence tick")
	}
}

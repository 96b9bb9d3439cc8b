package bitswap_test

import (
	"context"
	"testing"
	"time"

	peer "github.com/libp2p/go-libp2p/core/peer"

	"github.com/banyanmesh/core/bitswap"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/model"
)

func recvMessage(t *testing.T, ch <-chan bitswap.WantsMsg) bitswap.Message {
	t.Helper()
	select {
	case wm := <-ch:
		msg, err := bitswap.Decode(wm.Payload)
		if err != nil {
			t.Fatal(err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return bitswap.Message{}
	}
}

func TestWantBroadcastsHaveQueryToAllPeers(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	if err := e.AddPeer(ctx, a); err != nil {
		t.Fatal(err)
	}

	cid := mkCid("wanted")
	if err := e.Want(ctx, []model.Cid{cid}, time.Now()); err != nil {
		t.Fatal(err)
	}

	ch, err := aT.Deliver(self)
	if err != nil {
		t.Fatal(err)
	}
	msg := recvMessage(t, ch)
	if msg.HaveQuery == nil || len(msg.HaveQuery.Cids) != 1 || !msg.HaveQuery.Cids[0].Equal(cid) {
		t.Fatalf("expected HaveQuery for the wanted cid, got %+v", msg)
	}
}

func TestAddPeerSendsFullWantListAsHave(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	cid := mkCid("existing")
	if err := e.Want(ctx, []model.Cid{cid}, time.Now()); err != nil {
		t.Fatal(err)
	}

	ch, _ := aT.Deliver(self)
	if err := e.AddPeer(ctx, a); err != nil {
		t.Fatal(err)
	}

	msg := recvMessage(t, ch)
	if msg.HaveQuery == nil || !msg.HaveQuery.Cids[0].Equal(cid) {
		t.Fatalf("expected new peer to receive the existing want-list, got %+v", msg)
	}
}

func TestHaveResponseTrueTransitionsToComingAndSendsWant(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	if err := e.AddPeer(ctx, a); err != nil {
		t.Fatal(err)
	}
	cid := mkCid("wanted")
	if err := e.Want(ctx, []model.Cid{cid}, time.Now()); err != nil {
		t.Fatal(err)
	}

	ch, _ := aT.Deliver(self)
	recvMessage(t, ch) // drain the HaveQuery broadcast from Want

	if err := e.HandleHaveResponse(ctx, a, bitswap.HaveResponse{Entries: []bitswap.HaveEntry{{Cid: cid, Have: true}}}); err != nil {
		t.Fatal(err)
	}

	msg := recvMessage(t, ch)
	if msg.WantQuery == nil || !msg.WantQuery.Cids[0].Equal(cid) {
		t.Fatalf("expected WantQuery sent to the answering peer, got %+v", msg)
	}
}

func TestHaveResponseFalseIsNoOp(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	e.AddPeer(ctx, a)
	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())

	ch, _ := aT.Deliver(self)
	recvMessage(t, ch)

	if err := e.HandleHaveResponse(ctx, a, bitswap.HaveResponse{Entries: []bitswap.HaveEntry{{Cid: cid, Have: false}}}); err != nil {
		t.Fatal(err)
	}
	select {
	case wm := <-ch:
		t.Fatalf("expected no further message, got %+v", wm)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWantResponseDeliversBlockAndRemovesWant(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	var delivered []byte
	e.OnDeliver(func(cid model.Cid, block []byte) { delivered = block })

	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())

	if err := e.HandleWantResponse(ctx, a, bitswap.WantResponse{Blocks: []bitswap.BlockEntry{{Cid: cid, Block: []byte("data")}}}); err != nil {
		t.Fatal(err)
	}
	if string(delivered) != "data" {
		t.Fatalf("expected block delivered, got %q", delivered)
	}
}

func TestRaceSecondDelivererWinsAndCancelsFirst(t *testing.T) {
	ctx := context.Background()
	self, a, b := peer.ID("self"), peer.ID("a"), peer.ID("b")
	selfT := bitswap.NewLocalTransport(self)
	aT, bT := bitswap.NewLocalTransport(a), bitswap.NewLocalTransport(b)
	selfT.Connect(aT)
	selfT.Connect(bT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	e.AddPeer(ctx, a)
	e.AddPeer(ctx, b)
	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())

	aCh, _ := aT.Deliver(self)
	recvMessage(t, aCh) // drain Want's HaveQuery broadcast

	if err := e.HandleHaveResponse(ctx, a, bitswap.HaveResponse{Entries: []bitswap.HaveEntry{{Cid: cid, Have: true}}}); err != nil {
		t.Fatal(err)
	}
	recvMessage(t, aCh) // drain the WantQuery sent to a

	if err := e.HandleWantResponse(ctx, b, bitswap.WantResponse{Blocks: []bitswap.BlockEntry{{Cid: cid, Block: []byte("from-b")}}}); err != nil {
		t.Fatal(err)
	}

	msg := recvMessage(t, aCh)
	if msg.Cancel == nil || !msg.Cancel.Cids[0].Equal(cid) {
		t.Fatalf("expected Cancel sent to the losing peer a, got %+v", msg)
	}
}

func TestDuplicateBlockDiscarded(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	count := 0
	e.OnDeliver(func(cid model.Cid, block []byte) { count++ })

	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())
	e.HandleWantResponse(ctx, a, bitswap.WantResponse{Blocks: []bitswap.BlockEntry{{Cid: cid, Block: []byte("x")}}})
	e.HandleWantResponse(ctx, a, bitswap.WantResponse{Blocks: []bitswap.BlockEntry{{Cid: cid, Block: []byte("x")}}})

	if count != 1 {
		t.Fatalf("expected exactly one delivery, got %d", count)
	}
}

func TestRemovePeerRevertsComingAndDoesNotCancel(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: 30 * time.Second, ResendDuration: 120 * time.Second})
	e.AddPeer(ctx, a)
	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())

	aCh, _ := aT.Deliver(self)
	recvMessage(t, aCh) // Want's HaveQuery broadcast to a

	e.HandleHaveResponse(ctx, a, bitswap.HaveResponse{Entries: []bitswap.HaveEntry{{Cid: cid, Have: true}}})
	recvMessage(t, aCh) // WantQuery to a

	if err := e.RemovePeer(ctx, a); err != nil {
		t.Fatal(err)
	}

	select {
	case wm := <-aCh:
		msg, _ := bitswap.Decode(wm.Payload)
		if msg.Cancel != nil {
			t.Fatal("expected no Cancel sent to the disconnected peer")
		}
	case <-time.After(50 * time.Millisecond):
		// no re-broadcast reaches a, which is exactly right since a just disconnected
	}
}

func TestJanitorRevertsStaleComingAndDebitsPromiseBreaker(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: time.Millisecond, ResendDuration: time.Hour})
	var broken peer.ID
	e.OnPromiseBroken(func(p peer.ID) { broken = p })

	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())
	e.AddPeer(ctx, a)
	e.HandleHaveResponse(ctx, a, bitswap.HaveResponse{Entries: []bitswap.HaveEntry{{Cid: cid, Have: true}}})

	time.Sleep(5 * time.Millisecond)
	e.Janitor(ctx)

	if broken != a {
		t.Fatalf("expected promise-broken hook called with peer a, got %v", broken)
	}
}

func TestJanitorResendsStaleWant(t *testing.T) {
	ctx := context.Background()
	self, a := peer.ID("self"), peer.ID("a")
	selfT, aT := bitswap.NewLocalTransport(self), bitswap.NewLocalTransport(a)
	selfT.Connect(aT)

	e := bitswap.NewEngine(selfT, config.Bitswap{MaxSendDuration: time.Hour, ResendDuration: time.Millisecond})
	var cleaned model.Cid
	e.OnWantCleanup(func(cid model.Cid) { cleaned = cid })

	e.AddPeer(ctx, a)
	cid := mkCid("wanted")
	e.Want(ctx, []model.Cid{cid}, time.Now())

	ch, _ := aT.Deliver(self)
	recvMessage(t, ch) // Want's HaveQuery broadcast to a

	time.Sleep(5 * time.Millisecond)
	e.Janitor(ctx)

	msg := recvMessage(t, ch)
	if msg.HaveQuery == nil {
		t.Fatalf("expected a HaveQuery re-broadcast, got %+v", msg)
	}
	if !cleaned.Equal(cid) {
		t.Fatal("expected WantCleanup hook invoked for the stale want")
	}
}

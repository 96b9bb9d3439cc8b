package gossip_test

import (
	"context"
	"os"
	"testing"

	"github.com/banyanmesh/core/gossip"
	"github.com/banyanmesh/core/indexdb"
	"github.com/banyanmesh/core/model"
)

func tempIdx(t *testing.T) *indexdb.DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "gossip-idx-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	db, err := indexdb.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPublishRootUpdateDeliversOverLocalBus(t *testing.T) {
	bus := gossip.NewLocalBus()
	idx := tempIdx(t)
	self := model.NodeId{31: 1}
	engine := gossip.NewEngine()
	pub := gossip.NewPublisher(bus, idx, self, engine)

	sub, cancel, err := bus.Subscribe("banyanmesh/roots/v1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	ctx := context.Background()
	stream := mkStream(5, 0)
	root := mkCid("root")
	if err := pub.PublishRootUpdate(ctx, stream, root, 3, nil, nil); err != nil {
		t.Fatal(err)
	}

	msg := <-sub
	decoded, err := gossip.Decode(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.RootUpdate == nil || !decoded.RootUpdate.Root.Equal(root) {
		t.Fatalf("expected decoded root update, got %+v", decoded)
	}
}

func TestHandleMessageAdvancesLamportAndIngests(t *testing.T) {
	idx := tempIdx(t)
	engine := gossip.NewEngine()
	pub := gossip.NewPublisher(gossip.NewLocalBus(), idx, model.NodeId{}, engine)

	stream := mkStream(7, 0)
	root := mkCid("fast-root")
	msg := gossip.Message{RootUpdate: &gossip.RootUpdate{
		Stream:  stream,
		Root:    root,
		Blocks:  [][]byte{[]byte("delta")},
		Lamport: 42,
	}}
	if err := pub.HandleMessage(msg, gossip.RootSource{}, func(model.StreamId) (model.Cid, bool) { return model.Cid{}, false }); err != nil {
		t.Fatal(err)
	}

	observed, err := idx.ObservedLamport()
	if err != nil {
		t.Fatal(err)
	}
	if observed != 42 {
		t.Fatalf("expected observed lamport 42, got %d", observed)
	}

	cid, source, ok := engine.Peek(stream)
	if !ok || !cid.Equal(root) {
		t.Fatalf("expected root pending after HandleMessage, got %v ok=%v", cid, ok)
	}
	if source.Priority != gossip.PriorityFastPath {
		t.Fatalf("expected fast-path priority for blocks-carrying update, got %v", source.Priority)
	}
}

package store

import (
	"context"
	"os"
	"testing"

	"github.com/banyanmesh/core/blockstore"
	"github.com/banyanmesh/core/cmn/config"
	"github.com/banyanmesh/core/indexdb"
	"github.com/banyanmesh/core/model"
	"github.com/banyanmesh/core/offsetmap"
	"github.com/banyanmesh/core/routing"
)

func testStore(t *testing.T) (*EventStore, model.NodeId) {
	t.Helper()
	dir, err := os.MkdirTemp("", "storetest-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	bs, err := blockstore.Open(dir, 1024, 1<<20, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bs.Close() })

	idx, err := indexdb.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	self := model.NodeId{31: 7}
	cfg := config.Banyan{MaxKeyBranches: 4, MaxLeafCount: 4, TargetLeafSize: 1 << 20, MaxLevel: 8}
	return New(cfg, bs, idx, routing.New(), self), self
}

// testStoreOneEventPerLeaf seals every appended event into its own
// leaf, so retention's whole-leaf trimming can enforce exact offset
// cutoffs in tests.
func testStoreOneEventPerLeaf(t *testing.T) (*EventStore, model.NodeId) {
	t.Helper()
	dir, err := os.MkdirTemp("", "storetest-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	bs, err := blockstore.Open(dir, 1024, 1<<20, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { bs.Close() })

	idx, err := indexdb.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	self := model.NodeId{31: 7}
	cfg := config.Banyan{MaxKeyBranches: 4, MaxLeafCount: 1, TargetLeafSize: 1 << 20, MaxLevel: 0}
	return New(cfg, bs, idx, routing.New(), self), self
}

func mkAppend(tags ...model.Tag) AppendEvent {
	p, _ := model.MarshalPayload("hi")
	return AppendEvent{Tags: model.NewTagSet(tags...), Payload: p}
}

func TestAppendAssignsIncreasingOffsetsOnDefaultStream(t *testing.T) {
	s, self := testStore(t)
	keys, err := s.Append(context.Background(), "com.example.app", []AppendEvent{mkAppend("a"), mkAppend("b")}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("want 2 keys, got %d", len(keys))
	}
	want := model.NewStreamId(self, model.DefaultStreamNr)
	if !keys[0].Stream.Equal(want) || !keys[1].Stream.Equal(want) {
		t.Fatalf("events routed to unexpected stream")
	}
	if keys[0].Offset != 0 || keys[1].Offset != 1 {
		t.Fatalf("want offsets 0,1, got %d,%d", keys[0].Offset, keys[1].Offset)
	}
	if keys[1].Lamport <= keys[0].Lamport {
		t.Fatalf("lamport did not increase: %d -> %d", keys[0].Lamport, keys[1].Lamport)
	}
}

func TestOffsetsReflectAppendedCount(t *testing.T) {
	s, self := testStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "app", []AppendEvent{mkAppend("x"), mkAppend("x"), mkAppend("x")}, false); err != nil {
		t.Fatal(err)
	}
	present, target := s.Offsets()
	stream := model.NewStreamId(self, model.DefaultStreamNr)
	if present.Get(stream) != model.Offset(2).OrMin() {
		t.Fatalf("want present offset 2, got %v", present.Get(stream))
	}
	if target.Get(stream) != present.Get(stream) {
		t.Fatalf("own stream's target should equal its present offset")
	}
}

func TestBoundedForwardRejectsUpperBoundsAboveLocal(t *testing.T) {
	s, self := testStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "app", []AppendEvent{mkAppend("x")}, false); err != nil {
		t.Fatal(err)
	}
	stream := model.NewStreamId(self, model.DefaultStreamNr)
	tooFar := offsetmap.New()
	tooFar.Set(stream, model.Offset(50).OrMin())
	if _, err := s.BoundedForward(ctx, nil, nil, tooFar); err != ErrInvalidUpperBounds {
		t.Fatalf("want ErrInvalidUpperBounds, got %v", err)
	}
}

func TestBoundedForwardReturnsEventsInOrder(t *testing.T) {
	s, self := testStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "app", []AppendEvent{mkAppend("x"), mkAppend("x"), mkAppend("x")}, false); err != nil {
		t.Fatal(err)
	}
	present, _ := s.Offsets()
	ch, err := s.BoundedForward(ctx, nil, nil, present)
	if err != nil {
		t.Fatal(err)
	}
	var got []model.Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 events, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Key.Less(got[i].Key) {
			t.Fatalf("events out of order at %d", i)
		}
	}
	stream := model.NewStreamId(self, model.DefaultStreamNr)
	for _, e := range got {
		if !e.Key.Stream.Equal(stream) {
			t.Fatalf("unexpected stream on event: %+v", e.Key)
		}
	}
}

func TestConfigureRetentionRejectsDefaultStream(t *testing.T) {
	s, _ := testStore(t)
	if err := s.ConfigureRetention(model.DefaultStreamNr, RetentionConfig{}); err != ErrRetentionOnDefaultStream {
		t.Fatalf("want ErrRetentionOnDefaultStream, got %v", err)
	}
}

func TestApplyReplicatedRootRejectsRegression(t *testing.T) {
	s, _ := testStore(t)
	stream := model.NewStreamId(model.NodeId{31: 9}, model.DefaultStreamNr)
	if err := s.ApplyReplicatedRoot(stream, model.Undef, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyReplicatedRoot(stream, model.Undef, 3); err != ErrTreeRejectedLostEvents {
		t.Fatalf("want ErrTreeRejectedLostEvents, got %v", err)
	}
}

func TestPruneTrimsToConfiguredMaxEvents(t *testing.T) {
	s, self := testStoreOneEventPerLeaf(t)
	ctx := context.Background()

	nr := s.routes.AddRoute(routing.DNF{routing.Clause{routing.TagAtom("s1")}}, "s1")
	maxEvents := int64(3)
	if err := s.ConfigureRetention(nr, RetentionConfig{MaxEvents: &maxEvents}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, "app", []AppendEvent{mkAppend("s1")}, false); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Prune(ctx); err != nil {
		t.Fatal(err)
	}

	stream := model.NewStreamId(self, nr)
	reader, err := s.openReader(ctx, stream)
	if err != nil {
		t.Fatal(err)
	}
	var got []model.Event
	reader.Forward(model.MinOffset, func(e model.Event) bool {
		got = append(got, e)
		return true
	})
	if len(got) != 3 {
		t.Fatalf("want 3 events surviving retention, got %d", len(got))
	}
	wantOffsets := []model.Offset{2, 3, 4}
	for i, e := range got {
		if e.Key.Offset != wantOffsets[i] {
			t.Fatalf("offset %d: want %d, got %d", i, wantOffsets[i], e.Key.Offset)
		}
	}
}

func TestNonBlockingAppendFailsOnHeldLock(t *testing.T) {
	s, _ := testStore(t)
	os := s.ownStreamFor(model.DefaultStreamNr)
	if !os.mu.TryLock() {
		t.Fatal("expected to acquire lock")
	}
	defer os.mu.Unlock()

	_, err := s.Append(context.Background(), "app", []AppendEvent{mkAppend("x")}, true)
	if err != ErrStreamLocked {
		t.Fatalf("want ErrStreamLocked, got %v", err)
	}
}

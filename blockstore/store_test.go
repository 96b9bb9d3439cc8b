package blockstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/banyanmesh/core/blockstore"
	"github.com/banyanmesh/core/cmn/cos"
)

func tempStore(t *testing.T) *blockstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "banyan-bstore-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	s, err := blockstore.Open(dir, 1024, 1<<20, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	c, err := s.Put(ctx, []byte("hello block"))
	if err != nil {
		t.Fatal(err)
	}
	has, err := s.Has(ctx, c)
	if err != nil || !has {
		t.Fatalf("expected Has true, got %v %v", has, err)
	}
	got, err := s.Get(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello block" {
		t.Fatalf("got %q", got)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := tempStore(t)
	other := tempStore(t)
	c, err := other.Put(context.Background(), []byte("not in s"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Get(context.Background(), c)
	if !cos.IsErrNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAliasResolve(t *testing.T) {
	s := tempStore(t)
	c, err := s.Put(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Alias("stream-1", &c); err != nil {
		t.Fatal(err)
	}
	resolved, ok, err := s.Resolve("stream-1")
	if err != nil || !ok {
		t.Fatalf("expected resolve ok, got %v %v", ok, err)
	}
	if !resolved.Equal(c) {
		t.Fatalf("resolved cid mismatch")
	}
	if err := s.Alias("stream-1", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Resolve("stream-1"); ok {
		t.Fatal("expected alias cleared")
	}
}

func TestGCRemovesUnpinnedOnly(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	keep, err := s.Put(ctx, []byte("keep me"))
	if err != nil {
		t.Fatal(err)
	}
	drop, err := s.Put(ctx, []byte("drop me"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Pin(keep); err != nil {
		t.Fatal(err)
	}

	_, deleted, err := s.GC(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}
	if has, _ := s.Has(ctx, keep); !has {
		t.Fatal("pinned block should survive GC")
	}
	if has, _ := s.Has(ctx, drop); has {
		t.Fatal("unpinned block should be removed by GC")
	}
}

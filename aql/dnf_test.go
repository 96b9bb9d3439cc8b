package aql

import (
	"testing"

	"github.com/banyanmesh/core/model"
)

func TestToDNFDistributesAndOverOr(t *testing.T) {
	q := mustParse(t, "FROM ('a' | 'b') & appId(foo)")
	dnf := q.From.Tag.ToDNF()
	if len(dnf) != 2 {
		t.Fatalf("expected 2 clauses after distributing & over |, got %d: %+v", len(dnf), dnf)
	}
	ts := model.NewTagSet("a")
	if !dnf.Matches(ts, "foo") {
		t.Fatal("expected the clause for tag 'a' & appId(foo) to match")
	}
	ts2 := model.NewTagSet("b")
	if !dnf.Matches(ts2, "foo") {
		t.Fatal("expected the clause for tag 'b' & appId(foo) to match")
	}
	if dnf.Matches(model.NewTagSet("c"), "foo") {
		t.Fatal("expected no clause to match an unrelated tag")
	}
}

func TestToDNFAllEvents(t *testing.T) {
	q := mustParse(t, "FROM allEvents")
	dnf := q.From.Tag.ToDNF()
	if !dnf.Matches(model.NewTagSet(), "anything") {
		t.Fatal("expected allEvents to match any tag set")
	}
}

func TestToDNFDropsNonRoutingAtoms(t *testing.T) {
	q := mustParse(t, "FROM 'a' & isLocal")
	dnf := q.From.Tag.ToDNF()
	if !dnf.Matches(model.NewTagSet("a"), "anyone") {
		t.Fatal("expected the routing-relevant tag atom alone to still match")
	}
}

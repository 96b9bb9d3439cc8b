package aql

import (
	"testing"

	"github.com/banyanmesh/core/model"
)

// roundTrip renders q, reparses the rendered text, and asserts the
// two ASTs carry the same From.Tag/Ops shape (spec §4.5's round-trip
// property: "rendering an AST back to text and re-parsing produces
// an equal AST, possibly with added parentheses").
func roundTrip(t *testing.T, src string) (*Query, *Query) {
	t.Helper()
	now := model.Timestamp(1_700_000_000_000_000)
	q1, err := ParseQuery(src, now)
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", src, err)
	}
	rendered := q1.String()
	q2, err := ParseQuery(rendered, now)
	if err != nil {
		t.Fatalf("re-parsing rendered query %q: %v", rendered, err)
	}
	return q1, q2
}

func TestDisplayRoundTripArithmetic(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM allEvents FILTER 1 + 2 * 3 - 4")
	if q1.Ops[0].Expr.String() != q2.Ops[0].Expr.String() {
		t.Fatalf("round-trip mismatch:\n%s\n%s", q1.Ops[0].Expr.String(), q2.Ops[0].Expr.String())
	}
}

func TestDisplayRoundTripTagExpr(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM 'a' & appId(foo) | isLocal")
	if q1.From.Tag.String() != q2.From.Tag.String() {
		t.Fatalf("round-trip mismatch:\n%s\n%s", q1.From.Tag.String(), q2.From.Tag.String())
	}
}

func TestDisplayRoundTripIndexingAndFields(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM allEvents SELECT x[0], x.name, x[(1+1)]")
	for i := range q1.Ops[0].Exprs {
		if q1.Ops[0].Exprs[i].String() != q2.Ops[0].Exprs[i].String() {
			t.Fatalf("index %d round-trip mismatch: %s vs %s", i, q1.Ops[0].Exprs[i].String(), q2.Ops[0].Exprs[i].String())
		}
	}
}

func TestDisplayRoundTripCase(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM allEvents FILTER CASE _ = 1 => true CASE _ = 2 => false ENDCASE")
	if q1.Ops[0].Expr.String() != q2.Ops[0].Expr.String() {
		t.Fatalf("round-trip mismatch:\n%s\n%s", q1.Ops[0].Expr.String(), q2.Ops[0].Expr.String())
	}
}

func TestDisplayRoundTripObjectArray(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM allEvents SELECT {a: 1, b: [1, 2, 3]}")
	if q1.Ops[0].Exprs[0].String() != q2.Ops[0].Exprs[0].String() {
		t.Fatalf("round-trip mismatch:\n%s\n%s", q1.Ops[0].Exprs[0].String(), q2.Ops[0].Exprs[0].String())
	}
}

func TestDisplayRoundTripLetAndLimit(t *testing.T) {
	q1, q2 := roundTrip(t, "FROM allEvents LET x := 1 + 1 FILTER x = 2 LIMIT 5")
	if q1.String() != q2.String() {
		t.Fatalf("round-trip mismatch:\n%s\n%s", q1.String(), q2.String())
	}
}

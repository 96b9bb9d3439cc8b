package aql

import (
	"testing"

	"github.com/banyanmesh/core/model"
)

func mustParse(t *testing.T, src string) *Query {
	t.Helper()
	q, err := ParseQuery(src, model.Timestamp(1_700_000_000_000_000))
	if err != nil {
		t.Fatalf("ParseQuery(%q): %v", src, err)
	}
	return q
}

func TestParseSimpleFilterQuery(t *testing.T) {
	q := mustParse(t, "FROM 'mytag' FILTER _ = 1")
	if q.From.Tag == nil || q.From.Tag.Kind != TagExprAtom || q.From.Tag.Atom.Kind != TagAtomTag {
		t.Fatalf("unexpected From: %+v", q.From)
	}
	if q.From.Tag.Atom.Tag != "mytag" {
		t.Fatalf("unexpected tag: %q", q.From.Tag.Atom.Tag)
	}
	if len(q.Ops) != 1 || q.Ops[0].Kind != OpFilter {
		t.Fatalf("expected one FILTER op, got %+v", q.Ops)
	}
	filter := q.Ops[0].Expr
	if filter.Kind != ExprBinOp || filter.Op != OpEq {
		t.Fatalf("expected `_ = 1`, got %+v", filter)
	}
	if filter.Left.Kind != ExprCurrent {
		t.Fatalf("expected left side `_`, got %+v", filter.Left)
	}
}

func TestParseAllEventsSelectLimit(t *testing.T) {
	q := mustParse(t, "FROM allEvents SELECT a, b LIMIT 10")
	if q.From.Tag.Atom.Kind != TagAtomAllEvents {
		t.Fatalf("expected allEvents, got %+v", q.From.Tag.Atom)
	}
	if len(q.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(q.Ops))
	}
	sel := q.Ops[0]
	if sel.Kind != OpSelect || len(sel.Exprs) != 2 {
		t.Fatalf("unexpected SELECT op: %+v", sel)
	}
	if sel.Exprs[0].Str != "a" || sel.Exprs[1].Str != "b" {
		t.Fatalf("unexpected SELECT vars: %+v", sel.Exprs)
	}
	lim := q.Ops[1]
	if lim.Kind != OpLimit || lim.Limit != 10 {
		t.Fatalf("unexpected LIMIT op: %+v", lim)
	}
}

func TestParseTagExprAndOr(t *testing.T) {
	q := mustParse(t, "FROM 'a' & appId(foo) | isLocal")
	top := q.From.Tag
	if top.Kind != TagExprOr {
		t.Fatalf("expected top-level Or (| binds loosest), got kind %v", top.Kind)
	}
	if top.Left.Kind != TagExprAnd {
		t.Fatalf("expected left side to be the And clause, got kind %v", top.Left.Kind)
	}
	if top.Right.Atom.Kind != TagAtomIsLocal {
		t.Fatalf("expected right side isLocal, got %+v", top.Right)
	}
}

func TestParseAggregateSumAllowed(t *testing.T) {
	q := mustParse(t, "FROM allEvents AGGREGATE SUM(1)")
	agg := q.Ops[0]
	if agg.Kind != OpAggregate || agg.Expr.Kind != ExprAggrOp || agg.Expr.Aggr != AggrSum {
		t.Fatalf("unexpected AGGREGATE op: %+v", agg)
	}
}

func TestAggregatorOutsideAggregateIsError(t *testing.T) {
	_, err := ParseQuery("FROM allEvents FILTER SUM(1) = 1", model.Now())
	if err == nil {
		t.Fatal("expected an error for SUM used outside AGGREGATE")
	}
	if _, ok := err.(*AggregatorOutsideAggregate); !ok {
		t.Fatalf("expected *AggregatorOutsideAggregate, got %T: %v", err, err)
	}
}

func TestCurrentValueInAggregateIsError(t *testing.T) {
	_, err := ParseQuery("FROM allEvents AGGREGATE SUM(_)", model.Now())
	if err == nil {
		t.Fatal("expected an error for `_` used inside AGGREGATE")
	}
	if _, ok := err.(*CurrentValueInAggregate); !ok {
		t.Fatalf("expected *CurrentValueInAggregate, got %T: %v", err, err)
	}
}

func TestParseCaseExpr(t *testing.T) {
	q := mustParse(t, "FROM allEvents FILTER CASE _ = 1 => true CASE _ = 2 => false ENDCASE")
	f := q.Ops[0].Expr
	if f.Kind != ExprCase || len(f.Cases) != 2 {
		t.Fatalf("unexpected CASE expr: %+v", f)
	}
}

func TestParseObjectAndArrayLiterals(t *testing.T) {
	q := mustParse(t, "FROM allEvents SELECT {a: 1, b: [1, 2, 3]}")
	sel := q.Ops[0].Exprs[0]
	if sel.Kind != ExprObject || len(sel.Fields) != 2 {
		t.Fatalf("unexpected object literal: %+v", sel)
	}
	arr := sel.Fields[1].Expr
	if arr.Kind != ExprArray || len(arr.Items) != 3 {
		t.Fatalf("unexpected array literal: %+v", arr)
	}
}

func TestParseIndexingForms(t *testing.T) {
	q := mustParse(t, "FROM allEvents SELECT x[0], x.name, x['name'], x[(1+1)]")
	sel := q.Ops[0].Exprs
	if sel[0].Kind != ExprIndex {
		t.Fatalf("x[0]: expected ExprIndex, got %+v", sel[0])
	}
	if sel[1].Kind != ExprField || sel[1].Name != "name" {
		t.Fatalf("x.name: expected ExprField, got %+v", sel[1])
	}
	if sel[2].Kind != ExprField || sel[2].Name != "name" {
		t.Fatalf("x['name']: expected ExprField, got %+v", sel[2])
	}
	if sel[3].Kind != ExprIndex || sel[3].Index.Kind != ExprBinOp {
		t.Fatalf("x[(1+1)]: expected ExprIndex with binop, got %+v", sel[3])
	}
}

func TestParseInterpolationWithExprAndUnicodeEscape(t *testing.T) {
	q := mustParse(t, "FROM allEvents SELECT `hello {1+1}{U+0041}`")
	e := q.Ops[0].Exprs[0]
	if e.Kind != ExprInterpolation {
		t.Fatalf("expected ExprInterpolation, got %+v", e)
	}
	foundExpr, foundEscape := false, false
	for _, it := range e.Items {
		if it.Kind == ExprBinOp {
			foundExpr = true
		}
		if it.Kind == ExprString && it.Str == "A" {
			foundEscape = true
		}
	}
	if !foundExpr || !foundEscape {
		t.Fatalf("expected both the embedded expr and the decoded unicode escape: %+v", e.Items)
	}
}

func TestParseFromDurationAgo(t *testing.T) {
	now := model.Timestamp(10_000_000) // 10s since epoch, in micros
	q, err := ParseQuery("FROM from(5s)", now)
	if err != nil {
		t.Fatal(err)
	}
	atom := q.From.Tag.Atom
	if atom.Kind != TagAtomFromTime {
		t.Fatalf("expected TagAtomFromTime, got %+v", atom)
	}
	want := model.Timestamp(10_000_000 - 5_000_000)
	if atom.Time != want {
		t.Fatalf("expected %d, got %d", want, atom.Time)
	}
}

func TestParseFromIsoDate(t *testing.T) {
	q := mustParse(t, "FROM from(2024-01-01T00:00:00Z)")
	atom := q.From.Tag.Atom
	if atom.Kind != TagAtomFromTime {
		t.Fatalf("expected TagAtomFromTime, got %+v", atom)
	}
}

func TestParsePragmaSingleLineAndBlock(t *testing.T) {
	q := mustParse(t, "PRAGMA foo := bar\nFROM allEvents")
	if len(q.Pragmas) != 1 || q.Pragmas[0].Name != "foo" || q.Pragmas[0].Value != "bar" {
		t.Fatalf("unexpected pragmas: %+v", q.Pragmas)
	}

	q2 := mustParse(t, "PRAGMA foo\nbar baz\nENDPRAGMA\nFROM allEvents")
	if len(q2.Pragmas) != 1 || q2.Pragmas[0].Name != "foo" || q2.Pragmas[0].Value != "bar baz" {
		t.Fatalf("unexpected block pragma: %+v", q2.Pragmas)
	}
}

func TestParseFeatures(t *testing.T) {
	q := mustParse(t, "FEATURES(typeCheck) FROM allEvents")
	if len(q.Features) != 1 || q.Features[0] != "typeCheck" {
		t.Fatalf("unexpected features: %+v", q.Features)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	q := mustParse(t, "FROM allEvents FILTER 1 + 2 * 3")
	f := q.Ops[0].Expr
	if f.Kind != ExprBinOp || f.Op != OpAdd {
		t.Fatalf("expected top-level +, got %+v", f)
	}
	if f.Right.Kind != ExprBinOp || f.Right.Op != OpMul {
		t.Fatalf("expected `2 * 3` grouped on the right, got %+v", f.Right)
	}
}

func TestNotBindsTighterThanBinOps(t *testing.T) {
	q := mustParse(t, "FROM allEvents FILTER !true & false")
	f := q.Ops[0].Expr
	if f.Kind != ExprBinOp || f.Op != OpAnd {
		t.Fatalf("expected top-level And, got %+v", f)
	}
	if f.Left.Kind != ExprNot {
		t.Fatalf("expected `!true` on the left, got %+v", f.Left)
	}
}

func TestParseSubQuery(t *testing.T) {
	q := mustParse(t, "FROM allEvents SELECT FROM 'x' SELECT 1")
	sel := q.Ops[0].Exprs[0]
	if sel.Kind != ExprSubQuery || sel.SubQuery == nil {
		t.Fatalf("expected a sub-query, got %+v", sel)
	}
}

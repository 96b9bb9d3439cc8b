package eval

import (
	"testing"

	"github.com/banyanmesh/core/aql"
)

func num(n uint64) aql.Expr { return aql.Expr{Kind: aql.ExprNumber, Nat: n} }
func str(s string) aql.Expr { return aql.Expr{Kind: aql.ExprString, Str: s} }
func boolExpr(b bool) aql.Expr { return aql.Expr{Kind: aql.ExprBool, Bool: b} }

func TestEvalCurrentResolvesScopeValue(t *testing.T) {
	scope := NewRootScope(nil).WithCurrent(Nat(42, Synthetic()))
	e := aql.Expr{Kind: aql.ExprCurrent}
	v, err := Eval(&e, scope)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KNat || v.Nat != 42 {
		t.Fatalf("want Nat(42), got %+v", v)
	}
}

func TestEvalVariableLooksUpLetBinding(t *testing.T) {
	scope := NewRootScope(nil).Bind("x", Nat(7, Synthetic()))
	e := aql.Expr{Kind: aql.ExprVariable, Str: "x"}
	v, err := Eval(&e, scope)
	if err != nil {
		t.Fatal(err)
	}
	if v.Nat != 7 {
		t.Fatalf("want 7, got %+v", v)
	}

	missing := aql.Expr{Kind: aql.ExprVariable, Str: "y"}
	_, err = Eval(&missing, scope)
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("want *NotFound, got %v", err)
	}
}

func TestEvalFieldAndIndex(t *testing.T) {
	obj := aql.Expr{Kind: aql.ExprObject, Fields: []aql.ObjectField{
		{Name: "a", Expr: num(1)},
		{Name: "b", Expr: num(2)},
	}}
	field := aql.Expr{Kind: aql.ExprField, Base: &obj, Name: "b"}
	v, err := Eval(&field, NewRootScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v.Nat != 2 {
		t.Fatalf("want 2, got %+v", v)
	}

	arr := aql.Expr{Kind: aql.ExprArray, Items: []aql.Expr{num(10), num(20), num(30)}}
	idxExpr := num(1)
	index := aql.Expr{Kind: aql.ExprIndex, Base: &arr, Index: &idxExpr}
	v, err = Eval(&index, NewRootScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v.Nat != 20 {
		t.Fatalf("want 20, got %+v", v)
	}

	oob := num(5)
	oobIndex := aql.Expr{Kind: aql.ExprIndex, Base: &arr, Index: &oob}
	_, err = Eval(&oobIndex, NewRootScope(nil))
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("want *NotFound, got %v", err)
	}
}

func TestEvalCaseFirstMatchWins(t *testing.T) {
	c := aql.Expr{Kind: aql.ExprCase, Cases: []aql.CaseArm{
		{Pred: boolExpr(false), Result: str("no")},
		{Pred: boolExpr(true), Result: str("yes")},
		{Pred: boolExpr(true), Result: str("unreachable")},
	}}
	v, err := Eval(&c, NewRootScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "yes" {
		t.Fatalf("want yes, got %+v", v)
	}
}

func TestEvalCaseNoMatchErrors(t *testing.T) {
	c := aql.Expr{Kind: aql.ExprCase, Cases: []aql.CaseArm{
		{Pred: boolExpr(false), Result: str("a")},
	}}
	_, err := Eval(&c, NewRootScope(nil))
	if _, ok := err.(*NoCaseMatched); !ok {
		t.Fatalf("want *NoCaseMatched, got %v", err)
	}
}

func TestEvalCoalesceUsesRightOnLeftError(t *testing.T) {
	left := aql.Expr{Kind: aql.ExprVariable, Str: "missing"}
	right := num(9)
	e := aql.Expr{Kind: aql.ExprBinOp, Op: aql.OpCoalesce, Left: &left, Right: &right}
	v, err := Eval(&e, NewRootScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v.Nat != 9 {
		t.Fatalf("want 9, got %+v", v)
	}
}

func TestEvalAndShortCircuitsOnFalse(t *testing.T) {
	left := boolExpr(false)
	right := aql.Expr{Kind: aql.ExprVariable, Str: "never-looked-up"}
	e := aql.Expr{Kind: aql.ExprBinOp, Op: aql.OpAnd, Left: &left, Right: &right}
	v, err := Eval(&e, NewRootScope(nil))
	if err != nil {
		t.Fatal(err)
	}
	if v.Bool != false {
		t.Fatalf("want false, got %+v", v)
	}
}

func TestEvalKeyLitRequiresEvent(t *testing.T) {
	e := aql.Expr{Kind: aql.ExprKeyLit}
	_, err := Eval(&e, NewRootScope(nil))
	if _, ok := err.(*RequiresEvent); !ok {
		t.Fatalf("want *RequiresEvent, got %v", err)
	}
}

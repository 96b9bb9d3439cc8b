package eval

import (
	"context"
	"fmt"

	"github.com/banyanmesh/core/aql"
	"github.com/banyanmesh/core/model"
)

// Eval walks an aql.Expr against scope, returning the value it
// evaluates to (spec §4.6). Every ExprKind the parser produces is
// handled; ExprAggrOp only has meaning inside an AGGREGATE op and is
// evaluated there (query.go), not here.
func Eval(e *aql.Expr, scope *Scope) (Value, error) {
	switch e.Kind {
	case aql.ExprNumber:
		if e.IsDecimal {
			return Dec(e.Dec, Synthetic()), nil
		}
		return Nat(e.Nat, Synthetic()), nil
	case aql.ExprString:
		return Str(e.Str, Synthetic()), nil
	case aql.ExprNull:
		return Null(Synthetic()), nil
	case aql.ExprBool:
		return Bool_(e.Bool, Synthetic()), nil
	case aql.ExprCurrent:
		return scope.Current(), nil
	case aql.ExprVariable:
		if v, ok := scope.Lookup(e.Str); ok {
			return v, nil
		}
		return Value{}, &NotFound{Path: e.Str}
	case aql.ExprInterpolation:
		return evalInterpolation(e, scope)
	case aql.ExprObject:
		return evalObject(e, scope)
	case aql.ExprArray:
		return evalArray(e, scope)
	case aql.ExprIndex:
		return evalIndex(e, scope)
	case aql.ExprField:
		return evalField(e, scope)
	case aql.ExprBinOp:
		return evalBinOp(e, scope)
	case aql.ExprNot:
		return evalNot(e, scope)
	case aql.ExprCase:
		return evalCase(e, scope)
	case aql.ExprFuncCall:
		return Value{}, &UnknownFunc{Name: e.Str}
	case aql.ExprSubQuery:
		return evalSubQuery(e, scope)
	case aql.ExprKeyLit:
		return evalKeyLit(scope)
	case aql.ExprTimeLit:
		return evalTimeLit(scope)
	case aql.ExprTagsLit:
		return evalTagsLit(scope)
	case aql.ExprAppLit:
		return evalAppLit(scope)
	case aql.ExprAggrOp:
		return Value{}, fmt.Errorf("eval: AGGREGATE operator used outside an AGGREGATE op")
	default:
		return Value{}, fmt.Errorf("eval: unhandled expression kind %d", e.Kind)
	}
}

func evalInterpolation(e *aql.Expr, scope *Scope) (Value, error) {
	var out string
	meta := Synthetic()
	for _, part := range e.Items {
		v, err := Eval(&part, scope)
		if err != nil {
			return Value{}, err
		}
		meta = unionMeta(meta, v.Meta)
		out += stringify(v)
	}
	return Str(out, meta), nil
}

func stringify(v Value) string {
	switch v.Kind {
	case KString:
		return v.Str
	case KNull:
		return "null"
	default:
		return fmt.Sprint(v.ToGo())
	}
}

func evalObject(e *aql.Expr, scope *Scope) (Value, error) {
	fields := make([]Field, 0, len(e.Fields))
	meta := Synthetic()
	for _, f := range e.Fields {
		v, err := Eval(&f.Expr, scope)
		if err != nil {
			return Value{}, err
		}
		meta = unionMeta(meta, v.Meta)
		fields = append(fields, Field{Name: f.Name, Value: v})
	}
	return Object(fields, meta), nil
}

func evalArray(e *aql.Expr, scope *Scope) (Value, error) {
	items := make([]Value, 0, len(e.Items))
	meta := Synthetic()
	for i := range e.Items {
		v, err := Eval(&e.Items[i], scope)
		if err != nil {
			return Value{}, err
		}
		meta = unionMeta(meta, v.Meta)
		items = append(items, v)
	}
	return Array(items, meta), nil
}

func evalIndex(e *aql.Expr, scope *Scope) (Value, error) {
	base, err := Eval(e.Base, scope)
	if err != nil {
		return Value{}, err
	}
	idx, err := Eval(e.Index, scope)
	if err != nil {
		return Value{}, err
	}
	meta := unionMeta(base.Meta, idx.Meta)
	switch {
	case base.Kind == KArray && idx.Kind == KNat:
		if idx.Nat >= uint64(len(base.Arr)) {
			return Value{}, &NotFound{Path: fmt.Sprintf("[%d]", idx.Nat)}
		}
		v := base.Arr[idx.Nat]
		v.Meta = unionMeta(v.Meta, meta)
		return v, nil
	case base.Kind == KObject && idx.Kind == KString:
		v, ok := base.field(idx.Str)
		if !ok {
			return Value{}, &NotFound{Path: idx.Str}
		}
		v.Meta = unionMeta(v.Meta, meta)
		return v, nil
	default:
		return Value{}, &NotFound{Path: "[...]"}
	}
}

func evalField(e *aql.Expr, scope *Scope) (Value, error) {
	base, err := Eval(e.Base, scope)
	if err != nil {
		return Value{}, err
	}
	if base.Kind != KObject {
		return Value{}, &NotFound{Path: e.Name}
	}
	v, ok := base.field(e.Name)
	if !ok {
		return Value{}, &NotFound{Path: e.Name}
	}
	v.Meta = unionMeta(v.Meta, base.Meta)
	return v, nil
}

// evalBinOp implements spec §4.6's short-circuit rules for `&`, `|`,
// and `??`, and dispatches everything else to arith/compare.
func evalBinOp(e *aql.Expr, scope *Scope) (Value, error) {
	switch e.Op {
	case aql.OpCoalesce:
		l, err := Eval(e.Left, scope)
		if err == nil {
			return l, nil
		}
		return Eval(e.Right, scope)
	case aql.OpAnd:
		l, err := Eval(e.Left, scope)
		if err != nil {
			return Value{}, err
		}
		if l.Kind != KBool {
			return Value{}, binOpErr(e.Op, l, l)
		}
		if !l.Bool {
			return Bool_(false, l.Meta), nil
		}
		r, err := Eval(e.Right, scope)
		if err != nil {
			return Value{}, err
		}
		if r.Kind != KBool {
			return Value{}, binOpErr(e.Op, l, r)
		}
		return Bool_(r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpOr:
		l, err := Eval(e.Left, scope)
		if err != nil {
			return Value{}, err
		}
		if l.Kind != KBool {
			return Value{}, binOpErr(e.Op, l, l)
		}
		if l.Bool {
			return Bool_(true, l.Meta), nil
		}
		r, err := Eval(e.Right, scope)
		if err != nil {
			return Value{}, err
		}
		if r.Kind != KBool {
			return Value{}, binOpErr(e.Op, l, r)
		}
		return Bool_(r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpXor:
		l, err := Eval(e.Left, scope)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(e.Right, scope)
		if err != nil {
			return Value{}, err
		}
		if l.Kind != KBool || r.Kind != KBool {
			return Value{}, binOpErr(e.Op, l, r)
		}
		return Bool_(l.Bool != r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpEq, aql.OpNeq, aql.OpLt, aql.OpLe, aql.OpGt, aql.OpGe:
		l, err := Eval(e.Left, scope)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(e.Right, scope)
		if err != nil {
			return Value{}, err
		}
		return compare(e.Op, l, r)
	default:
		l, err := Eval(e.Left, scope)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(e.Right, scope)
		if err != nil {
			return Value{}, err
		}
		return arith(e.Op, l, r)
	}
}

func evalNot(e *aql.Expr, scope *Scope) (Value, error) {
	v, err := Eval(e.Base, scope)
	if err != nil {
		return Value{}, err
	}
	if v.Kind != KBool {
		return Value{}, binOpErr(aql.OpXor, v, v)
	}
	return Bool_(!v.Bool, v.Meta), nil
}

// evalCase implements spec §4.6's CASE rule: the first predicate
// evaluating to boolean true wins; a non-bool predicate, or one that
// errors, counts as false and moves on; no match is NoCaseMatched.
func evalCase(e *aql.Expr, scope *Scope) (Value, error) {
	for _, arm := range e.Cases {
		pred, err := Eval(&arm.Pred, scope)
		if err != nil {
			continue
		}
		if pred.Truthy() {
			return Eval(&arm.Result, scope)
		}
	}
	return Value{}, &NoCaseMatched{}
}

func evalSubQuery(e *aql.Expr, scope *Scope) (Value, error) {
	results, err := RunQuery(context.Background(), e.SubQuery, scope.Source())
	if err != nil {
		return Value{}, err
	}
	meta := Synthetic()
	for _, r := range results {
		meta = unionMeta(meta, r.Meta)
	}
	return Array(results, meta), nil
}

func evalKeyLit(scope *Scope) (Value, error) {
	cur := scope.Current()
	if cur.Meta.Kind != MetaEvent {
		return Value{}, &RequiresEvent{Literal: "KEY"}
	}
	return KeyVal(cur.Meta.Key, cur.Meta), nil
}

func evalTimeLit(scope *Scope) (Value, error) {
	cur := scope.Current()
	if cur.Meta.Kind != MetaEvent {
		return Value{}, &RequiresEvent{Literal: "TIME"}
	}
	return Nat(uint64(cur.Meta.EventRec.Timestamp), cur.Meta), nil
}

func evalTagsLit(scope *Scope) (Value, error) {
	cur := scope.Current()
	if cur.Meta.Kind != MetaEvent {
		return Value{}, &RequiresEvent{Literal: "TAGS"}
	}
	sorted := cur.Meta.EventRec.Tags.Sorted()
	items := make([]Value, len(sorted))
	for i, t := range sorted {
		items[i] = Str(string(t), cur.Meta)
	}
	return Array(items, cur.Meta), nil
}

func evalAppLit(scope *Scope) (Value, error) {
	cur := scope.Current()
	if cur.Meta.Kind != MetaEvent {
		return Value{}, &RequiresEvent{Literal: "APP"}
	}
	id, _ := model.AppIdFromTags(cur.Meta.EventRec.Tags)
	return Str(string(id), cur.Meta), nil
}

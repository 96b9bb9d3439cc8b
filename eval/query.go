package eval

import (
	"context"

	"github.com/banyanmesh/core/aql"
	"github.com/banyanmesh/core/model"
)

// RunQuery evaluates a parsed AQL query against source, returning the
// ordered sequence of values its pipeline produces (spec §4.5/§4.6).
// It drives both top-level queries (S1/S5) and `FROM (...)` sub-queries
// (evalSubQuery in eval.go).
func RunQuery(ctx context.Context, q *aql.Query, source EventSource) ([]Value, error) {
	if q.From.Array != nil {
		root := NewRootScope(source)
		values := make([]Value, len(q.From.Array))
		for i := range q.From.Array {
			v, err := Eval(&q.From.Array[i], root)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return runOps(ctx, q.Ops, values)
	}

	var self model.NodeId
	if source != nil {
		self = source.Self()
	}
	filter := tagExprFilter(q.From.Tag, self)

	var ch <-chan model.Event
	var err error
	switch q.From.Order {
	case aql.OrderDesc:
		present, _ := source.Offsets()
		ch, err = source.BoundedBackward(ctx, filter, nil, present)
	case aql.OrderStream:
		ch, err = source.UnboundedForward(ctx, filter, nil)
	default:
		present, _ := source.Offsets()
		ch, err = source.BoundedForward(ctx, filter, nil, present)
	}
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for e := range ch {
		events = append(events, e)
	}
	return runPipeline(ctx, q.Ops, source, events)
}

// decodeEvent decodes an event's payload to a Value tagged with its
// own Meta, the starting point of every FROM-sourced pipeline item.
func decodeEvent(e model.Event) Value {
	v, err := Decode(e.Payload, OfEvent(e.Key, e.Meta))
	if err != nil {
		return Value{Kind: KNull, Meta: OfEvent(e.Key, e.Meta)}
	}
	return v
}

// runPipeline threads each stored event through Ops in order,
// tracking the current Value and LET bindings per item; AGGREGATE
// collapses the remaining stream into one value and ends the
// pipeline.
func runPipeline(ctx context.Context, ops []aql.Op, source EventSource, events []model.Event) ([]Value, error) {
	items := make([]*Scope, len(events))
	for i, e := range events {
		items[i] = NewRootScope(source).WithCurrent(decodeEvent(e))
	}
	return runOpsScoped(ctx, ops, items)
}

// runOps is runOpsScoped's entry point for sub-queries sourced from a
// literal array: each value starts with no event context.
func runOps(ctx context.Context, ops []aql.Op, values []Value) ([]Value, error) {
	items := make([]*Scope, len(values))
	for i, v := range values {
		items[i] = NewRootScope(nil).WithCurrent(v)
	}
	return runOpsScoped(ctx, ops, items)
}

func runOpsScoped(ctx context.Context, ops []aql.Op, items []*Scope) ([]Value, error) {
	for _, op := range ops {
		var next []*Scope
		switch op.Kind {
		case aql.OpFilter:
			for _, sc := range items {
				v, err := Eval(&op.Expr, sc)
				if err != nil {
					continue
				}
				if v.Truthy() {
					next = append(next, sc)
				}
			}
			items = next
		case aql.OpSelect:
			for _, sc := range items {
				var result Value
				var err error
				if len(op.Exprs) == 1 {
					result, err = Eval(&op.Exprs[0], sc)
				} else {
					result, err = evalExprList(op.Exprs, sc)
				}
				if err != nil {
					return nil, err
				}
				next = append(next, sc.WithCurrent(result))
			}
			items = next
		case aql.OpLet:
			for _, sc := range items {
				v, err := Eval(&op.Expr, sc)
				if err != nil {
					return nil, err
				}
				next = append(next, sc.Bind(op.Name, v))
			}
			items = next
		case aql.OpLimit:
			if uint64(len(items)) > op.Limit {
				items = items[:op.Limit]
			}
		case aql.OpAggregate:
			v, err := evalAggregateExpr(&op.Expr, items)
			if err != nil {
				return nil, err
			}
			return []Value{v}, nil
		}
	}
	out := make([]Value, len(items))
	for i, sc := range items {
		out[i] = sc.Current()
	}
	return out, nil
}

func evalExprList(exprs []aql.Expr, scope *Scope) (Value, error) {
	items := make([]Value, len(exprs))
	meta := Synthetic()
	for i := range exprs {
		v, err := Eval(&exprs[i], scope)
		if err != nil {
			return Value{}, err
		}
		items[i] = v
		meta = unionMeta(meta, v.Meta)
	}
	return Array(items, meta), nil
}

// evalAggregateExpr evaluates an AGGREGATE op's expression tree, which
// may wrap one or more AggrOp reductions in surrounding structure
// (spec §8 S5: `{ s: SUM(_.v) }`): containers recurse per-branch,
// ExprAggrOp folds over every item, and any other leaf is evaluated
// once against a `_`-less scope (context discipline forbids `_`
// outside the AggrOp's own Arg).
func evalAggregateExpr(e *aql.Expr, items []*Scope) (Value, error) {
	if e.Kind == aql.ExprAggrOp {
		return reduceAggr(e, items)
	}
	switch e.Kind {
	case aql.ExprObject:
		fields := make([]Field, 0, len(e.Fields))
		for _, f := range e.Fields {
			v, err := evalAggregateExpr(&f.Expr, items)
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, Field{Name: f.Name, Value: v})
		}
		return Object(fields, Synthetic()), nil
	case aql.ExprArray, aql.ExprInterpolation:
		vals := make([]Value, len(e.Items))
		for i := range e.Items {
			v, err := evalAggregateExpr(&e.Items[i], items)
			if err != nil {
				return Value{}, err
			}
			vals[i] = v
		}
		if e.Kind == aql.ExprInterpolation {
			var s string
			for _, v := range vals {
				s += stringify(v)
			}
			return Str(s, Synthetic()), nil
		}
		return Array(vals, Synthetic()), nil
	case aql.ExprNot:
		v, err := evalAggregateExpr(e.Base, items)
		if err != nil {
			return Value{}, err
		}
		if v.Kind != KBool {
			return Value{}, binOpErr(aql.OpXor, v, v)
		}
		return Bool_(!v.Bool, Synthetic()), nil
	case aql.ExprBinOp:
		l, err := evalAggregateExpr(e.Left, items)
		if err != nil {
			return Value{}, err
		}
		r, err := evalAggregateExpr(e.Right, items)
		if err != nil {
			return Value{}, err
		}
		return combineBinOp(e.Op, l, r)
	default:
		neutral := NewRootScope(rootSource(items))
		return Eval(e, neutral)
	}
}

func rootSource(items []*Scope) EventSource {
	if len(items) == 0 {
		return nil
	}
	return items[0].Source()
}

// combineBinOp applies a BinOp to two already-evaluated operands,
// used inside AGGREGATE expressions where neither operand can contain
// `_` and so both sides are always safe to evaluate eagerly.
func combineBinOp(op aql.BinOp, l, r Value) (Value, error) {
	switch op {
	case aql.OpCoalesce:
		return l, nil
	case aql.OpAnd:
		if l.Kind != KBool || r.Kind != KBool {
			return Value{}, binOpErr(op, l, r)
		}
		return Bool_(l.Bool && r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpOr:
		if l.Kind != KBool || r.Kind != KBool {
			return Value{}, binOpErr(op, l, r)
		}
		return Bool_(l.Bool || r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpXor:
		if l.Kind != KBool || r.Kind != KBool {
			return Value{}, binOpErr(op, l, r)
		}
		return Bool_(l.Bool != r.Bool, unionMeta(l.Meta, r.Meta)), nil
	case aql.OpEq, aql.OpNeq, aql.OpLt, aql.OpLe, aql.OpGt, aql.OpGe:
		return compare(op, l, r)
	default:
		return arith(op, l, r)
	}
}

// reduceAggr folds an AggrOp's Arg expression over every item (spec
// §4.6's six aggregate operators): `_` is forbidden outside AGGREGATE
// generally but is exactly what Arg is evaluated against here, once
// per item.
func reduceAggr(expr *aql.Expr, items []*Scope) (Value, error) {
	var acc Value
	have := false
	for _, sc := range items {
		v, err := Eval(expr.Arg, sc)
		if err != nil {
			return Value{}, err
		}
		if !have {
			acc = v
			have = true
			continue
		}
		acc, err = combineAggr(expr.Aggr, acc, v)
		if err != nil {
			return Value{}, err
		}
	}
	if !have {
		return Null(Synthetic()), nil
	}
	return acc, nil
}

func combineAggr(kind aql.AggrKind, acc, v Value) (Value, error) {
	switch kind {
	case aql.AggrSum:
		return arith(aql.OpAdd, acc, v)
	case aql.AggrProduct:
		return arith(aql.OpMul, acc, v)
	case aql.AggrMin:
		cmp, err := compare(aql.OpLt, v, acc)
		if err != nil {
			return Value{}, err
		}
		if cmp.Truthy() {
			return v, nil
		}
		return acc, nil
	case aql.AggrMax:
		cmp, err := compare(aql.OpGt, v, acc)
		if err != nil {
			return Value{}, err
		}
		if cmp.Truthy() {
			return v, nil
		}
		return acc, nil
	case aql.AggrFirst:
		return acc, nil
	case aql.AggrLast:
		return v, nil
	default:
		return Value{}, &ArithError{Msg: "unknown aggregate operator"}
	}
}

// tagExprFilter compiles a parsed TagExpr tree into an event predicate
// (spec §4.5's TagAtom grammar); a nil expr (FROM with no tag
// condition at all) accepts nothing, since the grammar always requires
// at least one atom.
func tagExprFilter(e *aql.TagExpr, self model.NodeId) func(model.Event) bool {
	if e == nil {
		return func(model.Event) bool { return false }
	}
	switch e.Kind {
	case aql.TagExprAnd:
		l, r := tagExprFilter(e.Left, self), tagExprFilter(e.Right, self)
		return func(ev model.Event) bool { return l(ev) && r(ev) }
	case aql.TagExprOr:
		l, r := tagExprFilter(e.Left, self), tagExprFilter(e.Right, self)
		return func(ev model.Event) bool { return l(ev) || r(ev) }
	default:
		return tagAtomFilter(e.Atom, self)
	}
}

func tagAtomFilter(a *aql.TagAtom, self model.NodeId) func(model.Event) bool {
	switch a.Kind {
	case aql.TagAtomTag:
		return func(ev model.Event) bool { return ev.Meta.Tags.Has(a.Tag) }
	case aql.TagAtomAppId:
		return func(ev model.Event) bool {
			id, ok := model.AppIdFromTags(ev.Meta.Tags)
			return ok && id == a.AppId
		}
	case aql.TagAtomAllEvents:
		return func(model.Event) bool { return true }
	case aql.TagAtomIsLocal:
		return func(ev model.Event) bool { return ev.Key.Stream.Node == self }
	case aql.TagAtomFromLamport:
		return func(ev model.Event) bool {
			if a.Incl {
				return ev.Key.Lamport >= a.Key.Lamport
			}
			return ev.Key.Lamport > a.Key.Lamport
		}
	case aql.TagAtomToLamport:
		return func(ev model.Event) bool {
			if a.Incl {
				return ev.Key.Lamport <= a.Key.Lamport
			}
			return ev.Key.Lamport < a.Key.Lamport
		}
	case aql.TagAtomFromTime:
		return func(ev model.Event) bool {
			if a.Incl {
				return ev.Meta.Timestamp >= a.Time
			}
			return ev.Meta.Timestamp > a.Time
		}
	case aql.TagAtomToTime:
		return func(ev model.Event) bool {
			if a.Incl {
				return ev.Meta.Timestamp <= a.Time
			}
			return ev.Meta.Timestamp < a.Time
		}
	case aql.TagAtomKeyCmp:
		return func(ev model.Event) bool { return cmpOp(a.Cmp, ev.Key.Compare(a.Key)) }
	case aql.TagAtomTimeCmp:
		return func(ev model.Event) bool {
			return cmpOp(a.Cmp, timestampCompare(ev.Meta.Timestamp, a.Time))
		}
	default:
		return func(model.Event) bool { return false }
	}
}

func timestampCompare(a, b model.Timestamp) int {
	switch {
	case a == b:
		return 0
	case a < b:
		return -1
	default:
		return 1
	}
}

func cmpOp(op aql.CmpOp, c int) bool {
	switch op {
	case aql.CmpLt:
		return c < 0
	case aql.CmpLe:
		return c <= 0
	case aql.CmpGt:
		return c > 0
	case aql.CmpGe:
		return c >= 0
	default:
		return false
	}
}

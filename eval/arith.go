package eval

import (
	"math"

	"github.com/banyanmesh/core/aql"
)

func kindName(v Value) string {
	switch v.Kind {
	case KNull:
		return "null"
	case KBool:
		return "bool"
	case KNat:
		return "natural"
	case KDec:
		return "decimal"
	case KString:
		return "string"
	case KArray:
		return "array"
	case KObject:
		return "object"
	case KKey:
		return "key"
	default:
		return "value"
	}
}

func binOpErr(op aql.BinOp, l, r Value) error {
	return &TypeErrorBinOp{Op: aql.BinOp(op).String(), Left: kindName(l), Right: kindName(r)}
}

// arith evaluates the six arithmetic operators (spec §4.6): two
// Naturals use checked u64 math, anything else coerces through
// float64.
func arith(op aql.BinOp, l, r Value) (Value, error) {
	if !l.IsNumber() || !r.IsNumber() {
		return Value{}, binOpErr(op, l, r)
	}
	meta := unionMeta(l.Meta, r.Meta)

	if op == aql.OpPow {
		return powValue(l, r, meta)
	}
	if op == aql.OpDiv {
		return divValue(l, r, meta)
	}
	if l.Kind == KNat && r.Kind == KNat {
		if v, ok, err := natArith(op, l.Nat, r.Nat); ok {
			if err != nil {
				return Value{}, err
			}
			return Nat(v, meta), nil
		}
	}
	lf, rf := l.AsFloat(), r.AsFloat()
	f, err := decArith(op, lf, rf)
	if err != nil {
		return Value{}, err
	}
	return Dec(f, meta), nil
}

// natArith performs checked u64 arithmetic for +, -, *, % (ok is
// false for operators natArith doesn't handle, letting the caller
// fall back to float math).
func natArith(op aql.BinOp, a, b uint64) (uint64, bool, error) {
	switch op {
	case aql.OpAdd:
		s := a + b
		if s < a {
			return 0, true, errOverflow()
		}
		return s, true, nil
	case aql.OpSub:
		if b > a {
			return 0, true, errOverflow()
		}
		return a - b, true, nil
	case aql.OpMul:
		if a == 0 || b == 0 {
			return 0, true, nil
		}
		p := a * b
		if p/a != b {
			return 0, true, errOverflow()
		}
		return p, true, nil
	case aql.OpMod:
		if b == 0 {
			return 0, true, errFloatOverflow()
		}
		return a % b, true, nil
	default:
		return 0, false, nil
	}
}

func decArith(op aql.BinOp, a, b float64) (float64, error) {
	switch op {
	case aql.OpAdd:
		return a + b, nil
	case aql.OpSub:
		return a - b, nil
	case aql.OpMul:
		return a * b, nil
	case aql.OpMod:
		if b == 0 {
			return 0, errFloatOverflow()
		}
		m := math.Mod(a, b)
		if math.IsNaN(m) {
			return 0, errNotANumber()
		}
		return m, nil
	default:
		return 0, &ArithError{Msg: "unsupported arithmetic operator"}
	}
}

// divValue implements spec §4.6's division contract exactly: division
// by zero is a "floating-point overflow" error, except the 0/0 case
// which is "not a number".
func divValue(l, r Value, meta Meta) (Value, error) {
	a, b := l.AsFloat(), r.AsFloat()
	if b == 0 {
		if a == 0 {
			return Value{}, errNotANumber()
		}
		return Value{}, errFloatOverflow()
	}
	result := a / b
	if math.IsNaN(result) {
		return Value{}, errNotANumber()
	}
	if math.IsInf(result, 0) {
		return Value{}, errFloatOverflow()
	}
	return Dec(result, meta), nil
}

// powValue implements `^` via powf after casting both sides to
// float64 (spec §4.6), regardless of whether either side was Natural.
func powValue(l, r Value, meta Meta) (Value, error) {
	result := math.Pow(l.AsFloat(), r.AsFloat())
	if math.IsNaN(result) {
		return Value{}, errNotANumber()
	}
	if math.IsInf(result, 0) {
		return Value{}, errFloatOverflow()
	}
	return Dec(result, meta), nil
}

// compare implements spec §4.6's comparison contract: a total order
// on same-kind primitives (Natural/Decimal treated as one numeric
// kind), cross-kind `=`/`≠` is always false/true, and any other
// cross-kind ordering comparison is a TypeErrorBinOp.
func compare(op aql.BinOp, l, r Value) (Value, error) {
	meta := unionMeta(l.Meta, r.Meta)

	if l.IsNumber() && r.IsNumber() {
		return Bool_(compareNumbers(op, l, r), meta), nil
	}
	if l.Kind != r.Kind {
		switch op {
		case aql.OpEq:
			return Bool_(false, meta), nil
		case aql.OpNeq:
			return Bool_(true, meta), nil
		default:
			return Value{}, binOpErr(op, l, r)
		}
	}
	switch l.Kind {
	case KArray, KObject:
		if op != aql.OpEq && op != aql.OpNeq {
			return Value{}, binOpErr(op, l, r)
		}
		eq := DeepEqual(l, r)
		if op == aql.OpNeq {
			eq = !eq
		}
		return Bool_(eq, meta), nil
	case KNull:
		return Bool_(cmpBool(op, true, false), meta), nil
	case KBool:
		return Bool_(cmpOrdered(op, boolRank(l.Bool), boolRank(r.Bool)), meta), nil
	case KString:
		return Bool_(cmpOrderedStr(op, l.Str, r.Str), meta), nil
	case KKey:
		if op != aql.OpEq && op != aql.OpNeq {
			return Value{}, binOpErr(op, l, r)
		}
		return Bool_(cmpBool(op, l.Key.Equal(r.Key), true), meta), nil
	default:
		return Value{}, binOpErr(op, l, r)
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareNumbers(op aql.BinOp, l, r Value) bool {
	if l.Kind == KNat && r.Kind == KNat {
		return cmpOrderedU64(op, l.Nat, r.Nat)
	}
	return cmpOrdered(op, l.AsFloat(), r.AsFloat())
}

func cmpBool(op aql.BinOp, eq, always bool) bool {
	switch op {
	case aql.OpEq:
		return eq
	case aql.OpNeq:
		return !eq
	default:
		return always && eq // Null has no order beyond equality
	}
}

func cmpOrderedU64(op aql.BinOp, a, b uint64) bool {
	switch op {
	case aql.OpEq:
		return a == b
	case aql.OpNeq:
		return a != b
	case aql.OpLt:
		return a < b
	case aql.OpLe:
		return a <= b
	case aql.OpGt:
		return a > b
	case aql.OpGe:
		return a >= b
	}
	return false
}

func cmpOrdered[T int | float64](op aql.BinOp, a, b T) bool {
	switch op {
	case aql.OpEq:
		return a == b
	case aql.OpNeq:
		return a != b
	case aql.OpLt:
		return a < b
	case aql.OpLe:
		return a <= b
	case aql.OpGt:
		return a > b
	case aql.OpGe:
		return a >= b
	}
	return false
}

func cmpOrderedStr(op aql.BinOp, a, b string) bool {
	switch op {
	case aql.OpEq:
		return a == b
	case aql.OpNeq:
		return a != b
	case aql.OpLt:
		return a < b
	case aql.OpLe:
		return a <= b
	case aql.OpGt:
		return a > b
	case aql.OpGe:
		return a >= b
	}
	return false
}

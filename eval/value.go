// Package eval implements the query language's evaluator and type
// validator (spec.md §4.6): every intermediate value is a decoded,
// Kind-tagged Value carrying its Meta, scopes chain LET bindings, and a Type tree
// validates stored payloads for FEATURES(typeCheck) deployments.
package eval

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/banyanmesh/core/model"
)

// Kind discriminates Value the same way aql.ExprKind discriminates
// Expr: one tagged struct, no per-kind type.
type Kind int

const (
	KNull Kind = iota
	KBool
	KNat
	KDec
	KString
	KArray
	KObject
	KKey  // a current event's EventKey (KEY literal)
	KTags // a current event's tag set (TAGS literal), as a sorted KArray of KString
)

// Field is one name/value pair of an object value; order is
// significant for display and for encoding a SELECT-built object.
type Field struct {
	Name  string
	Value Value
}

// Value is every evaluated shape in one tagged struct (Nat/Dec hold
// numbers, Str holds strings, Arr/Obj hold compounds, Key holds an
// EventKey for the KEY literal); which fields are populated is
// determined entirely by Kind.
type Value struct {
	Kind Kind

	Bool bool
	Nat  uint64
	Dec  float64
	Str  string
	Arr  []Value
	Obj  []Field
	Key  model.EventKey

	Meta Meta
}

func Null(m Meta) Value             { return Value{Kind: KNull, Meta: m} }
func Bool_(b bool, m Meta) Value    { return Value{Kind: KBool, Bool: b, Meta: m} }
func Nat(n uint64, m Meta) Value    { return Value{Kind: KNat, Nat: n, Meta: m} }
func Dec(f float64, m Meta) Value   { return Value{Kind: KDec, Dec: f, Meta: m} }
func Str(s string, m Meta) Value    { return Value{Kind: KString, Str: s, Meta: m} }
func Array(v []Value, m Meta) Value { return Value{Kind: KArray, Arr: v, Meta: m} }
func Object(f []Field, m Meta) Value { return Value{Kind: KObject, Obj: f, Meta: m} }
func KeyVal(k model.EventKey, m Meta) Value { return Value{Kind: KKey, Key: k, Meta: m} }

// IsNumber reports whether v is KNat or KDec.
func (v Value) IsNumber() bool { return v.Kind == KNat || v.Kind == KDec }

// AsFloat widens a KNat/KDec value to float64; callers must check
// IsNumber first.
func (v Value) AsFloat() float64 {
	if v.Kind == KNat {
		return float64(v.Nat)
	}
	return v.Dec
}

// Truthy reports the value's boolean meaning for CASE predicates:
// only an actual KBool(true) counts (spec §4.6: "non-bool or error
// predicates treated as false").
func (v Value) Truthy() bool { return v.Kind == KBool && v.Bool }

// field looks up a KObject field by name.
func (v Value) field(name string) (Value, bool) {
	for _, f := range v.Obj {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ToGo converts a Value to the plain Go shape model.MarshalPayload
// expects: nil/bool/uint64/float64/string/[]any/map[string]any. KKey
// values serialize as their string form, since a query result's CBOR
// encoding has no EventKey type of its own.
func (v Value) ToGo() any {
	switch v.Kind {
	case KNull:
		return nil
	case KBool:
		return v.Bool
	case KNat:
		return v.Nat
	case KDec:
		return v.Dec
	case KString:
		return v.Str
	case KArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.ToGo()
		}
		return out
	case KObject:
		out := make(map[string]any, len(v.Obj))
		for _, f := range v.Obj {
			out[f.Name] = f.Value.ToGo()
		}
		return out
	case KKey:
		return fmt.Sprintf("%d/%s/%d", v.Key.Lamport, v.Key.Stream.String(), v.Key.Offset)
	default:
		return nil
	}
}

// Encode canonically CBOR-encodes v, for SELECT results and sub-query
// arrays.
func (v Value) Encode() (model.Payload, error) {
	return model.MarshalPayload(v.ToGo())
}

// Decode reconstructs a Value from a previously stored canonical-CBOR
// payload, tagging it with meta (normally an event's own Meta).
func Decode(p model.Payload, meta Meta) (Value, error) {
	var raw any
	if err := cbor.Unmarshal(p.Bytes(), &raw); err != nil {
		return Value{}, err
	}
	return fromGo(raw, meta), nil
}

func fromGo(raw any, meta Meta) Value {
	switch x := raw.(type) {
	case nil:
		return Null(meta)
	case bool:
		return Bool_(x, meta)
	case uint64:
		return Nat(x, meta)
	case int64:
		if x >= 0 {
			return Nat(uint64(x), meta)
		}
		// Naturals are unsigned per spec §4.6; a negative CBOR integer
		// has no Natural representation, so it widens to Decimal.
		return Dec(float64(x), meta)
	case float32:
		return Dec(float64(x), meta)
	case float64:
		return Dec(x, meta)
	case string:
		return Str(x, meta)
	case []byte:
		return Str(string(x), meta)
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = fromGo(e, meta)
		}
		return Array(out, meta)
	case map[string]any:
		return Object(objectFieldsSorted(x, meta), meta)
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = v
		}
		return Object(objectFieldsSorted(m, meta), meta)
	default:
		return Str(fmt.Sprint(x), meta)
	}
}

func objectFieldsSorted(m map[string]any, meta Meta) []Field {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Field{Name: n, Value: fromGo(m[n], meta)}
	}
	return out
}

// DeepEqual implements structural equality, used by `=`/`≠` on
// compound (KArray/KObject) values — spec's "total order on same-kind
// primitives" covers scalars; compounds fall back to deep equality.
func DeepEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KNull:
		return true
	case KBool:
		return a.Bool == b.Bool
	case KNat:
		return a.Nat == b.Nat
	case KDec:
		return a.Dec == b.Dec
	case KString:
		return a.Str == b.Str
	case KKey:
		return a.Key.Equal(b.Key)
	case KArray:
		if len(a.Arr) != len(b.Arr) {
			return false
		}
		for i := range a.Arr {
			if !DeepEqual(a.Arr[i], b.Arr[i]) {
				return false
			}
		}
		return true
	case KObject:
		if len(a.Obj) != len(b.Obj) {
			return false
		}
		for _, fa := range a.Obj {
			fb, ok := b.field(fa.Name)
			if !ok || !DeepEqual(fa.Value, fb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

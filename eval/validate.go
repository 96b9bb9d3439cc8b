package eval

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/banyanmesh/core/model"
)

// TypeKind discriminates the Type tree (spec §4.6, FEATURES(typeCheck)).
type TypeKind int

const (
	TAtom TypeKind = iota
	TArray
	TTuple
	TDict
	TRecord
	TUnion
	TIntersection
)

// AtomKind discriminates TAtom's six primitive shapes.
type AtomKind int

const (
	AtomNull AtomKind = iota
	AtomBool
	AtomNumber
	AtomTimestamp
	AtomString
	AtomUniversal
)

// RecordField is one `(Label, Type)` entry of a Record type; a record
// value must contain every field named here (spec leaves extra fields
// unaddressed, so they're permitted).
type RecordField struct {
	Label string
	Type  Type
}

// Type is the validator's type tree, one tagged struct like Expr and
// Value above. Refinement is an optional extra predicate over an
// already kind-matched value (e.g. a numeric range, an enumerated
// string set); nil means "no further restriction."
type Type struct {
	Kind TypeKind

	Atom       AtomKind
	Refinement func(Value) bool

	Elem  *Type // Array
	Items []Type // Tuple
	Value *Type // Dict's value type

	Fields []RecordField // Record

	Left  *Type // Union / Intersection
	Right *Type
}

func Atom(kind AtomKind) Type                  { return Type{Kind: TAtom, Atom: kind} }
func RefinedAtom(kind AtomKind, r func(Value) bool) Type {
	return Type{Kind: TAtom, Atom: kind, Refinement: r}
}
func ArrayOf(elem Type) Type    { return Type{Kind: TArray, Elem: &elem} }
func TupleOf(items ...Type) Type { return Type{Kind: TTuple, Items: items} }
func DictOf(value Type) Type    { return Type{Kind: TDict, Value: &value} }
func RecordOf(fields ...RecordField) Type { return Type{Kind: TRecord, Fields: fields} }
func UnionOf(a, b Type) Type    { return Type{Kind: TUnion, Left: &a, Right: &b} }
func IntersectionOf(a, b Type) Type { return Type{Kind: TIntersection, Left: &a, Right: &b} }

// TypeError is the validator's typed failure: Path names the
// violating position, root first, dotted (spec §4.6: "evaluated
// right-to-left in storage, displayed left-to-right" — each nested
// call prepends its own label onto the error bubbling up from below,
// so by the time it reaches the caller the path already reads
// root-to-leaf).
type TypeError struct {
	Path []string
	Msg  string
}

func (e *TypeError) Error() string {
	if len(e.Path) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", strings.Join(e.Path, "."), e.Msg)
}

func (e *TypeError) prepend(label string) *TypeError {
	path := append([]string{label}, e.Path...)
	return &TypeError{Path: path, Msg: e.Msg}
}

func typeErr(msg string) error { return &TypeError{Msg: msg} }

// Validate checks v against t, returning the first violation found.
func Validate(v Value, t Type) error {
	switch t.Kind {
	case TAtom:
		return validateAtom(v, t)
	case TArray:
		if v.Kind != KArray {
			return typeErr(fmt.Sprintf("expected array, got %s", kindName(v)))
		}
		for i, item := range v.Arr {
			if err := Validate(item, *t.Elem); err != nil {
				if te, ok := err.(*TypeError); ok {
					return te.prepend(fmt.Sprintf("[%d]", i))
				}
				return err
			}
		}
		return nil
	case TTuple:
		if v.Kind != KArray {
			return typeErr(fmt.Sprintf("expected tuple, got %s", kindName(v)))
		}
		if len(v.Arr) != len(t.Items) {
			return typeErr(fmt.Sprintf("expected tuple of length %d, got %d", len(t.Items), len(v.Arr)))
		}
		for i, item := range v.Arr {
			if err := Validate(item, t.Items[i]); err != nil {
				if te, ok := err.(*TypeError); ok {
					return te.prepend(fmt.Sprintf("[%d]", i))
				}
				return err
			}
		}
		return nil
	case TDict:
		if v.Kind != KObject {
			return typeErr(fmt.Sprintf("expected dict, got %s", kindName(v)))
		}
		for _, f := range v.Obj {
			if err := Validate(f.Value, *t.Value); err != nil {
				if te, ok := err.(*TypeError); ok {
					return te.prepend(f.Name)
				}
				return err
			}
		}
		return nil
	case TRecord:
		if v.Kind != KObject {
			return typeErr(fmt.Sprintf("expected record, got %s", kindName(v)))
		}
		for _, rf := range t.Fields {
			fv, ok := v.field(rf.Label)
			if !ok {
				return &TypeError{Path: []string{rf.Label}, Msg: "missing field"}
			}
			if err := Validate(fv, rf.Type); err != nil {
				if te, ok := err.(*TypeError); ok {
					return te.prepend(rf.Label)
				}
				return err
			}
		}
		return nil
	case TUnion:
		if err := Validate(v, *t.Left); err == nil {
			return nil
		}
		if err := Validate(v, *t.Right); err == nil {
			return nil
		}
		return typeErr("value matches neither side of union")
	case TIntersection:
		if err := Validate(v, *t.Left); err != nil {
			return err
		}
		return Validate(v, *t.Right)
	default:
		return typeErr("unknown type node")
	}
}

func validateAtom(v Value, t Type) error {
	if t.Atom == AtomUniversal {
		return nil
	}
	ok := false
	switch t.Atom {
	case AtomNull:
		ok = v.Kind == KNull
	case AtomBool:
		ok = v.Kind == KBool
	case AtomNumber:
		ok = v.IsNumber()
	case AtomTimestamp:
		ok = v.Kind == KNat
	case AtomString:
		ok = v.Kind == KString
	}
	if !ok {
		return typeErr(fmt.Sprintf("expected %s, got %s", atomName(t.Atom), kindName(v)))
	}
	if t.Refinement != nil && !t.Refinement(v) {
		return typeErr(fmt.Sprintf("%s failed refinement", atomName(t.Atom)))
	}
	return nil
}

func atomName(k AtomKind) string {
	switch k {
	case AtomNull:
		return "null"
	case AtomBool:
		return "bool"
	case AtomNumber:
		return "number"
	case AtomTimestamp:
		return "timestamp"
	case AtomString:
		return "string"
	default:
		return "universal"
	}
}

// IsCanonicalRecord reports whether p's CBOR map encoding round-trips
// byte-identically through the canonical encoder (spec §4.6/§4.7:
// "implementation must verify canonicalisation", and line 331 prefers
// rejecting non-canonical input with a typed error over panicking).
// ValidateRecord below does exactly that instead of ever panicking.
func IsCanonicalRecord(p model.Payload) bool {
	var raw any
	if err := p.Unmarshal(&raw); err != nil {
		return false
	}
	reencoded, err := model.MarshalPayload(raw)
	if err != nil {
		return false
	}
	return bytes.Equal(reencoded.Bytes(), p.Bytes())
}

// ValidateRecord is the entry point FEATURES(typeCheck) uses against a
// stored event payload: it rejects non-canonical CBOR with a typed
// error before ever calling Validate, rather than panicking on a
// hash-map lookup over non-canonical keys.
func ValidateRecord(p model.Payload, t Type) error {
	if !IsCanonicalRecord(p) {
		return typeErr("payload is not canonical CBOR")
	}
	v, err := Decode(p, Synthetic())
	if err != nil {
		return err
	}
	return Validate(v, t)
}

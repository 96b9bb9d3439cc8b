package eval

import "testing"

func TestValidateRecordMissingFieldReportsPath(t *testing.T) {
	v := Object([]Field{{Name: "name", Value: Str("x", Synthetic())}}, Synthetic())
	typ := RecordOf(
		RecordField{Label: "name", Type: Atom(AtomString)},
		RecordField{Label: "age", Type: Atom(AtomNumber)},
	)
	err := Validate(v, typ)
	if err == nil {
		t.Fatal("want missing-field error")
	}
	te, ok := err.(*TypeError)
	if !ok {
		t.Fatalf("want *TypeError, got %T", err)
	}
	if te.Error() != "age: missing field" {
		t.Fatalf("want \"age: missing field\", got %q", te.Error())
	}
}

func TestValidateNestedArrayPrependsIndexPath(t *testing.T) {
	v := Array([]Value{Nat(1, Synthetic()), Str("oops", Synthetic())}, Synthetic())
	typ := ArrayOf(Atom(AtomNumber))
	err := Validate(v, typ)
	te, ok := err.(*TypeError)
	if !ok {
		t.Fatalf("want *TypeError, got %v", err)
	}
	if te.Error() != "[1]: expected number, got string" {
		t.Fatalf("got %q", te.Error())
	}
}

func TestValidateUnionAcceptsEitherSide(t *testing.T) {
	typ := UnionOf(Atom(AtomNull), Atom(AtomString))
	if err := Validate(Null(Synthetic()), typ); err != nil {
		t.Fatal(err)
	}
	if err := Validate(Str("x", Synthetic()), typ); err != nil {
		t.Fatal(err)
	}
	if err := Validate(Nat(1, Synthetic()), typ); err == nil {
		t.Fatal("want union to reject number")
	}
}

func TestValidateRefinementOnNumber(t *testing.T) {
	positive := RefinedAtom(AtomNumber, func(v Value) bool { return v.AsFloat() > 0 })
	if err := Validate(Nat(5, Synthetic()), positive); err != nil {
		t.Fatal(err)
	}
	if err := Validate(Nat(0, Synthetic()), positive); err == nil {
		t.Fatal("want refinement failure for 0")
	}
}

func TestIsCanonicalRecordDetectsRoundTrip(t *testing.T) {
	p, err := Object([]Field{{Name: "a", Value: Nat(1, Synthetic())}}, Synthetic()).Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !IsCanonicalRecord(p) {
		t.Fatal("want canonically-encoded payload to report canonical")
	}
}

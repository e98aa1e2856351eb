package resource

import (
	"testing"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/typeid"
)

type fakeResource struct {
	id     typeid.TypeID
	names  []string
	values []Value
}

func (f fakeResource) TypeID() typeid.TypeID   { return f.id }
func (f fakeResource) FieldNames() []string    { return f.names }
func (f fakeResource) FieldValues() []Value    { return f.values }

func TestEqualScalarKinds(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int-eq", NewInt(3), NewInt(3), true},
		{"int-neq", NewInt(3), NewInt(4), false},
		{"string-eq", NewString("x"), NewString("x"), true},
		{"bool-neq", NewBool(true), NewBool(false), false},
		{"bytes-eq", NewBytes([]byte("ab")), NewBytes([]byte("ab")), true},
		{"null-eq", Null(), Null(), true},
		{"kind-mismatch", NewInt(1), NewString("1"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Equal(c.a, c.b); got != c.want {
				t.Errorf("Equal(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestEqualListAndMap(t *testing.T) {
	l1 := NewList([]Value{NewInt(1), NewString("a")})
	l2 := NewList([]Value{NewInt(1), NewString("a")})
	l3 := NewList([]Value{NewString("a"), NewInt(1)})
	if !Equal(l1, l2) {
		t.Fatalf("equal lists must compare equal")
	}
	if Equal(l1, l3) {
		t.Fatalf("order matters for lists")
	}

	m1 := NewMap(map[string]Value{"a": NewInt(1), "b": NewInt(2)})
	m2 := NewMap(map[string]Value{"b": NewInt(2), "a": NewInt(1)})
	if !Equal(m1, m2) {
		t.Fatalf("map equality must not depend on construction order")
	}
}

func TestEqualResourceValue(t *testing.T) {
	tid := typeid.For("resource.fake")
	r1 := NewResource(fakeResource{id: tid, names: []string{"n"}, values: []Value{NewInt(1)}})
	r2 := NewResource(fakeResource{id: tid, names: []string{"n"}, values: []Value{NewInt(1)}})
	r3 := NewResource(fakeResource{id: tid, names: []string{"n"}, values: []Value{NewInt(2)}})
	if !Equal(r1, r2) {
		t.Fatalf("resources with equal fields must compare equal")
	}
	if Equal(r1, r3) {
		t.Fatalf("resources with differing fields must not compare equal")
	}
}

func TestBytesAndListCopySemantics(t *testing.T) {
	src := []byte{1, 2, 3}
	v := NewBytes(src)
	src[0] = 99
	got, _ := v.AsBytes()
	if got[0] != 1 {
		t.Fatalf("NewBytes must copy its input, mutation leaked: got %v", got)
	}
	got[0] = 42
	got2, _ := v.AsBytes()
	if got2[0] != 1 {
		t.Fatalf("AsBytes must return a copy, mutation leaked back into the Value")
	}
}

func TestValidateShapeDetectsMismatch(t *testing.T) {
	ok := fakeResource{id: typeid.For("x"), names: []string{"a", "b"}, values: []Value{NewInt(1), NewInt(2)}}
	if err := ValidateShape(ok); err != nil {
		t.Fatalf("well-formed resource should validate: %v", err)
	}

	mismatched := fakeResource{id: typeid.For("x"), names: []string{"a", "b"}, values: []Value{NewInt(1)}}
	if err := ValidateShape(mismatched); err == nil {
		t.Fatalf("field name/value count mismatch must be rejected")
	}

	dup := fakeResource{id: typeid.For("x"), names: []string{"a", "a"}, values: []Value{NewInt(1), NewInt(2)}}
	if err := ValidateShape(dup); err == nil {
		t.Fatalf("duplicate field names must be rejected")
	}
}

func TestFieldsZipsNamesAndValues(t *testing.T) {
	r := fakeResource{id: typeid.For("x"), names: []string{"a", "b"}, values: []Value{NewInt(1), NewString("two")}}
	m := Fields(r)
	if len(m) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(m))
	}
	if i, _ := m["a"].AsInt(); i != 1 {
		t.Errorf("field a = %d, want 1", i)
	}
	if s, _ := m["b"].AsString(); s != "two" {
		t.Errorf("field b = %q, want two", s)
	}
}

func TestRefValueEquality(t *testing.T) {
	ref := digest.New(typeid.For("x"), digest.Compute([]byte("body")))
	a := NewRef(ref)
	b := NewRef(ref)
	if !Equal(a, b) {
		t.Fatalf("equal refs must compare equal as values")
	}
}

package digest

import (
	"testing"

	"github.com/reachcore/journal/typeid"
)

func TestComputeDeterministicAndLength(t *testing.T) {
	d1 := Compute([]byte(`{"a":1}`))
	d2 := Compute([]byte(`{"a":1}`))
	if d1 != d2 {
		t.Fatalf("Compute must be deterministic: %s vs %s", d1, d2)
	}
	if len(d1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d1))
	}
}

func TestComputeDiffersOnContent(t *testing.T) {
	a := Compute([]byte("one"))
	b := Compute([]byte("two"))
	if a == b {
		t.Fatalf("distinct bytes must not collide: %s", a)
	}
}

func TestRefEqualAndCompare(t *testing.T) {
	tid := typeid.For("x.Y")
	r1 := New(tid, Compute([]byte("a")))
	r2 := New(tid, Compute([]byte("a")))
	r3 := New(tid, Compute([]byte("b")))

	if !r1.Equal(r2) {
		t.Fatalf("refs to the same (type, digest) must be equal")
	}
	if r1.Equal(r3) {
		t.Fatalf("refs to different digests must not be equal")
	}
	if r1.Compare(r3) == 0 {
		t.Fatalf("distinct refs must not compare equal")
	}
	if (r1.Compare(r3) < 0) == (r3.Compare(r1) < 0) {
		t.Fatalf("compare must be antisymmetric: %d vs %d", r1.Compare(r3), r3.Compare(r1))
	}
}

func TestRefIsZero(t *testing.T) {
	var z Ref
	if !z.IsZero() {
		t.Fatalf("zero Ref must report IsZero")
	}
	r := New(typeid.For("x"), Compute([]byte("a")))
	if r.IsZero() {
		t.Fatalf("a populated Ref must not report IsZero")
	}
}

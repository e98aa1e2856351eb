package codec

import (
	"testing"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

type point struct {
	x, y int64
}

func (p point) TypeID() typeid.TypeID { return typeid.For("codec.point") }
func (p point) FieldNames() []string  { return []string{"x", "y"} }
func (p point) FieldValues() []resource.Value {
	return []resource.Value{resource.NewInt(p.x), resource.NewInt(p.y)}
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if _, err := reg.Register("codec.point", func(fields map[string]resource.Value) (resource.Resource, error) {
		x, _ := fields["x"].AsInt()
		y, _ := fields["y"].AsInt()
		return point{x: x, y: y}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestPackCanonicalBytesDeterministic(t *testing.T) {
	p1 := point{x: 1, y: 2}
	p2 := point{x: 1, y: 2}

	packed1, err := Pack(p1)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	packed2, err := Pack(p2)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	b1, err := CanonicalBytes(packed1)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	b2, err := CanonicalBytes(packed2)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("equivalent resources must canonicalize to identical bytes:\n%s\nvs\n%s", b1, b2)
	}

	d1, err := Digest(packed1)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(d1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d1))
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	reg := newRegistry(t)
	p := point{x: 3, y: -4}

	packed, err := Pack(p)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	bytes, err := CanonicalBytes(packed)
	if err != nil {
		t.Fatalf("CanonicalBytes: %v", err)
	}
	got, err := UnpackBytes(bytes, reg)
	if err != nil {
		t.Fatalf("UnpackBytes: %v", err)
	}
	gp, ok := got.(point)
	if !ok {
		t.Fatalf("UnpackBytes returned %T, want point", got)
	}
	if gp.x != 3 || gp.y != -4 {
		t.Fatalf("round trip changed fields: got %+v", gp)
	}
}

func TestPackUnpackEveryValueKind(t *testing.T) {
	reg := newRegistry(t)
	ref := digest.New(typeid.For("codec.point"), digest.Compute([]byte("x")))

	values := []resource.Value{
		resource.Null(),
		resource.NewInt(-42),
		resource.NewFloat(3.5),
		resource.NewBool(true),
		resource.NewString("hello"),
		resource.NewBytes([]byte{1, 2, 3}),
		resource.NewRef(ref),
		resource.NewTypeHandle(typeid.For("codec.point")),
		resource.NewList([]resource.Value{resource.NewInt(1), resource.NewString("a")}),
		resource.NewMap(map[string]resource.Value{"k": resource.NewInt(9)}),
		resource.NewResource(point{x: 1, y: 2}),
	}

	for i, v := range values {
		packed, err := PackValue(v)
		if err != nil {
			t.Fatalf("value %d: PackValue: %v", i, err)
		}
		got, err := UnpackValue(packed, reg)
		if err != nil {
			t.Fatalf("value %d: UnpackValue: %v", i, err)
		}
		if !resource.Equal(v, got) {
			t.Errorf("value %d: round trip changed value: %v -> %v", i, v, got)
		}
	}
}

func TestUnpackUnknownTypeFails(t *testing.T) {
	reg := registry.New()
	p := point{x: 1, y: 1}
	packed, err := Pack(p)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if _, err := Unpack(packed, reg); err == nil {
		t.Fatalf("unpacking with an unregistered type must fail")
	}
}

func TestUnpackMalformedValueFails(t *testing.T) {
	reg := newRegistry(t)
	if _, err := UnpackValue(map[string]any{"a": 1, "b": 2}, reg); err == nil {
		t.Fatalf("a multi-key tagged value must be rejected")
	}
	if _, err := UnpackValue(map[string]any{"bogus": "x"}, reg); err == nil {
		t.Fatalf("an unknown tag must be rejected")
	}
}

func TestFloatEncodingDistinguishesFromInt(t *testing.T) {
	iv, err := PackValue(resource.NewInt(1))
	if err != nil {
		t.Fatalf("PackValue int: %v", err)
	}
	fv, err := PackValue(resource.NewFloat(1))
	if err != nil {
		t.Fatalf("PackValue float: %v", err)
	}
	im := iv.(map[string]any)
	fm := fv.(map[string]any)
	if _, ok := im["i"]; !ok {
		t.Fatalf("int value must tag as i")
	}
	if _, ok := fm["f"]; !ok {
		t.Fatalf("float value must tag as f")
	}
}

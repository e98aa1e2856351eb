package invokable

import (
	"context"
	"testing"

	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

type untyped struct{}

func (untyped) TypeID() typeid.TypeID                 { return typeid.For("invokable.untyped") }
func (untyped) FieldNames() []string                  { return nil }
func (untyped) FieldValues() []resource.Value         { return nil }
func (untyped) Call(context.Context, resource.Value) (resource.Value, error) {
	return resource.Null(), nil
}

type typed struct{ untyped }

func (typed) InputType() (typeid.TypeID, bool)  { return typeid.For("invokable.in"), true }
func (typed) OutputType() (typeid.TypeID, bool) { return typeid.TypeID{}, false }

func TestDeclaredTypesAbsentByDefault(t *testing.T) {
	in, out, hasIn, hasOut := DeclaredTypes(untyped{})
	if hasIn || hasOut {
		t.Fatalf("an Invokable that doesn't implement TypedInvokable must report no declared types, got in=%v out=%v", in, out)
	}
}

func TestDeclaredTypesReadThroughTypedInvokable(t *testing.T) {
	in, out, hasIn, hasOut := DeclaredTypes(typed{})
	if !hasIn {
		t.Fatalf("expected a declared input type")
	}
	if in.Name != "invokable.in" {
		t.Errorf("input type = %q, want invokable.in", in.Name)
	}
	if hasOut {
		t.Errorf("expected no declared output type, got %v", out)
	}
}

func TestCallSatisfiesInterface(t *testing.T) {
	var inv Invokable = untyped{}
	out, err := inv.Call(context.Background(), resource.NewInt(1))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out.Kind() != resource.KindNull {
		t.Errorf("Call output kind = %v, want null", out.Kind())
	}
}

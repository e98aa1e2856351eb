// Package invokable defines the base contracts for executable resources:
// a resource that additionally exposes a call surface, with optional
// declared input/output types enforced by the invocation engine. Grounded
// on the teacher's pack.Node Type/Action discriminated-execution idiom
// (jobs/dag_executor.go), generalized from a fixed DAG-of-actions to an
// arbitrary nested-call contract.
package invokable

import (
	"context"

	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

// Invokable is a Resource that can be called synchronously.
type Invokable interface {
	resource.Resource
	Call(ctx context.Context, input resource.Value) (resource.Value, error)
}

// AsyncInvokable is the cooperative-async counterpart: Call may suspend at
// await points (ordinary Go blocking/goroutine handoffs), but its contract
// is otherwise identical to Invokable (spec.md section 4.4).
type AsyncInvokable interface {
	resource.Resource
	CallAsync(ctx context.Context, input resource.Value) (resource.Value, error)
}

// TypedInvokable is implemented by invokables that declare an input and/or
// output type, so the engine can enforce InvokableTypeError at call/invoke
// time.
type TypedInvokable interface {
	InputType() (typeid.TypeID, bool)
	OutputType() (typeid.TypeID, bool)
}

// DeclaredTypes extracts the optional declared input/output types from an
// Invokable, if it implements TypedInvokable.
func DeclaredTypes(inv resource.Resource) (in, out typeid.TypeID, hasIn, hasOut bool) {
	t, ok := inv.(TypedInvokable)
	if !ok {
		return typeid.TypeID{}, typeid.TypeID{}, false, false
	}
	in, hasIn = t.InputType()
	out, hasOut = t.OutputType()
	return in, out, hasIn, hasOut
}

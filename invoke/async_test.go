package invoke_test

import (
	"context"
	"testing"

	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/store"
	"github.com/reachcore/journal/typeid"
)

type asyncDouble struct{}

func (asyncDouble) TypeID() typeid.TypeID         { return typeid.For("invoke_test.asyncDouble") }
func (asyncDouble) FieldNames() []string          { return nil }
func (asyncDouble) FieldValues() []resource.Value { return nil }
func (asyncDouble) CallAsync(ctx context.Context, input resource.Value) (resource.Value, error) {
	n, _ := input.AsInt()
	return resource.NewInt(n * 2), nil
}

// asyncGatherer spawns two children and gathers both before returning, so
// it never completes with a pending sub-invocation.
type asyncGatherer struct{}

func (asyncGatherer) TypeID() typeid.TypeID         { return typeid.For("invoke_test.asyncGatherer") }
func (asyncGatherer) FieldNames() []string          { return nil }
func (asyncGatherer) FieldValues() []resource.Value { return nil }
func (asyncGatherer) CallAsync(ctx context.Context, input resource.Value) (resource.Value, error) {
	values, errs := invoke.Gather(ctx,
		func(ctx context.Context) (resource.Value, error) { return invoke.CallAsync(ctx, asyncDouble{}, resource.NewInt(2)) },
		func(ctx context.Context) (resource.Value, error) { return invoke.CallAsync(ctx, asyncDouble{}, resource.NewInt(3)) },
	)
	var sum int64
	for i, e := range errs {
		if e != nil {
			return resource.Value{}, e
		}
		v, _ := values[i].AsInt()
		sum += v
	}
	return resource.NewInt(sum), nil
}

// asyncLeaker spawns a child and never awaits it, so the parent must fail
// with IncompleteSubinvocationError.
type asyncLeaker struct{}

func (asyncLeaker) TypeID() typeid.TypeID         { return typeid.For("invoke_test.asyncLeaker") }
func (asyncLeaker) FieldNames() []string          { return nil }
func (asyncLeaker) FieldValues() []resource.Value { return nil }
func (asyncLeaker) CallAsync(ctx context.Context, input resource.Value) (resource.Value, error) {
	if _, err := invoke.SpawnAsync(ctx, asyncDouble{}, resource.NewInt(1)); err != nil {
		return resource.Value{}, err
	}
	return resource.NewInt(0), nil
}

func newAsyncStore(t *testing.T) *store.Store {
	t.Helper()
	reg := registry.New()
	if err := invoke.RegisterTypes(reg); err != nil {
		t.Fatalf("invoke.RegisterTypes: %v", err)
	}
	return store.New(store.NewMemoryBackend(), reg)
}

func TestInvokeAsyncBasic(t *testing.T) {
	st := newAsyncStore(t)
	ctx := store.WithStore(context.Background(), st)

	result, err := invoke.InvokeAsync(ctx, asyncDouble{}, resource.NewInt(21))
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	out, ok := result.Output()
	if !ok {
		t.Fatalf("expected output")
	}
	n, _ := out.AsInt()
	if n != 42 {
		t.Errorf("output = %d, want 42", n)
	}
}

func TestSpawnAsyncAndGatherCompleteCleanly(t *testing.T) {
	st := newAsyncStore(t)
	ctx := store.WithStore(context.Background(), st)

	result, err := invoke.InvokeAsync(ctx, asyncGatherer{}, resource.Null())
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	out, ok := result.Output()
	if !ok {
		t.Fatalf("expected output, got raised: %v", result.RaisedValue)
	}
	sum, _ := out.AsInt()
	if sum != 10 {
		t.Errorf("sum = %d, want 10", sum)
	}
	if len(result.Children) != 2 {
		t.Fatalf("expected 2 child invocations from Gather, got %d", len(result.Children))
	}
}

func TestSpawnAsyncWithoutAwaitFails(t *testing.T) {
	st := newAsyncStore(t)
	ctx := store.WithStore(context.Background(), st)

	_, err := invoke.InvokeAsync(ctx, asyncLeaker{}, resource.Null())
	if err == nil {
		t.Fatalf("a node completing with an un-awaited spawn must fail")
	}
	if _, ok := err.(*invoke.IncompleteSubinvocationError); !ok {
		t.Fatalf("expected *invoke.IncompleteSubinvocationError, got %T: %v", err, err)
	}
}

func TestPendingCallAwaitIsIdempotent(t *testing.T) {
	st := newAsyncStore(t)
	ctx := store.WithStore(context.Background(), st)

	result, err := invoke.InvokeAsync(ctx, asyncAwaitTwice{}, resource.Null())
	if err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	out, ok := result.Output()
	if !ok {
		t.Fatalf("expected output, got raised: %v", result.RaisedValue)
	}
	n, _ := out.AsInt()
	if n != 10 {
		t.Errorf("output = %d, want 10", n)
	}
}

// asyncAwaitTwice spawns one child and awaits it twice, confirming Await
// is idempotent and doesn't double-count the pending decrement.
type asyncAwaitTwice struct{}

func (asyncAwaitTwice) TypeID() typeid.TypeID         { return typeid.For("invoke_test.asyncAwaitTwice") }
func (asyncAwaitTwice) FieldNames() []string          { return nil }
func (asyncAwaitTwice) FieldValues() []resource.Value { return nil }
func (asyncAwaitTwice) CallAsync(ctx context.Context, input resource.Value) (resource.Value, error) {
	pc, err := invoke.SpawnAsync(ctx, asyncDouble{}, resource.NewInt(5))
	if err != nil {
		return resource.Value{}, err
	}
	v1, err1 := pc.Await()
	if err1 != nil {
		return resource.Value{}, err1
	}
	v2, err2 := pc.Await()
	if err2 != nil {
		return resource.Value{}, err2
	}
	if !resource.Equal(v1, v2) {
		return resource.Value{}, errAwaitMismatch
	}
	return v1, nil
}

var errAwaitMismatch = simpleErr("repeated Await returned different results")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

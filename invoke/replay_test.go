package invoke_test

import (
	"context"
	"testing"

	"github.com/reachcore/journal/examples/dice"
	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/store"
)

func TestReplayReproducesIdenticalTree(t *testing.T) {
	st := newEngineStore(t)
	ctx := store.WithStore(context.Background(), st)

	first, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	replayed, err := invoke.Replay(ctx, &dice.Dice{}, resource.NewInt(3), first, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	out1, _ := first.Output()
	out2, _ := replayed.Output()
	if !resource.Equal(out1, out2) {
		t.Fatalf("replay of a deterministic tree must reproduce identical output: %v vs %v", out1, out2)
	}
	if len(replayed.Children) != len(first.Children) {
		t.Fatalf("replay must reproduce the same number of children: %d vs %d", len(replayed.Children), len(first.Children))
	}
	for i := range first.Children {
		a, _ := first.Children[i].Output()
		b, _ := replayed.Children[i].Output()
		if !resource.Equal(a, b) {
			t.Errorf("child %d diverged on replay: %v vs %v", i, a, b)
		}
	}
}

func TestReplayDivergesOnDifferentInput(t *testing.T) {
	st := newEngineStore(t)
	ctx := store.WithStore(context.Background(), st)

	first, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	_, err = invoke.Replay(ctx, &dice.Dice{}, resource.NewInt(4), first, nil)
	if err == nil {
		t.Fatalf("replaying with a different root input must diverge")
	}
	if _, ok := err.(*invoke.ReplayError); !ok {
		t.Fatalf("expected *invoke.ReplayError, got %T: %v", err, err)
	}
}

func TestReplayRequiresPrior(t *testing.T) {
	st := newEngineStore(t)
	ctx := store.WithStore(context.Background(), st)
	if _, err := invoke.Replay(ctx, &dice.Die{}, resource.NewInt(1), nil, nil); err == nil {
		t.Fatalf("Replay must reject a nil prior")
	}
}

func TestInvokeUnknownInvokableStillJournals(t *testing.T) {
	reg := registry.New()
	if err := invoke.RegisterTypes(reg); err != nil {
		t.Fatalf("invoke.RegisterTypes: %v", err)
	}
	if err := dice.RegisterTypes(reg); err != nil {
		t.Fatalf("dice.RegisterTypes: %v", err)
	}
	st := store.New(store.NewMemoryBackend(), reg)
	ctx := store.WithStore(context.Background(), st)

	result, err := invoke.Invoke(ctx, &dice.Die{}, resource.NewInt(42))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Ref.IsZero() {
		t.Fatalf("a completed invocation must have a non-zero ref")
	}
}

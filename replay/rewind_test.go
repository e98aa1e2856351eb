package replay_test

import (
	"context"
	"testing"

	"github.com/reachcore/journal/examples/dice"
	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/replay"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/store"
)

func newDiceStore(t *testing.T) context.Context {
	t.Helper()
	reg := registry.New()
	if err := invoke.RegisterTypes(reg); err != nil {
		t.Fatalf("invoke.RegisterTypes: %v", err)
	}
	if err := dice.RegisterTypes(reg); err != nil {
		t.Fatalf("dice.RegisterTypes: %v", err)
	}
	st := store.New(store.NewMemoryBackend(), reg)
	return store.WithStore(context.Background(), st)
}

func TestRewindClearsOnlyTheRequestedSuffix(t *testing.T) {
	ctx := newDiceStore(t)

	original, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(original.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(original.Children))
	}

	rewound := replay.Rewind(original, 1)
	// Post-order of a 3-child root visits child0, child1, child2, root.
	// Cutting the last 1 clears only the root's own response/children.
	if rewound.Response != nil {
		t.Fatalf("rewinding the last node (the root) must clear its response")
	}
	if len(rewound.Children) != 0 {
		t.Fatalf("a cleared node must have no children left attached")
	}
	if rewound.Request == nil || !rewound.RequestRef.Equal(original.RequestRef) {
		t.Fatalf("Rewind must preserve the root's own request")
	}

	// The original tree must be untouched by Rewind.
	if len(original.Children) != 3 || original.Response == nil {
		t.Fatalf("Rewind must not mutate the original tree")
	}
}

func TestRewindNeverMutatesTheOriginalTree(t *testing.T) {
	ctx := newDiceStore(t)
	original, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	// The root always lands last in post-order, so any n>=1 clears it; the
	// original's own children, untouched by the clone, stay independently
	// valid invocation records regardless of n.
	_ = replay.Rewind(original, 3)
	for i, child := range original.Children {
		if child.Response == nil {
			t.Fatalf("Rewind must not mutate child %d of the original tree", i)
		}
	}
	if original.Response == nil {
		t.Fatalf("Rewind must not mutate the original root's response")
	}
}

func TestRewindThenReplayReproducesOriginalOutput(t *testing.T) {
	ctx := newDiceStore(t)
	original, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	rewound := replay.Rewind(original, 1)
	redone, err := replay.Replay(ctx, &dice.Dice{}, resource.NewInt(3), rewound, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	outOriginal, _ := original.Output()
	outRedone, _ := redone.Output()
	if !resource.Equal(outOriginal, outRedone) {
		t.Fatalf("replaying a rewound-but-deterministic tree must reproduce the original output: %v vs %v", outOriginal, outRedone)
	}
	for i := range original.Children {
		a, _ := original.Children[i].Output()
		b, _ := redone.Children[i].Output()
		if !resource.Equal(a, b) {
			t.Errorf("child %d output changed across rewind+replay: %v vs %v", i, a, b)
		}
	}
}

func TestReplayErrorNamesExpectedAndObserved(t *testing.T) {
	ctx := newDiceStore(t)
	original, err := invoke.Invoke(ctx, &dice.Dice{}, resource.NewInt(3))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	_, err = replay.Replay(ctx, &dice.Dice{}, resource.NewInt(99), original, nil)
	if err == nil {
		t.Fatalf("expected a replay divergence error")
	}
	re, ok := err.(*replay.ReplayError)
	if !ok {
		t.Fatalf("expected *replay.ReplayError, got %T", err)
	}
	if re.ExpectedInputRef.Equal(re.ActualInputRef) {
		t.Fatalf("ReplayError must name differing expected/actual input refs")
	}
}

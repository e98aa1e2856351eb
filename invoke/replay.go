package invoke

import (
	"context"
	"errors"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/invokable"
	"github.com/reachcore/journal/journalerr"
	"github.com/reachcore/journal/resource"
)

// OverrideKey identifies one previously-suspended RequestInput call site:
// the request of the node that raised it, plus that node's own call
// sequence number (InputRequestResource.Seq). Build one from a suspended
// Invocation via OverrideKeyFor.
type OverrideKey struct {
	RequestRef digest.Ref
	Seq        int
}

// OverrideKeyFor derives the OverrideKey for a suspended invocation node,
// i.e. one where inv.IsSuspended() is true.
func OverrideKeyFor(inv *Invocation) (OverrideKey, bool) {
	ir, ok := inv.Suspension()
	if !ok {
		return OverrideKey{}, false
	}
	return OverrideKey{RequestRef: inv.RequestRef, Seq: ir.Seq}, true
}

// Replay re-executes inv against input, using prior as the recorded tree
// from an earlier run. Every nested call made while re-executing is
// checked against prior's recorded children in order; a mismatch raises
// ReplayError naming both the expected and observed invokable/input
// digests. Where prior's recorded history runs dry (most commonly right
// after the point it previously suspended), nested calls execute for
// real with no further validation. overrides supplies answers for
// previously-raised InputRequests (cumulative across rounds); where a
// matching override is absent, a fresh InputRequest suspends the tree
// again and Replay returns the partial Invocation with a nil error,
// exactly like Invoke (spec.md section 4.7).
func Replay(ctx context.Context, inv invokable.Invokable, input resource.Value, prior *Invocation, overrides map[OverrideKey]resource.Value) (*Invocation, error) {
	if prior == nil {
		return nil, journalerr.New(journalerr.CodeInvalidArgument, "invoke.Replay: prior is required")
	}
	st, ok := storeFor(ctx)
	if !ok {
		return nil, journalerr.New(journalerr.CodeInvalidArgument, "invoke: no active store bound to context or ambient stack")
	}
	es := &engineState{st: st, replaying: true}
	if len(overrides) > 0 {
		es.overrides = make(map[overrideKey]resource.Value, len(overrides))
		for k, v := range overrides {
			es.overrides[overrideKey{requestRef: k.RequestRef, seq: k.Seq}] = v
		}
	}
	ctx = context.WithValue(ctx, engineCtxKey{}, es)

	result, err := execNodeWith(ctx, es, inv, input, inv.Call, false, prior)
	if err == nil {
		return result, nil
	}
	var ir *InputRequest
	if errors.As(err, &ir) {
		return result, nil
	}
	var ce *childError
	if errors.As(err, &ce) {
		return result, nil
	}
	return nil, err
}

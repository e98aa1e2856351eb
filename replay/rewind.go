// Package replay exposes the invocation tree's rewind and replay
// operations: Rewind prunes a suffix of completed calls back to
// "not yet executed", and Replay (re-exported from invoke) re-executes
// the pruned tree, validating determinism against what remains recorded.
// Grounded on determinism.DiffRuns/diffDeep (compare two runs, diverge
// loudly) generalized from "diff two finished runs" to "match a live
// re-execution against one recorded run, node by node".
package replay

import "github.com/reachcore/journal/invoke"

// Replay re-executes an invocation; see invoke.Replay.
var Replay = invoke.Replay

// ReplayError reports a determinism break caught during Replay.
type ReplayError = invoke.ReplayError

// OverrideKey and OverrideKeyFor identify a previously-suspended
// RequestInput call site so its answer can be supplied to Replay.
type OverrideKey = invoke.OverrideKey

var OverrideKeyFor = invoke.OverrideKeyFor

// postOrder returns every node reachable from root, children before
// their parents, parents before the nodes that follow them at the same
// level — the traversal order Rewind counts against.
func postOrder(root *invoke.Invocation) []*invoke.Invocation {
	var out []*invoke.Invocation
	var visit func(n *invoke.Invocation)
	visit = func(n *invoke.Invocation) {
		for _, c := range n.Children {
			visit(c)
		}
		out = append(out, n)
	}
	visit(root)
	return out
}

// Rewind returns a copy of root with the last n completed calls, counted
// in post-order, reset to "not yet executed" (response and children
// cleared, request preserved). n=0 still clears the root's own response,
// since post-order always visits the root last; any node whose own
// response is cleared drops its record of which children it built, but
// nodes elsewhere in the tree that were not selected keep their history
// untouched, including any that happen to be descendants of a cleared
// node — those invocations remain valid, independently committed records
// in the store, just no longer linked from the cleared parent's response.
func Rewind(root *invoke.Invocation, n int) *invoke.Invocation {
	if n < 1 {
		n = 1
	}
	order := postOrder(root)
	cut := make(map[*invoke.Invocation]bool, n)
	start := len(order) - n
	if start < 0 {
		start = 0
	}
	for _, node := range order[start:] {
		cut[node] = true
	}
	clone := make(map[*invoke.Invocation]*invoke.Invocation, len(order))
	var rebuild func(n *invoke.Invocation) *invoke.Invocation
	rebuild = func(n *invoke.Invocation) *invoke.Invocation {
		if existing, ok := clone[n]; ok {
			return existing
		}
		c := &invoke.Invocation{
			ID:         n.ID,
			RequestRef: n.RequestRef,
			Request:    n.Request,
		}
		clone[n] = c
		if cut[n] {
			return c
		}
		c.Ref = n.Ref
		c.ResponseRef = n.ResponseRef
		c.Response = n.Response
		c.OutputValue = n.OutputValue
		c.HasOutput = n.HasOutput
		c.RaisedValue = n.RaisedValue
		c.RaisedHere = n.RaisedHere
		for _, ch := range n.Children {
			c.Children = append(c.Children, rebuild(ch))
		}
		return c
	}
	return rebuild(root)
}

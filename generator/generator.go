// Package generator drives an invocation forward one InputRequest at a
// time, the way a Python generator's Next()/send() pair would: each call
// to Next either returns a finished invocation or the next unanswered
// InputRequest, and SetInput supplies the answer the following Next call
// should resume from. Internally it is Invoke once, then Replay on every
// subsequent step, fed by the accumulated answers. Grounded loosely on
// the request/response loop shape of mcpserver's tool-call handling,
// adapted from "handle one RPC" to "drive one suspendable invocation".
package generator

import (
	"context"

	"github.com/reachcore/journal/invokable"
	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/journalerr"
	"github.com/reachcore/journal/resource"
)

// Generator drives one invocation tree forward across suspend/resume
// cycles. It is not safe for concurrent use.
type Generator struct {
	ctx       context.Context
	inv       invokable.Invokable
	input     resource.Value
	current   *invoke.Invocation
	overrides map[invoke.OverrideKey]resource.Value
	closed    bool
}

// New creates a generator for inv called with input. Nothing runs until
// the first call to Next.
func New(ctx context.Context, inv invokable.Invokable, input resource.Value) *Generator {
	return &Generator{
		ctx:       ctx,
		inv:       inv,
		input:     input,
		overrides: make(map[invoke.OverrideKey]resource.Value),
	}
}

// Next advances the invocation. On the first call it invokes inv fresh;
// on later calls it replays using every answer given so far via
// SetInput. It returns the current invocation tree, which is either
// finished (inv.IsSuspended() is false) or ends in an InputRequest
// awaiting an answer. Calling Next again before answering an open
// InputRequest returns CodeInputRequired instead of re-running anything.
func (g *Generator) Next() (*invoke.Invocation, error) {
	if g.closed {
		return nil, journalerr.New(journalerr.CodeInternal, "generator: closed")
	}
	if g.current != nil && g.current.IsSuspended() {
		key, ok := invoke.OverrideKeyFor(g.current)
		if !ok {
			return nil, journalerr.New(journalerr.CodeInternal, "generator: suspended invocation has no override key")
		}
		if _, answered := g.overrides[key]; !answered {
			return g.current, journalerr.New(journalerr.CodeInputRequired, "generator: call SetInput before the next Next")
		}
	}

	var result *invoke.Invocation
	var err error
	if g.current == nil {
		result, err = invoke.Invoke(g.ctx, g.inv, g.input)
	} else {
		result, err = invoke.Replay(g.ctx, g.inv, g.input, g.current, g.overrides)
	}
	if err != nil {
		return nil, err
	}
	g.current = result
	return result, nil
}

// SetInput answers the generator's current InputRequest, so the next
// call to Next resumes past it. It does not itself advance the
// invocation.
func (g *Generator) SetInput(value resource.Value) error {
	if g.current == nil || !g.current.IsSuspended() {
		return journalerr.New(journalerr.CodeInvalidArgument, "generator: no pending input request")
	}
	key, ok := invoke.OverrideKeyFor(g.current)
	if !ok {
		return journalerr.New(journalerr.CodeInternal, "generator: suspended invocation has no override key")
	}
	g.overrides[key] = value
	return nil
}

// Invocation returns the most recent result from Next, or nil before the
// first call.
func (g *Generator) Invocation() *invoke.Invocation { return g.current }

// Close abandons the generator without forcing a final replay step.
// Already-committed journal entries are untouched; this only stops the
// generator itself from being driven further.
func (g *Generator) Close() error {
	g.closed = true
	return nil
}

package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/reachcore/journal/invokable"
	"github.com/reachcore/journal/journalerr"
	"github.com/reachcore/journal/resource"
)

// InvokeAsync is the cooperative-async counterpart to Invoke: inv's
// CallAsync may block on ordinary Go concurrency primitives, and any
// children it starts with SpawnAsync must be awaited (directly, or via
// Gather) before CallAsync returns, or the node fails with
// IncompleteSubinvocationError (spec.md section 5).
func InvokeAsync(ctx context.Context, inv invokable.AsyncInvokable, input resource.Value) (*Invocation, error) {
	st, ok := storeFor(ctx)
	if !ok {
		return nil, journalerr.New(journalerr.CodeInvalidArgument, "invoke: no active store bound to context or ambient stack")
	}
	es := &engineState{st: st}
	ctx = context.WithValue(ctx, engineCtxKey{}, es)

	result, err := execNodeWith(ctx, es, inv, input, inv.CallAsync, true, nil)
	if err == nil {
		return result, nil
	}
	var ir *InputRequest
	if errors.As(err, &ir) {
		return result, nil
	}
	return result, err
}

// CallAsync is the async analogue of Call: it must be used from inside an
// AsyncInvokable's CallAsync body to invoke another invokable and have the
// sub-call journaled as a child node. It blocks until the child completes.
func CallAsync(ctx context.Context, inv invokable.AsyncInvokable, input resource.Value) (resource.Value, error) {
	es, ok := ctx.Value(engineCtxKey{}).(*engineState)
	if !ok {
		return resource.Value{}, journalerr.New(journalerr.CodeInvalidArgument, "invoke.CallAsync: not inside an active invocation")
	}
	node, err := execNodeWith(ctx, es, inv, input, inv.CallAsync, true, es.priorCandidate())
	es.attachChild(node)
	if err != nil {
		if _, ok := err.(*ReplayError); ok {
			return resource.Value{}, err
		}
		return resource.Value{}, &childError{err: err, raisedRef: node.ResponseRef}
	}
	return node.OutputValue, nil
}

// PendingCall is a child sub-invocation started with SpawnAsync that has
// not yet been awaited. The parent node that started it is accounted as
// having a pending child until Await is called.
type PendingCall struct {
	once   sync.Once
	done   chan struct{}
	value  resource.Value
	err    error
	parent *buildNode
}

// Await blocks until the spawned sub-invocation completes and returns its
// result, decrementing the parent's pending count. Calling Await more than
// once returns the same result.
func (p *PendingCall) Await() (resource.Value, error) {
	<-p.done
	p.once.Do(func() { p.parent.addPending(-1) })
	return p.value, p.err
}

// SpawnAsync starts inv concurrently as a child of the currently executing
// node and returns immediately with a handle to await later. A node that
// completes without every PendingCall it spawned being awaited fails with
// IncompleteSubinvocationError.
func SpawnAsync(ctx context.Context, inv invokable.AsyncInvokable, input resource.Value) (*PendingCall, error) {
	es, ok := ctx.Value(engineCtxKey{}).(*engineState)
	if !ok {
		return nil, journalerr.New(journalerr.CodeInvalidArgument, "invoke.SpawnAsync: not inside an active invocation")
	}
	es.mu.Lock()
	if len(es.stack) == 0 {
		es.mu.Unlock()
		return nil, journalerr.New(journalerr.CodeInternal, "invoke.SpawnAsync: no active node")
	}
	parent := es.stack[len(es.stack)-1]
	es.mu.Unlock()

	parent.addPending(1)
	pc := &PendingCall{done: make(chan struct{}), parent: parent}
	go func() {
		defer close(pc.done)
		v, err := CallAsync(ctx, inv, input)
		pc.value, pc.err = v, err
	}()
	return pc, nil
}

// Gather runs several async sub-invocations concurrently and waits for all
// of them, so they never count as pending at the caller's completion. It
// returns one (value, error) pair per call, positionally aligned with
// calls, regardless of completion order; the tree's recorded child order
// still follows actual completion order (spec.md section 5: "ordered by
// completion, not launch order").
func Gather(ctx context.Context, calls ...func(context.Context) (resource.Value, error)) ([]resource.Value, []error) {
	values := make([]resource.Value, len(calls))
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, c := range calls {
		i, c := i, c
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("invoke.Gather: panic: %v", r)
				}
			}()
			values[i], errs[i] = c(ctx)
		}()
	}
	wg.Wait()
	return values, errs
}

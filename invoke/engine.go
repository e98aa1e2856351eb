// Package invoke is the invocation engine: it journals every call to an
// Invokable as a Request/Response/Invocation triple, intercepts nested
// calls made through Call so they become child invocation nodes, and
// threads InputRequest suspension through the tree without collapsing it.
// Grounded on jobs.DAGExecutor.ExecuteGraph/ExecuteNode (sequential
// node-by-node execution accumulating a results map), generalized from a
// fixed action DAG to arbitrary nested invokable calls.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/invokable"
	"github.com/reachcore/journal/journalerr"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/store"
	"github.com/reachcore/journal/typeid"
)

type engineCtxKey struct{}

// engineState is shared by every node in one invocation tree.
type engineState struct {
	st        *store.Store
	replaying bool

	mu        sync.Mutex
	stack     []*buildNode
	overrides map[overrideKey]resource.Value
}

type overrideKey struct {
	requestRef digest.Ref
	seq        int
}

func (es *engineState) overrideFor(key overrideKey) (resource.Value, bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	v, ok := es.overrides[key]
	return v, ok
}

func (es *engineState) push(n *buildNode) {
	es.mu.Lock()
	es.stack = append(es.stack, n)
	es.mu.Unlock()
}

func (es *engineState) pop() {
	es.mu.Lock()
	if len(es.stack) > 0 {
		es.stack = es.stack[:len(es.stack)-1]
	}
	es.mu.Unlock()
}

func (es *engineState) attachChild(child *Invocation) {
	if child == nil {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.stack) == 0 {
		return
	}
	parent := es.stack[len(es.stack)-1]
	parent.childRefs = append(parent.childRefs, child.Ref)
	parent.children = append(parent.children, child)
}

// priorCandidate pops the next recorded child off the currently executing
// node's cursor, if replay is active and one remains.
func (es *engineState) priorCandidate() *Invocation {
	if !es.replaying {
		return nil
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.stack) == 0 {
		return nil
	}
	parent := es.stack[len(es.stack)-1]
	if parent.priorChildren == nil || parent.priorIdx >= len(parent.priorChildren) {
		return nil
	}
	c := parent.priorChildren[parent.priorIdx]
	parent.priorIdx++
	return c
}

type buildNode struct {
	requestRef digest.Ref
	inputSeq   int

	// priorChildren/priorIdx is the recorded-child cursor this node's own
	// nested calls are validated against during replay; nil outside replay
	// or once a node's recorded history runs dry.
	priorChildren []*Invocation
	priorIdx      int

	childRefs []digest.Ref
	children  []*Invocation

	pendingMu sync.Mutex
	pending   int
}

func (bn *buildNode) addPending(delta int) {
	bn.pendingMu.Lock()
	bn.pending += delta
	bn.pendingMu.Unlock()
}

func (bn *buildNode) pendingCount() int {
	bn.pendingMu.Lock()
	defer bn.pendingMu.Unlock()
	return bn.pending
}

// childError wraps an error returned by a nested Call so the enclosing
// node can tell a pass-through error (returned by the caller unchanged)
// apart from a freshly raised one, while still letting errors.As/Is see
// through to the original cause.
type childError struct {
	err       error
	raisedRef digest.Ref
}

func (c *childError) Error() string { return c.err.Error() }
func (c *childError) Unwrap() error { return c.err }

// InputRequest is the suspension sentinel: an Invokable raises it instead
// of returning output when it needs a value it cannot yet supply
// (spec.md section 4.5/4.8).
type InputRequest struct {
	RequestedType  typeid.TypeID
	ForResourceRef digest.Ref
	Context        string
	Seq            int
}

func (e *InputRequest) Error() string {
	return fmt.Sprintf("input required: %s: %s", e.RequestedType.Name, e.Context)
}

// ReplayError reports that re-executing a node during replay produced a
// different invokable or input than what was previously recorded at the
// same tree position — a break in determinism.
type ReplayError struct {
	ExpectedInvokableRef digest.Ref
	ActualInvokableRef   digest.Ref
	ExpectedInputRef     digest.Ref
	ActualInputRef       digest.Ref
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf(
		"invoke: replay diverged: expected invokable %s input %s, observed invokable %s input %s",
		e.ExpectedInvokableRef, e.ExpectedInputRef, e.ActualInvokableRef, e.ActualInputRef,
	)
}

// RequestInput is called from inside an Invokable's Call body to ask the
// engine for a value it does not itself have. Outside replay, or when no
// override has been supplied yet for this exact call site, it raises
// InputRequest to suspend the invocation; under replay with a matching
// override installed (generator.SetInput), it returns that value instead
// and execution continues (spec.md section 4.8).
func RequestInput(ctx context.Context, requestedType typeid.TypeID, forRef digest.Ref, contextStr string) (resource.Value, error) {
	es, ok := ctx.Value(engineCtxKey{}).(*engineState)
	if !ok {
		return resource.Value{}, journalerr.New(journalerr.CodeInvalidArgument, "invoke.RequestInput: not inside an active invocation")
	}
	es.mu.Lock()
	if len(es.stack) == 0 {
		es.mu.Unlock()
		return resource.Value{}, journalerr.New(journalerr.CodeInternal, "invoke.RequestInput: no active node")
	}
	node := es.stack[len(es.stack)-1]
	seq := node.inputSeq
	node.inputSeq++
	key := overrideKey{requestRef: node.requestRef, seq: seq}
	es.mu.Unlock()

	if v, ok := es.overrideFor(key); ok {
		return v, nil
	}
	return resource.Value{}, &InputRequest{RequestedType: requestedType, ForResourceRef: forRef, Context: contextStr, Seq: seq}
}

// IncompleteSubinvocationError is raised by the async engine when a call
// completes while one or more child sub-invocations it started are still
// pending (spec.md section 5: "Background tasks that outlive their parent
// invocation are prohibited").
type IncompleteSubinvocationError struct {
	Pending int
}

func (e *IncompleteSubinvocationError) Error() string {
	return fmt.Sprintf("invoke: %d subinvocation(s) still pending at parent completion", e.Pending)
}

// Invocation is the caller-facing view of one journaled node: the
// committed Request/Response pair, their references, decoded output or
// raised-error values, and the node's children in completion order.
type Invocation struct {
	ID string

	Ref         digest.Ref
	RequestRef  digest.Ref
	Request     *Request
	ResponseRef digest.Ref
	Response    *Response

	OutputValue resource.Value
	HasOutput   bool

	RaisedValue resource.Resource
	RaisedHere  bool

	Children []*Invocation
}

// IsSuspended reports whether this node's raised value is an
// InputRequestResource, i.e. the tree ends here awaiting input.
func (inv *Invocation) IsSuspended() bool {
	_, ok := inv.RaisedValue.(*InputRequestResource)
	return ok
}

// Output returns the node's output value, if it completed normally with a
// non-null output; a null output reports false.
func (inv *Invocation) Output() (resource.Value, bool) {
	return inv.OutputValue, inv.HasOutput
}

// Raised returns the node's raised resource and whether the node raised
// anything at all (here or propagated from a child); see RaisedHere for
// which of the two.
func (inv *Invocation) Raised() (resource.Resource, bool) {
	return inv.RaisedValue, inv.RaisedValue != nil
}

// Suspension returns the node's raised value as an InputRequest
// description, if IsSuspended reports true.
func (inv *Invocation) Suspension() (*InputRequestResource, bool) {
	ir, ok := inv.RaisedValue.(*InputRequestResource)
	return ir, ok
}

func storeFor(ctx context.Context) (*store.Store, bool) {
	if s, ok := store.FromContext(ctx); ok {
		return s, true
	}
	return store.Current()
}

// Invoke runs inv against input as the root of a new invocation tree,
// using the store bound to ctx (store.WithStore) or the ambient store
// stack (store.Push) if ctx carries none. If the call raises InputRequest
// anywhere in the tree without it being caught, Invoke returns the partial
// Invocation (ending in the suspension) with a nil error instead of
// propagating the error, per spec.md section 4.5.
func Invoke(ctx context.Context, inv invokable.Invokable, input resource.Value) (*Invocation, error) {
	st, ok := storeFor(ctx)
	if !ok {
		return nil, journalerr.New(journalerr.CodeInvalidArgument, "invoke: no active store bound to context or ambient stack")
	}
	es := &engineState{st: st}
	ctx = context.WithValue(ctx, engineCtxKey{}, es)

	result, err := execNode(ctx, es, inv, input)
	if err == nil {
		return result, nil
	}
	var ir *InputRequest
	if errors.As(err, &ir) {
		return result, nil
	}
	return result, err
}

// Call performs a nested invocation from inside another Invokable's Call
// body. It must be used instead of calling the child's Call method
// directly, so the engine can journal the sub-call as a child invocation
// node (spec.md section 4.5: "direct calls ... are intercepted").
func Call(ctx context.Context, inv invokable.Invokable, input resource.Value) (resource.Value, error) {
	es, ok := ctx.Value(engineCtxKey{}).(*engineState)
	if !ok {
		return resource.Value{}, journalerr.New(journalerr.CodeInvalidArgument, "invoke.Call: not inside an active invocation")
	}
	node, err := execNode(ctx, es, inv, input)
	es.attachChild(node)
	if err != nil {
		if _, ok := err.(*ReplayError); ok {
			return resource.Value{}, err
		}
		return resource.Value{}, &childError{err: err, raisedRef: node.ResponseRef}
	}
	return node.OutputValue, nil
}

func execNode(ctx context.Context, es *engineState, inv invokable.Invokable, input resource.Value) (*Invocation, error) {
	return execNodeWith(ctx, es, inv, input, inv.Call, false, es.priorCandidate())
}

// execNodeWith is shared by the synchronous and cooperative-async engines:
// it journals invRes (an Invokable or AsyncInvokable) being called with
// input via call, building and committing the Request/Response/Invocation
// triple around whatever call does. enforcePending additionally rejects
// the node if it completes with pending SpawnAsync children still
// outstanding (spec.md section 5). prior, when non-nil, is the recorded
// invocation at this exact tree position from an earlier run; its
// invokable/input are checked against this call (ReplayError on mismatch)
// and its own children become this node's recorded-child cursor.
func execNodeWith(ctx context.Context, es *engineState, invRes resource.Resource, input resource.Value, call func(context.Context, resource.Value) (resource.Value, error), enforcePending bool, prior *Invocation) (*Invocation, error) {
	invokableRef, err := es.st.Commit(invRes)
	if err != nil {
		return nil, fmt.Errorf("invoke: commit invokable: %w", err)
	}
	inputRef, err := commitValueOrNull(es.st, input)
	if err != nil {
		return nil, fmt.Errorf("invoke: commit input: %w", err)
	}

	if prior != nil && (prior.Request.InvokableRef != invokableRef || prior.Request.InputRef != inputRef) {
		return nil, &ReplayError{
			ExpectedInvokableRef: prior.Request.InvokableRef,
			ActualInvokableRef:   invokableRef,
			ExpectedInputRef:     prior.Request.InputRef,
			ActualInputRef:       inputRef,
		}
	}

	req := &Request{InvokableRef: invokableRef, InputRef: inputRef}
	requestRef, err := es.st.Commit(req)
	if err != nil {
		return nil, fmt.Errorf("invoke: commit request: %w", err)
	}

	bn := &buildNode{requestRef: requestRef}
	if prior != nil {
		bn.priorChildren = prior.Children
	}
	es.push(bn)
	outputVal, callErr := call(ctx, input)
	es.pop()

	if enforcePending && callErr == nil {
		if p := bn.pendingCount(); p > 0 {
			callErr = &IncompleteSubinvocationError{Pending: p}
		}
	}

	resp := &Response{InvokableRef: invokableRef, Children: bn.childRefs}
	inv2 := &Invocation{
		ID:         uuid.NewString(),
		RequestRef: requestRef,
		Request:    req,
		Children:   bn.children,
	}

	if callErr == nil {
		outputRef, err := commitValueOrNull(es.st, outputVal)
		if err != nil {
			return nil, fmt.Errorf("invoke: commit output: %w", err)
		}
		resp.OutputRef = outputRef
		inv2.OutputValue = outputVal
		inv2.HasOutput = outputVal.Kind() != resource.KindNull
	} else {
		var ce *childError
		if errors.As(callErr, &ce) {
			resp.RaisedRef = ce.raisedRef
			resp.RaisedHere = false
		} else {
			raisedResource := errorToResource(callErr)
			raisedRef, err := es.st.Commit(raisedResource)
			if err != nil {
				return nil, fmt.Errorf("invoke: commit raised: %w", err)
			}
			resp.RaisedRef = raisedRef
			resp.RaisedHere = true
		}
		raised, err := es.st.Checkout(resp.RaisedRef)
		if err != nil {
			return nil, fmt.Errorf("invoke: checkout raised: %w", err)
		}
		inv2.RaisedValue = raised
		inv2.RaisedHere = resp.RaisedHere
	}

	responseRef, err := es.st.Commit(resp)
	if err != nil {
		return nil, fmt.Errorf("invoke: commit response: %w", err)
	}
	inv2.Response = resp
	inv2.ResponseRef = responseRef

	rec := &InvocationRecord{RequestRef: requestRef, ResponseRef: responseRef}
	recRef, err := es.st.Commit(rec)
	if err != nil {
		return nil, fmt.Errorf("invoke: commit invocation record: %w", err)
	}
	inv2.Ref = recRef

	return inv2, callErr
}

func commitValueOrNull(st *store.Store, v resource.Value) (digest.Ref, error) {
	if v.Kind() == resource.KindNull {
		return digest.Ref{}, nil
	}
	if r, ok := v.AsResource(); ok {
		return st.Commit(r)
	}
	return st.Commit(&ValueBox{Value: v})
}

func checkoutValue(st *store.Store, ref digest.Ref) (resource.Value, error) {
	if ref.IsZero() {
		return resource.Null(), nil
	}
	r, err := st.Checkout(ref)
	if err != nil {
		return resource.Value{}, err
	}
	if vb, ok := r.(*ValueBox); ok {
		return vb.Value, nil
	}
	return resource.NewResource(r), nil
}

func errorToResource(err error) resource.Resource {
	var ir *InputRequest
	if errors.As(err, &ir) {
		return &InputRequestResource{RequestedType: ir.RequestedType, Context: ir.Context, ForResourceRef: ir.ForResourceRef, Seq: ir.Seq}
	}
	if r, ok := err.(resource.Resource); ok {
		return r
	}
	return &RaisedError{Message: err.Error()}
}

package invoke

import (
	"fmt"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

// Request is the committed record of one invocation attempt: which
// invokable was called, and with what input (spec.md section 3).
type Request struct {
	InvokableRef digest.Ref
	InputRef     digest.Ref // zero value means "no input"
}

func (r *Request) TypeID() typeid.TypeID { return requestTypeID }
func (r *Request) FieldNames() []string  { return []string{"invokable_ref", "input_ref"} }
func (r *Request) FieldValues() []resource.Value {
	return []resource.Value{
		resource.NewRef(r.InvokableRef),
		refOrNull(r.InputRef),
	}
}

// Response is the committed outcome of one invocation: its output or
// raised error, whether the error originated here or propagated from a
// child, and the ordered list of child invocation references.
type Response struct {
	InvokableRef digest.Ref
	OutputRef    digest.Ref // zero means "no output"
	RaisedRef    digest.Ref // zero means "nothing raised"
	RaisedHere   bool
	Children     []digest.Ref
}

func (r *Response) TypeID() typeid.TypeID { return responseTypeID }
func (r *Response) FieldNames() []string {
	return []string{"invokable_ref", "output_ref", "raised_ref", "raised_here", "children"}
}
func (r *Response) FieldValues() []resource.Value {
	children := make([]resource.Value, len(r.Children))
	for i, c := range r.Children {
		children[i] = resource.NewRef(c)
	}
	return []resource.Value{
		resource.NewRef(r.InvokableRef),
		refOrNull(r.OutputRef),
		refOrNull(r.RaisedRef),
		resource.NewBool(r.RaisedHere),
		resource.NewList(children),
	}
}

// InvocationRecord is the committed journal node: a request ref plus an optional
// response ref. Absence of a response means "not yet executed".
type InvocationRecord struct {
	RequestRef  digest.Ref
	ResponseRef digest.Ref // zero means "not yet executed"
}

func (r *InvocationRecord) TypeID() typeid.TypeID { return invocationTypeID }
func (r *InvocationRecord) FieldNames() []string  { return []string{"request", "response"} }
func (r *InvocationRecord) FieldValues() []resource.Value {
	return []resource.Value{
		resource.NewRef(r.RequestRef),
		refOrNull(r.ResponseRef),
	}
}

// InputRequestResource is the committed form of a raised InputRequest: a
// requested type, an optional "for" resource reference, and free-form
// context (spec.md section 4.5).
type InputRequestResource struct {
	RequestedType  typeid.TypeID
	ForResourceRef digest.Ref // zero means none
	Context        string
	Seq            int
}

func (r *InputRequestResource) TypeID() typeid.TypeID { return inputRequestTypeID }
func (r *InputRequestResource) FieldNames() []string {
	return []string{"requested_type", "for_resource_ref", "context", "seq"}
}
func (r *InputRequestResource) FieldValues() []resource.Value {
	return []resource.Value{
		resource.NewTypeHandle(r.RequestedType),
		refOrNull(r.ForResourceRef),
		resource.NewString(r.Context),
		resource.NewInt(int64(r.Seq)),
	}
}

// RaisedError is the generic committed form of an arbitrary user-raised
// error that isn't itself a resource.Resource (spec.md section 7: "Arbitrary
// user-raised errors captured as resources inside the journal").
type RaisedError struct {
	Message string
}

func (r *RaisedError) TypeID() typeid.TypeID { return raisedErrorTypeID }
func (r *RaisedError) FieldNames() []string  { return []string{"message"} }
func (r *RaisedError) FieldValues() []resource.Value {
	return []resource.Value{resource.NewString(r.Message)}
}

// ValueBox commits an arbitrary field Value that is not itself a resource
// (an int, string, list, ...) so it can be named by a ref wherever the
// journal needs one: invokable input/output are resource.Value, but
// Request.input_ref/Response.output_ref are resource references. A Value
// that already wraps a Resource (KindResource) is committed directly
// instead of being boxed; see commitValueOrNull/checkoutValue.
type ValueBox struct {
	Value resource.Value
}

func (r *ValueBox) TypeID() typeid.TypeID { return valueBoxTypeID }
func (r *ValueBox) FieldNames() []string  { return []string{"value"} }
func (r *ValueBox) FieldValues() []resource.Value {
	return []resource.Value{r.Value}
}

var (
	requestTypeID      typeid.TypeID
	responseTypeID     typeid.TypeID
	invocationTypeID   typeid.TypeID
	inputRequestTypeID typeid.TypeID
	raisedErrorTypeID  typeid.TypeID
	valueBoxTypeID     typeid.TypeID
)

// RegisterTypes binds the engine's built-in journal resource types into
// reg. Callers must call this once per registry before committing or
// checking out invocation trees; Invoke, InvokeAsync and Replay all
// assume these types are present.
func RegisterTypes(reg *registry.Registry) error {
	var err error
	if requestTypeID, err = reg.Register("journal.Request", constructRequest); err != nil {
		return err
	}
	if responseTypeID, err = reg.Register("journal.Response", constructResponse); err != nil {
		return err
	}
	if invocationTypeID, err = reg.Register("journal.Invocation", constructInvocationRecord); err != nil {
		return err
	}
	if inputRequestTypeID, err = reg.Register("journal.InputRequest", constructInputRequestResource); err != nil {
		return err
	}
	if raisedErrorTypeID, err = reg.Register("journal.RaisedError", constructRaisedError); err != nil {
		return err
	}
	if valueBoxTypeID, err = reg.Register("journal.ValueBox", constructValueBox); err != nil {
		return err
	}
	return nil
}

func constructValueBox(fields map[string]resource.Value) (resource.Resource, error) {
	v, ok := fields["value"]
	if !ok {
		return nil, fmt.Errorf("journal: missing field %q", "value")
	}
	return &ValueBox{Value: v}, nil
}

func refOrNull(r digest.Ref) resource.Value {
	if r.IsZero() {
		return resource.Null()
	}
	return resource.NewRef(r)
}

func fieldRef(fields map[string]resource.Value, name string) (digest.Ref, error) {
	v, ok := fields[name]
	if !ok {
		return digest.Ref{}, fmt.Errorf("journal: missing field %q", name)
	}
	if v.Kind() == resource.KindNull {
		return digest.Ref{}, nil
	}
	r, ok := v.AsRef()
	if !ok {
		return digest.Ref{}, fmt.Errorf("journal: field %q is not a ref", name)
	}
	return r, nil
}

func constructRequest(fields map[string]resource.Value) (resource.Resource, error) {
	invRef, err := fieldRef(fields, "invokable_ref")
	if err != nil {
		return nil, err
	}
	inRef, err := fieldRef(fields, "input_ref")
	if err != nil {
		return nil, err
	}
	return &Request{InvokableRef: invRef, InputRef: inRef}, nil
}

func constructResponse(fields map[string]resource.Value) (resource.Resource, error) {
	invRef, err := fieldRef(fields, "invokable_ref")
	if err != nil {
		return nil, err
	}
	outRef, err := fieldRef(fields, "output_ref")
	if err != nil {
		return nil, err
	}
	raisedRef, err := fieldRef(fields, "raised_ref")
	if err != nil {
		return nil, err
	}
	raisedHere, _ := fields["raised_here"].AsBool()
	childrenVal, ok := fields["children"]
	var children []digest.Ref
	if ok {
		items, _ := childrenVal.AsList()
		children = make([]digest.Ref, len(items))
		for i, item := range items {
			r, ok := item.AsRef()
			if !ok {
				return nil, fmt.Errorf("journal: children[%d] is not a ref", i)
			}
			children[i] = r
		}
	}
	return &Response{
		InvokableRef: invRef,
		OutputRef:    outRef,
		RaisedRef:    raisedRef,
		RaisedHere:   raisedHere,
		Children:     children,
	}, nil
}

func constructInvocationRecord(fields map[string]resource.Value) (resource.Resource, error) {
	reqRef, err := fieldRef(fields, "request")
	if err != nil {
		return nil, err
	}
	respRef, err := fieldRef(fields, "response")
	if err != nil {
		return nil, err
	}
	return &InvocationRecord{RequestRef: reqRef, ResponseRef: respRef}, nil
}

func constructInputRequestResource(fields map[string]resource.Value) (resource.Resource, error) {
	t, _ := fields["requested_type"].AsTypeHandle()
	forRef, err := fieldRef(fields, "for_resource_ref")
	if err != nil {
		return nil, err
	}
	ctxStr, _ := fields["context"].AsString()
	seq, _ := fields["seq"].AsInt()
	return &InputRequestResource{RequestedType: t, ForResourceRef: forRef, Context: ctxStr, Seq: int(seq)}, nil
}

func constructRaisedError(fields map[string]resource.Value) (resource.Resource, error) {
	msg, _ := fields["message"].AsString()
	return &RaisedError{Message: msg}, nil
}

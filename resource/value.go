// Package resource defines the field-value model and the Resource contract:
// a named, registered type together with an ordered list of (name, value)
// pairs drawn from a closed universe of representable values.
package resource

import (
	"fmt"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/typeid"
)

// Kind tags which variant of the closed value universe a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindBytes
	KindRef
	KindTypeHandle
	KindList
	KindMap
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindRef:
		return "ref"
	case KindTypeHandle:
		return "type_handle"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindResource:
		return "resource"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single field value: a tagged variant, never a reflection-driven
// bag. Construct with the New* functions; read with the As* accessors.
type Value struct {
	kind     Kind
	intVal   int64
	floatVal float64
	boolVal  bool
	strVal   string
	bytesVal []byte
	refVal   digest.Ref
	typeVal  typeid.TypeID
	listVal  []Value
	mapVal   map[string]Value
	resVal   Resource
}

func (v Value) Kind() Kind { return v.kind }

func Null() Value { return Value{kind: KindNull} }

func NewInt(i int64) Value { return Value{kind: KindInt, intVal: i} }

func NewFloat(f float64) Value { return Value{kind: KindFloat, floatVal: f} }

func NewBool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

func NewString(s string) Value { return Value{kind: KindString, strVal: s} }

func NewBytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytesVal: cp}
}

func NewRef(r digest.Ref) Value { return Value{kind: KindRef, refVal: r} }

func NewTypeHandle(t typeid.TypeID) Value { return Value{kind: KindTypeHandle, typeVal: t} }

func NewList(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, listVal: cp}
}

func NewMap(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, mapVal: cp}
}

func NewResource(r Resource) Value { return Value{kind: KindResource, resVal: r} }

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.intVal, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.floatVal, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strVal, true
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.bytesVal))
	copy(cp, v.bytesVal)
	return cp, true
}

func (v Value) AsRef() (digest.Ref, bool) {
	if v.kind != KindRef {
		return digest.Ref{}, false
	}
	return v.refVal, true
}

func (v Value) AsTypeHandle() (typeid.TypeID, bool) {
	if v.kind != KindTypeHandle {
		return typeid.TypeID{}, false
	}
	return v.typeVal, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.listVal))
	copy(cp, v.listVal)
	return cp, true
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.mapVal))
	for k, val := range v.mapVal {
		cp[k] = val
	}
	return cp, true
}

func (v Value) AsResource() (Resource, bool) {
	if v.kind != KindResource {
		return nil, false
	}
	return v.resVal, true
}

// Equal reports structural equality under spec.md's equivalence rules:
// same kind, and recursively equal contents. Two resources are equal iff
// their type ids and field values are equal pairwise (field order matters).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindBool:
		return a.boolVal == b.boolVal
	case KindString:
		return a.strVal == b.strVal
	case KindBytes:
		return string(a.bytesVal) == string(b.bytesVal)
	case KindRef:
		return a.refVal.Equal(b.refVal)
	case KindTypeHandle:
		return a.typeVal.Equal(b.typeVal)
	case KindList:
		if len(a.listVal) != len(b.listVal) {
			return false
		}
		for i := range a.listVal {
			if !Equal(a.listVal[i], b.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.mapVal) != len(b.mapVal) {
			return false
		}
		for k, av := range a.mapVal {
			bv, ok := b.mapVal[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindResource:
		if a.resVal == nil || b.resVal == nil {
			return a.resVal == b.resVal
		}
		if !a.resVal.TypeID().Equal(b.resVal.TypeID()) {
			return false
		}
		an, av := a.resVal.FieldNames(), a.resVal.FieldValues()
		bn, bv := b.resVal.FieldNames(), b.resVal.FieldValues()
		if len(an) != len(bn) || len(av) != len(bv) {
			return false
		}
		for i := range an {
			if an[i] != bn[i] || !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

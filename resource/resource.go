package resource

import "github.com/reachcore/journal/typeid"

// Resource is a named, registered type together with an ordered list of
// (field_name, field_value) pairs. Field order is part of the contract:
// serialization depends on it.
type Resource interface {
	TypeID() typeid.TypeID
	FieldNames() []string
	FieldValues() []Value
}

// Constructor builds a Resource from a name->value mapping, as required by
// spec.md section 3: "a constructor from a {name -> value} mapping".
type Constructor func(fields map[string]Value) (Resource, error)

// Fields zips a resource's field names and values into a map, for callers
// that want name-based access instead of the ordered-pair contract.
func Fields(r Resource) map[string]Value {
	names := r.FieldNames()
	values := r.FieldValues()
	out := make(map[string]Value, len(names))
	for i, n := range names {
		if i < len(values) {
			out[n] = values[i]
		}
	}
	return out
}

// ValidateShape checks that a resource's declared field-name list and
// returned field-value list agree in length, one of the packer invariants
// from spec.md section 4.2 ("resources whose declared field list does not
// match their returned values" must be rejected).
func ValidateShape(r Resource) error {
	names := r.FieldNames()
	values := r.FieldValues()
	if len(names) != len(values) {
		return &ShapeError{TypeName: r.TypeID().Name, NameCount: len(names), ValueCount: len(values)}
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return &ShapeError{TypeName: r.TypeID().Name, DuplicateField: n}
		}
		seen[n] = struct{}{}
	}
	return nil
}

// ShapeError reports a resource whose declared fields don't match its
// returned values.
type ShapeError struct {
	TypeName       string
	NameCount      int
	ValueCount     int
	DuplicateField string
}

func (e *ShapeError) Error() string {
	if e.DuplicateField != "" {
		return "resource " + e.TypeName + ": duplicate field " + e.DuplicateField
	}
	return "resource " + e.TypeName + ": field name/value count mismatch"
}

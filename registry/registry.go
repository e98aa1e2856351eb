// Package registry maps stable type identifiers to resource constructors,
// mirroring the teacher's pack.PackRegistry register-once/lookup-by-id
// shape, generalized from install manifests to resource types.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

// ErrUnknownType is returned by Lookup/TypeIDFor for a type no one
// registered, and by the codec when unpacking an unrecognized type_id.
type ErrUnknownType struct {
	Name   string
	Digest string
}

func (e *ErrUnknownType) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("unknown type: %s", e.Name)
	}
	return fmt.Sprintf("unknown type digest: %s", e.Digest)
}

type entry struct {
	id          typeid.TypeID
	constructor resource.Constructor
}

// Registry binds resource type names to their TypeID and constructor. A
// name may be bound at most once.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]entry
	byDigest  map[string]entry
}

func New() *Registry {
	return &Registry{
		byName:   make(map[string]entry),
		byDigest: make(map[string]entry),
	}
}

// Register binds name to constructor, returning the stable TypeID whose
// digest is H(name). Re-registering the same name is an error.
func (r *Registry) Register(name string, constructor resource.Constructor) (typeid.TypeID, error) {
	if name == "" {
		return typeid.TypeID{}, fmt.Errorf("registry: name must not be empty")
	}
	if constructor == nil {
		return typeid.TypeID{}, fmt.Errorf("registry: constructor must not be nil")
	}
	id := typeid.For(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return typeid.TypeID{}, fmt.Errorf("registry: type %q already registered", name)
	}
	e := entry{id: id, constructor: constructor}
	r.byName[name] = e
	r.byDigest[id.Digest] = e
	return id, nil
}

// TypeIDFor returns the stable TypeID for a registered name.
func (r *Registry) TypeIDFor(name string) (typeid.TypeID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return typeid.TypeID{}, &ErrUnknownType{Name: name}
	}
	return e.id, nil
}

// Lookup resolves a TypeID to its constructor. Unregistered types cannot be
// unpacked: lookup of an unknown type_id fails with ErrUnknownType.
func (r *Registry) Lookup(id typeid.TypeID) (resource.Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byDigest[id.Digest]
	if !ok {
		return nil, &ErrUnknownType{Digest: id.Digest}
	}
	return e.constructor, nil
}

// Construct looks up the constructor for id and invokes it with fields.
func (r *Registry) Construct(id typeid.TypeID, fields map[string]resource.Value) (resource.Resource, error) {
	ctor, err := r.Lookup(id)
	if err != nil {
		return nil, err
	}
	return ctor(fields)
}

// Names returns every registered type name, sorted, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

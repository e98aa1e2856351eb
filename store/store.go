package store

import (
	"fmt"

	"github.com/reachcore/journal/codec"
	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
)

// Store layers the commit/checkout/modify contract over one Backend,
// resolving types through one Registry. Per spec.md section 4.3.
type Store struct {
	backend  Backend
	registry *registry.Registry
}

func New(backend Backend, reg *registry.Registry) *Store {
	return &Store{backend: backend, registry: reg}
}

func (s *Store) Backend() Backend             { return s.backend }
func (s *Store) Registry() *registry.Registry { return s.registry }

// Commit packs r, hashes it, backend-commits it, and returns a reference.
// Idempotent: committing equivalent resources twice returns equal
// references (spec.md section 3 invariant 2) because packing and hashing
// are pure functions of r's structure.
func (s *Store) Commit(r resource.Resource) (digest.Ref, error) {
	packed, err := codec.Pack(r)
	if err != nil {
		return digest.Ref{}, fmt.Errorf("store: pack: %w", err)
	}
	bytes, err := codec.CanonicalBytes(packed)
	if err != nil {
		return digest.Ref{}, fmt.Errorf("store: canonicalize: %w", err)
	}
	d := digest.Compute(bytes)
	if err := s.backend.Commit(d, bytes); err != nil {
		return digest.Ref{}, fmt.Errorf("store: commit: %w", err)
	}
	return digest.New(r.TypeID(), d), nil
}

// Checkout reconstructs the resource named by ref. Referenced resources
// inside it stay as unresolved Ref values (shallow checkout); see
// CheckoutDeep for recursive resolution.
func (s *Store) Checkout(ref digest.Ref) (resource.Resource, error) {
	raw, err := s.backend.Get(ref.Digest)
	if err != nil {
		if err == ErrNotFound {
			return nil, NewNotFoundError(ref)
		}
		return nil, fmt.Errorf("store: get: %w", err)
	}
	r, err := codec.UnpackBytes(raw, s.registry)
	if err != nil {
		return nil, fmt.Errorf("store: unpack: %w", err)
	}
	return r, nil
}

// Has reports whether ref's digest is present without reconstructing it.
func (s *Store) Has(ref digest.Ref) (bool, error) {
	return s.backend.Has(ref.Digest)
}

// CheckoutDeep recursively resolves referenced resources reachable from
// ref, up to maxDepth hops (0 means only ref itself, matching Checkout).
// Additive supplement per SPEC_FULL.md; does not change Checkout's
// contract. Cycles cannot occur because a reference can only name a
// resource already committed (spec.md section 3 invariant 3).
func (s *Store) CheckoutDeep(ref digest.Ref, maxDepth int) (resource.Resource, error) {
	r, err := s.Checkout(ref)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		return r, nil
	}
	names := r.FieldNames()
	values := r.FieldValues()
	resolved := make([]resource.Value, len(values))
	for i, v := range values {
		rv, err := s.resolveDeep(v, maxDepth)
		if err != nil {
			return nil, err
		}
		resolved[i] = rv
	}
	fields := make(map[string]resource.Value, len(names))
	for i, n := range names {
		fields[n] = resolved[i]
	}
	return s.registry.Construct(r.TypeID(), fields)
}

func (s *Store) resolveDeep(v resource.Value, depth int) (resource.Value, error) {
	switch v.Kind() {
	case resource.KindRef:
		ref, _ := v.AsRef()
		embedded, err := s.CheckoutDeep(ref, depth-1)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.NewResource(embedded), nil
	case resource.KindList:
		items, _ := v.AsList()
		out := make([]resource.Value, len(items))
		for i, item := range items {
			rv, err := s.resolveDeep(item, depth)
			if err != nil {
				return resource.Value{}, err
			}
			out[i] = rv
		}
		return resource.NewList(out), nil
	case resource.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]resource.Value, len(m))
		for k, item := range m {
			rv, err := s.resolveDeep(item, depth)
			if err != nil {
				return resource.Value{}, err
			}
			out[k] = rv
		}
		return resource.NewMap(out), nil
	default:
		return v, nil
	}
}

// Modify checks out the resource h currently names, hands it to fn, and on
// success re-commits the mutated result and rebinds h to the new digest.
// On error the original digest is preserved and the error propagates,
// per spec.md section 4.3.
func (s *Store) Modify(h *Handle, fn func(current resource.Resource) (resource.Resource, error)) error {
	current, err := s.Checkout(h.Ref())
	if err != nil {
		return err
	}
	mutated, err := fn(current)
	if err != nil {
		return err
	}
	newRef, err := s.Commit(mutated)
	if err != nil {
		return err
	}
	h.set(newRef)
	return nil
}

// NotFoundError is returned by Checkout for an absent digest.
type NotFoundError struct {
	Ref digest.Ref
}

func NewNotFoundError(ref digest.Ref) *NotFoundError {
	return &NotFoundError{Ref: ref}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: not found: %s", e.Ref)
}

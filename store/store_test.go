package store

import (
	"context"
	"os"
	"testing"

	"github.com/reachcore/journal/digest"
	"github.com/reachcore/journal/registry"
	"github.com/reachcore/journal/resource"
	"github.com/reachcore/journal/typeid"
)

type note struct {
	body string
	next resource.Value
}

func (n note) TypeID() typeid.TypeID { return typeid.For("store.note") }
func (n note) FieldNames() []string  { return []string{"body", "next"} }
func (n note) FieldValues() []resource.Value {
	return []resource.Value{resource.NewString(n.body), n.next}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	reg := registry.New()
	if _, err := reg.Register("store.note", func(fields map[string]resource.Value) (resource.Resource, error) {
		body, _ := fields["body"].AsString()
		return note{body: body, next: fields["next"]}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return New(NewMemoryBackend(), reg)
}

func TestCommitIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	r1, err := st.Commit(note{body: "hello", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	r2, err := st.Commit(note{body: "hello", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !r1.Equal(r2) {
		t.Fatalf("committing equivalent resources twice must yield equal refs: %v vs %v", r1, r2)
	}
}

func TestCheckoutRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ref, err := st.Commit(note{body: "round trip", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := st.Checkout(ref)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	n, ok := got.(note)
	if !ok {
		t.Fatalf("Checkout returned %T, want note", got)
	}
	if n.body != "round trip" {
		t.Errorf("body = %q, want %q", n.body, "round trip")
	}
}

func TestCheckoutNotFound(t *testing.T) {
	st := newTestStore(t)
	ref, err := st.Commit(note{body: "will be poisoned", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	poisoned := digest.New(ref.TypeID, digest.Compute([]byte("something else entirely")))
	_, err = st.Checkout(poisoned)
	if err == nil {
		t.Fatalf("Checkout of an uncommitted digest must fail")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %T", err)
	}
}

func TestHandleModifyChainsWithoutCycles(t *testing.T) {
	st := newTestStore(t)
	tailRef, err := st.Commit(note{body: "tail", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit tail: %v", err)
	}
	headRef, err := st.Commit(note{body: "head", next: resource.NewRef(tailRef)})
	if err != nil {
		t.Fatalf("Commit head: %v", err)
	}

	h := NewHandle(headRef)
	err = st.Modify(h, func(current resource.Resource) (resource.Resource, error) {
		n := current.(note)
		return note{body: n.body + "!", next: n.next}, nil
	})
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if h.Ref().Equal(headRef) {
		t.Fatalf("Modify must rebind the handle to a new ref")
	}

	mutated, err := st.Checkout(h.Ref())
	if err != nil {
		t.Fatalf("Checkout mutated: %v", err)
	}
	mn := mutated.(note)
	if mn.body != "head!" {
		t.Errorf("mutated body = %q, want head!", mn.body)
	}

	// Traverse the chain: head! -> tail, and it must terminate (no cycle).
	seen := map[digest.Digest]bool{}
	cur := mn
	hops := 0
	for cur.next.Kind() != resource.KindNull {
		ref, _ := cur.next.AsRef()
		if seen[ref.Digest] {
			t.Fatalf("cycle detected while traversing chain")
		}
		seen[ref.Digest] = true
		next, err := st.Checkout(ref)
		if err != nil {
			t.Fatalf("Checkout next: %v", err)
		}
		cur = next.(note)
		hops++
		if hops > 10 {
			t.Fatalf("chain traversal did not terminate")
		}
	}
	if hops != 1 {
		t.Errorf("expected exactly one hop to the tail, got %d", hops)
	}
	if cur.body != "tail" {
		t.Errorf("final node body = %q, want tail", cur.body)
	}
}

func TestModifyPreservesOriginalRefOnError(t *testing.T) {
	st := newTestStore(t)
	ref, err := st.Commit(note{body: "safe", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	h := NewHandle(ref)
	boom := errWith("modify failed")
	err = st.Modify(h, func(current resource.Resource) (resource.Resource, error) {
		return nil, boom
	})
	if err != boom {
		t.Fatalf("Modify must propagate fn's error unchanged, got %v", err)
	}
	if !h.Ref().Equal(ref) {
		t.Fatalf("a failed Modify must preserve the handle's original ref")
	}
}

func TestCheckoutDeepResolvesNestedRef(t *testing.T) {
	st := newTestStore(t)
	tailRef, err := st.Commit(note{body: "tail", next: resource.Null()})
	if err != nil {
		t.Fatalf("Commit tail: %v", err)
	}
	headRef, err := st.Commit(note{body: "head", next: resource.NewRef(tailRef)})
	if err != nil {
		t.Fatalf("Commit head: %v", err)
	}

	deep, err := st.CheckoutDeep(headRef, 1)
	if err != nil {
		t.Fatalf("CheckoutDeep: %v", err)
	}
	h := deep.(note)
	embedded, ok := h.next.AsResource()
	if !ok {
		t.Fatalf("expected next to resolve to an embedded resource, got kind %v", h.next.Kind())
	}
	if embedded.(note).body != "tail" {
		t.Errorf("embedded body = %q, want tail", embedded.(note).body)
	}
}

func TestMemoryBackendStatsAndHas(t *testing.T) {
	b := NewMemoryBackend()
	d := digest.Compute([]byte("payload"))
	if ok, _ := b.Has(d); ok {
		t.Fatalf("fresh backend must not report Has before Commit")
	}
	if err := b.Commit(d, []byte("payload")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := b.Has(d); !ok {
		t.Fatalf("Has must report true after Commit")
	}
	count, bytes, err := b.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 || bytes != int64(len("payload")) {
		t.Errorf("Stats = (%d, %d), want (1, %d)", count, bytes, len("payload"))
	}
}

func TestFileBackendCommitAndGet(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, 2)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	d := digest.Compute([]byte("on disk"))
	if err := b.Commit(d, []byte("on disk")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := b.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "on disk" {
		t.Errorf("Get = %q, want %q", got, "on disk")
	}
	// Re-commit must be a no-op, not an error.
	if err := b.Commit(d, []byte("on disk")); err != nil {
		t.Fatalf("re-Commit must be idempotent, got: %v", err)
	}
}

func TestFileBackendRejectsEmptyRoot(t *testing.T) {
	if _, err := NewFileBackend("", 2); err == nil {
		t.Fatalf("NewFileBackend must reject an empty root")
	}
}

func TestFileBackendGCRemovesOnlyTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, 0)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	d := digest.Compute([]byte("kept"))
	if err := b.Commit(d, []byte("kept")); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := os.WriteFile(dir+"/stale.tmp", []byte("debris"), 0o644); err != nil {
		t.Fatalf("write stale tmp: %v", err)
	}
	deleted, err := b.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if deleted != 1 {
		t.Errorf("GC deleted = %d, want 1", deleted)
	}
	if ok, _ := b.Has(d); !ok {
		t.Errorf("GC must never remove a live digest")
	}
}

func TestAmbientStoreStackScope(t *testing.T) {
	st := newTestStore(t)
	if _, ok := Current(); ok {
		t.Fatalf("no ambient store should be active before Scope")
	}
	err := Scope(st, func() error {
		cur, ok := Current()
		if !ok || cur != st {
			t.Fatalf("Scope must install st as the ambient store")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scope: %v", err)
	}
	if _, ok := Current(); ok {
		t.Fatalf("Scope must pop the ambient store on return")
	}
}

func TestContextStoreBinding(t *testing.T) {
	st := newTestStore(t)
	ctx := WithStore(context.Background(), st)
	got, ok := FromContext(ctx)
	if !ok || got != st {
		t.Fatalf("FromContext must retrieve the store bound by WithStore")
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("a plain context must not carry a store")
	}
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func errWith(msg string) error { return simpleError(msg) }

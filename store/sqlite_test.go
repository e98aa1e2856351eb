package store

import (
	"path/filepath"
	"testing"

	"github.com/reachcore/journal/digest"
)

func newSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackendCommitThenGet(t *testing.T) {
	b := newSQLiteBackend(t)
	packed := []byte(`{"type_id":{"name":"test.Thing","digest":"abc"},"fields":{}}`)
	d := digest.Compute(packed)

	if err := b.Commit(d, packed); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := b.Get(d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(packed) {
		t.Errorf("Get returned %q, want %q", got, packed)
	}
}

func TestSQLiteBackendCommitIsIdempotent(t *testing.T) {
	b := newSQLiteBackend(t)
	packed := []byte(`{"type_id":{"name":"test.Thing","digest":"abc"},"fields":{}}`)
	d := digest.Compute(packed)

	if err := b.Commit(d, packed); err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if err := b.Commit(d, packed); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	count, _, err := b.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after committing the same digest twice", count)
	}
}

func TestSQLiteBackendHasAndGetMiss(t *testing.T) {
	b := newSQLiteBackend(t)
	missing := digest.Compute([]byte("never committed"))

	ok, err := b.Has(missing)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if ok {
		t.Fatalf("Has reported true for an uncommitted digest")
	}
	if _, err := b.Get(missing); err != ErrNotFound {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteBackendStatsAccumulatesBytes(t *testing.T) {
	b := newSQLiteBackend(t)
	a := []byte(`{"type_id":{"name":"test.A","digest":"1"},"fields":{}}`)
	c := []byte(`{"type_id":{"name":"test.B","digest":"2"},"fields":{}}`)

	if err := b.Commit(digest.Compute(a), a); err != nil {
		t.Fatalf("Commit a: %v", err)
	}
	if err := b.Commit(digest.Compute(c), c); err != nil {
		t.Fatalf("Commit c: %v", err)
	}
	count, bytes, err := b.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if bytes != int64(len(a)+len(c)) {
		t.Errorf("bytes = %d, want %d", bytes, len(a)+len(c))
	}
}

func TestSQLiteBackendGCIsNoop(t *testing.T) {
	b := newSQLiteBackend(t)
	packed := []byte(`{"type_id":{"name":"test.Thing","digest":"abc"},"fields":{}}`)
	d := digest.Compute(packed)
	if err := b.Commit(d, packed); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	removed, err := b.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if removed != 0 {
		t.Errorf("GC removed = %d, want 0", removed)
	}
	count, _, err := b.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 1 {
		t.Errorf("GC must not remove committed resources, count = %d", count)
	}
}

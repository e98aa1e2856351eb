// Package store implements the content-addressed store: the backend
// plug-in surface, the memory/file/sqlite backends, the Store layered on
// top (commit/checkout/modify), and the ambient active-store binding.
package store

import (
	"errors"

	"github.com/reachcore/journal/digest"
)

// ErrNotFound is returned by Backend.Get for an absent digest.
var ErrNotFound = errors.New("store: digest not found")

// Backend is the storage plug-in surface (spec.md section 6): commit/has/get
// over packed resources, keyed by content digest. Implementations MUST be
// idempotent for equal content and MUST persist atomically per-digest.
type Backend interface {
	// Commit stores packed bytes under d. It is a no-op if d is already
	// present (idempotence, per spec.md section 3 invariant 4).
	Commit(d digest.Digest, packed []byte) error
	// Has reports whether d is present.
	Has(d digest.Digest) (bool, error)
	// Get returns the packed bytes for d, or ErrNotFound if absent.
	Get(d digest.Digest) ([]byte, error)
	// GC removes backend-internal debris (partial writes, stale temp
	// files) but never a live digest. Real eviction policy is out of
	// scope (spec.md Non-goals); this is a safe, conservative cleanup
	// hook only, mirroring the always-present GC method on the
	// teacher's trust.CAS without adopting its LRU/size-cap policy.
	GC() (int, error)
	// Stats reports object count and total byte size, for operational
	// visibility (SPEC_FULL.md supplemented feature), grounded on
	// trust.CAS.StatusEx.
	Stats() (count int, bytes int64, err error)
}

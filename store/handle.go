package store

import (
	"sync"

	"github.com/reachcore/journal/digest"
)

// Handle is a ref with identity, per spec.md section 4.3/9: "a handle whose
// interior is a single digest cell plus a store pointer". Modify mutates
// the handle's current digest in place; other Handle values that happened
// to share the prior digest are unaffected.
type Handle struct {
	mu      sync.Mutex
	current digest.Ref
}

func NewHandle(r digest.Ref) *Handle {
	return &Handle{current: r}
}

func (h *Handle) Ref() digest.Ref {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *Handle) set(r digest.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = r
}

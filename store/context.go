package store

import (
	"context"
	"sync"
)

// Active-store binding. spec.md section 4.3 describes a process-wide stack
// where commit/checkout without an explicit store target the topmost
// store, and section 9 warns that a systems port should prefer explicit
// context values with a stack-of-scopes helper over true global mutable
// state, since Go has no goroutine-local storage. This file provides both:
// a context.Context binding for code that threads ctx explicitly (required
// for the async engine, whose sub-invocations may run on different
// goroutines), and a package-level stack helper for the common sequential
// case, matching the teacher's contextkeys package's accessor idiom.

type ctxKey struct{}

// WithStore returns a context carrying s as the active store.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext retrieves the active store bound to ctx, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	return s, ok
}

var (
	stackMu sync.Mutex
	stack   []*Store
)

// Push installs s as the topmost store for the ambient (non-context)
// sequential API. Callers that may migrate across goroutines must use
// WithStore/FromContext instead.
func Push(s *Store) { stackMu.Lock(); stack = append(stack, s); stackMu.Unlock() }

// Pop removes the topmost store. It is a no-op if the stack is empty.
func Pop() {
	stackMu.Lock()
	defer stackMu.Unlock()
	if len(stack) == 0 {
		return
	}
	stack = stack[:len(stack)-1]
}

// Current returns the topmost ambient store, if any.
func Current() (*Store, bool) {
	stackMu.Lock()
	defer stackMu.Unlock()
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// Scope pushes s, runs fn, and pops s even if fn panics or returns an
// error — the "entering/leaving a store scope" operation from spec.md
// section 4.3.
func Scope(s *Store, fn func() error) error {
	Push(s)
	defer Pop()
	return fn()
}

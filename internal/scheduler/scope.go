package scheduler

import (
	"context"
	"sync"
)

// Scope holds the resources of a single iteration. Release functions added
// with Defer run in reverse order when the iteration returns, after which
// the scope's context is cancelled.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	releases []func()
}

func newScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context returns the iteration context.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Defer registers fn to run when the iteration ends.
func (s *Scope) Defer(fn func()) {
	s.mu.Lock()
	s.releases = append(s.releases, fn)
	s.mu.Unlock()
}

func (s *Scope) close() {
	s.mu.Lock()
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			releases[i]()
		}()
	}
	s.cancel()
}

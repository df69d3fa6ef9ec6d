package memoize

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type scopeCall struct {
	once  sync.Once
	value any
	err   error
}

// Scope deduplicates calls within one logical request or unit of work.
// Each key is invoked at most once for the life of the scope, regardless
// of call count or concurrency, with no TTL — a scope is created at
// request start and dropped at request end. Unlike Func, the outcome is
// remembered even when it is an error: "at most once" includes failures.
type Scope struct {
	id    string
	mu    sync.Mutex
	calls map[string]*scopeCall
}

// NewScope returns a fresh scope with a unique id for log correlation.
func NewScope() *Scope {
	return &Scope{
		id:    uuid.NewString(),
		calls: make(map[string]*scopeCall),
	}
}

// ID returns the scope's unique identifier.
func (s *Scope) ID() string {
	return s.id
}

// Len returns how many distinct keys the scope has seen.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Once invokes fn for key at most once within s. Every caller — including
// those waiting on an in-flight invocation — receives the same value or
// the same error. A key must be used with a single result type T per
// scope.
func Once[T any](ctx context.Context, s *Scope, key string, fn func(context.Context) (T, error)) (T, error) {
	s.mu.Lock()
	c, ok := s.calls[key]
	if !ok {
		c = &scopeCall{}
		s.calls[key] = c
	}
	s.mu.Unlock()
	c.once.Do(func() {
		c.value, c.err = fn(ctx)
	})
	if c.err != nil {
		var zero T
		return zero, c.err
	}
	return c.value.(T), nil
}

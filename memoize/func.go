package memoize

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-cache/cachekey"
	"golang.org/x/sync/singleflight"
)

type funcEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// Func memoizes a function in process memory, keyed by its argument list.
// Repeated calls with structurally equal arguments within the TTL return
// the cached result without invoking fn; concurrent first calls for the
// same arguments are coalesced into a single invocation. Errors are never
// cached.
type Func[T any] struct {
	name  string
	ttl   time.Duration
	fn    func(context.Context, ...any) (T, error)
	mu    sync.Mutex
	cache map[string]funcEntry[T]
	group singleflight.Group
}

// NewFunc wraps fn. name namespaces the generated keys so two wrappers
// over different functions never collide.
func NewFunc[T any](name string, ttl time.Duration, fn func(context.Context, ...any) (T, error)) *Func[T] {
	return &Func[T]{
		name:  name,
		ttl:   ttl,
		fn:    fn,
		cache: make(map[string]funcEntry[T]),
	}
}

// Call invokes the wrapped function, or returns the memoized result.
func (f *Func[T]) Call(ctx context.Context, args ...any) (T, error) {
	key := cachekey.Key(f.name, args...)
	if v, ok := f.lookup(key); ok {
		return v, nil
	}
	v, err, _ := f.group.Do(key, func() (any, error) {
		if v, ok := f.lookup(key); ok {
			return v, nil
		}
		result, err := f.fn(ctx, args...)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.cache[key] = funcEntry[T]{value: result, expiresAt: time.Now().Add(f.ttl)}
		f.mu.Unlock()
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (f *Func[T]) lookup(key string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[key]
	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(f.cache, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Forget drops the memoized result for the given arguments.
func (f *Func[T]) Forget(args ...any) {
	f.mu.Lock()
	delete(f.cache, cachekey.Key(f.name, args...))
	f.mu.Unlock()
}

// Reset drops every memoized result.
func (f *Func[T]) Reset() {
	f.mu.Lock()
	f.cache = make(map[string]funcEntry[T])
	f.mu.Unlock()
}

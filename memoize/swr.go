package memoize

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-cache/cachekey"
	"github.com/agentuity/go-common/logger"
	"golang.org/x/sync/singleflight"
)

// SWRConfig configures a stale-while-revalidate wrapper.
type SWRConfig struct {
	// TTL is how long a value is fresh.
	TTL time.Duration
	// StaleFor is the total lifetime of a value. Between TTL and StaleFor
	// the value is served stale while a background refresh runs; past
	// StaleFor it is gone and the next caller blocks on a refetch. Values
	// <= TTL disable the stale window.
	StaleFor time.Duration
	// KeyPrefix namespaces the generated keys.
	KeyPrefix string
	// Logger records background refresh failures. Defaults to a console
	// logger.
	Logger logger.Logger
}

type swrEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// SWR wraps a function with stale-while-revalidate semantics. Per key the
// state machine is EMPTY → FRESH (age < TTL) → STALE (TTL <= age <
// StaleFor) → EMPTY (age >= StaleFor):
//
//   - FRESH: the cached value is returned, no I/O.
//   - STALE: the cached value is returned immediately and exactly one
//     background refresh is started for that key; concurrent stale readers
//     observe the refresh in flight and do not start another. A failed
//     refresh keeps the stale value and logs.
//   - EMPTY: the caller blocks on a synchronous fetch (coalesced across
//     concurrent callers).
type SWR[T any] struct {
	ctx        context.Context
	cfg        SWRConfig
	fn         func(context.Context, ...any) (T, error)
	mu         sync.Mutex
	entries    map[string]swrEntry[T]
	refreshing map[string]struct{}
	group      singleflight.Group
	wg         sync.WaitGroup
}

// NewSWR wraps fn. Background refreshes run under parent, so cancelling it
// stops revalidation at shutdown; Wait blocks until in-flight refreshes
// finish.
func NewSWR[T any](parent context.Context, cfg SWRConfig, fn func(context.Context, ...any) (T, error)) *SWR[T] {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewConsoleLogger()
	}
	if cfg.StaleFor < cfg.TTL {
		cfg.StaleFor = cfg.TTL
	}
	return &SWR[T]{
		ctx:        parent,
		cfg:        cfg,
		fn:         fn,
		entries:    make(map[string]swrEntry[T]),
		refreshing: make(map[string]struct{}),
	}
}

// Call returns the cached value per the state machine above, fetching
// synchronously only when no usable value exists.
func (s *SWR[T]) Call(ctx context.Context, args ...any) (T, error) {
	key := cachekey.Key(s.cfg.KeyPrefix, args...)
	now := time.Now()
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		age := now.Sub(e.fetchedAt)
		if age < s.cfg.TTL {
			s.mu.Unlock()
			return e.value, nil
		}
		if age < s.cfg.StaleFor {
			if _, busy := s.refreshing[key]; !busy {
				s.refreshing[key] = struct{}{}
				s.wg.Add(1)
				go s.refresh(key, args)
			}
			s.mu.Unlock()
			return e.value, nil
		}
		delete(s.entries, key)
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (any, error) {
		// A coalesced caller may find the winner's value already stored.
		s.mu.Lock()
		if e, ok := s.entries[key]; ok && time.Since(e.fetchedAt) < s.cfg.TTL {
			s.mu.Unlock()
			return e.value, nil
		}
		s.mu.Unlock()
		start := time.Now()
		result, err := s.fn(ctx, args...)
		if err != nil {
			return nil, err
		}
		s.store(key, result, start)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget drops the entry for the given arguments.
func (s *SWR[T]) Forget(args ...any) {
	s.mu.Lock()
	delete(s.entries, cachekey.Key(s.cfg.KeyPrefix, args...))
	s.mu.Unlock()
}

// Wait blocks until all in-flight background refreshes complete.
func (s *SWR[T]) Wait() {
	s.wg.Wait()
}

// store records a fetch result. A fetch that started before the current
// entry was written lost the race to a newer fetch and must not clobber
// it, so its result is dropped.
func (s *SWR[T]) store(key string, value T, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.fetchedAt.After(start) {
		return
	}
	s.entries[key] = swrEntry[T]{value: value, fetchedAt: time.Now()}
}

func (s *SWR[T]) refresh(key string, args []any) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.refreshing, key)
		s.mu.Unlock()
	}()
	start := time.Now()
	result, err := s.fn(s.ctx, args...)
	if err != nil {
		s.cfg.Logger.Warn("background refresh for %s failed, keeping stale value: %s", key, err)
		return
	}
	s.store(key, result, start)
}

package memoize

import (
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-cache/cache"
)

// Tagged layers tag-addressable invalidation over a [cache.Manager].
// Every cached key registers under one or more tags; invalidating a tag
// deletes all of its keys from both tiers in one call, without callers
// enumerating concrete keys. The tag index itself is in-process only —
// cross-process invalidation broadcast is out of scope.
type Tagged struct {
	manager *cache.Manager
	mu      sync.Mutex
	byTag   map[string]map[string]struct{}
}

// NewTagged returns a tag index over m.
func NewTagged(m *cache.Manager) *Tagged {
	return &Tagged{
		manager: m,
		byTag:   make(map[string]map[string]struct{}),
	}
}

// Do is cache-aside through the underlying Manager (both tiers,
// singleflight on miss), registering key under tags on success.
func Do[T any](ctx context.Context, t *Tagged, key string, tags []string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	v, err := cache.Memoize(ctx, t.manager, key, fn, cache.WithTTL(ttl))
	if err != nil {
		return v, err
	}
	t.register(key, tags)
	return v, nil
}

func (t *Tagged) register(key string, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tag := range tags {
		keys, ok := t.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate deletes every key registered under the given tags from both
// tiers, returning how many keys were deleted. A key registered under
// several tags is removed from all of them.
func (t *Tagged) Invalidate(ctx context.Context, tags ...string) int {
	t.mu.Lock()
	doomed := make(map[string]struct{})
	for _, tag := range tags {
		for key := range t.byTag[tag] {
			doomed[key] = struct{}{}
		}
		delete(t.byTag, tag)
	}
	for _, keys := range t.byTag {
		for key := range doomed {
			delete(keys, key)
		}
	}
	t.mu.Unlock()
	for key := range doomed {
		t.manager.Delete(ctx, key)
	}
	return len(doomed)
}

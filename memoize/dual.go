package memoize

import (
	"context"
	"time"
)

// Dual composes request-scoped deduplication over tag-addressable
// persistent caching: within one scope the fetch happens at most once, and
// across scopes the result lives in the Manager-backed cache until its TTL
// lapses or a tag is invalidated. One physical fetch serves both.
func Dual[T any](ctx context.Context, s *Scope, t *Tagged, key string, tags []string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return Once(ctx, s, key, func(ctx context.Context) (T, error) {
		return Do(ctx, t, key, tags, ttl, fn)
	})
}

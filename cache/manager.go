package cache

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// fallbackEntrySize is the accounted local size for values that msgpack
// cannot serialize. Their true footprint is unknown; they still count
// toward the entry bound.
const fallbackEntrySize = 256

// Manager orchestrates the two tiers. Reads consult the local tier first
// and fall through to the remote tier, promoting remote hits into the
// local tier with their remaining TTL. Writes go to the local tier
// synchronously and to the remote tier best-effort: a missing, slow, or
// failing remote degrades the cache to local-only and is never surfaced to
// callers as an error.
type Manager struct {
	local  *LocalTier
	remote *RemoteTier // nil in local-only mode
	log    logger.Logger
	cfg    config
	group  singleflight.Group
}

// NewManager builds a Manager over the given tiers. remote may be nil for
// local-only operation. Construct one Manager per process at startup and
// inject it into consumers; tests build isolated instances the same way.
func NewManager(local *LocalTier, remote *RemoteTier, log logger.Logger, opts ...Option) *Manager {
	return &Manager{
		local:  local,
		remote: remote,
		log:    log.WithPrefix("[cache]"),
		cfg:    applyOptions(opts),
	}
}

// Close stops the local tier's background sweep and releases the remote
// tier. Cached entries are not flushed.
func (m *Manager) Close() error {
	m.local.Stop()
	if m.remote != nil {
		return m.remote.Close()
	}
	return nil
}

// Local exposes the local tier, primarily for tests and stats.
func (m *Manager) Local() *LocalTier {
	return m.local
}

// RemoteAvailable reports whether a remote tier is configured and
// currently reachable.
func (m *Manager) RemoteAvailable() bool {
	return m.remote != nil && m.remote.Available()
}

// Get returns the cached value for key, or (nil, false) on miss. A remote
// hit is promoted into the local tier with the entry's remaining TTL; its
// value comes back as the raw serialized []byte — use the generic Get
// helper for typed access.
func (m *Manager) Get(ctx context.Context, key string, opts ...ItemOption) (any, bool) {
	k := applyItemOptions(opts).resolve(key)
	if v, ok := m.local.Get(k); ok {
		return v, true
	}
	if m.remote == nil {
		return nil, false
	}
	entry, st := m.remote.Get(ctx, k)
	if st != StatusHit {
		return nil, false
	}
	if remaining := time.Until(entry.ExpiresAt); remaining > 0 {
		m.local.Set(k, entry.Value, remaining, entry.Size)
	}
	return entry.Value, true
}

// Set stores value in both tiers. The local write always succeeds; the
// remote write is skipped when the value cannot be serialized or the tier
// is unavailable. TTL defaults to the Manager's configured default.
func (m *Manager) Set(ctx context.Context, key string, value any, opts ...ItemOption) {
	o := applyItemOptions(opts)
	k := o.resolve(key)
	ttl := o.ttl
	if ttl <= 0 {
		ttl = m.cfg.defaultTTL
	}
	data, err := msgpack.Marshal(value)
	size := int64(len(data))
	if err != nil {
		m.log.Warn("value for %s is not serializable, caching locally only: %s", k, err)
		size = fallbackEntrySize
	}
	now := time.Now()
	m.local.Set(k, value, ttl, size)
	if m.remote != nil && err == nil {
		if st := m.remote.Set(ctx, k, data, now, now.Add(ttl)); st == StatusError {
			m.log.Warn("remote write for %s failed", k)
		}
	}
}

// Delete removes key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string, opts ...ItemOption) {
	k := applyItemOptions(opts).resolve(key)
	m.local.Delete(k)
	if m.remote != nil {
		m.remote.Delete(ctx, k)
	}
}

// Clear flushes both tiers. With a namespace, only keys under
// "namespace:" are removed; other namespaces are untouched.
func (m *Manager) Clear(ctx context.Context, namespace string) {
	if namespace == "" {
		m.local.Clear()
		if m.remote != nil {
			m.remote.Clear(ctx, "*")
		}
		return
	}
	prefix := namespace + ":"
	for _, k := range m.local.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.local.Delete(k)
		}
	}
	if m.remote != nil {
		m.remote.Clear(ctx, prefix+"*")
	}
}

// InvalidatePattern removes every key matching re from both tiers. The
// remote pass is best-effort: with the remote tier down, remote keys
// remain and age out through their own TTLs.
func (m *Manager) InvalidatePattern(ctx context.Context, re *regexp.Regexp) int {
	removed := 0
	for _, k := range m.local.Keys() {
		if re.MatchString(k) {
			if m.local.Delete(k) {
				removed++
			}
		}
	}
	if m.remote != nil {
		keys, st := m.remote.Keys(ctx, "*")
		if st == StatusHit {
			for _, k := range keys {
				if re.MatchString(k) {
					if m.remote.Delete(ctx, k) == StatusHit {
						removed++
					}
				}
			}
		}
	}
	return removed
}

// Memoize is cache-aside with thundering-herd suppression: on a miss,
// concurrent callers for the same key are coalesced into one invocation of
// fn, and every caller receives its value or its error. Errors are never
// cached. Use the generic Memoize helper for typed access.
func (m *Manager) Memoize(ctx context.Context, key string, fn func(context.Context) (any, error), opts ...ItemOption) (any, error) {
	if v, ok := m.Get(ctx, key, opts...); ok {
		return v, nil
	}
	k := applyItemOptions(opts).resolve(key)
	v, err, _ := m.group.Do(k, func() (any, error) {
		// A coalesced caller may arrive after the winner populated the cache.
		if v, ok := m.Get(ctx, key, opts...); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(ctx, key, v, opts...)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Get retrieves a typed value. Locally cached values are returned by type
// assertion; values promoted from the remote tier arrive as msgpack []byte
// and are deserialized here. A value that cannot be decoded as T is
// treated as a miss.
func Get[T any](ctx context.Context, m *Manager, key string, opts ...ItemOption) (T, bool) {
	v, ok := m.Get(ctx, key, opts...)
	if !ok {
		var zero T
		return zero, false
	}
	return decode[T](m, key, v)
}

// Memoize is the typed form of Manager.Memoize.
func Memoize[T any](ctx context.Context, m *Manager, key string, fn func(context.Context) (T, error), opts ...ItemOption) (T, error) {
	v, err := m.Memoize(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := decode[T](m, key, v)
	if !ok {
		// Undecodable cached bytes; recompute uncached rather than fail.
		return fn(ctx)
	}
	return typed, nil
}

func decode[T any](m *Manager, key string, v any) (T, bool) {
	if typed, ok := v.(T); ok {
		return typed, true
	}
	if data, ok := v.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			m.log.Warn("cannot deserialize cached value for %s: %s", key, err)
			var zero T
			return zero, false
		}
		return result, true
	}
	var zero T
	m.log.Warn("cached value for %s has unexpected type %T", key, v)
	return zero, false
}

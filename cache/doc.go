// Package cache implements a two-tier caching layer: a bounded in-process
// LRU tier in front of an optional shared redis tier.
//
// # Tiers
//
//   - [LocalTier] — in-process map + LRU list, bounded by entry count and
//     accounted byte size. Eviction runs synchronously inside Set; expired
//     entries are dropped lazily on Get and by a background sweep with an
//     explicit Start/Stop lifecycle.
//
//   - [RemoteTier] — shared redis tier using [github.com/redis/go-redis/v9].
//     Values travel as msgpack envelopes carrying their own expiry, so a
//     reader can compute remaining TTL without a second round trip.
//     Operations return a typed [Status] rather than errors; connectivity
//     failures mark the tier unavailable, after which every call
//     short-circuits without I/O until a connection-state callback or the
//     background probe restores it.
//
// # Manager
//
// [Manager] composes the tiers: Get consults local first and promotes
// remote hits into local with their remaining TTL; Set writes local
// synchronously and remote best-effort. Remote problems degrade
// performance, never correctness — no cache-internal error ever reaches a
// caller. [Manager.Memoize] is cache-aside with singleflight coalescing so
// a miss storm invokes the loader exactly once per key.
//
// The Manager stores values as [any]; the package-level generic helpers
// [Get] and [Memoize] provide typed access, deserializing remote-sourced
// []byte via msgpack transparently.
//
// # Invalidation
//
// Keys can be removed directly (Delete), by namespace prefix (Clear), or
// by regular expression (InvalidatePattern). [DependencyTracker] supports
// invalidation-by-relationship: derived keys embed a dependency version
// and become unreachable the moment the version is bumped.
//
// Configuration comes from the environment via [LoadConfig]; see [Config]
// for the variables. [New] assembles a running Manager from a Config.
package cache

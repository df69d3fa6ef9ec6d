// Package memoize provides function-wrapping caching strategies layered
// on the cache package: in-memory memoization keyed by argument list
// ([Func]), request-scoped call deduplication ([Scope] and [Once]),
// tag-addressable persistent caching ([Tagged]), a combinator giving both
// per-request and cross-request semantics from one fetch ([Dual]), and
// stale-while-revalidate ([SWR]).
//
// All strategies suppress thundering herds: concurrent callers that would
// compute the same key are coalesced into a single invocation of the
// wrapped function, and loader errors propagate to callers uncached.
package memoize

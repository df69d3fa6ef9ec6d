package cache

import (
	"time"
)

// Status is the typed outcome of a tier operation. Tier-internal errors
// never cross the Manager boundary as Go errors; they surface as a Status
// and a log line.
type Status int

const (
	// StatusHit means the operation found (or stored) a live entry.
	StatusHit Status = iota
	// StatusMiss means no live entry exists for the key.
	StatusMiss
	// StatusUnavailable means the tier is unreachable and the operation was
	// short-circuited without I/O.
	StatusUnavailable
	// StatusError means the operation failed (I/O or serialization).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMiss:
		return "miss"
	case StatusUnavailable:
		return "unavailable"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a stored cache value with its lifetime bookkeeping. Entries are
// owned by the tier that holds them; the remote tier hands back independent
// copies, never shared references.
type Entry struct {
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
	Size      int64
}

// DefaultTTL is used by Set when no TTL is given.
const DefaultTTL = 5 * time.Minute

// DefaultQueryTimeout bounds every remote-tier operation so an unreachable
// or slow remote degrades latency by at most this much.
const DefaultQueryTimeout = 5 * time.Second

// DefaultSweepInterval is the period of the local tier's background
// expired-entry sweep.
const DefaultSweepInterval = time.Minute

// DefaultProbeInterval is how often an unavailable remote tier is probed
// for recovery.
const DefaultProbeInterval = 5 * time.Second

const (
	// DefaultMaxEntries bounds the local tier entry count.
	DefaultMaxEntries = 10000
	// DefaultMaxBytes bounds the local tier's accounted size.
	DefaultMaxBytes = 64 << 20
)

type config struct {
	defaultTTL    time.Duration
	queryTimeout  time.Duration
	sweepInterval time.Duration
	probeInterval time.Duration
	maxEntries    int
	maxBytes      int64
	prefix        string
}

// Option configures a tier or Manager.
type Option func(*config)

func defaultConfig() config {
	return config{
		defaultTTL:    DefaultTTL,
		queryTimeout:  DefaultQueryTimeout,
		sweepInterval: DefaultSweepInterval,
		probeInterval: DefaultProbeInterval,
		maxEntries:    DefaultMaxEntries,
		maxBytes:      DefaultMaxBytes,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithDefaultTTL sets the TTL applied when Set is called without one.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithQueryTimeout sets the per-operation timeout for the remote tier.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithSweepInterval sets the interval of the local tier's background
// expired-entry sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithProbeInterval sets how often an unavailable remote tier is re-probed.
func WithProbeInterval(d time.Duration) Option {
	return func(c *config) { c.probeInterval = d }
}

// WithMaxEntries sets the local tier's maximum entry count.
func WithMaxEntries(n int) Option {
	return func(c *config) { c.maxEntries = n }
}

// WithMaxBytes sets the local tier's maximum cumulative accounted size.
func WithMaxBytes(n int64) Option {
	return func(c *config) { c.maxBytes = n }
}

// WithPrefix sets a key prefix applied by the remote tier, for sharing a
// redis instance between applications.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

type itemOptions struct {
	ttl       time.Duration
	namespace string
}

// ItemOption configures a single Manager operation.
type ItemOption func(*itemOptions)

// WithTTL sets the TTL for a Set or Memoize. Zero or negative means the
// Manager's default.
func WithTTL(d time.Duration) ItemOption {
	return func(o *itemOptions) { o.ttl = d }
}

// WithNamespace prefixes the key with "namespace:", scoping it for
// namespace-wide Clear.
func WithNamespace(ns string) ItemOption {
	return func(o *itemOptions) { o.namespace = ns }
}

func applyItemOptions(opts []ItemOption) itemOptions {
	var o itemOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o itemOptions) resolve(key string) string {
	if o.namespace == "" {
		return key
	}
	return o.namespace + ":" + key
}

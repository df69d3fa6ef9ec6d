package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/agentuity/go-common/logger"
)

// sweepBatchSize bounds how many keys the background sweep inspects per
// lock acquisition so concurrent Get/Set are never blocked behind a full
// table scan.
const sweepBatchSize = 128

type localEntry struct {
	key       string
	value     any
	createdAt time.Time
	expiresAt time.Time
	size      int64
}

// LocalTier is the bounded in-process tier: LRU eviction over both an entry
// count and a cumulative accounted byte size, per-entry TTL with lazy
// expiry on read, and an optional background sweep for entries that are
// never read again. All operations are non-blocking (no I/O).
type LocalTier struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logger.Logger
	cfg    config

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	bytes   int64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLocalTier returns a local tier bounded by the configured maximum entry
// count and byte size. The background sweep does not run until Start is
// called; lazy expiry on Get works regardless.
func NewLocalTier(parent context.Context, log logger.Logger, opts ...Option) *LocalTier {
	ctx, cancel := context.WithCancel(parent)
	return &LocalTier{
		ctx:     ctx,
		cancel:  cancel,
		log:     log.WithPrefix("[cache:local]"),
		cfg:     applyOptions(opts),
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Start launches the background expired-entry sweep. Safe to call once;
// subsequent calls are no-ops.
func (t *LocalTier) Start() {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.sweepLoop()
	})
}

// Stop terminates the background sweep and waits for it to exit. Entries
// are retained; Stop only ends background work.
func (t *LocalTier) Stop() {
	t.stopOnce.Do(func() {
		t.cancel()
		t.wg.Wait()
	})
}

// Get returns the live value for key, updating its recency. An entry past
// its expiry is removed as a side effect and reported as a miss.
func (t *LocalTier) Get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	el, ok := t.entries[key]
	if !ok {
		recordMiss(t.ctx, tierLocal)
		return nil, false
	}
	e := el.Value.(*localEntry)
	if time.Now().After(e.expiresAt) {
		t.removeLocked(el)
		recordMiss(t.ctx, tierLocal)
		return nil, false
	}
	t.lru.MoveToFront(el)
	recordHit(t.ctx, tierLocal)
	return e.value, true
}

// Set inserts or overwrites key, evicting least-recently-used entries as
// needed to stay within the configured bounds. Eviction happens
// synchronously inside the call. If ttl <= 0 the configured default is
// used. size is the caller's accounting of the value's footprint.
func (t *LocalTier) Set(key string, value any, ttl time.Duration, size int64) {
	if ttl <= 0 {
		ttl = t.cfg.defaultTTL
	}
	if t.cfg.maxBytes > 0 && size > t.cfg.maxBytes {
		// Larger than the whole tier; storing it would just evict everything.
		t.log.Debug("refusing entry %s: size %d exceeds tier capacity %d", key, size, t.cfg.maxBytes)
		return
	}
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.entries[key]; ok {
		e := el.Value.(*localEntry)
		t.bytes += size - e.size
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		e.size = size
		t.lru.MoveToFront(el)
	} else {
		e := &localEntry{key: key, value: value, createdAt: now, expiresAt: now.Add(ttl), size: size}
		t.entries[key] = t.lru.PushFront(e)
		t.bytes += size
	}
	t.evictLocked()
}

// Delete removes key, reporting whether it was present.
func (t *LocalTier) Delete(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	el, ok := t.entries[key]
	if ok {
		t.removeLocked(el)
	}
	return ok
}

// Clear removes every entry.
func (t *LocalTier) Clear() {
	t.mu.Lock()
	t.entries = make(map[string]*list.Element)
	t.lru.Init()
	t.bytes = 0
	t.mu.Unlock()
}

// Keys returns a snapshot of all stored keys, live or not.
func (t *LocalTier) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the current entry count.
func (t *LocalTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// SizeBytes returns the current accounted size.
func (t *LocalTier) SizeBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

func (t *LocalTier) removeLocked(el *list.Element) {
	e := el.Value.(*localEntry)
	t.lru.Remove(el)
	delete(t.entries, e.key)
	t.bytes -= e.size
}

// evictLocked drops LRU entries until both bounds hold.
func (t *LocalTier) evictLocked() {
	for (t.cfg.maxEntries > 0 && len(t.entries) > t.cfg.maxEntries) ||
		(t.cfg.maxBytes > 0 && t.bytes > t.cfg.maxBytes) {
		el := t.lru.Back()
		if el == nil {
			return
		}
		e := el.Value.(*localEntry)
		t.removeLocked(el)
		recordEviction(t.ctx)
		if t.log.IsDebugEnabled() {
			t.log.Debug("evicted %s (%d bytes)", e.key, e.size)
		}
	}
}

func (t *LocalTier) sweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// sweep removes expired entries in small batches. It snapshots the key set
// first and then re-checks each key under a short-lived lock, so a large
// table never blocks concurrent readers for its full scan.
func (t *LocalTier) sweep() {
	keys := t.Keys()
	now := time.Now()
	removed := 0
	for start := 0; start < len(keys); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(keys))
		t.mu.Lock()
		for _, key := range keys[start:end] {
			if el, ok := t.entries[key]; ok {
				if el.Value.(*localEntry).expiresAt.Before(now) {
					t.removeLocked(el)
					removed++
				}
			}
		}
		t.mu.Unlock()
	}
	if removed > 0 && t.log.IsDebugEnabled() {
		t.log.Debug("sweep removed %d expired entries", removed)
	}
}

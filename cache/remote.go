package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// wireEntry is the msgpack envelope stored in redis. The entry carries its
// own expiry so a reader can compute the remaining TTL without consulting
// redis TTL state; redis expiry is set as well so unread entries are
// reclaimed server-side.
type wireEntry struct {
	Value     []byte `msgpack:"v"`
	CreatedAt int64  `msgpack:"c"` // unix milliseconds
	ExpiresAt int64  `msgpack:"e"`
}

// RemoteTier adapts a shared redis instance as the second cache tier.
// Every operation returns a Status instead of an error: connectivity
// problems mark the tier unavailable and are logged, never propagated.
// While unavailable, all operations short-circuit without I/O; a
// background probe (and the client's connect callback, when the tier is
// built via DialRemoteTier) restores availability.
type RemoteTier struct {
	ctx        context.Context
	client     *redis.Client
	ownsClient bool
	log        logger.Logger
	cfg        config
	available  atomic.Bool
	probing    atomic.Bool
}

// NewRemoteTier wraps an existing redis client. The caller owns the client
// lifecycle. Construction probes connectivity once; failure leaves the
// tier unavailable rather than returning an error.
func NewRemoteTier(ctx context.Context, client *redis.Client, log logger.Logger, opts ...Option) *RemoteTier {
	t := &RemoteTier{
		ctx:    ctx,
		client: client,
		log:    log.WithPrefix("[cache:remote]"),
		cfg:    applyOptions(opts),
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	if err := client.Ping(qctx).Err(); err != nil {
		t.log.Warn("initial connectivity probe failed, starting unavailable: %s", err)
		t.startProbe()
	} else {
		t.available.Store(true)
	}
	return t
}

// DialRemoteTier builds a redis client from a connection URL and wraps it.
// The returned tier owns the client. An invalid URL is a configuration
// error and is returned; an unreachable server is not — the tier starts
// unavailable and recovers on its own.
func DialRemoteTier(ctx context.Context, url string, log logger.Logger, opts ...Option) (*RemoteTier, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "cache: invalid redis url")
	}
	t := &RemoteTier{
		ctx:        ctx,
		ownsClient: true,
		log:        log.WithPrefix("[cache:remote]"),
		cfg:        applyOptions(opts),
	}
	// Connection-state callback: any freshly established connection means
	// the server is reachable again.
	ropts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		if t.available.CompareAndSwap(false, true) {
			t.log.Info("remote tier available")
		}
		return nil
	}
	t.client = redis.NewClient(ropts)
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	if err := t.client.Ping(qctx).Err(); err != nil {
		t.log.Warn("initial connectivity probe failed, starting unavailable: %s", err)
		t.startProbe()
	}
	return t, nil
}

// Available reports whether the tier is currently reachable.
func (t *RemoteTier) Available() bool {
	return t.available.Load()
}

// Close releases the underlying client when the tier owns it (built via
// DialRemoteTier). For caller-supplied clients it is a no-op.
func (t *RemoteTier) Close() error {
	if t.ownsClient {
		return t.client.Close()
	}
	return nil
}

func (t *RemoteTier) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.cfg.queryTimeout)
}

func (t *RemoteTier) prefixKey(key string) string {
	if t.cfg.prefix == "" {
		return key
	}
	return t.cfg.prefix + ":" + key
}

func (t *RemoteTier) stripPrefix(key string) string {
	if t.cfg.prefix == "" {
		return key
	}
	return key[len(t.cfg.prefix)+1:]
}

// Get fetches key. The returned Entry's Value is the raw msgpack []byte of
// the stored value; deserialization into a concrete type happens at the
// generic helpers. An entry found past its own expiry is deleted remotely
// and reported as a miss.
func (t *RemoteTier) Get(ctx context.Context, key string) (Entry, Status) {
	if !t.available.Load() {
		return Entry{}, StatusUnavailable
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	data, err := t.client.Get(qctx, t.prefixKey(key)).Bytes()
	if err == redis.Nil {
		recordMiss(ctx, tierRemote)
		return Entry{}, StatusMiss
	}
	if err != nil {
		return Entry{}, t.fail("get", err)
	}
	var we wireEntry
	if err := msgpack.Unmarshal(data, &we); err != nil {
		t.log.Error("undecodable entry for %s, deleting: %s", key, err)
		t.client.Del(qctx, t.prefixKey(key))
		return Entry{}, StatusError
	}
	entry := Entry{
		Value:     we.Value,
		CreatedAt: time.UnixMilli(we.CreatedAt),
		ExpiresAt: time.UnixMilli(we.ExpiresAt),
		Size:      int64(len(we.Value)),
	}
	if time.Now().After(entry.ExpiresAt) {
		t.client.Del(qctx, t.prefixKey(key))
		recordMiss(ctx, tierRemote)
		return Entry{}, StatusMiss
	}
	recordHit(ctx, tierRemote)
	return entry, StatusHit
}

// Set stores the pre-serialized value with the given lifetime.
func (t *RemoteTier) Set(ctx context.Context, key string, value []byte, createdAt, expiresAt time.Time) Status {
	if !t.available.Load() {
		return StatusUnavailable
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return StatusHit
	}
	data, err := msgpack.Marshal(wireEntry{
		Value:     value,
		CreatedAt: createdAt.UnixMilli(),
		ExpiresAt: expiresAt.UnixMilli(),
	})
	if err != nil {
		t.log.Error("cannot serialize entry for %s: %s", key, err)
		return StatusError
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	if err := t.client.Set(qctx, t.prefixKey(key), data, ttl).Err(); err != nil {
		return t.fail("set", err)
	}
	return StatusHit
}

// Delete removes key. Deleting an absent key is a miss, not an error.
func (t *RemoteTier) Delete(ctx context.Context, key string) Status {
	if !t.available.Load() {
		return StatusUnavailable
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	n, err := t.client.Del(qctx, t.prefixKey(key)).Result()
	if err != nil {
		return t.fail("delete", err)
	}
	if n == 0 {
		return StatusMiss
	}
	return StatusHit
}

// Keys returns all keys matching the glob pattern (redis MATCH syntax),
// with the tier prefix stripped.
func (t *RemoteTier) Keys(ctx context.Context, match string) ([]string, Status) {
	if !t.available.Load() {
		return nil, StatusUnavailable
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	iter := t.client.Scan(qctx, 0, t.prefixKey(match), 256).Iterator()
	var keys []string
	for iter.Next(qctx) {
		keys = append(keys, t.stripPrefix(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, t.fail("keys", err)
	}
	return keys, StatusHit
}

// Clear deletes every key matching the glob pattern ("*" for all).
func (t *RemoteTier) Clear(ctx context.Context, match string) Status {
	keys, st := t.Keys(ctx, match)
	if st != StatusHit {
		return st
	}
	if len(keys) == 0 {
		return StatusHit
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = t.prefixKey(k)
	}
	qctx, cancel := t.queryCtx(ctx)
	defer cancel()
	if err := t.client.Del(qctx, prefixed...).Err(); err != nil {
		return t.fail("clear", err)
	}
	return StatusHit
}

// fail records an operation failure, marks the tier unavailable, and kicks
// off the recovery probe. Callers treat the result as a degraded miss.
func (t *RemoteTier) fail(op string, err error) Status {
	recordRemoteFailure(t.ctx, op)
	if t.available.CompareAndSwap(true, false) {
		t.log.Warn("remote tier unavailable after %s failure: %s", op, err)
		t.startProbe()
	}
	return StatusUnavailable
}

// startProbe pings the server at the configured interval until it answers,
// then marks the tier available. At most one probe goroutine runs at a
// time, and only while the tier is down.
func (t *RemoteTier) startProbe() {
	if !t.probing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer t.probing.Store(false)
		ticker := time.NewTicker(t.cfg.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if t.available.Load() {
					return
				}
				qctx, cancel := t.queryCtx(t.ctx)
				err := t.client.Ping(qctx).Err()
				cancel()
				if err == nil {
					if t.available.CompareAndSwap(false, true) {
						t.log.Info("remote tier available")
					}
					return
				}
			}
		}
	}()
}

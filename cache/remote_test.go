package cache

import (
	"context"
	"testing"
	"time"

	"github.com/agentuity/go-common/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestRemote(t *testing.T, opts ...Option) (*miniredis.Miniredis, *RemoteTier) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	tier := NewRemoteTier(context.Background(), client, logger.NewTestLogger(), opts...)
	return mr, tier
}

func TestRemoteSetGet(t *testing.T) {
	_, tier := newTestRemote(t)
	ctx := context.Background()
	assert.True(t, tier.Available())

	_, st := tier.Get(ctx, "missing")
	assert.Equal(t, StatusMiss, st)

	payload, err := msgpack.Marshal("hello")
	require.NoError(t, err)
	now := time.Now()
	st = tier.Set(ctx, "k", payload, now, now.Add(time.Minute))
	assert.Equal(t, StatusHit, st)

	entry, st := tier.Get(ctx, "k")
	require.Equal(t, StatusHit, st)
	assert.Equal(t, payload, entry.Value)
	assert.WithinDuration(t, now.Add(time.Minute), entry.ExpiresAt, 50*time.Millisecond)

	st = tier.Delete(ctx, "k")
	assert.Equal(t, StatusHit, st)
	st = tier.Delete(ctx, "k")
	assert.Equal(t, StatusMiss, st)
}

func TestRemoteExpiredEntryRemoved(t *testing.T) {
	mr, tier := newTestRemote(t)
	ctx := context.Background()

	// An entry whose embedded expiry has passed must read as a miss and be
	// deleted, even if redis has not reclaimed it yet.
	data, err := msgpack.Marshal(wireEntry{
		Value:     []byte("stale"),
		CreatedAt: time.Now().Add(-2 * time.Minute).UnixMilli(),
		ExpiresAt: time.Now().Add(-time.Minute).UnixMilli(),
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("k", string(data)))

	_, st := tier.Get(ctx, "k")
	assert.Equal(t, StatusMiss, st)
	assert.False(t, mr.Exists("k"))
}

func TestRemoteUnavailableShortCircuits(t *testing.T) {
	mr, tier := newTestRemote(t, WithQueryTimeout(200*time.Millisecond))
	ctx := context.Background()
	mr.Close()

	_, st := tier.Get(ctx, "k")
	assert.Equal(t, StatusUnavailable, st)
	assert.False(t, tier.Available())

	// Subsequent calls never reach the network.
	start := time.Now()
	_, st = tier.Get(ctx, "k")
	assert.Equal(t, StatusUnavailable, st)
	assert.Equal(t, StatusUnavailable, tier.Set(ctx, "k", []byte("v"), time.Now(), time.Now().Add(time.Minute)))
	assert.Equal(t, StatusUnavailable, tier.Delete(ctx, "k"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRemoteStartsUnavailableWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	tier := NewRemoteTier(context.Background(), client, logger.NewTestLogger(),
		WithQueryTimeout(200*time.Millisecond), WithProbeInterval(time.Hour))
	assert.False(t, tier.Available())
	_, st := tier.Get(context.Background(), "k")
	assert.Equal(t, StatusUnavailable, st)
}

func TestRemoteRecoveryProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	tier := NewRemoteTier(context.Background(), client, logger.NewTestLogger(),
		WithQueryTimeout(200*time.Millisecond), WithProbeInterval(20*time.Millisecond))
	require.True(t, tier.Available())

	mr.Close()
	_, st := tier.Get(context.Background(), "k")
	require.Equal(t, StatusUnavailable, st)

	// Bring the server back on the same address; the probe should notice
	// without any caller traffic.
	mr2 := miniredis.NewMiniRedis()
	require.NoError(t, mr2.StartAddr(addr))
	defer mr2.Close()
	assert.Eventually(t, tier.Available, 2*time.Second, 20*time.Millisecond)
}

func TestRemoteKeysAndClearWithPrefix(t *testing.T) {
	mr, tier := newTestRemote(t, WithPrefix("app"))
	ctx := context.Background()
	now := time.Now()
	payload, _ := msgpack.Marshal(1)
	tier.Set(ctx, "user:1", payload, now, now.Add(time.Minute))
	tier.Set(ctx, "user:2", payload, now, now.Add(time.Minute))
	tier.Set(ctx, "post:1", payload, now, now.Add(time.Minute))

	assert.True(t, mr.Exists("app:user:1"))

	keys, st := tier.Keys(ctx, "user:*")
	require.Equal(t, StatusHit, st)
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, keys)

	assert.Equal(t, StatusHit, tier.Clear(ctx, "user:*"))
	_, st = tier.Get(ctx, "user:1")
	assert.Equal(t, StatusMiss, st)
	_, st = tier.Get(ctx, "post:1")
	assert.Equal(t, StatusHit, st)
}

package memoize

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-cache/cache"
	"github.com/agentuity/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *cache.Manager {
	t.Helper()
	log := logger.NewTestLogger()
	m := cache.NewManager(cache.NewLocalTier(context.Background(), log), nil, log)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestTaggedDoCachesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	tagged := NewTagged(newTestManager(t))
	var calls atomic.Int32

	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "roster", nil
	}

	v, err := Do(ctx, tagged, "team:1:roster", []string{"team:1"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "roster", v)
	v, err = Do(ctx, tagged, "team:1:roster", []string{"team:1"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "roster", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTaggedInvalidate(t *testing.T) {
	ctx := context.Background()
	tagged := NewTagged(newTestManager(t))
	var calls atomic.Int32

	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	Do(ctx, tagged, "team:1:roster", []string{"team:1", "rosters"}, time.Minute, fetch)
	Do(ctx, tagged, "team:2:roster", []string{"team:2", "rosters"}, time.Minute, fetch)
	require.Equal(t, int32(2), calls.Load())

	// Invalidating one team only evicts that team's key.
	n := tagged.Invalidate(ctx, "team:1")
	assert.Equal(t, 1, n)

	Do(ctx, tagged, "team:2:roster", nil, time.Minute, fetch)
	assert.Equal(t, int32(2), calls.Load())
	Do(ctx, tagged, "team:1:roster", []string{"team:1"}, time.Minute, fetch)
	assert.Equal(t, int32(3), calls.Load())

	// The shared tag fans out to every registered key.
	n = tagged.Invalidate(ctx, "rosters")
	assert.Equal(t, 2, n)
	Do(ctx, tagged, "team:1:roster", nil, time.Minute, fetch)
	Do(ctx, tagged, "team:2:roster", nil, time.Minute, fetch)
	assert.Equal(t, int32(5), calls.Load())
}

func TestTaggedInvalidateUnknownTag(t *testing.T) {
	tagged := NewTagged(newTestManager(t))
	assert.Equal(t, 0, tagged.Invalidate(context.Background(), "nothing"))
}

func TestDualTier(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	tagged := NewTagged(m)
	var calls atomic.Int32

	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	// Same scope: one physical fetch, no second manager lookup needed.
	scope := NewScope()
	v, err := Dual(ctx, scope, tagged, "k", []string{"t"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	v, err = Dual(ctx, scope, tagged, "k", []string{"t"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, int32(1), calls.Load())

	// New scope: served from the persistent tier, still one fetch.
	_, err = Dual(ctx, NewScope(), tagged, "k", []string{"t"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Tag invalidation reaches through both layers for new scopes.
	tagged.Invalidate(ctx, "t")
	_, err = Dual(ctx, NewScope(), tagged, "k", []string{"t"}, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

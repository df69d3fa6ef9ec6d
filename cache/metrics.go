package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counters register against the global meter provider, so they are no-ops
// unless the host process installs one.

const (
	tierLocal  = "local"
	tierRemote = "remote"
)

var (
	meter = otel.Meter("github.com/agentuity/go-cache")

	hitCounter           = newCounter("cache.hits", "Cache hits by tier")
	missCounter          = newCounter("cache.misses", "Cache misses by tier")
	evictionCounter      = newCounter("cache.evictions", "Local tier LRU evictions")
	remoteFailureCounter = newCounter("cache.remote.failures", "Remote tier operation failures")
)

func newCounter(name, desc string) metric.Int64Counter {
	c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
	return c
}

func recordHit(ctx context.Context, tier string) {
	hitCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func recordMiss(ctx context.Context, tier string) {
	missCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func recordEviction(ctx context.Context) {
	evictionCounter.Add(ctx, 1)
}

func recordRemoteFailure(ctx context.Context, op string) {
	remoteFailureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

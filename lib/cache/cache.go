// Package cache is a two-tier key-value cache: a durable store
// reachable over the network plus an in-process fallback that keeps
// serving after the durable entry expires. Refreshes are
// single-flight: no matter how many callers hit the same cold or
// stale key concurrently, at most one producer call is in flight for
// it process-wide.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"yorumi-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("yorumi.lib.cache")

// Durable is the network-backed tier. Implementations report a miss
// with ok=false, reserving errors for transport problems.
type Durable interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
}

// Producer fetches a fresh value for a key, typically by calling an
// upstream provider.
type Producer func(ctx context.Context) ([]byte, error)

type fallbackEntry struct {
	value    []byte
	storedAt time.Time
}

const fallbackSize = 2048

// the in-process tier evicts on its own schedule as a backstop; per
// call staleness is checked against the entry's storedAt, not against
// this ttl
const fallbackTTL = time.Hour * 24

type Cache struct {
	durable  Durable
	fallback *expirable.LRU[string, fallbackEntry]

	group singleflight.Group

	mu         sync.Mutex
	refreshing map[string]struct{}
}

func New(durable Durable) *Cache {
	return &Cache{
		durable:    durable,
		fallback:   expirable.NewLRU[string, fallbackEntry](fallbackSize, nil, fallbackTTL),
		refreshing: map[string]struct{}{},
	}
}

// Get reads the durable tier only. A durable error is reported as a
// miss: the caller falls through to whatever refresh path it is on.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := c.durable.Get(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "durable cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	// repopulate only after an eviction: a fresh read must not advance
	// the staleness clock of a copy we already hold
	if !c.fallback.Contains(key) {
		c.fallback.Add(key, fallbackEntry{value: value, storedAt: time.Now()})
	}
	return value, true
}

// Set writes both tiers. The durable write failing only loses
// durability, not the value, so it is logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.fallback.Add(key, fallbackEntry{value: value, storedAt: time.Now()})
	err := c.durable.Set(ctx, key, value, ttl)
	if err != nil {
		slog.WarnContext(ctx, "durable cache write failed", "key", key, "err", err)
	}
}

// GetOrRefresh resolves a key through the three cache states:
//
//   - Fresh: the durable tier still holds the key, return it without
//     any upstream call.
//   - Stale-but-usable: the durable entry expired no more than
//     staleTTL ago and the in-process copy survives. The stale value
//     is returned immediately and a refresh runs in the background,
//     fire and forget, at most one per key.
//   - Cold: no copy anywhere, or the in-process copy outlived the
//     stale window. The caller blocks on the producer; concurrent
//     callers for the same key share one producer call and its
//     result.
//
// staleTTL is a grace period counted from durable expiry, not from
// the write: a copy written at t stays usable until t+ttl+staleTTL.
// Background refresh failures never touch the previously cached
// value.
func (c *Cache) GetOrRefresh(ctx context.Context, key string, ttl, staleTTL time.Duration, producer Producer) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "GetOrRefresh")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	value, ok := c.Get(ctx, key)
	if ok {
		span.SetAttributes(attribute.String("state", "fresh"))
		return value, nil
	}

	entry, ok := c.fallback.Get(key)
	if ok && time.Since(entry.storedAt) < ttl+staleTTL {
		span.SetAttributes(attribute.String("state", "stale"))
		c.refreshInBackground(ctx, key, ttl, producer)
		return entry.value, nil
	}

	span.SetAttributes(attribute.String("state", "cold"))
	produced, err := c.produce(ctx, key, ttl, producer)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return produced, nil
}

// produce runs the producer for a key through the single-flight
// group, so the cold path and the background refresh can never have
// two producers in flight for the same key.
func (c *Cache) produce(ctx context.Context, key string, ttl time.Duration, producer Producer) ([]byte, error) {
	produced, err, _ := c.group.Do(key, func() (any, error) {
		value, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return produced.([]byte), nil
}

// refreshInBackground invokes the producer once for the key unless a
// refresh is already in flight, joining any in-flight cold producer
// for the same key. The caller never waits on it.
func (c *Cache) refreshInBackground(ctx context.Context, key string, ttl time.Duration, producer Producer) {
	c.mu.Lock()
	_, inFlight := c.refreshing[key]
	if inFlight {
		c.mu.Unlock()
		return
	}
	c.refreshing[key] = struct{}{}
	c.mu.Unlock()

	// the refresh outlives the request that triggered it
	detached := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.refreshing, key)
			c.mu.Unlock()
		}()

		_, err := c.produce(detached, key, ttl, producer)
		if err != nil {
			// write-on-success only: the stale value stays usable
			slog.WarnContext(detached, "background cache refresh failed", "key", key, "err", err)
			return
		}
		slog.DebugContext(detached, "background cache refresh complete", "key", key)
	}()
}

// HGet reads one hash field from the durable store. Hash records are
// durable-tier only, they are not cached in process.
func (c *Cache) HGet(ctx context.Context, key, field string) (string, error) {
	return c.durable.HGet(ctx, key, field)
}

func (c *Cache) HSet(ctx context.Context, key, field, value string) error {
	return c.durable.HSet(ctx, key, field, value)
}

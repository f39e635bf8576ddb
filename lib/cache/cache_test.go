package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory Durable used by tests. Entries never
// expire on their own; tests wipe keys to simulate TTL expiry in the
// durable tier.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string][]byte
	hashes  map[string]map[string]string
	failing bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		values: map[string][]byte{},
		hashes: map[string]map[string]string{},
	}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, false, fmt.Errorf("store offline")
	}
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("store offline")
	}
	s.values[key] = value
	return nil
}

func (s *memoryStore) HGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hashes[key][field], nil
}

func (s *memoryStore) HSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashes[key] == nil {
		s.hashes[key] = map[string]string{}
	}
	s.hashes[key][field] = value
	return nil
}

func (s *memoryStore) wipe(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *memoryStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func TestGetBeforeSetMisses(t *testing.T) {
	c := New(newMemoryStore())

	_, ok := c.Get(context.Background(), "never-set")
	require.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()

	c.Set(ctx, "spotlight", []byte(`{"v":1}`), time.Hour)
	value, ok := c.Get(ctx, "spotlight")
	require.True(t, ok)
	require.Equal(t, []byte(`{"v":1}`), value)
}

func TestColdKeySingleFlight(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()

	var calls atomic.Int32
	gate := make(chan struct{})
	producer := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte("produced"), nil
	}

	const concurrency = 20
	results := make([][]byte, concurrency)
	errs := make([]error, concurrency)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrRefresh(ctx, "cold", time.Hour, time.Hour, producer)
		}(i)
	}

	// let every goroutine reach the cache before the producer resolves
	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []byte("produced"), results[i])
	}
}

func TestColdKeyProducerFailurePropagates(t *testing.T) {
	store := newMemoryStore()
	c := New(store)

	_, err := c.GetOrRefresh(context.Background(), "cold", time.Hour, time.Hour, func(ctx context.Context) ([]byte, error) {
		return nil, fmt.Errorf("upstream down")
	})
	require.Error(t, err)

	_, ok := store.get("cold")
	require.False(t, ok)
}

func TestStaleServesImmediatelyAndRefreshesOnce(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	c.Set(ctx, "spotlight", []byte("stale-value"), time.Hour)
	// durable entry expires, in-process copy survives
	store.wipe("spotlight")

	var refreshes atomic.Int32
	gate := make(chan struct{})
	producer := func(ctx context.Context) ([]byte, error) {
		refreshes.Add(1)
		<-gate
		return []byte("fresh-value"), nil
	}

	// every call during the stale window returns the old value without
	// waiting on the in-flight refresh
	for i := 0; i < 10; i++ {
		value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, producer)
		require.NoError(t, err)
		require.Equal(t, []byte("stale-value"), value)
	}

	close(gate)
	require.Eventually(t, func() bool {
		value, ok := store.get("spotlight")
		return ok && string(value) == "fresh-value"
	}, time.Second, time.Millisecond)
	require.Equal(t, int32(1), refreshes.Load())
}

func TestBackgroundRefreshFailureKeepsStaleValue(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	c.Set(ctx, "spotlight", []byte("stale-value"), time.Hour)
	store.wipe("spotlight")

	done := make(chan struct{})
	producer := func(ctx context.Context) ([]byte, error) {
		defer close(done)
		return nil, fmt.Errorf("scrape failed")
	}

	value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, producer)
	require.NoError(t, err)
	require.Equal(t, []byte("stale-value"), value)

	<-done
	// failed refresh leaves the fallback copy untouched
	value, err = c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, func(ctx context.Context) ([]byte, error) {
		return nil, fmt.Errorf("still failing")
	})
	require.NoError(t, err)
	require.Equal(t, []byte("stale-value"), value)
}

func TestExpiredFallbackIsCold(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	// the copy was written three hours ago: one hour of ttl plus one
	// hour of grace have both lapsed
	c.fallback.Add("spotlight", fallbackEntry{
		value:    []byte("ancient"),
		storedAt: time.Now().Add(-3 * time.Hour),
	})

	value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, func(ctx context.Context) ([]byte, error) {
		return []byte("rebuilt"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("rebuilt"), value)
}

func TestStaleWindowCountsFromDurableExpiry(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	// written 90 minutes ago with a one hour ttl: the durable entry is
	// gone, but the grace period has another 30 minutes to run
	c.fallback.Add("spotlight", fallbackEntry{
		value:    []byte("held"),
		storedAt: time.Now().Add(-90 * time.Minute),
	})

	var refreshes atomic.Int32
	gate := make(chan struct{})
	producer := func(ctx context.Context) ([]byte, error) {
		refreshes.Add(1)
		<-gate
		return []byte("fresh-value"), nil
	}

	// served from the in-process copy without waiting on the producer
	value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, producer)
	require.NoError(t, err)
	require.Equal(t, []byte("held"), value)

	close(gate)
	require.Eventually(t, func() bool {
		value, ok := store.get("spotlight")
		return ok && string(value) == "fresh-value"
	}, time.Second, time.Millisecond)
	require.Equal(t, int32(1), refreshes.Load())
}

func TestFreshReadKeepsStalenessClock(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	c.Set(ctx, "spotlight", []byte("held"), time.Hour)
	before, ok := c.fallback.Peek("spotlight")
	require.True(t, ok)

	for i := 0; i < 5; i++ {
		_, ok := c.Get(ctx, "spotlight")
		require.True(t, ok)
	}

	after, ok := c.fallback.Peek("spotlight")
	require.True(t, ok)
	require.Equal(t, before.storedAt, after.storedAt)
}

func TestBackgroundRefreshJoinsColdFlight(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	var calls atomic.Int32
	gate := make(chan struct{})
	producer := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-gate
		return []byte("produced"), nil
	}

	// a cold caller holds the flight open
	var coldValue []byte
	var coldErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		coldValue, coldErr = c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, producer)
	}()
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, time.Millisecond)

	// a stale caller arrives while the flight is still in the air; its
	// background refresh must join it rather than start a second one
	c.fallback.Add("spotlight", fallbackEntry{
		value:    []byte("held"),
		storedAt: time.Now().Add(-90 * time.Minute),
	})
	value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, producer)
	require.NoError(t, err)
	require.Equal(t, []byte("held"), value)

	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	require.NoError(t, coldErr)
	require.Equal(t, []byte("produced"), coldValue)
	require.Eventually(t, func() bool {
		value, ok := store.get("spotlight")
		return ok && string(value) == "produced"
	}, time.Second, time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
}

func TestDurableErrorFallsThrough(t *testing.T) {
	store := newMemoryStore()
	c := New(store)
	ctx := context.Background()

	c.Set(ctx, "spotlight", []byte("held"), time.Hour)
	store.mu.Lock()
	store.failing = true
	store.mu.Unlock()

	// a broken durable tier degrades to the in-process copy
	value, err := c.GetOrRefresh(ctx, "spotlight", time.Hour, time.Hour, func(ctx context.Context) ([]byte, error) {
		return []byte("should-not-run-synchronously"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("held"), value)
}

func TestHashFields(t *testing.T) {
	c := New(newMemoryStore())
	ctx := context.Background()

	value, err := c.HGet(ctx, "user:global", "avatar")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, c.HSet(ctx, "user:global", "avatar", "https://cdn.example/a.png"))
	value, err = c.HGet(ctx, "user:global", "avatar")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/a.png", value)
}

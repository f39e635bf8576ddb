package cache

import (
	"context"
	"sync"
	"time"
)

type memoryValue struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Durable for deployments that run
// without Redis. Contents do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryValue
	hashes map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: map[string]memoryValue{},
		hashes: map[string]map[string]string{},
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(value.expiresAt) {
		delete(s.values, key)
		return nil, false, nil
	}
	return value.data, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = memoryValue{data: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) HGet(ctx context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hashes[key][field], nil
}

func (s *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hashes[key] == nil {
		s.hashes[key] = map[string]string{}
	}
	s.hashes[key][field] = value
	return nil
}

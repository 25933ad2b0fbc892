package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// MemoryStore backs tests. It takes a quartz.Clock so TTL expiry can be
// driven deterministically.
type MemoryStore struct {
	mu      sync.Mutex
	clock   quartz.Clock
	entries map[string]memEntry
	locks   map[string]time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(clock quartz.Clock) *MemoryStore {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &MemoryStore{
		clock:   clock,
		entries: make(map[string]memEntry),
		locks:   make(map[string]time.Time),
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{data: data, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && !s.clock.Now().Before(e.expiresAt) {
		// lazy expiry, like Redis
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, lease time.Duration) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if until, held := s.locks[key]; held && now.Before(until) {
		return nil, ErrLocked
	}
	s.locks[key] = now.Add(lease)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.locks, key)
	}, nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var keys []string
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) && now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return 0, nil
	}
	return e.expiresAt.Sub(s.clock.Now()), nil
}

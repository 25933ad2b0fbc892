package seeds

import (
	"context"
	"sync"
)

// MemoryRegistry is the in-process registry used in tests and single-node
// setups without Redis.
type MemoryRegistry struct {
	mu    sync.Mutex
	pairs map[string]*Pair
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{pairs: make(map[string]*Pair)}
}

func (m *MemoryRegistry) current(userID string) (*Pair, error) {
	p, ok := m.pairs[userID]
	if !ok {
		np := newPair()
		p = &np
		m.pairs[userID] = p
	}
	if err := checkIntegrity(*p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *MemoryRegistry) Current(ctx context.Context, userID string) (Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.current(userID)
	if err != nil {
		return Pair{}, err
	}
	return *p, nil
}

func (m *MemoryRegistry) Issue(ctx context.Context, userID string) (Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.current(userID)
	if err != nil {
		return Pair{}, err
	}
	issued := *p
	p.Nonce++
	return issued, nil
}

func (m *MemoryRegistry) Rotate(ctx context.Context, userID string) (Pair, Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.current(userID)
	if err != nil {
		return Pair{}, Pair{}, err
	}
	revealed := *p
	next := newPair()
	next.ClientSeed = revealed.ClientSeed
	m.pairs[userID] = &next
	return revealed, next, nil
}

func (m *MemoryRegistry) SetClientSeed(ctx context.Context, userID, clientSeed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.current(userID)
	if err != nil {
		return err
	}
	p.ClientSeed = clientSeed
	return nil
}

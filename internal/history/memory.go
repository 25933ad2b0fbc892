package history

import (
	"context"
	"sync"
)

// MemoryStore backs tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.ID == rec.ID {
			return nil // write-once
		}
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.recs[i].UserID == userID {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

// All returns every record, for assertions.
func (s *MemoryStore) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out
}

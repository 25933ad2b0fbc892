package ledger

import (
	"context"
	"sync"
)

// MemoryLedger backs tests. Same semantics as the Redis ledger, including
// idempotent credits.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]float64
	applied  map[string]bool

	// FailCredits makes the next N credit calls fail, for retry tests.
	FailCredits int
	creditErr   error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]float64),
		applied:  make(map[string]bool),
	}
}

// FailNextCredits arms transient credit failures returning err.
func (l *MemoryLedger) FailNextCredits(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FailCredits = n
	l.creditErr = err
}

func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount float64, currency string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := currency + ":" + userID
	if l.balances[key] < amount {
		return ErrInsufficientFunds
	}
	l.balances[key] -= amount
	return nil
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount float64, currency, idemKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailCredits > 0 {
		l.FailCredits--
		return l.creditErr
	}
	if l.applied[idemKey] {
		return nil
	}
	l.applied[idemKey] = true
	l.balances[currency+":"+userID] += amount
	return nil
}

func (l *MemoryLedger) Balance(ctx context.Context, userID, currency string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[currency+":"+userID], nil
}

func (l *MemoryLedger) Deposit(ctx context.Context, userID string, amount float64, currency string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := currency + ":" + userID
	l.balances[key] += amount
	return l.balances[key], nil
}

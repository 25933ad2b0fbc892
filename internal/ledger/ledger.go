// Package ledger defines the balance collaborator the engine settles
// against. The engine never reaches past this interface; deposits,
// withdrawals and currency conversion live elsewhere.
package ledger

import (
	"context"
	"errors"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrUnknownCurrency   = errors.New("ledger: unknown currency")
)

type Ledger interface {
	// Debit removes amount from the user's balance, failing with
	// ErrInsufficientFunds without any partial change.
	Debit(ctx context.Context, userID string, amount float64, currency string) error
	// Credit adds amount at most once per idempotency key, so a retried
	// settlement cannot pay twice.
	Credit(ctx context.Context, userID string, amount float64, currency, idemKey string) error
	Balance(ctx context.Context, userID, currency string) (float64, error)
}

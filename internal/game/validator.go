package game

import (
	"context"
	"fmt"
)

// StatusChecker is the external user-status collaborator. Banned,
// self-excluded and cooling-off users are its concern; the validator only
// asks the final question.
type StatusChecker interface {
	CanPlay(ctx context.Context, userID string) (bool, error)
}

// AllowAll is the default status checker when no compliance service is
// wired in.
type AllowAll struct{}

func (AllowAll) CanPlay(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

// Limits are the game-agnostic wager constraints the validator enforces.
type Limits struct {
	MinBet     float64
	MaxBet     float64
	Currencies []string
}

// Validator runs every check that must pass before any state is mutated. It
// is side-effect free: no balance, session or round state changes here.
type Validator struct {
	limits Limits
	status StatusChecker
}

func NewValidator(limits Limits, status StatusChecker) *Validator {
	if status == nil {
		status = AllowAll{}
	}
	return &Validator{limits: limits, status: status}
}

// Validate checks stake bounds, currency and user status. It runs before any
// ledger debit.
func (v *Validator) Validate(ctx context.Context, userID string, stake float64, currency string) error {
	if stake < v.limits.MinBet || stake > v.limits.MaxBet {
		return fmt.Errorf("%w: %.2f not in [%.2f, %.2f]",
			ErrStakeOutOfRange, stake, v.limits.MinBet, v.limits.MaxBet)
	}
	accepted := false
	for _, c := range v.limits.Currencies {
		if c == currency {
			accepted = true
			break
		}
	}
	if !accepted {
		return fmt.Errorf("%w: %s", ErrCurrencyRejected, currency)
	}
	ok, err := v.status.CanPlay(ctx, userID)
	if err != nil {
		return fmt.Errorf("user status check: %w", err)
	}
	if !ok {
		return ErrUserBlocked
	}
	return nil
}

package game

import (
	"context"
	"errors"
	"testing"
)

type blockEveryone struct{}

func (blockEveryone) CanPlay(ctx context.Context, userID string) (bool, error) {
	return false, nil
}

type brokenChecker struct{}

func (brokenChecker) CanPlay(ctx context.Context, userID string) (bool, error) {
	return false, errors.New("status service down")
}

func TestValidator(t *testing.T) {
	limits := Limits{MinBet: 1, MaxBet: 100, Currencies: []string{"USD", "EUR"}}

	tests := []struct {
		name     string
		stake    float64
		currency string
		status   StatusChecker
		wantErr  error
	}{
		{"valid", 10, "USD", nil, nil},
		{"at minimum", 1, "USD", nil, nil},
		{"at maximum", 100, "EUR", nil, nil},
		{"below minimum", 0.5, "USD", nil, ErrStakeOutOfRange},
		{"above maximum", 101, "USD", nil, ErrStakeOutOfRange},
		{"zero stake", 0, "USD", nil, ErrStakeOutOfRange},
		{"unknown currency", 10, "GBP", nil, ErrCurrencyRejected},
		{"blocked user", 10, "USD", blockEveryone{}, ErrUserBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(limits, tt.status)
			err := v.Validate(context.Background(), "u1", tt.stake, tt.currency)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_StatusCheckFailure(t *testing.T) {
	v := NewValidator(Limits{MinBet: 1, MaxBet: 100, Currencies: []string{"USD"}}, brokenChecker{})

	err := v.Validate(context.Background(), "u1", 10, "USD")
	if err == nil {
		t.Fatal("Validate() accepted a wager with the status check failing")
	}
	if errors.Is(err, ErrUserBlocked) {
		t.Error("a failed status check is not the same as a blocked user")
	}
}

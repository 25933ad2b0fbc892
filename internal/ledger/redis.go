package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	balanceKeyPrefix = "ledger:balance:"
	idemKeyPrefix    = "ledger:idem:"
	idemKeyTTL       = 24 * time.Hour
)

// RedisLedger keeps per-(user,currency) balances as float counters. Debits
// ride IncrByFloat and roll back on overdraw; credits are guarded by a SETNX
// idempotency marker so retries apply at most once.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func balanceKey(userID, currency string) string {
	return balanceKeyPrefix + currency + ":" + userID
}

func (l *RedisLedger) Debit(ctx context.Context, userID string, amount float64, currency string) error {
	key := balanceKey(userID, currency)
	newBalance, err := l.client.IncrByFloat(ctx, key, -amount).Result()
	if err != nil {
		return fmt.Errorf("ledger: debit: %w", err)
	}
	if newBalance < 0 {
		if rbErr := l.client.IncrByFloat(ctx, key, amount).Err(); rbErr != nil {
			return fmt.Errorf("ledger: debit rollback: %w", rbErr)
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (l *RedisLedger) Credit(ctx context.Context, userID string, amount float64, currency, idemKey string) error {
	set, err := l.client.SetNX(ctx, idemKeyPrefix+idemKey, userID, idemKeyTTL).Result()
	if err != nil {
		return fmt.Errorf("ledger: credit idempotency check: %w", err)
	}
	if !set {
		// already applied by an earlier attempt
		return nil
	}
	if err := l.client.IncrByFloat(ctx, balanceKey(userID, currency), amount).Err(); err != nil {
		// release the marker so a retry can apply the credit
		l.client.Del(ctx, idemKeyPrefix+idemKey)
		return fmt.Errorf("ledger: credit: %w", err)
	}
	return nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID, currency string) (float64, error) {
	bal, err := l.client.Get(ctx, balanceKey(userID, currency)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return bal, nil
}

// Deposit is an admin/test helper; real deposits arrive through payment
// rails outside the engine.
func (l *RedisLedger) Deposit(ctx context.Context, userID string, amount float64, currency string) (float64, error) {
	bal, err := l.client.IncrByFloat(ctx, balanceKey(userID, currency), amount).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger: deposit: %w", err)
	}
	return bal, nil
}

package seeds

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const seedKeyPrefix = "seeds:user:"

// RedisRegistry keeps one hash per user: server_seed, server_seed_hash,
// client_seed and next_nonce. Nonce issuance rides HIncrBy so concurrent
// bets never reuse a value.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) key(userID string) string {
	return seedKeyPrefix + userID
}

func (r *RedisRegistry) load(ctx context.Context, userID string) (Pair, bool, error) {
	fields, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return Pair{}, false, fmt.Errorf("seeds: load pair: %w", err)
	}
	if len(fields) == 0 {
		return Pair{}, false, nil
	}
	nonce, _ := strconv.ParseUint(fields["next_nonce"], 10, 64)
	p := Pair{
		ServerSeed:     fields["server_seed"],
		ServerSeedHash: fields["server_seed_hash"],
		ClientSeed:     fields["client_seed"],
		Nonce:          nonce,
	}
	if err := checkIntegrity(p); err != nil {
		return Pair{}, false, err
	}
	return p, true, nil
}

func (r *RedisRegistry) store(ctx context.Context, userID string, p Pair) error {
	err := r.client.HSet(ctx, r.key(userID), map[string]interface{}{
		"server_seed":      p.ServerSeed,
		"server_seed_hash": p.ServerSeedHash,
		"client_seed":      p.ClientSeed,
		"next_nonce":       p.Nonce,
	}).Err()
	if err != nil {
		return fmt.Errorf("seeds: store pair: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Current(ctx context.Context, userID string) (Pair, error) {
	p, ok, err := r.load(ctx, userID)
	if err != nil {
		return Pair{}, err
	}
	if ok {
		return p, nil
	}
	p = newPair()
	if err := r.store(ctx, userID, p); err != nil {
		return Pair{}, err
	}
	return p, nil
}

func (r *RedisRegistry) Issue(ctx context.Context, userID string) (Pair, error) {
	p, err := r.Current(ctx, userID)
	if err != nil {
		return Pair{}, err
	}
	next, err := r.client.HIncrBy(ctx, r.key(userID), "next_nonce", 1).Result()
	if err != nil {
		return Pair{}, fmt.Errorf("seeds: issue nonce: %w", err)
	}
	p.Nonce = uint64(next - 1)
	return p, nil
}

func (r *RedisRegistry) Rotate(ctx context.Context, userID string) (Pair, Pair, error) {
	revealed, err := r.Current(ctx, userID)
	if err != nil {
		return Pair{}, Pair{}, err
	}
	next := newPair()
	next.ClientSeed = revealed.ClientSeed // player choice survives rotation
	if err := r.store(ctx, userID, next); err != nil {
		return Pair{}, Pair{}, err
	}
	return revealed, next, nil
}

func (r *RedisRegistry) SetClientSeed(ctx context.Context, userID, clientSeed string) error {
	if _, err := r.Current(ctx, userID); err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key(userID), "client_seed", clientSeed).Err(); err != nil {
		return fmt.Errorf("seeds: set client seed: %w", err)
	}
	return nil
}

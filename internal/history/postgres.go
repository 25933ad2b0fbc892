package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends outcome records to the game_history table. The table
// has no UPDATE path anywhere in the codebase; rows are immutable once
// inserted.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_history (
			id, game_type, ref_id, user_id, stake, payout, multiplier,
			currency, result, server_seed, server_seed_hash, client_seed,
			nonce, outcome, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.GameType, rec.RefID, rec.UserID, rec.Stake, rec.Payout,
		rec.Multiplier, rec.Currency, rec.Result, rec.ServerSeed,
		rec.ServerSeedHash, rec.ClientSeed, rec.Nonce, rec.Outcome,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: append %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, game_type, ref_id, user_id, stake, payout, multiplier,
		       currency, result, server_seed, server_seed_hash, client_seed,
		       nonce, outcome, created_at
		FROM game_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: recent for %s: %w", userID, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.GameType, &rec.RefID, &rec.UserID, &rec.Stake,
			&rec.Payout, &rec.Multiplier, &rec.Currency, &rec.Result,
			&rec.ServerSeed, &rec.ServerSeedHash, &rec.ClientSeed,
			&rec.Nonce, &rec.Outcome, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Package history is the append-only outcome archive. Every settlement
// writes exactly one record carrying the full reveal material a player needs
// to verify the outcome independently. Records are never updated.
package history

import (
	"context"
	"encoding/json"
	"time"
)

// Result classifies how a bet or session ended.
type Result string

const (
	ResultWin     Result = "win"
	ResultLoss    Result = "loss"
	ResultForfeit Result = "forfeit" // abandoned session reclaimed by the sweep
)

type Record struct {
	ID             string          `json:"id"`
	GameType       string          `json:"game_type"`
	RefID          string          `json:"ref_id"` // bet or session id
	UserID         string          `json:"user_id"`
	Stake          float64         `json:"stake"`
	Payout         float64         `json:"payout"`
	Multiplier     float64         `json:"multiplier"`
	Currency       string          `json:"currency"`
	Result         Result          `json:"result"`
	ServerSeed     string          `json:"server_seed"`
	ServerSeedHash string          `json:"server_seed_hash"`
	ClientSeed     string          `json:"client_seed"`
	Nonce          uint64          `json:"nonce"`
	Outcome        json.RawMessage `json:"outcome,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)
}

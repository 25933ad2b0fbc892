package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/outcome"
)

const creditAttempts = 3

// Settlement is one terminal transition handed to the bridge. The caller has
// already cleared the entity's active flag atomically with building this
// value; the bridge only converts it into money movement and a record.
type Settlement struct {
	GameType   GameType
	RefID      string // bet or session id
	UserID     string
	Stake      float64
	Multiplier float64
	Currency   string
	Result     history.Result
	Seed       SeedReveal
	Outcome    json.RawMessage
}

// Settler is the Settlement & Ledger Bridge: exactly one history record per
// settlement, at most one credit, fan-out strictly best effort.
type Settler struct {
	ledger  ledger.Ledger
	history history.Store
	pub     Publisher
	logger  *log.Logger
}

func NewSettler(l ledger.Ledger, h history.Store, pub Publisher, logger *log.Logger) *Settler {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Settler{ledger: l, history: h, pub: pub, logger: logger.WithPrefix("settle")}
}

// Settle credits any payout and writes the immutable outcome record. The
// credit rides a deterministic idempotency key derived from the entity id,
// so a retry after a transient ledger failure pays at most once.
func (s *Settler) Settle(ctx context.Context, st Settlement) (history.Record, error) {
	payout := 0.0
	if st.Result == history.ResultWin {
		payout = outcome.Truncate(st.Stake*st.Multiplier, 2)
	}

	if payout > 0 {
		idemKey := fmt.Sprintf("settle:%s:%s", st.GameType, st.RefID)
		var err error
		for attempt := 1; attempt <= creditAttempts; attempt++ {
			err = s.ledger.Credit(ctx, st.UserID, payout, st.Currency, idemKey)
			if err == nil {
				break
			}
			s.logger.Warn("credit failed, retrying",
				"ref", st.RefID, "attempt", attempt, "err", err)
		}
		if err != nil {
			return history.Record{}, fmt.Errorf("settle %s: credit: %w", st.RefID, err)
		}
	}

	rec := history.Record{
		ID:             fmt.Sprintf("hist:%s:%s", st.GameType, st.RefID),
		GameType:       string(st.GameType),
		RefID:          st.RefID,
		UserID:         st.UserID,
		Stake:          st.Stake,
		Payout:         payout,
		Multiplier:     st.Multiplier,
		Currency:       st.Currency,
		Result:         st.Result,
		ServerSeed:     st.Seed.ServerSeed,
		ServerSeedHash: st.Seed.ServerSeedHash,
		ClientSeed:     st.Seed.ClientSeed,
		Nonce:          st.Seed.Nonce,
		Outcome:        st.Outcome,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.history.Append(ctx, rec); err != nil {
		// The credit is already safe behind its idempotency key; losing
		// the record is an integrity problem, not a payout problem.
		s.logger.Error("history append failed", "ref", st.RefID, "err", err)
		return rec, fmt.Errorf("settle %s: history: %w", st.RefID, err)
	}

	s.pub.Publish(string(st.GameType), Event{
		Topic: string(st.GameType),
		Type:  "settled",
		Data: map[string]interface{}{
			"ref_id":     st.RefID,
			"user_id":    st.UserID,
			"result":     st.Result,
			"multiplier": st.Multiplier,
			"payout":     payout,
		},
	})

	s.logger.Info("settled",
		"game", st.GameType, "ref", st.RefID, "user", st.UserID,
		"result", st.Result, "multiplier", st.Multiplier, "payout", payout)
	return rec, nil
}

package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/seeds"
	"fairbet/internal/store"
)

// sessionLease bounds how long one request may hold a session's exclusive
// lock. Steps are cheap; anything longer than this is a stuck request.
const sessionLease = 5 * time.Second

// sessionCore is the plumbing every stepped game shares: keyed storage with
// TTL, per-session exclusive access, the wager preamble (validate, issue
// seed, debit) and settlement.
type sessionCore struct {
	store     store.Store
	seeds     seeds.Registry
	ledger    ledger.Ledger
	settler   *Settler
	validator *Validator
	logger    *log.Logger
	ttl       time.Duration
}

func newSessionCore(
	st store.Store,
	reg seeds.Registry,
	l ledger.Ledger,
	settler *Settler,
	v *Validator,
	logger *log.Logger,
	ttl time.Duration,
) sessionCore {
	return sessionCore{
		store:     st,
		seeds:     reg,
		ledger:    l,
		settler:   settler,
		validator: v,
		logger:    logger,
		ttl:       ttl,
	}
}

// begin runs the start-of-session preamble. On success the stake is debited
// and a seed pair with a fresh nonce is reserved; the caller must persist a
// session record or the sweep will eventually forfeit the stake.
func (c *sessionCore) begin(ctx context.Context, gt GameType, userID string, stake float64, currency string) (seeds.Pair, error) {
	if err := c.validator.Validate(ctx, userID, stake, currency); err != nil {
		return seeds.Pair{}, err
	}

	var existing SessionBase
	found, err := c.store.Get(ctx, sessionKey(gt, userID), &existing)
	if err != nil {
		return seeds.Pair{}, err
	}
	if found && existing.Status == SessionActive {
		return seeds.Pair{}, ErrSessionActive
	}

	pair, err := c.seeds.Issue(ctx, userID)
	if err != nil {
		return seeds.Pair{}, err
	}

	// Debit fails closed: if the ledger cannot confirm it, the session
	// never starts.
	if err := c.ledger.Debit(ctx, userID, stake, currency); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return seeds.Pair{}, err
		}
		return seeds.Pair{}, fmt.Errorf("start %s session: %w", gt, err)
	}
	return pair, nil
}

// abortStart returns the stake when a start fails after the debit confirmed
// but before a session record was persisted. Nothing is stored for the sweep
// to reconcile at that point, so the refund happens here; the key is
// deterministic per issued nonce, so a repeated abort cannot double-credit.
func (c *sessionCore) abortStart(ctx context.Context, gt GameType, userID string, stake float64, currency string, pair seeds.Pair) {
	key := fmt.Sprintf("refund:%s:%s:%d", gt, userID, pair.Nonce)
	if err := c.ledger.Credit(ctx, userID, stake, currency, key); err != nil {
		c.logger.Error("start refund failed", "game", gt, "user", userID, "err", err)
	}
}

// newBase builds the shared record fields for a freshly started session.
func (c *sessionCore) newBase(gt GameType, userID string, stake float64, currency string, pair seeds.Pair) SessionBase {
	now := time.Now().UTC()
	return SessionBase{
		ID:             fmt.Sprintf("%s-%s-%d", gt, userID, now.UnixNano()),
		UserID:         userID,
		GameType:       gt,
		Stake:          stake,
		Currency:       currency,
		Status:         SessionActive,
		Multiplier:     1.0,
		ServerSeed:     pair.ServerSeed,
		ServerSeedHash: pair.ServerSeedHash,
		ClientSeed:     pair.ClientSeed,
		Nonce:          pair.Nonce,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}
}

// lock serializes all actions on one user's session.
func (c *sessionCore) lock(ctx context.Context, gt GameType, userID string) (func(), error) {
	release, err := c.store.Acquire(ctx, sessionKey(gt, userID), sessionLease)
	if errors.Is(err, store.ErrLocked) {
		return nil, ErrSessionBusy
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

// save persists a session record. The physical TTL is twice the logical
// lifetime so the sweep can still read expired-but-active records and
// forfeit them explicitly instead of losing them to silent expiry.
func (c *sessionCore) save(ctx context.Context, gt GameType, userID string, rec interface{}) error {
	return c.store.Put(ctx, sessionKey(gt, userID), rec, 2*c.ttl)
}

// drop removes a session record after settlement.
func (c *sessionCore) drop(ctx context.Context, gt GameType, userID string) {
	if err := c.store.Delete(ctx, sessionKey(gt, userID)); err != nil {
		c.logger.Warn("failed to drop settled session", "game", gt, "user", userID, "err", err)
	}
}

// settle converts a terminal session into a ledger credit (wins only) and a
// history record, then drops the stored session. The caller has already
// flipped Status off ACTIVE, which is the session's settle-once guard.
func (c *sessionCore) settle(ctx context.Context, base *SessionBase, result history.Result, outcomeJSON json.RawMessage) (history.Record, error) {
	rec, err := c.settler.Settle(ctx, Settlement{
		GameType:   base.GameType,
		RefID:      base.ID,
		UserID:     base.UserID,
		Stake:      base.Stake,
		Multiplier: base.Multiplier,
		Currency:   base.Currency,
		Result:     result,
		Seed:       base.Reveal(),
		Outcome:    outcomeJSON,
	})
	c.drop(ctx, base.GameType, base.UserID)
	return rec, err
}

func (c *sessionCore) load(ctx context.Context, gt GameType, userID string, dest interface{}) error {
	found, err := c.store.Get(ctx, sessionKey(gt, userID), dest)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSession
	}
	return nil
}

package game

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"fairbet/internal/history"
	"fairbet/internal/store"
)

// Sweeper reconciles abandoned sessions. A session past its logical expiry
// that is still ACTIVE is a forfeit: the stake was debited at start and is
// never re-credited automatically, but the outcome is recorded like any
// other terminal state instead of silently vanishing with the TTL.
type Sweeper struct {
	store    store.Store
	settler  *Settler
	logger   *log.Logger
	clock    quartz.Clock
	interval time.Duration
}

func NewSweeper(st store.Store, settler *Settler, logger *log.Logger, clock quartz.Clock, interval time.Duration) *Sweeper {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Sweeper{
		store:    st,
		settler:  settler,
		logger:   logger.WithPrefix("sweep"),
		clock:    clock,
		interval: interval,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sweep runs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	keys, err := s.store.Keys(ctx, sessionKeyPrefix)
	if err != nil {
		s.logger.Error("scan sessions", "err", err)
		return
	}

	now := s.clock.Now()
	for _, key := range keys {
		var base SessionBase
		found, err := s.store.Get(ctx, key, &base)
		if err != nil || !found {
			continue
		}
		if base.Status != SessionActive || now.Before(base.ExpiresAt) {
			continue
		}

		// take the session lock so a live request can't race the forfeit
		release, err := s.store.Acquire(ctx, key, sessionLease)
		if errors.Is(err, store.ErrLocked) {
			continue
		}
		if err != nil {
			s.logger.Error("lock expired session", "key", key, "err", err)
			continue
		}

		// re-read under the lock: a live request may have settled or
		// refreshed the session between the scan and the acquire
		found, err = s.store.Get(ctx, key, &base)
		if err != nil || !found || base.Status != SessionActive || now.Before(base.ExpiresAt) {
			release()
			continue
		}

		base.Status = SessionBusted
		if _, err := s.settler.Settle(ctx, Settlement{
			GameType:   base.GameType,
			RefID:      base.ID,
			UserID:     base.UserID,
			Stake:      base.Stake,
			Multiplier: 0,
			Currency:   base.Currency,
			Result:     history.ResultForfeit,
			Seed:       base.Reveal(),
		}); err != nil {
			s.logger.Error("forfeit settlement failed", "session", base.ID, "err", err)
			release()
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("drop forfeited session", "key", key, "err", err)
		}
		release()

		s.logger.Info("forfeited expired session",
			"game", base.GameType, "session", base.ID, "user", base.UserID)
	}
}

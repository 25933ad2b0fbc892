package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"fairbet/internal/config"
	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/outcome"
	"fairbet/internal/rng"
)

// CrashBetRequest places a wager during the WAITING phase.
type CrashBetRequest struct {
	UserID      string  `json:"user_id"`
	Stake       float64 `json:"stake"`
	Currency    string  `json:"currency"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
}

type CrashBetResponse struct {
	BetID          string `json:"bet_id"`
	RoundID        string `json:"round_id"`
	ServerSeedHash string `json:"server_seed_hash"`
}

// CrashCashoutRequest settles the caller's live bet at the current displayed
// multiplier.
type CrashCashoutRequest struct {
	UserID string `json:"user_id"`
	BetID  string `json:"bet_id"`
}

type CrashCashoutResponse struct {
	BetID      string  `json:"bet_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

// RoundSnapshot is the externally visible round state. CrashPoint and
// ServerSeed stay zero until the round has crashed.
type RoundSnapshot struct {
	RoundID        string    `json:"round_id"`
	Phase          Phase     `json:"phase"`
	Multiplier     float64   `json:"multiplier"`
	ServerSeedHash string    `json:"server_seed_hash"`
	ClientSeed     string    `json:"client_seed"`
	Nonce          uint64    `json:"nonce"`
	CrashPoint     float64   `json:"crash_point,omitempty"`
	ServerSeed     string    `json:"server_seed,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	BetCount       int       `json:"bet_count"`
}

// crashRound is the loop-owned mutable round. Only the manager goroutine
// touches it; everyone else reads snapshots.
type crashRound struct {
	id         string
	phase      Phase
	serverSeed string
	commitment string
	clientSeed string
	nonce      uint64
	crashPoint float64
	multiplier float64
	startedAt  time.Time
	runStart   time.Time
	bets       map[string]*BetEntry // by bet id
	betByUser  map[string]string    // user id -> bet id
}

type crashBetMsg struct {
	req  CrashBetRequest
	resp chan crashBetResult
}

type crashBetResult struct {
	res CrashBetResponse
	err error
}

type crashCashoutMsg struct {
	req  CrashCashoutRequest
	resp chan crashCashoutResult
}

type crashCashoutResult struct {
	res CrashCashoutResponse
	err error
}

// CrashManager owns the one live crash round. A single goroutine processes
// the clock ticks and every player action from serialized queues, so no two
// transitions of the same round can interleave.
type CrashManager struct {
	cfg       config.Crash
	validator *Validator
	ledger    ledger.Ledger
	settler   *Settler
	pub       Publisher
	logger    *log.Logger
	clock     quartz.Clock

	bets     chan crashBetMsg
	cashouts chan crashCashoutMsg

	mu    sync.RWMutex
	snap  RoundSnapshot
	nonce uint64
}

func NewCrashManager(
	cfg config.Crash,
	v *Validator,
	l ledger.Ledger,
	settler *Settler,
	pub Publisher,
	logger *log.Logger,
	clock quartz.Clock,
) *CrashManager {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &CrashManager{
		cfg:       cfg,
		validator: v,
		ledger:    l,
		settler:   settler,
		pub:       pub,
		logger:    logger.WithPrefix("crash"),
		clock:     clock,
		bets:      make(chan crashBetMsg, 256),
		cashouts:  make(chan crashCashoutMsg, 256),
	}
}

// Run drives rounds until ctx is cancelled.
func (m *CrashManager) Run(ctx context.Context) error {
	m.logger.Info("round loop started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("round loop stopped")
			return ctx.Err()
		default:
		}
		m.runRound(ctx)
	}
}

// Round returns the current public round state.
func (m *CrashManager) Round() RoundSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// PlaceBet enqueues a bet for the round goroutine and waits for its verdict.
func (m *CrashManager) PlaceBet(ctx context.Context, req CrashBetRequest) (CrashBetResponse, error) {
	msg := crashBetMsg{req: req, resp: make(chan crashBetResult, 1)}
	select {
	case m.bets <- msg:
	case <-ctx.Done():
		return CrashBetResponse{}, ctx.Err()
	}
	select {
	case r := <-msg.resp:
		return r.res, r.err
	case <-ctx.Done():
		return CrashBetResponse{}, ctx.Err()
	}
}

// CashOut enqueues a manual cash-out and waits for its verdict.
func (m *CrashManager) CashOut(ctx context.Context, req CrashCashoutRequest) (CrashCashoutResponse, error) {
	msg := crashCashoutMsg{req: req, resp: make(chan crashCashoutResult, 1)}
	select {
	case m.cashouts <- msg:
	case <-ctx.Done():
		return CrashCashoutResponse{}, ctx.Err()
	}
	select {
	case r := <-msg.resp:
		return r.res, r.err
	case <-ctx.Done():
		return CrashCashoutResponse{}, ctx.Err()
	}
}

func (m *CrashManager) runRound(ctx context.Context) {
	m.mu.Lock()
	m.nonce++
	nonce := m.nonce
	m.mu.Unlock()

	serverSeed := rng.NewServerSeed()
	now := m.clock.Now()
	round := &crashRound{
		id:         fmt.Sprintf("R%d-%d", now.Unix(), nonce),
		phase:      PhaseWaiting,
		serverSeed: serverSeed,
		commitment: rng.Commitment(serverSeed),
		clientSeed: m.cfg.ClientSeed,
		nonce:      nonce,
		multiplier: m.cfg.MinMultiplier,
		startedAt:  now,
		bets:       make(map[string]*BetEntry),
		betByUser:  make(map[string]string),
	}
	m.publishSnapshot(round)

	m.logger.Info("round open", "round", round.id, "commitment", round.commitment[:16])
	m.pub.Publish(string(GameTypeCrash), Event{
		Topic: string(GameTypeCrash),
		Type:  "round_start",
		Data: map[string]interface{}{
			"round_id":         round.id,
			"server_seed_hash": round.commitment,
			"client_seed":      round.clientSeed,
			"nonce":            round.nonce,
			"betting_seconds":  m.cfg.BettingWindow.Seconds(),
		},
	})

	countdown := m.clock.NewTimer(m.cfg.BettingWindow)
	defer countdown.Stop()
	for round.phase == PhaseWaiting {
		select {
		case <-countdown.C:
			m.beginRun(ctx, round)
		case msg := <-m.bets:
			m.handleBet(ctx, round, msg)
		case msg := <-m.cashouts:
			msg.resp <- crashCashoutResult{err: ErrCashoutClosed}
		case <-ctx.Done():
			m.refundOpenBets(round)
			return
		}
	}

	ticker := m.clock.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for round.phase == PhaseRunning {
		select {
		case <-ticker.C:
			m.tick(ctx, round)
		case msg := <-m.bets:
			msg.resp <- crashBetResult{err: ErrBetsClosed}
		case msg := <-m.cashouts:
			m.handleCashout(ctx, round, msg)
		case <-ctx.Done():
			return
		}
	}

	pause := m.clock.NewTimer(m.cfg.InterRoundWait)
	defer pause.Stop()
	for {
		select {
		case <-pause.C:
			return
		case msg := <-m.bets:
			msg.resp <- crashBetResult{err: ErrBetsClosed}
		case msg := <-m.cashouts:
			msg.resp <- crashCashoutResult{err: ErrCashoutClosed}
		case <-ctx.Done():
			return
		}
	}
}

// beginRun derives the crash point from the committed seed and flips the
// round to RUNNING. The crash point stays hidden until the round ends.
func (m *CrashManager) beginRun(ctx context.Context, round *crashRound) {
	floats, err := rng.Floats(round.serverSeed, round.clientSeed, round.nonce, 1)
	if err != nil {
		// only possible with an empty seed, which would be a bug
		m.logger.Error("derive crash point", "round", round.id, "err", err)
		m.refundOpenBets(round)
		round.phase = PhaseCrashed
		return
	}
	round.crashPoint = outcome.CrashPoint(floats[0], outcome.CrashConfig{
		HouseEdge:     m.cfg.HouseEdge,
		MinMultiplier: m.cfg.MinMultiplier,
		MaxMultiplier: m.cfg.MaxMultiplier,
	})
	round.phase = PhaseRunning
	round.runStart = m.clock.Now()
	m.publishSnapshot(round)

	m.logger.Info("round running", "round", round.id, "bets", len(round.bets))
	m.pub.Publish(string(GameTypeCrash), Event{
		Topic: string(GameTypeCrash),
		Type:  "round_running",
		Data:  map[string]interface{}{"round_id": round.id},
	})
}

// tick advances the displayed multiplier, settles due auto-cash-outs first,
// then checks termination — in that order, so an auto-cash-out at or below
// the crash point still wins on the crashing tick.
func (m *CrashManager) tick(ctx context.Context, round *crashRound) {
	elapsed := m.clock.Now().Sub(round.runStart).Seconds()
	mult := outcome.Truncate(math.Exp(m.cfg.GrowthRate*elapsed), 2)
	if mult < m.cfg.MinMultiplier {
		mult = m.cfg.MinMultiplier
	}
	crashing := mult >= round.crashPoint
	if crashing {
		mult = round.crashPoint
	}
	round.multiplier = mult

	for _, bet := range round.bets {
		if bet.Active && bet.AutoCashout > 0 && bet.AutoCashout <= mult {
			m.settleBet(ctx, round, bet, bet.AutoCashout, history.ResultWin)
		}
	}

	if crashing {
		m.endRound(ctx, round)
		return
	}

	m.publishSnapshot(round)
	m.pub.Publish(string(GameTypeCrash), Event{
		Topic: string(GameTypeCrash),
		Type:  "tick",
		Data:  map[string]interface{}{"round_id": round.id, "multiplier": mult},
	})
}

func (m *CrashManager) endRound(ctx context.Context, round *crashRound) {
	round.phase = PhaseCrashed
	for _, bet := range round.bets {
		if bet.Active {
			m.settleBet(ctx, round, bet, 0, history.ResultLoss)
		}
	}
	m.publishSnapshot(round)

	m.logger.Info("round crashed", "round", round.id, "crash_point", round.crashPoint)
	m.pub.Publish(string(GameTypeCrash), Event{
		Topic: string(GameTypeCrash),
		Type:  "crash",
		Data: map[string]interface{}{
			"round_id":    round.id,
			"crash_point": round.crashPoint,
			"server_seed": round.serverSeed,
			"client_seed": round.clientSeed,
			"nonce":       round.nonce,
		},
	})
}

func (m *CrashManager) handleBet(ctx context.Context, round *crashRound, msg crashBetMsg) {
	req := msg.req
	if round.phase != PhaseWaiting {
		msg.resp <- crashBetResult{err: ErrBetsClosed}
		return
	}
	if _, dup := round.betByUser[req.UserID]; dup {
		msg.resp <- crashBetResult{err: ErrDuplicateBet}
		return
	}
	if err := m.validator.Validate(ctx, req.UserID, req.Stake, req.Currency); err != nil {
		msg.resp <- crashBetResult{err: err}
		return
	}
	if err := m.ledger.Debit(ctx, req.UserID, req.Stake, req.Currency); err != nil {
		// fail closed: an unconfirmed debit means no bet
		msg.resp <- crashBetResult{err: err}
		return
	}

	bet := &BetEntry{
		ID:          fmt.Sprintf("BET-%s-%d", req.UserID, m.clock.Now().UnixNano()),
		UserID:      req.UserID,
		Stake:       req.Stake,
		Currency:    req.Currency,
		AutoCashout: req.AutoCashout,
		Active:      true,
		PlacedAt:    m.clock.Now(),
	}
	round.bets[bet.ID] = bet
	round.betByUser[req.UserID] = bet.ID
	m.publishSnapshot(round)

	m.logger.Info("bet placed", "round", round.id, "user", req.UserID, "stake", req.Stake)
	m.pub.Publish(string(GameTypeCrash), Event{
		Topic: string(GameTypeCrash),
		Type:  "bet_placed",
		Data:  map[string]interface{}{"round_id": round.id, "user_id": req.UserID, "stake": req.Stake},
	})
	msg.resp <- crashBetResult{res: CrashBetResponse{
		BetID:          bet.ID,
		RoundID:        round.id,
		ServerSeedHash: round.commitment,
	}}
}

func (m *CrashManager) handleCashout(ctx context.Context, round *crashRound, msg crashCashoutMsg) {
	req := msg.req
	if round.phase != PhaseRunning {
		msg.resp <- crashCashoutResult{err: ErrCashoutClosed}
		return
	}
	betID := req.BetID
	if betID == "" {
		betID = round.betByUser[req.UserID]
	}
	bet, ok := round.bets[betID]
	if !ok || bet.UserID != req.UserID {
		msg.resp <- crashCashoutResult{err: ErrBetNotFound}
		return
	}
	if !bet.Active {
		msg.resp <- crashCashoutResult{err: ErrAlreadySettled}
		return
	}

	m.settleBet(ctx, round, bet, round.multiplier, history.ResultWin)
	msg.resp <- crashCashoutResult{res: CrashCashoutResponse{
		BetID:      bet.ID,
		Multiplier: round.multiplier,
		Payout:     bet.Payout,
	}}
}

// settleBet flips the bet inactive and hands it to the bridge. Runs only on
// the round goroutine, so the flip-then-credit order is race free.
func (m *CrashManager) settleBet(ctx context.Context, round *crashRound, bet *BetEntry, mult float64, result history.Result) {
	bet.Active = false
	bet.SettledAt = m.clock.Now()
	if result == history.ResultWin {
		bet.Payout = outcome.Truncate(bet.Stake*mult, 2)
	}

	outcomeJSON, _ := json.Marshal(map[string]interface{}{
		"round_id":          round.id,
		"cashout_at":        mult,
		"crash_point_known": round.phase == PhaseCrashed,
	})
	if _, err := m.settler.Settle(ctx, Settlement{
		GameType:   GameTypeCrash,
		RefID:      bet.ID,
		UserID:     bet.UserID,
		Stake:      bet.Stake,
		Multiplier: mult,
		Currency:   bet.Currency,
		Result:     result,
		Seed: SeedReveal{
			ServerSeed:     round.serverSeed,
			ServerSeedHash: round.commitment,
			ClientSeed:     round.clientSeed,
			Nonce:          round.nonce,
		},
		Outcome: outcomeJSON,
	}); err != nil {
		m.logger.Error("bet settlement failed", "bet", bet.ID, "err", err)
	}
}

// refundOpenBets returns stakes on shutdown before the round ever ran. The
// refund uses the credit idempotency path, keyed per bet.
func (m *CrashManager) refundOpenBets(round *crashRound) {
	ctx := context.Background()
	for _, bet := range round.bets {
		if !bet.Active {
			continue
		}
		bet.Active = false
		key := fmt.Sprintf("refund:crash:%s", bet.ID)
		if err := m.ledger.Credit(ctx, bet.UserID, bet.Stake, bet.Currency, key); err != nil {
			m.logger.Error("refund failed", "bet", bet.ID, "err", err)
		}
	}
}

func (m *CrashManager) publishSnapshot(round *crashRound) {
	snap := RoundSnapshot{
		RoundID:        round.id,
		Phase:          round.phase,
		Multiplier:     round.multiplier,
		ServerSeedHash: round.commitment,
		ClientSeed:     round.clientSeed,
		Nonce:          round.nonce,
		StartedAt:      round.startedAt,
		BetCount:       len(round.bets),
	}
	if round.phase == PhaseCrashed {
		snap.CrashPoint = round.crashPoint
		snap.ServerSeed = round.serverSeed
	}
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

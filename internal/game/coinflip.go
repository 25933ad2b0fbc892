package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fairbet/internal/config"
	"fairbet/internal/history"
	"fairbet/internal/outcome"
	"fairbet/internal/rng"
)

// CoinflipSession is a streak game: every correct call doubles (minus the
// edge), a wrong call busts. The full face sequence is drawn from the
// committed seed at start, so the player can verify every flip afterwards.
type CoinflipSession struct {
	SessionBase
	Faces   []outcome.CoinFace `json:"faces"`
	Guesses []outcome.CoinFace `json:"guesses"`
}

type CoinflipStartRequest struct {
	UserID   string  `json:"user_id"`
	Stake    float64 `json:"stake"`
	Currency string  `json:"currency"`
}

type CoinflipStartResponse struct {
	SessionID  string         `json:"session_id"`
	MaxStreak  int            `json:"max_streak"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type CoinflipGuessRequest struct {
	UserID string           `json:"user_id"`
	Guess  outcome.CoinFace `json:"guess"`
}

type CoinflipGuessResponse struct {
	Face       outcome.CoinFace   `json:"face"`
	Correct    bool               `json:"correct"`
	Status     SessionStatus      `json:"status"`
	Streak     int                `json:"streak"`
	Multiplier float64            `json:"multiplier"`
	Payout     float64            `json:"payout,omitempty"`
	Faces      []outcome.CoinFace `json:"faces,omitempty"` // terminal only
	Seed       *SeedCommitment    `json:"seed,omitempty"`  // terminal only
}

type CoinflipCashoutRequest struct {
	UserID string `json:"user_id"`
}

type CoinflipCashoutResponse struct {
	Multiplier float64            `json:"multiplier"`
	Payout     float64            `json:"payout"`
	Faces      []outcome.CoinFace `json:"faces"`
	Seed       *SeedCommitment    `json:"seed"`
}

type CoinflipStateResponse struct {
	SessionID  string             `json:"session_id"`
	MaxStreak  int                `json:"max_streak"`
	Guesses    []outcome.CoinFace `json:"guesses"`
	Streak     int                `json:"streak"`
	Multiplier float64            `json:"multiplier"`
	Commitment SeedCommitment     `json:"commitment"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

type CoinflipEngine struct {
	core sessionCore
	cfg  config.Coinflip
}

func NewCoinflipEngine(core sessionCore, cfg config.Coinflip) *CoinflipEngine {
	core.logger = core.logger.WithPrefix("coinflip")
	return &CoinflipEngine{core: core, cfg: cfg}
}

func (e *CoinflipEngine) Type() GameType { return GameTypeCoinflip }

func (e *CoinflipEngine) Start(ctx context.Context, req interface{}) (interface{}, error) {
	startReq, ok := req.(CoinflipStartRequest)
	if !ok {
		return nil, fmt.Errorf("coinflip: invalid start request type %T", req)
	}

	pair, err := e.core.begin(ctx, GameTypeCoinflip, startReq.UserID, startReq.Stake, startReq.Currency)
	if err != nil {
		return nil, err
	}

	floats, err := rng.Floats(pair.ServerSeed, pair.ClientSeed, pair.Nonce, e.cfg.MaxStreak)
	if err != nil {
		e.core.abortStart(ctx, GameTypeCoinflip, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}
	faces := make([]outcome.CoinFace, e.cfg.MaxStreak)
	for i, f := range floats {
		faces[i] = outcome.Coin(f)
	}

	rec := CoinflipSession{
		SessionBase: e.core.newBase(GameTypeCoinflip, startReq.UserID, startReq.Stake, startReq.Currency, pair),
		Faces:       faces,
		Guesses:     []outcome.CoinFace{},
	}
	if err := e.core.save(ctx, GameTypeCoinflip, startReq.UserID, rec); err != nil {
		e.core.abortStart(ctx, GameTypeCoinflip, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	e.core.logger.Info("session started", "user", startReq.UserID, "session", rec.ID)
	return CoinflipStartResponse{
		SessionID:  rec.ID,
		MaxStreak:  e.cfg.MaxStreak,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (e *CoinflipEngine) Action(ctx context.Context, action string, req interface{}) (interface{}, error) {
	switch action {
	case "flip":
		guessReq, ok := req.(CoinflipGuessRequest)
		if !ok {
			return nil, fmt.Errorf("coinflip: invalid guess request type %T", req)
		}
		return e.flip(ctx, guessReq)
	case "cashout":
		cashoutReq, ok := req.(CoinflipCashoutRequest)
		if !ok {
			return nil, fmt.Errorf("coinflip: invalid cashout request type %T", req)
		}
		return e.cashOut(ctx, cashoutReq)
	default:
		return nil, fmt.Errorf("coinflip: unknown action %q", action)
	}
}

func (e *CoinflipEngine) flip(ctx context.Context, req CoinflipGuessRequest) (interface{}, error) {
	if req.Guess != outcome.Heads && req.Guess != outcome.Tails {
		return nil, fmt.Errorf("%w: guess %q", ErrPositionInvalid, req.Guess)
	}

	release, err := e.core.lock(ctx, GameTypeCoinflip, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec CoinflipSession
	if err := e.core.load(ctx, GameTypeCoinflip, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}

	face := rec.Faces[rec.Progress]
	rec.Guesses = append(rec.Guesses, req.Guess)

	if req.Guess != face {
		rec.Status = SessionBusted
		out, _ := json.Marshal(map[string]interface{}{"faces": rec.Faces, "guesses": rec.Guesses})
		if _, err := e.core.settle(ctx, &rec.SessionBase, history.ResultLoss, out); err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return CoinflipGuessResponse{
			Face:       face,
			Status:     SessionBusted,
			Streak:     rec.Progress,
			Multiplier: 0,
			Faces:      rec.Faces,
			Seed:       &seed,
		}, nil
	}

	rec.Progress++
	rec.Multiplier = outcome.CoinMultiplier(rec.Progress, e.cfg.HouseEdge)

	if rec.Progress == e.cfg.MaxStreak {
		rec.Status = SessionCompleted
		out, _ := json.Marshal(map[string]interface{}{"faces": rec.Faces, "guesses": rec.Guesses})
		hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
		if err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return CoinflipGuessResponse{
			Face:       face,
			Correct:    true,
			Status:     SessionCompleted,
			Streak:     rec.Progress,
			Multiplier: rec.Multiplier,
			Payout:     hrec.Payout,
			Faces:      rec.Faces,
			Seed:       &seed,
		}, nil
	}

	if err := e.core.save(ctx, GameTypeCoinflip, req.UserID, rec); err != nil {
		return nil, err
	}
	return CoinflipGuessResponse{
		Face:       face,
		Correct:    true,
		Status:     SessionActive,
		Streak:     rec.Progress,
		Multiplier: rec.Multiplier,
	}, nil
}

func (e *CoinflipEngine) cashOut(ctx context.Context, req CoinflipCashoutRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeCoinflip, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec CoinflipSession
	if err := e.core.load(ctx, GameTypeCoinflip, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if rec.Progress == 0 {
		return nil, ErrNothingToCashOut
	}

	rec.Status = SessionCashedOut
	out, _ := json.Marshal(map[string]interface{}{"faces": rec.Faces, "guesses": rec.Guesses})
	hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
	if err != nil {
		return nil, err
	}
	seed := rec.Commitment()
	return CoinflipCashoutResponse{
		Multiplier: rec.Multiplier,
		Payout:     hrec.Payout,
		Faces:      rec.Faces,
		Seed:       &seed,
	}, nil
}

func (e *CoinflipEngine) ActiveSession(ctx context.Context, userID string) (interface{}, error) {
	var rec CoinflipSession
	if err := e.core.load(ctx, GameTypeCoinflip, userID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	return CoinflipStateResponse{
		SessionID:  rec.ID,
		MaxStreak:  e.cfg.MaxStreak,
		Guesses:    rec.Guesses,
		Streak:     rec.Progress,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

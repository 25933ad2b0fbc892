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

// hiloDeckFactor bounds the card stream drawn at session start: enough for
// every step plus pushed ties, all from the committed seed.
const hiloDeckFactor = 3

// HiloSession walks a pre-drawn card sequence. Each step the player calls
// higher or lower against the current card; ties push (the card is consumed,
// progress and multiplier stay). The multiplier folds the win chance of
// every completed step, so harder calls pay more.
type HiloSession struct {
	SessionBase
	Cards   []outcome.Card `json:"cards"`
	CardIdx int            `json:"card_idx"`
	Chances []float64      `json:"chances"`
}

type HiloStartRequest struct {
	UserID   string  `json:"user_id"`
	Stake    float64 `json:"stake"`
	Currency string  `json:"currency"`
}

type HiloStartResponse struct {
	SessionID  string         `json:"session_id"`
	Card       outcome.Card   `json:"card"`
	MaxSteps   int            `json:"max_steps"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type HiloGuessRequest struct {
	UserID string `json:"user_id"`
	Higher bool   `json:"higher"`
}

type HiloGuessResponse struct {
	Card       outcome.Card   `json:"card"`
	Push       bool           `json:"push,omitempty"`
	Correct    bool           `json:"correct"`
	Status     SessionStatus  `json:"status"`
	Progress   int            `json:"progress"`
	Multiplier float64        `json:"multiplier"`
	Payout     float64        `json:"payout,omitempty"`
	Cards      []outcome.Card  `json:"cards,omitempty"` // terminal only
	Seed       *SeedCommitment `json:"seed,omitempty"`  // terminal only
}

type HiloCashoutRequest struct {
	UserID string `json:"user_id"`
}

type HiloCashoutResponse struct {
	Multiplier float64         `json:"multiplier"`
	Payout     float64         `json:"payout"`
	Cards      []outcome.Card  `json:"cards"`
	Seed       *SeedCommitment `json:"seed"`
}

type HiloStateResponse struct {
	SessionID  string         `json:"session_id"`
	Card       outcome.Card   `json:"card"`
	MaxSteps   int            `json:"max_steps"`
	Progress   int            `json:"progress"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type HiloEngine struct {
	core sessionCore
	cfg  config.Hilo
}

func NewHiloEngine(core sessionCore, cfg config.Hilo) *HiloEngine {
	core.logger = core.logger.WithPrefix("hilo")
	return &HiloEngine{core: core, cfg: cfg}
}

func (e *HiloEngine) Type() GameType { return GameTypeHilo }

func (e *HiloEngine) Start(ctx context.Context, req interface{}) (interface{}, error) {
	startReq, ok := req.(HiloStartRequest)
	if !ok {
		return nil, fmt.Errorf("hilo: invalid start request type %T", req)
	}

	pair, err := e.core.begin(ctx, GameTypeHilo, startReq.UserID, startReq.Stake, startReq.Currency)
	if err != nil {
		return nil, err
	}

	deckSize := e.cfg.MaxSteps*hiloDeckFactor + 1
	floats, err := rng.Floats(pair.ServerSeed, pair.ClientSeed, pair.Nonce, deckSize)
	if err != nil {
		e.core.abortStart(ctx, GameTypeHilo, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}
	cards := make([]outcome.Card, deckSize)
	for i, f := range floats {
		cards[i] = outcome.DrawCard(f)
	}

	rec := HiloSession{
		SessionBase: e.core.newBase(GameTypeHilo, startReq.UserID, startReq.Stake, startReq.Currency, pair),
		Cards:       cards,
		Chances:     []float64{},
	}
	if err := e.core.save(ctx, GameTypeHilo, startReq.UserID, rec); err != nil {
		e.core.abortStart(ctx, GameTypeHilo, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	e.core.logger.Info("session started", "user", startReq.UserID, "session", rec.ID)
	return HiloStartResponse{
		SessionID:  rec.ID,
		Card:       cards[0],
		MaxSteps:   e.cfg.MaxSteps,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (e *HiloEngine) Action(ctx context.Context, action string, req interface{}) (interface{}, error) {
	switch action {
	case "guess":
		guessReq, ok := req.(HiloGuessRequest)
		if !ok {
			return nil, fmt.Errorf("hilo: invalid guess request type %T", req)
		}
		return e.guess(ctx, guessReq)
	case "cashout":
		cashoutReq, ok := req.(HiloCashoutRequest)
		if !ok {
			return nil, fmt.Errorf("hilo: invalid cashout request type %T", req)
		}
		return e.cashOut(ctx, cashoutReq)
	default:
		return nil, fmt.Errorf("hilo: unknown action %q", action)
	}
}

func (e *HiloEngine) guess(ctx context.Context, req HiloGuessRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeHilo, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec HiloSession
	if err := e.core.load(ctx, GameTypeHilo, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}

	current := rec.Cards[rec.CardIdx]
	chance := outcome.HiloStepChance(current.Rank, req.Higher)
	if chance == 0 {
		// there is no card that wins this call
		return nil, fmt.Errorf("%w: no winning card for that call", ErrPositionInvalid)
	}

	rec.CardIdx++
	next := rec.Cards[rec.CardIdx]

	if next.Rank == current.Rank {
		// push: card consumed, nothing else moves. A push on the last card
		// exhausts the deck, so the session settles at whatever the streak
		// has earned.
		if rec.CardIdx == len(rec.Cards)-1 {
			rec.Status = SessionCompleted
			out, _ := json.Marshal(map[string]interface{}{"cards": rec.Cards})
			hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
			if err != nil {
				return nil, err
			}
			seed := rec.Commitment()
			return HiloGuessResponse{
				Card:       next,
				Push:       true,
				Status:     SessionCompleted,
				Progress:   rec.Progress,
				Multiplier: rec.Multiplier,
				Payout:     hrec.Payout,
				Cards:      rec.Cards,
				Seed:       &seed,
			}, nil
		}
		if err := e.core.save(ctx, GameTypeHilo, req.UserID, rec); err != nil {
			return nil, err
		}
		return HiloGuessResponse{
			Card:       next,
			Push:       true,
			Status:     SessionActive,
			Progress:   rec.Progress,
			Multiplier: rec.Multiplier,
		}, nil
	}

	won := next.Rank > current.Rank
	if !req.Higher {
		won = next.Rank < current.Rank
	}
	if !won {
		rec.Status = SessionBusted
		out, _ := json.Marshal(map[string]interface{}{"cards": rec.Cards[:rec.CardIdx+1]})
		if _, err := e.core.settle(ctx, &rec.SessionBase, history.ResultLoss, out); err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return HiloGuessResponse{
			Card:       next,
			Status:     SessionBusted,
			Progress:   rec.Progress,
			Multiplier: 0,
			Cards:      rec.Cards[:rec.CardIdx+1],
			Seed:       &seed,
		}, nil
	}

	rec.Progress++
	rec.Chances = append(rec.Chances, chance)
	rec.Multiplier = outcome.HiloMultiplier(rec.Chances, e.cfg.HouseEdge)

	if rec.Progress == e.cfg.MaxSteps || rec.CardIdx == len(rec.Cards)-1 {
		rec.Status = SessionCompleted
		out, _ := json.Marshal(map[string]interface{}{"cards": rec.Cards[:rec.CardIdx+1]})
		hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
		if err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return HiloGuessResponse{
			Card:       next,
			Correct:    true,
			Status:     SessionCompleted,
			Progress:   rec.Progress,
			Multiplier: rec.Multiplier,
			Payout:     hrec.Payout,
			Cards:      rec.Cards[:rec.CardIdx+1],
			Seed:       &seed,
		}, nil
	}

	if err := e.core.save(ctx, GameTypeHilo, req.UserID, rec); err != nil {
		return nil, err
	}
	return HiloGuessResponse{
		Card:       next,
		Correct:    true,
		Status:     SessionActive,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
	}, nil
}

func (e *HiloEngine) cashOut(ctx context.Context, req HiloCashoutRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeHilo, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec HiloSession
	if err := e.core.load(ctx, GameTypeHilo, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if rec.Progress == 0 {
		return nil, ErrNothingToCashOut
	}

	rec.Status = SessionCashedOut
	out, _ := json.Marshal(map[string]interface{}{"cards": rec.Cards[:rec.CardIdx+1]})
	hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
	if err != nil {
		return nil, err
	}
	seed := rec.Commitment()
	return HiloCashoutResponse{
		Multiplier: rec.Multiplier,
		Payout:     hrec.Payout,
		Cards:      rec.Cards[:rec.CardIdx+1],
		Seed:       &seed,
	}, nil
}

func (e *HiloEngine) ActiveSession(ctx context.Context, userID string) (interface{}, error) {
	var rec HiloSession
	if err := e.core.load(ctx, GameTypeHilo, userID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	return HiloStateResponse{
		SessionID:  rec.ID,
		Card:       rec.Cards[rec.CardIdx],
		MaxSteps:   e.cfg.MaxSteps,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

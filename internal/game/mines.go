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

// MinesSession is the stored record of one hidden-hazard-grid game. Mine
// positions are part of the record but never leave the server while the
// session is live.
type MinesSession struct {
	SessionBase
	MineCount int   `json:"mine_count"`
	Mines     []int `json:"mines"`
	Revealed  []int `json:"revealed"`
}

type MinesStartRequest struct {
	UserID    string  `json:"user_id"`
	Stake     float64 `json:"stake"`
	Currency  string  `json:"currency"`
	MineCount int     `json:"mine_count"`
}

type MinesStartResponse struct {
	SessionID  string         `json:"session_id"`
	GridSize   int            `json:"grid_size"`
	MineCount  int            `json:"mine_count"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type MinesRevealRequest struct {
	UserID string `json:"user_id"`
	Tile   int    `json:"tile"`
}

type MinesRevealResponse struct {
	Tile       int           `json:"tile"`
	Mine       bool          `json:"mine"`
	Status     SessionStatus `json:"status"`
	Progress   int           `json:"progress"`
	Multiplier float64       `json:"multiplier"`
	Payout     float64       `json:"payout,omitempty"`
	Mines      []int           `json:"mines,omitempty"` // terminal only
	Seed       *SeedCommitment `json:"seed,omitempty"`  // terminal only
}

type MinesCashoutRequest struct {
	UserID string `json:"user_id"`
}

type MinesCashoutResponse struct {
	Multiplier float64         `json:"multiplier"`
	Payout     float64         `json:"payout"`
	Mines      []int           `json:"mines"`
	Seed       *SeedCommitment `json:"seed"`
}

// MinesStateResponse is the live view: no mine positions.
type MinesStateResponse struct {
	SessionID  string         `json:"session_id"`
	GridSize   int            `json:"grid_size"`
	MineCount  int            `json:"mine_count"`
	Revealed   []int          `json:"revealed"`
	Progress   int            `json:"progress"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type MinesEngine struct {
	core sessionCore
	cfg  config.Mines
}

func NewMinesEngine(core sessionCore, cfg config.Mines) *MinesEngine {
	core.logger = core.logger.WithPrefix("mines")
	return &MinesEngine{core: core, cfg: cfg}
}

func (e *MinesEngine) Type() GameType { return GameTypeMines }

func (e *MinesEngine) Start(ctx context.Context, req interface{}) (interface{}, error) {
	startReq, ok := req.(MinesStartRequest)
	if !ok {
		return nil, fmt.Errorf("mines: invalid start request type %T", req)
	}
	if startReq.MineCount < e.cfg.MinMines || startReq.MineCount > e.cfg.MaxMines {
		return nil, fmt.Errorf("%w: mine count %d not in [%d, %d]",
			ErrPositionInvalid, startReq.MineCount, e.cfg.MinMines, e.cfg.MaxMines)
	}

	pair, err := e.core.begin(ctx, GameTypeMines, startReq.UserID, startReq.Stake, startReq.Currency)
	if err != nil {
		return nil, err
	}

	floats, err := rng.Floats(pair.ServerSeed, pair.ClientSeed, pair.Nonce, startReq.MineCount)
	if err != nil {
		e.core.abortStart(ctx, GameTypeMines, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}
	mines, err := outcome.HazardLayout(floats, e.cfg.GridSize, startReq.MineCount)
	if err != nil {
		e.core.abortStart(ctx, GameTypeMines, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	rec := MinesSession{
		SessionBase: e.core.newBase(GameTypeMines, startReq.UserID, startReq.Stake, startReq.Currency, pair),
		MineCount:   startReq.MineCount,
		Mines:       mines,
		Revealed:    []int{},
	}
	if err := e.core.save(ctx, GameTypeMines, startReq.UserID, rec); err != nil {
		e.core.abortStart(ctx, GameTypeMines, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	e.core.logger.Info("session started",
		"user", startReq.UserID, "session", rec.ID, "mines", startReq.MineCount)
	return MinesStartResponse{
		SessionID:  rec.ID,
		GridSize:   e.cfg.GridSize,
		MineCount:  rec.MineCount,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (e *MinesEngine) Action(ctx context.Context, action string, req interface{}) (interface{}, error) {
	switch action {
	case "reveal":
		revealReq, ok := req.(MinesRevealRequest)
		if !ok {
			return nil, fmt.Errorf("mines: invalid reveal request type %T", req)
		}
		return e.reveal(ctx, revealReq)
	case "cashout":
		cashoutReq, ok := req.(MinesCashoutRequest)
		if !ok {
			return nil, fmt.Errorf("mines: invalid cashout request type %T", req)
		}
		return e.cashOut(ctx, cashoutReq)
	default:
		return nil, fmt.Errorf("mines: unknown action %q", action)
	}
}

func (e *MinesEngine) reveal(ctx context.Context, req MinesRevealRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeMines, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec MinesSession
	if err := e.core.load(ctx, GameTypeMines, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if req.Tile < 0 || req.Tile >= e.cfg.GridSize {
		return nil, fmt.Errorf("%w: tile %d", ErrPositionInvalid, req.Tile)
	}
	for _, t := range rec.Revealed {
		if t == req.Tile {
			return nil, ErrPositionUsed
		}
	}

	for _, m := range rec.Mines {
		if m == req.Tile {
			return e.bust(ctx, &rec, req.Tile)
		}
	}

	rec.Revealed = append(rec.Revealed, req.Tile)
	rec.Progress = len(rec.Revealed)
	rec.Multiplier = outcome.MinesMultiplier(e.cfg.GridSize, rec.MineCount, rec.Progress, e.cfg.HouseEdge)

	if rec.Progress == e.cfg.GridSize-rec.MineCount {
		// every safe tile revealed
		rec.Status = SessionCompleted
		out, _ := json.Marshal(map[string]interface{}{"mines": rec.Mines, "revealed": rec.Revealed})
		hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
		if err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return MinesRevealResponse{
			Tile:       req.Tile,
			Status:     SessionCompleted,
			Progress:   rec.Progress,
			Multiplier: rec.Multiplier,
			Payout:     hrec.Payout,
			Mines:      rec.Mines,
			Seed:       &seed,
		}, nil
	}

	if err := e.core.save(ctx, GameTypeMines, req.UserID, rec); err != nil {
		return nil, err
	}
	return MinesRevealResponse{
		Tile:       req.Tile,
		Status:     SessionActive,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
	}, nil
}

func (e *MinesEngine) bust(ctx context.Context, rec *MinesSession, tile int) (interface{}, error) {
	rec.Status = SessionBusted
	rec.Revealed = append(rec.Revealed, tile)
	out, _ := json.Marshal(map[string]interface{}{"mines": rec.Mines, "hit": tile})
	if _, err := e.core.settle(ctx, &rec.SessionBase, history.ResultLoss, out); err != nil {
		return nil, err
	}
	seed := rec.Commitment()
	return MinesRevealResponse{
		Tile:       tile,
		Mine:       true,
		Status:     SessionBusted,
		Progress:   rec.Progress,
		Multiplier: 0,
		Mines:      rec.Mines,
		Seed:       &seed,
	}, nil
}

func (e *MinesEngine) cashOut(ctx context.Context, req MinesCashoutRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeMines, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec MinesSession
	if err := e.core.load(ctx, GameTypeMines, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if rec.Progress == 0 {
		return nil, ErrNothingToCashOut
	}

	rec.Status = SessionCashedOut
	out, _ := json.Marshal(map[string]interface{}{"mines": rec.Mines, "revealed": rec.Revealed})
	hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
	if err != nil {
		return nil, err
	}
	seed := rec.Commitment()
	return MinesCashoutResponse{
		Multiplier: rec.Multiplier,
		Payout:     hrec.Payout,
		Mines:      rec.Mines,
		Seed:       &seed,
	}, nil
}

func (e *MinesEngine) ActiveSession(ctx context.Context, userID string) (interface{}, error) {
	var rec MinesSession
	if err := e.core.load(ctx, GameTypeMines, userID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	return MinesStateResponse{
		SessionID:  rec.ID,
		GridSize:   e.cfg.GridSize,
		MineCount:  rec.MineCount,
		Revealed:   rec.Revealed,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

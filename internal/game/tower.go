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

// TowerSession is one climb up a hazard tower. Layout holds the hazard
// columns per row, bottom first; Path records the climbed columns.
type TowerSession struct {
	SessionBase
	Cols   int     `json:"cols"`
	Layout [][]int `json:"layout"`
	Path   []int   `json:"path"`
}

type TowerStartRequest struct {
	UserID   string  `json:"user_id"`
	Stake    float64 `json:"stake"`
	Currency string  `json:"currency"`
	Cols     int     `json:"cols"`
}

type TowerStartResponse struct {
	SessionID  string         `json:"session_id"`
	Rows       int            `json:"rows"`
	Cols       int            `json:"cols"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type TowerClimbRequest struct {
	UserID string `json:"user_id"`
	Col    int    `json:"col"`
}

type TowerClimbResponse struct {
	Row        int           `json:"row"`
	Col        int           `json:"col"`
	Hazard     bool          `json:"hazard"`
	Status     SessionStatus `json:"status"`
	Progress   int           `json:"progress"`
	Multiplier float64       `json:"multiplier"`
	Payout     float64       `json:"payout,omitempty"`
	Layout     [][]int         `json:"layout,omitempty"` // terminal only
	Seed       *SeedCommitment `json:"seed,omitempty"`   // terminal only
}

type TowerCashoutRequest struct {
	UserID string `json:"user_id"`
}

type TowerCashoutResponse struct {
	Multiplier float64         `json:"multiplier"`
	Payout     float64         `json:"payout"`
	Layout     [][]int         `json:"layout"`
	Seed       *SeedCommitment `json:"seed"`
}

type TowerStateResponse struct {
	SessionID  string         `json:"session_id"`
	Rows       int            `json:"rows"`
	Cols       int            `json:"cols"`
	Path       []int          `json:"path"`
	Progress   int            `json:"progress"`
	Multiplier float64        `json:"multiplier"`
	Commitment SeedCommitment `json:"commitment"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

type TowerEngine struct {
	core sessionCore
	cfg  config.Tower
}

func NewTowerEngine(core sessionCore, cfg config.Tower) *TowerEngine {
	core.logger = core.logger.WithPrefix("tower")
	return &TowerEngine{core: core, cfg: cfg}
}

func (e *TowerEngine) Type() GameType { return GameTypeTower }

func (e *TowerEngine) Start(ctx context.Context, req interface{}) (interface{}, error) {
	startReq, ok := req.(TowerStartRequest)
	if !ok {
		return nil, fmt.Errorf("tower: invalid start request type %T", req)
	}
	if startReq.Cols < e.cfg.MinCols || startReq.Cols > e.cfg.MaxCols {
		return nil, fmt.Errorf("%w: %d columns not in [%d, %d]",
			ErrPositionInvalid, startReq.Cols, e.cfg.MinCols, e.cfg.MaxCols)
	}

	pair, err := e.core.begin(ctx, GameTypeTower, startReq.UserID, startReq.Stake, startReq.Currency)
	if err != nil {
		return nil, err
	}

	floats, err := rng.Floats(pair.ServerSeed, pair.ClientSeed, pair.Nonce, e.cfg.Rows*e.cfg.HazardsPerRow)
	if err != nil {
		e.core.abortStart(ctx, GameTypeTower, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}
	layout, err := outcome.TowerLayout(floats, e.cfg.Rows, startReq.Cols, e.cfg.HazardsPerRow)
	if err != nil {
		e.core.abortStart(ctx, GameTypeTower, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	rec := TowerSession{
		SessionBase: e.core.newBase(GameTypeTower, startReq.UserID, startReq.Stake, startReq.Currency, pair),
		Cols:        startReq.Cols,
		Layout:      layout,
		Path:        []int{},
	}
	if err := e.core.save(ctx, GameTypeTower, startReq.UserID, rec); err != nil {
		e.core.abortStart(ctx, GameTypeTower, startReq.UserID, startReq.Stake, startReq.Currency, pair)
		return nil, err
	}

	e.core.logger.Info("session started",
		"user", startReq.UserID, "session", rec.ID, "cols", startReq.Cols)
	return TowerStartResponse{
		SessionID:  rec.ID,
		Rows:       e.cfg.Rows,
		Cols:       rec.Cols,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

func (e *TowerEngine) Action(ctx context.Context, action string, req interface{}) (interface{}, error) {
	switch action {
	case "climb":
		climbReq, ok := req.(TowerClimbRequest)
		if !ok {
			return nil, fmt.Errorf("tower: invalid climb request type %T", req)
		}
		return e.climb(ctx, climbReq)
	case "cashout":
		cashoutReq, ok := req.(TowerCashoutRequest)
		if !ok {
			return nil, fmt.Errorf("tower: invalid cashout request type %T", req)
		}
		return e.cashOut(ctx, cashoutReq)
	default:
		return nil, fmt.Errorf("tower: unknown action %q", action)
	}
}

func (e *TowerEngine) climb(ctx context.Context, req TowerClimbRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeTower, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec TowerSession
	if err := e.core.load(ctx, GameTypeTower, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if req.Col < 0 || req.Col >= rec.Cols {
		return nil, fmt.Errorf("%w: column %d", ErrPositionInvalid, req.Col)
	}

	row := rec.Progress
	for _, hazard := range rec.Layout[row] {
		if hazard == req.Col {
			rec.Status = SessionBusted
			rec.Path = append(rec.Path, req.Col)
			out, _ := json.Marshal(map[string]interface{}{"layout": rec.Layout, "fell_at_row": row})
			if _, err := e.core.settle(ctx, &rec.SessionBase, history.ResultLoss, out); err != nil {
				return nil, err
			}
			seed := rec.Commitment()
			return TowerClimbResponse{
				Row:        row,
				Col:        req.Col,
				Hazard:     true,
				Status:     SessionBusted,
				Progress:   rec.Progress,
				Multiplier: 0,
				Layout:     rec.Layout,
				Seed:       &seed,
			}, nil
		}
	}

	rec.Path = append(rec.Path, req.Col)
	rec.Progress++
	rec.Multiplier = outcome.TowerMultiplier(rec.Cols, e.cfg.HazardsPerRow, rec.Progress, e.cfg.HouseEdge)

	if rec.Progress == e.cfg.Rows {
		rec.Status = SessionCompleted
		out, _ := json.Marshal(map[string]interface{}{"layout": rec.Layout, "path": rec.Path})
		hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
		if err != nil {
			return nil, err
		}
		seed := rec.Commitment()
		return TowerClimbResponse{
			Row:        row,
			Col:        req.Col,
			Status:     SessionCompleted,
			Progress:   rec.Progress,
			Multiplier: rec.Multiplier,
			Payout:     hrec.Payout,
			Layout:     rec.Layout,
			Seed:       &seed,
		}, nil
	}

	if err := e.core.save(ctx, GameTypeTower, req.UserID, rec); err != nil {
		return nil, err
	}
	return TowerClimbResponse{
		Row:        row,
		Col:        req.Col,
		Status:     SessionActive,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
	}, nil
}

func (e *TowerEngine) cashOut(ctx context.Context, req TowerCashoutRequest) (interface{}, error) {
	release, err := e.core.lock(ctx, GameTypeTower, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec TowerSession
	if err := e.core.load(ctx, GameTypeTower, req.UserID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	if rec.Progress == 0 {
		return nil, ErrNothingToCashOut
	}

	rec.Status = SessionCashedOut
	out, _ := json.Marshal(map[string]interface{}{"layout": rec.Layout, "path": rec.Path})
	hrec, err := e.core.settle(ctx, &rec.SessionBase, history.ResultWin, out)
	if err != nil {
		return nil, err
	}
	seed := rec.Commitment()
	return TowerCashoutResponse{
		Multiplier: rec.Multiplier,
		Payout:     hrec.Payout,
		Layout:     rec.Layout,
		Seed:       &seed,
	}, nil
}

func (e *TowerEngine) ActiveSession(ctx context.Context, userID string) (interface{}, error) {
	var rec TowerSession
	if err := e.core.load(ctx, GameTypeTower, userID, &rec); err != nil {
		return nil, err
	}
	if rec.Status != SessionActive {
		return nil, ErrNoSession
	}
	return TowerStateResponse{
		SessionID:  rec.ID,
		Rows:       e.cfg.Rows,
		Cols:       rec.Cols,
		Path:       rec.Path,
		Progress:   rec.Progress,
		Multiplier: rec.Multiplier,
		Commitment: rec.Commitment(),
		ExpiresAt:  rec.ExpiresAt,
	}, nil
}

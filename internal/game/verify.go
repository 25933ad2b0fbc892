package game

import (
	"errors"
	"fmt"

	"fairbet/internal/config"
	"fairbet/internal/outcome"
	"fairbet/internal/rng"
)

// ErrVerifyIntegrity means a revealed server seed does not hash to the
// commitment the player was shown. This is not a rejection; it indicates
// tampering or an engine bug.
var ErrVerifyIntegrity = errors.New("revealed seed does not match its commitment")

// VerifyRequest recomputes an outcome from revealed seed material so a
// player can compare it with what the game showed at play time.
type VerifyRequest struct {
	GameType       GameType `json:"game_type"`
	ServerSeed     string   `json:"server_seed"`
	ServerSeedHash string   `json:"server_seed_hash,omitempty"`
	ClientSeed     string   `json:"client_seed"`
	Nonce          uint64   `json:"nonce"`

	// game-specific parameters
	MineCount int `json:"mine_count,omitempty"`
	Cols      int `json:"cols,omitempty"`
}

type VerifyResponse struct {
	GameType       GameType    `json:"game_type"`
	ServerSeedHash string      `json:"server_seed_hash"`
	Outcome        interface{} `json:"outcome"`
}

// Verifier recomputes outcomes with the same configuration the live engines
// use, independently of any stored state.
type Verifier struct {
	cfg config.Games
}

func NewVerifier(cfg config.Games) *Verifier {
	return &Verifier{cfg: cfg}
}

func (v *Verifier) Verify(req VerifyRequest) (VerifyResponse, error) {
	if req.ServerSeed == "" {
		return VerifyResponse{}, rng.ErrEmptyServerSeed
	}
	if req.ServerSeedHash != "" && !rng.VerifyCommitment(req.ServerSeed, req.ServerSeedHash) {
		return VerifyResponse{}, fmt.Errorf("%w: got %s", ErrVerifyIntegrity, rng.Commitment(req.ServerSeed))
	}

	resp := VerifyResponse{
		GameType:       req.GameType,
		ServerSeedHash: rng.Commitment(req.ServerSeed),
	}

	switch req.GameType {
	case GameTypeCrash:
		floats, err := rng.Floats(req.ServerSeed, req.ClientSeed, req.Nonce, 1)
		if err != nil {
			return VerifyResponse{}, err
		}
		resp.Outcome = map[string]interface{}{
			"crash_point": outcome.CrashPoint(floats[0], outcome.CrashConfig{
				HouseEdge:     v.cfg.Crash.HouseEdge,
				MinMultiplier: v.cfg.Crash.MinMultiplier,
				MaxMultiplier: v.cfg.Crash.MaxMultiplier,
			}),
		}

	case GameTypeMines:
		if req.MineCount < v.cfg.Mines.MinMines || req.MineCount > v.cfg.Mines.MaxMines {
			return VerifyResponse{}, fmt.Errorf("%w: mine count %d", ErrPositionInvalid, req.MineCount)
		}
		floats, err := rng.Floats(req.ServerSeed, req.ClientSeed, req.Nonce, req.MineCount)
		if err != nil {
			return VerifyResponse{}, err
		}
		mines, err := outcome.HazardLayout(floats, v.cfg.Mines.GridSize, req.MineCount)
		if err != nil {
			return VerifyResponse{}, err
		}
		resp.Outcome = map[string]interface{}{"mines": mines}

	case GameTypeTower:
		if req.Cols < v.cfg.Tower.MinCols || req.Cols > v.cfg.Tower.MaxCols {
			return VerifyResponse{}, fmt.Errorf("%w: %d columns", ErrPositionInvalid, req.Cols)
		}
		floats, err := rng.Floats(req.ServerSeed, req.ClientSeed, req.Nonce,
			v.cfg.Tower.Rows*v.cfg.Tower.HazardsPerRow)
		if err != nil {
			return VerifyResponse{}, err
		}
		layout, err := outcome.TowerLayout(floats, v.cfg.Tower.Rows, req.Cols, v.cfg.Tower.HazardsPerRow)
		if err != nil {
			return VerifyResponse{}, err
		}
		resp.Outcome = map[string]interface{}{"layout": layout}

	case GameTypeCoinflip:
		floats, err := rng.Floats(req.ServerSeed, req.ClientSeed, req.Nonce, v.cfg.Coinflip.MaxStreak)
		if err != nil {
			return VerifyResponse{}, err
		}
		faces := make([]outcome.CoinFace, len(floats))
		for i, f := range floats {
			faces[i] = outcome.Coin(f)
		}
		resp.Outcome = map[string]interface{}{"faces": faces}

	case GameTypeHilo:
		deckSize := v.cfg.Hilo.MaxSteps*hiloDeckFactor + 1
		floats, err := rng.Floats(req.ServerSeed, req.ClientSeed, req.Nonce, deckSize)
		if err != nil {
			return VerifyResponse{}, err
		}
		cards := make([]outcome.Card, len(floats))
		for i, f := range floats {
			cards[i] = outcome.DrawCard(f)
		}
		resp.Outcome = map[string]interface{}{"cards": cards}

	default:
		return VerifyResponse{}, fmt.Errorf("unknown game type %q", req.GameType)
	}

	return resp, nil
}

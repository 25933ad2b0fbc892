package game

import (
	"errors"
	"time"
)

type GameType string

const (
	GameTypeCrash    GameType = "crash"
	GameTypeMines    GameType = "mines"
	GameTypeTower    GameType = "tower"
	GameTypeCoinflip GameType = "coinflip"
	GameTypeHilo     GameType = "hilo"
)

// Rejected-action errors. These surface to the caller with a stable code,
// are never retried, and leave no partial state behind.
var (
	ErrBetsClosed       = errors.New("round is not accepting bets")
	ErrDuplicateBet     = errors.New("bet already placed this round")
	ErrBetNotFound      = errors.New("bet not found")
	ErrCashoutClosed    = errors.New("cashout is not available")
	ErrAlreadySettled   = errors.New("already settled")
	ErrSessionActive    = errors.New("session already in progress")
	ErrNoSession        = errors.New("no active session")
	ErrSessionBusy      = errors.New("session is processing another action")
	ErrPositionUsed     = errors.New("position already revealed")
	ErrPositionInvalid  = errors.New("position out of range")
	ErrNothingToCashOut = errors.New("nothing to cash out yet")
	ErrStakeOutOfRange  = errors.New("stake outside allowed limits")
	ErrCurrencyRejected = errors.New("currency not accepted")
	ErrUserBlocked      = errors.New("user is not allowed to play")
)

// Round phases for the shared crash game.
type Phase string

const (
	PhaseWaiting Phase = "WAITING"
	PhaseRunning Phase = "RUNNING"
	PhaseCrashed Phase = "CRASHED"
)

// Session statuses for stepped games.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionBusted    SessionStatus = "BUSTED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCashedOut SessionStatus = "CASHED_OUT"
)

// BetEntry is one wager inside the shared crash round. Active flips to false
// exactly once, at settlement; Payout is written at that moment and never
// changes afterward.
type BetEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Stake       float64   `json:"stake"`
	Currency    string    `json:"currency"`
	AutoCashout float64   `json:"auto_cashout,omitempty"`
	Active      bool      `json:"active"`
	Payout      float64   `json:"payout"`
	SettledAt   time.Time `json:"settled_at,omitempty"`
	PlacedAt    time.Time `json:"placed_at"`
}

// SessionBase carries the state every stepped game shares. Game records embed
// it, so one decode of the base is enough for the sweep to reconcile any
// game's session.
type SessionBase struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	GameType   GameType      `json:"game_type"`
	Stake      float64       `json:"stake"`
	Currency   string        `json:"currency"`
	Status     SessionStatus `json:"status"`
	Progress   int           `json:"progress"`
	Multiplier float64       `json:"multiplier"`

	// Seed snapshot taken at session start. The raw server seed goes to the
	// history archive at settlement; it reaches the player only once the
	// pair has rotated out.
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Commitment is the public slice of a session's seed snapshot, safe to show
// while the session is still live.
func (s *SessionBase) Commitment() SeedCommitment {
	return SeedCommitment{
		ServerSeedHash: s.ServerSeedHash,
		ClientSeed:     s.ClientSeed,
		Nonce:          s.Nonce,
	}
}

type SeedCommitment struct {
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

// SeedReveal is the full seed material attached to settlements and history
// records. It never goes into a terminal response: the pair backing a settled
// session is still issuing nonces for the user's other sessions, so the raw
// seed stays server-side until rotation.
type SeedReveal struct {
	ServerSeed     string `json:"server_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
}

func (s *SessionBase) Reveal() SeedReveal {
	return SeedReveal{
		ServerSeed:     s.ServerSeed,
		ServerSeedHash: s.ServerSeedHash,
		ClientSeed:     s.ClientSeed,
		Nonce:          s.Nonce,
	}
}

func sessionKey(gt GameType, userID string) string {
	return "session:" + string(gt) + ":" + userID
}

const sessionKeyPrefix = "session:"

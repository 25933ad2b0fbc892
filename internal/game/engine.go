package game

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"fairbet/internal/config"
	"fairbet/internal/ledger"
	"fairbet/internal/seeds"
	"fairbet/internal/store"
)

// GameEngine is the capability every stepped game implements: validate and
// start a session, advance it on player action, cash it out. Request and
// response shapes differ wildly per game, so they stay opaque here and each
// engine asserts its own types (the API layer constructs them).
type GameEngine interface {
	Type() GameType
	// Start validates the wager, debits the stake and opens a session.
	Start(ctx context.Context, req interface{}) (interface{}, error)
	// Action advances the session one step ("reveal", "climb", "flip",
	// "guess") or cashes it out ("cashout").
	Action(ctx context.Context, action string, req interface{}) (interface{}, error)
	// ActiveSession returns the caller-safe view of the user's live
	// session, or ErrNoSession.
	ActiveSession(ctx context.Context, userID string) (interface{}, error)
}

// Factory dispatches by game-type tag.
type Factory struct {
	engines map[GameType]GameEngine
	logger  *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	return &Factory{
		engines: make(map[GameType]GameEngine),
		logger:  logger.WithPrefix("factory"),
	}
}

func (f *Factory) Register(engine GameEngine) {
	f.engines[engine.Type()] = engine
	f.logger.Info("engine registered", "game", engine.Type())
}

func (f *Factory) Engine(gt GameType) (GameEngine, bool) {
	engine, ok := f.engines[gt]
	return engine, ok
}

// EngineDeps bundles the collaborators shared by every stepped game engine.
type EngineDeps struct {
	Store     store.Store
	Seeds     seeds.Registry
	Ledger    ledger.Ledger
	Settler   *Settler
	Validator *Validator
	Logger    *log.Logger
	TTL       time.Duration
}

// NewEngines builds one engine per stepped game on a shared session core.
func NewEngines(deps EngineDeps, cfg config.Games) []GameEngine {
	core := newSessionCore(
		deps.Store, deps.Seeds, deps.Ledger, deps.Settler,
		deps.Validator, deps.Logger, deps.TTL,
	)
	return []GameEngine{
		NewMinesEngine(core, cfg.Mines),
		NewTowerEngine(core, cfg.Tower),
		NewCoinflipEngine(core, cfg.Coinflip),
		NewHiloEngine(core, cfg.Hilo),
	}
}

func (f *Factory) Types() []GameType {
	types := make([]GameType, 0, len(f.engines))
	for gt := range f.engines {
		types = append(types, gt)
	}
	return types
}

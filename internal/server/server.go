package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"fairbet/internal/cache"
	"fairbet/internal/config"
	"fairbet/internal/database"
	"fairbet/internal/game"
	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/seeds"
	"fairbet/internal/store"
)

// Wallet is the ledger surface the API exposes. Deposit is an admin
// convenience on top of the engine-facing Ledger interface.
type Wallet interface {
	ledger.Ledger
	Deposit(ctx context.Context, userID string, amount float64, currency string) (float64, error)
}

// Deps holds the collaborators the server wires into the engine. Tests swap
// in memory implementations; production uses Redis and Postgres.
type Deps struct {
	DB      database.Service
	Cache   cache.Service
	Wallet  Wallet
	Seeds   seeds.Registry
	History history.Store
	Store   store.Store
	Logger  *log.Logger
}

type FiberServer struct {
	*fiber.App

	cfg      config.Config
	db       database.Service
	cache    cache.Service
	wallet   Wallet
	seeds    seeds.Registry
	history  history.Store
	hub      *game.Hub
	crash    *game.CrashManager
	sweeper  *game.Sweeper
	factory  *game.Factory
	verifier *game.Verifier
	logger   *log.Logger
}

func New(cfg config.Config, deps Deps) *FiberServer {
	logger := deps.Logger

	hub := game.NewHub(logger)
	settler := game.NewSettler(deps.Wallet, deps.History, hub, logger)
	validator := game.NewValidator(game.Limits{
		MinBet:     cfg.Games.MinBet,
		MaxBet:     cfg.Games.MaxBet,
		Currencies: cfg.Games.Currencies,
	}, game.AllowAll{})

	crash := game.NewCrashManager(
		cfg.Games.Crash, validator, deps.Wallet, settler, hub, logger, nil)

	factory := game.NewFactory(logger)
	engines := game.NewEngines(game.EngineDeps{
		Store:     deps.Store,
		Seeds:     deps.Seeds,
		Ledger:    deps.Wallet,
		Settler:   settler,
		Validator: validator,
		Logger:    logger,
		TTL:       cfg.Games.SessionTTL,
	}, cfg.Games)
	for _, engine := range engines {
		factory.Register(engine)
	}

	sweeper := game.NewSweeper(deps.Store, settler, logger, nil, cfg.Games.SweepInterval)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "fairbet",
			AppName:       "fairbet",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		cfg:      cfg,
		db:       deps.DB,
		cache:    deps.Cache,
		wallet:   deps.Wallet,
		seeds:    deps.Seeds,
		history:  deps.History,
		hub:      hub,
		crash:    crash,
		sweeper:  sweeper,
		factory:  factory,
		verifier: game.NewVerifier(cfg.Games),
		logger:   logger.WithPrefix("server"),
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	return server
}

// Hub returns the websocket fan-out loop for the caller to run.
func (s *FiberServer) Hub() *game.Hub { return s.hub }

// Crash returns the round loop for the caller to run.
func (s *FiberServer) Crash() *game.CrashManager { return s.crash }

// Sweeper returns the reconciliation loop for the caller to run.
func (s *FiberServer) Sweeper() *game.Sweeper { return s.sweeper }

// Shutdown closes the listener and the backing connections.
func (s *FiberServer) Shutdown() error {
	s.logger.Info("shutting down")

	if err := s.App.Shutdown(); err != nil {
		s.logger.Error("fiber shutdown", "err", err)
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"fairbet/internal/game"
	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/rng"
	"fairbet/internal/seeds"
)

// errStatus maps engine rejections to HTTP status codes. Anything outside
// the known taxonomy is a 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrStakeOutOfRange),
		errors.Is(err, game.ErrCurrencyRejected),
		errors.Is(err, game.ErrBetsClosed),
		errors.Is(err, game.ErrCashoutClosed),
		errors.Is(err, game.ErrDuplicateBet),
		errors.Is(err, game.ErrAlreadySettled),
		errors.Is(err, game.ErrPositionUsed),
		errors.Is(err, game.ErrPositionInvalid),
		errors.Is(err, game.ErrNothingToCashOut),
		errors.Is(err, rng.ErrEmptyServerSeed):
		return fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrUserBlocked):
		return fiber.StatusForbidden
	case errors.Is(err, game.ErrNoSession),
		errors.Is(err, game.ErrBetNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrSessionActive),
		errors.Is(err, game.ErrSessionBusy):
		return fiber.StatusConflict
	case errors.Is(err, seeds.ErrSeedIntegrity),
		errors.Is(err, game.ErrVerifyIntegrity):
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// Crash handlers

func (s *FiberServer) crashRoundHandler(c *fiber.Ctx) error {
	snap := s.crash.Round()
	if snap.RoundID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no active round",
		})
	}
	return c.JSON(snap)
}

func (s *FiberServer) crashBetHandler(c *fiber.Ctx) error {
	var req game.CrashBetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	resp, err := s.crash.PlaceBet(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) crashCashoutHandler(c *fiber.Ctx) error {
	var req game.CrashCashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	resp, err := s.crash.CashOut(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

// Stepped game handlers

func (s *FiberServer) engineFor(c *fiber.Ctx, gt game.GameType) (game.GameEngine, error) {
	engine, ok := s.factory.Engine(gt)
	if !ok {
		return nil, c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": string(gt) + " is not available",
		})
	}
	return engine, nil
}

func (s *FiberServer) minesStartHandler(c *fiber.Ctx) error {
	var req game.MinesStartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeMines)
	if engine == nil {
		return err
	}
	resp, err := engine.Start(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) minesRevealHandler(c *fiber.Ctx) error {
	var req game.MinesRevealRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeMines)
	if engine == nil {
		return err
	}
	resp, err := engine.Action(c.Context(), "reveal", req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) towerStartHandler(c *fiber.Ctx) error {
	var req game.TowerStartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeTower)
	if engine == nil {
		return err
	}
	resp, err := engine.Start(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) towerClimbHandler(c *fiber.Ctx) error {
	var req game.TowerClimbRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeTower)
	if engine == nil {
		return err
	}
	resp, err := engine.Action(c.Context(), "climb", req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) coinflipStartHandler(c *fiber.Ctx) error {
	var req game.CoinflipStartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeCoinflip)
	if engine == nil {
		return err
	}
	resp, err := engine.Start(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) coinflipFlipHandler(c *fiber.Ctx) error {
	var req game.CoinflipGuessRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeCoinflip)
	if engine == nil {
		return err
	}
	resp, err := engine.Action(c.Context(), "flip", req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) hiloStartHandler(c *fiber.Ctx) error {
	var req game.HiloStartRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeHilo)
	if engine == nil {
		return err
	}
	resp, err := engine.Start(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (s *FiberServer) hiloGuessHandler(c *fiber.Ctx) error {
	var req game.HiloGuessRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	engine, err := s.engineFor(c, game.GameTypeHilo)
	if engine == nil {
		return err
	}
	resp, err := engine.Action(c.Context(), "guess", req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

// gameCashoutHandler builds the cash-out handler for one stepped game; the
// request body is the same shape for all of them.
func (s *FiberServer) gameCashoutHandler(gt game.GameType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		if body.UserID == "" {
			return badRequest(c, "user_id is required")
		}

		engine, err := s.engineFor(c, gt)
		if engine == nil {
			return err
		}

		var req interface{}
		switch gt {
		case game.GameTypeMines:
			req = game.MinesCashoutRequest{UserID: body.UserID}
		case game.GameTypeTower:
			req = game.TowerCashoutRequest{UserID: body.UserID}
		case game.GameTypeCoinflip:
			req = game.CoinflipCashoutRequest{UserID: body.UserID}
		case game.GameTypeHilo:
			req = game.HiloCashoutRequest{UserID: body.UserID}
		}

		resp, err := engine.Action(c.Context(), "cashout", req)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(resp)
	}
}

func (s *FiberServer) gameSessionHandler(gt game.GameType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("userId")
		if userID == "" {
			return badRequest(c, "user id is required")
		}

		engine, err := s.engineFor(c, gt)
		if engine == nil {
			return err
		}
		resp, err := engine.ActiveSession(c.Context(), userID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(resp)
	}
}

// Wallet handlers

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	currency := c.Query("currency", s.defaultCurrency())

	balance, err := s.wallet.Balance(c.Context(), userID, currency)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":  userID,
		"currency": currency,
		"balance":  balance,
	})
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var body struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Amount <= 0 {
		return badRequest(c, "amount must be positive")
	}
	if body.Currency == "" {
		body.Currency = s.defaultCurrency()
	}

	balance, err := s.wallet.Deposit(c.Context(), userID, body.Amount, body.Currency)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":  userID,
		"currency": body.Currency,
		"balance":  balance,
	})
}

func (s *FiberServer) defaultCurrency() string {
	if len(s.cfg.Games.Currencies) > 0 {
		return s.cfg.Games.Currencies[0]
	}
	return "USD"
}

// Fairness handlers

func (s *FiberServer) seedHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	pair, err := s.seeds.Current(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	// Pair omits the raw server seed from JSON; only the commitment leaves
	// the server while the pair is live.
	return c.JSON(pair)
}

func (s *FiberServer) seedRotateHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	revealed, next, err := s.seeds.Rotate(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"revealed": fiber.Map{
			"server_seed":      revealed.ServerSeed,
			"server_seed_hash": revealed.ServerSeedHash,
			"client_seed":      revealed.ClientSeed,
			"nonce":            revealed.Nonce,
		},
		"next": next,
	})
}

func (s *FiberServer) clientSeedHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")

	var body struct {
		ClientSeed string `json:"client_seed"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.ClientSeed == "" {
		return badRequest(c, "client_seed is required")
	}

	if err := s.seeds.SetClientSeed(c.Context(), userID, body.ClientSeed); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id":     userID,
		"client_seed": body.ClientSeed,
	})
}

// redactSeeds blanks server seeds that are not yet safe to show: records
// drawn from the user's active pair (revealed only by rotation) and records
// settled inside a crash round that has not crashed yet (the seed determines
// the crash point).
func redactSeeds(recs []history.Record, activePairHash string, round game.RoundSnapshot) []history.Record {
	for i := range recs {
		if recs[i].ServerSeedHash == activePairHash {
			recs[i].ServerSeed = ""
		}
		if round.Phase != game.PhaseCrashed && round.ServerSeedHash != "" &&
			recs[i].ServerSeedHash == round.ServerSeedHash {
			recs[i].ServerSeed = ""
		}
	}
	return recs
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}

	recs, err := s.history.Recent(c.Context(), userID, limit)
	if err != nil {
		return fail(c, err)
	}
	pair, err := s.seeds.Current(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"records": redactSeeds(recs, pair.ServerSeedHash, s.crash.Round()),
	})
}

func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req game.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := s.verifier.Verify(req)
	if err != nil {
		if errors.Is(err, game.ErrVerifyIntegrity) {
			// a failed commitment check is the whole point of this endpoint;
			// report it as a result, not a server fault
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"valid": false,
				"error": err.Error(),
			})
		}
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"valid":  true,
		"result": resp,
	})
}

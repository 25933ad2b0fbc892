package server

import (
	"context"
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"fairbet/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	// shared crash round
	crash := api.Group("/crash")
	crash.Get("/round", s.crashRoundHandler)
	crash.Post("/bet", s.crashBetHandler)
	crash.Post("/cashout", s.crashCashoutHandler)

	// stepped games
	mines := api.Group("/mines")
	mines.Post("/start", s.minesStartHandler)
	mines.Post("/reveal", s.minesRevealHandler)
	mines.Post("/cashout", s.gameCashoutHandler(game.GameTypeMines))
	mines.Get("/session/:userId", s.gameSessionHandler(game.GameTypeMines))

	tower := api.Group("/tower")
	tower.Post("/start", s.towerStartHandler)
	tower.Post("/climb", s.towerClimbHandler)
	tower.Post("/cashout", s.gameCashoutHandler(game.GameTypeTower))
	tower.Get("/session/:userId", s.gameSessionHandler(game.GameTypeTower))

	coinflip := api.Group("/coinflip")
	coinflip.Post("/start", s.coinflipStartHandler)
	coinflip.Post("/flip", s.coinflipFlipHandler)
	coinflip.Post("/cashout", s.gameCashoutHandler(game.GameTypeCoinflip))
	coinflip.Get("/session/:userId", s.gameSessionHandler(game.GameTypeCoinflip))

	hilo := api.Group("/hilo")
	hilo.Post("/start", s.hiloStartHandler)
	hilo.Post("/guess", s.hiloGuessHandler)
	hilo.Post("/cashout", s.gameCashoutHandler(game.GameTypeHilo))
	hilo.Get("/session/:userId", s.gameSessionHandler(game.GameTypeHilo))

	// wallet and fairness
	api.Get("/user/:userId/balance", s.balanceHandler)
	api.Post("/user/:userId/deposit", s.depositHandler)
	api.Get("/user/:userId/seed", s.seedHandler)
	api.Post("/user/:userId/seed/rotate", s.seedRotateHandler)
	api.Put("/user/:userId/seed/client", s.clientSeedHandler)
	api.Get("/user/:userId/history", s.historyHandler)
	api.Post("/verify", s.verifyHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"round":             s.crash.Round().Phase,
			"connected_clients": s.hub.ClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

// gameWebSocketHandler streams round and settlement events and accepts crash
// bets and cash-outs over the same connection.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	s.logger.Debug("websocket connected", "user", userID)
	s.hub.RegisterClient(conn, userID)

	// send the current round so late joiners can render immediately
	snap := s.crash.Round()
	if snap.RoundID != "" {
		stateJSON, _ := json.Marshal(map[string]interface{}{
			"type": "initial_state",
			"data": snap,
		})
		conn.WriteMessage(websocket.TextMessage, stateJSON)
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("websocket closed", "user", userID, "err", err)
			s.hub.UnregisterClient(conn)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg struct {
			Type        string  `json:"type"`
			Stake       float64 `json:"stake"`
			Currency    string  `json:"currency"`
			AutoCashout float64 `json:"auto_cashout"`
			BetID       string  `json:"bet_id"`
		}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		switch clientMsg.Type {
		case "place_bet":
			resp, err := s.crash.PlaceBet(context.Background(), game.CrashBetRequest{
				UserID:      userID,
				Stake:       clientMsg.Stake,
				Currency:    clientMsg.Currency,
				AutoCashout: clientMsg.AutoCashout,
			})
			writeWS(conn, "bet_result", resp, err)

		case "cashout":
			resp, err := s.crash.CashOut(context.Background(), game.CrashCashoutRequest{
				UserID: userID,
				BetID:  clientMsg.BetID,
			})
			writeWS(conn, "cashout_result", resp, err)

		case "ping":
			pongJSON, _ := json.Marshal(map[string]string{"type": "pong"})
			conn.WriteMessage(websocket.TextMessage, pongJSON)
		}
	}
}

func writeWS(conn *websocket.Conn, msgType string, data interface{}, err error) {
	payload := map[string]interface{}{"type": msgType}
	if err != nil {
		payload["error"] = err.Error()
	} else {
		payload["data"] = data
	}
	respJSON, _ := json.Marshal(payload)
	conn.WriteMessage(websocket.TextMessage, respJSON)
}

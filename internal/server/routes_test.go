package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"fairbet/internal/config"
	"fairbet/internal/game"
	"fairbet/internal/history"
	"fairbet/internal/ledger"
	"fairbet/internal/seeds"
	"fairbet/internal/store"
)

func newTestServer(t *testing.T) (*FiberServer, *ledger.MemoryLedger) {
	t.Helper()

	cfg := config.Config{
		Games: config.Games{
			MinBet:     1,
			MaxBet:     10000,
			Currencies: []string{"USD", "EUR"},
			Crash: config.Crash{
				HouseEdge:      0.01,
				MinMultiplier:  1.0,
				MaxMultiplier:  1000000,
				GrowthRate:     0.06,
				BettingWindow:  15 * time.Second,
				TickInterval:   50 * time.Millisecond,
				InterRoundWait: 3 * time.Second,
				ClientSeed:     "global",
			},
			Mines:         config.Mines{HouseEdge: 0.03, GridSize: 25, MinMines: 1, MaxMines: 24},
			Tower:         config.Tower{HouseEdge: 0.02, Rows: 8, MinCols: 2, MaxCols: 4, HazardsPerRow: 1},
			Coinflip:      config.Coinflip{HouseEdge: 0.02, MaxStreak: 10},
			Hilo:          config.Hilo{HouseEdge: 0.02, MaxSteps: 20},
			SessionTTL:    time.Hour,
			SweepInterval: time.Minute,
		},
	}

	wallet := ledger.NewMemoryLedger()
	srv := New(cfg, Deps{
		Wallet:  wallet,
		Seeds:   seeds.NewMemoryRegistry(),
		History: history.NewMemoryStore(),
		Store:   store.NewMemoryStore(quartz.NewReal()),
		Logger:  log.New(io.Discard),
	})
	srv.RegisterFiberRoutes()
	return srv, wallet
}

func doJSON(t *testing.T, srv *FiberServer, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("could not marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App.Test(req, -1)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}
	var result map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			t.Fatalf("could not unmarshal response %q: %v", raw, err)
		}
	}
	return resp, result
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, result := doJSON(t, srv, "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}
	if result["game"] == nil {
		t.Error("expected game section in health response")
	}
}

func TestCrashRound_NoneRunning(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, "GET", "/api/v1/crash/round", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before the round loop starts; got %v", resp.Status)
	}
}

func TestDepositAndBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, result := doJSON(t, srv, "POST", "/api/v1/user/u1/deposit", map[string]interface{}{
		"amount": 100.0, "currency": "USD",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: expected 200; got %v (%v)", resp.Status, result)
	}
	if result["balance"].(float64) != 100.0 {
		t.Errorf("deposit balance = %v, want 100", result["balance"])
	}

	resp, result = doJSON(t, srv, "GET", "/api/v1/user/u1/balance?currency=USD", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance: expected 200; got %v", resp.Status)
	}
	if result["balance"].(float64) != 100.0 {
		t.Errorf("balance = %v, want 100", result["balance"])
	}
}

func TestDeposit_RejectsNonPositive(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/v1/user/u1/deposit", map[string]interface{}{
		"amount": -5.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for negative deposit; got %v", resp.Status)
	}
}

func TestMinesFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, "POST", "/api/v1/user/u1/deposit", map[string]interface{}{
		"amount": 100.0, "currency": "USD",
	})

	start := map[string]interface{}{
		"user_id": "u1", "stake": 10.0, "currency": "USD", "mine_count": 3,
	}
	resp, result := doJSON(t, srv, "POST", "/api/v1/mines/start", start)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200; got %v (%v)", resp.Status, result)
	}
	if result["session_id"] == "" {
		t.Error("start: missing session_id")
	}
	if result["commitment"] == nil {
		t.Error("start: missing commitment")
	}

	// a second start while one session is live must be rejected
	resp, _ = doJSON(t, srv, "POST", "/api/v1/mines/start", start)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate start: expected 409; got %v", resp.Status)
	}

	// cashing out before any reveal is a rejection
	resp, _ = doJSON(t, srv, "POST", "/api/v1/mines/cashout", map[string]interface{}{
		"user_id": "u1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("early cashout: expected 400; got %v", resp.Status)
	}

	// the live session is visible, without mine positions
	resp, result = doJSON(t, srv, "GET", "/api/v1/mines/session/u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session: expected 200; got %v", resp.Status)
	}
	if _, leaked := result["mines"]; leaked {
		t.Error("session response must not contain mine positions")
	}
}

func TestMinesStart_InsufficientFunds(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/v1/mines/start", map[string]interface{}{
		"user_id": "broke", "stake": 10.0, "currency": "USD", "mine_count": 3,
	})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402 without funds; got %v", resp.Status)
	}
}

func TestMinesStart_StakeOutOfRange(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, srv, "POST", "/api/v1/mines/start", map[string]interface{}{
		"user_id": "u1", "stake": 0.5, "currency": "USD", "mine_count": 3,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for stake below minimum; got %v", resp.Status)
	}
}

func TestSeedEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, result := doJSON(t, srv, "GET", "/api/v1/user/u1/seed", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed: expected 200; got %v", resp.Status)
	}
	if result["server_seed_hash"] == "" {
		t.Error("seed: missing server_seed_hash")
	}
	if _, leaked := result["server_seed"]; leaked {
		t.Error("seed response must not contain the raw server seed")
	}
	firstHash := result["server_seed_hash"]

	resp, result = doJSON(t, srv, "PUT", "/api/v1/user/u1/seed/client", map[string]interface{}{
		"client_seed": "my-lucky-charm",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("client seed: expected 200; got %v", resp.Status)
	}

	resp, result = doJSON(t, srv, "POST", "/api/v1/user/u1/seed/rotate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rotate: expected 200; got %v", resp.Status)
	}
	revealed := result["revealed"].(map[string]interface{})
	if revealed["server_seed"] == "" {
		t.Error("rotate must reveal the old server seed")
	}
	if revealed["server_seed_hash"] != firstHash {
		t.Errorf("revealed hash = %v, want %v", revealed["server_seed_hash"], firstHash)
	}
	next := result["next"].(map[string]interface{})
	if next["server_seed_hash"] == firstHash {
		t.Error("rotation must produce a fresh commitment")
	}
}

func TestVerifyHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, result := doJSON(t, srv, "POST", "/api/v1/verify", map[string]interface{}{
		"game_type":   "crash",
		"server_seed": "aabbccdd",
		"client_seed": "global",
		"nonce":       1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200; got %v (%v)", resp.Status, result)
	}
	if result["valid"] != true {
		t.Error("verify: expected valid result")
	}

	// a wrong commitment comes back as a verdict, not a server error
	resp, result = doJSON(t, srv, "POST", "/api/v1/verify", map[string]interface{}{
		"game_type":        "crash",
		"server_seed":      "aabbccdd",
		"server_seed_hash": "not-the-hash",
		"client_seed":      "global",
		"nonce":            1,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("verify mismatch: expected 422; got %v", resp.Status)
	}
	if result["valid"] != false {
		t.Error("verify mismatch: expected valid=false")
	}
}

func TestRedactSeeds(t *testing.T) {
	recs := []history.Record{
		{ID: "1", ServerSeed: "s1", ServerSeedHash: "active"},
		{ID: "2", ServerSeed: "s2", ServerSeedHash: "live-round", GameType: "crash"},
		{ID: "3", ServerSeed: "s3", ServerSeedHash: "retired"},
	}

	out := redactSeeds(recs, "active", game.RoundSnapshot{
		Phase: game.PhaseRunning, ServerSeedHash: "live-round",
	})
	if out[0].ServerSeed != "" {
		t.Error("active pair seed not redacted")
	}
	if out[1].ServerSeed != "" {
		t.Error("live crash round seed not redacted")
	}
	if out[2].ServerSeed != "s3" {
		t.Error("retired seed must pass through")
	}

	// once the round has crashed its seed is public
	recs = []history.Record{{ServerSeed: "s2", ServerSeedHash: "live-round", GameType: "crash"}}
	out = redactSeeds(recs, "active", game.RoundSnapshot{
		Phase: game.PhaseCrashed, ServerSeedHash: "live-round",
	})
	if out[0].ServerSeed != "s2" {
		t.Error("crashed round seed must pass through")
	}
}

func TestHistoryHandler_WithholdsActivePairSeed(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, srv, "POST", "/api/v1/user/u1/deposit", map[string]interface{}{
		"amount": 100.0, "currency": "USD",
	})
	doJSON(t, srv, "POST", "/api/v1/mines/start", map[string]interface{}{
		"user_id": "u1", "stake": 10.0, "currency": "USD", "mine_count": 3,
	})

	// reveal tiles until the session settles one way or the other
	for tile := 0; tile < 25; tile++ {
		_, result := doJSON(t, srv, "POST", "/api/v1/mines/reveal", map[string]interface{}{
			"user_id": "u1", "tile": tile,
		})
		if result["status"] != string(game.SessionActive) {
			break
		}
	}

	_, result := doJSON(t, srv, "GET", "/api/v1/user/u1/history", nil)
	recs := result["records"].([]interface{})
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	rec := recs[0].(map[string]interface{})
	if rec["server_seed"] != "" {
		t.Errorf("history leaked the active pair's seed: %v", rec["server_seed"])
	}

	// rotating retires the pair; the archived seed becomes visible
	_, rotated := doJSON(t, srv, "POST", "/api/v1/user/u1/seed/rotate", nil)
	revealed := rotated["revealed"].(map[string]interface{})

	_, result = doJSON(t, srv, "GET", "/api/v1/user/u1/history", nil)
	rec = result["records"].([]interface{})[0].(map[string]interface{})
	if rec["server_seed"] == "" {
		t.Error("history still withholding the seed after rotation")
	}
	if rec["server_seed"] != revealed["server_seed"] {
		t.Errorf("history seed %v does not match rotation reveal %v",
			rec["server_seed"], revealed["server_seed"])
	}
}

func TestHistoryHandler_Empty(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, result := doJSON(t, srv, "GET", "/api/v1/user/u1/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200; got %v", resp.Status)
	}
	if result["user_id"] != "u1" {
		t.Errorf("history user_id = %v, want u1", result["user_id"])
	}
}

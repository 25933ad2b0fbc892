package game

import (
	"context"
	"errors"
	"testing"

	"fairbet/internal/config"
	"fairbet/internal/outcome"
)

var testCoinflipConfig = config.Coinflip{HouseEdge: 0.02, MaxStreak: 10}

func startCoinflip(t *testing.T, rig *testRig) *CoinflipEngine {
	t.Helper()
	ctx := context.Background()
	rig.wallet.Deposit(ctx, "u1", 100, "USD")

	engine := NewCoinflipEngine(rig.core, testCoinflipConfig)
	if _, err := engine.Start(ctx, CoinflipStartRequest{
		UserID: "u1", Stake: 10, Currency: "USD",
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return engine
}

func storedCoinflip(t *testing.T, rig *testRig) CoinflipSession {
	t.Helper()
	var rec CoinflipSession
	found, err := rig.store.Get(context.Background(), sessionKey(GameTypeCoinflip, "u1"), &rec)
	if err != nil || !found {
		t.Fatalf("stored session not found (found=%v err=%v)", found, err)
	}
	return rec
}

func wrongFace(f outcome.CoinFace) outcome.CoinFace {
	if f == outcome.Heads {
		return outcome.Tails
	}
	return outcome.Heads
}

func TestCoinflip_CorrectCall(t *testing.T) {
	rig := newTestRig(t)
	engine := startCoinflip(t, rig)
	ctx := context.Background()

	rec := storedCoinflip(t, rig)
	if len(rec.Faces) != 10 {
		t.Fatalf("pre-drawn faces = %d, want 10", len(rec.Faces))
	}

	resp, err := engine.Action(ctx, "flip", CoinflipGuessRequest{UserID: "u1", Guess: rec.Faces[0]})
	if err != nil {
		t.Fatalf("flip error = %v", err)
	}
	flip := resp.(CoinflipGuessResponse)
	if !flip.Correct || flip.Streak != 1 {
		t.Fatalf("correct=%v streak=%d, want true/1", flip.Correct, flip.Streak)
	}
	if flip.Multiplier != 1.96 {
		t.Errorf("multiplier = %v, want 1.96", flip.Multiplier)
	}
}

func TestCoinflip_WrongCallBusts(t *testing.T) {
	rig := newTestRig(t)
	engine := startCoinflip(t, rig)
	ctx := context.Background()

	rec := storedCoinflip(t, rig)
	resp, err := engine.Action(ctx, "flip", CoinflipGuessRequest{UserID: "u1", Guess: wrongFace(rec.Faces[0])})
	if err != nil {
		t.Fatalf("flip error = %v", err)
	}
	flip := resp.(CoinflipGuessResponse)
	if flip.Correct || flip.Status != SessionBusted {
		t.Fatalf("correct=%v status=%v, want bust", flip.Correct, flip.Status)
	}
	if flip.Seed == nil {
		t.Error("bust response missing seed reveal")
	}

	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	if bal != 90 {
		t.Errorf("balance = %v, want 90", bal)
	}
}

func TestCoinflip_InvalidGuess(t *testing.T) {
	rig := newTestRig(t)
	engine := startCoinflip(t, rig)

	if _, err := engine.Action(context.Background(), "flip", CoinflipGuessRequest{UserID: "u1", Guess: "edge"}); !errors.Is(err, ErrPositionInvalid) {
		t.Errorf("invalid guess = %v, want ErrPositionInvalid", err)
	}
}

func TestCoinflip_FullStreakCompletes(t *testing.T) {
	rig := newTestRig(t)
	engine := startCoinflip(t, rig)
	ctx := context.Background()

	rec := storedCoinflip(t, rig)
	var last CoinflipGuessResponse
	for i := 0; i < 10; i++ {
		resp, err := engine.Action(ctx, "flip", CoinflipGuessRequest{UserID: "u1", Guess: rec.Faces[i]})
		if err != nil {
			t.Fatalf("flip %d error = %v", i, err)
		}
		last = resp.(CoinflipGuessResponse)
	}

	if last.Status != SessionCompleted {
		t.Fatalf("status = %v, want COMPLETED", last.Status)
	}
	wantMult := outcome.CoinMultiplier(10, 0.02) // 1003.52
	if last.Multiplier != wantMult {
		t.Errorf("multiplier = %v, want %v", last.Multiplier, wantMult)
	}

	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	want := 90 + outcome.Truncate(10*wantMult, 2)
	if bal != want {
		t.Errorf("balance = %v, want %v", bal, want)
	}
}

func TestCoinflip_Cashout(t *testing.T) {
	rig := newTestRig(t)
	engine := startCoinflip(t, rig)
	ctx := context.Background()

	if _, err := engine.Action(ctx, "cashout", CoinflipCashoutRequest{UserID: "u1"}); !errors.Is(err, ErrNothingToCashOut) {
		t.Fatalf("early cashout = %v, want ErrNothingToCashOut", err)
	}

	rec := storedCoinflip(t, rig)
	engine.Action(ctx, "flip", CoinflipGuessRequest{UserID: "u1", Guess: rec.Faces[0]})
	engine.Action(ctx, "flip", CoinflipGuessRequest{UserID: "u1", Guess: rec.Faces[1]})

	resp, err := engine.Action(ctx, "cashout", CoinflipCashoutRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("cashout error = %v", err)
	}
	cash := resp.(CoinflipCashoutResponse)
	if cash.Payout != 39.2 { // 10 × 3.92
		t.Errorf("payout = %v, want 39.2", cash.Payout)
	}
}

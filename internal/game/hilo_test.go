package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"fairbet/internal/config"
	"fairbet/internal/history"
	"fairbet/internal/outcome"
)

var testHiloConfig = config.Hilo{HouseEdge: 0.02, MaxSteps: 3}

func startHilo(t *testing.T, rig *testRig) *HiloEngine {
	t.Helper()
	ctx := context.Background()
	rig.wallet.Deposit(ctx, "u1", 100, "USD")

	engine := NewHiloEngine(rig.core, testHiloConfig)
	if _, err := engine.Start(ctx, HiloStartRequest{
		UserID: "u1", Stake: 10, Currency: "USD",
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return engine
}

func storedHilo(t *testing.T, rig *testRig) HiloSession {
	t.Helper()
	var rec HiloSession
	found, err := rig.store.Get(context.Background(), sessionKey(GameTypeHilo, "u1"), &rec)
	if err != nil || !found {
		t.Fatalf("stored session not found (found=%v err=%v)", found, err)
	}
	return rec
}

// riggedHilo rewrites the stored card stream so the test controls every draw.
func riggedHilo(t *testing.T, rig *testRig, ranks ...int) {
	t.Helper()
	rec := storedHilo(t, rig)
	cards := make([]outcome.Card, len(ranks))
	for i, r := range ranks {
		cards[i] = outcome.Card{Rank: r, Suit: "spades"}
	}
	rec.Cards = cards
	if err := rig.store.Put(context.Background(), sessionKey(GameTypeHilo, "u1"), rec, 2*time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
}

func TestHiloStart(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	startHilo(t, rig)

	rec := storedHilo(t, rig)
	// enough cards for every step plus pushed ties
	if want := testHiloConfig.MaxSteps*hiloDeckFactor + 1; len(rec.Cards) != want {
		t.Errorf("card stream = %d cards, want %d", len(rec.Cards), want)
	}

	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	if bal != 90 {
		t.Errorf("balance = %v, want 90 after debit", bal)
	}
}

func TestHiloGuess_WinThenPush(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)
	ctx := context.Background()

	// 7 → 10 wins the higher call, 10 → 10 pushes
	riggedHilo(t, rig, 7, 10, 10, 2)

	resp, err := engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})
	if err != nil {
		t.Fatalf("guess error = %v", err)
	}
	win := resp.(HiloGuessResponse)
	if !win.Correct || win.Progress != 1 {
		t.Fatalf("correct=%v progress=%d, want true/1", win.Correct, win.Progress)
	}
	wantMult := outcome.HiloMultiplier([]float64{outcome.HiloStepChance(7, true)}, 0.02)
	if win.Multiplier != wantMult {
		t.Errorf("multiplier = %v, want %v", win.Multiplier, wantMult)
	}

	resp, err = engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})
	if err != nil {
		t.Fatalf("push guess error = %v", err)
	}
	push := resp.(HiloGuessResponse)
	if !push.Push {
		t.Fatal("tie not reported as push")
	}
	if push.Progress != 1 || push.Multiplier != wantMult {
		t.Errorf("push moved progress/multiplier: %d/%v", push.Progress, push.Multiplier)
	}
}

func TestHiloGuess_PushOnLastCardCompletes(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)
	ctx := context.Background()

	// a deck of nothing but ties: every guess pushes until the cards run out
	ranks := make([]int, testHiloConfig.MaxSteps*hiloDeckFactor+1)
	for i := range ranks {
		ranks[i] = 5
	}
	riggedHilo(t, rig, ranks...)

	var last HiloGuessResponse
	for i := 0; i < len(ranks)-1; i++ {
		resp, err := engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})
		if err != nil {
			t.Fatalf("guess %d error = %v", i, err)
		}
		last = resp.(HiloGuessResponse)
		if !last.Push {
			t.Fatalf("guess %d not reported as push", i)
		}
	}

	if last.Status != SessionCompleted {
		t.Fatalf("status after exhausting the deck = %v, want COMPLETED", last.Status)
	}
	if last.Payout != 10 { // no completed step, the stake comes back
		t.Errorf("payout = %v, want 10", last.Payout)
	}
	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	if bal != 100 {
		t.Errorf("balance = %v, want 100", bal)
	}

	// the session settled instead of wedging on an empty deck
	if _, err := engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true}); !errors.Is(err, ErrNoSession) {
		t.Errorf("guess after deck exhaustion = %v, want ErrNoSession", err)
	}
}

func TestHiloGuess_WrongCallBusts(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)
	ctx := context.Background()

	riggedHilo(t, rig, 7, 2)

	resp, err := engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})
	if err != nil {
		t.Fatalf("guess error = %v", err)
	}
	bust := resp.(HiloGuessResponse)
	if bust.Correct || bust.Status != SessionBusted {
		t.Fatalf("correct=%v status=%v, want bust", bust.Correct, bust.Status)
	}
	if bust.Seed == nil {
		t.Error("bust response missing seed reveal")
	}
	if len(bust.Cards) != 2 {
		t.Errorf("revealed cards = %d, want 2", len(bust.Cards))
	}

	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	if bal != 90 {
		t.Errorf("balance = %v, want 90", bal)
	}
	recs := rig.history.All()
	if len(recs) != 1 || recs[0].Result != history.ResultLoss {
		t.Errorf("history = %+v, want one loss record", recs)
	}
}

func TestHiloGuess_NoWinningCard(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)

	// nothing beats a king on a higher call
	riggedHilo(t, rig, 13, 5)

	if _, err := engine.Action(context.Background(), "guess", HiloGuessRequest{UserID: "u1", Higher: true}); !errors.Is(err, ErrPositionInvalid) {
		t.Errorf("higher on rank 13 = %v, want ErrPositionInvalid", err)
	}
}

func TestHilo_CompletesAtMaxSteps(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)
	ctx := context.Background()

	riggedHilo(t, rig, 7, 10, 12, 13)

	var last HiloGuessResponse
	for i := 0; i < 3; i++ {
		resp, err := engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})
		if err != nil {
			t.Fatalf("guess %d error = %v", i, err)
		}
		last = resp.(HiloGuessResponse)
	}

	if last.Status != SessionCompleted {
		t.Fatalf("status = %v, want COMPLETED", last.Status)
	}
	wantMult := outcome.HiloMultiplier([]float64{
		outcome.HiloStepChance(7, true),
		outcome.HiloStepChance(10, true),
		outcome.HiloStepChance(12, true),
	}, 0.02)
	if last.Multiplier != wantMult {
		t.Errorf("multiplier = %v, want %v", last.Multiplier, wantMult)
	}
	if want := outcome.Truncate(10*wantMult, 2); last.Payout != want {
		t.Errorf("payout = %v, want %v", last.Payout, want)
	}
}

func TestHiloCashout(t *testing.T) {
	rig := newTestRig(t)
	engine := startHilo(t, rig)
	ctx := context.Background()

	if _, err := engine.Action(ctx, "cashout", HiloCashoutRequest{UserID: "u1"}); !errors.Is(err, ErrNothingToCashOut) {
		t.Fatalf("early cashout = %v, want ErrNothingToCashOut", err)
	}

	riggedHilo(t, rig, 7, 10, 2)
	engine.Action(ctx, "guess", HiloGuessRequest{UserID: "u1", Higher: true})

	resp, err := engine.Action(ctx, "cashout", HiloCashoutRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("cashout error = %v", err)
	}
	cash := resp.(HiloCashoutResponse)
	if cash.Payout != 19.6 { // 10 × 1.96
		t.Errorf("payout = %v, want 19.6", cash.Payout)
	}
	if cash.Seed == nil {
		t.Error("cashout response missing seed reveal")
	}

	bal, _ := rig.wallet.Balance(ctx, "u1", "USD")
	if bal != 109.6 {
		t.Errorf("balance = %v, want 109.6", bal)
	}
}

package outcome

import (
	"testing"

	"fairbet/internal/rng"
)

var crashCfg = CrashConfig{HouseEdge: 0.01, MinMultiplier: 1.0, MaxMultiplier: 1000000}

func TestCrashPoint(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		want float64
	}{
		{"instant crash below edge", 0.005, 1.0},
		{"edge boundary", 0.01, 1.0}, // 0.99/0.99 = 1.00
		{"median-ish", 0.505, 2.0},   // 0.99/0.495 = 2.00
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrashPoint(tt.f, crashCfg); got != tt.want {
				t.Errorf("CrashPoint(%v) = %v, want %v", tt.f, got, tt.want)
			}
		})
	}
}

func TestCrashPoint_HighFloat(t *testing.T) {
	// 0.99/0.0099 is 100 up to float error; truncation keeps it at or just
	// under the exact value, never over
	got := CrashPoint(0.9901, crashCfg)
	if got < 99.9 || got > 100.0 {
		t.Errorf("CrashPoint(0.9901) = %v, want ~100", got)
	}
}

func TestCrashPoint_Cap(t *testing.T) {
	got := CrashPoint(0.9999999999, crashCfg)
	if got > crashCfg.MaxMultiplier {
		t.Errorf("CrashPoint = %v, exceeds cap %v", got, crashCfg.MaxMultiplier)
	}
}

func TestCrashPoint_NeverBelowMin(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 0, 5000)
	for _, f := range floats {
		if got := CrashPoint(f, crashCfg); got < crashCfg.MinMultiplier {
			t.Fatalf("CrashPoint(%v) = %v, below minimum", f, got)
		}
	}
}

func TestHazardLayout(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 0, 5)

	mines, err := HazardLayout(floats, 25, 5)
	if err != nil {
		t.Fatalf("HazardLayout() error = %v", err)
	}
	if len(mines) != 5 {
		t.Fatalf("len = %d, want 5", len(mines))
	}

	seen := make(map[int]bool)
	for _, p := range mines {
		if p < 0 || p >= 25 {
			t.Errorf("position %d out of range", p)
		}
		if seen[p] {
			t.Errorf("position %d drawn twice", p)
		}
		seen[p] = true
	}

	// same floats, same layout
	again, _ := HazardLayout(floats, 25, 5)
	for i := range mines {
		if mines[i] != again[i] {
			t.Errorf("layout not deterministic at %d: %d vs %d", i, mines[i], again[i])
		}
	}
}

func TestHazardLayout_FullBoard(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 1, 25)
	mines, err := HazardLayout(floats, 25, 25)
	if err != nil {
		t.Fatalf("HazardLayout() error = %v", err)
	}
	seen := make(map[int]bool)
	for _, p := range mines {
		seen[p] = true
	}
	if len(seen) != 25 {
		t.Errorf("drew %d distinct positions, want all 25", len(seen))
	}
}

func TestHazardLayout_Errors(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 0, 3)

	if _, err := HazardLayout(floats, 2, 3); err == nil {
		t.Error("expected error for more hazards than slots")
	}
	if _, err := HazardLayout(floats, 25, 5); err == nil {
		t.Error("expected error for too few floats")
	}
	if _, err := HazardLayout(nil, 25, 0); err != nil {
		t.Errorf("zero hazards should be fine, got %v", err)
	}
}

func TestTowerLayout(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 0, 8)

	layout, err := TowerLayout(floats, 8, 3, 1)
	if err != nil {
		t.Fatalf("TowerLayout() error = %v", err)
	}
	if len(layout) != 8 {
		t.Fatalf("rows = %d, want 8", len(layout))
	}
	for r, row := range layout {
		if len(row) != 1 {
			t.Errorf("row %d has %d hazards, want 1", r, len(row))
		}
		if row[0] < 0 || row[0] >= 3 {
			t.Errorf("row %d hazard column %d out of range", r, row[0])
		}
	}
}

func TestTowerLayout_NoSafeColumn(t *testing.T) {
	floats, _ := rng.Floats("seed", "client", 0, 8)
	if _, err := TowerLayout(floats, 8, 2, 2); err == nil {
		t.Error("expected error when hazards fill the whole row")
	}
}

func TestCoin(t *testing.T) {
	if Coin(0.0) != Heads || Coin(0.499) != Heads {
		t.Error("low floats should be heads")
	}
	if Coin(0.5) != Tails || Coin(0.999) != Tails {
		t.Error("high floats should be tails")
	}
}

func TestDrawCard(t *testing.T) {
	tests := []struct {
		f    float64
		want Card
	}{
		{0.0, Card{Rank: 1, Suit: "spades"}},
		{0.999999, Card{Rank: 13, Suit: "clubs"}},
		{0.25, Card{Rank: 1, Suit: "hearts"}}, // 0.25*52 = 13
	}
	for _, tt := range tests {
		if got := DrawCard(tt.f); got != tt.want {
			t.Errorf("DrawCard(%v) = %+v, want %+v", tt.f, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		x        float64
		decimals int
		want     float64
	}{
		{1.999, 2, 1.99},
		{1.005, 2, 1.0},
		{2.0175438, 4, 2.0175},
		{3.0, 2, 3.0},
	}
	for _, tt := range tests {
		if got := Truncate(tt.x, tt.decimals); got != tt.want {
			t.Errorf("Truncate(%v, %d) = %v, want %v", tt.x, tt.decimals, got, tt.want)
		}
	}
}

package outcome

import (
	"fmt"
	"math"
)

// Generators in this package are pure: they consume floats already derived
// from a committed seed pair and never touch seed material themselves.

// CrashConfig tunes the crash-point transform. The curve itself is a plain
// inverse transform; everything an operator might change lives here.
type CrashConfig struct {
	HouseEdge     float64 // e.g. 0.01 for 1%
	MinMultiplier float64 // e.g. 1.00
	MaxMultiplier float64 // e.g. 1000000.00
}

// CrashPoint maps a single float in [0,1) to a crash multiplier. A slice of
// the probability mass equal to the house edge crashes instantly at the
// minimum; the rest follows 1/(1-f) scaled by (1-edge), which makes large
// multipliers rare but unbounded up to the cap.
func CrashPoint(f float64, cfg CrashConfig) float64 {
	if f < cfg.HouseEdge {
		return cfg.MinMultiplier
	}
	raw := (1.0 - cfg.HouseEdge) / (1.0 - f)
	m := Truncate(raw, 2)
	if m < cfg.MinMultiplier {
		return cfg.MinMultiplier
	}
	if m > cfg.MaxMultiplier {
		return cfg.MaxMultiplier
	}
	return m
}

// HazardLayout draws k distinct positions from n slots. One float is consumed
// per draw against a shrinking candidate list, so exactly k floats are needed
// and no draw is ever retried.
func HazardLayout(floats []float64, n, k int) ([]int, error) {
	if k < 0 || k > n {
		return nil, fmt.Errorf("outcome: cannot place %d hazards in %d slots", k, n)
	}
	if len(floats) < k {
		return nil, fmt.Errorf("outcome: need %d floats, got %d", k, len(floats))
	}

	candidates := make([]int, n)
	for i := range candidates {
		candidates[i] = i
	}

	positions := make([]int, 0, k)
	for i := 0; i < k; i++ {
		remaining := n - i
		idx := int(floats[i] * float64(remaining))
		if idx >= remaining { // f is in [0,1) but guard the boundary anyway
			idx = remaining - 1
		}
		positions = append(positions, candidates[idx])
		// shrink in place: move the last candidate into the used slot
		candidates[idx] = candidates[remaining-1]
		candidates = candidates[:remaining-1]
	}
	return positions, nil
}

// TowerLayout draws hazard columns for each row of a climb tower. Rows are
// independent; row i consumes floats[i*perRow : (i+1)*perRow].
func TowerLayout(floats []float64, rows, cols, perRow int) ([][]int, error) {
	if perRow >= cols {
		return nil, fmt.Errorf("outcome: %d hazards per row leaves no safe column of %d", perRow, cols)
	}
	if len(floats) < rows*perRow {
		return nil, fmt.Errorf("outcome: need %d floats, got %d", rows*perRow, len(floats))
	}

	layout := make([][]int, rows)
	for r := 0; r < rows; r++ {
		row, err := HazardLayout(floats[r*perRow:(r+1)*perRow], cols, perRow)
		if err != nil {
			return nil, err
		}
		layout[r] = row
	}
	return layout, nil
}

// CoinFace is the outcome of a single coin flip.
type CoinFace string

const (
	Heads CoinFace = "heads"
	Tails CoinFace = "tails"
)

// Coin partitions [0,1) evenly into heads and tails.
func Coin(f float64) CoinFace {
	if f < 0.5 {
		return Heads
	}
	return Tails
}

// Card is a playing card drawn by range partitioning a float over 52 values.
// Rank runs 1 (ace) to 13 (king).
type Card struct {
	Rank int    `json:"rank"`
	Suit string `json:"suit"`
}

var suits = [4]string{"spades", "hearts", "diamonds", "clubs"}

// DrawCard maps one float to one of 52 cards.
func DrawCard(f float64) Card {
	idx := int(f * 52)
	if idx >= 52 {
		idx = 51
	}
	return Card{Rank: idx%13 + 1, Suit: suits[idx/13]}
}

// Truncate cuts x to the given number of decimals without rounding, so a
// recomputed multiplier never pays more than the exact value.
func Truncate(x float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Floor(x*pow) / pow
}

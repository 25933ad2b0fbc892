package outcome

// Running multipliers are recomputed from scratch on every step instead of
// being multiplied incrementally, so repeated steps cannot accumulate float
// drift. All of them truncate, never round.

// MinesMultiplier returns the payout multiplier after revealed safe tiles on
// a grid of total slots holding hazards mines:
//
//	Π_{i=0}^{revealed-1} (total-i)/(safe-i) × (1-edge)
//
// truncated to 4 decimals.
func MinesMultiplier(total, hazards, revealed int, edge float64) float64 {
	if revealed <= 0 {
		return 1.0
	}
	safe := float64(total - hazards)
	m := 1.0
	for i := 0; i < revealed; i++ {
		m *= (float64(total) - float64(i)) / (safe - float64(i))
	}
	return Truncate(m*(1.0-edge), 4)
}

// TowerMultiplier returns the payout multiplier after level completed rows of
// a tower with cols columns and perRow hazards per row:
//
//	(cols/(cols-perRow))^level × (1-edge)
//
// truncated to 2 decimals.
func TowerMultiplier(cols, perRow, level int, edge float64) float64 {
	if level <= 0 {
		return 1.0
	}
	step := float64(cols) / float64(cols-perRow)
	m := 1.0
	for i := 0; i < level; i++ {
		m *= step
	}
	return Truncate(m*(1.0-edge), 2)
}

// CoinMultiplier returns the payout multiplier for a streak of correct coin
// calls: 2^streak × (1-edge), truncated to 2 decimals.
func CoinMultiplier(streak int, edge float64) float64 {
	if streak <= 0 {
		return 1.0
	}
	m := 1.0
	for i := 0; i < streak; i++ {
		m *= 2.0
	}
	return Truncate(m*(1.0-edge), 2)
}

// HiloStepChance returns the probability of winning a higher/lower call
// against the current card rank (1..13). Ties push, so the chance counts
// only strictly winning ranks out of the non-tying ones.
func HiloStepChance(rank int, higher bool) float64 {
	var winning int
	if higher {
		winning = 13 - rank
	} else {
		winning = rank - 1
	}
	if winning <= 0 {
		return 0
	}
	return float64(winning) / 12.0
}

// HiloMultiplier folds the per-step win chances of a completed guess sequence
// into one multiplier × (1-edge), truncated to 4 decimals.
func HiloMultiplier(chances []float64, edge float64) float64 {
	if len(chances) == 0 {
		return 1.0
	}
	m := 1.0
	for _, c := range chances {
		if c <= 0 {
			continue
		}
		m *= 1.0 / c
	}
	return Truncate(m*(1.0-edge), 4)
}

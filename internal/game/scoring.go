package game

import "math"

// ScoringConfig holds the tunables of the score formula. Defaults live in
// the top-level config package; nothing here assumes a particular variant.
type ScoringConfig struct {
	BaseScore        int
	MaxTimeBonus     int
	PerfectThreshold float64
}

// Score is the single scoring function of the system. It is pure and must be
// bit-for-bit reproducible: incorrect answers score 0; correct answers earn
// the base score plus a time bonus. Answering within the perfect window
// (timeSpent/timeLimit <= threshold) earns the full bonus; past it the bonus
// decays linearly to zero at the time limit. At or beyond the limit no bonus
// branch is entered at all.
func Score(cfg ScoringConfig, correct bool, timeSpent, timeLimit float64) int {
	if !correct {
		return 0
	}

	score := cfg.BaseScore
	if timeLimit > 0 && timeSpent < timeLimit {
		ratio := timeSpent / timeLimit
		var bonus float64
		if ratio <= cfg.PerfectThreshold {
			bonus = float64(cfg.MaxTimeBonus)
		} else {
			bonus = float64(cfg.MaxTimeBonus) * (1 - ratio)
		}
		if bonus < 0 {
			bonus = 0
		}
		score += int(math.Round(bonus))
	}
	return score
}

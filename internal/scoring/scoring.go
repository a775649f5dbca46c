// Package scoring combines identification signals into the single
// confidence number the repository persists alongside each media record.
package scoring

import "github.com/reelkeep/reelkeep/internal/models"

// strategyWeight is the base confidence assigned purely by which
// reconciliation strategy produced a candidate.
var strategyWeight = map[models.IdentificationStrategy]float64{
	models.StrategyImdbID:          0.95,
	models.StrategyFilenameWithYear: 0.85,
	models.StrategyFolderWithYear:   0.80,
	models.StrategyFilenameOnly:     0.70,
	models.StrategyAlternativeTitle: 0.65,
	models.StrategyFuzzySearch:      0.75,
}

// Signals carries every adjustment input the scorer needs. FuzzyScore only
// applies when Strategy is StrategyFuzzySearch, where the weight itself is
// scaled by the fuzzy score rather than fixed.
type Signals struct {
	Strategy            models.IdentificationStrategy
	FuzzyScore          float64 // only meaningful for StrategyFuzzySearch
	YearKnown           bool
	YearMatchesExact    bool
	YearMatchesWithinOne bool
	IsSeriesCandidate   bool
	SeasonEpisodeKnown  bool
	EpisodeConfirmedExists bool
	EpisodeConfirmedAbsent bool
	MultipleCandidatesSimilar bool
}

// Score combines the signals into a confidence in [0,1]. Each
// adjustment is additive and the result is clipped at the end, which is
// what gives the monotonicity property tests rely on: adding a positive
// signal can only raise the score, adding a negative one can only lower it.
func Score(s Signals) float64 {
	score := strategyWeight[s.Strategy]
	if s.Strategy == models.StrategyFuzzySearch {
		score = clip01(s.FuzzyScore) * 0.75
	}

	if s.YearKnown {
		if s.YearMatchesExact {
			score += 0.10
		} else if s.YearMatchesWithinOne {
			score += 0.05
		}
	}

	if s.IsSeriesCandidate && s.SeasonEpisodeKnown {
		score += 0.05
	}

	if s.EpisodeConfirmedExists {
		score += 0.15
	}
	if s.EpisodeConfirmedAbsent {
		score -= 0.20
	}

	if s.MultipleCandidatesSimilar {
		score -= 0.15
	}

	return clip01(score)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package scoring

import "github.com/sells-group/fitscore-cli/internal/model"

// Default reference scores used when a neighbor has no deal amount or the
// portal has no history for the classification yet.
const (
	defaultIdealScore    = 90
	defaultNonIdealScore = 30
)

// DerivedScore computes a closed-form reference score for a neighbor that
// carries no LLM-assigned score, from how far its deal amount sits from the
// classification's historical median. Ideal neighbors map onto [80,100]
// (100 exactly at the median), non-ideal onto [0,50] (0 at the median).
func DerivedScore(amount *float64, class model.Classification, stats model.ClassStats) float64 {
	ideal := class == model.ClassIdeal

	if amount == nil || stats.IsZero() {
		if ideal {
			return defaultIdealScore
		}
		return defaultNonIdealScore
	}

	dist := relativeDistance(*amount, stats)
	if ideal {
		return 100 - 20*dist
	}
	return 50 * dist
}

// relativeDistance returns the amount's distance from the median as a
// fraction of the wider half-range, clamped to [0,1]. A degenerate range
// (all history at one value) counts any other amount as maximally distant.
func relativeDistance(amount float64, stats model.ClassStats) float64 {
	halfRange := stats.Median - stats.Low
	if upper := stats.High - stats.Median; upper > halfRange {
		halfRange = upper
	}

	dist := amount - stats.Median
	if dist < 0 {
		dist = -dist
	}
	if halfRange <= 0 {
		if dist == 0 {
			return 0
		}
		return 1
	}

	rel := dist / halfRange
	if rel > 1 {
		rel = 1
	}
	return rel
}

package model

// Classification labels historical records used as training references.
type Classification string

const (
	ClassIdeal    Classification = "ideal"
	ClassNonIdeal Classification = "non_ideal"
)

// Classifications lists the labels tracked per portal.
var Classifications = []Classification{ClassIdeal, ClassNonIdeal}

// FitBand labels a record by its current fit score for document packaging.
// Thresholds: >80 Ideal, <50 Less Ideal, in between Neutral, unset Unknown.
func FitBand(score *float64) string {
	switch {
	case score == nil:
		return "Unknown"
	case *score > 80:
		return "Ideal"
	case *score < 50:
		return "Less Ideal"
	default:
		return "Neutral"
	}
}

// SizeBucket maps an employee count onto a coarse company-size label.
func SizeBucket(employees *int) string {
	if employees == nil {
		return "Unknown"
	}
	switch n := *employees; {
	case n < 10:
		return "Micro"
	case n < 50:
		return "Small"
	case n < 250:
		return "Medium"
	default:
		return "Large"
	}
}

package model

import "sort"

// ClassStats is the running low/high/median/count aggregate for one portal
// and classification. Invariant: Low <= Median <= High whenever Count > 0;
// a zero Count implies all three values are zero.
type ClassStats struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Median float64 `json:"median"`
	Count  int     `json:"count"`
}

// IsZero reports whether no amounts have been observed.
func (s ClassStats) IsZero() bool {
	return s.Count == 0
}

// ComputeStats aggregates a set of observed deal amounts.
func ComputeStats(amounts []float64) ClassStats {
	if len(amounts) == 0 {
		return ClassStats{}
	}
	sorted := make([]float64, len(amounts))
	copy(sorted, amounts)
	sort.Float64s(sorted)

	return ClassStats{
		Low:    sorted[0],
		High:   sorted[len(sorted)-1],
		Median: median(sorted),
		Count:  len(sorted),
	}
}

// Merge folds newly observed amounts into a stored aggregate. Low and high
// combine exactly; the combined median is an approximation that stands in
// for the old distribution by repeating the stored median Count times before
// recomputing. Skewed historical distributions will drift under this scheme.
func (s ClassStats) Merge(amounts []float64) ClassStats {
	if len(amounts) == 0 {
		return s
	}
	if s.Count == 0 {
		return ComputeStats(amounts)
	}

	fresh := ComputeStats(amounts)

	combined := make([]float64, 0, s.Count+len(amounts))
	for i := 0; i < s.Count; i++ {
		combined = append(combined, s.Median)
	}
	combined = append(combined, amounts...)
	sort.Float64s(combined)

	return ClassStats{
		Low:    minF(s.Low, fresh.Low),
		High:   maxF(s.High, fresh.High),
		Median: median(combined),
		Count:  s.Count + fresh.Count,
	}
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

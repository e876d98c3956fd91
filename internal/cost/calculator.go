// Package cost attributes a USD cost to oracle usage so score events carry
// an auditable spend figure.
package cost

import "github.com/sells-group/fitscore-cli/internal/oracle"

// Rates holds per-model pricing configuration (USD per million tokens).
type Rates struct {
	Completion map[string]ModelRate `yaml:"completion" mapstructure:"completion"`
	Embedding  map[string]float64   `yaml:"embedding" mapstructure:"embedding"`
}

// ModelRate holds per-model token pricing.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for oracle usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost of one completion call. Unknown models cost 0.
func (c *Calculator) Completion(model string, u oracle.Usage) float64 {
	rate, ok := c.rates.Completion[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.InputTokens) / 1e6) * rate.Input
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWriteTokens) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheReadTokens) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Embedding computes the cost of one embedding call. Unknown models cost 0.
func (c *Calculator) Embedding(model string, tokens int64) float64 {
	return (float64(tokens) / 1e6) * c.rates.Embedding[model]
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Completion: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"gpt-4o-mini": {
				Input: 0.15, Output: 0.60,
			},
			"gpt-4o": {
				Input: 2.50, Output: 10.00,
			},
		},
		Embedding: map[string]float64{
			"text-embedding-3-small": 0.02,
			"text-embedding-3-large": 0.13,
		},
	}
}

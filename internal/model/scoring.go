package model

import "time"

// Verdict is the parsed LLM response for a scoring call.
type Verdict struct {
	Score     float64  `json:"score"`
	Positives []string `json:"positives"`
	Negatives []string `json:"negatives"`
	Summary   string   `json:"summary"`
}

// ScoringResult is the normalized output written back to the CRM record.
type ScoringResult struct {
	Score      float64   `json:"score"`
	Summary    string    `json:"summary"`
	LastScored time.Time `json:"last_scored"`
}

// ScoreEvent is the audit row recorded for every scoring call: full prompt,
// raw oracle response, parsed score, and attributed cost. Events double as
// the quota ledger for the billing period.
type ScoreEvent struct {
	ID         string     `json:"id"`
	PortalID   string     `json:"portal_id"`
	RecordKind RecordKind `json:"record_kind"`
	RecordID   string     `json:"record_id"`
	Prompt     string     `json:"prompt"`
	Response   string     `json:"response"`
	Score      float64    `json:"score"`
	CostUSD    float64    `json:"cost_usd"`
	CreatedAt  time.Time  `json:"created_at"`
}

// JobSummary is the job-level result surfaced by sync and scoring endpoints.
type JobSummary struct {
	Success   bool   `json:"success" yaml:"success"`
	PortalID  string `json:"portal_id" yaml:"portal_id"`
	Processed int    `json:"processed" yaml:"processed"`
	Failed    int    `json:"failed" yaml:"failed"`
	Upserted  int    `json:"upserted" yaml:"upserted"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

package model

import "time"

// Account is the per-portal bookkeeping row: credential pair (encrypted at
// rest), scoring plan, and the running classification statistics.
type Account struct {
	PortalID string `json:"portal_id"`
	Source   string `json:"source"`

	// Credential pair, sealed by internal/secrets before storage.
	AccessTokenEnc  string `json:"-"`
	RefreshTokenEnc string `json:"-"`

	// Scoring quota for the current period.
	PlanLimit   int       `json:"plan_limit"`
	PeriodStart time.Time `json:"period_start"`

	Stats map[Classification]ClassStats `json:"stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Namespace returns the vector-store namespace for this portal.
func (a *Account) Namespace() string {
	return a.Source + "-" + a.PortalID
}

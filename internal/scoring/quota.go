// Package scoring implements the fit-score path: quota enforcement,
// neighbor retrieval, prompt assembly, oracle invocation, and CRM
// write-back.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/store"
)

// QuotaExceededError is returned when a portal has exhausted its scoring
// plan for the current period. It carries enough context for a caller to
// tell the user when scoring resumes.
type QuotaExceededError struct {
	PortalID string
	Limit    int
	Used     int
	ResetAt  time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("scoring: portal %s quota exhausted (%d/%d), resets %s",
		e.PortalID, e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// IsQuotaExceeded reports whether the error chain contains a
// QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// currentPeriod returns the start of the billing period containing now and
// its reset time. Periods are monthly, anchored on the account's original
// period start.
func currentPeriod(account *model.Account, now time.Time) (start, reset time.Time) {
	start = account.PeriodStart
	for !start.AddDate(0, 1, 0).After(now) {
		start = start.AddDate(0, 1, 0)
	}
	return start, start.AddDate(0, 1, 0)
}

// checkQuota counts the period's score events against the plan limit. A
// non-positive limit means unmetered.
func checkQuota(ctx context.Context, st store.Store, account *model.Account, now time.Time) error {
	if account.PlanLimit <= 0 {
		return nil
	}

	start, reset := currentPeriod(account, now)
	used, err := st.CountScoreEvents(ctx, account.PortalID, start)
	if err != nil {
		return eris.Wrap(err, "scoring: count quota usage")
	}
	if used >= account.PlanLimit {
		return &QuotaExceededError{
			PortalID: account.PortalID,
			Limit:    account.PlanLimit,
			Used:     used,
			ResetAt:  reset,
		}
	}
	return nil
}

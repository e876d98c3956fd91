package sync

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/store"
)

// StatsTracker accumulates deal amounts per classification during a sync run
// and folds them into the portal's stored aggregates batch by batch, so a
// partially failed run still advances the statistics it saw.
type StatsTracker struct {
	store    store.Store
	portalID string
	log      *zap.Logger

	stats   map[model.Classification]model.ClassStats
	pending map[model.Classification][]float64
}

// NewStatsTracker creates a tracker seeded with the account's stored stats.
func NewStatsTracker(st store.Store, account *model.Account, log *zap.Logger) *StatsTracker {
	if log == nil {
		log = zap.NewNop()
	}
	stats := make(map[model.Classification]model.ClassStats, len(account.Stats))
	for k, v := range account.Stats {
		stats[k] = v
	}
	return &StatsTracker{
		store:    st,
		portalID: account.PortalID,
		log:      log,
		stats:    stats,
		pending:  map[model.Classification][]float64{},
	}
}

// ObserveDeal records a deal amount under its classification. Deals without
// a stored fit score or amount, or with a mid-band score, are ignored.
func (t *StatsTracker) ObserveDeal(d *model.Deal) {
	if d == nil || d.Amount == nil || d.FitScore == nil {
		return
	}
	switch label := classificationFor(*d.FitScore); label {
	case string(model.ClassIdeal):
		t.pending[model.ClassIdeal] = append(t.pending[model.ClassIdeal], *d.Amount)
	case string(model.ClassNonIdeal):
		t.pending[model.ClassNonIdeal] = append(t.pending[model.ClassNonIdeal], *d.Amount)
	}
}

// Flush merges the pending observations into the aggregates and persists
// them. A flush with nothing pending is a no-op.
func (t *StatsTracker) Flush(ctx context.Context) error {
	dirty := false
	for class, amounts := range t.pending {
		if len(amounts) == 0 {
			continue
		}
		t.stats[class] = t.stats[class].Merge(amounts)
		t.pending[class] = nil
		dirty = true
	}
	if !dirty {
		return nil
	}

	if err := t.store.UpdateAccountStats(ctx, t.portalID, t.stats); err != nil {
		return eris.Wrap(err, "sync: persist stats")
	}
	t.log.Debug("flushed classification stats",
		zap.String("portal_id", t.portalID),
		zap.Int("ideal_count", t.stats[model.ClassIdeal].Count),
		zap.Int("non_ideal_count", t.stats[model.ClassNonIdeal].Count))
	return nil
}

// Stats returns the current aggregates.
func (t *StatsTracker) Stats() map[model.Classification]model.ClassStats {
	return t.stats
}

package scoring

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/store"
)

const (
	defaultDrainBatch = 25
	defaultDrainLimit = 1
)

// DrainSummary reports one queue drain.
type DrainSummary struct {
	Scored   int  `json:"scored" yaml:"scored"`
	Failed   int  `json:"failed" yaml:"failed"`
	QuotaHit bool `json:"quota_hit" yaml:"quota_hit"`
}

// Worker drains the scoring queue against one portal's engine. Items that
// fail are marked failed with the error message; a quota exhaustion requeues
// the item and ends the drain, since every remaining item would hit the same
// wall.
type Worker struct {
	store  store.Store
	engine *Engine
	log    *zap.Logger

	// BatchSize is the number of queue items claimed per round.
	BatchSize int
	// Concurrency bounds in-flight scoring calls. The default of one keeps
	// each portal's CRM and oracle traffic serial.
	Concurrency int
}

// NewWorker creates a queue worker for one portal.
func NewWorker(st store.Store, engine *Engine, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		store:       st,
		engine:      engine,
		log:         log,
		BatchSize:   defaultDrainBatch,
		Concurrency: defaultDrainLimit,
	}
}

// Drain scores queued items until the queue is empty, the quota runs out, or
// ctx is cancelled.
func (w *Worker) Drain(ctx context.Context) (*DrainSummary, error) {
	summary := &DrainSummary{}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		items, err := w.store.NextQueued(ctx, w.engine.PortalID(), w.batchSize())
		if err != nil {
			return summary, err
		}
		if len(items) == 0 {
			return summary, nil
		}

		if err := w.drainBatch(ctx, items, summary); err != nil {
			return summary, err
		}
		if summary.QuotaHit {
			return summary, nil
		}
	}
}

func (w *Worker) drainBatch(ctx context.Context, items []model.QueueItem, summary *DrainSummary) error {
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency())

	for _, item := range items {
		mu.Lock()
		quotaHit := summary.QuotaHit
		mu.Unlock()
		if quotaHit {
			break
		}

		g.Go(func() error {
			if err := w.store.SetQueueStatus(ctx, item.ID, model.QueueStatusInProgress, ""); err != nil {
				return err
			}

			_, err := w.engine.Score(ctx, item.RecordKind, item.RecordID)
			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				summary.Scored++
				return w.store.SetQueueStatus(ctx, item.ID, model.QueueStatusCompleted, "")
			case IsQuotaExceeded(err):
				// Leave the item claimable for the next period.
				summary.QuotaHit = true
				w.log.Warn("scoring quota exhausted, ending drain",
					zap.String("record_id", item.RecordID), zap.Error(err))
				return w.store.SetQueueStatus(ctx, item.ID, model.QueueStatusQueued, "")
			default:
				summary.Failed++
				w.log.Warn("scoring failed",
					zap.String("kind", string(item.RecordKind)),
					zap.String("record_id", item.RecordID),
					zap.Error(err))
				return w.store.SetQueueStatus(ctx, item.ID, model.QueueStatusFailed, err.Error())
			}
		})
	}
	return g.Wait()
}

func (w *Worker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return defaultDrainBatch
}

func (w *Worker) concurrency() int {
	if w.Concurrency > 0 {
		return w.Concurrency
	}
	return defaultDrainLimit
}

package sync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/internal/resilience"
	"github.com/sells-group/fitscore-cli/internal/store"
	"github.com/sells-group/fitscore-cli/pkg/pinecone"
)

// upsertBatchSize caps vectors per index upsert call.
const upsertBatchSize = 100

// Job runs one portal's sync end to end: page modified records, package,
// diff against the index, embed what changed, upsert, advance cursors.
type Job struct {
	account   *model.Account
	store     store.Store
	paginator *Paginator
	packager  *Packager
	embedder  *Embedder
	differ    *Differ
	index     pinecone.Client
	stats     *StatsTracker
	log       *zap.Logger

	// Kinds lists the record kinds to sync, in order.
	Kinds []model.RecordKind
	// Deadline bounds the whole run; zero means unbounded.
	Deadline time.Duration
	// Since overrides the stored sync cursor when set.
	Since *time.Time
	// DryRun stops each kind after the diff: nothing is embedded, upserted,
	// or persisted, and cursors stay put.
	DryRun bool
}

// NewJob wires a sync job for one account.
func NewJob(
	account *model.Account,
	st store.Store,
	paginator *Paginator,
	packager *Packager,
	embedder *Embedder,
	differ *Differ,
	index pinecone.Client,
	stats *StatsTracker,
	log *zap.Logger,
) *Job {
	if log == nil {
		log = zap.NewNop()
	}
	return &Job{
		account:   account,
		store:     st,
		paginator: paginator,
		packager:  packager,
		embedder:  embedder,
		differ:    differ,
		index:     index,
		stats:     stats,
		log:       log,
		Kinds:     []model.RecordKind{model.KindCompany, model.KindContact, model.KindDeal},
	}
}

// Run executes the sync. The summary always reflects work completed before
// any failure.
func (j *Job) Run(ctx context.Context) (*model.JobSummary, error) {
	if j.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Deadline)
		defer cancel()
	}

	summary := &model.JobSummary{PortalID: j.account.PortalID}
	started := time.Now()

	for _, kind := range j.Kinds {
		if err := j.syncKind(ctx, kind, summary); err != nil {
			summary.Error = err.Error()
			j.log.Error("sync failed",
				zap.String("portal_id", j.account.PortalID),
				zap.String("kind", string(kind)),
				zap.Error(err))
			return summary, err
		}
	}

	summary.Success = true
	j.log.Info("sync complete",
		zap.String("portal_id", j.account.PortalID),
		zap.Int("processed", summary.Processed),
		zap.Int("upserted", summary.Upserted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(started)))
	return summary, nil
}

// MaxRecords caps how many records each kind will page in.
func (j *Job) MaxRecords(n int) {
	j.paginator.MaxRecords = n
}

func (j *Job) syncKind(ctx context.Context, kind model.RecordKind, summary *model.JobSummary) error {
	since, err := j.store.GetSyncCursor(ctx, j.account.PortalID, kind)
	if err != nil {
		return err
	}
	if j.Since != nil {
		since = *j.Since
	}

	records, err := j.paginator.FetchModifiedSince(ctx, kind, since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var docs []model.Document
	deals := map[string]*model.Deal{}
	var maxModified time.Time
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "sync: deadline reached")
		}

		summary.Processed++
		doc, err := j.packager.Package(ctx, rec)
		if err != nil {
			summary.Failed++
			j.log.Warn("packaging failed",
				zap.String("kind", string(kind)),
				zap.String("record_id", rec.ID()),
				zap.Error(err))
			continue
		}
		docs = append(docs, *doc)

		if kind == model.KindDeal {
			deals[doc.ID] = rec.Deal
		}
		if lm := rec.LastModified(); lm.After(maxModified) {
			maxModified = lm
		}
	}

	changed := j.differ.Changed(ctx, j.account.Namespace(), docs)
	summary.Skipped += len(docs) - len(changed)

	if j.DryRun {
		j.log.Info("dry run, skipping embed and upsert",
			zap.String("kind", string(kind)),
			zap.Int("would_upsert", len(changed)))
		return nil
	}

	embedFailed := false
	if len(changed) > 0 {
		// An embedding failure drops this kind's batch but not the job. The
		// cursor is held back so the records are retried on the next run.
		embedded, err := j.embedder.EmbedDocuments(ctx, changed)
		if err != nil {
			embedFailed = true
			summary.Failed += len(changed)
			j.log.Warn("embedding batch failed, skipping upsert",
				zap.String("kind", string(kind)), zap.Error(err))
		} else {
			if err := j.upsert(ctx, embedded); err != nil {
				return err
			}
			summary.Upserted += len(embedded)

			// Stats follow the upserted set. The GTE cursor filter replays
			// the boundary record on every run; the diff marks it unchanged,
			// so its amount is never counted twice.
			for _, doc := range changed {
				if deal := deals[doc.ID]; deal != nil {
					j.stats.ObserveDeal(deal)
				}
			}
		}
	}

	// A stats persistence failure leaves the aggregates stale but does not
	// cost us the batch's index writes.
	if err := j.stats.Flush(ctx); err != nil {
		j.log.Warn("stats flush failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	if embedFailed {
		return nil
	}
	if !maxModified.IsZero() {
		if err := j.store.SetSyncCursor(ctx, j.account.PortalID, kind, maxModified); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) upsert(ctx context.Context, embedded []model.EmbeddedDocument) error {
	namespace := j.account.Namespace()

	// Upserts are idempotent, so any failure is safe to retry.
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.ShouldRetry = func(error) bool { return ctx.Err() == nil }
	retryCfg.OnRetry = resilience.RetryLogger(j.log, "pinecone", "upsert")

	for start := 0; start < len(embedded); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(embedded))

		vectors := make([]pinecone.Vector, 0, end-start)
		for _, doc := range embedded[start:end] {
			vectors = append(vectors, pinecone.Vector{
				ID:       doc.ID,
				Values:   doc.Values,
				Metadata: doc.Metadata,
			})
		}
		err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
			_, err := j.index.Upsert(ctx, namespace, vectors)
			return err
		})
		if err != nil {
			return eris.Wrapf(err, "sync: upsert batch %d-%d", start, end)
		}
	}
	return nil
}

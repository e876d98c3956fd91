// Package store persists portal accounts, sync cursors, the scoring queue,
// and the score-event audit ledger. Postgres is the production backend;
// SQLite serves single-machine and test setups.
package store

import (
	"context"
	"time"

	"github.com/sells-group/fitscore-cli/internal/model"
)

// Store defines the persistence interface for the sync and scoring pipelines.
type Store interface {
	// Accounts
	UpsertAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, portalID string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccountTokens(ctx context.Context, portalID, accessEnc, refreshEnc string) error
	UpdateAccountStats(ctx context.Context, portalID string, stats map[model.Classification]model.ClassStats) error

	// Sync cursors. A zero time means the portal has never synced that kind.
	GetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind) (time.Time, error)
	SetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind, at time.Time) error

	// Scoring queue. EnqueueScore is get-or-create: while an item for the
	// same record is still pending, the existing item is returned and
	// created is false. NextQueued claims only the named portal's items, so
	// a drain never crosses into another portal's queue.
	EnqueueScore(ctx context.Context, portalID string, kind model.RecordKind, recordID string) (item *model.QueueItem, created bool, err error)
	NextQueued(ctx context.Context, portalID string, limit int) ([]model.QueueItem, error)
	SetQueueStatus(ctx context.Context, id string, status model.QueueStatus, errMsg string) error

	// Score events
	InsertScoreEvent(ctx context.Context, ev *model.ScoreEvent) error
	CountScoreEvents(ctx context.Context, portalID string, since time.Time) (int, error)
	ListScoreEvents(ctx context.Context, portalID string, limit int) ([]model.ScoreEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// NotFoundError reports a missing row by entity and key.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return "store: " + e.Entity + " not found: " + e.Key
}

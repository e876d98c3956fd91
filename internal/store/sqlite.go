package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fitscore-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	portal_id         TEXT PRIMARY KEY,
	source            TEXT NOT NULL DEFAULT 'hubspot',
	access_token_enc  TEXT NOT NULL,
	refresh_token_enc TEXT NOT NULL,
	plan_limit        INTEGER NOT NULL DEFAULT 0,
	period_start      DATETIME NOT NULL,
	stats             TEXT NOT NULL DEFAULT '{}',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_cursors (
	portal_id      TEXT NOT NULL,
	record_kind    TEXT NOT NULL,
	last_synced_at DATETIME NOT NULL,
	PRIMARY KEY (portal_id, record_kind)
);

CREATE TABLE IF NOT EXISTS score_queue (
	id          TEXT PRIMARY KEY,
	portal_id   TEXT NOT NULL,
	record_kind TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	error       TEXT,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_queue_status ON score_queue(status, created_at);
CREATE INDEX IF NOT EXISTS idx_score_queue_record ON score_queue(portal_id, record_kind, record_id);

CREATE TABLE IF NOT EXISTS score_events (
	id          TEXT PRIMARY KEY,
	portal_id   TEXT NOT NULL,
	record_kind TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL,
	score       REAL NOT NULL,
	cost_usd    REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_events_portal_created ON score_events(portal_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertAccount(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	statsJSON, err := json.Marshal(a.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (portal_id) DO UPDATE SET
		   source = excluded.source,
		   access_token_enc = excluded.access_token_enc,
		   refresh_token_enc = excluded.refresh_token_enc,
		   plan_limit = excluded.plan_limit,
		   period_start = excluded.period_start,
		   stats = excluded.stats,
		   updated_at = excluded.updated_at`,
		a.PortalID, a.Source, a.AccessTokenEnc, a.RefreshTokenEnc,
		a.PlanLimit, a.PeriodStart, string(statsJSON), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert account %s", a.PortalID)
}

func (s *SQLiteStore) GetAccount(ctx context.Context, portalID string) (*model.Account, error) {
	var a model.Account
	var statsJSON string
	var kind string

	err := s.db.QueryRowContext(ctx,
		`SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at
		 FROM accounts WHERE portal_id = ?`,
		portalID,
	).Scan(&a.PortalID, &kind, &a.AccessTokenEnc, &a.RefreshTokenEnc,
		&a.PlanLimit, &a.PeriodStart, &statsJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "account", Key: portalID}
		}
		return nil, eris.Wrapf(err, "sqlite: get account %s", portalID)
	}
	a.Source = kind

	if err := json.Unmarshal([]byte(statsJSON), &a.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at
		 FROM accounts ORDER BY portal_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accounts")
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		var statsJSON string
		if err := rows.Scan(&a.PortalID, &a.Source, &a.AccessTokenEnc, &a.RefreshTokenEnc,
			&a.PlanLimit, &a.PeriodStart, &statsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		if err := json.Unmarshal([]byte(statsJSON), &a.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list accounts iterate")
}

func (s *SQLiteStore) UpdateAccountTokens(ctx context.Context, portalID, accessEnc, refreshEnc string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET access_token_enc = ?, refresh_token_enc = ?, updated_at = ? WHERE portal_id = ?`,
		accessEnc, refreshEnc, time.Now().UTC(), portalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tokens %s", portalID)
	}
	return checkRowsAffected(res, "account", portalID)
}

func (s *SQLiteStore) UpdateAccountStats(ctx context.Context, portalID string, stats map[model.Classification]model.ClassStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET stats = ?, updated_at = ? WHERE portal_id = ?`,
		string(statsJSON), time.Now().UTC(), portalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update stats %s", portalID)
	}
	return checkRowsAffected(res, "account", portalID)
}

func (s *SQLiteStore) GetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind) (time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_cursors WHERE portal_id = ? AND record_kind = ?`,
		portalID, string(kind),
	).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrapf(err, "sqlite: get sync cursor %s/%s", portalID, kind)
	}
	return at, nil
}

func (s *SQLiteStore) SetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_cursors (portal_id, record_kind, last_synced_at) VALUES (?, ?, ?)
		 ON CONFLICT (portal_id, record_kind) DO UPDATE SET last_synced_at = excluded.last_synced_at`,
		portalID, string(kind), at,
	)
	return eris.Wrapf(err, "sqlite: set sync cursor %s/%s", portalID, kind)
}

func (s *SQLiteStore) EnqueueScore(ctx context.Context, portalID string, kind model.RecordKind, recordID string) (*model.QueueItem, bool, error) {
	var existing model.QueueItem
	var kindStr, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, portal_id, record_kind, record_id, status, COALESCE(error, ''), created_at, updated_at
		 FROM score_queue
		 WHERE portal_id = ? AND record_kind = ? AND record_id = ? AND status IN ('queued', 'in_progress')
		 LIMIT 1`,
		portalID, string(kind), recordID,
	).Scan(&existing.ID, &existing.PortalID, &kindStr, &existing.RecordID,
		&status, &existing.Error, &existing.CreatedAt, &existing.UpdatedAt)
	if err == nil {
		existing.RecordKind = model.RecordKind(kindStr)
		existing.Status = model.QueueStatus(status)
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, eris.Wrap(err, "sqlite: find pending queue item")
	}

	item := &model.QueueItem{
		ID:         uuid.New().String(),
		PortalID:   portalID,
		RecordKind: kind,
		RecordID:   recordID,
		Status:     model.QueueStatusQueued,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_queue (id, portal_id, record_kind, record_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PortalID, string(item.RecordKind), item.RecordID,
		string(item.Status), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: enqueue score")
	}
	return item, true, nil
}

func (s *SQLiteStore) NextQueued(ctx context.Context, portalID string, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, portal_id, record_kind, record_id, status, COALESCE(error, ''), created_at, updated_at
		 FROM score_queue WHERE portal_id = ? AND status = 'queued' ORDER BY created_at ASC LIMIT ?`,
		portalID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next queued")
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		var it model.QueueItem
		var kindStr, status string
		if err := rows.Scan(&it.ID, &it.PortalID, &kindStr, &it.RecordID,
			&status, &it.Error, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		it.RecordKind = model.RecordKind(kindStr)
		it.Status = model.QueueStatus(status)
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: next queued iterate")
}

func (s *SQLiteStore) SetQueueStatus(ctx context.Context, id string, status model.QueueStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE score_queue SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set queue status %s", id)
	}
	return checkRowsAffected(res, "queue_item", id)
}

func (s *SQLiteStore) InsertScoreEvent(ctx context.Context, ev *model.ScoreEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO score_events (id, portal_id, record_kind, record_id, prompt, response, score, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PortalID, string(ev.RecordKind), ev.RecordID,
		ev.Prompt, ev.Response, ev.Score, ev.CostUSD, ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert score event")
}

func (s *SQLiteStore) CountScoreEvents(ctx context.Context, portalID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM score_events WHERE portal_id = ? AND created_at >= ?`,
		portalID, since,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count score events %s", portalID)
}

func (s *SQLiteStore) ListScoreEvents(ctx context.Context, portalID string, limit int) ([]model.ScoreEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, portal_id, record_kind, record_id, prompt, response, score, cost_usd, created_at
		 FROM score_events WHERE portal_id = ? ORDER BY created_at DESC LIMIT ?`,
		portalID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list score events")
	}
	defer rows.Close()

	var events []model.ScoreEvent
	for rows.Next() {
		var ev model.ScoreEvent
		var kindStr string
		if err := rows.Scan(&ev.ID, &ev.PortalID, &kindStr, &ev.RecordID,
			&ev.Prompt, &ev.Response, &ev.Score, &ev.CostUSD, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score event")
		}
		ev.RecordKind = model.RecordKind(kindStr)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list score events iterate")
}

func checkRowsAffected(res sql.Result, entity, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &NotFoundError{Entity: entity, Key: key}
	}
	return nil
}

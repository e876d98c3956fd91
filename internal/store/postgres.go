package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fitscore-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_account":        `SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at FROM accounts WHERE portal_id = $1`,
	"update_tokens":      `UPDATE accounts SET access_token_enc = $1, refresh_token_enc = $2, updated_at = $3 WHERE portal_id = $4`,
	"update_stats":       `UPDATE accounts SET stats = $1, updated_at = $2 WHERE portal_id = $3`,
	"get_cursor":         `SELECT last_synced_at FROM sync_cursors WHERE portal_id = $1 AND record_kind = $2`,
	"insert_score_event": `INSERT INTO score_events (id, portal_id, record_kind, record_id, prompt, response, score, cost_usd, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"count_score_events": `SELECT COUNT(*) FROM score_events WHERE portal_id = $1 AND created_at >= $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, primarily for tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS accounts (
	portal_id         TEXT PRIMARY KEY,
	source            TEXT NOT NULL DEFAULT 'hubspot',
	access_token_enc  TEXT NOT NULL,
	refresh_token_enc TEXT NOT NULL,
	plan_limit        INTEGER NOT NULL DEFAULT 0,
	period_start      TIMESTAMPTZ NOT NULL DEFAULT now(),
	stats             JSONB NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sync_cursors (
	portal_id      TEXT NOT NULL REFERENCES accounts(portal_id),
	record_kind    TEXT NOT NULL,
	last_synced_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (portal_id, record_kind)
);

CREATE TABLE IF NOT EXISTS score_queue (
	id          TEXT PRIMARY KEY,
	portal_id   TEXT NOT NULL,
	record_kind TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'queued',
	error       TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_score_queue_pending
	ON score_queue(portal_id, record_kind, record_id)
	WHERE status IN ('queued', 'in_progress');
CREATE INDEX IF NOT EXISTS idx_score_queue_status ON score_queue(status, created_at);

CREATE TABLE IF NOT EXISTS score_events (
	id          TEXT PRIMARY KEY,
	portal_id   TEXT NOT NULL,
	record_kind TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_score_events_portal_created ON score_events(portal_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertAccount(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	statsJSON, err := json.Marshal(a.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (portal_id) DO UPDATE SET
		   source = $2, access_token_enc = $3, refresh_token_enc = $4,
		   plan_limit = $5, period_start = $6, stats = $7, updated_at = $9`,
		a.PortalID, a.Source, a.AccessTokenEnc, a.RefreshTokenEnc,
		a.PlanLimit, a.PeriodStart, statsJSON, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert account %s", a.PortalID)
}

func (s *PostgresStore) GetAccount(ctx context.Context, portalID string) (*model.Account, error) {
	var a model.Account
	var statsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at
		 FROM accounts WHERE portal_id = $1`,
		portalID,
	).Scan(&a.PortalID, &a.Source, &a.AccessTokenEnc, &a.RefreshTokenEnc,
		&a.PlanLimit, &a.PeriodStart, &statsJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Entity: "account", Key: portalID}
		}
		return nil, eris.Wrapf(err, "postgres: get account %s", portalID)
	}

	if err := json.Unmarshal(statsJSON, &a.Stats); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal stats")
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at
		 FROM accounts ORDER BY portal_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accounts")
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		var statsJSON []byte
		if err := rows.Scan(&a.PortalID, &a.Source, &a.AccessTokenEnc, &a.RefreshTokenEnc,
			&a.PlanLimit, &a.PeriodStart, &statsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan account")
		}
		if err := json.Unmarshal(statsJSON, &a.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list accounts iterate")
}

func (s *PostgresStore) UpdateAccountTokens(ctx context.Context, portalID, accessEnc, refreshEnc string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET access_token_enc = $1, refresh_token_enc = $2, updated_at = $3 WHERE portal_id = $4`,
		accessEnc, refreshEnc, time.Now().UTC(), portalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tokens %s", portalID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "account", Key: portalID}
	}
	return nil
}

func (s *PostgresStore) UpdateAccountStats(ctx context.Context, portalID string, stats map[model.Classification]model.ClassStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET stats = $1, updated_at = $2 WHERE portal_id = $3`,
		statsJSON, time.Now().UTC(), portalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update stats %s", portalID)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "account", Key: portalID}
	}
	return nil
}

func (s *PostgresStore) GetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_synced_at FROM sync_cursors WHERE portal_id = $1 AND record_kind = $2`,
		portalID, string(kind),
	).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, eris.Wrapf(err, "postgres: get sync cursor %s/%s", portalID, kind)
	}
	return at, nil
}

func (s *PostgresStore) SetSyncCursor(ctx context.Context, portalID string, kind model.RecordKind, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_cursors (portal_id, record_kind, last_synced_at) VALUES ($1, $2, $3)
		 ON CONFLICT (portal_id, record_kind) DO UPDATE SET last_synced_at = $3`,
		portalID, string(kind), at,
	)
	return eris.Wrapf(err, "postgres: set sync cursor %s/%s", portalID, kind)
}

func (s *PostgresStore) EnqueueScore(ctx context.Context, portalID string, kind model.RecordKind, recordID string) (*model.QueueItem, bool, error) {
	var existing model.QueueItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, portal_id, record_kind, record_id, status, COALESCE(error, ''), created_at, updated_at
		 FROM score_queue
		 WHERE portal_id = $1 AND record_kind = $2 AND record_id = $3 AND status IN ('queued', 'in_progress')
		 LIMIT 1`,
		portalID, string(kind), recordID,
	).Scan(&existing.ID, &existing.PortalID, &existing.RecordKind, &existing.RecordID,
		&existing.Status, &existing.Error, &existing.CreatedAt, &existing.UpdatedAt)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, eris.Wrap(err, "postgres: find pending queue item")
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO score_queue (id, portal_id, record_kind, record_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID, item.PortalID, string(item.RecordKind), item.RecordID,
		string(item.Status), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: enqueue score")
	}
	return item, true, nil
}

func (s *PostgresStore) NextQueued(ctx context.Context, portalID string, limit int) ([]model.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_id, record_kind, record_id, status, COALESCE(error, ''), created_at, updated_at
		 FROM score_queue WHERE portal_id = $1 AND status = 'queued' ORDER BY created_at ASC LIMIT $2`,
		portalID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next queued")
	}
	defer rows.Close()

	var items []model.QueueItem
	for rows.Next() {
		var it model.QueueItem
		if err := rows.Scan(&it.ID, &it.PortalID, &it.RecordKind, &it.RecordID,
			&it.Status, &it.Error, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: next queued iterate")
}

func (s *PostgresStore) SetQueueStatus(ctx context.Context, id string, status model.QueueStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE score_queue SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set queue status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "queue_item", Key: id}
	}
	return nil
}

func (s *PostgresStore) InsertScoreEvent(ctx context.Context, ev *model.ScoreEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO score_events (id, portal_id, record_kind, record_id, prompt, response, score, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.PortalID, string(ev.RecordKind), ev.RecordID,
		ev.Prompt, ev.Response, ev.Score, ev.CostUSD, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert score event")
}

func (s *PostgresStore) CountScoreEvents(ctx context.Context, portalID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM score_events WHERE portal_id = $1 AND created_at >= $2`,
		portalID, since,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count score events %s", portalID)
}

func (s *PostgresStore) ListScoreEvents(ctx context.Context, portalID string, limit int) ([]model.ScoreEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_id, record_kind, record_id, prompt, response, score, cost_usd, created_at
		 FROM score_events WHERE portal_id = $1 ORDER BY created_at DESC LIMIT $2`,
		portalID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list score events")
	}
	defer rows.Close()

	var events []model.ScoreEvent
	for rows.Next() {
		var ev model.ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.PortalID, &ev.RecordKind, &ev.RecordID,
			&ev.Prompt, &ev.Response, &ev.Score, &ev.CostUSD, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list score events iterate")
}

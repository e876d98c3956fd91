package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitscore-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresGetAccount(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT portal_id, source, access_token_enc, refresh_token_enc, plan_limit, period_start, stats, created_at, updated_at`)).
		WithArgs("12345").
		WillReturnRows(pgxmock.NewRows([]string{
			"portal_id", "source", "access_token_enc", "refresh_token_enc",
			"plan_limit", "period_start", "stats", "created_at", "updated_at",
		}).AddRow("12345", "hubspot", "enc-a", "enc-r", 500, now, []byte(`{"ideal":{"low":1,"high":9,"median":5,"count":3}}`), now, now))

	got, err := s.GetAccount(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, 500, got.PlanLimit)
	assert.Equal(t, 3, got.Stats[model.ClassIdeal].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetAccount_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT portal_id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAccount(context.Background(), "missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAccountTokens_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET access_token_enc = $1`)).
		WithArgs("a", "r", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateAccountTokens(context.Background(), "missing", "a", "r")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueScore_CreatesWhenNonePending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, portal_id, record_kind, record_id, status`).
		WithArgs("12345", "deals", "901").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO score_queue`)).
		WithArgs(pgxmock.AnyArg(), "12345", "deals", "901", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	item, created, err := s.EnqueueScore(context.Background(), "12345", model.KindDeal, "901")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.QueueStatusQueued, item.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueScore_ReturnsPending(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, portal_id, record_kind, record_id, status`).
		WithArgs("12345", "deals", "901").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "portal_id", "record_kind", "record_id", "status", "error", "created_at", "updated_at",
		}).AddRow("q-1", "12345", "deals", "901", "queued", "", now, now))

	item, created, err := s.EnqueueScore(context.Background(), "12345", model.KindDeal, "901")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "q-1", item.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCountScoreEvents(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM score_events`)).
		WithArgs("12345", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.CountScoreEvents(context.Background(), "12345", since)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertScoreEvent_AssignsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO score_events`)).
		WithArgs(pgxmock.AnyArg(), "12345", "deals", "901", "prompt", "resp", 87.5, 0.02, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ev := &model.ScoreEvent{
		PortalID:   "12345",
		RecordKind: model.KindDeal,
		RecordID:   "901",
		Prompt:     "prompt",
		Response:   "resp",
		Score:      87.5,
		CostUSD:    0.02,
	}
	require.NoError(t, s.InsertScoreEvent(context.Background(), ev))
	assert.NotEmpty(t, ev.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// A helper function to create a mock database connection.
func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

var alertCols = []string{"id", "bin_id", "kind", "message", "percent_full", "ts", "ack", "resolved_at", "acked_by", "created_at"}

func TestGetBin(t *testing.T) {
	s, mock := newTestStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "location", "capacity_kg", "threshold_pct", "active", "created_at", "updated_at"}).
		AddRow("BIN-001", "Canteen 1 Main Bin", "Canteen 1", 5.0, 80.0, true, 100, 100)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bins WHERE id = $1`)).WithArgs("BIN-001").WillReturnRows(rows)

	bin, err := s.GetBin(context.Background(), "BIN-001")
	require.NoError(t, err)
	assert.Equal(t, 5.0, bin.CapacityKg)
	assert.True(t, bin.Active)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM bins WHERE id = $1`)).WithArgs("BIN-404").WillReturnError(sql.ErrNoRows)
	_, err = s.GetBin(context.Background(), "BIN-404")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.True(t, models.IsRetryable(classify("op", errors.New("connection reset by peer"))))
	assert.True(t, models.IsRetryable(classify("op", &pq.Error{Code: "40001"})))
	assert.False(t, models.IsRetryable(classify("op", &pq.Error{Code: "23514"})))
	assert.False(t, models.IsRetryable(classify("op", &pq.Error{Code: "22003"})))
	assert.Nil(t, classify("op", nil))
}

func TestReconcile_CreatesUnderAdvisoryLock(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("BIN-001").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE bin_id = $1 AND ack = FALSE`)).
		WithArgs("BIN-001").WillReturnRows(sqlmock.NewRows(alertCols))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO alerts`)).
		WithArgs("a1", "BIN-001", models.AlertKindWarning, "msg", 85, int64(100), false, nil, nil, int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Reconcile(context.Background(), "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		open, err := tx.OpenAlerts(ctx, "BIN-001")
		require.NoError(t, err)
		assert.Empty(t, open)
		return tx.InsertAlert(ctx, &models.Alert{ID: "a1", BinID: "BIN-001", Kind: models.AlertKindWarning, Message: "msg", PercentFull: 85, TS: 100, CreatedAt: 100})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_RollsBackOnError(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("BIN-001").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE bin_id = $1 AND ack = FALSE`)).
		WithArgs("BIN-001").WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	err := s.Reconcile(context.Background(), "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		_, err := tx.OpenAlerts(ctx, "BIN-001")
		return err
	})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_NotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE alerts SET`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Reconcile(context.Background(), "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		return tx.UpdateAlert(ctx, &models.Alert{ID: "gone", BinID: "BIN-001", Kind: models.AlertKindFull})
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledge(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT bin_id FROM alerts WHERE id = $1`)).
		WithArgs("a1").WillReturnRows(sqlmock.NewRows([]string{"bin_id"}).AddRow("BIN-001"))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("BIN-001").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM alerts WHERE id = $1`)).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow("a1", "BIN-001", "full", "msg", 97, 100, false, nil, nil, 90))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE alerts SET ack = TRUE, acked_by = $1 WHERE id = $2`)).
		WithArgs("user-1", "a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	alert, changed, err := s.Acknowledge(context.Background(), "a1", "user-1", 200)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, alert.Ack)
	assert.Nil(t, alert.ResolvedAt)
	assert.Equal(t, "user-1", *alert.AckedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledge_Unknown(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT bin_id FROM alerts WHERE id = $1`)).
		WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, _, err := s.Acknowledge(context.Background(), "nope", "user-1", 200)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlerts_BuildsFilter(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM alerts WHERE bin_id = $1 AND ack = FALSE ORDER BY ts DESC, created_at DESC LIMIT $2`)).
		WithArgs("BIN-001", 5).
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow("a1", "BIN-001", "warning", "msg", 85, 100, false, nil, nil, 100))

	alerts, err := s.ListAlerts(context.Background(), models.AlertFilter{BinID: "BIN-001", OpenOnly: true, Limit: 5})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertKindWarning, alerts[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPercentFull(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE readings SET percent_full = $1 WHERE id = $2`)).
		WithArgs(82, "r1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetPercentFull(context.Background(), "r1", 82))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE readings SET percent_full = $1 WHERE id = $2`)).
		WithArgs(82, "missing").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.SetPercentFull(context.Background(), "missing", 82), models.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSummaries_AllOrNothing(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO summaries`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO summaries`)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.SaveSummaries(context.Background(), []models.Summary{{ID: "s1", BinID: "BIN-001"}, {ID: "s2", BinID: "BIN-002"}})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).WillReturnError(&pq.Error{Code: "23505"})
	err := s.CreateUser(context.Background(), &models.User{ID: "u1", Email: "a@b.c"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(sqlx.NewDb(db, "postgres")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_StopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnError(errors.New("permission denied"))

	err = Migrate(sqlx.NewDb(db, "postgres"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

const alertColumns = `id, bin_id, kind, message, percent_full, ts, ack, resolved_at, acked_by, created_at`

// lockBin serializes writers for one bin until the transaction ends.
const lockBinQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

type alertTx struct {
	tx *sqlx.Tx
}

func (t *alertTx) OpenAlerts(ctx context.Context, binID string) ([]models.Alert, error) {
	alerts := []models.Alert{}
	query := `SELECT ` + alertColumns + ` FROM alerts
	          WHERE bin_id = $1 AND ack = FALSE
	          ORDER BY ts DESC, created_at DESC`
	if err := t.tx.SelectContext(ctx, &alerts, query, binID); err != nil {
		return nil, classify("open alerts", err)
	}
	return alerts, nil
}

func (t *alertTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (id, bin_id, kind, message, percent_full, ts, ack, resolved_at, acked_by, created_at)
		VALUES (:id, :bin_id, :kind, :message, :percent_full, :ts, :ack, :resolved_at, :acked_by, :created_at)
	`
	if _, err := t.tx.NamedExecContext(ctx, query, a); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert alert for bin %s: %w", a.BinID, models.ErrInvariantViolation)
		}
		return classify("insert alert", err)
	}
	return nil
}

func (t *alertTx) UpdateAlert(ctx context.Context, a *models.Alert) error {
	query := `
		UPDATE alerts SET
			kind = :kind,
			message = :message,
			percent_full = :percent_full,
			ts = :ts,
			ack = :ack,
			resolved_at = :resolved_at,
			acked_by = :acked_by
		WHERE id = :id
	`
	res, err := t.tx.NamedExecContext(ctx, query, a)
	if err != nil {
		return classify("update alert", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFound("alert", a.ID)
	}
	return nil
}

// Reconcile runs fn in a transaction holding the bin's advisory lock, so
// concurrent writers in any process see each other's committed alerts.
func (s *Store) Reconcile(ctx context.Context, binID string, fn func(ctx context.Context, tx store.AlertTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin reconcile", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, lockBinQuery, binID); err != nil {
		return classify("lock bin", err)
	}
	if err := fn(ctx, &alertTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit reconcile", err)
	}
	return nil
}

func (s *Store) Acknowledge(ctx context.Context, alertID, userID string, at int64) (*models.Alert, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, classify("begin acknowledge", err)
	}
	defer tx.Rollback()

	var binID string
	err = tx.GetContext(ctx, &binID, `SELECT bin_id FROM alerts WHERE id = $1`, alertID)
	if isNoRows(err) {
		return nil, false, models.NotFound("alert", alertID)
	}
	if err != nil {
		return nil, false, classify("get alert bin", err)
	}
	if _, err := tx.ExecContext(ctx, lockBinQuery, binID); err != nil {
		return nil, false, classify("lock bin", err)
	}

	var alert models.Alert
	if err := tx.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, alertID); err != nil {
		return nil, false, classify("get alert", err)
	}
	if alert.Ack {
		return &alert, false, nil
	}

	var ackedBy *string
	if userID != "" {
		ackedBy = &userID
	}
	if _, err := tx.ExecContext(ctx, `UPDATE alerts SET ack = TRUE, acked_by = $1 WHERE id = $2`, ackedBy, alertID); err != nil {
		return nil, false, classify("acknowledge alert", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, classify("commit acknowledge", err)
	}

	alert.Ack = true
	alert.AckedBy = ackedBy
	return &alert, true, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if isNoRows(err) {
		return nil, models.NotFound("alert", id)
	}
	if err != nil {
		return nil, classify("get alert", err)
	}
	return &alert, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.BinID != "" {
		args = append(args, filter.BinID)
		where = append(where, fmt.Sprintf("bin_id = $%d", len(args)))
	}
	if filter.OpenOnly {
		where = append(where, "ack = FALSE")
	}
	if filter.Since > 0 {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	alerts := []models.Alert{}
	if err := s.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, classify("list alerts", err)
	}
	return alerts, nil
}

func (s *Store) CountAlerts(ctx context.Context, binID string, from, to int64) (int, error) {
	var count int
	var err error
	if binID == "" {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts WHERE created_at >= $1 AND created_at < $2`, from, to)
	} else {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts WHERE bin_id = $1 AND created_at >= $2 AND created_at < $3`, binID, from, to)
	}
	if err != nil {
		return 0, classify("count alerts", err)
	}
	return count, nil
}

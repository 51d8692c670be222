package firestore

import (
	"context"
	"fmt"

	fs "cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// alertState is the per-bin guard document. Version changes on every
// committed alert write for the bin.
type alertState struct {
	BinID       string `firestore:"bin_id"`
	OpenAlertID string `firestore:"open_alert_id"`
	Version     int64  `firestore:"version"`
	UpdatedAt   int64  `firestore:"updated_at"`
}

// alertTx buffers writes in a Firestore transaction. Firestore requires
// every read to happen before the first write.
type alertTx struct {
	s      *Store
	tx     *fs.Transaction
	open   map[string]bool
	writes int
}

func (t *alertTx) OpenAlerts(ctx context.Context, binID string) ([]models.Alert, error) {
	q := t.s.client.Collection(colAlerts).
		Where("bin_id", "==", binID).
		Where("ack", "==", false)
	alerts, err := collect[models.Alert](t.tx.Documents(q))
	if err != nil {
		return nil, err
	}
	sortAlertsNewestFirst(alerts)
	for _, a := range alerts {
		t.open[a.ID] = true
	}
	return alerts, nil
}

func (t *alertTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	if !a.Ack {
		for id, open := range t.open {
			if open && id != a.ID {
				return fmt.Errorf("insert alert for bin %s: %w", a.BinID, models.ErrInvariantViolation)
			}
		}
	}
	t.open[a.ID] = !a.Ack
	t.writes++
	return t.tx.Create(t.s.client.Collection(colAlerts).Doc(a.ID), a)
}

func (t *alertTx) UpdateAlert(ctx context.Context, a *models.Alert) error {
	t.open[a.ID] = !a.Ack
	t.writes++
	// Update fails the commit with NotFound when the document is gone.
	return t.tx.Update(t.s.client.Collection(colAlerts).Doc(a.ID), alertUpdates(a))
}

func alertUpdates(a *models.Alert) []fs.Update {
	return []fs.Update{
		{Path: "kind", Value: a.Kind},
		{Path: "message", Value: a.Message},
		{Path: "percent_full", Value: a.PercentFull},
		{Path: "ts", Value: a.TS},
		{Path: "ack", Value: a.Ack},
		{Path: "resolved_at", Value: a.ResolvedAt},
		{Path: "acked_by", Value: a.AckedBy},
	}
}

func (t *alertTx) openAlertID() string {
	for id, open := range t.open {
		if open {
			return id
		}
	}
	return ""
}

// readState loads the guard document inside tx. A missing document is
// the zero state.
func (s *Store) readState(tx *fs.Transaction, ref *fs.DocumentRef, binID string) (alertState, error) {
	snap, err := tx.Get(ref)
	if isNotFound(err) {
		return alertState{BinID: binID}, nil
	}
	if err != nil {
		return alertState{}, err
	}
	var st alertState
	if err := snap.DataTo(&st); err != nil {
		return alertState{}, err
	}
	return st, nil
}

// Reconcile runs fn in a Firestore transaction that reads and rewrites
// alertState/{binId}. Concurrent writers for the same bin conflict on that
// document and Firestore re-runs the loser with fresh reads.
func (s *Store) Reconcile(ctx context.Context, binID string, fn func(ctx context.Context, tx store.AlertTx) error) error {
	stateRef := s.client.Collection(colAlertState).Doc(binID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		st, err := s.readState(tx, stateRef, binID)
		if err != nil {
			return err
		}
		atx := &alertTx{s: s, tx: tx, open: map[string]bool{}}
		if err := fn(ctx, atx); err != nil {
			return err
		}
		if atx.writes == 0 {
			return nil
		}
		st.Version++
		st.OpenAlertID = atx.openAlertID()
		st.UpdatedAt = nowUnix()
		return tx.Set(stateRef, st)
	})
	return classify("reconcile alerts", err)
}

func (s *Store) Acknowledge(ctx context.Context, alertID, userID string, at int64) (*models.Alert, bool, error) {
	alertRef := s.client.Collection(colAlerts).Doc(alertID)

	// The guard document is keyed by bin, which we only learn from the alert.
	snap, err := alertRef.Get(ctx)
	if isNotFound(err) {
		return nil, false, models.NotFound("alert", alertID)
	}
	if err != nil {
		return nil, false, classify("get alert", err)
	}
	var peek models.Alert
	if err := snap.DataTo(&peek); err != nil {
		return nil, false, fmt.Errorf("decode alert %s: %w", alertID, err)
	}
	stateRef := s.client.Collection(colAlertState).Doc(peek.BinID)

	var (
		result  models.Alert
		changed bool
	)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		result = models.Alert{}
		changed = false
		st, err := s.readState(tx, stateRef, peek.BinID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(alertRef)
		if err != nil {
			return err
		}
		if err := snap.DataTo(&result); err != nil {
			return err
		}
		if result.Ack {
			return nil
		}

		result.Ack = true
		if userID != "" {
			result.AckedBy = &userID
		}
		if err := tx.Update(alertRef, []fs.Update{
			{Path: "ack", Value: true},
			{Path: "acked_by", Value: result.AckedBy},
		}); err != nil {
			return err
		}
		st.Version++
		if st.OpenAlertID == alertID {
			st.OpenAlertID = ""
		}
		st.UpdatedAt = at
		changed = true
		return tx.Set(stateRef, st)
	})
	if err != nil {
		return nil, false, classify("acknowledge alert", err)
	}
	return &result, changed, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	snap, err := s.client.Collection(colAlerts).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, models.NotFound("alert", id)
	}
	if err != nil {
		return nil, classify("get alert", err)
	}
	var a models.Alert
	if err := snap.DataTo(&a); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", id, err)
	}
	return &a, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	q := s.client.Collection(colAlerts).Query
	if filter.BinID != "" {
		q = q.Where("bin_id", "==", filter.BinID)
	}
	if filter.OpenOnly {
		q = q.Where("ack", "==", false)
	}
	if filter.Since > 0 {
		q = q.Where("ts", ">=", filter.Since)
	}
	q = q.OrderBy("ts", fs.Desc)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	alerts, err := collect[models.Alert](q.Documents(ctx))
	if err != nil {
		return nil, classify("list alerts", err)
	}
	sortAlertsNewestFirst(alerts)
	return alerts, nil
}

func (s *Store) CountAlerts(ctx context.Context, binID string, from, to int64) (int, error) {
	q := s.client.Collection(colAlerts).Query
	if binID != "" {
		q = q.Where("bin_id", "==", binID)
	}
	q = q.Where("created_at", ">=", from).Where("created_at", "<", to)

	res, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, classify("count alerts", err)
	}
	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count alerts: unexpected aggregation result %T", res["count"])
	}
	return int(v.GetIntegerValue()), nil
}

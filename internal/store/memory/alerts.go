package memory

import (
	"context"
	"sort"
	"sync"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

func (s *Store) binLock(binID string) *sync.Mutex {
	s.binLocksMu.Lock()
	defer s.binLocksMu.Unlock()
	l, ok := s.binLocks[binID]
	if !ok {
		l = &sync.Mutex{}
		s.binLocks[binID] = l
	}
	return l
}

// memTx stages writes until fn returns.
type memTx struct {
	s      *Store
	staged map[string]models.Alert
	order  []string
}

func (tx *memTx) OpenAlerts(ctx context.Context, binID string) ([]models.Alert, error) {
	tx.s.mu.RLock()
	type entry struct {
		alert models.Alert
		seq   int64
	}
	var entries []entry
	for id, rec := range tx.s.alerts {
		if _, overridden := tx.staged[id]; overridden {
			continue
		}
		if rec.alert.BinID == binID && !rec.alert.Ack {
			entries = append(entries, entry{rec.alert, rec.seq})
		}
	}
	tx.s.mu.RUnlock()

	for i, id := range tx.order {
		a := tx.staged[id]
		if a.BinID == binID && !a.Ack {
			entries = append(entries, entry{a, int64(1<<62) + int64(i)})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].alert.TS != entries[j].alert.TS {
			return entries[i].alert.TS > entries[j].alert.TS
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]models.Alert, len(entries))
	for i, e := range entries {
		out[i] = e.alert
	}
	return out, nil
}

func (tx *memTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	tx.stage(*a)
	return nil
}

func (tx *memTx) UpdateAlert(ctx context.Context, a *models.Alert) error {
	if _, ok := tx.staged[a.ID]; !ok {
		tx.s.mu.RLock()
		_, exists := tx.s.alerts[a.ID]
		tx.s.mu.RUnlock()
		if !exists {
			return models.NotFound("alert", a.ID)
		}
	}
	tx.stage(*a)
	return nil
}

func (tx *memTx) stage(a models.Alert) {
	if _, ok := tx.staged[a.ID]; !ok {
		tx.order = append(tx.order, a.ID)
	}
	tx.staged[a.ID] = a
}

func (s *Store) Reconcile(ctx context.Context, binID string, fn func(ctx context.Context, tx store.AlertTx) error) error {
	l := s.binLock(binID)
	l.Lock()
	defer l.Unlock()

	tx := &memTx{s: s, staged: make(map[string]models.Alert)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.order {
		s.putAlertLocked(tx.staged[id])
	}
	return nil
}

func (s *Store) putAlertLocked(a models.Alert) {
	if rec, ok := s.alerts[a.ID]; ok {
		rec.alert = a
		return
	}
	s.seq++
	s.alerts[a.ID] = &alertRecord{alert: a, seq: s.seq}
}

func (s *Store) Acknowledge(ctx context.Context, alertID, userID string, at int64) (*models.Alert, bool, error) {
	s.mu.RLock()
	rec, ok := s.alerts[alertID]
	var binID string
	if ok {
		binID = rec.alert.BinID
	}
	s.mu.RUnlock()
	if !ok {
		return nil, false, models.NotFound("alert", alertID)
	}

	// Same lock order as Reconcile: bin lock, then the map lock.
	l := s.binLock(binID)
	l.Lock()
	defer l.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.alert.Ack {
		a := rec.alert
		return &a, false, nil
	}
	rec.alert.Ack = true
	if userID != "" {
		uid := userID
		rec.alert.AckedBy = &uid
	}
	a := rec.alert
	return &a, true, nil
}

func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.alerts[id]
	if !ok {
		return nil, models.NotFound("alert", id)
	}
	a := rec.alert
	return &a, nil
}

func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	recs := make([]*alertRecord, 0, len(s.alerts))
	for _, rec := range s.alerts {
		a := rec.alert
		if filter.BinID != "" && a.BinID != filter.BinID {
			continue
		}
		if filter.OpenOnly && a.Ack {
			continue
		}
		if filter.Since > 0 && a.TS < filter.Since {
			continue
		}
		recs = append(recs, &alertRecord{alert: a, seq: rec.seq})
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].alert.TS != recs[j].alert.TS {
			return recs[i].alert.TS > recs[j].alert.TS
		}
		return recs[i].seq > recs[j].seq
	})
	if filter.Limit > 0 && len(recs) > filter.Limit {
		recs = recs[:filter.Limit]
	}
	out := make([]models.Alert, len(recs))
	for i, rec := range recs {
		out[i] = rec.alert
	}
	return out, nil
}

func (s *Store) CountAlerts(ctx context.Context, binID string, from, to int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.alerts {
		a := rec.alert
		if binID != "" && a.BinID != binID {
			continue
		}
		if a.CreatedAt >= from && a.CreatedAt < to {
			n++
		}
	}
	return n, nil
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

func TestReconcile_DiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s := New()

	boom := errors.New("boom")
	err := s.Reconcile(ctx, "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		require.NoError(t, tx.InsertAlert(ctx, &models.Alert{ID: "a1", BinID: "BIN-001", Kind: models.AlertKindWarning, TS: 10}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	alerts, err := s.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestReconcile_StagedWritesVisibleInsideTx(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Reconcile(ctx, "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		require.NoError(t, tx.InsertAlert(ctx, &models.Alert{ID: "a1", BinID: "BIN-001", Kind: models.AlertKindWarning, TS: 10}))
		require.NoError(t, tx.InsertAlert(ctx, &models.Alert{ID: "a2", BinID: "BIN-001", Kind: models.AlertKindFull, TS: 20}))
		open, err := tx.OpenAlerts(ctx, "BIN-001")
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, "a2", open[0].ID)
		return nil
	})
	require.NoError(t, err)

	open, err := s.ListAlerts(ctx, models.AlertFilter{BinID: "BIN-001", OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestUpdateAlert_UnknownID(t *testing.T) {
	s := New()
	err := s.Reconcile(context.Background(), "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		return tx.UpdateAlert(ctx, &models.Alert{ID: "missing", BinID: "BIN-001"})
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Reconcile(ctx, "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		return tx.InsertAlert(ctx, &models.Alert{ID: "a1", BinID: "BIN-001", Kind: models.AlertKindFull, TS: 10})
	}))

	a, changed, err := s.Acknowledge(ctx, "a1", "user-1", 20)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, a.Ack)
	assert.Nil(t, a.ResolvedAt)
	require.NotNil(t, a.AckedBy)
	assert.Equal(t, "user-1", *a.AckedBy)

	_, changed, err = s.Acknowledge(ctx, "a1", "user-2", 30)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = s.Acknowledge(ctx, "nope", "user-1", 30)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReadings(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertReadings(ctx, []models.Reading{
		{ID: "r3", BinID: "BIN-001", WeightKg: 3, TS: 300},
		{ID: "r1", BinID: "BIN-001", WeightKg: 1, TS: 100},
		{ID: "r2", BinID: "BIN-001", WeightKg: 2, TS: 200},
		{ID: "x1", BinID: "BIN-002", WeightKg: 9, TS: 150},
	}))

	window, err := s.ReadingsInWindow(ctx, "BIN-001", 100, 300)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "r1", window[0].ID)
	assert.Equal(t, "r2", window[1].ID)

	latest, err := s.LatestReading(ctx, "BIN-001")
	require.NoError(t, err)
	assert.Equal(t, "r3", latest.ID)

	none, err := s.LatestReading(ctx, "BIN-404")
	require.NoError(t, err)
	assert.Nil(t, none)

	total, err := s.SumWeightSince(ctx, 150)
	require.NoError(t, err)
	assert.InDelta(t, 14.0, total, 1e-9)

	require.NoError(t, s.SetPercentFull(ctx, "r1", 20))
	r, ok := s.GetReading("r1")
	require.True(t, ok)
	require.NotNil(t, r.PercentFull)
	assert.Equal(t, 20, *r.PercentFull)

	assert.ErrorIs(t, s.SetPercentFull(ctx, "nope", 1), models.ErrNotFound)
}

func TestBins(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-002", Active: true, CapacityKg: 10}))
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-001", Active: true, CapacityKg: 5}))
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-003", Active: false}))

	active, err := s.ListActiveBins(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "BIN-001", active[0].ID)

	_, err = s.GetBin(ctx, "BIN-404")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

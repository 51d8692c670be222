package readings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

type capturePublisher struct {
	mu     sync.Mutex
	events []models.ReadingCreated
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, evt models.ReadingCreated) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return c.err
}

type captureListener struct {
	processed []Processed
}

func (c *captureListener) ReadingProcessed(_ context.Context, p Processed) {
	c.processed = append(c.processed, p)
}

func TestPercentFull(t *testing.T) {
	testCases := []struct {
		name     string
		weight   float64
		capacity float64
		want     int
	}{
		{"clamps at 100", 6, 5, 100},
		{"rounds", 4.1, 5, 82},
		{"rounds down", 0.125, 10, 1},
		{"empty", 0, 5, 0},
		{"default capacity", 8, 0, 80},
		{"negative capacity", 9.6, -1, 96},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PercentFull(tc.weight, tc.capacity))
		})
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		req    models.IngestRequest
		reason string
	}{
		{"missing binId", models.IngestRequest{WeightKg: ptr(1.0)}, "Missing required fields: binId, weightKg"},
		{"blank binId", models.IngestRequest{BinID: ptr("  "), WeightKg: ptr(1.0)}, "Missing required fields: binId, weightKg"},
		{"missing weight", models.IngestRequest{BinID: ptr("BIN-001")}, "Missing required fields: binId, weightKg"},
		{"negative weight", models.IngestRequest{BinID: ptr("BIN-001"), WeightKg: ptr(-0.5)}, "weightKg must be a non-negative number"},
		{"bad timestamp", models.IngestRequest{BinID: ptr("BIN-001"), WeightKg: ptr(1.0), Timestamp: ptr("yesterday")}, "timestamp must be an ISO 8601 date"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := Validate(tc.req, now)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Equal(t, tc.reason, err.Error())
		})
	}

	binID, weight, ts, err := Validate(models.IngestRequest{BinID: ptr(" BIN-001 "), WeightKg: ptr(0.0)}, now)
	require.NoError(t, err)
	assert.Equal(t, "BIN-001", binID)
	assert.Equal(t, 0.0, weight)
	assert.Equal(t, now.Unix(), ts)

	_, _, ts, err = Validate(models.IngestRequest{BinID: ptr("BIN-001"), WeightKg: ptr(2.0), Timestamp: ptr("2026-02-28T08:30:00Z")}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC).Unix(), ts)
}

func TestServiceRecord(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	pub := &capturePublisher{}
	svc := NewService(s, pub)

	reading, err := svc.Record(ctx, models.IngestRequest{BinID: ptr("BIN-001"), WeightKg: ptr(2.5)}, models.SourceHTTP)
	require.NoError(t, err)
	assert.NotEmpty(t, reading.ID)
	assert.False(t, reading.Simulated)
	assert.Nil(t, reading.PercentFull)

	stored, ok := s.GetReading(reading.ID)
	require.True(t, ok)
	assert.Equal(t, 2.5, stored.WeightKg)

	require.Len(t, pub.events, 1)
	assert.Equal(t, reading.ID, pub.events[0].ReadingID)
	assert.Equal(t, models.SourceHTTP, pub.events[0].Source)

	_, err = svc.Record(ctx, models.IngestRequest{BinID: ptr("BIN-001")}, models.SourceHTTP)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Len(t, pub.events, 1)
}

func TestServiceRecord_PublishFailureKeepsReading(t *testing.T) {
	s := memory.New()
	svc := NewService(s, &capturePublisher{err: errors.New("broker down")})

	reading, err := svc.Record(context.Background(), models.IngestRequest{BinID: ptr("BIN-002"), WeightKg: ptr(1.0)}, models.SourceSimulator)
	require.NoError(t, err)
	assert.True(t, reading.Simulated)
	_, ok := s.GetReading(reading.ID)
	assert.True(t, ok)
}

func TestProcessor_ScenarioBIN001(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-001", CapacityKg: 5, ThresholdPct: 80, Active: true}))

	manager := alerts.NewManager(s)
	listener := &captureListener{}
	proc := NewProcessor(s, s, manager, listener)
	svc := NewService(s, nil)

	var pcts []int
	var kinds []models.AlertKind
	for _, w := range []float64{1.5, 4.1, 4.8} {
		reading, err := svc.Record(ctx, models.IngestRequest{BinID: ptr("BIN-001"), WeightKg: ptr(w)}, models.SourceHTTP)
		require.NoError(t, err)

		pct, err := proc.Process(ctx, models.ReadingCreated{ReadingID: reading.ID, BinID: "BIN-001", WeightKg: w})
		require.NoError(t, err)
		pcts = append(pcts, pct)

		stored, _ := s.GetReading(reading.ID)
		require.NotNil(t, stored.PercentFull)
		assert.Equal(t, pct, *stored.PercentFull)

		open, err := s.ListAlerts(ctx, models.AlertFilter{BinID: "BIN-001", OpenOnly: true})
		require.NoError(t, err)
		if len(open) == 0 {
			kinds = append(kinds, models.AlertKindNone)
			continue
		}
		require.Len(t, open, 1)
		kinds = append(kinds, open[0].Kind)
	}

	assert.Equal(t, []int{30, 82, 96}, pcts)
	assert.Equal(t, []models.AlertKind{models.AlertKindNone, models.AlertKindWarning, models.AlertKindFull}, kinds)
	assert.Len(t, listener.processed, 3)

	all, err := s.ListAlerts(ctx, models.AlertFilter{BinID: "BIN-001"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestProcessor_OverCapacityClamps(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-001", CapacityKg: 5, Active: true}))
	require.NoError(t, s.InsertReading(ctx, &models.Reading{ID: "r1", BinID: "BIN-001", WeightKg: 6}))

	proc := NewProcessor(s, s, alerts.NewManager(s))
	pct, err := proc.Process(ctx, models.ReadingCreated{ReadingID: "r1", BinID: "BIN-001", WeightKg: 6})
	require.NoError(t, err)
	assert.Equal(t, 100, pct)
}

func TestProcessor_UnknownBinIsSkipped(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.InsertReading(ctx, &models.Reading{ID: "r1", BinID: "BIN-404", WeightKg: 9}))

	proc := NewProcessor(s, s, alerts.NewManager(s))
	require.NoError(t, proc.Handle(ctx, models.ReadingCreated{ReadingID: "r1", BinID: "BIN-404", WeightKg: 9}))

	stored, _ := s.GetReading("r1")
	assert.Nil(t, stored.PercentFull)
	all, err := s.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

type failingReconciler struct{}

func (failingReconciler) Reconcile(context.Context, string, int) (alerts.Outcome, error) {
	return alerts.Outcome{}, models.Transient("reconcile", errors.New("timeout"))
}

func TestProcessor_TransientFailureReturned(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: "BIN-001", CapacityKg: 5, Active: true}))
	require.NoError(t, s.InsertReading(ctx, &models.Reading{ID: "r1", BinID: "BIN-001", WeightKg: 4.5}))

	proc := NewProcessor(s, s, failingReconciler{})
	err := proc.Handle(ctx, models.ReadingCreated{ReadingID: "r1", BinID: "BIN-001", WeightKg: 4.5})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))

	// percent full is already attached; the next reading repairs alert state.
	stored, _ := s.GetReading("r1")
	require.NotNil(t, stored.PercentFull)
	assert.Equal(t, 90, *stored.PercentFull)
}

package simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/config"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/readings"
	"smartbin-backend/internal/store/memory"
)

func newTestSimulator(t *testing.T, s *memory.Store, recorder Recorder, now time.Time) *Simulator {
	t.Helper()
	cfg := config.Default().Simulator
	cfg.Interval = time.Second
	return New(cfg, s, s, recorder,
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithNow(func() time.Time { return now }),
	)
}

func TestEnsureBins(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	sim := newTestSimulator(t, s, readings.NewService(s, nil), time.Now())

	require.NoError(t, sim.EnsureBins(ctx))
	require.NoError(t, sim.EnsureBins(ctx))

	bins, err := s.ListActiveBins(ctx)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, "BIN-001", bins[0].ID)
	assert.Equal(t, "Canteen 1 Main Bin", bins[0].Name)
	assert.Equal(t, 5.0, bins[0].CapacityKg)
	assert.Equal(t, 80.0, bins[0].ThresholdPct)
	assert.Equal(t, 10.0, bins[1].CapacityKg)
}

func TestStep_StaysWithinBounds(t *testing.T) {
	sim := newTestSimulator(t, memory.New(), nil, time.Now())
	b := sim.bins[0]

	for i := 0; i < 500; i++ {
		w := sim.step(b, 12)
		assert.LessOrEqual(t, w, 5*1.2+1e-9)
		assert.GreaterOrEqual(t, w, 0.1-1e-9)
		assert.InDelta(t, math.Round(w*100)/100, w, 1e-9)
	}
}

func TestIsMealTime(t *testing.T) {
	assert.True(t, isMealTime(11))
	assert.True(t, isMealTime(13))
	assert.True(t, isMealTime(19))
	assert.False(t, isMealTime(14))
	assert.False(t, isMealTime(8))
}

func TestTick_DrivesAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	manager := alerts.NewManager(s)
	proc := readings.NewProcessor(s, s, manager)

	svc := readings.NewService(s, publisherFunc(func(ctx context.Context, evt models.ReadingCreated) error {
		return proc.Handle(ctx, evt)
	}))
	sim := newTestSimulator(t, s, svc, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sim.EnsureBins(ctx))

	for i := 0; i < 40; i++ {
		sim.Tick(ctx)
	}

	for _, binID := range []string{"BIN-001", "BIN-002"} {
		rs, err := s.ListReadings(ctx, binID, 0)
		require.NoError(t, err)
		assert.Len(t, rs, 40)
		for _, r := range rs {
			assert.True(t, r.Simulated)
			assert.NotNil(t, r.PercentFull)
		}
		open, err := s.ListAlerts(ctx, models.AlertFilter{BinID: binID, OpenOnly: true})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(open), 1)
	}
}

func TestSeedHistory(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2026, 3, 8, 21, 0, 0, 0, time.UTC)
	sim := newTestSimulator(t, s, nil, now)

	n, err := sim.SeedHistory(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3*7*2)
	assert.LessOrEqual(t, n, 5*7*2)

	rs, err := s.ListReadings(ctx, "BIN-001", 0)
	require.NoError(t, err)
	for _, r := range rs {
		ts := time.Unix(r.TS, 0).UTC()
		assert.True(t, r.Simulated)
		require.NotNil(t, r.PercentFull)
		assert.Equal(t, readings.PercentFull(r.WeightKg, 5), *r.PercentFull)
		assert.GreaterOrEqual(t, ts.Hour(), 8)
		assert.Less(t, ts.Hour(), 20)
		assert.GreaterOrEqual(t, r.WeightKg, 2.0)
		assert.False(t, ts.After(now))
	}

	all, err := s.ListAlerts(ctx, models.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

type publisherFunc func(ctx context.Context, evt models.ReadingCreated) error

func (f publisherFunc) Publish(ctx context.Context, evt models.ReadingCreated) error {
	return f(ctx, evt)
}

package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []Outcome
	err      error
}

func (r *recordingNotifier) NotifyAlert(_ context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return r.err
}

func (r *recordingNotifier) actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.outcomes))
	for i, o := range r.outcomes {
		out[i] = o.Action
	}
	return out
}

func openAlerts(t *testing.T, s store.AlertStore, binID string) []models.Alert {
	t.Helper()
	alerts, err := s.ListAlerts(context.Background(), models.AlertFilter{BinID: binID, OpenOnly: true})
	require.NoError(t, err)
	return alerts
}

func allAlerts(t *testing.T, s store.AlertStore, binID string) []models.Alert {
	t.Helper()
	alerts, err := s.ListAlerts(context.Background(), models.AlertFilter{BinID: binID})
	require.NoError(t, err)
	return alerts
}

func TestPolicyDecide(t *testing.T) {
	p := DefaultPolicy()
	testCases := []struct {
		pct  int
		want models.AlertKind
	}{
		{0, models.AlertKindNone},
		{79, models.AlertKindNone},
		{80, models.AlertKindWarning},
		{94, models.AlertKindWarning},
		{95, models.AlertKindFull},
		{100, models.AlertKindFull},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d%%", tc.pct), func(t *testing.T) {
			assert.Equal(t, tc.want, p.Decide(tc.pct))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Bin BIN-001 is 96% full and needs immediate attention", Message("BIN-001", models.AlertKindFull, 96))
	assert.Equal(t, "Bin BIN-001 is 82% full - approaching capacity", Message("BIN-001", models.AlertKindWarning, 82))
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0, ClampPercent(-5))
	assert.Equal(t, 100, ClampPercent(120))
	assert.Equal(t, 83, ClampPercent(82.5))
}

func TestReconcile_BelowWarningCreatesNothing(t *testing.T) {
	s := memory.New()
	m := NewManager(s)

	for _, pct := range []int{0, 30, 79} {
		out, err := m.Reconcile(context.Background(), "BIN-001", pct)
		require.NoError(t, err)
		assert.Equal(t, ActionNone, out.Action)
	}
	assert.Empty(t, allAlerts(t, s, "BIN-001"))
}

func TestReconcile_TransitionSequence(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := newFakeClock()
	notifier := &recordingNotifier{}
	m := NewManager(s, WithClock(clock), WithNotifier("test", notifier))

	out, err := m.Reconcile(ctx, "BIN-001", 60)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, out.Action)
	assert.Empty(t, allAlerts(t, s, "BIN-001"))

	clock.Advance(time.Minute)
	out, err = m.Reconcile(ctx, "BIN-001", 85)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	open := openAlerts(t, s, "BIN-001")
	require.Len(t, open, 1)
	alertID := open[0].ID
	assert.Equal(t, models.AlertKindWarning, open[0].Kind)
	assert.Equal(t, 85, open[0].PercentFull)
	assert.Equal(t, "Bin BIN-001 is 85% full - approaching capacity", open[0].Message)

	clock.Advance(time.Minute)
	out, err = m.Reconcile(ctx, "BIN-001", 97)
	require.NoError(t, err)
	assert.Equal(t, ActionEscalated, out.Action)
	assert.Equal(t, models.AlertKindWarning, out.PreviousKind)
	open = openAlerts(t, s, "BIN-001")
	require.Len(t, open, 1)
	assert.Equal(t, alertID, open[0].ID)
	assert.Equal(t, models.AlertKindFull, open[0].Kind)
	assert.Equal(t, 97, open[0].PercentFull)
	assert.Equal(t, clock.Now().Unix(), open[0].TS)

	clock.Advance(time.Minute)
	out, err = m.Reconcile(ctx, "BIN-001", 70)
	require.NoError(t, err)
	assert.Equal(t, ActionResolved, out.Action)
	assert.Empty(t, openAlerts(t, s, "BIN-001"))

	all := allAlerts(t, s, "BIN-001")
	require.Len(t, all, 1)
	assert.True(t, all[0].Ack)
	require.NotNil(t, all[0].ResolvedAt)
	assert.Equal(t, clock.Now().Unix(), *all[0].ResolvedAt)

	assert.Equal(t, []Action{ActionCreated, ActionEscalated, ActionResolved}, notifier.actions())
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := newFakeClock()
	m := NewManager(s, WithClock(clock))

	_, err := m.Reconcile(ctx, "BIN-001", 96)
	require.NoError(t, err)
	first := openAlerts(t, s, "BIN-001")
	require.Len(t, first, 1)

	clock.Advance(10 * time.Second)
	out, err := m.Reconcile(ctx, "BIN-001", 96)
	require.NoError(t, err)
	assert.Equal(t, ActionRefreshed, out.Action)

	second := openAlerts(t, s, "BIN-001")
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Kind, second[0].Kind)
	assert.Equal(t, first[0].Message, second[0].Message)
	assert.Equal(t, first[0].CreatedAt, second[0].CreatedAt)
	assert.Greater(t, second[0].TS, first[0].TS)
}

func TestReconcile_Deescalates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := NewManager(s)

	_, err := m.Reconcile(ctx, "BIN-001", 97)
	require.NoError(t, err)
	out, err := m.Reconcile(ctx, "BIN-001", 88)
	require.NoError(t, err)
	assert.Equal(t, ActionDeescalated, out.Action)

	open := openAlerts(t, s, "BIN-001")
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertKindWarning, open[0].Kind)
	assert.Equal(t, "Bin BIN-001 is 88% full - approaching capacity", open[0].Message)
}

func TestReconcile_BinsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := NewManager(s)

	_, err := m.Reconcile(ctx, "BIN-001", 90)
	require.NoError(t, err)
	_, err = m.Reconcile(ctx, "BIN-002", 96)
	require.NoError(t, err)
	_, err = m.Reconcile(ctx, "BIN-001", 10)
	require.NoError(t, err)

	assert.Empty(t, openAlerts(t, s, "BIN-001"))
	assert.Len(t, openAlerts(t, s, "BIN-002"), 1)
}

func TestReconcile_ConcurrentProducersNeverDuplicate(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	// Two managers over one store stand in for the live pipeline and the
	// simulator running in separate processes.
	live := NewManager(s)
	sim := NewManager(s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		pct := 85 + (i%2)*12
		go func() {
			defer wg.Done()
			_, err := live.Reconcile(ctx, "BIN-001", pct)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := sim.Reconcile(ctx, "BIN-001", pct)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, openAlerts(t, s, "BIN-001"), 1)
	assert.Len(t, allAlerts(t, s, "BIN-001"), 1)
	assert.Equal(t, 0, live.locks.size())
}

func TestReconcile_CollapsesDuplicateOpenAlerts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Reconcile(ctx, "BIN-001", func(ctx context.Context, tx store.AlertTx) error {
		if err := tx.InsertAlert(ctx, &models.Alert{ID: "old", BinID: "BIN-001", Kind: models.AlertKindWarning, TS: 100}); err != nil {
			return err
		}
		return tx.InsertAlert(ctx, &models.Alert{ID: "new", BinID: "BIN-001", Kind: models.AlertKindWarning, TS: 200})
	}))

	m := NewManager(s)
	out, err := m.Reconcile(ctx, "BIN-001", 96)
	require.NoError(t, err)
	assert.Equal(t, ActionEscalated, out.Action)
	assert.Equal(t, "new", out.Alert.ID)

	open := openAlerts(t, s, "BIN-001")
	require.Len(t, open, 1)
	assert.Equal(t, "new", open[0].ID)

	old, err := s.GetAlert(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.Ack)
	assert.NotNil(t, old.ResolvedAt)
}

type failingAlertStore struct {
	*memory.Store
	err error
}

func (f *failingAlertStore) Reconcile(ctx context.Context, binID string, fn func(context.Context, store.AlertTx) error) error {
	return f.err
}

func TestReconcile_StoreFailurePropagates(t *testing.T) {
	notifier := &recordingNotifier{}
	s := &failingAlertStore{Store: memory.New(), err: models.Transient("open alerts", errors.New("connection refused"))}
	m := NewManager(s, WithNotifier("test", notifier))

	_, err := m.Reconcile(context.Background(), "BIN-001", 96)
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err))
	assert.Empty(t, notifier.actions())
}

func TestReconcile_NotifierFailureDoesNotFail(t *testing.T) {
	s := memory.New()
	m := NewManager(s, WithNotifier("broken", &recordingNotifier{err: errors.New("offline")}))

	out, err := m.Reconcile(context.Background(), "BIN-001", 85)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Len(t, openAlerts(t, s, "BIN-001"), 1)
}

func TestReconcile_RequiresBinID(t *testing.T) {
	_, err := NewManager(memory.New()).Reconcile(context.Background(), " ", 90)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestReconcile_CustomPolicy(t *testing.T) {
	s := memory.New()
	m := NewManager(s, WithPolicy(Policy{WarningPct: 50, FullPct: 75}))

	out, err := m.Reconcile(context.Background(), "BIN-001", 60)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, models.AlertKindWarning, out.Alert.Kind)
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	notifier := &recordingNotifier{}
	m := NewManager(s, WithNotifier("test", notifier))

	out, err := m.Reconcile(ctx, "BIN-001", 96)
	require.NoError(t, err)

	acked, err := m.Acknowledge(ctx, out.Alert.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, acked.Ack)
	assert.Nil(t, acked.ResolvedAt)
	require.NotNil(t, acked.AckedBy)
	assert.Equal(t, "user-1", *acked.AckedBy)
	assert.Empty(t, openAlerts(t, s, "BIN-001"))

	again, err := m.Acknowledge(ctx, out.Alert.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "user-1", *again.AckedBy)
	assert.Equal(t, []Action{ActionCreated, ActionAcknowledged}, notifier.actions())

	// A bin still over threshold gets a fresh alert after acknowledgement.
	out, err = m.Reconcile(ctx, "BIN-001", 97)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Len(t, allAlerts(t, s, "BIN-001"), 2)
}

func TestAcknowledge_UnknownAlert(t *testing.T) {
	_, err := NewManager(memory.New()).Acknowledge(context.Background(), "missing", "user-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

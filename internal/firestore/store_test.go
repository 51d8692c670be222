package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/models"
)

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify("op", status.Error(codes.NotFound, "gone")), models.ErrNotFound)
	assert.True(t, models.IsRetryable(classify("op", status.Error(codes.Unavailable, "down"))))
	assert.True(t, models.IsRetryable(classify("op", status.Error(codes.Aborted, "contention"))))
	assert.False(t, models.IsRetryable(classify("op", status.Error(codes.InvalidArgument, "bad"))))

	verr := &models.ValidationError{Field: "email", Reason: "email already registered"}
	assert.Same(t, verr, classify("op", verr))
	assert.Nil(t, classify("op", nil))
}

func TestSortAlertsNewestFirst(t *testing.T) {
	list := []models.Alert{
		{ID: "old", TS: 100, CreatedAt: 100},
		{ID: "new", TS: 300, CreatedAt: 200},
		{ID: "tie", TS: 300, CreatedAt: 250},
	}
	sortAlertsNewestFirst(list)
	assert.Equal(t, []string{"tie", "new", "old"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestAlertTx_TracksOpenAlert(t *testing.T) {
	atx := &alertTx{open: map[string]bool{"a1": true, "a2": false}}
	assert.Equal(t, "a1", atx.openAlertID())

	atx.open["a1"] = false
	assert.Equal(t, "", atx.openAlertID())
}

func TestAlertUpdates(t *testing.T) {
	now := int64(500)
	a := &models.Alert{Kind: models.AlertKindFull, PercentFull: 97, TS: now, Ack: true, ResolvedAt: &now}
	paths := map[string]interface{}{}
	for _, u := range alertUpdates(a) {
		paths[u.Path] = u.Value
	}
	assert.Equal(t, models.AlertKindFull, paths["kind"])
	assert.Equal(t, true, paths["ack"])
	assert.Equal(t, &now, paths["resolved_at"])
	assert.NotContains(t, paths, "bin_id")
}

// The tests below run against the Firestore emulator when
// FIRESTORE_EMULATOR_HOST is set.
func newEmulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := fs.NewClient(context.Background(), "smartbin-test")
	require.NoError(t, err)
	s := New(client)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEmulator_ReconcileConcurrentWriters(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	binID := "BIN-" + uuid.New().String()[:8]
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: binID, CapacityKg: 5, ThresholdPct: 80, Active: true}))

	// Two managers share nothing in-process, so only the guard document
	// keeps them apart.
	m1 := alerts.NewManager(s)
	m2 := alerts.NewManager(s)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m1.Reconcile(ctx, binID, 85)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := m2.Reconcile(ctx, binID, 97)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	open, err := s.ListAlerts(ctx, models.AlertFilter{BinID: binID, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestEmulator_AcknowledgeAndCount(t *testing.T) {
	s := newEmulatorStore(t)
	ctx := context.Background()
	binID := "BIN-" + uuid.New().String()[:8]
	require.NoError(t, s.UpsertBin(ctx, &models.Bin{ID: binID, CapacityKg: 5, ThresholdPct: 80, Active: true}))

	m := alerts.NewManager(s)
	out, err := m.Reconcile(ctx, binID, 90)
	require.NoError(t, err)
	require.NotNil(t, out.Alert)

	acked, err := m.Acknowledge(ctx, out.Alert.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, acked.Ack)
	assert.Nil(t, acked.ResolvedAt)

	_, err = m.Acknowledge(ctx, "missing-"+binID, "user-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	now := time.Now().Unix()
	count, err := s.CountAlerts(ctx, binID, now-60, now+60)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmulator_SetPercentFullUnknownReading(t *testing.T) {
	s := newEmulatorStore(t)
	err := s.SetPercentFull(context.Background(), fmt.Sprintf("missing-%d", time.Now().UnixNano()), 50)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/internal/store/memory"
)

type countingBins struct {
	store.BinRegistry
	gets int
}

func (c *countingBins) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	c.gets++
	return c.BinRegistry.GetBin(ctx, id)
}

func TestCachedBins(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	require.NoError(t, mem.UpsertBin(ctx, &models.Bin{ID: "BIN-001", CapacityKg: 5, Active: true}))

	counter := &countingBins{BinRegistry: mem}
	cached := store.NewCachedBins(counter, time.Minute)

	for i := 0; i < 3; i++ {
		bin, err := cached.GetBin(ctx, "BIN-001")
		require.NoError(t, err)
		assert.Equal(t, 5.0, bin.CapacityKg)
	}
	assert.Equal(t, 1, counter.gets)

	require.NoError(t, cached.UpsertBin(ctx, &models.Bin{ID: "BIN-001", CapacityKg: 8, Active: true}))
	bin, err := cached.GetBin(ctx, "BIN-001")
	require.NoError(t, err)
	assert.Equal(t, 8.0, bin.CapacityKg)
	assert.Equal(t, 2, counter.gets)

	_, err = cached.GetBin(ctx, "BIN-404")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNewCachedBins_ZeroTTLDisablesCache(t *testing.T) {
	mem := memory.New()
	assert.Same(t, store.BinRegistry(mem), store.NewCachedBins(mem, 0))
}

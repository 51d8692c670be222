package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"smartbin-backend/internal/models"
)

// CachedBins caches GetBin lookups in front of a BinRegistry. The reading
// processor hits GetBin once per reading; bin configuration changes rarely.
type CachedBins struct {
	BinRegistry
	cache *cache.Cache
}

// NewCachedBins wraps next. A ttl of zero disables caching.
func NewCachedBins(next BinRegistry, ttl time.Duration) BinRegistry {
	if ttl <= 0 {
		return next
	}
	return &CachedBins{
		BinRegistry: next,
		cache:       cache.New(ttl, 2*ttl),
	}
}

func (c *CachedBins) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	if cached, found := c.cache.Get(id); found {
		bin := cached.(models.Bin)
		return &bin, nil
	}

	bin, err := c.BinRegistry.GetBin(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(id, *bin, cache.DefaultExpiration)
	return bin, nil
}

func (c *CachedBins) UpsertBin(ctx context.Context, bin *models.Bin) error {
	if err := c.BinRegistry.UpsertBin(ctx, bin); err != nil {
		return err
	}
	c.cache.Delete(bin.ID)
	return nil
}

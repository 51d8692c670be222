package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/middleware"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/readings"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

// FullBinPct is the fill level at which the dashboard counts a bin as full.
const FullBinPct = 90

// Dashboard answers the dashboard stats query.
type Dashboard struct {
	users    store.UserStore
	bins     store.BinRegistry
	readings store.ReadingStore
	alerts   store.AlertStore
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

func NewDashboard(users store.UserStore, bins store.BinRegistry, readingStore store.ReadingStore, alerts store.AlertStore, loc *time.Location) *Dashboard {
	if loc == nil {
		loc = time.UTC
	}
	return &Dashboard{
		users:    users,
		bins:     bins,
		readings: readingStore,
		alerts:   alerts,
		loc:      loc,
		now:      time.Now,
		log:      logger.WithComponent("dashboard"),
	}
}

// Stats aggregates the current day for userID. The caller must exist.
func (d *Dashboard) Stats(ctx context.Context, userID string) (models.DashboardStats, error) {
	if userID == "" {
		return models.DashboardStats{}, models.ErrUnauthenticated
	}
	if _, err := d.users.GetUserByID(ctx, userID); err != nil {
		return models.DashboardStats{}, err
	}

	now := d.now().In(d.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc).Unix()

	var stats models.DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := d.readings.SumWeightSince(gctx, midnight)
		stats.TodayTotal = total
		return err
	})
	g.Go(func() error {
		count, err := d.alerts.CountAlerts(gctx, "", midnight, now.Unix()+1)
		stats.RecentAlerts = count
		return err
	})
	g.Go(func() error {
		active, full, err := d.binCounts(gctx)
		stats.ActiveBins, stats.FullBins = active, full
		return err
	})
	if err := g.Wait(); err != nil {
		return models.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

func (d *Dashboard) binCounts(ctx context.Context) (active, full int, err error) {
	bins, err := d.bins.ListActiveBins(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, bin := range bins {
		latest, err := d.readings.LatestReading(ctx, bin.ID)
		if err != nil {
			return 0, 0, err
		}
		if latest == nil {
			continue
		}
		pct := readings.PercentFull(latest.WeightKg, bin.EffectiveCapacity())
		if latest.PercentFull != nil {
			pct = *latest.PercentFull
		}
		if pct >= FullBinPct {
			full++
		}
	}
	return len(bins), full, nil
}

// Handle serves GET /api/dashboard/stats.
func (d *Dashboard) Handle(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r)
	stats, err := d.Stats(r.Context(), user.UserID)
	if err != nil {
		d.log.Warn().Err(err).Str("user_id", user.UserID).Msg("Dashboard stats failed")
		utils.ErrorFrom(w, err)
		return
	}
	utils.Success(w, stats)
}

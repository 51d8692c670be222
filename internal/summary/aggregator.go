// Package summary builds the weekly per-bin reports.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// collectionDropRatio marks a reading below half the previous one as an
// emptying of the bin. Sensor noise causing a large single-step drop is
// counted as a collection, and a partial emptying to more than half is missed.
const collectionDropRatio = 0.5

const unknownLocation = "Unknown"

// Aggregator computes summaries for every active bin.
type Aggregator struct {
	bins      store.BinRegistry
	readings  store.ReadingStore
	alerts    store.AlertStore
	summaries store.SummaryStore
	now       func() time.Time
	log       zerolog.Logger
}

func NewAggregator(bins store.BinRegistry, readings store.ReadingStore, alerts store.AlertStore, summaries store.SummaryStore) *Aggregator {
	return &Aggregator{
		bins:      bins,
		readings:  readings,
		alerts:    alerts,
		summaries: summaries,
		now:       time.Now,
		log:       logger.WithComponent("summary"),
	}
}

// Summarize computes one summary per active bin for [weekStart, weekEnd)
// and saves them as one batch. Nothing is saved if any bin fails.
func (a *Aggregator) Summarize(ctx context.Context, weekStart, weekEnd time.Time) ([]models.Summary, error) {
	if !weekEnd.After(weekStart) {
		return nil, &models.ValidationError{Field: "weekEnd", Reason: "weekEnd must be after weekStart"}
	}
	from, to := weekStart.Unix(), weekEnd.Unix()

	bins, err := a.bins.ListActiveBins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active bins: %w", err)
	}

	createdAt := a.now().Unix()
	summaries := make([]models.Summary, 0, len(bins))
	for _, bin := range bins {
		readings, err := a.readings.ReadingsInWindow(ctx, bin.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("readings for bin %s: %w", bin.ID, err)
		}
		alertCount, err := a.alerts.CountAlerts(ctx, bin.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("alerts for bin %s: %w", bin.ID, err)
		}

		s := Compute(bin, readings, alertCount, from, to)
		s.ID = uuid.New().String()
		s.CreatedAt = createdAt
		summaries = append(summaries, s)
	}

	if len(summaries) > 0 {
		if err := a.summaries.SaveSummaries(ctx, summaries); err != nil {
			return nil, fmt.Errorf("save summaries: %w", err)
		}
	}

	a.log.Info().
		Int("bins", len(summaries)).
		Time("week_start", weekStart).
		Time("week_end", weekEnd).
		Msg("Weekly summaries saved")
	return summaries, nil
}

// Compute aggregates readings, which must be sorted by ts.
func Compute(bin models.Bin, readings []models.Reading, alertCount int, from, to int64) models.Summary {
	location := bin.Location
	if location == "" {
		location = unknownLocation
	}
	s := models.Summary{
		BinID:           bin.ID,
		BinLocation:     location,
		WeekStart:       from,
		WeekEnd:         to,
		ReadingCount:    len(readings),
		CollectionCount: CountCollections(readings),
		AlertCount:      alertCount,
	}
	for _, r := range readings {
		s.TotalWeight += r.WeightKg
		if r.WeightKg > s.MaxWeight {
			s.MaxWeight = r.WeightKg
		}
	}
	if s.ReadingCount > 0 {
		s.AvgWeight = s.TotalWeight / float64(s.ReadingCount)
	}
	return s
}

// CountCollections counts consecutive readings whose weight falls below
// half of the previous one.
func CountCollections(readings []models.Reading) int {
	count := 0
	var last float64
	for _, r := range readings {
		if last > 0 && r.WeightKg < last*collectionDropRatio {
			count++
		}
		last = r.WeightKg
	}
	return count
}

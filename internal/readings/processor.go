package readings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// Reconciler is the part of the alert manager the processor drives.
type Reconciler interface {
	Reconcile(ctx context.Context, binID string, percentFull int) (alerts.Outcome, error)
}

// Processed describes a reading after percent full has been attached.
type Processed struct {
	ReadingID   string  `json:"readingId"`
	BinID       string  `json:"binId"`
	WeightKg    float64 `json:"weightKg"`
	PercentFull int     `json:"percentFull"`
	TS          int64   `json:"ts"`
}

// Listener is told about processed readings, e.g. to push them to
// dashboards.
type Listener interface {
	ReadingProcessed(ctx context.Context, p Processed)
}

// Processor handles reading-created events.
type Processor struct {
	bins      store.BinRegistry
	readings  store.ReadingStore
	alerts    Reconciler
	listeners []Listener
	log       zerolog.Logger
}

func NewProcessor(bins store.BinRegistry, readings store.ReadingStore, reconciler Reconciler, listeners ...Listener) *Processor {
	return &Processor{
		bins:      bins,
		readings:  readings,
		alerts:    reconciler,
		listeners: listeners,
		log:       logger.WithComponent("processor"),
	}
}

// Process computes percent full for the reading, stores it on the
// reading and then reconciles the bin's alert. The two writes are not
// atomic; a failure in between is repaired by the next reading.
func (p *Processor) Process(ctx context.Context, evt models.ReadingCreated) (int, error) {
	bin, err := p.bins.GetBin(ctx, evt.BinID)
	if err != nil {
		return 0, err
	}

	pct := PercentFull(evt.WeightKg, bin.CapacityKg)
	if err := p.readings.SetPercentFull(ctx, evt.ReadingID, pct); err != nil {
		return 0, fmt.Errorf("set percent full on reading %s: %w", evt.ReadingID, err)
	}

	if _, err := p.alerts.Reconcile(ctx, bin.ID, pct); err != nil {
		return pct, err
	}

	processed := Processed{
		ReadingID:   evt.ReadingID,
		BinID:       bin.ID,
		WeightKg:    evt.WeightKg,
		PercentFull: pct,
		TS:          evt.TS,
	}
	for _, l := range p.listeners {
		l.ReadingProcessed(ctx, processed)
	}
	return pct, nil
}

// Handle is the trigger entry point. Unknown bins are skipped with a
// warning; other failures are returned so the trigger can retry them.
func (p *Processor) Handle(ctx context.Context, evt models.ReadingCreated) error {
	pct, err := p.Process(ctx, evt)
	switch {
	case err == nil:
		metrics.ReadingsProcessed.WithLabelValues("processed").Inc()
		p.log.Debug().
			Str("reading_id", evt.ReadingID).
			Str("bin_id", evt.BinID).
			Int("percent_full", pct).
			Msg("Reading processed")
		return nil
	case errors.Is(err, models.ErrNotFound):
		metrics.ReadingsProcessed.WithLabelValues("skipped").Inc()
		p.log.Warn().
			Err(err).
			Str("reading_id", evt.ReadingID).
			Str("bin_id", evt.BinID).
			Msg("Skipping reading")
		return nil
	default:
		metrics.ReadingsProcessed.WithLabelValues("failed").Inc()
		return err
	}
}

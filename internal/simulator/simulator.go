// Package simulator produces synthetic bin readings through the same
// ingestion path as real sensors.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/readings"
	"smartbin-backend/internal/store"
)

const (
	accumulationRate      = 0.5  // kg per tick outside meal times
	collectionProbability = 0.08 // per tick
	collectionMinWeight   = 2.0
	overflowFactor        = 1.2
	historyDays           = 7
	historyBatchSize      = 100
)

// Recorder stores a reading and fires the reading-created trigger.
type Recorder interface {
	Record(ctx context.Context, req models.IngestRequest, source string) (*models.Reading, error)
}

type binState struct {
	id         string
	location   string
	capacityKg float64
	weight     float64
}

// Simulator holds only the current simulated weight per bin.
type Simulator struct {
	bins     []*binState
	registry store.BinRegistry
	readings store.ReadingStore
	recorder Recorder
	interval time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
	log zerolog.Logger
}

// Option customizes the simulator.
type Option func(*Simulator)

// WithRand makes the simulation deterministic.
func WithRand(r *rand.Rand) Option {
	return func(s *Simulator) {
		s.rng = r
	}
}

// WithNow overrides the wall clock used for meal times and history.
func WithNow(now func() time.Time) Option {
	return func(s *Simulator) {
		s.now = now
	}
}

func New(cfg config.SimulatorConfig, registry store.BinRegistry, readingStore store.ReadingStore, recorder Recorder, opts ...Option) *Simulator {
	bins := make([]*binState, 0, len(cfg.Bins))
	for _, b := range cfg.Bins {
		capacity := b.CapacityKg
		if capacity <= 0 {
			capacity = models.DefaultCapacityKg
		}
		bins = append(bins, &binState{id: b.ID, location: b.Location, capacityKg: capacity, weight: b.InitialWeight})
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := &Simulator{
		bins:     bins,
		registry: registry,
		readings: readingStore,
		recorder: recorder,
		interval: interval,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:      time.Now,
		log:      logger.WithComponent("simulator"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureBins registers any simulated bin missing from the registry.
func (s *Simulator) EnsureBins(ctx context.Context) error {
	for _, b := range s.bins {
		_, err := s.registry.GetBin(ctx, b.id)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		now := s.now().Unix()
		bin := &models.Bin{
			ID:           b.id,
			Name:         b.location + " Main Bin",
			Location:     b.location,
			CapacityKg:   b.capacityKg,
			ThresholdPct: models.DefaultThresholdPct,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.registry.UpsertBin(ctx, bin); err != nil {
			return fmt.Errorf("create bin %s: %w", b.id, err)
		}
		s.log.Info().Str("bin_id", b.id).Msg("✅ Created simulated bin")
	}
	return nil
}

// SeedHistory writes 3-5 readings per bin per day for the last week.
// Percent full is precomputed and no alerts are reconciled.
func (s *Simulator) SeedHistory(ctx context.Context) (int, error) {
	now := s.now()
	var batch []models.Reading

	s.mu.Lock()
	for day := historyDays - 1; day >= 0; day-- {
		date := now.AddDate(0, 0, -day)
		for _, b := range s.bins {
			perDay := 3 + s.rng.IntN(3)
			for i := 0; i < perDay; i++ {
				ts := time.Date(date.Year(), date.Month(), date.Day(), 8+s.rng.IntN(12), s.rng.IntN(60), 0, 0, date.Location())

				base := 3.0
				if b.id == "BIN-001" {
					base = 2.0
				}
				weight := round2(math.Max(0.1, base+s.rng.Float64()*4))
				pct := readings.PercentFull(weight, b.capacityKg)

				batch = append(batch, models.Reading{
					ID:          uuid.New().String(),
					BinID:       b.id,
					WeightKg:    weight,
					PercentFull: &pct,
					TS:          ts.Unix(),
					Simulated:   true,
					CreatedAt:   now.Unix(),
				})
			}
		}
	}
	s.mu.Unlock()

	for i := 0; i < len(batch); i += historyBatchSize {
		end := min(i+historyBatchSize, len(batch))
		if err := s.readings.InsertReadings(ctx, batch[i:end]); err != nil {
			return i, fmt.Errorf("insert historical readings: %w", err)
		}
		s.log.Info().Int("count", end-i).Msg("📊 Added historical readings")
	}
	return len(batch), nil
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	s.log.Info().
		Int("bins", len(s.bins)).
		Dur("interval", s.interval).
		Msg("🎲 Simulator started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Simulator stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances every bin once and submits the new weights.
func (s *Simulator) Tick(ctx context.Context) {
	hour := s.now().Hour()
	for _, b := range s.bins {
		weight := s.step(b, hour)
		weightKg := weight
		binID := b.id
		reading, err := s.recorder.Record(ctx, models.IngestRequest{BinID: &binID, WeightKg: &weightKg}, models.SourceSimulator)
		if err != nil {
			s.log.Error().Err(err).Str("bin_id", b.id).Msg("Failed to send simulated reading")
			continue
		}

		pct := readings.PercentFull(weight, b.capacityKg)
		s.log.Debug().
			Str("status", status(pct)).
			Str("bin_id", b.id).
			Str("reading_id", reading.ID).
			Float64("weight_kg", weight).
			Int("percent_full", pct).
			Msg("Simulated reading")
	}
}

// step applies one interval of accumulation and maybe a collection.
func (s *Simulator) step(b *binState, hour int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := accumulationRate
	if isMealTime(hour) {
		rate *= 2
	}
	b.weight += rate * (0.5 + s.rng.Float64())

	if s.rng.Float64() < collectionProbability && b.weight > collectionMinWeight {
		residual := 0.1 + s.rng.Float64()*0.3
		s.log.Info().
			Str("bin_id", b.id).
			Float64("from_kg", round2(b.weight)).
			Float64("to_kg", round2(residual)).
			Msg("🗑️ Collection simulated")
		b.weight = residual
	}

	b.weight = math.Min(b.weight, b.capacityKg*overflowFactor)
	return round2(b.weight)
}

func isMealTime(hour int) bool {
	return (hour >= 11 && hour <= 13) || (hour >= 17 && hour <= 19)
}

func status(pct int) string {
	switch {
	case pct >= 90:
		return "🔴"
	case pct >= 80:
		return "🟡"
	default:
		return "🟢"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package readings handles weight readings from ingestion through to alert
// reconciliation.
package readings

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

const (
	msgMissingFields = "Missing required fields: binId, weightKg"
	msgBadWeight     = "weightKg must be a non-negative number"
	msgBadTimestamp  = "timestamp must be an ISO 8601 date"
)

// Publisher fires the reading-created trigger.
type Publisher interface {
	Publish(ctx context.Context, evt models.ReadingCreated) error
}

// Service validates and stores new readings, then fires the trigger.
type Service struct {
	readings  store.ReadingStore
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(readings store.ReadingStore, publisher Publisher) *Service {
	return &Service{
		readings:  readings,
		publisher: publisher,
		now:       time.Now,
		log:       logger.WithComponent("readings"),
	}
}

// Validate checks an ingestion request and returns the normalized bin id,
// weight and timestamp.
func Validate(req models.IngestRequest, now time.Time) (string, float64, int64, error) {
	if req.BinID == nil || strings.TrimSpace(*req.BinID) == "" || req.WeightKg == nil {
		field := "weightKg"
		if req.BinID == nil || strings.TrimSpace(*req.BinID) == "" {
			field = "binId"
		}
		return "", 0, 0, &models.ValidationError{Field: field, Reason: msgMissingFields}
	}
	weight := *req.WeightKg
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return "", 0, 0, &models.ValidationError{Field: "weightKg", Reason: msgBadWeight}
	}

	ts := now.Unix()
	if req.Timestamp != nil && strings.TrimSpace(*req.Timestamp) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Timestamp))
		if err != nil {
			return "", 0, 0, &models.ValidationError{Field: "timestamp", Reason: msgBadTimestamp}
		}
		ts = parsed.Unix()
	}
	return strings.TrimSpace(*req.BinID), weight, ts, nil
}

// Record validates req, appends the reading and fires reading-created.
// A trigger failure is logged but does not fail the call since the
// reading is already stored.
func (s *Service) Record(ctx context.Context, req models.IngestRequest, source string) (*models.Reading, error) {
	binID, weight, ts, err := Validate(req, s.now())
	if err != nil {
		metrics.ReadingsIngested.WithLabelValues(source, "rejected").Inc()
		return nil, err
	}

	reading := &models.Reading{
		ID:        uuid.New().String(),
		BinID:     binID,
		WeightKg:  weight,
		TS:        ts,
		Simulated: source == models.SourceSimulator,
		CreatedAt: s.now().Unix(),
	}
	if err := s.readings.InsertReading(ctx, reading); err != nil {
		metrics.ReadingsIngested.WithLabelValues(source, "failed").Inc()
		return nil, err
	}
	metrics.ReadingsIngested.WithLabelValues(source, "accepted").Inc()

	s.log.Debug().
		Str("reading_id", reading.ID).
		Str("bin_id", binID).
		Float64("weight_kg", weight).
		Str("source", source).
		Msg("Reading recorded")

	if s.publisher != nil {
		evt := models.ReadingCreated{
			ReadingID: reading.ID,
			BinID:     binID,
			WeightKg:  weight,
			TS:        ts,
			Source:    source,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.log.Error().
				Err(err).
				Str("reading_id", reading.ID).
				Str("bin_id", binID).
				Msg("Failed to publish reading-created event")
		}
	}
	return reading, nil
}

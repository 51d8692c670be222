package firestore

import (
	"context"
	"sort"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartbin-backend/internal/models"
)

func (s *Store) InsertReading(ctx context.Context, r *models.Reading) error {
	_, err := s.client.Collection(colReadings).Doc(r.ID).Create(ctx, r)
	if status.Code(err) == codes.AlreadyExists {
		// redelivered event
		return nil
	}
	return classify("insert reading", err)
}

// InsertReadings writes in batches of at most 500. Each batch is atomic;
// documents are keyed by id so a retried batch overwrites itself.
func (s *Store) InsertReadings(ctx context.Context, rs []models.Reading) error {
	col := s.client.Collection(colReadings)
	for start := 0; start < len(rs); start += maxWrites {
		end := min(start+maxWrites, len(rs))
		err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
			for i := start; i < end; i++ {
				if err := tx.Set(col.Doc(rs[i].ID), &rs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return classify("insert readings", err)
		}
	}
	return nil
}

func (s *Store) SetPercentFull(ctx context.Context, readingID string, percentFull int) error {
	_, err := s.client.Collection(colReadings).Doc(readingID).Update(ctx, []fs.Update{
		{Path: "percent_full", Value: percentFull},
	})
	if isNotFound(err) {
		return models.NotFound("reading", readingID)
	}
	return classify("set percent full", err)
}

// ReadingsInWindow needs the composite index (bin_id ASC, ts ASC).
func (s *Store) ReadingsInWindow(ctx context.Context, binID string, from, to int64) ([]models.Reading, error) {
	q := s.client.Collection(colReadings).
		Where("bin_id", "==", binID).
		Where("ts", ">=", from).
		Where("ts", "<", to).
		OrderBy("ts", fs.Asc)
	readings, err := collect[models.Reading](q.Documents(ctx))
	if err != nil {
		return nil, classify("readings in window", err)
	}
	return readings, nil
}

func (s *Store) ListReadings(ctx context.Context, binID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := s.client.Collection(colReadings).
		Where("bin_id", "==", binID).
		OrderBy("ts", fs.Desc).
		Limit(limit)
	readings, err := collect[models.Reading](q.Documents(ctx))
	if err != nil {
		return nil, classify("list readings", err)
	}
	return readings, nil
}

func (s *Store) LatestReading(ctx context.Context, binID string) (*models.Reading, error) {
	readings, err := s.ListReadings(ctx, binID, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

func (s *Store) SumWeightSince(ctx context.Context, since int64) (float64, error) {
	q := s.client.Collection(colReadings).Where("ts", ">=", since).Select("weight_kg")
	readings, err := collect[models.Reading](q.Documents(ctx))
	if err != nil {
		return 0, classify("sum weight", err)
	}
	var total float64
	for _, r := range readings {
		total += r.WeightKg
	}
	return total, nil
}

func sortAlertsNewestFirst(alerts []models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].TS != alerts[j].TS {
			return alerts[i].TS > alerts[j].TS
		}
		return alerts[i].CreatedAt > alerts[j].CreatedAt
	})
}

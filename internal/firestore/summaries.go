package firestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	fs "cloud.google.com/go/firestore"

	"smartbin-backend/internal/models"
)

var nowUnix = func() int64 { return time.Now().Unix() }

// SaveSummaries writes the run in a single transaction.
func (s *Store) SaveSummaries(ctx context.Context, summaries []models.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	if len(summaries) > maxWrites {
		return fmt.Errorf("save summaries: %d summaries exceed the %d write limit", len(summaries), maxWrites)
	}
	col := s.client.Collection(colSummaries)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		for i := range summaries {
			if err := tx.Set(col.Doc(summaries[i].ID), &summaries[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return classify("save summaries", err)
}

func (s *Store) ListSummaries(ctx context.Context, binID string, limit int) ([]models.Summary, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.client.Collection(colSummaries).Query
	if binID != "" {
		q = q.Where("bin_id", "==", binID)
	}
	q = q.OrderBy("week_start", fs.Desc).Limit(limit)
	summaries, err := collect[models.Summary](q.Documents(ctx))
	if err != nil {
		return nil, classify("list summaries", err)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].WeekStart > summaries[j].WeekStart
	})
	return summaries, nil
}

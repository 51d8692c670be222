package database

import (
	"context"

	"smartbin-backend/internal/models"
)

const summaryColumns = `id, bin_id, bin_location, week_start, week_end, total_weight, avg_weight, max_weight, reading_count, collection_count, alert_count, created_at`

// SaveSummaries writes every summary in one transaction.
func (s *Store) SaveSummaries(ctx context.Context, summaries []models.Summary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin save summaries", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO summaries (` + summaryColumns + `)
		VALUES (:id, :bin_id, :bin_location, :week_start, :week_end, :total_weight, :avg_weight, :max_weight, :reading_count, :collection_count, :alert_count, :created_at)
	`
	for i := range summaries {
		if _, err := tx.NamedExecContext(ctx, query, &summaries[i]); err != nil {
			return classify("insert summary", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("commit summaries", err)
	}
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, binID string, limit int) ([]models.Summary, error) {
	if limit <= 0 {
		limit = 100
	}
	summaries := []models.Summary{}
	var err error
	if binID == "" {
		err = s.db.SelectContext(ctx, &summaries,
			`SELECT `+summaryColumns+` FROM summaries ORDER BY week_start DESC, bin_id LIMIT $1`, limit)
	} else {
		err = s.db.SelectContext(ctx, &summaries,
			`SELECT `+summaryColumns+` FROM summaries WHERE bin_id = $1 ORDER BY week_start DESC LIMIT $2`, binID, limit)
	}
	if err != nil {
		return nil, classify("list summaries", err)
	}
	return summaries, nil
}

package database

import (
	"context"
	"fmt"

	"smartbin-backend/internal/models"
)

const readingColumns = `id, bin_id, weight_kg, percent_full, ts, simulated, created_at`

const insertReadingQuery = `
	INSERT INTO readings (id, bin_id, weight_kg, percent_full, ts, simulated, created_at)
	VALUES (:id, :bin_id, :weight_kg, :percent_full, :ts, :simulated, :created_at)
	ON CONFLICT (id) DO NOTHING
`

func (s *Store) InsertReading(ctx context.Context, r *models.Reading) error {
	if _, err := s.db.NamedExecContext(ctx, insertReadingQuery, r); err != nil {
		return classify("insert reading", err)
	}
	return nil
}

// InsertReadings writes the batch in one transaction.
func (s *Store) InsertReadings(ctx context.Context, rs []models.Reading) error {
	if len(rs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin insert readings", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertReadingQuery)
	if err != nil {
		return classify("prepare insert readings", err)
	}
	defer stmt.Close()

	for i := range rs {
		if _, err := stmt.ExecContext(ctx, &rs[i]); err != nil {
			return classify(fmt.Sprintf("insert reading %s", rs[i].ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify("commit insert readings", err)
	}
	return nil
}

func (s *Store) SetPercentFull(ctx context.Context, readingID string, percentFull int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE readings SET percent_full = $1 WHERE id = $2`, percentFull, readingID)
	if err != nil {
		return classify("set percent full", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NotFound("reading", readingID)
	}
	return nil
}

func (s *Store) ReadingsInWindow(ctx context.Context, binID string, from, to int64) ([]models.Reading, error) {
	readings := []models.Reading{}
	query := `SELECT ` + readingColumns + ` FROM readings
	          WHERE bin_id = $1 AND ts >= $2 AND ts < $3
	          ORDER BY ts ASC, created_at ASC`
	if err := s.db.SelectContext(ctx, &readings, query, binID, from, to); err != nil {
		return nil, classify("readings in window", err)
	}
	return readings, nil
}

func (s *Store) ListReadings(ctx context.Context, binID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 1000
	}
	readings := []models.Reading{}
	query := `SELECT ` + readingColumns + ` FROM readings
	          WHERE bin_id = $1
	          ORDER BY ts DESC, created_at DESC
	          LIMIT $2`
	if err := s.db.SelectContext(ctx, &readings, query, binID, limit); err != nil {
		return nil, classify("list readings", err)
	}
	return readings, nil
}

func (s *Store) LatestReading(ctx context.Context, binID string) (*models.Reading, error) {
	var r models.Reading
	query := `SELECT ` + readingColumns + ` FROM readings
	          WHERE bin_id = $1
	          ORDER BY ts DESC, created_at DESC
	          LIMIT 1`
	err := s.db.GetContext(ctx, &r, query, binID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("latest reading", err)
	}
	return &r, nil
}

func (s *Store) SumWeightSince(ctx context.Context, since int64) (float64, error) {
	var total float64
	if err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(weight_kg), 0) FROM readings WHERE ts >= $1`, since); err != nil {
		return 0, classify("sum weight", err)
	}
	return total, nil
}

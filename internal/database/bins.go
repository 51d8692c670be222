package database

import (
	"context"

	"smartbin-backend/internal/models"
)

const binColumns = `id, name, location, capacity_kg, threshold_pct, active, created_at, updated_at`

func (s *Store) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	var bin models.Bin
	err := s.db.GetContext(ctx, &bin, `SELECT `+binColumns+` FROM bins WHERE id = $1`, id)
	if isNoRows(err) {
		return nil, models.NotFound("bin", id)
	}
	if err != nil {
		return nil, classify("get bin", err)
	}
	return &bin, nil
}

func (s *Store) ListBins(ctx context.Context) ([]models.Bin, error) {
	bins := []models.Bin{}
	if err := s.db.SelectContext(ctx, &bins, `SELECT `+binColumns+` FROM bins ORDER BY id`); err != nil {
		return nil, classify("list bins", err)
	}
	return bins, nil
}

func (s *Store) ListActiveBins(ctx context.Context) ([]models.Bin, error) {
	bins := []models.Bin{}
	if err := s.db.SelectContext(ctx, &bins, `SELECT `+binColumns+` FROM bins WHERE active = TRUE ORDER BY id`); err != nil {
		return nil, classify("list active bins", err)
	}
	return bins, nil
}

func (s *Store) UpsertBin(ctx context.Context, bin *models.Bin) error {
	query := `
		INSERT INTO bins (id, name, location, capacity_kg, threshold_pct, active, created_at, updated_at)
		VALUES (:id, :name, :location, :capacity_kg, :threshold_pct, :active, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			capacity_kg = EXCLUDED.capacity_kg,
			threshold_pct = EXCLUDED.threshold_pct,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, bin); err != nil {
		return classify("upsert bin", err)
	}
	return nil
}

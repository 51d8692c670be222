package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
)

func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	log := logger.WithComponent("database")
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is not set")
	}

	log.Info().
		Int("url_length", len(cfg.URL)).
		Str("url_prefix", cfg.URL[:min(30, len(cfg.URL))]).
		Msg("🔌 Connecting to database")

	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("error_type", fmt.Sprintf("%T", err)).Msg("❌ sqlx.Connect() failed")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Error().Err(err).Str("error_type", fmt.Sprintf("%T", err)).Msg("❌ Ping() failed")
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info().Msg("✅ Database connection successful")
	return db, nil
}

// migrations are idempotent and run in order on every start.
var migrations = []string{
	// Create users table
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('staff', 'admin')),
		created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
		updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
	)`,

	// Create bins table
	`CREATE TABLE IF NOT EXISTS bins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		capacity_kg DOUBLE PRECISION NOT NULL DEFAULT 10 CHECK(capacity_kg > 0),
		threshold_pct DOUBLE PRECISION NOT NULL DEFAULT 80 CHECK(threshold_pct > 0 AND threshold_pct <= 100),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
		updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
	)`,

	// Readings may reference bins that are not registered yet; the
	// processor skips them, so there is no foreign key.
	`CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		bin_id TEXT NOT NULL,
		weight_kg DOUBLE PRECISION NOT NULL CHECK(weight_kg >= 0),
		percent_full INT CHECK(percent_full BETWEEN 0 AND 100),
		ts BIGINT NOT NULL,
		simulated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
	)`,

	// Create alerts table
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		bin_id TEXT NOT NULL REFERENCES bins(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK(kind IN ('warning', 'full')),
		message TEXT NOT NULL,
		percent_full INT NOT NULL,
		ts BIGINT NOT NULL,
		ack BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at BIGINT,
		acked_by TEXT,
		created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
	)`,

	// Create summaries table
	`CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		bin_id TEXT NOT NULL,
		bin_location TEXT NOT NULL,
		week_start BIGINT NOT NULL,
		week_end BIGINT NOT NULL,
		total_weight DOUBLE PRECISION NOT NULL,
		avg_weight DOUBLE PRECISION NOT NULL,
		max_weight DOUBLE PRECISION NOT NULL,
		reading_count INT NOT NULL,
		collection_count INT NOT NULL,
		alert_count INT NOT NULL,
		created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE INDEX IF NOT EXISTS idx_bins_active ON bins(active)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_bin_ts ON readings(bin_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_bin_ts ON alerts(bin_id, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_bin_week ON summaries(bin_id, week_start)`,

	// Collapse duplicate open alerts left by older writers, keeping the newest per bin
	`UPDATE alerts SET ack = TRUE, resolved_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	WHERE ack = FALSE AND id NOT IN (
		SELECT DISTINCT ON (bin_id) id FROM alerts
		WHERE ack = FALSE
		ORDER BY bin_id, ts DESC, created_at DESC
	)`,

	// At most one unacknowledged alert per bin
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_one_open_per_bin ON alerts(bin_id) WHERE ack = FALSE`,
}

func Migrate(db *sqlx.DB) error {
	log := logger.WithComponent("database")
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("✓ Database migrations completed")
	return nil
}

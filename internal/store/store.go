package store

import (
	"context"

	"smartbin-backend/internal/models"
)

// BinRegistry holds per-bin configuration. GetBin returns an error
// wrapping models.ErrNotFound for unknown bins.
type BinRegistry interface {
	GetBin(ctx context.Context, id string) (*models.Bin, error)
	ListBins(ctx context.Context) ([]models.Bin, error)
	ListActiveBins(ctx context.Context) ([]models.Bin, error)
	UpsertBin(ctx context.Context, bin *models.Bin) error
}

// ReadingStore is the append-only reading log. Readings are only mutated
// to attach percent full.
type ReadingStore interface {
	InsertReading(ctx context.Context, r *models.Reading) error
	InsertReadings(ctx context.Context, rs []models.Reading) error
	SetPercentFull(ctx context.Context, readingID string, percentFull int) error
	// ReadingsInWindow returns readings with from <= ts < to ordered by ts.
	ReadingsInWindow(ctx context.Context, binID string, from, to int64) ([]models.Reading, error)
	// ListReadings returns the newest readings first.
	ListReadings(ctx context.Context, binID string, limit int) ([]models.Reading, error)
	// LatestReading returns nil when the bin has no readings.
	LatestReading(ctx context.Context, binID string) (*models.Reading, error)
	SumWeightSince(ctx context.Context, since int64) (float64, error)
}

// AlertTx is the view of the alert store inside a per-bin critical section.
type AlertTx interface {
	// OpenAlerts returns the bin's unacknowledged alerts, newest first.
	OpenAlerts(ctx context.Context, binID string) ([]models.Alert, error)
	InsertAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, a *models.Alert) error
}

// AlertStore persists alerts.
type AlertStore interface {
	// Reconcile runs fn while holding the store's critical section for
	// binID. Writes made through tx are committed only if fn returns nil.
	Reconcile(ctx context.Context, binID string, fn func(ctx context.Context, tx AlertTx) error) error
	// Acknowledge marks the alert handled. changed is false when it
	// was already acknowledged.
	Acknowledge(ctx context.Context, alertID, userID string, at int64) (alert *models.Alert, changed bool, err error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	// CountAlerts counts alerts created in [from, to). An empty binID counts every bin.
	CountAlerts(ctx context.Context, binID string, from, to int64) (int, error)
}

// SummaryStore persists weekly summaries.
type SummaryStore interface {
	// SaveSummaries writes the whole batch or nothing.
	SaveSummaries(ctx context.Context, summaries []models.Summary) error
	ListSummaries(ctx context.Context, binID string, limit int) ([]models.Summary, error)
}

// UserStore holds dashboard operators.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Store is implemented by every backend.
type Store interface {
	BinRegistry
	ReadingStore
	AlertStore
	SummaryStore
	UserStore
	Close() error
}

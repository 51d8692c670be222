package models

import "time"

// Summary aggregates one bin's readings and alerts over [WeekStart, WeekEnd).
type Summary struct {
	ID              string  `json:"id" db:"id" firestore:"id"`
	BinID           string  `json:"bin_id" db:"bin_id" firestore:"bin_id"`
	BinLocation     string  `json:"bin_location" db:"bin_location" firestore:"bin_location"`
	WeekStart       int64   `json:"week_start" db:"week_start" firestore:"week_start"`
	WeekEnd         int64   `json:"week_end" db:"week_end" firestore:"week_end"`
	TotalWeight     float64 `json:"total_weight" db:"total_weight" firestore:"total_weight"`
	AvgWeight       float64 `json:"avg_weight" db:"avg_weight" firestore:"avg_weight"`
	MaxWeight       float64 `json:"max_weight" db:"max_weight" firestore:"max_weight"`
	ReadingCount    int     `json:"reading_count" db:"reading_count" firestore:"reading_count"`
	CollectionCount int     `json:"collection_count" db:"collection_count" firestore:"collection_count"`
	AlertCount      int     `json:"alert_count" db:"alert_count" firestore:"alert_count"`
	CreatedAt       int64   `json:"created_at" db:"created_at" firestore:"created_at"`
}

// SummaryResponse is what we send to the client
type SummaryResponse struct {
	ID              string  `json:"id"`
	BinID           string  `json:"binId"`
	BinLocation     string  `json:"binLocation"`
	WeekStartIso    string  `json:"weekStartIso"`
	WeekEndIso      string  `json:"weekEndIso"`
	TotalWeight     float64 `json:"totalWeight"`
	AvgWeight       float64 `json:"avgWeight"`
	MaxWeight       float64 `json:"maxWeight"`
	ReadingCount    int     `json:"readingCount"`
	CollectionCount int     `json:"collectionCount"`
	AlertCount      int     `json:"alertCount"`
}

// ToSummaryResponse converts a Summary to SummaryResponse
func (s *Summary) ToSummaryResponse() SummaryResponse {
	return SummaryResponse{
		ID:              s.ID,
		BinID:           s.BinID,
		BinLocation:     s.BinLocation,
		WeekStartIso:    time.Unix(s.WeekStart, 0).UTC().Format(time.RFC3339),
		WeekEndIso:      time.Unix(s.WeekEnd, 0).UTC().Format(time.RFC3339),
		TotalWeight:     s.TotalWeight,
		AvgWeight:       s.AvgWeight,
		MaxWeight:       s.MaxWeight,
		ReadingCount:    s.ReadingCount,
		CollectionCount: s.CollectionCount,
		AlertCount:      s.AlertCount,
	}
}

// DashboardStats is returned by the dashboard query entry point.
type DashboardStats struct {
	TodayTotal   float64 `json:"todayTotal"`
	ActiveBins   int     `json:"activeBins"`
	FullBins     int     `json:"fullBins"`
	RecentAlerts int     `json:"recentAlerts"`
}

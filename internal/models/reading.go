package models

import "time"

// Reading sources
const (
	SourceHTTP      = "http"
	SourceMQTT      = "mqtt"
	SourceSimulator = "simulator"
)

// Reading is one weight observation. PercentFull stays nil until the
// reading processor has handled it.
type Reading struct {
	ID          string  `json:"id" db:"id" firestore:"id"`
	BinID       string  `json:"bin_id" db:"bin_id" firestore:"bin_id"`
	WeightKg    float64 `json:"weight_kg" db:"weight_kg" firestore:"weight_kg"`
	PercentFull *int    `json:"percent_full,omitempty" db:"percent_full" firestore:"percent_full"`
	TS          int64   `json:"ts" db:"ts" firestore:"ts"` // Unix timestamp
	Simulated   bool    `json:"simulated" db:"simulated" firestore:"simulated"`
	CreatedAt   int64   `json:"created_at" db:"created_at" firestore:"created_at"`
}

// ReadingResponse is what we send to the client
type ReadingResponse struct {
	ID          string  `json:"id"`
	BinID       string  `json:"binId"`
	WeightKg    float64 `json:"weightKg"`
	PercentFull *int    `json:"percentFull,omitempty"`
	TsIso       string  `json:"tsIso"`
	Simulated   bool    `json:"simulated"`
}

// ToReadingResponse converts a Reading to ReadingResponse
func (r *Reading) ToReadingResponse() ReadingResponse {
	return ReadingResponse{
		ID:          r.ID,
		BinID:       r.BinID,
		WeightKg:    r.WeightKg,
		PercentFull: r.PercentFull,
		TsIso:       time.Unix(r.TS, 0).UTC().Format(time.RFC3339),
		Simulated:   r.Simulated,
	}
}

// IngestRequest is the body accepted by the ingestion entry point.
// Pointer fields let validation tell "missing" from "zero".
type IngestRequest struct {
	BinID     *string  `json:"binId"`
	WeightKg  *float64 `json:"weightKg"`
	Timestamp *string  `json:"timestamp,omitempty"`
}

// IngestResponse is returned with HTTP 201.
type IngestResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// ReadingCreated is the event fired once a reading has been persisted.
type ReadingCreated struct {
	ReadingID string  `json:"readingId"`
	BinID     string  `json:"binId"`
	WeightKg  float64 `json:"weightKg"`
	TS        int64   `json:"ts"`
	Source    string  `json:"source"`
}

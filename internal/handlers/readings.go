package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"smartbin-backend/internal/models"
	"smartbin-backend/pkg/utils"
)

const msgBadWeight = "weightKg must be a non-negative number"

// Recorder stores an incoming reading and fires reading-created.
type Recorder interface {
	Record(ctx context.Context, req models.IngestRequest, source string) (*models.Reading, error)
}

// IngestReading is the sensor ingestion entry point. It answers 201 with
// {success, id, message}, 400 with {error} for bad input and 500 otherwise.
func IngestReading(recorder Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeIngest(r)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		reading, err := recorder.Record(r.Context(), req, models.SourceHTTP)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		utils.JSON(w, http.StatusCreated, models.IngestResponse{
			Success: true,
			ID:      reading.ID,
			Message: "Reading recorded successfully",
		})
	}
}

// decodeIngest reads the body loosely so a wrongly typed field is reported
// by name instead of as a JSON error.
func decodeIngest(r *http.Request) (models.IngestRequest, error) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return models.IngestRequest{}, &models.ValidationError{Field: "body", Reason: "Invalid request body"}
	}

	var req models.IngestRequest
	if v, ok := body["binId"].(string); ok {
		req.BinID = &v
	}
	switch v := body["weightKg"].(type) {
	case nil:
	case float64:
		req.WeightKg = &v
	default:
		return models.IngestRequest{}, &models.ValidationError{Field: "weightKg", Reason: msgBadWeight}
	}
	if v, ok := body["timestamp"].(string); ok {
		req.Timestamp = &v
	}
	return req, nil
}

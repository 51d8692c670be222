package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

const maxReadingsLimit = 1000

func GetBins(bins store.BinRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := bins.ListBins(r.Context())
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		responses := make([]models.BinResponse, len(list))
		for i, bin := range list {
			responses[i] = bin.ToBinResponse()
		}
		utils.Success(w, responses)
	}
}

func GetBin(bins store.BinRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bin, err := bins.GetBin(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		utils.Success(w, bin.ToBinResponse())
	}
}

// GetBinReadings lists a bin's readings, newest first. ?limit= caps the
// result at 1000.
func GetBinReadings(bins store.BinRegistry, readings store.ReadingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit, err := parseLimit(r, 100, maxReadingsLimit)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		if _, err := bins.GetBin(r.Context(), id); err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		list, err := readings.ListReadings(r.Context(), id, limit)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		responses := make([]models.ReadingResponse, len(list))
		for i, reading := range list {
			responses[i] = reading.ToReadingResponse()
		}
		utils.Success(w, responses)
	}
}

// UpsertBin registers or updates a bin. Requires admin authentication.
func UpsertBin(bins store.BinRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.UpsertBinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		bin, err := req.ToBin()
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		now := time.Now().Unix()
		bin.CreatedAt = now
		bin.UpdatedAt = now
		if err := bins.UpsertBin(r.Context(), &bin); err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		utils.Success(w, bin.ToBinResponse())
	}
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &models.ValidationError{Field: "limit", Reason: "limit must be a positive integer"}
	}
	if n > max {
		n = max
	}
	return n, nil
}

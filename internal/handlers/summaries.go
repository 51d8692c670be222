package handlers

import (
	"context"
	"net/http"
	"time"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

// SummaryRunner runs the weekly summary for the week ending at end.
type SummaryRunner interface {
	RunOnce(ctx context.Context, end time.Time) ([]models.Summary, error)
}

// GetSummaries lists stored weekly summaries. Supports ?binId= and ?limit=.
func GetSummaries(summaries store.SummaryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, 100, 500)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		list, err := summaries.ListSummaries(r.Context(), r.URL.Query().Get("binId"), limit)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		responses := make([]models.SummaryResponse, len(list))
		for i, s := range list {
			responses[i] = s.ToSummaryResponse()
		}
		utils.Success(w, responses)
	}
}

// RunSummaries triggers the weekly summary now. Requires admin authentication.
func RunSummaries(runner SummaryRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := runner.RunOnce(r.Context(), time.Now())
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		responses := make([]models.SummaryResponse, len(list))
		for i, s := range list {
			responses[i] = s.ToSummaryResponse()
		}
		utils.JSON(w, http.StatusCreated, map[string]interface{}{
			"success":   true,
			"count":     len(responses),
			"summaries": responses,
		})
	}
}

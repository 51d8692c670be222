package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"smartbin-backend/internal/middleware"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

// Acknowledger marks alerts handled.
type Acknowledger interface {
	Acknowledge(ctx context.Context, alertID, userID string) (*models.Alert, error)
}

// GetAlerts lists alerts newest first. Supports ?binId=, ?open=true and ?limit=.
func GetAlerts(alerts store.AlertStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, 100, 500)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		filter := models.AlertFilter{
			BinID: r.URL.Query().Get("binId"),
			Limit: limit,
		}
		if raw := r.URL.Query().Get("open"); raw != "" {
			open, err := strconv.ParseBool(raw)
			if err != nil {
				utils.Error(w, http.StatusBadRequest, "open must be true or false")
				return
			}
			filter.OpenOnly = open
		}

		list, err := alerts.ListAlerts(r.Context(), filter)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		responses := make([]models.AlertResponse, len(list))
		for i, alert := range list {
			responses[i] = alert.ToAlertResponse()
		}
		utils.Success(w, responses)
	}
}

func AcknowledgeAlert(acker Acknowledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.ErrorFrom(w, models.ErrUnauthenticated)
			return
		}

		alert, err := acker.Acknowledge(r.Context(), chi.URLParam(r, "id"), user.UserID)
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}
		utils.Success(w, alert.ToAlertResponse())
	}
}

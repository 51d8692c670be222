package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
)

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom writes err with the status from StatusFor. Internal errors are
// logged and replaced with a generic message.
func ErrorFrom(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusBadRequest:
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			Error(w, status, verr.Reason)
			return
		}
		Error(w, status, err.Error())
	case http.StatusUnauthorized:
		Error(w, status, "Unauthenticated")
	case http.StatusNotFound:
		Error(w, status, "Not found")
	default:
		logger.Logger.Error().Err(err).Msg("Internal error")
		Error(w, status, "Internal server error")
	}
}

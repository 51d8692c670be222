package handlers

import (
	"net/http"
	"time"

	"smartbin-backend/pkg/utils"
)

func Health(backend string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Success(w, map[string]string{
			"status":  "ok",
			"backend": backend,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

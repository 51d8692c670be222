package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/middleware"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool                 `json:"ok"`
	Token string               `json:"token,omitempty"`
	User  *models.UserResponse `json:"user,omitempty"`
}

func Login(users store.UserStore, jwtSecret string) http.HandlerFunc {
	log := logger.WithComponent("auth")
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		email := strings.TrimSpace(req.Email)

		user, err := users.GetUserByEmail(r.Context(), email)
		if errors.Is(err, models.ErrNotFound) {
			log.Info().Str("email", email).Msg("❌ User not found")
			utils.JSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}
		if err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			log.Info().Str("email", email).Msg("❌ Invalid password")
			utils.JSON(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		tokenString, err := middleware.IssueToken(jwtSecret, user, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to create token")
			utils.Error(w, http.StatusInternalServerError, "Failed to create token")
			return
		}

		userResponse := user.ToUserResponse()
		log.Info().Str("email", user.Email).Str("role", user.Role).Msg("✅ Login successful")
		utils.Success(w, LoginResponse{
			OK:    true,
			Token: tokenString,
			User:  &userResponse,
		})
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
	"smartbin-backend/pkg/utils"
)

type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"` // "staff" or "admin"
}

type CreateUserResponse struct {
	Success bool                 `json:"success"`
	User    *models.UserResponse `json:"user,omitempty"`
	Message string               `json:"message,omitempty"`
}

// CreateUser creates a dashboard account. Requires admin authentication.
func CreateUser(users store.UserStore) http.HandlerFunc {
	log := logger.WithComponent("users")
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || req.Password == "" || req.Name == "" || req.Role == "" {
			utils.Error(w, http.StatusBadRequest, "Email, password, name, and role are required")
			return
		}
		if req.Role != models.RoleStaff && req.Role != models.RoleAdmin {
			utils.Error(w, http.StatusBadRequest, "Role must be 'staff' or 'admin'")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error().Err(err).Msg("❌ Failed to hash password")
			utils.Error(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		now := time.Now().Unix()
		user := models.User{
			ID:        uuid.New().String(),
			Email:     req.Email,
			Password:  string(hashedPassword),
			Name:      req.Name,
			Role:      req.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := users.CreateUser(r.Context(), &user); err != nil {
			utils.ErrorFrom(w, err)
			return
		}

		log.Info().
			Str("user_id", user.ID).
			Str("email", user.Email).
			Str("role", user.Role).
			Msg("✅ User created")

		userResponse := user.ToUserResponse()
		utils.JSON(w, http.StatusCreated, CreateUserResponse{
			Success: true,
			User:    &userResponse,
			Message: "User created successfully",
		})
	}
}

package database

import (
	"context"
	"strings"

	"smartbin-backend/internal/models"
)

const userColumns = `id, email, password, name, role, created_at, updated_at`

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if isNoRows(err) {
		return nil, models.NotFound("user", id)
	}
	if err != nil {
		return nil, classify("get user", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
	if isNoRows(err) {
		return nil, models.NotFound("user", email)
	}
	if err != nil {
		return nil, classify("get user by email", err)
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, email, password, name, role, created_at, updated_at)
		VALUES (:id, :email, :password, :name, :role, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, u); err != nil {
		if isUniqueViolation(err) {
			return &models.ValidationError{Field: "email", Reason: "email already registered"}
		}
		return classify("create user", err)
	}
	return nil
}

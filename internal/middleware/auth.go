package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/pkg/utils"
)

type contextKey string

const UserContextKey contextKey = "user"

// TokenTTL is how long a login stays valid.
const TokenTTL = 7 * 24 * time.Hour

type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type tokenClaims struct {
	UserClaims
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for u.
func IssueToken(secret string, u *models.User, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := tokenClaims{
		UserClaims: UserClaims{UserID: u.ID, Email: u.Email, Role: u.Role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns its claims. Every failure
// wraps models.ErrUnauthenticated.
func ParseToken(secret, tokenString string) (UserClaims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return UserClaims{}, errors.Join(models.ErrUnauthenticated, err)
	}
	if claims.UserID == "" {
		return UserClaims{}, models.ErrUnauthenticated
	}
	return claims.UserClaims, nil
}

// Auth validates the Bearer token and adds user claims to the context.
func Auth(secret string) func(http.Handler) http.Handler {
	log := logger.WithComponent("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Debug().Str("path", r.URL.Path).Msg("❌ Missing or malformed authorization header")
				utils.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			userClaims, err := ParseToken(secret, parts[1])
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("❌ Invalid token")
				utils.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, userClaims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not listed. Must be used after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	log := logger.WithComponent("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userClaims, ok := GetUserFromContext(r)
			if !ok {
				utils.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			for _, role := range roles {
				if userClaims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Warn().
				Strs("required", roles).
				Str("role", userClaims.Role).
				Msg("❌ Insufficient permissions")
			utils.Error(w, http.StatusForbidden, "Forbidden")
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) (UserClaims, bool) {
	userClaims, ok := r.Context().Value(UserContextKey).(UserClaims)
	return userClaims, ok
}

// WithUser returns a copy of r carrying claims, as Auth would.
func WithUser(r *http.Request, claims UserClaims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
}

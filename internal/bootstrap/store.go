// Package bootstrap assembles the store and the reading pipeline from
// configuration for the server and simulator commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"smartbin-backend/internal/config"
	"smartbin-backend/internal/database"
	"smartbin-backend/internal/firestore"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/services"
	"smartbin-backend/internal/store"
	"smartbin-backend/internal/store/memory"
)

// OpenStore connects the configured backend. The Firebase app is returned
// when the Firestore backend created one so FCM can share it.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, *firebase.App, error) {
	log := logger.WithComponent("bootstrap")

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if err := database.SeedUsers(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("seed users: %w", err)
		}
		if err := database.SeedBins(db, cfg.Simulator.Bins); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("seed bins: %w", err)
		}
		log.Info().Msg("✅ Postgres store ready")
		return database.NewStore(db), nil, nil

	case config.BackendFirestore:
		app, err := services.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, nil, err
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("error getting firestore client: %w", err)
		}
		st := firestore.New(client)
		if err := EnsureDefaultUsers(ctx, st); err != nil {
			st.Close()
			return nil, nil, err
		}
		log.Info().Msg("✅ Firestore store ready")
		return st, app, nil

	case config.BackendMemory:
		st := memory.New()
		if err := EnsureDefaultUsers(ctx, st); err != nil {
			return nil, nil, err
		}
		log.Warn().Msg("⚠️  Using in-memory store, data is lost on restart")
		return st, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// EnsureDefaultUsers creates database.DefaultUsers that do not exist yet.
func EnsureDefaultUsers(ctx context.Context, users store.UserStore) error {
	log := logger.WithComponent("seed")
	for _, u := range database.DefaultUsers {
		_, err := users.GetUserByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		if err := users.CreateUser(ctx, &models.User{
			ID:        uuid.New().String(),
			Email:     u.Email,
			Password:  string(hashed),
			Name:      u.Name,
			Role:      u.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		log.Info().Str("email", u.Email).Str("role", u.Role).Msg("  ✓ Created user")
	}
	return nil
}

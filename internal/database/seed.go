package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
)

// SeedBins registers the simulator bins if the bins table is empty.
func SeedBins(db *sqlx.DB, bins []config.SimulatorBin) error {
	log := logger.WithComponent("seed")

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM bins"); err != nil {
		return err
	}
	if count > 0 {
		log.Info().Int("bins", count).Msg("✓ Bins already seeded, skipping...")
		return nil
	}

	log.Info().Int("bins", len(bins)).Msg("🌱 Seeding bins...")
	now := time.Now().Unix()
	for _, b := range bins {
		capacity := b.CapacityKg
		if capacity <= 0 {
			capacity = models.DefaultCapacityKg
		}
		bin := models.Bin{
			ID:           b.ID,
			Name:         b.Location + " Main Bin",
			Location:     b.Location,
			CapacityKg:   capacity,
			ThresholdPct: models.DefaultThresholdPct,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err := db.NamedExec(`
			INSERT INTO bins (id, name, location, capacity_kg, threshold_pct, active, created_at, updated_at)
			VALUES (:id, :name, :location, :capacity_kg, :threshold_pct, :active, :created_at, :updated_at)
			ON CONFLICT (id) DO NOTHING
		`, bin)
		if err != nil {
			return err
		}
		log.Info().Str("bin_id", bin.ID).Str("location", bin.Location).Msg("  ✓ Created bin")
	}
	return nil
}

// SeedUser describes an account created by the migrate command.
type SeedUser struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// DefaultUsers are created on an empty users table.
var DefaultUsers = []SeedUser{
	{Email: "staff@smartbin.local", Password: "staff123", Name: "Canteen Staff", Role: models.RoleStaff},
	{Email: "admin@smartbin.local", Password: "admin123", Name: "Admin User", Role: models.RoleAdmin},
}

// SeedUsers creates the default accounts if the users table is empty.
func SeedUsers(db *sqlx.DB) error {
	log := logger.WithComponent("seed")

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}
	if count > 0 {
		log.Info().Msg("✓ Users already seeded, skipping...")
		return nil
	}

	log.Info().Msg("🌱 Seeding default users...")
	for _, u := range DefaultUsers {
		if err := AddUser(db, u); err != nil {
			return err
		}
	}
	return nil
}

// AddUser hashes the password and inserts the account, skipping emails
// that already exist.
func AddUser(db *sqlx.DB, u SeedUser) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	user := models.User{
		ID:        uuid.New().String(),
		Email:     u.Email,
		Password:  string(hashed),
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := db.NamedExec(`
		INSERT INTO users (id, email, password, name, role, created_at, updated_at)
		VALUES (:id, :email, :password, :name, :role, :created_at, :updated_at)
		ON CONFLICT (email) DO NOTHING
	`, user)
	if err != nil {
		return err
	}

	log := logger.WithComponent("seed")
	if n, _ := res.RowsAffected(); n == 0 {
		log.Info().Str("email", u.Email).Msg("  ⚠️  User already exists, skipping")
		return nil
	}
	log.Info().Str("email", u.Email).Str("role", u.Role).Msg("  ✓ Created user")
	return nil
}

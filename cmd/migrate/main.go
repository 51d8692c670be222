package main

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"

	"smartbin-backend/internal/config"
	"smartbin-backend/internal/database"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	email := flag.String("add-user", "", "create a dashboard user with this email")
	password := flag.String("password", "", "password for -add-user")
	name := flag.String("name", "", "display name for -add-user")
	role := flag.String("role", models.RoleStaff, "role for -add-user (staff or admin)")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("migrate")
	if envErr != nil {
		log.Info().Msg("No .env file found, using environment variables")
	}

	if cfg.Store.Backend != config.BackendPostgres {
		log.Fatal().Str("backend", cfg.Store.Backend).Msg("Migrations only apply to the postgres backend")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	if err := database.SeedUsers(db); err != nil {
		log.Fatal().Err(err).Msg("User seeding failed")
	}
	if err := database.SeedBins(db, cfg.Simulator.Bins); err != nil {
		log.Fatal().Err(err).Msg("Bin seeding failed")
	}

	if *email != "" {
		if *password == "" {
			log.Fatal().Msg("-password is required with -add-user")
		}
		if *role != models.RoleStaff && *role != models.RoleAdmin {
			log.Fatal().Str("role", *role).Msg("-role must be staff or admin")
		}
		if *name == "" {
			*name = *email
		}
		if err := database.AddUser(db, database.SeedUser{Email: *email, Password: *password, Name: *name, Role: *role}); err != nil {
			log.Fatal().Err(err).Str("email", *email).Msg("Failed to add user")
		}
	}

	var result struct {
		Users      int `db:"users"`
		Bins       int `db:"bins"`
		ActiveBins int `db:"active_bins"`
		Readings   int `db:"readings"`
		OpenAlerts int `db:"open_alerts"`
		Summaries  int `db:"summaries"`
	}

	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM bins) AS bins,
			(SELECT COUNT(*) FROM bins WHERE active) AS active_bins,
			(SELECT COUNT(*) FROM readings) AS readings,
			(SELECT COUNT(*) FROM alerts WHERE NOT ack) AS open_alerts,
			(SELECT COUNT(*) FROM summaries) AS summaries
	`
	if err := db.Get(&result, query); err != nil {
		log.Fatal().Err(err).Msg("Failed to query summary")
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Users:                   %d\n", result.Users)
	fmt.Printf("Bins:                    %d (%d active)\n", result.Bins, result.ActiveBins)
	fmt.Printf("Readings:                %d\n", result.Readings)
	fmt.Printf("Open alerts:             %d\n", result.OpenAlerts)
	fmt.Printf("Weekly summaries:        %d\n", result.Summaries)
	fmt.Println("============================================================")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smartbin-backend/internal/bootstrap"
	"smartbin-backend/internal/config"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/simulator"
	"smartbin-backend/internal/store"
)

// The simulator feeds readings into the configured store and runs the
// reading processor in-process, so alerts are reconciled without the
// HTTP server.
func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to CONFIG_PATH or config.yaml)")
	seed := flag.Bool("seed-history", false, "write a week of historical readings before starting")
	ticks := flag.Int("ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	flag.Parse()

	envErr := godotenv.Load()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("path", path).Msg("Failed to load config")
	}
	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("simulator")
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, _, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("❌ Store initialization failed")
	}
	defer st.Close()

	bins := store.NewCachedBins(st, cfg.Cache.BinTTL())
	pipeline, err := bootstrap.NewPipeline(cfg, st, bins, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Reading pipeline initialization failed")
	}
	pipeline.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pipeline.Stop(shutdownCtx)
	}()

	sim := simulator.New(cfg.Simulator, bins, st, pipeline.Service)
	if err := sim.EnsureBins(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Bin registration failed")
	}

	if *seed || cfg.Simulator.SeedHistory {
		n, err := sim.SeedHistory(ctx)
		if err != nil {
			log.Error().Err(err).Int("written", n).Msg("⚠️  Seeding reading history failed")
		} else {
			log.Info().Int("readings", n).Msg("🌱 Reading history seeded")
		}
	}

	if *ticks <= 0 {
		sim.Run(ctx)
		return
	}

	ticker := time.NewTicker(cfg.Simulator.Interval)
	defer ticker.Stop()
	for i := 0; i < *ticks; i++ {
		sim.Tick(ctx)
		if i == *ticks-1 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	log.Info().Int("ticks", *ticks).Msg("✅ Simulation finished")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"smartbin-backend/internal/alerts"
	"smartbin-backend/internal/bootstrap"
	"smartbin-backend/internal/config"
	"smartbin-backend/internal/handlers"
	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/middleware"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/mqttingest"
	"smartbin-backend/internal/services"
	"smartbin-backend/internal/simulator"
	"smartbin-backend/internal/store"
	"smartbin-backend/internal/summary"
	"smartbin-backend/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Init("info")
		logger.Logger.Fatal().Err(err).Str("path", configPath).Msg("❌ FATAL ERROR: Failed to load config")
	}

	logger.Init(cfg.Log.Level)
	log := logger.WithComponent("server")

	log.Info().Msg("═══════════════════════════════════════════════════════════════════")
	log.Info().Msg("🚀 SMARTBIN BACKEND SERVER STARTING")
	log.Info().Msg("═══════════════════════════════════════════════════════════════════")
	if envErr != nil {
		log.Warn().Msg("⚠️  .env file not found, using environment variables from system")
	} else {
		log.Info().Msg("✅ .env file loaded successfully")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("backend", cfg.Store.Backend).Msg("🔌 Opening store...")
	st, firebaseApp, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("❌ FATAL ERROR: Store initialization failed")
	}
	defer st.Close()

	loc, err := cfg.Summary.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL ERROR: Invalid summary timezone")
	}

	bins := store.NewCachedBins(st, cfg.Cache.BinTTL())

	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	log.Info().Msg("✅ WebSocket hub started")

	alertOpts := []alerts.Option{alerts.WithNotifier("websocket", wsHub)}
	if fcm := initFCM(ctx, cfg, firebaseApp, log); fcm != nil {
		alertOpts = append(alertOpts, alerts.WithNotifier("fcm", fcm))
	}

	pipeline, err := bootstrap.NewPipeline(cfg, st, bins, alertOpts, wsHub)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL ERROR: Reading pipeline initialization failed")
	}
	wsHub.SetAcknowledger(pipeline.Manager)
	pipeline.Start(ctx)
	if cfg.Kafka.Enabled {
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("✅ Reading trigger on Kafka")
	} else {
		log.Info().Int("workers", cfg.Trigger.Workers).Msg("✅ Reading trigger dispatcher started")
	}

	if cfg.MQTT.Enabled {
		sub := mqttingest.NewSubscriber(mqttingest.Config{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		}, pipeline.Service)
		go func() {
			if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("❌ MQTT subscriber stopped")
			}
		}()
		log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("✅ MQTT ingestion started")
	}

	if cfg.Simulator.Enabled {
		sim := simulator.New(cfg.Simulator, bins, st, pipeline.Service)
		if err := sim.EnsureBins(ctx); err != nil {
			log.Fatal().Err(err).Msg("❌ FATAL ERROR: Simulator bin registration failed")
		}
		if cfg.Simulator.SeedHistory {
			n, err := sim.SeedHistory(ctx)
			if err != nil {
				log.Error().Err(err).Msg("⚠️  Seeding reading history failed")
			} else {
				log.Info().Int("readings", n).Msg("🌱 Reading history seeded")
			}
		}
		go sim.Run(ctx)
		log.Info().Dur("interval", cfg.Simulator.Interval).Int("bins", len(cfg.Simulator.Bins)).Msg("✅ Simulator started")
	}

	weekday, err := cfg.Summary.ParsedWeekday()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ FATAL ERROR: Invalid summary weekday")
	}
	scheduler := summary.NewScheduler(summary.NewAggregator(bins, st, st, st), weekday, cfg.Summary.Hour, loc, cfg.Summary.RetryCount)
	if cfg.Summary.Enabled {
		go scheduler.Run(ctx)
		log.Info().Str("weekday", weekday.String()).Int("hour", cfg.Summary.Hour).Str("timezone", loc.String()).Msg("✅ Weekly summary scheduler started")
	}

	r := newRouter(cfg, st, bins, wsHub, pipeline, scheduler, loc)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════════")
	log.Info().Msg("✅ ALL INITIALIZATION COMPLETE")
	log.Info().Msgf("🚀 Server starting on http://localhost:%s", cfg.Server.Port)
	log.Info().Msg("═══════════════════════════════════════════════════════════════════")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("port", cfg.Server.Port).Msg("❌ FATAL ERROR: Server failed")
		}
		stop()
	case <-ctx.Done():
		log.Info().Msg("🛑 Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	pipeline.Stop(shutdownCtx)
	log.Info().Msg("👋 Server stopped")
}

// initFCM returns nil when no Firebase credentials are usable.
func initFCM(ctx context.Context, cfg *config.Config, app *firebase.App, log zerolog.Logger) *services.FCMService {
	if app == nil {
		var err error
		app, err = services.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️  Firebase not initialized (push notifications disabled)")
			return nil
		}
	}
	fcm, err := services.NewFCMService(ctx, app, cfg.Firebase.AlertTopic)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️  Failed to initialize FCM (push notifications disabled)")
		return nil
	}
	log.Info().Str("topic", cfg.Firebase.AlertTopic).Msg("✅ Firebase Cloud Messaging initialized")
	return fcm
}

func newRouter(cfg *config.Config, st store.Store, bins store.BinRegistry, wsHub *websocket.Hub, pipeline *bootstrap.Pipeline, scheduler *summary.Scheduler, loc *time.Location) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateBurst)
	ingest := handlers.IngestReading(pipeline.Service)
	dashboard := handlers.NewDashboard(st, bins, st, st, loc)

	r.Get("/health", handlers.Health(cfg.Store.Backend))
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, cfg.Auth.JWTSecret))

	// Device ingestion, rate limited per client IP
	r.With(limiter.Middleware).Post("/ingestReading", ingest)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", handlers.Login(st, cfg.Auth.JWTSecret))
		r.With(limiter.Middleware).Post("/readings", ingest)

		r.Get("/bins", handlers.GetBins(bins))
		r.Get("/bins/{id}", handlers.GetBin(bins))
		r.Get("/bins/{id}/readings", handlers.GetBinReadings(bins, st))

		// Dashboard endpoints (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleAdmin, models.RoleStaff))

			r.Get("/dashboard/stats", dashboard.Handle)
			r.Get("/alerts", handlers.GetAlerts(st))
			r.Post("/alerts/{id}/acknowledge", handlers.AcknowledgeAlert(pipeline.Manager))
			r.Get("/summaries", handlers.GetSummaries(st))
		})

		// Manager endpoints (require authentication + admin role)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Post("/bins", handlers.UpsertBin(bins))
			r.Post("/users", handlers.CreateUser(st))
			r.Post("/manager/summaries/run", handlers.RunSummaries(scheduler))
		})
	})

	return r
}

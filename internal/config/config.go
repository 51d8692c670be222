package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Trigger   TriggerConfig   `yaml:"trigger"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Summary   SummaryConfig   `yaml:"summary"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            string   `yaml:"port"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateBurst       int      `yaml:"rate_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// DatabaseConfig holds the Postgres connection configuration.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Store backends
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// FirebaseConfig holds credentials shared by Firestore and FCM.
type FirebaseConfig struct {
	CredentialsFile   string `yaml:"credentials_file"`
	CredentialsBase64 string `yaml:"credentials_base64"`
	ProjectID         string `yaml:"project_id"`
	AlertTopic        string `yaml:"alert_topic"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// TriggerConfig sizes the in-process reading-created worker pool.
type TriggerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// SimulatorBin seeds one simulated bin.
type SimulatorBin struct {
	ID            string  `yaml:"id"`
	Location      string  `yaml:"location"`
	CapacityKg    float64 `yaml:"capacity_kg"`
	InitialWeight float64 `yaml:"initial_weight"`
}

type SimulatorConfig struct {
	Enabled         bool           `yaml:"enabled"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	Interval        time.Duration  `yaml:"-"` // Ignored by YAML parser
	SeedHistory     bool           `yaml:"seed_history"`
	Bins            []SimulatorBin `yaml:"bins"`
}

// SummaryConfig controls the weekly summary schedule.
type SummaryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Weekday    string `yaml:"weekday"`
	Hour       int    `yaml:"hour"`
	Timezone   string `yaml:"timezone"`
	RetryCount int    `yaml:"retry_count"`
}

// AlertsConfig holds the global alert policy.
type AlertsConfig struct {
	WarningPct float64 `yaml:"warning_pct"`
	FullPct    float64 `yaml:"full_pct"`
}

type CacheConfig struct {
	BinTTLSeconds int `yaml:"bin_ttl_seconds"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			RateLimitPerSec: 5,
			RateBurst:       10,
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:           10,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
		},
		Store:    StoreConfig{Backend: BackendPostgres},
		Firebase: FirebaseConfig{CredentialsFile: "./firebase-service-account.json", AlertTopic: "bin-alerts"},
		Kafka:    KafkaConfig{Topic: "readings.created", GroupID: "smartbin-processor"},
		MQTT:     MQTTConfig{Broker: "localhost:1883", Topic: "bins/+/readings", ClientID: "smartbin-backend"},
		Trigger:  TriggerConfig{Workers: 4, QueueSize: 256},
		Simulator: SimulatorConfig{
			IntervalSeconds: 10,
			Bins: []SimulatorBin{
				{ID: "BIN-001", Location: "Canteen 1", CapacityKg: 5, InitialWeight: 1.5},
				{ID: "BIN-002", Location: "Canteen 2", CapacityKg: 10, InitialWeight: 2.0},
			},
		},
		Summary: SummaryConfig{
			Enabled:    true,
			Weekday:    "sunday",
			Hour:       2,
			Timezone:   "Asia/Manila",
			RetryCount: 3,
		},
		Alerts: AlertsConfig{WarningPct: 80, FullPct: 95},
		Cache:  CacheConfig{BinTTLSeconds: 30},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the configuration from the given path. A missing file yields
// the defaults; environment variables override both.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			decoder := yaml.NewDecoder(f)
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("APP_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("FIREBASE_CREDENTIALS_BASE64"); v != "" {
		cfg.Firebase.CredentialsBase64 = v
	}
	if v := os.Getenv("FIREBASE_CREDENTIALS_FILE"); v != "" {
		cfg.Firebase.CredentialsFile = v
	}
	if v := os.Getenv("FIREBASE_PROJECT_ID"); v != "" {
		cfg.Firebase.ProjectID = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("SIMULATOR_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Simulator.Enabled = enabled
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (cfg *Config) normalize() error {
	switch cfg.Store.Backend {
	case BackendPostgres, BackendFirestore, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	a := cfg.Alerts
	if a.WarningPct <= 0 || a.WarningPct > 100 || a.FullPct <= 0 || a.FullPct > 100 {
		return fmt.Errorf("alert thresholds must be in (0, 100], got warning=%v full=%v", a.WarningPct, a.FullPct)
	}
	if a.WarningPct >= a.FullPct {
		return fmt.Errorf("warning_pct (%v) must be below full_pct (%v)", a.WarningPct, a.FullPct)
	}

	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 5
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 10
	}
	if cfg.Trigger.Workers <= 0 {
		cfg.Trigger.Workers = 1
	}
	if cfg.Trigger.QueueSize <= 0 {
		cfg.Trigger.QueueSize = 256
	}
	if cfg.Simulator.IntervalSeconds <= 0 {
		cfg.Simulator.IntervalSeconds = 10
	}
	cfg.Simulator.Interval = time.Duration(cfg.Simulator.IntervalSeconds) * time.Second
	if cfg.Summary.RetryCount < 0 {
		cfg.Summary.RetryCount = 0
	}
	if cfg.Summary.Hour < 0 || cfg.Summary.Hour > 23 {
		return fmt.Errorf("summary.hour must be 0-23, got %d", cfg.Summary.Hour)
	}
	if _, err := cfg.Summary.Location(); err != nil {
		return err
	}
	if _, err := cfg.Summary.ParsedWeekday(); err != nil {
		return err
	}
	if cfg.Cache.BinTTLSeconds < 0 {
		cfg.Cache.BinTTLSeconds = 0
	}
	return nil
}

// BinTTL returns the bin cache TTL.
func (c CacheConfig) BinTTL() time.Duration {
	return time.Duration(c.BinTTLSeconds) * time.Second
}

// Location resolves the configured timezone.
func (s SummaryConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid summary.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// ParsedWeekday resolves the configured weekday name.
func (s SummaryConfig) ParsedWeekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s.Weekday))
	if name == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid summary.weekday %q", s.Weekday)
}

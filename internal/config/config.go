package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	PostgresDSN    string
	StoreDriver    string
	RedisAddr      string
	KafkaBrokers   []string
	KafkaEnabled   bool
	JWTSecret      string
	JWTTTL         time.Duration
	OTLPEndpoint   string
	ExpirySchedule string
	RateLimitRPS   float64
	RateLimitBurst int
	LogLevel       string
	MigrateOnStart bool
	// AdminEmails are granted the admin role at signup.
	AdminEmails []string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		PostgresDSN:    getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=campus_gigs sslmode=disable"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:   strings.Split(getEnv("KAFKA_BROKER", "localhost:9092"), ","),
		JWTSecret:      getEnv("JWT_SECRET", "supersecret"),
		OTLPEndpoint:   os.Getenv("OTLP_ENDPOINT"),
		ExpirySchedule: getEnv("EXPIRY_SCHEDULE", "@every 60s"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AdminEmails:    splitList(os.Getenv("ADMIN_EMAILS")),
	}

	var err error
	if cfg.KafkaEnabled, err = strconv.ParseBool(getEnv("KAFKA_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("invalid KAFKA_ENABLED: %w", err)
	}
	if cfg.MigrateOnStart, err = strconv.ParseBool(getEnv("MIGRATE_ON_START", "false")); err != nil {
		return nil, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
	}
	if cfg.JWTTTL, err = time.ParseDuration(getEnv("JWT_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getEnv("RATE_LIMIT_BURST", "40")); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"store_driver", cfg.StoreDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_enabled", cfg.KafkaEnabled,
		"expiry_schedule", cfg.ExpirySchedule,
	)
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.StoreDriver != DriverPostgres && c.StoreDriver != DriverMemory {
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for the postgres store")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if _, err := cron.ParseStandard(c.ExpirySchedule); err != nil {
		return fmt.Errorf("invalid EXPIRY_SCHEDULE %q: %w", c.ExpirySchedule, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, strings.ToLower(item))
		}
	}
	return out
}
